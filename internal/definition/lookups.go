package definition

// Enumerations of standard ZCL attributes shared by the generic converters.
var (
	ThermostatSystemModes = Lookup{
		{"off", 0}, {"auto", 1}, {"cool", 3}, {"heat", 4}, {"emergency_heating", 5},
		{"precooling", 6}, {"fan_only", 7}, {"dry", 8}, {"sleep", 9},
	}
	ThermostatProgrammingOperationModes = Lookup{
		{"setpoint", 0}, {"schedule", 1}, {"schedule_with_preheat", 3}, {"eco", 4},
	}
	ThermostatControlSequences = Lookup{
		{"cooling_only", 0}, {"cooling_with_reheat", 1}, {"heating_only", 2},
		{"heating_with_reheat", 3}, {"cooling_and_heating_4-pipes", 4},
		{"cooling_and_heating_4-pipes_with_reheat", 5},
	}
	SetpointChangeSources = Lookup{{"manual", 0}, {"schedule", 1}, {"externally", 2}}
	KeypadLockoutModes    = Lookup{
		{"unlock", 0}, {"lock1", 1}, {"lock2", 2}, {"lock3", 3}, {"lock4", 4}, {"lock5", 5},
	}
	TemperatureDisplayModes = Lookup{{"celsius", 0}, {"fahrenheit", 1}}
	PowerOnBehaviors        = Lookup{{"off", 0}, {"on", 1}, {"toggle", 2}, {"previous", 255}}
	PowerSources            = Lookup{
		{"unknown", 0}, {"mains_single_phase", 1}, {"mains_three_phase", 2}, {"battery", 3},
		{"dc_source", 4}, {"emergency_mains_constantly_powered", 5},
		{"emergency_mains_and_transfer_switch", 6},
	}
	WarningModes = Lookup{
		{"stop", 0}, {"burglar", 1}, {"fire", 2}, {"emergency", 3},
		{"police_panic", 4}, {"fire_panic", 5}, {"emergency_panic", 6},
	}
	WarningLevels = Lookup{{"low", 0}, {"medium", 1}, {"high", 2}, {"very_high", 3}}
)

// ThermostatRunningState names the runningState bitmap.
func ThermostatRunningState(bits uint64) string {
	switch {
	case bits&(0x0001|0x0008) != 0:
		return "heat"
	case bits&(0x0002|0x0010) != 0:
		return "cool"
	case bits&(0x0004|0x0020|0x0040) != 0:
		return "fan_only"
	}
	return "idle"
}
