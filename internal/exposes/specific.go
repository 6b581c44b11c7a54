package exposes

func specific(typ string) *Expose {
	return &Expose{Type: typ}
}

// Switch is an on/off switch with a "state" feature.
func Switch() *Expose {
	return specific(TypeSwitch).WithFeature(
		Binary("state", AccessAll, "ON", "OFF").
			WithValueToggle("TOGGLE").
			WithDescription("On/off state of the switch"))
}

// Light is a dimmable light: state plus brightness.
func Light() *Expose {
	return specific(TypeLight).WithFeature(
		Binary("state", AccessAll, "ON", "OFF").
			WithValueToggle("TOGGLE").
			WithDescription("On/off state of this light"))
}

// WithBrightness adds a 0..254 brightness feature to a light.
func (e *Expose) WithBrightness() *Expose {
	return e.WithFeature(Numeric("brightness", AccessAll).
		WithValueMin(0).
		WithValueMax(254).
		WithDescription("Brightness of this light"))
}

// Cover is a window covering with open/close/stop commands.
func Cover() *Expose {
	return specific(TypeCover).WithFeature(
		Enum("state", AccessStateSet, []string{"OPEN", "CLOSE", "STOP"}))
}

// WithPosition adds the lift position feature to a cover.
func (e *Expose) WithPosition() *Expose {
	return e.WithFeature(Numeric("position", AccessAll).
		WithValueMin(0).
		WithValueMax(100).
		WithUnit("%").
		WithDescription("Position of this cover"))
}

// WithTilt adds the tilt feature to a cover.
func (e *Expose) WithTilt() *Expose {
	return e.WithFeature(Numeric("tilt", AccessAll).
		WithValueMin(0).
		WithValueMax(100).
		WithUnit("%").
		WithDescription("Tilt of this cover"))
}

// Lock is a door lock with a LOCK/UNLOCK state.
func Lock() *Expose {
	return specific(TypeLock).WithFeature(
		Binary("state", AccessAll, "LOCK", "UNLOCK").
			WithDescription("State of the lock"))
}

// Climate is a thermostat; features are added with the With* methods below.
func Climate() *Expose {
	return specific(TypeClimate)
}

// WithSetpoint adds a setpoint feature such as occupied_heating_setpoint.
func (e *Expose) WithSetpoint(property string, min, max, step float64, access ...Access) *Expose {
	a := AccessAll
	if len(access) > 0 {
		a = access[0]
	}
	desc := "Temperature setpoint"
	switch property {
	case "occupied_heating_setpoint":
		desc = "Temperature setpoint when heating"
	case "occupied_cooling_setpoint":
		desc = "Temperature setpoint when cooling"
	}
	return e.WithFeature(Numeric(property, a).
		WithValueMin(min).
		WithValueMax(max).
		WithValueStep(step).
		WithUnit("°C").
		WithDescription(desc))
}

// WithLocalTemperature adds the measured temperature feature.
func (e *Expose) WithLocalTemperature(access Access, description string) *Expose {
	if description == "" {
		description = "Current temperature measured on the device"
	}
	return e.WithFeature(Numeric("local_temperature", access).
		WithUnit("°C").
		WithDescription(description))
}

// WithLocalTemperatureCalibration adds the temperature offset feature.
func (e *Expose) WithLocalTemperatureCalibration(min, max, step float64) *Expose {
	return e.WithFeature(Numeric("local_temperature_calibration", AccessAll).
		WithValueMin(min).
		WithValueMax(max).
		WithValueStep(step).
		WithUnit("°C").
		WithDescription("Offset to add/subtract to the local temperature"))
}

// WithSystemMode adds the system mode feature.
func (e *Expose) WithSystemMode(modes []string, access ...Access) *Expose {
	a := AccessAll
	if len(access) > 0 {
		a = access[0]
	}
	return e.WithFeature(Enum("system_mode", a, modes).WithDescription("Mode of this device"))
}

// WithRunningState adds the running state feature.
func (e *Expose) WithRunningState(states []string, access Access) *Expose {
	return e.WithFeature(Enum("running_state", access, states).WithDescription("The current running state"))
}

// WithPiHeatingDemand adds the valve position feature to a climate.
func (e *Expose) WithPiHeatingDemand(access Access) *Expose {
	return e.WithFeature(PiHeatingDemand().WithAccess(access))
}
