package exposes

func Battery() *Expose {
	return Numeric("battery", AccessStateGet).
		WithUnit("%").
		WithValueMin(0).
		WithValueMax(100).
		WithDescription("Remaining battery in %, can take up to 24 hours before reported").
		WithCategory(CategoryDiagnostic)
}

func BatteryLow() *Expose {
	return Binary("battery_low", AccessState, true, false).
		WithDescription("Indicates if the battery of this device is almost empty").
		WithCategory(CategoryDiagnostic)
}

func BatteryVoltage() *Expose {
	return Numeric("voltage", AccessState).
		WithUnit("mV").
		WithDescription("Voltage of the battery in millivolts").
		WithCategory(CategoryDiagnostic)
}

func Temperature() *Expose {
	return Numeric("temperature", AccessState).
		WithUnit("°C").
		WithDescription("Measured temperature value")
}

func Humidity() *Expose {
	return Numeric("humidity", AccessState).
		WithUnit("%").
		WithDescription("Measured relative humidity")
}

func Illuminance() *Expose {
	return Numeric("illuminance", AccessState).
		WithUnit("lx").
		WithDescription("Measured illuminance")
}

func Occupancy() *Expose {
	return Binary("occupancy", AccessState, true, false).
		WithDescription("Indicates whether the device detected occupancy")
}

func Tamper() *Expose {
	return Binary("tamper", AccessState, true, false).
		WithDescription("Indicates whether the device is tampered")
}

func Contact() *Expose {
	return Binary("contact", AccessState, false, true).
		WithDescription("Indicates if the contact is closed (= true) or open (= false)")
}

func WaterLeak() *Expose {
	return Binary("water_leak", AccessState, true, false).
		WithDescription("Indicates whether the device detected a water leak")
}

func Smoke() *Expose {
	return Binary("smoke", AccessState, true, false).
		WithDescription("Indicates whether the device detected smoke")
}

func Vibration() *Expose {
	return Binary("vibration", AccessState, true, false).
		WithDescription("Indicates whether the device detected vibration")
}

func CO2() *Expose {
	return Numeric("co2", AccessState).
		WithUnit("ppm").
		WithDescription("The measured CO2 (carbon dioxide) value")
}

func VOC() *Expose {
	return Numeric("voc", AccessState).
		WithUnit("µg/m³").
		WithDescription("Measured VOC value")
}

func Power() *Expose {
	return Numeric("power", AccessState).
		WithUnit("W").
		WithDescription("Instantaneous measured power")
}

func Voltage() *Expose {
	return Numeric("voltage", AccessState).
		WithUnit("V").
		WithDescription("Measured electrical potential value")
}

func Current() *Expose {
	return Numeric("current", AccessState).
		WithUnit("A").
		WithDescription("Instantaneous measured electrical current")
}

func Energy() *Expose {
	return Numeric("energy", AccessState).
		WithUnit("kWh").
		WithDescription("Sum of consumed energy")
}

func PiHeatingDemand() *Expose {
	return Numeric("pi_heating_demand", AccessState).
		WithLabel("PI heating demand").
		WithValueMin(0).
		WithValueMax(100).
		WithUnit("%").
		WithDescription("Position of the valve (= demanded heat) where 0% is fully closed and 100% is fully open")
}

// CoverPosition is a cover with the lift position feature.
func CoverPosition() *Expose {
	return Cover().WithPosition()
}

func PowerOnBehavior(values ...string) *Expose {
	if len(values) == 0 {
		values = []string{"off", "on", "toggle", "previous"}
	}
	return Enum("power_on_behavior", AccessAll, values).
		WithLabel("Power-on behavior").
		WithDescription("Controls the behavior when the device is powered on after power loss").
		WithCategory(CategoryConfig)
}

func Action(values []string) *Expose {
	return Enum("action", AccessState, values).
		WithDescription("Triggered action (e.g. a button click)").
		WithCategory(CategoryDiagnostic)
}

// Warning is the IAS warning device command, published as a composite.
func Warning() *Expose {
	return Composite("warning", "warning", AccessSet).
		WithFeature(Enum("mode", AccessSet, []string{"stop", "burglar", "fire", "emergency", "police_panic", "fire_panic", "emergency_panic"}).
			WithDescription("Mode of the warning (sound effect)")).
		WithFeature(Enum("level", AccessSet, []string{"low", "medium", "high", "very_high"}).
			WithDescription("Sound level")).
		WithFeature(Enum("strobe_level", AccessSet, []string{"low", "medium", "high", "very_high"}).
			WithDescription("Intensity of the strobe")).
		WithFeature(Binary("strobe", AccessSet, true, false).
			WithDescription("Turn on/off the strobe (light) during warning")).
		WithFeature(Numeric("strobe_duty_cycle", AccessSet).
			WithValueMin(0).
			WithValueMax(10).
			WithDescription("Length of the flash cycle")).
		WithFeature(Numeric("duration", AccessSet).
			WithUnit("s").
			WithDescription("Duration in seconds of the alarm"))
}

func Test() *Expose {
	return Binary("test", AccessState, true, false).
		WithDescription("Indicates whether the device is being tested").
		WithCategory(CategoryDiagnostic)
}

func ChildLock() *Expose {
	return Binary("child_lock", AccessAll, "LOCK", "UNLOCK").
		WithDescription("Enables/disables physical input on the device")
}

func LinkQuality() *Expose {
	return Numeric("linkquality", AccessState).
		WithLabel("Linkquality").
		WithUnit("lqi").
		WithValueMin(0).
		WithValueMax(255).
		WithDescription("Link quality (signal strength)").
		WithCategory(CategoryDiagnostic)
}
