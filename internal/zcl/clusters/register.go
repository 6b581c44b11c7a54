// Package clusters holds the ZCL cluster definitions the device catalog
// addresses by name. Vendor clusters that only exist on a single product
// live with that product's definition instead.
package clusters

import "zigbee-go-catalog/internal/zcl"

// Standard returns the standard cluster set in ID order.
func Standard() []zcl.ClusterDef {
	return []zcl.ClusterDef{
		Basic,                 // 0x0000
		PowerConfig,           // 0x0001
		Identify,              // 0x0003
		OnOff,                 // 0x0006
		LevelCtrl,             // 0x0008
		Alarms,                // 0x0009
		Time,                  // 0x000A
		OTA,                   // 0x0019
		PollCtrl,              // 0x0020
		WindowCovering,        // 0x0102
		Thermostat,            // 0x0201
		ThermostatUICfg,       // 0x0204
		ColorCtrl,             // 0x0300
		Illuminance,           // 0x0400
		Temperature,           // 0x0402
		Humidity,              // 0x0405
		Occupancy,             // 0x0406
		IASZone,               // 0x0500
		IASWD,                 // 0x0502
		Metering,              // 0x0702
		ElectricalMeasurement, // 0x0B04
	}
}

// RegisterAll registers the standard clusters and the vendor attribute
// extensions that are shared across products.
func RegisterAll(r *zcl.Registry) {
	for _, c := range Standard() {
		r.Register(c)
	}
	r.Register(MeazonMetering)
}
