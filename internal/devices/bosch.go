package devices

import (
	"slices"

	"zigbee-go-catalog/internal/definition"
)

// ManufacturerBosch is the manufacturer code of Robert Bosch GmbH.
const ManufacturerBosch uint16 = 0x1209

var boschOptions = definition.ZCLOptions{ManufacturerCode: ManufacturerBosch}

// Bosch returns the Bosch Smart Home definitions.
func Bosch() []*definition.Definition {
	return slices.Concat(
		boschSecurity(),
		boschThermostats(),
		[]*definition.Definition{boschTwinguard(), boschUniversalSwitch()},
		boschActuators(),
	)
}

// lookupState returns a converter result mapping key to the lookup key
// matching the raw value, when there is one.
func lookupState(key string, lookup definition.Lookup, raw any) Values {
	name, ok := lookup.Key(raw)
	if !ok {
		return nil
	}
	return Values{key: name}
}

var stateOffOn = definition.Lookup{{Key: "OFF", Value: 0x00}, {Key: "ON", Value: 0x01}}
