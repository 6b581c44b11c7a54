package zcl

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ZCL data type IDs
const (
	TypeNoData     uint8 = 0x00
	TypeData8      uint8 = 0x08
	TypeData16     uint8 = 0x09
	TypeData24     uint8 = 0x0A
	TypeData32     uint8 = 0x0B
	TypeBool       uint8 = 0x10
	TypeBitmap8    uint8 = 0x18
	TypeBitmap16   uint8 = 0x19
	TypeBitmap24   uint8 = 0x1A
	TypeBitmap32   uint8 = 0x1B
	TypeBitmap64   uint8 = 0x1F
	TypeUint8      uint8 = 0x20
	TypeUint16     uint8 = 0x21
	TypeUint24     uint8 = 0x22
	TypeUint32     uint8 = 0x23
	TypeUint40     uint8 = 0x24
	TypeUint48     uint8 = 0x25
	TypeUint56     uint8 = 0x26
	TypeUint64     uint8 = 0x27
	TypeInt8       uint8 = 0x28
	TypeInt16      uint8 = 0x29
	TypeInt24      uint8 = 0x2A
	TypeInt32      uint8 = 0x2B
	TypeInt40      uint8 = 0x2C
	TypeInt48      uint8 = 0x2D
	TypeInt56      uint8 = 0x2E
	TypeInt64      uint8 = 0x2F
	TypeEnum8      uint8 = 0x30
	TypeEnum16     uint8 = 0x31
	TypeFloat16    uint8 = 0x38
	TypeFloat32    uint8 = 0x39
	TypeFloat64    uint8 = 0x3A
	TypeOctetStr   uint8 = 0x41
	TypeCharStr    uint8 = 0x42
	TypeOctetStr16 uint8 = 0x43
	TypeCharStr16  uint8 = 0x44
	TypeArray      uint8 = 0x48
	TypeStruct     uint8 = 0x4C
	TypeToD        uint8 = 0xE0 // Time of Day
	TypeDate       uint8 = 0xE1
	TypeUTC        uint8 = 0xE2
	TypeClusterID  uint8 = 0xE8
	TypeAttrID     uint8 = 0xE9
	TypeEUI64      uint8 = 0xF0
	TypeKey128     uint8 = 0xF1

	// TypeBuffer is not a wire type: command parameters of this type are
	// raw bytes written without a length prefix and consume the rest of
	// the payload when decoded.
	TypeBuffer uint8 = 0xFE
)

type typeKind uint8

const (
	kindNone typeKind = iota
	kindUnsigned
	kindSigned
	kindBool
	kindFloat
	kindString
	kindOctets
	kindCollection
	kindRaw
)

type typeInfo struct {
	name string
	kind typeKind
	size int // bytes; for strings the width of the length prefix
}

var typeTable = map[uint8]typeInfo{
	TypeNoData:     {"nodata", kindNone, 0},
	TypeData8:      {"data8", kindUnsigned, 1},
	TypeData16:     {"data16", kindUnsigned, 2},
	TypeData24:     {"data24", kindUnsigned, 3},
	TypeData32:     {"data32", kindUnsigned, 4},
	TypeBool:       {"bool", kindBool, 1},
	TypeBitmap8:    {"map8", kindUnsigned, 1},
	TypeBitmap16:   {"map16", kindUnsigned, 2},
	TypeBitmap24:   {"map24", kindUnsigned, 3},
	TypeBitmap32:   {"map32", kindUnsigned, 4},
	TypeBitmap64:   {"map64", kindUnsigned, 8},
	TypeUint8:      {"uint8", kindUnsigned, 1},
	TypeUint16:     {"uint16", kindUnsigned, 2},
	TypeUint24:     {"uint24", kindUnsigned, 3},
	TypeUint32:     {"uint32", kindUnsigned, 4},
	TypeUint40:     {"uint40", kindUnsigned, 5},
	TypeUint48:     {"uint48", kindUnsigned, 6},
	TypeUint56:     {"uint56", kindUnsigned, 7},
	TypeUint64:     {"uint64", kindUnsigned, 8},
	TypeInt8:       {"int8", kindSigned, 1},
	TypeInt16:      {"int16", kindSigned, 2},
	TypeInt24:      {"int24", kindSigned, 3},
	TypeInt32:      {"int32", kindSigned, 4},
	TypeInt40:      {"int40", kindSigned, 5},
	TypeInt48:      {"int48", kindSigned, 6},
	TypeInt56:      {"int56", kindSigned, 7},
	TypeInt64:      {"int64", kindSigned, 8},
	TypeEnum8:      {"enum8", kindUnsigned, 1},
	TypeEnum16:     {"enum16", kindUnsigned, 2},
	TypeFloat16:    {"semi", kindFloat, 2},
	TypeFloat32:    {"single", kindFloat, 4},
	TypeFloat64:    {"double", kindFloat, 8},
	TypeOctetStr:   {"octstr", kindOctets, 1},
	TypeCharStr:    {"string", kindString, 1},
	TypeOctetStr16: {"octstr16", kindOctets, 2},
	TypeCharStr16:  {"string16", kindString, 2},
	TypeArray:      {"array", kindCollection, 0},
	TypeStruct:     {"struct", kindCollection, 0},
	TypeToD:        {"ToD", kindUnsigned, 4},
	TypeDate:       {"date", kindUnsigned, 4},
	TypeUTC:        {"UTC", kindUnsigned, 4},
	TypeClusterID:  {"clusterId", kindUnsigned, 2},
	TypeAttrID:     {"attribId", kindUnsigned, 2},
	TypeEUI64:      {"EUI64", kindUnsigned, 8},
	TypeKey128:     {"key128", kindRaw, 16},
	TypeBuffer:     {"buffer", kindRaw, -1},
}

// TypeSize returns the fixed size in bytes of a ZCL type, or -1 for variable-length types.
func TypeSize(typeID uint8) int {
	info, ok := typeTable[typeID]
	if !ok {
		return -1
	}
	switch info.kind {
	case kindString, kindOctets, kindCollection:
		return -1
	}
	return info.size
}

// TypeName returns a human-readable name for a ZCL type.
func TypeName(typeID uint8) string {
	if info, ok := typeTable[typeID]; ok {
		return info.name
	}
	return fmt.Sprintf("0x%02X", typeID)
}

// IsAnalog reports whether typeID is an analog type. Only analog
// attributes carry a reportable change in Configure Reporting.
func IsAnalog(typeID uint8) bool {
	switch {
	case typeID >= TypeUint8 && typeID <= TypeInt64:
		return true
	case typeID >= TypeFloat16 && typeID <= TypeFloat64:
		return true
	case typeID == TypeToD || typeID == TypeDate || typeID == TypeUTC:
		return true
	}
	return false
}

// DecodeValue decodes a ZCL typed value from raw bytes, returning the Go
// value and bytes consumed. Unsigned, enum, bitmap and EUI64 values decode
// to uint64, signed values to int64 and floats to float64, so converters
// deal with one representation per kind.
func DecodeValue(typeID uint8, data []byte) (any, int, error) {
	info, ok := typeTable[typeID]
	if !ok {
		return nil, 0, fmt.Errorf("zcl: unsupported type 0x%02X", typeID)
	}
	switch info.kind {
	case kindNone:
		return nil, 0, nil
	case kindString, kindOctets:
		return decodeString(info, data)
	case kindCollection:
		if typeID == TypeArray {
			return decodeArray(data)
		}
		return decodeStruct(data)
	case kindRaw:
		n := info.size
		if n < 0 {
			n = len(data)
		}
		if len(data) < n {
			return nil, 0, fmt.Errorf("zcl: not enough data for type 0x%02X: need %d, have %d", typeID, n, len(data))
		}
		return append([]byte(nil), data[:n]...), n, nil
	}

	if len(data) < info.size {
		return nil, 0, fmt.Errorf("zcl: not enough data for type 0x%02X: need %d, have %d", typeID, info.size, len(data))
	}
	raw := readUint(data, info.size)
	switch info.kind {
	case kindBool:
		return raw != 0, 1, nil
	case kindSigned:
		shift := 64 - 8*uint(info.size)
		return int64(raw<<shift) >> shift, info.size, nil
	case kindFloat:
		switch typeID {
		case TypeFloat16:
			return halfToFloat(uint16(raw)), 2, nil
		case TypeFloat32:
			return float64(math.Float32frombits(uint32(raw))), 4, nil
		default:
			return math.Float64frombits(raw), 8, nil
		}
	}
	return raw, info.size, nil
}

func readUint(data []byte, size int) uint64 {
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(data[i])
	}
	return v
}

func putUint(v uint64, size int) []byte {
	buf := make([]byte, size)
	for i := 0; i < size; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	return buf
}

func decodeString(info typeInfo, data []byte) (any, int, error) {
	if len(data) < info.size {
		return nil, 0, fmt.Errorf("zcl: no length prefix for %s", info.name)
	}
	length := int(readUint(data, info.size))
	invalid := 0xFF
	if info.size == 2 {
		invalid = 0xFFFF
	}
	if length == invalid {
		return nil, info.size, nil
	}
	end := info.size + length
	if len(data) < end {
		return nil, 0, fmt.Errorf("zcl: %s truncated: need %d, have %d", info.name, length, len(data)-info.size)
	}
	if info.kind == kindString {
		return string(data[info.size:end]), end, nil
	}
	return append([]byte(nil), data[info.size:end]...), end, nil
}

func decodeArray(data []byte) (any, int, error) {
	if len(data) < 3 {
		return nil, 0, fmt.Errorf("zcl: array header truncated")
	}
	elemType := data[0]
	count := int(binary.LittleEndian.Uint16(data[1:3]))
	if count == 0xFFFF {
		return nil, 3, nil
	}
	pos := 3
	values := make([]any, 0, count)
	for i := 0; i < count; i++ {
		v, n, err := DecodeValue(elemType, data[pos:])
		if err != nil {
			return nil, 0, fmt.Errorf("zcl: array element %d: %w", i, err)
		}
		values = append(values, v)
		pos += n
	}
	return values, pos, nil
}

func decodeStruct(data []byte) (any, int, error) {
	if len(data) < 2 {
		return nil, 0, fmt.Errorf("zcl: struct header truncated")
	}
	count := int(binary.LittleEndian.Uint16(data[:2]))
	if count == 0xFFFF {
		return nil, 2, nil
	}
	pos := 2
	values := make([]any, 0, count)
	for i := 0; i < count; i++ {
		if pos >= len(data) {
			return nil, 0, fmt.Errorf("zcl: struct element %d truncated", i)
		}
		elemType := data[pos]
		v, n, err := DecodeValue(elemType, data[pos+1:])
		if err != nil {
			return nil, 0, fmt.Errorf("zcl: struct element %d: %w", i, err)
		}
		values = append(values, v)
		pos += 1 + n
	}
	return values, pos, nil
}

// EncodeValue encodes a Go value into ZCL wire format, rejecting values
// outside the range of the target type.
func EncodeValue(typeID uint8, val any) ([]byte, error) {
	info, ok := typeTable[typeID]
	if !ok || info.kind == kindCollection {
		return nil, fmt.Errorf("zcl: encode not implemented for type 0x%02X", typeID)
	}

	switch info.kind {
	case kindNone:
		return nil, nil

	case kindBool:
		v, ok := ToBool(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to bool", val)
		}
		if v {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case kindUnsigned:
		v, ok := ToUint64(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to %s", val, info.name)
		}
		if info.size < 8 && v >= 1<<(8*uint(info.size)) {
			return nil, fmt.Errorf("zcl: value %d overflows %s (max %d)", v, info.name, uint64(1)<<(8*uint(info.size))-1)
		}
		return putUint(v, info.size), nil

	case kindSigned:
		v, ok := ToInt64(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to %s", val, info.name)
		}
		if info.size < 8 {
			limit := int64(1) << (8*uint(info.size) - 1)
			if v < -limit || v > limit-1 {
				return nil, fmt.Errorf("zcl: value %d overflows %s (range %d..%d)", v, info.name, -limit, limit-1)
			}
		}
		return putUint(uint64(v), info.size), nil

	case kindFloat:
		v, ok := ToFloat64(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to %s", val, info.name)
		}
		switch typeID {
		case TypeFloat16:
			return putUint(uint64(floatToHalf(v)), 2), nil
		case TypeFloat32:
			return putUint(uint64(math.Float32bits(float32(v))), 4), nil
		default:
			return putUint(math.Float64bits(v), 8), nil
		}

	case kindString, kindOctets:
		var b []byte
		switch s := val.(type) {
		case string:
			b = []byte(s)
		case []byte:
			b = s
		default:
			return nil, fmt.Errorf("zcl: cannot convert %T to %s", val, info.name)
		}
		limit := 0xFE
		if info.size == 2 {
			limit = 0xFFFE
		}
		if len(b) > limit {
			return nil, fmt.Errorf("zcl: data too long for %s: %d (max %d)", info.name, len(b), limit)
		}
		return append(putUint(uint64(len(b)), info.size), b...), nil

	case kindRaw:
		b, ok := val.([]byte)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to %s", val, info.name)
		}
		if info.size > 0 && len(b) != info.size {
			return nil, fmt.Errorf("zcl: %s requires %d bytes, got %d", info.name, info.size, len(b))
		}
		return append([]byte(nil), b...), nil
	}

	return nil, fmt.Errorf("zcl: encode not implemented for type 0x%02X", typeID)
}

// halfToFloat converts an IEEE 754 half-precision value.
func halfToFloat(h uint16) float64 {
	sign := 1.0
	if h&0x8000 != 0 {
		sign = -1
	}
	exp := int(h>>10) & 0x1F
	frac := float64(h & 0x3FF)
	switch exp {
	case 0:
		return sign * frac * math.Pow(2, -24)
	case 0x1F:
		if frac == 0 {
			return math.Inf(int(sign))
		}
		return math.NaN()
	}
	return sign * (1 + frac/1024) * math.Pow(2, float64(exp-15))
}

func floatToHalf(f float64) uint16 {
	bits := math.Float32bits(float32(f))
	sign := uint16(bits>>16) & 0x8000
	exp := int(bits>>23&0xFF) - 127 + 15
	mant := bits & 0x7FFFFF
	switch {
	case exp <= 0:
		return sign
	case exp >= 0x1F:
		return sign | 0x7C00
	}
	return sign | uint16(exp)<<10 | uint16(mant>>13)
}

// ToBool converts JSON-ish and ZCL-decoded values to bool.
func ToBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	}
	if n, ok := ToFloat64(v); ok {
		return n != 0, true
	}
	return false, false
}

// ToUint64 converts any integer or non-negative float to uint64.
func ToUint64(v any) (uint64, bool) {
	switch val := v.(type) {
	case uint8:
		return uint64(val), true
	case uint16:
		return uint64(val), true
	case uint32:
		return uint64(val), true
	case uint64:
		return val, true
	case uint:
		return uint64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	}
	if i, ok := ToInt64(v); ok {
		if i < 0 {
			return 0, false
		}
		return uint64(i), true
	}
	return 0, false
}

// ToInt64 converts any integer or float value to int64.
func ToInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case int:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint:
		if uint64(val) > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case float32:
		return int64(math.Round(float64(val))), true
	case float64:
		if val > math.MaxInt64 || val < math.MinInt64 {
			return 0, false
		}
		return int64(math.Round(val)), true
	}
	return 0, false
}

// ToFloat64 converts any numeric value to float64.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	}
	return 0, false
}
