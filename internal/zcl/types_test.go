package zcl

import (
	"bytes"
	"math"
	"testing"
)

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		name     string
		typeID   uint8
		data     []byte
		want     any
		consumed int
	}{
		{"bool true", TypeBool, []byte{0x01}, true, 1},
		{"bool false", TypeBool, []byte{0x00}, false, 1},
		{"uint8", TypeUint8, []byte{0x42}, uint64(0x42), 1},
		{"uint16", TypeUint16, []byte{0x34, 0x12}, uint64(0x1234), 2},
		{"uint24", TypeUint24, []byte{0x56, 0x34, 0x12}, uint64(0x123456), 3},
		{"uint32", TypeUint32, []byte{0x78, 0x56, 0x34, 0x12}, uint64(0x12345678), 4},
		{"uint48", TypeUint48, []byte{1, 2, 3, 4, 5, 6}, uint64(0x060504030201), 6},
		{"int8 min", TypeInt8, []byte{0x80}, int64(-128), 1},
		{"int16 negative", TypeInt16, []byte{0x9C, 0xFF}, int64(-100), 2},
		{"int24 negative", TypeInt24, []byte{0xFF, 0xFF, 0xFF}, int64(-1), 3},
		{"int24 positive", TypeInt24, []byte{0xFF, 0xFF, 0x7F}, int64(8388607), 3},
		{"int32", TypeInt32, []byte{0x00, 0x00, 0x00, 0x80}, int64(math.MinInt32), 4},
		{"enum8", TypeEnum8, []byte{0x05}, uint64(5), 1},
		{"enum16", TypeEnum16, []byte{0x01, 0x02}, uint64(0x0201), 2},
		{"bitmap8", TypeBitmap8, []byte{0xA5}, uint64(0xA5), 1},
		{"bitmap32", TypeBitmap32, []byte{0x20, 0x00, 0x20, 0x00}, uint64(2097184), 4},
		{"utc", TypeUTC, []byte{0x01, 0x00, 0x00, 0x00}, uint64(1), 4},
		{"eui64", TypeEUI64, []byte{8, 7, 6, 5, 4, 3, 2, 1}, uint64(0x0102030405060708), 8},
		{"char string", TypeCharStr, []byte{5, 'H', 'e', 'l', 'l', 'o'}, "Hello", 6},
		{"char string invalid", TypeCharStr, []byte{0xFF}, nil, 1},
		{"char string16", TypeCharStr16, []byte{2, 0, 'o', 'k'}, "ok", 4},
		{"no data", TypeNoData, []byte{1, 2}, nil, 0},
		{"semi one", TypeFloat16, []byte{0x00, 0x3C}, 1.0, 2},
		{"single", TypeFloat32, []byte{0x00, 0x00, 0x20, 0x41}, 10.0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := DecodeValue(tt.typeID, tt.data)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.consumed {
				t.Errorf("consumed %d, want %d", n, tt.consumed)
			}
			if got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestDecodeOctetStr(t *testing.T) {
	val, n, err := DecodeValue(TypeOctetStr, []byte{3, 0xDE, 0xAD, 0x01})
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("consumed %d, want 4", n)
	}
	if !bytes.Equal(val.([]byte), []byte{0xDE, 0xAD, 0x01}) {
		t.Errorf("got %X", val)
	}
}

func TestDecodeArray(t *testing.T) {
	data := []byte{TypeUint8, 0x03, 0x00, 0x0A, 0x0B, 0x0C}
	val, n, err := DecodeValue(TypeArray, data)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(data) {
		t.Errorf("consumed %d, want %d", n, len(data))
	}
	items := val.([]any)
	if len(items) != 3 || items[2] != uint64(0x0C) {
		t.Errorf("got %v", items)
	}
}

func TestDecodeNotEnoughData(t *testing.T) {
	if _, _, err := DecodeValue(TypeUint32, []byte{0x01}); err == nil {
		t.Error("expected error for insufficient data")
	}
	if _, _, err := DecodeValue(TypeCharStr, []byte{5, 'a'}); err == nil {
		t.Error("expected error for truncated string")
	}
}

func TestDecodeBufferConsumesRest(t *testing.T) {
	val, n, err := DecodeValue(TypeBuffer, []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || !bytes.Equal(val.([]byte), []byte{1, 2, 3}) {
		t.Errorf("got %X (%d)", val, n)
	}
}

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		name   string
		typeID uint8
		val    any
		want   []byte
	}{
		{"uint8 from int", TypeUint8, 0x42, []byte{0x42}},
		{"uint16 from float", TypeUint16, float64(0x063e), []byte{0x3e, 0x06}},
		{"uint24", TypeUint24, 0x123456, []byte{0x56, 0x34, 0x12}},
		{"int16 negative", TypeInt16, -100, []byte{0x9C, 0xFF}},
		{"int24 negative", TypeInt24, -1, []byte{0xFF, 0xFF, 0xFF}},
		{"enum8 from uint64", TypeEnum8, uint64(5), []byte{0x05}},
		{"bool from number", TypeBool, 1, []byte{0x01}},
		{"char string", TypeCharStr, "Hi", []byte{2, 'H', 'i'}},
		{"octet string", TypeOctetStr, []byte{0xAB}, []byte{1, 0xAB}},
		{"char string16", TypeCharStr16, "ok", []byte{2, 0, 'o', 'k'}},
		{"buffer", TypeBuffer, []byte{0x30, 0xff}, []byte{0x30, 0xff}},
		{"single", TypeFloat32, 10.0, []byte{0x00, 0x00, 0x20, 0x41}},
		{"semi", TypeFloat16, 1.0, []byte{0x00, 0x3C}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeValue(tt.typeID, tt.val)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got %X, want %X", got, tt.want)
			}
		})
	}
}

func TestEncodeRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		typeID uint8
		val    any
	}{
		{"uint8 overflow", TypeUint8, 256},
		{"uint8 negative", TypeUint8, -1},
		{"uint16 negative float", TypeUint16, -1.5},
		{"int8 overflow", TypeInt8, 128},
		{"int8 underflow", TypeInt8, -129},
		{"uint24 overflow", TypeUint24, 0x1000000},
		{"int24 overflow", TypeInt24, 8388608},
		{"bool from string", TypeBool, "yes"},
		{"string from int", TypeCharStr, 5},
		{"eui64 wrong length", TypeKey128, []byte{1, 2}},
		{"array", TypeArray, []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeValue(tt.typeID, tt.val); err == nil {
				t.Errorf("expected error encoding %v as %s", tt.val, TypeName(tt.typeID))
			}
		})
	}
}

func TestEncodeDecodeRoundTripInt48(t *testing.T) {
	enc, err := EncodeValue(TypeInt48, int64(-140737488355328))
	if err != nil {
		t.Fatal(err)
	}
	got, _, err := DecodeValue(TypeInt48, enc)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(-140737488355328) {
		t.Errorf("got %v", got)
	}
}

func TestConversions(t *testing.T) {
	if _, ok := ToUint64(-1); ok {
		t.Error("ToUint64(-1) should fail")
	}
	if v, ok := ToUint64(uint16(7)); !ok || v != 7 {
		t.Errorf("ToUint64(uint16(7)) = %d, %v", v, ok)
	}
	if v, ok := ToInt64(2.6); !ok || v != 3 {
		t.Errorf("ToInt64(2.6) = %d, %v; want rounded 3", v, ok)
	}
	if v, ok := ToBool(0.0); !ok || v {
		t.Errorf("ToBool(0.0) = %v, %v", v, ok)
	}
	if v, ok := ToFloat64(int16(-5)); !ok || v != -5 {
		t.Errorf("ToFloat64(int16(-5)) = %v, %v", v, ok)
	}
}

func TestTypeSizeAndName(t *testing.T) {
	tests := []struct {
		typeID uint8
		size   int
		name   string
	}{
		{TypeBool, 1, "bool"},
		{TypeUint24, 3, "uint24"},
		{TypeInt16, 2, "int16"},
		{TypeBitmap32, 4, "map32"},
		{TypeEUI64, 8, "EUI64"},
		{TypeCharStr, -1, "string"},
		{TypeArray, -1, "array"},
		{0x77, -1, "0x77"},
	}
	for _, tt := range tests {
		if got := TypeSize(tt.typeID); got != tt.size {
			t.Errorf("TypeSize(0x%02X) = %d, want %d", tt.typeID, got, tt.size)
		}
		if got := TypeName(tt.typeID); got != tt.name {
			t.Errorf("TypeName(0x%02X) = %q, want %q", tt.typeID, got, tt.name)
		}
	}
}

func TestIsAnalog(t *testing.T) {
	if !IsAnalog(TypeInt16) || !IsAnalog(TypeUint48) || !IsAnalog(TypeFloat32) {
		t.Error("numeric types should be analog")
	}
	if IsAnalog(TypeEnum8) || IsAnalog(TypeBitmap8) || IsAnalog(TypeBool) {
		t.Error("discrete types should not be analog")
	}
}
