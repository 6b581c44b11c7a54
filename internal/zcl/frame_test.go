package zcl

import (
	"bytes"
	"testing"
)

func TestFrameHeaderEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		hdr  FrameHeader
		want []byte
	}{
		{
			name: "global read",
			hdr:  FrameHeader{FrameType: FrameTypeGlobal, Sequence: 7, Command: FoundationReadAttributes},
			want: []byte{0x00, 0x07, 0x00},
		},
		{
			name: "manufacturer specific cluster command",
			hdr: FrameHeader{
				FrameType:            FrameTypeCluster,
				ManufacturerSpecific: true,
				ManufacturerCode:     0x1209,
				Sequence:             0x42,
				Command:              0x41,
			},
			want: []byte{0x05, 0x09, 0x12, 0x42, 0x41},
		},
		{
			name: "server to client no default response",
			hdr: FrameHeader{
				FrameType:              FrameTypeCluster,
				Direction:              ServerToClient,
				DisableDefaultResponse: true,
				Sequence:               1,
				Command:                0x02,
			},
			want: []byte{0x19, 0x01, 0x02},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.hdr.Encode()
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("Encode = %X, want %X", got, tt.want)
			}
			frame, err := DecodeFrame(append(got, 0xAA))
			if err != nil {
				t.Fatal(err)
			}
			if frame.Header != tt.hdr {
				t.Errorf("decoded header = %+v, want %+v", frame.Header, tt.hdr)
			}
			if !bytes.Equal(frame.Payload, []byte{0xAA}) {
				t.Errorf("payload = %X", frame.Payload)
			}
		})
	}
}

func TestDecodeFrameTooShort(t *testing.T) {
	if _, err := DecodeFrame([]byte{0x00, 0x01}); err == nil {
		t.Error("expected error for 2-byte frame")
	}
	if _, err := DecodeFrame([]byte{0x04, 0x09, 0x12}); err == nil {
		t.Error("expected error for truncated manufacturer header")
	}
}

func TestReadAttributesResponse(t *testing.T) {
	payload := []byte{
		0x05, 0x00, 0x00, TypeCharStr, 0x03, 'B', 'T', 'H', // modelId
		0x07, 0x40, 0x86, // operatingMode unsupported
		0x20, 0x40, 0x00, TypeEnum8, 0x32, // heatingDemand
	}
	recs, err := DecodeReadAttributesResponse(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].Value != "BTH" {
		t.Errorf("recs[0] = %+v", recs[0])
	}
	if recs[1].Status != ZCLStatusUnsupportedAttr || recs[1].Value != nil {
		t.Errorf("recs[1] = %+v", recs[1])
	}
	if recs[2].ID != 0x4020 || recs[2].Value != uint64(0x32) {
		t.Errorf("recs[2] = %+v", recs[2])
	}

	enc, err := EncodeReadAttributesResponse(recs)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc, payload) {
		t.Errorf("re-encoded %X, want %X", enc, payload)
	}
}

func TestReportAttributes(t *testing.T) {
	payload := []byte{0x00, 0x00, TypeInt16, 0x34, 0x08, 0x12, 0x00, TypeUint8, 0x50}
	recs, err := DecodeReportAttributes(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Value != int64(2100) || recs[1].ID != 0x0012 {
		t.Errorf("recs = %+v", recs)
	}
}

func TestWriteAttributes(t *testing.T) {
	got, err := EncodeWriteAttributes([]AttributeRecord{{ID: 0x1005, Type: TypeBitmap16, Value: 0x063e}})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x05, 0x10, TypeBitmap16, 0x3e, 0x06}
	if !bytes.Equal(got, want) {
		t.Errorf("got %X, want %X", got, want)
	}
	if _, err := EncodeWriteAttributes([]AttributeRecord{{ID: 1, Type: TypeUint8, Value: 300}}); err == nil {
		t.Error("expected overflow error")
	}
}

func TestConfigureReporting(t *testing.T) {
	got, err := EncodeConfigureReporting([]ReportingConfig{
		{ID: 0x0000, Type: TypeBool, MinInterval: 0, MaxInterval: 3600},
		{ID: 0x0000, Type: TypeInt16, MinInterval: 10, MaxInterval: 3600, ReportableChange: 10},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x00, 0x00, 0x00, TypeBool, 0x00, 0x00, 0x10, 0x0E,
		0x00, 0x00, 0x00, TypeInt16, 0x0A, 0x00, 0x10, 0x0E, 0x0A, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got %X, want %X", got, want)
	}
}

func TestDecodeStatusRecords(t *testing.T) {
	recs, err := DecodeStatusRecords([]byte{0x00}, false)
	if err != nil || len(recs) != 0 {
		t.Errorf("all-success = %+v, %v", recs, err)
	}
	recs, err = DecodeStatusRecords([]byte{0x86, 0x07, 0x40}, false)
	if err != nil || len(recs) != 1 || recs[0].ID != 0x4007 {
		t.Errorf("write response = %+v, %v", recs, err)
	}
	recs, err = DecodeStatusRecords([]byte{0x8C, 0x00, 0x20, 0x40}, true)
	if err != nil || len(recs) != 1 || recs[0].Status != ZCLStatusUnreportable || recs[0].ID != 0x4020 {
		t.Errorf("configure response = %+v, %v", recs, err)
	}
}

func TestCommandParams(t *testing.T) {
	params := []ParamDef{{Name: "alarmcode", Type: TypeUint8}, {Name: "clusterid", Type: TypeUint16}}
	enc, err := EncodeCommandParams(params, map[string]any{"alarmcode": 0x10, "clusterid": 0xe000})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc, []byte{0x10, 0x00, 0xe0}) {
		t.Errorf("encoded %X", enc)
	}
	dec, err := DecodeCommandParams(params, enc)
	if err != nil {
		t.Fatal(err)
	}
	if dec["alarmcode"] != uint64(0x10) || dec["clusterid"] != uint64(0xe000) {
		t.Errorf("decoded %v", dec)
	}
	if _, err := EncodeCommandParams(params, map[string]any{"alarmcode": 1}); err == nil {
		t.Error("expected missing parameter error")
	}

	short, err := DecodeCommandParams(params, []byte{0x11})
	if err != nil || len(short) != 1 {
		t.Errorf("short payload = %v, %v", short, err)
	}
}

func TestStatusName(t *testing.T) {
	if got := StatusName(ZCLStatusUnsupportedAttr); got != "UNSUPPORTED_ATTRIBUTE" {
		t.Errorf("StatusName(0x86) = %q", got)
	}
	if got := StatusName(0x55); got != "0x55" {
		t.Errorf("StatusName(0x55) = %q", got)
	}
}
