package zcl

import (
	"encoding/binary"
	"fmt"
)

// Frame types (bits 0-1 of the frame control field).
const (
	FrameTypeGlobal  uint8 = 0x00
	FrameTypeCluster uint8 = 0x01
)

// Direction of a ZCL frame.
type Direction uint8

const (
	ClientToServer Direction = 0
	ServerToClient Direction = 1
)

const (
	fcManufacturerSpecific = 0x04
	fcServerToClient       = 0x08
	fcDisableDefaultResp   = 0x10
)

// FrameHeader is the ZCL frame header.
type FrameHeader struct {
	FrameType              uint8
	ManufacturerSpecific   bool
	Direction              Direction
	DisableDefaultResponse bool
	ManufacturerCode       uint16
	Sequence               uint8
	Command                uint8
}

// IsGlobal reports whether the frame carries a foundation command.
func (h FrameHeader) IsGlobal() bool {
	return h.FrameType == FrameTypeGlobal
}

// Encode serializes the header.
func (h FrameHeader) Encode() []byte {
	fc := h.FrameType & 0x03
	if h.ManufacturerSpecific {
		fc |= fcManufacturerSpecific
	}
	if h.Direction == ServerToClient {
		fc |= fcServerToClient
	}
	if h.DisableDefaultResponse {
		fc |= fcDisableDefaultResp
	}
	buf := []byte{fc}
	if h.ManufacturerSpecific {
		buf = binary.LittleEndian.AppendUint16(buf, h.ManufacturerCode)
	}
	return append(buf, h.Sequence, h.Command)
}

// Frame is a complete ZCL frame.
type Frame struct {
	Header  FrameHeader
	Payload []byte
}

// Bytes serializes the frame.
func (f Frame) Bytes() []byte {
	return append(f.Header.Encode(), f.Payload...)
}

// DecodeFrame parses a ZCL frame. The returned payload aliases data.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < 3 {
		return Frame{}, fmt.Errorf("zcl: frame too short: %d bytes", len(data))
	}
	fc := data[0]
	h := FrameHeader{
		FrameType:              fc & 0x03,
		ManufacturerSpecific:   fc&fcManufacturerSpecific != 0,
		DisableDefaultResponse: fc&fcDisableDefaultResp != 0,
	}
	if fc&fcServerToClient != 0 {
		h.Direction = ServerToClient
	}
	pos := 1
	if h.ManufacturerSpecific {
		if len(data) < 5 {
			return Frame{}, fmt.Errorf("zcl: manufacturer-specific frame too short: %d bytes", len(data))
		}
		h.ManufacturerCode = binary.LittleEndian.Uint16(data[1:3])
		pos = 3
	}
	h.Sequence = data[pos]
	h.Command = data[pos+1]
	return Frame{Header: h, Payload: data[pos+2:]}, nil
}

// AttributeRecord is an attribute ID with a typed value, as carried by
// Write Attributes and Report Attributes.
type AttributeRecord struct {
	ID    uint16
	Type  uint8
	Value any
}

// ReadRecord is one entry of a Read Attributes Response.
type ReadRecord struct {
	ID     uint16
	Status uint8
	Type   uint8
	Value  any
}

// StatusRecord is one entry of a Write Attributes or Configure Reporting
// response.
type StatusRecord struct {
	Status uint8
	ID     uint16
}

// ReportingConfig is one attribute reporting configuration record.
type ReportingConfig struct {
	ID               uint16
	Type             uint8
	MinInterval      uint16
	MaxInterval      uint16
	ReportableChange any
}

// EncodeReadAttributes builds a Read Attributes payload.
func EncodeReadAttributes(ids []uint16) []byte {
	buf := make([]byte, 0, 2*len(ids))
	for _, id := range ids {
		buf = binary.LittleEndian.AppendUint16(buf, id)
	}
	return buf
}

// DecodeReadAttributes parses a Read Attributes payload sent by a device.
func DecodeReadAttributes(payload []byte) ([]uint16, error) {
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("zcl: read attributes payload has odd length %d", len(payload))
	}
	ids := make([]uint16, 0, len(payload)/2)
	for i := 0; i+1 < len(payload); i += 2 {
		ids = append(ids, binary.LittleEndian.Uint16(payload[i:]))
	}
	return ids, nil
}

// EncodeWriteAttributes builds a Write Attributes payload.
func EncodeWriteAttributes(records []AttributeRecord) ([]byte, error) {
	var buf []byte
	for _, r := range records {
		enc, err := EncodeValue(r.Type, r.Value)
		if err != nil {
			return nil, fmt.Errorf("attribute 0x%04X: %w", r.ID, err)
		}
		buf = binary.LittleEndian.AppendUint16(buf, r.ID)
		buf = append(buf, r.Type)
		buf = append(buf, enc...)
	}
	return buf, nil
}

// DecodeReportAttributes parses a Report Attributes payload.
func DecodeReportAttributes(payload []byte) ([]AttributeRecord, error) {
	var records []AttributeRecord
	pos := 0
	for pos+3 <= len(payload) {
		id := binary.LittleEndian.Uint16(payload[pos:])
		typ := payload[pos+2]
		pos += 3
		val, n, err := DecodeValue(typ, payload[pos:])
		if err != nil {
			return records, fmt.Errorf("attribute 0x%04X: %w", id, err)
		}
		pos += n
		records = append(records, AttributeRecord{ID: id, Type: typ, Value: val})
	}
	return records, nil
}

// DecodeReadAttributesResponse parses a Read Attributes Response payload.
func DecodeReadAttributesResponse(payload []byte) ([]ReadRecord, error) {
	var records []ReadRecord
	pos := 0
	for pos+3 <= len(payload) {
		r := ReadRecord{
			ID:     binary.LittleEndian.Uint16(payload[pos:]),
			Status: payload[pos+2],
		}
		pos += 3
		if r.Status != ZCLStatusSuccess {
			records = append(records, r)
			continue
		}
		if pos >= len(payload) {
			return records, fmt.Errorf("attribute 0x%04X: missing data type", r.ID)
		}
		r.Type = payload[pos]
		pos++
		val, n, err := DecodeValue(r.Type, payload[pos:])
		if err != nil {
			return records, fmt.Errorf("attribute 0x%04X: %w", r.ID, err)
		}
		r.Value = val
		pos += n
		records = append(records, r)
	}
	return records, nil
}

// EncodeReadAttributesResponse builds a Read Attributes Response payload,
// used when a device reads attributes from the coordinator.
func EncodeReadAttributesResponse(records []ReadRecord) ([]byte, error) {
	var buf []byte
	for _, r := range records {
		buf = binary.LittleEndian.AppendUint16(buf, r.ID)
		buf = append(buf, r.Status)
		if r.Status != ZCLStatusSuccess {
			continue
		}
		enc, err := EncodeValue(r.Type, r.Value)
		if err != nil {
			return nil, fmt.Errorf("attribute 0x%04X: %w", r.ID, err)
		}
		buf = append(buf, r.Type)
		buf = append(buf, enc...)
	}
	return buf, nil
}

// EncodeConfigureReporting builds a Configure Reporting payload. Discrete
// types carry no reportable change field.
func EncodeConfigureReporting(configs []ReportingConfig) ([]byte, error) {
	var buf []byte
	for _, c := range configs {
		buf = append(buf, 0x00) // direction: reported
		buf = binary.LittleEndian.AppendUint16(buf, c.ID)
		buf = append(buf, c.Type)
		buf = binary.LittleEndian.AppendUint16(buf, c.MinInterval)
		buf = binary.LittleEndian.AppendUint16(buf, c.MaxInterval)
		if IsAnalog(c.Type) {
			change := c.ReportableChange
			if change == nil {
				change = 0
			}
			enc, err := EncodeValue(c.Type, change)
			if err != nil {
				return nil, fmt.Errorf("attribute 0x%04X reportable change: %w", c.ID, err)
			}
			buf = append(buf, enc...)
		}
	}
	return buf, nil
}

// DecodeStatusRecords parses Write Attributes and Configure Reporting
// responses. A lone success byte means every record succeeded and yields
// an empty slice. Configure Reporting responses carry a direction byte
// before each attribute ID; withDirection selects that layout.
func DecodeStatusRecords(payload []byte, withDirection bool) ([]StatusRecord, error) {
	if len(payload) == 1 {
		if payload[0] == ZCLStatusSuccess {
			return nil, nil
		}
		return []StatusRecord{{Status: payload[0]}}, nil
	}
	step := 3
	if withDirection {
		step = 4
	}
	var records []StatusRecord
	for pos := 0; pos < len(payload); pos += step {
		if pos+step > len(payload) {
			return records, fmt.Errorf("zcl: status record truncated at %d", pos)
		}
		idPos := pos + 1
		if withDirection {
			idPos = pos + 2
		}
		records = append(records, StatusRecord{
			Status: payload[pos],
			ID:     binary.LittleEndian.Uint16(payload[idPos:]),
		})
	}
	return records, nil
}

// DecodeDefaultResponse returns the command ID and status of a Default Response.
func DecodeDefaultResponse(payload []byte) (uint8, uint8, error) {
	if len(payload) < 2 {
		return 0, 0, fmt.Errorf("zcl: default response too short: %d bytes", len(payload))
	}
	return payload[0], payload[1], nil
}

// EncodeCommandParams serializes cluster command parameters in declaration
// order. Missing parameters are an error.
func EncodeCommandParams(params []ParamDef, values map[string]any) ([]byte, error) {
	var buf []byte
	for _, p := range params {
		v, ok := values[p.Name]
		if !ok {
			return nil, fmt.Errorf("zcl: missing command parameter %q", p.Name)
		}
		enc, err := EncodeValue(p.Type, v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		buf = append(buf, enc...)
	}
	return buf, nil
}

// DecodeCommandParams parses a cluster command payload. Parameters beyond
// the end of a short payload are omitted rather than reported as errors,
// since several devices send truncated optional fields.
func DecodeCommandParams(params []ParamDef, payload []byte) (map[string]any, error) {
	values := make(map[string]any, len(params))
	pos := 0
	for _, p := range params {
		if pos >= len(payload) {
			break
		}
		v, n, err := DecodeValue(p.Type, payload[pos:])
		if err != nil {
			return values, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		values[p.Name] = v
		pos += n
	}
	return values, nil
}
