package ncp

import (
	"context"
	"fmt"

	"zigbee-go-catalog/internal/zcl"
)

// ReadAttributesRequest specifies which attributes to read.
type ReadAttributesRequest struct {
	IEEE      uint64
	DstEP     uint8
	ClusterID uint16
	AttrIDs   []uint16
	Options   Options
}

// WriteAttributesRequest specifies attributes to write.
type WriteAttributesRequest struct {
	IEEE      uint64
	DstEP     uint8
	ClusterID uint16
	Records   []zcl.AttributeRecord
	Options   Options
}

// ConfigureReportingRequest sets up attribute reporting.
type ConfigureReportingRequest struct {
	IEEE      uint64
	DstEP     uint8
	ClusterID uint16
	Configs   []zcl.ReportingConfig
	Options   Options
}

// ClusterCommandRequest sends a cluster-specific command.
type ClusterCommandRequest struct {
	IEEE      uint64
	DstEP     uint8
	ClusterID uint16
	CommandID uint8
	Payload   []byte
	Options   Options
}

// ReadAttributes sends a Read Attributes request and waits for the response.
// Per-attribute failures are returned as records with a non-success status.
func ReadAttributes(ctx context.Context, n NCP, req ReadAttributesRequest) ([]zcl.ReadRecord, error) {
	resp, err := n.SendZCL(ctx, ZCLRequest{
		IEEE:         req.IEEE,
		DstEP:        req.DstEP,
		ClusterID:    req.ClusterID,
		Global:       true,
		Command:      zcl.FoundationReadAttributes,
		Payload:      zcl.EncodeReadAttributes(req.AttrIDs),
		Options:      req.Options,
		WaitResponse: true,
	})
	if err != nil {
		return nil, err
	}
	if err := checkDefaultResponse(resp); err != nil {
		return nil, err
	}
	if resp.Header.Command != zcl.FoundationReadAttributesResponse {
		return nil, fmt.Errorf("read attributes: unexpected response command 0x%02X", resp.Header.Command)
	}
	return zcl.DecodeReadAttributesResponse(resp.Payload)
}

// WriteAttributes sends a Write Attributes request and waits for the
// response. The first failed record is returned as a *zcl.StatusError.
func WriteAttributes(ctx context.Context, n NCP, req WriteAttributesRequest) error {
	payload, err := zcl.EncodeWriteAttributes(req.Records)
	if err != nil {
		return err
	}
	resp, err := n.SendZCL(ctx, ZCLRequest{
		IEEE:         req.IEEE,
		DstEP:        req.DstEP,
		ClusterID:    req.ClusterID,
		Global:       true,
		Command:      zcl.FoundationWriteAttributes,
		Payload:      payload,
		Options:      req.Options,
		WaitResponse: true,
	})
	if err != nil {
		return err
	}
	if err := checkDefaultResponse(resp); err != nil {
		return err
	}
	return checkStatusRecords(resp, zcl.FoundationWriteAttributesResp, false)
}

// ConfigureReporting sends a Configure Reporting request and waits for the response.
func ConfigureReporting(ctx context.Context, n NCP, req ConfigureReportingRequest) error {
	payload, err := zcl.EncodeConfigureReporting(req.Configs)
	if err != nil {
		return err
	}
	resp, err := n.SendZCL(ctx, ZCLRequest{
		IEEE:         req.IEEE,
		DstEP:        req.DstEP,
		ClusterID:    req.ClusterID,
		Global:       true,
		Command:      zcl.FoundationConfigReporting,
		Payload:      payload,
		Options:      req.Options,
		WaitResponse: true,
	})
	if err != nil {
		return err
	}
	if err := checkDefaultResponse(resp); err != nil {
		return err
	}
	return checkStatusRecords(resp, zcl.FoundationConfigReportingResp, true)
}

// SendCommand sends a cluster-specific command without waiting for a reply.
func SendCommand(ctx context.Context, n NCP, req ClusterCommandRequest) error {
	_, err := n.SendZCL(ctx, ZCLRequest{
		IEEE:      req.IEEE,
		DstEP:     req.DstEP,
		ClusterID: req.ClusterID,
		Command:   req.CommandID,
		Payload:   req.Payload,
		Options:   req.Options,
	})
	return err
}

// SendCommandAck sends a cluster-specific command and waits for the
// device's answer. A Default Response with a failure status is returned as
// a *zcl.StatusError; any other answer counts as success.
func SendCommandAck(ctx context.Context, n NCP, req ClusterCommandRequest) error {
	resp, err := n.SendZCL(ctx, ZCLRequest{
		IEEE:         req.IEEE,
		DstEP:        req.DstEP,
		ClusterID:    req.ClusterID,
		Command:      req.CommandID,
		Payload:      req.Payload,
		Options:      req.Options,
		WaitResponse: true,
	})
	if err != nil {
		return err
	}
	return checkDefaultResponse(resp)
}

func checkDefaultResponse(f *zcl.Frame) error {
	if f == nil {
		return fmt.Errorf("ncp: no response frame")
	}
	if !f.Header.IsGlobal() || f.Header.Command != zcl.FoundationDefaultResponse {
		return nil
	}
	_, status, err := zcl.DecodeDefaultResponse(f.Payload)
	if err != nil {
		return err
	}
	if status != zcl.ZCLStatusSuccess {
		return &zcl.StatusError{Status: status}
	}
	return nil
}

func checkStatusRecords(f *zcl.Frame, want uint8, withDirection bool) error {
	if f.Header.Command == zcl.FoundationDefaultResponse {
		return nil
	}
	if f.Header.Command != want {
		return fmt.Errorf("ncp: unexpected response command 0x%02X", f.Header.Command)
	}
	records, err := zcl.DecodeStatusRecords(f.Payload, withDirection)
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.Status != zcl.ZCLStatusSuccess {
			return &zcl.StatusError{Status: r.Status, Attribute: r.ID}
		}
	}
	return nil
}
