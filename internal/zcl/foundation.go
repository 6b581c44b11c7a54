package zcl

import "fmt"

// Foundation ZCL command IDs (global, not cluster-specific).
const (
	FoundationReadAttributes         uint8 = 0x00
	FoundationReadAttributesResponse uint8 = 0x01
	FoundationWriteAttributes        uint8 = 0x02
	FoundationWriteAttributesUndiv   uint8 = 0x03
	FoundationWriteAttributesResp    uint8 = 0x04
	FoundationWriteAttributesNoResp  uint8 = 0x05
	FoundationConfigReporting        uint8 = 0x06
	FoundationConfigReportingResp    uint8 = 0x07
	FoundationReadReportingConfig    uint8 = 0x08
	FoundationReadReportingConfigRsp uint8 = 0x09
	FoundationReportAttributes       uint8 = 0x0A
	FoundationDefaultResponse        uint8 = 0x0B
	FoundationDiscoverAttributes     uint8 = 0x0C
	FoundationDiscoverAttributesResp uint8 = 0x0D
)

// ZCL status codes
const (
	ZCLStatusSuccess          uint8 = 0x00
	ZCLStatusFailure          uint8 = 0x01
	ZCLStatusNotAuthorized    uint8 = 0x7E
	ZCLStatusMalformed        uint8 = 0x80
	ZCLStatusUnsupClusterCmd  uint8 = 0x81
	ZCLStatusUnsupGeneralCmd  uint8 = 0x82
	ZCLStatusUnsupMfrClusterC uint8 = 0x83
	ZCLStatusUnsupMfrGeneralC uint8 = 0x84
	ZCLStatusInvalidField     uint8 = 0x85
	ZCLStatusUnsupportedAttr  uint8 = 0x86
	ZCLStatusInvalidValue     uint8 = 0x87
	ZCLStatusReadOnly         uint8 = 0x88
	ZCLStatusInsufficientSp   uint8 = 0x89
	ZCLStatusNotFound         uint8 = 0x8B
	ZCLStatusUnreportable     uint8 = 0x8C
	ZCLStatusInvalidDataType  uint8 = 0x8D
	ZCLStatusHardwareFailure  uint8 = 0xC0
	ZCLStatusSoftwareFailure  uint8 = 0xC1
	ZCLStatusNoImageAvailable uint8 = 0x98
)

var statusNames = map[uint8]string{
	ZCLStatusSuccess:          "SUCCESS",
	ZCLStatusFailure:          "FAILURE",
	ZCLStatusNotAuthorized:    "NOT_AUTHORIZED",
	ZCLStatusMalformed:        "MALFORMED_COMMAND",
	ZCLStatusUnsupClusterCmd:  "UNSUP_CLUSTER_COMMAND",
	ZCLStatusUnsupGeneralCmd:  "UNSUP_GENERAL_COMMAND",
	ZCLStatusUnsupMfrClusterC: "UNSUP_MANUF_CLUSTER_COMMAND",
	ZCLStatusUnsupMfrGeneralC: "UNSUP_MANUF_GENERAL_COMMAND",
	ZCLStatusInvalidField:     "INVALID_FIELD",
	ZCLStatusUnsupportedAttr:  "UNSUPPORTED_ATTRIBUTE",
	ZCLStatusInvalidValue:     "INVALID_VALUE",
	ZCLStatusReadOnly:         "READ_ONLY",
	ZCLStatusInsufficientSp:   "INSUFFICIENT_SPACE",
	ZCLStatusNotFound:         "NOT_FOUND",
	ZCLStatusUnreportable:     "UNREPORTABLE_ATTRIBUTE",
	ZCLStatusInvalidDataType:  "INVALID_DATA_TYPE",
	ZCLStatusHardwareFailure:  "HARDWARE_FAILURE",
	ZCLStatusSoftwareFailure:  "SOFTWARE_FAILURE",
	ZCLStatusNoImageAvailable: "NO_IMAGE_AVAILABLE",
}

// StatusName returns the symbolic name of a ZCL status code.
func StatusName(status uint8) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", status)
}

// StatusError is returned when a device answers with a non-success status.
type StatusError struct {
	Status    uint8
	Attribute uint16
}

func (e *StatusError) Error() string {
	if e.Attribute != 0 {
		return fmt.Sprintf("zcl: status %s for attribute 0x%04X", StatusName(e.Status), e.Attribute)
	}
	return fmt.Sprintf("zcl: status %s", StatusName(e.Status))
}
