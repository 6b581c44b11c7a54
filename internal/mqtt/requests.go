//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// bridgeResponse is published to <prefix>/bridge/response/<request>.
type bridgeResponse struct {
	Data        any    `json:"data"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	Transaction any    `json:"transaction,omitempty"`
}

type permitJoinRequest struct {
	Value       any  `json:"value"`
	Time        *int `json:"time"`
	Transaction any  `json:"transaction"`
}

type deviceRequest struct {
	ID          string         `json:"id"`
	From        string         `json:"from"`
	To          string         `json:"to"`
	Force       bool           `json:"force"`
	Options     map[string]any `json:"options"`
	Transaction any            `json:"transaction"`
}

// handleBridgeRequest serves <prefix>/bridge/request/<name>.
func (b *Bridge) handleBridgeRequest(name string, payload []byte) {
	ctx, cancel := context.WithTimeout(b.coord.Context(), commandTimeout)
	defer cancel()

	var (
		data        any
		transaction any
		err         error
	)
	switch name {
	case "permit_join":
		var req permitJoinRequest
		req, err = decodePermitJoin(payload)
		if err == nil {
			transaction = req.Transaction
			data, err = b.permitJoin(ctx, req)
		}
	case "device/rename", "device/remove", "device/configure", "device/options":
		var req deviceRequest
		if err = json.Unmarshal(payload, &req); err != nil {
			err = fmt.Errorf("invalid request: %w", err)
			break
		}
		transaction = req.Transaction
		data, err = b.deviceRequest(ctx, strings.TrimPrefix(name, "device/"), req)
	default:
		b.logger.Debug("unknown bridge request", "request", name)
		return
	}

	resp := bridgeResponse{Data: data, Status: "ok", Transaction: transaction}
	if err != nil {
		b.logger.Warn("bridge request failed", "request", name, "err", err)
		resp = bridgeResponse{Data: map[string]any{}, Status: "error", Error: err.Error(), Transaction: transaction}
	}
	b.publish(b.bridgeTopic("response/"+name), mustJSON(resp), false)
}

// decodePermitJoin accepts {"value": true, "time": 60} as well as the bare
// payloads true, false and "true".
func decodePermitJoin(payload []byte) (permitJoinRequest, error) {
	var req permitJoinRequest
	if err := json.Unmarshal(payload, &req); err == nil {
		return req, nil
	}
	s := strings.Trim(strings.TrimSpace(string(payload)), `"`)
	v, err := strconv.ParseBool(s)
	if err != nil {
		return req, fmt.Errorf("invalid permit_join payload %q", s)
	}
	req.Value = v
	return req, nil
}

func (b *Bridge) permitJoin(ctx context.Context, req permitJoinRequest) (any, error) {
	var enable bool
	switch v := req.Value.(type) {
	case bool:
		enable = v
	case string:
		enable = strings.EqualFold(v, "true")
	default:
		return nil, errors.New("permit_join value must be a boolean")
	}
	duration := 0
	if enable {
		duration = defaultPermitJoinTime
		if req.Time != nil {
			duration = *req.Time
		}
	}
	if duration < 0 || duration > 254 {
		return nil, fmt.Errorf("permit_join time %d out of range 0..254", duration)
	}
	if err := b.coord.PermitJoin(ctx, uint8(duration)); err != nil {
		return nil, err
	}
	return map[string]any{"value": duration > 0, "time": duration}, nil
}

func (b *Bridge) deviceRequest(ctx context.Context, action string, req deviceRequest) (any, error) {
	dm := b.coord.Devices()
	switch action {
	case "rename":
		from := req.From
		if from == "" {
			from = req.ID
		}
		dev, err := b.resolveTopicName(from)
		if err != nil {
			return nil, err
		}
		if _, err := dm.RenameDevice(dev.IEEEAddress, req.To); err != nil {
			return nil, err
		}
		return map[string]any{"from": from, "to": req.To}, nil
	case "remove":
		dev, err := b.resolveTopicName(req.ID)
		if err != nil {
			return nil, err
		}
		if err := dm.RemoveDevice(ctx, dev.IEEEAddress, req.Force); err != nil {
			return nil, err
		}
		return map[string]any{"id": req.ID, "force": req.Force}, nil
	case "configure":
		dev, err := b.resolveTopicName(req.ID)
		if err != nil {
			return nil, err
		}
		if err := dm.Reconfigure(ctx, dev.IEEEAddress); err != nil {
			return nil, err
		}
		return map[string]any{"id": req.ID}, nil
	case "options":
		dev, err := b.resolveTopicName(req.ID)
		if err != nil {
			return nil, err
		}
		opts, err := b.coord.SetOptions(dev.IEEEAddress, req.Options)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": req.ID, "to": opts}, nil
	}
	return nil, fmt.Errorf("unknown device request %q", action)
}
