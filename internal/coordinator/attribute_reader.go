package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/ncp"
	"zigbee-go-catalog/internal/store"
	"zigbee-go-catalog/internal/zcl"
)

// AttributeResult holds a decoded attribute read result.
type AttributeResult struct {
	AttrID   uint16 `json:"attr_id"`
	AttrName string `json:"attr_name"`
	TypeID   uint8  `json:"type_id"`
	TypeName string `json:"type_name"`
	Value    any    `json:"value"`
	Status   uint8  `json:"status"`
	Error    string `json:"error,omitempty"`
}

// rawTarget resolves a device, its cluster registry and one of its clusters
// for raw attribute access.
func (c *Coordinator) rawTarget(id string, endpoint uint8, cluster string) (*entityDevice, *zcl.ClusterDef, error) {
	dev, err := store.Resolve(c.store, id)
	if err != nil {
		return nil, nil, err
	}
	ed := c.entity(dev, c.Definition(dev))
	if endpoint == 0 {
		return nil, nil, errors.New("endpoint required")
	}
	cl, err := ed.reg.Lookup(cluster)
	if err != nil {
		// Numeric IDs reach clusters the registry does not name.
		if n, perr := strconv.ParseUint(cluster, 0, 16); perr == nil {
			if cl = ed.reg.Get(uint16(n)); cl == nil {
				cl = &zcl.ClusterDef{ID: uint16(n), Name: cluster}
			}
			return ed, cl, nil
		}
		return nil, nil, err
	}
	return ed, cl, nil
}

func attributeID(cl *zcl.ClusterDef, attr string) (uint16, error) {
	if a := cl.AttributeByName(attr); a != nil {
		return a.ID, nil
	}
	n, err := strconv.ParseUint(attr, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %s.%s", zcl.ErrUnknownAttribute, cl.Name, attr)
	}
	return uint16(n), nil
}

// ReadAttributes reads attributes, by name or numeric ID, from a device
// endpoint and reports each record with its status. Successful values are
// also dispatched to the device's converters.
func (c *Coordinator) ReadAttributes(ctx context.Context, id string, endpoint uint8, cluster string, attrs []string) ([]AttributeResult, error) {
	ed, cl, err := c.rawTarget(id, endpoint, cluster)
	if err != nil {
		return nil, err
	}
	ids := make([]uint16, 0, len(attrs))
	for _, a := range attrs {
		aid, err := attributeID(cl, a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, aid)
	}
	var first *zcl.AttributeDef
	if len(ids) > 0 {
		first = cl.FindAttribute(ids[0])
	}
	records, err := ncp.ReadAttributes(ctx, c.ncp, ncp.ReadAttributesRequest{
		IEEE:      ed.addr,
		DstEP:     endpoint,
		ClusterID: cl.ID,
		AttrIDs:   ids,
		Options:   ncp.Options{ManufacturerCode: cl.AttributeManufacturerCode(first)},
	})
	if err != nil {
		return nil, fmt.Errorf("read attributes: %w", err)
	}

	values := make(definition.Values, len(records))
	results := make([]AttributeResult, 0, len(records))
	for _, r := range records {
		result := AttributeResult{
			AttrID:   r.ID,
			AttrName: attributeName(cl, r.ID),
			Status:   r.Status,
			TypeID:   r.Type,
			TypeName: zcl.TypeName(r.Type),
		}
		if r.Status != zcl.ZCLStatusSuccess {
			result.Error = (&zcl.StatusError{Status: r.Status, Attribute: r.ID}).Error()
		} else {
			result.Value = r.Value
			values[result.AttrName] = r.Value
		}
		results = append(results, result)
	}
	if len(values) > 0 {
		c.handleMessages(ctx, ed, []*definition.Message{{
			Type:      definition.MsgReadResponse,
			Cluster:   cl.Name,
			ClusterID: cl.ID,
			Endpoint:  ed.endpoint(endpoint),
			Device:    ed,
			Data:      values,
		}}, 0, true)
	}
	return results, nil
}

// WriteAttribute writes a single attribute. The data type comes from the
// cluster definition unless dataType is non-zero.
func (c *Coordinator) WriteAttribute(ctx context.Context, id string, endpoint uint8, cluster, attr string, dataType uint8, value any) error {
	ed, cl, err := c.rawTarget(id, endpoint, cluster)
	if err != nil {
		return err
	}
	aid, err := attributeID(cl, attr)
	if err != nil {
		return err
	}
	def := cl.FindAttribute(aid)
	if dataType == 0 {
		if def == nil {
			return fmt.Errorf("write %s.%s: data type required", cl.Name, attr)
		}
		dataType = def.Type
	}
	return ed.endpoint(endpoint).write(ctx, cl, []zcl.AttributeRecord{{ID: aid, Type: dataType, Value: value}},
		ncp.Options{ManufacturerCode: cl.AttributeManufacturerCode(def)})
}

// SendClusterCommand sends a named cluster command and waits for the
// default response.
func (c *Coordinator) SendClusterCommand(ctx context.Context, id string, endpoint uint8, cluster, command string, params map[string]any) error {
	ed, _, err := c.rawTarget(id, endpoint, cluster)
	if err != nil {
		return err
	}
	return ed.endpoint(endpoint).Command(ctx, cluster, command, params, definition.ZCLOptions{})
}
