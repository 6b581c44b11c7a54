package coordinator

import (
	"context"
	"fmt"

	"zigbee-go-catalog/internal/store"
)

// Bind binds a cluster of a device endpoint to the coordinator and records
// the binding on the device.
func (c *Coordinator) Bind(ctx context.Context, id string, endpoint uint8, cluster string) error {
	ep, err := c.bindTarget(id, endpoint)
	if err != nil {
		return err
	}
	return ep.Bind(ctx, cluster)
}

// Unbind removes a binding created by Bind.
func (c *Coordinator) Unbind(ctx context.Context, id string, endpoint uint8, cluster string) error {
	ep, err := c.bindTarget(id, endpoint)
	if err != nil {
		return err
	}
	return ep.Unbind(ctx, cluster)
}

func (c *Coordinator) bindTarget(id string, endpoint uint8) (*entityEndpoint, error) {
	dev, err := store.Resolve(c.store, id)
	if err != nil {
		return nil, err
	}
	if _, ok := dev.FindEndpoint(endpoint); !ok {
		return nil, fmt.Errorf("device %s has no endpoint %d", dev.DisplayName(), endpoint)
	}
	return c.entity(dev, c.Definition(dev)).endpoint(endpoint), nil
}
