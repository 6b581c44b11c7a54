package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// Device operations
	SaveDevice(dev *Device) error
	GetDevice(ieee string) (*Device, error)
	DeleteDevice(ieee string) error
	ListDevices() ([]*Device, error)

	// UpdateDevice atomically reads, modifies, and saves a device in a single
	// transaction. Returns ErrNotFound if the device does not exist.
	UpdateDevice(ieee string, fn func(dev *Device) error) error

	// Network state
	SaveNetworkState(state *NetworkState) error
	GetNetworkState() (*NetworkState, error)

	// Close the store
	Close() error
}

// Resolve finds a device by IEEE address or friendly name. IEEE matching
// is case-insensitive.
func Resolve(s Store, id string) (*Device, error) {
	if dev, err := s.GetDevice(strings.ToLower(id)); err == nil {
		return dev, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	devs, err := s.ListDevices()
	if err != nil {
		return nil, err
	}
	for _, d := range devs {
		if d.FriendlyName != "" && d.FriendlyName == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device %s: %w", id, ErrNotFound)
}
