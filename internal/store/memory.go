package store

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Memory is an in-process Store. Devices are cloned on the way in and out
// so callers never share maps with the store.
type Memory struct {
	mu      sync.RWMutex
	devices map[string]*Device
	network *NetworkState
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{devices: make(map[string]*Device)}
}

func (m *Memory) SaveDevice(dev *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[dev.IEEEAddress] = dev.Clone()
	return nil
}

func (m *Memory) GetDevice(ieee string) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dev, ok := m.devices[ieee]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", ieee, ErrNotFound)
	}
	return dev.Clone(), nil
}

func (m *Memory) UpdateDevice(ieee string, fn func(dev *Device) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, ok := m.devices[ieee]
	if !ok {
		return fmt.Errorf("device %s: %w", ieee, ErrNotFound)
	}
	c := dev.Clone()
	if err := fn(c); err != nil {
		return err
	}
	m.devices[ieee] = c
	return nil
}

func (m *Memory) DeleteDevice(ieee string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[ieee]; !ok {
		return fmt.Errorf("device %s: %w", ieee, ErrNotFound)
	}
	delete(m.devices, ieee)
	return nil
}

// ListDevices returns devices ordered by IEEE address, matching BoltStore.
func (m *Memory) ListDevices() ([]*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d.Clone())
	}
	slices.SortFunc(out, func(a, b *Device) int { return strings.Compare(a.IEEEAddress, b.IEEEAddress) })
	return out, nil
}

func (m *Memory) SaveNetworkState(state *NetworkState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := *state
	m.network = &st
	return nil
}

func (m *Memory) GetNetworkState() (*NetworkState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.network == nil {
		return nil, fmt.Errorf("network state: %w", ErrNotFound)
	}
	st := *m.network
	return &st, nil
}

func (m *Memory) Close() error { return nil }
