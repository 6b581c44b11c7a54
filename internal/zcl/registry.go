package zcl

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds known ZCL cluster definitions, addressable by ID and by
// name. A registry created with Overlay consults its own clusters first and
// falls back to the parent, which is how device-local custom clusters
// (e.g. two different vendor clusters both called "boschSpecific") coexist.
type Registry struct {
	mu       sync.RWMutex
	clusters map[uint16]*ClusterDef
	names    map[string]uint16
	parent   *Registry
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		clusters: make(map[uint16]*ClusterDef),
		names:    make(map[string]uint16),
		logger:   logger,
	}
}

// Register adds a cluster definition to the registry.
func (r *Registry) Register(c ClusterDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.clusters[c.ID]; ok {
		existing.Merge(&c)
		if c.ManufacturerCode != 0 {
			existing.ManufacturerCode = c.ManufacturerCode
		}
		if c.Name != "" && c.Name != existing.Name {
			delete(r.names, existing.Name)
			existing.Name = c.Name
		}
		r.names[existing.Name] = c.ID
		r.logger.Debug("cluster merged", "id", fmt.Sprintf("0x%04X", c.ID), "name", existing.Name)
		return
	}
	clone := c.DeepCopy()
	r.clusters[c.ID] = clone
	if c.Name != "" {
		r.names[c.Name] = c.ID
	}
	r.logger.Debug("cluster registered", "id", fmt.Sprintf("0x%04X", c.ID), "name", c.Name)
}

// Overlay returns a child registry holding defs. A def whose ID is already
// known to r is merged into a copy of r's definition, so the child sees the
// standard attributes plus the vendor extensions. r is not modified.
func (r *Registry) Overlay(defs ...ClusterDef) *Registry {
	child := &Registry{
		clusters: make(map[uint16]*ClusterDef),
		names:    make(map[string]uint16),
		parent:   r,
		logger:   r.logger,
	}
	for _, def := range defs {
		if _, local := child.clusters[def.ID]; !local {
			if base := r.Get(def.ID); base != nil && (def.Name == "" || def.Name == base.Name) {
				child.clusters[def.ID] = base
				child.names[base.Name] = def.ID
			}
		}
		child.Register(def)
	}
	return child
}

// Get returns a cluster definition by ID, or nil if not found.
// The returned value is a deep copy; callers may modify it safely.
func (r *Registry) Get(id uint16) *ClusterDef {
	r.mu.RLock()
	c := r.clusters[id]
	r.mu.RUnlock()
	if c != nil {
		return c.DeepCopy()
	}
	if r.parent != nil {
		return r.parent.Get(id)
	}
	return nil
}

// GetByName returns a cluster definition by name, or nil if not found.
func (r *Registry) GetByName(name string) *ClusterDef {
	r.mu.RLock()
	id, ok := r.names[name]
	r.mu.RUnlock()
	if ok {
		return r.Get(id)
	}
	if r.parent != nil {
		return r.parent.GetByName(name)
	}
	return nil
}

// Lookup resolves a cluster by name and wraps ErrUnknownCluster on failure.
func (r *Registry) Lookup(name string) (*ClusterDef, error) {
	c := r.GetByName(name)
	if c == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCluster, name)
	}
	return c, nil
}

// All returns all registered cluster definitions sorted by ID, including
// those inherited from a parent registry.
// Each entry is a deep copy; callers may modify them safely.
func (r *Registry) All() []ClusterDef {
	seen := make(map[uint16]bool)
	var result []ClusterDef
	for reg := r; reg != nil; reg = reg.parent {
		reg.mu.RLock()
		for id, c := range reg.clusters {
			if seen[id] {
				continue
			}
			seen[id] = true
			result = append(result, *c.DeepCopy())
		}
		reg.mu.RUnlock()
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
