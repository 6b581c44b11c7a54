package zcl

import (
	"errors"
	"log/slog"
	"os"
	"testing"
)

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := newTestRegistry()
	r.Register(ClusterDef{
		ID:   0x0006,
		Name: "genOnOff",
		Attributes: []AttributeDef{
			{ID: 0, Name: "onOff", Type: TypeBool, Access: AccessRP},
		},
	})

	got := r.Get(0x0006)
	if got == nil {
		t.Fatal("cluster not found")
	}
	if got.Name != "genOnOff" {
		t.Errorf("name = %q, want %q", got.Name, "genOnOff")
	}
	byName := r.GetByName("genOnOff")
	if byName == nil || byName.ID != 0x0006 {
		t.Fatalf("GetByName = %+v", byName)
	}
	if attr := byName.AttributeByName("onOff"); attr == nil || attr.ID != 0 {
		t.Errorf("AttributeByName(onOff) = %+v", attr)
	}
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	r := newTestRegistry()
	r.Register(ClusterDef{ID: 0x0006, Name: "genOnOff", Attributes: []AttributeDef{{ID: 0, Name: "onOff", Type: TypeBool}}})

	c := r.Get(0x0006)
	c.Attributes[0].Name = "mutated"
	if got := r.Get(0x0006).Attributes[0].Name; got != "onOff" {
		t.Errorf("registry mutated through copy: %q", got)
	}
}

func TestRegistryMerge(t *testing.T) {
	r := newTestRegistry()
	r.Register(ClusterDef{
		ID:   0x0006,
		Name: "genOnOff",
		Attributes: []AttributeDef{
			{ID: 0, Name: "onOff", Type: TypeBool, Access: AccessRead},
		},
	})
	r.Register(ClusterDef{
		ID: 0x0006,
		Attributes: []AttributeDef{
			{ID: 0x4003, Name: "startUpOnOff", Type: TypeEnum8, Access: AccessRW},
		},
	})

	got := r.Get(0x0006)
	if len(got.Attributes) != 2 {
		t.Errorf("after merge: attrs = %d, want 2", len(got.Attributes))
	}
	attr := got.FindAttribute(0x4003)
	if attr == nil {
		t.Fatal("merged attribute not found")
	}
	if attr.Name != "startUpOnOff" {
		t.Errorf("name = %q, want startUpOnOff", attr.Name)
	}
	if got.Name != "genOnOff" {
		t.Errorf("anonymous merge renamed cluster to %q", got.Name)
	}
}

func TestRegistryOverlay(t *testing.T) {
	r := newTestRegistry()
	r.Register(ClusterDef{
		ID:   0x0201,
		Name: "hvacThermostat",
		Attributes: []AttributeDef{
			{ID: 0x0000, Name: "localTemp", Type: TypeInt16},
		},
	})

	child := r.Overlay(
		ClusterDef{
			ID:   0x0201,
			Name: "hvacThermostat",
			Attributes: []AttributeDef{
				{ID: 0x4007, Name: "operatingMode", Type: TypeEnum8, ManufacturerCode: 0x1209},
			},
		},
		ClusterDef{ID: 0xFCA0, Name: "boschSpecific", ManufacturerCode: 0x1209},
	)

	thermo := child.GetByName("hvacThermostat")
	if thermo == nil {
		t.Fatal("overlay lost standard cluster")
	}
	if thermo.AttributeByName("localTemp") == nil || thermo.AttributeByName("operatingMode") == nil {
		t.Errorf("overlay attributes = %+v, want standard and vendor", thermo.Attributes)
	}
	if r.Get(0x0201).AttributeByName("operatingMode") != nil {
		t.Error("overlay leaked into parent")
	}
	if r.GetByName("boschSpecific") != nil {
		t.Error("parent resolves device-local cluster")
	}
	if c, err := child.Lookup("boschSpecific"); err != nil || c.ID != 0xFCA0 {
		t.Errorf("Lookup(boschSpecific) = %+v, %v", c, err)
	}

	other := r.Overlay(ClusterDef{ID: 0xFCA1, Name: "boschSpecific", ManufacturerCode: 0x1209})
	if c := other.GetByName("boschSpecific"); c == nil || c.ID != 0xFCA1 {
		t.Errorf("second overlay resolved %+v, want 0xFCA1", c)
	}
}

func TestRegistryLookupUnknown(t *testing.T) {
	r := newTestRegistry()
	if _, err := r.Lookup("nope"); !errors.Is(err, ErrUnknownCluster) {
		t.Errorf("err = %v, want ErrUnknownCluster", err)
	}
}

func TestRegistryAll(t *testing.T) {
	r := newTestRegistry()
	r.Register(ClusterDef{ID: 3, Name: "C"})
	r.Register(ClusterDef{ID: 1, Name: "A"})
	r.Register(ClusterDef{ID: 2, Name: "B"})

	child := r.Overlay(ClusterDef{ID: 4, Name: "D"})
	all := child.All()
	if len(all) != 4 {
		t.Fatalf("got %d clusters, want 4", len(all))
	}
	for i, c := range all {
		if c.ID != uint16(i+1) {
			t.Errorf("all[%d].ID = %d, want sorted", i, c.ID)
		}
	}
}
