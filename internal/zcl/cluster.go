package zcl

import "errors"

var (
	ErrUnknownCluster   = errors.New("zcl: unknown cluster")
	ErrUnknownAttribute = errors.New("zcl: unknown attribute")
	ErrUnknownCommand   = errors.New("zcl: unknown command")
)

// Access flags
const (
	AccessRead   uint8 = 0x01
	AccessWrite  uint8 = 0x02
	AccessReport uint8 = 0x04

	AccessRW  = AccessRead | AccessWrite
	AccessRP  = AccessRead | AccessReport
	AccessRWP = AccessRead | AccessWrite | AccessReport
)

// AttributeDef defines a ZCL attribute. A non-zero ManufacturerCode marks a
// vendor attribute that must be addressed with a manufacturer-specific frame.
type AttributeDef struct {
	ID               uint16 `json:"id"`
	Name             string `json:"name"`
	Type             uint8  `json:"type"`
	Access           uint8  `json:"access,omitempty"`
	ManufacturerCode uint16 `json:"manufacturer_code,omitempty"`
}

// IsReadable returns true if the attribute can be read.
func (a *AttributeDef) IsReadable() bool {
	return a.Access == 0 || a.Access&AccessRead != 0
}

// IsWritable returns true if the attribute can be written.
func (a *AttributeDef) IsWritable() bool {
	return a.Access&AccessWrite != 0
}

// IsReportable returns true if the attribute supports reporting.
func (a *AttributeDef) IsReportable() bool {
	return a.Access&AccessReport != 0
}

// CommandDirection indicates the direction of a cluster command.
type CommandDirection string

const (
	DirectionToServer CommandDirection = "toServer"
	DirectionToClient CommandDirection = "toClient"
)

// ParamDef is one positional parameter of a cluster command.
type ParamDef struct {
	Name string `json:"name"`
	Type uint8  `json:"type"`
}

// CommandDef defines a cluster-specific command.
type CommandDef struct {
	ID        uint8            `json:"id"`
	Name      string           `json:"name"`
	Direction CommandDirection `json:"direction"`
	Params    []ParamDef       `json:"params,omitempty"`
}

// ClusterDef defines a ZCL cluster with its attributes and commands.
// ManufacturerCode is set for clusters that only exist on one vendor's
// devices; every frame for such a cluster is manufacturer-specific.
type ClusterDef struct {
	ID               uint16         `json:"id"`
	Name             string         `json:"name"`
	ManufacturerCode uint16         `json:"manufacturer_code,omitempty"`
	Attributes       []AttributeDef `json:"attributes,omitempty"`
	Commands         []CommandDef   `json:"commands,omitempty"`
}

// FindAttribute looks up an attribute by ID.
func (c *ClusterDef) FindAttribute(id uint16) *AttributeDef {
	for i := range c.Attributes {
		if c.Attributes[i].ID == id {
			return &c.Attributes[i]
		}
	}
	return nil
}

// AttributeByName looks up an attribute by name.
func (c *ClusterDef) AttributeByName(name string) *AttributeDef {
	for i := range c.Attributes {
		if c.Attributes[i].Name == name {
			return &c.Attributes[i]
		}
	}
	return nil
}

// FindCommand looks up a command by ID and direction.
func (c *ClusterDef) FindCommand(id uint8, dir CommandDirection) *CommandDef {
	for i := range c.Commands {
		if c.Commands[i].ID == id && c.Commands[i].Direction == dir {
			return &c.Commands[i]
		}
	}
	return nil
}

// CommandByName looks up a command by name in either direction.
func (c *ClusterDef) CommandByName(name string) *CommandDef {
	for i := range c.Commands {
		if c.Commands[i].Name == name {
			return &c.Commands[i]
		}
	}
	return nil
}

// AttributeManufacturerCode returns the manufacturer code to use when
// addressing attr: the attribute's own code, else the cluster's.
func (c *ClusterDef) AttributeManufacturerCode(attr *AttributeDef) uint16 {
	if attr != nil && attr.ManufacturerCode != 0 {
		return attr.ManufacturerCode
	}
	return c.ManufacturerCode
}

// DeepCopy returns a deep copy of the cluster definition.
func (c *ClusterDef) DeepCopy() *ClusterDef {
	cp := *c
	if c.Attributes != nil {
		cp.Attributes = make([]AttributeDef, len(c.Attributes))
		copy(cp.Attributes, c.Attributes)
	}
	if c.Commands != nil {
		cp.Commands = make([]CommandDef, len(c.Commands))
		for i, cmd := range c.Commands {
			cp.Commands[i] = cmd
			if cmd.Params != nil {
				cp.Commands[i].Params = append([]ParamDef(nil), cmd.Params...)
			}
		}
	}
	return &cp
}

// Merge adds attributes and commands from another definition. Entries of
// other replace entries with the same ID, so a vendor overlay can retype a
// standard attribute.
func (c *ClusterDef) Merge(other *ClusterDef) {
	for _, attr := range other.Attributes {
		if existing := c.FindAttribute(attr.ID); existing != nil {
			*existing = attr
			continue
		}
		c.Attributes = append(c.Attributes, attr)
	}
	for _, cmd := range other.Commands {
		if existing := c.FindCommand(cmd.ID, cmd.Direction); existing != nil {
			*existing = cmd
			continue
		}
		c.Commands = append(c.Commands, cmd)
	}
	if c.Name == "" {
		c.Name = other.Name
	}
}
