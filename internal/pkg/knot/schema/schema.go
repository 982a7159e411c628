// Package schema validates KNOT sensor schema entries and data payloads
// against a domain-defined (type_id, value_type, unit) compatibility
// table. Validate is a pure function over that table; it carries no
// session state of its own.
package schema

import "github.com/samber/lo"

// Triple identifies one compatible (type_id, value_type, unit) combination.
type Triple struct {
	TypeID    uint16
	ValueType uint8
	Unit      uint8
}

// CompatTable is the set of triples the validator accepts.
type CompatTable struct {
	entries map[Triple]struct{}
}

// NewCompatTable builds a table from an explicit entry list, deduplicating.
func NewCompatTable(triples []Triple) CompatTable {
	set := make(map[Triple]struct{}, len(triples))
	for _, t := range lo.Uniq(triples) {
		set[t] = struct{}{}
	}
	return CompatTable{entries: set}
}

// Validate reports whether (typeID, valueType, unit) is a recognised
// combination.
func (c CompatTable) Validate(typeID uint16, valueType, unit uint8) bool {
	_, ok := c.entries[Triple{TypeID: typeID, ValueType: valueType, Unit: unit}]
	return ok
}

// Well-known KNOT sensor value types, used to build DefaultCompatTable.
const (
	TypeIDTemperature uint16 = 0x0001
	TypeIDHumidity    uint16 = 0x0002
	TypeIDPressure    uint16 = 0x0003
	TypeIDRawBinary   uint16 = 0x00FF

	ValueTypeInt   uint8 = 1
	ValueTypeFloat uint8 = 2
	ValueTypeBool  uint8 = 3
	ValueTypeRaw   uint8 = 4

	UnitCelsius  uint8 = 1
	UnitPercent  uint8 = 2
	UnitHPa      uint8 = 3
	UnitNone     uint8 = 0
)

// DefaultCompatTable is used when no configuration file is loaded,
// covering the well-known KNOT sensor value types: temperature,
// humidity, pressure, and raw binary passthrough.
func DefaultCompatTable() CompatTable {
	return NewCompatTable([]Triple{
		{TypeID: TypeIDTemperature, ValueType: ValueTypeFloat, Unit: UnitCelsius},
		{TypeID: TypeIDHumidity, ValueType: ValueTypeFloat, Unit: UnitPercent},
		{TypeID: TypeIDPressure, ValueType: ValueTypeFloat, Unit: UnitHPa},
		{TypeID: TypeIDRawBinary, ValueType: ValueTypeRaw, Unit: UnitNone},
	})
}
