// Package pointmodel implements the four-remote point model: Measurement,
// Signal, Control and Adjustment point tables, their protocol mappings, and
// the tabular loader/validator that builds them from a channel's CSV
// directory.
package pointmodel

import (
	"github.com/comsrv/comsrv/internal/wire"
)

// Category identifies one of the four remote categories a point belongs to.
type Category string

const (
	Measurement Category = "measurement"
	Signal      Category = "signal"
	Control     Category = "control"
	Adjustment  Category = "adjustment"
)

// Categories lists all four in the canonical order used by the store writer
// and the CSV directory layout.
var Categories = []Category{Measurement, Signal, Control, Adjustment}

// IsReadable reports whether category is populated by polling (vs. by a
// command write).
func (c Category) IsReadable() bool { return c == Measurement || c == Signal }

// IsWritable reports whether category is a command sink.
func (c Category) IsWritable() bool { return c == Control || c == Adjustment }

// Scaling holds the linear transform applied exactly once on the
// polled-to-sample path: engineering = raw*scale + offset, with reverse
// flipping booleans.
type Scaling struct {
	Scale   float64
	Offset  float64
	Reverse bool
}

// Apply computes the engineering value for an analog raw reading.
func (s Scaling) Apply(raw float64) float64 {
	return raw*s.Scale + s.Offset
}

// ApplyBool flips a boolean reading when Reverse is set.
func (s Scaling) ApplyBool(raw bool) bool {
	if s.Reverse {
		return !raw
	}
	return raw
}

// Point is one row of a category's point table.
type Point struct {
	PointID     uint32 `mapstructure:"point_id"`
	SignalName  string `mapstructure:"signal_name"`
	Scale       float64 `mapstructure:"scale"`
	Offset      float64 `mapstructure:"offset"`
	Reverse     bool    `mapstructure:"reverse"`
	Unit        string  `mapstructure:"unit"`
	DataType    wire.DataType `mapstructure:"data_type"`
	Description string  `mapstructure:"description"`
}

// Scaling extracts this point's Scaling from its flat CSV fields.
func (p Point) Scaling() Scaling {
	return Scaling{Scale: p.Scale, Offset: p.Offset, Reverse: p.Reverse}
}

// ProtocolKind names the transport/protocol a channel is configured for.
type ProtocolKind string

const (
	ProtocolModbusTCP ProtocolKind = "modbus_tcp"
	ProtocolModbusRTU ProtocolKind = "modbus_rtu"
	ProtocolVirtual   ProtocolKind = "virt"
)

// Mapping is the protocol-specific address translating a point to on-wire
// coordinates. Modbus fields are populated for modbus_tcp/modbus_rtu
// channels; ExpressionKind is populated for virt channels.
type Mapping struct {
	PointID uint32 `mapstructure:"point_id"`

	// Modbus fields.
	SlaveID         uint8          `mapstructure:"slave_id"`
	FunctionCode    uint8          `mapstructure:"function_code"`
	RegisterAddress uint16         `mapstructure:"register_address"`
	BitPosition     uint8          `mapstructure:"bit_position"`
	ByteOrder       wire.ByteOrder `mapstructure:"byte_order"`
	DataType        wire.DataType  `mapstructure:"data_type"`

	// Virtual driver field.
	ExpressionKind string `mapstructure:"expression_kind"`
}

// ModbusFunctionCodes recognized by the mapping loader, per the mapping
// spec's function_code domain.
var ModbusFunctionCodes = map[uint8]bool{
	1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 15: true, 16: true,
}

// ReadFunctionCodesForCategory lists the function codes valid for a readable
// category: FC1/FC2 feed Signal (coil/discrete reads), FC3/FC4 feed
// Measurement (register reads). Load rejects a mapping whose function_code
// is in neither this list nor WriteFunctionCodesForCategory for the point's
// category.
func ReadFunctionCodesForCategory(c Category) []uint8 {
	switch c {
	case Signal:
		return []uint8{1, 2}
	case Measurement:
		return []uint8{3, 4}
	default:
		return nil
	}
}

// WriteFunctionCodesForCategory lists the function codes valid for a
// writable category: FC5/FC15 write Control (coils), FC6/FC16 write
// Adjustment (registers).
func WriteFunctionCodesForCategory(c Category) []uint8 {
	switch c {
	case Control:
		return []uint8{5, 15}
	case Adjustment:
		return []uint8{6, 16}
	default:
		return nil
	}
}

func functionCodeValidForCategory(c Category, fc uint8) bool {
	for _, allowed := range ReadFunctionCodesForCategory(c) {
		if allowed == fc {
			return true
		}
	}
	for _, allowed := range WriteFunctionCodesForCategory(c) {
		if allowed == fc {
			return true
		}
	}
	return false
}

// PointTable is a category's points indexed by point_id.
type PointTable map[uint32]Point

// MappingTable is a category's mappings indexed by point_id.
type MappingTable map[uint32]Mapping

// CategoryTables holds the four point tables for one channel.
type CategoryTables struct {
	Measurement PointTable
	Signal      PointTable
	Control     PointTable
	Adjustment  PointTable
}

// Table returns the point table for the given category.
func (t CategoryTables) Table(c Category) PointTable {
	switch c {
	case Measurement:
		return t.Measurement
	case Signal:
		return t.Signal
	case Control:
		return t.Control
	case Adjustment:
		return t.Adjustment
	default:
		return nil
	}
}

// CategoryMappings holds the four mapping tables for one channel.
type CategoryMappings struct {
	Measurement MappingTable
	Signal      MappingTable
	Control     MappingTable
	Adjustment  MappingTable
}

// Table returns the mapping table for the given category.
func (m CategoryMappings) Table(c Category) MappingTable {
	switch c {
	case Measurement:
		return m.Measurement
	case Signal:
		return m.Signal
	case Control:
		return m.Control
	case Adjustment:
		return m.Adjustment
	default:
		return nil
	}
}

// Model bundles a channel's complete four-remote point model.
type Model struct {
	Tables   CategoryTables
	Mappings CategoryMappings
}
