package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DataType is the wire-level numeric representation of a point's value.
type DataType string

const (
	Bool    DataType = "bool"
	Int16   DataType = "int16"
	Uint16  DataType = "uint16"
	Int32   DataType = "int32"
	Uint32  DataType = "uint32"
	Int64   DataType = "int64"
	Uint64  DataType = "uint64"
	Float16 DataType = "float16"
	Float32 DataType = "float32"
	Float64 DataType = "float64"
)

// WordCount returns the number of 16-bit Modbus registers a value of this
// type occupies. Bool is not register-backed (it is a coil/discrete bit) and
// returns 0.
func (d DataType) WordCount() (int, error) {
	switch d {
	case Bool:
		return 0, nil
	case Int16, Uint16, Float16:
		return 1, nil
	case Int32, Uint32, Float32:
		return 2, nil
	case Int64, Uint64, Float64:
		return 4, nil
	default:
		return 0, fmt.Errorf("wire: unknown data type %q", string(d))
	}
}

// ValidateByteOrderWidth checks that order's letter count matches d's word
// count in bytes (2 bytes per word).
func (d DataType) ValidateByteOrderWidth(order ByteOrder) error {
	words, err := d.WordCount()
	if err != nil {
		return err
	}
	if words == 0 {
		return nil
	}
	wantBytes := words * 2
	if order.len() != wantBytes {
		return fmt.Errorf("wire: data type %q needs a %d-letter byte order, got %q", string(d), wantBytes, string(order))
	}
	return order.Validate()
}

// Kind tags whether a Value carries a boolean or a floating point quantity,
// per the tagged-variant value model (Value = Bool(bool) | Float(f64)).
type Kind uint8

const (
	KindBool Kind = iota
	KindFloat
)

// Value is the store/runtime boundary tagged value.
type Value struct {
	Kind Kind
	B    bool
	F    float64
}

// BoolValue constructs a boolean-tagged Value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, B: b} }

// FloatValue constructs a float-tagged Value.
func FloatValue(f float64) Value { return Value{Kind: KindFloat, F: f} }

// Decode interprets wire-ordered register bytes as the given data type,
// returning the raw (unscaled) numeric value. Callers apply engineering
// scaling (raw*scale+offset) separately; Decode never scales.
func Decode(dataType DataType, order ByteOrder, raw []byte) (Value, error) {
	if dataType == Bool {
		return Value{}, fmt.Errorf("wire: Decode does not handle bool, extract bit_position from the raw response instead")
	}
	if err := dataType.ValidateByteOrderWidth(order); err != nil {
		return Value{}, err
	}
	natural, err := order.ToNatural(raw)
	if err != nil {
		return Value{}, err
	}
	switch dataType {
	case Int16:
		return FloatValue(float64(int16(binary.BigEndian.Uint16(natural)))), nil
	case Uint16:
		return FloatValue(float64(binary.BigEndian.Uint16(natural))), nil
	case Int32:
		return FloatValue(float64(int32(binary.BigEndian.Uint32(natural)))), nil
	case Uint32:
		return FloatValue(float64(binary.BigEndian.Uint32(natural))), nil
	case Int64:
		return FloatValue(float64(int64(binary.BigEndian.Uint64(natural)))), nil
	case Uint64:
		return FloatValue(float64(binary.BigEndian.Uint64(natural))), nil
	case Float16:
		return FloatValue(decodeFloat16(binary.BigEndian.Uint16(natural))), nil
	case Float32:
		bits := binary.BigEndian.Uint32(natural)
		return FloatValue(float64(math.Float32frombits(bits))), nil
	case Float64:
		bits := binary.BigEndian.Uint64(natural)
		return FloatValue(math.Float64frombits(bits)), nil
	default:
		return Value{}, fmt.Errorf("wire: unknown data type %q", string(dataType))
	}
}

// Encode converts a raw (unscaled) numeric value back into wire-ordered
// register bytes. It is the inverse of Decode for every supported
// (data_type, byte_order) pair.
func Encode(dataType DataType, order ByteOrder, v Value) ([]byte, error) {
	if dataType == Bool {
		return nil, fmt.Errorf("wire: Encode does not handle bool, build the coil/discrete write frame directly")
	}
	if err := dataType.ValidateByteOrderWidth(order); err != nil {
		return nil, err
	}
	words, _ := dataType.WordCount()
	natural := make([]byte, words*2)
	switch dataType {
	case Int16:
		binary.BigEndian.PutUint16(natural, uint16(int16(v.F)))
	case Uint16:
		binary.BigEndian.PutUint16(natural, uint16(v.F))
	case Int32:
		binary.BigEndian.PutUint32(natural, uint32(int32(v.F)))
	case Uint32:
		binary.BigEndian.PutUint32(natural, uint32(v.F))
	case Int64:
		binary.BigEndian.PutUint64(natural, uint64(int64(v.F)))
	case Uint64:
		binary.BigEndian.PutUint64(natural, uint64(v.F))
	case Float16:
		binary.BigEndian.PutUint16(natural, encodeFloat16(v.F))
	case Float32:
		binary.BigEndian.PutUint32(natural, math.Float32bits(float32(v.F)))
	case Float64:
		binary.BigEndian.PutUint64(natural, math.Float64bits(v.F))
	default:
		return nil, fmt.Errorf("wire: unknown data type %q", string(dataType))
	}
	return order.FromNatural(natural)
}

// decodeFloat16 converts an IEEE 754 binary16 bit pattern to float64.
func decodeFloat16(bits uint16) float64 {
	sign := uint32(bits>>15) & 0x1
	exp := uint32(bits>>10) & 0x1f
	frac := uint32(bits) & 0x3ff

	var f32bits uint32
	switch exp {
	case 0:
		if frac == 0 {
			f32bits = sign << 31
		} else {
			// subnormal half -> normalize into float32
			for frac&0x400 == 0 {
				frac <<= 1
				exp--
			}
			exp++
			frac &= 0x3ff
			f32exp := exp - 15 + 127
			f32bits = (sign << 31) | (f32exp << 23) | (frac << 13)
		}
	case 0x1f:
		f32bits = (sign << 31) | (0xff << 23) | (frac << 13)
	default:
		f32exp := exp - 15 + 127
		f32bits = (sign << 31) | (f32exp << 23) | (frac << 13)
	}
	return float64(math.Float32frombits(f32bits))
}

// encodeFloat16 converts a float64 into an IEEE 754 binary16 bit pattern,
// saturating to +/-Inf on overflow. Values outside half-precision range lose
// precision; this mirrors how a real device's half-float register behaves.
func encodeFloat16(f float64) uint16 {
	f32 := float32(f)
	bits := math.Float32bits(f32)
	sign := uint16((bits >> 16) & 0x8000)
	exp32 := int32((bits>>23)&0xff) - 127
	frac32 := bits & 0x7fffff

	if math.IsNaN(float64(f32)) {
		return sign | 0x7e00
	}
	if math.IsInf(float64(f32), 0) {
		return sign | 0x7c00
	}
	exp16 := exp32 + 15
	if exp16 >= 0x1f {
		return sign | 0x7c00 // overflow -> infinity
	}
	if exp16 <= 0 {
		if exp16 < -10 {
			return sign // too small -> zero
		}
		frac32 |= 0x800000
		shift := uint(14 - exp16)
		return sign | uint16(frac32>>shift)
	}
	return sign | uint16(exp16<<10) | uint16(frac32>>13)
}
