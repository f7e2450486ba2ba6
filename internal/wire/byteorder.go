// Package wire implements the Modbus byte-order permutation codec: translating
// between the logical big-endian representation of a numeric value and the
// on-wire register byte sequence described by a byte_order permutation string.
package wire

import (
	"fmt"
)

// ByteOrder is a permutation string over A..H describing the wire order of the
// big-endian logical bytes of a value (A is the most significant byte).
type ByteOrder string

// Known byte orders. The four 64-bit orders are the only ones this codec
// accepts; any other 8-letter permutation is rejected by Validate.
const (
	OrderAB = ByteOrder("AB")
	OrderBA = ByteOrder("BA")

	OrderABCD = ByteOrder("ABCD")
	OrderDCBA = ByteOrder("DCBA")
	OrderBADC = ByteOrder("BADC")
	OrderCDAB = ByteOrder("CDAB")

	OrderABCDEFGH = ByteOrder("ABCDEFGH")
	OrderHGFEDCBA = ByteOrder("HGFEDCBA")
	OrderBADCFEHG = ByteOrder("BADCFEHG")
	OrderGHEFCDAB = ByteOrder("GHEFCDAB")
)

var validOrders = map[ByteOrder]bool{
	OrderAB: true, OrderBA: true,
	OrderABCD: true, OrderDCBA: true, OrderBADC: true, OrderCDAB: true,
	OrderABCDEFGH: true, OrderHGFEDCBA: true, OrderBADCFEHG: true, OrderGHEFCDAB: true,
}

// Validate checks that o is a recognized permutation of the right width.
// 8-letter orders outside the four named 64-bit permutations are rejected
// here, per the open question in the mapping spec: unknown 64-bit
// permutations are a config-time error, not a runtime guess.
func (o ByteOrder) Validate() error {
	if !validOrders[o] {
		return fmt.Errorf("wire: unsupported byte order %q", string(o))
	}
	return nil
}

func (o ByteOrder) len() int { return len(string(o)) }

// permute maps wire-ordered src onto natural-ordered dst using the
// permutation: dst[letter(i)-'A'] = src[i]. It is used only for the
// wire -> natural direction (ToNatural); FromNatural applies the inverse
// mapping, wire[i] = natural[letter(i)-'A'].
func permute(order ByteOrder, src, dst []byte) error {
	letters := string(order)
	if len(src) != len(letters) || len(dst) != len(letters) {
		return fmt.Errorf("wire: byte order %q needs %d bytes, got src=%d dst=%d", letters, len(letters), len(src), len(dst))
	}
	seen := make([]bool, len(letters))
	for i, l := range letters {
		idx := int(l - 'A')
		if idx < 0 || idx >= len(letters) || seen[idx] {
			return fmt.Errorf("wire: byte order %q is not a valid permutation", letters)
		}
		seen[idx] = true
		dst[idx] = src[i]
	}
	return nil
}

// ToNatural converts wire-ordered bytes into natural big-endian order (A=MSB).
func (o ByteOrder) ToNatural(wire []byte) ([]byte, error) {
	natural := make([]byte, o.len())
	if err := permute(o, wire, natural); err != nil {
		return nil, err
	}
	return natural, nil
}

// FromNatural converts natural big-endian bytes (A=MSB) into wire order.
func (o ByteOrder) FromNatural(natural []byte) ([]byte, error) {
	wire := make([]byte, o.len())
	letters := string(o)
	for i, l := range letters {
		idx := int(l - 'A')
		if idx < 0 || idx >= len(letters) {
			return nil, fmt.Errorf("wire: byte order %q is not a valid permutation", letters)
		}
		wire[i] = natural[idx]
	}
	return wire, nil
}
