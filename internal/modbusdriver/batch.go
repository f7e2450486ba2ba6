package modbusdriver

import (
	"fmt"
	"sort"

	"github.com/comsrv/comsrv/internal/pointmodel"
	"github.com/comsrv/comsrv/packet"
)

// member is one point+mapping pair placed within a span, remembering its
// offset from the span's start address so the response buffer can be
// re-sliced per point after the request returns.
type member struct {
	point      pointmodel.Point
	mapping    pointmodel.Mapping
	offset     uint16 // registers, or bits for coil/discrete spans
	isRegister bool
}

// span is one outstanding request: a contiguous (or union-of-contiguous,
// per spec) address range for one (slave_id, function_code) pair.
type span struct {
	slaveID      uint8
	functionCode uint8
	startAddress uint16
	quantity     uint16
	members      []member
}

func isRegisterFunctionCode(fc uint8) bool {
	return fc == packet.FunctionReadHoldingRegisters || fc == packet.FunctionReadInputRegisters
}

func isCoilFunctionCode(fc uint8) bool {
	return fc == packet.FunctionReadCoils || fc == packet.FunctionReadDiscreteInputs
}

// buildReadSpans groups points due this tick by (slave_id, function_code),
// sorts each group by register_address, and greedily merges into spans
// whose width never exceeds the smaller of the function code's protocol
// maximum and batchSize. Per spec §4.4: when two mappings' spans overlap for
// 32/64-bit values the merged span covers the union and each point decodes
// from its offset within the returned buffer.
func buildReadSpans(points []pointmodel.Point, mappings pointmodel.MappingTable, batchSize int) ([]span, error) {
	type entry struct {
		member
	}

	groups := map[uint16][]entry{} // key = slaveID<<8 | functionCode
	for _, p := range points {
		m, ok := mappings[p.PointID]
		if !ok {
			continue
		}
		var width uint16
		isReg := isRegisterFunctionCode(m.FunctionCode)
		if isReg {
			words, err := p.DataType.WordCount()
			if err != nil {
				return nil, fmt.Errorf("modbusdriver: point %d: %w", p.PointID, err)
			}
			width = uint16(words)
		} else if isCoilFunctionCode(m.FunctionCode) {
			width = 1
		} else {
			return nil, fmt.Errorf("modbusdriver: point %d: function code %d is not a read function code", p.PointID, m.FunctionCode)
		}

		key := uint16(m.SlaveID)<<8 | uint16(m.FunctionCode)
		groups[key] = append(groups[key], entry{member{point: p, mapping: m, offset: m.RegisterAddress, isRegister: isReg}})
	}

	var spans []span
	for key, members := range groups {
		slaveID := uint8(key >> 8)
		functionCode := uint8(key & 0xff)

		sort.Slice(members, func(i, j int) bool {
			return members[i].offset < members[j].offset
		})

		limit := uint16(packet.MaxRegistersInReadResponse)
		if isCoilFunctionCode(functionCode) {
			limit = uint16(packet.MaxCoilsInReadResponse)
		}
		if batchSize > 0 && uint16(batchSize) < limit {
			limit = uint16(batchSize)
		}

		firstAddress := members[0].offset
		cur := span{slaveID: slaveID, functionCode: functionCode, startAddress: firstAddress}
		for _, e := range members {
			addr := e.offset
			var width uint16 = 1
			if e.isRegister {
				words, _ := e.point.DataType.WordCount()
				width = uint16(words)
			}
			end := addr + width
			diff := end - firstAddress
			if diff > limit {
				spans = append(spans, cur)
				firstAddress = addr
				cur = span{slaveID: slaveID, functionCode: functionCode, startAddress: firstAddress, quantity: width}
				diff = width
			}
			if cur.quantity < diff {
				cur.quantity = diff
			}
			e.offset = addr - firstAddress
			cur.members = append(cur.members, e.member)
		}
		spans = append(spans, cur)
	}
	return spans, nil
}
