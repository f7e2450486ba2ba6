package packet

import (
	"errors"
	"fmt"
)

// Request is common interface of modbus request packets
type Request interface {
	// FunctionCode returns function code of this request
	FunctionCode() uint8
	// Bytes returns packet as bytes form
	Bytes() []byte
	// ExpectedResponseLength returns length of bytes that valid response to this request would be
	ExpectedResponseLength() int
}

// ParseTCPRequest parses given bytes into modbus TCP request packet or returns error
func ParseTCPRequest(data []byte) (Request, error) {
	if len(data) < 9 {
		return nil, errors.New("data is too short to be a Modbus TCP packet")
	}
	functionCode := data[7]
	switch functionCode {
	case FunctionReadCoils:
		return ParseReadCoilsRequestTCP(data)
	case FunctionReadDiscreteInputs:
		return ParseReadDiscreteInputsRequestTCP(data)
	case FunctionReadHoldingRegisters:
		return ParseReadHoldingRegistersRequestTCP(data)
	case FunctionReadInputRegisters:
		return ParseReadInputRegistersRequestTCP(data)
	case FunctionWriteSingleCoil:
		return ParseWriteSingleCoilRequestTCP(data)
	case FunctionWriteSingleRegister:
		return ParseWriteSingleRegisterRequestTCP(data)
	case FunctionWriteMultipleCoils:
		return ParseWriteMultipleCoilsRequestTCP(data)
	case FunctionWriteMultipleRegisters:
		return ParseWriteMultipleRegistersRequestTCP(data)
	default:
		return nil, fmt.Errorf("unknown function code parsed: %v", functionCode)
	}
}

// ParseRTURequestWithCRC checks packet CRC and parses given bytes into modbus RTU request packet or returns error
func ParseRTURequestWithCRC(data []byte) (Request, error) {
	dataLen := len(data)
	if dataLen < 6 {
		return nil, errors.New("data is too short to be a Modbus RTU packet")
	}
	packetCRC := uint16(data[dataLen-2]) | uint16(data[dataLen-1])<<8
	actualCRC := CRC16(data[:dataLen-2])
	if packetCRC != actualCRC {
		return nil, ErrInvalidCRC
	}
	return ParseRTURequest(data)
}

// ParseRTURequest parses given bytes into modbus RTU request packet or returns error. Does not check CRC.
func ParseRTURequest(data []byte) (Request, error) {
	if len(data) < 6 {
		return nil, errors.New("data is too short to be a Modbus RTU packet")
	}
	functionCode := data[1]
	switch functionCode {
	case FunctionReadCoils:
		return ParseReadCoilsRequestRTU(data)
	case FunctionReadDiscreteInputs:
		return ParseReadDiscreteInputsRequestRTU(data)
	case FunctionReadHoldingRegisters:
		return ParseReadHoldingRegistersRequestRTU(data)
	case FunctionReadInputRegisters:
		return ParseReadInputRegistersRequestRTU(data)
	case FunctionWriteSingleCoil:
		return ParseWriteSingleCoilRequestRTU(data)
	case FunctionWriteSingleRegister:
		return ParseWriteSingleRegisterRequestRTU(data)
	case FunctionWriteMultipleCoils:
		return ParseWriteMultipleCoilsRequestRTU(data)
	case FunctionWriteMultipleRegisters:
		return ParseWriteMultipleRegistersRequestRTU(data)
	default:
		return nil, fmt.Errorf("unknown function code parsed: %v", functionCode)
	}
}
