package modbusdriver

import (
	"context"
	"errors"
	"fmt"

	"github.com/comsrv/comsrv/internal/driverapi"
	"github.com/comsrv/comsrv/internal/pointmodel"
	"github.com/comsrv/comsrv/internal/wire"
	"github.com/comsrv/comsrv/packet"
)

// WritePoint issues a single control/adjustment write and verifies the
// device's echo per spec §4.4: FC5/6 echo the written value back; FC15/16
// echo the written start address and quantity.
func (d *Driver) WritePoint(ctx context.Context, cmd driverapi.WriteCommand) (driverapi.WriteResult, error) {
	req, verify, err := d.buildWriteRequest(cmd)
	if err != nil {
		return driverapi.WriteResult{}, &driverapi.Error{Kind: driverapi.ErrKindUnknownPoint, Err: err}
	}

	opCtx, cancel := driverapi.WithTimeout(ctx, d.timeoutMs)
	defer cancel()
	resp, err := d.transport.Do(opCtx, req)
	if err != nil {
		derr := classifyTransportError(err)
		if derr.Kind == driverapi.ErrKindProtocolException {
			return driverapi.WriteResult{Ok: false, Err: derr}, nil
		}
		return driverapi.WriteResult{}, derr
	}

	if !verify(resp) {
		return driverapi.WriteResult{Ok: false, Err: errors.New("modbusdriver: echo verification failed")}, nil
	}
	return driverapi.WriteResult{Ok: true}, nil
}

// buildWriteRequest returns the wire request for cmd's mapping.FunctionCode
// and a verify function checking the device's response echoes what was sent.
func (d *Driver) buildWriteRequest(cmd driverapi.WriteCommand) (packet.Request, func(packet.Response) bool, error) {
	isTCP := d.protocol == pointmodel.ProtocolModbusTCP
	fc := cmd.Mapping.FunctionCode
	addr := cmd.Mapping.RegisterAddress

	switch fc {
	case packet.FunctionWriteSingleCoil:
		state := cmd.Point.Scaling().ApplyBool(cmd.Value.B)
		var req packet.Request
		var err error
		if isTCP {
			req, err = packet.NewWriteSingleCoilRequestTCP(cmd.Mapping.SlaveID, addr, state)
		} else {
			req, err = packet.NewWriteSingleCoilRequestRTU(cmd.Mapping.SlaveID, addr, state)
		}
		if err != nil {
			return nil, nil, err
		}
		return req, func(resp packet.Response) bool {
			echoed, ok := coilState(resp)
			return ok && echoed == state
		}, nil

	case packet.FunctionWriteSingleRegister:
		data, err := wire.Encode(cmd.Mapping.DataType, cmd.Mapping.ByteOrder, cmd.Value)
		if err != nil {
			return nil, nil, err
		}
		var req packet.Request
		if isTCP {
			req, err = packet.NewWriteSingleRegisterRequestTCP(cmd.Mapping.SlaveID, addr, data)
		} else {
			req, err = packet.NewWriteSingleRegisterRequestRTU(cmd.Mapping.SlaveID, addr, data)
		}
		if err != nil {
			return nil, nil, err
		}
		return req, func(resp packet.Response) bool {
			echoed, ok := registerData(resp)
			return ok && string(echoed) == string(data)
		}, nil

	case packet.FunctionWriteMultipleCoils:
		state := cmd.Point.Scaling().ApplyBool(cmd.Value.B)
		var req packet.Request
		var err error
		if isTCP {
			req, err = packet.NewWriteMultipleCoilsRequestTCP(cmd.Mapping.SlaveID, addr, []bool{state})
		} else {
			req, err = packet.NewWriteMultipleCoilsRequestRTU(cmd.Mapping.SlaveID, addr, []bool{state})
		}
		if err != nil {
			return nil, nil, err
		}
		return req, func(resp packet.Response) bool {
			start, qty, ok := multiWriteEcho(resp)
			return ok && start == addr && qty == 1
		}, nil

	case packet.FunctionWriteMultipleRegisters:
		data, err := wire.Encode(cmd.Mapping.DataType, cmd.Mapping.ByteOrder, cmd.Value)
		if err != nil {
			return nil, nil, err
		}
		var req packet.Request
		if isTCP {
			req, err = packet.NewWriteMultipleRegistersRequestTCP(cmd.Mapping.SlaveID, addr, data)
		} else {
			req, err = packet.NewWriteMultipleRegistersRequestRTU(cmd.Mapping.SlaveID, addr, data)
		}
		if err != nil {
			return nil, nil, err
		}
		words, _ := cmd.Mapping.DataType.WordCount()
		return req, func(resp packet.Response) bool {
			start, qty, ok := multiWriteEcho(resp)
			return ok && start == addr && int(qty) == words
		}, nil

	default:
		return nil, nil, fmt.Errorf("modbusdriver: function code %d is not a write function code", fc)
	}
}

func coilState(resp packet.Response) (bool, bool) {
	switch r := resp.(type) {
	case *packet.WriteSingleCoilResponseTCP:
		return r.CoilState, true
	case *packet.WriteSingleCoilResponseRTU:
		return r.CoilState, true
	default:
		return false, false
	}
}

func registerData(resp packet.Response) ([]byte, bool) {
	switch r := resp.(type) {
	case *packet.WriteSingleRegisterResponseTCP:
		return r.Data[:], true
	case *packet.WriteSingleRegisterResponseRTU:
		return r.Data[:], true
	default:
		return nil, false
	}
}

func multiWriteEcho(resp packet.Response) (uint16, uint16, bool) {
	switch r := resp.(type) {
	case *packet.WriteMultipleCoilsResponseTCP:
		return r.StartAddress, r.CoilCount, true
	case *packet.WriteMultipleCoilsResponseRTU:
		return r.StartAddress, r.CoilCount, true
	case *packet.WriteMultipleRegistersResponseTCP:
		return r.StartAddress, r.RegisterCount, true
	case *packet.WriteMultipleRegistersResponseRTU:
		return r.StartAddress, r.RegisterCount, true
	default:
		return 0, 0, false
	}
}
