// Package modbusdriver implements driverapi.Driver over a Modbus TCP or RTU
// transport: request batching, byte-order decode/encode via internal/wire,
// echo-verified writes, and protocol exception mapping.
package modbusdriver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/comsrv/comsrv/internal/driverapi"
	"github.com/comsrv/comsrv/internal/mbtransport"
	"github.com/comsrv/comsrv/internal/pointmodel"
	"github.com/comsrv/comsrv/internal/wire"
	"github.com/comsrv/comsrv/packet"
)

// Config configures a Driver instance.
type Config struct {
	// Protocol selects TCP or RTU request/response framing, independent of
	// mbtransport's physical Kind (a serial line still carries RTU framing;
	// a TCP socket always carries MBAP framing in this driver).
	Protocol pointmodel.ProtocolKind
	// BatchSize caps span width in addition to the protocol maximum (125
	// registers / 2000 coils); 0 means "protocol maximum only".
	BatchSize int
	// TimeoutMs bounds every Do call issued against the transport.
	TimeoutMs int
}

// Driver adapts one mbtransport.Transport into the driverapi.Driver
// capability set.
type Driver struct {
	transport mbtransport.Transport
	protocol  pointmodel.ProtocolKind
	batchSize int
	timeoutMs int
}

// New builds a Driver over an already-constructed Transport. The channel
// runtime owns Connect/Disconnect lifecycle; New does not dial.
func New(transport mbtransport.Transport, cfg Config) *Driver {
	timeoutMs := cfg.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 2000
	}
	return &Driver{
		transport: transport,
		protocol:  cfg.Protocol,
		batchSize: cfg.BatchSize,
		timeoutMs: timeoutMs,
	}
}

func (d *Driver) Connect(ctx context.Context) error { return d.transport.Connect(ctx) }

func (d *Driver) Disconnect(ctx context.Context) error { return d.transport.Close() }

func (d *Driver) IsConnected() bool { return d.transport.IsConnected() }

func (d *Driver) PollBatch(ctx context.Context, requests []driverapi.ReadRequest) ([]driverapi.ReadResult, error) {
	results := make([]driverapi.ReadResult, 0, len(requests))
	for _, req := range requests {
		results = append(results, d.pollOne(ctx, req))
	}
	return results, nil
}

func (d *Driver) pollOne(ctx context.Context, req driverapi.ReadRequest) driverapi.ReadResult {
	spans, err := buildReadSpans(req.Points, req.Mappings, d.batchSize)
	if err != nil {
		return driverapi.ReadResult{Category: req.Category, Err: &driverapi.Error{Kind: driverapi.ErrKindUnknownPoint, Err: err}}
	}

	samples := make([]driverapi.Sample, 0, len(req.Points))
	tsMs := time.Now().UnixMilli()
	for _, sp := range spans {
		spanSamples, err := d.pollSpan(ctx, req.Category, sp, tsMs)
		if err != nil {
			var derr *driverapi.Error
			if errors.As(err, &derr) && derr.Kind.IsConnectionLocal() {
				// A connection-local failure abandons the whole tick for this
				// category: the transport itself is unusable until reconnect.
				return driverapi.ReadResult{Category: req.Category, Err: derr}
			}
			samples = append(samples, spanSamples...)
			continue
		}
		samples = append(samples, spanSamples...)
	}
	return driverapi.ReadResult{Category: req.Category, Samples: samples}
}

func (d *Driver) pollSpan(ctx context.Context, category pointmodel.Category, sp span, tsMs int64) ([]driverapi.Sample, error) {
	req, err := newReadRequest(d.protocol, sp.functionCode, sp.slaveID, sp.startAddress, sp.quantity)
	if err != nil {
		return nil, &driverapi.Error{Kind: driverapi.ErrKindFraming, Err: err}
	}

	opCtx, cancel := driverapi.WithTimeout(ctx, d.timeoutMs)
	defer cancel()
	resp, err := d.transport.Do(opCtx, req)
	if err != nil {
		return badQualitySamples(category, sp, tsMs), classifyTransportError(err)
	}

	data, err := responseData(resp)
	if err != nil {
		return badQualitySamples(category, sp, tsMs), &driverapi.Error{Kind: driverapi.ErrKindFraming, Err: err}
	}

	samples := make([]driverapi.Sample, 0, len(sp.members))
	isCoil := isCoilFunctionCode(sp.functionCode)
	for _, m := range sp.members {
		var value wire.Value
		quality := driverapi.QualityGood
		if isCoil {
			value = wire.BoolValue(m.point.Scaling().ApplyBool(extractBit(data, m.offset)))
		} else {
			byteOffset := int(m.offset) * 2
			words, _ := m.point.DataType.WordCount()
			byteLen := words * 2
			if byteOffset+byteLen > len(data) {
				quality = driverapi.QualityBad
			} else if raw, err := wire.Decode(m.point.DataType, m.mapping.ByteOrder, data[byteOffset:byteOffset+byteLen]); err != nil {
				quality = driverapi.QualityBad
			} else {
				value = wire.FloatValue(m.point.Scaling().Apply(raw.F))
			}
		}
		samples = append(samples, driverapi.Sample{
			PointID:     m.point.PointID,
			Category:    category,
			Value:       value,
			Quality:     quality,
			TimestampMs: tsMs,
		})
	}
	return samples, nil
}

func badQualitySamples(category pointmodel.Category, sp span, tsMs int64) []driverapi.Sample {
	samples := make([]driverapi.Sample, 0, len(sp.members))
	for _, m := range sp.members {
		samples = append(samples, driverapi.Sample{
			PointID:     m.point.PointID,
			Category:    category,
			Quality:     driverapi.QualityBad,
			TimestampMs: tsMs,
		})
	}
	return samples
}

func extractBit(data []byte, bitOffset uint16) bool {
	byteIdx := int(bitOffset) / 8
	bitIdx := uint(bitOffset) % 8
	if byteIdx >= len(data) {
		return false
	}
	return (data[byteIdx]>>bitIdx)&1 != 0
}

func responseData(resp packet.Response) ([]byte, error) {
	switch r := resp.(type) {
	case *packet.ReadCoilsResponseTCP:
		return r.Data, nil
	case *packet.ReadCoilsResponseRTU:
		return r.Data, nil
	case *packet.ReadDiscreteInputsResponseTCP:
		return r.Data, nil
	case *packet.ReadDiscreteInputsResponseRTU:
		return r.Data, nil
	case *packet.ReadHoldingRegistersResponseTCP:
		return r.Data, nil
	case *packet.ReadHoldingRegistersResponseRTU:
		return r.Data, nil
	case *packet.ReadInputRegistersResponseTCP:
		return r.Data, nil
	case *packet.ReadInputRegistersResponseRTU:
		return r.Data, nil
	default:
		return nil, fmt.Errorf("modbusdriver: unexpected response type %T", resp)
	}
}

// classifyTransportError maps a transport-layer error into the driverapi
// closed error-kind set. Protocol exceptions reported by the device are
// recovered locally (quality=bad for the tick); timeouts, framing failures
// and closed connections drive the channel into Recovering.
func classifyTransportError(err error) *driverapi.Error {
	var tcpErr *packet.ErrorResponseTCP
	if errors.As(err, &tcpErr) {
		return &driverapi.Error{Kind: driverapi.ErrKindProtocolException, Code: tcpErr.Code, Err: err}
	}
	var rtuErr *packet.ErrorResponseRTU
	if errors.As(err, &rtuErr) {
		return &driverapi.Error{Kind: driverapi.ErrKindProtocolException, Code: rtuErr.Code, Err: err}
	}
	if errors.Is(err, mbtransport.ErrPacketTooLong) {
		return &driverapi.Error{Kind: driverapi.ErrKindFraming, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mbtransport.ErrNotConnected) {
		return &driverapi.Error{Kind: driverapi.ErrKindTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &driverapi.Error{Kind: driverapi.ErrKindTransportClosed, Err: err}
	}
	// Read/write timeouts and dropped connections surface as plain errors
	// from the transport (net.Error, io.EOF-derived); treat anything else
	// unclassified as a connection-local timeout so the channel recovers
	// rather than silently wedging on an unrecognized error shape.
	return &driverapi.Error{Kind: driverapi.ErrKindTimeout, Err: err}
}

func newReadRequest(protocol pointmodel.ProtocolKind, functionCode uint8, slaveID uint8, start, quantity uint16) (packet.Request, error) {
	isTCP := protocol == pointmodel.ProtocolModbusTCP
	switch functionCode {
	case packet.FunctionReadCoils:
		if isTCP {
			return packet.NewReadCoilsRequestTCP(slaveID, start, quantity)
		}
		return packet.NewReadCoilsRequestRTU(slaveID, start, quantity)
	case packet.FunctionReadDiscreteInputs:
		if isTCP {
			return packet.NewReadDiscreteInputsRequestTCP(slaveID, start, quantity)
		}
		return packet.NewReadDiscreteInputsRequestRTU(slaveID, start, quantity)
	case packet.FunctionReadHoldingRegisters:
		if isTCP {
			return packet.NewReadHoldingRegistersRequestTCP(slaveID, start, quantity)
		}
		return packet.NewReadHoldingRegistersRequestRTU(slaveID, start, quantity)
	case packet.FunctionReadInputRegisters:
		if isTCP {
			return packet.NewReadInputRegistersRequestTCP(slaveID, start, quantity)
		}
		return packet.NewReadInputRegistersRequestRTU(slaveID, start, quantity)
	default:
		return nil, fmt.Errorf("modbusdriver: function code %d is not a read function code", functionCode)
	}
}
