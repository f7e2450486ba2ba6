// Package driverapi defines the protocol driver capability set the channel
// runtime consumes: connect/disconnect/poll/write/is_connected, plus the
// closed set of error kinds the runtime classifies into tick-local,
// connection-local and configuration failures. Each concrete driver (Modbus,
// virtual) implements this interface directly; there is no transport
// abstraction layer above drivers.
package driverapi

import (
	"context"
	"strconv"
	"time"

	"github.com/comsrv/comsrv/internal/pointmodel"
	"github.com/comsrv/comsrv/internal/wire"
)

// Quality tags a sample's trustworthiness.
type Quality string

const (
	QualityGood      Quality = "good"
	QualityUncertain Quality = "uncertain"
	QualityBad       Quality = "bad"
)

// Sample is one point's value produced by a poll.
type Sample struct {
	PointID     uint32
	Category    pointmodel.Category
	Value       wire.Value
	Quality     Quality
	TimestampMs int64
}

// ReadRequest names the points due to be read this tick within one category.
// The driver is free to group/batch internally (the Modbus driver batches by
// slave_id+function_code+contiguous span; the virtual driver does not need
// to).
type ReadRequest struct {
	Category pointmodel.Category
	Points   []pointmodel.Point
	Mappings pointmodel.MappingTable
}

// ReadResult carries the samples produced for one ReadRequest, or a
// connection-local Err if the whole request could not be attempted (e.g. the
// transport is down). Per-point protocol failures are reflected as Bad
// quality samples, not Err.
type ReadResult struct {
	Category pointmodel.Category
	Samples  []Sample
	Err      error
}

// WriteCommand is a single control/adjustment write.
type WriteCommand struct {
	Category pointmodel.Category
	Point    pointmodel.Point
	Mapping  pointmodel.Mapping
	Value    wire.Value
}

// WriteResult is the outcome of a single write.
type WriteResult struct {
	Ok  bool
	Err error
}

// Driver is the capability set the channel runtime consumes. Implementations
// own their own transport; the runtime never reaches past this interface.
type Driver interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	PollBatch(ctx context.Context, requests []ReadRequest) ([]ReadResult, error)
	WritePoint(ctx context.Context, cmd WriteCommand) (WriteResult, error)
	IsConnected() bool
}

// ErrKind is the closed set of error kinds the runtime distinguishes.
type ErrKind int

const (
	ErrKindUnknown ErrKind = iota
	// ErrKindTimeout: request exceeded its per-operation deadline.
	ErrKindTimeout
	// ErrKindTransportClosed: the underlying connection is gone.
	ErrKindTransportClosed
	// ErrKindFraming: received bytes did not parse as a valid wire frame.
	ErrKindFraming
	// ErrKindProtocolException: device returned a protocol-level exception code.
	ErrKindProtocolException
	// ErrKindValueOutOfRange: decoded value failed a range check.
	ErrKindValueOutOfRange
	// ErrKindUnknownPoint: command/request referenced a point_id not in the table.
	ErrKindUnknownPoint
	// ErrKindStoreUnavailable: the published-state store rejected or could not
	// accept a write; samples are retained for resend, not dropped.
	ErrKindStoreUnavailable
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindTimeout:
		return "Timeout"
	case ErrKindTransportClosed:
		return "TransportClosed"
	case ErrKindFraming:
		return "Framing"
	case ErrKindProtocolException:
		return "ProtocolException"
	case ErrKindValueOutOfRange:
		return "ValueOutOfRange"
	case ErrKindUnknownPoint:
		return "UnknownPoint"
	case ErrKindStoreUnavailable:
		return "StoreUnavailable"
	default:
		return "Unknown"
	}
}

// IsConnectionLocal reports whether this kind should drive the channel into
// Recovering. Only Timeout, TransportClosed and Framing do; the rest surface
// as sample quality or command failure and leave the channel in Polling.
func (k ErrKind) IsConnectionLocal() bool {
	switch k {
	case ErrKindTimeout, ErrKindTransportClosed, ErrKindFraming:
		return true
	default:
		return false
	}
}

// Error wraps a driver failure with its classification and, for protocol
// exceptions, the device-reported exception code.
type Error struct {
	Kind ErrKind
	Code uint8
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == ErrKindProtocolException {
		return "driverapi: protocol exception " + strconv.Itoa(int(e.Code)) + ": " + e.Err.Error()
	}
	return "driverapi: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// WithTimeout turns a timeout_ms configuration value into a context
// deadline, matching how every driver operation in the runtime is bounded
// (suspension points are always timeout-bounded).
func WithTimeout(ctx context.Context, timeoutMs int) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
}
