// Package virtualdriver implements a deterministic synthesizer driver used
// for testing the channel runtime and for demos, independent of any wire
// protocol. Connect always succeeds.
package virtualdriver

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/comsrv/comsrv/internal/driverapi"
	"github.com/comsrv/comsrv/internal/pointmodel"
	"github.com/comsrv/comsrv/internal/wire"
)

// Expression kinds a virtual mapping's ExpressionKind field may name.
const (
	ExprConstant = "constant"
	ExprSine     = "sine"
	ExprSawtooth = "sawtooth"
	ExprEcho     = "echo"
	// ExprRamp is a linear ramp between two bounds over Period, restoring a
	// common simulator feature beyond constant/sine/sawtooth/echo: useful
	// for exercising Adjustment points whose value changes gradually
	// without a real device attached.
	ExprRamp = "ramp"
)

const (
	defaultAmplitude = 100.0
	defaultPeriod    = 60 * time.Second
)

// Config configures a Driver instance.
type Config struct {
	// UpdateIntervalMs records the virtual channel's configured interval.
	// The driver does not read it: the channel runtime's own tick interval
	// drives polling cadence.
	UpdateIntervalMs int
	// Now allows tests to control wall-clock time. Defaults to time.Now.
	Now func() time.Time
}

// Driver is a driverapi.Driver that synthesizes values instead of talking to
// a real device.
type Driver struct {
	now func() time.Time

	mu        sync.Mutex
	connected bool
	lastWrite map[uint32]wire.Value
}

// New creates a virtual Driver.
func New(cfg Config) *Driver {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Driver{
		now:       now,
		lastWrite: make(map[uint32]wire.Value),
	}
}

// Connect always succeeds, per spec.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	return nil
}

// Disconnect marks the driver disconnected.
func (d *Driver) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	return nil
}

// IsConnected reports the current connection state.
func (d *Driver) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// PollBatch synthesizes one sample per requested point according to its
// mapping's expression kind.
func (d *Driver) PollBatch(ctx context.Context, requests []driverapi.ReadRequest) ([]driverapi.ReadResult, error) {
	now := d.now()
	tsMs := now.UnixMilli()

	results := make([]driverapi.ReadResult, 0, len(requests))
	for _, req := range requests {
		samples := make([]driverapi.Sample, 0, len(req.Points))
		for _, p := range req.Points {
			m, ok := req.Mappings[p.PointID]
			quality := driverapi.QualityGood
			var value wire.Value
			if !ok {
				quality = driverapi.QualityBad
				value = wire.FloatValue(0)
			} else {
				value = d.evaluate(m, p, now)
			}
			samples = append(samples, driverapi.Sample{
				PointID:     p.PointID,
				Category:    req.Category,
				Value:       value,
				Quality:     quality,
				TimestampMs: tsMs,
			})
		}
		results = append(results, driverapi.ReadResult{Category: req.Category, Samples: samples})
	}
	return results, nil
}

func (d *Driver) evaluate(m pointmodel.Mapping, p pointmodel.Point, now time.Time) wire.Value {
	if p.DataType == wire.Bool {
		return wire.BoolValue(d.evaluateBool(m, now))
	}

	phase := float64(now.UnixNano()%int64(defaultPeriod)) / float64(defaultPeriod)
	switch m.ExpressionKind {
	case ExprSine:
		return wire.FloatValue(defaultAmplitude * math.Sin(2*math.Pi*phase))
	case ExprSawtooth:
		return wire.FloatValue(defaultAmplitude * phase)
	case ExprRamp:
		// linear ramp 0 -> amplitude -> 0 over one period
		if phase < 0.5 {
			return wire.FloatValue(defaultAmplitude * (phase * 2))
		}
		return wire.FloatValue(defaultAmplitude * (2 - phase*2))
	case ExprEcho:
		d.mu.Lock()
		defer d.mu.Unlock()
		if v, ok := d.lastWrite[p.PointID]; ok {
			return v
		}
		return wire.FloatValue(0)
	default: // ExprConstant and unrecognized kinds behave as constant 0
		return wire.FloatValue(0)
	}
}

func (d *Driver) evaluateBool(m pointmodel.Mapping, now time.Time) bool {
	switch m.ExpressionKind {
	case ExprEcho:
		d.mu.Lock()
		defer d.mu.Unlock()
		if v, ok := d.lastWrite[m.PointID]; ok {
			return v.B
		}
		return false
	case ExprSine, ExprSawtooth, ExprRamp:
		phase := float64(now.UnixNano()%int64(defaultPeriod)) / float64(defaultPeriod)
		return phase < 0.5
	default:
		return false
	}
}

// WritePoint records the written value so a subsequent echo-kind read
// returns it.
func (d *Driver) WritePoint(ctx context.Context, cmd driverapi.WriteCommand) (driverapi.WriteResult, error) {
	d.mu.Lock()
	d.lastWrite[cmd.Point.PointID] = cmd.Value
	d.mu.Unlock()
	return driverapi.WriteResult{Ok: true}, nil
}
