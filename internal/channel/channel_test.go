package channel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comsrv/comsrv/internal/command"
	"github.com/comsrv/comsrv/internal/driverapi"
	"github.com/comsrv/comsrv/internal/pointmodel"
	"github.com/comsrv/comsrv/internal/reconnect"
	"github.com/comsrv/comsrv/internal/store"
	"github.com/comsrv/comsrv/internal/wire"
)

// fakeDriver is a scriptable driverapi.Driver test double.
type fakeDriver struct {
	connectErr   atomic.Value // error
	connected    atomic.Bool
	pollErr      atomic.Value // error
	pollCount    atomic.Int64
	writeResult  driverapi.WriteResult
	writeErr     error
}

func (d *fakeDriver) Connect(ctx context.Context) error {
	if err, _ := d.connectErr.Load().(error); err != nil {
		return err
	}
	d.connected.Store(true)
	return nil
}

func (d *fakeDriver) Disconnect(ctx context.Context) error {
	d.connected.Store(false)
	return nil
}

func (d *fakeDriver) IsConnected() bool { return d.connected.Load() }

func (d *fakeDriver) PollBatch(ctx context.Context, requests []driverapi.ReadRequest) ([]driverapi.ReadResult, error) {
	d.pollCount.Add(1)
	if err, _ := d.pollErr.Load().(error); err != nil {
		results := make([]driverapi.ReadResult, len(requests))
		for i, r := range requests {
			results[i] = driverapi.ReadResult{Category: r.Category, Err: err}
		}
		return results, nil
	}
	results := make([]driverapi.ReadResult, 0, len(requests))
	for _, r := range requests {
		samples := make([]driverapi.Sample, 0, len(r.Points))
		for _, p := range r.Points {
			samples = append(samples, driverapi.Sample{PointID: p.PointID, Category: r.Category, Value: wire.FloatValue(1), Quality: driverapi.QualityGood})
		}
		results = append(results, driverapi.ReadResult{Category: r.Category, Samples: samples})
	}
	return results, nil
}

func (d *fakeDriver) WritePoint(ctx context.Context, cmd driverapi.WriteCommand) (driverapi.WriteResult, error) {
	return d.writeResult, d.writeErr
}

type fakeStore struct {
	hsets map[string]map[string]string
}

func newFakeStore() *fakeStore { return &fakeStore{hsets: make(map[string]map[string]string)} }

func (f *fakeStore) HSet(ctx context.Context, key string, values ...interface{}) error {
	m, ok := f.hsets[key]
	if !ok {
		m = make(map[string]string)
		f.hsets[key] = m
	}
	for i := 0; i+1 < len(values); i += 2 {
		m[values[i].(string)] = values[i+1].(string)
	}
	return nil
}

func (f *fakeStore) HMGet(ctx context.Context, key string, fields ...string) ([]interface{}, error) {
	return nil, nil
}

func (f *fakeStore) Publish(ctx context.Context, topic string, payload interface{}) error { return nil }

func (f *fakeStore) Close() error { return nil }

func testModel() pointmodel.Model {
	return pointmodel.Model{
		Tables: pointmodel.CategoryTables{
			Measurement: pointmodel.PointTable{1: {PointID: 1, DataType: wire.Uint16}},
			Signal:      pointmodel.PointTable{},
			Control:     pointmodel.PointTable{2: {PointID: 2, DataType: wire.Bool}},
			Adjustment:  pointmodel.PointTable{},
		},
		Mappings: pointmodel.CategoryMappings{
			Measurement: pointmodel.MappingTable{1: {PointID: 1}},
			Signal:      pointmodel.MappingTable{},
			Control:     pointmodel.MappingTable{2: {PointID: 2}},
			Adjustment:  pointmodel.MappingTable{},
		},
	}
}

func fastPolicy() reconnect.Policy {
	return reconnect.Policy{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2, Jitter: 0}
}

func TestChannel_ConnectSuccessReachesPolling(t *testing.T) {
	driver := &fakeDriver{}
	fs := newFakeStore()
	w := store.NewWriter(fs, "c1", fastPolicy())
	ch := New(Config{ID: "c1", IntervalMs: 5, ReconnectPolicy: fastPolicy()}, driver, testModel(), w, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { ch.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return ch.Status().State == Polling }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestChannel_ConnectFailureEntersRecovering(t *testing.T) {
	driver := &fakeDriver{}
	driver.connectErr.Store(errors.New("dial refused"))
	w := store.NewWriter(newFakeStore(), "c1", fastPolicy())
	ch := New(Config{ID: "c1", IntervalMs: 5, ReconnectPolicy: fastPolicy()}, driver, testModel(), w, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { ch.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return ch.Status().State == Recovering }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestChannel_ConnectionLocalPollErrorTransitionsToRecovering(t *testing.T) {
	driver := &fakeDriver{}
	w := store.NewWriter(newFakeStore(), "c1", fastPolicy())
	ch := New(Config{ID: "c1", IntervalMs: 2, ReconnectPolicy: fastPolicy()}, driver, testModel(), w, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { ch.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return ch.Status().State == Polling }, time.Second, time.Millisecond)

	driver.pollErr.Store(&driverapi.Error{Kind: driverapi.ErrKindTimeout, Err: errors.New("timed out")})
	require.Eventually(t, func() bool { return ch.Status().State == Recovering }, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestChannel_EnqueueCommandIsDispatchedAndResolved(t *testing.T) {
	driver := &fakeDriver{writeResult: driverapi.WriteResult{Ok: true}}
	w := store.NewWriter(newFakeStore(), "c1", fastPolicy())
	ch := New(Config{ID: "c1", IntervalMs: 2, ReconnectPolicy: fastPolicy()}, driver, testModel(), w, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { ch.Run(ctx); close(done) }()
	require.Eventually(t, func() bool { return ch.Status().State == Polling }, time.Second, time.Millisecond)

	handle := ch.Enqueue(command.Command{Category: pointmodel.Control, PointID: 2, Value: wire.BoolValue(true)})
	select {
	case r := <-handle.Chan():
		assert.Equal(t, command.Ok, r.Reply)
	case <-time.After(time.Second):
		t.Fatal("command was never resolved")
	}

	cancel()
	<-done
}

func TestSupervisor_StartStopStatus(t *testing.T) {
	driver := &fakeDriver{}
	w := store.NewWriter(newFakeStore(), "c1", fastPolicy())
	ch := New(Config{ID: "c1", IntervalMs: 5, ReconnectPolicy: fastPolicy()}, driver, testModel(), w, nil)

	sup := NewSupervisor(nil)
	require.NoError(t, sup.Start(context.Background(), "c1", ch))
	require.Eventually(t, func() bool {
		st, err := sup.Status("c1")
		return err == nil && st.State == Polling
	}, time.Second, time.Millisecond)

	require.NoError(t, sup.Stop("c1"))
	_, err := sup.Status("c1")
	assert.Error(t, err)
}
