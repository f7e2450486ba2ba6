package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comsrv/comsrv/internal/driverapi"
	"github.com/comsrv/comsrv/internal/pointmodel"
	"github.com/comsrv/comsrv/internal/reconnect"
	"github.com/comsrv/comsrv/internal/wire"
)

type fakeStore struct {
	fail    bool
	hsets   map[string]map[string]string
	pubs    []string
	closeCt int
}

func newFakeStore() *fakeStore {
	return &fakeStore{hsets: make(map[string]map[string]string)}
}

func (f *fakeStore) HSet(ctx context.Context, key string, values ...interface{}) error {
	if f.fail {
		return errors.New("fake: store unreachable")
	}
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
	m := f.hsets[key]
	out := make([]interface{}, len(fields))
	for i, field := range fields {
		if v, ok := m[field]; ok {
			out[i] = v
		}
	}
	return out, nil
}

func (f *fakeStore) Publish(ctx context.Context, topic string, payload interface{}) error {
	f.pubs = append(f.pubs, topic)
	return nil
}

func (f *fakeStore) Close() error {
	f.closeCt++
	return nil
}

func policy() reconnect.Policy {
	return reconnect.Policy{InitialDelay: 0, MaxDelay: 0, Multiplier: 1, Jitter: 0, MaxAttempts: 1}
}

func TestWriter_WriteCategoryReplacesMap(t *testing.T) {
	fs := newFakeStore()
	w := NewWriter(fs, "chan-1", policy())

	err := w.WriteCategory(context.Background(), pointmodel.Measurement, []driverapi.Sample{
		{PointID: 1, Category: pointmodel.Measurement, Value: wire.FloatValue(10.5), Quality: driverapi.QualityGood},
	})
	require.NoError(t, err)
	assert.Contains(t, fs.hsets["channel/chan-1/measurement"]["1"], "10.500000")
}

func TestWriter_HSetFailureMarksUnavailable(t *testing.T) {
	fs := newFakeStore()
	fs.fail = true
	w := NewWriter(fs, "chan-1", policy())

	err := w.WriteCategory(context.Background(), pointmodel.Measurement, []driverapi.Sample{
		{PointID: 1, Category: pointmodel.Measurement, Value: wire.FloatValue(1), Quality: driverapi.QualityGood},
	})
	require.Error(t, err)
	assert.False(t, w.IsAvailable())
}

func TestWriter_ResendOnReconnectReplaysSnapshot(t *testing.T) {
	fs := newFakeStore()
	w := NewWriter(fs, "chan-1", policy())

	require.NoError(t, w.WriteCategory(context.Background(), pointmodel.Signal, []driverapi.Sample{
		{PointID: 7, Category: pointmodel.Signal, Value: wire.BoolValue(true), Quality: driverapi.QualityGood},
	}))

	fs.hsets = make(map[string]map[string]string)
	err := w.ResendOnReconnect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", fs.hsets["channel/chan-1/signal"]["7"])
}

func TestWriter_WriteStatusPublishes(t *testing.T) {
	fs := newFakeStore()
	w := NewWriter(fs, "chan-1", policy())

	require.NoError(t, w.WriteStatus(context.Background(), "Timeout", false))
	assert.Len(t, fs.pubs, 1)
	assert.Equal(t, "channel/chan-1/status", fs.pubs[0])
}
