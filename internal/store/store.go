// Package store implements the published-state writer (spec §4.7, §6 store
// contract) against github.com/redis/go-redis/v9. Each channel owns one
// Writer instance per the "at-most-one writer per (channel, category)" rule;
// the writer never reads back its own writes to decide what to send.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/comsrv/comsrv/internal/driverapi"
	"github.com/comsrv/comsrv/internal/pointmodel"
	"github.com/comsrv/comsrv/internal/reconnect"
)

// Config configures the Redis connection backing a Writer.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Field is one hash field/value pair for hset_many.
type Field struct {
	Name  string
	Value string
}

// Store is the contract named in spec §6: hset_many/hget_many/hset over a
// per-key hash and publish over a topic; subscribe is not part of it.
// redisStore adapts go-redis's *redis.Client to it; Writer depends on this
// narrower interface so tests can fake it.
type Store interface {
	HSet(ctx context.Context, key string, values ...interface{}) error
	HMGet(ctx context.Context, key string, fields ...string) ([]interface{}, error)
	Publish(ctx context.Context, topic string, payload interface{}) error
	Close() error
}

// redisStore adapts *redis.Client to Store.
type redisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg Config) Store {
	return &redisStore{client: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

func (s *redisStore) HSet(ctx context.Context, key string, values ...interface{}) error {
	return s.client.HSet(ctx, key, values...).Err()
}

func (s *redisStore) HMGet(ctx context.Context, key string, fields ...string) ([]interface{}, error) {
	return s.client.HMGet(ctx, key, fields...).Result()
}

func (s *redisStore) Publish(ctx context.Context, topic string, payload interface{}) error {
	return s.client.Publish(ctx, topic, payload).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

// snapshot is the most recently projected state for one category, kept so a
// StoreUnavailable episode can resend on reconnect instead of dropping
// samples (spec §7).
type snapshot struct {
	fields []Field
	status string
}

// Writer projects one channel's polled samples into the store. It is not
// safe for concurrent use by more than one goroutine at a time: the channel
// runtime that owns it is single-threaded by design (spec §4.2).
type Writer struct {
	store     Store
	channelID string
	reconnect *reconnect.Helper

	mu        sync.Mutex
	snapshots map[pointmodel.Category]snapshot
	available bool
}

// NewWriter builds a Writer for channelID backed by store, using policy for
// publish-reconnect when the store is unavailable.
func NewWriter(store Store, channelID string, policy reconnect.Policy) *Writer {
	return &Writer{
		store:     store,
		channelID: channelID,
		reconnect: reconnect.New(policy, 0),
		snapshots: make(map[pointmodel.Category]snapshot),
		available: true,
	}
}

func categoryKey(channelID string, category pointmodel.Category) string {
	return fmt.Sprintf("channel/%s/%s", channelID, category)
}

func statusKey(channelID string) string {
	return fmt.Sprintf("channel/%s/status", channelID)
}

func sampleFields(samples []driverapi.Sample) []Field {
	fields := make([]Field, 0, len(samples))
	for _, s := range samples {
		fields = append(fields, Field{Name: fmt.Sprintf("%d", s.PointID), Value: encodeValue(s)})
	}
	return fields
}

func encodeValue(s driverapi.Sample) string {
	switch s.Category {
	case pointmodel.Signal, pointmodel.Control:
		if s.Value.B {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%.6f|%s", s.Value.F, s.Quality)
	}
}

// WriteCategory writes samples into the published map for (channel,
// category): the fields for the given point ids are overwritten, and any
// other fields already in the map keep their previous values. It retains
// the rendered fields as the in-memory snapshot for later resend.
func (w *Writer) WriteCategory(ctx context.Context, category pointmodel.Category, samples []driverapi.Sample) error {
	fields := sampleFields(samples)

	w.mu.Lock()
	snap := w.snapshots[category]
	snap.fields = fields
	w.snapshots[category] = snap
	w.mu.Unlock()

	return w.hsetMany(ctx, categoryKey(w.channelID, category), fields)
}

// WriteStatus publishes the channel's status record (e.g. last_error_code,
// connection state) and keeps it for resend alongside category snapshots.
func (w *Writer) WriteStatus(ctx context.Context, lastErrorCode string, connected bool) error {
	value := fmt.Sprintf("connected=%t|last_error_code=%s", connected, lastErrorCode)

	w.mu.Lock()
	for cat, snap := range w.snapshots {
		snap.status = value
		w.snapshots[cat] = snap
	}
	w.mu.Unlock()

	if err := w.hsetMany(ctx, statusKey(w.channelID), []Field{{Name: "value", Value: value}}); err != nil {
		return err
	}
	return w.store.Publish(ctx, statusKey(w.channelID), value)
}

// hsetMany writes the given hash fields and marks the store unavailable on
// failure; ResendOnReconnect drains the marking once connectivity returns.
func (w *Writer) hsetMany(ctx context.Context, key string, fields []Field) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Name, f.Value)
	}
	if err := w.store.HSet(ctx, key, args...); err != nil {
		w.mu.Lock()
		w.available = false
		w.mu.Unlock()
		return &driverapi.Error{Kind: driverapi.ErrKindStoreUnavailable, Err: err}
	}
	w.mu.Lock()
	w.available = true
	w.mu.Unlock()
	return nil
}

// IsAvailable reports whether the last store write succeeded.
func (w *Writer) IsAvailable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.available
}

// ResendOnReconnect resends every category's most recent snapshot, and the
// kept status record, so no sample observed during the StoreUnavailable
// episode is lost. The resend itself is the attempt the reconnect helper
// retries with backoff until it succeeds or the policy gives up.
func (w *Writer) ResendOnReconnect(ctx context.Context) error {
	w.mu.Lock()
	snapshots := make(map[pointmodel.Category]snapshot, len(w.snapshots))
	status := ""
	for cat, snap := range w.snapshots {
		snapshots[cat] = snap
		if snap.status != "" {
			status = snap.status
		}
	}
	w.mu.Unlock()

	return w.reconnect.Run(ctx, func(ctx context.Context) error {
		for cat, snap := range snapshots {
			if err := w.hsetMany(ctx, categoryKey(w.channelID, cat), snap.fields); err != nil {
				return err
			}
		}
		if status != "" {
			return w.hsetMany(ctx, statusKey(w.channelID), []Field{{Name: "value", Value: status}})
		}
		return nil
	}, nil)
}

// Close releases the underlying store connection.
func (w *Writer) Close() error {
	return w.store.Close()
}
