package store

import (
	"context"
	"fmt"

	"github.com/comsrv/comsrv/internal/wire"
)

// ModelWriter projects Model Service instance state into the store under
// the model/ namespace (spec §4.9), mirroring Writer's channel/ namespace
// conventions but with no per-category snapshot/resend: model data is a
// pure function of channel state already retained by the channel's Writer,
// so a dropped publish is recomputed on the next sync tick rather than
// replayed from memory.
type ModelWriter struct {
	store Store
}

// NewModelWriter builds a ModelWriter over store.
func NewModelWriter(store Store) *ModelWriter {
	return &ModelWriter{store: store}
}

func modelDataKey(instanceID string) string   { return fmt.Sprintf("model/%s/data", instanceID) }
func modelStatusKey(instanceID string) string { return fmt.Sprintf("model/%s/status", instanceID) }

// WriteModelData writes the given name->value map into model/{id}/data.
// Fields not named in data keep their previous values; an empty map writes
// nothing.
func (w *ModelWriter) WriteModelData(ctx context.Context, instanceID string, data map[string]wire.Value) error {
	if len(data) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(data)*2)
	for name, v := range data {
		args = append(args, name, encodeModelValue(v))
	}
	return w.store.HSet(ctx, modelDataKey(instanceID), args...)
}

// WriteModelStatus replaces model/{id}/status and publishes a notification
// on the instance's status topic.
func (w *ModelWriter) WriteModelStatus(ctx context.Context, instanceID string, lastUpdateMs int64, sourceConnected bool) error {
	value := fmt.Sprintf("last_update_ms=%d|source_connected=%t", lastUpdateMs, sourceConnected)
	if err := w.store.HSet(ctx, modelStatusKey(instanceID), "value", value); err != nil {
		return err
	}
	return w.store.Publish(ctx, modelStatusKey(instanceID), value)
}

func encodeModelValue(v wire.Value) string {
	if v.Kind == wire.KindBool {
		if v.B {
			return "1"
		}
		return "0"
	}
	return fmt.Sprintf("%.6f", v.F)
}
