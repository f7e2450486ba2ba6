package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/comsrv/comsrv/internal/command"
	"github.com/comsrv/comsrv/internal/pointmodel"
	"github.com/comsrv/comsrv/internal/store"
	"github.com/comsrv/comsrv/internal/wire"
)

const defaultSyncIntervalMs = 1000

// ValueSink is the destination a Projector writes model/{id}/data and
// model/{id}/status into. Backed by store.ModelWriter, which writes over the
// same Store as the channel runtime's store.Writer, under the model/
// namespace instead of channel/.
type ValueSink interface {
	WriteModelData(ctx context.Context, instanceID string, data map[string]wire.Value) error
	WriteModelStatus(ctx context.Context, instanceID string, lastUpdateMs int64, sourceConnected bool) error
}

// CommandEnqueuer is the subset of channel.Channel a Projector needs to
// translate model/{id}/actions/{name} into the Command Path contract.
type CommandEnqueuer interface {
	Enqueue(cmd command.Command) *command.ReplyHandle
}

// Projector runs the periodic model tick (spec §4.9): on each tick it visits
// every instance in the registry in turn, reads the referenced channel's
// published category maps, extracts each mapped data point, and mirrors it
// into model/{id}/data + model/{id}/status. One loop serves all instances;
// there is no separate task per instance.
type Projector struct {
	reg      Registry
	reader   *store.Reader
	sink     ValueSink
	logger   *slog.Logger
	now      func() time.Time
	interval time.Duration
}

// NewProjector builds a Projector over reg, reading channel state through
// reader and writing model state through sink.
func NewProjector(reg Registry, reader *store.Reader, sink ValueSink, syncIntervalMs int, logger *slog.Logger) *Projector {
	if syncIntervalMs <= 0 {
		syncIntervalMs = defaultSyncIntervalMs
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{
		reg:      reg,
		reader:   reader,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
		interval: time.Duration(syncIntervalMs) * time.Millisecond,
	}
}

// Run ticks every instance in reg until ctx is cancelled.
func (p *Projector) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for id, inst := range p.reg.Instances {
				if err := p.tickInstance(ctx, id, inst); err != nil {
					p.logger.Warn("model projection failed", "instance", id, "error", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Projector) tickInstance(ctx context.Context, id string, inst Instance) error {
	tmpl, ok := p.reg.Templates[inst.TemplateRef]
	if !ok {
		return fmt.Errorf("model: instance %s references unknown template %s", id, inst.TemplateRef)
	}

	pointIDsByCategory := make(map[string][]uint32)
	for name, pointID := range inst.Mapping.Data {
		def, ok := tmpl.DataPointDefs[name]
		if !ok {
			continue
		}
		cat := string(def.Category)
		pointIDsByCategory[cat] = append(pointIDsByCategory[cat], pointID)
	}

	data := make(map[string]wire.Value, len(inst.Mapping.Data))
	nameByPointID := make(map[uint32]string, len(inst.Mapping.Data))
	for name, pointID := range inst.Mapping.Data {
		nameByPointID[pointID] = name
	}

	for cat, pointIDs := range pointIDsByCategory {
		entries, err := p.reader.ReadCategory(ctx, inst.Mapping.ChannelID, cat, pointIDs)
		if err != nil {
			return err
		}
		for pointID, entry := range entries {
			name, ok := nameByPointID[pointID]
			if !ok {
				continue
			}
			if cat == "signal" || cat == "control" {
				data[name] = wire.BoolValue(entry.Bool)
			} else {
				data[name] = wire.FloatValue(entry.Float)
			}
		}
	}

	if err := p.sink.WriteModelData(ctx, id, data); err != nil {
		return err
	}
	return p.sink.WriteModelStatus(ctx, id, p.now().UnixMilli(), len(data) == len(inst.Mapping.Data))
}

// InvokeAction translates a model/{id}/actions/{name} request into the
// Command Path contract (spec §4.9's "reverse direction"): resolve the
// action's bound point_id via the template/mapping, then enqueue it on the
// channel's inbox through enqueuer.
func (p *Projector) InvokeAction(instanceID, actionName string, value wire.Value, enqueuer CommandEnqueuer) (*command.ReplyHandle, error) {
	inst, ok := p.reg.Instances[instanceID]
	if !ok {
		return nil, fmt.Errorf("model: instance %s not found", instanceID)
	}
	tmpl, ok := p.reg.Templates[inst.TemplateRef]
	if !ok {
		return nil, fmt.Errorf("model: instance %s references unknown template %s", instanceID, inst.TemplateRef)
	}
	if _, ok := tmpl.ActionDefs[actionName]; !ok {
		return nil, fmt.Errorf("model: action %s not declared in template %s", actionName, tmpl.ID)
	}
	pointID, ok := inst.Mapping.Action[actionName]
	if !ok {
		return nil, fmt.Errorf("model: action %s not mapped for instance %s", actionName, instanceID)
	}

	return enqueuer.Enqueue(command.Command{
		Category: actionCategory(value),
		PointID:  pointID,
		Value:    value,
		IssuedAt: p.now(),
	}), nil
}

// actionCategory infers the target category from the value's kind: boolean
// actions address Control points, numeric actions address Adjustment points.
func actionCategory(v wire.Value) pointmodel.Category {
	if v.Kind == wire.KindBool {
		return pointmodel.Control
	}
	return pointmodel.Adjustment
}
