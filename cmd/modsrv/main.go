// Command modsrv is the Model Service daemon: it loads the model file,
// builds a Registry of templates and instances, and runs one Projector tick
// loop mirroring channel state into model state until an interrupt signal.
// Adapted from the same cmd/modbus-poller/main.go convention as comsrv.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/comsrv/comsrv/internal/config"
	"github.com/comsrv/comsrv/internal/model"
	"github.com/comsrv/comsrv/internal/pointmodel"
	"github.com/comsrv/comsrv/internal/store"
)

func main() {
	var configLoc string
	flag.StringVar(&configLoc, "config", "modsrv.json", "path to model configuration")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	mf, err := config.LoadModelFile(configLoc)
	if err != nil {
		logger.Error("loading model file failed", "err", err)
		return
	}

	reg := buildRegistry(mf)

	redisStore := store.NewRedisStore(store.Config{Addr: mf.StoreURL})
	defer redisStore.Close()

	reader := store.NewReader(redisStore)
	sink := store.NewModelWriter(redisStore)
	projector := model.NewProjector(reg, reader, sink, mf.SyncIntervalMs, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger.Info("modsrv started", "instance_count", len(reg.Instances))
	projector.Run(ctx)
	logger.Info("modsrv stopped")
}

func buildRegistry(mf config.ModelFile) model.Registry {
	reg := model.Registry{
		Templates: make(map[string]model.Template, len(mf.Templates)),
		Instances: make(map[string]model.Instance, len(mf.Instances)),
	}

	for _, t := range mf.Templates {
		tmpl := model.Template{
			ID:            t.ID,
			DataPointDefs: make(map[string]model.DataPointDef, len(t.DataPointDefs)),
			ActionDefs:    make(map[string]model.ActionDef, len(t.ActionDefs)),
		}
		for name, d := range t.DataPointDefs {
			tmpl.DataPointDefs[name] = model.DataPointDef{
				Name:        name,
				BaseID:      d.BaseID,
				Unit:        d.Unit,
				Description: d.Description,
				Category:    pointmodel.Category(d.Category),
			}
		}
		for name, a := range t.ActionDefs {
			tmpl.ActionDefs[name] = model.ActionDef{Name: name, BaseID: a.BaseID, Description: a.Description}
		}
		reg.Templates[t.ID] = tmpl
	}

	for _, i := range mf.Instances {
		reg.Instances[i.ID] = model.Instance{
			ID:          i.ID,
			TemplateRef: i.TemplateRef,
			Mapping: model.Mapping{
				ChannelID: i.Mapping.ChannelID,
				Data:      i.Mapping.Data,
				Action:    i.Mapping.Action,
			},
			Metadata: i.Metadata,
		}
	}
	return reg
}
