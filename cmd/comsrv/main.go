// Command comsrv is the Communication Service daemon: it loads the service
// file, starts one channel task per configured channel under a supervisor,
// and serves until an interrupt signal drains every channel. Adapted from
// the reference library's cmd/modbus-poller/main.go (flag for -config,
// log/slog JSON handler, explicit error logging and early return instead of
// os.Exit panics).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/comsrv/comsrv/internal/channel"
	"github.com/comsrv/comsrv/internal/config"
	"github.com/comsrv/comsrv/internal/driverapi"
	"github.com/comsrv/comsrv/internal/mbtransport"
	"github.com/comsrv/comsrv/internal/modbusdriver"
	"github.com/comsrv/comsrv/internal/pointmodel"
	"github.com/comsrv/comsrv/internal/reconnect"
	"github.com/comsrv/comsrv/internal/store"
	"github.com/comsrv/comsrv/internal/virtualdriver"
)

func main() {
	var configLoc string
	flag.StringVar(&configLoc, "config", "comsrv.json", "path to service configuration")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	sf, err := config.LoadServiceFile(configLoc)
	if err != nil {
		logger.Error("loading service file failed", "err", err)
		return
	}

	redisStore := store.NewRedisStore(store.Config{Addr: sf.StoreURL})
	defer redisStore.Close()

	sup := channel.NewSupervisor(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	for _, def := range sf.Channels {
		model, err := pointmodel.Load(def.CSVBasePath)
		if err != nil {
			logger.Error("loading point model failed", "channel", def.ID, "err", err)
			continue
		}
		for _, w := range pointmodel.Diagnose(model).Warnings {
			logger.Warn(w, "channel", def.ID)
		}

		driver, err := buildDriver(def)
		if err != nil {
			logger.Error("building driver failed", "channel", def.ID, "err", err)
			continue
		}

		writer := store.NewWriter(redisStore, def.ID, reconnect.DefaultPolicy())
		ch := channel.New(channel.Config{
			ID:              def.ID,
			IntervalMs:      def.IntervalMs,
			TimeoutMs:       def.TimeoutMs,
			ReconnectPolicy: reconnect.DefaultPolicy(),
		}, driver, model, writer, logger.With("channel", def.ID))

		if err := sup.Start(ctx, def.ID, ch); err != nil {
			logger.Error("starting channel failed", "channel", def.ID, "err", err)
		}
	}

	logger.Info("comsrv started", "channel_count", len(sf.Channels))
	<-ctx.Done()
	logger.Info("comsrv stopping")
	sup.StopAll()
}

func buildDriver(def config.ChannelDef) (driverapi.Driver, error) {
	switch def.Protocol {
	case pointmodel.ProtocolModbusTCP:
		transport, err := mbtransport.New(mbtransport.Config{
			Kind:    mbtransport.KindTCP,
			Address: def.Parameters["address"],
		})
		if err != nil {
			return nil, err
		}
		return modbusdriver.New(transport, modbusdriver.Config{
			Protocol:  pointmodel.ProtocolModbusTCP,
			BatchSize: def.BatchSize,
			TimeoutMs: def.TimeoutMs,
		}), nil

	case pointmodel.ProtocolModbusRTU:
		baud, _ := strconv.Atoi(def.Parameters["baud_rate"])
		transport, err := mbtransport.New(mbtransport.Config{
			Kind:     mbtransport.KindSerial,
			Device:   def.Parameters["device"],
			BaudRate: baud,
			Parity:   def.Parameters["parity"],
		})
		if err != nil {
			return nil, err
		}
		return modbusdriver.New(transport, modbusdriver.Config{
			Protocol:  pointmodel.ProtocolModbusRTU,
			BatchSize: def.BatchSize,
			TimeoutMs: def.TimeoutMs,
		}), nil

	case pointmodel.ProtocolVirtual:
		return virtualdriver.New(virtualdriver.Config{UpdateIntervalMs: def.IntervalMs}), nil

	default:
		return nil, errUnknownProtocol(def.Protocol)
	}
}

type errUnknownProtocol pointmodel.ProtocolKind

func (e errUnknownProtocol) Error() string {
	return "comsrv: unknown protocol " + string(e)
}
