// Package channel implements the channel runtime (spec §4.2): one task per
// channel owning a single driver instance and a bounded command inbox,
// cycling through Disconnected -> Polling -> Recovering -> {Polling,
// Failed}. Grounded on the reference poller's job.Start retry-with-backoff
// loop, generalized from single-batch polling into the four-category,
// command-draining tick this spec describes.
package channel

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/comsrv/comsrv/internal/command"
	"github.com/comsrv/comsrv/internal/driverapi"
	"github.com/comsrv/comsrv/internal/pointmodel"
	"github.com/comsrv/comsrv/internal/reconnect"
	"github.com/comsrv/comsrv/internal/store"
)

const healthTickInterval = 60 * time.Second

// State is one of the four channel runtime states named in spec §4.2.
type State string

const (
	Disconnected State = "disconnected"
	Polling      State = "polling"
	Recovering   State = "recovering"
	Failed       State = "failed"
)

// Config configures one Channel's runtime behavior.
type Config struct {
	ID              string
	IntervalMs      int
	TimeoutMs       int
	MaxCommandsTick int
	ReconnectPolicy reconnect.Policy
	// Now allows tests to control wall-clock time. Defaults to time.Now.
	Now func() time.Time
}

// Status is the snapshot the supervisor's status(id) operation returns.
type Status struct {
	State         State
	LastErrorCode string
	Attempt       int
}

// Channel owns one driver instance, its point model, its command inbox and
// its store writer, and runs the state machine described in spec §4.2. The
// task is single-threaded: only the goroutine running Run ever mutates
// driver state, per the concurrency guarantee in spec §4.2/§5.
type Channel struct {
	cfg    Config
	driver driverapi.Driver
	model  pointmodel.Model
	inbox  *command.Inbox
	writer *store.Writer
	logger *slog.Logger
	now    func() time.Time

	mu            sync.Mutex
	state         State
	lastErrorCode string
	attempt       int

	stopped atomic.Bool
}

// New builds a Channel. driver, model, writer are owned exclusively by the
// returned Channel for its lifetime; the supervisor transfers ownership at
// start(id) and never touches them directly again (spec §4.1).
func New(cfg Config, driver driverapi.Driver, model pointmodel.Model, writer *store.Writer, logger *slog.Logger) *Channel {
	if cfg.MaxCommandsTick <= 0 {
		cfg.MaxCommandsTick = 16
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 2000
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		cfg:    cfg,
		driver: driver,
		model:  model,
		inbox:  command.NewInbox(cfg.MaxCommandsTick * 4),
		writer: writer,
		logger: logger,
		now:    now,
		state:  Disconnected,
	}
}

// Enqueue submits a control/adjustment write to this channel's command
// inbox. Safe to call from any goroutine; the Channel task itself drains it.
func (c *Channel) Enqueue(cmd command.Command) *command.ReplyHandle {
	return c.inbox.Enqueue(cmd)
}

// Status reports the current state for the supervisor's status(id).
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, LastErrorCode: c.lastErrorCode, Attempt: c.attempt}
}

func (c *Channel) setState(s State, errCode string) {
	c.mu.Lock()
	c.state = s
	c.lastErrorCode = errCode
	c.mu.Unlock()
	if c.writer != nil {
		if err := c.writer.WriteStatus(context.Background(), errCode, s == Polling); err != nil {
			c.logger.Error("status publish failed", "channel", c.cfg.ID, "error", err)
		}
	}
}

// Run drives the state machine until ctx is cancelled. Stopping never blocks
// on I/O beyond timeout_ms: the in-flight operation is given that long to
// finish, then a final disconnected status is published and Run returns.
func (c *Channel) Run(ctx context.Context) {
	defer func() {
		c.inbox.CancelAll()
		c.drainDisconnect()
	}()

	helper := reconnect.New(c.cfg.ReconnectPolicy, 0)

	for {
		if ctx.Err() != nil {
			return
		}

		switch c.currentState() {
		case Disconnected:
			c.setState(Disconnected, "")
			connCtx, cancel := driverapi.WithTimeout(ctx, c.cfg.TimeoutMs)
			err := c.driver.Connect(connCtx)
			cancel()
			if err != nil {
				c.logger.Warn("initial connect failed", "channel", c.cfg.ID, "error", err)
				c.setState(Recovering, classifyErrCode(err))
				continue
			}
			c.setState(Polling, "")

		case Polling:
			if err := c.pollLoop(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Error("poll loop failed", "channel", c.cfg.ID, "error", err)
				c.setState(Recovering, classifyErrCode(err))
			}

		case Recovering:
			attempt := 0
			err := helper.Run(ctx, func(attemptCtx context.Context) error {
				attempt++
				c.mu.Lock()
				c.attempt = attempt
				c.mu.Unlock()
				return c.driver.Connect(attemptCtx)
			}, func(n int, delay time.Duration, err error) {
				c.logger.Info("reconnect retry", "channel", c.cfg.ID, "attempt", n, "delay", delay, "error", err)
			})
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				c.logger.Error("reconnect exhausted", "channel", c.cfg.ID, "error", err)
				c.setState(Failed, classifyErrCode(err))
				return
			}
			c.mu.Lock()
			c.attempt = 0
			c.mu.Unlock()
			if c.writer != nil {
				if rerr := c.writer.ResendOnReconnect(ctx); rerr != nil {
					c.logger.Warn("store resend failed", "channel", c.cfg.ID, "error", rerr)
				}
			}
			c.setState(Polling, "")

		case Failed:
			return
		}
	}
}

func (c *Channel) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// drainDisconnect marks the channel disconnected in the store on exit,
// bounded by timeout_ms, as the final act of a stopped task.
func (c *Channel) drainDisconnect() {
	ctx, cancel := driverapi.WithTimeout(context.Background(), c.cfg.TimeoutMs)
	defer cancel()
	_ = c.driver.Disconnect(ctx)
	if c.writer != nil {
		_ = c.writer.WriteStatus(ctx, "", false)
	}
}

// pollLoop runs the Polling state's tick cadence until an error forces a
// transition to Recovering or ctx is cancelled. Catch-up is capped at one
// interval: a ticker (not an accumulating timer) bounds the work to at most
// one tick's worth of lag.
func (c *Channel) pollLoop(ctx context.Context) error {
	interval := time.Duration(c.cfg.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	healthTicker := time.NewTicker(healthTickInterval)
	defer healthTicker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.tick(ctx); err != nil {
				return err
			}
		case <-healthTicker.C:
			c.logger.Debug("channel health tick", "channel", c.cfg.ID, "state", c.currentState())
		case <-ctx.Done():
			return nil
		}
	}
}

// tick performs one Polling-state cycle: drain commands, poll measurement +
// signal, project into the store.
func (c *Channel) tick(ctx context.Context) error {
	dispatched := c.inbox.DrainTick(c.cfg.MaxCommandsTick)
	for _, d := range dispatched {
		c.dispatchCommand(ctx, d)
	}

	requests := []driverapi.ReadRequest{
		{Category: pointmodel.Measurement, Points: pointsOf(c.model.Tables.Measurement), Mappings: c.model.Mappings.Measurement},
		{Category: pointmodel.Signal, Points: pointsOf(c.model.Tables.Signal), Mappings: c.model.Mappings.Signal},
	}

	pollCtx, cancel := driverapi.WithTimeout(ctx, c.cfg.TimeoutMs)
	results, err := c.driver.PollBatch(pollCtx, requests)
	cancel()
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Err != nil {
			var derr *driverapi.Error
			if asDriverError(result.Err, &derr) && derr.Kind.IsConnectionLocal() {
				return result.Err
			}
			c.logger.Warn("category poll failed", "channel", c.cfg.ID, "category", result.Category, "error", result.Err)
			continue
		}
		if c.writer == nil {
			continue
		}
		if werr := c.writer.WriteCategory(ctx, result.Category, result.Samples); werr != nil {
			c.logger.Warn("store write failed", "channel", c.cfg.ID, "category", result.Category, "error", werr)
		}
	}
	return nil
}

func (c *Channel) dispatchCommand(ctx context.Context, d command.Dispatched) {
	point, mapping, ok := c.resolveWritable(d.Command.Category, d.Command.PointID)
	if !ok {
		command.Resolve(d, command.Result{Reply: command.Rejected, Reason: "unknown point"})
		return
	}

	writeCtx, cancel := driverapi.WithTimeout(ctx, c.cfg.TimeoutMs)
	defer cancel()
	result, err := c.driver.WritePoint(writeCtx, driverapi.WriteCommand{
		Category: d.Command.Category,
		Point:    point,
		Mapping:  mapping,
		Value:    d.Command.Value,
	})
	if err != nil {
		command.Resolve(d, command.Result{Reply: command.TransportError, Reason: err.Error()})
		return
	}
	if !result.Ok {
		reason := ""
		if result.Err != nil {
			reason = result.Err.Error()
		}
		command.Resolve(d, command.Result{Reply: command.TransportError, Reason: reason})
		return
	}
	command.Resolve(d, command.Result{Reply: command.Ok})
}

func (c *Channel) resolveWritable(category pointmodel.Category, pointID uint32) (pointmodel.Point, pointmodel.Mapping, bool) {
	table := c.model.Tables.Table(category)
	mappings := c.model.Mappings.Table(category)
	if table == nil || mappings == nil {
		return pointmodel.Point{}, pointmodel.Mapping{}, false
	}
	point, ok := table[pointID]
	if !ok {
		return pointmodel.Point{}, pointmodel.Mapping{}, false
	}
	mapping, ok := mappings[pointID]
	if !ok {
		return pointmodel.Point{}, pointmodel.Mapping{}, false
	}
	return point, mapping, true
}

func pointsOf(table pointmodel.PointTable) []pointmodel.Point {
	points := make([]pointmodel.Point, 0, len(table))
	for _, p := range table {
		points = append(points, p)
	}
	return points
}

func asDriverError(err error, target **driverapi.Error) bool {
	de, ok := err.(*driverapi.Error)
	if !ok {
		return false
	}
	*target = de
	return true
}

func classifyErrCode(err error) string {
	var de *driverapi.Error
	if asDriverError(err, &de) {
		return de.Kind.String()
	}
	return "Unknown"
}
