package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// entry pairs a running (or stopped) Channel with the cancel func and
// wait-group slot for its task, so the supervisor can await its drain on
// stop without touching driver internals.
type entry struct {
	channel *Channel
	cancel  context.CancelFunc
	done    chan struct{}
}

// Supervisor owns the set of channel tasks (spec §4.1). It never reaches
// into a Channel's driver or inbox beyond the operations Channel itself
// exposes.
type Supervisor struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewSupervisor builds an empty Supervisor.
func NewSupervisor(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{logger: logger, entries: make(map[string]*entry)}
}

// Start spawns ch's task under a cancellable context derived from parent.
// Starting a channel id that is already running is a no-op error.
func (s *Supervisor) Start(parent context.Context, id string, ch *Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[id]; exists {
		return fmt.Errorf("channel: %s already started", id)
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.entries[id] = &entry{channel: ch, cancel: cancel, done: done}

	go func() {
		defer close(done)
		ch.Run(ctx)
	}()
	return nil
}

// Stop cancels id's task and awaits its drain. Stopping an unknown id is a
// no-op error.
func (s *Supervisor) Stop(id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("channel: %s not running", id)
	}
	e.cancel()
	<-e.done
	return nil
}

// Restart stops id if running, then starts it again with the same Channel
// instance (re-arming a Failed channel per spec §4.2).
func (s *Supervisor) Restart(parent context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("channel: %s not running", id)
	}
	if err := s.Stop(id); err != nil {
		return err
	}
	return s.Start(parent, id, e.channel)
}

// Status returns the named channel's current Status.
func (s *Supervisor) Status(id string) (Status, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return Status{}, fmt.Errorf("channel: %s not running", id)
	}
	return e.channel.Status(), nil
}

// List returns the ids of all channels the supervisor currently tracks.
func (s *Supervisor) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// StartAll starts every channel in defs, stopping at the first error.
func (s *Supervisor) StartAll(parent context.Context, defs map[string]*Channel) error {
	for id, ch := range defs {
		if err := s.Start(parent, id, ch); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every currently running channel.
func (s *Supervisor) StopAll() {
	for _, id := range s.List() {
		if err := s.Stop(id); err != nil {
			s.logger.Warn("stop failed", "channel", id, "error", err)
		}
	}
}
