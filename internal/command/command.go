// Package command implements the bounded per-channel command inbox: newest-
// wins-per-point collapse, tick-bounded dispatch, and a reply handle that
// resolves to exactly one of Ok/Superseded/Rejected/TransportError/Cancelled.
package command

import (
	"sync"
	"time"

	"github.com/comsrv/comsrv/internal/pointmodel"
	"github.com/comsrv/comsrv/internal/wire"
)

// Reply is the closed set of outcomes a ReplyHandle can resolve to.
type Reply string

const (
	Ok             Reply = "ok"
	Superseded     Reply = "superseded"
	Rejected       Reply = "rejected"
	TransportError Reply = "transport_error"
	Cancelled      Reply = "cancelled"
)

// Result is the final disposition of one enqueued command.
type Result struct {
	Reply  Reply
	Reason string
}

// ReplyHandle is returned to the caller at enqueue time; it resolves exactly
// once, whenever the command is superseded, dispatched-and-answered, or the
// channel stops.
type ReplyHandle struct {
	ch chan Result
}

func newReplyHandle() *ReplyHandle {
	return &ReplyHandle{ch: make(chan Result, 1)}
}

// Chan exposes the one-shot result channel.
func (h *ReplyHandle) Chan() <-chan Result { return h.ch }

func (h *ReplyHandle) resolve(r Result) {
	select {
	case h.ch <- r:
	default:
	}
}

// Command is one inbound control/adjustment write.
type Command struct {
	Category pointmodel.Category
	PointID  uint32
	Value    wire.Value
	IssuedAt time.Time
}

type key struct {
	category pointmodel.Category
	pointID  uint32
}

type pending struct {
	cmd    Command
	handle *ReplyHandle
}

// Inbox is one channel's bounded command queue. Capacity bounds the number
// of distinct (category, point_id) keys outstanding at once; a repeat
// command for a key already queued replaces it in place (the superseded one
// resolves immediately) rather than consuming another slot.
type Inbox struct {
	mu       sync.Mutex
	capacity int
	order    []key
	byKey    map[key]*pending
	closed   bool
}

// NewInbox builds an Inbox with the given capacity (spec default ~64).
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = 64
	}
	return &Inbox{
		capacity: capacity,
		byKey:    make(map[key]*pending),
	}
}

// Enqueue adds cmd to the inbox, returning a handle for its eventual
// outcome. A prior pending command for the same (category, point_id) is
// superseded immediately. A new key arriving when the inbox is already at
// capacity is rejected outright.
func (ib *Inbox) Enqueue(cmd Command) *ReplyHandle {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	handle := newReplyHandle()
	if ib.closed {
		handle.resolve(Result{Reply: Cancelled, Reason: "channel stopped"})
		return handle
	}

	k := key{category: cmd.Category, pointID: cmd.PointID}
	if existing, ok := ib.byKey[k]; ok {
		existing.handle.resolve(Result{Reply: Superseded, Reason: "newer command for same point queued"})
		ib.byKey[k] = &pending{cmd: cmd, handle: handle}
		return handle
	}

	if len(ib.order) >= ib.capacity {
		handle.resolve(Result{Reply: Rejected, Reason: "command inbox full"})
		return handle
	}

	ib.order = append(ib.order, k)
	ib.byKey[k] = &pending{cmd: cmd, handle: handle}
	return handle
}

// Dispatched pairs a dequeued command with the handle its outcome must be
// reported to.
type Dispatched struct {
	Command Command
	Handle  *ReplyHandle
}

// DrainTick dequeues up to maxPerTick commands in enqueue order. The caller
// (the channel runtime) is responsible for calling handle resolution
// (Resolve) once the driver has attempted each write.
func (ib *Inbox) DrainTick(maxPerTick int) []Dispatched {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	n := maxPerTick
	if n > len(ib.order) {
		n = len(ib.order)
	}
	out := make([]Dispatched, 0, n)
	for i := 0; i < n; i++ {
		k := ib.order[i]
		p := ib.byKey[k]
		delete(ib.byKey, k)
		out = append(out, Dispatched{Command: p.cmd, Handle: p.handle})
	}
	ib.order = ib.order[n:]
	return out
}

// Resolve reports a dispatched command's outcome to its caller.
func Resolve(d Dispatched, result Result) {
	d.Handle.resolve(result)
}

// CancelAll resolves every still-queued command as Cancelled and refuses
// further enqueues. Called once, on channel stop.
func (ib *Inbox) CancelAll() {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	ib.closed = true
	for _, k := range ib.order {
		if p, ok := ib.byKey[k]; ok {
			p.handle.resolve(Result{Reply: Cancelled, Reason: "channel stopped"})
		}
	}
	ib.order = nil
	ib.byKey = make(map[key]*pending)
}

// Len reports the number of distinct points currently queued.
func (ib *Inbox) Len() int {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return len(ib.order)
}
