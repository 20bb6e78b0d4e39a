// table.go — SubscriberTable: accepted-connection registry and
// non-blocking broadcast with per-subscriber backpressure.
//
// Grounded on other_examples/Aidin1998-finalex__ultra_low_latency_broadcaster.go's
// non-blocking fan-out pattern (per-subscriber queue-depth check before
// enqueue), adapted from its goroutine-per-subscriber model to this
// package's single-threaded, event-loop-driven broadcast: there are no
// goroutines or channels here, only plain maps and a SendQueueDepth
// query mutated from one loop thread.
package subscriber

import (
	"sync/atomic"
	"time"

	"tickfeed/internal/netio"
)

const (
	SlowHigh     = 1 << 20 // 1 MiB kernel send-queue depth
	SlowLow      = SlowHigh / 2
	SendBufBytes = 4 << 20 // 4 MiB
)

// Entry is one accepted connection's state. At most one Entry exists
// per socket handle.
type Entry struct {
	Fd      int
	Peer    string
	SubAll  bool
	SubSet  map[uint16]struct{}
	IsSlow  bool

	BytesSent        uint64
	MessagesSent     uint64
	SlowTransitions  uint64
	ConnectedAt      time.Time
	LastActivityAt   time.Time
}

// Table maps socket handle to Entry.
type Table struct {
	entries map[int]*Entry
	// count mirrors len(entries). The map itself is only ever touched
	// from the owning event-loop thread, but the diagnostics endpoint
	// reads the subscriber count from its own HTTP handler goroutine, so
	// that count is exposed through this atomic instead of len(entries).
	count atomic.Int64
}

// New returns an empty subscriber table.
func New() *Table {
	return &Table{entries: make(map[int]*Entry)}
}

// Attach configures socket options on fd and inserts a new Entry
// subscribed to all symbols by default.
func Attach(t *Table, fd int, peer string) error {
	if err := netio.SetNodelay(fd); err != nil {
		return err
	}
	if err := netio.SetSendBuf(fd, SendBufBytes); err != nil {
		return err
	}
	now := time.Now()
	t.entries[fd] = &Entry{
		Fd:             fd,
		Peer:           peer,
		SubAll:         true,
		ConnectedAt:    now,
		LastActivityAt: now,
	}
	t.count.Add(1)
	return nil
}

// Detach closes fd exactly once (idempotent against a double call) and
// removes its Entry. reason is accepted for the caller's logging; it is
// not retained by the table.
func (t *Table) Detach(fd int, reason string) {
	if _, ok := t.entries[fd]; !ok {
		return
	}
	netio.Close(fd)
	delete(t.entries, fd)
	t.count.Add(-1)
}

// Get returns the entry for fd, or nil if none exists.
func (t *Table) Get(fd int) *Entry { return t.entries[fd] }

// Len returns the number of attached subscribers. Safe to call
// concurrently with the owning event loop's map mutations, unlike
// len(entries) directly.
func (t *Table) Len() int { return int(t.count.Load()) }

// ForEach iterates entries in unspecified order.
func (t *Table) ForEach(fn func(*Entry)) {
	for _, e := range t.entries {
		fn(e)
	}
}

// SetSubscription atomically (from the reactor's perspective — this
// runs only on the publisher's single loop thread) replaces e's
// subscription. A nil or empty ids means "all symbols."
func SetSubscription(e *Entry, ids []uint16) {
	if len(ids) == 0 {
		e.SubAll = true
		e.SubSet = nil
		return
	}
	e.SubAll = false
	set := make(map[uint16]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	e.SubSet = set
}

func (e *Entry) wants(symbolID uint16) bool {
	if e.SubAll {
		return true
	}
	_, ok := e.SubSet[symbolID]
	return ok
}

// DisconnectRequest signals that send_one observed a connection-resetting
// error; the caller (the publisher loop) should call Detach.
type DisconnectRequest struct{ Fd int }

func (DisconnectRequest) Error() string { return "subscriber: connection reset" }

// Broadcast sends bytes to every eligible, non-slow subscriber
// interested in symbolID, never blocking on any individual slow
// subscriber. It returns the number of subscribers the full payload
// was handed to the kernel for, and a slice of DisconnectRequests for
// sockets that must be detached by the caller.
func (t *Table) Broadcast(bytes []byte, symbolID uint16) (delivered int, disconnects []DisconnectRequest) {
	for _, e := range t.entries {
		if e.IsSlow {
			continue
		}
		if !e.wants(symbolID) {
			continue
		}
		ok, disconnect := sendOne(e, bytes)
		if disconnect {
			disconnects = append(disconnects, DisconnectRequest{Fd: e.Fd})
			continue
		}
		if ok {
			delivered++
		}
	}
	return delivered, disconnects
}

// BroadcastAll sends bytes to every subscriber regardless of slow state
// or subscription filter, used for heartbeats which must reach every
// connected peer. A subscriber already marked slow still gets one send
// attempt here (unlike Broadcast, which skips them outright) so it has
// a chance to recover, but the same non-blocking, never-wait semantics
// apply. It returns the number of subscribers the full payload was
// handed to the kernel for, and a slice of DisconnectRequests for
// sockets that must be detached by the caller.
func (t *Table) BroadcastAll(bytes []byte) (delivered int, disconnects []DisconnectRequest) {
	for _, e := range t.entries {
		ok, disconnect := sendOne(e, bytes)
		if disconnect {
			disconnects = append(disconnects, DisconnectRequest{Fd: e.Fd})
			continue
		}
		if ok {
			delivered++
		}
	}
	return delivered, disconnects
}

// sendOne queries the kernel send queue depth first, marks the
// subscriber slow if it already exceeds SlowHigh without attempting a
// send, else attempts one non-blocking send and updates IsSlow based on
// the outcome.
func sendOne(e *Entry, b []byte) (sent bool, disconnect bool) {
	depth, err := netio.SendQueueDepth(e.Fd)
	if err == nil && depth > SlowHigh {
		if !e.IsSlow {
			e.SlowTransitions++
		}
		e.IsSlow = true
		return false, false
	}

	n, werr := netio.Write(e.Fd, b)
	if werr != nil {
		if netio.IsTransient(werr) {
			if !e.IsSlow {
				e.SlowTransitions++
			}
			e.IsSlow = true
			return false, false
		}
		return false, true // connection-resetting error: disconnect request
	}
	if n < len(b) {
		if !e.IsSlow {
			e.SlowTransitions++
		}
		e.IsSlow = true
		return false, false
	}

	e.BytesSent += uint64(n)
	e.MessagesSent++
	e.LastActivityAt = time.Now()

	depthAfter, err := netio.SendQueueDepth(e.Fd)
	if err == nil && depthAfter < SlowLow {
		e.IsSlow = false
	}
	return true, false
}
