// Package pending implements the pending-response table: the RPC
// demultiplexer that correlates an inbound reply's MessageId with the
// goroutine blocked waiting for it. This promotes the teacher's
// ClientTransport.pending sync.Map field (plus its closeAllPending
// cleanup) into its own package, since the spec treats it as a component
// in its own right shared by both unicast and broadcast call paths.
package pending

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DKorablin/NamedPipesProxy/message"
	"github.com/DKorablin/NamedPipesProxy/rpcerr"
)

// entry is one in-flight wait, keyed by MessageId.
type entry struct {
	result chan *message.PipeMessage
	timer  *time.Timer
	err    error
}

// Table demultiplexes replies by MessageId. One Table is shared by every
// caller on a Connection (or, on the registry side, by every worker
// connection that a broadcast or unicast fans out to).
type Table struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

// New returns an empty Table.
func New() *Table {
	return &Table{entries: make(map[uuid.UUID]*entry)}
}

// Register creates a pending wait for messageID with the given timeout.
// It must be called before the corresponding request is written to the
// connection — registering after sending races the reply arriving first,
// which would find no waiter and drop the reply.
//
// Registering twice for the same MessageId is a caller bug (MessageId is
// minted fresh per transmitted envelope) and returns ErrDuplicatePending.
func (t *Table) Register(messageID uuid.UUID, timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[messageID]; exists {
		return fmt.Errorf("pending: register %s: %w", messageID, rpcerr.ErrDuplicatePending)
	}

	e := &entry{result: make(chan *message.PipeMessage, 1)}
	e.timer = time.AfterFunc(timeout, func() {
		t.failWithTimeout(messageID)
	})
	t.entries[messageID] = e
	return nil
}

// Complete delivers a reply to the goroutine waiting on messageID. It is
// a no-op if no wait is registered (the wait may have already timed out
// or the caller may never have registered, e.g. a Void request), and
// reports whether a waiter was actually found — callers use this to tell
// a solicited reply apart from an unsolicited frame that needs routing
// elsewhere (e.g. a RequestReceived hook).
func (t *Table) Complete(messageID uuid.UUID, reply *message.PipeMessage) bool {
	t.mu.Lock()
	e, ok := t.entries[messageID]
	if ok {
		delete(t.entries, messageID)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	e.timer.Stop()
	e.result <- reply
	return true
}

// Fail delivers err to the goroutine waiting on messageID by synthesizing
// no reply message; Wait observes this as a returned error instead of a
// message. Used when a send fails after Register has already run.
func (t *Table) Fail(messageID uuid.UUID, err error) {
	t.mu.Lock()
	e, ok := t.entries[messageID]
	if ok {
		delete(t.entries, messageID)
	}
	t.mu.Unlock()

	if !ok {
		return
	}
	e.timer.Stop()
	e.err = err
	e.result <- nil
}

func (t *Table) failWithTimeout(messageID uuid.UUID) {
	t.mu.Lock()
	e, ok := t.entries[messageID]
	if ok {
		delete(t.entries, messageID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	e.err = fmt.Errorf("pending: %s: %w", messageID, rpcerr.ErrTimeout)
	e.result <- nil
}

// Wait blocks until messageID's reply arrives, its deadline fires, or ctx
// is cancelled, whichever happens first.
func (t *Table) Wait(ctx context.Context, messageID uuid.UUID) (*message.PipeMessage, error) {
	t.mu.Lock()
	e, ok := t.entries[messageID]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("pending: wait %s: no registered entry", messageID)
	}

	select {
	case reply := <-e.result:
		if reply == nil {
			return nil, e.err
		}
		return reply, nil
	case <-ctx.Done():
		t.cancel(messageID)
		return nil, fmt.Errorf("pending: wait %s cancelled: %w", messageID, rpcerr.ErrCancelled)
	}
}

func (t *Table) cancel(messageID uuid.UUID) {
	t.mu.Lock()
	e, ok := t.entries[messageID]
	if ok {
		delete(t.entries, messageID)
	}
	t.mu.Unlock()
	if ok {
		e.timer.Stop()
	}
}

// FailAll delivers err to every currently pending wait. Called when the
// underlying connection breaks, so no waiter blocks forever on a reply
// that can never arrive — the direct analogue of the teacher's
// closeAllPending.
func (t *Table) FailAll(err error) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[uuid.UUID]*entry)
	t.mu.Unlock()

	for _, e := range entries {
		e.timer.Stop()
		e.err = err
		e.result <- nil
	}
}
