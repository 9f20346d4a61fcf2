package rpcproxy

import (
	"context"
	"errors"
	"testing"

	"github.com/DKorablin/NamedPipesProxy/message"
	"github.com/DKorablin/NamedPipesProxy/rpcerr"
)

// fakeSender is a test double for Sender that replies synchronously from
// a caller-supplied function, without any real connection or pending
// table.
type fakeSender struct {
	reply func(req *message.PipeMessage) (*message.PipeMessage, error)
	// broadcastReplies, if set, overrides reply for Broadcast fan-out: one
	// entry per simulated worker.
	broadcastReplies []func(req *message.PipeMessage) (*message.PipeMessage, error)
	// workerIDs backs WorkerIDs, for selector-driven UnicastCaller tests.
	workerIDs []string
	// sawWorkerID records the workerID passed to the most recent
	// SendToWorkerAsync call, for selector-resolution assertions.
	sawWorkerID string
}

func (f *fakeSender) SendToWorkerAsync(ctx context.Context, workerID string, req *message.PipeMessage) (func(context.Context) (*message.PipeMessage, error), error) {
	f.sawWorkerID = workerID
	return func(context.Context) (*message.PipeMessage, error) {
		return f.reply(req)
	}, nil
}

func (f *fakeSender) WorkerIDs() []string {
	return f.workerIDs
}

func (f *fakeSender) Broadcast(ctx context.Context, req *message.PipeMessage) ([]func(context.Context) (*message.PipeMessage, error), error) {
	if len(f.broadcastReplies) == 0 {
		return nil, rpcerr.ErrNoWorkers
	}
	waits := make([]func(context.Context) (*message.PipeMessage, error), len(f.broadcastReplies))
	for i, replyFn := range f.broadcastReplies {
		replyFn := replyFn
		waits[i] = func(context.Context) (*message.PipeMessage, error) {
			return replyFn(req)
		}
	}
	return waits, nil
}

func valueReply(value any) func(req *message.PipeMessage) (*message.PipeMessage, error) {
	return func(req *message.PipeMessage) (*message.PipeMessage, error) {
		return req.CopyFor(req.Type, value)
	}
}

func nullReply() func(req *message.PipeMessage) (*message.PipeMessage, error) {
	return func(req *message.PipeMessage) (*message.PipeMessage, error) {
		return req.CopyFor(message.TypeNull, nil)
	}
}

func errorReply(msg string) func(req *message.PipeMessage) (*message.PipeMessage, error) {
	return func(req *message.PipeMessage) (*message.PipeMessage, error) {
		return req.CopyFor(message.TypeError, message.ErrorPayload{Message: msg})
	}
}

func TestUnicastCallerCallSuccess(t *testing.T) {
	sender := &fakeSender{reply: valueReply(42)}
	caller := NewUnicastCaller(sender, "worker-1")

	reply, err := caller.Call(context.Background(), "GetAnswer")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	got, err := Decode[int](reply)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != 42 {
		t.Errorf("Decode = %d, want 42", got)
	}
}

func TestUnicastCallerCallRemoteError(t *testing.T) {
	sender := &fakeSender{reply: errorReply("boom")}
	caller := NewUnicastCaller(sender, "worker-1")

	_, err := caller.Call(context.Background(), "Fail")
	var remoteErr *rpcerr.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("Call error = %v, want *rpcerr.RemoteError", err)
	}
	if remoteErr.Message != "boom" {
		t.Errorf("RemoteError.Message = %q, want %q", remoteErr.Message, "boom")
	}
}

func TestUnicastCallerCallAsyncAwait(t *testing.T) {
	sender := &fakeSender{reply: valueReply("ready")}
	caller := NewUnicastCaller(sender, "worker-1")

	result, err := caller.CallAsync(context.Background(), "Check")
	if err != nil {
		t.Fatalf("CallAsync: %v", err)
	}
	value, err := result.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if value != "ready" {
		t.Errorf("Await value = %v, want %q", value, "ready")
	}
}

func TestUnicastCallerWithSelectorResolvesPerCall(t *testing.T) {
	sender := &fakeSender{reply: valueReply(1), workerIDs: []string{"w1", "w2", "w3"}}
	caller := NewUnicastCallerWithSelector(sender, &RoundRobinSelector{})

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		if _, err := caller.Call(context.Background(), "Ping"); err != nil {
			t.Fatalf("Call: %v", err)
		}
		seen[sender.sawWorkerID] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected selector to route across all 3 workers over 3 calls, saw %v", seen)
	}
}

func TestUnicastCallerWithSelectorNoWorkersErrors(t *testing.T) {
	sender := &fakeSender{reply: valueReply(1)}
	caller := NewUnicastCallerWithSelector(sender, &RoundRobinSelector{})

	if _, err := caller.Call(context.Background(), "Ping"); err == nil {
		t.Fatal("expected error selecting a worker with none connected")
	}
}

func TestUnicastCallerWithAffinitySelectorIsSticky(t *testing.T) {
	sender := &fakeSender{reply: valueReply(1), workerIDs: []string{"w1", "w2", "w3", "w4"}}
	selector := NewAffinitySelector(NewConsistentHashSelector(), "session-42")
	caller := NewUnicastCallerWithSelector(sender, selector)

	if _, err := caller.Call(context.Background(), "Ping"); err != nil {
		t.Fatalf("Call: %v", err)
	}
	first := sender.sawWorkerID

	for i := 0; i < 5; i++ {
		if _, err := caller.Call(context.Background(), "Ping"); err != nil {
			t.Fatalf("Call: %v", err)
		}
		if sender.sawWorkerID != first {
			t.Errorf("affinity selector routed to %q then %q for the same key", first, sender.sawWorkerID)
		}
	}
}

func TestBroadcastFirstUsefulWins(t *testing.T) {
	sender := &fakeSender{broadcastReplies: []func(*message.PipeMessage) (*message.PipeMessage, error){
		nullReply(),
		valueReply(7),
		nullReply(),
	}}
	caller := NewBroadcastCaller(sender)

	reply, err := caller.Call(context.Background(), "Query")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	got, err := Decode[int](reply)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != 7 {
		t.Errorf("Decode = %d, want 7", got)
	}
}

func TestBroadcastAllNullReturnsNil(t *testing.T) {
	sender := &fakeSender{broadcastReplies: []func(*message.PipeMessage) (*message.PipeMessage, error){
		nullReply(),
		nullReply(),
	}}
	caller := NewBroadcastCaller(sender)

	reply, err := caller.Call(context.Background(), "Query")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if reply != nil {
		t.Errorf("expected nil reply when every worker replies Null, got %+v", reply)
	}
}

func TestBroadcastErrorAbortsRace(t *testing.T) {
	sender := &fakeSender{broadcastReplies: []func(*message.PipeMessage) (*message.PipeMessage, error){
		errorReply("failed"),
		nullReply(),
	}}
	caller := NewBroadcastCaller(sender)

	_, err := caller.Call(context.Background(), "Query")
	var remoteErr *rpcerr.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("Call error = %v, want *rpcerr.RemoteError", err)
	}
}

func TestBroadcastNoWorkers(t *testing.T) {
	sender := &fakeSender{}
	caller := NewBroadcastCaller(sender)

	_, err := caller.Call(context.Background(), "Query")
	if !errors.Is(err, rpcerr.ErrNoWorkers) {
		t.Fatalf("Call error = %v, want ErrNoWorkers", err)
	}
}
