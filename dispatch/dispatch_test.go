package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DKorablin/NamedPipesProxy/codec"
	"github.com/DKorablin/NamedPipesProxy/message"
)

type arith struct{}

func (a *arith) Add(x, y int) int { return x + y }

func (a *arith) Fail() error { return errors.New("boom") }

func (a *arith) Ping() {}

func (a *arith) AsyncAdd(x, y int) *ValueHandle {
	h := NewValueHandle()
	go h.Resolve(x+y, nil)
	return h
}

func (a *arith) AsyncFail() *VoidHandle {
	h := NewVoidHandle()
	go h.Resolve(errors.New("async boom"))
	return h
}

func newRequest(t *testing.T, typ string, args ...any) *message.PipeMessage {
	t.Helper()
	payload, err := codec.EncodeTuple(args...)
	if err != nil {
		t.Fatalf("EncodeTuple: %v", err)
	}
	req := &message.PipeMessage{Type: typ, Payload: payload}
	return req
}

func TestDispatchValueReturn(t *testing.T) {
	e, err := New(&arith{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := newRequest(t, "Add", 1, 2)
	reply, err := e.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	sum, err := codec.As[int](reply.Payload)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if sum != 3 {
		t.Errorf("Add(1,2) = %d, want 3", sum)
	}
}

func TestDispatchCaseInsensitiveMethodMatch(t *testing.T) {
	e, err := New(&arith{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := newRequest(t, "aDd", 2, 3)
	reply, err := e.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if reply.Type == message.TypeError {
		t.Fatalf("expected a match for case-insensitive method name, got Error reply")
	}
}

func TestDispatchVoidSuccessNoReply(t *testing.T) {
	e, err := New(&arith{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := newRequest(t, "Ping")
	reply, err := e.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if reply != nil {
		t.Fatalf("expected no reply for a successful void method, got %+v", reply)
	}
}

func TestDispatchErrorReturn(t *testing.T) {
	e, err := New(&arith{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := newRequest(t, "Fail")
	reply, err := e.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if reply.Type != message.TypeError {
		t.Fatalf("expected Error reply, got %q", reply.Type)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	e, err := New(&arith{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := newRequest(t, "DoesNotExist")
	reply, err := e.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if reply.Type != message.TypeError {
		t.Fatalf("expected Error reply for unknown method, got %q", reply.Type)
	}
	errPayload, err := codec.As[message.ErrorPayload](reply.Payload)
	if err != nil {
		t.Fatalf("decode ErrorPayload: %v", err)
	}
	if !strings.Contains(errPayload.Message, "DoesNotExist") {
		t.Fatalf("error message %q does not contain missing method name %q", errPayload.Message, "DoesNotExist")
	}
}

func TestDispatchAsyncValueHandle(t *testing.T) {
	e, err := New(&arith{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := newRequest(t, "AsyncAdd", 4, 5)
	reply, err := e.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	sum, err := codec.As[int](reply.Payload)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if sum != 9 {
		t.Errorf("AsyncAdd(4,5) = %d, want 9", sum)
	}
}

func TestDispatchAsyncVoidHandleFailure(t *testing.T) {
	e, err := New(&arith{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := newRequest(t, "AsyncFail")
	reply, err := e.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if reply.Type != message.TypeError {
		t.Fatalf("expected Error reply from failed async void handle, got %q", reply.Type)
	}
}

func TestDispatchArityMismatch(t *testing.T) {
	e, err := New(&arith{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := newRequest(t, "Add", 1)
	reply, err := e.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if reply.Type != message.TypeError {
		t.Fatalf("expected Error reply for arity mismatch, got %q", reply.Type)
	}
}
