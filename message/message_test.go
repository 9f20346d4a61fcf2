package message

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

func TestNewRoundTrip(t *testing.T) {
	req, err := New("Add", []any{1, 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if req.RequestId == uuid.Nil || req.MessageId == uuid.Nil {
		t.Fatalf("New did not mint ids: %+v", req)
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded PipeMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.RequestId != req.RequestId || decoded.MessageId != req.MessageId {
		t.Fatalf("ids did not round-trip: got %+v, want %+v", decoded, req)
	}
}

func TestCopyForInheritsIds(t *testing.T) {
	req, err := New("Add", addArgs{A: 1, B: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	reply, err := req.CopyFor(TypeVoid, nil)
	if err != nil {
		t.Fatalf("CopyFor: %v", err)
	}
	if reply.RequestId != req.RequestId {
		t.Fatalf("CopyFor changed RequestId: got %v, want %v", reply.RequestId, req.RequestId)
	}
	if reply.MessageId != req.MessageId {
		t.Fatalf("CopyFor changed MessageId: got %v, want %v", reply.MessageId, req.MessageId)
	}
	if reply.Type != TypeVoid {
		t.Fatalf("CopyFor Type = %q, want %q", reply.Type, TypeVoid)
	}
}

func TestRelayKeepsRequestIdFreshMessageId(t *testing.T) {
	req, err := New("Add", addArgs{A: 1, B: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	relayed := req.Relay()
	if relayed.RequestId != req.RequestId {
		t.Fatalf("Relay changed RequestId: got %v, want %v", relayed.RequestId, req.RequestId)
	}
	if relayed.MessageId == req.MessageId {
		t.Fatalf("Relay reused MessageId %v, want a fresh one", relayed.MessageId)
	}
	if string(relayed.Payload) != string(req.Payload) {
		t.Fatalf("Relay changed Payload: got %s, want %s", relayed.Payload, req.Payload)
	}
}

func TestIsReservedType(t *testing.T) {
	for _, typ := range []string{TypeVoid, TypeNull, TypeError, TypeRegisterWorker} {
		if !IsReservedType(typ) {
			t.Errorf("IsReservedType(%q) = false, want true", typ)
		}
	}
	if IsReservedType("Add") {
		t.Errorf("IsReservedType(%q) = true, want false", "Add")
	}
}
