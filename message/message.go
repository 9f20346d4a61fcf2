// Package message defines PipeMessage, the envelope exchanged between
// registry and worker processes. It is the RPC "envelope" — every request
// and response on the wire is one PipeMessage, carried one per wireformat
// frame.
//
// This generalizes the teacher's message.RPCMessage (ServiceMethod, Error,
// Payload) into the spec's correlation model: RequestId/MessageId replace
// the single ServiceMethod-keyed correlation, and Type carries either a
// method name (application traffic) or one of the reserved enumerants
// below (protocol traffic).
package message

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Reserved Type values. Application traffic uses the remote method name
// as Type instead.
const (
	TypeVoid           = "Void"
	TypeNull           = "Null"
	TypeError          = "Error"
	TypeRegisterWorker = "RegisterWorker"
)

// PipeMessage is the on-wire envelope for one RPC request or response.
//
// RequestId is the stable logical identifier for an end-to-end request; it
// survives relaying across a broadcast fan-out. MessageId identifies one
// transmitted envelope and is the correlation key the pending-response
// table demultiplexes on — a response carries the same MessageId (and the
// same RequestId) as the envelope it answers. Relaying keeps the RequestId
// but mints a fresh MessageId, so a reply to a relayed hop shares its
// RequestId with the original request but not its MessageId.
type PipeMessage struct {
	RequestId uuid.UUID `json:"RequestId"`
	MessageId uuid.UUID `json:"MessageId"`
	Type      string    `json:"Type"`
	Payload   []byte    `json:"Payload,omitempty"`
}

// ErrorPayload is the payload shape of a Type=Error reply.
type ErrorPayload struct {
	Message string `json:"Message"`
}

// RegisterWorkerPayload is the payload shape of the one legal first frame
// a worker sends on a newly established connection.
type RegisterWorkerPayload struct {
	WorkerId string `json:"WorkerId"`
	PipeName string `json:"PipeName"`
}

// New builds a fresh envelope: a new RequestId, a new MessageId, and value
// serialized as the payload. Use this for the first hop of a logical
// request.
func New(msgType string, value any) (*PipeMessage, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("message: encode payload for %q: %w", msgType, err)
	}
	return &PipeMessage{
		RequestId: uuid.New(),
		MessageId: uuid.New(),
		Type:      msgType,
		Payload:   payload,
	}, nil
}

// CopyFor builds a reply envelope that inherits both RequestId and
// MessageId from the request it answers — this is what lets the
// pending-response table correlate a reply by MessageId with the wait
// that is blocked on it.
func (m *PipeMessage) CopyFor(replyType string, value any) (*PipeMessage, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("message: encode payload for %q: %w", replyType, err)
	}
	return &PipeMessage{
		RequestId: m.RequestId,
		MessageId: m.MessageId,
		Type:      replyType,
		Payload:   payload,
	}, nil
}

// Relay produces an envelope for forwarding this request one more hop: it
// carries the original RequestId and Payload (and Type) but allocates a
// fresh MessageId, so the reply to this particular forwarded hop can be
// correlated independently of any other hop forwarding the same logical
// request. Used by the registry's broadcast fan-out, where the same
// logical request is relayed to every connected worker.
func (m *PipeMessage) Relay() *PipeMessage {
	return &PipeMessage{
		RequestId: m.RequestId,
		MessageId: uuid.New(),
		Type:      m.Type,
		Payload:   m.Payload,
	}
}

// IsReservedType reports whether t is one of the protocol-reserved Type
// values rather than an application method name.
func IsReservedType(t string) bool {
	switch t {
	case TypeVoid, TypeNull, TypeError, TypeRegisterWorker:
		return true
	default:
		return false
	}
}
