// Package rpcerr defines the sentinel error kinds shared by every layer of
// the RPC fabric, wrapped with context via fmt.Errorf's %w verb so callers
// can errors.Is/errors.As against a stable kind instead of matching
// strings.
package rpcerr

import "errors"

// Sentinel error kinds. Each corresponds to one of the abstract error
// kinds named in the propagation policy: local failures surface locally,
// remote failures surface as RemoteError.
var (
	// ErrInvalidFrame is returned for a malformed length prefix or a
	// frame whose declared length is not positive.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrUnexpectedEOF is returned when the stream closes after some but
	// not all of a frame's bytes have been consumed.
	ErrUnexpectedEOF = errors.New("unexpected end of stream")

	// ErrTransport covers socket/pipe read or write failures once a
	// connection is established.
	ErrTransport = errors.New("transport error")

	// ErrWorkerNotRegistered is returned when a send targets a worker id
	// with no live registration.
	ErrWorkerNotRegistered = errors.New("worker not registered")

	// ErrConnectionGone is returned when a worker is registered but its
	// bearing connection has already been torn down.
	ErrConnectionGone = errors.New("connection gone")

	// ErrDuplicatePending is returned by the pending-response table when
	// a second wait is registered for a MessageId already in flight.
	ErrDuplicatePending = errors.New("duplicate pending request")

	// ErrTimeout is returned when no matching response arrives before a
	// pending entry's deadline.
	ErrTimeout = errors.New("timed out waiting for response")

	// ErrArityMismatch is returned when a payload array's length does not
	// match a method's declared parameter count.
	ErrArityMismatch = errors.New("argument arity mismatch")

	// ErrPayloadMalformed is returned when a payload fails to deserialize
	// against its declared type.
	ErrPayloadMalformed = errors.New("payload malformed")

	// ErrHandlerNotFound names the case where no method on a dispatch
	// handler matches a request's Type. dispatch.Engine does not return
	// this value; it answers such a request with an Error reply whose
	// message is "method not found: <Type>".
	ErrHandlerNotFound = errors.New("handler method not found")

	// ErrCancelled wraps context cancellation surfaced through the RPC
	// layer.
	ErrCancelled = errors.New("cancelled")

	// ErrNoWorkers is returned by a broadcast call issued with zero
	// connected workers.
	ErrNoWorkers = errors.New("no workers connected")

	// ErrRateLimited names a call rejected by RateLimitMiddleware because
	// no tokens were left in the bucket. The middleware does not return
	// this value; its text is carried in the Error reply it sends back.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// RemoteError is the caller-side materialization of an Error reply
// envelope. It carries only the remote handler's message, never a stack
// trace, matching the propagation policy: remote failures never leak
// transport-level detail to the caller.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote error: " + e.Message
}
