// Package rpcproxy provides the generated-proxy layer: given a
// registryserver.Server to send through, it exposes a unicast caller (one
// target worker, synchronous request/reply) and a broadcast caller (every
// connected worker, "first useful response wins" race semantics).
//
// Grounded on client.Client.Call's shape (build request → send → wait on
// a channel → unwrap error → unmarshal reply), generalized from "one
// interface method named by a runtime string, resolved via service
// discovery + load balancing" to "one generated method per application
// interface method, resolved via the worker registry directly".
package rpcproxy

import (
	"context"
	"fmt"

	"github.com/DKorablin/NamedPipesProxy/codec"
	"github.com/DKorablin/NamedPipesProxy/message"
	"github.com/DKorablin/NamedPipesProxy/rpcerr"
)

// Sender is the subset of registryserver.Server a proxy needs. Declaring
// it as an interface here (rather than importing registryserver
// directly) keeps rpcproxy usable against a test double.
type Sender interface {
	SendToWorkerAsync(ctx context.Context, workerID string, req *message.PipeMessage) (func(context.Context) (*message.PipeMessage, error), error)
	Broadcast(ctx context.Context, req *message.PipeMessage) ([]func(context.Context) (*message.PipeMessage, error), error)
	WorkerIDs() []string
}

// UnicastCaller issues calls against one specific worker id, or, with a
// WorkerSelector attached, against a worker resolved dynamically from the
// currently connected set on every call.
type UnicastCaller struct {
	sender   Sender
	workerID string
	selector WorkerSelector
}

// NewUnicastCaller targets a fixed worker id.
func NewUnicastCaller(sender Sender, workerID string) *UnicastCaller {
	return &UnicastCaller{sender: sender, workerID: workerID}
}

// NewUnicastCallerWithSelector targets a worker resolved dynamically on
// every call: sel runs over sender.WorkerIDs(), the currently connected
// set, instead of one fixed id. Use this when several interchangeable
// workers can serve the same calls (e.g. sharded cache workers) and the
// caller wants a load-balancing or affinity policy instead of a hardcoded
// target.
func NewUnicastCallerWithSelector(sender Sender, sel WorkerSelector) *UnicastCaller {
	return &UnicastCaller{sender: sender, selector: sel}
}

// resolveWorkerID returns the fixed worker id this caller was built with,
// or, if a selector was attached instead, runs it over the currently
// connected worker set.
func (c *UnicastCaller) resolveWorkerID() (string, error) {
	if c.selector == nil {
		return c.workerID, nil
	}
	ids := c.sender.WorkerIDs()
	id, err := c.selector.Select(ids)
	if err != nil {
		return "", fmt.Errorf("rpcproxy: select worker: %w", err)
	}
	return id, nil
}

// Call sends method with args to the target worker and blocks for the
// reply.
func (c *UnicastCaller) Call(ctx context.Context, method string, args ...any) (*message.PipeMessage, error) {
	workerID, err := c.resolveWorkerID()
	if err != nil {
		return nil, err
	}

	payload, err := codec.EncodeTuple(args...)
	if err != nil {
		return nil, fmt.Errorf("rpcproxy: encode args: %w", err)
	}
	req, err := message.New(method, nil)
	if err != nil {
		return nil, fmt.Errorf("rpcproxy: build request: %w", err)
	}
	req.Payload = payload

	wait, err := c.sender.SendToWorkerAsync(ctx, workerID, req)
	if err != nil {
		return nil, err
	}
	reply, err := wait(ctx)
	if err != nil {
		return nil, err
	}
	return unwrap(reply)
}

// AsyncResult is the proxy-side future for an outstanding call: it
// mirrors the dispatch-side VoidHandle/ValueHandle shapes on the calling
// end of the wire.
type AsyncResult[V any] struct {
	wait func(context.Context) (*message.PipeMessage, error)
}

// Await blocks for the reply and decodes its payload into V.
func (r *AsyncResult[V]) Await(ctx context.Context) (V, error) {
	var zero V
	reply, err := r.wait(ctx)
	if err != nil {
		return zero, err
	}
	unwrapped, err := unwrap(reply)
	if err != nil {
		return zero, err
	}
	return Decode[V](unwrapped)
}

// CallAsync sends method without blocking, returning a future the caller
// can Await on its own schedule.
func (c *UnicastCaller) CallAsync(ctx context.Context, method string, args ...any) (*AsyncResult[any], error) {
	workerID, err := c.resolveWorkerID()
	if err != nil {
		return nil, err
	}

	payload, err := codec.EncodeTuple(args...)
	if err != nil {
		return nil, fmt.Errorf("rpcproxy: encode args: %w", err)
	}
	req, err := message.New(method, nil)
	if err != nil {
		return nil, fmt.Errorf("rpcproxy: build request: %w", err)
	}
	req.Payload = payload

	wait, err := c.sender.SendToWorkerAsync(ctx, workerID, req)
	if err != nil {
		return nil, err
	}
	return &AsyncResult[any]{wait: wait}, nil
}

// Decode extracts a typed value V from a non-error, non-null reply
// envelope.
func Decode[V any](reply *message.PipeMessage) (V, error) {
	return codec.As[V](reply.Payload)
}

// DecodeVoid checks that a completed call carried no error; it is the
// caller-side counterpart of a handler method with no return value.
func DecodeVoid(reply *message.PipeMessage) error {
	_, err := unwrap(reply)
	return err
}

// unwrap turns an Error-typed reply into a *rpcerr.RemoteError and passes
// everything else through unchanged.
func unwrap(reply *message.PipeMessage) (*message.PipeMessage, error) {
	if reply.Type == message.TypeError {
		errPayload, _ := codec.As[message.ErrorPayload](reply.Payload)
		return nil, &rpcerr.RemoteError{Message: errPayload.Message}
	}
	return reply, nil
}
