// Package dispatch implements the reflective dispatch engine: it scans a
// handler struct for exported methods, matches an inbound request's Type
// against a method name case-insensitively, decodes the request's
// payload into the method's positional argument tuple, invokes it, and
// shapes the reply according to the method's declared return.
//
// Grounded on server/service.go's NewService/RegisterMethods/Call trio,
// generalized three ways the teacher's fixed (*Args, *Reply) error
// signature does not need to: n-ary positional arguments instead of
// exactly one *Args parameter, case-insensitive method name matching
// (spec requirement, the teacher matches names exactly), and a
// classified return shape (void / value / async handle) instead of a
// hardcoded single error return.
package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/DKorablin/NamedPipesProxy/codec"
	"github.com/DKorablin/NamedPipesProxy/message"
)

// returnShape classifies a registered method's declared return, decided
// once at registration time so every invocation shapes its reply the
// same way without re-inspecting types.
type returnShape int

const (
	shapeVoid returnShape = iota
	shapeValue
	shapeVoidHandle
	shapeValueHandle
)

var (
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
	ctxType         = reflect.TypeOf((*context.Context)(nil)).Elem()
	voidHandleType  = reflect.TypeOf((*VoidHandle)(nil))
	valueHandleType = reflect.TypeOf((*ValueHandle)(nil))
)

// VoidHandle is returned by a handler method that does asynchronous work
// with no result value. Go has no native async/await; this and
// ValueHandle stand in for the spec's "asynchronous handle" return shape.
type VoidHandle struct {
	done chan error
}

// NewVoidHandle returns a VoidHandle a handler can resolve with Resolve.
func NewVoidHandle() *VoidHandle {
	return &VoidHandle{done: make(chan error, 1)}
}

// Resolve completes the handle; err nil means success.
func (h *VoidHandle) Resolve(err error) { h.done <- err }

// Await blocks until the handle resolves or ctx is cancelled.
func (h *VoidHandle) Await(ctx context.Context) error {
	select {
	case err := <-h.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ValueHandle is returned by a handler method that does asynchronous work
// and eventually produces a value.
type ValueHandle struct {
	done chan valueResult
}

type valueResult struct {
	value any
	err   error
}

// NewValueHandle returns a ValueHandle a handler can resolve with Resolve.
func NewValueHandle() *ValueHandle {
	return &ValueHandle{done: make(chan valueResult, 1)}
}

// Resolve completes the handle with a value, or an error on failure.
func (h *ValueHandle) Resolve(value any, err error) {
	h.done <- valueResult{value: value, err: err}
}

// Await blocks until the handle resolves or ctx is cancelled.
func (h *ValueHandle) Await(ctx context.Context) (any, error) {
	select {
	case r := <-h.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// methodInfo is the reflection metadata for one registered method.
type methodInfo struct {
	fn       reflect.Value
	argTypes []reflect.Type // excluding a leading context.Context, if present
	takesCtx bool
	shape    returnShape
}

// Engine dispatches inbound application requests to a handler struct's
// exported methods.
type Engine struct {
	rcvr    reflect.Value
	methods map[string]*methodInfo // keyed by lowercased method name
}

// New builds an Engine over handler, a pointer to a struct whose exported
// methods become the dispatchable RPC surface.
func New(handler any) (*Engine, error) {
	typ := reflect.TypeOf(handler)
	if typ == nil || typ.Kind() != reflect.Ptr || typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("dispatch: handler must be a pointer to a struct, got %v", typ)
	}

	e := &Engine{
		rcvr:    reflect.ValueOf(handler),
		methods: make(map[string]*methodInfo),
	}

	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		info, ok := classify(m)
		if !ok {
			continue
		}
		e.methods[strings.ToLower(m.Name)] = info
	}
	return e, nil
}

func classify(m reflect.Method) (*methodInfo, bool) {
	mt := m.Func.Type()
	// mt.In(0) is the receiver.
	in := 1
	takesCtx := false
	if mt.NumIn() > in && mt.In(in) == ctxType {
		takesCtx = true
		in++
	}

	argTypes := make([]reflect.Type, 0, mt.NumIn()-in)
	for ; in < mt.NumIn(); in++ {
		argTypes = append(argTypes, mt.In(in))
	}

	var shape returnShape
	switch mt.NumOut() {
	case 0:
		shape = shapeVoid
	case 1:
		switch mt.Out(0) {
		case voidHandleType:
			shape = shapeVoidHandle
		case valueHandleType:
			shape = shapeValueHandle
		case errorType:
			shape = shapeVoid
		default:
			shape = shapeValue
		}
	case 2:
		if mt.Out(1) != errorType {
			return nil, false
		}
		shape = shapeValue
	default:
		return nil, false
	}

	return &methodInfo{fn: m.Func, argTypes: argTypes, takesCtx: takesCtx, shape: shape}, true
}

// Dispatch looks up req.Type case-insensitively, decodes req.Payload into
// the matched method's argument tuple, invokes it, and returns the reply
// envelope to send back — or nil if the method's shape is void and
// returned no error (per the "void success sends no reply" rule).
func (e *Engine) Dispatch(ctx context.Context, req *message.PipeMessage) (*message.PipeMessage, error) {
	info, ok := e.methods[strings.ToLower(req.Type)]
	if !ok {
		return req.CopyFor(message.TypeError, message.ErrorPayload{
			Message: fmt.Sprintf("method not found: %s", req.Type),
		})
	}

	args := make([]any, len(info.argTypes))
	ptrs := make([]any, len(info.argTypes))
	for i, t := range info.argTypes {
		v := reflect.New(t)
		args[i] = v.Interface()
		ptrs[i] = v.Interface()
	}
	if len(ptrs) > 0 {
		if err := codec.AsTuple(req.Payload, ptrs); err != nil {
			return req.CopyFor(message.TypeError, message.ErrorPayload{Message: err.Error()})
		}
	}

	callArgs := make([]reflect.Value, 0, len(args)+2)
	callArgs = append(callArgs, e.rcvr)
	if info.takesCtx {
		callArgs = append(callArgs, reflect.ValueOf(ctx))
	}
	for _, a := range args {
		callArgs = append(callArgs, reflect.ValueOf(a).Elem())
	}

	results := info.fn.Call(callArgs)
	return e.shapeReply(ctx, req, info, results)
}

func (e *Engine) shapeReply(ctx context.Context, req *message.PipeMessage, info *methodInfo, results []reflect.Value) (*message.PipeMessage, error) {
	switch info.shape {
	case shapeVoid:
		if len(results) == 1 {
			if err, _ := results[0].Interface().(error); err != nil {
				return req.CopyFor(message.TypeError, message.ErrorPayload{Message: err.Error()})
			}
		}
		return nil, nil

	case shapeValue:
		var value any
		if len(results) == 2 {
			if err, _ := results[1].Interface().(error); err != nil {
				return req.CopyFor(message.TypeError, message.ErrorPayload{Message: err.Error()})
			}
			value = results[0].Interface()
		} else {
			value = results[0].Interface()
		}
		if isNilValue(value) {
			return req.CopyFor(message.TypeNull, nil)
		}
		return req.CopyFor(req.Type, value)

	case shapeVoidHandle:
		handle := results[0].Interface().(*VoidHandle)
		if err := handle.Await(ctx); err != nil {
			return req.CopyFor(message.TypeError, message.ErrorPayload{Message: err.Error()})
		}
		return nil, nil

	case shapeValueHandle:
		handle := results[0].Interface().(*ValueHandle)
		value, err := handle.Await(ctx)
		if err != nil {
			return req.CopyFor(message.TypeError, message.ErrorPayload{Message: err.Error()})
		}
		if value == nil {
			return req.CopyFor(message.TypeNull, nil)
		}
		return req.CopyFor(req.Type, value)

	default:
		return req.CopyFor(message.TypeError, message.ErrorPayload{Message: "dispatch: unknown return shape"})
	}
}

// isNilValue reports whether value is a nil interface, or a typed nil
// (nil pointer/map/slice/chan/func boxed in a non-nil interface).
func isNilValue(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return v.IsNil()
	default:
		return false
	}
}
