// Package workerserver implements the worker side of the fabric: it
// dials out to the registry's pipe, sends the mandatory RegisterWorker
// handshake, then runs a read loop dispatching every inbound call to a
// dispatch.Engine and writing back whatever reply the engine produces.
//
// Grounded on client.Client's dial flow (resolve an address, establish
// one connection) and transport.NewClientTransport's pattern of launching
// a background goroutine pair around a freshly dialed connection,
// adapted since a worker dials exactly once to one fixed peer (the
// registry) rather than pooling connections per discovered address.
package workerserver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DKorablin/NamedPipesProxy/connection"
	"github.com/DKorablin/NamedPipesProxy/dispatch"
	"github.com/DKorablin/NamedPipesProxy/message"
	"github.com/DKorablin/NamedPipesProxy/middleware"
	"github.com/DKorablin/NamedPipesProxy/namedpipe"
	"github.com/DKorablin/NamedPipesProxy/rpcconst"
)

// Worker dials the registry, registers under an id, and serves inbound
// calls against a handler struct via reflective dispatch.
type Worker struct {
	id           string
	registryPipe string
	factory      namedpipe.Factory
	engine       *dispatch.Engine
	handle       middleware.HandlerFunc
	logger       *zap.Logger

	requestReceived func(ctx context.Context, msg *message.PipeMessage) *message.PipeMessage
	connectionLost  func(err error)

	mu      sync.Mutex
	conn    *connection.Connection
	started atomic.Bool

	connLostOnce sync.Once
	stopped      chan struct{}
	wg           sync.WaitGroup
}

// Option configures a Worker at construction time.
type Option func(*Worker)

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Worker) { w.logger = logger.Named("workerserver") }
}

// WithMiddleware wraps the dispatch engine with a chain of cross-cutting
// concerns (logging, timeout, rate limiting). Applied in the order given:
// the first middleware is outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(w *Worker) {
		w.handle = middleware.Chain(mws...)(w.engine.Dispatch)
	}
}

// WithRequestReceivedHook attaches a hook that runs before every inbound
// call reaches the reflective dispatch engine. A non-nil return pre-empts
// dispatch and is sent back as the reply directly; a nil return falls
// through to the engine as usual.
func WithRequestReceivedHook(fn func(ctx context.Context, msg *message.PipeMessage) *message.PipeMessage) Option {
	return func(w *Worker) { w.requestReceived = fn }
}

// WithConnectionLostHook attaches a hook fired exactly once when the
// worker's connection to the registry ends, whether by an explicit Stop
// or an unexpected EOF/reset on the read loop.
func WithConnectionLostHook(fn func(err error)) Option {
	return func(w *Worker) { w.connectionLost = fn }
}

// New constructs a Worker that will dial registryPipe and serve handler's
// exported methods once Start is called.
func New(id, registryPipe string, factory namedpipe.Factory, handler any, opts ...Option) (*Worker, error) {
	engine, err := dispatch.New(handler)
	if err != nil {
		return nil, fmt.Errorf("workerserver: %w", err)
	}
	w := &Worker{
		id:           id,
		registryPipe: registryPipe,
		factory:      factory,
		engine:       engine,
		handle:       engine.Dispatch,
		logger:       zap.NewNop(),
		stopped:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start dials the registry, sends the RegisterWorker handshake, and
// begins serving inbound calls in a background goroutine. It blocks only
// for the dial and handshake, bounded by rpcconst.WorkerConnectTimeout.
func (w *Worker) Start(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, rpcconst.WorkerConnectTimeout)
	defer cancel()

	netConn, err := w.factory.Dial(dialCtx, w.registryPipe)
	if err != nil {
		return fmt.Errorf("workerserver: dial registry: %w", err)
	}
	conn := connection.New(netConn)

	reg, err := message.New(message.TypeRegisterWorker, message.RegisterWorkerPayload{
		WorkerId: w.id,
		PipeName: rpcconst.WorkerPipeName(w.id),
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("workerserver: build handshake: %w", err)
	}
	if err := conn.Send(dialCtx, reg); err != nil {
		conn.Close()
		return fmt.Errorf("workerserver: send handshake: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	w.started.Store(true)

	w.wg.Add(1)
	go w.serve(ctx, conn)

	w.logger.Info("worker started", zap.String("worker_id", w.id))
	return nil
}

func (w *Worker) serve(ctx context.Context, conn *connection.Connection) {
	defer w.wg.Done()
	err := conn.Listen(ctx, func(msg *message.PipeMessage) {
		w.dispatchMessage(ctx, conn, msg)
	})
	if err != nil {
		w.logger.Debug("worker connection ended", zap.String("worker_id", w.id), zap.Error(err))
	}
	w.fireConnectionLost(err)
}

// fireConnectionLost runs the ConnectionLost hook, if any, exactly once
// per Worker regardless of whether the connection ended via an explicit
// Stop or an unexpected read-loop EOF/reset.
func (w *Worker) fireConnectionLost(err error) {
	w.connLostOnce.Do(func() {
		if w.connectionLost != nil {
			w.connectionLost(err)
		}
	})
}

// dispatchMessage runs one inbound call through the RequestReceived hook
// (if any) and, absent a pre-empting reply, the dispatch engine, then
// writes back whatever reply results. Each inbound call runs on its own
// goroutine so a slow handler never blocks the connection's single read
// loop from making progress on the next frame.
func (w *Worker) dispatchMessage(ctx context.Context, conn *connection.Connection, msg *message.PipeMessage) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		if w.requestReceived != nil {
			if reply := w.requestReceived(ctx, msg); reply != nil {
				if err := conn.Send(ctx, reply); err != nil {
					w.logger.Warn("failed to send RequestReceived reply", zap.String("worker_id", w.id), zap.Error(err))
				}
				return
			}
		}

		reply, err := w.handle(ctx, msg)
		if err != nil {
			w.logger.Warn("dispatch failed", zap.String("worker_id", w.id), zap.Error(err))
			return
		}
		if reply == nil {
			return
		}
		if err := conn.Send(ctx, reply); err != nil {
			w.logger.Warn("failed to send reply", zap.String("worker_id", w.id), zap.Error(err))
		}
	}()
}

// IsStarted reports whether Start has successfully completed its
// handshake.
func (w *Worker) IsStarted() bool {
	return w.started.Load()
}

// Stop closes the worker's connection and waits up to
// rpcconst.WorkerStopGrace for in-flight dispatches to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn != nil {
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(rpcconst.WorkerStopGrace):
		return fmt.Errorf("workerserver: stop: timed out waiting for in-flight dispatches")
	}
}
