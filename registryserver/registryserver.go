// Package registryserver implements the registry side of the fabric: it
// accepts one connection per worker process, runs each through the
// AWAITING_REGISTER → SERVING → CLOSING state machine, and exposes
// SendToWorkerAsync/Broadcast for the generated proxies (rpcproxy) to
// issue calls against the currently connected worker set.
//
// Grounded on server.Server's accept loop (one goroutine per connection,
// atomic shutdown flag, WaitGroup-tracked in-flight work, graceful
// Shutdown with timeout) and handleConn's defer-based cleanup, adapted
// from "stateless RPC handler dispatch" to "stateful worker connection
// lifecycle with a registration handshake".
package registryserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DKorablin/NamedPipesProxy/connection"
	"github.com/DKorablin/NamedPipesProxy/message"
	"github.com/DKorablin/NamedPipesProxy/namedpipe"
	"github.com/DKorablin/NamedPipesProxy/pending"
	"github.com/DKorablin/NamedPipesProxy/rpcconst"
	"github.com/DKorablin/NamedPipesProxy/rpcerr"
	"github.com/DKorablin/NamedPipesProxy/workerregistry"
)

// Server is the registry process's accept loop and worker-facing send
// API.
type Server struct {
	pipeName string
	factory  namedpipe.Factory
	registry *workerregistry.Registry
	pending  *pending.Table
	logger   *zap.Logger

	callTimeout time.Duration

	requestReceived func(ctx context.Context, workerID string, msg *message.PipeMessage) *message.PipeMessage

	listener net.Listener
	shutdown atomic.Bool
	wg       sync.WaitGroup
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger.Named("registryserver") }
}

// WithCallTimeout overrides rpcconst.DefaultCallTimeout for outbound
// calls issued by this Server.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Server) { s.callTimeout = d }
}

// WithRequestReceivedHook attaches a hook invoked for every inbound frame
// from a worker that does not correlate to a call this Server is waiting
// on (an unsolicited request). The hook's return value, if non-nil, is
// sent back to that worker as the reply; a nil return drops the frame.
func WithRequestReceivedHook(fn func(ctx context.Context, workerID string, msg *message.PipeMessage) *message.PipeMessage) Option {
	return func(s *Server) { s.requestReceived = fn }
}

// New constructs a Server that will listen on pipeName via factory once
// Serve is called.
func New(pipeName string, factory namedpipe.Factory, registry *workerregistry.Registry, opts ...Option) *Server {
	s := &Server{
		pipeName:    pipeName,
		factory:     factory,
		registry:    registry,
		pending:     pending.New(),
		logger:      zap.NewNop(),
		callTimeout: rpcconst.DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve opens the registry's listener and runs the accept loop until ctx
// is cancelled or Shutdown is called. It returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := s.factory.Listen(ctx, s.pipeName)
	if err != nil {
		return fmt.Errorf("registryserver: listen: %w", err)
	}
	s.listener = listener

	for {
		conn, err := namedpipe.AcceptOne(ctx, listener)
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return fmt.Errorf("registryserver: accept: %w", err)
		}
		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection runs one worker connection through the connection
// lifecycle: AWAITING_REGISTER (waiting for the first, mandatory
// RegisterWorker frame) → SERVING (registered, demultiplexing replies to
// outbound calls) → CLOSING (deferred cleanup once Listen returns).
func (s *Server) handleConnection(ctx context.Context, netConn net.Conn) {
	defer s.wg.Done()

	conn := connection.New(netConn)
	defer conn.Close()

	// AWAITING_REGISTER: the one legal first frame is RegisterWorker.
	first, err := conn.ReadOne()
	if err != nil {
		s.logger.Warn("connection closed before registering", zap.Error(err))
		return
	}
	if first.Type != message.TypeRegisterWorker {
		s.logger.Warn("first frame was not RegisterWorker", zap.String("type", first.Type))
		return
	}

	var reg message.RegisterWorkerPayload
	if err := json.Unmarshal(first.Payload, &reg); err != nil {
		s.logger.Warn("malformed RegisterWorker payload", zap.Error(err))
		return
	}

	// SERVING.
	worker := workerregistry.Worker{ID: reg.WorkerId, ConnectionID: conn.ID, Conn: conn}
	s.registry.Register(worker)

	// CLOSING, run once Listen returns for any reason.
	defer s.registry.UnregisterIfCurrent(worker)

	err = conn.Listen(ctx, func(msg *message.PipeMessage) {
		s.onMessage(ctx, worker, msg)
	})
	if err != nil {
		s.logger.Debug("worker connection ended", zap.String("worker_id", worker.ID), zap.Error(err))
	}
}

// onMessage routes an inbound frame on a worker connection. Most frames
// are replies to a call this Server previously issued, correlated by
// MessageId; anything that correlates to no pending wait is an
// unsolicited request from the worker, routed to the RequestReceived hook
// if one is attached.
func (s *Server) onMessage(ctx context.Context, worker workerregistry.Worker, msg *message.PipeMessage) {
	if s.pending.Complete(msg.MessageId, msg) {
		return
	}
	if s.requestReceived == nil {
		return
	}
	reply := s.requestReceived(ctx, worker.ID, msg)
	if reply == nil {
		return
	}
	if err := worker.Conn.Send(ctx, reply); err != nil {
		s.logger.Warn("failed to send RequestReceived reply", zap.String("worker_id", worker.ID), zap.Error(err))
	}
}

// SendToWorkerAsync issues req to the worker registered under workerID
// and returns a function that blocks for the matching reply. Registration
// in the pending table happens before the frame is written, so a reply
// racing ahead of this call's own bookkeeping is never dropped.
func (s *Server) SendToWorkerAsync(ctx context.Context, workerID string, req *message.PipeMessage) (func(context.Context) (*message.PipeMessage, error), error) {
	worker, ok := s.registry.Lookup(workerID)
	if !ok {
		return nil, fmt.Errorf("registryserver: %s: %w", workerID, rpcerr.ErrWorkerNotRegistered)
	}

	if err := s.pending.Register(req.MessageId, s.callTimeout); err != nil {
		return nil, err
	}
	if err := worker.Conn.Send(ctx, req); err != nil {
		s.pending.Fail(req.MessageId, err)
		return nil, fmt.Errorf("registryserver: send to %s: %w", workerID, rpcerr.ErrConnectionGone)
	}

	return func(waitCtx context.Context) (*message.PipeMessage, error) {
		return s.pending.Wait(waitCtx, req.MessageId)
	}, nil
}

// SendToWorker is the synchronous convenience wrapper over
// SendToWorkerAsync: it registers, sends, and waits in one call.
func (s *Server) SendToWorker(ctx context.Context, workerID string, req *message.PipeMessage) (*message.PipeMessage, error) {
	wait, err := s.SendToWorkerAsync(ctx, workerID, req)
	if err != nil {
		return nil, err
	}
	return wait(ctx)
}

// WorkerIDs returns the ids of every currently connected worker, for a
// rpcproxy.WorkerSelector to choose among.
func (s *Server) WorkerIDs() []string {
	return s.registry.SnapshotIDs()
}

// Broadcast relays req to every currently connected worker, returning one
// wait function per worker that registered successfully. Each relayed
// envelope gets its own fresh MessageId (see message.Relay), so replies
// are demultiplexed independently per worker. Registering and sending to
// each worker runs on its own goroutine so one slow connection's write
// never delays the fan-out to the rest.
func (s *Server) Broadcast(ctx context.Context, req *message.PipeMessage) ([]func(context.Context) (*message.PipeMessage, error), error) {
	workers := s.registry.Snapshot()
	if len(workers) == 0 {
		return nil, fmt.Errorf("registryserver: broadcast: %w", rpcerr.ErrNoWorkers)
	}

	waits := make([]func(context.Context) (*message.PipeMessage, error), len(workers))
	g, gCtx := errgroup.WithContext(ctx)
	for i, w := range workers {
		i, w := i, w
		g.Go(func() error {
			relayed := req.Relay()
			if err := s.pending.Register(relayed.MessageId, s.callTimeout); err != nil {
				return nil
			}
			if err := w.Conn.Send(gCtx, relayed); err != nil {
				s.pending.Fail(relayed.MessageId, err)
				return nil
			}
			messageID := relayed.MessageId
			waits[i] = func(waitCtx context.Context) (*message.PipeMessage, error) {
				return s.pending.Wait(waitCtx, messageID)
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // stage funcs never return a non-nil error; per-worker failures are dropped silently below

	live := make([]func(context.Context) (*message.PipeMessage, error), 0, len(waits))
	for _, wait := range waits {
		if wait != nil {
			live = append(live, wait)
		}
	}
	return live, nil
}

// Shutdown stops accepting new connections and waits up to
// rpcconst.RegistryStopGrace for in-flight worker connections to close.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(rpcconst.RegistryStopGrace):
		return fmt.Errorf("registryserver: shutdown: timed out waiting for connections to close")
	case <-ctx.Done():
		return ctx.Err()
	}
}
