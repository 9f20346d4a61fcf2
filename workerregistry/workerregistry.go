// Package workerregistry tracks which worker ids currently have a live
// connection to the registry process, and hands out the Connection to use
// when sending a request to a given worker.
//
// Grounded on arkeep-io-arkeep's agentmanager.Manager: a guarded map, an
// injected *zap.Logger, and a register/unregister lifecycle tied to a
// live stream — here, a live Connection instead of a gRPC stream.
package workerregistry

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DKorablin/NamedPipesProxy/connection"
)

// Worker is one registered worker: its application-level id, the
// connection carrying its traffic, and when that connection registered.
type Worker struct {
	ID           string
	ConnectionID uuid.UUID
	Conn         *connection.Connection
	ConnectedAt  time.Time
}

// Hooks are fired outside the registry's lock, letting callers (e.g. the
// etcd mirror) react to membership changes without risking a deadlock
// against the registry's own methods.
type Hooks struct {
	OnWorkerConnected    func(w Worker)
	OnWorkerDisconnected func(w Worker)
}

// Registry is the in-memory set of currently registered workers. Safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]Worker
	logger *zap.Logger
	hooks  Hooks
}

// normalizeID folds a worker id to its canonical lookup key. WorkerId is
// case-insensitive per the registration invariant: "W1" and "w1" name the
// same worker.
func normalizeID(id string) string {
	return strings.ToLower(id)
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithHooks attaches connect/disconnect observers, e.g. an EtcdMirror.
func WithHooks(h Hooks) Option {
	return func(r *Registry) { r.hooks = h }
}

// New creates an empty Registry.
func New(logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		byID:   make(map[string]Worker),
		logger: logger.Named("workerregistry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register records w as the current holder of w.ID, displacing any prior
// record under the same id (last-writer-wins, per the registration
// invariant). The displaced connection, if any, is left to close on its
// own; UnregisterIfCurrent guards against that eventual close incorrectly
// evicting the new, live record.
func (r *Registry) Register(w Worker) {
	w.ConnectedAt = time.Now().UTC()
	key := normalizeID(w.ID)

	r.mu.Lock()
	prev, existed := r.byID[key]
	r.byID[key] = w
	r.mu.Unlock()

	if existed {
		r.logger.Warn("worker id re-registered, displacing prior connection",
			zap.String("worker_id", w.ID),
			zap.String("prior_connection_id", prev.ConnectionID.String()),
			zap.String("new_connection_id", w.ConnectionID.String()),
		)
	} else {
		r.logger.Info("worker connected", zap.String("worker_id", w.ID))
	}

	if r.hooks.OnWorkerConnected != nil {
		r.hooks.OnWorkerConnected(w)
	}
}

// UnregisterIfCurrent removes w.ID's record only if it still points at
// w.ConnectionID — i.e. only if w is still the live connection for that
// id, not a stale one that was already displaced by a later Register.
// Reports whether it actually removed the record.
func (r *Registry) UnregisterIfCurrent(w Worker) bool {
	key := normalizeID(w.ID)

	r.mu.Lock()
	current, ok := r.byID[key]
	if !ok || current.ConnectionID != w.ConnectionID {
		r.mu.Unlock()
		return false
	}
	delete(r.byID, key)
	r.mu.Unlock()

	r.logger.Info("worker disconnected", zap.String("worker_id", w.ID))
	if r.hooks.OnWorkerDisconnected != nil {
		r.hooks.OnWorkerDisconnected(w)
	}
	return true
}

// Lookup returns the current Worker record for id, if registered.
// Matching is case-insensitive.
func (r *Registry) Lookup(id string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byID[normalizeID(id)]
	return w, ok
}

// SnapshotIDs returns every currently registered worker id, in the case
// it was registered under. The returned slice is a copy.
func (r *Registry) SnapshotIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for _, w := range r.byID {
		ids = append(ids, w.ID)
	}
	return ids
}

// Snapshot returns every currently registered Worker. The returned slice
// is a copy.
func (r *Registry) Snapshot() []Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	workers := make([]Worker, 0, len(r.byID))
	for _, w := range r.byID {
		workers = append(workers, w)
	}
	return workers
}

// Count returns the number of currently registered workers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
