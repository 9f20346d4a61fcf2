// EtcdMirror is a purely observational supplement to Registry: it
// republishes worker connect/disconnect events into etcd under
// lease-backed keys, so an out-of-process dashboard can Watch the live
// worker set. It never participates in routing — Registry.Lookup is the
// only thing registryserver ever consults to resolve a worker id — since
// this fabric has exactly one registry process, not a fleet behind
// service discovery.
//
// Grounded on the teacher's EtcdRegistry.Register/Deregister/Watch
// (TTL lease + KeepAlive + prefix Watch), repointed from "service
// instances under a service name" to "worker ids under this registry's
// process".
package workerregistry

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const etcdKeyPrefix = "/namedpipesproxy/workers/"

// EtcdMirror publishes Hooks-driven worker membership into etcd.
type EtcdMirror struct {
	client *clientv3.Client
	logger *zap.Logger
	ttl    int64
}

// NewEtcdMirror connects to the given etcd endpoints. ttlSeconds bounds
// how long a worker's key survives after this process stops renewing its
// lease (e.g. on a crash).
func NewEtcdMirror(endpoints []string, ttlSeconds int64, logger *zap.Logger) (*EtcdMirror, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, fmt.Errorf("workerregistry: connect etcd: %w", err)
	}
	return &EtcdMirror{client: c, logger: logger.Named("etcdmirror"), ttl: ttlSeconds}, nil
}

// Hooks returns the Registry Hooks wiring this mirror to worker
// connect/disconnect events.
func (m *EtcdMirror) Hooks() Hooks {
	return Hooks{
		OnWorkerConnected:    m.publish,
		OnWorkerDisconnected: m.retract,
	}
}

func (m *EtcdMirror) publish(w Worker) {
	ctx := context.Background()
	lease, err := m.client.Grant(ctx, m.ttl)
	if err != nil {
		m.logger.Warn("grant lease failed", zap.String("worker_id", w.ID), zap.Error(err))
		return
	}

	key := etcdKeyPrefix + w.ID
	if _, err := m.client.Put(ctx, key, w.ConnectionID.String(), clientv3.WithLease(lease.ID)); err != nil {
		m.logger.Warn("publish worker failed", zap.String("worker_id", w.ID), zap.Error(err))
		return
	}

	ch, err := m.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		m.logger.Warn("keepalive failed", zap.String("worker_id", w.ID), zap.Error(err))
		return
	}
	go func() {
		for range ch {
		}
	}()
}

func (m *EtcdMirror) retract(w Worker) {
	ctx := context.Background()
	if _, err := m.client.Delete(ctx, etcdKeyPrefix+w.ID); err != nil {
		m.logger.Warn("retract worker failed", zap.String("worker_id", w.ID), zap.Error(err))
	}
}

// Discover lists worker ids currently visible in etcd, for use by an
// external observer process that has no direct access to this registry's
// in-memory Registry.
func (m *EtcdMirror) Discover(ctx context.Context) ([]string, error) {
	resp, err := m.client.Get(ctx, etcdKeyPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("workerregistry: discover: %w", err)
	}
	ids := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		ids = append(ids, string(kv.Key[len(etcdKeyPrefix):]))
	}
	return ids, nil
}

// Close releases the underlying etcd client.
func (m *EtcdMirror) Close() error {
	return m.client.Close()
}
