// WorkerSelector lets a unicast caller resolve "which worker" dynamically
// from the currently connected worker set instead of a fixed worker id,
// for the case where the connected workers are interchangeable (e.g.
// sharded cache workers). Selection runs over every connected worker id;
// there is no grouping of workers by role. It is an optional strategy a
// UnicastCaller can be built with;
// callers that always target one fixed worker id never need it.
//
// Adapted from the teacher's loadbalance package: RoundRobin,
// WeightedRandom, and ConsistentHash are regrounded from "pick a
// registry.ServiceInstance" to "pick a worker id from
// workerregistry.Registry.SnapshotIDs()".
package rpcproxy

import (
	"fmt"
	"hash/crc32"
	"math/rand"
	"sort"
	"sync/atomic"
)

// WorkerSelector picks one worker id out of the currently connected set.
type WorkerSelector interface {
	Select(ids []string) (string, error)
}

// RoundRobinSelector cycles through ids in order. Best when every worker
// sharing a role has equal capacity.
type RoundRobinSelector struct {
	counter int64
}

func (s *RoundRobinSelector) Select(ids []string) (string, error) {
	if len(ids) == 0 {
		return "", fmt.Errorf("rpcproxy: no workers available to select from")
	}
	sort.Strings(ids) // stable order so the counter cycles deterministically
	n := atomic.AddInt64(&s.counter, 1)
	return ids[int(n)%len(ids)], nil
}

// WeightedRandomSelector picks proportionally to a caller-supplied weight
// function. Best for heterogeneous workers.
type WeightedRandomSelector struct {
	Weight func(id string) int
}

func (s *WeightedRandomSelector) Select(ids []string) (string, error) {
	if len(ids) == 0 {
		return "", fmt.Errorf("rpcproxy: no workers available to select from")
	}
	weightOf := s.Weight
	if weightOf == nil {
		weightOf = func(string) int { return 1 }
	}

	total := 0
	for _, id := range ids {
		total += weightOf(id)
	}
	if total <= 0 {
		return "", fmt.Errorf("rpcproxy: total worker weight must be positive")
	}

	r := rand.Intn(total)
	for _, id := range ids {
		r -= weightOf(id)
		if r < 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("rpcproxy: unexpected error in weighted random selection")
}

// ConsistentHashSelector maps a caller-supplied affinity key to the same
// worker id for as long as the worker set doesn't change, providing
// sticky routing (e.g. for per-session cache affinity).
type ConsistentHashSelector struct {
	replicas int
}

// NewConsistentHashSelector returns a selector with 100 virtual nodes per
// worker, matching the teacher's ring density.
func NewConsistentHashSelector() *ConsistentHashSelector {
	return &ConsistentHashSelector{replicas: 100}
}

// AffinitySelector adapts a ConsistentHashSelector to the WorkerSelector
// interface by binding it to one fixed affinity key, e.g. a session or
// shard key that should always land on the same worker. Use this to
// build a UnicastCaller dedicated to one affinity key via
// NewUnicastCallerWithSelector.
type AffinitySelector struct {
	hash *ConsistentHashSelector
	key  string
}

// NewAffinitySelector binds hash to key.
func NewAffinitySelector(hash *ConsistentHashSelector, key string) *AffinitySelector {
	return &AffinitySelector{hash: hash, key: key}
}

func (s *AffinitySelector) Select(ids []string) (string, error) {
	return s.hash.SelectFor(ids, s.key)
}

// SelectFor finds the worker id responsible for key among ids.
func (s *ConsistentHashSelector) SelectFor(ids []string, key string) (string, error) {
	if len(ids) == 0 {
		return "", fmt.Errorf("rpcproxy: no workers available to select from")
	}
	sort.Strings(ids)

	ring := make([]uint32, 0, len(ids)*s.replicas)
	nodes := make(map[uint32]string, len(ids)*s.replicas)
	for _, id := range ids {
		for i := 0; i < s.replicas; i++ {
			h := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", id, i)))
			ring = append(ring, h)
			nodes[h] = id
		}
	}
	sort.Slice(ring, func(i, j int) bool { return ring[i] < ring[j] })

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(ring), func(i int) bool { return ring[i] >= hash })
	if idx == len(ring) {
		idx = 0
	}
	return nodes[ring[idx]], nil
}
