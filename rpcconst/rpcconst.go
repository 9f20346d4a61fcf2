// Package rpcconst centralizes the timing and naming constants shared
// across the registry and worker sides, so every package references one
// source of truth rather than repeating magic numbers (the teacher's
// protocol.HeaderSize / protocol.Version pattern, generalized).
package rpcconst

import "time"

// Timing constants (spec section 6).
const (
	// DefaultCallTimeout bounds how long a caller waits for a reply to a
	// single outbound RPC before the pending-response table fails the
	// wait with ErrTimeout.
	DefaultCallTimeout = 30 * time.Second

	// WorkerConnectTimeout bounds how long a worker process waits to
	// establish its outbound connection to the registry.
	WorkerConnectTimeout = 5 * time.Second

	// WorkerStopGrace bounds how long Worker.Stop waits for the listen
	// loop to exit before giving up.
	WorkerStopGrace = 2 * time.Second

	// RegistryStopGrace bounds how long Server.Shutdown waits for
	// in-flight connections to drain before giving up.
	RegistryStopGrace = 5 * time.Second
)

// Naming constants (spec section 6).
const (
	// DefaultRegistryPipeName is the canonical default pipe name under
	// which the registry listens.
	DefaultRegistryPipeName = "AlphaOmega.NamedPipes.Registry"

	// workerPipeNamePrefix is prepended to a worker id to derive that
	// worker's default listen name. Workers in this fabric never accept
	// inbound connections themselves (all traffic is multiplexed over
	// the single connection they dial outbound to the registry), so this
	// name is informational only — it is carried in the RegisterWorker
	// payload for diagnostic purposes and potential future use.
	workerPipeNamePrefix = "AlphaOmega.NamedPipes.Worker."
)

// WorkerPipeName returns the default informational pipe name for a worker
// id, matching the naming scheme in spec section 6.
func WorkerPipeName(workerID string) string {
	return workerPipeNamePrefix + workerID
}
