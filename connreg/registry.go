package connreg

import (
	"sync"
	"time"

	"github.com/nostrkv/kvgate/internal/metrics"
)

// allMethods is the closed method set (§4.6), used to build the
// process-default policy.
var allMethods = []string{"get_info", "get", "set", "del", "exists", "mget", "expire", "ttl"}

// Registry maps client public keys to their ClientConnection, consulting
// a loaded policy document for known clients and a process-default policy
// for unknown ones (§4.4). Read-mostly and guarded by an RWMutex, exactly
// the concurrency shape of the teacher's session.Manager.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*ClientConnection
	policies    registryDocument
	defaultPolicy Policy

	sweepStop chan struct{}
}

// DefaultConfig is the process-wide fallback policy applied to clients
// absent from the loaded document (§4.4).
type DefaultConfig struct {
	Namespace string
	Limits    Limits
}

// New builds a Registry. doc may be nil (no persisted entries); def is
// applied to any client pubkey not present in doc.
func New(doc registryDocument, def DefaultConfig) (*Registry, error) {
	if err := validateNamespace(def.Namespace); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = registryDocument{}
	}
	r := &Registry{
		connections: make(map[string]*ClientConnection),
		policies:    doc,
		defaultPolicy: Policy{
			Namespace:      def.Namespace,
			AllowedMethods: allMethods,
			Limits:         def.Limits,
		},
		sweepStop: make(chan struct{}),
	}
	return r, nil
}

// Get returns the ClientConnection for pubkey, creating it lazily from
// the loaded policy (or the process default) on first access (§3, §4.4).
func (r *Registry) Get(pubkey string) *ClientConnection {
	r.mu.RLock()
	if c, ok := r.connections[pubkey]; ok {
		r.mu.RUnlock()
		return c
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.connections[pubkey]; ok {
		return c
	}

	policy, ok := r.policies[pubkey]
	if !ok {
		policy = r.defaultPolicy
	}
	c := newConnection(pubkey, policy)
	r.connections[pubkey] = c
	metrics.ActiveConnections.Set(float64(len(r.connections)))
	return c
}

// Install pre-populates a connection for pubkey from the registry at
// startup, without waiting for the first inbound event (§3: "Connections
// may be installed at startup from the registry").
func (r *Registry) Install(pubkey string, policy Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[pubkey] = newConnection(pubkey, policy)
	metrics.ActiveConnections.Set(float64(len(r.connections)))
}

// Count reports the number of live connections, used by diagnostics.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// StartIdempotencySweep runs a 60-second background sweep of every
// connection's idempotency cache until Close is called (§4.8: "A
// background sweep every 60 s evicts expired entries").
func (r *Registry) StartIdempotencySweep() {
	ticker := time.NewTicker(60 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				r.mu.RLock()
				conns := make([]*ClientConnection, 0, len(r.connections))
				for _, c := range r.connections {
					conns = append(conns, c)
				}
				r.mu.RUnlock()
				for _, c := range conns {
					c.SweepIdempotency(now)
				}
			case <-r.sweepStop:
				return
			}
		}
	}()
}

// Close stops the background sweep. Connections themselves are not
// destroyed (§3: "never destroyed in steady state"); this only tears down
// the registry's own goroutine.
func (r *Registry) Close() {
	close(r.sweepStop)
}
