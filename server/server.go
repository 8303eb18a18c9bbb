// Package server implements C12: the server orchestrator that owns the
// process lifecycle and drives the per-inbound-event pipeline (§4.11). It
// follows the teacher's handshake.Server (handshake/server.go) in shape —
// one long-lived struct wiring every other component, a background
// cleanup/sweep loop, and signal-driven shutdown — widened from a
// three-phase a2a handshake to the gateway's subscribe/decrypt/route/reply
// loop.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nostrkv/kvgate/audit"
	"github.com/nostrkv/kvgate/config"
	"github.com/nostrkv/kvgate/connreg"
	"github.com/nostrkv/kvgate/crypto/keyring"
	"github.com/nostrkv/kvgate/envelope"
	"github.com/nostrkv/kvgate/internal/logger"
	"github.com/nostrkv/kvgate/internal/metrics"
	"github.com/nostrkv/kvgate/kvstore"
	"github.com/nostrkv/kvgate/pkg/health"
	"github.com/nostrkv/kvgate/relay"
	"github.com/nostrkv/kvgate/router"
)

// State is the server's lifecycle phase (§4.11).
type State string

const (
	StateStarting     State = "STARTING"
	StateRunning      State = "RUNNING"
	StateShuttingDown State = "SHUTTING_DOWN"
)

// Server wires C1-C11 together and drives the event loop described in
// §4.11. One Server instance corresponds to one gateway process.
type Server struct {
	cfg *config.Config
	log logger.Logger

	keyring  *keyring.Keyring
	pool     *relay.Pool
	codec    *envelope.Codec
	registry *connreg.Registry
	store    *kvstore.Store
	auditLog *audit.Log
	rt       *router.Router

	healthChecker *health.Checker
	healthServer  *health.Server

	stateMu sync.RWMutex
	state   State
}

// New constructs every C1-C11 component from cfg but does not yet connect
// to anything (§4.11 "STARTING"). registryPath may be empty, meaning every
// client falls back to the process-default policy.
func New(cfg *config.Config, log logger.Logger, registryPath string) (*Server, error) {
	kr, err := keyring.LoadBech32(cfg.ServerSecret)
	if err != nil {
		return nil, fmt.Errorf("load server identity: %w", err)
	}

	store, err := kvstore.New(cfg.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}

	var doc map[string]connreg.Policy
	if registryPath != "" {
		loaded, err := connreg.LoadDocument(registryPath)
		if err != nil {
			return nil, fmt.Errorf("load registry: %w", err)
		}
		doc = loaded
	}
	registry, err := connreg.New(doc, connreg.DefaultConfig{
		Namespace: cfg.Namespace,
		Limits: connreg.Limits{
			MPS:     cfg.Limits.MPS,
			BPS:     cfg.Limits.BPS,
			MaxKey:  cfg.Limits.MaxKey,
			MaxVal:  cfg.Limits.MaxVal,
			MGetMax: cfg.Limits.MGetMax,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	pref := envelope.PreferV2
	if cfg.EncryptionPref == "v1" {
		pref = envelope.PreferV1
	}
	codec := envelope.NewCodec(pref)
	capability := codec.Capability()

	auditLog := audit.New()
	auditLog.SetBackend(store)
	rt := router.New(registry, store, auditLog, router.EncryptionCapability{V2: capability.V2, V1: capability.V1}, 15*time.Second)

	pool := relay.NewPool(relay.Config{URLs: cfg.Relays}, log)

	backend := storeBackendAdapter{store}
	checker := health.NewChecker(backend, pool)

	s := &Server{
		cfg:           cfg,
		log:           log,
		keyring:       kr,
		pool:          pool,
		codec:         codec,
		registry:      registry,
		store:         store,
		auditLog:      auditLog,
		rt:            rt,
		healthChecker: checker,
		state:         StateStarting,
	}
	if cfg.Health != nil && cfg.Health.Enabled {
		s.healthServer = health.NewServer(checker, log, cfg.Health.Port)
	}
	return s, nil
}

// storeBackendAdapter narrows kvstore.Store to health.Backend.
type storeBackendAdapter struct{ store *kvstore.Store }

func (a storeBackendAdapter) IsReady(ctx context.Context) bool { return a.store.IsReady(ctx) }

func (s *Server) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
	s.log.Info("state transition", logger.String("state", string(st)))
}

// State reports the server's current lifecycle phase.
func (s *Server) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Run drives the server through STARTING -> RUNNING and blocks handling
// inbound events until ctx is cancelled, at which point it transitions to
// SHUTTING_DOWN and tears everything down (§4.11).
func (s *Server) Run(ctx context.Context) error {
	s.setState(StateStarting)

	s.pool.Start(ctx)
	s.registry.StartIdempotencySweep()

	if s.cfg.Metrics != nil && s.cfg.Metrics.Enabled {
		go func() {
			addr := fmt.Sprintf(":%d", s.cfg.Metrics.Port)
			if err := metrics.StartServer(addr); err != nil {
				s.log.Error("metrics server error", logger.Error(err))
			}
		}()
	}
	if s.healthServer != nil {
		if err := s.healthServer.Start(); err != nil {
			return fmt.Errorf("start health server: %w", err)
		}
	}

	s.pool.Subscribe(relay.Filter{Kinds: []int{relay.KindRequest}, Recipient: s.keyring.PublicKey()}, s.handleEvent)

	s.setState(StateRunning)
	<-ctx.Done()

	s.setState(StateShuttingDown)
	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.healthServer != nil {
		_ = s.healthServer.Stop(shutCtx)
	}
	s.registry.Close()
	if err := s.store.Close(); err != nil {
		s.log.Error("close backend", logger.Error(err))
	}
	if err := s.pool.Close(); err != nil {
		s.log.Error("close relays", logger.Error(err))
	}
	s.log.Info("shutdown complete")
	return nil
}

// handleEvent runs the per-inbound-event pipeline (§4.11, §7 band 1). Each
// invocation gets its own trace id so the handful of error logs it can emit
// correlate back to one inbound event, independent of the client-chosen
// request id carried in the decrypted payload (which may be absent or reused
// across clients).
func (s *Server) handleEvent(ctx context.Context, e *relay.Event) {
	traceID := uuid.NewString()

	if e.Sig == "" {
		return
	}
	if err := relay.VerifySig(e, keyring.Verify); err != nil {
		return
	}

	now := time.Now()
	skew := s.cfg.ClockSkewMax
	maxAge := s.cfg.EventMaxAge
	createdAt := time.Unix(e.CreatedAt, 0)
	if createdAt.After(now.Add(skew)) {
		return
	}
	if now.Sub(createdAt) > maxAge {
		return
	}

	convKey, err := s.keyring.ConversationKey(e.PubKey)
	if err != nil {
		return
	}
	plaintext, _, err := s.codec.Decrypt(convKey, e.Content)
	if err != nil {
		return
	}

	var probe json.RawMessage
	if err := json.Unmarshal(plaintext, &probe); err != nil {
		return
	}

	respBytes := s.rt.Route(ctx, e.PubKey, plaintext)
	if respBytes == nil {
		return
	}

	ciphertext, _, err := s.codec.Encrypt(convKey, respBytes)
	if err != nil {
		s.log.Error("encrypt response", logger.Error(err), logger.String("trace_id", traceID))
		return
	}

	respEvent, err := relay.NewEvent(s.keyring, s.keyring.PublicKey(), e.PubKey, relay.KindResponse, ciphertext)
	if err != nil {
		s.log.Error("build response event", logger.Error(err), logger.String("trace_id", traceID))
		return
	}

	if err := s.pool.Publish(ctx, respEvent); err != nil {
		s.log.Error("publish response", logger.Error(err), logger.String("trace_id", traceID), logger.String("client", e.PubKey))
	}
}
