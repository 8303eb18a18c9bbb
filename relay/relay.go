// Package relay implements C2: durable outbound sessions to a set of relay
// servers, publishing signed envelope events and delivering matching
// inbound events to a handler. The per-socket connect/reconnect/write loop
// follows the teacher's WSTransport (pkg/agent/transport/websocket), widened
// from one connection to a pool and from request/response matching to a
// subscribe/dispatch model.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nostrkv/kvgate/internal/logger"
	"github.com/nostrkv/kvgate/internal/metrics"
)

// Event kinds carried over the relay fabric (§6).
const (
	KindRequest  = 23194
	KindResponse = 23195
)

// Event is the wire shape of a signed relay event (§3 "Envelope event").
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// RecipientTag returns the counterparty pubkey from the event's "p" tag, or
// "" if absent.
func (e *Event) RecipientTag() string {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == "p" {
			return t[1]
		}
	}
	return ""
}

// Filter selects inbound events of interest to Subscribe: by kind and by
// recipient ("#p") tag, mirroring NIP-01 REQ filters narrowed to what the
// gateway needs.
type Filter struct {
	Kinds    []int
	Recipient string
}

func (f Filter) matches(e *Event) bool {
	if len(f.Kinds) > 0 {
		ok := false
		for _, k := range f.Kinds {
			if k == e.Kind {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Recipient != "" && e.RecipientTag() != f.Recipient {
		return false
	}
	return true
}

// Handler is invoked once per unique inbound event id across the whole pool.
type Handler func(ctx context.Context, e *Event)

// nostr relay wire messages, per NIP-01: ["EVENT", subID, event],
// ["REQ", subID, filter...], ["OK", eventID, ok, message], ["EOSE", subID].
type clientFilter struct {
	Kinds []int    `json:"kinds,omitempty"`
	Tags  []string `json:"#p,omitempty"`
}

// Pool owns one persistent connection per configured relay URL. Publish
// fans out to all relays and succeeds if at least one accepts; Subscribe
// registers interest on every relay and deduplicates deliveries by event
// id (§4.2).
type Pool struct {
	log    logger.Logger
	mu     sync.RWMutex
	relays map[string]*relayConn

	seenMu sync.Mutex
	seen   map[string]time.Time

	filter  Filter
	handler Handler

	reconnectMax int
	dialTimeout  time.Duration
}

// Config carries the Pool's tunables (§4.2 reconnect policy).
type Config struct {
	URLs         []string
	ReconnectMax int
	DialTimeout  time.Duration
}

// NewPool constructs a Pool with one connection slot per configured relay
// URL. It does not dial; Start connects every relay in the background,
// where failures are retried per-relay (§4.2: "permanent failure of one
// relay does not halt others").
func NewPool(cfg Config, log logger.Logger) *Pool {
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 10
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	p := &Pool{
		log:          log,
		relays:       make(map[string]*relayConn),
		seen:         make(map[string]time.Time),
		reconnectMax: cfg.ReconnectMax,
		dialTimeout:  cfg.DialTimeout,
	}
	for _, url := range cfg.URLs {
		rc := newRelayConn(url, p)
		p.mu.Lock()
		p.relays[url] = rc
		p.mu.Unlock()
	}
	return p
}

// Start dials every relay and begins their read loops. Individual dial
// failures are logged and retried with backoff; Start itself never fails.
func (p *Pool) Start(ctx context.Context) {
	p.mu.RLock()
	conns := make([]*relayConn, 0, len(p.relays))
	for _, rc := range p.relays {
		conns = append(conns, rc)
	}
	p.mu.RUnlock()

	for _, rc := range conns {
		go rc.run(ctx)
	}
}

// Subscribe registers the filter and handler that govern delivery for the
// lifetime of the pool. The gateway has exactly one logical subscription
// (inbound requests addressed to the server identity), so a single
// filter/handler pair is sufficient.
func (p *Pool) Subscribe(filter Filter, handler Handler) {
	p.mu.Lock()
	p.filter = filter
	p.handler = handler
	conns := make([]*relayConn, 0, len(p.relays))
	for _, rc := range p.relays {
		conns = append(conns, rc)
	}
	p.mu.Unlock()

	for _, rc := range conns {
		rc.resubscribe()
	}
}

// Publish fans an already-signed event out to every connected relay.
// Succeeds if at least one relay accepts it (§4.2).
func (p *Pool) Publish(ctx context.Context, e *Event) error {
	p.mu.RLock()
	conns := make([]*relayConn, 0, len(p.relays))
	for _, rc := range p.relays {
		conns = append(conns, rc)
	}
	p.mu.RUnlock()

	if len(conns) == 0 {
		return fmt.Errorf("relay pool: no relays configured")
	}

	var wg sync.WaitGroup
	results := make([]error, len(conns))
	for i, rc := range conns {
		wg.Add(1)
		go func(i int, rc *relayConn) {
			defer wg.Done()
			results[i] = rc.publish(ctx, e)
		}(i, rc)
	}
	wg.Wait()

	var lastErr error
	for _, err := range results {
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("relay pool: all relays rejected publish: %w", lastErr)
}

// Ready reports whether at least one relay currently holds an open
// connection, used by the health surface.
func (p *Pool) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, rc := range p.relays {
		if rc.isConnected() {
			return true
		}
	}
	return false
}

// Counts reports how many configured relays currently hold an open
// connection, out of how many are configured, used by the health surface.
func (p *Pool) Counts() (connected, total int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total = len(p.relays)
	for _, rc := range p.relays {
		if rc.isConnected() {
			connected++
		}
	}
	return connected, total
}

// Close tears down every relay connection.
func (p *Pool) Close() error {
	p.mu.RLock()
	conns := make([]*relayConn, 0, len(p.relays))
	for _, rc := range p.relays {
		conns = append(conns, rc)
	}
	p.mu.RUnlock()

	for _, rc := range conns {
		rc.close()
	}
	return nil
}

// dispatch delivers e to the handler at most once across the whole pool,
// deduplicating by event id (§4.2).
func (p *Pool) dispatch(ctx context.Context, e *Event) {
	p.seenMu.Lock()
	if _, ok := p.seen[e.ID]; ok {
		p.seenMu.Unlock()
		metrics.RelayEventsReceived.WithLabelValues("pool", "duplicate").Inc()
		return
	}
	p.seen[e.ID] = time.Now()
	if len(p.seen) > 100_000 {
		p.pruneSeenLocked()
	}
	p.seenMu.Unlock()

	p.mu.RLock()
	filter := p.filter
	handler := p.handler
	p.mu.RUnlock()

	if handler == nil || !filter.matches(e) {
		metrics.RelayEventsReceived.WithLabelValues("pool", "filtered").Inc()
		return
	}
	metrics.RelayEventsReceived.WithLabelValues("pool", "accepted").Inc()
	handler(ctx, e)
}

func (p *Pool) pruneSeenLocked() {
	cutoff := time.Now().Add(-10 * time.Minute)
	for id, t := range p.seen {
		if t.Before(cutoff) {
			delete(p.seen, id)
		}
	}
}

// relayConn owns the socket to a single relay, reconnecting with
// exponential backoff and jitter, exactly as the teacher's WSTransport
// manages its one persistent connection.
type relayConn struct {
	url  string
	pool *Pool

	mu   sync.Mutex
	conn *websocket.Conn

	connMu    sync.RWMutex
	connected bool

	subID string
}

func newRelayConn(url string, pool *Pool) *relayConn {
	return &relayConn{url: url, pool: pool, subID: "kvgate"}
}

func (rc *relayConn) isConnected() bool {
	rc.connMu.RLock()
	defer rc.connMu.RUnlock()
	return rc.connected
}

func (rc *relayConn) setConnected(v bool) {
	rc.connMu.Lock()
	rc.connected = v
	rc.connMu.Unlock()
	if v {
		metrics.RelayConnected.WithLabelValues(rc.url).Set(1)
	} else {
		metrics.RelayConnected.WithLabelValues(rc.url).Set(0)
	}
}

func (rc *relayConn) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if err := rc.connect(ctx); err != nil {
			attempt++
			metrics.RelayReconnects.WithLabelValues(rc.url).Inc()
			if rc.pool.reconnectMax > 0 && attempt > rc.pool.reconnectMax {
				rc.pool.log.Error("relay permanently unreachable", logger.String("url", rc.url), logger.Error(err))
				return
			}
			delay := backoffWithJitter(attempt)
			rc.pool.log.Warn("relay dial failed, retrying", logger.String("url", rc.url), logger.Int("attempt", attempt), logger.Duration("delay", delay))
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return
			}
		}
		attempt = 0
		rc.resubscribe()
		rc.readLoop(ctx)
		rc.setConnected(false)
	}
}

func backoffWithJitter(attempt int) time.Duration {
	base := time.Second * time.Duration(1<<uint(min(attempt, 6)))
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base/2 + jitter
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (rc *relayConn) connect(ctx context.Context) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	dialer := &websocket.Dialer{HandshakeTimeout: rc.pool.dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, rc.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("relay dial %s failed (HTTP %d): %w", rc.url, resp.StatusCode, err)
		}
		return fmt.Errorf("relay dial %s failed: %w", rc.url, err)
	}
	rc.conn = conn
	rc.setConnected(true)
	return nil
}

func (rc *relayConn) resubscribe() {
	if !rc.isConnected() {
		return
	}
	rc.pool.mu.RLock()
	filter := rc.pool.filter
	rc.pool.mu.RUnlock()

	cf := clientFilter{Kinds: filter.Kinds}
	if filter.Recipient != "" {
		cf.Tags = []string{filter.Recipient}
	}
	msg := []interface{}{"REQ", rc.subID, cf}
	_ = rc.writeJSON(msg)
}

func (rc *relayConn) publish(ctx context.Context, e *Event) error {
	if !rc.isConnected() {
		metrics.RelayEventsPublished.WithLabelValues(rc.url, "error").Inc()
		return fmt.Errorf("relay %s not connected", rc.url)
	}
	if err := rc.writeJSON([]interface{}{"EVENT", e}); err != nil {
		metrics.RelayEventsPublished.WithLabelValues(rc.url, "error").Inc()
		return err
	}
	metrics.RelayEventsPublished.WithLabelValues(rc.url, "ok").Inc()
	return nil
}

func (rc *relayConn) writeJSON(v interface{}) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := rc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	if err := rc.conn.WriteJSON(v); err != nil {
		rc.setConnected(false)
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (rc *relayConn) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		rc.mu.Lock()
		conn := rc.conn
		rc.mu.Unlock()
		if conn == nil {
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(90 * time.Second)); err != nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				rc.pool.log.Warn("relay read error", logger.String("url", rc.url), logger.Error(err))
			}
			return
		}

		var frame []json.RawMessage
		if err := json.Unmarshal(raw, &frame); err != nil || len(frame) < 2 {
			continue
		}
		var msgType string
		if err := json.Unmarshal(frame[0], &msgType); err != nil {
			continue
		}
		if msgType != "EVENT" || len(frame) < 3 {
			continue
		}
		var e Event
		if err := json.Unmarshal(frame[2], &e); err != nil {
			continue
		}
		rc.pool.dispatch(ctx, &e)
	}
}

func (rc *relayConn) close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.conn == nil {
		return
	}
	_ = rc.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = rc.conn.Close()
	rc.conn = nil
	rc.setConnected(false)
}
