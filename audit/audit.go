// Package audit implements C11: an append-only, bounded list of redacted
// per-request records, plus aggregate statistics over a trailing window
// (§4.10). The record struct and the windowed stats() computation follow
// the teacher's MetricsCollector (internal/metrics/collector.go) — a
// mutex-guarded struct of counters plus a bounded timing-sample slice —
// narrowed to one record type with a head-push/trim discipline instead of
// counters that only ever grow.
package audit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"
)

const maxRecords = 10_000

// persistTimeout bounds the best-effort backend write Append triggers; it
// must never hold up request processing waiting on a slow backend.
const persistTimeout = 2 * time.Second

// Record is one redacted entry in the audit log (§3).
type Record struct {
	Method         string
	KeyHash        string
	ValueSize      int
	Status         string
	ErrorCode      string
	LatencyMS      int64
	ClientRedacted string
	Timestamp      time.Time
}

// Persister is the subset of kvstore.Store the audit log persists through.
// Entries are pushed as raw JSON, not base64, so other backend clients can
// read the list directly (§6).
type Persister interface {
	ListPush(ctx context.Context, list string, record []byte, maxLen int64) error
}

// Log is the bounded, in-process audit trail for one server. Appends are
// best-effort and must never block request processing on backend
// slowness (§9: "Audit back-pressure"); callers fire-and-forget via
// Append. When a Persister is attached via SetBackend, each append also
// fans out to the backend's "<namespace>__audit" list (§6) on a detached
// goroutine, so a stalled backend never adds latency to the request path.
type Log struct {
	mu      sync.Mutex
	records []Record

	backend Persister
}

// New builds an empty Log.
func New() *Log {
	return &Log{}
}

// SetBackend attaches a Persister that every subsequent Append also writes
// through to, in addition to the in-process ring buffer.
func (l *Log) SetBackend(p Persister) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backend = p
}

// Append head-pushes record, trimming the list at maxRecords entries
// (§4.10, §3), and mirrors it to the namespace's backend audit list if a
// backend is attached. namespace may be empty (e.g. for requests rejected
// before a namespace was resolved), in which case no backend write happens.
func (l *Log) Append(namespace string, r Record) {
	l.mu.Lock()
	l.records = append([]Record{r}, l.records...)
	if len(l.records) > maxRecords {
		l.records = l.records[:maxRecords]
	}
	backend := l.backend
	l.mu.Unlock()

	if backend == nil || namespace == "" {
		return
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		_ = backend.ListPush(ctx, namespace+"__audit", raw, maxRecords)
	}()
}

// KeyHash returns the first 8 characters of the base64 encoding of the
// raw key, for audit display only — not cryptographic (§4.10). Despite
// the name, this is not a hash: it's a truncated, reversible encoding,
// exactly as specified.
func KeyHash(key string) string {
	enc := base64.StdEncoding.EncodeToString([]byte(key))
	if len(enc) > 8 {
		return enc[:8]
	}
	return enc
}

// RedactClient renders a client pubkey hex as first-4/last-4 with an
// ellipsis (§4.10).
func RedactClient(pubKeyHex string) string {
	if len(pubKeyHex) <= 8 {
		return pubKeyHex
	}
	return pubKeyHex[:4] + "…" + pubKeyHex[len(pubKeyHex)-4:]
}

// Stats summarizes the log over a trailing window (§4.10).
type Stats struct {
	TotalRequests     int
	CountByMethod     map[string]int
	CountByErrorCode  map[string]int
	SuccessRate       float64
	MeanLatencyMS     float64
}

// WindowStats returns stats over the trailing windowMS milliseconds,
// measured against now.
func (l *Log) WindowStats(now time.Time, windowMS int64) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-time.Duration(windowMS) * time.Millisecond)
	stats := Stats{
		CountByMethod:    make(map[string]int),
		CountByErrorCode: make(map[string]int),
	}

	var successes int
	var latencySum int64

	for _, r := range l.records {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		stats.TotalRequests++
		stats.CountByMethod[r.Method]++
		if r.ErrorCode != "" {
			stats.CountByErrorCode[r.ErrorCode]++
		} else {
			successes++
		}
		latencySum += r.LatencyMS
	}

	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(successes) / float64(stats.TotalRequests)
		stats.MeanLatencyMS = float64(latencySum) / float64(stats.TotalRequests)
	}
	return stats
}

// Len reports the current number of records, used by diagnostics and
// tests.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
