// Package router implements C9: the protocol router that orchestrates
// validation, dispatch, and response construction for each decrypted
// request (§4.6). It is the gateway's central, single-instance component
// — the way the teacher's handshake.Server is the single entry point for
// every phase of a handshake (handshake/server.go) — widened here from a
// three-phase handshake to the closed eight-method KV protocol.
package router

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/nostrkv/kvgate/audit"
	"github.com/nostrkv/kvgate/connreg"
	"github.com/nostrkv/kvgate/internal/metrics"
	"github.com/nostrkv/kvgate/nsguard"
	"github.com/nostrkv/kvgate/validate"
)

func base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Error codes (§6, closed set). CodeUnauthorized is part of the wire
// protocol but never emitted by this server: signature and freshness
// failures are envelope faults (§7 band 1) and are dropped silently by
// the orchestrator before a request ever reaches Route, so the constant
// is declared here only to keep the set complete for callers that match
// on it.
const (
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeRestricted      = "RESTRICTED"
	CodeRateLimited     = "RATE_LIMITED"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeInvalidKey      = "INVALID_KEY"
	CodeInvalidValue    = "INVALID_VALUE"
	CodeNotImplemented  = "NOT_IMPLEMENTED"
	CodeInternal        = "INTERNAL"
)

// Request is the decoded request document (§3).
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     string          `json:"id"`
}

// RespError is the {code, message} error shape (§3).
type RespError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the {result, error, id} document (§3). Exactly one of
// Result/Error is non-nil. auditKey/auditValueSize carry the fully
// qualified key and decoded value length touched by this request, if any,
// out to finish for audit redaction (§4.10) — never the raw client-
// supplied key, and never the raw wire request size.
type Response struct {
	Result interface{} `json:"result,omitempty"`
	Error  *RespError  `json:"error,omitempty"`
	ID     string      `json:"id"`

	auditKey       string
	auditValueSize int
}

func errorResponse(id, code, message string) *Response {
	return &Response{Error: &RespError{Code: code, Message: message}, ID: id}
}

func resultResponse(id string, result interface{}) *Response {
	return &Response{Result: result, ID: id}
}

// withAudit attaches the fully qualified key and decoded value size this
// response touched, for finish to redact into the audit record.
func (resp *Response) withAudit(fq string, valueSize int) *Response {
	resp.auditKey = fq
	resp.auditValueSize = valueSize
	return resp
}

// EncryptionCapability is reported via get_info (§4.6).
type EncryptionCapability struct {
	V2 bool `json:"v2"`
	V1 bool `json:"v1"`
}

// Backend is the subset of kvstore.Store the router depends on, narrowed
// to an interface so tests can substitute a fake in place of a live
// connection.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Del(ctx context.Context, key string) (int, error)
	Exists(ctx context.Context, key string) (bool, error)
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	Expire(ctx context.Context, key string, ttlSeconds int) (bool, error)
	TTL(ctx context.Context, key string) (int, error)
}

// Router owns the registry of per-namespace guards and wires every other
// component into the request pipeline (§4.6 "Router state").
type Router struct {
	registry   *connreg.Registry
	store      Backend
	auditLog   *audit.Log
	encryption EncryptionCapability

	guardsMu sync.Mutex
	guards   map[string]*nsguard.Guard

	requestTimeout time.Duration
}

// New builds a Router. requestTimeout bounds every backend call (§5,
// default 15s if zero).
func New(registry *connreg.Registry, store Backend, auditLog *audit.Log, enc EncryptionCapability, requestTimeout time.Duration) *Router {
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	return &Router{
		registry:       registry,
		store:          store,
		auditLog:       auditLog,
		encryption:     enc,
		guards:         make(map[string]*nsguard.Guard),
		requestTimeout: requestTimeout,
	}
}

func (r *Router) guardFor(namespace string) *nsguard.Guard {
	r.guardsMu.Lock()
	defer r.guardsMu.Unlock()
	if g, ok := r.guards[namespace]; ok {
		return g
	}
	g := nsguard.New(namespace)
	r.guards[namespace] = g
	return g
}

// Route runs the full dispatch pipeline for one request from clientPubKey
// (§4.6 steps 1-9) and returns the serialized response bytes to encrypt
// and publish. Every request gets an answer, so the result is never nil.
func (r *Router) Route(ctx context.Context, clientPubKey string, reqBytes []byte) []byte {
	start := time.Now()
	conn := r.registry.Get(clientPubKey)

	var req Request
	if err := json.Unmarshal(reqBytes, &req); err != nil || req.Method == "" {
		resp := errorResponse(req.ID, CodeInternal, "malformed request")
		return r.finish(conn, clientPubKey, "unknown", start, resp)
	}

	now := time.Now()
	if cached, ok := conn.IdempotentResponse(req.ID, now); ok {
		metrics.IdempotentReplays.Inc()
		return cached
	}

	if !conn.AllowsMethod(req.Method) {
		resp := errorResponse(req.ID, CodeRestricted, "method not allowed")
		return r.finish(conn, clientPubKey, req.Method, start, resp)
	}

	if !conn.CheckRate(now) {
		metrics.RateLimited.WithLabelValues("rate").Inc()
		resp := errorResponse(req.ID, CodeRateLimited, "request rate exceeded")
		return r.finish(conn, clientPubKey, req.Method, start, resp)
	}

	if !conn.CheckBytes(now, len(reqBytes)) {
		metrics.RateLimited.WithLabelValues("bytes").Inc()
		resp := errorResponse(req.ID, CodeRateLimited, "byte budget exceeded")
		return r.finish(conn, clientPubKey, req.Method, start, resp)
	}
	conn.ConsumeBytes(now, len(reqBytes))

	limits := conn.Limits()
	guard := r.guardFor(conn.Namespace())

	ctx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	resp := r.dispatch(ctx, req, conn, guard, limits)
	return r.finish(conn, clientPubKey, req.Method, start, resp)
}

func (r *Router) dispatch(ctx context.Context, req Request, conn *connreg.ClientConnection, guard *nsguard.Guard, limits connreg.Limits) *Response {
	switch req.Method {
	case "get_info":
		return r.handleGetInfo(conn, req.ID)
	case "get":
		return r.handleGet(ctx, req, guard, limits)
	case "set":
		return r.handleSet(ctx, req, guard, limits)
	case "del":
		return r.handleDel(ctx, req, guard, limits)
	case "exists":
		return r.handleExists(ctx, req, guard, limits)
	case "mget":
		return r.handleMGet(ctx, req, guard, limits)
	case "expire":
		return r.handleExpire(ctx, req, guard, limits)
	case "ttl":
		return r.handleTTL(ctx, req, guard, limits)
	default:
		return errorResponse(req.ID, CodeNotImplemented, "method not implemented")
	}
}

func (r *Router) handleGetInfo(conn *connreg.ClientConnection, id string) *Response {
	limits := conn.Limits()
	return resultResponse(id, map[string]interface{}{
		"methods": conn.Methods(),
		"ns":      conn.Namespace(),
		"limits": map[string]int{
			"mps":      limits.MPS,
			"bps":      limits.BPS,
			"max_key":  limits.MaxKey,
			"max_val":  limits.MaxVal,
			"mget_max": limits.MGetMax,
		},
		"encryption": r.encryption,
	})
}

type getParams struct {
	Key string `json:"key"`
}

func (r *Router) handleGet(ctx context.Context, req Request, guard *nsguard.Guard, limits connreg.Limits) *Response {
	var p getParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errorResponse(req.ID, CodeInvalidKey, "malformed params")
	}
	if err := validate.Key(p.Key, limits.MaxKey); err != nil {
		return errorResponse(req.ID, string(err.(*validate.Error).Code), err.Error())
	}
	fq, err := guard.Qualify(p.Key)
	if err != nil {
		return errorResponse(req.ID, CodeRestricted, "key outside namespace")
	}

	val, found, err := r.store.Get(ctx, fq)
	if err != nil {
		return errorResponse(req.ID, CodeInternal, "backend error").withAudit(fq, 0)
	}
	if !found {
		return resultResponse(req.ID, map[string]interface{}{"value": nil}).withAudit(fq, 0)
	}
	return resultResponse(req.ID, map[string]interface{}{"value": base64Encode(val)}).withAudit(fq, len(val))
}

type setParams struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	TTL   *int   `json:"ttl,omitempty"`
}

func (r *Router) handleSet(ctx context.Context, req Request, guard *nsguard.Guard, limits connreg.Limits) *Response {
	var p setParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errorResponse(req.ID, CodeInvalidKey, "malformed params")
	}
	if err := validate.Key(p.Key, limits.MaxKey); err != nil {
		return errorResponse(req.ID, string(err.(*validate.Error).Code), err.Error())
	}
	decoded, err := validate.Value(p.Value, limits.MaxVal)
	if err != nil {
		return errorResponse(req.ID, string(err.(*validate.Error).Code), err.Error())
	}
	ttl := 0
	if p.TTL != nil {
		if err := validate.TTL(*p.TTL); err != nil {
			return errorResponse(req.ID, string(err.(*validate.Error).Code), err.Error())
		}
		ttl = *p.TTL
	}
	fq, err := guard.Qualify(p.Key)
	if err != nil {
		return errorResponse(req.ID, CodeRestricted, "key outside namespace")
	}

	if err := r.store.Set(ctx, fq, decoded, ttl); err != nil {
		return errorResponse(req.ID, CodeInternal, "backend error").withAudit(fq, len(decoded))
	}
	return resultResponse(req.ID, map[string]interface{}{"ok": true}).withAudit(fq, len(decoded))
}

type delParams struct {
	Key string `json:"key"`
}

func (r *Router) handleDel(ctx context.Context, req Request, guard *nsguard.Guard, limits connreg.Limits) *Response {
	var p delParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errorResponse(req.ID, CodeInvalidKey, "malformed params")
	}
	if err := validate.Key(p.Key, limits.MaxKey); err != nil {
		return errorResponse(req.ID, string(err.(*validate.Error).Code), err.Error())
	}
	fq, err := guard.Qualify(p.Key)
	if err != nil {
		return errorResponse(req.ID, CodeRestricted, "key outside namespace")
	}

	n, err := r.store.Del(ctx, fq)
	if err != nil {
		return errorResponse(req.ID, CodeInternal, "backend error").withAudit(fq, 0)
	}
	return resultResponse(req.ID, map[string]interface{}{"deleted": n}).withAudit(fq, 0)
}

func (r *Router) handleExists(ctx context.Context, req Request, guard *nsguard.Guard, limits connreg.Limits) *Response {
	var p getParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errorResponse(req.ID, CodeInvalidKey, "malformed params")
	}
	if err := validate.Key(p.Key, limits.MaxKey); err != nil {
		return errorResponse(req.ID, string(err.(*validate.Error).Code), err.Error())
	}
	fq, err := guard.Qualify(p.Key)
	if err != nil {
		return errorResponse(req.ID, CodeRestricted, "key outside namespace")
	}

	exists, err := r.store.Exists(ctx, fq)
	if err != nil {
		return errorResponse(req.ID, CodeInternal, "backend error").withAudit(fq, 0)
	}
	return resultResponse(req.ID, map[string]interface{}{"exists": exists}).withAudit(fq, 0)
}

type mgetParams struct {
	Keys []string `json:"keys"`
}

func (r *Router) handleMGet(ctx context.Context, req Request, guard *nsguard.Guard, limits connreg.Limits) *Response {
	var p mgetParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errorResponse(req.ID, CodeInvalidKey, "malformed params")
	}
	if err := validate.KeyBatch(p.Keys, limits.MaxKey, limits.MGetMax); err != nil {
		return errorResponse(req.ID, string(err.(*validate.Error).Code), err.Error())
	}

	fqKeys := make([]string, len(p.Keys))
	for i, k := range p.Keys {
		fq, err := guard.Qualify(k)
		if err != nil {
			return errorResponse(req.ID, CodeRestricted, "key outside namespace")
		}
		fqKeys[i] = fq
	}
	auditKey := strings.Join(fqKeys, ",")

	vals, err := r.store.MGet(ctx, fqKeys)
	if err != nil {
		return errorResponse(req.ID, CodeInternal, "backend error").withAudit(auditKey, 0)
	}
	out := make([]interface{}, len(vals))
	valueSize := 0
	for i, v := range vals {
		if v == nil {
			out[i] = nil
		} else {
			out[i] = base64Encode(v)
			valueSize += len(v)
		}
	}
	return resultResponse(req.ID, map[string]interface{}{"values": out}).withAudit(auditKey, valueSize)
}

type expireParams struct {
	Key string `json:"key"`
	TTL int    `json:"ttl"`
}

func (r *Router) handleExpire(ctx context.Context, req Request, guard *nsguard.Guard, limits connreg.Limits) *Response {
	var p expireParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errorResponse(req.ID, CodeInvalidKey, "malformed params")
	}
	if err := validate.Key(p.Key, limits.MaxKey); err != nil {
		return errorResponse(req.ID, string(err.(*validate.Error).Code), err.Error())
	}
	// expire's closed error set is {INVALID_KEY, RESTRICTED} (§6); a
	// non-positive ttl is reported as INVALID_KEY rather than
	// INVALID_VALUE, since that code isn't available to this method.
	if err := validate.TTL(p.TTL); err != nil {
		return errorResponse(req.ID, CodeInvalidKey, err.Error())
	}
	fq, err := guard.Qualify(p.Key)
	if err != nil {
		return errorResponse(req.ID, CodeRestricted, "key outside namespace")
	}

	ok, err := r.store.Expire(ctx, fq, p.TTL)
	if err != nil {
		return errorResponse(req.ID, CodeInternal, "backend error").withAudit(fq, 0)
	}
	return resultResponse(req.ID, map[string]interface{}{"ok": ok}).withAudit(fq, 0)
}

func (r *Router) handleTTL(ctx context.Context, req Request, guard *nsguard.Guard, limits connreg.Limits) *Response {
	var p getParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errorResponse(req.ID, CodeInvalidKey, "malformed params")
	}
	if err := validate.Key(p.Key, limits.MaxKey); err != nil {
		return errorResponse(req.ID, string(err.(*validate.Error).Code), err.Error())
	}
	fq, err := guard.Qualify(p.Key)
	if err != nil {
		return errorResponse(req.ID, CodeRestricted, "key outside namespace")
	}

	seconds, err := r.store.TTL(ctx, fq)
	if err != nil {
		return errorResponse(req.ID, CodeInternal, "backend error").withAudit(fq, 0)
	}
	return resultResponse(req.ID, map[string]interface{}{"ttl": seconds}).withAudit(fq, 0)
}

// finish serializes resp, accounts its bytes against the budget, inserts
// it into the idempotency cache, emits an audit record, and returns the
// wire bytes (§4.6 step 9).
func (r *Router) finish(conn *connreg.ClientConnection, clientPubKey, method string, start time.Time, resp *Response) []byte {
	out, err := json.Marshal(resp)
	if err != nil {
		out, _ = json.Marshal(errorResponse(resp.ID, CodeInternal, "response encoding failed"))
	}

	now := time.Now()
	conn.ConsumeBytes(now, len(out))
	if resp.ID != "" {
		conn.RecordResponse(resp.ID, out, now)
	}

	status := "ok"
	errCode := ""
	if resp.Error != nil {
		status = "error"
		errCode = resp.Error.Code
	}

	metrics.RequestsTotal.WithLabelValues(method, errCode).Inc()
	metrics.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	var keyHash string
	if resp.auditKey != "" {
		keyHash = audit.KeyHash(resp.auditKey)
	}

	r.auditLog.Append(conn.Namespace(), audit.Record{
		Method:         method,
		KeyHash:        keyHash,
		ValueSize:      resp.auditValueSize,
		Status:         status,
		ErrorCode:      errCode,
		LatencyMS:      time.Since(start).Milliseconds(),
		ClientRedacted: audit.RedactClient(clientPubKey),
		Timestamp:      now,
	})

	return out
}
