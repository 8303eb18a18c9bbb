// Package validate implements C6: enforcing the key/value/TTL/batch-count
// limits carried in a connection's policy (§4.6 dispatch step 6). Pure
// functions over raw sizes — no state, no I/O — in the same spirit as the
// teacher's parameter-schema checks in crypto/keys before constructing a
// key pair.
package validate

import (
	"encoding/base64"
	"fmt"
)

// Code identifies which protocol error a validation failure maps to.
type Code string

const (
	CodeInvalidKey       Code = "INVALID_KEY"
	CodeInvalidValue     Code = "INVALID_VALUE"
	CodePayloadTooLarge  Code = "PAYLOAD_TOO_LARGE"
)

// Error carries a Code alongside a human-readable, non-revealing message
// (§7 band 2/3: "message is short and non-revealing").
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func invalidKey(msg string) error { return &Error{Code: CodeInvalidKey, Message: msg} }
func invalidValue(msg string) error { return &Error{Code: CodeInvalidValue, Message: msg} }
func tooLarge(msg string) error { return &Error{Code: CodePayloadTooLarge, Message: msg} }

// Key checks a raw (pre-qualification) key string against maxKey.
func Key(k string, maxKey int) error {
	if k == "" {
		return invalidKey("key must not be empty")
	}
	if len(k) > maxKey {
		return invalidKey("key exceeds maximum length")
	}
	return nil
}

// Value decodes a base64-encoded value and checks its decoded length
// against maxVal, returning the decoded bytes on success (§4.6: "the
// max_val limit applies to the decoded byte length").
func Value(b64 string, maxVal int) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, invalidValue("value is not valid base64")
	}
	if len(decoded) > maxVal {
		return nil, invalidValue("decoded value exceeds maximum length")
	}
	return decoded, nil
}

// TTL checks that ttl is a positive integer of seconds.
func TTL(ttl int) error {
	if ttl <= 0 {
		return invalidValue("ttl must be a positive integer")
	}
	return nil
}

// KeyBatch checks a batch of keys (mget) against maxKey per-key and
// mgetMax for the batch count.
func KeyBatch(keys []string, maxKey, mgetMax int) error {
	if len(keys) > mgetMax {
		return tooLarge("too many keys in batch")
	}
	for _, k := range keys {
		if err := Key(k, maxKey); err != nil {
			return err
		}
	}
	return nil
}
