package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// IdempotencyRecord caches a completed response under its client key.
// A key maps to exactly one request fingerprint; replays with the same
// fingerprint get the stored response back byte for byte.
type IdempotencyRecord struct {
	Key            string          `json:"key" db:"idempotency_key"`
	RequestHash    string          `json:"request_hash" db:"request_hash"`
	ResponseStatus int             `json:"response_status" db:"response_status"`
	ResponseBody   json.RawMessage `json:"response_body" db:"response_body"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at" db:"expires_at"`
}

// FingerprintRequest hashes method|path|body. Folding method and path
// in keeps one client key from colliding across different operations.
func FingerprintRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte("|"))
	h.Write([]byte(path))
	h.Write([]byte("|"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
