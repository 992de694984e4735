// Package idempotency makes unsafe HTTP endpoints replay-safe. A client
// key maps to exactly one request fingerprint; the first completed
// response is cached and replayed byte for byte, and concurrent callers
// sharing a key are serialized on a database advisory lock.
package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
	"github.com/ledgerd/ledgerd/internal/infrastructure/database"
	"github.com/ledgerd/ledgerd/pkg/logger"
	"github.com/ledgerd/ledgerd/pkg/metrics"
)

const (
	// HeaderKey carries the client supplied idempotency key
	HeaderKey = "X-Idempotency-Key"

	// HeaderReplay marks a response served from the idempotency cache
	HeaderReplay = "X-Idempotency-Replay"

	// MaxKeyLength bounds the stored key
	MaxKeyLength = 255

	// MaxBodySize is the largest body the fingerprint will read (1MB)
	MaxBodySize = 1 << 20
)

// Store caches completed responses under client keys
type Store interface {
	Get(ctx context.Context, key string) (*entities.IdempotencyRecord, error)
	Put(ctx context.Context, record *entities.IdempotencyRecord) error
}

// Locker serializes concurrent requests sharing a key
type Locker interface {
	AcquireKeyLock(ctx context.Context, key string, timeout time.Duration) (release func(), err error)
}

// Config holds middleware settings
type Config struct {
	TTL         time.Duration
	LockTimeout time.Duration
}

// responseWriter tees the response body so it can be cached
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware guards one unsafe route. When required is true a missing
// key rejects the request; otherwise the request passes through
// unprotected.
func Middleware(store Store, locker Locker, config Config, log *logger.Logger, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderKey)
		if key == "" {
			if required {
				respondError(c, http.StatusBadRequest, domainerrors.CodeIdempotencyKeyMissing,
					"this endpoint requires an "+HeaderKey+" header")
				return
			}
			c.Next()
			return
		}

		if !validKey(key) {
			respondError(c, http.StatusBadRequest, domainerrors.CodeIdempotencyKeyInvalid,
				"idempotency key must be printable ASCII, at most 255 characters")
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodySize))
		if err != nil {
			respondError(c, http.StatusBadRequest, domainerrors.CodeInvalidJSON,
				"failed to read request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		fingerprint := entities.FingerprintRequest(c.Request.Method, c.Request.URL.Path, body)

		// First look without the lock: replays of settled requests are
		// the common case and should not queue behind in-flight ones.
		if served := serveCached(c, store, key, fingerprint, log); served {
			return
		}

		release, err := locker.AcquireKeyLock(c.Request.Context(), key, config.LockTimeout)
		if err != nil {
			if errors.Is(err, database.ErrLockTimeout) {
				metrics.IdempotencyTotal.WithLabelValues("lock_timeout").Inc()
				c.Header("Retry-After", "5")
				respondError(c, http.StatusServiceUnavailable, domainerrors.CodeIdempotencyLockTimeout,
					"another request with this idempotency key is in flight")
				return
			}
			log.Error("Failed to acquire idempotency lock", "idempotency_key", key, "error", err)
			respondError(c, http.StatusInternalServerError, domainerrors.CodeInternal,
				"internal server error")
			return
		}
		defer release()

		// Second look under the lock: the in-flight holder we queued
		// behind may have stored its response in the meantime.
		if served := serveCached(c, store, key, fingerprint, log); served {
			return
		}

		writer := &responseWriter{ResponseWriter: c.Writer, body: bytes.NewBuffer(nil)}
		c.Writer = writer
		c.Set("idempotency_key", key)

		c.Next()

		// Only settled outcomes are cached. A 5xx or a dropped
		// connection must stay retryable under the same key.
		status := writer.Status()
		if status >= http.StatusInternalServerError || writer.body.Len() == 0 {
			return
		}

		record := &entities.IdempotencyRecord{
			Key:            key,
			RequestHash:    fingerprint,
			ResponseStatus: status,
			ResponseBody:   writer.body.Bytes(),
			CreatedAt:      time.Now().UTC(),
			ExpiresAt:      time.Now().UTC().Add(config.TTL),
		}
		if err := store.Put(c.Request.Context(), record); err != nil {
			log.Error("Failed to store idempotency record", "idempotency_key", key, "error", err)
			return
		}
		metrics.IdempotencyTotal.WithLabelValues("stored").Inc()
	}
}

// serveCached replays or rejects against an existing record. Store
// errors fail open: the transfer pipeline re-checks the key inside its
// transaction, so a missed replay here cannot double-move money.
func serveCached(c *gin.Context, store Store, key, fingerprint string, log *logger.Logger) bool {
	existing, err := store.Get(c.Request.Context(), key)
	if err != nil {
		log.Error("Failed to look up idempotency key", "idempotency_key", key, "error", err)
		return false
	}
	if existing == nil {
		return false
	}

	if existing.RequestHash != fingerprint {
		metrics.IdempotencyTotal.WithLabelValues("conflict").Inc()
		respondError(c, http.StatusUnprocessableEntity, domainerrors.CodeIdempotencyKeyReuse,
			"idempotency key was already used for a different request")
		return true
	}

	metrics.IdempotencyTotal.WithLabelValues("replay").Inc()
	log.Info("Replaying cached response", "idempotency_key", key, "status", existing.ResponseStatus)

	c.Header(HeaderReplay, "true")
	c.Data(existing.ResponseStatus, "application/json", existing.ResponseBody)
	c.Abort()
	return true
}

// validKey accepts printable ASCII up to MaxKeyLength
func validKey(key string) bool {
	if len(key) > MaxKeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x21 || key[i] > 0x7e {
			return false
		}
	}
	return true
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
	c.Abort()
}
