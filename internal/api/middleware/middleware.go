package middleware

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
	"github.com/ledgerd/ledgerd/pkg/auth"
	"github.com/ledgerd/ledgerd/pkg/logger"
	"github.com/ledgerd/ledgerd/pkg/metrics"
	"github.com/ledgerd/ledgerd/pkg/ratelimit"
)

const (
	// HeaderCorrelationID propagates a caller supplied trace handle
	HeaderCorrelationID = "X-Correlation-ID"

	maxCorrelationIDLength = 128
)

// abortWithError writes the error envelope and stops the chain
func abortWithError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
	c.Abort()
}

// CorrelationID accepts the caller's correlation id or generates one,
// binds it to the request context and echoes it on the response. Caller
// values are dropped when they would not survive a log pipeline.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := sanitizeCorrelationID(c.GetHeader(HeaderCorrelationID))
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		c.Set("correlation_id", correlationID)
		c.Header(HeaderCorrelationID, correlationID)
		c.Next()
	}
}

// sanitizeCorrelationID keeps printable ASCII up to the length cap
func sanitizeCorrelationID(value string) string {
	if value == "" || len(value) > maxCorrelationIDLength {
		return ""
	}
	for i := 0; i < len(value); i++ {
		if value[i] < 0x21 || value[i] > 0x7e {
			return ""
		}
	}
	return value
}

// RequestSizeLimit caps request bodies. Oversized bodies surface as
// read errors in the JSON binding and map to 400.
func RequestSizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// ContentType rejects writes that do not declare a JSON body
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			contentType := c.GetHeader("Content-Type")
			if !strings.Contains(contentType, "application/json") {
				abortWithError(c, http.StatusUnsupportedMediaType, domainerrors.CodeUnsupportedMediaType,
					"Content-Type must be application/json")
				return
			}
		}
		c.Next()
	}
}

// Logger logs HTTP requests with structured logging
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		if raw != "" {
			path = path + "?" + raw
		}

		correlationID := c.GetString("correlation_id")
		requestLogger := log.ForRequest(correlationID, c.Request.Method, path)

		c.Set("logger", requestLogger)

		c.Next()

		latency := time.Since(start)

		requestLogger.Infow("HTTP Request",
			"status_code", c.Writer.Status(),
			"latency", latency,
			"client_ip", c.ClientIP(),
			"response_size", c.Writer.Size(),
		)
	}
}

// Recovery handles panics and returns 500 errors
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				correlationID := c.GetString("correlation_id")
				requestLogger := log.ForRequest(correlationID, c.Request.Method, c.Request.URL.Path)

				requestLogger.Errorw("Panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
				)

				abortWithError(c, http.StatusInternalServerError, domainerrors.CodeInternal,
					"internal server error")
			}
		}()
		c.Next()
	}
}

// CORS handles Cross-Origin Resource Sharing
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Correlation-ID, X-Idempotency-Key")
		c.Header("Access-Control-Expose-Headers", "X-Correlation-ID, X-Idempotency-Replay, Retry-After")
		c.Header("Access-Control-Max-Age", "3600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimit throttles clients per IP using the given limiter
func RateLimit(limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := limiter.Allow(c.Request.Context(), c.ClientIP())
		if !result.Allowed {
			metrics.RateLimitDropsTotal.Inc()
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			}
			abortWithError(c, http.StatusTooManyRequests, domainerrors.CodeRateLimitExceeded,
				"rate limit exceeded")
			return
		}
		c.Next()
	}
}

// SecurityHeaders adds security headers to responses. The API serves
// JSON only, so the CSP forbids everything.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// OperatorAuth guards the admin surface with bearer service tokens
func OperatorAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED",
				"Authorization header required")
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED",
				"invalid authorization format")
			return
		}

		claims, err := auth.ValidateToken(tokenParts[1], secret)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED",
				"invalid or expired token")
			return
		}

		if claims.Scope != auth.ScopeOperator {
			abortWithError(c, http.StatusForbidden, "FORBIDDEN",
				"operator scope required")
			return
		}

		c.Set("operator_subject", claims.Subject)
		c.Next()
	}
}
