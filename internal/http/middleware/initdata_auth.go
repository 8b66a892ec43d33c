// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements InitDataAuth, which authenticates every API request
// from the platform-signed init data payload. There is no server-side
// session: each request carries the payload, it is verified against the bot
// token, and the embedded identity is resolved to an internal user.
//
// The payload is read from "Authorization: tma <payload>" or, failing that,
// from the X-Init-Data header. On success the internal user id is stored in
// the Gin context under "userID" (consumed by handlers and KeyByUserOrIP)
// and the request-scoped logger gains a user_id field.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-report-backend/internal/auth"
	"github.com/tbourn/go-report-backend/internal/domain"
)

// UserIDKey is the Gin context key holding the authenticated user's id.
const UserIDKey = "userID"

// authScheme is the Authorization scheme for init data payloads.
const authScheme = "tma"

// IdentityResolver maps a verified identity to a stored user.
type IdentityResolver interface {
	Resolve(ctx context.Context, id auth.Identity) (*domain.User, error)
}

// InitDataOptions configures InitDataAuth.
type InitDataOptions struct {
	// BotToken is the shared secret the payload is signed with.
	BotToken string
	// MaxAge bounds how old auth_date may be (auth.DefaultMaxAge when <= 0).
	MaxAge time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// InitDataAuth verifies the signed payload and resolves the caller.
//
// Failures abort with 401 and a code from auth.Code (e.g. "bad_signature",
// "signature_expired"); resolver failures abort with 500.
func InitDataAuth(opts InitDataOptions, users IdentityResolver) gin.HandlerFunc {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		payload := initDataFrom(c)
		if payload == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing init data")
			return
		}

		id, err := auth.Verify(payload, opts.BotToken, opts.MaxAge, now())
		if err != nil {
			LoggerFrom(c).Warn().Str("code", auth.Code(err)).Msg("init data rejected")
			abortJSON(c, http.StatusUnauthorized, auth.Code(err), err.Error())
			return
		}

		u, err := users.Resolve(c.Request.Context(), id)
		if err != nil {
			LoggerFrom(c).Error().Err(err).Msg("resolve user")
			abortJSON(c, http.StatusInternalServerError, "internal_error", "could not resolve user")
			return
		}

		c.Set(UserIDKey, u.ID)
		SetLogger(c, LoggerFrom(c).With().Str("user_id", u.ID).Logger())
		c.Next()
	}
}

func initDataFrom(c *gin.Context) string {
	if h := strings.TrimSpace(c.GetHeader("Authorization")); h != "" {
		scheme, rest, found := strings.Cut(h, " ")
		if found && strings.EqualFold(scheme, authScheme) {
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(c.GetHeader(HeaderInitData))
}

// abortJSON writes the standard error envelope and stops the chain.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"ok":         false,
		"error":      code,
		"message":    msg,
		"request_id": c.Writer.Header().Get(requestIDHeader),
	})
}
