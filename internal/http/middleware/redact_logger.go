// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. Signed init data
// (hash, signature, user claims) never reaches the logs, nor do obvious PII
// patterns. Request and response bodies are never logged.
package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HeaderInitData carries the signed session payload when the Authorization
// header is not used.
const HeaderInitData = "X-Init-Data"

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders specifies extra HTTP header names whose values will be fully
// replaced with "[REDACTED]". Matching is case-insensitive and merged with
// the built-in sensitive headers (Authorization, Cookie, Set-Cookie and
// X-Init-Data).
type RedactOptions struct {
	MaskHeaders []string
}

var (
	sessionRE = regexp.MustCompile(`(?i)\b(hash|signature|user)=[^&]*`)
	uuidRE    = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE   = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)

	// Digits only, so hex runs inside ids never look like phone numbers.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redactor scrubs request metadata before it reaches the access log.
type redactor struct {
	masked map[string]struct{} // lowercased header names
}

func newRedactor(extra []string) redactor {
	masked := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
		"x-init-data":   {},
	}
	for _, h := range extra {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}
	return redactor{masked: masked}
}

// text replaces session material first, then ids, emails and phone numbers.
// Ids go before phones: the phone pattern would otherwise eat UUID segments.
func (redactor) text(s string) string {
	if s == "" {
		return s
	}
	out := sessionRE.ReplaceAllString(s, "$1=[REDACTED]")
	out = uuidRE.ReplaceAllString(out, "[REDACTED:id]")
	out = emailRE.ReplaceAllString(out, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(out, "[REDACTED:phone]")
}

// headers flattens h, masking sensitive headers outright and scrubbing the rest.
func (rd redactor) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := rd.masked[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = rd.text(strings.Join(vv, ", "))
	}
	return out
}

// RedactingLogger returns a Gin middleware that writes one access log line
// per request and installs the request-scoped logger (request_id) used by
// handlers and, through zerolog.Ctx, by services.
//
// The line carries method, route, scrubbed query and headers, status, size
// and latency. It is logged at INFO, WARN for 4xx and ERROR for 5xx or when
// handlers attached gin errors. Auth middleware further down may add user_id
// to the scoped logger; the access line picks that up.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	rd := newRedactor(opts.MaskHeaders)

	return func(c *gin.Context) {
		start := time.Now()
		path := routeLabel(c)
		safeQuery := truncate(rd.text(c.Request.URL.RawQuery), maxQueryLogLength)
		safeHeaders := rd.headers(c.Request.Header)

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		SetLogger(c, log.With().Str("request_id", reqID).Logger())

		c.Next()

		status := c.Writer.Status()
		lg := LoggerFrom(c)
		ev := lg.Info()
		switch {
		case len(c.Errors) > 0, status >= 500:
			ev = lg.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = lg.Warn()
		}

		ev.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
