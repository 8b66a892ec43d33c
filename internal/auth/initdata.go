// Package auth verifies the signed launch parameters ("init data") that the
// hosting platform hands to the mini-app. A verified payload proves the
// caller's identity without any server-side session store.
//
// Verification is a pure function: it never touches storage and reports every
// failure as one of the sentinel errors below, so the HTTP layer can map each
// one to a stable error code (see Code).
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Field names inside the signed payload.
const (
	FieldHash     = "hash"
	FieldAuthDate = "auth_date"
	FieldUser     = "user"
)

// secretKeyLabel is the fixed HMAC key used to derive the per-application key
// from the shared bot secret.
const secretKeyLabel = "WebAppData"

// DefaultMaxAge is the freshness window applied when the caller passes 0.
const DefaultMaxAge = 24 * time.Hour

// maxClockSkew bounds how far in the future auth_date may be.
const maxClockSkew = 60 * time.Second

// Verification failures.
var (
	ErrBadPayload        = errors.New("init data is not a valid query string")
	ErrNoSignature       = errors.New("init data has no hash")
	ErrNoTimestamp       = errors.New("init data has no auth_date")
	ErrBadTimestamp      = errors.New("init data auth_date is not numeric")
	ErrTimestampInFuture = errors.New("init data auth_date is in the future")
	ErrSignatureExpired  = errors.New("init data signature expired")
	ErrBadSignature      = errors.New("init data signature mismatch")
	ErrNoIdentity        = errors.New("init data has no user")
	ErrBadIdentityJSON   = errors.New("init data user is not valid JSON")
	ErrNoIdentityID      = errors.New("init data user has no id")
)

// Identity is the authenticated caller extracted from a verified payload.
// Optional display fields are empty when the platform did not send them.
type Identity struct {
	ExternalID   string
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	AuthDate     time.Time
}

// maxExternalIDLen matches the users.external_id column.
const maxExternalIDLen = 64

// identityClaim is the strict schema of the "user" claim.
type identityClaim struct {
	ID           externalID `json:"id"`
	Username     *string    `json:"username"`
	FirstName    *string    `json:"first_name"`
	LastName     *string    `json:"last_name"`
	LanguageCode *string    `json:"language_code"`
}

// externalID is the platform's opaque user id. It may arrive as a JSON number
// or a JSON string; either is kept as written. Other JSON types are rejected.
type externalID string

func (e *externalID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = externalID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*e = externalID(n)
	return nil
}

// Verify validates payload against secret and the freshness window maxAge
// (DefaultMaxAge when maxAge <= 0) as of now, and returns the embedded identity.
func Verify(payload, secret string, maxAge time.Duration, now time.Time) (Identity, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	values, err := url.ParseQuery(payload)
	if err != nil {
		return Identity{}, ErrBadPayload
	}

	signature := values.Get(FieldHash)
	if signature == "" {
		return Identity{}, ErrNoSignature
	}
	values.Del(FieldHash)

	rawDate := values.Get(FieldAuthDate)
	if rawDate == "" {
		return Identity{}, ErrNoTimestamp
	}
	ts, err := strconv.ParseInt(rawDate, 10, 64)
	if err != nil {
		return Identity{}, ErrBadTimestamp
	}
	issued := time.Unix(ts, 0)
	if issued.Sub(now) > maxClockSkew {
		return Identity{}, ErrTimestampInFuture
	}
	if now.Sub(issued) > maxAge {
		return Identity{}, ErrSignatureExpired
	}

	got, err := hex.DecodeString(signature)
	if err != nil {
		return Identity{}, ErrBadSignature
	}
	if !hmac.Equal(got, signatureBytes(values, secret)) {
		return Identity{}, ErrBadSignature
	}

	id, err := decodeIdentity(values.Get(FieldUser))
	if err != nil {
		return Identity{}, err
	}
	id.AuthDate = issued.UTC()
	return id, nil
}

// DataCheckString renders every key=value pair sorted by key (byte order) and
// joined with '\n'. The hash field must already be removed.
func DataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}

// SecretKey derives the per-application signing key from the shared secret.
func SecretKey(secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secretKeyLabel))
	_, _ = mac.Write([]byte(secret))
	return mac.Sum(nil)
}

// Sign returns the lowercase hex signature of values (hash excluded) under
// secret. It is the inverse of Verify and is used by tests and local tooling.
func Sign(values url.Values, secret string) string {
	clean := make(url.Values, len(values))
	for k, v := range values {
		if k == FieldHash {
			continue
		}
		clean[k] = v
	}
	return hex.EncodeToString(signatureBytes(clean, secret))
}

func signatureBytes(values url.Values, secret string) []byte {
	mac := hmac.New(sha256.New, SecretKey(secret))
	_, _ = mac.Write([]byte(DataCheckString(values)))
	return mac.Sum(nil)
}

func decodeIdentity(raw string) (Identity, error) {
	if strings.TrimSpace(raw) == "" {
		return Identity{}, ErrNoIdentity
	}
	var claim identityClaim
	if err := json.Unmarshal([]byte(raw), &claim); err != nil {
		return Identity{}, ErrBadIdentityJSON
	}
	if claim.ID == "" {
		return Identity{}, ErrNoIdentityID
	}
	if len(claim.ID) > maxExternalIDLen {
		return Identity{}, ErrBadIdentityJSON
	}
	return Identity{
		ExternalID:   string(claim.ID),
		Username:     deref(claim.Username),
		FirstName:    deref(claim.FirstName),
		LastName:     deref(claim.LastName),
		LanguageCode: deref(claim.LanguageCode),
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Code maps a verification error to its stable, machine-readable code.
// Unknown errors map to "unauthorized".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrBadPayload):
		return "bad_payload"
	case errors.Is(err, ErrNoSignature):
		return "no_signature"
	case errors.Is(err, ErrNoTimestamp):
		return "no_timestamp"
	case errors.Is(err, ErrBadTimestamp):
		return "bad_timestamp"
	case errors.Is(err, ErrTimestampInFuture):
		return "timestamp_in_future"
	case errors.Is(err, ErrSignatureExpired):
		return "signature_expired"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrNoIdentity):
		return "no_identity"
	case errors.Is(err, ErrBadIdentityJSON):
		return "bad_identity_json"
	case errors.Is(err, ErrNoIdentityID):
		return "no_identity_id"
	default:
		return "unauthorized"
	}
}
