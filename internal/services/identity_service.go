// Package services – IdentityService
//
// This file implements IdentityService, which maps a verified platform
// identity onto an internal user row. First contact creates the row with a
// locale derived from the identity; later contacts refresh display metadata
// only.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-report-backend/internal/auth"
	"github.com/tbourn/go-report-backend/internal/domain"
)

// UserRepo defines the repository contract required by IdentityService.
type UserRepo interface {
	// UpsertUser inserts or refreshes a user keyed by ExternalID.
	UpsertUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error)

	// GetUser fetches a user by internal id.
	GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)

	// UpdateUserLocale sets a user's locale.
	UpdateUserLocale(ctx context.Context, db *gorm.DB, id, locale string) error
}

// IdentityService resolves verified identities to users.
type IdentityService struct {
	DB   *gorm.DB
	Repo UserRepo

	// DefaultLocale is used when the identity carries no usable language code.
	DefaultLocale string
}

// NewIdentityService constructs an IdentityService; an empty defaultLocale
// means "en".
func NewIdentityService(db *gorm.DB, r UserRepo, defaultLocale string) *IdentityService {
	if tag, ok := NormalizeLocale(defaultLocale); ok {
		defaultLocale = tag
	} else {
		defaultLocale = "en"
	}
	return &IdentityService{DB: db, Repo: r, DefaultLocale: defaultLocale}
}

// Resolve upserts the user for id and returns the stored row.
func (s *IdentityService) Resolve(ctx context.Context, id auth.Identity) (*domain.User, error) {
	tr := otel.Tracer("services/IdentityService")
	ctx, span := tr.Start(ctx, "Resolve",
		trace.WithAttributes(attribute.String("user.external_id", id.ExternalID)),
	)
	defer span.End()

	locale, ok := NormalizeLocale(id.LanguageCode)
	if !ok {
		locale = s.DefaultLocale
	}
	return s.Repo.UpsertUser(ctx, s.DB, &domain.User{
		ExternalID: id.ExternalID,
		Username:   id.Username,
		FirstName:  id.FirstName,
		LastName:   id.LastName,
		Locale:     locale,
	})
}

// Get returns user userID or ErrUserNotFound.
func (s *IdentityService) Get(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.Repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// SetLocale validates and stores a new locale for userID.
func (s *IdentityService) SetLocale(ctx context.Context, userID, locale string) (*domain.User, error) {
	tag, ok := NormalizeLocale(locale)
	if !ok {
		return nil, ErrInvalidLocale
	}
	if err := s.Repo.UpdateUserLocale(ctx, s.DB, userID, tag); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.Get(ctx, userID)
}

// NormalizeLocale parses raw as a BCP-47 tag and returns its canonical form.
func NormalizeLocale(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	tag, err := language.Parse(raw)
	if err != nil || tag == language.Und {
		return "", false
	}
	return tag.String(), true
}
