// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-report-backend/internal/domain"
)

// FindUserByExternalID returns the user bound to a platform identity, or
// ErrNotFound.
func FindUserByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser fetches a user by internal id, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser inserts u, or, when a row with the same ExternalID already
// exists, refreshes only its display fields. Locale and ID of an existing row
// are preserved. The stored row is returned.
func UpsertUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	now := time.Now().UTC()
	row := *u
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	row.CreatedAt, row.UpdatedAt = now, now

	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "first_name", "last_name", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}
	return FindUserByExternalID(ctx, db, u.ExternalID)
}

// UpdateUserLocale sets the locale of user id. Returns ErrNotFound when no
// row matched.
func UpdateUserLocale(ctx context.Context, db *gorm.DB, id, locale string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"locale": locale, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
