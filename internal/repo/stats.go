// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file holds the report listing filter and the snapshot
// query behind the list ETag.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-report-backend/internal/domain"
)

// ReportFilter selects one user's reports, optionally of a single kind.
type ReportFilter struct {
	UserID string
	Kind   string // empty matches every kind
}

func (f ReportFilter) scope(db *gorm.DB) *gorm.DB {
	q := db.Where("user_id = ?", f.UserID)
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	return q
}

// ReportsStats returns the number of reports matching f and the latest
// UpdatedAt among them (nil when there are none).
//
// A report settling to ready or failed bumps UpdatedAt, so the pair changes
// whenever the listing a client would see changes.
func ReportsStats(ctx context.Context, db *gorm.DB, f ReportFilter) (count int64, lastUpdated *time.Time, err error) {
	base := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Report{}).Scopes(f.scope)
	}

	if err = base().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// ORDER BY instead of MAX(): SQLite hands MAX(updated_at) back as TEXT.
	var row struct{ UpdatedAt time.Time }
	if err = base().Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
