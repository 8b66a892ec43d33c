// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Report
// model.
//
// Reports are looked up by their normalized request fields, compared column
// by column (NULL for absent optional fields), never by digest. Status moves
// only through CompleteReport, whose WHERE clause makes the in_progress ->
// terminal transition a single conditional write.
package repo

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-report-backend/internal/domain"
	"github.com/tbourn/go-report-backend/internal/fingerprint"
)

// FindLatestReport returns the most recently created report of userID whose
// normalized fields equal fp. When status is non-nil only rows in that status
// are considered. Returns ErrNotFound when nothing matches.
func FindLatestReport(ctx context.Context, db *gorm.DB, userID string, fp fingerprint.Fingerprint, status *domain.ReportStatus) (*domain.Report, error) {
	var match domain.Report
	match.SetFingerprint(fp)

	q := db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND subject_date = ?", userID, match.Kind, match.SubjectDate)
	q = eqOrNull(q, "mode", match.Mode)
	q = eqOrNull(q, "subject_name", match.SubjectName)
	q = eqOrNull(q, "subject_place", match.SubjectPlace)
	q = eqOrNull(q, "subject_time", match.SubjectTime)
	q = eqOrNull(q, "partner_date", match.PartnerDate)
	q = eqOrNull(q, "partner_name", match.PartnerName)
	q = eqOrNull(q, "partner_place", match.PartnerPlace)
	q = eqOrNull(q, "partner_time", match.PartnerTime)
	if status != nil {
		q = q.Where("status = ?", *status)
	}

	var r domain.Report
	if err := q.Order("created_at DESC").First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

func eqOrNull(q *gorm.DB, col string, v *string) *gorm.DB {
	if v == nil {
		return q.Where(col + " IS NULL")
	}
	return q.Where(col+" = ?", *v)
}

// CreateReport inserts r. ID and timestamps are filled when empty. A second
// in_progress row for the same (user, fingerprint) violates
// ux_reports_inflight and yields ErrDuplicate.
func CreateReport(ctx context.Context, db *gorm.DB, r *domain.Report) error {
	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UpdateReportSections replaces the selection list of an in_progress report.
// Terminal reports are never touched: ErrNotInProgress is returned for them,
// ErrNotFound when the row does not exist.
func UpdateReportSections(ctx context.Context, db *gorm.DB, id string, sections []string) error {
	res := db.WithContext(ctx).
		Model(&domain.Report{}).
		Where("id = ? AND status = ?", id, domain.StatusInProgress).
		Updates(map[string]any{
			"sections":   datatypes.JSONSlice[string](sections),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return missingOrTerminal(ctx, db, id, nil)
	}
	return nil
}

// ReportOutcome is the terminal payload written by CompleteReport.
//
// Sections is the selection the outcome was produced for; it must still be
// the row's stored selection for the write to happen.
type ReportOutcome struct {
	Status      domain.ReportStatus
	Sections    []string
	Text        string
	ErrorCode   string
	ErrorDetail string
}

// CompleteReport moves report id from in_progress to out.Status in a single
// conditional UPDATE. Nothing is written when the row is already terminal
// (ErrNotInProgress) or when its selection no longer equals out.Sections
// (ErrSelectionChanged). A terminal row holding another selection also yields
// ErrSelectionChanged.
func CompleteReport(ctx context.Context, db *gorm.DB, id string, out ReportOutcome) error {
	res := db.WithContext(ctx).
		Model(&domain.Report{}).
		Where("id = ? AND status = ?", id, domain.StatusInProgress).
		Where("sections = ?", datatypes.JSONSlice[string](out.Sections)).
		Updates(map[string]any{
			"status":       out.Status,
			"text":         out.Text,
			"error_code":   out.ErrorCode,
			"error_detail": out.ErrorDetail,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return missingOrTerminal(ctx, db, id, out.Sections)
	}
	return nil
}

// missingOrTerminal explains why a conditional update of id matched no row.
// When sections is non-nil, a row holding another selection yields
// ErrSelectionChanged whatever its status.
func missingOrTerminal(ctx context.Context, db *gorm.DB, id string, sections []string) error {
	var r domain.Report
	if err := db.WithContext(ctx).Select("id", "status", "sections").Where("id = ?", id).First(&r).Error; err != nil {
		return err
	}
	if sections != nil && !slices.Equal([]string(r.Sections), sections) {
		return ErrSelectionChanged
	}
	if r.Status == domain.StatusInProgress {
		return ErrSelectionChanged
	}
	return ErrNotInProgress
}

// GetReport fetches a report by id and owner, or ErrNotFound.
func GetReport(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Report, error) {
	var r domain.Report
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CountReports returns the number of reports matching f.
func CountReports(ctx context.Context, db *gorm.DB, f ReportFilter) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Report{}).
		Scopes(f.scope).
		Count(&total).Error
	return total, err
}

// ListReportsPage returns a page of reports matching f, newest first.
func ListReportsPage(ctx context.Context, db *gorm.DB, f ReportFilter, offset, limit int) ([]domain.Report, error) {
	var out []domain.Report
	err := db.WithContext(ctx).
		Scopes(f.scope).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
