// Package domain defines the persistence models for users and generated
// reports. These types are mapped with GORM and form the core data layer
// of the report backend.
package domain

import (
	"time"

	"gorm.io/datatypes"

	"github.com/tbourn/go-report-backend/internal/fingerprint"
)

// User is one authenticated external identity.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - ExternalID: platform user id; unique, never changes.
//   - Username / FirstName / LastName: display metadata, refreshed on every
//     verified contact and never trusted for authorization.
//   - Locale: BCP-47 tag used for report language; set on creation and
//     changed only through an explicit locale update.
type User struct {
	ID         string    `json:"id"                   gorm:"type:char(36);primaryKey"`
	ExternalID string    `json:"external_id"          gorm:"type:varchar(64);not null;uniqueIndex:ux_users_external_id"`
	Username   string    `json:"username,omitempty"   gorm:"type:varchar(64)"`
	FirstName  string    `json:"first_name,omitempty" gorm:"type:varchar(128)"`
	LastName   string    `json:"last_name,omitempty"  gorm:"type:varchar(128)"`
	Locale     string    `json:"locale"               gorm:"type:varchar(35);not null;default:'en'"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// ReportStatus is the lifecycle state of a Report.
type ReportStatus string

const (
	// StatusInProgress is the initial state; generation has been requested.
	StatusInProgress ReportStatus = "in_progress"
	// StatusReady is terminal success; Text is set.
	StatusReady ReportStatus = "ready"
	// StatusFailed is terminal failure; ErrorCode and ErrorDetail are set.
	StatusFailed ReportStatus = "failed"
)

// Terminal reports whether s can no longer change.
func (s ReportStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Report is one generation request and its outcome.
//
// The normalized request fields are stored column by column so that lookups
// compare them with the same normalization on both sides; absent optional
// fields are NULL. FingerprintKey is the canonical rendering of the same
// fields and only backs ux_reports_inflight, which allows at most one
// in-progress report per (user, fingerprint).
//
// Sections is the canonical selection list the text was (or is being)
// generated from. It is frozen once Status is terminal.
type Report struct {
	ID     string `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID string `json:"user_id" gorm:"type:char(36);not null;index:idx_reports_lookup,priority:1;index:idx_reports_user_created,priority:1;uniqueIndex:ux_reports_inflight,where:status = 'in_progress'"`
	Kind   string `json:"kind"    gorm:"type:varchar(32);not null;index:idx_reports_lookup,priority:2"`

	Mode         *string `json:"mode,omitempty"          gorm:"type:varchar(64)"`
	SubjectDate  string  `json:"subject_date"            gorm:"type:varchar(10);not null;index:idx_reports_lookup,priority:3"`
	SubjectName  *string `json:"subject_name,omitempty"  gorm:"type:varchar(255)"`
	SubjectPlace *string `json:"subject_place,omitempty" gorm:"type:varchar(255)"`
	SubjectTime  *string `json:"subject_time,omitempty"  gorm:"type:varchar(5)"`
	PartnerDate  *string `json:"partner_date,omitempty"  gorm:"type:varchar(10)"`
	PartnerName  *string `json:"partner_name,omitempty"  gorm:"type:varchar(255)"`
	PartnerPlace *string `json:"partner_place,omitempty" gorm:"type:varchar(255)"`
	PartnerTime  *string `json:"partner_time,omitempty"  gorm:"type:varchar(5)"`

	FingerprintKey string                      `json:"-"            gorm:"type:text;not null;uniqueIndex:ux_reports_inflight"`
	Sections       datatypes.JSONSlice[string] `json:"sections"`
	Status         ReportStatus                `json:"status"       gorm:"type:varchar(16);not null;check:status IN ('in_progress','ready','failed')"`
	Text           string                      `json:"text,omitempty"       gorm:"type:text"`
	ErrorCode      string                      `json:"error_code,omitempty" gorm:"type:varchar(64)"`
	ErrorDetail    string                      `json:"error_detail,omitempty" gorm:"type:text"`
	CreatedAt      time.Time                   `json:"created_at"   gorm:"index:idx_reports_lookup,priority:4;index:idx_reports_user_created,priority:2"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// TableName returns the database table name for Report.
func (Report) TableName() string { return "reports" }

// SetFingerprint copies the normalized request fields of fp onto r.
func (r *Report) SetFingerprint(fp fingerprint.Fingerprint) {
	r.Kind = string(fp.Kind)
	r.Mode = fp.Mode.Ptr()
	r.SubjectDate = fp.Subject.Date.Format(fingerprint.DateLayout)
	r.SubjectName = fp.Subject.Name.Ptr()
	r.SubjectPlace = fp.Subject.Place.Ptr()
	r.SubjectTime = fp.Subject.Time.Ptr()
	r.PartnerDate, r.PartnerName, r.PartnerPlace, r.PartnerTime = nil, nil, nil, nil
	if p := fp.Partner; p != nil {
		d := p.Date.Format(fingerprint.DateLayout)
		r.PartnerDate = &d
		r.PartnerName = p.Name.Ptr()
		r.PartnerPlace = p.Place.Ptr()
		r.PartnerTime = p.Time.Ptr()
	}
	r.FingerprintKey = fp.Key()
}
