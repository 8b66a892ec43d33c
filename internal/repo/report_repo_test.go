package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-report-backend/internal/domain"
	"github.com/tbourn/go-report-backend/internal/fingerprint"
)

func mustFP(t *testing.T, kind fingerprint.Kind, raw fingerprint.RawInput) fingerprint.Fingerprint {
	t.Helper()
	fp, err := fingerprint.Normalize(kind, raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return fp
}

func newReport(userID string, fp fingerprint.Fingerprint, st domain.ReportStatus, at time.Time) *domain.Report {
	r := &domain.Report{UserID: userID, Status: st, Sections: []string{"summary"}, CreatedAt: at}
	r.SetFingerprint(fp)
	return r
}

func statusPtr(s domain.ReportStatus) *domain.ReportStatus { return &s }

func TestFindLatestReport_FieldByFieldWithNulls(t *testing.T) {
	db := newTestDB(t, &domain.Report{})
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	noPlace := mustFP(t, fingerprint.KindPersonal, fingerprint.RawInput{Subject: fingerprint.RawSubject{Date: "05.05.1990"}})
	withPlace := mustFP(t, fingerprint.KindPersonal, fingerprint.RawInput{Subject: fingerprint.RawSubject{Date: "05.05.1990", Place: "Paris"}})

	older := newReport("u1", noPlace, domain.StatusReady, base)
	newer := newReport("u1", noPlace, domain.StatusFailed, base.Add(time.Minute))
	other := newReport("u1", withPlace, domain.StatusReady, base.Add(2*time.Minute))
	foreign := newReport("u2", noPlace, domain.StatusReady, base.Add(3*time.Minute))
	for _, r := range []*domain.Report{older, newer, other, foreign} {
		if err := CreateReport(ctx, db, r); err != nil {
			t.Fatalf("CreateReport: %v", err)
		}
	}

	got, err := FindLatestReport(ctx, db, "u1", noPlace, nil)
	if err != nil || got.ID != newer.ID {
		t.Fatalf("latest any status = %+v, %v; want %s", got, err, newer.ID)
	}
	got, err = FindLatestReport(ctx, db, "u1", noPlace, statusPtr(domain.StatusReady))
	if err != nil || got.ID != older.ID {
		t.Fatalf("latest ready = %+v, %v; want %s", got, err, older.ID)
	}
	got, err = FindLatestReport(ctx, db, "u1", withPlace, nil)
	if err != nil || got.ID != other.ID {
		t.Fatalf("with place = %+v, %v; want %s", got, err, other.ID)
	}
	if _, err := FindLatestReport(ctx, db, "u1", noPlace, statusPtr(domain.StatusInProgress)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
}

func TestCreateReport_SecondInProgressIsDuplicate(t *testing.T) {
	db := newTestDB(t, &domain.Report{})
	ctx := context.Background()
	fp := mustFP(t, fingerprint.KindPersonal, fingerprint.RawInput{Subject: fingerprint.RawSubject{Date: "05.05.1990"}})

	if err := CreateReport(ctx, db, newReport("u1", fp, domain.StatusInProgress, time.Time{})); err != nil {
		t.Fatalf("first CreateReport: %v", err)
	}
	if err := CreateReport(ctx, db, newReport("u1", fp, domain.StatusInProgress, time.Time{})); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v; want ErrDuplicate", err)
	}
	// Other users are independent.
	if err := CreateReport(ctx, db, newReport("u2", fp, domain.StatusInProgress, time.Time{})); err != nil {
		t.Fatalf("other user CreateReport: %v", err)
	}
}

func TestCompleteReport_OnlyFromInProgress(t *testing.T) {
	db := newTestDB(t, &domain.Report{})
	ctx := context.Background()
	fp := mustFP(t, fingerprint.KindPersonal, fingerprint.RawInput{Subject: fingerprint.RawSubject{Date: "05.05.1990"}})

	r := newReport("u1", fp, domain.StatusInProgress, time.Time{})
	if err := CreateReport(ctx, db, r); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}

	if err := CompleteReport(ctx, db, r.ID, ReportOutcome{Status: domain.StatusReady, Sections: []string{"summary"}, Text: "hello"}); err != nil {
		t.Fatalf("CompleteReport: %v", err)
	}
	err := CompleteReport(ctx, db, r.ID, ReportOutcome{Status: domain.StatusFailed, Sections: []string{"summary"}, ErrorCode: "x", ErrorDetail: "y"})
	if !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("second CompleteReport err = %v; want ErrNotInProgress", err)
	}
	if err := UpdateReportSections(ctx, db, r.ID, []string{"love", "summary"}); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("UpdateReportSections on terminal err = %v; want ErrNotInProgress", err)
	}

	got, err := GetReport(ctx, db, r.ID, "u1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Status != domain.StatusReady || got.Text != "hello" || got.ErrorCode != "" {
		t.Fatalf("terminal report mutated: %+v", got)
	}
	if len(got.Sections) != 1 || got.Sections[0] != "summary" {
		t.Fatalf("sections mutated: %v", got.Sections)
	}

	if err := CompleteReport(ctx, db, "missing", ReportOutcome{Status: domain.StatusReady}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err = %v; want ErrNotFound", err)
	}
}

func TestCompleteReport_RequiresCurrentSelection(t *testing.T) {
	db := newTestDB(t, &domain.Report{})
	ctx := context.Background()
	fp := mustFP(t, fingerprint.KindPersonal, fingerprint.RawInput{Subject: fingerprint.RawSubject{Date: "05.05.1990"}})

	r := newReport("u1", fp, domain.StatusInProgress, time.Time{})
	if err := CreateReport(ctx, db, r); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if err := UpdateReportSections(ctx, db, r.ID, []string{"health", "summary"}); err != nil {
		t.Fatalf("UpdateReportSections: %v", err)
	}

	// Generated from the selection the row had before the update.
	stale := ReportOutcome{Status: domain.StatusReady, Sections: []string{"summary"}, Text: "old"}
	if err := CompleteReport(ctx, db, r.ID, stale); !errors.Is(err, ErrSelectionChanged) {
		t.Fatalf("stale CompleteReport err = %v; want ErrSelectionChanged", err)
	}
	got, err := GetReport(ctx, db, r.ID, "u1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Status != domain.StatusInProgress || got.Text != "" {
		t.Fatalf("stale outcome was written: %+v", got)
	}

	current := ReportOutcome{Status: domain.StatusReady, Sections: []string{"health", "summary"}, Text: "new"}
	if err := CompleteReport(ctx, db, r.ID, current); err != nil {
		t.Fatalf("CompleteReport: %v", err)
	}
	// Once terminal, a stale selection is still told apart from a late duplicate.
	if err := CompleteReport(ctx, db, r.ID, stale); !errors.Is(err, ErrSelectionChanged) {
		t.Fatalf("stale after terminal err = %v; want ErrSelectionChanged", err)
	}
	if err := CompleteReport(ctx, db, r.ID, current); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("duplicate err = %v; want ErrNotInProgress", err)
	}

	got, err = GetReport(ctx, db, r.ID, "u1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Status != domain.StatusReady || got.Text != "new" || strings.Join(got.Sections, ",") != "health,summary" {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestUpdateReportSections_InProgress(t *testing.T) {
	db := newTestDB(t, &domain.Report{})
	ctx := context.Background()
	fp := mustFP(t, fingerprint.KindPersonal, fingerprint.RawInput{Subject: fingerprint.RawSubject{Date: "05.05.1990"}})

	r := newReport("u1", fp, domain.StatusInProgress, time.Time{})
	if err := CreateReport(ctx, db, r); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if err := UpdateReportSections(ctx, db, r.ID, []string{"love", "summary"}); err != nil {
		t.Fatalf("UpdateReportSections: %v", err)
	}
	got, _ := GetReport(ctx, db, r.ID, "u1")
	if len(got.Sections) != 2 || got.Sections[0] != "love" {
		t.Fatalf("sections = %v", got.Sections)
	}
}

func TestGetReport_OwnershipAndPaging(t *testing.T) {
	db := newTestDB(t, &domain.Report{})
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		seedReport(t, db, &domain.Report{ID: string(rune('a' + i)), UserID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	seedReport(t, db, &domain.Report{ID: "z", UserID: "u2", CreatedAt: base})

	if _, err := GetReport(ctx, db, "z", "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign report err = %v; want ErrNotFound", err)
	}

	total, err := CountReports(ctx, db, ReportFilter{UserID: "u1"})
	if err != nil || total != 5 {
		t.Fatalf("CountReports = %d, %v", total, err)
	}
	page, err := ListReportsPage(ctx, db, ReportFilter{UserID: "u1"}, 1, 2)
	if err != nil {
		t.Fatalf("ListReportsPage: %v", err)
	}
	if len(page) != 2 || page[0].ID != "d" || page[1].ID != "c" {
		t.Fatalf("unexpected page: %v, %v", page[0].ID, page[1].ID)
	}
}

func TestListReportsPage_KindFilter(t *testing.T) {
	db := newTestDB(t, &domain.Report{})
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	seedReport(t, db, &domain.Report{ID: "p1", UserID: "u1", Kind: "personal", CreatedAt: base})
	seedReport(t, db, &domain.Report{ID: "c1", UserID: "u1", Kind: "compatibility", CreatedAt: base.Add(time.Hour)})
	seedReport(t, db, &domain.Report{ID: "c2", UserID: "u2", Kind: "compatibility", CreatedAt: base})

	f := ReportFilter{UserID: "u1", Kind: "compatibility"}
	total, err := CountReports(ctx, db, f)
	if err != nil || total != 1 {
		t.Fatalf("CountReports = %d, %v", total, err)
	}
	page, err := ListReportsPage(ctx, db, f, 0, 10)
	if err != nil || len(page) != 1 || page[0].ID != "c1" {
		t.Fatalf("ListReportsPage = %v, %v", page, err)
	}
}
