// Package services – ReportService
//
// This file implements ReportService, the report cache/state machine. For a
// normalized request it decides whether a stored Ready report can be served,
// an in-progress draft can be reused, or a new draft must be created, and it
// drives a draft through the generation gateway to exactly one terminal
// state.
//
// Status moves only in_progress -> ready | failed. At most one in_progress
// report exists per (user, fingerprint): drafts are created with a
// conditional insert against ux_reports_inflight and a losing writer adopts
// the winner's row.
//
// Observability: public methods are OpenTelemetry-instrumented and log
// transitions through the request-scoped zerolog logger.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-report-backend/internal/domain"
	"github.com/tbourn/go-report-backend/internal/fingerprint"
	"github.com/tbourn/go-report-backend/internal/generation"
	"github.com/tbourn/go-report-backend/internal/prompts"
	"github.com/tbourn/go-report-backend/internal/repo"
	"github.com/tbourn/go-report-backend/internal/selection"
)

// DefaultGenerationTimeout bounds one gateway call when none is configured.
const DefaultGenerationTimeout = 120 * time.Second

const (
	maxErrorDetailRunes = 1000
	maxDraftAttempts    = 3
)

// ReportService coordinates report lookup, draft lifecycle and generation.
type ReportService struct {
	DB      *gorm.DB
	Gateway generation.Gateway

	// Cache is optional; nil disables the read-through layer.
	Cache ResultCache

	// GenerationTimeout bounds a single Run's gateway call.
	GenerationTimeout time.Duration
}

// NewReportService constructs a ReportService with defaults applied.
func NewReportService(db *gorm.DB, gw generation.Gateway, cache ResultCache, timeout time.Duration) *ReportService {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &ReportService{DB: db, Gateway: gw, Cache: cache, GenerationTimeout: timeout}
}

// Start is the outcome of GetOrStart. When NeedsGeneration is false, Report
// is a Ready report served from cache; otherwise it is the in_progress draft
// the caller must complete.
type Start struct {
	Report          *domain.Report
	Sections        []selection.Section
	NeedsGeneration bool
}

// Result is the outcome of Run.
type Result struct {
	Report *domain.Report
	Cached bool
}

// GetOrStart resolves a request to a cached Ready report or an in_progress
// draft. flags == nil means the caller did not supply a selection: the list
// recorded on the most recent report for fp is reused and any Ready report
// for fp is served.
func (s *ReportService) GetOrStart(ctx context.Context, userID string, fp fingerprint.Fingerprint, flags map[string]bool) (*Start, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "GetOrStart",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("report.kind", string(fp.Kind)),
			attribute.Bool("flags.supplied", flags != nil),
		),
	)
	defer span.End()

	catalog, ok := selection.ForKind(fp.Kind)
	if !ok {
		return nil, ErrUnknownKind
	}

	sections, err := s.canonicalSections(ctx, userID, fp, catalog, flags)
	if err != nil {
		return nil, err
	}

	ready, err := s.latestReady(ctx, userID, fp)
	if err != nil {
		return nil, err
	}
	if ready != nil && (flags == nil || selection.Equal(selection.FromStrings(ready.Sections), sections)) {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		zerolog.Ctx(ctx).Debug().Str("report_id", ready.ID).Msg("report cache hit")
		return &Start{Report: ready, Sections: selection.FromStrings(ready.Sections)}, nil
	}

	draft, err := s.draft(ctx, userID, fp, sections)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("cache.hit", false), attribute.String("report.id", draft.ID))
	return &Start{Report: draft, Sections: sections, NeedsGeneration: true}, nil
}

func (s *ReportService) canonicalSections(ctx context.Context, userID string, fp fingerprint.Fingerprint, c selection.Catalog, flags map[string]bool) ([]selection.Section, error) {
	if flags != nil {
		return selection.Reconcile(c, flags), nil
	}
	prior, err := repo.FindLatestReport(ctx, s.DB, userID, fp, nil)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return selection.Reconcile(c, nil), nil
	case err != nil:
		return nil, err
	case len(prior.Sections) == 0:
		return selection.Reconcile(c, nil), nil
	}
	return selection.FromStrings(prior.Sections), nil
}

// latestReady consults the cache, then the store. It returns (nil, nil) when
// fp has no Ready report.
func (s *ReportService) latestReady(ctx context.Context, userID string, fp fingerprint.Fingerprint) (*domain.Report, error) {
	key := fp.Key()
	if s.Cache != nil {
		r, err := s.Cache.Get(ctx, userID, key)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("result cache get failed")
		} else if r != nil {
			return r, nil
		}
	}

	ready := domain.StatusReady
	r, err := repo.FindLatestReport(ctx, s.DB, userID, fp, &ready)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.cachePut(ctx, r)
	return r, nil
}

// draft returns the in_progress report for (user, fp), creating it when none
// exists. A reused draft takes over the requested section list.
func (s *ReportService) draft(ctx context.Context, userID string, fp fingerprint.Fingerprint, sections []selection.Section) (*domain.Report, error) {
	lg := zerolog.Ctx(ctx)
	inProgress := domain.StatusInProgress
	want := selection.Strings(sections)

	for attempt := 0; attempt < maxDraftAttempts; attempt++ {
		existing, err := repo.FindLatestReport(ctx, s.DB, userID, fp, &inProgress)
		switch {
		case err == nil:
			if !selection.Equal(selection.FromStrings(existing.Sections), sections) {
				err := repo.UpdateReportSections(ctx, s.DB, existing.ID, want)
				if errors.Is(err, repo.ErrNotInProgress) || errors.Is(err, repo.ErrNotFound) {
					// Completed underneath us; the slot is free again.
					continue
				}
				if err != nil {
					return nil, err
				}
				existing.Sections = want
			}
			lg.Info().Str("report_id", existing.ID).Str("kind", existing.Kind).Msg("reusing in-progress report")
			return existing, nil
		case !errors.Is(err, repo.ErrNotFound):
			return nil, err
		}

		r := &domain.Report{UserID: userID, Status: domain.StatusInProgress, Sections: want}
		r.SetFingerprint(fp)
		err = repo.CreateReport(ctx, s.DB, r)
		if errors.Is(err, repo.ErrDuplicate) {
			// A concurrent request won the insert; adopt its row.
			continue
		}
		if err != nil {
			return nil, err
		}
		lg.Info().Str("report_id", r.ID).Str("kind", r.Kind).Str("status", string(r.Status)).Msg("report created")
		return r, nil
	}
	return nil, fmt.Errorf("could not obtain in-progress report after %d attempts", maxDraftAttempts)
}

// Complete records the gateway outcome on draft h: text on success, or the
// classified error otherwise. Empty text counts as generation.ErrEmptyOutput.
// h.Sections must be the selection the text was generated from.
//
// It returns ErrReportTerminal when h already left in_progress, and
// ErrSelectionChanged when a later request replaced the draft's selection.
// Neither case writes anything.
func (s *ReportService) Complete(ctx context.Context, h *domain.Report, text string, genErr error) (*domain.Report, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "Complete",
		trace.WithAttributes(attribute.String("report.id", h.ID)),
	)
	defer span.End()

	out := outcome(text, genErr)
	span.SetAttributes(attribute.String("report.status", string(out.Status)))
	return s.finish(ctx, h, out)
}

func outcome(text string, genErr error) repo.ReportOutcome {
	if genErr == nil && strings.TrimSpace(text) == "" {
		genErr = generation.ErrEmptyOutput
	}
	if genErr != nil {
		return repo.ReportOutcome{
			Status:      domain.StatusFailed,
			ErrorCode:   generation.Classify(genErr),
			ErrorDetail: clipRunes(genErr.Error(), maxErrorDetailRunes),
		}
	}
	return repo.ReportOutcome{Status: domain.StatusReady, Text: text}
}

func (s *ReportService) finish(ctx context.Context, h *domain.Report, out repo.ReportOutcome) (*domain.Report, error) {
	out.Sections = h.Sections
	err := repo.CompleteReport(ctx, s.DB, h.ID, out)
	switch {
	case errors.Is(err, repo.ErrNotInProgress):
		return nil, ErrReportTerminal
	case errors.Is(err, repo.ErrSelectionChanged):
		return nil, ErrSelectionChanged
	case errors.Is(err, repo.ErrNotFound):
		return nil, ErrReportNotFound
	case err != nil:
		return nil, err
	}

	done := *h
	done.Status, done.Text, done.ErrorCode, done.ErrorDetail = out.Status, out.Text, out.ErrorCode, out.ErrorDetail
	done.UpdatedAt = time.Now().UTC()
	s.settle(ctx, &done, "report completed")
	return &done, nil
}

// record stores out as a new terminal report carrying h's request fields and
// selection. It is used when h itself was taken over by another request.
func (s *ReportService) record(ctx context.Context, h *domain.Report, out repo.ReportOutcome) (*domain.Report, error) {
	r := *h
	r.ID, r.CreatedAt = "", time.Time{}
	r.Status, r.Text, r.ErrorCode, r.ErrorDetail = out.Status, out.Text, out.ErrorCode, out.ErrorDetail
	if err := repo.CreateReport(ctx, s.DB, &r); err != nil {
		return nil, err
	}
	s.settle(ctx, &r, "report recorded")
	return &r, nil
}

func (s *ReportService) settle(ctx context.Context, r *domain.Report, msg string) {
	ev := zerolog.Ctx(ctx).Info()
	if r.Status == domain.StatusFailed {
		ev = zerolog.Ctx(ctx).Warn().Str("error_code", r.ErrorCode).Str("error_detail", r.ErrorDetail)
	}
	ev.Str("report_id", r.ID).Str("kind", r.Kind).Str("status", string(r.Status)).Msg(msg)
	s.cachePut(ctx, r)
}

// Run serves fp from cache or generates it synchronously. A report opened
// here always reaches a terminal state before Run returns or panics: a
// deferred compensating transition marks it failed (internal_error) on any
// exit that skipped Complete. Generation failures are returned as
// *GenerationError.
func (s *ReportService) Run(ctx context.Context, userID, locale string, fp fingerprint.Fingerprint, flags map[string]bool) (*Result, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "Run",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("report.kind", string(fp.Kind)),
		),
	)
	defer span.End()

	st, err := s.GetOrStart(ctx, userID, fp, flags)
	if err != nil {
		return nil, err
	}
	if !st.NeedsGeneration {
		return &Result{Report: st.Report, Cached: true}, nil
	}
	return s.generate(ctx, st.Report, fp, st.Sections, locale)
}

func (s *ReportService) generate(ctx context.Context, h *domain.Report, fp fingerprint.Fingerprint, sections []selection.Section, locale string) (res *Result, err error) {
	// Terminal writes must survive client disconnects and gateway deadlines.
	storeCtx := context.WithoutCancel(ctx)
	settled := false
	defer func() {
		if settled {
			return
		}
		rec := recover()
		cause := err
		if rec != nil {
			cause = fmt.Errorf("panic: %v", rec)
		}
		if cause == nil {
			cause = errors.New("generation aborted")
		}
		_, ferr := s.finish(storeCtx, h, repo.ReportOutcome{
			Status:      domain.StatusFailed,
			ErrorCode:   generation.CodeInternalError,
			ErrorDetail: clipRunes(cause.Error(), maxErrorDetailRunes),
		})
		if ferr != nil && !errors.Is(ferr, ErrReportTerminal) && !errors.Is(ferr, ErrSelectionChanged) {
			zerolog.Ctx(ctx).Error().Err(ferr).Str("report_id", h.ID).Msg("compensating transition failed")
		}
		if rec != nil {
			panic(rec)
		}
		if err == nil {
			err = &GenerationError{ReportID: h.ID, Code: generation.CodeInternalError, Detail: cause.Error()}
		}
	}()

	req, err := prompts.Build(fp, sections, locale)
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.GenerationTimeout)
	defer cancel()
	text, genErr := s.Gateway.Generate(gctx, req)

	done, err := s.Complete(storeCtx, h, text, genErr)
	switch {
	case errors.Is(err, ErrReportTerminal):
		// A concurrent request finished the shared draft first; serve its outcome.
		settled = true
		stored, gerr := repo.GetReport(storeCtx, s.DB, h.ID, h.UserID)
		if gerr != nil {
			return nil, gerr
		}
		done, err = stored, nil
	case errors.Is(err, ErrSelectionChanged):
		// The draft now belongs to a request with another selection, which
		// completes it. This text keeps its own report.
		settled = true
		done, err = s.record(storeCtx, h, outcome(text, genErr))
	}
	if err != nil {
		return nil, err
	}
	settled = true

	if done.Status == domain.StatusFailed {
		return nil, &GenerationError{ReportID: done.ID, Code: done.ErrorCode, Detail: done.ErrorDetail}
	}
	return &Result{Report: done}, nil
}

// Get returns report id owned by userID, or ErrReportNotFound.
func (s *ReportService) Get(ctx context.Context, userID, id string) (*domain.Report, error) {
	r, err := repo.GetReport(ctx, s.DB, id, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrReportNotFound
	}
	return r, err
}

// ListPage returns a page of the user's reports, newest first, and the total.
// A non-empty kind restricts both to that report kind.
func (s *ReportService) ListPage(ctx context.Context, userID, kind string, page, pageSize int) ([]domain.Report, int64, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("report.kind", kind),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	f := repo.ReportFilter{UserID: userID, Kind: kind}
	total, err := repo.CountReports(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Report{}, 0, nil
	}
	items, err := repo.ListReportsPage(ctx, s.DB, f, offset, pageSize)
	return items, total, err
}

// Stats returns (count, max updated_at) of the user's reports for ETags.
func (s *ReportService) Stats(ctx context.Context, userID, kind string) (int64, *time.Time, error) {
	return repo.ReportsStats(ctx, s.DB, repo.ReportFilter{UserID: userID, Kind: kind})
}

func (s *ReportService) cachePut(ctx context.Context, r *domain.Report) {
	if s.Cache == nil || r.Status != domain.StatusReady {
		return
	}
	if err := s.Cache.Put(ctx, r); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("report_id", r.ID).Msg("result cache put failed")
	}
}

func clipRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
