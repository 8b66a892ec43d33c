// Report HTTP handlers.
//
// This file exposes REST endpoints for report resources:
//   - POST /reports/personal       (get cached or generate)
//   - POST /reports/compatibility  (get cached or generate)
//   - GET  /reports                (list, paginated, ETag support)
//   - GET  /reports/{id}           (fetch one stored report)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into the response envelope.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tbourn/go-report-backend/internal/domain"
	"github.com/tbourn/go-report-backend/internal/fingerprint"
	"github.com/tbourn/go-report-backend/internal/http/middleware"
	"github.com/tbourn/go-report-backend/internal/services"
	"github.com/tbourn/go-report-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ReportService defines report operations consumed by HTTP handlers.
type ReportService interface {
	// Run serves fp from cache or generates it; flags == nil means "not supplied".
	Run(ctx context.Context, userID, locale string, fp fingerprint.Fingerprint, flags map[string]bool) (*services.Result, error)
	// Get returns one report owned by userID.
	Get(ctx context.Context, userID, id string) (*domain.Report, error)
	// ListPage returns a page of reports for a user and the total count.
	ListPage(ctx context.Context, userID, kind string, page, pageSize int) ([]domain.Report, int64, error)
	// Stats returns the report count and newest update time for ETags.
	Stats(ctx context.Context, userID, kind string) (int64, *time.Time, error)
}

// UserService defines profile operations consumed by HTTP handlers.
type UserService interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	SetLocale(ctx context.Context, userID, locale string) (*domain.User, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for reports and the current user.
type Handlers struct {
	reportSvc ReportService
	userSvc   UserService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(reportSvc ReportService, userSvc UserService) *Handlers {
	return &Handlers{reportSvc: reportSvc, userSvc: userSvc}
}

// userID returns the id stored by middleware.InitDataAuth.
func userID(c *gin.Context) string {
	if v, ok := c.Get(middleware.UserIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

//
// DTOs
//

// SubjectInput is one person's birth data as typed by the user.
type SubjectInput struct {
	// Date in d.m.yyyy or dd.mm.yyyy form.
	Date string `json:"date" binding:"required" example:"05.05.1990"`
	// Name is optional.
	Name string `json:"name,omitempty" example:"Anna"`
	// Place is optional.
	Place string `json:"place,omitempty" example:"Paris"`
	// Time is optional, H:MM or HH:MM.
	Time string `json:"time,omitempty" example:"07:30"`
}

func (s SubjectInput) raw() fingerprint.RawSubject {
	return fingerprint.RawSubject{Date: s.Date, Name: s.Name, Place: s.Place, Time: s.Time}
}

// PersonalReportRequest is the JSON payload for a personal report.
type PersonalReportRequest struct {
	Mode    string       `json:"mode,omitempty" example:"classic"`
	Subject SubjectInput `json:"subject"`
	// Sections toggles optional sections. Omit it to reuse the previous selection.
	Sections map[string]bool `json:"sections,omitempty"`
}

// CompatibilityReportRequest is the JSON payload for a compatibility report.
type CompatibilityReportRequest struct {
	Mode    string        `json:"mode,omitempty" example:"romantic"`
	Subject SubjectInput  `json:"subject"`
	Partner *SubjectInput `json:"partner"`
	// Sections toggles optional sections. Omit it to reuse the previous selection.
	Sections map[string]bool `json:"sections,omitempty"`
}

// ReportResponse is the success envelope for report generation.
type ReportResponse struct {
	OK       bool     `json:"ok" example:"true"`
	Text     string   `json:"text"`
	Cached   bool     `json:"cached"`
	ReportID string   `json:"report_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Sections []string `json:"sections" example:"love,summary"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListReportsResponse wraps a page of reports and pagination information.
type ListReportsResponse struct {
	OK         bool            `json:"ok" example:"true"`
	Reports    []domain.Report `json:"reports"`
	Pagination Pagination      `json:"pagination"`
}

// GetReportResponse wraps one stored report.
type GetReportResponse struct {
	OK     bool          `json:"ok" example:"true"`
	Report domain.Report `json:"report"`
}

//
// Handlers
//

// CreatePersonalReport godoc
// @ID          createPersonalReport
// @Summary     Get or generate a personal report
// @Description Returns the stored report for identical input and selection (cached=true), otherwise generates one.
// @Tags        Reports
// @Accept      json
// @Produce     json
// @Security    InitData
//
// @Param       body  body  handlers.PersonalReportRequest  true  "Birth data and section flags"
//
// @Success     200  {object}  handlers.ReportResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid input"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid init data"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Generation failed"
// @Router      /reports/personal [post]
func (h *Handlers) CreatePersonalReport(c *gin.Context) {
	var req PersonalReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		code, msg := bindFailure(err)
		fail(c, http.StatusBadRequest, code, msg)
		return
	}
	h.runReport(c, fingerprint.KindPersonal, fingerprint.RawInput{
		Mode:    req.Mode,
		Subject: req.Subject.raw(),
	}, req.Sections)
}

// CreateCompatibilityReport godoc
// @ID          createCompatibilityReport
// @Summary     Get or generate a compatibility report
// @Description Same contract as the personal report, for two people.
// @Tags        Reports
// @Accept      json
// @Produce     json
// @Security    InitData
//
// @Param       body  body  handlers.CompatibilityReportRequest  true  "Both people's birth data and section flags"
//
// @Success     200  {object}  handlers.ReportResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid input"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid init data"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Generation failed"
// @Router      /reports/compatibility [post]
func (h *Handlers) CreateCompatibilityReport(c *gin.Context) {
	var req CompatibilityReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		code, msg := bindFailure(err)
		fail(c, http.StatusBadRequest, code, msg)
		return
	}
	in := fingerprint.RawInput{Mode: req.Mode, Subject: req.Subject.raw()}
	if req.Partner != nil {
		p := req.Partner.raw()
		in.Partner = &p
	}
	h.runReport(c, fingerprint.KindCompatibility, in, req.Sections)
}

func (h *Handlers) runReport(c *gin.Context, kind fingerprint.Kind, in fingerprint.RawInput, flags map[string]bool) {
	ctx := c.Request.Context()
	uid := userID(c)

	fp, err := fingerprint.Normalize(kind, in)
	if err != nil {
		fail(c, http.StatusBadRequest, inputCode(err), err.Error())
		return
	}

	u, err := h.userSvc.Get(ctx, uid)
	if errors.Is(err, services.ErrUserNotFound) {
		fail(c, http.StatusNotFound, ErrCodeUserNotFound, "user not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	res, err := h.reportSvc.Run(ctx, uid, u.Locale, fp, flags)
	var genErr *services.GenerationError
	switch {
	case errors.As(err, &genErr):
		middleware.ObserveReport(string(kind), middleware.ReportFailed)
		fail(c, http.StatusInternalServerError, genErr.Code, "report generation failed, please retry")
		return
	case errors.Is(err, services.ErrUnknownKind):
		fail(c, http.StatusBadRequest, ErrCodeUnknownKind, err.Error())
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	result := middleware.ReportGenerated
	if res.Cached {
		result = middleware.ReportCached
	}
	middleware.ObserveReport(string(kind), result)

	ok(c, http.StatusOK, ReportResponse{
		OK:       true,
		Text:     res.Report.Text,
		Cached:   res.Cached,
		ReportID: res.Report.ID,
		Sections: res.Report.Sections,
	})
}

// ListReports godoc
// @ID          listReports
// @Summary     List reports (paginated)
// @Description Returns a page of the user's reports, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Reports
// @Produce     json
// @Security    InitData
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       kind           query   string  false "Only this report kind"        Enums(personal, compatibility)
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListReportsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Unknown kind"
// @Failure     401  {object} handlers.ErrorResponse "Invalid init data"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /reports [get]
func (h *Handlers) ListReports(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"))
	kind := c.Query("kind")
	if kind != "" && !fingerprint.Kind(kind).Valid() {
		fail(c, http.StatusBadRequest, ErrCodeUnknownKind, "kind must be personal or compatibility")
		return
	}

	// ETag pre-check (best effort).
	if count, maxTS, err := h.reportSvc.Stats(ctx, uid, kind); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"reports:%s:%s:%d:%d:%d:%d"`, uid, kind, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.reportSvc.ListPage(ctx, uid, kind, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListReportsResponse{
		OK:      true,
		Reports: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetReport godoc
// @ID          getReport
// @Summary     Fetch a stored report
// @Tags        Reports
// @Produce     json
// @Security    InitData
//
// @Param       id  path  string  true  "Report ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.GetReportResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad id"
// @Failure     401  {object} handlers.ErrorResponse "Invalid init data"
// @Failure     404  {object} handlers.ErrorResponse "Report not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /reports/{id} [get]
func (h *Handlers) GetReport(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "report id must be a UUID")
		return
	}
	r, err := h.reportSvc.Get(c.Request.Context(), userID(c), id)
	if errors.Is(err, services.ErrReportNotFound) {
		fail(c, http.StatusNotFound, ErrCodeReportNotFound, "report not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, GetReportResponse{OK: true, Report: *r})
}

// inputCode maps a normalization error to its error code.
// bindFailure maps a request binding error to an error code and message. A
// date rejected by its required tag keeps the missing_date code.
func bindFailure(err error) (string, string) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			if fe.Field() == "Date" && fe.Tag() == "required" {
				return ErrCodeMissingDate, fingerprint.ErrMissingDate.Error()
			}
		}
	}
	return ErrCodeBadRequest, "invalid JSON body"
}

func inputCode(err error) string {
	switch {
	case errors.Is(err, fingerprint.ErrMissingDate):
		return ErrCodeMissingDate
	case errors.Is(err, fingerprint.ErrBadDate):
		return ErrCodeBadDate
	case errors.Is(err, fingerprint.ErrBadTime):
		return ErrCodeBadTime
	case errors.Is(err, fingerprint.ErrMissingPartner):
		return ErrCodeMissingPartner
	case errors.Is(err, fingerprint.ErrUnknownKind):
		return ErrCodeUnknownKind
	default:
		return ErrCodeBadRequest
	}
}
