package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-report-backend/internal/http/middleware"
)

// envelopeRouter mounts route behind a request id and a buffered
// request-scoped logger.
func envelopeRouter(rid string, buf *bytes.Buffer, route gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", rid)
		middleware.SetLogger(c, zerolog.New(buf).With().Str("request_id", rid).Logger())
		c.Next()
	})
	r.POST("/reports/personal", route)
	return r
}

func Test_fail_ServerErrorIsLoggedWithRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	r := envelopeRouter("rid-gen", &buf, func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, "upstream_error", "report generation failed")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/reports/personal", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	er := decodeError(t, w)
	if er.OK || er.Error != "upstream_error" || er.Message != "report generation failed" || er.RequestID != "rid-gen" {
		t.Fatalf("unexpected body: %+v", er)
	}

	out := buf.String()
	for _, want := range []string{`"level":"error"`, `"code":"upstream_error"`, `"request_id":"rid-gen"`, `"status":500`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %s: %s", want, out)
		}
	}
}

func Test_fail_ClientErrorsAreNotLogged(t *testing.T) {
	var buf bytes.Buffer
	r := envelopeRouter("rid-400", &buf, func(c *gin.Context) {
		fail(c, http.StatusBadRequest, ErrCodeBadDate, "date must be DD.MM.YYYY")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/reports/personal", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if er := decodeError(t, w); er.Error != ErrCodeBadDate || er.RequestID != "rid-400" {
		t.Fatalf("unexpected body: %+v", er)
	}
	if buf.Len() != 0 {
		t.Fatalf("4xx should not be logged, got: %s", buf.String())
	}
}

func TestFail_RouterFallbackWithoutRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.NoRoute(func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	if strings.Contains(w.Body.String(), "request_id") {
		t.Fatalf("empty request id must be omitted: %s", w.Body.String())
	}
	if er := decodeError(t, w); er.OK || er.Error != ErrCodeNotFound {
		t.Fatalf("unexpected body: %+v", er)
	}
}

func Test_ok_WritesReportEnvelope(t *testing.T) {
	var buf bytes.Buffer
	r := envelopeRouter("rid-ok", &buf, func(c *gin.Context) {
		ok(c, http.StatusOK, ReportResponse{
			OK:       true,
			Text:     "your report",
			Cached:   true,
			ReportID: "r-1",
			Sections: []string{"love", "summary"},
		})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/reports/personal", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var got ReportResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !got.OK || !got.Cached || got.ReportID != "r-1" || got.Text != "your report" {
		t.Fatalf("unexpected body: %+v", got)
	}
	if len(got.Sections) != 2 || got.Sections[1] != "summary" {
		t.Fatalf("sections = %v", got.Sections)
	}
}
