package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-report-backend/internal/auth"
	"github.com/tbourn/go-report-backend/internal/config"
	"github.com/tbourn/go-report-backend/internal/domain"
	"github.com/tbourn/go-report-backend/internal/generation"
	"github.com/tbourn/go-report-backend/internal/http/middleware"
)

const testBotToken = "123456:router-test"

// --- gateway fake counting upstream calls ---
type fakeGateway struct{ calls atomic.Int64 }

func (g *fakeGateway) Generate(_ context.Context, _ generation.Request) (string, error) {
	g.calls.Add(1)
	return "your report", nil
}

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:routerdb_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&domain.User{}, &domain.Report{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig(base string) config.Config {
	return config.Config{
		APIBasePath: base,
		RateRPS:     100,
		RateBurst:   10,
		CORS:        config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:    config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		Auth: config.AuthConfig{
			BotToken:       testBotToken,
			InitDataMaxAge: time.Hour,
			DefaultLocale:  "en",
		},
		Generation: config.GenerationConfig{Timeout: 5 * time.Second},
	}
}

func signedInitData(t *testing.T, id int64) string {
	t.Helper()
	v := url.Values{}
	v.Set(auth.FieldAuthDate, strconv.FormatInt(time.Now().Unix(), 10))
	v.Set(auth.FieldUser, fmt.Sprintf(`{"id":%d,"first_name":"Ada","language_code":"en"}`, id))
	v.Set(auth.FieldHash, auth.Sign(v, testBotToken))
	return v.Encode()
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	RegisterRoutes(r, newTestDB(t), &fakeGateway{}, nil, testConfig("/api/v1"))

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected Cache-Control no-store, got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig("/api/v2")
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	RegisterRoutes(r, newTestDB(t), &fakeGateway{}, nil, cfg)

	// Any request runs through CORS middleware; header should reflect origin.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_API_RequiresInitData(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t), &fakeGateway{}, nil, testConfig("/api/v1"))

	for _, path := range []string{"/api/v1/me", "/api/v1/reports"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("GET %s without init data = %d; want 401", path, w.Code)
		}
	}

	// Signed with another token.
	v := url.Values{}
	v.Set(auth.FieldAuthDate, strconv.FormatInt(time.Now().Unix(), 10))
	v.Set(auth.FieldUser, `{"id":1}`)
	v.Set(auth.FieldHash, auth.Sign(v, "other-token"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "tma "+v.Encode())
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("forged init data = %d; want 401", w.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "bad_signature" {
		t.Fatalf("expected bad_signature, got %v", body)
	}
}

func TestRegisterRoutes_ReportFlow_EndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	gw := &fakeGateway{}
	RegisterRoutes(r, newTestDB(t), gw, nil, testConfig("/api/v1"))

	initData := signedInitData(t, 4242)
	do := func(method, path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.HeaderInitData, initData)
		r.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodGet, "/api/v1/me", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /me = %d body=%s", w.Code, w.Body.String())
	}

	type reportBody struct {
		OK       bool   `json:"ok"`
		Text     string `json:"text"`
		Cached   bool   `json:"cached"`
		ReportID string `json:"report_id"`
	}
	var first, second reportBody

	w = do(http.MethodPost, "/api/v1/reports/personal", `{"subject":{"date":"05.05.1990"},"sections":{"love":true}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("first report = %d body=%s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Cached || first.Text != "your report" {
		t.Fatalf("unexpected first report: %+v", first)
	}

	w = do(http.MethodPost, "/api/v1/reports/personal", `{"subject":{"date":"5.5.1990"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("second report = %d body=%s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !second.Cached || second.ReportID != first.ReportID {
		t.Fatalf("expected cached replay, got %+v", second)
	}
	if n := gw.calls.Load(); n != 1 {
		t.Fatalf("gateway calls = %d; want 1", n)
	}

	w = do(http.MethodGet, "/api/v1/reports/"+first.ReportID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET report = %d", w.Code)
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	off := gin.New()
	RegisterRoutes(off, newTestDB(t), &fakeGateway{}, nil, testConfig("/api/v1"))
	w := httptest.NewRecorder()
	off.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled: got %d; want 404", w.Code)
	}

	on := gin.New()
	cfg := testConfig("/api/v1")
	cfg.SwaggerEnabled = true
	RegisterRoutes(on, newTestDB(t), &fakeGateway{}, nil, cfg)
	w = httptest.NewRecorder()
	on.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("swagger enabled: got %d; want 200", w.Code)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

// Smoke test that a request traverses otel + logging + security headers pipeline.
func TestPipeline_Smoke(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig("/api/v1")
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour} // enabled (but only set on https)
	RegisterRoutes(r, newTestDB(t), &fakeGateway{}, nil, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.URL.Scheme = "https"
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	// RequestID header should be present (from RequestID middleware)
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func Test_userRepoShim_Proxies(t *testing.T) {
	db := newTestDB(t)
	shim := userRepoShim{}
	ctx := context.Background()

	u, err := shim.UpsertUser(ctx, db, &domain.User{ExternalID: "77", FirstName: "Ada", Locale: "en"})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if u == nil || u.ID == "" || u.ExternalID != "77" {
		t.Fatalf("UpsertUser returned bad user: %+v", u)
	}

	if err := shim.UpdateUserLocale(ctx, db, u.ID, "ru"); err != nil {
		t.Fatalf("UpdateUserLocale: %v", err)
	}

	got, err := shim.GetUser(ctx, db, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Locale != "ru" || got.FirstName != "Ada" {
		t.Fatalf("GetUser mismatch: %+v", got)
	}
}
