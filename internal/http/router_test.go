package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/visionary-ai/go-report-backend/internal/assets"
	"github.com/visionary-ai/go-report-backend/internal/config"
	"github.com/visionary-ai/go-report-backend/internal/domain"
	"github.com/visionary-ai/go-report-backend/internal/repo"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, userID string, data []byte, filename string) (*domain.Detection, error) {
	return &domain.Detection{Item: "broken latch", Priority: "Moderate"}, nil
}

type stubReplier struct{}

func (stubReplier) ReplyToText(ctx context.Context, userID, text string) (string, error) {
	return "noted", nil
}

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("router_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	// Keep the limiter out of the way for multi-request tests.
	cfg.RateRPS = 1000
	cfg.RateBurst = 1000

	r := gin.New()
	RegisterRoutes(r, db, Dependencies{
		Analyzer: stubAnalyzer{},
		Replier:  stubReplier{},
		Assets:   assets.NewMemoryStore(),
	}, cfg)
	return r
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestServer(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestServer(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
}

func TestNoRoute_JSONEnvelope(t *testing.T) {
	r := newTestServer(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/definitely/not/here", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"code":"not_found"`) || !strings.Contains(body, `"request_id"`) {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestNoMethod_JSONEnvelope(t *testing.T) {
	r := newTestServer(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/health", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"code":"method_not_allowed"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestCORSHeader_DefaultAllowAll(t *testing.T) {
	r := newTestServer(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("ACAO: %q", got)
	}
}

func TestEndToEnd_OpenChatAndSendMessage(t *testing.T) {
	r := newTestServer(t)

	// Open a fresh session under the default base path.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/chats", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("open chat: status %d, body %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	start := strings.Index(body, `"id":"`)
	if start < 0 {
		t.Fatalf("no session id in %s", body)
	}
	rest := body[start+len(`"id":"`):]
	chatID := rest[:strings.Index(rest, `"`)]

	// Post a message and expect the stub reply.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/"+chatID+"/messages",
		strings.NewReader(`{"text":"tray table is broken"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("post message: status %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"text":"noted"`) {
		t.Fatalf("stub reply missing: %s", w.Body.String())
	}
}

func TestGroupWithPrefix(t *testing.T) {
	r := gin.New()
	if g := groupWithPrefix(r, ""); g.BasePath() != "/" {
		t.Errorf("empty prefix: %q", g.BasePath())
	}
	if g := groupWithPrefix(r, "/api/v1"); g.BasePath() != "/api/v1" {
		t.Errorf("prefix: %q", g.BasePath())
	}
}
