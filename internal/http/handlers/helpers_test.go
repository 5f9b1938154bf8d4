package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-session-store/internal/http/middleware"
	"github.com/tbourn/go-session-store/internal/repo"
	"github.com/tbourn/go-session-store/internal/services"
)

// newTestSession opens a migrated SQLite file and wires a session service
// over it.
func newTestSession(t *testing.T) *services.SessionService {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "handlers_test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	svc := services.NewSessionService(db, zerolog.Nop(), services.SessionOptions{
		HistoryDefaultLimit: 20,
		HistoryMaxLimit:     100,
		TurnTTL:             time.Hour,
		AuditTimeout:        2 * time.Second,
	})
	t.Cleanup(func() {
		_ = svc.Close(context.Background())
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return svc
}

// newTestRouter mounts every handler on a bare engine, with only the
// idempotency validator in front.
func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))

	r.GET("/", h.Info)
	r.GET("/health", h.Health)
	r.GET("/health/detailed", h.HealthDetailed)

	r.POST("/threads", h.StartThread)
	r.GET("/threads", h.ListThreads)
	r.POST("/channels/:channel_id/threads", h.NewChannelThread)
	r.GET("/threads/:key", h.GetThread)
	r.PATCH("/threads/:key/metadata", h.UpdateThreadMetadata)
	r.DELETE("/threads/:key", h.DeleteThread)

	r.POST("/threads/:key/turns", h.RecordTurn)
	r.POST("/threads/:key/messages", h.AppendMessage)
	r.GET("/threads/:key/messages", h.ListMessages)

	r.POST("/audit", h.RecordAudit)
	r.GET("/audit", h.QueryAudit)
	return r
}

// do sends a request; body may be nil, a string (sent raw) or any value
// (JSON-encoded).
func do(t *testing.T, r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (body=%s)", v, err, w.Body.String())
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d; want %d (body=%s)", w.Code, status, w.Body.String())
	}
	if er := decode[ErrorResponse](t, w); er.Code != code {
		t.Fatalf("code = %q; want %q", er.Code, code)
	}
}

func strp(s string) *string { return &s }
