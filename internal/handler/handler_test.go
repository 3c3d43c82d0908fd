package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forumpulse/internal/db"
	"github.com/forumpulse/internal/live"
	"github.com/forumpulse/internal/service"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubViews struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (s *stubViews) IncrementViews(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, threadID)
	return nil
}

type stubGate struct {
	mu     sync.Mutex
	actors []service.Actor
	result service.VisitResult
	err    error
}

func (s *stubGate) Count(_ context.Context, actor service.Actor, scope string) (service.VisitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actors = append(s.actors, actor)
	if scope == "" {
		return service.VisitResult{}, service.ErrInvalidScope
	}
	if s.err != nil {
		return service.VisitResult{}, s.err
	}
	if actor.ID == "" {
		return service.VisitResult{Status: service.VisitSkipped}, nil
	}
	return s.result, nil
}

func (s *stubGate) lastActor() service.Actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.actors) == 0 {
		return service.Actor{}
	}
	return s.actors[len(s.actors)-1]
}

type stubVisits struct {
	mu           sync.Mutex
	count        int64
	err          error
	handler      live.Handler[int64]
	unsubscribed atomic.Bool
}

func (s *stubVisits) Count(_ context.Context, scope string) (int64, error) {
	if scope == "" {
		return 0, service.ErrInvalidScope
	}
	return s.count, s.err
}

func (s *stubVisits) Subscribe(_ context.Context, scope string, handler live.Handler[int64]) (live.Subscription, error) {
	if scope == "" {
		return nil, service.ErrInvalidScope
	}
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
	handler(s.count, nil)
	return live.NewSubscription(func() { s.unsubscribed.Store(true) }), nil
}

func (s *stubVisits) push(count int64) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler != nil {
		handler(count, nil)
	}
}

type stubTrending struct {
	threads  []service.ThreadView
	err      error
	limits   []int
	pageSize int
}

func (s *stubTrending) PageSize() int {
	if s.pageSize == 0 {
		return 10
	}
	return s.pageSize
}

func (s *stubTrending) Snapshot(_ context.Context, pageSize int) ([]service.ThreadView, error) {
	s.limits = append(s.limits, pageSize)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.threads) > pageSize {
		return s.threads[:pageSize], nil
	}
	return s.threads, nil
}

func (s *stubTrending) Subscribe(_ context.Context, pageSize int, handler live.Handler[[]service.ThreadView]) (live.Subscription, error) {
	threads, err := s.Snapshot(context.Background(), pageSize)
	handler(threads, err)
	return live.NewSubscription(nil), nil
}

type stubMetrics struct {
	snapshot service.MetricsSnapshot
	err      error
}

func (s *stubMetrics) Snapshot(context.Context) (service.MetricsSnapshot, error) {
	return s.snapshot, s.err
}

type stubVerifier struct {
	tokens map[string]service.Actor
}

func (s *stubVerifier) Verify(raw string) (service.Actor, error) {
	if len(raw) > len("Bearer ") && raw[:len("Bearer ")] == "Bearer " {
		raw = raw[len("Bearer "):]
	}
	actor, ok := s.tokens[raw]
	if !ok {
		return service.Actor{}, errors.New("unknown token")
	}
	return actor, nil
}

func setupHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:handler-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := db.Open(dsn, logger.Silent)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

// newTestEngine 按生产路由的形状挂载处理器，避免与 router 包循环引用。
func newTestEngine(api *API) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(sessions.Sessions("forumpulse_test", cookie.NewStore([]byte("test-secret"))))

	r.GET("/healthz", api.HealthCheck)
	r.POST("/api/threads/view", api.RecordThreadView)
	r.GET("/api/threads/trending", api.ListTrending)
	r.GET("/api/threads/trending/stream", api.StreamTrending)
	r.GET("/feeds/trending.rss", api.TrendingRSS)
	r.POST("/api/session", api.CreateSession)
	r.DELETE("/api/session", api.DestroySession)
	r.POST("/api/visits/:scope", api.RecordVisit)
	r.GET("/api/visits/:scope", api.GetVisits)
	r.GET("/api/visits/:scope/stream", api.StreamVisits)
	r.POST("/admin/login", api.Login)
	r.POST("/admin/logout", api.Logout)
	r.GET("/admin/api/metrics", AuthRequired(), api.GetMetrics)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return payload
}
