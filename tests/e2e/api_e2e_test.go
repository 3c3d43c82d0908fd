package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/forumpulse/internal/config"
	"github.com/forumpulse/internal/db"
	"github.com/forumpulse/internal/environment"
	"github.com/forumpulse/internal/router"
	"github.com/forumpulse/internal/service"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm/logger"
)

type e2eSuite struct {
	env       *environment.Environment
	handler   http.Handler
	public    httpClient
	visitor   httpClient
	admin     httpClient
	baseURL   string
	adminPass string
	threadIDs []string
}

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type localClient struct {
	handler http.Handler
	jar     http.CookieJar
}

func newLocalClient(handler http.Handler, withJar bool) *localClient {
	var jar http.CookieJar
	if withJar {
		if j, err := cookiejar.New(nil); err == nil {
			jar = j
		}
	}
	return &localClient{handler: handler, jar: jar}
}

func (c *localClient) Do(req *http.Request) (*http.Response, error) {
	if c.jar != nil {
		for _, cookie := range c.jar.Cookies(req.URL) {
			req.AddCookie(cookie)
		}
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	resp := w.Result()
	if c.jar != nil {
		c.jar.SetCookies(req.URL, resp.Cookies())
	}
	return resp, nil
}

func TestE2E_AllInterfaces(t *testing.T) {
	suite := newE2ESuite(t)

	t.Run("public endpoints", suite.testPublicEndpoints)
	t.Run("thread views", suite.testThreadViews)
	t.Run("visitor visits", suite.testVisitorVisits)
	suite.login(t)
	t.Run("admin apis", suite.testAdminAPIs)
	t.Run("trending fallback", suite.testTrendingFallback)
}

func newE2ESuite(t *testing.T) *e2eSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open(fmt.Sprintf("file:e2e-%d?mode=memory&cache=shared", time.Now().UnixNano()), logger.Silent)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	cfg := config.AppConfig{
		Backend:          environment.BackendSQLite,
		CounterStore:     environment.BackendSQLite,
		MarkStore:        environment.BackendSQLite,
		SessionSecret:    "test-session-secret",
		SiteBaseURL:      "http://example.test",
		IdentitySecret:   "e2e-identity",
		TrendingStatus:   "open",
		TrendingPageSize: 3,
	}
	env, err := environment.NewWithDB(context.Background(), cfg, gdb)
	if err != nil {
		t.Fatalf("failed to wire environment: %v", err)
	}
	t.Cleanup(func() { env.Close() })

	if _, err := db.EnsureUser(gdb, "admin", "e2e-secret"); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	now := time.Now()
	created := now.Add(-time.Hour)
	views := []int64{10, 50, 5, 30}
	var ids []string
	for i, v := range views {
		id := fmt.Sprintf("thread-%d", i+1)
		ids = append(ids, id)
		lastActivity := now.Add(-10 * time.Minute)
		if i == 0 {
			lastActivity = created
		}
		thread := service.ThreadView{
			ID:             id,
			Title:          fmt.Sprintf("讨论帖 %d", i+1),
			Body:           "# 标题\n正文内容 <script>alert(1)</script>",
			Status:         "open",
			ViewsCount:     v,
			CreatedAt:      created,
			LastActivityAt: lastActivity,
		}
		if err := env.Threads.Upsert(context.Background(), thread); err != nil {
			t.Fatalf("failed to seed thread: %v", err)
		}
	}
	resolved := service.ThreadView{
		ID:             "thread-resolved",
		Title:          "已解决",
		Status:         "resolved",
		RepliesCount:   4,
		ViewsCount:     500,
		CreatedAt:      created,
		LastActivityAt: now.Add(-5 * time.Minute),
	}
	if err := env.Threads.Upsert(context.Background(), resolved); err != nil {
		t.Fatalf("failed to seed resolved thread: %v", err)
	}
	if _, err := env.Refresher.Refresh(context.Background()); err != nil {
		t.Fatalf("failed to refresh scores: %v", err)
	}

	engine := router.SetupRouter(env.API(), router.Options{SessionSecret: cfg.SessionSecret})

	return &e2eSuite{
		env:       env,
		handler:   engine,
		public:    newLocalClient(engine, false),
		visitor:   newLocalClient(engine, true),
		admin:     newLocalClient(engine, true),
		baseURL:   "http://example.test",
		adminPass: "e2e-secret",
		threadIDs: ids,
	}
}

func (s *e2eSuite) login(t *testing.T) {
	t.Helper()
	form := url.Values{
		"username": {"admin"},
		"password": {s.adminPass},
	}

	req, err := http.NewRequest(http.MethodPost, s.baseURL+"/admin/login", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("failed to create login request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.admin.Do(req)
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed, status %d", resp.StatusCode)
	}
}

func (s *e2eSuite) testPublicEndpoints(t *testing.T) {
	resp := s.mustRequest(t, s.public, http.MethodGet, "/healthz", nil, nil)
	var health map[string]interface{}
	decodeJSON(t, resp, &health)
	if resp.StatusCode != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("unexpected health response %d %v", resp.StatusCode, health)
	}

	resp = s.mustRequest(t, s.public, http.MethodGet, "/api/threads/trending", nil, nil)
	var trending struct {
		Threads []struct {
			ID            string  `json:"id"`
			Excerpt       string  `json:"excerpt"`
			TrendingScore float64 `json:"trendingScore"`
		} `json:"threads"`
	}
	decodeJSON(t, resp, &trending)
	if len(trending.Threads) != 3 {
		t.Fatalf("expected a page of 3, got %d", len(trending.Threads))
	}
	expected := []string{"thread-2", "thread-4", "thread-1"}
	for i, id := range expected {
		if trending.Threads[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, trending.Threads[i].ID)
		}
	}
	if strings.Contains(trending.Threads[0].Excerpt, "<script") || !strings.Contains(trending.Threads[0].Excerpt, "<h1>") {
		t.Fatalf("expected sanitized excerpt, got %q", trending.Threads[0].Excerpt)
	}

	resp = s.mustRequest(t, s.public, http.MethodGet, "/feeds/trending.rss", nil, nil)
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "http://example.test/threads/thread-2") {
		t.Fatalf("unexpected rss response %d: %s", resp.StatusCode, body)
	}

	resp = s.mustRequest(t, s.public, http.MethodGet, "/admin/api/metrics", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected metrics to require login, got %d", resp.StatusCode)
	}
}

func (s *e2eSuite) testThreadViews(t *testing.T) {
	resp := s.mustRequestJSON(t, s.public, http.MethodPost, "/api/threads/view", map[string]interface{}{"threadId": s.threadIDs[2]})
	var ok map[string]interface{}
	decodeJSON(t, resp, &ok)
	if resp.StatusCode != http.StatusOK || ok["ok"] != true {
		t.Fatalf("expected ok response, got %d %v", resp.StatusCode, ok)
	}

	resp = s.mustRequestJSON(t, s.public, http.MethodPost, "/api/threads/view", map[string]interface{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing threadId, got %d", resp.StatusCode)
	}

	resp = s.mustRequestJSON(t, s.public, http.MethodPost, "/api/threads/view", map[string]interface{}{"threadId": "does-not-exist"})
	var failure map[string]interface{}
	decodeJSON(t, resp, &failure)
	if resp.StatusCode != http.StatusInternalServerError || failure["error"] == nil {
		t.Fatalf("expected 500 with error payload, got %d %v", resp.StatusCode, failure)
	}

	resp = s.mustRequest(t, s.public, http.MethodGet, "/api/threads/view", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", resp.StatusCode)
	}

	all, err := s.env.Threads.AllThreads(context.Background())
	if err != nil {
		t.Fatalf("failed to load threads: %v", err)
	}
	for _, thread := range all {
		if thread.ID == s.threadIDs[2] && thread.ViewsCount != 6 {
			t.Fatalf("expected views to be incremented to 6, got %d", thread.ViewsCount)
		}
	}
}

func (s *e2eSuite) testVisitorVisits(t *testing.T) {
	resp := s.mustRequest(t, s.visitor, http.MethodPost, "/api/visits/forum", nil, nil)
	var skipped service.VisitResult
	decodeJSON(t, resp, &skipped)
	if skipped.Status != service.VisitSkipped {
		t.Fatalf("expected anonymous visit to be skipped, got %+v", skipped)
	}

	token, err := s.env.Verifier.Issue(service.Actor{ID: "member-1", Email: "member@forum.dev"}, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	resp = s.mustRequestJSON(t, s.visitor, http.MethodPost, "/api/session", map[string]interface{}{"idToken": token})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected session bridge to accept token, got %d", resp.StatusCode)
	}

	for i, want := range []service.VisitStatus{service.VisitCounted, service.VisitAlreadyCounted, service.VisitAlreadyCounted} {
		resp = s.mustRequest(t, s.visitor, http.MethodPost, "/api/visits/forum", nil, nil)
		var result service.VisitResult
		decodeJSON(t, resp, &result)
		if result.Status != want {
			t.Fatalf("visit %d: expected %s, got %+v", i, want, result)
		}
	}

	resp = s.mustRequest(t, s.public, http.MethodGet, "/api/visits/forum", nil, nil)
	var count map[string]interface{}
	decodeJSON(t, resp, &count)
	if count["count"] != float64(1) {
		t.Fatalf("expected exactly one counted visit, got %v", count)
	}
}

func (s *e2eSuite) testAdminAPIs(t *testing.T) {
	resp := s.mustRequest(t, s.admin, http.MethodGet, "/admin/api/metrics", nil, nil)
	var snapshot service.MetricsSnapshot
	decodeJSON(t, resp, &snapshot)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected metrics, got %d", resp.StatusCode)
	}
	if snapshot.TotalThreads != 5 || snapshot.ResolvedThreads != 1 || snapshot.NoReplyThreads != 4 {
		t.Fatalf("unexpected metrics snapshot: %+v", snapshot)
	}
	if snapshot.UnresolvedPct != 80 || snapshot.NoReplyPct != 80 {
		t.Fatalf("unexpected percentages: %+v", snapshot)
	}
}

func (s *e2eSuite) testTrendingFallback(t *testing.T) {
	if err := s.env.DB.Migrator().DropIndex(&db.Thread{}, db.RankedIndex); err != nil {
		t.Fatalf("failed to drop ranked index: %v", err)
	}

	resp := s.mustRequest(t, s.public, http.MethodGet, "/api/threads/trending?limit=2", nil, nil)
	var trending struct {
		Threads []struct {
			ID string `json:"id"`
		} `json:"threads"`
	}
	decodeJSON(t, resp, &trending)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected fallback to answer, got %d", resp.StatusCode)
	}
	if len(trending.Threads) != 2 || trending.Threads[0].ID != "thread-resolved" || trending.Threads[1].ID != "thread-2" {
		t.Fatalf("expected client-side ranking of recent threads, got %+v", trending.Threads)
	}
}

func (s *e2eSuite) mustRequest(t *testing.T, client httpClient, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.baseURL+path, body)
	if err != nil {
		t.Fatalf("failed to build request %s %s: %v", method, path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func (s *e2eSuite) mustRequestJSON(t *testing.T, client httpClient, method, path string, payload map[string]interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	headers := map[string]string{"Content-Type": "application/json"}
	return s.mustRequest(t, client, method, path, bytes.NewReader(data), headers)
}

func decodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	body := readBody(t, resp)
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		t.Fatalf("failed to decode json: %v\nbody=%s", err, body)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(data)
}
