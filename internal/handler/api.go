package handler

import (
	"context"
	"strings"

	"github.com/forumpulse/internal/live"
	"github.com/forumpulse/internal/service"
	"gorm.io/gorm"
)

type viewRecorder interface {
	IncrementViews(ctx context.Context, threadID string) error
}

type visitGate interface {
	Count(ctx context.Context, actor service.Actor, scope string) (service.VisitResult, error)
}

type visitReader interface {
	Count(ctx context.Context, scope string) (int64, error)
	Subscribe(ctx context.Context, scope string, handler live.Handler[int64]) (live.Subscription, error)
}

type trendingProvider interface {
	PageSize() int
	Snapshot(ctx context.Context, pageSize int) ([]service.ThreadView, error)
	Subscribe(ctx context.Context, pageSize int, handler live.Handler[[]service.ThreadView]) (live.Subscription, error)
}

type metricsProvider interface {
	Snapshot(ctx context.Context) (service.MetricsSnapshot, error)
}

type tokenVerifier interface {
	Verify(raw string) (service.Actor, error)
}

// Deps 是 HTTP 层需要的全部依赖，未配置的项对应的接口返回 503。
type Deps struct {
	DB          *gorm.DB
	Views       viewRecorder
	Gate        visitGate
	Visits      visitReader
	Trending    trendingProvider
	Metrics     metricsProvider
	Verifier    tokenVerifier
	SiteName    string
	SiteBaseURL string
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db          *gorm.DB
	views       viewRecorder
	gate        visitGate
	visits      visitReader
	trending    trendingProvider
	metrics     metricsProvider
	verifier    tokenVerifier
	siteName    string
	siteBaseURL string
}

// NewAPI constructs a handler set with shared services.
func NewAPI(deps Deps) *API {
	name := strings.TrimSpace(deps.SiteName)
	if name == "" {
		name = "ForumPulse"
	}
	return &API{
		db:          deps.DB,
		views:       deps.Views,
		gate:        deps.Gate,
		visits:      deps.Visits,
		trending:    deps.Trending,
		metrics:     deps.Metrics,
		verifier:    deps.Verifier,
		siteName:    name,
		siteBaseURL: strings.TrimRight(strings.TrimSpace(deps.SiteBaseURL), "/"),
	}
}

// DB exposes the underlying gorm instance.
func (a *API) DB() *gorm.DB {
	return a.db
}
