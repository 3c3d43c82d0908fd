package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/forumpulse/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
	"github.com/rs/zerolog/log"
)

const (
	snapshotTimeout = 5 * time.Second
	excerptRunes    = 280
)

type threadViewRequest struct {
	ThreadID string `json:"threadId"`
}

// RecordThreadView 为帖子的浏览数加一。
func (a *API) RecordThreadView(c *gin.Context) {
	if a.views == nil {
		respondError(c, http.StatusInternalServerError, "thread store is not configured")
		return
	}

	var payload threadViewRequest
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.ThreadID) == "" {
		respondError(c, http.StatusBadRequest, "threadId is required")
		return
	}

	threadID := strings.TrimSpace(payload.ThreadID)
	if err := a.views.IncrementViews(c.Request.Context(), threadID); err != nil {
		log.Error().Err(err).Str("thread_id", threadID).Msg("increment views failed")
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type trendingItem struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Excerpt        string    `json:"excerpt"`
	Status         string    `json:"status,omitempty"`
	Pinned         bool      `json:"pinned,omitempty"`
	RepliesCount   int64     `json:"repliesCount"`
	UpvotesCount   int64     `json:"upvotesCount"`
	ViewsCount     int64     `json:"viewsCount"`
	TrendingScore  float64   `json:"trendingScore"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

func toTrendingItems(threads []service.ThreadView) []trendingItem {
	items := make([]trendingItem, 0, len(threads))
	for _, t := range threads {
		items = append(items, trendingItem{
			ID:             t.ID,
			Title:          t.Title,
			Excerpt:        service.RenderExcerpt(t.Body, excerptRunes),
			Status:         t.Status,
			Pinned:         t.Pinned,
			RepliesCount:   t.RepliesCount,
			UpvotesCount:   t.UpvotesCount,
			ViewsCount:     t.ViewsCount,
			TrendingScore:  t.Score,
			CreatedAt:      t.CreatedAt,
			LastActivityAt: t.LastActivityAt,
		})
	}
	return items
}

func (a *API) trendingSnapshot(c *gin.Context) ([]service.ThreadView, int, bool) {
	if a.trending == nil {
		respondUnavailable(c, "trending feed")
		return nil, 0, false
	}

	limit := parseLimitQuery(c, a.trending.PageSize())
	ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	defer cancel()

	threads, err := a.trending.Snapshot(ctx, limit)
	if err != nil {
		log.Error().Err(err).Int("limit", limit).Msg("trending snapshot failed")
		respondError(c, http.StatusInternalServerError, "failed to load trending threads")
		return nil, 0, false
	}
	return threads, limit, true
}

// ListTrending 返回当前的热门帖子列表。
func (a *API) ListTrending(c *gin.Context) {
	threads, limit, ok := a.trendingSnapshot(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"limit": limit, "threads": toTrendingItems(threads)})
}

// StreamTrending 以 SSE 推送热门列表的每次变化。
func (a *API) StreamTrending(c *gin.Context) {
	if a.trending == nil {
		respondUnavailable(c, "trending feed")
		return
	}

	limit := parseLimitQuery(c, a.trending.PageSize())
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pages := make(chan []service.ThreadView, 1)
	failures := make(chan error, 1)
	sub, err := a.trending.Subscribe(ctx, limit, func(threads []service.ThreadView, err error) {
		if err != nil {
			offerLatest(failures, err)
			return
		}
		offerLatest(pages, threads)
	})
	if err != nil {
		log.Error().Err(err).Msg("trending subscribe failed")
		respondError(c, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	defer sub.Unsubscribe()

	prepareEventStream(c)
	for {
		select {
		case <-ctx.Done():
			return
		case threads := <-pages:
			sendEvent(c, "trending", gin.H{"limit": limit, "threads": toTrendingItems(threads)})
		case err := <-failures:
			log.Warn().Err(err).Msg("trending stream error")
			sendEvent(c, "error", gin.H{"error": "failed to load trending threads"})
		}
	}
}

// TrendingRSS 以 RSS 2.0 输出热门帖子。
func (a *API) TrendingRSS(c *gin.Context) {
	threads, _, ok := a.trendingSnapshot(c)
	if !ok {
		return
	}

	rss, err := a.buildTrendingFeed(threads, time.Now()).ToRss()
	if err != nil {
		log.Error().Err(err).Msg("render trending rss failed")
		respondError(c, http.StatusInternalServerError, "failed to render feed")
		return
	}
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", []byte(rss))
}

func (a *API) buildTrendingFeed(threads []service.ThreadView, now time.Time) *feeds.Feed {
	base := a.siteBaseURL
	feed := &feeds.Feed{
		Title:       a.siteName + " trending threads",
		Description: "Threads ranked by replies, upvotes, views and freshness",
		Link:        &feeds.Link{Href: base + "/", Rel: "self", Type: "text/html"},
		Created:     now,
		Updated:     now,
	}

	for _, t := range threads {
		link := fmt.Sprintf("%s/threads/%s", base, t.ID)
		feed.Items = append(feed.Items, &feeds.Item{
			Title:       t.Title,
			Link:        &feeds.Link{Href: link, Rel: "alternate", Type: "text/html"},
			Id:          link,
			Description: service.RenderExcerpt(t.Body, excerptRunes),
			Created:     t.CreatedAt,
			Updated:     t.LastActivityAt,
		})
	}
	return feed
}
