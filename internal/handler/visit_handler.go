package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/forumpulse/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RecordVisit 对当前访问者执行每日一次的计数。
func (a *API) RecordVisit(c *gin.Context) {
	if a.gate == nil {
		respondUnavailable(c, "visit counter")
		return
	}

	scope := strings.TrimSpace(c.Param("scope"))
	result, err := a.gate.Count(c.Request.Context(), a.currentActor(c), scope)
	if err != nil {
		if errors.Is(err, service.ErrInvalidScope) {
			respondError(c, http.StatusBadRequest, "scope is required")
			return
		}
		log.Error().Err(err).Str("scope", scope).Msg("visit count failed")
		respondError(c, http.StatusInternalServerError, "failed to record visit")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetVisits 返回聚合计数，聚合不存在时为 0。
func (a *API) GetVisits(c *gin.Context) {
	if a.visits == nil {
		respondUnavailable(c, "visit counter")
		return
	}

	scope := strings.TrimSpace(c.Param("scope"))
	count, err := a.visits.Count(c.Request.Context(), scope)
	if err != nil {
		if errors.Is(err, service.ErrInvalidScope) {
			respondError(c, http.StatusBadRequest, "scope is required")
			return
		}
		log.Error().Err(err).Str("scope", scope).Msg("visit read failed")
		respondError(c, http.StatusInternalServerError, "failed to read visits")
		return
	}

	c.JSON(http.StatusOK, gin.H{"scope": scope, "count": count})
}

// StreamVisits 以 SSE 推送计数变化，客户端断开后取消订阅。
func (a *API) StreamVisits(c *gin.Context) {
	if a.visits == nil {
		respondUnavailable(c, "visit counter")
		return
	}

	scope := strings.TrimSpace(c.Param("scope"))
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	counts := make(chan int64, 1)
	failures := make(chan error, 1)
	sub, err := a.visits.Subscribe(ctx, scope, func(count int64, err error) {
		if err != nil {
			offerLatest(failures, err)
			return
		}
		offerLatest(counts, count)
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidScope) {
			respondError(c, http.StatusBadRequest, "scope is required")
			return
		}
		log.Error().Err(err).Str("scope", scope).Msg("visit subscribe failed")
		respondError(c, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	defer sub.Unsubscribe()

	prepareEventStream(c)
	for {
		select {
		case <-ctx.Done():
			return
		case count := <-counts:
			sendEvent(c, "count", gin.H{"scope": scope, "count": count})
		case err := <-failures:
			log.Warn().Err(err).Str("scope", scope).Msg("visit stream error")
			sendEvent(c, "error", gin.H{"error": "failed to read visits"})
		}
	}
}
