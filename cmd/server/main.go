package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/forumpulse/internal/config"
	"github.com/forumpulse/internal/db"
	"github.com/forumpulse/internal/environment"
	"github.com/forumpulse/internal/logger"
	"github.com/forumpulse/internal/router"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化存储与服务
	env, err := environment.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize environment")
	}
	defer env.Close()

	created, err := db.EnsureUser(env.DB, cfg.SuperRootUserName, cfg.SuperRootPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to ensure super root user")
	}
	if created {
		log.Info().Str("username", cfg.SuperRootUserName).Msg("created super root user")
	}

	if cfg.RefreshInterval > 0 {
		if _, err := env.Refresher.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("initial trending refresh failed")
		}
		go env.Refresher.Run(ctx, cfg.RefreshInterval)
	}

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(env.API(), router.Options{
		SessionSecret: cfg.SessionSecret,
		ViewRateLimit: cfg.ViewRateLimit,
		ViewRateBurst: cfg.ViewRateBurst,
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("backend", cfg.Backend).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to run server")
		}
	}()

	// 请求上下文派生自 ctx，事件流会随信号一起结束
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
