package router

import (
	"strings"

	"github.com/forumpulse/internal/handler"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const sessionName = "forumpulse_session"

// Options 控制路由层的会话与限流参数。
type Options struct {
	SessionSecret string
	// ViewRateLimit 为每个 IP 每秒允许的浏览上报次数，<= 0 表示不限流
	ViewRateLimit float64
	ViewRateBurst int
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, opts Options) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), handler.RequestLogger())

	// 配置会话中间件
	secret := strings.TrimSpace(opts.SessionSecret)
	if secret == "" {
		secret = "forumpulse-dev-secret"
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, MaxAge: 7 * 24 * 3600})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/healthz", api.HealthCheck)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})
	r.GET("/feeds/trending.rss", api.TrendingRSS)

	viewLimiter := handler.NewIPRateLimiter(opts.ViewRateLimit, opts.ViewRateBurst)

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/session", api.CreateSession)
		apiGroup.DELETE("/session", api.DestroySession)

		apiGroup.POST("/threads/view", viewLimiter.Middleware(), api.RecordThreadView)
		apiGroup.GET("/threads/trending", api.ListTrending)
		apiGroup.GET("/threads/trending/stream", api.StreamTrending)

		apiGroup.POST("/visits/:scope", api.RecordVisit)
		apiGroup.GET("/visits/:scope", api.GetVisits)
		apiGroup.GET("/visits/:scope/stream", api.StreamVisits)
	}

	// 后台管理路由
	admin := r.Group("/admin")
	{
		admin.POST("/login", api.Login)
		admin.POST("/logout", api.Logout)

		// 需要认证的后台路由
		auth := admin.Group("/api")
		auth.Use(handler.AuthRequired())
		{
			auth.GET("/metrics", api.GetMetrics)
		}
	}

	return r
}
