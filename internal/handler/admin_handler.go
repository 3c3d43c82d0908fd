package handler

import (
	"errors"
	"net/http"

	"github.com/forumpulse/internal/db"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type loginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Login 处理管理员登录，支持表单与 JSON
func (a *API) Login(c *gin.Context) {
	if a.db == nil {
		respondUnavailable(c, "database")
		return
	}

	var payload loginRequest
	if err := c.ShouldBind(&payload); err != nil || payload.Username == "" || payload.Password == "" {
		respondError(c, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := db.Authenticate(a.db, payload.Username, payload.Password)
	if err != nil {
		if errors.Is(err, db.ErrInvalidCredentials) {
			respondError(c, http.StatusUnauthorized, "invalid username or password")
			return
		}
		log.Error().Err(err).Msg("admin login failed")
		respondError(c, http.StatusInternalServerError, "login failed")
		return
	}

	// 设置会话
	session := sessions.Default(c)
	session.Set("user_id", user.ID)
	session.Set("username", user.Username)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to save session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"username": user.Username})
}

// Logout 处理管理员登出
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Delete("user_id")
	session.Delete("username")
	session.Save()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetMetrics 返回论坛健康度报表
func (a *API) GetMetrics(c *gin.Context) {
	if a.metrics == nil {
		respondUnavailable(c, "metrics")
		return
	}

	snapshot, err := a.metrics.Snapshot(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("metrics snapshot failed")
		respondError(c, http.StatusInternalServerError, "failed to compute metrics")
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// AuthRequired 是一个简单的认证中间件
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if session.Get("user_id") == nil {
			respondError(c, http.StatusUnauthorized, "login required")
			c.Abort()
			return
		}
		c.Next()
	}
}
