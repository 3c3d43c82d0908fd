package handler

import (
	"net/http"
	"strings"

	"github.com/forumpulse/internal/service"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	sessionActorID    = "uid"
	sessionActorEmail = "email"
)

type sessionRequest struct {
	IDToken string `json:"idToken"`
}

// CreateSession 校验身份令牌，并把访问者写入 cookie 会话。
func (a *API) CreateSession(c *gin.Context) {
	if a.verifier == nil {
		respondUnavailable(c, "identity")
		return
	}

	var payload sessionRequest
	if !bindJSON(c, &payload, "idToken is required") {
		return
	}
	if strings.TrimSpace(payload.IDToken) == "" {
		respondError(c, http.StatusBadRequest, "idToken is required")
		return
	}

	actor, err := a.verifier.Verify(payload.IDToken)
	if err != nil {
		log.Debug().Err(err).Msg("rejected identity token")
		respondError(c, http.StatusUnauthorized, "invalid identity token")
		return
	}

	session := sessions.Default(c)
	session.Set(sessionActorID, actor.ID)
	session.Set(sessionActorEmail, actor.Email)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to save session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"actor": actor})
}

// DestroySession 清除访问者会话。
func (a *API) DestroySession(c *gin.Context) {
	session := sessions.Default(c)
	session.Delete(sessionActorID)
	session.Delete(sessionActorEmail)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to save session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// currentActor 优先使用 Authorization 头中的令牌，其次是会话；均不存在时返回零值。
func (a *API) currentActor(c *gin.Context) service.Actor {
	if header := strings.TrimSpace(c.GetHeader("Authorization")); header != "" && a.verifier != nil {
		actor, err := a.verifier.Verify(header)
		if err == nil {
			return actor
		}
		log.Debug().Err(err).Msg("ignoring invalid bearer token")
	}

	session := sessions.Default(c)
	id, _ := session.Get(sessionActorID).(string)
	email, _ := session.Get(sessionActorEmail).(string)
	return service.Actor{ID: id, Email: email}
}
