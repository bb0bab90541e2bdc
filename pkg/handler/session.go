package handler

import (
	"errors"
	"net/http"

	"github.com/choraleia/parlance/pkg/config"
	"github.com/choraleia/parlance/pkg/service"
	"github.com/choraleia/parlance/pkg/utils"
	"github.com/gin-gonic/gin"
)

const sessionContextKey = "parlance.session"

// SessionMiddleware resolves the session cookie, issuing a new session when
// the cookie is missing or stale, and stores the SessionContext on c.
func SessionMiddleware(store service.SessionStore, cfg config.SessionConfig) gin.HandlerFunc {
	name := cfg.CookieName
	if name == "" {
		name = config.DefaultCookieName
	}
	maxAge := int(cfg.MaxAge.Seconds())

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		token, _ := c.Cookie(name)

		sc, err := store.Resolve(ctx, token)
		if errors.Is(err, service.ErrNoSession) {
			sc, err = store.Create(ctx)
			if err == nil {
				c.SetSameSite(http.SameSiteLaxMode)
				c.SetCookie(name, sc.SessionID, maxAge, "/", "", cfg.Secure, true)
			}
		}
		if err != nil {
			utils.GetLogger().Error("Failed to resolve session", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
			return
		}

		c.Set(sessionContextKey, sc)
		c.Next()
	}
}

// SessionFrom returns the SessionContext stored by SessionMiddleware.
func SessionFrom(c *gin.Context) service.SessionContext {
	if v, ok := c.Get(sessionContextKey); ok {
		if sc, ok := v.(service.SessionContext); ok {
			return sc
		}
	}
	return service.SessionContext{}
}
