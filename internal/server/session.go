package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sessionKey = "sid"

// sessionMiddleware gives every browser an opaque session id cookie.
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	name := s.Config.Session.CookieName
	maxAge := int(s.Config.Session.TTL.Seconds())

	return func(c *gin.Context) {
		sid, err := c.Cookie(name)
		if err != nil || uuid.Validate(sid) != nil {
			sid = uuid.NewString()
		}
		// sliding expiry
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(name, sid, maxAge, "/", "", s.Config.Session.SecureCookie, true)
		c.Set(sessionKey, sid)
		c.Next()
	}
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}
