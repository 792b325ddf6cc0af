package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"choujiang/internal/auth"
)

// AdminRequired accepts either the static X-Admin-Token or a signed operator
// token with a live redis session.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		adminToken := c.GetHeader("X-Admin-Token")
		if adminToken != "" && s.Cfg.AdminToken != "" && adminToken == s.Cfg.AdminToken {
			c.Set("role", "super_admin")
			c.Next()
			return
		}

		token := getBearerToken(c.Request)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing admin token"})
			return
		}
		claims, err := auth.ParseToken(s.JWTSecret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if err := s.validateSession(claims.UserID, claims.SessionID); err != nil {
			status := http.StatusUnauthorized
			if err != errInvalidSession {
				status = http.StatusServiceUnavailable
			}
			c.AbortWithStatusJSON(status, gin.H{"error": "session invalid"})
			return
		}
		c.Set("uid", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}

func operatorID(c *gin.Context) *int64 {
	val, ok := c.Get("uid")
	if !ok {
		return nil
	}
	uid, ok := val.(int64)
	if !ok || uid <= 0 {
		return nil
	}
	return &uid
}

func role(c *gin.Context) string {
	val, ok := c.Get("role")
	if !ok {
		return ""
	}
	r, _ := val.(string)
	return r
}
