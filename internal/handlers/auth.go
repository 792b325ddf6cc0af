package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"choujiang/internal/models"
	"choujiang/internal/store"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates an operator against the users table.
func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	user, err := s.Store.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if err == store.ErrUserNotFound {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	token, err := s.SignToken(user.ID, user.Username, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

type adminLoginRequest struct {
	Password string `json:"password"`
}

// AdminLogin trades the configured admin password for a super-admin token.
func (s *Server) AdminLogin(c *gin.Context) {
	var req adminLoginRequest
	_ = c.ShouldBindJSON(&req)
	if req.Password == "" {
		req.Password = strings.TrimSpace(c.PostForm("password"))
	}
	if req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password required"})
		return
	}
	if strings.TrimSpace(s.Cfg.AdminPassword) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "admin password not configured"})
		return
	}
	if s.Cfg.AdminPassword != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}
	// The built-in admin is a real users row, so its offline draws carry a
	// recordable operator_id like any other operator's.
	user, err := s.ensureAdminUser(c.Request.Context(), req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	token, err := s.SignToken(user.ID, user.Username, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) ensureAdminUser(ctx context.Context, password string) (*models.User, error) {
	user, err := s.Store.GetUserByUsername(ctx, "admin")
	if err == nil {
		return user, nil
	}
	if err != store.ErrUserNotFound {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user = &models.User{Username: "admin", PasswordHash: string(hash), Role: "super_admin"}
	if err := s.Store.CreateUser(ctx, user); err != nil {
		// Lost a create race with another login; re-read the row.
		if existing, gerr := s.Store.GetUserByUsername(ctx, "admin"); gerr == nil {
			return existing, nil
		}
		return nil, err
	}
	return user, nil
}
