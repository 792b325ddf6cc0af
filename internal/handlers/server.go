package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"choujiang/internal/auth"
	"choujiang/internal/config"
	"choujiang/internal/lottery"
	"choujiang/internal/store"
)

type Server struct {
	Cfg         config.Config
	Store       *store.Store
	Redis       *redis.Client
	Coordinator *lottery.Coordinator
	JWTSecret   []byte
	Hub         *Hub

	drawCounters sync.Map
}

func NewServer(cfg config.Config, st *store.Store, rdb *redis.Client) *Server {
	srv := &Server{
		Cfg:         cfg,
		Store:       st,
		Redis:       rdb,
		Coordinator: lottery.NewCoordinator(nil),
		JWTSecret:   []byte(cfg.JWTSecret),
		Hub:         NewHub(),
	}
	srv.startDrawFlusher()
	return srv
}

func (s *Server) sessionTTL() time.Duration {
	return time.Duration(s.Cfg.SessionTTLH) * time.Hour
}

func (s *Server) SignToken(userID int64, username, role string) (string, error) {
	sessionID := newSessionID()
	if err := s.saveSession(userID, sessionID, s.sessionTTL()); err != nil {
		return "", err
	}
	return auth.GenerateToken(s.JWTSecret, userID, username, role, sessionID, s.sessionTTL())
}

func (s *Server) saveSession(userID int64, sessionID string, ttl time.Duration) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Set(context.Background(), sessionKey(userID), sessionID, ttl).Err()
}

func (s *Server) validateSession(userID int64, sessionID string) error {
	if s.Redis == nil {
		return nil
	}
	val, err := s.Redis.Get(context.Background(), sessionKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return errInvalidSession
		}
		return err
	}
	if val != sessionID {
		return errInvalidSession
	}
	return nil
}
