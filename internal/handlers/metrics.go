package handlers

import (
	"context"
	"sync/atomic"
	"time"
)

// bumpDraws counts one redemption attempt in process memory; a ticker
// goroutine flushes the counters to redis once a second.
func (s *Server) bumpDraws(activityID int64) {
	val, _ := s.drawCounters.LoadOrStore(activityID, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

func (s *Server) startDrawFlusher() {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			s.flushDraws()
		}
	}()
}

func (s *Server) flushDraws() {
	if s.Redis == nil {
		return
	}
	nowSec := time.Now().Unix()
	ctx := context.Background()
	pipe := s.Redis.Pipeline()
	has := false
	s.drawCounters.Range(func(key, value any) bool {
		activityID, ok := key.(int64)
		if !ok {
			return true
		}
		counter, ok := value.(*atomic.Int64)
		if !ok {
			return true
		}
		n := counter.Swap(0)
		if n <= 0 {
			return true
		}
		has = true
		redisKey := drawQPSKey(activityID, nowSec)
		pipe.IncrBy(ctx, redisKey, n)
		pipe.Expire(ctx, redisKey, 30*time.Second)
		return true
	})
	if has {
		_, _ = pipe.Exec(ctx)
	}
}
