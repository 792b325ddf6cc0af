package db

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// NewMySQL opens the pool the store runs on. Redemptions hold row locks
// briefly, so a moderate pool with recycled connections is enough.
func NewMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	pool, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	pool.SetConnMaxLifetime(5 * time.Minute)
	pool.SetMaxOpenConns(30)
	pool.SetMaxIdleConns(10)
	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
