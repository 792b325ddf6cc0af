package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"choujiang/internal/config"
	"choujiang/internal/db"
	"choujiang/internal/handlers"
	"choujiang/internal/store"
)

func main() {
	cfg := config.Load()
	if strings.TrimSpace(cfg.JWTSecret) == "" || cfg.JWTSecret == "change-me" {
		log.Fatal("JWT_SECRET must be set to a non-default value")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mysql, err := db.NewMySQL(ctx, cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("mysql error: %v", err)
	}
	rdb, err := db.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("redis error: %v", err)
	}

	srv := handlers.NewServer(cfg, store.New(mysql), rdb)

	r := gin.Default()

	r.GET("/ws", func(c *gin.Context) {
		srv.HandleWS(c.Writer, c.Request)
	})

	api := r.Group("/api")
	{
		api.POST("/auth/login", srv.Login)
		api.POST("/admin/login", srv.AdminLogin)

		lotteryAPI := api.Group("/lottery")
		lotteryAPI.GET("/activities/:id", srv.GetActivityInfo)
		lotteryAPI.POST("/activities/:id/draw", srv.Draw)
		lotteryAPI.POST("/activities/:id/offline-draw", srv.AdminRequired(), srv.OfflineDraw)

		api.POST("/webhook/activities/:webhook_id/lottery-codes", srv.WebhookImportCodes)

		admin := api.Group("/admin", srv.AdminRequired())
		admin.POST("/activities", srv.CreateActivity)
		admin.GET("/activities", srv.ListActivities)
		admin.GET("/activities/:id", srv.GetActivityAdmin)
		admin.PUT("/activities/:id", srv.UpdateActivity)
		admin.DELETE("/activities/:id", srv.DeleteActivity)

		admin.POST("/activities/:id/prizes", srv.CreatePrize)
		admin.GET("/activities/:id/prizes", srv.ListPrizesAdmin)
		admin.GET("/activities/:id/probability", srv.ValidateProbabilities)
		admin.PUT("/prizes/:id", srv.UpdatePrize)
		admin.DELETE("/prizes/:id", srv.DeletePrize)
		admin.POST("/prizes/:id/stock", srv.AdjustPrizeStock)

		admin.POST("/activities/:id/codes/generate", srv.GenerateCodes)
		admin.GET("/activities/:id/codes", srv.ListCodes)
		admin.POST("/codes/:id/invalidate", srv.InvalidateCode)
		admin.POST("/codes/:id/reset", srv.ResetCode)
		admin.GET("/code-formats", srv.SupportedCodeFormats)

		admin.GET("/activities/:id/records", srv.ListRecords)
		admin.DELETE("/records/:id", srv.DeleteRecord)
		admin.GET("/activities/:id/code-stats", srv.GetCodeStats)
		admin.GET("/activities/:id/winning-stats", srv.GetWinningStats)
		admin.GET("/metrics", srv.GetMetrics)
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })

	log.Printf("server listening on %s", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatal(err)
	}
}
