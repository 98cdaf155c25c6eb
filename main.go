package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weblab-class/pomo-dungeon/api/rest"
	"github.com/weblab-class/pomo-dungeon/api/ws"
	"github.com/weblab-class/pomo-dungeon/cache"
	"github.com/weblab-class/pomo-dungeon/config"
	"github.com/weblab-class/pomo-dungeon/db"
	"github.com/weblab-class/pomo-dungeon/events"
	"github.com/weblab-class/pomo-dungeon/middleware"
	"github.com/weblab-class/pomo-dungeon/model"
	"github.com/weblab-class/pomo-dungeon/presence"
	"github.com/weblab-class/pomo-dungeon/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

func main() {
	configPath := "config/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	var logger *zap.Logger
	if cfg.Server.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	gdb, err := db.Open(cfg.Database)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	if err := model.AutoMigrate(gdb); err != nil {
		logger.Fatal("migrate database", zap.Error(err))
	}

	cacheCfg := cache.Config{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheCfg)
	if err != nil {
		logger.Fatal("init cache", zap.Error(err))
	}
	ps, err := cache.NewPubSub(cacheCfg)
	if err != nil {
		logger.Fatal("init pubsub", zap.Error(err))
	}

	ev := events.New(gdb, cfg.Events.FlushInterval, logger)

	metrics := presence.NewMetrics(cfg.Presence.MaxLatencySamples, cfg.Presence.MaxDisconnects)
	tracker := presence.NewTracker(gdb, c, ps, ev, metrics, logger)

	sched := scheduler.New(logger)
	sched.AddTicker("event-prune", cfg.Events.PruneInterval, func() {
		ev.Prune(cfg.Events.Retention)
	})
	sched.AddTicker("presence-report", time.Minute, func() {
		snap := metrics.Snapshot()
		logger.Debug("presence report",
			zap.Int("connections", tracker.ConnCount()),
			zap.Int("online_users", len(tracker.OnlineUsers())),
			zap.Int64("connections_total", snap.ConnectionsTotal))
	})

	wsRouter := ws.NewRouter(logger)
	wsHandler := ws.NewHandler(tracker, wsRouter, cfg.Presence, cfg.Security.AllowedOrigins, logger)

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.TraceID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	registerRoutes(r, gdb, ev, tracker, sched, cfg, logger)
	r.GET("/ws", wsHandler.ServeWS)

	if cfg.Server.StaticDir != "" {
		r.Static("/assets", cfg.Server.StaticDir+"/assets")
		r.StaticFile("/", cfg.Server.StaticDir+"/index.html")
		r.NoRoute(func(c *gin.Context) {
			c.File(cfg.Server.StaticDir + "/index.html")
		})
	}

	if cfg.Server.AdminKey == "" {
		logger.Warn("admin key not configured, admin endpoints disabled")
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		logger.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	tracker.CloseAll()
	sched.Stop()
	ev.Stop(ctx)
}

func registerRoutes(r *gin.Engine, gdb *gorm.DB, ev *events.Service, tracker *presence.Tracker, sched *scheduler.Scheduler, cfg *config.Config, logger *zap.Logger) {
	friendH := rest.NewFriendHandler(gdb, ev, logger)
	userH := rest.NewUserHandler(gdb, logger)
	taskH := rest.NewTaskHandler(gdb, logger)
	progressH := rest.NewProgressHandler(gdb, ev, logger)
	adminH := rest.NewAdminHandler(tracker, sched, logger)

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})

		api.POST("/friend-requests", friendH.SendRequest)
		api.GET("/friend-requests/:userId", friendH.ListReceived)
		api.PATCH("/friend-requests/:requestId", friendH.Respond)
		api.GET("/friends/:userId", friendH.ListFriends)
		api.DELETE("/friends", friendH.Remove)

		api.POST("/users/upsert", userH.Upsert)
		api.GET("/users/check-username", userH.CheckUsername)
		api.POST("/users/username", userH.ClaimUsername)
		api.GET("/users/summary/:userId", userH.Summary)

		api.GET("/tasks/:userId", taskH.List)
		api.POST("/tasks/upsert", taskH.Upsert)
		api.POST("/tasks/delete", taskH.Delete)

		api.POST("/sessions/start", progressH.StartSession)
		api.POST("/sessions/end", progressH.EndSession)
		api.POST("/quests/complete", progressH.CompleteQuest)
		api.GET("/stats/:userId", progressH.Stats)

		admin := api.Group("/admin", rest.AdminAuth(cfg.Server.AdminKey))
		{
			admin.GET("/metrics", adminH.Metrics)
			admin.GET("/online", adminH.Online)
		}
	}
}
