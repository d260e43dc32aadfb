package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"shorturl-core/internal/cache"
	"shorturl-core/internal/config"
	"shorturl-core/internal/defense"
	"shorturl-core/internal/event"
	"shorturl-core/internal/handler"
	"shorturl-core/internal/middleware"
	"shorturl-core/internal/resolver"
	"shorturl-core/internal/stats"
	"shorturl-core/pkg/broker"
	"shorturl-core/pkg/database"
	"shorturl-core/pkg/logger"
	"shorturl-core/pkg/redis"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Println("配置加载失败:", err)
		return
	}

	logger.InitLogger(cfg.App.Mode)
	defer func() {
		if err := logger.Logger.Sync(); err != nil {
			fmt.Println("日志同步失败:", err)
		}
	}()
	sugaredLogger := zap.S()

	db, err := database.InitMySQL(cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Name)
	if err != nil {
		sugaredLogger.Fatalf("数据库初始化失败: %v", err)
	}
	sugaredLogger.Info("✅ 数据库连接成功")

	// 缓存连接失败只告警不退出：解析可直查数据库
	rdb, err := redis.NewClient(&redis.Options{
		Host: cfg.Cache.Host, Port: cfg.Cache.Port, Password: cfg.Cache.Password, DB: cfg.Cache.DB,
	})
	if err != nil {
		sugaredLogger.Warnf("缓存连接失败，降级为直查数据库: %v", err)
		rdb = nil
	} else if rdb != nil {
		sugaredLogger.Info("✅ 缓存连接成功")
	}

	store := cache.NewStore(rdb,
		time.Duration(cfg.Cache.StandardTTLMinutes)*time.Minute,
		time.Duration(cfg.Cache.TimeoutMS)*time.Millisecond,
		sugaredLogger)
	store.Start()
	defer store.Stop()

	urlResolver := resolver.New(db, store,
		cfg.Cache.PopularityThreshold,
		time.Duration(cfg.Database.TimeoutMS)*time.Millisecond,
		sugaredLogger)

	// 消息代理连接失败同样只降级：事实发布按失败丢弃计数
	conn := broker.New(broker.Config{
		URL:           cfg.Broker.URL,
		StreamName:    cfg.Broker.StreamName,
		ReconnectBase: time.Duration(cfg.Broker.ReconnectBaseMS) * time.Millisecond,
		ReconnectCap:  time.Duration(cfg.Broker.ReconnectCapMS) * time.Millisecond,
		MaxReconnects: cfg.Broker.MaxReconnects,
	}, sugaredLogger)
	if err := conn.Connect(); err != nil {
		sugaredLogger.Warnf("消息代理连接失败，事实发布将降级丢弃: %v", err)
	} else {
		sugaredLogger.Info("✅ 消息代理连接成功")
	}
	defer conn.Close()

	publisher := event.NewPublisher(conn, sugaredLogger)
	pipeline := event.NewPipeline(db, publisher, cfg.Pipeline.BufferSize, cfg.Pipeline.Workers, sugaredLogger)
	pipeline.Start()
	defer pipeline.Stop()

	aggregator := stats.New(db, sugaredLogger)

	consumer := event.NewConsumer(conn, aggregator, urlResolver, sugaredLogger)
	if conn.IsConnected() {
		if err := consumer.Start(); err != nil {
			sugaredLogger.Errorf("消费者启动失败: %v", err)
		} else {
			sugaredLogger.Info("✅ 事件消费者已启动")
			defer consumer.Stop()
		}
	}

	// 前门防御
	tracker := defense.NewTracker(cfg.Defense.ReputationCapacity)
	scorer := defense.NewBotScorer()
	limiter := defense.NewAdaptiveLimiter(cfg.RateLimit.Requests)
	defer limiter.Stop()

	if cfg.App.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.GinZapRecovery(logger.Logger, true))
	router.Use(middleware.GinZapLogger(logger.Logger))
	router.Use(middleware.Defense(tracker, scorer, limiter, &cfg.Defense, &cfg.RateLimit))

	redirectHandler := handler.NewRedirectHandler(db, urlResolver, pipeline, aggregator, store, conn)
	registerRoutes(router, redirectHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		sugaredLogger.Infof("🚀 服务启动成功, 监听 :%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugaredLogger.Fatalf("服务启动失败: %v", err)
		}
	}()

	<-ctx.Done()
	sugaredLogger.Info("收到退出信号，开始优雅关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sugaredLogger.Errorf("HTTP 服务关闭失败: %v", err)
	}
	// 其余组件按 defer 顺序收尾：流水线排空、消费者排空、连接 Drain
}

func registerRoutes(router *gin.Engine, h *handler.RedirectHandler) {
	router.GET("/health", h.HealthCheck)
	router.GET("/:code", h.RedirectToOriginal)

	api := router.Group("/api")
	{
		api.GET("/stats", h.GetStats)
		api.GET("/stats/:code", h.GetLinkStats)
	}
}
