package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"todosync/internal/client/placeholder"
	"todosync/internal/config"
	cronrunner "todosync/internal/cron"
	"todosync/internal/db"
	"todosync/internal/handler"
	"todosync/internal/logger"
	"todosync/internal/messaging"
	gormrepository "todosync/internal/repository/gorm"
	"todosync/internal/service"
	"todosync/internal/worker"
	"todosync/internal/ws"
)

func main() {
	cfgPath := os.Getenv("TS_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TS_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	store := gormrepository.New(dbConn.Gorm)
	sourceHTTP := &http.Client{Timeout: cfg.Source.Timeout}
	sourceClient := placeholder.NewClient(sourceHTTP, cfg.Source.BaseURL)

	hub := ws.NewHub(logger)
	notifier := &ws.Notifier{Hub: hub, Logger: logger}
	publisher := messaging.NewStreamPublisher(rdb, logger)
	defer publisher.Close()

	pool := worker.New(cfg.Workers.PoolSize, logger)

	syncService := &service.TodoSyncService{
		Repo:      store,
		Source:    sourceClient,
		Publisher: publisher,
		Notifier:  notifier,
		Pool:      pool,
		Logger:    logger,
		Config:    cfg.Sync,
	}
	pdfService := &service.PdfService{
		Publisher: publisher,
		Notifier:  notifier,
		Pool:      pool,
		Renderer:  service.TextRenderer{},
		Logger:    logger,
		ExportDir: cfg.PdfJobs.ExportDir,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	syncHandler := &handler.SyncHandler{Service: syncService, Repo: store, Logger: logger}
	syncHandler.Register(engine)
	pdfHandler := &handler.PdfHandler{Service: pdfService, Repo: store, Logger: logger}
	pdfHandler.Register(engine)
	wsHandler := &handler.WSHandler{Hub: hub, Logger: logger}
	wsHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Consumer.Enabled {
		listener := &messaging.Listener{Push: notifier, Logger: logger}
		consumer := messaging.NewConsumer(rdb, logger, messaging.ConsumerOptions{
			Name:          "todosync-" + hostname(),
			BlockInterval: cfg.Consumer.BlockInterval,
			ClaimMinIdle:  cfg.Consumer.ClaimMinIdle,
		})
		consumer.Subscribe(messaging.StreamPdfProcessing, messaging.GroupPdfProcessing, listener.HandlePdfProcessing)
		consumer.Subscribe(messaging.StreamTodoSync, messaging.GroupTodoSync, listener.HandleTodoSync)
		consumer.Subscribe(messaging.StreamNotification, messaging.GroupNotification, listener.HandleNotification)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("event consumer stopped", zap.Error(err))
			}
		}()
	}

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add(cfg.Cron.FullSync, func(ctx context.Context) {
			batchID, err := syncService.RunFullSync(ctx, service.SyncActor)
			if err != nil {
				logger.Warn("cron full sync failed", zap.Error(err))
				return
			}
			logger.Info("cron full sync accepted", zap.String("batch_id", batchID))
		})
		if err != nil {
			logger.Fatal("cron schedule invalid", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = pool.Shutdown(shutdownCtx)
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "local"
	}
	return h
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-User-ID")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
