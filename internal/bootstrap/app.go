package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "dormdesign/internal/handler/http"
	wsHandler "dormdesign/internal/handler/websocket"
	"dormdesign/internal/hub"
	gormpersistence "dormdesign/internal/infra/persistence/gorm"
	"dormdesign/internal/infra/setup"
	redisstate "dormdesign/internal/infra/state/redis"
	"dormdesign/internal/metrics"
	"dormdesign/internal/middleware"
	"dormdesign/internal/service"
	"dormdesign/internal/tasks"
	"dormdesign/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	HttpServer  *http.Server

	redisClientOpt asynq.RedisClientOpt
	scheduler      *asynq.Scheduler
	hubCancel      context.CancelFunc
}

// NewLogger 按配置创建 logger，同时配置 logrus 标准 logger
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // cfg.LogLevel 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)

	// 各包通过 logrus.WithFields 使用标准 logger
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(logLevel)
	logrus.SetOutput(os.Stdout)
	return log
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := NewLogger(cfg)
	log.Infof("Logger initialized (Level: %s, Format: %T)", log.GetLevel().String(), log.Formatter)

	// 3. 初始化基础设施
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	log.Info("Infrastructure initialized successfully")

	// 4. Repositories
	roomRepo := gormpersistence.NewGormRoomRepository(db)
	cacheRepo := redisstate.NewRedisRoomCacheRepository(redisClient, cfg.KeyPrefix)

	// 5. Services
	itemService := service.NewItemService()
	roomService := service.NewRoomService(roomRepo)
	cacheService := service.NewRoomCacheService(cacheRepo, roomService, itemService,
		service.WithFlushRetry(cfg.FlushAttempts, cfg.FlushBackoff))

	// 6. Hub
	hubInstance := hub.NewHub(hub.NewRegistry(), cacheService, cfg.PingInterval)

	// 7. Worker Server
	workerServer := worker.NewWorkerServer(redisClientOpt, worker.NewCheckpointHandler(hubInstance, cacheService), log)

	// 8. Gin Engine 和路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := NewRouter(cfg, log, redisClient, Handlers{
		Room:      httpHandler.NewRoomHandler(roomService, cacheService),
		Template:  httpHandler.NewTemplateHandler(roomService, cacheService),
		WebSocket: wsHandler.NewWebSocketHandler(hubInstance, roomService, cfg.AllowedOrigin),
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	app := &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		AsynqServer:    workerServer,
		Hub:            hubInstance,
		HttpServer:     httpServer,
		redisClientOpt: redisClientOpt,
	}
	log.Info("Application assembled successfully")
	return app, nil
}

// Handlers 是路由需要的所有 handler
type Handlers struct {
	Room      *httpHandler.RoomHandler
	Template  *httpHandler.TemplateHandler
	WebSocket *wsHandler.WebSocketHandler
}

// NewRouter 创建 Gin Engine 并注册路由
func NewRouter(cfg *Config, log *logrus.Logger, redisClient *redis.Client, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))

	api := router.Group("/api")
	api.Use(middleware.CORS(cfg.AllowedOrigin))
	api.Use(middleware.RateLimit(redisClient, cfg.KeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow))
	{
		api.POST("/room/create", h.Room.CreateRoom)
		api.GET("/room/get", h.Room.GetRoom)
		api.GET("/template/featured", h.Template.ListFeatured)
		api.GET("/template/:id", h.Template.GetTemplate)
	}
	router.GET("/ws", h.WebSocket.HandleConnection)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	return router
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	hubCtx, cancel := context.WithCancel(context.Background())
	a.hubCancel = cancel
	go a.Hub.Run(hubCtx)
	a.Log.Info("Hub routine started")

	if err := a.AsynqServer.Start(); err != nil {
		a.Log.Errorf("Failed to start worker server: %v", err)
	}

	a.registerPeriodicTasks()

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

func (a *App) registerPeriodicTasks() {
	scheduler := asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{})

	task, err := tasks.NewRoomCheckpointTask()
	if err != nil {
		a.Log.Errorf("Failed to create room checkpoint task: %v", err)
		return
	}
	schedule := a.Config.CheckpointSpec
	entryID, err := scheduler.Register(schedule, task, asynq.Queue("default"))
	if err != nil {
		a.Log.Errorf("Could not register periodic room checkpoint task: %v", err)
		return
	}
	a.Log.Infof("Periodic room checkpoint task registered with schedule '%s' (EntryID: %s)", schedule, entryID)
	a.scheduler = scheduler

	if err := scheduler.Start(); err != nil {
		a.Log.Errorf("Asynq scheduler failed to start: %v", err)
	}
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 1. 停止接收新连接
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 2. 停止存活检查并断开所有会话，空房照常刷写
	if a.hubCancel != nil {
		a.hubCancel()
	}
	a.Hub.Shutdown(ctx)

	// 3. 停止定时任务和 Worker
	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}
	a.AsynqServer.Shutdown()

	// 4. 关闭 Redis 和数据库连接
	if err := a.RedisClient.Close(); err != nil {
		a.Log.Errorf("Error closing Redis connection: %v", err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.Log.Errorf("Error closing database connection: %v", err)
		}
	}
	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			entry.Error(errorMessage)
		} else if statusCode >= 500 {
			entry.Error("Server error")
		} else if statusCode >= 400 {
			entry.Warn("Client error")
		} else {
			entry.Info("Request handled")
		}
	}
}
