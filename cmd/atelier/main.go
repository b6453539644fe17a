package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitfantasy/atelier/internal/config"
	"github.com/bitfantasy/atelier/internal/middleware"
	"github.com/bitfantasy/atelier/internal/plm/entity"
	"github.com/bitfantasy/atelier/internal/plm/handler"
	"github.com/bitfantasy/atelier/internal/plm/repository"
	"github.com/bitfantasy/atelier/internal/plm/service"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting atelier service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&entity.User{},
		&entity.Style{},
		&entity.StyleRevision{},
		&entity.BOMLine{},
		&entity.BOMLineHistory{},
		&entity.UsageScenario{},
		&entity.UsageLine{},
		&entity.CostingVersion{},
		&entity.CostLine{},
	); err != nil {
		zapLogger.Fatal("AutoMigrate failed", zap.Error(err))
	}

	// 初始化Redis
	rdb := initRedis(cfg.Redis)

	// 仓库、服务、处理器
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, rdb)
	handlers := handler.NewHandlers(services)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 注册路由
	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	// API v1
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		// 用户目录
		v1.GET("/users", h.User.List)
		v1.GET("/users/:id", h.User.Get)

		// 款式与版次
		v1.POST("/styles", h.Style.Create)
		v1.GET("/styles", h.Style.List)
		v1.GET("/styles/:id", h.Style.Get)
		v1.PUT("/styles/:id", h.Style.Update)
		v1.POST("/styles/:id/revisions", h.Style.CreateRevision)
		v1.GET("/styles/:id/bom-readiness", h.BOM.Readiness)

		// 用量台账
		v1.POST("/revisions/:id/bom-lines", h.BOM.CreateLine)
		v1.GET("/revisions/:id/bom-lines", h.BOM.ListLines)
		v1.GET("/bom-lines/:id", h.BOM.GetLine)
		v1.GET("/bom-lines/:id/history", h.BOM.History)
		v1.PUT("/bom-lines/:id/stage", h.BOM.SetStage)
		v1.POST("/bom-lines/:id/lock", h.BOM.Lock)
		v1.PUT("/bom-lines/:id/price", h.BOM.SetPrice)

		// 用量方案
		v1.POST("/revisions/:id/usage-scenarios", h.Usage.Create)
		v1.GET("/revisions/:id/usage-scenarios", h.Usage.List)
		v1.GET("/usage-scenarios/:id", h.Usage.Get)
		v1.POST("/usage-scenarios/:id/clone", h.Usage.Clone)
		v1.PUT("/usage-lines/:id", h.Usage.UpdateLine)

		// 成本版本
		v1.POST("/styles/:id/costing-versions", h.Costing.Create)
		v1.GET("/styles/:id/costing-versions", h.Costing.List)
		v1.GET("/costing-versions/:id", h.Costing.Get)
		v1.POST("/costing-versions/:id/clone", h.Costing.Clone)
		v1.POST("/costing-versions/:id/refresh", h.Costing.Refresh)
		v1.PATCH("/costing-versions/:id", h.Costing.PatchHeader)
		v1.PATCH("/cost-lines/:id", h.Costing.PatchLine)
		v1.POST("/costing-versions/:id/submit", h.Costing.Submit)
		v1.POST("/costing-versions/:id/accept", h.Costing.Accept)
		v1.POST("/costing-versions/:id/reject", h.Costing.Reject)
	}
}
