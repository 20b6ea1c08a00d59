package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"zk-carbon/contract-runner/internal/audit"
	"zk-carbon/contract-runner/internal/chain"
	"zk-carbon/contract-runner/internal/config"
	"zk-carbon/contract-runner/internal/contract"
	"zk-carbon/contract-runner/internal/metrics"
	"zk-carbon/contract-runner/internal/middleware"
	"zk-carbon/contract-runner/internal/notifications"
	"zk-carbon/contract-runner/internal/notifications/websocket"
	"zk-carbon/contract-runner/pkg/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to a JSON or YAML config file")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		zap.NewExample().Fatal("Failed to load config", zap.Error(err))
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		zap.NewExample().Fatal("Failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	// Audit store
	var repo audit.Repository
	if cfg.Database.Enabled() {
		db, err := openDatabase(cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		if err := audit.Migrate(db); err != nil {
			logger.Fatal("Failed to migrate audit table", zap.Error(err))
		}
		repo = audit.NewGormRepository(db)
		logger.Info("Audit log stored in postgres", zap.String("host", cfg.Database.Host))
	} else {
		repo = audit.NewMemoryRepository(500)
		logger.Info("No database configured, keeping audit log in memory")
	}
	auditService := audit.NewService(repo, logger)

	// Event feed
	wsManager := websocket.NewManager(logger)
	defer wsManager.Close()

	// Chain
	builder := chain.NewBuilder(chain.Network{
		Binary:      cfg.Chain.Binary,
		FromAddress: cfg.Chain.FromAddress,
		ChainID:     cfg.Chain.ChainID,
		NodeURL:     cfg.Chain.NodeURL,
		Fees:        cfg.Chain.Fees,
		Gas:         cfg.Chain.Gas,
	})
	executor := chain.NewExecutor(chain.NewOSRunner(), chain.ExecutorConfig{
		WorkDir:       cfg.Chain.WorkDir,
		Passphrase:    cfg.Chain.KeyringPassphrase,
		AllowStderr:   cfg.Chain.AllowStderr,
		Timeout:       cfg.Chain.CommandTimeout.Std(),
		MaxConcurrent: cfg.Chain.MaxConcurrent,
	}, logger)
	executor.AddObserver(auditService)
	executor.AddObserver(notifications.NewTxNotifier(wsManager, logger))

	// Contract module
	var cache *contract.ListingCache
	if ttl := cfg.Cache.TTL.Std(); ttl > 0 {
		cache = contract.NewListingCache(ttl)
		defer cache.Close()
	}
	contractService := contract.NewService(builder, executor, contract.ServiceConfig{
		ContractAddress: cfg.Contract.Address,
		ListLimit:       uint32(cfg.Contract.ListLimit),
		Gateway:         storage.NewIPFSGateway(cfg.Contract.IPFSGateway),
		Cache:           cache,
	}, logger)
	contractHandler := contract.NewHandler(contractService, logger)
	auditHandler := audit.NewHandler(auditService, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if spec := cfg.Cache.RefreshSpec; spec != "" {
		refresher := contract.NewRefresher(contractService, wsManager, logger)
		if err := refresher.Start(ctx, spec); err != nil {
			logger.Fatal("Failed to start listing refresher", zap.Error(err))
		}
		defer refresher.Stop()
	}

	limiter := middleware.NewRateLimiter(cfg.Security.RateLimitRPS, cfg.Security.RateBurst, logger)
	limiter.StartCleanup(time.Minute, ctx.Done())

	if cfg.Security.JWTSecret == "" {
		logger.Warn("JWT_SECRET is not set, state-changing routes are unauthenticated")
	}

	// Setup Router
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())
	router.Use(metrics.Middleware())

	contractHandler.RegisterRoutes(router, middleware.Auth(cfg.Security.JWTSecret), limiter.Handler())
	auditHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"subscribers": wsManager.GetConnectionCount(),
		}
		if stats, ok := contractService.CacheStats(); ok {
			body["cache"] = stats
		}
		c.JSON(http.StatusOK, body)
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/ws", func(c *gin.Context) {
		if _, err := wsManager.HandleConnection(c.Writer, c.Request); err != nil {
			logger.Warn("Websocket connection rejected", zap.Error(err))
		}
	})

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("addr", srv.Addr),
		zap.String("contract", cfg.Contract.Address),
		zap.String("chain_id", cfg.Chain.ChainID),
	)

	// Graceful Shutdown
	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseURL()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if lifetime := cfg.MaxLifetime.Std(); lifetime > 0 {
		sqlDB.SetConnMaxLifetime(lifetime)
	}

	return db, nil
}
