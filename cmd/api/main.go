package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "expense-approval/api/swagger" // swagger docs
	"expense-approval/internal/config"
	"expense-approval/internal/database"
	"expense-approval/internal/event"
	"expense-approval/internal/handler"
	"expense-approval/internal/logger"
	"expense-approval/internal/metrics"
	"expense-approval/internal/middleware"
	"expense-approval/internal/repository"
	"expense-approval/internal/service"
	"expense-approval/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Expense Approval API
// @version         1.0
// @description     Expense and business-trip applications routed through configurable approval chains.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("configs/.env")
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logg := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logg.Sync() }()
	gin.SetMode(cfg.GinMode)

	db, err := database.Open(cfg.DBDriver, cfg.DSN(), logg)
	if err != nil {
		logg.Fatal("database connection failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(logg, cfg.CORSOrigins)
	go wsHub.Run(ctx)

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	appRepo := repository.NewApplicationRepository(db)
	logRepo := repository.NewApprovalLogRepository(db)
	routeRepo := repository.NewRouteRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	subscribers := []event.Publisher{event.NewNotificationWriter(notificationRepo), wsHub}
	if cfg.RedisAddr != "" {
		redisPub, err := event.NewRedisPublisher(cfg.RedisAddr, cfg.RedisChannel, logg)
		if err != nil {
			logg.Warn("redis event publisher disabled", zap.Error(err))
		} else {
			defer func() { _ = redisPub.Close() }()
			subscribers = append(subscribers, redisPub)
		}
	}
	bus := event.NewBus(logg, subscribers...)
	collector := metrics.NewCollector("expense_approval", prometheus.DefaultRegisterer)

	routeService := service.NewRouteService(txManager, routeRepo, auditRepo, logg)
	applicationService := service.NewApplicationService(txManager, appRepo, logRepo, auditRepo, logg)
	approvalService := service.NewApprovalService(txManager, appRepo, logRepo, routeService, service.NewDirectory(userRepo), bus, collector, logg)
	auditService := service.NewAuditService(appRepo, logRepo, auditRepo)
	notificationService := service.NewNotificationService(notificationRepo)
	userService := service.NewUserService(txManager, userRepo, auditRepo, logg)

	auth := middleware.NewAuth(cfg.JWTSecret)

	// Initialize Handlers
	routeHandler := handler.NewRouteHandler(routeService, auth)
	applicationHandler := handler.NewApplicationHandler(applicationService, approvalService, auditService, auth)
	approvalHandler := handler.NewApprovalHandler(applicationService, auditService, auth)
	auditHandler := handler.NewAuditHandler(auditService, auth)
	notificationHandler := handler.NewNotificationHandler(notificationService, auth)
	userHandler := handler.NewUserHandler(userService, auth)

	// Set up Gin Router
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logg), middleware.Metrics(collector), middleware.Timeout(cfg.RequestTimeout))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", handler.IdempotencyHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, auth, c)
	})

	// API Routing
	routeHandler.RegisterRoutes(router.Group(""))
	applicationHandler.RegisterRoutes(router.Group(""))
	approvalHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))
	notificationHandler.RegisterRoutes(router.Group(""))
	userHandler.RegisterRoutes(router.Group(""))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logg.Info("server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("graceful shutdown failed", zap.Error(err))
	}
}
