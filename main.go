package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"widgethub/config"
	controller "widgethub/controllers"
	"widgethub/events"
	"widgethub/middleware"
	"widgethub/models"
	"widgethub/routes"
	"widgethub/services"
	"widgethub/utils"
	"widgethub/worker"
)

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig

	if err := utils.InitLogging(cfg.Environment, cfg.LogLevel, cfg.SentryDSN); err != nil {
		log.Printf("⚠️ %v", err)
	}
	defer utils.FlushSentry()
	logger := utils.Logger("main")

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	db := config.DB

	if cfg.SeedDemoData {
		project, err := models.SeedDemoData(db)
		if err != nil {
			logger.WithError(err).Fatal("Failed to seed demo data")
		}
		logger.WithField("project_id", project.ID).Info("Demo data ready")
	}

	var cipher *utils.SecretCipher
	if cfg.EncryptionKey != "" {
		var err error
		if cipher, err = utils.NewSecretCipher(cfg.EncryptionKey); err != nil {
			logger.WithError(err).Fatal("Invalid encryption key")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var workers sync.WaitGroup

	// Event bus is optional
	var publisher events.Publisher
	if cfg.AMQP.URL != "" {
		rp, err := events.NewRabbitPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, utils.Logger("amqp"))
		if err != nil {
			logger.WithError(err).Warn("Event bus unavailable, publishing disabled")
		} else {
			publisher = rp
			defer rp.Close()
		}
	}

	access := services.NewAccessControl(db)
	projects := services.NewProjectService(db, cipher, access)

	notifyWorker := worker.NewNotifyWorker(cfg.NotifyQueueSize, projects,
		events.NewWebhookClient(cfg.WebhookTimeout), publisher, utils.Logger("notify"))
	workers.Add(1)
	go func() {
		defer workers.Done()
		notifyWorker.Start(ctx)
	}()

	authService := services.NewAuthService(db,
		utils.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL), services.SystemClock)

	tokenJanitor := worker.NewTokenJanitor(authService, time.Hour, utils.Logger("token_janitor"))
	workers.Add(1)
	go func() {
		defer workers.Done()
		tokenJanitor.Start(ctx)
	}()

	svc := routes.Services{
		Auth:         authService,
		Access:       access,
		Directory:    services.NewDirectory(db),
		Availability: services.NewAvailabilityEvaluator(db),
		Intake:       services.NewIntake(db, services.SystemClock, notifyWorker),
		Chat:         services.NewChatService(db, services.SystemClock, notifyWorker),
		Leads:        services.NewLeadService(db),
		Projects:     projects,
		ABTests:      services.NewABTestService(db, nil, services.HashGate{}),
		Clock:        services.SystemClock,
	}

	rateStore := middleware.NewRateLimitStorage(cfg.Redis)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "widgethub",
		ErrorHandler: controller.ErrorHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	app.Use(recover.New())

	routes.SetupRoutes(app, svc, routes.Options{
		WidgetRateLimit: cfg.WidgetRateLimit,
		RateLimitStore:  rateStore,
		AccessLog:       true,
		CORS:            middleware.DashboardCORSConfig(cfg.CORSAllowedOrigins),
	})

	go func() {
		logger.Infof("🚀 Server starting on port %s", cfg.ServerPort)
		if err := app.Listen(":" + cfg.ServerPort); err != nil {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	cancel()
	workers.Wait()
	if rateStore != nil {
		_ = rateStore.Close()
	}
	logger.WithField("dropped_events", notifyWorker.Dropped()).Info("Server stopped")
}
