package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gameplay-rewards-system/handlers"
	"gameplay-rewards-system/middleware"
	"gameplay-rewards-system/models"
	"gameplay-rewards-system/services"
	"gameplay-rewards-system/utils"
	"gameplay-rewards-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // 10MB — webhook payloads only, proofs live in R2
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles, X-Webhook-Signature, X-Webhook-Timestamp",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Partner{},
		&models.ExternalEvent{},
		&models.MatchSubmission{},
		&models.VerificationProof{},
		&models.FraudDetectionLog{},
		&models.VerificationQueueItem{},
		&models.PointTransaction{},
		&models.TrustScore{},
		&models.TrustScoreEvent{},
		&models.AchievementDefinition{},
		&models.Achievement{},
		&models.LinkedAccount{},
		&models.VerificationConfig{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// Redis is optional: without it the replay pre-filter is skipped and the
	// fraud window counters fall back to DB queries.
	var rdb *redis.Client
	var replayGuard *utils.ReplayGuard
	var windowCounters *utils.WindowCounters
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatal("invalid REDIS_URL:", err)
		}
		rdb = redis.NewClient(opts)
		replayGuard = utils.NewReplayGuard(rdb)
		windowCounters = utils.NewWindowCounters(rdb)
		log.Println("✅ Redis connected — replay guard and window counters enabled")
	} else {
		log.Println("⚠️  REDIS_URL not set — replay guard disabled, window counters fall back to DB")
	}

	crossCheckURL := os.Getenv("CROSSCHECK_SERVICE_URL")
	if crossCheckURL == "" {
		log.Fatal("CROSSCHECK_SERVICE_URL environment variable not set")
	}
	crossCheckToken := os.Getenv("CROSSCHECK_SERVICE_TOKEN")

	configService := services.NewConfigService(db)
	if err := configService.EnsureSeeded(); err != nil {
		log.Fatal("failed to seed verification config:", err)
	}

	ledgerService := services.NewLedgerService(db)
	trustService := services.NewTrustService(db)
	achievementService := services.NewAchievementService(db, ledgerService)
	queueService := services.NewQueueService(db, configService, ledgerService, trustService, achievementService)
	fraudService := services.NewFraudService(db, configService, ledgerService, queueService, trustService, windowCounters)
	crossCheckClient := services.NewCrossCheckClient(crossCheckURL, crossCheckToken)
	verificationService := services.NewVerificationService(db, configService, crossCheckClient)
	webhookService := services.NewWebhookService(db, configService, fraudService, verificationService,
		ledgerService, trustService, achievementService, queueService)
	proofService := services.NewProofService(db, configService, queueService)

	if err := achievementService.SeedDefinitions(); err != nil {
		log.Fatal("failed to seed achievement definitions:", err)
	}

	// --- CONFIGURE identity service sync ---
	identityServiceURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityServiceURL == "" {
		log.Fatal("IDENTITY_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("REWARDS_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("REWARDS_SERVICE_TOKEN environment variable not set")
	}
	// --- END CONFIG ---

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userSyncWorker := workers.NewUserSyncWorker(db, identityServiceURL, "/api/v1/public/profiles", serviceToken)
	userSyncWorker.Start(ctx)

	linkSyncClient := workers.NewLinkedAccountSyncClient(db, trustService)
	go workers.PollLinkedAccounts(ctx, linkSyncClient, 30*time.Second)

	services.StartSweeps(queueService, webhookService)

	handlers.SetupWebhookRoutes(app, db, replayGuard, webhookService)
	handlers.SetupUserRoutes(app, db, ledgerService, trustService, proofService)
	handlers.SetupAdminRoutes(app, db, queueService, ledgerService, trustService, configService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ User Sync Worker running")
	log.Println("✅ Linked-account polling running (every 30s)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("⚠️ Shutdown error: %v", err)
	}
}
