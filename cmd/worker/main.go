// cmd/worker/main.go
// Entry point for the matchmaking worker
// Bootstraps storage, the task queue server, the daily scheduler and
// the notification pipeline

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rkrishnan/sangam-backend/internal/common/clock"
	"github.com/rkrishnan/sangam-backend/internal/common/database"
	"github.com/rkrishnan/sangam-backend/internal/config"
	"github.com/rkrishnan/sangam-backend/internal/matching"
	"github.com/rkrishnan/sangam-backend/internal/notification"
	"github.com/rkrishnan/sangam-backend/internal/taskqueue"
	"github.com/rkrishnan/sangam-backend/internal/tasks"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	log.Println("========================================")
	log.Println("🚀 Starting Sangam Matchmaking Worker")
	log.Println("========================================")

	// 1. Load environment variables
	log.Println("📁 Step 1: Loading .env file...")
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  Warning: No .env file found (%v), using environment variables", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// 2. Load and validate configuration
	log.Println("📋 Step 2: Loading configuration...")
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("❌ Configuration validation failed: ", err)
	}
	log.Printf("✅ Configuration valid (environment: %s)", cfg.Environment)

	// 3. Connect to PostgreSQL
	log.Println("🗄️  Step 3: Connecting to PostgreSQL...")
	db, err := database.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("❌ Failed to connect to PostgreSQL: ", err)
	}
	defer db.Close()
	log.Println("✅ Connected to PostgreSQL")

	// 4. Connect to Redis
	log.Println("📮 Step 4: Connecting to Redis...")
	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatal("❌ Failed to connect to Redis: ", err)
	}
	defer redisClient.Close()
	log.Println("✅ Connected to Redis")

	clk := clock.Real{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Repositories
	log.Println("🧱 Step 5: Initializing repositories...")
	matchRepo := matching.NewPostgresRepository(db)
	notifRepo := notification.NewPostgresRepository(db)
	log.Println("✅ Repositories ready")

	// 6. Delivery providers
	log.Println("📨 Step 6: Initializing delivery providers...")
	pushSender := buildPushSender(ctx, cfg, notifRepo)
	emailSender := buildEmailSender(cfg)
	log.Printf("✅ Providers ready (push: %s, email: %s)", cfg.PushProvider, cfg.EmailProvider)

	// 7. Task queue server
	log.Println("📬 Step 7: Initializing task queue...")
	broker := taskqueue.NewRedisBroker(redisClient)
	queueServer := taskqueue.NewServer(broker)
	dispatcher := tasks.NewDispatcher(queueServer)
	log.Println("✅ Task queue ready")

	// 8. Notification policy and fanout
	log.Println("🔔 Step 8: Initializing notification pipeline...")
	policy := notification.NewDispatchPolicy(
		notification.NewRedisCounters(redisClient),
		matchRepo,
		clk,
		notification.PolicyConfig{
			QuietHoursStart:            cfg.QuietHoursStart,
			QuietHoursEnd:              cfg.QuietHoursEnd,
			DefaultTimezone:            cfg.DefaultTimezone,
			NewMatchDailyCap:           cfg.NewMatchDailyCap,
			ProfileViewDailyCap:        cfg.ProfileViewDailyCap,
			ProfileViewDailyCapPremium: cfg.ProfileViewDailyCapPremium,
			InterestDailyCap:           cfg.InterestDailyCap,
			MessageRatePerMinute:       cfg.MessageRatePerMinute,
		},
	)
	fanout := notification.NewFanout(notifRepo, policy, pushSender, dispatcher, clk, notification.RetentionConfig{
		Match:   cfg.MatchRetention,
		Message: cfg.MessageRetention,
	})
	log.Println("✅ Notification pipeline ready")

	// 9. Matching pipeline
	log.Println("💞 Step 9: Initializing matching pipeline...")
	engine := matching.NewScoringEngine(matching.ScoringWeights{
		Age:       cfg.WeightAge,
		Location:  cfg.WeightLocation,
		Education: cfg.WeightEducation,
		Religion:  cfg.WeightReligion,
		Lifestyle: cfg.WeightLifestyle,
		Interests: cfg.WeightInterests,
		Horoscope: cfg.WeightHoroscope,
		Activity:  cfg.WeightActivity,
	}, cfg.PremiumBoost, cfg.VerificationBoost, clk)

	scoreCache := matching.NewRedisScoreCache(redisClient, cfg.ScoreCacheTTLPadding)
	pipeline := matching.NewPipeline(matchRepo, engine, scoreCache, dispatcher, clk, matching.PipelineConfig{
		ChunkSize:           cfg.GenerationChunkSize,
		CandidatePoolSize:   cfg.CandidatePoolSize,
		CompletionThreshold: cfg.CompletionThreshold,
		FreeDailyLimit:      cfg.FreeDailyLimit,
		PremiumDailyLimit:   cfg.PremiumDailyLimit,
		NotifyTopN:          cfg.FanoutNotifyTopN,
		InterUserDelay:      cfg.InterUserDelay,
		FanoutJitterMin:     cfg.FanoutJitterMin,
		FanoutJitterMax:     cfg.FanoutJitterMax,
		MatchTTL:            cfg.MatchRetention,
	})
	log.Println("✅ Matching pipeline ready")

	// 10. Register task kinds and queues
	log.Println("🧭 Step 10: Registering task handlers...")
	tasks.Register(queueServer, pipeline, fanout, emailSender, tasks.RegisterConfig{
		MatchingWorkers:     cfg.MatchingWorkers,
		NotificationWorkers: cfg.NotificationWorkers,
		EmailWorkers:        cfg.EmailWorkers,
		MaxAttempts:         cfg.TaskMaxAttempts,
		BaseBackoff:         cfg.TaskBaseBackoff,
		BatchTimeout:        cfg.BatchTaskTimeout,
		GenerateTimeout:     cfg.GenerateTaskTimeout,
		NotifyTimeout:       cfg.NotifyTaskTimeout,
		EmailTimeout:        cfg.EmailTaskTimeout,
	})
	log.Println("✅ Task handlers registered")

	// 11. Background jobs
	log.Println("⏰ Step 11: Starting schedulers...")
	scheduler := matching.NewScheduler(matchRepo, dispatcher, cfg.GenerationHourOfDay)
	go scheduler.Start(ctx)

	cleanup := notification.NewCleanupJob(notifRepo, clk, cfg.CleanupInterval)
	go cleanup.Start(ctx)
	defer cleanup.Stop()
	log.Println("✅ Schedulers running")

	// 12. Metrics endpoint
	log.Println("📊 Step 12: Starting metrics endpoint...")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("✅ Metrics listening on :%s", cfg.MetricsPort)

	// 13. Run the queue workers
	log.Println("🏁 Step 13: Starting queue workers...")
	go queueServer.Run(ctx)
	log.Println("✅ Worker is up")

	// Block until shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutdown signal received, draining...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown: %v", err)
	}

	log.Println("👋 Worker stopped")
}

func buildPushSender(ctx context.Context, cfg *config.Config, tokens notification.TokenSource) notification.PushSender {
	if cfg.PushProvider == "fcm" {
		sender, err := notification.NewFCMPushSender(ctx, cfg.FirebaseCredentialsPath, cfg.FirebaseCredentialsJSON, tokens)
		if err != nil {
			log.Fatal("❌ Failed to initialize FCM: ", err)
		}
		return sender
	}
	log.Println("⚠️  Using mock push sender")
	return notification.NewMockPushSender()
}

func buildEmailSender(cfg *config.Config) notification.EmailSender {
	switch cfg.EmailProvider {
	case "smtp":
		sender, err := notification.NewSMTPEmailSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
			FromName: cfg.EmailFromName,
		})
		if err != nil {
			log.Fatal("❌ Failed to initialize SMTP: ", err)
		}
		return sender
	case "sendgrid":
		sender, err := notification.NewSendGridEmailSender(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName)
		if err != nil {
			log.Fatal("❌ Failed to initialize SendGrid: ", err)
		}
		return sender
	default:
		log.Println("⚠️  Using mock email sender")
		return notification.NewMockEmailSender()
	}
}
