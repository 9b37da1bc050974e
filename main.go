package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"smart_parkai/internal/api"
	"smart_parkai/internal/api/handler"
	"smart_parkai/internal/config"
	"smart_parkai/internal/logger"
	"smart_parkai/internal/queue"
	"smart_parkai/internal/repository/postgresql"
	"smart_parkai/internal/service"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.IsProduction())
	defer log.Sync()
	log.Info("configuration loaded", zap.String("env", cfg.AppEnv))

	db, err := postgresql.NewDB(cfg)
	if err != nil {
		log.Fatal("could not connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := postgresql.Migrate(context.Background(), db); err != nil {
		log.Fatal("could not migrate database", zap.Error(err))
	}
	log.Info("database ready", zap.String("driver", cfg.DBDriver))

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatal("could not load AWS SDK config", zap.Error(err))
	}

	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()
	var wg sync.WaitGroup

	// Session store
	var store service.SessionStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := rdb.Ping(appCtx).Err(); err != nil {
			log.Fatal("could not connect to redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()
		store = service.NewRedisSessionStore(rdb, cfg.SessionTTL())
		log.Info("booking sessions stored in redis", zap.String("addr", cfg.RedisAddr))
	} else {
		mem := service.NewMemorySessionStore()
		store = mem
		wg.Add(1)
		go func() {
			defer wg.Done()
			startSessionSweepJob(appCtx, mem, cfg.SessionTTL(), log)
		}()
		log.Info("booking sessions stored in memory")
	}

	// Repositories
	userRepo := postgresql.NewPgUserRepository(db)
	recordRepo := postgresql.NewPgBookingRecordRepository(db)

	webSocketManager := handler.NewWebSocketManager(log)
	go webSocketManager.Start(appCtx)

	// Collaborators
	var payments service.PaymentGateway
	if cfg.StripeSecretKey != "" {
		payments = service.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, payments disabled")
	}

	var signaler service.SpotSignaler
	if cfg.IoTReservationThing != "" {
		iotClient := iotdataplane.NewFromConfig(awsCfg, func(o *iotdataplane.Options) {
			if cfg.IoTMQTTEndpoint != "" {
				endpoint := cfg.IoTMQTTEndpoint
				if !strings.HasPrefix(endpoint, "https://") && !strings.HasPrefix(endpoint, "http://") {
					endpoint = "https://" + endpoint
				}
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		signaler = service.NewIoTSpotSignaler(iotClient, cfg.IoTReservationThing, log)
	}

	var detector service.LabelDetector
	if cfg.DetectionEnabled {
		detector = rekognition.NewFromConfig(awsCfg)
	}

	var transcriber service.Transcriber
	speechClient, err := service.NewGoogleSpeechClient(appCtx, cfg.GoogleCredentialsFile)
	if err != nil {
		log.Warn("speech recognition disabled", zap.Error(err))
	} else {
		defer speechClient.Close()
		transcriber = service.NewGoogleTranscriber(speechClient, cfg.SpeechLanguage, log)
	}

	// Services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiration())
	bookingService := service.NewBookingService(store, recordRepo, service.BookingServiceOptions{
		Payments: payments,
		Signaler: signaler,
		Notifier: webSocketManager,
		Logger:   log,
		Currency: cfg.Currency,
		Lead:     cfg.BookingLead(),
	})
	paymentService := service.NewPaymentService(payments, recordRepo, cfg.Currency, log)
	detectionService := service.NewDetectionService(detector, service.MainLot, log)

	if cfg.TranscriptQueueURL == "" {
		log.Warn("TRANSCRIPT_QUEUE_URL not set, transcript consumer will not run")
	} else {
		consumer := queue.NewTranscriptConsumer(sqs.NewFromConfig(awsCfg), cfg.TranscriptQueueURL, bookingService, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Start(appCtx)
		}()
	}

	router := api.SetupRouter(api.Services{
		Auth:                  authService,
		Bookings:              bookingService,
		Payments:              paymentService,
		Detection:             detectionService,
		Transcriber:           transcriber,
		WebSockets:            webSocketManager,
		StripePublishableKey:  cfg.StripePublishableKey,
		CommandRequestsPerMin: cfg.CommandRequestsPerMin,
	}, log)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("ListenAndServe failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	cancelApp()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shut down", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("background workers did not stop in time")
	}
	log.Info("server stopped")
}

func startSessionSweepJob(ctx context.Context, store *service.MemorySessionStore, ttl time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := store.Sweep(now.Add(-ttl)); n > 0 {
				log.Info("expired booking sessions removed", zap.Int("count", n))
			}
		}
	}
}
