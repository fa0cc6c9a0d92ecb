package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/AymanAbdiMohamed/Donation-Platform-backend/config"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/controllers"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/database"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/kafka"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/logger"
	aws_pkg "github.com/AymanAbdiMohamed/Donation-Platform-backend/pkg/aws"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/providers"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/repository"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/routes"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/services"
)

const reconcileLockKey = "donations:reconcile-lock"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, awsErr := aws_pkg.LoadAWSConfig(ctx)

	appLogger := newLogger(ctx, cfg, awsCfg, awsErr)
	defer appLogger.Sync() //nolint:errcheck
	if awsErr != nil {
		appLogger.Warn("AWS config unavailable, SNS, S3 and CloudWatch disabled", zap.Error(awsErr))
	}

	db, err := database.ConnectPostgres(ctx, cfg.PostgresDSN(), cfg.DBAutoMigrate, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db) //nolint:errcheck

	metrics := aws_pkg.NewMetricsClient(nil, cfg.CloudWatchNamespace, false)
	if awsErr == nil {
		metrics = aws_pkg.NewMetricsClientFromConfig(awsCfg, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)
	}

	events, closeEvents := newEventPublisher(cfg, awsCfg, awsErr, appLogger)
	defer closeEvents()

	var archiver services.CallbackArchiver
	if cfg.CallbackArchiveBucket != "" && awsErr == nil {
		archiver = aws_pkg.NewS3Archiver(aws_pkg.NewS3Client(awsCfg), cfg.CallbackArchiveBucket)
	}

	donationRepo := repository.NewGormDonationRepository(db)
	charityRepo := repository.NewGormCharityRepository(db)
	callbackLogRepo := repository.NewGormCallbackLogRepository(db)

	callbackService := services.NewCallbackService(donationRepo, callbackLogRepo, archiver, events, metrics, appLogger)
	provider := newPaymentProvider(cfg, callbackService, appLogger)
	donationService := services.NewDonationService(donationRepo, charityRepo, provider, events, metrics, appLogger)

	var locker services.Locker
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			appLogger.Warn("Redis unavailable, reconciliation runs without a lock", zap.Error(err))
		} else {
			defer rdb.Close() //nolint:errcheck
			locker = services.NewRedisLock(rdb, reconcileLockKey, cfg.ReconcileInterval)
		}
	}

	worker := services.NewReconciliationWorker(donationRepo, callbackService, provider, locker, metrics, services.ReconcileConfig{
		Interval:     cfg.ReconcileInterval,
		PendingAfter: cfg.ReconcilePendingAfter,
		ExpireAfter:  cfg.ReconcileExpireAfter,
		QueryRPS:     cfg.ReconcileQueryRPS,
	}, appLogger)
	go worker.Start(ctx)

	r := routes.NewRouter(routes.Deps{
		Logger:    appLogger,
		Metrics:   metrics,
		JWTSecret: []byte(cfg.JWTSecret),
		Donations: controllers.NewDonationController(donationService, appLogger),
		Callbacks: controllers.NewPaymentCallbackController(callbackService, appLogger),
		Health: controllers.NewHealthController(routes.ServiceName, func(ctx context.Context) error {
			return database.Ping(ctx, db)
		}),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	appLogger.Info("Donation service started",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.Bool("mpesa_mock_mode", cfg.MpesaMockMode),
		zap.String("event_backend", cfg.EventBackend),
	)
	<-ctx.Done()
	appLogger.Info("Shutting down donation service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	if mock, ok := provider.(*providers.MockProvider); ok {
		mock.Wait()
	}
	appLogger.Info("Server exited cleanly")
}

func newLogger(ctx context.Context, cfg *config.Config, awsCfg sdkaws.Config, awsErr error) *zap.Logger {
	var cw *aws_pkg.CloudWatchLogsClient
	if cfg.CloudWatchEnabled && awsErr == nil {
		c, err := aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.CloudWatchLogGroup, routes.ServiceName)
		if err != nil {
			log.Printf("CloudWatch logs disabled: %v", err)
		} else {
			cw = c
		}
	}

	var l *zap.Logger
	var err error
	if cw != nil {
		l, err = logger.New(cfg.Env, cw)
	} else {
		l, err = logger.New(cfg.Env, nil)
	}
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	return l.With(zap.String("service", routes.ServiceName))
}

func newEventPublisher(cfg *config.Config, awsCfg sdkaws.Config, awsErr error, l *zap.Logger) (services.EventPublisher, func()) {
	noop := func() {}
	switch cfg.EventBackend {
	case config.EventBackendKafka:
		producer := kafka.NewDonationEventProducer(cfg.KafkaBrokers, cfg.KafkaDonationTopic, l)
		return producer, producer.Close
	case config.EventBackendSNS:
		if awsErr != nil || cfg.DonationSNSTopicARN == "" {
			l.Warn("SNS donation events disabled", zap.Bool("topic_set", cfg.DonationSNSTopicARN != ""))
			return nil, noop
		}
		return services.NewSNSEventPublisher(aws_pkg.NewSNSClient(awsCfg), cfg.DonationSNSTopicARN), noop
	default:
		return nil, noop
	}
}

// newPaymentProvider returns the mock provider, the Daraja client, or nil
// when M-Pesa is not configured.
func newPaymentProvider(cfg *config.Config, callbacks services.CallbackService, l *zap.Logger) providers.PaymentProvider {
	if cfg.MpesaMockMode {
		mock := providers.NewMockProvider(cfg.MpesaMockCallbackWait, l)
		mock.SetCallbackSink(func(ctx context.Context, raw []byte) {
			callbacks.ProcessCallback(ctx, raw)
		})
		l.Warn("M-Pesa mock mode enabled; no real payments will be requested")
		return mock
	}
	if !cfg.MpesaConfigured() {
		l.Warn("M-Pesa credentials missing; donation initiation will answer 503")
		return nil
	}

	httpClient := &http.Client{Timeout: cfg.MpesaHTTPTimeout}
	tokens := providers.NewTokenCache(cfg.MpesaBaseURL, cfg.MpesaConsumerKey, cfg.MpesaConsumerSecret, httpClient, l)
	return providers.NewDarajaProvider(providers.DarajaConfig{
		BaseURL:     cfg.MpesaBaseURL,
		ShortCode:   cfg.MpesaShortCode,
		Passkey:     cfg.MpesaPasskey,
		CallbackURL: cfg.MpesaCallbackURL,
	}, tokens, httpClient, l)
}
