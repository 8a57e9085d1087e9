package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/voxdial/voxdial/cmd/mainconfig"
	"github.com/voxdial/voxdial/internal/api/router"
	"github.com/voxdial/voxdial/internal/audio"
	"github.com/voxdial/voxdial/internal/calls"
	"github.com/voxdial/voxdial/internal/carrier"
	appconfig "github.com/voxdial/voxdial/internal/config"
	"github.com/voxdial/voxdial/internal/dispatch"
	"github.com/voxdial/voxdial/internal/guard"
	"github.com/voxdial/voxdial/internal/observability/metrics"
	"github.com/voxdial/voxdial/internal/session"
	"github.com/voxdial/voxdial/internal/webhooks"
	"github.com/voxdial/voxdial/pkg/logging"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting voxdial API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Call record store: Postgres when configured, Redis otherwise.
	var store calls.Store
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		rdb = redis.NewClient(opts)
	}
	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		store = calls.NewPGStore(pool)
		logger.Info("call records backed by postgres")
	case rdb != nil:
		store = calls.NewRedisStore(rdb)
		logger.Info("call records backed by redis", "addr", cfg.RedisAddr)
	default:
		store = calls.NewMemoryStore()
		logger.Warn("call records backed by process memory; records are lost on restart")
	}

	m := metrics.NewCallMetrics(nil)

	// Compliance guard.
	window, err := guard.ParseDialingWindow(cfg.DialWindowStart, cfg.DialWindowEnd, cfg.DefaultTimezone)
	if err != nil {
		logger.Error("invalid dialing window", "error", err)
		os.Exit(1)
	}
	g := guard.New(guard.Config{
		RatePerWindow: cfg.DialRatePerWindow,
		RateWindow:    cfg.DialRateWindow,
		DailyCap:      cfg.DailyCapPerNumber,
		Window:        window,
		Logger:        logger.WithComponent("guard"),
	})
	go g.Run(ctx)

	// Carrier client behind a circuit breaker.
	twilioClient, err := carrier.NewTwilioClient(carrier.TwilioClientConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		Logger:     logger.WithComponent("carrier"),
	})
	if err != nil {
		logger.Error("failed to initialize carrier client", "error", err)
		os.Exit(1)
	}
	breaker := carrier.NewBreaker("twilio", carrier.BreakerConfig{
		Window:         cfg.BreakerWindow,
		MinRequests:    cfg.BreakerMinRequests,
		ErrorThreshold: cfg.BreakerErrorThreshold,
		ResetTimeout:   cfg.BreakerResetTimeout,
	})
	placer := carrier.NewResilientClient(carrier.ResilientConfig{
		Placer:  twilioClient,
		Breaker: breaker,
		Retry: carrier.RetryPolicy{
			MaxAttempts: cfg.CarrierMaxAttempts,
			BaseDelay:   cfg.CarrierRetryBackoff,
			CapDelay:    cfg.CarrierBackoffCap,
		},
		AttemptTimeout: cfg.CarrierTimeout,
		Logger:         logger.WithComponent("carrier"),
	})

	// Audio packaging: phrase cache, synthesis, S3 hosting.
	var synth audio.Synthesizer
	if cfg.TTSBaseURL != "" && cfg.TTSAPIKey != "" {
		s, err := audio.NewHTTPSynthesizer(audio.SynthesizerConfig{
			APIKey:     cfg.TTSAPIKey,
			BaseURL:    cfg.TTSBaseURL,
			HTTPClient: &http.Client{Timeout: cfg.TTSTimeout},
			Logger:     logger.WithComponent("audio"),
		})
		if err != nil {
			logger.Error("failed to initialize synthesizer", "error", err)
			os.Exit(1)
		}
		synth = s
	} else {
		logger.Warn("no TTS provider configured; responses use carrier-native speech")
	}
	var storage audio.Storage
	if cfg.AudioBucket != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		storage = audio.NewS3Storage(s3.NewFromConfig(awsCfg), cfg.AudioBucket, cfg.AWSRegion, logger.WithComponent("audio"))
	}
	var phraseCache audio.PhraseCache
	if rdb != nil {
		phraseCache = audio.NewRedisPhraseCache(rdb)
	} else {
		phraseCache = audio.NewMemoryPhraseCache()
	}
	packager := audio.NewPackager(audio.PackagerConfig{
		Synth:          synth,
		Storage:        storage,
		Cache:          phraseCache,
		InlineMaxBytes: cfg.InlineAudioMaxBytes,
		ByteCeiling:    cfg.MarkupByteCeiling,
		Logger:         logger.WithComponent("audio"),
	})

	// Conversation engine.
	variants := session.NewStaticVariants()
	if cfg.CampaignsFile != "" {
		loaded, err := session.LoadVariantsFile(cfg.CampaignsFile)
		if err != nil {
			logger.Error("failed to load campaigns file", "path", cfg.CampaignsFile, "error", err)
			os.Exit(1)
		}
		variants = loaded
	}
	selector := session.NewVariantSelector(cfg.VariantSampleN, time.Now().UnixNano())
	var responder session.Responder
	var analyzer session.SpeechAnalyzer
	if cfg.OpenAIAPIKey != "" {
		oa := openai.NewClient(cfg.OpenAIAPIKey)
		responder = session.NewOpenAIResponder(oa, cfg.OpenAIModel, cfg.LLMMaxTokens, float32(cfg.LLMTemperature), logger.WithComponent("session"))
		analyzer = session.NewOpenAIAnalyzer(oa, cfg.OpenAIModel, logger.WithComponent("session"))
	} else {
		logger.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}
	manager := session.NewManager(session.ManagerConfig{
		Selector:    selector,
		Responder:   responder,
		IdleTimeout: cfg.SessionIdleTimeout,
		MaxTurns:    cfg.MaxTurnsPerCall,
		Logger:      logger.WithComponent("session"),
	})
	go manager.Run(ctx, cfg.SessionReaperTick)

	// Dispatch pipeline.
	baseURL := cfg.WebhookBaseURL
	if baseURL == "" {
		baseURL = cfg.PublicBaseURL
	}
	queue := dispatch.NewScheduledQueue()
	dispatcher := dispatch.NewDispatcher(store, g, placer, queue, dispatch.Config{
		FromNumber: cfg.TwilioFromNumber,
		BaseURL:    baseURL,
	}, m, logger.WithComponent("dispatch"))
	runner := dispatch.NewRunner(dispatcher, cfg.SchedulerTick, logger.WithComponent("dispatch"))
	go runner.Run(ctx)

	// Webhook state machine.
	processor := webhooks.NewProcessor(webhooks.ProcessorConfig{
		Store:    store,
		Sessions: manager,
		Variants: variants,
		Analyzer: analyzer,
		Packager: packager,
		Metrics:  m,
		Logger:   logger.WithComponent("webhooks"),
		Voice: audio.VoiceParams{
			VoiceID:      cfg.TTSVoiceID,
			CarrierVoice: cfg.CarrierVoice,
			Language:     cfg.VoiceLanguage,
		},
		BaseURL:  baseURL,
	})
	// Webhook signatures are validated against the carrier auth token unless
	// a dedicated secret is configured.
	webhookSecret := cfg.WebhookAuthToken
	if webhookSecret == "" {
		webhookSecret = cfg.TwilioAuthToken
	}
	webhooksHandler := webhooks.NewHandler(processor, webhookSecret, cfg.MarkupByteCeiling, logger.WithComponent("webhooks"))
	callsHandler := dispatch.NewHandler(dispatcher, store, logger.WithComponent("dispatch"))

	r := router.New(&router.Config{
		Logger:          logger,
		CallsHandler:    callsHandler,
		WebhooksHandler: webhooksHandler,
		MetricsHandler:  promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
