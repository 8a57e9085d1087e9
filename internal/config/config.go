package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Carrier (Twilio) settings.
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioFromNumber    string
	CarrierTimeout      time.Duration
	CarrierMaxAttempts  int
	CarrierRetryBackoff time.Duration
	CarrierBackoffCap   time.Duration

	// Circuit breaker tuning for the carrier dependency.
	BreakerWindow         time.Duration
	BreakerMinRequests    int
	BreakerErrorThreshold float64
	BreakerResetTimeout   time.Duration

	// Outbound rate limits and compliance.
	DialRatePerWindow  int
	DialRateWindow     time.Duration
	DailyCapPerNumber  int
	DialWindowStart    string
	DialWindowEnd      string
	DefaultTimezone    string
	SchedulerTick      time.Duration
	SessionIdleTimeout time.Duration
	SessionReaperTick  time.Duration

	// LLM settings.
	OpenAIAPIKey    string
	OpenAIModel     string
	LLMMaxTokens    int
	LLMTemperature  float64
	VariantSampleN  int
	MaxTurnsPerCall int
	CampaignsFile   string

	// Text-to-speech provider.
	TTSBaseURL string
	TTSAPIKey  string
	TTSVoiceID string
	TTSTimeout time.Duration

	// Carrier-native speech fallback.
	CarrierVoice  string
	VoiceLanguage string

	// Audio storage and packaging.
	AWSRegion           string
	AWSEndpointOverride string
	AudioBucket         string
	InlineAudioMaxBytes int
	MarkupByteCeiling   int

	// Webhook auth.
	WebhookAuthToken string
	WebhookBaseURL   string

	// State stores.
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:    getEnv("TWILIO_FROM_NUMBER", ""),
		CarrierTimeout:      getEnvAsDuration("CARRIER_TIMEOUT", 15*time.Second),
		CarrierMaxAttempts:  getEnvAsInt("CARRIER_MAX_ATTEMPTS", 3),
		CarrierRetryBackoff: getEnvAsDuration("CARRIER_RETRY_BACKOFF", 500*time.Millisecond),
		CarrierBackoffCap:   getEnvAsDuration("CARRIER_BACKOFF_CAP", 8*time.Second),

		BreakerWindow:         getEnvAsDuration("BREAKER_WINDOW", time.Minute),
		BreakerMinRequests:    getEnvAsInt("BREAKER_MIN_REQUESTS", 5),
		BreakerErrorThreshold: getEnvAsFloat("BREAKER_ERROR_THRESHOLD", 0.5),
		BreakerResetTimeout:   getEnvAsDuration("BREAKER_RESET_TIMEOUT", 30*time.Second),

		DialRatePerWindow:  getEnvAsInt("DIAL_RATE_PER_WINDOW", 30),
		DialRateWindow:     getEnvAsDuration("DIAL_RATE_WINDOW", time.Minute),
		DailyCapPerNumber:  getEnvAsInt("DAILY_CAP_PER_NUMBER", 3),
		DialWindowStart:    getEnv("DIAL_WINDOW_START", "09:00"),
		DialWindowEnd:      getEnv("DIAL_WINDOW_END", "20:00"),
		DefaultTimezone:    getEnv("DEFAULT_TIMEZONE", "UTC"),
		SchedulerTick:      getEnvAsDuration("SCHEDULER_TICK", 30*time.Second),
		SessionIdleTimeout: getEnvAsDuration("SESSION_IDLE_TIMEOUT", 10*time.Minute),
		SessionReaperTick:  getEnvAsDuration("SESSION_REAPER_TICK", time.Minute),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:    getEnvAsInt("LLM_MAX_TOKENS", 200),
		LLMTemperature:  getEnvAsFloat("LLM_TEMPERATURE", 0.7),
		VariantSampleN:  getEnvAsInt("VARIANT_SAMPLE_SIZE", 20),
		MaxTurnsPerCall: getEnvAsInt("MAX_TURNS_PER_CALL", 50),
		CampaignsFile:   getEnv("CAMPAIGNS_FILE", ""),

		TTSBaseURL: getEnv("TTS_BASE_URL", ""),
		TTSAPIKey:  getEnv("TTS_API_KEY", ""),
		TTSVoiceID: getEnv("TTS_VOICE_ID", ""),
		TTSTimeout: getEnvAsDuration("TTS_TIMEOUT", 10*time.Second),

		CarrierVoice:  getEnv("VOICE_CARRIER_VOICE", ""),
		VoiceLanguage: getEnv("VOICE_LANGUAGE", "en-US"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		AudioBucket:         getEnv("AUDIO_BUCKET", ""),
		InlineAudioMaxBytes: getEnvAsInt("INLINE_AUDIO_MAX_BYTES", 32*1024),
		MarkupByteCeiling:   getEnvAsInt("MARKUP_BYTE_CEILING", 60*1024),

		WebhookAuthToken: getEnv("WEBHOOK_AUTH_TOKEN", ""),
		WebhookBaseURL:   getEnv("WEBHOOK_BASE_URL", ""),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
