package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress    string
	AppEnv         string
	LogLevel       string
	AllowedOrigins []string

	GeminiKey       string
	GeminiTextModel string
	GeminiLiveModel string
	GeminiVoice     string

	StoreDriver     string
	SQLitePath      string
	DatabaseURL     string
	SupabaseURL     string
	SupabaseKey     string
	SupabaseJWTKey  string
	TicketSecret    string
	InternalSecret  string
	ResendKey       string
	NotifyEmailTo   string
	NotifyEmailFrom string
	TwilioSID       string
	TwilioToken     string
	TwilioFrom      string
	NotifySMSTo     string

	RedisAddr      string
	ChatRateLimit  int
	ChatRateWindow time.Duration
	ICEServersJSON string
}

// LoadEnv reads a .env file if present. It runs before the logger exists,
// so the error is returned for the caller to log.
func LoadEnv() error {
	return godotenv.Load()
}

// Load reads environment variables and returns Config with sane defaults.
// Missing feature keys are logged; the feature degrades at runtime.
func Load(log *zap.Logger) Config {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := Config{
		HTTPAddress:    env("HTTP_ADDRESS", ":8080"),
		AppEnv:         env("APP_ENV", "development"),
		LogLevel:       env("LOG_LEVEL", "info"),
		AllowedOrigins: list(env("ALLOWED_ORIGINS", "*")),

		GeminiKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiTextModel: env("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		GeminiLiveModel: env("GEMINI_LIVE_MODEL", "gemini-2.5-flash-native-audio-preview-09-2025"),
		GeminiVoice:     env("GEMINI_VOICE", "Zephyr"),

		StoreDriver:     strings.ToLower(env("STORE_DRIVER", "sqlite")),
		SQLitePath:      env("SQLITE_PATH", "bookings.db"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SupabaseURL:     os.Getenv("SUPABASE_URL"),
		SupabaseKey:     os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseJWTKey:  os.Getenv("SUPABASE_JWT_SECRET"),
		TicketSecret:    os.Getenv("TICKET_SECRET"),
		InternalSecret:  os.Getenv("INTERNAL_NOTIFY_SECRET"),
		ResendKey:       os.Getenv("RESEND_API_KEY"),
		NotifyEmailTo:   env("NOTIFY_EMAIL_TO", "info@ecocleans.ca"),
		NotifyEmailFrom: env("NOTIFY_EMAIL_FROM", "EcoCleans <onboarding@resend.dev>"),
		TwilioSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:      os.Getenv("TWILIO_FROM_NUMBER"),
		NotifySMSTo:     os.Getenv("NOTIFY_SMS_TO"),

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		ChatRateLimit:  envInt(log, "CHAT_RATE_LIMIT", 20),
		ChatRateWindow: envDuration(log, "CHAT_RATE_WINDOW", time.Minute),
		ICEServersJSON: env("ICE_SERVERS_JSON", `[{"urls":["stun:stun.l.google.com:19302"]}]`),
	}

	if cfg.GeminiKey == "" {
		log.Warn("GEMINI_API_KEY not set - text replies and voice mode will not work")
	}
	if cfg.SupabaseJWTKey == "" {
		log.Warn("SUPABASE_JWT_SECRET not set - authenticated endpoints will reject every request")
	}
	if cfg.TicketSecret == "" {
		cfg.TicketSecret = cfg.SupabaseJWTKey
	}
	if cfg.ResendKey == "" {
		log.Warn("RESEND_API_KEY not set - booking emails will be skipped")
	}
	if cfg.TwilioSID == "" || cfg.TwilioToken == "" || cfg.TwilioFrom == "" || cfg.NotifySMSTo == "" {
		log.Info("Twilio settings incomplete - booking SMS disabled")
	}
	if cfg.InternalSecret == "" {
		log.Warn("INTERNAL_NOTIFY_SECRET not set - internal notification endpoint disabled")
	}
	switch cfg.StoreDriver {
	case "supabase":
		if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
			log.Warn("STORE_DRIVER=supabase but SUPABASE_URL or SUPABASE_SERVICE_ROLE_KEY missing")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			log.Warn("STORE_DRIVER=postgres but DATABASE_URL missing")
		}
	case "sqlite":
	default:
		log.Warn("unknown STORE_DRIVER, using sqlite", zap.String("driver", cfg.StoreDriver))
		cfg.StoreDriver = "sqlite"
	}

	log.Info("config loaded",
		zap.String("http_address", cfg.HTTPAddress),
		zap.String("env", cfg.AppEnv),
		zap.String("store", cfg.StoreDriver),
		zap.Bool("redis", cfg.RedisAddr != ""),
	)
	return cfg
}

// SMSEnabled reports whether every Twilio setting is present.
func (c Config) SMSEnabled() bool {
	return c.TwilioSID != "" && c.TwilioToken != "" && c.TwilioFrom != "" && c.NotifySMSTo != ""
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(log *zap.Logger, key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warn("invalid integer, using default", zap.String("key", key), zap.String("value", v), zap.Int("default", def))
		return def
	}
	return n
}

func envDuration(log *zap.Logger, key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warn("invalid duration, using default", zap.String("key", key), zap.String("value", v), zap.Duration("default", def))
		return def
	}
	return d
}

func list(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
