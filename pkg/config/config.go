package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the bracket core.
type Config struct {
	Port string

	// Broker gateway
	BrokerDriver   string // "sim" (default) or "tws"
	BrokerHost     string
	BrokerPort     int
	BrokerClientID int

	// Bounded-wait timeouts
	ConnectTimeout     time.Duration
	StandardTimeout    time.Duration
	QuickTimeout       time.Duration
	OrderStatusTimeout time.Duration

	// Auto-reconnect
	ReconnectEnabled      bool
	ReconnectMaxAttempts  int
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectMultiplier   float64
	ReconnectResetAfter   time.Duration

	// Duplicate guard
	BlockOnPosition bool

	// Janitor (end-of-day order cleanup)
	EODCutoff           string // "HH:MM" local exchange time
	EODThresholdMinutes int

	// Cancellation retries
	CancelMaxRetries int
	CancelRetryDelay time.Duration

	// Position monitor
	MonitorInterval time.Duration
	Watchlist       []string
	WatchlistPath   string

	// Simulated broker
	SimNetLiquidation float64
	SimStartOrderID   int64

	// Database
	DBPath string

	// Auth
	JWTSecret string
	APIKey    string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                  getEnv("PORT", "8080"),
		BrokerDriver:          strings.ToLower(getEnv("BROKER_DRIVER", "sim")),
		BrokerHost:            getEnv("BROKER_HOST", "127.0.0.1"),
		BrokerPort:            getEnvInt("BROKER_PORT", 7497),
		BrokerClientID:        getEnvInt("BROKER_CLIENT_ID", 19),
		ConnectTimeout:        getEnvSeconds("CONNECT_TIMEOUT_SEC", 10),
		StandardTimeout:       getEnvSeconds("STANDARD_TIMEOUT_SEC", 6),
		QuickTimeout:          getEnvSeconds("QUICK_TIMEOUT_SEC", 2),
		OrderStatusTimeout:    getEnvSeconds("ORDER_STATUS_TIMEOUT_SEC", 3),
		ReconnectEnabled:      getEnv("RECONNECT_ENABLED", "true") == "true",
		ReconnectMaxAttempts:  getEnvInt("RECONNECT_MAX_ATTEMPTS", 5),
		ReconnectInitialDelay: getEnvSeconds("RECONNECT_INITIAL_DELAY_SEC", 5),
		ReconnectMaxDelay:     getEnvSeconds("RECONNECT_MAX_DELAY_SEC", 60),
		ReconnectMultiplier:   getEnvFloat("RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		ReconnectResetAfter:   getEnvSeconds("RECONNECT_RESET_AFTER_SEC", 300),
		BlockOnPosition:       getEnv("BLOCK_ON_POSITION", "false") == "true",
		EODCutoff:             getEnv("EOD_CUTOFF", "15:45"),
		EODThresholdMinutes:   getEnvInt("EOD_THRESHOLD_MINUTES", 20),
		CancelMaxRetries:      getEnvInt("CANCEL_MAX_RETRIES", 4),
		CancelRetryDelay:      getEnvSeconds("CANCEL_RETRY_DELAY_SEC", 1),
		MonitorInterval:       getEnvSeconds("MONITOR_INTERVAL_SEC", 15),
		Watchlist:             splitAndTrim(getEnv("WATCHLIST", "")),
		WatchlistPath:         getEnv("WATCHLIST_PATH", "./config/watchlist.yaml"),
		SimNetLiquidation:     getEnvFloat("SIM_NET_LIQUIDATION", 100000),
		SimStartOrderID:       int64(getEnvInt("SIM_START_ORDER_ID", 1)),
		DBPath:                getEnv("DB_PATH", "./data/bracket.db"),
		JWTSecret:             getEnv("JWT_SECRET", "dev-secret"),
		APIKey:                getEnv("API_KEY", ""),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defSeconds)) * time.Second
}
