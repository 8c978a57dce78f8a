package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is read once at startup from the environment. A .env file in
// the working directory is loaded first if present.
type Config struct {
	Port           string
	AllowedOrigins []string
	StoreBaseURL   string
	JWTSecret      string

	ReconcileInterval  time.Duration
	ExpirySweepEvery   time.Duration
	GhostSweepEvery    time.Duration
	GraceWindow        time.Duration
	TickBroadcastEvery time.Duration

	ChatHistoryCap int
	ChatMaxLen     int
	SendBuffer     int
}

func loadConfig() Config {
	origins := make([]string, 0, 4)
	for _, o := range strings.Split(envOrDefault("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return Config{
		Port:           envOrDefault("PORT", "4001"),
		AllowedOrigins: origins,
		StoreBaseURL:   strings.TrimRight(envOrDefault("STORE_BASE_URL", "http://localhost:3000/api"), "/"),
		JWTSecret:      os.Getenv("SYNC_JWT_SECRET"),

		ReconcileInterval:  envDuration("RECONCILE_INTERVAL", 60*time.Second),
		ExpirySweepEvery:   envDuration("EXPIRY_SWEEP_INTERVAL", 60*time.Second),
		GhostSweepEvery:    envDuration("GHOST_SWEEP_INTERVAL", 120*time.Second),
		GraceWindow:        envDuration("GRACE_WINDOW", 5*time.Minute),
		TickBroadcastEvery: envDuration("TICK_BROADCAST_INTERVAL", 15*time.Second),

		ChatHistoryCap: envInt("CHAT_HISTORY_CAP", 100),
		ChatMaxLen:     envInt("CHAT_MAX_LEN", 500),
		SendBuffer:     envInt("SEND_BUFFER", 64),
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// originAllowed implements the CORS allow-list for the websocket
// upgrader. An empty Origin header (non-browser client) is allowed.
func originAllowed(cfg Config, origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
