// shopstate/config.go

package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/norun9/shopstate/storefront"
)

type config struct {
	Port          string
	HealthPort    string
	RedisAddr     string
	OTLPEndpoint  string
	TraceExporter string
	LogLevel      logrus.Level
	OTelEnabled   bool
	MaxSessions   int
	SessionIdle   time.Duration
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// loadConfig reads the service configuration from the environment.
func loadConfig() config {
	cfg := config{
		Port:          getenv("PORT", "8080"),
		HealthPort:    getenv("HEALTH_PORT", "7070"),
		RedisAddr:     getenv("REDIS_ADDR", ""),
		OTLPEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TraceExporter: strings.ToLower(getenv("OTEL_TRACES_EXPORTER", "otlp")),
		LogLevel:      logrus.InfoLevel,
		OTelEnabled:   true,
		MaxSessions:   storefront.DefaultMaxSessions,
		SessionIdle:   storefront.DefaultSessionIdle,
	}

	if lvl, err := logrus.ParseLevel(getenv("LOG_LEVEL", "info")); err == nil {
		cfg.LogLevel = lvl
	}
	if v, err := strconv.ParseBool(getenv("OTEL_ENABLED", "true")); err == nil {
		cfg.OTelEnabled = v
	}

	if n, err := strconv.Atoi(getenv("SESSION_CACHE_SIZE", "")); err == nil && n > 0 {
		cfg.MaxSessions = n
	}
	if d, err := time.ParseDuration(getenv("SESSION_IDLE_TIMEOUT", "")); err == nil {
		cfg.SessionIdle = d
	}

	// ポート番号が指定されていない場合のみ追加
	if cfg.RedisAddr != "" && !strings.Contains(cfg.RedisAddr, ":") {
		cfg.RedisAddr += ":6379"
	}
	return cfg
}
