package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/harryn0502/tracelens/internal/trace"
)

type Config struct {
	// HTTP Server Config
	Port         string
	MaxBodyBytes int64
	// gRPC Server Config
	GRPCPort           string
	GRPCMaxRecvMsgSize int
	GRPCMaxSendMsgSize int
	GRPCEnabled        bool
	// Storage Config
	DBPath string
	// Sink Config. When SinkURL is empty, completed trace archives are not
	// forwarded anywhere; they remain queryable through the API.
	SinkURL        string
	MaxRetries     int
	BackoffInitial time.Duration
	// Collector Config
	FlushInterval time.Duration
	TraceTTL      time.Duration
	GCInterval    time.Duration
	// Pipeline Config
	DuplicatePolicy trace.DuplicatePolicy
	// Replay Config
	ReplayInterval time.Duration
	// Default project tag applied when the request carries none.
	DefaultProject string
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.ToLower(v) == "true"
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envDuplicatePolicy(key string, def trace.DuplicatePolicy) trace.DuplicatePolicy {
	switch strings.ToLower(os.Getenv(key)) {
	case "first":
		return trace.DuplicateFirstWins
	case "last":
		return trace.DuplicateLastWins
	case "reject":
		return trace.DuplicateReject
	}
	return def
}

func Load() Config {
	return Config{
		// HTTP Server Config
		Port:         env("HTTP_PORT", "4318"),
		MaxBodyBytes: envInt64("MAX_BODY_BYTES", 209715200), // 200 MB
		// gRPC Server Config
		GRPCPort:           env("GRPC_PORT", "4317"),                      // Standard OTLP gRPC port
		GRPCMaxRecvMsgSize: envInt("GRPC_MAX_RECV_MSG_SIZE", 4*1024*1024), // 4MB
		GRPCMaxSendMsgSize: envInt("GRPC_MAX_SEND_MSG_SIZE", 4*1024*1024), // 4MB
		GRPCEnabled:        envBool("GRPC_ENABLED", true),
		// Storage Config
		DBPath: env("DB_PATH", "tracelens.sqlite"),
		// Sink Config
		SinkURL:        env("SINK_URL", ""),
		MaxRetries:     int(envInt64("MAX_RETRIES", 3)),
		BackoffInitial: time.Duration(envInt64("RETRY_BACKOFF_MS", 100)) * time.Millisecond,
		// Collector Config. A trace is flushed through the pipeline when its
		// root span closes, or after TRACE_TTL of silence for traces whose
		// root never closed.
		FlushInterval: envDuration("FLUSH_INTERVAL", 1*time.Second),
		TraceTTL:      envDuration("TRACE_TTL", 5*time.Minute),
		GCInterval:    envDuration("GC_INTERVAL", 30*time.Second),
		// Pipeline Config
		DuplicatePolicy: envDuplicatePolicy("DUPLICATE_POLICY", trace.DuplicateFirstWins),
		// Replay Config
		ReplayInterval: envDuration("REPLAY_TICK_INTERVAL", 1*time.Second),
		// Project Config
		DefaultProject: env("DEFAULT_PROJECT", ""),
	}
}
