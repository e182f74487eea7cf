// Package config implements the ghgserver config.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all server configuration.
type Config struct {
	Listen     string
	GRPCListen string

	ModelPath      string
	ScalerPath     string
	IndexPath      string
	SubsectorsPath string
	CentroidsPath  string
	StrictAssets   bool

	IGSteps      int
	MaxInference int

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	CacheTTL      time.Duration

	CORSOrigins []string

	LogFormat string
	LogLevel  string
}

// ParseFlags parses command-line flags and environment variables into a Config.
// Environment variables are used as fallbacks when flags are not provided.
// Exits with status 1 on an invalid combination.
func ParseFlags() *Config {
	cfg := &Config{}
	var origins string

	// Server
	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8080"), "HTTP listen address")
	flag.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":50061"), "gRPC listen address (empty disables gRPC)")

	// Assets
	flag.StringVar(&cfg.ModelPath, "model", getEnv("MODEL_PATH", "assets/model.json"), "Model artifact path")
	flag.StringVar(&cfg.ScalerPath, "scaler", getEnv("SCALER_PATH", "assets/scaler.json"), "Scaler parameters path")
	flag.StringVar(&cfg.IndexPath, "index", getEnv("INDEX_PATH", "assets/index.json"), "Label index path")
	flag.StringVar(&cfg.SubsectorsPath, "subsectors", getEnv("SUBSECTORS_PATH", "assets/subsectors.json"), "Sector to subsector map path")
	flag.StringVar(&cfg.CentroidsPath, "centroids", getEnv("CENTROIDS_PATH", "assets/centroids.json"), "Country centroid table path")
	flag.BoolVar(&cfg.StrictAssets, "strict-assets", getEnvBool("STRICT_ASSETS", false), "Fail startup when the label index is missing")

	// Inference
	flag.IntVar(&cfg.IGSteps, "ig-steps", getEnvInt("IG_STEPS", 50), "Integrated gradients interpolation steps")
	flag.IntVar(&cfg.MaxInference, "max-inference", getEnvInt("MAX_INFERENCE", 4), "Maximum concurrent model invocations")

	// Storage
	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Response cache backend: memory or redis")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 24*time.Hour), "Redis key TTL")
	flag.DurationVar(&cfg.CacheTTL, "cache-ttl", getEnvDuration("CACHE_TTL", time.Hour), "In-memory cache TTL")

	// HTTP
	flag.StringVar(&origins, "cors-origins", getEnv("CORS_ORIGINS", "*"), "Comma-separated allowed CORS origins")

	// Logging
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.Parse()

	cfg.CORSOrigins = splitList(origins)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	return cfg
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("--model is required")
	}
	if c.IGSteps < 1 {
		return fmt.Errorf("--ig-steps must be at least 1, got %d", c.IGSteps)
	}
	if c.MaxInference < 1 {
		return fmt.Errorf("--max-inference must be at least 1, got %d", c.MaxInference)
	}
	switch c.Storage {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("--redis-addr is required with --storage=redis")
		}
	default:
		return fmt.Errorf("--storage must be memory or redis, got %q", c.Storage)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
