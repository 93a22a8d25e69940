package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"transcriber/internal/models"
)

// Config holds all server and worker settings in typed form
type Config struct {
	Port         string
	DatabasePath string
	DataDir      string

	ContainerImage       string
	ContainerDataDir     string
	ContainerStopTimeout time.Duration

	WhisperBin         string
	WhisperModel       string
	CPUCount           int
	ThreadDivisors     map[models.Priority]int
	ThreadReduction    int
	FineSegmentPattern string

	SplitParts int
	SampleRate int

	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	TerminateGrace     time.Duration
	JobRetentionDays   int
	RunWorker          bool

	RedisAddr           string
	RedisPassword       string
	NotificationChannel string

	AllowedOrigins []string
}

// Load reads the configuration from the environment.
// Call godotenv.Load beforehand to pick up a .env file.
func Load() (*Config, error) {
	divisors, err := parseDivisors(getEnv("THREAD_DIVISORS", "LOW:4,MEDIUM:2,HIGH:2"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "data/transcriber.db"),
		DataDir:      getEnv("DATA_DIR", "data/files"),

		ContainerImage:       getEnv("CONTAINER_IMAGE", "transcription-service"),
		ContainerDataDir:     getEnv("CONTAINER_DATA_DIR", "/home/files"),
		ContainerStopTimeout: getEnvAsDuration("CONTAINER_STOP_TIMEOUT", 10*time.Second),

		WhisperBin:         getEnv("WHISPER_BIN", "./main"),
		WhisperModel:       getEnv("WHISPER_MODEL", "models/ggml-base.bin"),
		CPUCount:           getEnvAsInt("CPU_COUNT", runtime.NumCPU()),
		ThreadDivisors:     divisors,
		ThreadReduction:    getEnvAsInt("THREAD_REDUCTION", 0),
		FineSegmentPattern: getEnv("FINE_SEGMENT_PATTERN", `\d`),

		SplitParts: getEnvAsInt("SPLIT_PARTS", 2),
		SampleRate: getEnvAsInt("SAMPLE_RATE", 16000),

		WorkerConcurrency:  getEnvAsInt("WORKER_CONCURRENCY", 4),
		WorkerPollInterval: getEnvAsDuration("WORKER_POLL_INTERVAL", time.Second),
		TerminateGrace:     getEnvAsDuration("TERMINATE_GRACE", 2*time.Second),
		JobRetentionDays:   getEnvAsInt("JOB_RETENTION_DAYS", 7),
		RunWorker:          getEnvAsBool("RUN_WORKER", true),

		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		NotificationChannel: getEnv("NOTIFICATION_CHANNEL", models.ChannelNotifications),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects settings the scheduler cannot run with and resets
// out-of-range tuning values to their defaults.
func validate(cfg *Config) error {
	if _, err := regexp.Compile(cfg.FineSegmentPattern); err != nil {
		return fmt.Errorf("invalid FINE_SEGMENT_PATTERN: %w", err)
	}
	if cfg.ContainerImage == "" {
		return fmt.Errorf("CONTAINER_IMAGE must not be empty")
	}
	if cfg.CPUCount < 1 {
		log.Printf("Warning: CPU_COUNT must be at least 1. Using %d.", runtime.NumCPU())
		cfg.CPUCount = runtime.NumCPU()
	}
	if cfg.WorkerConcurrency < 1 {
		log.Println("Warning: WORKER_CONCURRENCY must be at least 1. Resetting to 4.")
		cfg.WorkerConcurrency = 4
	}
	if cfg.SplitParts < 1 {
		log.Println("Warning: SPLIT_PARTS must be at least 1. Resetting to 2.")
		cfg.SplitParts = 2
	}
	if cfg.ThreadReduction < 0 {
		cfg.ThreadReduction = 0
	}

	abs, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("invalid DATA_DIR: %w", err)
	}
	cfg.DataDir = abs
	if _, err := os.Stat(cfg.DataDir); os.IsNotExist(err) {
		log.Printf("Creating missing data directory: %s", cfg.DataDir)
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return nil
}

// parseDivisors reads "LOW:4,MEDIUM:2,HIGH:2". Every priority must be present.
func parseDivisors(s string) (map[models.Priority]int, error) {
	divisors := make(map[models.Priority]int)
	for _, part := range splitList(s) {
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid THREAD_DIVISORS entry %q", part)
		}
		p, err := models.ParsePriority(name)
		if err != nil || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid THREAD_DIVISORS priority %q", name)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid THREAD_DIVISORS value for %s: %q", p, value)
		}
		divisors[p] = n
	}
	for _, p := range []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh} {
		if _, ok := divisors[p]; !ok {
			return nil, fmt.Errorf("THREAD_DIVISORS is missing %s", p)
		}
	}
	return divisors, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if val, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return val
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if val, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return val
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("2s") or plain seconds ("2").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	str := getEnv(key, "")
	if d, err := time.ParseDuration(str); err == nil {
		return d
	}
	if n, err := strconv.Atoi(str); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
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
