package config

import (
	"errors"
	log "log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"friday/internal/persona"
	"friday/internal/transcript"
)

const (
	DefaultTranscriptPath = "conversations/transcripts.jsonl"
	DefaultModel          = "gpt-5-nano"
)

var ErrMissingAPIKey = errors.New("OPENAI_API_KEY not set")

type Config struct {
	TranscriptPath      string
	TranscriptQueueSize int

	PromptURL     string
	PromptTimeout time.Duration

	OpenAIKey   string
	Model       string
	Temperature float64 // 0 keeps the model default

	BusURL      string
	SocksProxy  string
	MetricsAddr string
	LogLevel    string
}

// Load reads envFile (if present) into the process environment and builds
// a Config from it. Variables already set in the environment take
// precedence over the file.
func Load(envFile string) Config {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Debug("No env file loaded", "path", envFile, "err", err)
		}
	}
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		TranscriptPath:      str("TRANSCRIPT_LOG_PATH", DefaultTranscriptPath),
		TranscriptQueueSize: integer("TRANSCRIPT_QUEUE_SIZE", transcript.DefaultQueueSize),
		PromptURL:           str("PROMPT_API_URL", persona.DefaultURL),
		PromptTimeout:       time.Duration(integer("PROMPT_API_TIMEOUT", int(persona.DefaultTimeout/time.Second))) * time.Second,
		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		Model:               str("OPENAI_MODEL", DefaultModel),
		Temperature:         float("LLM_TEMPERATURE", 0),
		BusURL:              os.Getenv("BUS_URL"),
		SocksProxy:          os.Getenv("SOCKS_PROXY"),
		MetricsAddr:         os.Getenv("METRICS_ADDR"),
		LogLevel:            str("LOG_LEVEL", "info"),
	}
}

// Validate reports settings the daemon cannot run without.
func (c Config) Validate() error {
	if c.OpenAIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warn("Invalid integer, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn("Invalid number, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}
