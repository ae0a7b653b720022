// Package config handles pipeline configuration: an optional YAML file
// overlaid by environment variables.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tunables for the meeting pipeline and its surface.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	// Engine endpoints
	AsrURL        string `yaml:"asr_url"`
	DiarizerURL   string `yaml:"diarizer_url"`
	SummarizerURL string `yaml:"summarizer_url"`
	SummarizerKey string `yaml:"summarizer_key"`
	SummaryModel  string `yaml:"summary_model"`

	// Audio
	SampleRate int `yaml:"sample_rate"`

	// Live scheduling
	FlushInterval time.Duration `yaml:"flush_interval"`
	StopCooldown  time.Duration `yaml:"stop_cooldown"`

	// Speaker identification. The match floor is deliberately configurable:
	// the default is a defensive minimum, not a tuned discriminative
	// threshold.
	SpeakerMatchFloor float64 `yaml:"speaker_match_floor"`

	// Batch import
	BatchWindowSeconds int `yaml:"batch_window_seconds"`

	// Storage
	DBPath       string `yaml:"db_path"`
	ProfilesPath string `yaml:"profiles_path"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		HTTPAddr:           ":8000",
		AsrURL:             "http://localhost:9000",
		DiarizerURL:        "http://localhost:9001",
		SummarizerURL:      "https://api.anthropic.com/v1/messages",
		SummaryModel:       "claude-haiku-4-5",
		SampleRate:         16000,
		FlushInterval:      15 * time.Second,
		StopCooldown:       3 * time.Second,
		SpeakerMatchFloor:  0.05,
		BatchWindowSeconds: 30,
		DBPath:             "meetings.db",
		ProfilesPath:       "speakers.json",
	}
}

// Load reads configuration: defaults, then the YAML file at path (skipped if
// path is empty or missing), then environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		f, err := os.Open(path)
		if err == nil {
			decErr := yaml.NewDecoder(f).Decode(cfg)
			f.Close()
			if decErr != nil {
				return nil, decErr
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.AsrURL = getEnv("ASR_URL", c.AsrURL)
	c.DiarizerURL = getEnv("DIARIZER_URL", c.DiarizerURL)
	c.SummarizerURL = getEnv("SUMMARIZER_URL", c.SummarizerURL)
	c.SummarizerKey = getEnv("SUMMARIZER_API_KEY", c.SummarizerKey)
	c.SummaryModel = getEnv("SUMMARY_MODEL", c.SummaryModel)
	c.SampleRate = getEnvInt("SAMPLE_RATE", c.SampleRate)
	c.FlushInterval = getEnvDuration("FLUSH_INTERVAL", c.FlushInterval)
	c.StopCooldown = getEnvDuration("STOP_COOLDOWN", c.StopCooldown)
	c.SpeakerMatchFloor = getEnvFloat("SPEAKER_MATCH_FLOOR", c.SpeakerMatchFloor)
	c.BatchWindowSeconds = getEnvInt("BATCH_WINDOW_SECONDS", c.BatchWindowSeconds)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.ProfilesPath = getEnv("PROFILES_PATH", c.ProfilesPath)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
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

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
