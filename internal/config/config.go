package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port      string `yaml:"port"`
		AuthToken string `yaml:"auth_token"`
	} `yaml:"server"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Quiz struct {
		Size            int    `yaml:"size"`
		PenaltyMS       int    `yaml:"penalty_ms"`
		BankID          string `yaml:"bank_id"`
		BankTTL         string `yaml:"bank_ttl"`
		TheoryPath      string `yaml:"theory_path"`
		StaleAttemptTTL string `yaml:"stale_attempt_ttl"`
	} `yaml:"quiz"`
	Admin struct {
		UserIDs []int64 `yaml:"user_ids"`
	} `yaml:"admin"`
}

// Load reads YAML config from path and applies defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Quiz.Size == 0 {
		cfg.Quiz.Size = 20
	}
	if cfg.Quiz.PenaltyMS == 0 {
		cfg.Quiz.PenaltyMS = 5000
	}
	if cfg.Quiz.BankID == "" {
		cfg.Quiz.BankID = "default"
	}
	if env := os.Getenv("BOT_TOKEN"); env != "" {
		cfg.Server.AuthToken = env
	}
	if env := os.Getenv("DATABASE_URL"); env != "" {
		cfg.Postgres.URL = env
	}
	return cfg, nil
}

// Validate enforces the fatal startup requirements: a bot credential and a
// database connection must be configured before the process may proceed.
func (c Config) Validate() error {
	if c.Server.AuthToken == "" {
		return fmt.Errorf("server.auth_token (or BOT_TOKEN) is not set")
	}
	if c.Postgres.URL == "" {
		return fmt.Errorf("postgres.url (or DATABASE_URL) is not set")
	}
	if c.Quiz.Size <= 0 {
		return fmt.Errorf("quiz.size must be positive, got %d", c.Quiz.Size)
	}
	if c.Quiz.PenaltyMS < 0 {
		return fmt.Errorf("quiz.penalty_ms must not be negative, got %d", c.Quiz.PenaltyMS)
	}
	return nil
}

// AdminSet returns the privileged identity set as a lookup map.
func (c Config) AdminSet() map[int64]bool {
	set := make(map[int64]bool, len(c.Admin.UserIDs))
	for _, id := range c.Admin.UserIDs {
		set[id] = true
	}
	return set
}

// TheoryText loads the theory body from quiz.theory_path, or returns empty
// when no path is configured.
func (c Config) TheoryText() (string, error) {
	if c.Quiz.TheoryPath == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Quiz.TheoryPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// TTLDuration parses a duration string or returns the fallback if empty or
// malformed.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
