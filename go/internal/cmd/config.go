package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/brackethq/calcutta/go/internal/auction/engine"
)

type Config struct {
	Auction struct {
		BidWindowSeconds int    `yaml:"bid_window_seconds"`
		MinIncrement     string `yaml:"min_increment"`
	} `yaml:"auction"`

	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`

	ScoreFeed struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"score_feed"`

	Notify struct {
		TelegramChatID string `yaml:"telegram_chat_id"`
	} `yaml:"notify"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig reads the yaml config file. A missing file is fine; everything
// has a default and env vars cover deployment-specific values.
func loadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		applyDefaults(&config)
		return &config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(config *Config) {
	if config.NATS.URL == "" {
		config.NATS.URL = getEnv("NATS_URL", nats.DefaultURL)
	}
	if config.Auction.BidWindowSeconds == 0 {
		config.Auction.BidWindowSeconds = getEnvAsInt("BID_WINDOW_SECONDS", 30)
	}
	if config.Auction.MinIncrement == "" {
		config.Auction.MinIncrement = getEnv("MIN_INCREMENT", "1")
	}
}

func engineConfig(config *Config) (engine.Config, error) {
	minIncrement, err := decimal.NewFromString(config.Auction.MinIncrement)
	if err != nil {
		return engine.Config{}, fmt.Errorf("invalid min_increment %q: %w", config.Auction.MinIncrement, err)
	}
	return engine.Config{
		BidWindow:    time.Duration(config.Auction.BidWindowSeconds) * time.Second,
		MinIncrement: minIncrement,
	}, nil
}
