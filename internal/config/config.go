// Package config содержит логику чтения конфигурации бэк-офиса лотереи.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config содержит параметры конфигурации бэк-офиса лотереи.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	DatabaseURI       string `env:"DATABASE_URI"`
	ScanCheckAddress  string `env:"SCAN_CHECK_ADDRESS"`
	AuthSecret        string `env:"AUTH_SECRET"`
	StagingTTLMinutes int    `env:"STAGING_TTL_MINUTES"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами; файл .env подхватывается, если он есть.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envScanCheckAddress := cfg.ScanCheckAddress
	envAuthSecret := cfg.AuthSecret
	envStagingTTL := cfg.StagingTTLMinutes

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.ScanCheckAddress, "s", "", "scan check service address")
	flag.StringVar(&cfg.AuthSecret, "k", "", "gateway token signing key")
	flag.IntVar(&cfg.StagingTTLMinutes, "t", 60, "day close staging TTL in minutes")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envScanCheckAddress != "" {
		cfg.ScanCheckAddress = envScanCheckAddress
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envStagingTTL != 0 {
		cfg.StagingTTLMinutes = envStagingTTL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
