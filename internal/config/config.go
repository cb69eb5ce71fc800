package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL      string
	DBConnectTimeout time.Duration
	S3Endpoint       string
	S3AccessKey      string
	S3SecretKey      string
	S3UseSSL         bool
	S3Region         string
	ReportsBucket    string
	LogLevel         string
	SyntheticSeed    uint64
	BeforeCount      int
	AfterMinRatio    float64
	AfterMaxRatio    float64
}

// ArchiveEnabled reports whether CR texts should be copied to object storage.
func (c Config) ArchiveEnabled() bool {
	return c.S3Endpoint != "" && c.ReportsBucket != ""
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getUint(key string, def uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"),
		S3AccessKey:   os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:   os.Getenv("S3_SECRET_KEY"),
		S3Region:      os.Getenv("S3_REGION"),
		ReportsBucket: os.Getenv("REPORTS_BUCKET"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
	}
	var err error
	if cfg.DBConnectTimeout, err = getDuration("DB_CONNECT_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.S3UseSSL, err = getBool("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}
	if cfg.SyntheticSeed, err = getUint("SYNTHETIC_SEED", 0); err != nil {
		return Config{}, err
	}
	if cfg.BeforeCount, err = getInt("BEFORE_COUNT", 20); err != nil {
		return Config{}, err
	}
	if cfg.AfterMinRatio, err = getFloat("AFTER_MIN_RATIO", 0.3); err != nil {
		return Config{}, err
	}
	if cfg.AfterMaxRatio, err = getFloat("AFTER_MAX_RATIO", 0.7); err != nil {
		return Config{}, err
	}
	// quick sanity
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ReportsBucket != "" && cfg.S3Endpoint == "" {
		return Config{}, errors.New("S3_ENDPOINT is required when REPORTS_BUCKET is set")
	}
	return cfg, nil
}
