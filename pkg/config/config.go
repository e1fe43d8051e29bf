// Package config loads schedcore's YAML configuration file, covering the
// data directory, the loop intervals, the scheduling batch size and offer
// hold duration, plus the ambient logging/metrics settings every schedcore
// process needs. The callback warn thresholds are not configurable here.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/schedcore/pkg/log"
	"gopkg.in/yaml.v3"
)

// Config is the top-level schedcore configuration.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	DBSync     DBSyncConfig     `yaml:"db_sync"`
}

// LogConfig controls the process-wide logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// StorageConfig controls the bbolt-backed reference store.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// SchedulingConfig controls the scheduling loop's pacing.
type SchedulingConfig struct {
	Interval     time.Duration `yaml:"interval"`
	BatchSize    int           `yaml:"batch_size"`
	OfferMaxHold time.Duration `yaml:"offer_max_hold"`
}

// ReconcileConfig controls the reconciliation loop's pacing.
type ReconcileConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// DBSyncConfig controls the database-sync loop's pacing.
type DBSyncConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Log:     LogConfig{Level: string(log.InfoLevel), JSON: false},
		Storage: StorageConfig{DataDir: "./data"},
		Metrics: MetricsConfig{ListenAddr: "127.0.0.1:9091"},
		Scheduling: SchedulingConfig{
			Interval:     5 * time.Second,
			BatchSize:    100,
			OfferMaxHold: 2 * time.Minute,
		},
		Reconcile: ReconcileConfig{Interval: 30 * time.Second},
		DBSync:    DBSyncConfig{Interval: 10 * time.Second},
	}
}

// Load reads and parses a YAML config file at path, filling in defaults for
// anything the file leaves unset.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
