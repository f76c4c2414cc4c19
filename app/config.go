// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package app defines global configuration models and config loading helpers.
package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

const (
	envKey  = "RUN_ENV"
	nameKey = "APP_NAME"
)

// config stores the singleton configuration loaded by LoadConfig.
var config *Config

type (
	// Config is the root configuration model loaded from bin/configs/*.json.
	Config struct {
		System    SysConfig `json:"system"`    // Instance identity and admin HTTP settings.
		Mongo     Mongo     `json:"mongo"`      // Document-store connection settings.
		Redis     []Redis   `json:"redis"`      // Redis client settings (lock wake-up only).
		Scheduler Scheduler `json:"scheduler"`  // Lock, misfire, and sweeper tuning.
		Feishu    Feishu    `json:"feishu"`     // Feishu alert sink settings.
		Webhook   Webhook   `json:"webhook"`    // Webhook notification sink settings.
		Monitor   Monitor   `json:"monitor"`    // Panic and alert monitor settings.
		Log       LogConfig `json:"log"`        // Logger output settings.
	}

	// LogConfig controls logger driver and severity level.
	LogConfig struct {
		Driver  string `json:"driver"` // Logger driver, such as "stdout" or "file".
		Level   string `json:"level"`  // Log level: debug, info, warn, error, fatal.
		LogPath string `json:"path"`   // Log file path when driver is "file".
	}

	// SysConfig stores basic runtime properties for this scheduler instance.
	SysConfig struct {
		InstanceName string        `json:"instance_name"` // Cluster name shared by every cooperating instance.
		InstanceID   string        `json:"instance_id"`    // This process's unique identity within InstanceName.
		RunMode      string        `json:"run_mode"`       // Gin run mode for the admin surface.
		HTTPPort     string        `json:"http_port"`      // Admin HTTP listen address.
		ReadTimeout  time.Duration `json:"read_timeout"`   // Maximum request read timeout in seconds.
		WriteTimeout time.Duration `json:"write_timeout"`  // Maximum response write timeout in seconds.
		RootPath     string        `json:"root_path"`      // Runtime root path.
		DebugMode    bool          `json:"debug_mode"`     // Debug mode toggle (enables request logging).
		EnvKey       string        `json:"env_key"`        // Environment variable key that stores run env.
		Env          string        `json:"env"`            // Resolved runtime environment.
	}

	// Mongo stores the document store's connection settings (C1).
	Mongo struct {
		ConnectionString string `json:"connection_string"` // Mongo connection URI.
		Database         string `json:"database"`          // Database name.
		CollectionPrefix string `json:"collection_prefix"`  // Prefix applied to every collection name.
		UseTLS           bool   `json:"use_tls"`            // Whether the connection requires TLS.
		RetryAttempts    int    `json:"retry_attempts"`     // Retry wrapper attempt count.
		RetryBaseMs      int    `json:"retry_base_ms"`      // Retry wrapper base backoff in milliseconds.
		RetryJitterCapMs int    `json:"retry_jitter_cap_ms"` // Retry wrapper jitter cap in milliseconds.
	}

	// Redis stores one Redis connection profile, used only for the
	// distributed-lock pub/sub wake-up optimization (C2).
	Redis struct {
		Name        string        `json:"name"`         // Redis connection alias.
		Enable      bool          `json:"enable"`       // Whether this Redis profile is enabled.
		Host        string        `json:"host"`         // Redis host.
		Auth        string        `json:"auth"`         // Redis password or auth token.
		MaxIdle     int           `json:"max_idle"`     // Maximum idle connections.
		MaxActive   int           `json:"max_active"`   // Maximum active connections.
		IdleTimeout time.Duration `json:"idle_timeout"` // Idle timeout in minutes.
		Prefix      string        `json:"prefix"`       // Redis key prefix.
		DB          int           `json:"db"`           // Redis logical database index.
	}

	// Scheduler tunes the trigger lock, misfire sweep, and recovery
	// lifecycle (C2, C6, C7).
	Scheduler struct {
		LockTTL                          time.Duration `json:"lock_ttl"`
		LockPollInterval                 time.Duration `json:"lock_poll_interval"`
		MisfireThreshold                 time.Duration `json:"misfire_threshold"`
		DbRetryInterval                  time.Duration `json:"db_retry_interval"`
		MaxMisfiresPerPass               int           `json:"max_misfires_per_pass"`
		RetryableActionErrorLogThreshold int           `json:"retryable_action_error_log_threshold"`
	}

	Monitor struct {
		PanicRobot PanicRobot `json:"panic_robot"`
	}

	PanicRobot struct {
		Enable bool        `json:"enable"`
		Wechat robotConfig `json:"wechat"`
		Feishu robotConfig `json:"feishu"`
	}

	robotConfig struct {
		Enable  bool   `json:"enable"`
		PushUrl string `json:"push_url"`
	}

	// Feishu configures the operational-alert sink (C9).
	Feishu struct {
		Enable       bool   `json:"enable"`
		GroupWebhook string `json:"group_webhook"`
		AppID        string `json:"app_id"`
		AppSecret    string `json:"app_secret"`
		EncryptKey   string `json:"encrypt_key"`
	}

	// Webhook configures the per-trigger-event notification sink (C9).
	Webhook struct {
		Enable bool   `json:"enable"`
		URL    string `json:"url"`
	}
)

// LoadConfig loads configuration from bin/configs/<RUN_ENV>.json.
//
// Returns:
//   - *Config: parsed configuration instance also stored globally.
//   - error: returned when reading or decoding configuration fails.
//
// Behavior:
//   - Uses "local" when RUN_ENV is not provided.
//   - Applies APP_NAME override to instance_name when present.
func LoadConfig() (*Config, error) {
	var (
		runEnv     string
		appName    string
		rootPath   string
		cfgContent []byte
		err        error
	)

	runEnv = os.Getenv(envKey)
	if runEnv == "" {
		runEnv = "local"
	}

	rootPath, err = os.Getwd()
	if err != nil {
		log.Fatalf("unable to resolve working directory: %v", err)
	}

	// Build the environment-specific configuration file path.
	configFilePath := filepath.Join(rootPath, "bin", "configs", fmt.Sprintf("%s.json", runEnv))
	cfgContent, err = os.ReadFile(configFilePath)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(cfgContent, &config)
	if err != nil {
		return nil, err
	}

	appName = os.Getenv(nameKey)
	if appName != "" {
		config.System.InstanceName = appName
	}

	config.System.Env = runEnv
	config.System.RootPath = rootPath
	config.System.EnvKey = envKey

	checkConfig(config)

	return config, nil
}

// checkConfig validates required runtime configuration fields.
func checkConfig(conf *Config) {
	if conf.Mongo.ConnectionString == "" {
		log.Panicf("Mongo.ConnectionString can not be null")
	}
	if conf.System.InstanceID == "" {
		log.Panicf("System.InstanceID can not be null")
	}
	if conf.System.InstanceName == "" {
		log.Panicf("System.InstanceName can not be null")
	}
}

// GetConfig returns the globally loaded configuration singleton.
func GetConfig() *Config {
	return config
}
