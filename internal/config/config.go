// Package config loads application configuration from an optional YAML file
// and environment variables. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Cache      CacheConfig      `yaml:"cache"`
	Auth       AuthConfig       `yaml:"auth"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Assessment AssessmentConfig `yaml:"assessment"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	MaxOpen  int    `yaml:"max_open_conns"`
	MaxIdle  int    `yaml:"max_idle_conns"`
}

// DSN renders the lib/pq keyword/value connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// CacheConfig holds the Redis item-pool cache settings. An empty URL
// disables the cache.
type CacheConfig struct {
	URL     string        `yaml:"url"`
	PoolTTL time.Duration `yaml:"pool_ttl"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	AdminKey  string        `yaml:"admin_key"`
}

type GeneratorConfig struct {
	Mock    bool   `yaml:"mock"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	CLIPath string `yaml:"cli_path"`
}

type AssessmentConfig struct {
	DefaultQuizSize         int     `yaml:"default_quiz_size"`
	MaxQuizSize             int     `yaml:"max_quiz_size"`
	AdaptiveByDefault       bool    `yaml:"adaptive_by_default"`
	MinCalibrationResponses int     `yaml:"min_calibration_responses"`
	RecalibrationThreshold  float64 `yaml:"recalibration_threshold"`
}

type LogConfig struct {
	Mode string `yaml:"mode"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "quiz_user",
			Password: "quiz_password",
			Name:     "adaptive_quiz",
			SSLMode:  "disable",
			MaxOpen:  25,
			MaxIdle:  5,
		},
		Cache: CacheConfig{
			PoolTTL: 10 * time.Minute,
		},
		Auth: AuthConfig{
			TokenTTL: 72 * time.Hour,
		},
		Generator: GeneratorConfig{
			Model: "claude-sonnet-4-5",
		},
		Assessment: AssessmentConfig{
			DefaultQuizSize:         10,
			MaxQuizSize:             50,
			AdaptiveByDefault:       true,
			MinCalibrationResponses: 50,
			RecalibrationThreshold:  0.05,
		},
		Log: LogConfig{
			Mode: "dev",
		},
	}
}

// Load starts from Default, overlays the YAML file named by CONFIG_FILE when
// set, then applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = envStr("PORT", c.Server.Port)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	c.Database.Host = envStr("DB_HOST", c.Database.Host)
	c.Database.Port = envStr("DB_PORT", c.Database.Port)
	c.Database.User = envStr("DB_USER", c.Database.User)
	c.Database.Password = envStr("DB_PASSWORD", c.Database.Password)
	c.Database.Name = envStr("DB_NAME", c.Database.Name)
	c.Database.SSLMode = envStr("DB_SSLMODE", c.Database.SSLMode)

	c.Cache.URL = envStr("REDIS_URL", c.Cache.URL)
	c.Cache.PoolTTL = envDuration("POOL_CACHE_TTL", c.Cache.PoolTTL)

	c.Auth.JWTSecret = envStr("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.AdminKey = envStr("ADMIN_KEY", c.Auth.AdminKey)

	c.Generator.Mock = envBool("MOCK_GENERATOR", c.Generator.Mock)
	c.Generator.APIKey = envStr("ANTHROPIC_API_KEY", c.Generator.APIKey)
	c.Generator.Model = envStr("ANTHROPIC_MODEL", c.Generator.Model)
	c.Generator.CLIPath = envStr("GENERATOR_CLI_PATH", c.Generator.CLIPath)

	c.Assessment.DefaultQuizSize = envInt("QUIZ_DEFAULT_SIZE", c.Assessment.DefaultQuizSize)
	c.Assessment.AdaptiveByDefault = envBool("QUIZ_ADAPTIVE_DEFAULT", c.Assessment.AdaptiveByDefault)
	c.Assessment.MinCalibrationResponses = envInt("CALIBRATION_MIN_RESPONSES", c.Assessment.MinCalibrationResponses)

	c.Log.Mode = envStr("LOG_MODE", c.Log.Mode)
}

// Validate checks that the configuration can run the server.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if !c.Generator.Mock && c.Generator.CLIPath == "" && c.Generator.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required unless MOCK_GENERATOR=true or GENERATOR_CLI_PATH is set")
	}
	if c.Assessment.DefaultQuizSize <= 0 {
		return fmt.Errorf("QUIZ_DEFAULT_SIZE must be positive, got %d", c.Assessment.DefaultQuizSize)
	}
	if c.Assessment.MaxQuizSize < c.Assessment.DefaultQuizSize {
		return fmt.Errorf("max_quiz_size (%d) is below the default quiz size (%d)",
			c.Assessment.MaxQuizSize, c.Assessment.DefaultQuizSize)
	}
	if c.Assessment.MinCalibrationResponses <= 0 {
		return fmt.Errorf("CALIBRATION_MIN_RESPONSES must be positive, got %d", c.Assessment.MinCalibrationResponses)
	}
	if c.Assessment.RecalibrationThreshold < 0 {
		return fmt.Errorf("recalibration_threshold must not be negative")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
