package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ClickHouse struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Config struct {
	Port         string     `yaml:"port"`
	ModelPath    string     `yaml:"model_path"`
	MetadataPath string     `yaml:"metadata_path"`
	OnnxLibPath  string     `yaml:"onnxruntime_lib_path"`
	RequireModel bool       `yaml:"require_model"`
	ProductsPath string     `yaml:"products_path"`
	RedisURL     string     `yaml:"redis_url"`
	ClickHouse   ClickHouse `yaml:"clickhouse"`
	LogLevel     string     `yaml:"log_level"`
	Environment  string     `yaml:"environment"`
}

func defaults() *Config {
	return &Config{
		Port:         "8000",
		ModelPath:    filepath.Join("models", "hair_classifier.onnx"),
		MetadataPath: filepath.Join("models", "hair_classifier.json"),
		RequireModel: true,
		ProductsPath: filepath.Join("data", "products.json"),
		ClickHouse: ClickHouse{
			Port:     9000,
			Database: "default",
		},
		LogLevel:    "info",
		Environment: "development",
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order. A .env file in the working directory is loaded
// into the environment first if present. An empty path skips the YAML step.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.ModelPath = getEnv("MODEL_PATH", c.ModelPath)
	c.MetadataPath = getEnv("MODEL_METADATA_PATH", c.MetadataPath)
	c.OnnxLibPath = getEnv("ONNXRUNTIME_LIB_PATH", c.OnnxLibPath)
	c.ProductsPath = getEnv("PRODUCTS_PATH", c.ProductsPath)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)

	c.ClickHouse.Host = getEnv("CLICKHOUSE_HOST", c.ClickHouse.Host)
	c.ClickHouse.Database = getEnv("CLICKHOUSE_DB_NAME", c.ClickHouse.Database)
	c.ClickHouse.Username = getEnv("CLICKHOUSE_USERNAME", c.ClickHouse.Username)
	c.ClickHouse.Password = getEnv("CLICKHOUSE_PASSWORD", c.ClickHouse.Password)
	if v := os.Getenv("CLICKHOUSE_NATIVE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CLICKHOUSE_NATIVE_PORT: %w", err)
		}
		c.ClickHouse.Port = port
	}

	if v := os.Getenv("REQUIRE_MODEL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid REQUIRE_MODEL: %w", err)
		}
		c.RequireModel = b
	}
	return nil
}

// Resolve makes the model, metadata and products paths absolute against root.
func (c *Config) Resolve(root string) {
	c.ModelPath = resolve(root, c.ModelPath)
	c.MetadataPath = resolve(root, c.MetadataPath)
	c.ProductsPath = resolve(root, c.ProductsPath)
}

// ProjectRoot returns the working directory, or the repository root when the
// binary is started from cmd/server.
func ProjectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	if filepath.Base(wd) == "server" && filepath.Base(filepath.Dir(wd)) == "cmd" {
		wd = filepath.Join(wd, "..", "..")
	}
	return filepath.Clean(wd), nil
}

func resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
