// Package config provides configuration loading and management for lungfuse.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"lungfuse/internal/models"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// Workers bounds how many frames are decoded and converted at once
		Workers int `yaml:"workers"`

		// Offset is added to raw intensities so the "no value" sentinel maps to 0
		Offset int32 `yaml:"offset"`
	} `yaml:"processing"`

	// Frames describes how slice indices are embedded in frame file names
	Frames struct {
		Prefix string `yaml:"prefix"`
		Suffix string `yaml:"suffix"`
	} `yaml:"frames"`

	// Structures is the ordered structure table, merged in this order
	Structures models.LabelTable `yaml:"structures"`

	// Output parameters
	Output struct {
		// ArtifactName is the base name of the persisted volume
		ArtifactName string `yaml:"artifactName"`

		// WriteManifest controls the JSON sidecar next to the volume
		WriteManifest bool `yaml:"writeManifest"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Render parameters for quality-review images
	Render struct {
		Dir   string   `yaml:"dir"`
		Scale int      `yaml:"scale"`
		Axes  []string `yaml:"axes"`
	} `yaml:"render"`

	// Metrics parameters
	Metrics struct {
		// TextFile is where prometheus text output is written, empty disables it
		TextFile string `yaml:"textFile"`
	} `yaml:"metrics"`

	// Storage configures the optional S3 upload of the artifacts
	Storage struct {
		Upload    bool   `yaml:"upload"`
		Endpoint  string `yaml:"endpoint"`
		Region    string `yaml:"region"`
		Bucket    string `yaml:"bucket"`
		AccessKey string `yaml:"-"`
		SecretKey string `yaml:"-"`
		UseSSL    bool   `yaml:"useSSL"`
	} `yaml:"storage"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.Workers = runtime.NumCPU()
	cfg.Processing.Offset = 10000

	cfg.Frames.Prefix = "IMG"
	cfg.Frames.Suffix = ""

	cfg.Structures = models.DefaultLabelTable()

	cfg.Output.ArtifactName = "model"
	cfg.Output.WriteManifest = true
	cfg.Output.Verbose = true

	cfg.Render.Scale = 1
	cfg.Render.Axes = []string{"z"}

	cfg.Storage.Region = "us-east-1"
	cfg.Storage.Bucket = "lungfuse-models"
	cfg.Storage.UseSSL = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	return cfg, nil
}

// Validate checks values that would make a run meaningless
func (c *Config) Validate() error {
	if err := c.Structures.Validate(); err != nil {
		return err
	}
	if c.Processing.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Processing.Workers)
	}
	if c.Processing.Offset <= 0 {
		return fmt.Errorf("offset must be positive, got %d", c.Processing.Offset)
	}
	if strings.TrimSpace(c.Output.ArtifactName) == "" {
		return fmt.Errorf("output artifact name is required")
	}
	if c.Render.Scale < 1 {
		return fmt.Errorf("render scale must be at least 1, got %d", c.Render.Scale)
	}
	return nil
}

// LoadEnv reads a .env file if present and applies storage settings from the
// environment on top of cfg
func LoadEnv(cfg *Config) {
	_ = godotenv.Load()

	s := &cfg.Storage
	s.Endpoint = firstNonEmpty(os.Getenv("ARTIFACT_S3_ENDPOINT"), s.Endpoint)
	s.Region = firstNonEmpty(os.Getenv("ARTIFACT_S3_REGION"), s.Region, "us-east-1")
	s.Bucket = firstNonEmpty(os.Getenv("ARTIFACT_S3_BUCKET"), s.Bucket)
	s.AccessKey = firstNonEmpty(os.Getenv("ARTIFACT_S3_ACCESS_KEY"), os.Getenv("MINIO_ROOT_USER"))
	s.SecretKey = firstNonEmpty(os.Getenv("ARTIFACT_S3_SECRET_KEY"), os.Getenv("MINIO_ROOT_PASSWORD"))

	if raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL")); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			s.UseSSL = v
		}
	}
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
