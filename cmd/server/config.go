package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cloudband/ignis-admin/internal/logger"
	"github.com/cloudband/ignis-admin/internal/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configDirName = "ignisadmin"

	defaultPort             = "8080"
	defaultDocumentTypesTTL = 5 * time.Minute
)

type config struct {
	Port          string `yaml:"port" validate:"required,numeric"`
	APIBaseURL    string `yaml:"apiBaseURL" validate:"required,url"`
	JWTSecret     string `yaml:"jwtSecret"`
	SessionCookie string `yaml:"sessionCookie"`
	SecureCookie  bool   `yaml:"secureCookie"`
	// StorePath is the bbolt file holding sessions and favorites.
	StorePath        string        `yaml:"storePath" validate:"required"`
	DocumentTypesTTL time.Duration `yaml:"documentTypesTTL" validate:"gte=0"`
	ConversationTTL  time.Duration `yaml:"conversationTTL" validate:"gte=0"`

	Log     logger.Config    `yaml:"log"`
	Inquiry inquiryConfig    `yaml:"inquiry"`
	Tracing telemetry.Config `yaml:"tracing"`
}

type inquiryConfig struct {
	K int `yaml:"k" validate:"gte=0"`
}

// loadConfig reads the optional .env of the working directory and then the config file of the
// user config dir, or the one IGNIS_CONFIG names.
func loadConfig() (config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return config{}, err
	}

	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return config{}, fmt.Errorf("error getting user config dir: %w", err)
	}
	dir := filepath.Join(cfgDir, configDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return config{}, fmt.Errorf("error creating config directory: %w", err)
	}

	path := os.Getenv("IGNIS_CONFIG")
	if path == "" {
		path = filepath.Join(dir, "config.yaml")
	}
	return readConfig(path, dir, os.Getenv)
}

// readConfig decodes the file at path, applies the environment overrides returned by getenv and
// fills in defaults. A missing file is not an error; the environment alone may be enough.
func readConfig(path, dir string, getenv func(string) string) (config, error) {
	cfg := config{}

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return config{}, fmt.Errorf("error decoding config file %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}

	if v := getenv("IGNIS_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := getenv("IGNIS_PORT"); v != "" {
		cfg.Port = v
	}
	if v := getenv("IGNIS_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}

	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.StorePath == "" {
		cfg.StorePath = filepath.Join(dir, "store.db")
	}
	if cfg.DocumentTypesTTL == 0 {
		cfg.DocumentTypesTTL = defaultDocumentTypesTTL
	}

	if err := validator.New().Struct(cfg); err != nil {
		return config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadDotEnv exports the variables of the file at path unless they are already set.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}
