// Package config loads mailtriage settings from defaults, an optional YAML
// file and MAILTRIAGE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MAILTRIAGE_BACKEND_URL.
const EnvPrefix = "MAILTRIAGE"

type Config struct {
	BackendURL     string        `yaml:"backend_url" envconfig:"BACKEND_URL" validate:"required,url"`
	APIKey         string        `yaml:"api_key" envconfig:"API_KEY"`
	PollInterval   time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL" validate:"gt=0"`
	MaxAttempts    int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS" validate:"gte=1"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`
	MaxFileSize    int64         `yaml:"max_file_size" envconfig:"MAX_FILE_SIZE" validate:"gt=0"`

	RedisAddr     string        `yaml:"redis_addr" envconfig:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	RedisPassword string        `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" envconfig:"REDIS_DB" validate:"gte=0"`
	StatusTTL     time.Duration `yaml:"status_ttl" envconfig:"STATUS_TTL" validate:"gte=0"`

	HTTPAddr string `yaml:"http_addr" envconfig:"HTTP_ADDR" validate:"required"`
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFile  string `yaml:"log_file" envconfig:"LOG_FILE"`
	Colours  bool   `yaml:"colours" envconfig:"COLOURS"`

	GmailTokenFile string `yaml:"gmail_token_file" envconfig:"GMAIL_TOKEN_FILE"`
	OAuthURL       string `yaml:"oauth_url" envconfig:"OAUTH_URL" validate:"omitempty,url"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		BackendURL:     "http://localhost:8000",
		PollInterval:   time.Second,
		MaxAttempts:    60,
		RequestTimeout: 30 * time.Second,
		MaxFileSize:    10 << 20,
		StatusTTL:      24 * time.Hour,
		HTTPAddr:       "localhost:0",
		LogLevel:       "info",
		Colours:        true,
		GmailTokenFile: "./data/mailtriage-token.json",
	}
}

// Load applies the YAML file at path, when given, and then the environment
// on top of the defaults. The result is not validated; see Validate.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("os.ReadFile failed: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("yaml.Unmarshal failed: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("envconfig.Process failed: %w", err)
	}

	return cfg, nil
}

var validate = validator.New()

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate.Struct failed: %w", err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
}
