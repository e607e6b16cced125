package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is built once at startup and handed to whatever needs it.
type Config struct {
	HTTP     HTTP     `yaml:"http"`
	Database Database `yaml:"database"`
	Auth     Auth     `yaml:"auth"`
	Gateway  Gateway  `yaml:"gateway"`
	Payee    Payee    `yaml:"payee"`
	Kitchen  Kitchen  `yaml:"kitchen"`
	Log      Log      `yaml:"log"`
	// FrontendURL is where table QR codes point customers.
	FrontendURL string `yaml:"frontend_url"`
}

type HTTP struct {
	Addr            string        `yaml:"addr"`
	Mode            string        `yaml:"mode"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Database struct {
	Driver string `yaml:"driver"` // sqlite | postgres
	DSN    string `yaml:"dsn"`
}

type Auth struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	AdminEmail    string        `yaml:"admin_email"`
	AdminPassword string        `yaml:"admin_password"`
}

type Gateway struct {
	BaseURL    string        `yaml:"base_url"`
	KeyID      string        `yaml:"key_id"`
	KeySecret  string        `yaml:"key_secret"`
	Currency   string        `yaml:"currency"`
	MethodCode string        `yaml:"method_code"`
	Timeout    time.Duration `yaml:"timeout"`
}

type Payee struct {
	Name string `yaml:"name"`
}

type Kitchen struct {
	QueueSize        int    `yaml:"queue_size"`
	SubscriberBuffer int    `yaml:"subscriber_buffer"`
	AMQPURL          string `yaml:"amqp_url"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{
		HTTP: HTTP{
			Addr:            ":8080",
			Mode:            "release",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: Database{
			Driver: "sqlite",
			DSN:    "cafe_pos.db",
		},
		Auth: Auth{
			JWTSecret:  "cafe_pos_dev_secret_change_me",
			TokenTTL:   24 * time.Hour,
			AdminEmail: "admin@cafe.local",
		},
		Gateway: Gateway{
			BaseURL:    "https://api.razorpay.com",
			Currency:   "INR",
			MethodCode: "razorpay",
			Timeout:    10 * time.Second,
		},
		Payee: Payee{Name: "Cafe"},
		Kitchen: Kitchen{
			QueueSize:        256,
			SubscriberBuffer: 64,
		},
		Log:         Log{Level: "info"},
		FrontendURL: "http://localhost:5173",
	}
}

// Load reads the YAML file at path over the defaults (an empty path skips
// the file) and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.HTTP.Addr = getEnv("POS_HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.Mode = getEnv("GIN_MODE", c.HTTP.Mode)
	c.Database.Driver = getEnv("POS_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("POS_DB_DSN", c.Database.DSN)
	c.Auth.JWTSecret = getEnv("POS_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.AdminEmail = getEnv("POS_ADMIN_EMAIL", c.Auth.AdminEmail)
	c.Auth.AdminPassword = getEnv("POS_ADMIN_PASSWORD", c.Auth.AdminPassword)
	c.Gateway.BaseURL = getEnv("POS_GATEWAY_BASE_URL", c.Gateway.BaseURL)
	c.Gateway.KeyID = getEnv("POS_GATEWAY_KEY_ID", c.Gateway.KeyID)
	c.Gateway.KeySecret = getEnv("POS_GATEWAY_KEY_SECRET", c.Gateway.KeySecret)
	c.Kitchen.AMQPURL = getEnv("POS_AMQP_URL", c.Kitchen.AMQPURL)
	c.FrontendURL = getEnv("POS_FRONTEND_URL", c.FrontendURL)
	c.Log.Level = getEnv("POS_LOG_LEVEL", c.Log.Level)

	if v := os.Getenv("POS_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("POS_TOKEN_TTL: %w", err)
		}
		c.Auth.TokenTTL = d
	}
	if v := os.Getenv("POS_KITCHEN_SUBSCRIBER_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POS_KITCHEN_SUBSCRIBER_BUFFER: %w", err)
		}
		c.Kitchen.SubscriberBuffer = n
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 characters"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	return errors.Join(errs...)
}

// GatewayConfigured reports whether checkout and verification can work.
func (c *Config) GatewayConfigured() bool {
	return c.Gateway.KeyID != "" && c.Gateway.KeySecret != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
