package app

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/pelletier/go-toml/v2"

	"github.com/shrimpsizemoose/trekker/logger"
)

const (
	StorageFS = "fs"
	StorageB2 = "b2"
)

type Config struct {
	Server struct {
		Port       string `toml:"port"`
		EnableAuth bool   `toml:"enable_auth"`
	} `toml:"server"`

	Auth struct {
		RedisURL        string `toml:"redis_url"`
		TokenHeader     string `toml:"token_header"`
		SessionTTLHours int    `toml:"session_ttl_hours"`
	} `toml:"auth"`

	API struct {
		UserIDHeader string `toml:"user_id_header"`
	} `toml:"api"`

	Database struct {
		DSN           string `toml:"dsn"`
		MigrationsDir string `toml:"migrations_dir"`
	} `toml:"database"`

	Storage struct {
		Backend     string `toml:"backend"`
		UploadDir   string `toml:"upload_dir"`
		MaxUploadMB int64  `toml:"max_upload_mb"`

		B2 struct {
			AccountID string `toml:"account_id"`
			AppKey    string `toml:"app_key"`
			Bucket    string `toml:"bucket"`
		} `toml:"b2"`
	} `toml:"storage"`

	Display struct {
		Timezone string `toml:"timezone"`
	} `toml:"display"`
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Auth.SessionTTLHours) * time.Hour
}

func (c *Config) MaxUploadBytes() int64 {
	return c.Storage.MaxUploadMB << 20
}

// Location is the zone message timestamps are rendered in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Display.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown display timezone %q: %w", c.Display.Timezone, err)
	}
	return loc, nil
}

func (c *Config) applyDefaults() {
	if c.Auth.TokenHeader == "" {
		c.Auth.TokenHeader = "Authorization"
	}
	if c.Auth.SessionTTLHours <= 0 {
		c.Auth.SessionTTLHours = 24 * 7
	}
	if c.API.UserIDHeader == "" {
		c.API.UserIDHeader = "X-User-ID"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "homeroom.db"
	}
	if c.Database.MigrationsDir == "" {
		c.Database.MigrationsDir = "./migrations"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageFS
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = "./uploads"
	}
	if c.Storage.MaxUploadMB <= 0 {
		c.Storage.MaxUploadMB = 16
	}
	if c.Display.Timezone == "" {
		c.Display.Timezone = "Europe/Moscow"
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return ParseConfig(path, data)
}

func ParseConfig(path string, data []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf(
			"error reading config file %s\n> Error: %w\n> Content:\n%s",
			path,
			err,
			string(data),
		)
	}

	if config.Server.Port == "" {
		return nil, fmt.Errorf("Server port is not specified in config, use a value like :9999")
	}
	config.applyDefaults()

	switch config.Storage.Backend {
	case StorageFS:
	case StorageB2:
		if config.Storage.B2.AccountID == "" || config.Storage.B2.AppKey == "" || config.Storage.B2.Bucket == "" {
			return nil, fmt.Errorf("storage backend b2 needs account_id, app_key and bucket")
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q, use %q or %q", config.Storage.Backend, StorageFS, StorageB2)
	}

	if config.Server.EnableAuth && config.Auth.RedisURL == "" {
		return nil, fmt.Errorf("auth is enabled but auth.redis_url is empty")
	}

	logger.Debug.Printf("Loaded storage config: backend=%s dir=%s max=%dMB", config.Storage.Backend, config.Storage.UploadDir, config.Storage.MaxUploadMB)

	return &config, nil
}
