// Package config loads pocketbook settings from an optional YAML file and
// POCKETBOOK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dvloznov/pocketbook/internal/logger"
)

// EnvPrefix is prepended to every environment override, e.g.
// POCKETBOOK_REMOTE_BUCKET for remote.bucket.
const EnvPrefix = "POCKETBOOK"

// Local store drivers.
const (
	LocalSQLite = "sqlite"
	LocalMemory = "memory"
)

// Remote store drivers.
const (
	RemoteNone   = "none"
	RemoteMemory = "memory"
	RemoteGCS    = "gcs"
)

// Config is the full application configuration.
type Config struct {
	Local    LocalConfig    `mapstructure:"local"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Undo     UndoConfig     `mapstructure:"undo"`
	Log      logger.Config  `mapstructure:"log"`
	BigQuery BigQueryConfig `mapstructure:"bigquery"`
	Notion   NotionConfig   `mapstructure:"notion"`
	API      APIConfig      `mapstructure:"api"`
}

// LocalConfig selects the durable local store.
type LocalConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// RemoteConfig selects the remote document store.
type RemoteConfig struct {
	Driver   string `mapstructure:"driver"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Endpoint string `mapstructure:"endpoint"`
}

// SyncConfig tunes the sync client.
type SyncConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// UndoConfig tunes the transaction undo slot.
type UndoConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// BigQueryConfig names the table transactions are backed up to.
type BigQueryConfig struct {
	Project string `mapstructure:"project"`
	Dataset string `mapstructure:"dataset"`
	Table   string `mapstructure:"table"`
}

// NotionConfig names the database transactions are mirrored to.
type NotionConfig struct {
	Token      string `mapstructure:"token"`
	DatabaseID string `mapstructure:"database_id"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Port int `mapstructure:"port"`
	// ExportDir receives export_file job output.
	ExportDir string `mapstructure:"export_dir"`
	// AllowedOrigins are host patterns allowed to open the event stream.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

var defaults = map[string]any{
	"local.driver":        LocalSQLite,
	"local.path":          filepath.Join("~", ".pocketbook", "pocketbook.db"),
	"remote.driver":       RemoteNone,
	"remote.bucket":       "",
	"remote.prefix":       "users",
	"remote.endpoint":     "",
	"sync.debounce":       "3s",
	"undo.window":         "0s",
	"log.level":           "info",
	"log.file":            "",
	"log.max_size_mb":     10,
	"log.max_backups":     3,
	"log.max_age_days":    28,
	"bigquery.project":    "",
	"bigquery.dataset":    "pocketbook",
	"bigquery.table":      "transactions",
	"notion.token":        "",
	"notion.database_id":  "",
	"api.port":            8080,
	"api.export_dir":      filepath.Join("~", ".pocketbook", "exports"),
	"api.allowed_origins": []string{"localhost:*", "127.0.0.1:*"},
}

// Load reads configuration. An explicit path must exist; without one,
// config.yaml is looked up in ~/.pocketbook and the working directory and
// may be absent. Environment variables override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".pocketbook"))
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.Local.Path = ExpandHome(cfg.Local.Path)
	cfg.Log.File = ExpandHome(cfg.Log.File)
	cfg.API.ExportDir = ExpandHome(cfg.API.ExportDir)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration can be used.
func (c Config) Validate() error {
	var errs []error

	switch c.Local.Driver {
	case LocalSQLite:
		if c.Local.Path == "" {
			errs = append(errs, errors.New("local.path is required for the sqlite driver"))
		}
	case LocalMemory:
	default:
		errs = append(errs, fmt.Errorf("local.driver %q: want %s or %s", c.Local.Driver, LocalSQLite, LocalMemory))
	}

	switch c.Remote.Driver {
	case RemoteNone, RemoteMemory:
	case RemoteGCS:
		if c.Remote.Bucket == "" {
			errs = append(errs, errors.New("remote.bucket is required for the gcs driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("remote.driver %q: want %s, %s or %s", c.Remote.Driver, RemoteNone, RemoteMemory, RemoteGCS))
	}

	if c.Sync.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("sync.debounce must be positive, got %s", c.Sync.Debounce))
	}
	if c.Undo.Window < 0 {
		errs = append(errs, fmt.Errorf("undo.window must not be negative, got %s", c.Undo.Window))
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
