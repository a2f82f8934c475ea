package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	xdgAppName = "trashtasker"
	configFile = "config.yaml"
	envPrefix  = "TRASHTASKER"
)

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
	JSON  bool   `mapstructure:"json"`
}

type GoogleConfig struct {
	// DefaultList is the remote task list new tasks are pushed to. Empty
	// means the first list the provider returns.
	DefaultList string `mapstructure:"default_list"`
	// Calendar enables the calendar mirror when set.
	Calendar string `mapstructure:"calendar"`
}

type PushConfig struct {
	Workers   int           `mapstructure:"workers"`
	QueueSize int           `mapstructure:"queue_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Listen string       `mapstructure:"listen"`
	Store  StoreConfig  `mapstructure:"store"`
	Log    LogConfig    `mapstructure:"log"`
	Google GoogleConfig `mapstructure:"google"`
	Push   PushConfig   `mapstructure:"push"`
}

func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", filepath.Join(dir, "tasks.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.json", true)
	v.SetDefault("google.default_list", "")
	v.SetDefault("google.calendar", "")
	v.SetDefault("push.workers", 4)
	v.SetDefault("push.queue_size", 256)
	v.SetDefault("push.timeout", 30*time.Second)
}

func newViper() (*viper.Viper, string, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, "", err
	}
	v := viper.New()
	setDefaults(v, filepath.Dir(path))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, path, nil
}

// Load reads the config file, if any, with TRASHTASKER_* environment
// overrides (TRASHTASKER_STORE_DRIVER, TRASHTASKER_LOG_LEVEL, ...).
func Load() (*Config, error) {
	v, _, err := newViper()
	if err != nil {
		return nil, err
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to the config file.
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("listen", cfg.Listen)
	v.Set("store.driver", cfg.Store.Driver)
	v.Set("store.dsn", cfg.Store.DSN)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.file", cfg.Log.File)
	v.Set("log.json", cfg.Log.JSON)
	v.Set("google.default_list", cfg.Google.DefaultList)
	v.Set("google.calendar", cfg.Google.Calendar)
	v.Set("push.workers", cfg.Push.Workers)
	v.Set("push.queue_size", cfg.Push.QueueSize)
	v.Set("push.timeout", cfg.Push.Timeout.String())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Chmod(path, 0600)
}
