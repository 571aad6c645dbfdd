// Package config loads the despertador daemon configuration.
//
// Configuration comes from a single YAML file named by the --config flag
// or the DESPERTADOR_CONFIG environment variable. Without either, the
// defaults apply unchanged.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bsid.es/despertador"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "DESPERTADOR_CONFIG"

type Config struct {
	// Database is the SQLite file holding alarms and armed tickets.
	Database string `yaml:"database"`

	Log LogConfig `yaml:"log"`

	Alarms AlarmsConfig `yaml:"alarms"`

	// ReconcileInterval is how often the daemon re-checks the armed
	// tickets against the alarm store. Zero disables the periodic pass;
	// one still runs at startup.
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`

	// Capabilities lists the capabilities that must be granted before an
	// alarm is scheduled.
	Capabilities []despertador.Capability `yaml:"capabilities"`

	Permissions PermissionsConfig `yaml:"permissions"`

	// PIDFile is where the running daemon records its process id, so
	// alarm commands can have it reconcile right away. Empty disables it.
	PIDFile string `yaml:"pid_file"`

	// MetricsAddr is the listen address of the Prometheus endpoint. Empty
	// disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// Autostart registers the daemon to start with the user session.
	Autostart bool `yaml:"autostart"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// PermissionsConfig describes the platform's permission state: the
// capabilities already granted and the ones a prompt would obtain.
type PermissionsConfig struct {
	Granted   []despertador.Capability `yaml:"granted"`
	Grantable []despertador.Capability `yaml:"grantable"`
}

type AlarmsConfig struct {
	SnoozeMinutes  int           `yaml:"snooze_minutes"`
	WakeCheckDelay time.Duration `yaml:"wake_check_delay"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	dataDir, err := os.UserConfigDir()
	if err != nil {
		dataDir = "."
	}
	return &Config{
		Database: filepath.Join(dataDir, "despertador", "despertador.db"),
		PIDFile:  filepath.Join(dataDir, "despertador", "despertador.pid"),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Alarms: AlarmsConfig{
			SnoozeMinutes:  despertador.DefaultSnoozeMinutes,
			WakeCheckDelay: despertador.DefaultWakeCheckDelay,
		},
		ReconcileInterval: 15 * time.Minute,
		Capabilities: []despertador.Capability{
			despertador.CapNotifications,
			despertador.CapExactTiming,
		},
		Permissions: PermissionsConfig{
			Granted:   []despertador.Capability{despertador.CapNotifications},
			Grantable: []despertador.Capability{despertador.CapExactTiming},
		},
	}
}

// Load loads the file named by DESPERTADOR_CONFIG, or returns the defaults
// when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults. Keys missing from the file keep
// their default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Database = expandHome(cfg.Database)
	cfg.PIDFile = expandHome(cfg.PIDFile)
	return cfg, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log.level: %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log.format: %q", c.Log.Format))
	}
	if c.Alarms.SnoozeMinutes <= 0 {
		errs = append(errs, fmt.Errorf("alarms.snooze_minutes must be positive, got %d", c.Alarms.SnoozeMinutes))
	}
	if c.Alarms.WakeCheckDelay <= 0 {
		errs = append(errs, fmt.Errorf("alarms.wake_check_delay must be positive, got %s", c.Alarms.WakeCheckDelay))
	}
	if c.ReconcileInterval < 0 {
		errs = append(errs, fmt.Errorf("reconcile_interval must not be negative, got %s", c.ReconcileInterval))
	}
	for _, list := range [][]despertador.Capability{
		c.Capabilities,
		c.Permissions.Granted,
		c.Permissions.Grantable,
	} {
		for _, cp := range list {
			if cp != despertador.CapNotifications && cp != despertador.CapExactTiming {
				errs = append(errs, fmt.Errorf("unknown capability: %q", cp))
			}
		}
	}

	return errors.Join(errs...)
}
