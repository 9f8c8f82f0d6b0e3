package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"gallery/internal/logging"
	"gallery/internal/medialist"
)

// DatabaseFile is the SQLite file name inside the database directory.
const DatabaseFile = "gallery.db"

// Duration is a time.Duration written as a Go duration string in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds all application configuration
type Config struct {
	MediaDir        string   `toml:"media_dir"`
	DatabaseDir     string   `toml:"database_dir"`
	Port            string   `toml:"port"`
	MetricsPort     string   `toml:"metrics_port"`
	MetricsEnabled  bool     `toml:"metrics_enabled"`
	IndexInterval   Duration `toml:"index_interval"`
	WindowSize      int      `toml:"window_size"`
	ShuffleSeed     uint64   `toml:"shuffle_seed"`
	Watch           bool     `toml:"watch"`
	SessionIdle     Duration `toml:"session_idle"`
	LogHealthChecks bool     `toml:"log_health_checks"`

	// Derived by Prepare
	DatabasePath string `toml:"-"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		MediaDir:       "/media",
		DatabaseDir:    "/database",
		Port:           "8080",
		MetricsPort:    "9090",
		MetricsEnabled: true,
		IndexInterval:  Duration{30 * time.Minute},
		WindowSize:     medialist.DefaultWindowSize,
		Watch:          true,
		SessionIdle:    Duration{30 * time.Minute},
	}
}

// GetConfigPath returns the config file to use when none is given:
// ./gallery.toml if present, else ~/.config/gallery/config.toml.
func GetConfigPath() string {
	if _, err := os.Stat("./gallery.toml"); err == nil {
		return "./gallery.toml"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./gallery.toml"
	}
	return filepath.Join(home, ".config", "gallery", "config.toml")
}

// Load builds the configuration from defaults, the TOML file at path and
// the environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logging.Debug("No config file at %s, using defaults", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			md, err := toml.Decode(string(data), &config)
			if err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			for _, key := range md.Undecoded() {
				logging.Warn("Unknown config key %q in %s", key.String(), path)
			}
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() {
	c.MediaDir = getEnv("GALLERY_MEDIA_DIR", c.MediaDir)
	c.DatabaseDir = getEnv("GALLERY_DATABASE_DIR", c.DatabaseDir)
	c.Port = getEnv("GALLERY_PORT", c.Port)
	c.MetricsPort = getEnv("GALLERY_METRICS_PORT", c.MetricsPort)
	c.MetricsEnabled = getEnvBool("GALLERY_METRICS_ENABLED", c.MetricsEnabled)
	c.IndexInterval.Duration = getEnvDuration("GALLERY_INDEX_INTERVAL", c.IndexInterval.Duration)
	c.WindowSize = getEnvInt("GALLERY_WINDOW_SIZE", c.WindowSize)
	c.ShuffleSeed = uint64(getEnvInt("GALLERY_SHUFFLE_SEED", int(c.ShuffleSeed)))
	c.Watch = getEnvBool("GALLERY_WATCH", c.Watch)
	c.SessionIdle.Duration = getEnvDuration("GALLERY_SESSION_IDLE", c.SessionIdle.Duration)
	c.LogHealthChecks = getEnvBool("GALLERY_LOG_HEALTH_CHECKS", c.LogHealthChecks)
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.MediaDir == "" {
		errs = append(errs, errors.New("media directory is required"))
	}
	if c.DatabaseDir == "" {
		errs = append(errs, errors.New("database directory is required"))
	}
	if c.WindowSize < 1 {
		errs = append(errs, fmt.Errorf("window size must be positive, got %d", c.WindowSize))
	}
	if c.IndexInterval.Duration < 0 {
		errs = append(errs, fmt.Errorf("index interval must not be negative, got %v", c.IndexInterval))
	}
	if c.SessionIdle.Duration < 0 {
		errs = append(errs, fmt.Errorf("session idle time must not be negative, got %v", c.SessionIdle))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Settings lists the configuration for the startup report, engine
// settings first.
func (c *Config) Settings() []Setting {
	return []Setting{
		{"Window size", strconv.Itoa(c.WindowSize)},
		{"Shuffle seed", seedString(c.ShuffleSeed)},
		{"Session idle", idleString(c.SessionIdle.Duration)},
		{"Watch", strconv.FormatBool(c.Watch)},
		{"Index interval", c.IndexInterval.String()},
		{"Media dir", c.MediaDir},
		{"Database dir", c.DatabaseDir},
		{"Port", c.Port},
		{"Metrics", metricsString(c)},
		{"Log level", logging.GetLevel().String()},
	}
}

// Prepare resolves paths, checks the directories and logs the
// configuration. The media directory must exist; the database directory is
// created if needed and must be writable.
func (c *Config) Prepare() error {
	logSettings("gallery", systemSettings())

	var err error
	if c.MediaDir, err = filepath.Abs(c.MediaDir); err != nil {
		return fmt.Errorf("failed to resolve media directory path: %w", err)
	}
	if c.DatabaseDir, err = filepath.Abs(c.DatabaseDir); err != nil {
		return fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	logSettings("Configuration", c.Settings())

	Section("Directories")
	if err := prepareDir(c.MediaDir, false); err != nil {
		logging.Warn("  Media directory %s: %v", c.MediaDir, err)
	} else {
		Ready("Media directory %s", c.MediaDir)
	}
	if err := prepareDir(c.DatabaseDir, true); err != nil {
		return fmt.Errorf("database directory %s: %w", c.DatabaseDir, err)
	}
	Ready("Database directory %s is writable", c.DatabaseDir)

	c.DatabasePath = filepath.Join(c.DatabaseDir, DatabaseFile)
	return nil
}

// prepareDir checks that path is a directory. With writable it is created
// when missing and a probe file is written to it.
func prepareDir(path string, writable bool) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && writable:
		logging.Debug("  Creating %s", path)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return err
		}
	case err != nil:
		return err
	case !info.IsDir():
		return errors.New("not a directory")
	}
	if !writable {
		return nil
	}

	probe := filepath.Join(path, ".write-test")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		logging.Warn("  Failed to remove %s: %v", probe, err)
	}
	return nil
}

func seedString(seed uint64) string {
	if seed == 0 {
		return "time based"
	}
	return strconv.FormatUint(seed, 10)
}

func idleString(d time.Duration) string {
	if d == 0 {
		return "never closed"
	}
	return d.String()
}

func metricsString(c *Config) string {
	if !c.MetricsEnabled {
		return "disabled"
	}
	return "port " + c.MetricsPort
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
