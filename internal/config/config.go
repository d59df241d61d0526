package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen      = "127.0.0.1:8080"
	defaultDatabase    = "./var/dbcal.db"
	defaultRefreshCron = "*/15 * * * *"
	defaultWeekStart   = "sunday"
	defaultMode        = "month"
	defaultDateField   = "created_at"
	defaultPPH         = 40
	defaultMinHeight   = 20
	defaultCaptureW    = 1304
	defaultCaptureH    = 984
)

// FeedConfig describes an ICS feed imported into a collection. Exactly one
// of URL or Path is expected.
type FeedConfig struct {
	// ID identifies the feed's items inside the collection.
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	// URL is a remote ICS subscription.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// Path is a local .ics file, watched for changes while serving.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// Collection receives the imported items; created on first import.
	Collection string `yaml:"collection" json:"collection"`
}

// Key returns the identifier used for the feed's items.
func (f FeedConfig) Key() string {
	switch {
	case f.ID != "":
		return f.ID
	case f.Name != "":
		return f.Name
	case f.URL != "":
		return f.URL
	default:
		return f.Path
	}
}

// CalendarConfig holds calendar view defaults.
type CalendarConfig struct {
	// DefaultMode is "month", "week" or "day".
	DefaultMode string `yaml:"default_mode" json:"default_mode"`
	// DateField is used for collections without a date field.
	DateField string `yaml:"date_field" json:"date_field"`
	// PixelsPerHour and MinEventHeight size the time grid.
	PixelsPerHour  float64 `yaml:"pixels_per_hour" json:"pixels_per_hour"`
	MinEventHeight float64 `yaml:"min_event_height" json:"min_event_height"`
}

// CaptureConfig controls PNG previews of the rendered calendar.
type CaptureConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// URL defaults to the local /calendar page.
	URL    string `yaml:"url,omitempty" json:"url,omitempty"`
	Output string `yaml:"output" json:"output"`
	Width  int    `yaml:"width" json:"width"`
	Height int    `yaml:"height" json:"height"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone calendar dates are read in. "Local" or
	// empty uses the host zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "sunday" (default) or "monday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// Database is the SQLite file holding collections and items.
	Database string `yaml:"database" json:"database"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron schedules feed imports and preview captures.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`
	Feeds    []FeedConfig   `yaml:"feeds" json:"feeds"`
	Capture  CaptureConfig  `yaml:"capture" json:"capture"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing or invalid values with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	switch strings.ToLower(c.WeekStart) {
	case "sunday", "monday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		c.WeekStart = defaultWeekStart
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}

	switch c.Calendar.DefaultMode {
	case "month", "week", "day":
	default:
		c.Calendar.DefaultMode = defaultMode
	}
	if c.Calendar.DateField == "" {
		c.Calendar.DateField = defaultDateField
	}
	if c.Calendar.PixelsPerHour <= 0 {
		c.Calendar.PixelsPerHour = defaultPPH
	}
	if c.Calendar.MinEventHeight <= 0 {
		c.Calendar.MinEventHeight = defaultMinHeight
	}

	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	for i := range c.Feeds {
		if c.Feeds[i].Collection == "" {
			c.Feeds[i].Collection = c.Feeds[i].Key()
		}
	}

	if c.Capture.Output == "" {
		c.Capture.Output = "./var/preview.png"
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = defaultCaptureW
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = defaultCaptureH
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// CaptureURL is the page captured for previews.
func (c *Config) CaptureURL() string {
	if c.Capture.URL != "" {
		return c.Capture.URL
	}
	return "http://" + c.Listen + "/calendar?mode=" + c.Calendar.DefaultMode
}

// Load loads configuration from the given YAML path.
//
// A missing file is created with defaults (0600) and the defaults are
// returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".dbcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience wrapper around the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
