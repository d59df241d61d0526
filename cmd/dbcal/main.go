package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"dbcal/internal/config"
	"dbcal/internal/ics"
	appLog "dbcal/internal/log"
	"dbcal/internal/store"
)

const (
	defaultConfigPath = "./dbcal.yaml"
	configEnv         = "DBCAL_CONFIG"
)

var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "dbcal",
		Short: "Collections of items on a month, week and day calendar",
		Long: `dbcal keeps user-defined collections in SQLite, expands their recurring
items and serves them as month, week and day calendars.

Examples:
  dbcal serve                                  # HTTP API, calendar pages and feed refresh
  dbcal agenda --mode week                     # print this week's occurrences
  dbcal import                                 # import every configured ICS feed once
  dbcal export --collection tasks -o tasks.ics # write a collection as iCalendar
  dbcal snapshot -o preview.png                # capture the calendar page as PNG`,
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to config file (default $"+configEnv+" or "+defaultConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(serveCmd, agendaCmd, importCmd, exportCmd, snapshotCmd)
}

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		appLog.Error("dbcal failed", err)
		os.Exit(1)
	}
}

func setupLogging(_ *cobra.Command, _ []string) error {
	if logLevel != "" {
		appLog.SetLevel(appLog.ParseLevel(logLevel))
	}
	return nil
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv(configEnv); p != "" {
		return p
	}
	return defaultConfigPath
}

// env bundles what every command needs.
type env struct {
	cfg   *config.Config
	loc   *time.Location
	store *store.Store
}

func openEnv() (*env, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if logLevel == "" {
		appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	}

	loc, err := cfg.Location()
	if err != nil {
		appLog.Warn("invalid timezone, using local", "timezone", cfg.Timezone, "err", err)
	}

	st, err := store.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Database, err)
	}
	appLog.Debug("config loaded",
		"path", path,
		"database", cfg.Database,
		"timezone", loc.String(),
		"feeds", len(cfg.Feeds),
	)
	return &env{cfg: cfg, loc: loc, store: st}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

// fetcher keeps the feed cache next to the database.
func (e *env) fetcher() *ics.Fetcher {
	return ics.NewFetcher(filepath.Join(filepath.Dir(e.cfg.Database), "ics-cache"))
}
