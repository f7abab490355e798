package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/triagekit/triagepipe/internal/api"
	"github.com/triagekit/triagepipe/internal/catalog"
	"github.com/triagekit/triagepipe/internal/rules"
	"github.com/triagekit/triagepipe/internal/store"
	"github.com/triagekit/triagepipe/internal/triage"
	"github.com/triagekit/triagepipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for TriagePipe state data
	DefaultStateDir = "/var/lib/triagepipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "triagepipe.db"
)

// Config holds environment configuration
type Config struct {
	DBDriver    string
	DatabaseDSN string
	StateDir    string
	APIAddr     string
	CatalogPath string
	RulesPath   string
}

// Flags holds command line flag values
type Flags struct {
	dbDriver    *string
	dbDSN       *string
	stateDir    *string
	apiAddr     *string
	catalogPath *string
	rulesPath   *string
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	cat, err := loadCatalog(flags)
	if err != nil {
		slog.Error("Failed to load complaint catalog", "error", err)
		os.Exit(1)
	}
	engine, err := loadRules(cat, flags)
	if err != nil {
		slog.Error("Failed to load rule table", "error", err)
		os.Exit(1)
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	svc := triage.NewService(cat, engine, st)
	server := api.NewServer(svc, api.WithAddr(*flags.apiAddr))

	slog.Info("Bootstrapping TriagePipe", "db_driver", *flags.dbDriver, "api_addr", *flags.apiAddr)
	if err := server.Run(); err != nil {
		slog.Error("TriagePipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("TriagePipe exited successfully")
}

// initializeLogger sets up structured logging; TRIAGEPIPE_DEBUG enables debug level.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("TRIAGEPIPE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	return Config{
		DBDriver:    util.GetenvDefault("TRIAGEPIPE_DB_DRIVER", "sqlite3"),
		DatabaseDSN: os.Getenv("DATABASE_URL"),
		StateDir:    util.GetenvDefault("TRIAGEPIPE_STATE_DIR", DefaultStateDir),
		APIAddr:     util.GetenvDefault("TRIAGEPIPE_API_ADDR", api.DefaultAddr),
		CatalogPath: os.Getenv("TRIAGEPIPE_CATALOG_FILE"),
		RulesPath:   os.Getenv("TRIAGEPIPE_RULES_FILE"),
	}
}

// parseCommandLineFlags parses flags with environment values as defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		dbDriver:    flag.String("db-driver", config.DBDriver, "database driver: sqlite3, postgres, or memory"),
		dbDSN:       flag.String("db-dsn", config.DatabaseDSN, "database DSN (file path for sqlite3)"),
		stateDir:    flag.String("state-dir", config.StateDir, "directory for state data"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server listen address"),
		catalogPath: flag.String("catalog-file", config.CatalogPath, "complaint catalog YAML (empty for embedded default)"),
		rulesPath:   flag.String("rules-file", config.RulesPath, "rule table YAML (empty for embedded default)"),
	}
	flag.Parse()
	return flags
}

func loadCatalog(flags Flags) (*catalog.Catalog, error) {
	var opts []catalog.Option
	if *flags.catalogPath != "" {
		opts = append(opts, catalog.WithPath(*flags.catalogPath))
	}
	return catalog.Load(opts...)
}

func loadRules(cat *catalog.Catalog, flags Flags) (*rules.Engine, error) {
	var opts []rules.Option
	if *flags.rulesPath != "" {
		opts = append(opts, rules.WithPath(*flags.rulesPath))
	}
	return rules.Load(cat, opts...)
}

// buildStore selects a storage backend from the configured driver.
func buildStore(flags Flags) (store.Store, error) {
	switch *flags.dbDriver {
	case "postgres":
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	case "memory":
		return store.NewInMemoryStore(), nil
	default:
		dsn := *flags.dbDSN
		if dsn == "" {
			dsn = filepath.Join(*flags.stateDir, DefaultDBFileName)
		}
		return store.NewSQLiteStore(store.WithDSN(dsn))
	}
}
