// Package config resolves runtime settings. Precedence, highest first:
// command line flags, environment variables, the optional TOML file, built-in defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"todotracker/internal/util"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// Config holds every runtime setting.
type Config struct {
	Addr     string
	Identity string
	Backend  string
	DBPath   string
	MongoURI string
	MongoDB  string
	Redis    string
	CacheTTL time.Duration
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:     ":8080",
		Identity: "admin",
		Backend:  BackendSQLite,
		DBPath:   "data/todo.db",
		MongoURI: "mongodb://localhost:27017",
		MongoDB:  "todo",
		CacheTTL: time.Minute,
	}
}

type fileConfig struct {
	Addr     string `toml:"addr"`
	Identity string `toml:"identity"`
	Backend  string `toml:"backend"`
	DBPath   string `toml:"db_path"`
	MongoURI string `toml:"mongo_uri"`
	MongoDB  string `toml:"mongo_db"`
	Redis    string `toml:"redis_addr"`
	CacheTTL string `toml:"cache_ttl"`
}

// Load parses args (without the program name) on top of the environment and,
// when -config or TODO_CONFIG names one, a TOML file.
func Load(args []string) (Config, error) {
	cfg := Default()

	path := util.EnvOrDefault("TODO_CONFIG", "")
	for i, arg := range args {
		switch {
		case arg == "-config" || arg == "--config":
			if i+1 < len(args) {
				path = args[i+1]
			}
		case strings.HasPrefix(arg, "-config="), strings.HasPrefix(arg, "--config="):
			path = arg[strings.Index(arg, "=")+1:]
		}
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	fs := flag.NewFlagSet("todo", flag.ContinueOnError)
	fs.String("config", path, "Path to an optional TOML config file")
	fs.StringVar(&cfg.Addr, "addr", util.EnvOrDefault("TODO_ADDR", cfg.Addr), "HTTP listen address")
	fs.StringVar(&cfg.Identity, "identity", util.EnvOrDefault("TODO_IDENTITY", cfg.Identity), "Identity used as creator and assignee by default")
	fs.StringVar(&cfg.Backend, "backend", util.EnvOrDefault("TODO_BACKEND", cfg.Backend), "Storage backend: sqlite or mongo")
	fs.StringVar(&cfg.DBPath, "db", util.EnvOrDefault("TODO_DB_PATH", cfg.DBPath), "Path to sqlite database file")
	fs.StringVar(&cfg.MongoURI, "mongo-uri", util.EnvOrDefault("TODO_MONGO_URI", cfg.MongoURI), "MongoDB connection string")
	fs.StringVar(&cfg.MongoDB, "mongo-db", util.EnvOrDefault("TODO_MONGO_DB", cfg.MongoDB), "MongoDB database name")
	fs.StringVar(&cfg.Redis, "redis", util.EnvOrDefault("TODO_REDIS_ADDR", cfg.Redis), "Redis address for the query cache; empty disables it")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", util.EnvDurationOrDefault("TODO_CACHE_TTL", cfg.CacheTTL), "Lifetime of cached query results")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// Validate checks settings that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("sqlite backend needs a database path")
		}
	case BackendMongo:
		if c.MongoURI == "" || c.MongoDB == "" {
			return fmt.Errorf("mongo backend needs a uri and a database")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Identity == "" {
		return fmt.Errorf("identity must not be empty")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}
	return nil
}

func applyFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Addr, fc.Addr)
	set(&cfg.Identity, fc.Identity)
	set(&cfg.Backend, fc.Backend)
	set(&cfg.DBPath, fc.DBPath)
	set(&cfg.MongoURI, fc.MongoURI)
	set(&cfg.MongoDB, fc.MongoDB)
	set(&cfg.Redis, fc.Redis)
	if fc.CacheTTL != "" {
		d, err := time.ParseDuration(fc.CacheTTL)
		if err != nil {
			return fmt.Errorf("decode config %s: cache_ttl: %w", path, err)
		}
		cfg.CacheTTL = d
	}
	return nil
}
