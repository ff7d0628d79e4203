package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"reading-platform/internal/config"
	"reading-platform/internal/database"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/zap"
)

const usage = `Usage: migrate <command> [arg]

Commands:
  up           apply all pending migrations
  down         roll back all migrations
  steps N      apply (N > 0) or roll back (N < 0) exactly |N| migrations
  version      print the current schema version
  force V      set the schema version without running migrations (clears dirty flag)
`

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: could not load .env file: %v\n", err)
	}
	initLogger()

	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	timeout := flag.Duration("timeout", 2*time.Minute, "database connection timeout")
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadDatabaseConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load database configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := database.NewPool(ctx, cfg, zap.NewNop())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if err := run(database.NewMigrator(pool), flag.Args()); err != nil {
		log.Error().Err(err).Str("command", flag.Arg(0)).Msg("migration command failed")
		pool.Close()
		os.Exit(1)
	}
}

type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	ForceVersion(version uint) error
	Version() (uint, bool, error)
}

func run(m migrator, args []string) error {
	switch args[0] {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "steps":
		n, err := intArg(args)
		if err != nil {
			return err
		}
		return m.Steps(n)
	case "force":
		v, err := intArg(args)
		if err != nil {
			return err
		}
		if v < 0 {
			return fmt.Errorf("force: version must not be negative, got %d", v)
		}
		return m.ForceVersion(uint(v))
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("current schema version")
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func intArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s: missing numeric argument", args[0])
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", args[0], args[1], err)
	}
	return n, nil
}

// loadDatabaseConfig читает только настройки PostgreSQL: мигратору не нужны JWT и AI.
func loadDatabaseConfig() (*config.Config, error) {
	var cfg config.Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	password, err := config.ReadSecret("DB_PASSWORD", "db_password", true)
	if err != nil {
		return nil, err
	}
	cfg.DBPassword = password
	return &cfg, nil
}

func initLogger() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	level := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		level = lvl
	}
	zerolog.SetGlobalLevel(level)
}
