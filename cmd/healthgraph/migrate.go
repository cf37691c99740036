package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/BaSui01/healthgraph/internal/migration"
)

// =============================================================================
// 🗄️ Database Migration Commands
// =============================================================================

// runMigrate handles the migrate command and its subcommands
func runMigrate(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 1 {
		printMigrateUsage(stdout)
		return errors.New("missing migrate subcommand")
	}
	sub, subargs := rest[0], rest[1:]
	if sub == "help" || sub == "-h" || sub == "--help" {
		printMigrateUsage(stdout)
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Database.Driver == "" {
		return errors.New("database driver not configured")
	}
	logCfg := cfg.Log
	logCfg.OutputPaths = []string{"stderr"}
	logger := initLogger(logCfg)
	defer func() { _ = logger.Sync() }()

	m, err := migration.Open(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	switch sub {
	case "up":
		return m.Up(ctx)
	case "down":
		return m.Down(ctx)
	case "status":
		statuses, err := m.Status(ctx)
		if err != nil {
			return err
		}
		info, err := m.Info(ctx)
		if err != nil {
			return err
		}
		return migration.WriteStatus(stdout, statuses, info)
	case "version":
		version, dirty, err := m.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "version: %d  dirty: %t\n", version, dirty)
		return nil
	case "goto":
		v, err := versionArg(subargs)
		if err != nil {
			return err
		}
		return m.Goto(ctx, uint(v))
	case "force":
		v, err := versionArg(subargs)
		if err != nil {
			return err
		}
		return m.Force(ctx, v)
	default:
		printMigrateUsage(stdout)
		return fmt.Errorf("unknown migrate subcommand: %s", sub)
	}
}

func versionArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, errors.New("expected exactly one version argument")
	}
	v, err := strconv.Atoi(args[0])
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version %q", args[0])
	}
	return v, nil
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage(w io.Writer) {
	fmt.Fprintln(w, `Chat Database Migration Commands

Usage:
  healthgraph migrate [--config <path>] <subcommand> [args]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  status      Show every migration and whether it is applied
  version     Show current migration version
  goto <v>    Migrate up or down to version v
  force <v>   Set version v without running migrations (repairs a dirty state)`)
}
