package goverflow

import (
	"context"
	"fmt"

	"github.com/goverflow/goverflow/pkg/logger"
)

// Main is the entry point for the goverflow application. It parses the
// arguments, wires the stores and executes the chosen command. Tests can
// call it directly without building the binary.
//
// # Environment Variables
//
//	MONGODB_URI     - primary store connection string (default: mongodb://localhost:27017)
//	MONGODB_DB      - primary store database name (default: goverflow)
//	NEO4J_URI       - graph projection bolt URL (default: bolt://localhost:7687)
//	NEO4J_USER      - graph projection username (default: neo4j)
//	NEO4J_PASS      - graph projection password (default: neo4j)
//	REDIS_ADDR      - display-name cache address; empty disables the cache
//	REDIS_PASSWORD  - display-name cache password
//	LOG_PATH        - append JSON logs to this file instead of stdout
func Main(ctx context.Context, args []string) error {
	cmd, config, err := Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	build := logger.New()
	if path := getEnv("LOG_PATH", ""); path != "" {
		build.ToPath(path)
	}
	log, logFile, err := build.Make()
	if err != nil {
		return fmt.Errorf("failed to open log output: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	app, err := New(ctx, config, log)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close(context.WithoutCancel(ctx))

	switch c := cmd.(type) {
	case *RunCommand:
		if err := app.Run(ctx, c); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case *ResyncCommand:
		if err := app.ResyncOnce(ctx, c); err != nil {
			return fmt.Errorf("resync failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown command type: %T", cmd)
	}
	return nil
}
