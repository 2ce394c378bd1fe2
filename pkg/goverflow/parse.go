package goverflow

import (
	"flag"
	"fmt"
	"time"
)

// Parse parses command line arguments and returns the command to execute,
// the shared application configuration, and any error that occurred.
func Parse(args []string) (Command, *Config, error) {
	flagSet := flag.NewFlagSet("goverflow", flag.ContinueOnError)

	var (
		port         = flagSet.String("port", "8080", "Server port")
		strict       = flagSet.Bool("strict-projection", false, "Fail requests when the graph projection cannot be written")
		nameCacheTTL = flagSet.Duration("name-cache-ttl", 10*time.Minute, "TTL for cached display names")
	)

	if err := flagSet.Parse(args); err != nil {
		return nil, nil, err
	}

	remainingArgs := flagSet.Args()
	if len(remainingArgs) == 0 {
		return nil, nil, fmt.Errorf(`subcommand required

Usage: goverflow [flags] <command>

Commands:
  run       Start the goverflow server
  resync    Rebuild the graph projection from the primary store

Examples:
  goverflow run                                  # Serve with lenient projection faults
  goverflow -strict-projection run               # Surface projection failures to callers
  goverflow -port=8090 run
  goverflow resync                               # One-off projection rebuild`)
	}

	var cmd Command
	switch remainingArgs[0] {
	case "run":
		cmd = &RunCommand{}
	case "resync":
		cmd = &ResyncCommand{}
	default:
		return nil, nil, fmt.Errorf("unknown command: %s\n\nValid commands: run, resync", remainingArgs[0])
	}

	config := &Config{
		ServerPort:       *port,
		StrictProjection: *strict,
		NameCacheTTL:     *nameCacheTTL,
	}

	// Load configuration from environment
	config.MongoURI = getEnv("MONGODB_URI", "mongodb://localhost:27017")
	config.MongoDB = getEnv("MONGODB_DB", "goverflow")
	config.Neo4jURI = getEnv("NEO4J_URI", "bolt://localhost:7687")
	config.Neo4jUser = getEnv("NEO4J_USER", "neo4j")
	config.Neo4jPassword = getEnv("NEO4J_PASS", "neo4j")
	config.RedisAddr = getEnv("REDIS_ADDR", "")
	config.RedisPassword = getEnv("REDIS_PASSWORD", "")

	return cmd, config, nil
}
