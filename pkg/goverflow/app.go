package goverflow

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/goverflow/goverflow/pkg/forum"
	"github.com/goverflow/goverflow/pkg/namecache"
	"github.com/goverflow/goverflow/pkg/store"
	"github.com/goverflow/goverflow/pkg/store/mongo"
	"github.com/goverflow/goverflow/pkg/store/neo4j"
)

// Config holds application configuration, populated by Parse from flags and
// environment variables.
type Config struct {
	// Primary store
	MongoURI string
	MongoDB  string

	// Graph projection
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	// StrictProjection surfaces projection write failures to callers
	// instead of logging and carrying on.
	StrictProjection bool

	// Display-name cache. An empty RedisAddr disables the cache and names
	// resolve straight from the primary store.
	RedisAddr     string
	RedisPassword string
	NameCacheTTL  time.Duration

	ServerPort string
}

// App holds the wired application: both stores behind the forum domain
// layer.
type App struct {
	forum  *forum.Forum
	config *Config
	log    zerolog.Logger
}

// New connects to the configured stores and builds the application.
func New(ctx context.Context, config *Config, log zerolog.Logger) (*App, error) {
	primary, err := mongo.New(ctx, config.MongoURI, config.MongoDB, log)
	if err != nil {
		return nil, err
	}

	policy := store.FaultLenient
	if config.StrictProjection {
		policy = store.FaultStrict
	}
	graph, err := neo4j.New(ctx, config.Neo4jURI, config.Neo4jUser, config.Neo4jPassword, policy, log)
	if err != nil {
		primary.Close(ctx)
		return nil, err
	}

	var names *namecache.Cache
	if config.RedisAddr != "" {
		names = namecache.New(config.RedisAddr, config.RedisPassword, config.NameCacheTTL)
		log.Info().Str("addr", config.RedisAddr).Dur("ttl", config.NameCacheTTL).Msg("name cache enabled")
	}

	return &App{
		forum:  forum.New(primary, graph, names, log),
		config: config,
		log:    log,
	}, nil
}

func (a *App) Close(ctx context.Context) error {
	return a.forum.Close(ctx)
}

// Forum exposes the domain layer, useful for tests.
func (a *App) Forum() *forum.Forum {
	return a.forum
}

// ResyncOnce runs a single full projection rebuild and logs the report.
func (a *App) ResyncOnce(ctx context.Context, _ *ResyncCommand) error {
	report, err := a.forum.Resync(ctx)
	if err != nil {
		return err
	}
	a.log.Info().
		Int64("users", report.Users).
		Int64("questions", report.Questions).
		Int64("tags", report.Tags).
		Int64("skipped", report.Skipped).
		Msg("projection rebuilt")
	return nil
}

// getEnv returns the environment variable value, or the default when unset
// or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
