package goverflow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goverflow/goverflow/pkg/goverflow"
)

func TestParse(t *testing.T) {
	t.Run("RunCommand", func(t *testing.T) {
		cmd, config, err := goverflow.Parse([]string{"run"})
		require.NoError(t, err)
		assert.Equal(t, "run", cmd.Name())
		assert.Equal(t, "8080", config.ServerPort)
		assert.False(t, config.StrictProjection)
		assert.Equal(t, 10*time.Minute, config.NameCacheTTL)
	})

	t.Run("ResyncCommand", func(t *testing.T) {
		cmd, _, err := goverflow.Parse([]string{"resync"})
		require.NoError(t, err)
		assert.Equal(t, "resync", cmd.Name())
	})

	t.Run("Flags", func(t *testing.T) {
		cmd, config, err := goverflow.Parse([]string{"-port=9090", "-strict-projection", "-name-cache-ttl=30s", "run"})
		require.NoError(t, err)
		assert.Equal(t, "run", cmd.Name())
		assert.Equal(t, "9090", config.ServerPort)
		assert.True(t, config.StrictProjection)
		assert.Equal(t, 30*time.Second, config.NameCacheTTL)
	})

	t.Run("MissingSubcommand", func(t *testing.T) {
		_, _, err := goverflow.Parse(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "subcommand required")
	})

	t.Run("UnknownSubcommand", func(t *testing.T) {
		_, _, err := goverflow.Parse([]string{"launch"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown command: launch")
	})

	t.Run("EnvironmentDefaults", func(t *testing.T) {
		_, config, err := goverflow.Parse([]string{"run"})
		require.NoError(t, err)
		assert.Equal(t, "mongodb://localhost:27017", config.MongoURI)
		assert.Equal(t, "goverflow", config.MongoDB)
		assert.Equal(t, "bolt://localhost:7687", config.Neo4jURI)
		assert.Empty(t, config.RedisAddr, "the name cache is off unless configured")
	})

	t.Run("EnvironmentOverrides", func(t *testing.T) {
		t.Setenv("MONGODB_URI", "mongodb://db:27017")
		t.Setenv("REDIS_ADDR", "cache:6379")

		_, config, err := goverflow.Parse([]string{"run"})
		require.NoError(t, err)
		assert.Equal(t, "mongodb://db:27017", config.MongoURI)
		assert.Equal(t, "cache:6379", config.RedisAddr)
	})
}
