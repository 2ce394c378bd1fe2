package neo4j_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goverflow/goverflow/pkg/models"
	"github.com/goverflow/goverflow/pkg/store"
	"github.com/goverflow/goverflow/pkg/store/neo4j"
)

// newGraph connects to the instance named by NEO4J_TEST_URI and wipes it so
// every test starts from an empty graph. Skipped when the variable is unset.
func newGraph(t *testing.T) *neo4j.Graph {
	t.Helper()
	uri := os.Getenv("NEO4J_TEST_URI")
	if uri == "" {
		t.Skip("NEO4J_TEST_URI not set")
	}
	user := os.Getenv("NEO4J_TEST_USER")
	if user == "" {
		user = "neo4j"
	}
	g, err := neo4j.New(context.Background(), uri, user, os.Getenv("NEO4J_TEST_PASSWORD"), store.FaultStrict, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { g.Close(context.Background()) })

	require.NoError(t, g.ClearAll(context.Background()))
	return g
}

func mergeAsked(t *testing.T, g *neo4j.Graph, userID, name, questionID, title string, tags ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, g.MergeNode(ctx, store.LabelUser, userID, map[string]any{"name": name}))
	require.NoError(t, g.MergeNode(ctx, store.LabelQuestion, questionID, map[string]any{
		"title": title, "created": time.Now().UTC(), "solved": false,
	}))
	require.NoError(t, g.MergeEdge(ctx, store.LabelUser, userID, store.EdgeAsked, store.LabelQuestion, questionID, nil))
	for _, tag := range tags {
		require.NoError(t, g.MergeNode(ctx, store.LabelTag, tag, nil))
		require.NoError(t, g.MergeEdge(ctx, store.LabelQuestion, questionID, store.EdgeAbout, store.LabelTag, tag, nil))
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	g := newGraph(t)
	ctx := context.Background()
	userID, questionID := models.NewID(), models.NewID()

	for i := 0; i < 2; i++ {
		mergeAsked(t, g, userID, "alice", questionID, "How do merges behave?", "go")
	}

	n, err := g.CountAskedQuestions(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "replaying the merges must not duplicate anything")

	asked, err := g.AskedQuestions(ctx, userID, 0, 10)
	require.NoError(t, err)
	require.Len(t, asked, 1)
	assert.Equal(t, "How do merges behave?", asked[0].Title)
	assert.Equal(t, "alice", asked[0].AuthorName)
	assert.Equal(t, []string{"go"}, asked[0].Tags)
}

func TestTagCoUsageCounts(t *testing.T) {
	g := newGraph(t)
	userID := models.NewID()

	mergeAsked(t, g, userID, "alice", models.NewID(), "one", "go", "mongodb")
	mergeAsked(t, g, userID, "alice", models.NewID(), "two", "go", "mongodb")
	mergeAsked(t, g, userID, "alice", models.NewID(), "three", "go", "neo4j")

	usages, err := g.TagCoUsages(context.Background(), "go")
	require.NoError(t, err)
	require.Len(t, usages, 2)
	assert.Equal(t, models.TagCoUsage{Tag: "mongodb", CommonUsages: 2}, usages[0])
	assert.Equal(t, models.TagCoUsage{Tag: "neo4j", CommonUsages: 1}, usages[1])
}

func TestVoteStatsWithoutActivity(t *testing.T) {
	g := newGraph(t)
	ctx := context.Background()
	userID := models.NewID()
	require.NoError(t, g.MergeNode(ctx, store.LabelUser, userID, map[string]any{"name": "lurker"}))

	stats, err := g.VoteStats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.VoteStats{}, stats, "a user with no content tallies all zeros")
}
