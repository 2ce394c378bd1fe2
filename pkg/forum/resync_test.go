package forum_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goverflow/goverflow/pkg/store"
)

// populate drives a realistic slice of forum activity through the bridge so
// resync tests have a graph worth comparing against.
func populate(t *testing.T, fx *fixture) {
	t.Helper()
	ctx := context.Background()

	alice := fx.register(t, "alice")
	bob := fx.register(t, "bob")
	carol := fx.register(t, "carol")
	mod := fx.register(t, "mod")

	q := fx.ask(t, alice, "How do the stores converge?", "go", "mongodb")
	fx.ask(t, bob, "A second discussion", "go")

	a, err := fx.forum.AddAnswer(ctx, q.ID, bob.Ref(), "like this")
	require.NoError(t, err)
	c, err := fx.forum.CommentQuestion(ctx, q.ID, carol.Ref(), "good question")
	require.NoError(t, err)
	ac, err := fx.forum.CommentAnswer(ctx, q.ID, a.ID, alice.Ref(), "thanks")
	require.NoError(t, err)

	_, err = fx.forum.VoteAnswer(ctx, q.ID, a.ID, alice.Ref(), true)
	require.NoError(t, err)
	_, err = fx.forum.VoteAnswer(ctx, q.ID, a.ID, carol.Ref(), false)
	require.NoError(t, err)
	_, err = fx.forum.VoteQuestionComment(ctx, q.ID, c.ID, bob.Ref(), true)
	require.NoError(t, err)

	// A cast and retracted vote must leave no trace either way.
	_, err = fx.forum.VoteAnswerComment(ctx, q.ID, a.ID, ac.ID, carol.Ref(), true)
	require.NoError(t, err)
	_, err = fx.forum.RetractAnswerCommentVote(ctx, q.ID, a.ID, ac.ID, carol.Ref())
	require.NoError(t, err)

	_, err = fx.forum.Subscribe(ctx, q.ID, carol.Ref())
	require.NoError(t, err)
	_, err = fx.forum.Subscribe(ctx, q.ID, bob.Ref())
	require.NoError(t, err)
	_, err = fx.forum.Unsubscribe(ctx, q.ID, bob.Ref())
	require.NoError(t, err)

	_, err = fx.forum.FollowTag(ctx, bob.Ref(), "go")
	require.NoError(t, err)
	// alice introduced "go" through her question; carol defines it, so the
	// tag carries two distinct creator edges.
	_, err = fx.forum.DefineTag(ctx, "go", "the language", carol.Ref())
	require.NoError(t, err)

	_, err = fx.forum.SetSolved(ctx, q.ID, true)
	require.NoError(t, err)
	_, err = fx.forum.HideQuestionComment(ctx, q.ID, c.ID, mod.Ref(), "noise")
	require.NoError(t, err)
}

func TestResyncReproducesMirroredGraph(t *testing.T) {
	fx := newFixture(t)
	populate(t, fx)

	mirroredNodes, mirroredEdges := fx.graph.Dump()
	require.NotEmpty(t, mirroredNodes)
	require.NotEmpty(t, mirroredEdges)

	report, err := fx.forum.Resync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Skipped)

	rebuiltNodes, rebuiltEdges := fx.graph.Dump()
	assert.Equal(t, mirroredNodes, rebuiltNodes,
		"replaying the primary store must write the same nodes the bridge mirrored")
	assert.Equal(t, mirroredEdges, rebuiltEdges,
		"replaying the primary store must write the same edges the bridge mirrored")
}

func TestResyncKeepsImplicitCreatorEdge(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	alice := fx.register(t, "alice")
	bob := fx.register(t, "bob")

	fx.ask(t, alice, "What about caching?", "caching")
	_, err := fx.forum.DefineTag(ctx, "caching", "keeping things close", bob.Ref())
	require.NoError(t, err)
	require.True(t, fx.graph.HasEdge(alice.ID, store.EdgeCreated, "caching"))
	require.True(t, fx.graph.HasEdge(bob.ID, store.EdgeCreated, "caching"))

	_, err = fx.forum.Resync(ctx)
	require.NoError(t, err)

	assert.True(t, fx.graph.HasEdge(alice.ID, store.EdgeCreated, "caching"),
		"the asker who introduced the tag keeps the creator edge across a replay")
	assert.True(t, fx.graph.HasEdge(bob.ID, store.EdgeCreated, "caching"),
		"the definer recorded on the tag document keeps theirs")
}

func TestResyncIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	populate(t, fx)
	ctx := context.Background()

	_, err := fx.forum.Resync(ctx)
	require.NoError(t, err)
	firstNodes, firstEdges := fx.graph.Dump()

	_, err = fx.forum.Resync(ctx)
	require.NoError(t, err)
	secondNodes, secondEdges := fx.graph.Dump()

	assert.Equal(t, firstNodes, secondNodes)
	assert.Equal(t, firstEdges, secondEdges)
}

func TestResyncReport(t *testing.T) {
	fx := newFixture(t)
	populate(t, fx)

	report, err := fx.forum.Resync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), report.Users)
	assert.Equal(t, int64(2), report.Questions)
	assert.Equal(t, int64(2), report.Tags)
	assert.Equal(t, int64(0), report.Skipped)
}

func TestResyncHealsLenientDrift(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	alice := fx.register(t, "alice")
	q := fx.ask(t, alice, "Question", "go")

	// Graph store goes away; the lenient bridge keeps serving writes.
	fx.graph.WriteErr = errors.New("bolt connection refused")
	a, err := fx.forum.AddAnswer(ctx, q.ID, alice.Ref(), "lost on the mirror side")
	require.NoError(t, err)
	require.NotNil(t, a)
	require.False(t, fx.graph.HasNode(store.LabelAnswer, a.ID), "the write was dropped")

	// Graph store comes back; a resync closes the gap.
	fx.graph.WriteErr = nil
	_, err = fx.forum.Resync(ctx)
	require.NoError(t, err)

	assert.True(t, fx.graph.HasNode(store.LabelAnswer, a.ID))
	assert.True(t, fx.graph.HasEdge(a.ID, store.EdgeAnswered, q.ID))
	assert.True(t, fx.graph.HasEdge(alice.ID, store.EdgeWrote, a.ID))
}

func TestResyncFailsWhenClearFails(t *testing.T) {
	fx := newFixture(t)
	populate(t, fx)

	fx.graph.WriteErr = errors.New("bolt connection refused")
	// The lenient policy never applies to the wipe: resyncing into a graph
	// that cannot be cleared would silently merge stale state.
	_, err := fx.forum.Resync(context.Background())
	require.Error(t, err)
}
