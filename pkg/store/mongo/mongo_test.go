package mongo_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goverflow/goverflow/pkg/models"
	"github.com/goverflow/goverflow/pkg/store/mongo"
)

// newStore connects to the deployment named by MONGODB_TEST_URI, using a
// fresh database per test so runs never see each other's documents. Skipped
// when the variable is unset.
func newStore(t *testing.T) *mongo.Store {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}
	s, err := mongo.New(context.Background(), uri, "goverflow_test_"+models.NewID(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func seedUser(t *testing.T, s *mongo.Store, name string) *models.User {
	t.Helper()
	u := &models.User{
		ID:         models.NewID(),
		Registered: time.Now().UTC(),
		Email:      name + "@example.com",
		Username:   name,
	}
	require.NoError(t, s.InsertUser(context.Background(), u))
	return u
}

func seedQuestion(t *testing.T, s *mongo.Store, author *models.User, title string, tags ...string) *models.Question {
	t.Helper()
	now := time.Now().UTC()
	q := &models.Question{
		ID:       models.NewID(),
		Created:  now,
		AuthorID: author.ID,
		Title:    title,
		Text:     "body of " + title,
		Tags:     tags,
	}
	_, err := s.InsertQuestion(context.Background(), q, models.QuestionUpdate{
		Title:    title,
		Created:  now,
		AuthorID: author.ID,
		Tags:     tags,
	})
	require.NoError(t, err)
	return q
}

func TestSubscribeGuard(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	q := seedQuestion(t, s, alice, "How do subscriptions work?", "go")

	applied, err := s.Subscribe(ctx, q.ID, bob.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.Subscribe(ctx, q.ID, bob.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, applied, "the exists-guard rejects a second subscribe")

	u, err := s.User(ctx, bob.ID)
	require.NoError(t, err)
	require.Contains(t, u.Updates, q.ID)
	assert.Equal(t, q.Title, u.Updates[q.ID].Title)

	applied, err = s.Unsubscribe(ctx, q.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.Unsubscribe(ctx, q.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestInsertQuestionReportsNewTags(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")

	first := seedQuestion(t, s, alice, "first", "alpha", "beta")
	require.NotNil(t, first)

	now := time.Now().UTC()
	second := &models.Question{
		ID:       models.NewID(),
		Created:  now,
		AuthorID: alice.ID,
		Title:    "second",
		Text:     "body",
		Tags:     []string{"alpha", "gamma"},
	}
	created, err := s.InsertQuestion(ctx, second, models.QuestionUpdate{
		Title:    second.Title,
		Created:  now,
		AuthorID: alice.ID,
		Tags:     second.Tags,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma"}, created, "only the tag the upsert created is reported")

	tag, err := s.Tag(ctx, "alpha")
	require.NoError(t, err)
	require.NotNil(t, tag)
	assert.Equal(t, int64(2), tag.CountQuestions)
	assert.False(t, tag.Defined)

	u, err := s.User(ctx, alice.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta", "gamma"}, u.CreatedTags)
}

func TestVotesRequireLiveTargets(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	q := seedQuestion(t, s, alice, "Votes and moderation", "go")

	a := &models.Answer{
		ID:       models.NewID(),
		AuthorID: bob.ID,
		Created:  time.Now().UTC(),
		Text:     "an answer",
	}
	_, applied, err := s.AppendAnswer(ctx, q.ID, a)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = s.SetAnswerVote(ctx, q.ID, a.ID, alice.ID, models.Vote{Useful: true})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.RemoveAnswer(ctx, q.ID, a.ID, models.RemovedPost{
		ModeratorID: alice.ID, Reason: "spam", At: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = s.SetAnswerVote(ctx, q.ID, a.ID, bob.ID, models.Vote{Useful: true})
	require.NoError(t, err)
	assert.False(t, applied, "a hidden answer takes no new votes")

	applied, err = s.UnsetAnswerVote(ctx, q.ID, a.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, applied, "nor retractions; the cast votes stay on record")
}

func TestFollowMissingTagAborts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")

	applied, err := s.FollowTag(ctx, alice.ID, "no-such-tag")
	require.NoError(t, err)
	assert.False(t, applied)

	if s.TransactionsSupported() {
		// The abort rolls the follower-set update back.
		u, err := s.User(ctx, alice.ID)
		require.NoError(t, err)
		assert.Empty(t, u.FollowedTags)
	}
}
