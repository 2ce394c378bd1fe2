package goverflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goverflow/goverflow/pkg/forum"
	"github.com/goverflow/goverflow/pkg/models"
	"github.com/goverflow/goverflow/pkg/store/storetest"
)

func newTestApp(t *testing.T) (*App, *storetest.Primary) {
	t.Helper()
	primary := storetest.NewPrimary()
	graph := storetest.NewProjection()
	return &App{
		forum:  forum.New(primary, graph, nil, zerolog.Nop()),
		config: &Config{ServerPort: "0"},
		log:    zerolog.Nop(),
	}, primary
}

// do runs one request through the full router, as a client identified by
// userID would send it.
func do(t *testing.T, app *App, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(data)
	} else {
		payload = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, payload)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	app.router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func registerUser(t *testing.T, app *App, name string) models.User {
	t.Helper()
	rec := do(t, app, "POST", "/api/users", "", map[string]string{
		"username": name,
		"email":    name + "@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.User](t, rec)
}

func askQuestion(t *testing.T, app *App, authorID, title string) models.Question {
	t.Helper()
	rec := do(t, app, "POST", "/api/questions", authorID, map[string]any{
		"title": title,
		"text":  "body",
		"tags":  []string{"go"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.Question](t, rec)
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	rec := do(t, app, "GET", "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]any](t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), "every response carries a request id")
}

func TestUserEndpoints(t *testing.T) {
	app, _ := newTestApp(t)
	u := registerUser(t, app, "alice")

	t.Run("Get", func(t *testing.T) {
		rec := do(t, app, "GET", "/api/users/"+u.ID, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", decode[models.User](t, rec).Username)
	})

	t.Run("GetUnknown", func(t *testing.T) {
		rec := do(t, app, "GET", "/api/users/"+models.NewID(), "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("RegisterMissingFields", func(t *testing.T) {
		rec := do(t, app, "POST", "/api/users", "", map[string]string{"username": "nobody"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthentication(t *testing.T) {
	app, primary := newTestApp(t)
	alice := registerUser(t, app, "alice")

	t.Run("MissingHeader", func(t *testing.T) {
		rec := do(t, app, "POST", "/api/questions", "", map[string]any{
			"title": "t", "text": "b", "tags": []string{"go"},
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		rec := do(t, app, "POST", "/api/questions", models.NewID(), map[string]any{
			"title": "t", "text": "b", "tags": []string{"go"},
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("BannedUser", func(t *testing.T) {
		admin := registerUser(t, app, "admin")
		primary.PromoteToAdmin(admin.ID)
		rec := do(t, app, "POST", "/api/users/"+alice.ID+"/ban", admin.ID, map[string]any{"reason": "abuse"})
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, decode[appliedResponse](t, rec).Applied)

		rec = do(t, app, "POST", "/api/questions", alice.ID, map[string]any{
			"title": "t", "text": "b", "tags": []string{"go"},
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestQuestionLifecycle(t *testing.T) {
	app, _ := newTestApp(t)
	alice := registerUser(t, app, "alice")
	bob := registerUser(t, app, "bob")

	q := askQuestion(t, app, alice.ID, "How does the bridge work?")

	t.Run("List", func(t *testing.T) {
		rec := do(t, app, "GET", "/api/questions", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]models.Question](t, rec), 1)
	})

	t.Run("SubscribeAndNotify", func(t *testing.T) {
		rec := do(t, app, "POST", "/api/questions/"+q.ID+"/subscription", bob.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[appliedResponse](t, rec).Applied)

		rec = do(t, app, "POST", "/api/questions/"+q.ID+"/subscription", bob.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, decode[appliedResponse](t, rec).Applied, "double subscribe reports not applied")

		rec = do(t, app, "POST", "/api/questions/"+q.ID+"/answers", alice.ID, map[string]string{"text": "an answer"})
		require.Equal(t, http.StatusCreated, rec.Code)

		u, err := app.Forum().GetUser(context.Background(), bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, u.Updates[q.ID].UnreadCount())
	})

	t.Run("GetConsumesCounter", func(t *testing.T) {
		rec := do(t, app, "GET", "/api/questions/"+q.ID, bob.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		u, err := app.Forum().GetUser(context.Background(), bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, u.Updates[q.ID].UnreadCount(), "reading the question clears the unread counter")
	})

	t.Run("Vote", func(t *testing.T) {
		answerID := askAnswerID(t, app, q.ID)
		path := fmt.Sprintf("/api/questions/%s/answers/%s/vote", q.ID, answerID)

		rec := do(t, app, "PUT", path, bob.ID, map[string]bool{"useful": true})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[appliedResponse](t, rec).Applied)

		rec = do(t, app, "DELETE", path, bob.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[appliedResponse](t, rec).Applied)
	})

	t.Run("GetUnknown", func(t *testing.T) {
		rec := do(t, app, "GET", "/api/questions/"+models.NewID(), "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// askAnswerID returns the id of the question's first answer.
func askAnswerID(t *testing.T, app *App, questionID string) string {
	t.Helper()
	q, err := app.Forum().GetQuestion(context.Background(), questionID)
	require.NoError(t, err)
	require.NotEmpty(t, q.Answers)
	return q.Answers[0].ID
}

func TestAdminEndpoints(t *testing.T) {
	app, primary := newTestApp(t)
	alice := registerUser(t, app, "alice")
	admin := registerUser(t, app, "admin")
	primary.PromoteToAdmin(admin.ID)
	q := askQuestion(t, app, alice.ID, "Question")

	t.Run("HideRequiresAdmin", func(t *testing.T) {
		rec := do(t, app, "DELETE", "/api/questions/"+q.ID, alice.ID, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, app, "DELETE", "/api/questions/"+q.ID, admin.ID, map[string]string{"reason": "spam"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[appliedResponse](t, rec).Applied)

		rec = do(t, app, "GET", "/api/questions/"+q.ID, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, "hidden questions read as missing")
	})

	t.Run("BanRequiresAdmin", func(t *testing.T) {
		rec := do(t, app, "POST", "/api/users/"+admin.ID+"/ban", alice.ID, map[string]any{})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("Resync", func(t *testing.T) {
		rec := do(t, app, "POST", "/api/admin/resync", alice.ID, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, app, "POST", "/api/admin/resync", admin.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		report := decode[forum.ResyncReport](t, rec)
		assert.Equal(t, int64(2), report.Users)
		assert.Equal(t, int64(1), report.Questions)
	})
}

func TestTagEndpoints(t *testing.T) {
	app, _ := newTestApp(t)
	alice := registerUser(t, app, "alice")
	askQuestion(t, app, alice.ID, "Question")

	t.Run("List", func(t *testing.T) {
		rec := do(t, app, "GET", "/api/tags", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		tags := decode[[]models.Tag](t, rec)
		require.Len(t, tags, 1)
		assert.Equal(t, "go", tags[0].Name)
	})

	t.Run("Define", func(t *testing.T) {
		rec := do(t, app, "PUT", "/api/tags/go", alice.ID, map[string]string{"description": "the language"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[appliedResponse](t, rec).Applied)

		rec = do(t, app, "GET", "/api/tags/go", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "the language", decode[models.Tag](t, rec).Description)
	})

	t.Run("FollowUnfollow", func(t *testing.T) {
		rec := do(t, app, "PUT", "/api/tags/go/follow", alice.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[appliedResponse](t, rec).Applied)

		rec = do(t, app, "DELETE", "/api/tags/go/follow", alice.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[appliedResponse](t, rec).Applied)
	})

	t.Run("GetUnknown", func(t *testing.T) {
		rec := do(t, app, "GET", "/api/tags/missing", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSubscriptionsArePrivate(t *testing.T) {
	app, _ := newTestApp(t)
	alice := registerUser(t, app, "alice")
	bob := registerUser(t, app, "bob")
	q := askQuestion(t, app, alice.ID, "Question")

	rec := do(t, app, "POST", "/api/questions/"+q.ID+"/subscription", bob.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, app, "GET", "/api/users/"+bob.ID+"/subscriptions", alice.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "only the owner or an admin may list subscriptions")

	rec = do(t, app, "GET", "/api/users/"+bob.ID+"/subscriptions", bob.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	views := decode[[]forum.SubscriptionView](t, rec)
	require.Len(t, views, 1)
	assert.Equal(t, q.ID, views[0].QuestionID)
}
