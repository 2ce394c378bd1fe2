package goverflow

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/goverflow/goverflow/pkg/models"
)

// caller resolves the requester from the X-User-ID header. A missing or
// unknown id is a 401, a currently banned user a 403; in both cases the
// response has been written and the second return value is false.
func (a *App) caller(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		respondError(w, http.StatusUnauthorized, "X-User-ID header required")
		return nil, false
	}
	u, err := a.forum.GetUser(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if u == nil {
		respondError(w, http.StatusUnauthorized, "Unknown user")
		return nil, false
	}
	if u.BannedAt(time.Now().UTC()) {
		respondError(w, http.StatusForbidden, "User is banned")
		return nil, false
	}
	return u, true
}

func (a *App) admin(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	u, ok := a.caller(w, r)
	if !ok {
		return nil, false
	}
	if !u.IsAdmin {
		respondError(w, http.StatusForbidden, "Administrator required")
		return nil, false
	}
	return u, true
}

func page(r *http.Request) (skip, limit int64) {
	skip, _ = strconv.ParseInt(r.URL.Query().Get("skip"), 10, 64)
	limit, _ = strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if skip < 0 {
		skip = 0
	}
	return skip, limit
}

// appliedResponse reports the outcome of a conditional operation. A false
// applied is not an error: the precondition did not hold or a concurrent
// caller got there first.
type appliedResponse struct {
	Applied bool `json:"applied"`
}

func respondApplied(w http.ResponseWriter, applied bool) {
	respondJSON(w, http.StatusOK, appliedResponse{Applied: applied})
}

// User handlers.

func (a *App) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username     string `json:"username"`
		Email        string `json:"email"`
		PasswordHash string `json:"passwordHash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Username == "" || req.Email == "" {
		respondError(w, http.StatusBadRequest, "username and email are required")
		return
	}

	u, err := a.forum.RegisterUser(r.Context(), req.Username, req.Email, req.PasswordHash)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, u)
}

func (a *App) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.forum.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if u == nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (a *App) handleAskedQuestions(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	skip, limit := page(r)
	ctx := r.Context()

	questions, err := a.forum.AskedQuestions(ctx, userID, skip, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := a.forum.CountAskedQuestions(ctx, userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"total": total, "items": questions})
}

func (a *App) handleContributions(w http.ResponseWriter, r *http.Request) {
	questions, err := a.forum.ContributedQuestions(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, questions)
}

func (a *App) handleVoteStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.forum.VoteStats(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (a *App) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	u, ok := a.caller(w, r)
	if !ok {
		return
	}
	if u.ID != mux.Vars(r)["id"] && !u.IsAdmin {
		respondError(w, http.StatusForbidden, "Subscriptions are private")
		return
	}
	views, err := a.forum.Subscriptions(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, views)
}

func (a *App) handleBanUser(w http.ResponseWriter, r *http.Request) {
	adminUser, ok := a.admin(w, r)
	if !ok {
		return
	}
	var req struct {
		Until  *time.Time `json:"until,omitempty"`
		Reason string     `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	applied, err := a.forum.BanUser(r.Context(), mux.Vars(r)["id"], adminUser.Ref(), req.Until, req.Reason)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondApplied(w, applied)
}

// Question handlers.

func (a *App) handleAskQuestion(w http.ResponseWriter, r *http.Request) {
	u, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Title string   `json:"title"`
		Text  string   `json:"text"`
		Tags  []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Title == "" || len(req.Tags) == 0 {
		respondError(w, http.StatusBadRequest, "title and at least one tag are required")
		return
	}

	q, err := a.forum.AskQuestion(r.Context(), u.Ref(), req.Title, req.Text, req.Tags)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, q)
}

func (a *App) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	skip, limit := page(r)
	ctx := r.Context()
	query := r.URL.Query()

	var (
		questions []*models.Question
		err       error
	)
	switch {
	case query.Get("q") != "":
		var tags []string
		if t := query.Get("tags"); t != "" {
			tags = strings.Split(t, ",")
		}
		questions, err = a.forum.SearchQuestions(ctx, query.Get("q"), tags, skip, limit)
	case query.Get("tag") != "":
		questions, err = a.forum.GetQuestionsByTag(ctx, query.Get("tag"), skip, limit)
	default:
		questions, err = a.forum.GetQuestions(ctx, skip, limit)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, questions)
}

// handleGetQuestion returns the question and, when the caller is
// authenticated and subscribed, consumes their unread counter for it.
func (a *App) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	questionID := mux.Vars(r)["id"]

	q, err := a.forum.GetQuestion(ctx, questionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if q == nil {
		respondError(w, http.StatusNotFound, "Question not found")
		return
	}

	if userID := r.Header.Get("X-User-ID"); userID != "" {
		if _, err := a.forum.ConsumeNotification(ctx, userID, questionID); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, q)
}

func (a *App) handleSetSolved(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.caller(w, r); !ok {
		return
	}
	var req struct {
		Solved bool `json:"solved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	applied, err := a.forum.SetSolved(r.Context(), mux.Vars(r)["id"], req.Solved)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondApplied(w, applied)
}

func (a *App) handleMarkSolution(w http.ResponseWriter, r *http.Request) {
	u, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		AnswerID string `json:"answerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AnswerID == "" {
		respondError(w, http.StatusBadRequest, "answerId is required")
		return
	}
	applied, err := a.forum.MarkAnswerSolution(r.Context(), mux.Vars(r)["id"], req.AnswerID, u.Ref())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondApplied(w, applied)
}

func (a *App) handleUnmarkSolution(w http.ResponseWriter, r *http.Request) {
	u, ok := a.caller(w, r)
	if !ok {
		return
	}
	applied, err := a.forum.UnmarkAnswerSolution(r.Context(), mux.Vars(r)["id"], u.Ref())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondApplied(w, applied)
}

func (a *App) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	u, ok := a.caller(w, r)
	if !ok {
		return
	}
	applied, err := a.forum.Subscribe(r.Context(), mux.Vars(r)["id"], u.Ref())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondApplied(w, applied)
}

func (a *App) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	u, ok := a.caller(w, r)
	if !ok {
		return
	}
	applied, err := a.forum.Unsubscribe(r.Context(), mux.Vars(r)["id"], u.Ref())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondApplied(w, applied)
}

// Answer and comment handlers.

func (a *App) handleAddAnswer(w http.ResponseWriter, r *http.Request) {
	u, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	answer, err := a.forum.AddAnswer(r.Context(), mux.Vars(r)["id"], u.Ref(), req.Text)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if answer == nil {
		respondError(w, http.StatusNotFound, "Question not found")
		return
	}
	respondJSON(w, http.StatusCreated, answer)
}

func (a *App) handleCommentQuestion(w http.ResponseWriter, r *http.Request) {
	u, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	comment, err := a.forum.CommentQuestion(r.Context(), mux.Vars(r)["id"], u.Ref(), req.Text)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if comment == nil {
		respondError(w, http.StatusNotFound, "Question not found")
		return
	}
	respondJSON(w, http.StatusCreated, comment)
}

func (a *App) handleCommentAnswer(w http.ResponseWriter, r *http.Request) {
	u, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	vars := mux.Vars(r)
	comment, err := a.forum.CommentAnswer(r.Context(), vars["id"], vars["answerId"], u.Ref(), req.Text)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if comment == nil {
		respondError(w, http.StatusNotFound, "Question or answer not found")
		return
	}
	respondJSON(w, http.StatusCreated, comment)
}

func (a *App) handleHideQuestion(w http.ResponseWriter, r *http.Request) {
	a.hide(w, r, func(u models.UserRef, vars map[string]string, reason string) (bool, error) {
		return a.forum.HideQuestion(r.Context(), vars["id"], u, reason)
	})
}

func (a *App) handleHideAnswer(w http.ResponseWriter, r *http.Request) {
	a.hide(w, r, func(u models.UserRef, vars map[string]string, reason string) (bool, error) {
		return a.forum.HideAnswer(r.Context(), vars["id"], vars["answerId"], u, reason)
	})
}

func (a *App) handleHideQuestionComment(w http.ResponseWriter, r *http.Request) {
	a.hide(w, r, func(u models.UserRef, vars map[string]string, reason string) (bool, error) {
		return a.forum.HideQuestionComment(r.Context(), vars["id"], vars["commentId"], u, reason)
	})
}

func (a *App) handleHideAnswerComment(w http.ResponseWriter, r *http.Request) {
	a.hide(w, r, func(u models.UserRef, vars map[string]string, reason string) (bool, error) {
		return a.forum.HideAnswerComment(r.Context(), vars["id"], vars["answerId"], vars["commentId"], u, reason)
	})
}

func (a *App) hide(w http.ResponseWriter, r *http.Request, fn func(models.UserRef, map[string]string, string) (bool, error)) {
	u, ok := a.admin(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason,omitempty"`
	}
	// Hide requests may come without a body.
	_ = json.NewDecoder(r.Body).Decode(&req)

	applied, err := fn(u.Ref(), mux.Vars(r), req.Reason)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondApplied(w, applied)
}

// Vote handlers.

type voteRequest struct {
	Useful bool `json:"useful"`
}

func (a *App) vote(w http.ResponseWriter, r *http.Request, fn func(models.UserRef, map[string]string, bool) (bool, error)) {
	u, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	applied, err := fn(u.Ref(), mux.Vars(r), req.Useful)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondApplied(w, applied)
}

func (a *App) retract(w http.ResponseWriter, r *http.Request, fn func(models.UserRef, map[string]string) (bool, error)) {
	u, ok := a.caller(w, r)
	if !ok {
		return
	}
	applied, err := fn(u.Ref(), mux.Vars(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondApplied(w, applied)
}

func (a *App) handleVoteAnswer(w http.ResponseWriter, r *http.Request) {
	a.vote(w, r, func(u models.UserRef, vars map[string]string, useful bool) (bool, error) {
		return a.forum.VoteAnswer(r.Context(), vars["id"], vars["answerId"], u, useful)
	})
}

func (a *App) handleRetractAnswerVote(w http.ResponseWriter, r *http.Request) {
	a.retract(w, r, func(u models.UserRef, vars map[string]string) (bool, error) {
		return a.forum.RetractAnswerVote(r.Context(), vars["id"], vars["answerId"], u)
	})
}

func (a *App) handleVoteQuestionComment(w http.ResponseWriter, r *http.Request) {
	a.vote(w, r, func(u models.UserRef, vars map[string]string, useful bool) (bool, error) {
		return a.forum.VoteQuestionComment(r.Context(), vars["id"], vars["commentId"], u, useful)
	})
}

func (a *App) handleRetractQuestionCommentVote(w http.ResponseWriter, r *http.Request) {
	a.retract(w, r, func(u models.UserRef, vars map[string]string) (bool, error) {
		return a.forum.RetractQuestionCommentVote(r.Context(), vars["id"], vars["commentId"], u)
	})
}

func (a *App) handleVoteAnswerComment(w http.ResponseWriter, r *http.Request) {
	a.vote(w, r, func(u models.UserRef, vars map[string]string, useful bool) (bool, error) {
		return a.forum.VoteAnswerComment(r.Context(), vars["id"], vars["answerId"], vars["commentId"], u, useful)
	})
}

func (a *App) handleRetractAnswerCommentVote(w http.ResponseWriter, r *http.Request) {
	a.retract(w, r, func(u models.UserRef, vars map[string]string) (bool, error) {
		return a.forum.RetractAnswerCommentVote(r.Context(), vars["id"], vars["answerId"], vars["commentId"], u)
	})
}

// Tag handlers.

func (a *App) handleListTags(w http.ResponseWriter, r *http.Request) {
	skip, limit := page(r)
	tags, err := a.forum.GetTags(r.Context(), r.URL.Query().Get("prefix"), skip, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, tags)
}

func (a *App) handleGetTag(w http.ResponseWriter, r *http.Request) {
	tag, err := a.forum.GetTag(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tag == nil {
		respondError(w, http.StatusNotFound, "Tag not found")
		return
	}
	respondJSON(w, http.StatusOK, tag)
}

func (a *App) handleDefineTag(w http.ResponseWriter, r *http.Request) {
	u, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Description == "" {
		respondError(w, http.StatusBadRequest, "description is required")
		return
	}
	applied, err := a.forum.DefineTag(r.Context(), mux.Vars(r)["name"], req.Description, u.Ref())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondApplied(w, applied)
}

func (a *App) handleTagCoUsages(w http.ResponseWriter, r *http.Request) {
	usages, err := a.forum.TagCoUsages(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, usages)
}

func (a *App) handleFollowTag(w http.ResponseWriter, r *http.Request) {
	u, ok := a.caller(w, r)
	if !ok {
		return
	}
	applied, err := a.forum.FollowTag(r.Context(), u.Ref(), mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondApplied(w, applied)
}

func (a *App) handleUnfollowTag(w http.ResponseWriter, r *http.Request) {
	u, ok := a.caller(w, r)
	if !ok {
		return
	}
	applied, err := a.forum.UnfollowTag(r.Context(), u.Ref(), mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondApplied(w, applied)
}

// Admin handlers.

func (a *App) handleResync(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.admin(w, r); !ok {
		return
	}
	report, err := a.forum.Resync(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
