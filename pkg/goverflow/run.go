package goverflow

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Run starts the HTTP server.
//
// # API Endpoints
//
// Health:
//
//	GET  /api/health
//
// Users:
//
//	POST /api/users                                - register account
//	GET  /api/users/{id}                           - get user
//	GET  /api/users/{id}/questions                 - questions the user asked (skip/limit)
//	GET  /api/users/{id}/contributions             - discussions the user took part in
//	GET  /api/users/{id}/votes                     - votes received by the user's posts
//	GET  /api/users/{id}/subscriptions             - watched questions with unread counters
//	POST /api/users/{id}/ban                       - ban the user (admin)
//
// Questions:
//
//	POST   /api/questions                          - ask a question
//	GET    /api/questions                          - list or search (q, tag, skip, limit)
//	GET    /api/questions/{id}                     - get one; consumes the caller's unread counter
//	DELETE /api/questions/{id}                     - hide (admin)
//	PUT    /api/questions/{id}/solved              - flip the solved flag
//	PUT    /api/questions/{id}/solution            - accept an answer (author only)
//	DELETE /api/questions/{id}/solution            - retract the accepted answer
//	POST   /api/questions/{id}/subscription        - subscribe to updates
//	DELETE /api/questions/{id}/subscription        - unsubscribe
//
// Answers and comments:
//
//	POST   /api/questions/{id}/answers
//	POST   /api/questions/{id}/comments
//	POST   /api/questions/{id}/answers/{answerId}/comments
//	DELETE /api/questions/{id}/answers/{answerId}                       - hide (admin)
//	DELETE /api/questions/{id}/comments/{commentId}                     - hide (admin)
//	DELETE /api/questions/{id}/answers/{answerId}/comments/{commentId}  - hide (admin)
//
// Votes (PUT casts or changes, DELETE retracts):
//
//	PUT/DELETE /api/questions/{id}/answers/{answerId}/vote
//	PUT/DELETE /api/questions/{id}/comments/{commentId}/vote
//	PUT/DELETE /api/questions/{id}/answers/{answerId}/comments/{commentId}/vote
//
// Tags:
//
//	GET        /api/tags                           - list (prefix, skip, limit)
//	GET        /api/tags/{name}
//	PUT        /api/tags/{name}                    - define description
//	GET        /api/tags/{name}/cousages           - co-occurrence statistic
//	PUT/DELETE /api/tags/{name}/follow
//
// Administration:
//
//	POST /api/admin/resync                         - rebuild the graph projection (admin)
//
// The caller's identity is taken from the X-User-ID header; authentication
// itself is handled upstream. The method blocks until the context is
// cancelled or the server fails, allowing five seconds for graceful
// shutdown.
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	router := a.router()

	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	a.log.Info().Str("addr", addr).Msg("starting goverflow server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (a *App) router() *mux.Router {
	router := mux.NewRouter()
	router.Use(a.requestIDMiddleware)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", a.handleHealth).Methods("GET")

	api.HandleFunc("/users", a.handleRegisterUser).Methods("POST")
	api.HandleFunc("/users/{id}", a.handleGetUser).Methods("GET")
	api.HandleFunc("/users/{id}/questions", a.handleAskedQuestions).Methods("GET")
	api.HandleFunc("/users/{id}/contributions", a.handleContributions).Methods("GET")
	api.HandleFunc("/users/{id}/votes", a.handleVoteStats).Methods("GET")
	api.HandleFunc("/users/{id}/subscriptions", a.handleSubscriptions).Methods("GET")
	api.HandleFunc("/users/{id}/ban", a.handleBanUser).Methods("POST")

	api.HandleFunc("/questions", a.handleAskQuestion).Methods("POST")
	api.HandleFunc("/questions", a.handleListQuestions).Methods("GET")
	api.HandleFunc("/questions/{id}", a.handleGetQuestion).Methods("GET")
	api.HandleFunc("/questions/{id}", a.handleHideQuestion).Methods("DELETE")
	api.HandleFunc("/questions/{id}/solved", a.handleSetSolved).Methods("PUT")
	api.HandleFunc("/questions/{id}/solution", a.handleMarkSolution).Methods("PUT")
	api.HandleFunc("/questions/{id}/solution", a.handleUnmarkSolution).Methods("DELETE")
	api.HandleFunc("/questions/{id}/subscription", a.handleSubscribe).Methods("POST")
	api.HandleFunc("/questions/{id}/subscription", a.handleUnsubscribe).Methods("DELETE")

	api.HandleFunc("/questions/{id}/answers", a.handleAddAnswer).Methods("POST")
	api.HandleFunc("/questions/{id}/comments", a.handleCommentQuestion).Methods("POST")
	api.HandleFunc("/questions/{id}/answers/{answerId}/comments", a.handleCommentAnswer).Methods("POST")
	api.HandleFunc("/questions/{id}/answers/{answerId}", a.handleHideAnswer).Methods("DELETE")
	api.HandleFunc("/questions/{id}/comments/{commentId}", a.handleHideQuestionComment).Methods("DELETE")
	api.HandleFunc("/questions/{id}/answers/{answerId}/comments/{commentId}", a.handleHideAnswerComment).Methods("DELETE")

	api.HandleFunc("/questions/{id}/answers/{answerId}/vote", a.handleVoteAnswer).Methods("PUT")
	api.HandleFunc("/questions/{id}/answers/{answerId}/vote", a.handleRetractAnswerVote).Methods("DELETE")
	api.HandleFunc("/questions/{id}/comments/{commentId}/vote", a.handleVoteQuestionComment).Methods("PUT")
	api.HandleFunc("/questions/{id}/comments/{commentId}/vote", a.handleRetractQuestionCommentVote).Methods("DELETE")
	api.HandleFunc("/questions/{id}/answers/{answerId}/comments/{commentId}/vote", a.handleVoteAnswerComment).Methods("PUT")
	api.HandleFunc("/questions/{id}/answers/{answerId}/comments/{commentId}/vote", a.handleRetractAnswerCommentVote).Methods("DELETE")

	api.HandleFunc("/tags", a.handleListTags).Methods("GET")
	api.HandleFunc("/tags/{name}", a.handleGetTag).Methods("GET")
	api.HandleFunc("/tags/{name}", a.handleDefineTag).Methods("PUT")
	api.HandleFunc("/tags/{name}/cousages", a.handleTagCoUsages).Methods("GET")
	api.HandleFunc("/tags/{name}/follow", a.handleFollowTag).Methods("PUT")
	api.HandleFunc("/tags/{name}/follow", a.handleUnfollowTag).Methods("DELETE")

	api.HandleFunc("/admin/resync", a.handleResync).Methods("POST")

	router.HandleFunc("/health", a.handleHealth).Methods("GET")

	return router
}

// requestIDMiddleware tags every request with an id so log lines from one
// request can be correlated.
func (a *App) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		log := a.log.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(log.WithContext(r.Context())))
	})
}
