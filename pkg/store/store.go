// Package store defines the two persistence contracts of the forum: the
// Primary document store holding the aggregates, and the Projection graph
// store holding a derived view used for relationship traversals.
//
// The primary store is the source of truth. Every mutation is a conditional
// update whose predicate encodes the operation's precondition, so concurrent
// callers race on the database rather than on application locks. A
// conditional update that matches nothing is not an error: implementations
// report it through an `applied` boolean (or a nil entity) with a nil error,
// and callers treat it as "already true, or lost the race".
//
// The projection store only learns facts the primary confirmed. All its
// mutations are idempotent merges keyed by entity id, which makes both the
// mirrored writes of the sync bridge and a full resynchronization replay
// safe to repeat.
package store

import (
	"context"
	"time"

	"github.com/goverflow/goverflow/pkg/models"
)

// FaultPolicy decides what a Projection implementation does with a failed
// graph operation. The policy is fixed when the adapter is constructed.
type FaultPolicy int

const (
	// FaultLenient logs projection failures and reports success. The graph
	// drifts until the next resynchronization, but user-facing writes keep
	// working while the projection store is down.
	FaultLenient FaultPolicy = iota
	// FaultStrict surfaces every projection failure to the caller.
	FaultStrict
)

func (p FaultPolicy) String() string {
	if p == FaultStrict {
		return "strict"
	}
	return "lenient"
}

// Label names a node kind in the graph projection. Labels are a closed set
// so adapters can splice them into query text without escaping.
type Label string

const (
	LabelUser     Label = "User"
	LabelQuestion Label = "Question"
	LabelAnswer   Label = "Answer"
	LabelComment  Label = "Comment"
	LabelTag      Label = "Tag"
)

// EdgeType names a relationship kind in the graph projection.
type EdgeType string

const (
	EdgeAsked         EdgeType = "ASKED"           // user asked question
	EdgeAnswered      EdgeType = "ANSWERED"        // answer answers question
	EdgeWrote         EdgeType = "WROTE"           // user wrote answer
	EdgeCommented     EdgeType = "COMMENTED"       // user wrote comment
	EdgeRefersTo      EdgeType = "REFERS_TO"       // comment refers to question or answer
	EdgeAbout         EdgeType = "ABOUT"           // question is about tag
	EdgeVoted         EdgeType = "VOTED"           // user voted on answer or comment, props {useful}
	EdgeFollows       EdgeType = "FOLLOWS"         // user follows tag
	EdgeCreated       EdgeType = "CREATED"         // user defined tag
	EdgeWaitForUpdate EdgeType = "WAIT_FOR_UPDATE" // user subscribed to question
	EdgeHid           EdgeType = "HID"             // moderator hid content
)

// Primary is the document-store contract. Mutations with an `applied` result
// are conditional updates: false with a nil error means the precondition did
// not hold. Get methods return nil without error for missing entities.
//
// Compound operations (InsertQuestion, Subscribe, FollowTag, BanUser) touch
// more than one document; implementations group them into one transaction
// when the deployment supports it and otherwise run the steps in sequence.
type Primary interface {
	// Users

	InsertUser(ctx context.Context, u *models.User) error
	User(ctx context.Context, id string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByName(ctx context.Context, username string) (*models.User, error)
	FindUsersByName(ctx context.Context, prefix string, limit int64) ([]*models.User, error)
	EachUser(ctx context.Context, fn func(*models.User) error) error

	// BanUser appends the ban to the victim's history and the issued record
	// to the admin's ledger. Applies only when the victim exists and is not
	// an administrator.
	BanUser(ctx context.Context, victimID, adminID string, ban models.BanInfo) (applied bool, err error)

	// Questions

	// InsertQuestion stores the question, bumps each tag's question counter
	// creating missing tag documents, records newly created tag names on the
	// author, and writes the author's subscription snapshot. It returns the
	// tag names that did not exist before this question.
	InsertQuestion(ctx context.Context, q *models.Question, snapshot models.QuestionUpdate) (createdTags []string, err error)
	Question(ctx context.Context, id string) (*models.Question, error)
	Questions(ctx context.Context, skip, limit int64) ([]*models.Question, error)
	QuestionsByTag(ctx context.Context, tag string, skip, limit int64) ([]*models.Question, error)
	SearchQuestions(ctx context.Context, keywords string, tags []string, skip, limit int64) ([]*models.Question, error)
	EachQuestion(ctx context.Context, fn func(*models.Question) error) error

	// AppendAnswer adds the answer to a live question and returns the ids of
	// the subscribed users.
	AppendAnswer(ctx context.Context, questionID string, a *models.Answer) (interested []string, applied bool, err error)
	AppendQuestionComment(ctx context.Context, questionID string, c *models.Comment) (interested []string, applied bool, err error)
	AppendAnswerComment(ctx context.Context, questionID, answerID string, c *models.Comment) (interested []string, applied bool, err error)

	// Vote setters overwrite an existing verdict by the same voter; the
	// unsetters apply only when a verdict exists.
	SetAnswerVote(ctx context.Context, questionID, answerID, voterID string, v models.Vote) (applied bool, err error)
	UnsetAnswerVote(ctx context.Context, questionID, answerID, voterID string) (applied bool, err error)
	SetQuestionCommentVote(ctx context.Context, questionID, commentID, voterID string, v models.Vote) (applied bool, err error)
	UnsetQuestionCommentVote(ctx context.Context, questionID, commentID, voterID string) (applied bool, err error)
	SetAnswerCommentVote(ctx context.Context, questionID, answerID, commentID, voterID string, v models.Vote) (applied bool, err error)
	UnsetAnswerCommentVote(ctx context.Context, questionID, answerID, commentID, voterID string) (applied bool, err error)

	// SetSolved flips the solved flag and returns the subscriber ids so the
	// caller can fan the change out to their snapshots.
	SetSolved(ctx context.Context, questionID string, solved bool) (interested []string, applied bool, err error)
	// MarkAnswerSolution records the accepted answer; only the question's
	// author may accept, which is part of the update predicate.
	MarkAnswerSolution(ctx context.Context, questionID, answerID, authorID string) (applied bool, err error)
	UnmarkAnswerSolution(ctx context.Context, questionID, authorID string) (applied bool, err error)

	// Moderator removals apply only when the target is not already removed.
	RemoveQuestion(ctx context.Context, questionID string, rm models.RemovedPost) (applied bool, err error)
	RemoveAnswer(ctx context.Context, questionID, answerID string, rm models.RemovedPost) (applied bool, err error)
	RemoveQuestionComment(ctx context.Context, questionID, commentID string, rm models.RemovedPost) (applied bool, err error)
	RemoveAnswerComment(ctx context.Context, questionID, answerID, commentID string, rm models.RemovedPost) (applied bool, err error)

	// Subscriptions

	// Subscribe adds the user to the question's interested set and writes
	// the denormalized snapshot on the user. Applies only when the user was
	// not already subscribed.
	Subscribe(ctx context.Context, questionID string, userID string, since time.Time) (applied bool, err error)
	Unsubscribe(ctx context.Context, questionID string, userID string) (applied bool, err error)
	// BumpUnreadCounters increments the snapshot counter for the question on
	// every listed user in one bulk conditional update.
	BumpUnreadCounters(ctx context.Context, questionID string, userIDs []string) error
	// SetSolvedFlags stamps the solved marker on the listed users' snapshots.
	SetSolvedFlags(ctx context.Context, questionID string, userIDs []string, solved bool) error
	// ConsumeNotifications zeroes the user's unread counter for the question.
	// Applies only when a snapshot for the question exists.
	ConsumeNotifications(ctx context.Context, userID, questionID string) (applied bool, err error)

	// Tags

	Tag(ctx context.Context, name string) (*models.Tag, error)
	Tags(ctx context.Context, prefix string, skip, limit int64) ([]*models.Tag, error)
	EachTag(ctx context.Context, fn func(*models.Tag) error) error
	// DefineTag sets the description and author on an undefined tag.
	DefineTag(ctx context.Context, name, description, authorID string) (applied bool, err error)

	// FollowTag adds the tag to the user's followed set and bumps the tag's
	// follower counter. Applies only when the tag exists and the user does
	// not already follow it.
	FollowTag(ctx context.Context, userID, tag string) (applied bool, err error)
	UnfollowTag(ctx context.Context, userID, tag string) (applied bool, err error)

	Close(ctx context.Context) error
}

// Projection is the graph-store contract. MergeNode and MergeEdge are
// idempotent: merging an existing node or edge only overwrites the given
// properties. MergeEdge creates its endpoints as placeholder nodes when they
// do not exist yet, so a replay can merge edges in any order.
//
// Under FaultLenient, mutating calls swallow store failures and traversals
// degrade to empty results.
type Projection interface {
	MergeNode(ctx context.Context, label Label, id string, props map[string]any) error
	MergeEdge(ctx context.Context, from Label, fromID string, rel EdgeType, to Label, toID string, props map[string]any) error
	DeleteEdge(ctx context.Context, fromID string, rel EdgeType, toID string) error
	// ClearAll removes every node and edge. Only the resynchronizer calls
	// this, immediately before a full replay.
	ClearAll(ctx context.Context) error

	// ContributedQuestions returns discussions the user answered or
	// commented in but did not ask, newest first.
	ContributedQuestions(ctx context.Context, userID string) ([]models.QuestionPreview, error)
	// AskedQuestions pages through the questions the user asked, newest
	// first.
	AskedQuestions(ctx context.Context, userID string, skip, limit int64) ([]models.QuestionPreview, error)
	CountAskedQuestions(ctx context.Context, userID string) (int64, error)
	// TagCoUsages returns, for every tag sharing a question with the given
	// tag, the number of questions carrying both, most common first.
	TagCoUsages(ctx context.Context, tag string) ([]models.TagCoUsage, error)
	// VoteStats tallies votes received by the user's answers and comments.
	// A user with no content or no votes gets all-zero stats.
	VoteStats(ctx context.Context, userID string) (models.VoteStats, error)

	Close(ctx context.Context) error
}
