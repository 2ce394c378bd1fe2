package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// NewID returns a fresh identifier for a document-store entity. Identifiers
// are ObjectID hex strings so they stay sortable by creation time and can be
// used verbatim as node ids in the graph projection.
func NewID() string {
	return bson.NewObjectID().Hex()
}

// UserRef identifies a user at an API boundary together with the display
// name that was current when the reference was made. Embedded documents
// persist only the id; display names are resolved on the read path so a
// rename does not require rewriting every document that mentions the user.
type UserRef struct {
	ID   string `bson:"id" json:"id"`
	Name string `bson:"name" json:"name"`
}

// Vote is a single user's verdict on an answer or comment. The voter id is
// the map key where votes are stored, so the struct carries only the verdict.
type Vote struct {
	Useful bool `bson:"useful" json:"useful"`
}

// RemovedPost records a moderator hiding a piece of content. Hidden content
// stays in the primary store for audit purposes but is filtered from reads
// and disconnected in the graph projection.
type RemovedPost struct {
	ModeratorID string    `bson:"moderatorId" json:"moderatorId"`
	Reason      string    `bson:"reason,omitempty" json:"reason,omitempty"`
	At          time.Time `bson:"at" json:"at"`
}

// Comment is attached to a question or to an answer and lives embedded in
// the question document.
type Comment struct {
	ID         string          `bson:"id" json:"id"`
	AuthorID   string          `bson:"authorId" json:"authorId"`
	AuthorName string          `bson:"-" json:"authorName,omitempty"`
	Created    time.Time       `bson:"created" json:"created"`
	Text       string          `bson:"text" json:"text"`
	Votes      map[string]Vote `bson:"votes,omitempty" json:"votes,omitempty"`
	Removed    *RemovedPost    `bson:"removed,omitempty" json:"removed,omitempty"`
}

// Answer is embedded in its question document together with its own comments
// and votes.
type Answer struct {
	ID         string          `bson:"id" json:"id"`
	AuthorID   string          `bson:"authorId" json:"authorId"`
	AuthorName string          `bson:"-" json:"authorName,omitempty"`
	Created    time.Time       `bson:"created" json:"created"`
	Text       string          `bson:"text" json:"text"`
	Votes      map[string]Vote `bson:"votes,omitempty" json:"votes,omitempty"`
	Comments   []Comment       `bson:"comments,omitempty" json:"comments,omitempty"`
	Removed    *RemovedPost    `bson:"removed,omitempty" json:"removed,omitempty"`
}

// Score weighs useful votes against the total. A useful vote counts +1 and
// any other vote -1, so the score is 2*useful - total.
func (a *Answer) Score() int {
	useful := 0
	for _, v := range a.Votes {
		if v.Useful {
			useful++
		}
	}
	return 2*useful - len(a.Votes)
}

// InterestedUser marks a subscriber on a question document. The map key in
// Question.InterestedUsers is the user id, which makes the subscribe guard a
// single exists-check in a conditional update.
type InterestedUser struct {
	Since time.Time `bson:"since" json:"since"`
}

// Question is the aggregate root of the primary store. Answers, comments and
// votes are embedded so every mutation of a discussion is a conditional
// update of a single document.
type Question struct {
	ID               string                    `bson:"_id" json:"id"`
	Created          time.Time                 `bson:"created" json:"created"`
	LastEdited       *time.Time                `bson:"lastEdited,omitempty" json:"lastEdited,omitempty"`
	AuthorID         string                    `bson:"authorId" json:"authorId"`
	AuthorName       string                    `bson:"-" json:"authorName,omitempty"`
	Title            string                    `bson:"title" json:"title"`
	Text             string                    `bson:"text" json:"text"`
	Tags             []string                  `bson:"tags" json:"tags"`
	Solved           bool                      `bson:"solved" json:"solved"`
	SolutionAnswerID string                    `bson:"solutionAnswerId,omitempty" json:"solutionAnswerId,omitempty"`
	Answers          []Answer                  `bson:"answers,omitempty" json:"answers,omitempty"`
	Comments         []Comment                 `bson:"comments,omitempty" json:"comments,omitempty"`
	InterestedUsers  map[string]InterestedUser `bson:"interestedUsers,omitempty" json:"-"`
	Removed          *RemovedPost              `bson:"removed,omitempty" json:"removed,omitempty"`
}

// Answer returns the embedded answer with the given id, or nil.
func (q *Question) Answer(id string) *Answer {
	for i := range q.Answers {
		if q.Answers[i].ID == id {
			return &q.Answers[i]
		}
	}
	return nil
}

// Tag is keyed by its name. A tag document exists as soon as the first
// question uses the name; it stays undefined until an author gives it a
// description.
type Tag struct {
	Name           string    `bson:"_id" json:"name"`
	Description    string    `bson:"description,omitempty" json:"description,omitempty"`
	AuthorID       string    `bson:"authorId,omitempty" json:"authorId,omitempty"`
	AuthorName     string    `bson:"-" json:"authorName,omitempty"`
	Defined        bool      `bson:"defined" json:"defined"`
	Created        time.Time `bson:"created" json:"created"`
	CountQuestions int64     `bson:"countQuestions" json:"countQuestions"`
	CountFollowers int64     `bson:"countFollowers" json:"countFollowers"`
}

// QuestionUpdate is the denormalized subscription snapshot stored under
// User.Updates, keyed by question id. Title, author and tags are frozen at
// subscribe time. CountUpdates and Solved are pointers because concurrent
// notifications update them independently of the snapshot fields; a nil
// counter reads as zero.
type QuestionUpdate struct {
	Title      string    `bson:"title" json:"title"`
	Created    time.Time `bson:"created" json:"created"`
	AuthorID   string    `bson:"authorId" json:"authorId"`
	AuthorName string    `bson:"authorName,omitempty" json:"authorName,omitempty"`
	Tags       []string  `bson:"tags" json:"tags"`

	CountUpdates *int  `bson:"countUpdates,omitempty" json:"countUpdates,omitempty"`
	Solved       *bool `bson:"solved,omitempty" json:"solved,omitempty"`
}

// UnreadCount returns the counter value, treating nil as zero.
func (u QuestionUpdate) UnreadCount() int {
	if u.CountUpdates == nil {
		return 0
	}
	return *u.CountUpdates
}

// BanInfo is one entry in a user's ban history.
type BanInfo struct {
	ID     string     `bson:"id" json:"id"`
	Start  time.Time  `bson:"start" json:"start"`
	End    *time.Time `bson:"end,omitempty" json:"end,omitempty"`
	Reason string     `bson:"reason,omitempty" json:"reason,omitempty"`
}

// Active reports whether the ban covers the given instant. A ban with no end
// is permanent. Both boundaries are inclusive.
func (b BanInfo) Active(now time.Time) bool {
	if now.Before(b.Start) {
		return false
	}
	return b.End == nil || !now.After(*b.End)
}

// BannedUser is the record an administrator keeps of a ban they issued.
type BannedUser struct {
	UserID string    `bson:"userId" json:"userId"`
	BanID  string    `bson:"banId" json:"banId"`
	At     time.Time `bson:"at" json:"at"`
}

// User is the account entity. CreatedTags and FollowedTags are id sets
// maintained with guarded set operations, and Updates holds the subscription
// snapshots the notification fan-out increments.
type User struct {
	ID           string                    `bson:"_id" json:"id"`
	Registered   time.Time                 `bson:"registered" json:"registered"`
	Email        string                    `bson:"email" json:"email"`
	PasswordHash string                    `bson:"passwordHash" json:"-"`
	Username     string                    `bson:"username" json:"username"`
	IsAdmin      bool                      `bson:"isAdmin" json:"isAdmin"`
	CreatedTags  []string                  `bson:"createdTags,omitempty" json:"createdTags,omitempty"`
	FollowedTags []string                  `bson:"followedTags,omitempty" json:"followedTags,omitempty"`
	Bans         []BanInfo                 `bson:"bans,omitempty" json:"-"`
	BannedUsers  []BannedUser              `bson:"bannedUsers,omitempty" json:"-"`
	Updates      map[string]QuestionUpdate `bson:"updates,omitempty" json:"updates,omitempty"`
}

// Ref returns the user as a boundary reference.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Username}
}

// BannedAt reports whether any ban in the user's history covers the given
// instant.
func (u *User) BannedAt(now time.Time) bool {
	for _, b := range u.Bans {
		if b.Active(now) {
			return true
		}
	}
	return false
}

// FollowsTag reports whether the tag is in the user's followed set.
func (u *User) FollowsTag(tag string) bool {
	for _, t := range u.FollowedTags {
		if t == tag {
			return true
		}
	}
	return false
}

// QuestionPreview is the read shape returned by graph traversals and
// listings: enough to render a link to a discussion without loading the
// aggregate.
type QuestionPreview struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Created    time.Time `json:"created"`
	Tags       []string  `json:"tags"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName,omitempty"`
}

// VoteStats tallies the votes a user's answers and comments have received.
type VoteStats struct {
	AnswerUpvotes    int64 `json:"answerUpvotes"`
	AnswerDownvotes  int64 `json:"answerDownvotes"`
	CommentUpvotes   int64 `json:"commentUpvotes"`
	CommentDownvotes int64 `json:"commentDownvotes"`
}

// TagCoUsage is one row of the co-occurrence statistic for a tag: another
// tag and the number of questions carrying both.
type TagCoUsage struct {
	Tag          string `json:"tag"`
	CommonUsages int64  `json:"commonUsages"`
}
