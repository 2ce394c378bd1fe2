// Package storetest provides in-memory implementations of the store
// contracts. They mirror the conditional-update semantics of the real
// adapters closely enough that the domain layer's behavior, including races
// decided by update predicates, can be tested without a database.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goverflow/goverflow/pkg/models"
)

// Primary is an in-memory store.Primary.
type Primary struct {
	mu        sync.Mutex
	users     map[string]*models.User
	questions map[string]*models.Question
	tags      map[string]*models.Tag
}

func NewPrimary() *Primary {
	return &Primary{
		users:     make(map[string]*models.User),
		questions: make(map[string]*models.Question),
		tags:      make(map[string]*models.Tag),
	}
}

// The clone helpers copy entities field by field so callers never alias
// internal state. Timestamps are preserved exactly, which matters when a
// test compares a mirrored graph against a resynced one.

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyVotes(in map[string]models.Vote) map[string]models.Vote {
	if in == nil {
		return nil
	}
	out := make(map[string]models.Vote, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyComment(c models.Comment) models.Comment {
	c.Votes = copyVotes(c.Votes)
	c.Removed = copyPtr(c.Removed)
	return c
}

func copyComments(in []models.Comment) []models.Comment {
	if in == nil {
		return nil
	}
	out := make([]models.Comment, len(in))
	for i, c := range in {
		out[i] = copyComment(c)
	}
	return out
}

func copyAnswer(a models.Answer) models.Answer {
	a.Votes = copyVotes(a.Votes)
	a.Comments = copyComments(a.Comments)
	a.Removed = copyPtr(a.Removed)
	return a
}

func copyAnswers(in []models.Answer) []models.Answer {
	if in == nil {
		return nil
	}
	out := make([]models.Answer, len(in))
	for i, a := range in {
		out[i] = copyAnswer(a)
	}
	return out
}

func copyUpdates(in map[string]models.QuestionUpdate) map[string]models.QuestionUpdate {
	if in == nil {
		return nil
	}
	out := make(map[string]models.QuestionUpdate, len(in))
	for k, u := range in {
		u.Tags = copyStrings(u.Tags)
		u.CountUpdates = copyPtr(u.CountUpdates)
		u.Solved = copyPtr(u.Solved)
		out[k] = u
	}
	return out
}

func cloneUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.CreatedTags = copyStrings(u.CreatedTags)
	cp.FollowedTags = copyStrings(u.FollowedTags)
	if u.Bans != nil {
		cp.Bans = make([]models.BanInfo, len(u.Bans))
		for i, b := range u.Bans {
			b.End = copyPtr(b.End)
			cp.Bans[i] = b
		}
	}
	if u.BannedUsers != nil {
		cp.BannedUsers = append([]models.BannedUser(nil), u.BannedUsers...)
	}
	cp.Updates = copyUpdates(u.Updates)
	return &cp
}

func cloneQuestion(q *models.Question) *models.Question {
	if q == nil {
		return nil
	}
	cp := *q
	cp.LastEdited = copyPtr(q.LastEdited)
	cp.Tags = copyStrings(q.Tags)
	cp.Answers = copyAnswers(q.Answers)
	cp.Comments = copyComments(q.Comments)
	if q.InterestedUsers != nil {
		cp.InterestedUsers = make(map[string]models.InterestedUser, len(q.InterestedUsers))
		for k, v := range q.InterestedUsers {
			cp.InterestedUsers[k] = v
		}
	}
	cp.Removed = copyPtr(q.Removed)
	return &cp
}

func cloneTag(t *models.Tag) *models.Tag {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func (p *Primary) InsertUser(_ context.Context, u *models.User) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.users[u.ID]; ok {
		return fmt.Errorf("duplicate user id %q", u.ID)
	}
	for _, other := range p.users {
		if other.Email == u.Email || other.Username == u.Username {
			return fmt.Errorf("duplicate user %q", u.Username)
		}
	}
	p.users[u.ID] = cloneUser(u)
	return nil
}

func (p *Primary) User(_ context.Context, id string) (*models.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneUser(p.users[id]), nil
}

func (p *Primary) UserByEmail(_ context.Context, email string) (*models.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (p *Primary) UserByName(_ context.Context, username string) (*models.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (p *Primary) FindUsersByName(_ context.Context, prefix string, limit int64) ([]*models.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*models.User
	for _, u := range p.users {
		if strings.HasPrefix(u.Username, prefix) {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *Primary) EachUser(_ context.Context, fn func(*models.User) error) error {
	for _, u := range p.snapshotUsers() {
		if err := fn(u); err != nil {
			return err
		}
	}
	return nil
}

func (p *Primary) snapshotUsers() []*models.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*models.User, 0, len(p.users))
	for _, u := range p.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *Primary) BanUser(_ context.Context, victimID, adminID string, ban models.BanInfo) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	victim, ok := p.users[victimID]
	if !ok || victim.IsAdmin {
		return false, nil
	}
	victim.Bans = append(victim.Bans, ban)
	if admin, ok := p.users[adminID]; ok {
		admin.BannedUsers = append(admin.BannedUsers, models.BannedUser{
			UserID: victimID, BanID: ban.ID, At: ban.Start,
		})
	}
	return true, nil
}

func (p *Primary) InsertQuestion(_ context.Context, q *models.Question, snapshot models.QuestionUpdate) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.questions[q.ID]; ok {
		return nil, fmt.Errorf("duplicate question id %q", q.ID)
	}
	p.questions[q.ID] = cloneQuestion(q)

	var createdTags []string
	for _, tag := range q.Tags {
		if t, ok := p.tags[tag]; ok {
			t.CountQuestions++
			continue
		}
		p.tags[tag] = &models.Tag{
			Name:           tag,
			AuthorID:       q.AuthorID,
			Created:        q.Created,
			CountQuestions: 1,
		}
		createdTags = append(createdTags, tag)
	}

	if author, ok := p.users[q.AuthorID]; ok {
		for _, tag := range createdTags {
			if !contains(author.CreatedTags, tag) {
				author.CreatedTags = append(author.CreatedTags, tag)
			}
		}
		if author.Updates == nil {
			author.Updates = make(map[string]models.QuestionUpdate)
		}
		author.Updates[q.ID] = snapshot
	}
	return createdTags, nil
}

func (p *Primary) Question(_ context.Context, id string) (*models.Question, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneQuestion(p.questions[id]), nil
}

func (p *Primary) Questions(_ context.Context, skip, limit int64) ([]*models.Question, error) {
	return p.listQuestions(skip, limit, func(q *models.Question) bool {
		return q.Removed == nil
	})
}

func (p *Primary) QuestionsByTag(_ context.Context, tag string, skip, limit int64) ([]*models.Question, error) {
	return p.listQuestions(skip, limit, func(q *models.Question) bool {
		return q.Removed == nil && contains(q.Tags, tag)
	})
}

func (p *Primary) SearchQuestions(_ context.Context, keywords string, tags []string, skip, limit int64) ([]*models.Question, error) {
	return p.listQuestions(skip, limit, func(q *models.Question) bool {
		if q.Removed != nil {
			return false
		}
		for _, tag := range tags {
			if !contains(q.Tags, tag) {
				return false
			}
		}
		if keywords == "" {
			return true
		}
		text := strings.ToLower(q.Title + " " + q.Text)
		for _, word := range strings.Fields(strings.ToLower(keywords)) {
			if strings.Contains(text, word) {
				return true
			}
		}
		return false
	})
}

func (p *Primary) listQuestions(skip, limit int64, match func(*models.Question) bool) ([]*models.Question, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*models.Question
	for _, q := range p.questions {
		if match(q) {
			out = append(out, cloneQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	if skip > 0 {
		if skip >= int64(len(out)) {
			return nil, nil
		}
		out = out[skip:]
	}
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *Primary) EachQuestion(_ context.Context, fn func(*models.Question) error) error {
	p.mu.Lock()
	out := make([]*models.Question, 0, len(p.questions))
	for _, q := range p.questions {
		out = append(out, cloneQuestion(q))
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	for _, q := range out {
		if err := fn(q); err != nil {
			return err
		}
	}
	return nil
}

func (p *Primary) interested(q *models.Question) []string {
	out := make([]string, 0, len(q.InterestedUsers))
	for id := range q.InterestedUsers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p *Primary) AppendAnswer(_ context.Context, questionID string, a *models.Answer) ([]string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.questions[questionID]
	if !ok || q.Removed != nil {
		return nil, false, nil
	}
	q.Answers = append(q.Answers, copyAnswer(*a))
	return p.interested(q), true, nil
}

func (p *Primary) AppendQuestionComment(_ context.Context, questionID string, c *models.Comment) ([]string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.questions[questionID]
	if !ok || q.Removed != nil {
		return nil, false, nil
	}
	q.Comments = append(q.Comments, copyComment(*c))
	return p.interested(q), true, nil
}

func (p *Primary) AppendAnswerComment(_ context.Context, questionID, answerID string, c *models.Comment) ([]string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.questions[questionID]
	if !ok || q.Removed != nil {
		return nil, false, nil
	}
	a := q.Answer(answerID)
	if a == nil || a.Removed != nil {
		return nil, false, nil
	}
	a.Comments = append(a.Comments, copyComment(*c))
	return p.interested(q), true, nil
}

func setVote(votes *map[string]models.Vote, voterID string, v models.Vote) bool {
	if *votes == nil {
		*votes = make(map[string]models.Vote)
	}
	if old, ok := (*votes)[voterID]; ok && old == v {
		return false
	}
	(*votes)[voterID] = v
	return true
}

func unsetVote(votes map[string]models.Vote, voterID string) bool {
	if _, ok := votes[voterID]; !ok {
		return false
	}
	delete(votes, voterID)
	return true
}

// Votes only land on live content: a hidden question, answer or comment
// keeps the votes it already has but takes no new activity.

func (p *Primary) SetAnswerVote(_ context.Context, questionID, answerID, voterID string, v models.Vote) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a := p.liveAnswer(questionID, answerID); a != nil {
		return setVote(&a.Votes, voterID, v), nil
	}
	return false, nil
}

func (p *Primary) UnsetAnswerVote(_ context.Context, questionID, answerID, voterID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a := p.liveAnswer(questionID, answerID); a != nil {
		return unsetVote(a.Votes, voterID), nil
	}
	return false, nil
}

func (p *Primary) SetQuestionCommentVote(_ context.Context, questionID, commentID, voterID string, v models.Vote) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c := p.liveQuestionComment(questionID, commentID); c != nil {
		return setVote(&c.Votes, voterID, v), nil
	}
	return false, nil
}

func (p *Primary) UnsetQuestionCommentVote(_ context.Context, questionID, commentID, voterID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c := p.liveQuestionComment(questionID, commentID); c != nil {
		return unsetVote(c.Votes, voterID), nil
	}
	return false, nil
}

func (p *Primary) SetAnswerCommentVote(_ context.Context, questionID, answerID, commentID, voterID string, v models.Vote) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c := p.liveAnswerComment(questionID, answerID, commentID); c != nil {
		return setVote(&c.Votes, voterID, v), nil
	}
	return false, nil
}

func (p *Primary) UnsetAnswerCommentVote(_ context.Context, questionID, answerID, commentID, voterID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c := p.liveAnswerComment(questionID, answerID, commentID); c != nil {
		return unsetVote(c.Votes, voterID), nil
	}
	return false, nil
}

func (p *Primary) answer(questionID, answerID string) *models.Answer {
	q, ok := p.questions[questionID]
	if !ok {
		return nil
	}
	return q.Answer(answerID)
}

func (p *Primary) questionComment(questionID, commentID string) *models.Comment {
	q, ok := p.questions[questionID]
	if !ok {
		return nil
	}
	for i := range q.Comments {
		if q.Comments[i].ID == commentID {
			return &q.Comments[i]
		}
	}
	return nil
}

func (p *Primary) answerComment(questionID, answerID, commentID string) *models.Comment {
	a := p.answer(questionID, answerID)
	if a == nil {
		return nil
	}
	for i := range a.Comments {
		if a.Comments[i].ID == commentID {
			return &a.Comments[i]
		}
	}
	return nil
}

func (p *Primary) liveAnswer(questionID, answerID string) *models.Answer {
	q, ok := p.questions[questionID]
	if !ok || q.Removed != nil {
		return nil
	}
	if a := q.Answer(answerID); a != nil && a.Removed == nil {
		return a
	}
	return nil
}

func (p *Primary) liveQuestionComment(questionID, commentID string) *models.Comment {
	q, ok := p.questions[questionID]
	if !ok || q.Removed != nil {
		return nil
	}
	if c := p.questionComment(questionID, commentID); c != nil && c.Removed == nil {
		return c
	}
	return nil
}

func (p *Primary) liveAnswerComment(questionID, answerID, commentID string) *models.Comment {
	a := p.liveAnswer(questionID, answerID)
	if a == nil {
		return nil
	}
	for i := range a.Comments {
		if a.Comments[i].ID == commentID && a.Comments[i].Removed == nil {
			return &a.Comments[i]
		}
	}
	return nil
}

func (p *Primary) SetSolved(_ context.Context, questionID string, solved bool) ([]string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.questions[questionID]
	if !ok || q.Removed != nil {
		return nil, false, nil
	}
	q.Solved = solved
	return p.interested(q), true, nil
}

func (p *Primary) MarkAnswerSolution(_ context.Context, questionID, answerID, authorID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.questions[questionID]
	if !ok || q.AuthorID != authorID || q.Answer(answerID) == nil {
		return false, nil
	}
	if q.SolutionAnswerID == answerID {
		return false, nil
	}
	q.SolutionAnswerID = answerID
	return true, nil
}

func (p *Primary) UnmarkAnswerSolution(_ context.Context, questionID, authorID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.questions[questionID]
	if !ok || q.AuthorID != authorID || q.SolutionAnswerID == "" {
		return false, nil
	}
	q.SolutionAnswerID = ""
	return true, nil
}

func (p *Primary) RemoveQuestion(_ context.Context, questionID string, rm models.RemovedPost) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.questions[questionID]
	if !ok || q.Removed != nil {
		return false, nil
	}
	q.Removed = &rm
	return true, nil
}

func (p *Primary) RemoveAnswer(_ context.Context, questionID, answerID string, rm models.RemovedPost) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.answer(questionID, answerID)
	if a == nil || a.Removed != nil {
		return false, nil
	}
	a.Removed = &rm
	return true, nil
}

func (p *Primary) RemoveQuestionComment(_ context.Context, questionID, commentID string, rm models.RemovedPost) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.questionComment(questionID, commentID)
	if c == nil || c.Removed != nil {
		return false, nil
	}
	c.Removed = &rm
	return true, nil
}

func (p *Primary) RemoveAnswerComment(_ context.Context, questionID, answerID, commentID string, rm models.RemovedPost) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.answerComment(questionID, answerID, commentID)
	if c == nil || c.Removed != nil {
		return false, nil
	}
	c.Removed = &rm
	return true, nil
}

func (p *Primary) Subscribe(_ context.Context, questionID, userID string, since time.Time) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.questions[questionID]
	if !ok || q.Removed != nil {
		return false, nil
	}
	if _, ok := q.InterestedUsers[userID]; ok {
		return false, nil
	}
	if q.InterestedUsers == nil {
		q.InterestedUsers = make(map[string]models.InterestedUser)
	}
	q.InterestedUsers[userID] = models.InterestedUser{Since: since}

	if u, ok := p.users[userID]; ok {
		if u.Updates == nil {
			u.Updates = make(map[string]models.QuestionUpdate)
		}
		u.Updates[questionID] = models.QuestionUpdate{
			Title:    q.Title,
			Created:  q.Created,
			AuthorID: q.AuthorID,
			Tags:     append([]string(nil), q.Tags...),
		}
	}
	return true, nil
}

func (p *Primary) Unsubscribe(_ context.Context, questionID, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.questions[questionID]
	if !ok {
		return false, nil
	}
	if _, ok := q.InterestedUsers[userID]; !ok {
		return false, nil
	}
	delete(q.InterestedUsers, userID)
	if u, ok := p.users[userID]; ok {
		delete(u.Updates, questionID)
	}
	return true, nil
}

func (p *Primary) BumpUnreadCounters(_ context.Context, questionID string, userIDs []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range userIDs {
		u, ok := p.users[id]
		if !ok {
			continue
		}
		upd, ok := u.Updates[questionID]
		if !ok {
			continue
		}
		n := upd.UnreadCount() + 1
		upd.CountUpdates = &n
		u.Updates[questionID] = upd
	}
	return nil
}

func (p *Primary) SetSolvedFlags(_ context.Context, questionID string, userIDs []string, solved bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range userIDs {
		u, ok := p.users[id]
		if !ok {
			continue
		}
		upd, ok := u.Updates[questionID]
		if !ok {
			continue
		}
		v := solved
		upd.Solved = &v
		u.Updates[questionID] = upd
	}
	return nil
}

func (p *Primary) ConsumeNotifications(_ context.Context, userID, questionID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return false, nil
	}
	upd, ok := u.Updates[questionID]
	if !ok {
		return false, nil
	}
	zero := 0
	upd.CountUpdates = &zero
	u.Updates[questionID] = upd
	return true, nil
}

func (p *Primary) Tag(_ context.Context, name string) (*models.Tag, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneTag(p.tags[name]), nil
}

func (p *Primary) Tags(_ context.Context, prefix string, skip, limit int64) ([]*models.Tag, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*models.Tag
	for _, t := range p.tags {
		if strings.HasPrefix(t.Name, prefix) {
			out = append(out, cloneTag(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if skip > 0 {
		if skip >= int64(len(out)) {
			return nil, nil
		}
		out = out[skip:]
	}
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *Primary) EachTag(_ context.Context, fn func(*models.Tag) error) error {
	p.mu.Lock()
	out := make([]*models.Tag, 0, len(p.tags))
	for _, t := range p.tags {
		out = append(out, cloneTag(t))
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	for _, t := range out {
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

func (p *Primary) DefineTag(_ context.Context, name, description, authorID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tags[name]
	if !ok || t.Defined {
		return false, nil
	}
	t.Description = description
	t.AuthorID = authorID
	t.Defined = true
	return true, nil
}

func (p *Primary) FollowTag(_ context.Context, userID, tag string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tags[tag]
	if !ok {
		return false, nil
	}
	u, ok := p.users[userID]
	if !ok || u.FollowsTag(tag) {
		return false, nil
	}
	u.FollowedTags = append(u.FollowedTags, tag)
	t.CountFollowers++
	return true, nil
}

func (p *Primary) UnfollowTag(_ context.Context, userID, tag string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok || !u.FollowsTag(tag) {
		return false, nil
	}
	kept := u.FollowedTags[:0]
	for _, followed := range u.FollowedTags {
		if followed != tag {
			kept = append(kept, followed)
		}
	}
	u.FollowedTags = kept
	if t, ok := p.tags[tag]; ok {
		t.CountFollowers--
	}
	return true, nil
}

func (p *Primary) Close(context.Context) error { return nil }

// PromoteToAdmin flips the admin flag on a stored user. Registration never
// creates administrators, so tests needing one set it up through here.
func (p *Primary) PromoteToAdmin(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.users[id]; ok {
		u.IsAdmin = true
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
