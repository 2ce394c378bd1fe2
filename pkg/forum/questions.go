package forum

import (
	"context"
	"time"

	"github.com/goverflow/goverflow/pkg/models"
	"github.com/goverflow/goverflow/pkg/store"
)

// questionProps is the canonical property set of a Question node. The
// mirrored writes and the resynchronizer must agree on it so a replay
// reproduces exactly what the bridge would have written.
func questionProps(title string, created time.Time, solved bool) map[string]any {
	return map[string]any{"title": title, "created": created, "solved": solved}
}

func userProps(name string) map[string]any {
	return map[string]any{"name": name}
}

func createdProps(created time.Time) map[string]any {
	return map[string]any{"created": created}
}

// AskQuestion stores a new question and mirrors it into the graph. The
// author is subscribed to their own question from the start so later
// activity reaches their snapshot, though their own posts never notify them.
func (f *Forum) AskQuestion(ctx context.Context, author models.UserRef, title, text string, tags []string) (*models.Question, error) {
	now := time.Now().UTC()
	q := &models.Question{
		ID:         models.NewID(),
		Created:    now,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Title:      title,
		Text:       text,
		Tags:       tags,
		InterestedUsers: map[string]models.InterestedUser{
			author.ID: {Since: now},
		},
	}
	snapshot := models.QuestionUpdate{
		Title:      title,
		Created:    now,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Tags:       tags,
	}

	createdTags, err := f.primary.InsertQuestion(ctx, q, snapshot)
	if err != nil {
		return nil, err
	}
	return q, f.mirrorNewQuestion(ctx, q, author, createdTags)
}

func (f *Forum) mirrorNewQuestion(ctx context.Context, q *models.Question, author models.UserRef, createdTags []string) error {
	if err := f.graph.MergeNode(ctx, store.LabelUser, author.ID, userProps(author.Name)); err != nil {
		return err
	}
	if err := f.graph.MergeNode(ctx, store.LabelQuestion, q.ID, questionProps(q.Title, q.Created, false)); err != nil {
		return err
	}
	for _, tag := range q.Tags {
		if err := f.graph.MergeNode(ctx, store.LabelTag, tag, nil); err != nil {
			return err
		}
		if err := f.graph.MergeEdge(ctx, store.LabelQuestion, q.ID, store.EdgeAbout, store.LabelTag, tag, nil); err != nil {
			return err
		}
	}
	for _, tag := range createdTags {
		if err := f.graph.MergeEdge(ctx, store.LabelUser, author.ID, store.EdgeCreated, store.LabelTag, tag, nil); err != nil {
			return err
		}
	}
	if err := f.graph.MergeEdge(ctx, store.LabelUser, author.ID, store.EdgeAsked, store.LabelQuestion, q.ID, nil); err != nil {
		return err
	}
	return f.graph.MergeEdge(ctx, store.LabelUser, author.ID, store.EdgeWaitForUpdate, store.LabelQuestion, q.ID, nil)
}

// notify bumps the unread counter of every subscriber except the user whose
// activity caused the update.
func (f *Forum) notify(ctx context.Context, questionID string, interested []string, exceptUserID string) error {
	targets := make([]string, 0, len(interested))
	for _, id := range interested {
		if id != exceptUserID {
			targets = append(targets, id)
		}
	}
	return f.primary.BumpUnreadCounters(ctx, questionID, targets)
}

// AddAnswer appends an answer to a live question. A nil answer with a nil
// error means the question is gone or hidden.
func (f *Forum) AddAnswer(ctx context.Context, questionID string, author models.UserRef, text string) (*models.Answer, error) {
	a := &models.Answer{
		ID:         models.NewID(),
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Created:    time.Now().UTC(),
		Text:       text,
	}
	interested, applied, err := f.primary.AppendAnswer(ctx, questionID, a)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, nil
	}
	if err := f.notify(ctx, questionID, interested, author.ID); err != nil {
		return nil, err
	}

	if err := f.graph.MergeNode(ctx, store.LabelUser, author.ID, userProps(author.Name)); err != nil {
		return a, err
	}
	if err := f.graph.MergeNode(ctx, store.LabelAnswer, a.ID, createdProps(a.Created)); err != nil {
		return a, err
	}
	if err := f.graph.MergeEdge(ctx, store.LabelAnswer, a.ID, store.EdgeAnswered, store.LabelQuestion, questionID, nil); err != nil {
		return a, err
	}
	return a, f.graph.MergeEdge(ctx, store.LabelUser, author.ID, store.EdgeWrote, store.LabelAnswer, a.ID, nil)
}

// CommentQuestion attaches a comment directly to a question.
func (f *Forum) CommentQuestion(ctx context.Context, questionID string, author models.UserRef, text string) (*models.Comment, error) {
	c := newComment(author, text)
	interested, applied, err := f.primary.AppendQuestionComment(ctx, questionID, c)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, nil
	}
	if err := f.notify(ctx, questionID, interested, author.ID); err != nil {
		return nil, err
	}
	return c, f.mirrorComment(ctx, c, author, store.LabelQuestion, questionID)
}

// CommentAnswer attaches a comment to an answer within a question.
func (f *Forum) CommentAnswer(ctx context.Context, questionID, answerID string, author models.UserRef, text string) (*models.Comment, error) {
	c := newComment(author, text)
	interested, applied, err := f.primary.AppendAnswerComment(ctx, questionID, answerID, c)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, nil
	}
	if err := f.notify(ctx, questionID, interested, author.ID); err != nil {
		return nil, err
	}
	return c, f.mirrorComment(ctx, c, author, store.LabelAnswer, answerID)
}

func newComment(author models.UserRef, text string) *models.Comment {
	return &models.Comment{
		ID:         models.NewID(),
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Created:    time.Now().UTC(),
		Text:       text,
	}
}

func (f *Forum) mirrorComment(ctx context.Context, c *models.Comment, author models.UserRef, target store.Label, targetID string) error {
	if err := f.graph.MergeNode(ctx, store.LabelUser, author.ID, userProps(author.Name)); err != nil {
		return err
	}
	if err := f.graph.MergeNode(ctx, store.LabelComment, c.ID, createdProps(c.Created)); err != nil {
		return err
	}
	if err := f.graph.MergeEdge(ctx, store.LabelUser, author.ID, store.EdgeCommented, store.LabelComment, c.ID, nil); err != nil {
		return err
	}
	return f.graph.MergeEdge(ctx, store.LabelComment, c.ID, store.EdgeRefersTo, target, targetID, nil)
}

// Vote operations. A repeated identical verdict reports applied=false and
// mirrors nothing; changing one's verdict overwrites the VOTED edge props.

func (f *Forum) VoteAnswer(ctx context.Context, questionID, answerID string, voter models.UserRef, useful bool) (bool, error) {
	applied, err := f.primary.SetAnswerVote(ctx, questionID, answerID, voter.ID, models.Vote{Useful: useful})
	if err != nil || !applied {
		return applied, err
	}
	return true, f.mirrorVote(ctx, voter, store.LabelAnswer, answerID, useful)
}

func (f *Forum) RetractAnswerVote(ctx context.Context, questionID, answerID string, voter models.UserRef) (bool, error) {
	applied, err := f.primary.UnsetAnswerVote(ctx, questionID, answerID, voter.ID)
	if err != nil || !applied {
		return applied, err
	}
	return true, f.graph.DeleteEdge(ctx, voter.ID, store.EdgeVoted, answerID)
}

func (f *Forum) VoteQuestionComment(ctx context.Context, questionID, commentID string, voter models.UserRef, useful bool) (bool, error) {
	applied, err := f.primary.SetQuestionCommentVote(ctx, questionID, commentID, voter.ID, models.Vote{Useful: useful})
	if err != nil || !applied {
		return applied, err
	}
	return true, f.mirrorVote(ctx, voter, store.LabelComment, commentID, useful)
}

func (f *Forum) RetractQuestionCommentVote(ctx context.Context, questionID, commentID string, voter models.UserRef) (bool, error) {
	applied, err := f.primary.UnsetQuestionCommentVote(ctx, questionID, commentID, voter.ID)
	if err != nil || !applied {
		return applied, err
	}
	return true, f.graph.DeleteEdge(ctx, voter.ID, store.EdgeVoted, commentID)
}

func (f *Forum) VoteAnswerComment(ctx context.Context, questionID, answerID, commentID string, voter models.UserRef, useful bool) (bool, error) {
	applied, err := f.primary.SetAnswerCommentVote(ctx, questionID, answerID, commentID, voter.ID, models.Vote{Useful: useful})
	if err != nil || !applied {
		return applied, err
	}
	return true, f.mirrorVote(ctx, voter, store.LabelComment, commentID, useful)
}

func (f *Forum) RetractAnswerCommentVote(ctx context.Context, questionID, answerID, commentID string, voter models.UserRef) (bool, error) {
	applied, err := f.primary.UnsetAnswerCommentVote(ctx, questionID, answerID, commentID, voter.ID)
	if err != nil || !applied {
		return applied, err
	}
	return true, f.graph.DeleteEdge(ctx, voter.ID, store.EdgeVoted, commentID)
}

func (f *Forum) mirrorVote(ctx context.Context, voter models.UserRef, target store.Label, targetID string, useful bool) error {
	if err := f.graph.MergeNode(ctx, store.LabelUser, voter.ID, userProps(voter.Name)); err != nil {
		return err
	}
	return f.graph.MergeEdge(ctx, store.LabelUser, voter.ID, store.EdgeVoted, target, targetID, map[string]any{"useful": useful})
}

// SetSolved flips the solved flag, stamps it onto every subscriber's
// snapshot and mirrors it onto the Question node.
func (f *Forum) SetSolved(ctx context.Context, questionID string, solved bool) (bool, error) {
	interested, applied, err := f.primary.SetSolved(ctx, questionID, solved)
	if err != nil || !applied {
		return applied, err
	}
	if err := f.primary.SetSolvedFlags(ctx, questionID, interested, solved); err != nil {
		return true, err
	}
	return true, f.graph.MergeNode(ctx, store.LabelQuestion, questionID, map[string]any{"solved": solved})
}

// MarkAnswerSolution records the accepted answer. Only the question author
// may accept; anyone else is a no-op.
func (f *Forum) MarkAnswerSolution(ctx context.Context, questionID, answerID string, author models.UserRef) (bool, error) {
	return f.primary.MarkAnswerSolution(ctx, questionID, answerID, author.ID)
}

func (f *Forum) UnmarkAnswerSolution(ctx context.Context, questionID string, author models.UserRef) (bool, error) {
	return f.primary.UnmarkAnswerSolution(ctx, questionID, author.ID)
}

// Moderator hides. The content stays in the primary store with a removal
// stamp; the graph records who hid what.

func (f *Forum) HideQuestion(ctx context.Context, questionID string, moderator models.UserRef, reason string) (bool, error) {
	applied, err := f.primary.RemoveQuestion(ctx, questionID, removedBy(moderator, reason))
	if err != nil || !applied {
		return applied, err
	}
	return true, f.mirrorHide(ctx, moderator, store.LabelQuestion, questionID)
}

func (f *Forum) HideAnswer(ctx context.Context, questionID, answerID string, moderator models.UserRef, reason string) (bool, error) {
	applied, err := f.primary.RemoveAnswer(ctx, questionID, answerID, removedBy(moderator, reason))
	if err != nil || !applied {
		return applied, err
	}
	return true, f.mirrorHide(ctx, moderator, store.LabelAnswer, answerID)
}

func (f *Forum) HideQuestionComment(ctx context.Context, questionID, commentID string, moderator models.UserRef, reason string) (bool, error) {
	applied, err := f.primary.RemoveQuestionComment(ctx, questionID, commentID, removedBy(moderator, reason))
	if err != nil || !applied {
		return applied, err
	}
	return true, f.mirrorHide(ctx, moderator, store.LabelComment, commentID)
}

func (f *Forum) HideAnswerComment(ctx context.Context, questionID, answerID, commentID string, moderator models.UserRef, reason string) (bool, error) {
	applied, err := f.primary.RemoveAnswerComment(ctx, questionID, answerID, commentID, removedBy(moderator, reason))
	if err != nil || !applied {
		return applied, err
	}
	return true, f.mirrorHide(ctx, moderator, store.LabelComment, commentID)
}

func removedBy(moderator models.UserRef, reason string) models.RemovedPost {
	return models.RemovedPost{ModeratorID: moderator.ID, Reason: reason, At: time.Now().UTC()}
}

func (f *Forum) mirrorHide(ctx context.Context, moderator models.UserRef, target store.Label, targetID string) error {
	if err := f.graph.MergeNode(ctx, store.LabelUser, moderator.ID, userProps(moderator.Name)); err != nil {
		return err
	}
	return f.graph.MergeEdge(ctx, store.LabelUser, moderator.ID, store.EdgeHid, target, targetID, nil)
}

// Reads.

// GetQuestion loads a question with display names resolved. Hidden
// questions read as missing.
func (f *Forum) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	q, err := f.primary.Question(ctx, id)
	if err != nil || q == nil {
		return nil, err
	}
	if q.Removed != nil {
		return nil, nil
	}
	if err := f.fillNames(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (f *Forum) GetQuestions(ctx context.Context, skip, limit int64) ([]*models.Question, error) {
	qs, err := f.primary.Questions(ctx, skip, limit)
	if err != nil {
		return nil, err
	}
	return qs, f.fillAuthorNames(ctx, qs)
}

func (f *Forum) GetQuestionsByTag(ctx context.Context, tag string, skip, limit int64) ([]*models.Question, error) {
	qs, err := f.primary.QuestionsByTag(ctx, tag, skip, limit)
	if err != nil {
		return nil, err
	}
	return qs, f.fillAuthorNames(ctx, qs)
}

func (f *Forum) SearchQuestions(ctx context.Context, keywords string, tags []string, skip, limit int64) ([]*models.Question, error) {
	qs, err := f.primary.SearchQuestions(ctx, keywords, tags, skip, limit)
	if err != nil {
		return nil, err
	}
	return qs, f.fillAuthorNames(ctx, qs)
}

func (f *Forum) fillAuthorNames(ctx context.Context, qs []*models.Question) error {
	for _, q := range qs {
		name, err := f.resolveName(ctx, q.AuthorID)
		if err != nil {
			return err
		}
		q.AuthorName = name
	}
	return nil
}

func (f *Forum) fillNames(ctx context.Context, q *models.Question) error {
	var err error
	if q.AuthorName, err = f.resolveName(ctx, q.AuthorID); err != nil {
		return err
	}
	for i := range q.Comments {
		if q.Comments[i].AuthorName, err = f.resolveName(ctx, q.Comments[i].AuthorID); err != nil {
			return err
		}
	}
	for i := range q.Answers {
		a := &q.Answers[i]
		if a.AuthorName, err = f.resolveName(ctx, a.AuthorID); err != nil {
			return err
		}
		for j := range a.Comments {
			if a.Comments[j].AuthorName, err = f.resolveName(ctx, a.Comments[j].AuthorID); err != nil {
				return err
			}
		}
	}
	return nil
}

// ContributedQuestions lists discussions the user answered or commented in
// but did not ask, from the graph projection.
func (f *Forum) ContributedQuestions(ctx context.Context, userID string) ([]models.QuestionPreview, error) {
	return f.graph.ContributedQuestions(ctx, userID)
}

func (f *Forum) AskedQuestions(ctx context.Context, userID string, skip, limit int64) ([]models.QuestionPreview, error) {
	return f.graph.AskedQuestions(ctx, userID, skip, limit)
}

func (f *Forum) CountAskedQuestions(ctx context.Context, userID string) (int64, error) {
	return f.graph.CountAskedQuestions(ctx, userID)
}

func (f *Forum) VoteStats(ctx context.Context, userID string) (models.VoteStats, error) {
	return f.graph.VoteStats(ctx, userID)
}
