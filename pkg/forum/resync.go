package forum

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/goverflow/goverflow/pkg/models"
	"github.com/goverflow/goverflow/pkg/store"
)

// ResyncReport summarizes a full resynchronization run.
type ResyncReport struct {
	Users     int64 `json:"users"`
	Questions int64 `json:"questions"`
	Tags      int64 `json:"tags"`
	// Skipped counts entities whose replay failed; the run continues past
	// them and they stay absent until the next resync.
	Skipped int64 `json:"skipped"`
}

// Resync rebuilds the graph projection from scratch: wipe everything, then
// replay users, questions and tags concurrently through the same idempotent
// merges the bridge uses. A failed entity is logged and skipped; a failed
// stream aborts the run. Because every write is a merge, rerunning a resync
// on an unchanged primary reproduces the identical graph.
func (f *Forum) Resync(ctx context.Context) (*ResyncReport, error) {
	if err := f.graph.ClearAll(ctx); err != nil {
		return nil, err
	}
	f.log.Info().Msg("projection cleared, replaying primary store")

	var users, questions, tags, skipped atomic.Int64
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return f.primary.EachUser(ctx, func(u *models.User) error {
			if err := f.syncUser(ctx, u); err != nil {
				f.log.Warn().Err(err).Str("user", u.ID).Msg("skipping user during resync")
				skipped.Add(1)
				return nil
			}
			users.Add(1)
			return nil
		})
	})
	g.Go(func() error {
		return f.primary.EachQuestion(ctx, func(q *models.Question) error {
			if err := f.syncQuestion(ctx, q); err != nil {
				f.log.Warn().Err(err).Str("question", q.ID).Msg("skipping question during resync")
				skipped.Add(1)
				return nil
			}
			questions.Add(1)
			return nil
		})
	})
	g.Go(func() error {
		return f.primary.EachTag(ctx, func(t *models.Tag) error {
			if err := f.syncTag(ctx, t); err != nil {
				f.log.Warn().Err(err).Str("tag", t.Name).Msg("skipping tag during resync")
				skipped.Add(1)
				return nil
			}
			tags.Add(1)
			return nil
		})
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	report := &ResyncReport{
		Users:     users.Load(),
		Questions: questions.Load(),
		Tags:      tags.Load(),
		Skipped:   skipped.Load(),
	}
	f.log.Info().
		Int64("users", report.Users).
		Int64("questions", report.Questions).
		Int64("tags", report.Tags).
		Int64("skipped", report.Skipped).
		Msg("resync complete")
	return report, nil
}

func (f *Forum) syncUser(ctx context.Context, u *models.User) error {
	if err := f.graph.MergeNode(ctx, store.LabelUser, u.ID, userProps(u.Username)); err != nil {
		return err
	}
	// CreatedTags records who introduced a tag through a question; the tag
	// document's authorId can point elsewhere once someone defines it, so
	// both sides replay their own CREATED edge.
	for _, tag := range u.CreatedTags {
		if err := f.graph.MergeEdge(ctx, store.LabelUser, u.ID, store.EdgeCreated, store.LabelTag, tag, nil); err != nil {
			return err
		}
	}
	for _, tag := range u.FollowedTags {
		if err := f.graph.MergeEdge(ctx, store.LabelUser, u.ID, store.EdgeFollows, store.LabelTag, tag, nil); err != nil {
			return err
		}
	}
	for questionID := range u.Updates {
		if err := f.graph.MergeEdge(ctx, store.LabelUser, u.ID, store.EdgeWaitForUpdate, store.LabelQuestion, questionID, nil); err != nil {
			return err
		}
	}
	return nil
}

func (f *Forum) syncQuestion(ctx context.Context, q *models.Question) error {
	if err := f.graph.MergeNode(ctx, store.LabelQuestion, q.ID, questionProps(q.Title, q.Created, q.Solved)); err != nil {
		return err
	}
	if err := f.graph.MergeEdge(ctx, store.LabelUser, q.AuthorID, store.EdgeAsked, store.LabelQuestion, q.ID, nil); err != nil {
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
	for userID := range q.InterestedUsers {
		if err := f.graph.MergeEdge(ctx, store.LabelUser, userID, store.EdgeWaitForUpdate, store.LabelQuestion, q.ID, nil); err != nil {
			return err
		}
	}
	if q.Removed != nil {
		if err := f.graph.MergeEdge(ctx, store.LabelUser, q.Removed.ModeratorID, store.EdgeHid, store.LabelQuestion, q.ID, nil); err != nil {
			return err
		}
	}

	for i := range q.Comments {
		if err := f.syncComment(ctx, &q.Comments[i], store.LabelQuestion, q.ID); err != nil {
			return err
		}
	}
	for i := range q.Answers {
		if err := f.syncAnswer(ctx, &q.Answers[i], q.ID); err != nil {
			return err
		}
	}
	return nil
}

func (f *Forum) syncAnswer(ctx context.Context, a *models.Answer, questionID string) error {
	if err := f.graph.MergeNode(ctx, store.LabelAnswer, a.ID, createdProps(a.Created)); err != nil {
		return err
	}
	if err := f.graph.MergeEdge(ctx, store.LabelAnswer, a.ID, store.EdgeAnswered, store.LabelQuestion, questionID, nil); err != nil {
		return err
	}
	if err := f.graph.MergeEdge(ctx, store.LabelUser, a.AuthorID, store.EdgeWrote, store.LabelAnswer, a.ID, nil); err != nil {
		return err
	}
	// Vote edges are attributed to the voter keyed in the votes map.
	for voterID, v := range a.Votes {
		if err := f.graph.MergeEdge(ctx, store.LabelUser, voterID, store.EdgeVoted, store.LabelAnswer, a.ID, map[string]any{"useful": v.Useful}); err != nil {
			return err
		}
	}
	if a.Removed != nil {
		if err := f.graph.MergeEdge(ctx, store.LabelUser, a.Removed.ModeratorID, store.EdgeHid, store.LabelAnswer, a.ID, nil); err != nil {
			return err
		}
	}
	for i := range a.Comments {
		if err := f.syncComment(ctx, &a.Comments[i], store.LabelAnswer, a.ID); err != nil {
			return err
		}
	}
	return nil
}

func (f *Forum) syncTag(ctx context.Context, t *models.Tag) error {
	if err := f.graph.MergeNode(ctx, store.LabelTag, t.Name, nil); err != nil {
		return err
	}
	if t.AuthorID == "" {
		return nil
	}
	return f.graph.MergeEdge(ctx, store.LabelUser, t.AuthorID, store.EdgeCreated, store.LabelTag, t.Name, nil)
}

func (f *Forum) syncComment(ctx context.Context, c *models.Comment, target store.Label, targetID string) error {
	if err := f.graph.MergeNode(ctx, store.LabelComment, c.ID, createdProps(c.Created)); err != nil {
		return err
	}
	if err := f.graph.MergeEdge(ctx, store.LabelUser, c.AuthorID, store.EdgeCommented, store.LabelComment, c.ID, nil); err != nil {
		return err
	}
	if err := f.graph.MergeEdge(ctx, store.LabelComment, c.ID, store.EdgeRefersTo, target, targetID, nil); err != nil {
		return err
	}
	for voterID, v := range c.Votes {
		if err := f.graph.MergeEdge(ctx, store.LabelUser, voterID, store.EdgeVoted, store.LabelComment, c.ID, map[string]any{"useful": v.Useful}); err != nil {
			return err
		}
	}
	if c.Removed != nil {
		if err := f.graph.MergeEdge(ctx, store.LabelUser, c.Removed.ModeratorID, store.EdgeHid, store.LabelComment, c.ID, nil); err != nil {
			return err
		}
	}
	return nil
}
