package forum

import (
	"context"
	"sort"
	"time"

	"github.com/goverflow/goverflow/pkg/models"
	"github.com/goverflow/goverflow/pkg/store"
)

// SubscriptionView is one entry of a user's watched-questions list: the
// snapshot frozen at subscribe time plus the live counters.
type SubscriptionView struct {
	QuestionID string    `json:"questionId"`
	Title      string    `json:"title"`
	Created    time.Time `json:"created"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName,omitempty"`
	Tags       []string  `json:"tags"`
	Unread     int       `json:"unread"`
	Solved     bool      `json:"solved"`
}

// Subscribe registers the user's interest in a question. Subscribing twice,
// or losing the race to a concurrent subscribe, is a no-op reported as
// applied=false.
func (f *Forum) Subscribe(ctx context.Context, questionID string, user models.UserRef) (bool, error) {
	applied, err := f.primary.Subscribe(ctx, questionID, user.ID, time.Now().UTC())
	if err != nil || !applied {
		return applied, err
	}
	if err := f.graph.MergeNode(ctx, store.LabelUser, user.ID, userProps(user.Name)); err != nil {
		return true, err
	}
	return true, f.graph.MergeEdge(ctx, store.LabelUser, user.ID, store.EdgeWaitForUpdate, store.LabelQuestion, questionID, nil)
}

// Unsubscribe drops the interest and the snapshot; future notifications for
// the question no longer reach the user.
func (f *Forum) Unsubscribe(ctx context.Context, questionID string, user models.UserRef) (bool, error) {
	applied, err := f.primary.Unsubscribe(ctx, questionID, user.ID)
	if err != nil || !applied {
		return applied, err
	}
	return true, f.graph.DeleteEdge(ctx, user.ID, store.EdgeWaitForUpdate, questionID)
}

// Subscriptions returns the user's watched questions, newest first.
func (f *Forum) Subscriptions(ctx context.Context, userID string) ([]SubscriptionView, error) {
	u, err := f.primary.User(ctx, userID)
	if err != nil || u == nil {
		return nil, err
	}
	views := make([]SubscriptionView, 0, len(u.Updates))
	for questionID, upd := range u.Updates {
		solved := upd.Solved != nil && *upd.Solved
		views = append(views, SubscriptionView{
			QuestionID: questionID,
			Title:      upd.Title,
			Created:    upd.Created,
			AuthorID:   upd.AuthorID,
			AuthorName: upd.AuthorName,
			Tags:       upd.Tags,
			Unread:     upd.UnreadCount(),
			Solved:     solved,
		})
	}
	sort.Slice(views, func(i, j int) bool {
		if !views[i].Created.Equal(views[j].Created) {
			return views[i].Created.After(views[j].Created)
		}
		return views[i].QuestionID < views[j].QuestionID
	})
	return views, nil
}

// ConsumeNotification zeroes the unread counter after the user has read the
// question. Consuming with no subscription is a no-op.
func (f *Forum) ConsumeNotification(ctx context.Context, userID, questionID string) (bool, error) {
	return f.primary.ConsumeNotifications(ctx, userID, questionID)
}
