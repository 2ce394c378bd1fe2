package forum

import (
	"context"

	"github.com/goverflow/goverflow/pkg/models"
	"github.com/goverflow/goverflow/pkg/store"
)

// FollowTag adds the tag to the user's followed set. Following an unknown
// tag, or one already followed, is a no-op.
func (f *Forum) FollowTag(ctx context.Context, user models.UserRef, tag string) (bool, error) {
	applied, err := f.primary.FollowTag(ctx, user.ID, tag)
	if err != nil || !applied {
		return applied, err
	}
	if err := f.graph.MergeNode(ctx, store.LabelUser, user.ID, userProps(user.Name)); err != nil {
		return true, err
	}
	return true, f.graph.MergeEdge(ctx, store.LabelUser, user.ID, store.EdgeFollows, store.LabelTag, tag, nil)
}

func (f *Forum) UnfollowTag(ctx context.Context, user models.UserRef, tag string) (bool, error) {
	applied, err := f.primary.UnfollowTag(ctx, user.ID, tag)
	if err != nil || !applied {
		return applied, err
	}
	return true, f.graph.DeleteEdge(ctx, user.ID, store.EdgeFollows, tag)
}

// DefineTag gives an undefined tag its description and records the definer
// as its author.
func (f *Forum) DefineTag(ctx context.Context, name, description string, author models.UserRef) (bool, error) {
	applied, err := f.primary.DefineTag(ctx, name, description, author.ID)
	if err != nil || !applied {
		return applied, err
	}
	if err := f.graph.MergeNode(ctx, store.LabelUser, author.ID, userProps(author.Name)); err != nil {
		return true, err
	}
	return true, f.graph.MergeEdge(ctx, store.LabelUser, author.ID, store.EdgeCreated, store.LabelTag, name, nil)
}

func (f *Forum) GetTag(ctx context.Context, name string) (*models.Tag, error) {
	t, err := f.primary.Tag(ctx, name)
	if err != nil || t == nil {
		return nil, err
	}
	if t.AuthorName, err = f.resolveName(ctx, t.AuthorID); err != nil {
		return nil, err
	}
	return t, nil
}

func (f *Forum) GetTags(ctx context.Context, prefix string, skip, limit int64) ([]*models.Tag, error) {
	return f.primary.Tags(ctx, prefix, skip, limit)
}

// TagCoUsages lists the tags most often used together with the given tag,
// from the graph projection.
func (f *Forum) TagCoUsages(ctx context.Context, tag string) ([]models.TagCoUsage, error) {
	return f.graph.TagCoUsages(ctx, tag)
}
