package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/goverflow/goverflow/pkg/models"
)

// errTagMissing aborts a follow transaction when the tag document vanished
// between the guard and the counter bump.
var errTagMissing = errors.New("tag missing")

func (s *Store) Tag(ctx context.Context, name string) (*models.Tag, error) {
	var t models.Tag
	err := s.tags.FindOne(ctx, bson.M{"_id": name}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find tag: %w", err)
	}
	return &t, nil
}

func (s *Store) Tags(ctx context.Context, prefix string, skip, limit int64) ([]*models.Tag, error) {
	filter := bson.M{}
	if prefix != "" {
		filter["_id"] = bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(skip).
		SetLimit(limit)
	cur, err := s.tags.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find tags: %w", err)
	}
	defer cur.Close(ctx)

	var tags []*models.Tag
	for cur.Next(ctx) {
		var t models.Tag
		if err := cur.Decode(&t); err != nil {
			return nil, fmt.Errorf("decode tag: %w", err)
		}
		tags = append(tags, &t)
	}
	return tags, cur.Err()
}

func (s *Store) EachTag(ctx context.Context, fn func(*models.Tag) error) error {
	cur, err := s.tags.Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("stream tags: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var t models.Tag
		if err := cur.Decode(&t); err != nil {
			return fmt.Errorf("decode tag: %w", err)
		}
		if err := fn(&t); err != nil {
			return err
		}
	}
	return cur.Err()
}

func (s *Store) DefineTag(ctx context.Context, name, description, authorID string) (bool, error) {
	res, err := s.tags.UpdateOne(ctx,
		bson.M{"_id": name, "defined": false},
		bson.M{"$set": bson.M{
			"description": description,
			"authorId":    authorID,
			"defined":     true,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("define tag: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// FollowTag adds the tag to the user's followed set and bumps the tag's
// follower counter. The $ne guard makes the user side race-safe; a missing
// tag aborts the transaction so the set membership does not outlive it.
func (s *Store) FollowTag(ctx context.Context, userID, tag string) (bool, error) {
	applied := false
	err := s.withTxn(ctx, func(ctx context.Context) error {
		res, err := s.users.UpdateOne(ctx,
			bson.M{"_id": userID, "followedTags": bson.M{"$ne": tag}},
			bson.M{"$addToSet": bson.M{"followedTags": tag}},
		)
		if err != nil {
			return fmt.Errorf("follow tag: %w", err)
		}
		if res.ModifiedCount == 0 {
			applied = false
			return nil
		}

		inc, err := s.tags.UpdateOne(ctx,
			bson.M{"_id": tag},
			bson.M{"$inc": bson.M{"countFollowers": 1}},
		)
		if err != nil {
			return fmt.Errorf("bump followers: %w", err)
		}
		if inc.MatchedCount == 0 {
			return errTagMissing
		}
		applied = true
		return nil
	})
	if errors.Is(err, errTagMissing) {
		return false, nil
	}
	return applied, err
}

func (s *Store) UnfollowTag(ctx context.Context, userID, tag string) (bool, error) {
	applied := false
	err := s.withTxn(ctx, func(ctx context.Context) error {
		res, err := s.users.UpdateOne(ctx,
			bson.M{"_id": userID, "followedTags": tag},
			bson.M{"$pull": bson.M{"followedTags": tag}},
		)
		if err != nil {
			return fmt.Errorf("unfollow tag: %w", err)
		}
		if res.ModifiedCount == 0 {
			applied = false
			return nil
		}

		if _, err := s.tags.UpdateOne(ctx,
			bson.M{"_id": tag},
			bson.M{"$inc": bson.M{"countFollowers": -1}},
		); err != nil {
			return fmt.Errorf("drop followers: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}
