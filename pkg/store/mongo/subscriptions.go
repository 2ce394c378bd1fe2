package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/goverflow/goverflow/pkg/models"
)

// Subscribe adds the user to the question's interested set and freezes the
// question's headline fields into the user's snapshot. The exists-guard on
// the interested key makes a repeated subscribe, or the loser of a race, a
// clean no-op.
func (s *Store) Subscribe(ctx context.Context, questionID, userID string, since time.Time) (bool, error) {
	applied := false
	err := s.withTxn(ctx, func(ctx context.Context) error {
		filter := bson.M{
			"_id":     questionID,
			"removed": nil,
			"interestedUsers." + userID: bson.M{"$exists": false},
		}
		update := bson.M{"$set": bson.M{
			"interestedUsers." + userID: models.InterestedUser{Since: since},
		}}
		opts := options.FindOneAndUpdate().
			SetProjection(bson.M{"title": 1, "created": 1, "authorId": 1, "tags": 1})

		var q models.Question
		err := s.questions.FindOneAndUpdate(ctx, filter, update, opts).Decode(&q)
		if errors.Is(err, mongo.ErrNoDocuments) {
			applied = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}

		snapshot := models.QuestionUpdate{
			Title:    q.Title,
			Created:  q.Created,
			AuthorID: q.AuthorID,
			Tags:     q.Tags,
		}
		if _, err := s.users.UpdateOne(ctx,
			bson.M{"_id": userID},
			bson.M{"$set": bson.M{"updates." + questionID: snapshot}},
		); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

func (s *Store) Unsubscribe(ctx context.Context, questionID, userID string) (bool, error) {
	applied := false
	err := s.withTxn(ctx, func(ctx context.Context) error {
		res, err := s.questions.UpdateOne(ctx,
			bson.M{"_id": questionID, "interestedUsers." + userID: bson.M{"$exists": true}},
			bson.M{"$unset": bson.M{"interestedUsers." + userID: ""}},
		)
		if err != nil {
			return fmt.Errorf("unsubscribe: %w", err)
		}
		if res.ModifiedCount == 0 {
			applied = false
			return nil
		}

		if _, err := s.users.UpdateOne(ctx,
			bson.M{"_id": userID},
			bson.M{"$unset": bson.M{"updates." + questionID: ""}},
		); err != nil {
			return fmt.Errorf("drop snapshot: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

// BumpUnreadCounters increments the per-question unread counter on every
// listed user in one bulk update. Users who unsubscribed since the caller
// read the interested set are filtered out by the snapshot guard.
func (s *Store) BumpUnreadCounters(ctx context.Context, questionID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := s.users.UpdateMany(ctx,
		bson.M{
			"_id": bson.M{"$in": userIDs},
			"updates." + questionID: bson.M{"$exists": true},
		},
		bson.M{"$inc": bson.M{"updates." + questionID + ".countUpdates": 1}},
	)
	if err != nil {
		return fmt.Errorf("bump counters: %w", err)
	}
	return nil
}

func (s *Store) SetSolvedFlags(ctx context.Context, questionID string, userIDs []string, solved bool) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := s.users.UpdateMany(ctx,
		bson.M{
			"_id": bson.M{"$in": userIDs},
			"updates." + questionID: bson.M{"$exists": true},
		},
		bson.M{"$set": bson.M{"updates." + questionID + ".solved": solved}},
	)
	if err != nil {
		return fmt.Errorf("flag solved: %w", err)
	}
	return nil
}

func (s *Store) ConsumeNotifications(ctx context.Context, userID, questionID string) (bool, error) {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID, "updates." + questionID: bson.M{"$exists": true}},
		bson.M{"$set": bson.M{"updates." + questionID + ".countUpdates": 0}},
	)
	if err != nil {
		return false, fmt.Errorf("consume notifications: %w", err)
	}
	return res.MatchedCount > 0, nil
}
