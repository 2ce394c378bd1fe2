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

func (s *Store) InsertUser(ctx context.Context, u *models.User) error {
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) User(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Store) UserByName(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	err := s.users.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *Store) FindUsersByName(ctx context.Context, prefix string, limit int64) ([]*models.User, error) {
	filter := bson.M{"username": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
	opts := options.Find().
		SetSort(bson.D{{Key: "username", Value: 1}}).
		SetLimit(limit)
	cur, err := s.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cur.Close(ctx)

	var users []*models.User
	for cur.Next(ctx) {
		var u models.User
		if err := cur.Decode(&u); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		users = append(users, &u)
	}
	return users, cur.Err()
}

func (s *Store) EachUser(ctx context.Context, fn func(*models.User) error) error {
	cur, err := s.users.Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("stream users: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var u models.User
		if err := cur.Decode(&u); err != nil {
			return fmt.Errorf("decode user: %w", err)
		}
		if err := fn(&u); err != nil {
			return err
		}
	}
	return cur.Err()
}

// BanUser pushes the ban onto the victim's history and mirrors the issued
// record on the admin's ledger. The victim update is guarded against
// administrators; when it matches nothing, the admin side never runs.
func (s *Store) BanUser(ctx context.Context, victimID, adminID string, ban models.BanInfo) (bool, error) {
	applied := false
	err := s.withTxn(ctx, func(ctx context.Context) error {
		res, err := s.users.UpdateOne(ctx,
			bson.M{"_id": victimID, "isAdmin": false},
			bson.M{"$push": bson.M{"bans": ban}},
		)
		if err != nil {
			return fmt.Errorf("ban user: %w", err)
		}
		if res.MatchedCount == 0 {
			applied = false
			return nil
		}

		entry := models.BannedUser{UserID: victimID, BanID: ban.ID, At: ban.Start}
		if _, err := s.users.UpdateOne(ctx,
			bson.M{"_id": adminID},
			bson.M{"$push": bson.M{"bannedUsers": entry}},
		); err != nil {
			return fmt.Errorf("record issued ban: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}
