package forum

import (
	"context"
	"time"

	"github.com/goverflow/goverflow/pkg/models"
	"github.com/goverflow/goverflow/pkg/store"
)

// RegisterUser creates an account and mirrors the User node.
func (f *Forum) RegisterUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	u := &models.User{
		ID:           models.NewID(),
		Registered:   time.Now().UTC(),
		Email:        email,
		PasswordHash: passwordHash,
		Username:     username,
	}
	if err := f.primary.InsertUser(ctx, u); err != nil {
		return nil, err
	}
	if f.names != nil {
		if err := f.names.Put(ctx, u.ID, u.Username); err != nil {
			f.log.Warn().Err(err).Msg("name cache write failed")
		}
	}
	return u, f.graph.MergeNode(ctx, store.LabelUser, u.ID, userProps(u.Username))
}

func (f *Forum) GetUser(ctx context.Context, id string) (*models.User, error) {
	return f.primary.User(ctx, id)
}

func (f *Forum) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return f.primary.UserByEmail(ctx, email)
}

func (f *Forum) GetUserByName(ctx context.Context, username string) (*models.User, error) {
	return f.primary.UserByName(ctx, username)
}

func (f *Forum) FindUsersByName(ctx context.Context, prefix string, limit int64) ([]*models.User, error) {
	return f.primary.FindUsersByName(ctx, prefix, limit)
}

// BanUser bans the victim starting now. A nil until means a permanent ban.
// Administrators cannot be banned; trying is a no-op.
func (f *Forum) BanUser(ctx context.Context, victimID string, admin models.UserRef, until *time.Time, reason string) (bool, error) {
	ban := models.BanInfo{
		ID:     models.NewID(),
		Start:  time.Now().UTC(),
		End:    until,
		Reason: reason,
	}
	return f.primary.BanUser(ctx, victimID, admin.ID, ban)
}

// IsBanned reports whether the user is banned right now. Unknown users are
// not banned.
func (f *Forum) IsBanned(ctx context.Context, userID string) (bool, error) {
	u, err := f.primary.User(ctx, userID)
	if err != nil || u == nil {
		return false, err
	}
	return u.BannedAt(time.Now().UTC()), nil
}
