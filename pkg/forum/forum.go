// Package forum implements the domain operations of the Q&A service on top
// of the two stores. Every mutation follows the same bridge discipline: the
// conditional write against the primary store decides whether the operation
// happened, and only a confirmed primary write is mirrored into the graph
// projection. A primary no-op (the precondition did not hold, or a
// concurrent caller got there first) returns nil results and no error, and
// nothing is mirrored.
package forum

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/goverflow/goverflow/pkg/namecache"
	"github.com/goverflow/goverflow/pkg/store"
)

// Forum wires the primary store, the graph projection and the display-name
// cache together.
type Forum struct {
	primary store.Primary
	graph   store.Projection
	names   *namecache.Cache // optional; nil resolves through the primary only
	log     zerolog.Logger
}

// New builds a Forum. names may be nil, in which case every display-name
// lookup goes to the primary store.
func New(primary store.Primary, graph store.Projection, names *namecache.Cache, log zerolog.Logger) *Forum {
	return &Forum{
		primary: primary,
		graph:   graph,
		names:   names,
		log:     log,
	}
}

func (f *Forum) Close(ctx context.Context) error {
	if f.names != nil {
		if err := f.names.Close(); err != nil {
			f.log.Warn().Err(err).Msg("close name cache")
		}
	}
	if err := f.graph.Close(ctx); err != nil {
		return err
	}
	return f.primary.Close(ctx)
}

// resolveName turns a user id into a display name, consulting the cache
// first. Unknown ids resolve to the empty string: a reference to a deleted
// user should not fail the read that carries it.
func (f *Forum) resolveName(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", nil
	}
	if f.names != nil {
		name, ok, err := f.names.Get(ctx, userID)
		if err != nil {
			f.log.Warn().Err(err).Msg("name cache read failed")
		} else if ok {
			return name, nil
		}
	}

	u, err := f.primary.User(ctx, userID)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", nil
	}
	if f.names != nil {
		if err := f.names.Put(ctx, userID, u.Username); err != nil {
			f.log.Warn().Err(err).Msg("name cache write failed")
		}
	}
	return u.Username, nil
}
