// Package mongo implements the primary document store on MongoDB.
//
// Every mutation is expressed as a conditional update whose filter carries
// the operation's precondition, so the database arbitrates races between
// concurrent writers. Multi-document operations run inside a transaction
// when the deployment is a replica set; on a standalone server they fall
// back to running the steps in sequence.
package mongo

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Store is the MongoDB-backed primary store.
type Store struct {
	client    *mongo.Client
	users     *mongo.Collection
	questions *mongo.Collection
	tags      *mongo.Collection

	// txnSupported is detected once at startup: multi-document transactions
	// need a replica set, which the hello response reveals through setName.
	txnSupported bool

	log zerolog.Logger
}

// New connects to MongoDB, detects transaction support and ensures the
// indexes the conditional updates and searches rely on.
func New(ctx context.Context, uri, database string, log zerolog.Logger) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:    client,
		users:     db.Collection("users"),
		questions: db.Collection("questions"),
		tags:      db.Collection("tags"),
		log:       log,
	}

	var hello struct {
		SetName string `bson:"setName"`
	}
	// The hello command never fails on a healthy server; decode errors just
	// mean no setName field, i.e. a standalone deployment.
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err == nil {
		s.txnSupported = hello.SetName != ""
	}
	s.log.Info().
		Bool("transactions", s.txnSupported).
		Str("database", database).
		Msg("connected to primary store")

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	_, err = s.questions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "tags", Value: 1}, {Key: "created", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "title", Value: "text"}, {Key: "text", Value: "text"}},
		},
	})
	if err != nil {
		return fmt.Errorf("create question indexes: %w", err)
	}
	return nil
}

// TransactionsSupported reports whether multi-document operations run
// atomically on this deployment.
func (s *Store) TransactionsSupported() bool {
	return s.txnSupported
}

// withTxn runs fn inside a transaction when the deployment supports them,
// and plainly otherwise. fn may run more than once on transient transaction
// errors, so its steps must stay conditional.
func (s *Store) withTxn(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.txnSupported {
		return fn(ctx)
	}
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
