// Package mongostore implements the store contracts on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/store"
)

type Options struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	// Transactions enables multi-document transactions in RunInTx. It needs
	// a replica set or sharded cluster.
	Transactions bool
}

type Store struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool
	users        *userRepo
	products     *productRepo
	orders       *orderRepo
}

var _ store.Store = (*Store)(nil)

// Open connects, pings and makes sure the indexes exist.
func Open(ctx context.Context, opts Options) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := New(client.Database(opts.Database), opts.Transactions)
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle.
func New(db *mongo.Database, transactions bool) *Store {
	return &Store{
		client:       db.Client(),
		db:           db,
		transactions: transactions,
		users:        &userRepo{coll: db.Collection("users")},
		products:     &productRepo{coll: db.Collection("products")},
		orders:       &orderRepo{coll: db.Collection("orders")},
	}
}

func (s *Store) Users() store.Users       { return s.users }
func (s *Store) Products() store.Products { return s.products }
func (s *Store) Orders() store.Orders     { return s.orders }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// RunInTx runs fn in a transaction when enabled, otherwise directly.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions {
		return fn(ctx)
	}
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongo start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		"users": {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "resetPasswordToken", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
		"products": {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "price", Value: 1}}},
		},
		"orders": {
			{Keys: bson.D{{Key: "user", Value: 1}}},
			{Keys: bson.D{{Key: "orderItems.product", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

// notFound converts mongo.ErrNoDocuments into the API's not-found kind.
func notFound(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound(what + " not found")
	}
	return err
}
