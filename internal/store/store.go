// Package store declares the persistence contracts the services depend on.
// mongostore implements them on MongoDB and memstore in process memory.
package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"shopnest-backend/internal/models"
)

type Users interface {
	// Create inserts u and sets its ID. Duplicate emails fail with apperr.ErrConflict.
	Create(ctx context.Context, u *models.User) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// GetByResetToken finds the user holding tokenHash whose expiry is after now.
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type Products interface {
	Create(ctx context.Context, p *models.Product) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	// GetMany returns the products that still exist, keyed by ID.
	GetMany(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Product, error)
	// Update writes the seller-editable fields: name, description, price,
	// category, stock and images.
	Update(ctx context.Context, p *models.Product) error
	// SaveReviews writes reviews, rating and numOfReviews only.
	SaveReviews(ctx context.Context, p *models.Product) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	ListByOwner(ctx context.Context, owner primitive.ObjectID) ([]models.Product, error)
	DeleteByOwner(ctx context.Context, owner primitive.ObjectID) error
	// Find applies q including its window. Count ignores the window.
	Find(ctx context.Context, q ProductQuery) ([]models.Product, error)
	Count(ctx context.Context, q ProductQuery) (int64, error)
	// AdjustStock adds delta to the product's stock. A negative delta only
	// applies while stock >= -delta, otherwise apperr.ErrInsufficientStock.
	AdjustStock(ctx context.Context, id primitive.ObjectID, delta int) error
}

type Orders interface {
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	// Update replaces o if its stored version still equals o.Version and
	// bumps o.Version. A stale version fails with apperr.ErrConflict.
	Update(ctx context.Context, o *models.Order) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	ListByUser(ctx context.Context, user primitive.ObjectID) ([]models.Order, error)
	ListByProducts(ctx context.Context, products []primitive.ObjectID) ([]models.Order, error)
	DeleteByUser(ctx context.Context, user primitive.ObjectID) error
	// PullProducts removes line items referencing products from every order
	// and deletes orders left empty.
	PullProducts(ctx context.Context, products []primitive.ObjectID) error
}

// TxRunner runs fn atomically where the backend supports it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles the repositories of one backend.
type Store interface {
	TxRunner
	Users() Users
	Products() Products
	Orders() Orders
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
