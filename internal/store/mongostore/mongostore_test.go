package mongostore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/models"
	"shopnest-backend/internal/store"
)

func TestProductFilter(t *testing.T) {
	q := store.ProductQuery{
		Keyword: "usb (c)",
		Conditions: []store.Condition{
			{Field: "price", Op: store.OpGte, Value: 100.0},
			{Field: "price", Op: store.OpLt, Value: 500.0},
			{Field: "category", Op: store.OpEq, Value: "Laptop"},
		},
	}

	f := productFilter(q)

	assert.Equal(t, bson.M{"$regex": `usb \(c\)`, "$options": "i"}, f["name"])
	assert.Equal(t, bson.M{"$gte": 100.0, "$lt": 500.0}, f["price"])
	assert.Equal(t, "Laptop", f["category"])
	assert.Len(t, f, 3)
}

func TestProductFilterEmpty(t *testing.T) {
	assert.Empty(t, productFilter(store.ProductQuery{}))
}

func TestAdjustStock(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	id := primitive.NewObjectID()

	mt.Run("decrement applies", func(mt *mtest.T) {
		repo := &productRepo{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))
		require.NoError(mt, repo.AdjustStock(context.Background(), id, -2))
	})

	mt.Run("insufficient stock", func(mt *mtest.T) {
		repo := &productRepo{coll: mt.Coll}
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, "shop.products", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: id},
				{Key: "name", Value: "Desk Lamp"},
				{Key: "stock", Value: 1},
			}),
		)
		err := repo.AdjustStock(context.Background(), id, -3)
		assert.ErrorIs(mt, err, apperr.ErrInsufficientStock)
		assert.Contains(mt, apperr.Message(err), "Desk Lamp")
	})

	mt.Run("missing product", func(mt *mtest.T) {
		repo := &productRepo{coll: mt.Coll}
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, "shop.products", mtest.FirstBatch),
		)
		err := repo.AdjustStock(context.Background(), id, -1)
		assert.ErrorIs(mt, err, apperr.ErrNotFound)
	})
}

func TestOrderUpdateVersionCheck(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("bumps version", func(mt *mtest.T) {
		repo := &orderRepo{coll: mt.Coll}
		o := &models.Order{ID: primitive.NewObjectID(), Version: 3}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))
		require.NoError(mt, repo.Update(context.Background(), o))
		assert.Equal(mt, 4, o.Version)
	})

	mt.Run("stale version conflicts", func(mt *mtest.T) {
		repo := &orderRepo{coll: mt.Coll}
		o := &models.Order{ID: primitive.NewObjectID(), Version: 3}
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, "shop.orders", mtest.FirstBatch, bson.D{{Key: "n", Value: int64(1)}}),
		)
		err := repo.Update(context.Background(), o)
		assert.ErrorIs(mt, err, apperr.ErrConflict)
		assert.Equal(mt, 3, o.Version)
	})
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("duplicate", func(mt *mtest.T) {
		repo := &userRepo{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))
		err := repo.Create(context.Background(), &models.User{Email: "a@b.c"})
		assert.ErrorIs(mt, err, apperr.ErrConflict)
	})
}
