package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/models"
	"shopnest-backend/internal/store"
)

func seedProducts(t *testing.T, s *Store, owner primitive.ObjectID) []models.Product {
	t.Helper()
	ctx := context.Background()
	items := []models.Product{
		{Name: "Gaming Laptop", Category: "Laptop", Price: 1200, Stock: 4, Owner: owner},
		{Name: "Office Laptop", Category: "Laptop", Price: 600, Stock: 10, Owner: owner},
		{Name: "USB-C Cable", Category: "Accessories", Price: 15, Stock: 100},
		{Name: "Laptop Stand", Category: "Accessories", Price: 40, Stock: 0},
	}
	for i := range items {
		require.NoError(t, s.Products().Create(ctx, &items[i]))
	}
	return items
}

func TestProductFindAndCount(t *testing.T) {
	s := New()
	seedProducts(t, s, primitive.NewObjectID())
	ctx := context.Background()

	q := store.ProductQuery{
		Keyword:    "laptop",
		Conditions: []store.Condition{{Field: "price", Op: store.OpGte, Value: 100.0}},
	}
	all, err := s.Products().Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Gaming Laptop", all[0].Name)

	n, err := s.Products().Count(ctx, q)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	q.Skip, q.Limit = 1, 5
	page, err := s.Products().Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Office Laptop", page[0].Name)

	n, err = s.Products().Count(ctx, q)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n, "count ignores the window")

	cat, err := s.Products().Find(ctx, store.ProductQuery{
		Conditions: []store.Condition{{Field: "category", Op: store.OpEq, Value: "Accessories"}},
	})
	require.NoError(t, err)
	assert.Len(t, cat, 2)
}

func TestAdjustStock(t *testing.T) {
	s := New()
	items := seedProducts(t, s, primitive.NewObjectID())
	ctx := context.Background()

	require.NoError(t, s.Products().AdjustStock(ctx, items[0].ID, -4))
	err := s.Products().AdjustStock(ctx, items[0].ID, -1)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	p, err := s.Products().Get(ctx, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)

	assert.ErrorIs(t, s.Products().AdjustStock(ctx, primitive.NewObjectID(), 1), apperr.ErrNotFound)
}

func TestReadsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	o := &models.Order{OrderItems: []models.OrderItem{{Name: "a", OrderStatus: models.StatusProcessing}}}
	require.NoError(t, s.Orders().Create(ctx, o))

	got, err := s.Orders().Get(ctx, o.ID)
	require.NoError(t, err)
	got.OrderItems[0].OrderStatus = models.StatusShipped

	again, err := s.Orders().Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, again.OrderItems[0].OrderStatus)
}

func TestOrderUpdateVersionCheck(t *testing.T) {
	s := New()
	ctx := context.Background()
	o := &models.Order{}
	require.NoError(t, s.Orders().Create(ctx, o))

	first, _ := s.Orders().Get(ctx, o.ID)
	second, _ := s.Orders().Get(ctx, o.ID)

	require.NoError(t, s.Orders().Update(ctx, first))
	assert.Equal(t, 1, first.Version)
	assert.ErrorIs(t, s.Orders().Update(ctx, second), apperr.ErrConflict)
}

func TestPullProducts(t *testing.T) {
	s := New()
	ctx := context.Background()
	gone, kept := primitive.NewObjectID(), primitive.NewObjectID()

	mixed := &models.Order{OrderItems: []models.OrderItem{{Product: gone}, {Product: kept}}}
	only := &models.Order{OrderItems: []models.OrderItem{{Product: gone}}}
	untouched := &models.Order{OrderItems: []models.OrderItem{{Product: kept}}}
	for _, o := range []*models.Order{mixed, only, untouched} {
		require.NoError(t, s.Orders().Create(ctx, o))
	}

	require.NoError(t, s.Orders().PullProducts(ctx, []primitive.ObjectID{gone}))

	got, err := s.Orders().Get(ctx, mixed.ID)
	require.NoError(t, err)
	require.Len(t, got.OrderItems, 1)
	assert.Equal(t, kept, got.OrderItems[0].Product)

	_, err = s.Orders().Get(ctx, only.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err = s.Orders().Get(ctx, untouched.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Version)
}

func TestRunInTxRollsBack(t *testing.T) {
	s := New()
	items := seedProducts(t, s, primitive.NewObjectID())
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Products().AdjustStock(ctx, items[1].ID, -5))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	p, err := s.Products().Get(ctx, items[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stock)
}

func TestRollbackKeepsConcurrentWrites(t *testing.T) {
	s := New()
	items := seedProducts(t, s, primitive.NewObjectID())
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	txDone := make(chan error, 1)
	go func() {
		txDone <- s.RunInTx(ctx, func(ctx context.Context) error {
			close(entered)
			<-release
			return errors.New("boom")
		})
	}()
	<-entered

	created := &models.Product{Name: "Monitor", Category: "Display", Price: 200, Stock: 3}
	writeDone := make(chan error, 1)
	go func() {
		writeDone <- s.Products().Create(ctx, created)
	}()

	select {
	case <-writeDone:
		t.Fatal("write finished while a transaction was open")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	require.Error(t, <-txDone)
	require.NoError(t, <-writeDone)

	got, err := s.Products().Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Monitor", got.Name)
	n, err := s.Products().Count(ctx, store.ProductQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, len(items)+1, n)
}

func TestNestedRunInTxJoinsOuter(t *testing.T) {
	s := New()
	items := seedProducts(t, s, primitive.NewObjectID())
	ctx := context.Background()

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		return s.RunInTx(ctx, func(ctx context.Context) error {
			return s.Products().AdjustStock(ctx, items[0].ID, -1)
		})
	})
	require.NoError(t, err)
	p, err := s.Products().Get(ctx, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
}

func TestUsersResetTokenLookup(t *testing.T) {
	s := New()
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)
	u := &models.User{Email: "a@shop.test", ResetPasswordToken: "hash", ResetPasswordExpire: &exp}
	require.NoError(t, s.Users().Create(ctx, u))

	got, err := s.Users().GetByResetToken(ctx, "hash", time.Now())
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.Users().GetByResetToken(ctx, "hash", exp.Add(time.Second))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.ErrorIs(t, s.Users().Create(ctx, &models.User{Email: "A@shop.test"}), apperr.ErrConflict)
}
