// Package memstore is an in-process implementation of the store contracts.
// It backs the test suites and the STORE_DRIVER=memory development mode.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/models"
	"shopnest-backend/internal/store"
)

type Store struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	users    map[primitive.ObjectID]models.User
	products map[primitive.ObjectID]models.Product
	orders   map[primitive.ObjectID]models.Order
	// insertion order, for stable listings
	productSeq []primitive.ObjectID
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    map[primitive.ObjectID]models.User{},
		products: map[primitive.ObjectID]models.Product{},
		orders:   map[primitive.ObjectID]models.Order{},
	}
}

func (s *Store) Users() store.Users       { return (*userRepo)(s) }
func (s *Store) Products() store.Products { return (*productRepo)(s) }
func (s *Store) Orders() store.Orders     { return (*orderRepo)(s) }

func (s *Store) Ping(context.Context) error  { return nil }
func (s *Store) Close(context.Context) error { return nil }

type txKey struct{}

// RunInTx serializes transactions and restores a snapshot when fn fails.
// Writes made outside a transaction wait for it to finish, so a rollback
// never discards them. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := s.snapshot()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.mu.Lock()
		s.users, s.products, s.orders, s.productSeq = snap.users, snap.products, snap.orders, snap.productSeq
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lockWrite takes the locks a write needs and returns the matching unlock.
func (s *Store) lockWrite(ctx context.Context) func() {
	if s.inTx(ctx) {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

type snapshot struct {
	users      map[primitive.ObjectID]models.User
	products   map[primitive.ObjectID]models.Product
	orders     map[primitive.ObjectID]models.Order
	productSeq []primitive.ObjectID
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		users:      make(map[primitive.ObjectID]models.User, len(s.users)),
		products:   make(map[primitive.ObjectID]models.Product, len(s.products)),
		orders:     make(map[primitive.ObjectID]models.Order, len(s.orders)),
		productSeq: append([]primitive.ObjectID(nil), s.productSeq...),
	}
	for k, v := range s.users {
		snap.users[k] = copyUser(v)
	}
	for k, v := range s.products {
		snap.products[k] = copyProduct(v)
	}
	for k, v := range s.orders {
		snap.orders[k] = copyOrder(v)
	}
	return snap
}

func copyUser(u models.User) models.User {
	if u.ResetPasswordExpire != nil {
		t := *u.ResetPasswordExpire
		u.ResetPasswordExpire = &t
	}
	return u
}

func copyProduct(p models.Product) models.Product {
	p.Images = append([]models.Image(nil), p.Images...)
	p.Reviews = append([]models.Review(nil), p.Reviews...)
	return p
}

func copyOrder(o models.Order) models.Order {
	o.OrderItems = append([]models.OrderItem(nil), o.OrderItems...)
	return o
}

// ---- users ----

type userRepo Store

func (r *userRepo) Create(ctx context.Context, u *models.User) error {
	defer (*Store)(r).lockWrite(ctx)()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return apperr.Conflict("User with this email already exists")
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	r.users[u.ID] = copyUser(*u)
	return nil
}

func (r *userRepo) Get(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperr.NotFound("User not found")
	}
	u = copyUser(u)
	return &u, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			u = copyUser(u)
			return &u, nil
		}
	}
	return nil, apperr.NotFound("User not found")
}

func (r *userRepo) GetByResetToken(_ context.Context, tokenHash string, now time.Time) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ResetPasswordToken != "" && u.ResetPasswordToken == tokenHash &&
			u.ResetPasswordExpire != nil && u.ResetPasswordExpire.After(now) {
			u = copyUser(u)
			return &u, nil
		}
	}
	return nil, apperr.NotFound("User not found")
}

func (r *userRepo) Update(ctx context.Context, u *models.User) error {
	defer (*Store)(r).lockWrite(ctx)()
	if _, ok := r.users[u.ID]; !ok {
		return apperr.NotFound("User not found")
	}
	for id, existing := range r.users {
		if id != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return apperr.Conflict("User with this email already exists")
		}
	}
	r.users[u.ID] = copyUser(*u)
	return nil
}

func (r *userRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	defer (*Store)(r).lockWrite(ctx)()
	if _, ok := r.users[id]; !ok {
		return apperr.NotFound("User not found")
	}
	delete(r.users, id)
	return nil
}

// ---- orders ----

type orderRepo Store

func (r *orderRepo) Create(ctx context.Context, o *models.Order) error {
	defer (*Store)(r).lockWrite(ctx)()
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	r.orders[o.ID] = copyOrder(*o)
	return nil
}

func (r *orderRepo) Get(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, apperr.NotFound("Order not found")
	}
	o = copyOrder(o)
	return &o, nil
}

func (r *orderRepo) Update(ctx context.Context, o *models.Order) error {
	defer (*Store)(r).lockWrite(ctx)()
	stored, ok := r.orders[o.ID]
	if !ok {
		return apperr.NotFound("Order not found")
	}
	if stored.Version != o.Version {
		return apperr.Conflict("Order was modified concurrently, please retry")
	}
	o.Version++
	r.orders[o.ID] = copyOrder(*o)
	return nil
}

func (r *orderRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	defer (*Store)(r).lockWrite(ctx)()
	if _, ok := r.orders[id]; !ok {
		return apperr.NotFound("Order not found")
	}
	delete(r.orders, id)
	return nil
}

func (r *orderRepo) listLocked(keep func(models.Order) bool) []models.Order {
	out := []models.Order{}
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, copyOrder(o))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() > out[j].ID.Hex()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *orderRepo) ListByUser(_ context.Context, user primitive.ObjectID) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(func(o models.Order) bool { return o.User == user }), nil
}

func (r *orderRepo) ListByProducts(_ context.Context, products []primitive.ObjectID) ([]models.Order, error) {
	set := idSet(products)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(func(o models.Order) bool {
		for _, it := range o.OrderItems {
			if set[it.Product] {
				return true
			}
		}
		return false
	}), nil
}

func (r *orderRepo) DeleteByUser(ctx context.Context, user primitive.ObjectID) error {
	defer (*Store)(r).lockWrite(ctx)()
	for id, o := range r.orders {
		if o.User == user {
			delete(r.orders, id)
		}
	}
	return nil
}

func (r *orderRepo) PullProducts(ctx context.Context, products []primitive.ObjectID) error {
	set := idSet(products)
	defer (*Store)(r).lockWrite(ctx)()
	for id, o := range r.orders {
		kept := o.OrderItems[:0:0]
		for _, it := range o.OrderItems {
			if !set[it.Product] {
				kept = append(kept, it)
			}
		}
		switch {
		case len(kept) == len(o.OrderItems):
		case len(kept) == 0:
			delete(r.orders, id)
		default:
			o.OrderItems = kept
			o.Version++
			r.orders[id] = o
		}
	}
	return nil
}

func idSet(ids []primitive.ObjectID) map[primitive.ObjectID]bool {
	set := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
