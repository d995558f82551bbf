package memstore

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/models"
	"shopnest-backend/internal/store"
)

type productRepo Store

func (r *productRepo) Create(ctx context.Context, p *models.Product) error {
	defer (*Store)(r).lockWrite(ctx)()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if _, exists := r.products[p.ID]; !exists {
		r.productSeq = append(r.productSeq, p.ID)
	}
	r.products[p.ID] = copyProduct(*p)
	return nil
}

func (r *productRepo) Get(_ context.Context, id primitive.ObjectID) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, apperr.NotFound("Product not found")
	}
	p = copyProduct(p)
	return &p, nil
}

func (r *productRepo) GetMany(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[primitive.ObjectID]*models.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			p = copyProduct(p)
			out[id] = &p
		}
	}
	return out, nil
}

func (r *productRepo) Update(ctx context.Context, p *models.Product) error {
	defer (*Store)(r).lockWrite(ctx)()
	stored, ok := r.products[p.ID]
	if !ok {
		return apperr.NotFound("Product not found")
	}
	stored.Name, stored.Description, stored.Price = p.Name, p.Description, p.Price
	stored.Category, stored.Stock = p.Category, p.Stock
	stored.Images = append([]models.Image(nil), p.Images...)
	r.products[p.ID] = stored
	return nil
}

func (r *productRepo) SaveReviews(ctx context.Context, p *models.Product) error {
	defer (*Store)(r).lockWrite(ctx)()
	stored, ok := r.products[p.ID]
	if !ok {
		return apperr.NotFound("Product not found")
	}
	stored.Reviews = append([]models.Review(nil), p.Reviews...)
	stored.Rating, stored.NumOfReviews = p.Rating, p.NumOfReviews
	r.products[p.ID] = stored
	return nil
}

func (r *productRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	defer (*Store)(r).lockWrite(ctx)()
	if _, ok := r.products[id]; !ok {
		return apperr.NotFound("Product not found")
	}
	r.deleteLocked(id)
	return nil
}

func (r *productRepo) deleteLocked(id primitive.ObjectID) {
	delete(r.products, id)
	for i, seq := range r.productSeq {
		if seq == id {
			r.productSeq = append(r.productSeq[:i:i], r.productSeq[i+1:]...)
			break
		}
	}
}

func (r *productRepo) ListByOwner(_ context.Context, owner primitive.ObjectID) ([]models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Product{}
	for i := len(r.productSeq) - 1; i >= 0; i-- {
		p := r.products[r.productSeq[i]]
		if p.Owner == owner {
			out = append(out, copyProduct(p))
		}
	}
	return out, nil
}

func (r *productRepo) DeleteByOwner(ctx context.Context, owner primitive.ObjectID) error {
	defer (*Store)(r).lockWrite(ctx)()
	for id, p := range r.products {
		if p.Owner == owner {
			r.deleteLocked(id)
		}
	}
	return nil
}

func (r *productRepo) Find(_ context.Context, q store.ProductQuery) ([]models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Product{}
	var skipped int64
	for _, id := range r.productSeq {
		p := r.products[id]
		if !matches(q, &p) {
			continue
		}
		if skipped < q.Skip {
			skipped++
			continue
		}
		if q.Limit > 0 && int64(len(out)) >= q.Limit {
			break
		}
		out = append(out, copyProduct(p))
	}
	return out, nil
}

func (r *productRepo) Count(_ context.Context, q store.ProductQuery) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.products {
		if matches(q, &p) {
			n++
		}
	}
	return n, nil
}

func (r *productRepo) AdjustStock(ctx context.Context, id primitive.ObjectID, delta int) error {
	defer (*Store)(r).lockWrite(ctx)()
	p, ok := r.products[id]
	if !ok {
		return apperr.NotFound("Product not found")
	}
	if p.Stock+delta < 0 {
		return apperr.InsufficientStock(fmt.Sprintf("Not enough stock for %s: %d left, %d needed", p.Name, p.Stock, -delta))
	}
	p.Stock += delta
	r.products[id] = p
	return nil
}

func matches(q store.ProductQuery, p *models.Product) bool {
	if q.Keyword != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Keyword)) {
		return false
	}
	for _, c := range q.Conditions {
		if !matchCondition(c, p) {
			return false
		}
	}
	return true
}

func matchCondition(c store.Condition, p *models.Product) bool {
	var actual interface{}
	switch c.Field {
	case "name":
		actual = p.Name
	case "category":
		actual = p.Category
	case "price":
		actual = p.Price
	case "rating":
		actual = p.Rating
	case "stock":
		actual = float64(p.Stock)
	case "numOfReviews":
		actual = float64(p.NumOfReviews)
	default:
		return false
	}

	switch a := actual.(type) {
	case string:
		want, ok := c.Value.(string)
		return ok && c.Op == store.OpEq && a == want
	case float64:
		want, ok := c.Value.(float64)
		if !ok {
			return false
		}
		switch c.Op {
		case store.OpEq:
			return a == want
		case store.OpGt:
			return a > want
		case store.OpGte:
			return a >= want
		case store.OpLt:
			return a < want
		case store.OpLte:
			return a <= want
		}
	}
	return false
}
