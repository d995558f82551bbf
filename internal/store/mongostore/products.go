package mongostore

import (
	"context"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/models"
	"shopnest-backend/internal/store"
)

type productRepo struct {
	coll *mongo.Collection
}

func (r *productRepo) Create(ctx context.Context, p *models.Product) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, p)
	return err
}

func (r *productRepo) Get(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	var p models.Product
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, notFound(err, "Product")
	}
	return &p, nil
}

func (r *productRepo) GetMany(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Product, error) {
	out := make(map[primitive.ObjectID]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var products []models.Product
	if err := cur.All(ctx, &products); err != nil {
		return nil, err
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

func (r *productRepo) Update(ctx context.Context, p *models.Product) error {
	return r.set(ctx, p.ID, bson.M{
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price,
		"category":    p.Category,
		"stock":       p.Stock,
		"images":      p.Images,
	})
}

func (r *productRepo) SaveReviews(ctx context.Context, p *models.Product) error {
	return r.set(ctx, p.ID, bson.M{
		"reviews":      p.Reviews,
		"rating":       p.Rating,
		"numOfReviews": p.NumOfReviews,
	})
}

func (r *productRepo) set(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("Product not found")
	}
	return nil
}

func (r *productRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("Product not found")
	}
	return nil
}

func (r *productRepo) ListByOwner(ctx context.Context, owner primitive.ObjectID) ([]models.Product, error) {
	cur, err := r.coll.Find(ctx, bson.M{"owner": owner}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	products := []models.Product{}
	if err := cur.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *productRepo) DeleteByOwner(ctx context.Context, owner primitive.ObjectID) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"owner": owner})
	return err
}

func (r *productRepo) Find(ctx context.Context, q store.ProductQuery) ([]models.Product, error) {
	opts := options.Find()
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	cur, err := r.coll.Find(ctx, productFilter(q), opts)
	if err != nil {
		return nil, err
	}
	products := []models.Product{}
	if err := cur.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *productRepo) Count(ctx context.Context, q store.ProductQuery) (int64, error) {
	return r.coll.CountDocuments(ctx, productFilter(q))
}

func (r *productRepo) AdjustStock(ctx context.Context, id primitive.ObjectID, delta int) error {
	filter := bson.M{"_id": id}
	if delta < 0 {
		filter["stock"] = bson.M{"$gte": -delta}
	}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"stock": delta}})
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	var p models.Product
	err = r.coll.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(bson.M{"name": 1, "stock": 1})).Decode(&p)
	if err != nil {
		return notFound(err, "Product")
	}
	return apperr.InsufficientStock(fmt.Sprintf("Not enough stock for %s: %d left, %d needed", p.Name, p.Stock, -delta))
}

// productFilter translates a ProductQuery into a MongoDB filter. Operators
// come from the structured condition list, never from string rewriting.
func productFilter(q store.ProductQuery) bson.M {
	f := bson.M{}
	if q.Keyword != "" {
		f["name"] = bson.M{"$regex": regexp.QuoteMeta(q.Keyword), "$options": "i"}
	}
	for _, c := range q.Conditions {
		if c.Op == store.OpEq {
			f[c.Field] = c.Value
			continue
		}
		rng, ok := f[c.Field].(bson.M)
		if !ok {
			rng = bson.M{}
			f[c.Field] = rng
		}
		rng["$"+string(c.Op)] = c.Value
	}
	return f
}
