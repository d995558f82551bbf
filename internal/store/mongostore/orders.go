package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/models"
)

type orderRepo struct {
	coll *mongo.Collection
}

var newestFirst = options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

func (r *orderRepo) Create(ctx context.Context, o *models.Order) error {
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, o)
	return err
}

func (r *orderRepo) Get(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var o models.Order
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&o); err != nil {
		return nil, notFound(err, "Order")
	}
	return &o, nil
}

func (r *orderRepo) Update(ctx context.Context, o *models.Order) error {
	filter := bson.M{"_id": o.ID, "__v": o.Version}
	o.Version++
	res, err := r.coll.ReplaceOne(ctx, filter, o)
	if err != nil {
		o.Version--
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	o.Version--
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": o.ID})
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("Order not found")
	}
	return apperr.Conflict("Order was modified concurrently, please retry")
}

func (r *orderRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("Order not found")
	}
	return nil
}

func (r *orderRepo) list(ctx context.Context, filter bson.M) ([]models.Order, error) {
	cur, err := r.coll.Find(ctx, filter, newestFirst)
	if err != nil {
		return nil, err
	}
	orders := []models.Order{}
	if err := cur.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepo) ListByUser(ctx context.Context, user primitive.ObjectID) ([]models.Order, error) {
	return r.list(ctx, bson.M{"user": user})
}

func (r *orderRepo) ListByProducts(ctx context.Context, products []primitive.ObjectID) ([]models.Order, error) {
	if len(products) == 0 {
		return []models.Order{}, nil
	}
	return r.list(ctx, bson.M{"orderItems.product": bson.M{"$in": products}})
}

func (r *orderRepo) DeleteByUser(ctx context.Context, user primitive.ObjectID) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"user": user})
	return err
}

func (r *orderRepo) PullProducts(ctx context.Context, products []primitive.ObjectID) error {
	if len(products) == 0 {
		return nil
	}
	in := bson.M{"$in": products}
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"orderItems.product": in},
		bson.M{
			"$pull": bson.M{"orderItems": bson.M{"product": in}},
			"$inc":  bson.M{"__v": 1},
		},
	)
	if err != nil {
		return err
	}
	_, err = r.coll.DeleteMany(ctx, bson.M{"orderItems": bson.M{"$size": 0}})
	return err
}
