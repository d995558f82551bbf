// Package products serves the catalogue: search, seller product management
// and the reviews embedded in each product.
package products

import (
	"context"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/logging"
	"shopnest-backend/internal/models"
	"shopnest-backend/internal/store"
)

const (
	DefaultPerPage = 8
	MaxPerPage     = 100

	maxPrice = 1e7
	maxStock = 10000
)

var tracer = otel.Tracer("shopnest-backend/internal/products")

// ImageStore keeps product and avatar images outside the database.
type ImageStore interface {
	Upload(ctx context.Context, file *multipart.FileHeader, folder string) (models.Image, error)
	Destroy(ctx context.Context, publicID string) error
}

type Service struct {
	store  store.Store
	images ImageStore
	log    logging.Logger
	now    func() time.Time
}

func NewService(st store.Store, images ImageStore, log logging.Logger) *Service {
	return &Service{store: st, images: images, log: log, now: time.Now}
}

// ListResult is the catalogue page returned by List.
type ListResult struct {
	Products              []models.Product `json:"products"`
	ProductsCount         int64            `json:"productsCount"`
	FilteredProductsCount int64            `json:"filteredProductsCount"`
	ResultPerPage         int              `json:"resultPerPage"`
}

// List searches, filters and pages the catalogue from URL query values.
func (s *Service) List(ctx context.Context, params url.Values) (*ListResult, error) {
	ctx, span := tracer.Start(ctx, "products.List")
	defer span.End()

	perPage := DefaultPerPage
	if raw := params.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxPerPage {
			return nil, apperr.Validation("limit must be between 1 and 100")
		}
		perPage = n
	}

	q, err := NewQueryBuilder(params).Search().Filter().Pagination(perPage).Query()
	if err != nil {
		return nil, err
	}
	total, err := s.store.Products().Count(ctx, store.ProductQuery{})
	if err != nil {
		return nil, err
	}
	filtered, err := s.store.Products().Count(ctx, q)
	if err != nil {
		return nil, err
	}
	found, err := s.store.Products().Find(ctx, q)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("products.filtered", filtered))
	return &ListResult{
		Products:              found,
		ProductsCount:         total,
		FilteredProductsCount: filtered,
		ResultPerPage:         perPage,
	}, nil
}

func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	return s.store.Products().Get(ctx, id)
}

// ListByOwner returns the seller's products, newest first.
func (s *Service) ListByOwner(ctx context.Context, owner primitive.ObjectID) ([]models.Product, error) {
	return s.store.Products().ListByOwner(ctx, owner)
}

type CreateInput struct {
	Name        string
	Description string
	Price       float64
	Category    string
	Stock       int
}

func (in CreateInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return apperr.Validation("Product name is required")
	case strings.TrimSpace(in.Description) == "":
		return apperr.Validation("Product description is required")
	case strings.TrimSpace(in.Category) == "":
		return apperr.Validation("Product category is required")
	}
	if err := checkPrice(in.Price); err != nil {
		return err
	}
	return checkStock(in.Stock)
}

func checkPrice(p float64) error {
	if !(p >= 0 && p < maxPrice) {
		return apperr.Validation("Price must be between 0 and 9999999")
	}
	return nil
}

func checkStock(n int) error {
	if n < 0 || n >= maxStock {
		return apperr.Validation("Stock must be between 0 and 9999")
	}
	return nil
}

// Create uploads the images and stores a new product owned by owner.
// Uploaded images are destroyed again if the product cannot be saved.
func (s *Service) Create(ctx context.Context, owner primitive.ObjectID, in CreateInput, files []*multipart.FileHeader) (*models.Product, error) {
	ctx, span := tracer.Start(ctx, "products.Create", trace.WithAttributes(attribute.Int("images", len(files))))
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, apperr.Validation("At least one product image is required")
	}
	images, err := s.upload(ctx, files)
	if err != nil {
		return nil, err
	}

	p := &models.Product{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Category:    strings.TrimSpace(in.Category),
		Stock:       in.Stock,
		Images:      images,
		Owner:       owner,
		Reviews:     []models.Review{},
		CreatedAt:   s.now(),
	}
	if err := s.store.Products().Create(ctx, p); err != nil {
		s.destroy(ctx, images)
		return nil, err
	}
	s.log.Info("product created", map[string]interface{}{"productId": p.ID.Hex(), "owner": owner.Hex()})
	return p, nil
}

// UpdateInput carries the fields a seller may change. Nil fields are kept.
type UpdateInput struct {
	Name        *string
	Description *string
	Price       *float64
	Category    *string
	Stock       *int
}

// Update applies in to p. New files replace the product's images; the old
// ones are destroyed once the write has succeeded.
func (s *Service) Update(ctx context.Context, p *models.Product, in UpdateInput, files []*multipart.FileHeader) (*models.Product, error) {
	ctx, span := tracer.Start(ctx, "products.Update", trace.WithAttributes(attribute.String("product", p.ID.Hex())))
	defer span.End()

	next := *p
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, apperr.Validation("Product name cannot be empty")
		}
		next.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		next.Description = *in.Description
	}
	if in.Category != nil {
		if strings.TrimSpace(*in.Category) == "" {
			return nil, apperr.Validation("Product category cannot be empty")
		}
		next.Category = strings.TrimSpace(*in.Category)
	}
	if in.Price != nil {
		if err := checkPrice(*in.Price); err != nil {
			return nil, err
		}
		next.Price = *in.Price
	}
	if in.Stock != nil {
		if err := checkStock(*in.Stock); err != nil {
			return nil, err
		}
		next.Stock = *in.Stock
	}

	var fresh []models.Image
	if len(files) > 0 {
		var err error
		if fresh, err = s.upload(ctx, files); err != nil {
			return nil, err
		}
		next.Images = fresh
	}
	if err := s.store.Products().Update(ctx, &next); err != nil {
		s.destroy(ctx, fresh)
		return nil, err
	}
	if len(fresh) > 0 {
		s.destroy(ctx, p.Images)
	}
	return s.store.Products().Get(ctx, p.ID)
}

// Delete removes p and its images. Orders keep their line items.
func (s *Service) Delete(ctx context.Context, p *models.Product) error {
	if err := s.store.Products().Delete(ctx, p.ID); err != nil {
		return err
	}
	s.destroy(ctx, p.Images)
	s.log.Info("product deleted", map[string]interface{}{"productId": p.ID.Hex()})
	return nil
}

func (s *Service) upload(ctx context.Context, files []*multipart.FileHeader) ([]models.Image, error) {
	images := make([]models.Image, 0, len(files))
	for _, fh := range files {
		img, err := s.images.Upload(ctx, fh, "products")
		if err != nil {
			s.destroy(ctx, images)
			return nil, apperr.Upstream("Failed to upload product image", err)
		}
		images = append(images, img)
	}
	return images, nil
}

// destroy removes images best effort.
func (s *Service) destroy(ctx context.Context, images []models.Image) {
	for _, img := range images {
		if img.PublicID == "" {
			continue
		}
		if err := s.images.Destroy(ctx, img.PublicID); err != nil {
			s.log.Warn("failed to destroy image", map[string]interface{}{"publicId": img.PublicID, "error": err})
		}
	}
}

type ReviewInput struct {
	ProductID primitive.ObjectID
	Rating    float64
	Comment   string
}

// UpsertReview writes the author's review of a product, replacing any
// earlier one by the same author.
func (s *Service) UpsertReview(ctx context.Context, author *models.User, in ReviewInput) (*models.Product, error) {
	if !(in.Rating >= 1 && in.Rating <= 5) {
		return nil, apperr.Validation("Rating must be between 1 and 5")
	}
	var out *models.Product
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.store.Products().Get(ctx, in.ProductID)
		if err != nil {
			return err
		}
		upsertReview(p, models.Review{
			UserID:  author.ID,
			Name:    author.Username,
			Rating:  in.Rating,
			Comment: in.Comment,
		})
		if err := s.store.Products().SaveReviews(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// Reviews lists the reviews of a product.
func (s *Service) Reviews(ctx context.Context, productID primitive.ObjectID) ([]models.Review, error) {
	p, err := s.store.Products().Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.Reviews == nil {
		return []models.Review{}, nil
	}
	return p.Reviews, nil
}

// DeleteReview removes a review written by requester.
func (s *Service) DeleteReview(ctx context.Context, productID, reviewID, requester primitive.ObjectID) (*models.Product, error) {
	var out *models.Product
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.store.Products().Get(ctx, productID)
		if err != nil {
			return err
		}
		if err := removeReview(p, reviewID, requester); err != nil {
			return err
		}
		if err := s.store.Products().SaveReviews(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}
