package api

import (
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/models"
	"shopnest-backend/internal/products"
)

const productKey = "product"

type productForm struct {
	Name        string  `form:"name" binding:"required"`
	Description string  `form:"description" binding:"required"`
	Price       float64 `form:"price" binding:"gte=0,lt=10000000"`
	Category    string  `form:"category" binding:"required"`
	Stock       int     `form:"stock" binding:"gte=0,lt=10000"`
}

type productPatch struct {
	Name        *string  `json:"name" form:"name"`
	Description *string  `json:"description" form:"description"`
	Price       *float64 `json:"price" form:"price"`
	Category    *string  `json:"category" form:"category"`
	Stock       *int     `json:"stock" form:"stock"`
}

type reviewRequest struct {
	ProductID string  `json:"productId" binding:"required"`
	Rating    float64 `json:"rating" binding:"required,gte=1,lte=5"`
	Comment   string  `json:"comment"`
}

// ownsProduct loads the :id product and rejects callers who do not own it.
func (s *server) ownsProduct() gin.HandlerFunc {
	return wrap(func(c *gin.Context) error {
		u, err := currentUser(c)
		if err != nil {
			return err
		}
		id, err := objectID(c.Param("id"), "product")
		if err != nil {
			return err
		}
		p, err := s.Products.Get(c.Request.Context(), id)
		if err != nil {
			return err
		}
		if p.Owner != u.ID {
			return apperr.Forbidden("You do not own this product")
		}
		c.Set(productKey, p)
		c.Next()
		return nil
	})
}

func ownedProduct(c *gin.Context) *models.Product {
	p, _ := c.MustGet(productKey).(*models.Product)
	return p
}

func uploads(c *gin.Context, field string) []*multipart.FileHeader {
	if !isMultipart(c) {
		return nil
	}
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	return form.File[field]
}

func (s *server) listProducts(c *gin.Context) error {
	res, err := s.Products.List(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, res, "Products fetched successfully")
}

func (s *server) getProduct(c *gin.Context) error {
	id, err := objectID(c.Param("id"), "product")
	if err != nil {
		return err
	}
	p, err := s.Products.Get(c.Request.Context(), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, p, "Product fetched successfully")
}

func (s *server) createProduct(c *gin.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	if !isMultipart(c) {
		return apperr.Validation("Product must be sent as multipart/form-data with images")
	}
	var form productForm
	if err := c.ShouldBind(&form); err != nil {
		return bindError(err)
	}
	p, err := s.Products.Create(c.Request.Context(), u.ID, products.CreateInput{
		Name:        form.Name,
		Description: form.Description,
		Price:       form.Price,
		Category:    form.Category,
		Stock:       form.Stock,
	}, uploads(c, "images"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, p, "Product created successfully")
}

func (s *server) updateProduct(c *gin.Context) error {
	var patch productPatch
	if err := c.ShouldBind(&patch); err != nil {
		return bindError(err)
	}
	p, err := s.Products.Update(c.Request.Context(), ownedProduct(c), products.UpdateInput{
		Name:        patch.Name,
		Description: patch.Description,
		Price:       patch.Price,
		Category:    patch.Category,
		Stock:       patch.Stock,
	}, uploads(c, "images"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, p, "Product updated successfully")
}

func (s *server) deleteProduct(c *gin.Context) error {
	p := ownedProduct(c)
	if err := s.Products.Delete(c.Request.Context(), p); err != nil {
		return err
	}
	return respond(c, http.StatusOK, gin.H{"_id": p.ID}, "Product deleted successfully")
}

func (s *server) sellerProducts(c *gin.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	list, err := s.Products.ListByOwner(c.Request.Context(), u.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, gin.H{"products": list, "count": len(list)}, "Seller products fetched successfully")
}

func (s *server) upsertReview(c *gin.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return bindError(err)
	}
	pid, err := objectID(req.ProductID, "product")
	if err != nil {
		return err
	}
	p, err := s.Products.UpsertReview(c.Request.Context(), u, products.ReviewInput{
		ProductID: pid,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, p, "Review saved successfully")
}

func (s *server) listReviews(c *gin.Context) error {
	pid, err := objectID(c.Query("productId"), "product")
	if err != nil {
		return err
	}
	reviews, err := s.Products.Reviews(c.Request.Context(), pid)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, reviews, "Reviews fetched successfully")
}

func (s *server) deleteReview(c *gin.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	pid, err := objectID(c.Query("productId"), "product")
	if err != nil {
		return err
	}
	rid, err := objectID(c.Query("id"), "review")
	if err != nil {
		return err
	}
	p, err := s.Products.DeleteReview(c.Request.Context(), pid, rid, u.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, p, "Review deleted successfully")
}
