// Package api exposes the services over HTTP with gin.
//
// Every response uses the same envelope. Handlers return errors; one
// middleware turns them into the envelope with the matching status code.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"shopnest-backend/internal/auth"
	"shopnest-backend/internal/config"
	"shopnest-backend/internal/logging"
	"shopnest-backend/internal/models"
	"shopnest-backend/internal/orders"
	"shopnest-backend/internal/products"
	"shopnest-backend/internal/store"
	"shopnest-backend/internal/users"
)

// Payments starts card payments for the storefront.
type Payments interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal) (string, error)
	PublishableKey() string
}

type Deps struct {
	Config   *config.Config
	Store    store.Store
	Log      logging.Logger
	Tokens   *auth.Tokens
	Users    *users.Service
	Products *products.Service
	Orders   *orders.Service
	Payments Payments
}

type server struct {
	Deps
}

const statusTag = "orderstatus"

var registerOnce sync.Once

// registerValidators adds the custom binding tags to gin's validator.
func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation(statusTag, func(fl validator.FieldLevel) bool {
				return orders.ValidStatus(fl.Field().String())
			})
		}
	})
}

// NewRouter builds the gin engine with every route under /api/v1.
func NewRouter(d Deps) *gin.Engine {
	registerValidators()
	s := &server{Deps: d}

	r := gin.New()
	r.MaxMultipartMemory = d.Config.Upload.MaxBytes
	r.Use(requestID(), gin.Logger(), recovery(d.Log), errorHandler(d.Log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{d.Config.ClientURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.NoRoute(wrap(func(c *gin.Context) error {
		return respond(c, http.StatusNotFound, nil, "Route not found")
	}))

	r.GET("/healthz", wrap(s.health))

	v1 := r.Group("/api/v1")
	authed := auth.Authenticate(d.Tokens, d.Store.Users())
	seller := auth.RequireRole(models.RoleSeller)

	user := v1.Group("/user")
	{
		user.POST("/register", wrap(s.register))
		user.POST("/login", wrap(s.login))
		user.POST("/refresh-token", wrap(s.refreshToken))
		user.POST("/forgot-password", wrap(s.forgotPassword))
		user.PUT("/reset-password/:token", wrap(s.resetPassword))
		user.POST("/logout", authed, wrap(s.logout))
		user.GET("/current-user", authed, wrap(s.currentUser))
		user.PATCH("/update-profile", authed, wrap(s.updateProfile))
		user.DELETE("/delete", authed, wrap(s.deleteAccount))
	}

	v1.GET("/products", wrap(s.listProducts))
	v1.GET("/products/:id", wrap(s.getProduct))
	v1.POST("/products/new", authed, seller, wrap(s.createProduct))
	v1.PATCH("/products/:id", authed, seller, s.ownsProduct(), wrap(s.updateProduct))
	v1.DELETE("/products/:id", authed, seller, s.ownsProduct(), wrap(s.deleteProduct))
	v1.GET("/seller/products", authed, seller, wrap(s.sellerProducts))

	v1.GET("/reviews", wrap(s.listReviews))
	v1.PUT("/reviews", authed, wrap(s.upsertReview))
	v1.DELETE("/reviews", authed, wrap(s.deleteReview))

	ord := v1.Group("/orders", authed)
	{
		ord.POST("/new", wrap(s.createOrder))
		ord.GET("/my-orders", wrap(s.myOrders))
		ord.GET("/order/:id", wrap(s.getMyOrder))

		admin := ord.Group("/admin", seller)
		admin.GET("/all", wrap(s.sellerOrders))
		admin.GET("/order/:id", wrap(s.sellerOrder))
		admin.PATCH("/order/:id", wrap(s.updateOrderStatus))
		admin.DELETE("/order/:id", wrap(s.deleteSellerOrder))
	}

	pay := v1.Group("/payment", authed)
	{
		pay.POST("/process-payment", wrap(s.processPayment))
		pay.GET("/payment-apikey", wrap(s.paymentKey))
	}
	return r
}

func (s *server) health(c *gin.Context) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		s.Log.Error("health check failed", map[string]interface{}{"error": err})
		return respond(c, http.StatusServiceUnavailable, gin.H{"store": "down"}, "Unhealthy")
	}
	return respond(c, http.StatusOK, gin.H{"store": "up"}, "OK")
}
