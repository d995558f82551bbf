package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"shopnest-backend/internal/models"
	"shopnest-backend/internal/orders"
)

type orderItemRequest struct {
	Product  string  `json:"product" binding:"required"`
	Name     string  `json:"name" binding:"required"`
	Price    float64 `json:"price" binding:"gte=0"`
	Quantity int     `json:"quantity" binding:"required,min=1"`
	Image    string  `json:"image"`
}

type createOrderRequest struct {
	ShippingInfo  models.ShippingInfo `json:"shippingInfo" binding:"required"`
	OrderItems    []orderItemRequest  `json:"orderItems" binding:"required,min=1,dive"`
	PaymentInfo   models.PaymentInfo  `json:"paymentInfo"`
	ItemsPrice    float64             `json:"itemsPrice" binding:"gte=0"`
	TaxPrice      float64             `json:"taxPrice" binding:"gte=0"`
	ShippingPrice float64             `json:"shippingPrice" binding:"gte=0"`
	TotalPrice    float64             `json:"totalPrice" binding:"gte=0"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required,orderstatus"`
}

func (s *server) createOrder(c *gin.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return bindError(err)
	}
	in := orders.CreateInput{
		ShippingInfo:  req.ShippingInfo,
		PaymentInfo:   req.PaymentInfo,
		ItemsPrice:    req.ItemsPrice,
		TaxPrice:      req.TaxPrice,
		ShippingPrice: req.ShippingPrice,
		TotalPrice:    req.TotalPrice,
	}
	for _, it := range req.OrderItems {
		pid, err := objectID(it.Product, "product")
		if err != nil {
			return err
		}
		in.Items = append(in.Items, orders.ItemInput{
			Product:  pid,
			Name:     it.Name,
			Price:    it.Price,
			Quantity: it.Quantity,
			Image:    it.Image,
		})
	}
	order, err := s.Orders.Create(c.Request.Context(), u.ID, in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, order, "Order placed successfully")
}

func (s *server) myOrders(c *gin.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	list, err := s.Orders.ListMine(c.Request.Context(), u.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, list, "Orders fetched successfully")
}

func (s *server) getMyOrder(c *gin.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := objectID(c.Param("id"), "order")
	if err != nil {
		return err
	}
	order, err := s.Orders.GetMine(c.Request.Context(), id, u.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, order, "Order fetched successfully")
}

func (s *server) sellerOrders(c *gin.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	res, err := s.Orders.ListForSeller(c.Request.Context(), u.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, res, "Orders fetched successfully")
}

func (s *server) sellerOrder(c *gin.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := objectID(c.Param("id"), "order")
	if err != nil {
		return err
	}
	order, err := s.Orders.GetForSeller(c.Request.Context(), id, u.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, order, "Order fetched successfully")
}

func (s *server) updateOrderStatus(c *gin.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := objectID(c.Param("id"), "order")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return bindError(err)
	}
	order, err := s.Orders.UpdateStatus(c.Request.Context(), id, u.ID, req.Status)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, order, "Order status updated to "+req.Status)
}

func (s *server) deleteSellerOrder(c *gin.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := objectID(c.Param("id"), "order")
	if err != nil {
		return err
	}
	if err := s.Orders.DeleteForSeller(c.Request.Context(), id, u.ID); err != nil {
		return err
	}
	return respond(c, http.StatusOK, gin.H{}, "Order deleted successfully")
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func (s *server) processPayment(c *gin.Context) error {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return bindError(err)
	}
	secret, err := s.Payments.CreateIntent(c.Request.Context(), req.Amount)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, gin.H{"client_secret": secret}, "Payment intent created")
}

func (s *server) paymentKey(c *gin.Context) error {
	return respond(c, http.StatusOK, gin.H{"stripeApiKey": s.Payments.PublishableKey()}, "Stripe API key fetched")
}
