// Package orders implements checkout and the per-seller order workflow.
//
// An order may contain products from several sellers. Each seller sees and
// changes only the line items whose product they own; the ownership check is
// the ItemAuthorizer capability, built from the populated products.
package orders

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/logging"
	"shopnest-backend/internal/models"
	"shopnest-backend/internal/store"
)

var tracer = otel.Tracer("shopnest-backend/internal/orders")

// PaymentVerifier confirms a payment reference before an order is stored.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, paymentID string) error
}

type Service struct {
	store       store.Store
	log         logging.Logger
	payments    PaymentVerifier
	now         func() time.Time
	transitions metric.Int64Counter
}

type Option func(*Service)

// WithPaymentVerifier makes Create reject orders whose payment is not settled.
func WithPaymentVerifier(v PaymentVerifier) Option {
	return func(s *Service) { s.payments = v }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, log logging.Logger, opts ...Option) *Service {
	s := &Service{store: st, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	counter, err := otel.Meter("shopnest-backend/internal/orders").Int64Counter(
		"orders.item_transitions",
		metric.WithDescription("Line items moved to a new status"),
	)
	if err != nil {
		log.Warn("failed to create transition counter", map[string]interface{}{"error": err})
	}
	s.transitions = counter
	return s
}

type ItemInput struct {
	Product  primitive.ObjectID
	Name     string
	Price    float64
	Quantity int
	Image    string
}

type CreateInput struct {
	ShippingInfo  models.ShippingInfo
	Items         []ItemInput
	PaymentInfo   models.PaymentInfo
	ItemsPrice    float64
	TaxPrice      float64
	ShippingPrice float64
	TotalPrice    float64
}

// Create stores a new order for buyer. Prices are taken as submitted.
func (s *Service) Create(ctx context.Context, buyer primitive.ObjectID, in CreateInput) (*View, error) {
	ctx, span := tracer.Start(ctx, "orders.Create", trace.WithAttributes(attribute.String("buyer", buyer.Hex())))
	defer span.End()

	if len(in.Items) == 0 {
		return nil, apperr.Validation("Order must contain at least one item")
	}
	ids := make([]primitive.ObjectID, 0, len(in.Items))
	for _, it := range in.Items {
		if it.Quantity < 1 {
			return nil, apperr.Validation(fmt.Sprintf("Quantity for %s must be at least 1", it.Name))
		}
		ids = append(ids, it.Product)
	}
	products, err := s.store.Products().GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			return nil, apperr.NotFound("Product not found: " + id.Hex())
		}
	}
	if s.payments != nil {
		if err := s.payments.VerifyPayment(ctx, in.PaymentInfo.ID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	order := &models.Order{
		ShippingInfo:  in.ShippingInfo,
		PaymentInfo:   in.PaymentInfo,
		ItemsPrice:    in.ItemsPrice,
		TaxPrice:      in.TaxPrice,
		ShippingPrice: in.ShippingPrice,
		TotalPrice:    in.TotalPrice,
		User:          buyer,
		PaidAt:        now,
		CreatedAt:     now,
	}
	for _, it := range in.Items {
		order.OrderItems = append(order.OrderItems, models.OrderItem{
			ID:          primitive.NewObjectID(),
			Product:     it.Product,
			Name:        it.Name,
			Price:       it.Price,
			Quantity:    it.Quantity,
			Image:       it.Image,
			OrderStatus: models.StatusProcessing,
		})
	}
	if err := s.store.Orders().Create(ctx, order); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.log.Info("order created", map[string]interface{}{"orderId": order.ID.Hex(), "items": len(order.OrderItems)})
	v := NewView(order)
	return &v, nil
}

// ListMine returns the buyer's orders, newest first.
func (s *Service) ListMine(ctx context.Context, buyer primitive.ObjectID) ([]View, error) {
	orders, err := s.store.Orders().ListByUser(ctx, buyer)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(orders))
	for i := range orders {
		views = append(views, NewView(&orders[i]))
	}
	return views, nil
}

// GetMine returns one of the buyer's own orders.
func (s *Service) GetMine(ctx context.Context, orderID, buyer primitive.ObjectID) (*View, error) {
	o, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.User != buyer {
		return nil, apperr.NotFound("Order not found")
	}
	v := NewView(o)
	return &v, nil
}

// SellerOrders is the seller dashboard listing.
type SellerOrders struct {
	Orders      []View  `json:"orders"`
	TotalAmount float64 `json:"totalAmount"`
}

// ListForSeller returns every order containing the seller's products,
// narrowed to the seller's items, and the revenue those items represent.
func (s *Service) ListForSeller(ctx context.Context, seller primitive.ObjectID) (*SellerOrders, error) {
	ctx, span := tracer.Start(ctx, "orders.ListForSeller")
	defer span.End()

	products, err := s.store.Products().ListByOwner(ctx, seller)
	if err != nil {
		return nil, err
	}
	own := make(Ownership, len(products))
	ids := make([]primitive.ObjectID, 0, len(products))
	for _, p := range products {
		own[p.ID] = p.Owner
		ids = append(ids, p.ID)
	}
	orders, err := s.store.Orders().ListByProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := &SellerOrders{Orders: []View{}}
	total := decimal.Zero
	for i := range orders {
		view := SellerView(&orders[i], own, seller)
		if len(view.OrderItems) == 0 {
			continue
		}
		for _, it := range view.OrderItems {
			total = total.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		out.Orders = append(out.Orders, NewView(view))
	}
	out.TotalAmount = total.Round(2).InexactFloat64()
	return out, nil
}

// GetForSeller returns the seller's view of one order.
func (s *Service) GetForSeller(ctx context.Context, orderID, seller primitive.ObjectID) (*View, error) {
	o, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	own, err := s.ownership(ctx, o)
	if err != nil {
		return nil, err
	}
	view := SellerView(o, own, seller)
	if len(view.OrderItems) == 0 {
		return nil, apperr.NotFound("Order not found")
	}
	v := NewView(view)
	return &v, nil
}

// UpdateStatus moves the seller's items in an order to status. Items of
// other sellers are left alone. Leaving Processing consumes stock.
func (s *Service) UpdateStatus(ctx context.Context, orderID, seller primitive.ObjectID, status string) (*View, error) {
	ctx, span := tracer.Start(ctx, "orders.UpdateStatus", trace.WithAttributes(
		attribute.String("order", orderID.Hex()),
		attribute.String("status", status),
	))
	defer span.End()

	status, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	var (
		view    *models.Order
		changed int
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.store.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		own, err := s.ownership(ctx, order)
		if err != nil {
			return err
		}
		idx := sellerIndexes(own, seller, order.OrderItems)
		if len(idx) == 0 {
			return apperr.NotFound("Order not found")
		}
		need, err := planTransition(order.OrderItems, idx, status)
		if err != nil {
			return err
		}
		applied, err := s.consumeStock(ctx, need)
		if err != nil {
			return err
		}

		now := s.now()
		for _, i := range idx {
			order.OrderItems[i].OrderStatus = status
			if status == models.StatusDelivered && order.OrderItems[i].DeliveredAt == nil {
				at := now
				order.OrderItems[i].DeliveredAt = &at
			}
		}
		if err := s.store.Orders().Update(ctx, order); err != nil {
			s.restoreStock(ctx, applied)
			return err
		}
		view = SellerView(order, own, seller)
		changed = len(idx)
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.transitions != nil {
		s.transitions.Add(ctx, int64(changed), metric.WithAttributes(attribute.String("status", status)))
	}
	s.log.Info("order items updated", map[string]interface{}{
		"orderId": orderID.Hex(),
		"seller":  seller.Hex(),
		"status":  status,
		"items":   changed,
	})
	v := NewView(view)
	return &v, nil
}

// DeleteForSeller removes the seller's items from an order, deleting the
// order when nothing else remains.
func (s *Service) DeleteForSeller(ctx context.Context, orderID, seller primitive.ObjectID) error {
	ctx, span := tracer.Start(ctx, "orders.DeleteForSeller")
	defer span.End()

	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.store.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		own, err := s.ownership(ctx, order)
		if err != nil {
			return err
		}
		rest := RemainingAfter(order, own, seller)
		switch {
		case len(rest) == len(order.OrderItems):
			return apperr.NotFound("Order not found")
		case len(rest) == 0:
			return s.store.Orders().Delete(ctx, orderID)
		default:
			order.OrderItems = rest
			return s.store.Orders().Update(ctx, order)
		}
	})
}

// ownership populates the products of o. Items whose product no longer
// exists are logged and end up owned by nobody.
func (s *Service) ownership(ctx context.Context, o *models.Order) (Ownership, error) {
	ids := make([]primitive.ObjectID, 0, len(o.OrderItems))
	for _, it := range o.OrderItems {
		ids = append(ids, it.Product)
	}
	products, err := s.store.Products().GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, it := range o.OrderItems {
		if _, ok := products[it.Product]; !ok {
			s.log.Warn("order item references a deleted product", map[string]interface{}{
				"orderId": o.ID.Hex(),
				"itemId":  it.ID.Hex(),
				"product": it.Product.Hex(),
			})
		}
	}
	return OwnershipOf(products), nil
}

type stockChange struct {
	product primitive.ObjectID
	qty     int
}

// consumeStock checks every stock level first, then applies each decrement
// as a conditional update. A decrement that loses a race undoes the ones
// already applied.
func (s *Service) consumeStock(ctx context.Context, need map[primitive.ObjectID]int) ([]stockChange, error) {
	if len(need) == 0 {
		return nil, nil
	}
	changes := make([]stockChange, 0, len(need))
	ids := make([]primitive.ObjectID, 0, len(need))
	for id, qty := range need {
		changes = append(changes, stockChange{product: id, qty: qty})
		ids = append(ids, id)
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].product.Hex() < changes[j].product.Hex() })

	products, err := s.store.Products().GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range changes {
		p, ok := products[c.product]
		if !ok {
			return nil, apperr.NotFound("Product not found: " + c.product.Hex())
		}
		if p.Stock < c.qty {
			return nil, apperr.InsufficientStock(fmt.Sprintf("Not enough stock for %s: %d left, %d needed", p.Name, p.Stock, c.qty))
		}
	}

	applied := make([]stockChange, 0, len(changes))
	for _, c := range changes {
		if err := s.store.Products().AdjustStock(ctx, c.product, -c.qty); err != nil {
			s.restoreStock(ctx, applied)
			return nil, err
		}
		applied = append(applied, c)
	}
	return applied, nil
}

func (s *Service) restoreStock(ctx context.Context, applied []stockChange) {
	for _, c := range applied {
		if err := s.store.Products().AdjustStock(ctx, c.product, c.qty); err != nil {
			s.log.Error("failed to restore stock", map[string]interface{}{
				"product": c.product.Hex(),
				"qty":     c.qty,
				"error":   err,
			})
		}
	}
}
