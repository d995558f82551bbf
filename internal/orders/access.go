package orders

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"shopnest-backend/internal/models"
)

// ItemAuthorizer decides whether a seller may see or change a line item.
type ItemAuthorizer interface {
	CanAccessOrderItem(seller primitive.ObjectID, item models.OrderItem) bool
}

// Ownership maps product IDs to the seller who owns them. Items whose
// product is absent from the map belong to nobody.
type Ownership map[primitive.ObjectID]primitive.ObjectID

func OwnershipOf(products map[primitive.ObjectID]*models.Product) Ownership {
	own := make(Ownership, len(products))
	for id, p := range products {
		own[id] = p.Owner
	}
	return own
}

func (o Ownership) CanAccessOrderItem(seller primitive.ObjectID, item models.OrderItem) bool {
	owner, ok := o[item.Product]
	return ok && owner == seller
}

// sellerIndexes returns the positions of the seller's items.
func sellerIndexes(auth ItemAuthorizer, seller primitive.ObjectID, items []models.OrderItem) []int {
	var idx []int
	for i, it := range items {
		if auth.CanAccessOrderItem(seller, it) {
			idx = append(idx, i)
		}
	}
	return idx
}

// SellerView returns a copy of o holding only the seller's line items.
func SellerView(o *models.Order, auth ItemAuthorizer, seller primitive.ObjectID) *models.Order {
	view := o.Clone()
	view.OrderItems = view.OrderItems[:0]
	for _, it := range o.OrderItems {
		if auth.CanAccessOrderItem(seller, it) {
			view.OrderItems = append(view.OrderItems, it)
		}
	}
	return view
}

// RemainingAfter returns the items of o the seller does not own.
func RemainingAfter(o *models.Order, auth ItemAuthorizer, seller primitive.ObjectID) []models.OrderItem {
	rest := []models.OrderItem{}
	for _, it := range o.OrderItems {
		if !auth.CanAccessOrderItem(seller, it) {
			rest = append(rest, it)
		}
	}
	return rest
}

// View is an order as returned by the API, with its derived status.
type View struct {
	*models.Order
	Status string `json:"orderStatus"`
}

func NewView(o *models.Order) View {
	return View{Order: o, Status: DeriveStatus(o.OrderItems)}
}
