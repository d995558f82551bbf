package orders

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/models"
)

var statusRank = map[string]int{
	models.StatusProcessing: 0,
	models.StatusShipped:    1,
	models.StatusDelivered:  2,
}

// ParseStatus accepts exactly Processing, Shipped or Delivered.
func ParseStatus(s string) (string, error) {
	if _, ok := statusRank[s]; !ok {
		return "", apperr.Validation(fmt.Sprintf("Invalid order status %q: must be Processing, Shipped or Delivered", s))
	}
	return s, nil
}

// ValidStatus reports whether s names an order status.
func ValidStatus(s string) bool {
	_, ok := statusRank[s]
	return ok
}

func itemStatus(it models.OrderItem) string {
	if it.OrderStatus == "" {
		return models.StatusProcessing
	}
	return it.OrderStatus
}

// DeriveStatus is the display status of a set of line items: Delivered when
// every item is delivered, Shipped when any item is shipped, else Processing.
func DeriveStatus(items []models.OrderItem) string {
	if len(items) == 0 {
		return models.StatusProcessing
	}
	allDelivered, anyShipped := true, false
	for _, it := range items {
		switch itemStatus(it) {
		case models.StatusDelivered:
		case models.StatusShipped:
			allDelivered, anyShipped = false, true
		default:
			allDelivered = false
		}
	}
	switch {
	case allDelivered:
		return models.StatusDelivered
	case anyShipped:
		return models.StatusShipped
	default:
		return models.StatusProcessing
	}
}

// planTransition validates moving items[idx...] to status and returns the
// quantity each product must give up. Stock is consumed the first time an
// item leaves Processing.
func planTransition(items []models.OrderItem, idx []int, to string) (map[primitive.ObjectID]int, error) {
	allDelivered := true
	for _, i := range idx {
		if itemStatus(items[i]) != models.StatusDelivered {
			allDelivered = false
			break
		}
	}
	if to == models.StatusDelivered && allDelivered {
		return nil, apperr.Validation("You have already delivered this order")
	}

	need := map[primitive.ObjectID]int{}
	for _, i := range idx {
		from := itemStatus(items[i])
		if statusRank[to] < statusRank[from] {
			return nil, apperr.Validation(fmt.Sprintf("Cannot move %s from %s back to %s", items[i].Name, from, to))
		}
		if from == models.StatusProcessing && to != models.StatusProcessing {
			need[items[i].Product] += items[i].Quantity
		}
	}
	return need, nil
}
