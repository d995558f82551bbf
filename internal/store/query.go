package store

// Op is a comparison operator in a product filter.
type Op string

const (
	OpEq  Op = "eq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

// Condition constrains one product field. Value is a string for text
// fields and a float64 for numeric ones.
type Condition struct {
	Field string
	Op    Op
	Value interface{}
}

// ProductQuery is a backend-neutral product lookup.
type ProductQuery struct {
	// Keyword matches product names case-insensitively as a substring.
	Keyword    string
	Conditions []Condition
	Skip       int64
	Limit      int64
}

// Unwindowed drops Skip and Limit.
func (q ProductQuery) Unwindowed() ProductQuery {
	q.Skip, q.Limit = 0, 0
	return q
}
