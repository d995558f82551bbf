package products

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/store"
)

type fieldKind int

const (
	textField fieldKind = iota
	numberField
)

// filterable lists the product fields a client may filter on.
var filterable = map[string]fieldKind{
	"category":     textField,
	"price":        numberField,
	"rating":       numberField,
	"stock":        numberField,
	"numOfReviews": numberField,
}

var rangeOps = map[string]store.Op{
	"gt":  store.OpGt,
	"gte": store.OpGte,
	"lt":  store.OpLt,
	"lte": store.OpLte,
}

// reserved keys drive search and paging and are never field filters.
var reserved = map[string]bool{"keyword": true, "page": true, "limit": true}

// QueryBuilder turns URL query parameters into a store.ProductQuery.
//
//	q, err := NewQueryBuilder(r.URL.Query()).Search().Filter().Pagination(8).Query()
type QueryBuilder struct {
	params url.Values
	query  store.ProductQuery
	err    error
}

func NewQueryBuilder(params url.Values) *QueryBuilder {
	return &QueryBuilder{params: params}
}

// Search matches the keyword parameter against product names.
func (b *QueryBuilder) Search() *QueryBuilder {
	b.query.Keyword = strings.TrimSpace(b.params.Get("keyword"))
	return b
}

// Filter reads field=value equality and field[op]=value range parameters.
// Unknown fields are ignored.
func (b *QueryBuilder) Filter() *QueryBuilder {
	if b.err != nil {
		return b
	}
	keys := make([]string, 0, len(b.params))
	for k := range b.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if reserved[key] {
			continue
		}
		field, op, err := parseKey(key)
		if err != nil {
			b.err = err
			return b
		}
		kind, ok := filterable[field]
		if !ok {
			continue
		}
		raw := b.params.Get(key)
		cond := store.Condition{Field: field, Op: op}
		switch kind {
		case textField:
			if op != store.OpEq {
				b.err = apperr.Validation(fmt.Sprintf("Field %s does not support range filters", field))
				return b
			}
			cond.Value = raw
		case numberField:
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				b.err = apperr.Validation(fmt.Sprintf("Filter %s needs a number, got %q", key, raw))
				return b
			}
			cond.Value = n
		}
		b.query.Conditions = append(b.query.Conditions, cond)
	}
	return b
}

// parseKey splits "price[gte]" into ("price", gte) and "category" into
// ("category", eq).
func parseKey(key string) (string, store.Op, error) {
	field, rest, found := strings.Cut(key, "[")
	if !found {
		return key, store.OpEq, nil
	}
	name, ok := strings.CutSuffix(rest, "]")
	if !ok {
		return "", "", apperr.Validation(fmt.Sprintf("Malformed filter %q", key))
	}
	op, ok := rangeOps[name]
	if !ok {
		return "", "", apperr.Validation(fmt.Sprintf("Unknown filter operator %q", name))
	}
	return field, op, nil
}

// Pagination windows the result to perPage items of the requested page.
func (b *QueryBuilder) Pagination(perPage int) *QueryBuilder {
	page := CurrentPage(b.params)
	b.query.Limit = int64(perPage)
	b.query.Skip = int64(perPage) * int64(page-1)
	return b
}

// Query returns the built query or the first parameter error.
func (b *QueryBuilder) Query() (store.ProductQuery, error) {
	return b.query, b.err
}

// CurrentPage reads page, defaulting to 1 for missing or invalid values.
func CurrentPage(params url.Values) int {
	page, err := strconv.Atoi(params.Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
