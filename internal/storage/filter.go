package storage

import "github.com/qdrant/go-client/qdrant"

// Condition is one exact-match clause of a filter.
type Condition struct {
	Field string
	Value any // string or bool
}

// Filter is an ordered conjunction of exact-match conditions. The core never
// needs disjunction or range clauses.
type Filter struct {
	Must []Condition
}

// Eq appends a string equality condition and returns the filter for chaining.
func (f Filter) Eq(field, value string) Filter {
	f.Must = append(f.Must, Condition{Field: field, Value: value})
	return f
}

// EqBool appends a boolean equality condition.
func (f Filter) EqBool(field string, value bool) Filter {
	f.Must = append(f.Must, Condition{Field: field, Value: value})
	return f
}

// toQdrant converts the filter to the client's wire representation, always
// adding the point-type clause so manifest points never match chunk queries.
func (f Filter) toQdrant(pointType string) *qdrant.Filter {
	must := []*qdrant.Condition{
		qdrant.NewMatch(fieldType, pointType),
	}
	for _, c := range f.Must {
		switch v := c.Value.(type) {
		case bool:
			must = append(must, qdrant.NewMatchBool(c.Field, v))
		case string:
			must = append(must, qdrant.NewMatch(c.Field, v))
		}
	}
	return &qdrant.Filter{Must: must}
}
