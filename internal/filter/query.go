package filter

import (
	"fmt"

	"feedwatcher/internal/model"
)

// Chain is a compiled query. Filters run in index order and the chain
// stops at the first one that rejects the item.
type Chain struct {
	Query model.Query
	preds []Predicate
}

// CompileQuery validates every filter of q and compiles them in index order.
// Duplicate indices are rejected.
func CompileQuery(q model.Query) (*Chain, error) {
	sorted := q.Sorted()
	preds := make([]Predicate, 0, len(sorted))
	for i, f := range sorted {
		if i > 0 && sorted[i-1].Index == f.Index {
			return nil, fmt.Errorf("query %q: %w", q.Name,
				&ConfigError{Type: f.Type, Index: f.Index, Reason: "duplicate index"})
		}
		pred, err := Compile(f)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", q.Name, err)
		}
		preds = append(preds, pred)
	}
	return &Chain{Query: q, preds: preds}, nil
}

// Match reports whether every filter accepts the item. An empty chain
// matches everything.
func (c *Chain) Match(item model.FeedItem) bool {
	for _, p := range c.preds {
		if !p(item) {
			return false
		}
	}
	return true
}

// MatchQuery compiles q and evaluates it against a single item.
func MatchQuery(q model.Query, item model.FeedItem) (bool, error) {
	c, err := CompileQuery(q)
	if err != nil {
		return false, err
	}
	return c.Match(item), nil
}

// ValidateQuery reports whether q can be evaluated.
func ValidateQuery(q model.Query) error {
	_, err := CompileQuery(q)
	return err
}
