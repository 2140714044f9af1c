// Package feed holds the paginated, live updating data view: a cursor
// paginator, the view that merges pushed items over it, the subscription
// session that feeds those pushes, and the binder that separates form edits
// from the variables a query actually runs with.
package feed

import "context"

// Variables are the arguments of a GraphQL operation.
type Variables map[string]any

// Clone returns a deep copy. Nested maps and slices are copied, leaves are
// shared.
func (v Variables) Clone() Variables {
	if v == nil {
		return Variables{}
	}
	return cloneValue(map[string]any(v)).(map[string]any)
}

// PageInfo mirrors the relay pageInfo object.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type Edge[T any] struct {
	Node   T      `json:"node"`
	Cursor string `json:"cursor"`
}

// Connection is one relay connection: edges in server order plus the
// cursor state needed to fetch what follows them.
type Connection[T any] struct {
	Edges    []Edge[T] `json:"edges"`
	PageInfo PageInfo  `json:"pageInfo"`
}

// Nodes returns the nodes of c in order.
func (c Connection[T]) Nodes() []T {
	out := make([]T, len(c.Edges))
	for i, e := range c.Edges {
		out[i] = e.Node
	}
	return out
}

// PageFunc fetches up to count edges following cursor. An empty cursor asks
// for the first page.
type PageFunc[T any] func(ctx context.Context, count int, cursor string) (Connection[T], error)

func cloneValue(v any) any {
	switch t := v.(type) {
	case Variables:
		return Variables(cloneValue(map[string]any(t)).(map[string]any))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	default:
		return v
	}
}
