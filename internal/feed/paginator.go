package feed

import (
	"context"
	"sync"
)

// Paginator owns a growing relay connection. At most one LoadMore runs at a
// time; calls made while one is in flight are rejected, not queued.
type Paginator[T any] struct {
	mu      sync.Mutex
	conn    Connection[T]
	loading bool
	fetch   PageFunc[T]
	// gen changes on Reset; a page fetched for an older generation is
	// dropped.
	gen uint64
}

// NewPaginator starts from an already fetched first page.
func NewPaginator[T any](first Connection[T], fetch PageFunc[T]) *Paginator[T] {
	return &Paginator[T]{conn: copyConnection(first), fetch: fetch}
}

// HasMore reports whether the server said more edges follow.
func (p *Paginator[T]) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.PageInfo.HasNextPage
}

func (p *Paginator[T]) IsLoading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// LoadMore fetches count more edges after the current end cursor and
// appends them. It returns false without doing anything when a load is
// already in flight, when no more pages exist or when count is not
// positive. Otherwise it blocks until the fetch settles, calls onComplete
// exactly once (nil on success, a *PaginationError on failure) and returns
// true. A page that settles after a Reset is not appended.
func (p *Paginator[T]) LoadMore(ctx context.Context, count int, onComplete func(error)) bool {
	p.mu.Lock()
	if p.loading || !p.conn.PageInfo.HasNextPage || count <= 0 {
		p.mu.Unlock()
		return false
	}
	p.loading = true
	cursor := p.conn.PageInfo.EndCursor
	gen := p.gen
	p.mu.Unlock()

	page, err := p.fetch(ctx, count, cursor)

	p.mu.Lock()
	if gen == p.gen {
		p.loading = false
		if err == nil {
			p.conn.Edges = append(p.conn.Edges, page.Edges...)
			p.conn.PageInfo = page.PageInfo
		}
	}
	p.mu.Unlock()

	if onComplete != nil {
		if err != nil {
			onComplete(&PaginationError{Cursor: cursor, Err: err})
		} else {
			onComplete(nil)
		}
	}
	return true
}

// Reset replaces the connection with a freshly fetched first page. A
// LoadMore in flight still completes, but its page is discarded.
func (p *Paginator[T]) Reset(first Connection[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = copyConnection(first)
	p.loading = false
	p.gen++
}

// Edges returns a snapshot of the edges in order.
func (p *Paginator[T]) Edges() []Edge[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Edge[T](nil), p.conn.Edges...)
}

func (p *Paginator[T]) Nodes() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.Nodes()
}

func (p *Paginator[T]) PageInfo() PageInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.PageInfo
}

// Len is the number of edges loaded so far.
func (p *Paginator[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conn.Edges)
}

func copyConnection[T any](c Connection[T]) Connection[T] {
	return Connection[T]{
		Edges:    append([]Edge[T](nil), c.Edges...),
		PageInfo: c.PageInfo,
	}
}
