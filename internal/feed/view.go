package feed

import "sync"

// View is what a list actually renders: items pushed by a live stream,
// newest first, followed by the paginator's base edges. Pushing never
// touches the paginator.
type View[T any] struct {
	mu     sync.Mutex
	base   *Paginator[T]
	key    func(T) string
	pushed []T
}

// NewView wraps base. key returns an item's identity; an empty key marks an
// item that can never be matched as a duplicate.
func NewView[T any](base *Paginator[T], key func(T) string) *View[T] {
	return &View[T]{base: base, key: key}
}

func (v *View[T]) Paginator() *Paginator[T] { return v.base }

// Push prepends item unless an item with the same key is already shown,
// either in the base list or among earlier pushes. It reports whether the
// item was added.
func (v *View[T]) Push(item T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.key(item)
	if id != "" {
		for _, p := range v.pushed {
			if v.key(p) == id {
				return false
			}
		}
		for _, n := range v.base.Nodes() {
			if v.key(n) == id {
				return false
			}
		}
	}
	v.pushed = append([]T{item}, v.pushed...)
	return true
}

// Items returns pushed items then base items. A base item that was pushed
// earlier keeps its pushed position and is not repeated.
func (v *View[T]) Items() []T {
	v.mu.Lock()
	defer v.mu.Unlock()

	seen := make(map[string]bool, len(v.pushed))
	out := make([]T, 0, len(v.pushed)+v.base.Len())
	for _, p := range v.pushed {
		if id := v.key(p); id != "" {
			seen[id] = true
		}
		out = append(out, p)
	}
	for _, n := range v.base.Nodes() {
		if id := v.key(n); id != "" && seen[id] {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Pushed returns only the live items, newest first.
func (v *View[T]) Pushed() []T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]T(nil), v.pushed...)
}

func (v *View[T]) Len() int {
	return len(v.Items())
}
