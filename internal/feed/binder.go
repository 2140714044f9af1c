package feed

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Path addresses a leaf inside Variables. Elements are string map keys or
// int slice indexes: Path{"labels", 0}.
type Path []any

// ParsePath splits a dotted path. Numeric segments become indexes:
// "labels.0" is Path{"labels", 0}.
func ParsePath(s string) Path {
	var p Path
	for _, seg := range strings.Split(s, ".") {
		if n, err := strconv.Atoi(seg); err == nil && n >= 0 {
			p = append(p, n)
			continue
		}
		p = append(p, seg)
	}
	return p
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, e := range p {
		parts[i] = fmt.Sprint(e)
	}
	return strings.Join(parts, ".")
}

func (p Path) validate() error {
	if len(p) == 0 {
		return fmt.Errorf("empty path")
	}
	if _, ok := p[0].(string); !ok {
		return fmt.Errorf("path %v must start with a key", p)
	}
	for _, e := range p {
		switch v := e.(type) {
		case string:
		case int:
			if v < 0 {
				return fmt.Errorf("negative index in path %v", p)
			}
		default:
			return fmt.Errorf("path element %v has type %T", e, e)
		}
	}
	return nil
}

// Binder keeps the variables being edited in a form apart from the
// variables the last submitted query ran with. Edits only touch pending;
// Commit publishes a full copy in one step.
type Binder struct {
	mu        sync.Mutex
	committed Variables
	pending   Variables
}

func NewBinder(committed, pending Variables) *Binder {
	return &Binder{committed: committed.Clone(), pending: pending.Clone()}
}

// Update returns a change handler that writes transform(value) at path in
// the pending variables. A nil transform stores the raw string. Slices
// grow as needed and intermediate containers are created. Update panics on
// a malformed path; paths are fixed by the form that owns them.
func (b *Binder) Update(path Path, transform func(string) any) func(string) {
	if err := path.validate(); err != nil {
		panic("feed: " + err.Error())
	}
	path = append(Path(nil), path...)
	if transform == nil {
		transform = func(s string) any { return s }
	}
	return func(value string) {
		b.Set(path, transform(value))
	}
}

// Set writes v at path in the pending variables.
func (b *Binder) Set(path Path, v any) error {
	if err := path.validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = setIn(map[string]any(b.pending), path, v).(map[string]any)
	return nil
}

// Get reads the pending value at path.
func (b *Binder) Get(path Path) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var cur any = map[string]any(b.pending)
	for _, e := range path {
		switch k := e.(type) {
		case string:
			m, ok := asMap(cur)
			if !ok {
				return nil, false
			}
			cur, ok = m[k]
			if !ok {
				return nil, false
			}
		case int:
			s, ok := asSlice(cur)
			if !ok || k >= len(s) {
				return nil, false
			}
			cur = s[k]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Commit makes a deep copy of pending the committed variables and returns
// another copy of it.
func (b *Binder) Commit() Variables {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.committed = b.pending.Clone()
	return b.committed.Clone()
}

// Committed returns a copy of the variables queries should run with.
func (b *Binder) Committed() Variables {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.committed.Clone()
}

func (b *Binder) Pending() Variables {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.Clone()
}

// Reset sets committed to initial overlaid with the pending edits and
// returns a copy. It is how an errored query is retried.
func (b *Binder) Reset(initial Variables) Variables {
	b.mu.Lock()
	defer b.mu.Unlock()
	merged := initial.Clone()
	for k, v := range b.pending.Clone() {
		merged[k] = mergeValue(merged[k], v)
	}
	b.committed = merged
	return merged.Clone()
}

func setIn(cur any, path Path, v any) any {
	if len(path) == 0 {
		return v
	}
	switch k := path[0].(type) {
	case string:
		m, ok := asMap(cur)
		if !ok {
			m = map[string]any{}
		}
		m[k] = setIn(m[k], path[1:], v)
		return m
	case int:
		s, ok := asSlice(cur)
		if !ok {
			s = nil
		}
		for len(s) <= k {
			s = append(s, nil)
		}
		s[k] = setIn(s[k], path[1:], v)
		return s
	}
	return cur
}

func mergeValue(dst, src any) any {
	dm, dok := asMap(dst)
	sm, sok := asMap(src)
	if dok && sok {
		for k, v := range sm {
			dm[k] = mergeValue(dm[k], v)
		}
		return dm
	}
	return src
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Variables:
		return map[string]any(t), true
	}
	return nil, false
}

func asSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}
