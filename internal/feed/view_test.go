package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	ID   string
	Body string
}

func itemKey(i item) string { return i.ID }

func itemConn(ids ...string) Connection[item] {
	var c Connection[item]
	for _, id := range ids {
		c.Edges = append(c.Edges, Edge[item]{Node: item{ID: id}, Cursor: "cur-" + id})
	}
	if len(ids) > 0 {
		c.PageInfo = PageInfo{HasNextPage: true, EndCursor: "cur-" + ids[len(ids)-1]}
	}
	return c
}

func ids(items []item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestPushPrependsNewestFirst(t *testing.T) {
	v := NewView(NewPaginator(itemConn("a", "b"), nil), itemKey)

	require.True(t, v.Push(item{ID: "x"}))
	require.True(t, v.Push(item{ID: "y"}))

	require.Equal(t, []string{"y", "x", "a", "b"}, ids(v.Items()))
	require.Equal(t, 2, v.Paginator().Len())
}

func TestPushIgnoresDuplicates(t *testing.T) {
	v := NewView(NewPaginator(itemConn("a", "b"), nil), itemKey)

	require.False(t, v.Push(item{ID: "a"}))
	require.True(t, v.Push(item{ID: "x"}))
	require.False(t, v.Push(item{ID: "x", Body: "again"}))

	require.Equal(t, []string{"x", "a", "b"}, ids(v.Items()))
}

func TestPushWithoutIDIsNeverDuplicate(t *testing.T) {
	v := NewView(NewPaginator(itemConn("a"), nil), itemKey)

	require.True(t, v.Push(item{Body: "one"}))
	require.True(t, v.Push(item{Body: "one"}))
	require.Len(t, v.Items(), 3)
}

func TestPushedItemsSurvivePagination(t *testing.T) {
	p := NewPaginator(itemConn("a", "b"), func(ctx context.Context, count int, cursor string) (Connection[item], error) {
		return itemConn("c", "x"), nil
	})
	v := NewView(p, itemKey)
	require.True(t, v.Push(item{ID: "x"}))

	require.True(t, p.LoadMore(context.Background(), 2, nil))

	// x arrived in the new page too; it stays where it was pushed.
	require.Equal(t, []string{"x", "a", "b", "c"}, ids(v.Items()))
	require.Equal(t, []string{"x"}, ids(v.Pushed()))
}
