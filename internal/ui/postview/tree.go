package postview

import (
	"strconv"

	"github.com/fragmede/essay/internal/api"
)

// CollapseState tracks collapsed comments by key.
type CollapseState map[string]bool

// FlatComment is a comment prepared for display.
type FlatComment struct {
	Comment     api.Comment
	Key         string
	IsOP        bool
	IsNew       bool
	IsCollapsed bool
}

// commentKey falls back to the position for streamed comments without an
// id.
func commentKey(c api.Comment, i int) string {
	if c.ID != "" {
		return c.ID
	}
	return "#" + strconv.Itoa(i)
}

// Flatten marks each comment with its display state. Issue comments have
// no nesting, so the order is kept as given.
func Flatten(comments []api.Comment, opLogin string, cs CollapseState, fresh map[string]bool) []FlatComment {
	out := make([]FlatComment, 0, len(comments))
	for i, c := range comments {
		key := commentKey(c, i)
		out = append(out, FlatComment{
			Comment:     c,
			Key:         key,
			IsOP:        opLogin != "" && c.Author != nil && c.Author.Login == opLogin,
			IsNew:       fresh[key],
			IsCollapsed: cs[key],
		})
	}
	return out
}

// FindAuthorIndex returns the index of the next comment after currentIdx
// written by the same author, or -1.
func FindAuthorIndex(comments []FlatComment, currentIdx int) int {
	if currentIdx < 0 || currentIdx >= len(comments) {
		return -1
	}
	login := comments[currentIdx].Comment.Author.Name()
	for i := currentIdx + 1; i < len(comments); i++ {
		if comments[i].Comment.Author.Name() == login {
			return i
		}
	}
	return -1
}
