package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// CodeStyle is the chroma style used for code blocks.
var CodeStyle = "monokai"

// Highlight colors code for a 256 color terminal. An empty lang guesses
// the lexer from the source. Unknown languages and failures return the
// code unchanged.
func Highlight(code, lang string) string {
	var lexer chroma.Lexer
	if lang != "" {
		lexer = lexers.Get(lang)
	} else {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		return code
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(CodeStyle)
	formatter := formatters.Get("terminal256")
	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var sb strings.Builder
	if err := formatter.Format(&sb, style, it); err != nil {
		return code
	}
	return sb.String()
}
