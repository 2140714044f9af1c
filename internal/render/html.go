package render

import (
	"strconv"
	"strings"
	"unicode/utf8"

	xhtml "golang.org/x/net/html"
)

// HTMLToText converts GitHub's bodyHTML to wrapped plain text.
// Handles paragraphs, headings, links, emphasis, inline code, code blocks,
// lists, blockquotes and line breaks. Code blocks are indented four spaces
// and never wrapped.
func HTMLToText(raw string, width int) string {
	return convert(raw, width, false)
}

// HTMLToTerminal is HTMLToText with syntax highlighted code blocks.
func HTMLToTerminal(raw string, width int) string {
	return convert(raw, width, true)
}

// Preview returns the first n characters of raw as a single line.
func Preview(raw string, n int) string {
	text := strings.Join(strings.Fields(HTMLToText(raw, 0)), " ")
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}

type converter struct {
	sb        strings.Builder
	highlight bool

	inPre    bool
	inCode   bool
	preLang  string
	divLang  string
	code     strings.Builder
	quote    int
	anchor   string
	lists    []int // -1 for unordered, else next ordinal
}

func convert(raw string, width int, highlight bool) string {
	if raw == "" {
		return ""
	}
	c := &converter{highlight: highlight}
	tokenizer := xhtml.NewTokenizer(strings.NewReader(raw))
	for {
		tt := tokenizer.Next()
		switch tt {
		case xhtml.ErrorToken:
			return wrapText(strings.TrimRight(strings.TrimLeft(c.sb.String(), "\n"), " \n"), width)
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			c.start(tokenizer.Token())
		case xhtml.EndTagToken:
			c.end(tokenizer.Token())
		case xhtml.TextToken:
			c.text(tokenizer.Token().Data)
		}
	}
}

func attr(t xhtml.Token, key string) string {
	for _, a := range t.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// langFromClass reads "highlight-source-go" or "language-go".
func langFromClass(class string) string {
	for _, c := range strings.Fields(class) {
		if lang, ok := strings.CutPrefix(c, "highlight-source-"); ok {
			return lang
		}
		if lang, ok := strings.CutPrefix(c, "language-"); ok {
			return lang
		}
	}
	return ""
}

func (c *converter) start(t xhtml.Token) {
	if c.inPre {
		if t.Data == "code" && c.preLang == "" {
			c.preLang = langFromClass(attr(t, "class"))
		}
		return
	}
	switch t.Data {
	case "p":
		c.block()
	case "h1", "h2", "h3", "h4", "h5", "h6":
		c.block()
		level, _ := strconv.Atoi(t.Data[1:])
		c.beginLine()
		c.sb.WriteString(strings.Repeat("#", level) + " ")
	case "br":
		c.trimSpaces()
		c.sb.WriteString("\n")
	case "hr":
		c.block()
		c.beginLine()
		c.sb.WriteString("---")
	case "blockquote":
		c.quote++
		c.block()
	case "ul", "ol":
		if len(c.lists) == 0 {
			c.block()
		}
		if t.Data == "ol" {
			start := 1
			if s, err := strconv.Atoi(attr(t, "start")); err == nil {
				start = s
			}
			c.lists = append(c.lists, start)
		} else {
			c.lists = append(c.lists, -1)
		}
	case "li":
		c.line()
		c.beginLine()
		if n := len(c.lists); n > 0 {
			c.sb.WriteString(strings.Repeat("  ", n-1))
			if c.lists[n-1] < 0 {
				c.sb.WriteString("• ")
			} else {
				c.sb.WriteString(strconv.Itoa(c.lists[n-1]) + ". ")
				c.lists[n-1]++
			}
		}
	case "div":
		if lang := langFromClass(attr(t, "class")); lang != "" {
			c.divLang = lang
		}
	case "pre":
		c.block()
		c.inPre = true
		c.preLang = attr(t, "lang")
		if c.preLang == "" {
			c.preLang = c.divLang
		}
		c.code.Reset()
	case "i", "em":
		c.sb.WriteString("*")
	case "b", "strong":
		c.sb.WriteString("**")
	case "del", "s":
		c.sb.WriteString("~~")
	case "code":
		c.sb.WriteString("`")
		c.inCode = true
	case "a":
		c.anchor = attr(t, "href")
	case "img":
		if alt := attr(t, "alt"); alt != "" {
			c.sb.WriteString("[image: " + alt + "]")
		}
	case "tr":
		c.line()
	case "td", "th":
		c.sb.WriteString("  ")
	}
}

func (c *converter) end(t xhtml.Token) {
	switch t.Data {
	case "pre":
		if c.inPre {
			c.inPre = false
			c.writeCode()
		}
		return
	}
	if c.inPre {
		return
	}
	switch t.Data {
	case "blockquote":
		if c.quote > 0 {
			c.quote--
		}
	case "ul", "ol":
		if n := len(c.lists); n > 0 {
			c.lists = c.lists[:n-1]
		}
	case "div":
		c.divLang = ""
	case "i", "em":
		c.sb.WriteString("*")
	case "b", "strong":
		c.sb.WriteString("**")
	case "del", "s":
		c.sb.WriteString("~~")
	case "code":
		c.sb.WriteString("`")
		c.inCode = false
	case "a":
		if c.anchor != "" && strings.HasPrefix(c.anchor, "http") {
			text := strings.TrimSpace(c.sb.String())
			// Only append the URL if it differs from the link text.
			if !strings.HasSuffix(text, c.anchor) {
				c.sb.WriteString(" [" + c.anchor + "]")
			}
		}
		c.anchor = ""
	}
}

func (c *converter) text(s string) {
	if c.inPre {
		c.code.WriteString(s)
		return
	}
	if c.inCode {
		c.sb.WriteString(s)
		return
	}
	collapsed := strings.Join(strings.Fields(s), " ")
	if collapsed == "" {
		if s != "" && !c.atSpace() {
			c.sb.WriteString(" ")
		}
		return
	}
	c.beginLine()
	if isSpace(s[0]) && !c.atSpace() {
		collapsed = " " + collapsed
	}
	if isSpace(s[len(s)-1]) {
		collapsed += " "
	}
	c.sb.WriteString(collapsed)
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

func (c *converter) writeCode() {
	code := strings.TrimRight(c.code.String(), "\n")
	if c.highlight {
		code = strings.TrimRight(Highlight(code, c.preLang), "\n")
	}
	for i, line := range strings.Split(code, "\n") {
		if i > 0 {
			c.sb.WriteString("\n")
		}
		c.sb.WriteString("    " + line)
	}
	c.sb.WriteString("\n\n")
	c.preLang = ""
}

// atSpace reports whether the output is empty or ends in whitespace.
func (c *converter) atSpace() bool {
	s := c.sb.String()
	return s == "" || isSpace(s[len(s)-1])
}

func (c *converter) trimSpaces() {
	s := c.sb.String()
	if t := strings.TrimRight(s, " "); len(t) != len(s) {
		c.sb.Reset()
		c.sb.WriteString(t)
	}
}

// block starts a new paragraph.
func (c *converter) block() {
	c.trimSpaces()
	s := c.sb.String()
	switch {
	case s == "":
	case strings.HasSuffix(s, "\n\n"):
	case strings.HasSuffix(s, "\n"):
		c.sb.WriteString("\n")
	default:
		c.sb.WriteString("\n\n")
	}
}

// line starts a new line unless already at one.
func (c *converter) line() {
	c.trimSpaces()
	if s := c.sb.String(); s != "" && !strings.HasSuffix(s, "\n") {
		c.sb.WriteString("\n")
	}
}

// beginLine writes the blockquote prefix when at the start of a line.
func (c *converter) beginLine() {
	if c.quote == 0 {
		return
	}
	if s := c.sb.String(); s == "" || strings.HasSuffix(s, "\n") {
		c.sb.WriteString(strings.Repeat("> ", c.quote))
	}
}

// wrapText performs simple word wrapping to the given width. Indented code
// lines are left alone and quoted lines keep their prefix.
func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	var result strings.Builder
	for _, paragraph := range strings.Split(text, "\n") {
		if strings.HasPrefix(paragraph, "    ") {
			// Don't wrap code blocks.
			result.WriteString(paragraph)
			result.WriteString("\n")
			continue
		}
		prefix := ""
		for strings.HasPrefix(paragraph[len(prefix):], "> ") {
			prefix += "> "
		}
		words := strings.Fields(paragraph[len(prefix):])
		if len(words) == 0 {
			result.WriteString(strings.TrimRight(prefix, " "))
			result.WriteString("\n")
			continue
		}
		avail := width - len(prefix)
		if avail < 1 {
			avail = 1
		}
		result.WriteString(prefix)
		lineLen := 0
		for i, word := range words {
			wlen := utf8.RuneCountInString(word)
			if i > 0 && lineLen+1+wlen > avail {
				result.WriteString("\n")
				result.WriteString(prefix)
				lineLen = 0
			} else if i > 0 {
				result.WriteString(" ")
				lineLen++
			}
			result.WriteString(word)
			lineLen += wlen
		}
		result.WriteString("\n")
	}
	return strings.TrimRight(result.String(), "\n")
}
