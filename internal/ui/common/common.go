// Package common holds rendering shared by the views: load-more labels
// and the error box.
package common

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fragmede/essay/internal/api"
)

var (
	errorBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#F85149")).
			Padding(0, 1)

	errorTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F85149")).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D29922"))

	jsonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8B949E"))

	actionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#58A6FF")).
			Bold(true)
)

// LoadMoreLabel is the text of a load-more control for noun ("posts",
// "comments").
func LoadMoreLabel(loading, hasMore bool, noun string, count int) string {
	switch {
	case loading:
		return fmt.Sprintf("Loading more %s...", noun)
	case hasMore:
		return fmt.Sprintf("Fetch %d more %s", count, noun)
	default:
		return fmt.Sprintf("All %s have been fetched", noun)
	}
}

// ErrorText is the plain content of an error box: the operation, the
// error, a setup hint when one applies and the structured errors as JSON.
func ErrorText(op string, err error, endpoint string) string {
	lines := []string{"Error in " + op, err.Error()}
	if hint := api.SuggestSetup(err, endpoint); hint != "" {
		lines = append(lines, "", hint)
	}
	if js := api.ErrorsJSON(err); js != "" {
		lines = append(lines, "", js)
	}
	return strings.Join(lines, "\n")
}

// ErrorBox renders ErrorText in a bordered box with an optional action
// line such as "r: retry".
func ErrorBox(op string, err error, endpoint, action string, width int) string {
	var sb strings.Builder
	sb.WriteString(errorTitleStyle.Render("Error in " + op))
	sb.WriteString("\n")
	sb.WriteString(err.Error())
	if hint := api.SuggestSetup(err, endpoint); hint != "" {
		sb.WriteString("\n\n")
		sb.WriteString(hintStyle.Render(hint))
	}
	if js := api.ErrorsJSON(err); js != "" {
		sb.WriteString("\n\n")
		sb.WriteString(jsonStyle.Render(js))
	}
	if action != "" {
		sb.WriteString("\n\n")
		sb.WriteString(actionStyle.Render(action))
	}
	style := errorBoxStyle
	if width > 4 {
		style = style.Width(width - 4)
	}
	return style.Render(sb.String())
}
