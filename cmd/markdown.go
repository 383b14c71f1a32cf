package cmd

import (
	"github.com/charmbracelet/glamour"
)

const defaultMarkdownTheme = "auto"

// renderMarkdown styles markdown for a terminal and returns it unchanged
// for pipes and redirects.
func renderMarkdown(markdown, theme string, styled bool) string {
	if !styled || markdown == "" {
		return markdown
	}
	if theme == "" {
		theme = defaultMarkdownTheme
	}

	rendered, err := glamour.Render(markdown, theme)
	if err != nil {
		return markdown
	}
	return rendered
}
