package voice

import (
	"bytes"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

var sanitizer = bluemonday.UGCPolicy()

// RenderHTML converts assistant markdown to sanitized HTML for the browser
// widget. Script tags and event handlers are stripped.
func RenderHTML(source string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return sanitizer.Sanitize(buf.String()), nil
}
