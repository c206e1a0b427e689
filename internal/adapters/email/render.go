package email

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

// Renderer turns markdown email bodies into the HTML sent to providers.
// Raw HTML in the markdown is omitted.
type Renderer struct {
	md     goldmark.Markdown
	footer string
}

// NewRenderer creates a Renderer that appends clubName as a footer.
func NewRenderer(clubName string) *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Linkify),
			goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps()),
		),
		footer: clubName,
	}
}

// Render converts markdown to a complete HTML body.
// PRE: markdown is non-empty
// POST: Returns HTML with the club footer, or an error from goldmark
func (r *Renderer) Render(markdown string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(`<div style="font-family: sans-serif; line-height: 1.5">`)
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render email markdown: %w", err)
	}
	if r.footer != "" {
		fmt.Fprintf(&buf, `<hr><p style="color: #666; font-size: 12px">%s</p>`, html.EscapeString(r.footer))
	}
	buf.WriteString(`</div>`)
	return buf.String(), nil
}
