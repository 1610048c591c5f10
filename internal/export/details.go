package export

import (
	"bytes"
	"log"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	detailsMarkdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	detailsPolicy = bluemonday.UGCPolicy()
)

// DetailsToHTML renders the markdown details of an idea. Raw HTML in the
// source is dropped and the output is sanitized for embedding in the sheet.
func DetailsToHTML(details string) string {
	var buf bytes.Buffer
	if err := detailsMarkdown.Convert([]byte(details), &buf); err != nil {
		log.Printf("export: render details: %v", err)
		return ""
	}
	return string(detailsPolicy.SanitizeBytes(buf.Bytes()))
}
