package export

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"unicode"
)

const maxFilenameLength = 50

// Service provides idea export functionality
type Service struct {
	pdf  func(ctx context.Context, html, title string) (*Result, error)
	docx func(ctx context.Context, html, title string) (*Result, error)
}

// NewService creates a new export service
func NewService() *Service {
	return &Service{pdf: exportPDF, docx: exportDOCX}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	html, err := RenderIdeaHTML(BuildTemplateData(req))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: exportFilename(req.Idea.Title, "html"),
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return s.pdf(ctx, html, req.Idea.Title)
	case FormatDOCX:
		return s.docx(ctx, html, req.Idea.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

// BuildTemplateData maps an idea onto the sheet template.
func BuildTemplateData(req Request) TemplateData {
	idea := req.Idea
	data := TemplateData{
		Title:       strings.TrimSpace(idea.Title),
		Description: idea.Description,
		DetailsHTML: template.HTML(DetailsToHTML(idea.Details)),
		Tags:        idea.Tags,
		Priority:    string(idea.Priority),
		Status:      string(idea.Status),
		Shared:      idea.IsShared,
		OwnerName:   idea.OwnerName,
		CreatedAt:   idea.CreatedAt,
		UpdatedAt:   idea.UpdatedAt,
	}
	if data.Title == "" {
		data.Title = "Untitled idea"
	}
	if link, ok := safeURL(idea.WebsiteURL); ok {
		data.WebsiteURL = link
	}
	for _, img := range idea.Images {
		if src, ok := safeURL(img); ok {
			data.Images = append(data.Images, src)
		}
	}
	for _, c := range idea.Collaborators {
		name := c.Name
		if name == "" {
			name = c.ID
		}
		data.Collaborators = append(data.Collaborators, name)
	}
	return data
}

// exportFilename builds an attachment name from the idea title: ASCII letters
// and digits are kept, spaces become dashes, and everything else is dropped.
func exportFilename(title, ext string) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '-'
		case r == '-', r == '_':
			return r
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			return r
		}
		return -1
	}, strings.TrimSpace(title))
	if len(base) > maxFilenameLength {
		base = base[:maxFilenameLength]
	}
	if base == "" {
		base = "idea"
	}
	return base + "." + ext
}
