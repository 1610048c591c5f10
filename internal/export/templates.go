package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
)

// SafeHTML is a template function that marks a string as safe HTML
func SafeHTML(s any) template.HTML {
	switch v := s.(type) {
	case string:
		return template.HTML(v)
	case template.HTML:
		return v
	default:
		return template.HTML("")
	}
}

//go:embed templates/*.html
var templateFS embed.FS

var ideaTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower":    strings.ToLower,
		"safeHTML": SafeHTML,
		"join":     strings.Join,
	}

	templateContent, err := templateFS.ReadFile("templates/idea.html")
	if err != nil {
		ideaTemplate = template.Must(template.New("idea").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	ideaTemplate = template.Must(template.New("idea").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for idea sheet rendering
type TemplateData struct {
	Title         string
	Description   string
	DetailsHTML   template.HTML
	Tags          []string
	Images        []template.URL
	WebsiteURL    template.URL
	Priority      string
	Status        string
	Shared        bool
	OwnerName     string
	Collaborators []string
	CreatedAt     string
	UpdatedAt     string
}

// RenderIdeaHTML renders the idea template with provided data
func RenderIdeaHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := ideaTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// safeURL keeps http(s) links and inline data images; anything else is dropped.
func safeURL(raw string) (template.URL, bool) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "http://"):
		return template.URL(raw), true
	case strings.HasPrefix(lower, "data:image/"):
		return template.URL(raw), true
	}
	return "", false
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  <div class="meta">{{.OwnerName}} | {{.Status}} | {{.Priority}} | {{.UpdatedAt}}</div>
  <div>{{.DetailsHTML | safeHTML}}</div>
</body>
</html>`
