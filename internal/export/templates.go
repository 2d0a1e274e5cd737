package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var documentTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	content, err := templateFS.ReadFile("templates/document.html")
	if err != nil {
		// Fall back to the built-in template if the embedded file is missing.
		documentTemplate = template.Must(template.New("document").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	documentTemplate = template.Must(template.New("document").Funcs(funcMap).Parse(string(content)))
}

// TemplateData is the document view handed to the HTML template.
type TemplateData struct {
	Title      string
	URL        string
	ExportedAt time.Time
	Segments   []TemplateSegment
	Notes      []TemplateNote
}

// TemplateSegment is one painted piece of the text surface. Marked
// segments render as <mark> tinted by the primary annotation's color,
// with the covering annotation IDs carried in a data attribute.
type TemplateSegment struct {
	Text   string
	Marked bool
	Tint   string
	IDs    string
}

// TemplateNote is one annotation note listed after the text.
type TemplateNote struct {
	Quote     string
	Body      string
	Author    string
	Color     string
	CreatedAt time.Time
}

// RenderDocumentHTML renders the document template with provided data.
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load.
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, serif; line-height: 1.7; max-width: 720px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #f59e0b; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .content { white-space: pre-wrap; }
    .note { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #f59e0b; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.URL}} | exported {{formatDate .ExportedAt "Jan 2, 2006"}}</div>
  <div class="content">{{range .Segments}}{{if .Marked}}<mark style="background-color: {{.Tint}}" data-annotations="{{.IDs}}">{{.Text}}</mark>{{else}}{{.Text}}{{end}}{{end}}</div>
  {{if .Notes}}
  <h2>Notes</h2>
  {{range .Notes}}<div class="note"><blockquote>{{.Quote}}</blockquote>{{.Body}}<div>{{.Author}}</div></div>{{end}}
  {{end}}
</body>
</html>`
