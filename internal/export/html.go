// Package export renders a report plus its chat's image evidence as a
// standalone HTML document, suitable for printing or PDF conversion by the
// caller.
package export

import (
	"html/template"
	"io"
	"time"

	"github.com/visionary-ai/go-report-backend/internal/domain"
)

const previewTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{ .Report.Title }}</title>
<style>
  body { font-family: Helvetica, Arial, sans-serif; margin: 40px; color: #1a1a1a; }
  h1 { font-size: 22px; border-bottom: 2px solid #1a1a1a; padding-bottom: 8px; }
  table.meta { border-collapse: collapse; margin: 16px 0; }
  table.meta td { padding: 4px 16px 4px 0; vertical-align: top; }
  table.meta td.label { font-weight: bold; white-space: nowrap; }
  .badge { display: inline-block; padding: 2px 10px; border-radius: 10px; font-size: 12px; }
  .badge.High { background: #fdd; } .badge.Medium { background: #ffe9c7; } .badge.Low { background: #ddf5dd; }
  .description { margin: 16px 0; line-height: 1.5; }
  .images { display: flex; flex-wrap: wrap; gap: 12px; margin-top: 16px; }
  .images img { max-width: 260px; border: 1px solid #ccc; border-radius: 4px; }
  footer { margin-top: 32px; font-size: 11px; color: #777; }
</style>
</head>
<body>
<h1>{{ .Report.Title }}</h1>
<table class="meta">
  <tr><td class="label">Report ID</td><td>{{ .Report.ID }}</td></tr>
  <tr><td class="label">Date</td><td>{{ .Report.Date }}</td></tr>
  <tr><td class="label">Status</td><td>{{ .Report.Status }}</td></tr>
  <tr><td class="label">Priority</td><td><span class="badge {{ .Report.Priority }}">{{ .Report.Priority }}</span></td></tr>
  {{ if .Report.Category }}<tr><td class="label">Category</td><td>{{ .Report.Category }}</td></tr>{{ end }}
  {{ if .Report.Type }}<tr><td class="label">Type</td><td>{{ .Report.Type }}</td></tr>{{ end }}
  {{ if .Report.Agent }}<tr><td class="label">Agent</td><td>{{ .Report.Agent }}</td></tr>{{ end }}
  {{ if .Report.SubmittedAt }}<tr><td class="label">Submitted</td><td>{{ .Report.SubmittedAt.Format "2006-01-02 15:04 MST" }}</td></tr>{{ end }}
</table>
<div class="description">{{ .Report.Description }}</div>
{{ if .Images }}
<h2>Evidence</h2>
<div class="images">
  {{ range .Images }}<img src="{{ .URI }}" alt="report image">{{ end }}
</div>
{{ end }}
<footer>Generated {{ .GeneratedAt.Format "2006-01-02 15:04:05 MST" }}</footer>
</body>
</html>
`

var previewTmpl = template.Must(template.New("preview").Parse(previewTemplate))

type previewData struct {
	Report      *domain.Report
	Images      []domain.ImageRef
	GeneratedAt time.Time
}

// RenderHTML writes the report preview document. Image evidence is collected
// from the chat's finalized messages; optimistic placeholders are excluded.
func RenderHTML(w io.Writer, report *domain.Report, messages []domain.Message) error {
	var images []domain.ImageRef
	for _, m := range messages {
		if m.Optimistic {
			continue
		}
		images = append(images, m.Images...)
	}
	return previewTmpl.Execute(w, previewData{
		Report:      report,
		Images:      images,
		GeneratedAt: time.Now().UTC(),
	})
}
