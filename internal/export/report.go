package export

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/disasterlens/civicguard/internal/model"
)

//go:embed templates
var templatesFS embed.FS

var reportTemplate = template.Must(template.New("case_report.html").
	Funcs(template.FuncMap{
		"millis": func(ms int64) string {
			return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05 MST")
		},
	}).
	ParseFS(templatesFS, "templates/case_report.html"))

// reportData is the template context for one printable incident report.
type reportData struct {
	Case      *model.IncidentCase
	PrintedAt string
}

// RenderReport writes the printable report for one case and its history.
func RenderReport(w io.Writer, c *model.IncidentCase, printedAt time.Time) error {
	data := reportData{
		Case:      c,
		PrintedAt: printedAt.UTC().Format("2006-01-02 15:04:05 MST"),
	}
	if err := reportTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render report for case %s: %w", c.ID, err)
	}
	return nil
}
