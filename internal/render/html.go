package render

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templatesFS, "templates/calendar.html"))

// HTML writes the calendar page. The root element carries
// data-ready="true" once rendered so headless captures can wait on it.
func HTML(w io.Writer, p Page) error {
	return pageTmpl.ExecuteTemplate(w, "calendar.html", p)
}
