// Package web holds the HTML pages served by the upload handlers.
package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names accepted by Templates.ExecuteTemplate.
const (
	IndexPage   = "index.html"
	UploadPage  = "upload.html"
	DisplayPage = "display.html"
	StatusPage  = "status.html"
)

// ParseTemplates parses every embedded page into one template set.
func ParseTemplates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}
