package web

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// pageData is everything the single UI page renders.
type pageData struct {
	Lang          string
	Prompt        string
	Email         string
	ImageURL      string
	Warning       string
	Error         string
	Success       string
	Price         string
	RetryURL      string
	FreeAvailable bool
	NeedsPayment  bool
	Verified      bool
}

func renderPage(w io.Writer, data pageData) error {
	return pageTemplate.ExecuteTemplate(w, "index.html", data)
}
