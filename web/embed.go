// Package web embeds the HTML templates served by the API server.
//
// Usage in the API server:
//
//	tmpl, err := template.New("").Funcs(funcs).ParseFS(web.Templates(), "*.html")
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.html
var templates embed.FS

// Templates returns a filesystem rooted at the embedded templates/ directory.
func Templates() fs.FS {
	sub, err := fs.Sub(templates, "templates")
	if err != nil {
		// The directory is embedded at compile time.
		panic("web.Templates: " + err.Error())
	}
	return sub
}
