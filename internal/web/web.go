// Package web embeds the browser UI: a player, a timeline and a label
// box driven almost entirely from the keyboard.
package web

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/datasetcutter/datasetcutter/internal/settings"
)

//go:embed templates/index.html
var indexHTML string

//go:embed static
var staticFS embed.FS

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

type indexData struct {
	Settings settings.Settings
	Modes    []string
}

// IndexHandler renders the UI seeded with the current settings.
func IndexHandler(current func() settings.Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		data := indexData{
			Settings: current(),
			Modes:    []string{settings.ModeBackward, settings.ModeCentered, settings.ModeRange},
		}
		if err := indexTmpl.Execute(&buf, data); err != nil {
			http.Error(w, "failed to render page", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(buf.Bytes())
	}
}

// StaticHandler serves the embedded assets under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
