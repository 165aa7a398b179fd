package http

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-widget/internal/lookup"
)

//go:embed templates/index.html
var indexHTML string

var pageTemplate = template.Must(template.New("index").Parse(indexHTML))

// pageData is what the index template renders.
type pageData struct {
	Input   string
	Loading bool
	Result  *lookup.Display
	Error   lookup.ErrorState
}

func newPageData(v lookup.View) pageData {
	data := pageData{
		Input:   v.Input,
		Loading: v.Loading,
		Error:   v.ErrorState(),
	}
	if r, ok := v.Result(); ok {
		d := lookup.NewDisplay(r)
		data.Result = &d
	}
	return data
}

// renderPage executes the template into a buffer first so a template error
// becomes a 500 instead of a truncated page.
func renderPage(w http.ResponseWriter, r *http.Request, status int, v lookup.View) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, newPageData(v)); err != nil {
		requestLogger(r, nil).Error("render page", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
