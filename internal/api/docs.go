package api

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tjfontaine/lambda-api/internal/server"
)

var docsPage = template.Must(template.New("docs").Parse(`<!doctype html>
<html>
  <head>
    <title>{{.Title}}</title>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
  </head>
  <body>
    <script id="api-reference" data-url="{{.SpecURL}}" data-configuration="{{.Config}}"></script>
    <script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
  </body>
</html>
`))

// scalarConfig is passed to the Scalar API reference viewer.
const scalarConfig = `{"theme":"purple","layout":"modern","defaultHttpClient":{"targetKey":"js","clientKey":"fetch"}}`

// DocsHandler serves the interactive API reference for the document at specURL.
func DocsHandler(specURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=300")
		_ = docsPage.Execute(w, map[string]string{
			"Title":   DocumentTitle,
			"SpecURL": specURL,
			"Config":  scalarConfig,
		})
	}
}

// OpenAPIHandler serves the generated document. It is rendered once, on the
// first request, after every route has been mounted.
func OpenAPIHandler(spec *Spec, errs *server.ErrorHandler, logger *slog.Logger) http.HandlerFunc {
	var (
		once sync.Once
		body []byte
		err  error
	)
	return errs.Handle(func(w http.ResponseWriter, r *http.Request) error {
		once.Do(func() {
			doc, buildErr := spec.Build()
			if buildErr != nil {
				err = buildErr
				return
			}
			body, err = json.Marshal(doc)
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to build openapi document", slog.String("error", err.Error()))
			return err
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return nil
	})
}
