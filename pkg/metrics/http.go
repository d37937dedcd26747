package metrics

import (
	"net/http"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// WrapHTTPHandler instruments h with a New Relic transaction per request and
// injects the application into the request context. A nil app returns h as is.
func WrapHTTPHandler(app *newrelic.Application, pattern string, h http.Handler) http.Handler {
	if app == nil {
		return h
	}

	withApp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r.WithContext(NewContext(r.Context(), app)))
	})

	_, wrapped := newrelic.WrapHandle(app, pattern, withApp)
	return wrapped
}
