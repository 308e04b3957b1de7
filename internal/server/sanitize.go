package server

import (
	"html"
	"net/http"

	"github.com/microcosm-cc/bluemonday"
)

// SanitizeMiddleware strips markup from every query parameter value. When any
// value changes, the request's query is replaced with the sanitized form
// before later handlers run.
func SanitizeMiddleware() func(http.Handler) http.Handler {
	policy := bluemonday.StrictPolicy()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery == "" {
				next.ServeHTTP(w, r)
				return
			}

			query := r.URL.Query()
			changed := false
			for key, values := range query {
				for i, v := range values {
					clean := SanitizeString(policy, v)
					if clean != v {
						values[i] = clean
						changed = true
					}
				}
				query[key] = values
			}

			if changed {
				AddLogField(r.Context(), "sanitized", "query")
				u := *r.URL
				u.RawQuery = query.Encode()
				r2 := r.Clone(r.Context())
				r2.URL = &u
				r2.RequestURI = u.RequestURI()
				r = r2
			}

			next.ServeHTTP(w, r)
		})
	}
}

// maxSanitizePasses bounds re-sanitizing of entity-encoded markup.
const maxSanitizePasses = 3

// SanitizeString removes all markup from s. The policy escapes text, so the
// result is unescaped back to plain text and sanitized again until stable.
func SanitizeString(policy *bluemonday.Policy, s string) string {
	for i := 0; i < maxSanitizePasses && s != ""; i++ {
		clean := html.UnescapeString(policy.Sanitize(s))
		if clean == s {
			break
		}
		s = clean
	}
	return s
}
