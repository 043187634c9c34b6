// Package httpwrap provides HTTP handler wrappers and reply helpers for the
// service layer.
package httpwrap

import "net/http"

// ClearRawPath drops r.URL.RawPath so chi routes on the decoded path and URL
// parameters such as {shareId} arrive decoded.
func ClearRawPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.URL.RawPath = ""
		next.ServeHTTP(w, r)
	})
}
