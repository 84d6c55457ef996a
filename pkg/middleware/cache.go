package middleware

import (
	"fmt"
	"net/http"
)

// NoStore marks responses as uncacheable. Mount it on routes that return
// credentials or identity data.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// CacheControl returns a middleware that lets shared caches keep GET
// responses for maxAge seconds. Responses that vary by caller are marked private.
func CacheControl(maxAge int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				scope := "public"
				if r.Header.Get("Authorization") != "" {
					scope = "private"
				}
				w.Header().Set("Cache-Control", fmt.Sprintf("%s, max-age=%d", scope, maxAge))
			}
			next.ServeHTTP(w, r)
		})
	}
}
