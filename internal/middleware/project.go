package middleware

import (
	"context"
	"net/http"

	"github.com/harryn0502/tracelens/internal/config"
	"github.com/harryn0502/tracelens/internal/contextkey"
)

// Project tags every request with its project name from the X-Project
// header, falling back to the configured default. The tag is stamped onto
// ingested spans as their session name.
func Project(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			project := r.Header.Get("X-Project")
			if project == "" {
				project = cfg.DefaultProject
			}
			ctx := context.WithValue(r.Context(), contextkey.ProjectKey, project)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
