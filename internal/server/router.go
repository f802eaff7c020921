package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/harryn0502/tracelens/internal/config"
	"github.com/harryn0502/tracelens/internal/handler"
	appmw "github.com/harryn0502/tracelens/internal/middleware"
	"github.com/harryn0502/tracelens/internal/model"
	"github.com/harryn0502/tracelens/internal/translator"
)

func NewRouter(cfg config.Config, ch chan *model.Span, api *handler.API) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appmw.Project(cfg))

	tr := translator.NewTranslator()

	// Health probes
	r.Get("/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(v1 chi.Router) {
		// OTLP ingest
		v1.Post("/traces", handler.TracesHandler(cfg.MaxBodyBytes, tr, ch))

		// Query surface over processed traces
		v1.Get("/traces", api.ListTraces)
		v1.Route("/traces/{traceID}", func(t chi.Router) {
			t.Get("/", api.GetTrace)
			t.Get("/steps", api.ListSteps)
			t.Get("/tree", api.Tree)
			t.Get("/layout", api.Layout)
			t.Get("/export", api.Export)

			// Replay controls
			t.Get("/replay", api.ReplayState)
			t.Post("/replay/seek", api.ReplaySeek)
			t.Post("/replay/{command}", api.ReplayCommand)
		})
	})

	return r
}
