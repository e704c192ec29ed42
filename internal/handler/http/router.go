package httphandler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RunService interface {
	StartService
	StatusService
}

func NewRouter(srv RunService, gatherer prometheus.Gatherer, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", NewHealthHandler())
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", NewStartHandler(srv, log))
		r.Get("/", NewListHandler(srv, log))
		r.Get("/{"+paramID+"}", NewStatusHandler(srv, log))
	})

	return r
}
