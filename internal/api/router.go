package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maltedev/crosslist/internal/metrics"
)

// Router assembles the HTTP surface: conversion endpoints under /api/v1,
// a liveness probe and Prometheus metrics.
func Router(h *Handlers, m *metrics.Metrics) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Method("GET", "/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/preview", h.Preview)
		r.Post("/convert", h.Convert)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", h.CreateJob)
			r.Get("/", h.ListJobs)
			r.Get("/{jobID}", h.GetJob)
			r.Get("/{jobID}/results", h.GetJobResults)
			r.Delete("/{jobID}", h.CancelJob)
		})

		r.Get("/conversions/{conversionID}", h.GetConversion)

		r.Get("/proxies", h.ProxyHealth)
		r.Post("/proxies/reactivate", h.ReactivateProxies)
		r.Get("/scrapers", h.Scrapers)
	})

	return r
}
