// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router sets up the HTTP routes and middleware chain of the
// category API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"cattree/internal/handlers"
	"cattree/internal/middleware"
)

// New creates and returns the configured Chi router. A nil limiter
// disables write rate limiting.
func New(cats *handlers.Categories, limiter *middleware.RateLimiter) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(chimw.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)

	r.NotFound(jsonStatus(http.StatusNotFound, "not found"))
	r.MethodNotAllowed(jsonStatus(http.StatusMethodNotAllowed, "method not allowed"))

	r.Get("/health", healthHandler)

	r.Route("/api/v1/categories", func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}

		r.Post("/", cats.Create)
		r.Get("/", cats.List)
		r.Delete("/", cats.DeleteMany)

		// Registered before /{id} so "tree" is never parsed as an id.
		r.Get("/tree", cats.Tree)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", cats.Get)
			r.Patch("/", cats.Update)
			r.Delete("/", cats.Delete)
			r.Post("/rebuild", cats.Rebuild)
		})
	})

	r.Get("/api/v1/propagations", cats.Propagations)

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func jsonStatus(status int, msg string) http.HandlerFunc {
	body := []byte(`{"error":"` + msg + `"}`)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(body)
	}
}
