package rest

import "github.com/go-chi/chi/v5"

// Routes mounts the cart API on r.
func Routes(r chi.Router, api CartAPI) {
	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Get("/", api.Get)
		r.Post("/sync", api.Sync)
		r.Route("/items", func(r chi.Router) {
			r.Post("/", api.Add)
			r.Post("/{id}/increment", api.Increment)
			r.Post("/{id}/decrement", api.Decrement)
		})
	})
	r.Get("/healthz", api.HealthCheck)
	r.Get("/readyz", api.ReadyCheck)
}
