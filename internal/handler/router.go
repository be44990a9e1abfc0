package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/pastry-storefront/internal/metrics"
	custommiddleware "github.com/mmeshcher/pastry-storefront/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервера витрины.
// metricsHandler может быть nil, тогда /metrics не публикуется.
func (h *Handler) SetupRouter(rec metrics.Recorder, metricsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Recoverer(h.logger))
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger, rec))

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.Products)

		r.Group(func(r chi.Router) {
			if h.throttle != nil {
				r.Use(h.throttle.Middleware)
			}
			r.Post("/users/register", h.Register)
			r.Post("/users/login", h.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/users/me", h.Me)
			r.Put("/users/me", h.UpdateMe)
			r.Delete("/users/me", h.DeleteMe)

			r.Get("/cart", h.GetCart)
			r.Post("/cart", h.AddToCart)
			r.Delete("/cart/{productID}", h.RemoveFromCart)

			r.Post("/orders", h.PlaceOrder)
			r.Get("/orders", h.GetOrders)
			r.Patch("/orders/{id}/status", h.UpdateOrderStatus)
			r.Put("/orders/{id}/review", h.SubmitReview)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
