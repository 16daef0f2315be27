package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	Carts          *CartHandler
	Products       *ProductHandler
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", cfg.Products.List)
			r.Get("/{product_id}", cfg.Products.Get)
		})

		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware)
			r.Use(MockAuthMiddleware)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cfg.Carts.GetCart)
				r.Delete("/", cfg.Carts.ClearCart)
				r.Post("/items", cfg.Carts.AddItem)
				r.Patch("/items/{item_id}", cfg.Carts.UpdateQuantity)
				r.Delete("/items/{item_id}", cfg.Carts.RemoveItem)
			})
			r.Route("/session", func(r chi.Router) {
				r.Post("/signin", cfg.Carts.SignIn)
				r.Post("/signout", cfg.Carts.SignOut)
			})
		})
	})

	return otelhttp.NewHandler(r, "storefront-cart",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
