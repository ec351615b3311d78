package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/shinobiwanshin/Sweetify/app"
	"github.com/shinobiwanshin/Sweetify/handlers"
	"github.com/shinobiwanshin/Sweetify/models"
	"github.com/shinobiwanshin/Sweetify/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "svix-id", "svix-timestamp", "svix-signature"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	health := handlers.NewHealthHandler(deps.SQLDB(), deps.Config.Store.Driver, deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Every API request passes the gate; protected groups enforce below.
		r.Use(deps.AuthMiddleware.Authenticate)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handlers.RegisterHandler(deps))
			r.Post("/login", handlers.LoginHandler(deps))
			r.Post("/clerk/webhook", handlers.ClerkWebhookHandler(deps))
		})

		r.Route("/sweets", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireAuth)
				r.Get("/", handlers.ListSweetsHandler(deps))
				r.Get("/search", handlers.SearchSweetsHandler(deps))
				r.Get("/{id}", handlers.GetSweetHandler(deps))
				r.Post("/{id}/purchase", handlers.PurchaseSweetHandler(deps))
			})

			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireRole(models.RoleAdmin))
				r.Post("/", handlers.CreateSweetHandler(deps))
				r.Put("/{id}", handlers.UpdateSweetHandler(deps))
				r.Delete("/{id}", handlers.DeleteSweetHandler(deps))
				r.Post("/{id}/restock", handlers.RestockSweetHandler(deps))
			})
		})

		r.Route("/purchases", func(r chi.Router) {
			r.With(deps.AuthMiddleware.RequireAuth).Get("/my", handlers.MyPurchasesHandler(deps))
			r.With(deps.AuthMiddleware.RequireRole(models.RoleAdmin)).Get("/all", handlers.AllPurchasesHandler(deps))
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/me", handlers.GetCurrentUserHandler(deps))
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
