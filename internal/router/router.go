package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whataybo/api/internal/config"
	"github.com/whataybo/api/internal/database"
	"github.com/whataybo/api/internal/enum"
	"github.com/whataybo/api/internal/handler"
	mw "github.com/whataybo/api/internal/middleware"
	"github.com/whataybo/api/internal/realtime"
	"github.com/whataybo/api/internal/service"
	"github.com/whataybo/api/internal/whatsapp"
	"github.com/whataybo/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// events receives every realtime event; notifier delivers WhatsApp messages
// in the background through dispatch.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, events realtime.Publisher, notifier whatsapp.Notifier, dispatch *whatsapp.Dispatcher) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, queries, cfg.JWTSecret, w, r)
	})

	opts := service.Options{
		Location:           cfg.Timezone,
		DefaultDeliveryFee: cfg.DefaultDeliveryFee,
		NotifyTimeout:      cfg.NotifyTimeout,
		Dispatcher:         dispatch,
	}
	newOrderStore := func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}
	orderService := service.NewOrderService(pool, newOrderStore, events, notifier, opts)
	statusService := service.NewStatusService(queries, events, notifier, opts)
	manage := mw.RequireRole(enum.UserRoleOwner, enum.UserRoleManager)

	r.Route("/api", func(r chi.Router) {
		// Storefront (public)
		limiter := mw.NewRateLimiter(cfg.PublicRateRPS, cfg.PublicRateBurst)
		publicHandler := handler.NewPublicHandler(queries, orderService, cfg.WhatsApp.APIEnabled)
		r.Route("/public", func(r chi.Router) {
			publicHandler.RegisterRoutes(r, limiter.Limit)
		})

		// Auth routes (public)
		authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
		authHandler.RegisterRoutes(r)

		// Protected routes (require authentication)
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(cfg.JWTSecret))

			orderHandler := handler.NewOrderHandler(statusService, queries, cfg.Timezone)
			r.Route("/orders", orderHandler.RegisterRoutes)

			conversationHandler := handler.NewConversationHandler(queries, events, notifier, dispatch)
			noteHandler := handler.NewNoteHandler(queries, events)
			r.Route("/conversations", func(r chi.Router) {
				conversationHandler.RegisterRoutes(r)
				r.Route("/{id}/notes", noteHandler.RegisterRoutes)
			})

			categoryHandler := handler.NewCategoryHandler(queries)
			r.Route("/categories", categoryHandler.RegisterRoutes)

			menuHandler := handler.NewMenuHandler(queries)
			r.Route("/menu/items", menuHandler.RegisterRoutes)

			restaurantHandler := handler.NewRestaurantHandler(queries, events)
			r.Route("/restaurant", func(r chi.Router) {
				restaurantHandler.RegisterRoutes(r, manage)
			})

			// Owner/manager routes
			r.Group(func(r chi.Router) {
				r.Use(manage)
				userHandler := handler.NewUserHandler(queries)
				r.Route("/users", userHandler.RegisterRoutes)
			})
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
