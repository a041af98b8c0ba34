package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// OwnerHeader carries the authenticated user id. It is set by the gateway
// in front of this service.
const OwnerHeader = "X-User-Id"

type ctxKey int

const ownerKey ctxKey = iota

var defaultOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, health *HealthChecker, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", OwnerHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(ownerFromHeader)

		r.Route("/leads/import", func(r chi.Router) {
			r.Post("/", h.HandleImport)
			r.Post("/preview", h.HandlePreview)
			r.Get("/fields", h.HandleFields)
		})

		r.Route("/lead-lists/{listId}", func(r chi.Router) {
			r.Get("/", h.HandleGetList)
			r.Get("/progress", h.HandleGetProgress)
		})

		if h.leadSync != nil {
			// Facebook calls the webhook directly; it is authenticated by
			// signature, not by the gateway.
			r.Get("/webhooks/facebook", h.HandleWebhookVerify)
			r.Post("/webhooks/facebook", h.HandleWebhook)

			r.Post("/integrations/facebook", h.HandleConnectFacebook)
			r.Post("/integrations/facebook/{integrationId}/sync", h.HandleSyncFacebook)
		}
	})

	return r
}

func ownerFromHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
		if owner != "" {
			r = r.WithContext(context.WithValue(r.Context(), ownerKey, owner))
		}
		next.ServeHTTP(w, r)
	})
}

// ownerID returns the user the request acts for, or "" when the gateway did
// not identify one.
func ownerID(ctx context.Context) string {
	id, _ := ctx.Value(ownerKey).(string)
	return id
}
