package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		// Users
		r.Route("/users", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/", s.HandleCreateUser)
			r.Get("/me", s.HandleGetCurrentUser)
		})

		// Tenants (admin only)
		r.Route("/tenants", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListTenants)
			r.Post("/", s.HandleCreateTenant)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetTenant)
				r.Put("/", s.HandleUpdateTenant)
				r.Delete("/", s.HandleDeleteTenant)
			})
		})

		// Device links
		r.Route("/device-links", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListDeviceLinks)
			r.Post("/", s.HandleCreateDeviceLink)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetDeviceLink)
				r.Put("/", s.HandleUpdateDeviceLink)
				r.Delete("/", s.HandleDeleteDeviceLink)
				r.Get("/position", s.HandleGetDeviceLinkPosition)
			})
		})

		// Geofences
		r.Route("/geofences", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListGeofences)
			r.Post("/", s.HandleCreateGeofence)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetGeofence)
				r.Put("/", s.HandleUpdateGeofence)
				r.Delete("/", s.HandleDeleteGeofence)
				r.Put("/buffer", s.HandleSetGeofenceBuffer)
			})
		})

		// Alerts
		r.Route("/alerts", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListAlerts)
		})

		// Fix submission
		r.Route("/fixes", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/", s.HandleSubmitFix)
		})
	})
}
