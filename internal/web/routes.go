package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-registry/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	galleryHandler := handlers.NewGalleryHandler(s.images, s.config.Web.ImagesPerPage, s.config.Web.MinImagesPerPage, s.log)
	identitiesHandler := handlers.NewIdentitiesHandler(s.store, s.log)
	configHandler := handlers.NewConfigHandler(s.config)

	// Gallery
	s.router.Get("/", galleryHandler.Index)
	s.router.Get("/images/{name}", galleryHandler.Image)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Get("/identities", identitiesHandler.List)
		r.Get("/config", configHandler.Get)
	})
}
