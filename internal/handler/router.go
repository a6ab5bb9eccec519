package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/curiolabs/curio/internal/handler/relay"
	tokenhandler "github.com/curiolabs/curio/internal/handler/token"
	middlewarePkg "github.com/curiolabs/curio/internal/middleware"
	tokenservice "github.com/curiolabs/curio/internal/service/token"
)

// NewRouter wires the credential proxy's HTTP surface.
func NewRouter(tokens *tokenservice.Store, upstreamBase, apiKey, adminKey string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	tokenHandler := tokenhandler.New(tokens, adminKey)
	relayHandler := relay.New(tokens, upstreamBase, apiKey)

	r.Route("/api", func(api chi.Router) {
		tokenHandler.RegisterRoutes(api)
		relayHandler.RegisterRoutes(api)
	})

	return r
}
