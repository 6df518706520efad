// Package routers wires the HTTP routes.
package routers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ttaflutter/game-plus/internal/api"
)

// Deps are the handlers the router composes.
type Deps struct {
	Auth      *api.AuthHandler
	Lobby     *api.LobbyHandler
	Match     *api.MatchHandler
	JWTSecret string
}

func New(d Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// The WebSocket gateway does its own auth after the upgrade, so it
	// sits outside the auth middleware and the request timeout.
	r.Get("/ws/match/{matchID}", d.Match.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Post("/auth/register", d.Auth.Register)
		r.Post("/auth/login", d.Auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(api.RequireAuth(d.JWTSecret))

			r.Get("/auth/me", d.Auth.Me)

			r.Route("/rooms", func(r chi.Router) {
				r.Get("/", d.Lobby.List)
				r.Post("/", d.Lobby.Create)
				r.Post("/join", d.Lobby.Join)
				r.Get("/{roomID}", d.Lobby.Detail)
				r.Put("/{roomID}/ready", d.Lobby.Ready)
				r.Post("/{roomID}/leave", d.Lobby.Leave)
				r.Delete("/{roomID}/players/{userID}", d.Lobby.Kick)
				r.Post("/{roomID}/start", d.Lobby.Start)
				r.Delete("/{roomID}", d.Lobby.Delete)
			})

			r.Route("/matches", func(r chi.Router) {
				r.Post("/", d.Match.Create)
				r.Get("/{matchID}", d.Match.Get)
			})
		})
	})

	return r
}
