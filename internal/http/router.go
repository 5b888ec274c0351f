package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/timebank/internal/http/analytics"
	"github.com/MrJamesThe3rd/timebank/internal/http/auth"
	"github.com/MrJamesThe3rd/timebank/internal/http/exchange"
	"github.com/MrJamesThe3rd/timebank/internal/http/timebank"
)

type Options struct {
	Auth           *auth.Authenticator
	AllowedOrigins []string
	Timeout        time.Duration
}

func New(
	opts Options,
	exchangeV1 *exchange.Handler,
	timebankV1 *timebank.Handler,
	analyticsV1 *analytics.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	if opts.Timeout > 0 {
		router.Use(middleware.Timeout(opts.Timeout))
	}

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(opts.Auth.Middleware)

		r.Route("/services", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			exchangeV1.ServiceRoutes(r)
		})

		r.Route("/join-requests", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			exchangeV1.JoinRequestRoutes(r)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			exchangeV1.TransactionRoutes(r)
		})

		r.Route("/timebank", timebankV1.Routes)
		r.Route("/analytics", analyticsV1.Routes)
	})

	return router
}
