// Package api exposes the ledger engine over HTTP for the chat bot and for
// health and metrics scraping.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Veraticus/clanbank/internal/ledger"
)

// Config configures the HTTP API.
type Config struct {
	Gatherer       prometheus.Gatherer
	JWTSecret      string
	JWTIssuer      string
	RequestTimeout time.Duration
}

// Server holds the handlers' dependencies.
type Server struct {
	engine     *ledger.Engine
	selections *ledger.SelectionRegistry
}

// NewRouter builds the HTTP handler.
func NewRouter(engine *ledger.Engine, selections *ledger.SelectionRegistry, cfg Config) http.Handler {
	if selections == nil {
		selections = ledger.NewSelectionRegistry(0, nil)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	s := &Server{engine: engine, selections: selections}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		requestLogger,
		middleware.Timeout(cfg.RequestTimeout),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Auth(cfg.JWTSecret, cfg.JWTIssuer))

		r.Get("/catalog", s.searchCatalog)
		r.Get("/inventory", s.inventory)
		r.Get("/leaderboard", s.leaderboard)
		r.Get("/items/{item}/balance", s.itemBalance)

		r.Route("/members/{userID}", func(r chi.Router) {
			r.Get("/holdings", s.memberHoldings)
			r.Get("/reputation", s.memberReputation)
			r.Get("/history", s.memberHistory)
		})

		r.Post("/deposits", s.deposit)
		r.Post("/withdrawals", s.withdraw)
		r.Post("/selections", s.createSelection)
		r.Post("/transfers", s.transfer)
	})

	return r
}
