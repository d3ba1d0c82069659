package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all wallet and market routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/wallets/{wallet}", func(r chi.Router) {
		r.Get("/analysis", h.HandleGetAnalysis)
		r.Get("/risk", h.HandleGetRisk)
		r.Get("/rebalance", h.HandleGetRebalance)
		r.Post("/rebalance", h.HandlePostRebalance)
	})

	r.Route("/market", func(r chi.Router) {
		r.Get("/insights", h.HandleGetMarketInsights)
	})
}
