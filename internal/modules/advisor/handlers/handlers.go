// Package handlers provides HTTP handlers for wallet analysis operations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/warden/internal/domain"
	"github.com/aristath/warden/internal/modules/advisor"
	"github.com/aristath/warden/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps rebalance request bodies
const maxBodyBytes = 64 << 10

// Advisor is the subset of advisor.Service used by the handlers
type Advisor interface {
	Analyze(ctx context.Context, wallet string) (*advisor.Analysis, error)
	GetRiskMetrics(ctx context.Context, wallet string) (domain.RiskMetrics, error)
	GetRebalancePlan(ctx context.Context, wallet string, req advisor.PlanRequest) (*domain.RebalancePlan, error)
	GetMarketInsights(ctx context.Context, sourceFilter ...string) domain.MarketSignalSet
}

// Handler handles wallet analysis HTTP requests
type Handler struct {
	service Advisor
	log     zerolog.Logger
}

// NewHandler creates a new advisor handler
func NewHandler(service Advisor, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "advisor").Logger(),
	}
}

// TargetEntry is one entry of a custom target in a rebalance request.
// Asset is a mint address, "SOL" for the native asset or "other".
type TargetEntry struct {
	Asset      string  `json:"asset"`
	Symbol     string  `json:"symbol,omitempty"`
	Percentage float64 `json:"percentage"`
}

// RebalanceRequest is the body of POST /api/wallets/{wallet}/rebalance
type RebalanceRequest struct {
	Strategy        string        `json:"strategy"`
	Target          []TargetEntry `json:"target"`
	BiasWithSignals bool          `json:"bias_with_signals"`
}

// HandleGetAnalysis handles GET /api/wallets/{wallet}/analysis
func (h *Handler) HandleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")

	analysis, err := h.service.Analyze(r.Context(), wallet)
	if err != nil {
		h.writeError(w, err, "Failed to analyze wallet")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": analysis,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"partial":   analysis.Insights.Partial,
		},
	})
}

// HandleGetRisk handles GET /api/wallets/{wallet}/risk
func (h *Handler) HandleGetRisk(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")

	metrics, err := h.service.GetRiskMetrics(r.Context(), wallet)
	if err != nil {
		h.writeError(w, err, "Failed to compute risk metrics")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": metrics,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetRebalance handles GET /api/wallets/{wallet}/rebalance?strategy=&bias=
func (h *Handler) HandleGetRebalance(w http.ResponseWriter, r *http.Request) {
	req := advisor.PlanRequest{Strategy: r.URL.Query().Get("strategy")}

	if raw := r.URL.Query().Get("bias"); raw != "" {
		bias, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "bias must be a boolean", http.StatusBadRequest)
			return
		}
		req.BiasWithSignals = bias
	}

	h.rebalance(w, r, req)
}

// HandlePostRebalance handles POST /api/wallets/{wallet}/rebalance
func (h *Handler) HandlePostRebalance(w http.ResponseWriter, r *http.Request) {
	var body RebalanceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		h.log.Debug().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req := advisor.PlanRequest{
		Strategy:        body.Strategy,
		BiasWithSignals: body.BiasWithSignals,
	}
	if body.Target != nil {
		req.CustomTarget = toAllocation(body.Target)
	}

	h.rebalance(w, r, req)
}

func (h *Handler) rebalance(w http.ResponseWriter, r *http.Request, req advisor.PlanRequest) {
	wallet := chi.URLParam(r, "wallet")

	plan, err := h.service.GetRebalancePlan(r.Context(), wallet, req)
	if err != nil {
		h.writeError(w, err, "Failed to compute rebalance plan")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": plan,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"trades":    len(plan.Trades),
		},
	})
}

// HandleGetMarketInsights handles GET /api/market/insights?source=a&source=b
// (a comma list in a single parameter works too)
func (h *Handler) HandleGetMarketInsights(w http.ResponseWriter, r *http.Request) {
	var filter []string
	for _, v := range r.URL.Query()["source"] {
		filter = append(filter, utils.ParseCSV(v)...)
	}

	set := h.service.GetMarketInsights(r.Context(), filter...)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": set,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"partial":   set.Partial(),
		},
	})
}

func toAllocation(entries []TargetEntry) domain.Allocation {
	out := make(domain.Allocation, 0, len(entries))
	for _, e := range entries {
		id := strings.TrimSpace(e.Asset)
		var asset domain.Asset
		switch {
		case strings.EqualFold(id, domain.OtherAssetID):
			asset = domain.OtherAsset()
		case strings.EqualFold(id, "SOL"), strings.EqualFold(id, "native"):
			asset = domain.NativeAsset()
		default:
			asset = domain.TokenAsset(id, e.Symbol)
		}
		out = append(out, domain.AllocationEntry{Asset: asset, Percentage: e.Percentage})
	}
	return out
}

// writeError maps caller errors to 400 and everything else to 500
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	if domain.IsCallerError(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if errors.Is(err, domain.ErrSourceUnavailable) {
		h.log.Warn().Err(err).Msg(msg)
	} else {
		h.log.Error().Err(err).Msg(msg)
	}
	http.Error(w, msg, http.StatusInternalServerError)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
