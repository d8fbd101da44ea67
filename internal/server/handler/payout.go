package handler

import (
	"log/slog"
	"net/http"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/engine"
)

// PayoutHandler exposes claim_winnings and the admin-gated collect_fees.
type PayoutHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewPayoutHandler creates a PayoutHandler over eng.
func NewPayoutHandler(eng *engine.Engine, logger *slog.Logger) *PayoutHandler {
	return &PayoutHandler{engine: eng, logger: logHandler(logger, "payout")}
}

type claimWinningsRequest struct {
	Caller domain.Identity `json:"caller"`
	Auth   authEnvelope    `json:"auth"`
}

// ClaimWinnings runs claim_winnings.
// POST /api/markets/{id}/claim
func (h *PayoutHandler) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	marketID := domain.MarketID(pathParam(r, "id"))

	var req claimWinningsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	paid, err := h.engine.ClaimWinnings(r.Context(), req.Caller, req.Auth.toHost(), marketID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"paid": paid.String()})
}

type collectFeesRequest struct {
	Caller domain.Identity `json:"caller"`
	Auth   authEnvelope    `json:"auth"`
}

// CollectFees runs collect_fees, admin-gated.
// POST /api/markets/{id}/fees/collect
func (h *PayoutHandler) CollectFees(w http.ResponseWriter, r *http.Request) {
	marketID := domain.MarketID(pathParam(r, "id"))

	var req collectFeesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	collected, err := h.engine.CollectFees(r.Context(), req.Caller, req.Auth.toHost(), marketID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"collected": collected.String()})
}
