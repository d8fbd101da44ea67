package handler

import (
	"log/slog"
	"net/http"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/engine"
)

// ResolutionHandler exposes the dispute lifecycle: opening a dispute,
// voting on it, and the admin-gated final resolution.
type ResolutionHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler over eng.
func NewResolutionHandler(eng *engine.Engine, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{engine: eng, logger: logHandler(logger, "resolution")}
}

type disputeMarketRequest struct {
	Caller  domain.Identity `json:"caller"`
	Auth    authEnvelope    `json:"auth"`
	Outcome domain.Outcome  `json:"outcome"`
	Stake   domain.Amount   `json:"stake"`
	Reason  string          `json:"reason"`
}

// DisputeMarket runs dispute_market.
// POST /api/markets/{id}/dispute
func (h *ResolutionHandler) DisputeMarket(w http.ResponseWriter, r *http.Request) {
	marketID := domain.MarketID(pathParam(r, "id"))

	var req disputeMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.engine.DisputeMarket(r.Context(), req.Caller, req.Auth.toHost(), marketID, req.Outcome, req.Stake, req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type voteOnDisputeRequest struct {
	Caller  domain.Identity `json:"caller"`
	Auth    authEnvelope    `json:"auth"`
	Outcome domain.Outcome  `json:"outcome"`
	Stake   domain.Amount   `json:"stake"`
	Reason  string          `json:"reason"`
}

// VoteOnDispute runs vote_on_dispute.
// POST /api/markets/{id}/dispute/{disputeId}/vote
func (h *ResolutionHandler) VoteOnDispute(w http.ResponseWriter, r *http.Request) {
	marketID := domain.MarketID(pathParam(r, "id"))
	disputeID := domain.DisputeID(pathParam(r, "disputeId"))

	var req voteOnDisputeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.engine.VoteOnDispute(r.Context(), req.Caller, req.Auth.toHost(), marketID, disputeID, req.Outcome, req.Stake, req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type resolveDisputeRequest struct {
	Caller domain.Identity `json:"caller"`
	Auth   authEnvelope    `json:"auth"`
}

// ResolveDispute runs resolve_dispute, an admin-gated final call on a
// disputed market's outcome.
// POST /api/markets/{id}/dispute/resolve
func (h *ResolutionHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	marketID := domain.MarketID(pathParam(r, "id"))

	var req resolveDisputeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.engine.ResolveDispute(r.Context(), req.Caller, req.Auth.toHost(), marketID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
