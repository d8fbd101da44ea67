package handler

import (
	"log/slog"
	"net/http"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/engine"
	"github.com/predictify/marketengine/internal/ledger"
)

// BettingHandler exposes place_bet, its batched form, and cancel_bet.
// place_bet's legacy "vote" alias is not given its own route: it is the
// same entrypoint under a different name, and a second HTTP path would just
// duplicate PlaceBet's handler for no client-visible benefit.
type BettingHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewBettingHandler creates a BettingHandler over eng.
func NewBettingHandler(eng *engine.Engine, logger *slog.Logger) *BettingHandler {
	return &BettingHandler{engine: eng, logger: logHandler(logger, "betting")}
}

type placeBetRequest struct {
	Caller   domain.Identity `json:"caller"`
	Auth     authEnvelope    `json:"auth"`
	Market   domain.MarketID `json:"market_id"`
	Outcome  domain.Outcome  `json:"outcome"`
	Amount   domain.Amount   `json:"amount"`
}

// PlaceBet runs place_bet.
// POST /api/bets
func (h *BettingHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bet, err := h.engine.PlaceBet(r.Context(), req.Caller, req.Auth.toHost(), req.Market, req.Outcome, req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

type placeBetsRequest struct {
	Caller domain.Identity      `json:"caller"`
	Auth   authEnvelope         `json:"auth"`
	Legs   []ledger.BetRequest  `json:"legs"`
}

// PlaceBets runs the batched place_bets form.
// POST /api/bets/batch
func (h *BettingHandler) PlaceBets(w http.ResponseWriter, r *http.Request) {
	var req placeBetsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bets, err := h.engine.PlaceBets(r.Context(), req.Caller, req.Auth.toHost(), req.Legs)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bets)
}

type cancelBetRequest struct {
	Caller domain.Identity `json:"caller"`
	Auth   authEnvelope    `json:"auth"`
}

// CancelBet runs cancel_bet.
// DELETE /api/markets/{id}/bets
func (h *BettingHandler) CancelBet(w http.ResponseWriter, r *http.Request) {
	marketID := domain.MarketID(pathParam(r, "id"))

	var req cancelBetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	refunded, err := h.engine.CancelBet(r.Context(), req.Caller, req.Auth.toHost(), marketID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"refunded": refunded.String()})
}
