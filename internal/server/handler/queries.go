package handler

import (
	"log/slog"
	"net/http"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/engine"
)

// QueryHandler exposes the read-only surface: per-market details, per-user
// bet/balance views, and platform-wide aggregates. None of these require
// authentication — they mirror a contract's public view functions.
type QueryHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewQueryHandler creates a QueryHandler over eng.
func NewQueryHandler(eng *engine.Engine, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{engine: eng, logger: logHandler(logger, "query")}
}

// EventDetails runs query_event_details.
// GET /api/markets/{id}
func (h *QueryHandler) EventDetails(w http.ResponseWriter, r *http.Request) {
	marketID := domain.MarketID(pathParam(r, "id"))

	details, err := h.engine.QueryEventDetails(r.Context(), marketID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// EventStatus runs query_event_status.
// GET /api/markets/{id}/status
func (h *QueryHandler) EventStatus(w http.ResponseWriter, r *http.Request) {
	marketID := domain.MarketID(pathParam(r, "id"))

	state, endTime, err := h.engine.QueryEventStatus(r.Context(), marketID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state, "end_time": endTime})
}

// ListMarkets runs get_all_markets, paginated at the transport edge.
// GET /api/markets
func (h *QueryHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	ids, err := h.engine.GetAllMarkets(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	page := paginate(ids, parseListOpts(r))
	writeJSON(w, http.StatusOK, map[string]any{"market_ids": page, "total": len(ids)})
}

// UserBet runs query_user_bet.
// GET /api/users/{identity}/bets/{marketId}
func (h *QueryHandler) UserBet(w http.ResponseWriter, r *http.Request) {
	user := domain.Identity(pathParam(r, "identity"))
	marketID := domain.MarketID(pathParam(r, "marketId"))

	bet, err := h.engine.QueryUserBet(r.Context(), user, marketID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

// UserBets runs query_user_bets.
// GET /api/users/{identity}/bets
func (h *QueryHandler) UserBets(w http.ResponseWriter, r *http.Request) {
	user := domain.Identity(pathParam(r, "identity"))

	bets, err := h.engine.QueryUserBets(r.Context(), user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bets)
}

// UserBalance runs query_user_balance.
// GET /api/users/{identity}/balance
func (h *QueryHandler) UserBalance(w http.ResponseWriter, r *http.Request) {
	user := domain.Identity(pathParam(r, "identity"))

	balance, err := h.engine.QueryUserBalance(r.Context(), user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// MarketPool runs query_market_pool.
// GET /api/markets/{id}/pool
func (h *QueryHandler) MarketPool(w http.ResponseWriter, r *http.Request) {
	marketID := domain.MarketID(pathParam(r, "id"))

	pool, err := h.engine.QueryMarketPool(r.Context(), marketID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// TotalPoolSize runs query_total_pool_size.
// GET /api/pool/total
func (h *QueryHandler) TotalPoolSize(w http.ResponseWriter, r *http.Request) {
	total, err := h.engine.QueryTotalPoolSize(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"total": total.String()})
}

// ContractState runs query_contract_state.
// GET /api/state
func (h *QueryHandler) ContractState(w http.ResponseWriter, r *http.Request) {
	state, err := h.engine.QueryContractState(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// MarketAnalytics runs get_market_analytics.
// GET /api/markets/{id}/analytics
func (h *QueryHandler) MarketAnalytics(w http.ResponseWriter, r *http.Request) {
	marketID := domain.MarketID(pathParam(r, "id"))

	analytics, err := h.engine.GetMarketAnalytics(r.Context(), marketID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}
