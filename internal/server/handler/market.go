package handler

import (
	"log/slog"
	"net/http"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/engine"
)

// MarketHandler exposes the market lifecycle entrypoints: create, extend,
// cancel, and the read-only detail/status/pool/analytics/oracle-result
// queries scoped to a single market.
type MarketHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler over eng.
func NewMarketHandler(eng *engine.Engine, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{engine: eng, logger: logHandler(logger, "market")}
}

type createMarketRequest struct {
	Caller                   domain.Identity      `json:"caller"`
	Auth                     authEnvelope         `json:"auth"`
	Question                 string               `json:"question"`
	Outcomes                 []domain.Outcome     `json:"outcomes"`
	DurationDays             int                  `json:"duration_days"`
	OracleConfig             domain.OracleConfig  `json:"oracle_config"`
	FallbackOracleConfig     *domain.OracleConfig `json:"fallback_oracle_config,omitempty"`
	ResolutionTimeoutSeconds int64                `json:"resolution_timeout_seconds"`
}

// CreateMarket runs create_market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.engine.CreateMarket(r.Context(), req.Caller, req.Auth.toHost(),
		req.Question, req.Outcomes, req.DurationDays, req.OracleConfig,
		req.FallbackOracleConfig, req.ResolutionTimeoutSeconds)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"market_id": string(id)})
}

type extendMarketRequest struct {
	Caller         domain.Identity `json:"caller"`
	Auth           authEnvelope    `json:"auth"`
	AdditionalDays int             `json:"additional_days"`
	Reason         string          `json:"reason"`
	FeeAmount      domain.Amount   `json:"fee_amount"`
}

// ExtendMarket runs extend_market.
// POST /api/markets/{id}/extend
func (h *MarketHandler) ExtendMarket(w http.ResponseWriter, r *http.Request) {
	marketID := domain.MarketID(pathParam(r, "id"))

	var req extendMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FeeAmount == nil {
		req.FeeAmount = domain.ZeroAmount()
	}

	if err := h.engine.ExtendMarket(r.Context(), req.Caller, req.Auth.toHost(),
		marketID, req.AdditionalDays, req.Reason, req.FeeAmount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type cancelMarketRequest struct {
	Caller domain.Identity `json:"caller"`
	Auth   authEnvelope    `json:"auth"`
	Reason string          `json:"reason"`
}

// CancelMarket runs cancel_market. When multisig is enabled the response is
// a pending action awaiting approval rather than an immediate cancellation.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) CancelMarket(w http.ResponseWriter, r *http.Request) {
	marketID := domain.MarketID(pathParam(r, "id"))

	var req cancelMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action, err := h.engine.CancelMarket(r.Context(), req.Caller, req.Auth.toHost(), marketID, req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if action != nil {
		writeJSON(w, http.StatusAccepted, action)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ResolveMarket runs resolve_market, a public trigger requiring no
// authentication: anyone may nudge a market past its end time toward
// resolution; without an oracle reading it falls back to the community tally.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	marketID := domain.MarketID(pathParam(r, "id"))

	m, err := h.engine.ResolveMarket(r.Context(), marketID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// FetchOracleResult runs fetch_oracle_result, a read-only preview of what
// resolution would observe.
// GET /api/markets/{id}/oracle-result
func (h *MarketHandler) FetchOracleResult(w http.ResponseWriter, r *http.Request) {
	marketID := domain.MarketID(pathParam(r, "id"))

	outcome, err := h.engine.FetchOracleResult(r.Context(), marketID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}
