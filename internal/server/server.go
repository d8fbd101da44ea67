// Package server builds the HTTP + WebSocket transport surface over
// internal/engine.Engine: one route per §6 entrypoint, composed with the
// same auth/logging/CORS/rate-limit middleware chain the teacher platform
// uses for its own REST API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/predictify/marketengine/internal/config"
	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/engine"
	"github.com/predictify/marketengine/internal/server/handler"
	"github.com/predictify/marketengine/internal/server/middleware"
	"github.com/predictify/marketengine/internal/server/ws"
)

// requestsPerMinute bounds how many requests a single client IP may issue
// to the API before middleware.RateLimit starts rejecting with 429.
const requestsPerMinute = 120

// New builds the fully-routed, middleware-wrapped HTTP handler for the
// market engine's API surface and starts the WebSocket hub's broadcast
// loop in the background, bound to ctx. Lifecycle (listen/shutdown) is the
// caller's responsibility — internal/app.App owns the *http.Server built
// around this handler, mirroring how the teacher's own NewServer composes
// a mux and middleware chain but leaves starting and stopping the listener
// to a method the embedding application calls explicitly.
func New(ctx context.Context, cfg *config.Config, eng *engine.Engine, bus domain.SignalBus, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	health := handler.NewHealthHandler(logger)
	markets := handler.NewMarketHandler(eng, logger)
	betting := handler.NewBettingHandler(eng, logger)
	resolution := handler.NewResolutionHandler(eng, logger)
	payouts := handler.NewPayoutHandler(eng, logger)
	admin := handler.NewAdminHandler(eng, logger)
	queries := handler.NewQueryHandler(eng, logger)

	mux.HandleFunc("GET /api/health", health.HealthCheck)

	// Market lifecycle.
	mux.HandleFunc("POST /api/markets", markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", queries.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", queries.EventDetails)
	mux.HandleFunc("GET /api/markets/{id}/status", queries.EventStatus)
	mux.HandleFunc("GET /api/markets/{id}/pool", queries.MarketPool)
	mux.HandleFunc("GET /api/markets/{id}/analytics", queries.MarketAnalytics)
	mux.HandleFunc("GET /api/markets/{id}/oracle-result", markets.FetchOracleResult)
	mux.HandleFunc("POST /api/markets/{id}/extend", markets.ExtendMarket)
	mux.HandleFunc("POST /api/markets/{id}/cancel", markets.CancelMarket)
	mux.HandleFunc("POST /api/markets/{id}/resolve", markets.ResolveMarket)

	// Disputes.
	mux.HandleFunc("POST /api/markets/{id}/dispute", resolution.DisputeMarket)
	mux.HandleFunc("POST /api/markets/{id}/dispute/resolve", resolution.ResolveDispute)
	mux.HandleFunc("POST /api/markets/{id}/dispute/{disputeId}/vote", resolution.VoteOnDispute)

	// Betting.
	mux.HandleFunc("POST /api/bets", betting.PlaceBet)
	mux.HandleFunc("POST /api/bets/batch", betting.PlaceBets)
	mux.HandleFunc("DELETE /api/markets/{id}/bets", betting.CancelBet)

	// Payout.
	mux.HandleFunc("POST /api/markets/{id}/claim", payouts.ClaimWinnings)
	mux.HandleFunc("POST /api/markets/{id}/fees/collect", payouts.CollectFees)

	// Per-user and platform-wide queries.
	mux.HandleFunc("GET /api/users/{identity}/bets", queries.UserBets)
	mux.HandleFunc("GET /api/users/{identity}/bets/{marketId}", queries.UserBet)
	mux.HandleFunc("GET /api/users/{identity}/balance", queries.UserBalance)
	mux.HandleFunc("GET /api/pool/total", queries.TotalPoolSize)
	mux.HandleFunc("GET /api/state", queries.ContractState)

	// Admin / multisig.
	mux.HandleFunc("POST /api/admin/initialize", admin.Initialize)
	mux.HandleFunc("POST /api/admin/admins/{identity}", admin.AddAdmin)
	mux.HandleFunc("DELETE /api/admin/admins/{identity}", admin.RemoveAdmin)
	mux.HandleFunc("PUT /api/admin/admins/{identity}/role", admin.UpdateRole)
	mux.HandleFunc("POST /api/admin/admins/{identity}/deactivate", admin.DeactivateAdmin)
	mux.HandleFunc("POST /api/admin/admins/{identity}/reactivate", admin.ReactivateAdmin)
	mux.HandleFunc("PUT /api/admin/threshold", admin.SetAdminThreshold)
	mux.HandleFunc("GET /api/admin/multisig", admin.GetMultisigConfig)
	mux.HandleFunc("GET /api/admin/multisig/required", admin.RequiresMultisig)
	mux.HandleFunc("POST /api/admin/actions", admin.CreatePendingAdminAction)
	mux.HandleFunc("GET /api/admin/actions/{id}", admin.GetPendingAdminAction)
	mux.HandleFunc("POST /api/admin/actions/{id}/approve", admin.ApproveAdminAction)
	mux.HandleFunc("POST /api/admin/actions/{id}/execute", admin.ExecuteAdminAction)
	mux.HandleFunc("POST /api/admin/pause", admin.EmergencyPause)
	mux.HandleFunc("POST /api/admin/resume", admin.EmergencyResume)

	// WebSocket event stream.
	wsHub := ws.NewHub(bus, logger, ws.Config{Mode: cfg.Mode, StartedAt: time.Now().UTC()})
	go wsHub.Run(ctx)
	mux.HandleFunc("GET /ws", wsHub.HandleWS)

	var h http.Handler = mux
	h = middleware.RateLimit(limiter, requestsPerMinute, time.Minute)(h)
	h = middleware.Auth(cfg.Server.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.Server.CORSOrigins)(h)

	return h
}
