// Package resolution implements the §4.G market state machine: the
// Active->Ended->PendingResolution->Resolved->Finalized progression and the
// hybrid oracle/community outcome selection that decides a market's winner.
package resolution

import (
	"context"
	"fmt"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
	"github.com/predictify/marketengine/internal/market"
	"github.com/predictify/marketengine/internal/oracle"
)

// Engine drives resolution for a single market at a time. It holds no
// per-market state itself; every decision is derived from the stored Market
// record and the current time.
type Engine struct {
	markets *market.Registry
	oracles *oracle.Adapter
	clock   host.Clock
	cfg     domain.EngineConfig
}

// New creates a resolution Engine.
func New(markets *market.Registry, oracles *oracle.Adapter, clock host.Clock, cfg domain.EngineConfig) *Engine {
	return &Engine{markets: markets, oracles: oracles, clock: clock, cfg: cfg}
}

// AdvanceState infers and persists the Active->Ended and Ended->
// PendingResolution transitions for m, given now. It never advances past
// PendingResolution; reaching Resolved requires an outcome, which only
// Resolve produces.
func AdvanceState(m *domain.Market, now int64) {
	switch m.State {
	case domain.StateActive:
		if now >= m.EndTime {
			m.State = domain.StateEnded
		}
	case domain.StateEnded:
		m.State = domain.StatePendingResolution
	}
}

// Resolve runs the resolve_market entrypoint for id. It is idempotent (R1):
// replaying it against an already-Resolved or Finalized market returns the
// stored winner without recomputing anything.
func (e *Engine) Resolve(ctx context.Context, id domain.MarketID) (*domain.Market, error) {
	m, err := e.markets.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	AdvanceState(m, now)

	switch m.State {
	case domain.StateResolved, domain.StateFinalized, domain.StateDisputed, domain.StateDisputeVoting:
		return m, nil
	case domain.StateActive:
		return nil, domain.ErrMarketNotEnded
	case domain.StateCancelled:
		return m, nil
	}

	if m.State != domain.StatePendingResolution {
		return nil, fmt.Errorf("resolution: market %s in unexpected state %s", id, m.State)
	}

	// Case 4: nobody staked anything, nothing to resolve — cancel and let
	// the caller (internal/engine) drive refunds.
	if m.TotalStaked == nil || m.TotalStaked.Sign() == 0 {
		m.State = domain.StateCancelled
		if err := e.markets.Store(ctx, m); err != nil {
			return nil, err
		}
		return m, nil
	}

	oracleOutcome, oracleErr := e.tryOracle(ctx, m, now)

	if oracleErr != nil {
		// Oracle unavailable: fall back to community-only selection.
		winner, tied := SelectWinner(m.Outcomes, m.PerOutcomeTotal, m.TotalStaked, nil)
		if winner != nil {
			return e.finalizeWinner(ctx, m, winner, nil, now)
		}

		// Case 5: oracle unavailable and community tied. Enter dispute
		// voting if there is still time before the resolution timeout,
		// otherwise cancel.
		timeout := m.ResolutionTimeoutSeconds
		if timeout <= 0 {
			timeout = e.cfg.DefaultResolutionTimeoutSeconds
		}
		if now-m.EndTime > timeout {
			m.State = domain.StateCancelled
			m.WinningOutcomesTied = tied
			if err := e.markets.Store(ctx, m); err != nil {
				return nil, err
			}
			return m, nil
		}

		m.State = domain.StateDisputeVoting
		m.WinningOutcomesTied = tied
		if err := e.markets.Store(ctx, m); err != nil {
			return nil, err
		}
		return m, nil
	}

	winner, _ := SelectWinner(m.Outcomes, m.PerOutcomeTotal, m.TotalStaked, &oracleOutcome)
	return e.finalizeWinner(ctx, m, winner, &oracleOutcome, now)
}

// tryOracle fetches and maps the oracle's outcome for m, if configured and
// healthy.
func (e *Engine) tryOracle(ctx context.Context, m *domain.Market, now int64) (domain.Outcome, error) {
	pp, err := e.oracles.FetchPrice(ctx, m, now)
	if err != nil {
		return "", err
	}
	return oracle.MapOutcome(m.OracleConfig, pp), nil
}

// finalizeWinner records winner as m's resolved outcome and transitions the
// market into Resolved, anchoring ResolvedAt for the dispute window.
//
// Every call site passes a non-nil winner: a tied community fallback never
// reaches this function (Resolve moves the market to DisputeVoting or
// Cancelled, ReResolveWithDisputeTally cancels it). A set winner clears
// WinningOutcomesTied, so a decisive oracle- or dispute-tally pick is never
// paid out as a tie; a nil winner would record the community tie set.
func (e *Engine) finalizeWinner(ctx context.Context, m *domain.Market, winner *domain.Outcome, oracleOutcome *domain.Outcome, now int64) (*domain.Market, error) {
	communityWinner, communityTied := communityArgmax(m.Outcomes, m.PerOutcomeTotal)

	m.OracleResult = oracleOutcome
	m.CommunityWinner = communityWinner
	if winner == nil {
		m.WinningOutcomesTied = communityTied
	} else {
		m.WinningOutcomesTied = nil
	}
	m.WinningOutcome = winner
	m.State = domain.StateResolved
	m.ResolvedAt = now

	if err := e.markets.Store(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Finalize runs the finalize entrypoint: once dispute_window_seconds have
// elapsed since ResolvedAt with no ActiveDisputeID, the market moves from
// Resolved to Finalized and its winner becomes immutable.
func (e *Engine) Finalize(ctx context.Context, id domain.MarketID) (*domain.Market, error) {
	m, err := e.markets.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	if m.State == domain.StateFinalized {
		return m, nil
	}
	if m.State != domain.StateResolved {
		return nil, domain.ErrMarketNotResolved
	}
	if m.ActiveDisputeID != nil {
		return nil, domain.ErrDisputeWindowOpen
	}

	now := e.clock.Now()
	if now-m.ResolvedAt < m.DisputeWindowSeconds {
		return nil, domain.ErrDisputeWindowOpen
	}

	m.State = domain.StateFinalized
	if err := e.markets.Store(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ReResolveWithDisputeTally re-runs the §4.G selection with tally (the
// dispute vote totals) replacing the community tally, per §4.I. The oracle
// weight and outcome are unchanged from the original resolution.
func (e *Engine) ReResolveWithDisputeTally(ctx context.Context, id domain.MarketID, tally map[domain.Outcome]domain.Amount, totalStaked domain.Amount) (*domain.Market, error) {
	m, err := e.markets.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.State != domain.StateDisputed && m.State != domain.StateDisputeVoting {
		return nil, domain.ErrMarketNotResolved
	}

	now := e.clock.Now()
	winner, tied := SelectWinner(m.Outcomes, tally, totalStaked, m.OracleResult)
	if winner == nil {
		m.State = domain.StateCancelled
		m.WinningOutcomesTied = tied
		if err := e.markets.Store(ctx, m); err != nil {
			return nil, err
		}
		return m, nil
	}

	return e.finalizeWinner(ctx, m, winner, m.OracleResult, now)
}
