package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/payout"
)

// EventDetails is the response shape for query_event_details.
type EventDetails struct {
	MarketID          domain.MarketID
	Question          string
	Outcomes          []domain.Outcome
	CreatedAt         int64
	EndTime           int64
	State             domain.MarketState
	OracleProvider    domain.OracleVariant
	Asset             string
	TotalStaked       domain.Amount
	WinningOutcome    *domain.Outcome
	OracleResult      *domain.Outcome
	ParticipantCount  int
	Admin             domain.Identity
}

// QueryEventDetails runs query_event_details(market_id).
func (e *Engine) QueryEventDetails(ctx context.Context, marketID domain.MarketID) (*EventDetails, error) {
	m, err := e.markets.Load(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("engine: query_event_details: %w", err)
	}
	return &EventDetails{
		MarketID:         m.ID,
		Question:         m.Question,
		Outcomes:         m.Outcomes,
		CreatedAt:        m.CreatedAt,
		EndTime:          m.EndTime,
		State:            m.State,
		OracleProvider:   m.OracleConfig.Variant,
		Asset:            m.OracleConfig.Asset,
		TotalStaked:      m.TotalStaked,
		WinningOutcome:   m.WinningOutcome,
		OracleResult:     m.OracleResult,
		ParticipantCount: len(m.Bets),
		Admin:            m.Admin,
	}, nil
}

// QueryEventStatus runs query_event_status(market_id) -> (state, end_time).
func (e *Engine) QueryEventStatus(ctx context.Context, marketID domain.MarketID) (domain.MarketState, int64, error) {
	m, err := e.markets.Load(ctx, marketID)
	if err != nil {
		return "", 0, fmt.Errorf("engine: query_event_status: %w", err)
	}
	return m.State, m.EndTime, nil
}

// GetAllMarkets runs get_all_markets() -> list<market_id>.
func (e *Engine) GetAllMarkets(ctx context.Context) ([]domain.MarketID, error) {
	ids, err := e.markets.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: get_all_markets: %w", err)
	}
	return ids, nil
}

// UserBet is the response shape for query_user_bet.
type UserBet struct {
	User             domain.Identity
	Market           domain.MarketID
	Outcome          domain.Outcome
	StakeAmount      domain.Amount
	Timestamp        int64
	IsWinning        bool
	HasClaimed       bool
	PotentialPayout  domain.Amount
	DisputeStake     domain.Amount
}

// QueryUserBet runs query_user_bet(user, market_id).
func (e *Engine) QueryUserBet(ctx context.Context, user domain.Identity, marketID domain.MarketID) (*UserBet, error) {
	m, err := e.markets.Load(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("engine: query_user_bet: %w", err)
	}
	bet, ok := m.Bets[user]
	if !ok {
		return nil, fmt.Errorf("engine: query_user_bet: %w", domain.ErrBetNotFound)
	}

	isWinning := m.WinningOutcome != nil && *m.WinningOutcome == bet.Outcome
	payout := domain.ZeroAmount()
	if isWinning && bet.Status != domain.BetClaimed {
		payout = e.estimatePayout(m, bet)
	}
	dispute := domain.ZeroAmount()
	if s, ok := m.DisputeStakes[user]; ok {
		dispute = s
	}

	return &UserBet{
		User:            user,
		Market:          marketID,
		Outcome:         bet.Outcome,
		StakeAmount:     bet.Amount,
		Timestamp:       bet.Timestamp,
		IsWinning:       isWinning,
		HasClaimed:      bet.Status == domain.BetClaimed,
		PotentialPayout: payout,
		DisputeStake:    dispute,
	}, nil
}

// estimatePayout mirrors the payout module's pro-rata share formula for a
// read-only preview: it returns the amount payout.ComputePayouts assigns to
// bet's owner (stake back plus share of the losing pool net of fee, dust
// included), or zero when that table has no entry for them.
func (e *Engine) estimatePayout(m *domain.Market, bet *domain.Bet) domain.Amount {
	payouts, _, err := payout.ComputePayouts(m, e.cfg.FeeBps)
	if err != nil {
		return domain.ZeroAmount()
	}
	if v, ok := payouts[bet.User]; ok {
		return v
	}
	return domain.ZeroAmount()
}

// UserBets is the response shape for query_user_bets.
type UserBets struct {
	Bets               []*UserBet
	TotalStake         domain.Amount
	TotalPotentialPay  domain.Amount
	WinningBets        int
}

// QueryUserBets runs query_user_bets(user) across every market.
func (e *Engine) QueryUserBets(ctx context.Context, user domain.Identity) (*UserBets, error) {
	ids, err := e.markets.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: query_user_bets: %w", err)
	}

	out := &UserBets{TotalStake: domain.ZeroAmount(), TotalPotentialPay: domain.ZeroAmount()}
	for _, id := range ids {
		bet, err := e.QueryUserBet(ctx, user, id)
		if err != nil {
			continue
		}
		out.Bets = append(out.Bets, bet)
		out.TotalStake.Add(out.TotalStake, bet.StakeAmount)
		out.TotalPotentialPay.Add(out.TotalPotentialPay, bet.PotentialPayout)
		if bet.IsWinning {
			out.WinningBets++
		}
	}
	return out, nil
}

// UserBalance is the response shape for query_user_balance.
type UserBalance struct {
	User               domain.Identity
	TotalStaked        domain.Amount
	UnclaimedBalance   domain.Amount
	ActiveBetCount     int
	ResolvedMarketCount int
}

// QueryUserBalance runs query_user_balance(user). Availability of a
// spendable balance is a property of the value-transfer asset itself, not of
// this contract's own state, so unlike the rest of this response it is not
// reported here; callers needing it query host.ValueTransfer's backing asset
// directly.
func (e *Engine) QueryUserBalance(ctx context.Context, user domain.Identity) (*UserBalance, error) {
	bets, err := e.QueryUserBets(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("engine: query_user_balance: %w", err)
	}

	resolved := 0
	for _, b := range bets.Bets {
		m, err := e.markets.Load(ctx, b.Market)
		if err == nil && (m.State == domain.StateResolved || m.State == domain.StateFinalized) {
			resolved++
		}
	}

	return &UserBalance{
		User:                user,
		TotalStaked:         bets.TotalStake,
		UnclaimedBalance:    bets.TotalPotentialPay,
		ActiveBetCount:      len(bets.Bets),
		ResolvedMarketCount: resolved,
	}, nil
}

// MarketPool is the response shape for query_market_pool.
type MarketPool struct {
	MarketID           domain.MarketID
	TotalPool          domain.Amount
	OutcomePools       map[domain.Outcome]domain.Amount
	ImpliedProbability map[domain.Outcome]float64
}

// QueryMarketPool runs query_market_pool(market_id), reporting each
// outcome's implied probability as its share of the total pool.
func (e *Engine) QueryMarketPool(ctx context.Context, marketID domain.MarketID) (*MarketPool, error) {
	m, err := e.markets.Load(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("engine: query_market_pool: %w", err)
	}

	pools := make(map[domain.Outcome]domain.Amount, len(m.Outcomes))
	probs := make(map[domain.Outcome]float64, len(m.Outcomes))
	total := new(big.Float).SetInt(m.TotalStaked)

	for _, o := range m.Outcomes {
		p, ok := m.PerOutcomeTotal[o]
		if !ok {
			p = domain.ZeroAmount()
		}
		pools[o] = p

		if m.TotalStaked.Sign() == 0 {
			probs[o] = 0
			continue
		}
		frac := new(big.Float).Quo(new(big.Float).SetInt(p), total)
		v, _ := frac.Float64()
		probs[o] = v
	}

	return &MarketPool{
		MarketID:           marketID,
		TotalPool:          m.TotalStaked,
		OutcomePools:       pools,
		ImpliedProbability: probs,
	}, nil
}

// QueryTotalPoolSize runs query_total_pool_size(), the total value locked
// across every market.
func (e *Engine) QueryTotalPoolSize(ctx context.Context) (domain.Amount, error) {
	markets, err := e.markets.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: query_total_pool_size: %w", err)
	}
	total := domain.ZeroAmount()
	for _, m := range markets {
		total.Add(total, m.TotalStaked)
	}
	return total, nil
}

// ContractState is the response shape for query_contract_state.
type ContractState struct {
	TotalMarkets     int
	ActiveMarkets    int
	ResolvedMarkets  int
	CancelledMarkets int
	TotalValueLocked domain.Amount
	LastUpdate       int64
	Paused           bool
	PauseReason      string
}

// QueryContractState runs query_contract_state(), a global snapshot of
// platform-wide market counts, value locked, and circuit-breaker status.
func (e *Engine) QueryContractState(ctx context.Context) (*ContractState, error) {
	markets, err := e.markets.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: query_contract_state: %w", err)
	}
	breaker, err := e.admins.CircuitBreaker(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: query_contract_state: %w", err)
	}

	state := &ContractState{
		TotalMarkets:     len(markets),
		TotalValueLocked: domain.ZeroAmount(),
		LastUpdate:       e.clock.Now(),
		Paused:           breaker.Paused,
		PauseReason:      breaker.Reason,
	}
	for _, m := range markets {
		switch m.State {
		case domain.StateActive, domain.StateEnded, domain.StatePendingResolution:
			state.ActiveMarkets++
		case domain.StateResolved, domain.StateFinalized:
			state.ResolvedMarkets++
		case domain.StateCancelled:
			state.CancelledMarkets++
		}
		state.TotalValueLocked.Add(state.TotalValueLocked, m.TotalStaked)
	}
	return state, nil
}

// GetMarketAnalytics runs get_market_analytics(market_id), delegating
// straight to the market registry's own analytics computation.
func (e *Engine) GetMarketAnalytics(ctx context.Context, marketID domain.MarketID) (*domain.MarketAnalytics, error) {
	a, err := e.markets.Analytics(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("engine: get_market_analytics: %w", err)
	}
	return a, nil
}
