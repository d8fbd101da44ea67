// Package dispute implements the §4.I dispute module: the dynamic stake
// threshold, dispute voting, and the forfeit/return settlement that runs
// once dispute voting concludes.
package dispute

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/google/uuid"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
	"github.com/predictify/marketengine/internal/market"
	"github.com/predictify/marketengine/internal/resolution"
	"github.com/predictify/marketengine/internal/validator"
)

const contractIdentity = "contract"

// Module drives dispute_market, vote_on_dispute, and resolve_dispute.
type Module struct {
	markets  *market.Registry
	resolver *resolution.Engine
	transfer host.ValueTransfer
	clock    host.Clock
	cfg      domain.EngineConfig
	val      *validator.Validator
}

// New creates a dispute Module.
func New(markets *market.Registry, resolver *resolution.Engine, transfer host.ValueTransfer, clock host.Clock, cfg domain.EngineConfig) *Module {
	return &Module{markets: markets, resolver: resolver, transfer: transfer, clock: clock, cfg: cfg, val: validator.New()}
}

// Open runs dispute_market: raises a new dispute against a Resolved market,
// staking on the claimed outcome. The disputer's own stake counts as the
// first dispute vote.
func (d *Module) Open(ctx context.Context, user domain.Identity, marketID domain.MarketID, outcome domain.Outcome, stake domain.Amount, reason string) (*domain.Market, error) {
	m, err := d.markets.Load(ctx, marketID)
	if err != nil {
		return nil, err
	}

	if m.State != domain.StateResolved {
		return nil, domain.ErrMarketNotResolved
	}

	now := d.clock.Now()
	if now >= m.ResolvedAt+m.DisputeWindowSeconds {
		return nil, domain.ErrDisputeWindowClosed
	}

	if !m.OutcomeIndex(outcome) {
		return nil, domain.ErrInvalidOutcome
	}
	if ve := d.val.ValidateReason(reason); ve != nil {
		return nil, ve
	}

	threshold := DynamicThreshold(m, d.cfg)
	if stake.Cmp(threshold) < 0 {
		return nil, domain.ErrInsufficientStake
	}

	if m.ActiveDisputeID != nil {
		return nil, domain.ErrDisputeAlreadyOpen
	}

	if err := d.transfer.Transfer(ctx, string(user), contractIdentity, stake); err != nil {
		return nil, fmt.Errorf("dispute: stake transfer: %w", err)
	}

	id := domain.DisputeID(uuid.NewString())
	m.ActiveDisputeID = &id
	m.ActiveDisputeOpenedAt = now

	if m.DisputeStakes == nil {
		m.DisputeStakes = make(map[domain.Identity]domain.Amount)
	}
	if m.DisputeVotes == nil {
		m.DisputeVotes = make(map[domain.Identity]*domain.DisputeVote)
	}
	m.DisputeStakes[user] = new(big.Int).Set(stake)
	m.DisputeVotes[user] = &domain.DisputeVote{
		Dispute:   id,
		Market:    marketID,
		User:      user,
		Outcome:   outcome,
		Amount:    new(big.Int).Set(stake),
		Reason:    reason,
		Timestamp: now,
	}

	// DISPUTE_EXTENSION_HOURS is expressed in hours; extension_history
	// records days_added, so it is rounded up to whole days. Unlike
	// extend_market, this automatic extension is not checked against
	// max_extension_days — it is a consequence of a dispute being raised,
	// not a discretionary admin action.
	extensionDays := (int(d.cfg.DisputeExtensionHours) + 23) / 24
	m.ExtensionHistory = append(m.ExtensionHistory, domain.ExtensionRecord{
		DaysAdded: extensionDays,
		Reason:    "dispute opened: " + reason,
		Actor:     user,
		Timestamp: now,
	})
	m.TotalExtensionDays += extensionDays

	m.State = domain.StateDisputeVoting

	if err := d.markets.Store(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Vote runs vote_on_dispute: an additional stake behind a claimed outcome
// during an open dispute's voting window.
func (d *Module) Vote(ctx context.Context, user domain.Identity, marketID domain.MarketID, disputeID domain.DisputeID, outcome domain.Outcome, stake domain.Amount, reason string) (*domain.Market, error) {
	m, err := d.markets.Load(ctx, marketID)
	if err != nil {
		return nil, err
	}

	if m.State != domain.StateDisputeVoting && m.State != domain.StateDisputed {
		return nil, domain.ErrMarketNotResolved
	}
	if m.ActiveDisputeID == nil || *m.ActiveDisputeID != disputeID {
		return nil, domain.ErrDisputeNotFound
	}
	if !m.OutcomeIndex(outcome) {
		return nil, domain.ErrInvalidOutcome
	}
	if ve := d.val.ValidateReason(reason); ve != nil {
		return nil, ve
	}
	if _, already := m.DisputeVotes[user]; already {
		return nil, domain.ErrAlreadyApproved
	}

	now := d.clock.Now()
	if err := d.transfer.Transfer(ctx, string(user), contractIdentity, stake); err != nil {
		return nil, fmt.Errorf("dispute: vote stake transfer: %w", err)
	}

	m.DisputeStakes[user] = new(big.Int).Set(stake)
	m.DisputeVotes[user] = &domain.DisputeVote{
		Dispute:   disputeID,
		Market:    marketID,
		User:      user,
		Outcome:   outcome,
		Amount:    new(big.Int).Set(stake),
		Reason:    reason,
		Timestamp: now,
	}

	if err := d.markets.Store(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Resolve runs resolve_dispute: refuses to tally until
// DisputeVotingWindowSeconds have elapsed since the dispute opened, then
// tallies dispute votes per outcome, re-runs §4.G selection with that tally
// replacing the community tally, and finally forfeits losing-side dispute
// stakes into the winning pool and returns winning-side stakes to their
// principals.
func (d *Module) Resolve(ctx context.Context, admin domain.Identity, marketID domain.MarketID) (*domain.Market, error) {
	m, err := d.markets.Load(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if m.State != domain.StateDisputeVoting && m.State != domain.StateDisputed {
		return nil, domain.ErrMarketNotResolved
	}

	window := d.cfg.DisputeVotingWindowSeconds
	if d.clock.Now() < m.ActiveDisputeOpenedAt+window {
		return nil, domain.ErrDisputeWindowOpen
	}

	tally := make(map[domain.Outcome]domain.Amount)
	total := domain.ZeroAmount()
	for _, v := range m.DisputeVotes {
		cur, ok := tally[v.Outcome]
		if !ok || cur == nil {
			cur = domain.ZeroAmount()
		}
		cur = new(big.Int).Add(cur, v.Amount)
		tally[v.Outcome] = cur
		total.Add(total, v.Amount)
	}

	resolved, err := d.resolver.ReResolveWithDisputeTally(ctx, marketID, tally, total)
	if err != nil {
		return nil, err
	}

	if resolved.WinningOutcome != nil {
		if err := d.settle(ctx, resolved, *resolved.WinningOutcome); err != nil {
			return nil, err
		}
	} else {
		// Tied or cancelled outcome: every dispute stake is returned, since
		// there is no adopted losing side to forfeit against.
		if err := d.refundAll(ctx, resolved); err != nil {
			return nil, err
		}
	}

	resolved.ActiveDisputeID = nil
	resolved.ActiveDisputeOpenedAt = 0
	if err := d.markets.Store(ctx, resolved); err != nil {
		return nil, err
	}
	return resolved, nil
}

// settle forfeits dispute stakes on outcomes other than winner into the
// winning outcome's tally — crediting PerOutcomeTotal[winner] alongside
// TotalStaked keeps I1 (Σ per_outcome_total == total_staked) intact and
// gives payout.ComputePayouts's winningPool/losingPool split what §4.H
// requires: forfeited dispute stakes swell the winners' payout, not the
// losing pool the platform fee is taken from — and refunds principal to
// disputers who backed winner.
func (d *Module) settle(ctx context.Context, m *domain.Market, winner domain.Outcome) error {
	users := make([]domain.Identity, 0, len(m.DisputeVotes))
	for u := range m.DisputeVotes {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

	forfeited := domain.ZeroAmount()
	for _, u := range users {
		v := m.DisputeVotes[u]
		if v.Outcome == winner {
			if err := d.transfer.Transfer(ctx, contractIdentity, string(u), v.Amount); err != nil {
				return fmt.Errorf("dispute: return stake to %s: %w", u, err)
			}
		} else {
			forfeited.Add(forfeited, v.Amount)
		}
	}

	if forfeited.Sign() > 0 {
		m.TotalStaked = new(big.Int).Add(m.TotalStaked, forfeited)
		if m.PerOutcomeTotal == nil {
			m.PerOutcomeTotal = make(map[domain.Outcome]domain.Amount)
		}
		cur, ok := m.PerOutcomeTotal[winner]
		if !ok || cur == nil {
			cur = domain.ZeroAmount()
		}
		m.PerOutcomeTotal[winner] = new(big.Int).Add(cur, forfeited)
	}
	m.DisputeStakes = map[domain.Identity]domain.Amount{}
	return nil
}

func (d *Module) refundAll(ctx context.Context, m *domain.Market) error {
	users := make([]domain.Identity, 0, len(m.DisputeVotes))
	for u := range m.DisputeVotes {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

	for _, u := range users {
		v := m.DisputeVotes[u]
		if err := d.transfer.Transfer(ctx, contractIdentity, string(u), v.Amount); err != nil {
			return fmt.Errorf("dispute: refund %s: %w", u, err)
		}
	}
	m.DisputeStakes = map[domain.Identity]domain.Amount{}
	return nil
}
