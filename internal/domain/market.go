package domain

// OracleConfig names a price feed and the threshold used to map its reading
// onto one of the market's outcome labels.
type OracleConfig struct {
	Variant    OracleVariant
	Asset      string
	Threshold  Amount
	Comparison Comparison
	// Mapping names the outcome label produced when Comparison holds true,
	// and the one produced when it does not. Binary markets use "yes"/"no";
	// multi-outcome markets name their own pair via oracle_config.mapping.
	TrueOutcome  Outcome
	FalseOutcome Outcome
	// Exponent scales the raw provider reading into the market's base unit.
	Exponent int32
}

// PricePoint is a single reading from an oracle provider.
type PricePoint struct {
	Price       Amount
	Confidence  *uint64 // nil when the provider does not report confidence
	PublishTime int64
}

// Bet is a single user's stake on one outcome of one market.
type Bet struct {
	Market    MarketID
	User      Identity
	Outcome   Outcome
	Amount    Amount
	Timestamp int64
	Status    BetStatus
}

// ExtensionRecord is an append-only entry in a market's extension history.
type ExtensionRecord struct {
	DaysAdded int
	Reason    string
	Actor     Identity
	Timestamp int64
}

// ThresholdHistoryRecord captures an admin-triggered change to a market's
// dynamic dispute threshold parameters.
type ThresholdHistoryRecord struct {
	OldBase      Amount
	NewBase      Amount
	FactorDeltas string
	Actor        Identity
	Timestamp    int64
	Reason       string
}

// DisputeVote is one user's stake behind a claimed outcome during dispute
// voting, distinct from the ordinary bet ledger.
type DisputeVote struct {
	Dispute   DisputeID
	Market    MarketID
	User      Identity
	Outcome   Outcome
	Amount    Amount
	Reason    string
	Timestamp int64
}

// Market is the full record for a single prediction event.
type Market struct {
	ID       MarketID
	Admin    Identity
	Question string
	Outcomes []Outcome

	CreatedAt int64
	EndTime   int64

	DisputeWindowSeconds     int64
	ResolutionTimeoutSeconds int64

	OracleConfig         OracleConfig
	FallbackOracleConfig *OracleConfig

	State MarketState

	TotalStaked     Amount
	PerOutcomeTotal map[Outcome]Amount

	Bets map[Identity]*Bet

	DisputeStakes map[Identity]Amount
	DisputeVotes  map[Identity]*DisputeVote

	OracleResult        *Outcome
	CommunityWinner     *Outcome
	WinningOutcome      *Outcome
	WinningOutcomesTied []Outcome

	FeeCollected bool

	ExtensionHistory   []ExtensionRecord
	TotalExtensionDays int

	ThresholdHistory []ThresholdHistoryRecord

	// ResolvedAt is set when the market transitions into Resolved; it anchors
	// the dispute window and the finalize-after-window check.
	ResolvedAt int64

	// DisputeBaseThreshold and factor inputs feed the dynamic dispute
	// threshold formula (§4.I); set to platform defaults at creation, only
	// mutable via admin action.
	DisputeBaseThreshold Amount

	// ActiveDisputeID names the dispute currently open against this market,
	// if any.
	ActiveDisputeID *DisputeID

	// ActiveDisputeOpenedAt anchors the dispute voting window: resolve_dispute
	// refuses to tally until DisputeVotingWindowSeconds have elapsed since
	// this timestamp, giving every vote_on_dispute participant the full
	// window. Set alongside ActiveDisputeID and cleared with it.
	ActiveDisputeOpenedAt int64
}

// OutcomeIndex returns whether label is one of the market's declared
// outcomes.
func (m *Market) OutcomeIndex(label Outcome) bool {
	for _, o := range m.Outcomes {
		if o == label {
			return true
		}
	}
	return false
}

// ActiveBetsOnOutcome returns every Active or Claimed bet placed on outcome.
func (m *Market) ActiveBetsOnOutcome(outcome Outcome) []*Bet {
	var out []*Bet
	for _, b := range m.Bets {
		if b.Outcome == outcome && (b.Status == BetActive || b.Status == BetClaimed) {
			out = append(out, b)
		}
	}
	return out
}
