package domain

// EventTopic names one entry in the stable audit-event vocabulary (§4.L).
// State-mutating entrypoints emit one of these after their change commits;
// not every state transition has a topic of its own (finalization emits
// none).
type EventTopic string

const (
	EventMarketCreated            EventTopic = "MarketCreated"
	EventBetPlaced                EventTopic = "BetPlaced"
	EventBetCancelled             EventTopic = "BetCancelled"
	EventMarketResolved           EventTopic = "MarketResolved"
	EventOracleDegradation        EventTopic = "OracleDegradation"
	EventOracleRecovery           EventTopic = "OracleRecovery"
	EventManualResolutionRequired EventTopic = "ManualResolutionRequired"
	EventDisputeOpened            EventTopic = "DisputeOpened"
	EventDisputeResolved          EventTopic = "DisputeResolved"
	EventWinningsClaimed          EventTopic = "WinningsClaimed"
	EventFeeCollected             EventTopic = "FeeCollected"
	EventAdminAdded               EventTopic = "AdminAdded"
	EventAdminRemoved             EventTopic = "AdminRemoved"
	EventRoleUpdated              EventTopic = "RoleUpdated"
	EventThresholdChanged         EventTopic = "ThresholdChanged"
	EventPendingActionCreated     EventTopic = "PendingActionCreated"
	EventPendingActionApproved    EventTopic = "PendingActionApproved"
	EventPendingActionExecuted    EventTopic = "PendingActionExecuted"
	EventMarketCancelled          EventTopic = "MarketCancelled"
	EventRefunded                 EventTopic = "Refunded"
	EventContractPaused           EventTopic = "ContractPaused"
	EventContractResumed          EventTopic = "ContractResumed"
)

// MaxEventPayloadBytes bounds the combined event+return payload per
// entrypoint (§4.L).
const MaxEventPayloadBytes = 8 * 1024
