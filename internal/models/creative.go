// internal/models/creative.go
package models

// Creative request types. Narration requests ask for prose; forge requests
// ask the narrator to invent a missing piece of world content.
const (
	RequestNarrArrival      = "NARR_ARRIVAL"
	RequestNarrEncounter    = "NARR_ENCOUNTER"
	RequestNarrCombatEnd    = "NARR_COMBAT_END"
	RequestNarrTimePassage  = "NARR_TIME_PASSAGE"
	RequestNarrSessionStart = "NARR_SESSION_START"
	RequestClockAudit       = "CLOCK_AUDIT"
	RequestNPCAction        = "NPC_ACTION"
	RequestSessionSummary   = "SESSION_SUMMARY"
	RequestRumor            = "RUMOR"
	RequestPlayerInput      = "PLAYER_INPUT"
	RequestNPCForge         = "NPC_FORGE"
	RequestELForge          = "EL_FORGE"
	RequestFactionForge     = "FAC_FORGE"
	RequestAnchorForge      = "ANCHOR_FORGE"
	RequestClockForge       = "CLOCK_FORGE"
	RequestEngineForge      = "PE_FORGE"
	RequestUAForge          = "UA_FORGE"
	RequestZoneExpansion    = "ZONE_EXPANSION"
)

// Declared state-change types a narrator response may carry.
const (
	ChangeClockAdvance    = "clock_advance"
	ChangeClockReduce     = "clock_reduce"
	ChangeFact            = "fact"
	ChangeNPCUpdate       = "npc_update"
	ChangeNPCCreate       = "npc_create"
	ChangeClockCreate     = "clock_create"
	ChangeELCreate        = "el_create"
	ChangeFactionCreate   = "faction_create"
	ChangeFactionUpdate   = "faction_update"
	ChangeCompanionCreate = "companion_create"
	ChangeEngineCreate    = "pe_create"
	ChangeUACreate        = "ua_create"
	ChangeDiscoveryCreate = "discovery_create"
	ChangeThreadCreate    = "thread_create"
	ChangeZoneCreate      = "zone_create"
	ChangeZoneUpdate      = "zone_update"
	ChangeSessionMeta     = "session_meta"
)

// CreativeRequest is one outbound question for the narrator. Context holds
// only the fields relevant to the request type; Constraints cap what the
// narrator is allowed to invent.
type CreativeRequest struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Context     map[string]any `json:"context"`
	Constraints []string       `json:"constraints,omitempty"`
}

// StateChange is one declared mutation inside a narrator response. Payload
// is validated per type before commit.
type StateChange struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// CreativeResponse is the narrator's answer to a flushed batch entry.
type CreativeResponse struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Content      string        `json:"content"`
	StateChanges []StateChange `json:"state_changes,omitempty"`
}

// FlaggedBatch records a batch that failed parsing twice and now needs
// manual resolution.
type FlaggedBatch struct {
	BatchID  string   `json:"batch_id"`
	Requests []string `json:"requests"`
	Reason   string   `json:"reason"`
	Date     string   `json:"date,omitempty"`
}

// CreativeQueue holds the narrator round-trip state. At most one batch is
// outstanding at a time.
type CreativeQueue struct {
	Pending     []*CreativeRequest  `json:"pending,omitempty"`
	Outstanding []*CreativeRequest  `json:"outstanding,omitempty"`
	BatchID     string              `json:"batch_id,omitempty"`
	Completed   []*CreativeResponse `json:"completed,omitempty"`
	Flagged     []FlaggedBatch      `json:"flagged,omitempty"`
	CallCount   int                 `json:"call_count"`
	RetryUsed   bool                `json:"retry_used,omitempty"`
	NextID      int                 `json:"next_id"`
}

// HasOutstanding reports whether a flushed batch is awaiting a response.
func (q *CreativeQueue) HasOutstanding() bool {
	return len(q.Outstanding) > 0
}
