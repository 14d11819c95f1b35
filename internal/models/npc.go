// internal/models/npc.go
package models

// NPC status values.
const (
	NPCStatusActive   = "active"
	NPCStatusInactive = "inactive"
	NPCStatusDead     = "dead"
	NPCStatusMissing  = "missing"
)

// StatBlock holds the combat-relevant numbers for a creature. Damage is a
// dice expression such as "1d8" or "2d6+1".
type StatBlock struct {
	AC     int    `json:"ac"`
	HD     int    `json:"hd"`
	HP     int    `json:"hp"`
	HPMax  int    `json:"hp_max"`
	Attack int    `json:"attack"`
	Damage string `json:"damage"`
	Morale int    `json:"morale"`
}

// NPC is any non-player creature the engine tracks. The narrative fields
// are owned by the narrator-facing layer; the deterministic core reads only
// Zone, Status, the companion flags, and the stat block.
type NPC struct {
	Name        string   `json:"name"`
	Zone        string   `json:"zone,omitempty"`
	Status      string   `json:"status"`
	Role        string   `json:"role,omitempty"`
	Trait       string   `json:"trait,omitempty"`
	Appearance  string   `json:"appearance,omitempty"`
	Faction     string   `json:"faction,omitempty"`
	Objective   string   `json:"objective,omitempty"`
	Knowledge   string   `json:"knowledge,omitempty"`
	NextAction  string   `json:"next_action,omitempty"`
	WithPC      bool     `json:"with_pc,omitempty"`
	IsCompanion bool     `json:"is_companion,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	Stats StatBlock `json:"stats"`

	CreatedSession string   `json:"created_session,omitempty"`
	History        []string `json:"history,omitempty"`
}

// PCState is the player character record.
type PCState struct {
	Name          string   `json:"name"`
	Goals         []string `json:"goals,omitempty"`
	Conditions    []string `json:"conditions,omitempty"`
	Reputation    string   `json:"reputation,omitempty"`
	EquipmentNote string   `json:"equipment_note,omitempty"`

	Stats StatBlock `json:"stats"`

	History []string `json:"history,omitempty"`
}

// Faction is an offscreen power bloc. Trend and disposition are narrator
// prose; the engine only keys clocks and zones against the name.
type Faction struct {
	Name           string   `json:"name"`
	Status         string   `json:"status"`
	Trend          string   `json:"trend,omitempty"`
	Disposition    string   `json:"disposition,omitempty"`
	LastAction     string   `json:"last_action,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	CreatedSession string   `json:"created_session,omitempty"`
	History        []string `json:"history,omitempty"`
}

// Discovery is a piece of information the player has uncovered.
type Discovery struct {
	ID          string `json:"id"`
	Zone        string `json:"zone,omitempty"`
	AnchorCode  string `json:"anchor_code,omitempty"`
	Reliability string `json:"reliability,omitempty"`
	Source      string `json:"source,omitempty"`
	Info        string `json:"info"`
	Session     string `json:"session,omitempty"`
}

// UnresolvedThread is a dangling narrative hook awaiting resolution.
type UnresolvedThread struct {
	ID          string `json:"id"`
	Zone        string `json:"zone,omitempty"`
	Description string `json:"description"`
	Resolved    bool   `json:"resolved,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
}

// AnchorEntry is an urban-adventure anchor: a standing situation in a zone
// that encounters and discoveries can hook into.
type AnchorEntry struct {
	ID          string `json:"id"`
	Zone        string `json:"zone,omitempty"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Touched     bool   `json:"touched,omitempty"`
}
