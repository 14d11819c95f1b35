// internal/models/state.go
package models

import (
	"fmt"
	"strings"
	"time"
)

// Session phases. AwaitCreative nests inside whichever cycle requested it
// and returns control there when the response arrives.
const (
	PhaseIdle          = "idle"
	PhaseTraveling     = "traveling"
	PhaseTimePressure  = "time_pressure"
	PhaseInCombat      = "in_combat"
	PhaseAwaitCreative = "await_creative"
)

// LogEntry is one line of the append-only adjudication log.
type LogEntry struct {
	Date    string `json:"date"`
	Session string `json:"session,omitempty"`
	Kind    string `json:"kind"`
	Text    string `json:"text"`
}

// SessionState is the root aggregate. Exactly one instance is live per
// process; all mutation is serialized through the session service. Every
// cross-entity reference is a name key, never a pointer.
type SessionState struct {
	SessionID         string `json:"session_id"`
	Phase             string `json:"phase"`
	ResumePhase       string `json:"resume_phase,omitempty"`
	InGameDate        string `json:"in_game_date"`
	DayOfMonth        int    `json:"day_of_month"`
	Month             string `json:"month"`
	Season            string `json:"season"`
	SeasonalPressure  string `json:"seasonal_pressure,omitempty"`
	PCZone            string `json:"pc_zone"`
	CampaignIntensity string `json:"campaign_intensity"`

	PC             *PCState                     `json:"pc"`
	Clocks         map[string]*Clock            `json:"clocks"`
	ClockOrder     []string                     `json:"clock_order"`
	Engines        map[string]*ProceduralEngine `json:"engines"`
	Zones          map[string]*Zone             `json:"zones"`
	EncounterLists map[string]*EncounterList    `json:"encounter_lists"`
	NPCs           map[string]*NPC              `json:"npcs"`
	Factions       map[string]*Faction          `json:"factions"`
	Discoveries    []Discovery                  `json:"discoveries,omitempty"`
	Threads        []UnresolvedThread           `json:"threads,omitempty"`
	Anchors        []AnchorEntry                `json:"anchors,omitempty"`
	SessionMeta    map[string]any               `json:"session_meta,omitempty"`

	Combat *CombatState   `json:"combat,omitempty"`
	Queue  *CreativeQueue `json:"queue"`

	DailyFacts []string        `json:"daily_facts,omitempty"`
	FiredRules map[string]bool `json:"fired_rules,omitempty"`
	Log        []LogEntry      `json:"log"`

	PendingCombat map[string]any `json:"pending_combat,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// NewSessionState creates an empty session positioned at the campaign's
// default starting date.
func NewSessionState(id string) *SessionState {
	s := &SessionState{
		SessionID:         id,
		Phase:             PhaseIdle,
		DayOfMonth:        23,
		Month:             "Ilrym",
		CampaignIntensity: IntensityMedium,
		PC:                &PCState{},
		Clocks:            make(map[string]*Clock),
		Engines:           make(map[string]*ProceduralEngine),
		Zones:             make(map[string]*Zone),
		EncounterLists:    make(map[string]*EncounterList),
		NPCs:              make(map[string]*NPC),
		Factions:          make(map[string]*Faction),
		FiredRules:        make(map[string]bool),
		Queue:             &CreativeQueue{},
		CreatedAt:         time.Now(),
	}
	s.Season = SeasonOf(s.Month)
	s.SeasonalPressure = SeasonalPressure[s.Season]
	s.InGameDate = fmt.Sprintf("%d %s", s.DayOfMonth, s.Month)
	return s
}

// Normalize repairs nil collections after a load so older saves round-trip.
func (s *SessionState) Normalize() {
	if s.Clocks == nil {
		s.Clocks = make(map[string]*Clock)
	}
	if s.Engines == nil {
		s.Engines = make(map[string]*ProceduralEngine)
	}
	if s.Zones == nil {
		s.Zones = make(map[string]*Zone)
	}
	if s.EncounterLists == nil {
		s.EncounterLists = make(map[string]*EncounterList)
	}
	if s.NPCs == nil {
		s.NPCs = make(map[string]*NPC)
	}
	if s.Factions == nil {
		s.Factions = make(map[string]*Faction)
	}
	if s.FiredRules == nil {
		s.FiredRules = make(map[string]bool)
	}
	if s.Queue == nil {
		s.Queue = &CreativeQueue{}
	}
	if s.PC == nil {
		s.PC = &PCState{}
	}
	if s.Phase == "" {
		s.Phase = PhaseIdle
	}
	if len(s.ClockOrder) != len(s.Clocks) {
		s.rebuildClockOrder()
	}
}

func (s *SessionState) rebuildClockOrder() {
	seen := make(map[string]bool, len(s.Clocks))
	order := make([]string, 0, len(s.Clocks))
	for _, name := range s.ClockOrder {
		if _, ok := s.Clocks[name]; ok && !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	for name := range s.Clocks {
		if !seen[name] {
			order = append(order, name)
		}
	}
	s.ClockOrder = order
}

// GetClock looks a clock up by name, case-insensitively.
func (s *SessionState) GetClock(name string) *Clock {
	if c, ok := s.Clocks[name]; ok {
		return c
	}
	lower := strings.ToLower(name)
	for _, c := range s.Clocks {
		if strings.ToLower(c.Name) == lower {
			return c
		}
	}
	return nil
}

// AddClock registers a clock, preserving insertion order for rule
// evaluation.
func (s *SessionState) AddClock(c *Clock) {
	if _, exists := s.Clocks[c.Name]; !exists {
		s.ClockOrder = append(s.ClockOrder, c.Name)
	}
	s.Clocks[c.Name] = c
}

// ClocksInOrder returns clocks in insertion order.
func (s *SessionState) ClocksInOrder() []*Clock {
	out := make([]*Clock, 0, len(s.ClockOrder))
	for _, name := range s.ClockOrder {
		if c, ok := s.Clocks[name]; ok {
			out = append(out, c)
		}
	}
	return out
}

// GetNPC looks an NPC up by name, case-insensitively.
func (s *SessionState) GetNPC(name string) *NPC {
	if n, ok := s.NPCs[name]; ok {
		return n
	}
	lower := strings.ToLower(name)
	for _, n := range s.NPCs {
		if strings.ToLower(n.Name) == lower {
			return n
		}
	}
	return nil
}

// GetZone looks a zone up by name, case-insensitively.
func (s *SessionState) GetZone(name string) *Zone {
	if z, ok := s.Zones[name]; ok {
		return z
	}
	lower := strings.ToLower(name)
	for _, z := range s.Zones {
		if strings.ToLower(z.Name) == lower {
			return z
		}
	}
	return nil
}

// OwnerExists reports whether a clock owner reference resolves to a known
// NPC, faction, anchor, or the ambient environment.
func (s *SessionState) OwnerExists(owner string) bool {
	if owner == "" {
		return false
	}
	if strings.EqualFold(owner, "environment") {
		return true
	}
	if s.GetNPC(owner) != nil {
		return true
	}
	if _, ok := s.Factions[owner]; ok {
		return true
	}
	for _, a := range s.Anchors {
		if strings.EqualFold(a.ID, owner) {
			return true
		}
	}
	return false
}

// ActiveNPCsInZone counts active NPCs located in the zone.
func (s *SessionState) ActiveNPCsInZone(zone string) int {
	count := 0
	for _, n := range s.NPCs {
		if n.Status == NPCStatusActive && strings.EqualFold(n.Zone, zone) {
			count++
		}
	}
	return count
}

// Companions returns NPCs flagged as companions currently with the PC.
func (s *SessionState) Companions() []*NPC {
	var out []*NPC
	for _, n := range s.NPCs {
		if n.IsCompanion && n.WithPC && n.Status == NPCStatusActive {
			out = append(out, n)
		}
	}
	return out
}

// AddFact appends to the day's accumulated facts.
func (s *SessionState) AddFact(fact string) {
	s.DailyFacts = append(s.DailyFacts, fact)
}

// AppendLog adds an adjudication log entry stamped with the in-game date.
func (s *SessionState) AppendLog(kind, text string) {
	s.Log = append(s.Log, LogEntry{
		Date:    s.InGameDate,
		Session: s.SessionID,
		Kind:    kind,
		Text:    text,
	})
}

// ResetDay clears per-day bookkeeping on the state and every clock and
// engine. Facts are cleared because halt conditions and audits only ever
// look at the current day.
func (s *SessionState) ResetDay() {
	s.DailyFacts = nil
	for _, c := range s.Clocks {
		c.ResetDay()
	}
	for _, e := range s.Engines {
		e.ResetDay()
	}
}

// AdvanceDate moves the calendar forward one day, rolling months and
// updating the season and its pressure.
func (s *SessionState) AdvanceDate() DateChange {
	oldDate := s.InGameDate
	oldSeason := SeasonOf(s.Month)

	s.DayOfMonth++
	maxDays, ok := MonthDays[s.Month]
	if !ok {
		maxDays = 31
	}
	if s.DayOfMonth > maxDays {
		s.DayOfMonth = 1
		s.Month = Months[(monthIndex(s.Month)+1)%len(Months)]
	}

	newSeason := SeasonOf(s.Month)
	s.InGameDate = fmt.Sprintf("%d %s", s.DayOfMonth, s.Month)
	s.Season = newSeason
	s.SeasonalPressure = SeasonalPressure[newSeason]

	change := DateChange{
		OldDate:       oldDate,
		NewDate:       s.InGameDate,
		SeasonChanged: oldSeason != newSeason,
	}
	if change.SeasonChanged {
		change.OldSeason = oldSeason
		change.NewSeason = newSeason
		change.SeasonalPressure = s.SeasonalPressure
		s.AddFact(fmt.Sprintf("Season changed: %s -> %s", oldSeason, newSeason))
	}
	s.AddFact(fmt.Sprintf("Date advanced to %s", s.InGameDate))
	return change
}
