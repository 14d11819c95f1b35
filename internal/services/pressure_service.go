// internal/services/pressure_service.go
package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Corphon/SoloRealmMCP/internal/dice"
	apperrors "github.com/Corphon/SoloRealmMCP/internal/errors"
	"github.com/Corphon/SoloRealmMCP/internal/models"
	"github.com/Corphon/SoloRealmMCP/internal/utils"
)

// NPC deficit threshold for the daily zone gap check. A zone with three
// or fewer active NPCs is considered under-populated.
const zoneNPCFloor = 3

// DayResult is the mechanical record of one elapsed day.
type DayResult struct {
	DayNumber    int                       `json:"day_number"`
	Date         string                    `json:"date"`
	DateChange   models.DateChange         `json:"date_change"`
	EngineRuns   []EngineRun               `json:"engine_runs,omitempty"`
	Halts        []HaltResult              `json:"halts,omitempty"`
	CadenceTicks []models.ClockAdvance     `json:"cadence_ticks,omitempty"`
	Audit        *AuditResults             `json:"audit,omitempty"`
	Interactions *InteractionResults       `json:"interactions,omitempty"`
	Requests     []*models.CreativeRequest `json:"requests,omitempty"`
	Warnings     []string                  `json:"warnings,omitempty"`
}

// EngineRun records one procedural engine execution or skip.
type EngineRun struct {
	Engine  string `json:"engine"`
	Ran     bool   `json:"ran"`
	Outcome string `json:"outcome,omitempty"`
	Roll    int    `json:"roll,omitempty"`
	Skip    string `json:"skip,omitempty"`
}

// PressureService runs the daily time-pressure cycle.
type PressureService struct {
	clocks *ClockService
	roller *dice.Roller
	logger *utils.Logger
}

// NewPressureService creates the time-pressure service.
func NewPressureService(clocks *ClockService, roller *dice.Roller) *PressureService {
	return &PressureService{
		clocks: clocks,
		roller: roller,
		logger: utils.GetLogger(),
	}
}

// RunDays runs the full day cycle N times. Deterministic given the same
// state and roll sequence; creative stubs are collected, never resolved
// inline.
func (s *PressureService) RunDays(state *models.SessionState, days int) ([]*DayResult, error) {
	if days < 1 {
		return nil, apperrors.NewValidationError("days must be a positive integer", nil)
	}
	if state.PCZone == "" {
		return nil, apperrors.NewValidationError("PC zone is unset, cannot run time pressure", nil)
	}

	results := make([]*DayResult, 0, days)
	for i := 0; i < days; i++ {
		day := s.runDay(state)
		day.DayNumber = i + 1
		results = append(results, day)
	}
	return results, nil
}

// runDay executes one complete day. The step order is load-bearing:
// calendar, cadence engines, halt conditions, cadence ticks, audit,
// interactions, encounter gate, non-cadence engines, NPC-action gate,
// zone gap check.
func (s *PressureService) runDay(state *models.SessionState) *DayResult {
	state.ResetDay()

	day := &DayResult{}
	day.DateChange = state.AdvanceDate()
	day.Date = state.InGameDate

	for _, engine := range s.eligibleEngines(state, true, day.DateChange.SeasonChanged) {
		run := s.runEngine(state, engine, day)
		day.EngineRuns = append(day.EngineRuns, run)
	}

	day.Halts = s.clocks.EvaluateHaltConditions(state)

	day.CadenceTicks = s.advanceCadenceClocks(state)

	day.Audit = s.clocks.Audit(state)
	for _, review := range day.Audit.NeedsReview {
		day.Requests = append(day.Requests, &models.CreativeRequest{
			Type: models.RequestClockAudit,
			Context: map[string]any{
				"clock":             review.Clock,
				"progress":          review.Progress,
				"ambiguous_bullets": review.AmbiguousBullets,
				"daily_facts":       review.DailyFacts,
			},
		})
	}

	day.Interactions = s.clocks.EvaluateInteractions(state)

	s.encounterGate(state, day, false)

	for _, engine := range s.eligibleEngines(state, false, day.DateChange.SeasonChanged) {
		run := s.runEngine(state, engine, day)
		day.EngineRuns = append(day.EngineRuns, run)
		break // at most one non-cadence engine per day
	}

	s.npcActionGate(state, day)

	s.zoneGapCheck(state, day)

	state.AppendLog("day_cycle", fmt.Sprintf("day complete: %s (%d requests)",
		state.InGameDate, len(day.Requests)))

	return day
}

// eligibleEngines returns active engines of the requested cadence class
// whose zone scope covers the PC. Non-cadence engines bound to a trigger
// event only qualify when that event occurred today.
func (s *PressureService) eligibleEngines(state *models.SessionState, cadence, seasonChanged bool) []*models.ProceduralEngine {
	var out []*models.ProceduralEngine
	for _, engine := range state.Engines {
		if engine.Status != models.EngineStatusActive || engine.Cadence != cadence {
			continue
		}
		if engine.ZoneScope != "" && engine.ZoneScope != "Global" &&
			!strings.EqualFold(engine.ZoneScope, state.PCZone) {
			continue
		}
		if engine.TriggerEvent == models.EngineTriggerSeasonChange && !seasonChanged {
			continue
		}
		out = append(out, engine)
	}
	// Map iteration order is random; the roll sequence must not be.
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RunArrivalEncounter forces an encounter check on zone arrival through an
// eventful crossing. The gate roll is bypassed; the table roll still runs.
func (s *PressureService) RunArrivalEncounter(state *models.SessionState) *DayResult {
	day := &DayResult{Date: state.InGameDate}
	s.encounterGate(state, day, true)
	return day
}

// runEngine checks the hard gates and run cap, rolls the randomizer and
// applies the matching outcome band. A failed gate is a silent skip.
func (s *PressureService) runEngine(state *models.SessionState, engine *models.ProceduralEngine, day *DayResult) EngineRun {
	run := EngineRun{Engine: engine.Name}

	if !engine.CanRunToday() {
		run.Skip = "run cap reached"
		return run
	}
	for _, gate := range engine.HardGates {
		if !s.gatePasses(state, gate) {
			run.Skip = "hard gate failed"
			return run
		}
	}

	engine.RunsToday++
	engine.LastRunDate = state.InGameDate
	run.Ran = true

	if engine.Randomizer == "" {
		// Pure cadence effect: apply the first band unconditionally.
		if len(engine.Outcomes) > 0 {
			band := engine.Outcomes[0]
			run.Outcome = band.Outcome
			s.applyOutcome(state, engine, band)
		}
		return run
	}

	roll, err := s.roller.Roll(engine.Randomizer, "engine: "+engine.Name)
	if err != nil {
		s.logger.Warnf("engine %s randomizer %q: %v", engine.Name, engine.Randomizer, err)
		day.Warnings = append(day.Warnings, fmt.Sprintf("engine %s: bad randomizer", engine.Name))
		return run
	}
	run.Roll = roll.Total

	band, ok := engine.OutcomeFor(roll.Total)
	if !ok {
		run.Outcome = "no outcome band"
		return run
	}
	run.Outcome = band.Outcome
	s.applyOutcome(state, engine, band)
	return run
}

func (s *PressureService) gatePasses(state *models.SessionState, gate models.HardGate) bool {
	if gate.Clock != "" {
		clock := state.GetClock(gate.Clock)
		if clock == nil {
			return false
		}
		if gate.RequireFired && !clock.Fired() {
			return false
		}
		if clock.Progress < gate.MinProgress {
			return false
		}
	}
	if gate.FactKeyword != "" &&
		!keywordHit(gate.FactKeyword, factWordSet(state.DailyFacts)) {
		return false
	}
	return true
}

func (s *PressureService) applyOutcome(state *models.SessionState, engine *models.ProceduralEngine, band models.OutcomeBand) {
	if band.Outcome != "" {
		state.AddFact(fmt.Sprintf("Engine %s: %s", engine.Name, band.Outcome))
	}
	for _, effect := range band.Effects {
		target := state.GetClock(effect.Clock)
		if target == nil {
			s.logger.Warnf("engine %s effect targets unknown clock %q", engine.Name, effect.Clock)
			continue
		}
		if effect.Reduce {
			target.Reduce(effect.Amount)
			state.AppendLog("engine_effect", fmt.Sprintf("%s reduced %s to %d/%d",
				engine.Name, target.Name, target.Progress, target.MaxProgress))
			continue
		}
		if !target.CanAdvance() {
			continue
		}
		adv := target.Advance(effect.Amount, "engine: "+engine.Name, state.InGameDate, state.SessionID)
		state.AddFact(fmt.Sprintf("Engine %s advanced %s: %d/%d",
			engine.Name, target.Name, adv.New, adv.Max))
		if adv.Fired {
			state.AddFact(fmt.Sprintf("TRIGGER FIRED: %s - %s", target.Name, target.TriggerOnCompletion))
		}
	}
}

// advanceCadenceClocks ticks every cadence clock that has a cadence
// bullet set. A cadence clock without one is only audit-eligible.
func (s *PressureService) advanceCadenceClocks(state *models.SessionState) []models.ClockAdvance {
	var ticks []models.ClockAdvance
	for _, clock := range state.ClocksInOrder() {
		if !clock.IsCadence || clock.CadenceBullet == "" {
			continue
		}
		if !clock.CanAdvance() {
			continue
		}
		amount := clock.CadenceAmount
		if amount < 1 {
			amount = 1
		}
		adv := clock.Advance(amount, "cadence: "+clock.CadenceBullet, state.InGameDate, state.SessionID)
		state.AddFact(fmt.Sprintf("Cadence clock %s advanced: %d/%d", clock.Name, adv.New, adv.Max))
		if adv.Fired {
			state.AddFact(fmt.Sprintf("TRIGGER FIRED: %s - %s", clock.Name, clock.TriggerOnCompletion))
			state.AppendLog("clock_fired", fmt.Sprintf("%s fired at %d/%d", clock.Name, adv.New, adv.Max))
		}
		ticks = append(ticks, adv)
	}
	return ticks
}

// Reaction roll bands on 2d6.
func reactionBand(total int) string {
	switch {
	case total <= 2:
		return "hostile"
	case total <= 5:
		return "unfriendly"
	case total <= 8:
		return "neutral"
	case total <= 11:
		return "friendly"
	default:
		return "enthusiastic"
	}
}

// encounterGate rolls 1d6 against the intensity threshold and, on a
// pass, rolls the zone's encounter table and a 2d6 reaction. forced
// bypasses the gate roll for eventful crossings.
func (s *PressureService) encounterGate(state *models.SessionState, day *DayResult, forced bool) {
	if !forced {
		gate := s.roller.IntensityGate(state.CampaignIntensity, "encounter gate")
		if !gate.Passed {
			return
		}
	}

	el, ok := state.EncounterLists[state.PCZone]
	if !ok || el == nil {
		for zone, list := range state.EncounterLists {
			if strings.EqualFold(zone, state.PCZone) {
				el = list
				break
			}
		}
	}
	if el == nil {
		day.Warnings = append(day.Warnings, fmt.Sprintf("no encounter list for zone %s", state.PCZone))
		return
	}

	roll, err := s.roller.Roll(el.Randomizer, "encounter table: "+el.Zone)
	if err != nil {
		day.Warnings = append(day.Warnings, fmt.Sprintf("encounter list %s: bad randomizer", el.Zone))
		return
	}

	var entry *models.EncounterEntry
	for i := range el.Entries {
		if matchesRange(roll.Total, el.Entries[i].Range) {
			entry = &el.Entries[i]
			break
		}
	}
	if entry == nil {
		day.Warnings = append(day.Warnings,
			fmt.Sprintf("no entry for roll %d in %s table", roll.Total, el.Zone))
		return
	}

	reactionRoll, err := s.roller.Roll("2d6", "reaction roll")
	if err != nil {
		day.Warnings = append(day.Warnings, "reaction roll failed")
		return
	}
	band := reactionBand(reactionRoll.Total)
	state.AddFact(fmt.Sprintf("Reaction roll: 2d6=%d -> %s", reactionRoll.Total, band))
	state.AddFact(fmt.Sprintf("Encounter in %s: %s", state.PCZone, entry.Prompt))

	day.Requests = append(day.Requests, &models.CreativeRequest{
		Type: models.RequestNarrEncounter,
		Context: map[string]any{
			"zone":       state.PCZone,
			"prompt":     entry.Prompt,
			"anchor_cue": entry.AnchorCue,
			"reaction":   band,
			"roll":       roll.Total,
		},
	})

	// A hostile reaction schedules combat; the orchestrator picks the
	// prompt up when the fight is opened.
	if band == "hostile" {
		state.PendingCombat = map[string]any{
			"zone":   state.PCZone,
			"prompt": entry.Prompt,
		}
	}
}

// npcActionGate rolls whether offscreen NPCs act today and how many.
func (s *PressureService) npcActionGate(state *models.SessionState, day *DayResult) {
	gate := s.roller.IntensityGate(state.CampaignIntensity, "npc action gate")
	if !gate.Passed {
		return
	}

	count, all, err := s.roller.ActionCount(state.CampaignIntensity)
	if err != nil {
		day.Warnings = append(day.Warnings, "npc action count roll failed")
		return
	}

	context := map[string]any{"intensity": state.CampaignIntensity}
	if all {
		context["scope"] = "all"
		state.AddFact("NPC actions triggered: every eligible NPC acts")
	} else {
		context["count"] = count
		state.AddFact(fmt.Sprintf("NPC actions triggered: %d NPCs act", count))
	}

	day.Requests = append(day.Requests, &models.CreativeRequest{
		Type:    models.RequestNPCAction,
		Context: context,
	})
}

// zoneGapCheck emits forge requests for the PC's zone when it is
// under-populated or has no encounter list. A zone with an encounter
// list never produces an encounter-list request.
func (s *PressureService) zoneGapCheck(state *models.SessionState, day *DayResult) {
	zone := state.GetZone(state.PCZone)
	if zone == nil {
		return
	}

	active := state.ActiveNPCsInZone(zone.Name)
	if active <= zoneNPCFloor {
		day.Requests = append(day.Requests, &models.CreativeRequest{
			Type: models.RequestNPCForge,
			Context: map[string]any{
				"zone":    zone.Name,
				"deficit": zoneNPCFloor + 1 - active,
			},
		})
	}

	if !s.hasEncounterList(state, zone.Name) {
		day.Requests = append(day.Requests, &models.CreativeRequest{
			Type:    models.RequestELForge,
			Context: map[string]any{"zone": zone.Name},
		})
	}
}

func (s *PressureService) hasEncounterList(state *models.SessionState, zone string) bool {
	if _, ok := state.EncounterLists[zone]; ok {
		return true
	}
	for name := range state.EncounterLists {
		if strings.EqualFold(name, zone) {
			return true
		}
	}
	return false
}

// matchesRange checks whether a roll total falls in a band string such
// as "1", "1-2" or "5-6".
func matchesRange(total int, rangeStr string) bool {
	rangeStr = strings.TrimSpace(rangeStr)
	if idx := strings.Index(rangeStr, "-"); idx > 0 {
		low, err1 := strconv.Atoi(strings.TrimSpace(rangeStr[:idx]))
		high, err2 := strconv.Atoi(strings.TrimSpace(rangeStr[idx+1:]))
		if err1 != nil || err2 != nil {
			return false
		}
		return total >= low && total <= high
	}
	n, err := strconv.Atoi(rangeStr)
	if err != nil {
		return false
	}
	return total == n
}
