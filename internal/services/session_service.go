// internal/services/session_service.go
package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Corphon/SoloRealmMCP/internal/errors"
	"github.com/Corphon/SoloRealmMCP/internal/models"
	"github.com/Corphon/SoloRealmMCP/internal/storage"
	"github.com/Corphon/SoloRealmMCP/internal/storage/auditdb"
	"github.com/Corphon/SoloRealmMCP/internal/utils"
)

// A rest may cover at most this many days in one call.
const maxRestDays = 30

// Clocks at or past this fill ratio show in the danger band.
const dangerBandRatio = 0.75

// EventEmitter receives state events for live subscribers. A nil emitter
// is valid and drops everything.
type EventEmitter interface {
	Emit(event string, payload any)
}

// TravelResult is the outcome of a completed travel order.
type TravelResult struct {
	From         string           `json:"from"`
	To           string           `json:"to"`
	Days         []*DayResult     `json:"days"`
	Arrival      *DayResult       `json:"arrival,omitempty"`
	ZoneForge    *ZoneForgeResult `json:"zone_forge,omitempty"`
	Batch        *RequestBatch    `json:"batch,omitempty"`
	CombatQueued bool             `json:"combat_queued,omitempty"`
}

// RestResult is the outcome of resting in place.
type RestResult struct {
	Days  []*DayResult  `json:"days"`
	Batch *RequestBatch `json:"batch,omitempty"`
}

// CombatTurnResult is the outcome of one combat action.
type CombatTurnResult struct {
	Round *RoundResult  `json:"round"`
	Ended bool          `json:"ended"`
	Batch *RequestBatch `json:"batch,omitempty"`
}

// ClockView is the projection of one clock for the state snapshot.
type ClockView struct {
	Name      string  `json:"name"`
	Owner     string  `json:"owner,omitempty"`
	Progress  int     `json:"progress"`
	Max       int     `json:"max"`
	Status    string  `json:"status"`
	FillRatio float64 `json:"fill_ratio"`
	Danger    bool    `json:"danger,omitempty"`
}

// StateView is the read-only projection served to clients.
type StateView struct {
	SessionID   string                `json:"session_id"`
	Phase       string                `json:"phase"`
	Date        string                `json:"date"`
	Season      string                `json:"season"`
	Pressure    string                `json:"pressure,omitempty"`
	PCZone      string                `json:"pc_zone"`
	Intensity   string                `json:"intensity"`
	PC          *models.PCState       `json:"pc,omitempty"`
	Clocks      []ClockView           `json:"clocks"`
	DangerBand  []string              `json:"danger_band,omitempty"`
	Companions  []string              `json:"companions,omitempty"`
	Crossings   []TravelPlan          `json:"crossings,omitempty"`
	Combat      *models.CombatState   `json:"combat,omitempty"`
	PendingReqs int                   `json:"pending_requests"`
	Outstanding int                   `json:"outstanding_requests"`
	Flagged     []models.FlaggedBatch `json:"flagged,omitempty"`
	CallCount   int                   `json:"narrator_calls"`
	DailyFacts  []string              `json:"daily_facts,omitempty"`
}

// SessionService is the single entry point for play. It owns the live
// session state, serializes every mutation behind one mutex, and enforces
// the phase machine.
type SessionService struct {
	mu    sync.Mutex
	state *models.SessionState

	clocks   *ClockService
	pressure *PressureService
	combat   *CombatService
	creative *CreativeService
	forge    *ForgeService

	files    *storage.FileStorage
	saveDir  string
	recorder *auditdb.Recorder
	emitter  EventEmitter
	logger   *utils.Logger
}

// NewSessionService wires the orchestrator. recorder and emitter may be nil.
func NewSessionService(
	clocks *ClockService,
	pressure *PressureService,
	combat *CombatService,
	creative *CreativeService,
	forge *ForgeService,
	files *storage.FileStorage,
	saveDir string,
	recorder *auditdb.Recorder,
) *SessionService {
	return &SessionService{
		clocks:   clocks,
		pressure: pressure,
		combat:   combat,
		creative: creative,
		forge:    forge,
		files:    files,
		saveDir:  saveDir,
		recorder: recorder,
		logger:   utils.GetLogger(),
	}
}

// SetEmitter attaches a live event sink.
func (s *SessionService) SetEmitter(e EventEmitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitter = e
}

func (s *SessionService) emit(event string, payload any) {
	if s.emitter != nil {
		s.emitter.Emit(event, payload)
	}
}

func (s *SessionService) requireState() (*models.SessionState, error) {
	if s.state == nil {
		return nil, apperrors.NewValidationError("no session is loaded", nil)
	}
	return s.state, nil
}

func (s *SessionService) requirePhase(phases ...string) error {
	for _, p := range phases {
		if s.state.Phase == p {
			return nil
		}
	}
	return apperrors.NewConflictError(
		fmt.Sprintf("action not allowed in phase %q", s.state.Phase), nil)
}

func (s *SessionService) syncRecorder() {
	if s.recorder != nil && s.state != nil {
		s.recorder.SetContext(s.state.SessionID, s.state.InGameDate)
	}
}

// StartSession creates a fresh session and queues the opening narration.
func (s *SessionService) StartSession(id, startZone string) (*RequestBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = "session_" + time.Now().Format("20060102_150405")
	}
	state := models.NewSessionState(id)
	state.PCZone = startZone
	s.state = state
	s.syncRecorder()

	queue := state.Queue
	s.creative.Enqueue(queue, s.creative.NewRequest(queue, models.RequestNarrSessionStart, map[string]any{
		"date":   state.InGameDate,
		"season": state.Season,
		"zone":   state.PCZone,
	}))

	if startZone != "" {
		if _, err := s.forge.RunZoneForge(state); err != nil {
			s.logger.Warnf("zone forge on session start: %v", err)
		}
	}

	batch, err := s.creative.FlushBatch(queue)
	if err != nil {
		return nil, err
	}
	state.ResumePhase = models.PhaseIdle
	state.Phase = models.PhaseAwaitCreative
	state.AppendLog("session", "session started: "+id)
	s.checkpoint(state)
	s.emit("session_started", id)
	return batch, nil
}

// EndSession queues the session summary and flushes it.
func (s *SessionService) EndSession() (*RequestBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.requireState()
	if err != nil {
		return nil, err
	}
	if err := s.requirePhase(models.PhaseIdle); err != nil {
		return nil, err
	}

	queue := state.Queue
	s.creative.Enqueue(queue, s.creative.NewRequest(queue, models.RequestSessionSummary, map[string]any{
		"date":          state.InGameDate,
		"zone":          state.PCZone,
		"daily_facts":   state.DailyFacts,
		"narrator_calls": queue.CallCount,
	}))
	batch, err := s.creative.FlushBatch(queue)
	if err != nil {
		return nil, err
	}
	state.ResumePhase = models.PhaseIdle
	state.Phase = models.PhaseAwaitCreative
	state.AppendLog("session", "session summary requested")
	s.checkpoint(state)
	return batch, nil
}

// forgeRequestTypes are the request types a player may submit directly.
var forgeRequestTypes = map[string]bool{
	models.RequestNPCForge:      true,
	models.RequestELForge:       true,
	models.RequestFactionForge:  true,
	models.RequestAnchorForge:   true,
	models.RequestClockForge:    true,
	models.RequestEngineForge:   true,
	models.RequestUAForge:       true,
	models.RequestZoneExpansion: true,
}

// SubmitForge queues a player-requested forge of world content and flushes
// it to the narrator. Params are passed through as request context; the
// PC's zone is filled in unless params override it.
func (s *SessionService) SubmitForge(forgeType string, params map[string]any) (*RequestBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.requireState()
	if err != nil {
		return nil, err
	}
	if err := s.requirePhase(models.PhaseIdle); err != nil {
		return nil, err
	}

	forgeType = strings.ToUpper(strings.TrimSpace(forgeType))
	if !forgeRequestTypes[forgeType] {
		valid := make([]string, 0, len(forgeRequestTypes))
		for t := range forgeRequestTypes {
			valid = append(valid, t)
		}
		sort.Strings(valid)
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("unknown forge type %q, valid types: %s",
				forgeType, strings.Join(valid, ", ")), nil)
	}

	ctx := map[string]any{"zone": state.PCZone}
	for k, v := range params {
		ctx[k] = v
	}

	queue := state.Queue
	s.creative.Enqueue(queue, s.creative.NewRequest(queue, forgeType, ctx))
	batch, err := s.creative.FlushBatch(queue)
	if err != nil {
		return nil, err
	}
	state.ResumePhase = models.PhaseIdle
	state.Phase = models.PhaseAwaitCreative
	state.AppendLog("forge", "player forge request: "+forgeType)

	s.checkpoint(state)
	s.emit("forge_submitted", forgeType)
	return batch, nil
}

// SubmitPlayerInput queues the player's in-character intent for narration.
func (s *SessionService) SubmitPlayerInput(intent string) (*RequestBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.requireState()
	if err != nil {
		return nil, err
	}
	if err := s.requirePhase(models.PhaseIdle); err != nil {
		return nil, err
	}
	intent = strings.TrimSpace(intent)
	if intent == "" {
		return nil, apperrors.NewValidationError("player input is empty", nil)
	}

	var companions []string
	for _, c := range state.Companions() {
		companions = append(companions, c.Name)
	}
	sort.Strings(companions)

	var present []string
	for _, n := range state.NPCs {
		if n.Status == models.NPCStatusActive && !n.IsCompanion &&
			strings.EqualFold(n.Zone, state.PCZone) {
			present = append(present, n.Name)
		}
	}
	sort.Strings(present)

	queue := state.Queue
	s.creative.Enqueue(queue, s.creative.NewRequest(queue, models.RequestPlayerInput, map[string]any{
		"intent":       intent,
		"zone":         state.PCZone,
		"companions":   companions,
		"npcs_present": present,
		"date":         state.InGameDate,
		"season":       state.Season,
	}, "narrate the outcome of the player's action within the current scene",
		"do not advance time or resolve mechanical gates"))

	batch, err := s.creative.FlushBatch(queue)
	if err != nil {
		return nil, err
	}
	state.ResumePhase = models.PhaseIdle
	state.Phase = models.PhaseAwaitCreative
	state.AppendLog("player", intent)

	s.checkpoint(state)
	s.emit("player_input", intent)
	return batch, nil
}

// AskRumor queues a one-shot rumor for the PC's current zone.
func (s *SessionService) AskRumor() (*RequestBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.requireState()
	if err != nil {
		return nil, err
	}
	if err := s.requirePhase(models.PhaseIdle); err != nil {
		return nil, err
	}

	queue := state.Queue
	s.creative.Enqueue(queue, s.forge.BuildRumorRequest(state))
	batch, err := s.creative.FlushBatch(queue)
	if err != nil {
		return nil, err
	}
	state.ResumePhase = models.PhaseIdle
	state.Phase = models.PhaseAwaitCreative
	state.AppendLog("rumor", "rumor requested")

	s.checkpoint(state)
	s.emit("rumor_requested", nil)
	return batch, nil
}

// TravelTo moves the PC through a crossing, runs the elapsed days, forges
// the destination zone, and flushes the accumulated narrator batch.
func (s *SessionService) TravelTo(destination string) (*TravelResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.requireState()
	if err != nil {
		return nil, err
	}
	if err := s.requirePhase(models.PhaseIdle); err != nil {
		return nil, err
	}

	plan, err := s.forge.ValidateTravel(state, destination)
	if err != nil {
		return nil, err
	}

	// A zone change invalidates any combat scheduled in the old zone.
	state.PendingCombat = nil

	result := &TravelResult{From: state.PCZone, To: plan.Destination}
	state.Phase = models.PhaseTraveling
	s.forge.ExecuteTravel(state, plan)

	state.Phase = models.PhaseTimePressure
	days, err := s.pressure.RunDays(state, plan.Days)
	if err != nil {
		state.Phase = models.PhaseIdle
		return nil, err
	}
	result.Days = days
	s.syncRecorder()

	if plan.ForcedEncounter {
		result.Arrival = s.pressure.RunArrivalEncounter(state)
	}

	forge, err := s.forge.RunZoneForge(state)
	if err != nil {
		s.logger.Warnf("zone forge after travel: %v", err)
	} else {
		result.ZoneForge = forge
	}

	queue := state.Queue
	for _, day := range days {
		s.adoptRequests(queue, day.Requests)
	}
	if result.Arrival != nil {
		s.adoptRequests(queue, result.Arrival.Requests)
	}
	s.creative.Enqueue(queue, s.creative.NewRequest(queue, models.RequestNarrArrival, map[string]any{
		"from":        result.From,
		"to":          result.To,
		"days":        plan.Days,
		"crossing":    plan.Tag,
		"daily_facts": state.DailyFacts,
	}))

	batch, err := s.creative.FlushBatch(queue)
	if err != nil {
		return nil, err
	}
	result.Batch = batch
	state.ResumePhase = models.PhaseIdle
	state.Phase = models.PhaseAwaitCreative

	s.checkpoint(state)
	s.emit("travel_complete", result)
	return result, nil
}

// RestDays passes days in place, then flushes whatever the cycle queued
// plus a time-passage narration.
func (s *SessionService) RestDays(days int) (*RestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.requireState()
	if err != nil {
		return nil, err
	}
	if err := s.requirePhase(models.PhaseIdle); err != nil {
		return nil, err
	}
	if days < 1 || days > maxRestDays {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("rest length must be between 1 and %d days", maxRestDays), nil)
	}

	state.Phase = models.PhaseTimePressure
	dayResults, err := s.pressure.RunDays(state, days)
	if err != nil {
		state.Phase = models.PhaseIdle
		return nil, err
	}
	s.syncRecorder()

	queue := state.Queue
	for _, day := range dayResults {
		s.adoptRequests(queue, day.Requests)
	}
	s.creative.Enqueue(queue, s.creative.NewRequest(queue, models.RequestNarrTimePassage, map[string]any{
		"days":        days,
		"date":        state.InGameDate,
		"zone":        state.PCZone,
		"daily_facts": state.DailyFacts,
	}))

	batch, err := s.creative.FlushBatch(queue)
	if err != nil {
		return nil, err
	}
	state.ResumePhase = models.PhaseIdle
	state.Phase = models.PhaseAwaitCreative

	s.checkpoint(state)
	s.emit("rest_complete", days)
	return &RestResult{Days: dayResults, Batch: batch}, nil
}

// StartCombat opens an encounter against a living NPC in the PC's zone.
func (s *SessionService) StartCombat(targetName string) (*models.CombatState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.requireState()
	if err != nil {
		return nil, err
	}
	if err := s.requirePhase(models.PhaseIdle); err != nil {
		return nil, err
	}

	npc := state.GetNPC(targetName)
	if npc == nil {
		return nil, apperrors.NewNotFoundError(
			fmt.Sprintf("NPC %q does not exist", targetName), nil)
	}
	if npc.Status == models.NPCStatusDead {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("%s is already dead", npc.Name), nil)
	}
	if npc.IsCompanion && npc.WithPC {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("%s is travelling with the PC", npc.Name), nil)
	}
	if !strings.EqualFold(npc.Zone, state.PCZone) {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("%s is in %s, not %s", npc.Name, npc.Zone, state.PCZone), nil)
	}

	combat, err := s.combat.InitCombat(state, s.combat.FoesFromNPC(npc), "Fight with "+npc.Name)
	if err != nil {
		return nil, err
	}
	state.Combat = combat
	state.Phase = models.PhaseInCombat
	state.AppendLog("combat", "combat started against "+npc.Name)
	s.checkpoint(state)
	s.emit("combat_started", combat)
	return combat, nil
}

// StartEncounterCombat opens an encounter from a foe spec string, used
// when a narrated encounter turns violent.
func (s *SessionService) StartEncounterCombat(foeName, foeSpec, prompt string) (*models.CombatState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.requireState()
	if err != nil {
		return nil, err
	}
	if err := s.requirePhase(models.PhaseIdle); err != nil {
		return nil, err
	}

	// A hostile encounter scheduled by the day cycle supplies the prompt
	// when the caller does not.
	if prompt == "" && state.PendingCombat != nil {
		if p, ok := state.PendingCombat["prompt"].(string); ok {
			prompt = p
		}
	}
	state.PendingCombat = nil

	foes := s.combat.ParseFoeSpec(foeName, foeSpec, prompt, nil)
	combat, err := s.combat.InitCombat(state, foes, prompt)
	if err != nil {
		return nil, err
	}
	state.Combat = combat
	state.Phase = models.PhaseInCombat
	state.AppendLog("combat", "encounter combat started: "+truncate(prompt, 60))
	s.checkpoint(state)
	s.emit("combat_started", combat)
	return combat, nil
}

// CombatAction resolves one combat round. action is "attack" or "flee".
// When the fight ends the outcome is written back and exactly one combat
// narration request goes out.
func (s *SessionService) CombatAction(action string) (*CombatTurnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.requireState()
	if err != nil {
		return nil, err
	}
	if err := s.requirePhase(models.PhaseInCombat); err != nil {
		return nil, err
	}
	if state.Combat == nil {
		state.Phase = models.PhaseIdle
		return nil, apperrors.NewDataError("combat phase without combat state", nil)
	}

	var round *RoundResult
	switch strings.ToLower(action) {
	case "attack":
		round, err = s.combat.ResolveAttackRound(state.Combat)
	case "flee":
		round, err = s.combat.ResolveFleeRound(state.Combat)
	default:
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("unknown combat action %q", action), nil)
	}
	if err != nil {
		return nil, err
	}

	result := &CombatTurnResult{Round: round, Ended: state.Combat.Ended}
	if !state.Combat.Ended {
		s.checkpoint(state)
		s.emit("combat_round", round)
		return result, nil
	}

	combat := state.Combat
	s.combat.ApplyResults(state, combat)
	if s.recorder != nil {
		s.recorder.RecordAdjudication("combat", fmt.Sprintf("%s after %d round(s) in %s",
			combat.EndReason, combat.Round, state.PCZone))
	}

	queue := state.Queue
	s.creative.Enqueue(queue, s.creative.NewRequest(queue, models.RequestNarrCombatEnd, map[string]any{
		"end_reason": combat.EndReason,
		"rounds":     combat.Round,
		"zone":       state.PCZone,
		"log_tail":   logTail(combat.Log, 15),
	}))
	batch, err := s.creative.FlushBatch(queue)
	if err != nil {
		return nil, err
	}
	result.Batch = batch

	state.Combat = nil
	state.ResumePhase = models.PhaseIdle
	state.Phase = models.PhaseAwaitCreative
	s.checkpoint(state)
	s.emit("combat_ended", combat.EndReason)
	return result, nil
}

// SubmitResponse feeds a narrator answer into the outstanding batch,
// applies its state changes, and resumes the interrupted phase.
func (s *SessionService) SubmitResponse(raw string) ([]AppliedChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.requireState()
	if err != nil {
		return nil, err
	}
	if err := s.requirePhase(models.PhaseAwaitCreative); err != nil {
		return nil, err
	}

	_, err = s.creative.SubmitResponse(state, raw)
	if err != nil {
		if !state.Queue.HasOutstanding() {
			// Batch was flagged as terminal; play resumes anyway.
			s.resumePhase(state)
			s.checkpoint(state)
		}
		return nil, err
	}

	applied := s.creative.ApplyResponses(state)
	if s.recorder != nil {
		for _, a := range applied {
			if a.Applied {
				s.recorder.RecordAdjudication("state_change", a.Type+": "+a.Detail)
			}
		}
	}

	s.resumePhase(state)
	s.checkpoint(state)
	s.emit("responses_applied", len(applied))
	return applied, nil
}

func (s *SessionService) resumePhase(state *models.SessionState) {
	next := state.ResumePhase
	if next == "" {
		next = models.PhaseIdle
	}
	state.Phase = next
	state.ResumePhase = ""
}

// Save writes the session under a canonical save name.
func (s *SessionService) Save(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.requireState()
	if err != nil {
		return "", err
	}
	canonical := storage.CanonicalSaveName(name)
	state.LastUpdated = time.Now()
	if err := s.files.SaveJSONFile(s.saveDir, canonical+".json", state); err != nil {
		return "", apperrors.NewDataError("failed to write save file", err)
	}
	state.AppendLog("save", "saved as "+canonical)
	return canonical, nil
}

// Load replaces the live session with a saved one.
func (s *SessionService) Load(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	canonical := storage.CanonicalSaveName(name)
	var state models.SessionState
	if err := s.files.LoadJSONFile(s.saveDir, canonical+".json", &state); err != nil {
		return apperrors.NewNotFoundError(
			fmt.Sprintf("save %q not found", canonical), err)
	}
	state.Normalize()
	s.state = &state
	s.syncRecorder()
	s.logger.Infof("session %s loaded from save %s", state.SessionID, canonical)
	s.emit("session_loaded", state.SessionID)
	return nil
}

// DeleteSave removes a save file. The live session is untouched.
func (s *SessionService) DeleteSave(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	canonical := storage.CanonicalSaveName(name)
	if !s.files.FileExists(s.saveDir, canonical+".json") {
		return apperrors.NewNotFoundError(
			fmt.Sprintf("save %q not found", canonical), nil)
	}
	if err := s.files.DeleteFile(s.saveDir, canonical+".json"); err != nil {
		return apperrors.NewDataError("failed to delete save file", err)
	}
	s.logger.Infof("save %s deleted", canonical)
	return nil
}

// ListSaves enumerates save files, newest first.
func (s *SessionService) ListSaves() ([]storage.SaveInfo, error) {
	return s.files.ListSaves(s.saveDir)
}

// State returns the live aggregate for handlers that only read.
func (s *SessionService) State() *models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OutstandingBatch returns the batch waiting on a narrator answer, or a
// not-found error when nothing is outstanding.
func (s *SessionService) OutstandingBatch() (*RequestBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.requireState()
	if err != nil {
		return nil, err
	}
	if len(state.Queue.Outstanding) == 0 {
		return nil, apperrors.NewNotFoundError("no outstanding batch", nil)
	}
	return &RequestBatch{
		BatchID:      state.Queue.BatchID,
		RequestCount: len(state.Queue.Outstanding),
		Requests:     state.Queue.Outstanding,
	}, nil
}

// View builds the client-facing projection: clocks sorted by fill ratio
// with the danger band called out, travel options, and queue status.
func (s *SessionService) View() (*StateView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.requireState()
	if err != nil {
		return nil, err
	}

	view := &StateView{
		SessionID:   state.SessionID,
		Phase:       state.Phase,
		Date:        state.InGameDate,
		Season:      state.Season,
		Pressure:    state.SeasonalPressure,
		PCZone:      state.PCZone,
		Intensity:   state.CampaignIntensity,
		PC:          state.PC,
		PendingReqs: len(state.Queue.Pending),
		Outstanding: len(state.Queue.Outstanding),
		Flagged:     state.Queue.Flagged,
		CallCount:   state.Queue.CallCount,
		DailyFacts:  state.DailyFacts,
		Combat:      state.Combat,
		Crossings:   s.forge.CrossingOptions(state),
	}

	for _, c := range state.ClocksInOrder() {
		cv := ClockView{
			Name:      c.Name,
			Owner:     c.Owner,
			Progress:  c.Progress,
			Max:       c.MaxProgress,
			Status:    c.Status,
			FillRatio: c.FillRatio(),
		}
		cv.Danger = c.Status == models.ClockStatusActive && cv.FillRatio >= dangerBandRatio
		if cv.Danger {
			view.DangerBand = append(view.DangerBand, c.Name)
		}
		view.Clocks = append(view.Clocks, cv)
	}
	sort.SliceStable(view.Clocks, func(i, j int) bool {
		return view.Clocks[i].FillRatio > view.Clocks[j].FillRatio
	})

	for _, npc := range state.Companions() {
		view.Companions = append(view.Companions, npc.Name)
	}
	sort.Strings(view.Companions)

	return view, nil
}

// adoptRequests assigns ids to cycle-generated requests and queues them.
func (s *SessionService) adoptRequests(queue *models.CreativeQueue, reqs []*models.CreativeRequest) {
	for _, req := range reqs {
		if req.ID == "" {
			queue.NextID++
			req.ID = fmt.Sprintf("REQ-%03d", queue.NextID)
		}
		s.creative.Enqueue(queue, req)
	}
}

// checkpoint writes the autosave. A failed checkpoint logs and moves on.
func (s *SessionService) checkpoint(state *models.SessionState) {
	state.LastUpdated = time.Now()
	if err := s.files.SaveJSONFile(s.saveDir, "autosave.json", state); err != nil {
		s.logger.Warnf("autosave failed: %v", err)
	}
}

func logTail(log []string, n int) []string {
	if len(log) <= n {
		return log
	}
	return log[len(log)-n:]
}
