// internal/services/creative_service.go
package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	apperrors "github.com/Corphon/SoloRealmMCP/internal/errors"
	"github.com/Corphon/SoloRealmMCP/internal/models"
	"github.com/Corphon/SoloRealmMCP/internal/utils"
)

// Soft budget of narrator calls per session. Crossing it never blocks play,
// it only surfaces a warning.
const narratorCallBudget = 25

// validChangeTypes is the closed set of mutations a narrator response may
// declare. Anything else is skipped with a warning.
var validChangeTypes = map[string]bool{
	models.ChangeClockAdvance:    true,
	models.ChangeClockReduce:     true,
	models.ChangeFact:            true,
	models.ChangeNPCUpdate:       true,
	models.ChangeNPCCreate:       true,
	models.ChangeClockCreate:     true,
	models.ChangeELCreate:        true,
	models.ChangeFactionCreate:   true,
	models.ChangeFactionUpdate:   true,
	models.ChangeCompanionCreate: true,
	models.ChangeEngineCreate:    true,
	models.ChangeUACreate:        true,
	models.ChangeDiscoveryCreate: true,
	models.ChangeThreadCreate:    true,
	models.ChangeZoneCreate:      true,
	models.ChangeZoneUpdate:      true,
	models.ChangeSessionMeta:     true,
}

// ResponseBatch is the wire shape a narrator answer arrives in.
type ResponseBatch struct {
	BatchID   string                     `json:"batch_id,omitempty"`
	Responses []*models.CreativeResponse `json:"responses"`
}

// RequestBatch is the wire shape a flushed batch goes out in.
type RequestBatch struct {
	BatchID      string                    `json:"batch_id"`
	RequestCount int                       `json:"request_count"`
	Requests     []*models.CreativeRequest `json:"requests"`
}

// AppliedChange is the audit record of one state-change attempt.
type AppliedChange struct {
	RequestID string `json:"request_id"`
	Type      string `json:"type"`
	Applied   bool   `json:"applied"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CreativeService owns the narrator round trip: building requests, batching
// them out, parsing answers, and committing the declared state changes.
type CreativeService struct {
	clocks *ClockService
	logger *utils.Logger
}

// NewCreativeService creates the creative bridge service.
func NewCreativeService(clocks *ClockService) *CreativeService {
	return &CreativeService{clocks: clocks, logger: utils.GetLogger()}
}

// NewRequest builds a request with the next sequential id.
func (s *CreativeService) NewRequest(queue *models.CreativeQueue, reqType string, context map[string]any, constraints ...string) *models.CreativeRequest {
	queue.NextID++
	return &models.CreativeRequest{
		ID:          fmt.Sprintf("REQ-%03d", queue.NextID),
		Type:        reqType,
		Context:     context,
		Constraints: constraints,
	}
}

// Enqueue appends requests to the pending queue.
func (s *CreativeService) Enqueue(queue *models.CreativeQueue, reqs ...*models.CreativeRequest) {
	queue.Pending = append(queue.Pending, reqs...)
}

// FlushBatch moves every pending request into the outstanding batch and
// returns the serialized payload. At most one batch may be outstanding;
// flushing while one is open is a conflict.
func (s *CreativeService) FlushBatch(queue *models.CreativeQueue) (*RequestBatch, error) {
	if queue.HasOutstanding() {
		return nil, apperrors.NewConflictError(
			fmt.Sprintf("batch %s is still awaiting a response", queue.BatchID), nil)
	}
	if len(queue.Pending) == 0 {
		return nil, apperrors.NewValidationError("no pending creative requests", nil)
	}

	queue.Outstanding = queue.Pending
	queue.Pending = nil
	queue.BatchID = time.Now().Format("20060102_150405")
	queue.RetryUsed = false
	queue.CallCount++

	if queue.CallCount > narratorCallBudget {
		s.logger.Warnf("narrator call budget exceeded: %d calls this session", queue.CallCount)
	}

	return &RequestBatch{
		BatchID:      queue.BatchID,
		RequestCount: len(queue.Outstanding),
		Requests:     queue.Outstanding,
	}, nil
}

// SubmitResponse parses a narrator answer for the outstanding batch. A
// parse failure allows one retry; the second failure flags the batch as
// terminal and clears it so play can continue.
func (s *CreativeService) SubmitResponse(state *models.SessionState, raw string) ([]*models.CreativeResponse, error) {
	queue := state.Queue
	if !queue.HasOutstanding() {
		return nil, apperrors.NewValidationError("no outstanding batch to answer", nil)
	}

	batch, err := parseResponseBatch(raw)
	if err != nil {
		if !queue.RetryUsed {
			queue.RetryUsed = true
			return nil, apperrors.NewNarratorError(
				"response was not parseable, one retry remains", err)
		}
		flagged := models.FlaggedBatch{
			BatchID: queue.BatchID,
			Reason:  fmt.Sprintf("unparseable after retry: %v", err),
			Date:    state.InGameDate,
		}
		for _, r := range queue.Outstanding {
			flagged.Requests = append(flagged.Requests, r.ID+" "+r.Type)
		}
		queue.Flagged = append(queue.Flagged, flagged)
		queue.Outstanding = nil
		queue.RetryUsed = false
		state.AppendLog("batch_flagged", fmt.Sprintf("batch %s flagged: %s", flagged.BatchID, flagged.Reason))
		return nil, apperrors.NewNarratorError(
			fmt.Sprintf("batch %s flagged after second parse failure", flagged.BatchID), err)
	}

	known := make(map[string]string, len(queue.Outstanding))
	for _, r := range queue.Outstanding {
		known[r.ID] = r.Type
	}
	for _, resp := range batch.Responses {
		if t, ok := known[resp.ID]; ok && resp.Type == "" {
			resp.Type = t
		} else if !ok {
			s.logger.Warnf("response id %q matches no outstanding request", resp.ID)
		}
	}

	queue.Completed = batch.Responses
	queue.Outstanding = nil
	queue.RetryUsed = false
	state.AppendLog("batch_answered", fmt.Sprintf("batch %s: %d response(s)", queue.BatchID, len(batch.Responses)))
	return batch.Responses, nil
}

// ApplyResponses commits every completed response's state changes. Each
// change is validated independently; an invalid change is skipped while its
// siblings still apply.
func (s *CreativeService) ApplyResponses(state *models.SessionState) []AppliedChange {
	queue := state.Queue
	var log []AppliedChange

	for _, resp := range queue.Completed {
		// An anchor entry needs a companion discovery, thread or clock in
		// the same response; an unpaired one is dropped.
		if hasChange(resp, models.ChangeUACreate) &&
			!hasChange(resp, models.ChangeDiscoveryCreate) &&
			!hasChange(resp, models.ChangeThreadCreate) &&
			!hasChange(resp, models.ChangeClockCreate) {
			log = append(log, AppliedChange{
				RequestID: resp.ID, Type: models.ChangeUACreate,
				Error: "anchor entry without a paired discovery, thread or clock",
			})
			kept := resp.StateChanges[:0]
			for _, sc := range resp.StateChanges {
				if sc.Type != models.ChangeUACreate {
					kept = append(kept, sc)
				}
			}
			resp.StateChanges = kept
		}

		for _, change := range resp.StateChanges {
			entry := s.applyChange(state, resp.ID, change)
			if entry.Error != "" {
				s.logger.Warnf("state change %s from %s skipped: %s", change.Type, resp.ID, entry.Error)
			}
			log = append(log, entry)
		}
	}

	queue.Completed = nil
	return log
}

func (s *CreativeService) applyChange(state *models.SessionState, reqID string, change models.StateChange) AppliedChange {
	entry := AppliedChange{RequestID: reqID, Type: change.Type}
	if !validChangeTypes[change.Type] {
		entry.Error = fmt.Sprintf("unknown state change type %q", change.Type)
		return entry
	}
	p := payload(change.Payload)

	switch change.Type {
	case models.ChangeClockAdvance:
		adv, err := s.clocks.Advance(state, p.str("clock"), p.intOr("amount", 1),
			fmt.Sprintf("narrator (%s): %s", reqID, p.str("reason")))
		if err != nil {
			entry.Error = err.Error()
			return entry
		}
		entry.Applied = true
		entry.Detail = fmt.Sprintf("%s %d -> %d", p.str("clock"), adv.Old, adv.New)

	case models.ChangeClockReduce:
		newProg, err := s.clocks.Reduce(state, p.str("clock"), p.intOr("amount", 1),
			fmt.Sprintf("narrator (%s): %s", reqID, p.str("reason")))
		if err != nil {
			entry.Error = err.Error()
			return entry
		}
		entry.Applied = true
		entry.Detail = fmt.Sprintf("%s reduced to %d", p.str("clock"), newProg)

	case models.ChangeFact:
		text := p.str("text")
		if text == "" {
			entry.Error = "fact with empty text"
			return entry
		}
		state.AddFact(text)
		entry.Applied, entry.Detail = true, text

	case models.ChangeNPCUpdate:
		name := p.str("name")
		if name == "" {
			name = p.str("npc")
		}
		npc := state.GetNPC(name)
		if npc == nil {
			entry.Error = fmt.Sprintf("NPC %q not found", name)
			return entry
		}
		if v, ok := change.Payload["zone"].(string); ok {
			npc.Zone = v
		}
		if v, ok := change.Payload["status"].(string); ok {
			npc.Status = v
		}
		if v, ok := change.Payload["next_action"].(string); ok {
			npc.NextAction = v
		}
		if v, ok := change.Payload["objective"].(string); ok {
			npc.Objective = v
		}
		entry.Applied, entry.Detail = true, name

	case models.ChangeNPCCreate:
		entry = s.applyNPCCreate(state, entry, p)

	case models.ChangeClockCreate:
		entry = s.applyClockCreate(state, entry, p)

	case models.ChangeELCreate:
		entry = s.applyELCreate(state, entry, p)

	case models.ChangeFactionCreate:
		name := p.str("name")
		if name == "" {
			entry.Error = "faction without a name"
			return entry
		}
		if _, exists := state.Factions[name]; exists {
			entry.Error = fmt.Sprintf("faction %q already exists", name)
			return entry
		}
		status := p.str("status")
		if status == "" {
			status = "active"
		}
		state.Factions[name] = &models.Faction{
			Name:           name,
			Status:         status,
			Trend:          p.str("trend"),
			Disposition:    p.str("disposition"),
			LastAction:     p.str("last_action"),
			Notes:          p.str("notes"),
			CreatedSession: state.SessionID,
		}
		entry.Applied, entry.Detail = true, name

	case models.ChangeFactionUpdate:
		name := p.str("name")
		fac, exists := state.Factions[name]
		if !exists {
			entry.Error = fmt.Sprintf("faction %q not found", name)
			return entry
		}
		if v, ok := change.Payload["status"].(string); ok {
			fac.Status = v
		}
		if v, ok := change.Payload["trend"].(string); ok {
			fac.Trend = v
		}
		if v, ok := change.Payload["disposition"].(string); ok {
			fac.Disposition = v
		}
		if v, ok := change.Payload["last_action"].(string); ok {
			fac.LastAction = v
		}
		if v, ok := change.Payload["notes"].(string); ok {
			fac.Notes = v
		}
		if h := p.str("history_entry"); h != "" {
			fac.History = append(fac.History, fmt.Sprintf("[%s] %s", state.InGameDate, h))
		}
		entry.Applied, entry.Detail = true, name

	case models.ChangeCompanionCreate:
		name := p.str("npc_name")
		if name == "" {
			entry.Error = "companion without an npc_name"
			return entry
		}
		npc := state.GetNPC(name)
		if npc == nil {
			entry.Error = fmt.Sprintf("NPC %q not found", name)
			return entry
		}
		npc.IsCompanion = true
		npc.WithPC = true
		entry.Applied, entry.Detail = true, name

	case models.ChangeEngineCreate:
		entry = s.applyEngineCreate(state, entry, p)

	case models.ChangeDiscoveryCreate:
		id := p.str("id")
		if id == "" {
			id = fmt.Sprintf("DISC-%s-%02d", state.SessionID, len(state.Discoveries)+1)
		}
		state.Discoveries = append(state.Discoveries, models.Discovery{
			ID:          id,
			Zone:        p.str("zone"),
			AnchorCode:  p.str("anchor_code"),
			Reliability: p.strOr("reliability", "uncertain"),
			Source:      p.str("source"),
			Info:        p.str("info"),
			Session:     state.SessionID,
		})
		entry.Applied, entry.Detail = true, id

	case models.ChangeThreadCreate:
		id := p.str("id")
		if id == "" {
			id = fmt.Sprintf("THR-%s-%02d", state.SessionID, len(state.Threads)+1)
		}
		state.Threads = append(state.Threads, models.UnresolvedThread{
			ID:          id,
			Zone:        p.str("zone"),
			Description: p.str("description"),
		})
		entry.Applied, entry.Detail = true, id

	case models.ChangeUACreate:
		id := p.str("ua_id")
		if id == "" {
			entry.Error = "anchor entry without an id"
			return entry
		}
		for _, a := range state.Anchors {
			if a.ID == id {
				entry.Error = fmt.Sprintf("anchor %q already exists", id)
				return entry
			}
		}
		status := p.strOr("status", "active")
		state.Anchors = append(state.Anchors, models.AnchorEntry{
			ID:          id,
			Zone:        p.str("zone"),
			Status:      strings.ToLower(status),
			Description: p.str("description"),
		})
		entry.Applied, entry.Detail = true, id

	case models.ChangeZoneCreate:
		entry = s.applyZoneCreate(state, entry, p)

	case models.ChangeZoneUpdate:
		name := p.str("name")
		zone := state.GetZone(name)
		if zone == nil {
			entry.Error = fmt.Sprintf("zone %q not found", name)
			return entry
		}
		if v, ok := change.Payload["controlling_faction"].(string); ok {
			zone.ControllingFaction = v
		}
		if v, ok := change.Payload["description"].(string); ok {
			zone.Description = v
		}
		if v, ok := change.Payload["threat_level"].(string); ok {
			zone.ThreatLevel = v
		}
		if v, ok := change.Payload["situation_summary"].(string); ok {
			zone.SituationSummary = v
		}
		if v, ok := change.Payload["intensity"].(string); ok {
			zone.Intensity = v
		}
		for _, cp := range p.crossingPoints("add_crossing_points") {
			if !hasCrossing(zone, cp.Destination) {
				zone.CrossingPoints = append(zone.CrossingPoints, cp)
			}
		}
		entry.Applied, entry.Detail = true, name

	case models.ChangeSessionMeta:
		if state.SessionMeta == nil {
			state.SessionMeta = make(map[string]any)
		}
		for _, key := range []string{"tone_shift", "pacing", "next_session_pressure"} {
			if v, ok := change.Payload[key]; ok {
				state.SessionMeta[key] = v
			}
		}
		entry.Applied = true
	}
	return entry
}

func (s *CreativeService) applyNPCCreate(state *models.SessionState, entry AppliedChange, p payload) AppliedChange {
	name := p.str("name")
	if name == "" {
		entry.Error = "NPC without a name"
		return entry
	}
	if state.GetNPC(name) != nil {
		entry.Error = fmt.Sprintf("NPC %q already exists", name)
		return entry
	}
	zoneName := p.str("zone")
	if zoneName != "" && state.GetZone(zoneName) == nil {
		entry.Error = fmt.Sprintf("zone %q not found", zoneName)
		return entry
	}
	stats := models.StatBlock{
		AC:     p.intOr("ac", 0),
		HD:     p.intOr("hd", 0),
		HP:     p.intOr("hp", 0),
		HPMax:  p.intOr("hp_max", p.intOr("hp", 0)),
		Attack: p.intOr("attack", 0),
		Damage: p.str("damage"),
		Morale: p.intOr("morale", 0),
	}
	state.NPCs[name] = &models.NPC{
		Name:           name,
		Zone:           zoneName,
		Status:         models.NPCStatusActive,
		Role:           p.str("role"),
		Trait:          p.str("trait"),
		Appearance:     p.str("appearance"),
		Faction:        p.str("faction"),
		Objective:      p.str("objective"),
		Knowledge:      p.str("knowledge"),
		NextAction:     p.str("next_action"),
		Tags:           p.strs("tags"),
		Stats:          stats,
		CreatedSession: state.SessionID,
	}
	entry.Applied = true
	entry.Detail = fmt.Sprintf("%s in %s", name, zoneName)
	return entry
}

func (s *CreativeService) applyClockCreate(state *models.SessionState, entry AppliedChange, p payload) AppliedChange {
	name := p.str("name")
	if name == "" {
		entry.Error = "clock without a name"
		return entry
	}
	if state.GetClock(name) != nil {
		entry.Error = fmt.Sprintf("clock %q already exists", name)
		return entry
	}
	maxProg := p.intOr("max_progress", 4)
	if maxProg < 1 || maxProg > 20 {
		entry.Error = fmt.Sprintf("invalid max_progress %d", maxProg)
		return entry
	}
	owner := p.str("owner")
	if owner != "" && !state.OwnerExists(owner) {
		entry.Error = fmt.Sprintf("clock owner %q not found among NPCs, factions or anchors", owner)
		return entry
	}

	clock := models.NewClock(name, owner)
	clock.MaxProgress = maxProg
	clock.Progress = p.intOr("progress", 0)
	clock.AdvanceBullets = p.strs("advance_bullets")
	clock.HaltConditions = p.strs("halt_conditions")
	clock.ReduceConditions = p.strs("reduce_conditions")
	clock.TriggerOnCompletion = p.str("trigger_on_completion")
	clock.IsCadence = p.boolOr("is_cadence", false)
	clock.CadenceBullet = p.str("cadence_bullet")
	clock.CreatedSession = state.SessionID
	state.AddClock(clock)

	entry.Applied = true
	entry.Detail = fmt.Sprintf("%s (0/%d)", name, maxProg)
	return entry
}

func (s *CreativeService) applyELCreate(state *models.SessionState, entry AppliedChange, p payload) AppliedChange {
	zoneName := p.str("zone")
	if zoneName == "" || state.GetZone(zoneName) == nil {
		entry.Error = fmt.Sprintf("zone %q not found", zoneName)
		return entry
	}
	raw, ok := p["entries"].([]any)
	if !ok || len(raw) == 0 {
		entry.Error = "encounter list without entries"
		return entry
	}
	entries := make([]models.EncounterEntry, 0, len(raw))
	for _, e := range raw {
		ep := payloadFrom(e)
		if ep == nil {
			continue
		}
		entries = append(entries, models.EncounterEntry{
			Range:     ep.strOr("range", "1"),
			Prompt:    ep.str("prompt"),
			AnchorCue: ep.boolOr("anchor_cue", false),
		})
	}
	if len(entries) == 0 {
		entry.Error = "encounter list entries were malformed"
		return entry
	}
	state.EncounterLists[zoneName] = &models.EncounterList{
		Zone:           zoneName,
		Randomizer:     p.strOr("randomizer", "1d6"),
		AdjacencyNotes: p.str("adjacency_notes"),
		Entries:        entries,
	}
	entry.Applied = true
	entry.Detail = fmt.Sprintf("%s (%d entries)", zoneName, len(entries))
	return entry
}

func (s *CreativeService) applyEngineCreate(state *models.SessionState, entry AppliedChange, p payload) AppliedChange {
	name := p.str("engine_name")
	if name == "" {
		name = p.str("name")
	}
	if name == "" {
		entry.Error = "engine without a name"
		return entry
	}
	if _, exists := state.Engines[name]; exists {
		entry.Error = fmt.Sprintf("engine %q already exists", name)
		return entry
	}
	engine := &models.ProceduralEngine{
		Name:         name,
		Version:      p.strOr("version", "1.0"),
		Status:       p.strOr("status", models.EngineStatusActive),
		ZoneScope:    p.str("zone_scope"),
		Cadence:      p.boolOr("cadence", false),
		TriggerEvent: p.str("trigger_event"),
		Randomizer:   p.str("randomizer"),
		LinkedClocks: p.strs("linked_clocks"),
		RunCapPerDay: p.intOr("run_cap_per_day", 1),
	}
	state.Engines[name] = engine
	entry.Applied, entry.Detail = true, name
	return entry
}

func (s *CreativeService) applyZoneCreate(state *models.SessionState, entry AppliedChange, p payload) AppliedChange {
	name := p.str("name")
	if name == "" {
		entry.Error = "zone without a name"
		return entry
	}
	if state.GetZone(name) != nil {
		entry.Error = fmt.Sprintf("zone %q already exists", name)
		return entry
	}
	state.Zones[name] = &models.Zone{
		Name:               name,
		Intensity:          p.strOr("intensity", models.IntensityMedium),
		ControllingFaction: p.str("controlling_faction"),
		Description:        p.str("description"),
		CrossingPoints:     p.crossingPoints("crossing_points"),
		ThreatLevel:        p.str("threat_level"),
		SituationSummary:   p.str("situation_summary"),
		NoFaction:          p.boolOr("no_faction", false),
	}
	entry.Applied, entry.Detail = true, name
	return entry
}

func hasChange(resp *models.CreativeResponse, changeType string) bool {
	for _, sc := range resp.StateChanges {
		if sc.Type == changeType {
			return true
		}
	}
	return false
}

func hasCrossing(zone *models.Zone, destination string) bool {
	for _, cp := range zone.CrossingPoints {
		if strings.EqualFold(cp.Destination, destination) {
			return true
		}
	}
	return false
}

// payload wraps the untyped change payload with tolerant accessors. LLM
// output gets numbers as float64 and sometimes as strings; both are
// accepted.
type payload map[string]any

func payloadFrom(v any) payload {
	if m, ok := v.(map[string]any); ok {
		return payload(m)
	}
	return nil
}

func (p payload) str(key string) string {
	if v, ok := p[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (p payload) strOr(key, def string) string {
	if s := p.str(key); s != "" {
		return s
	}
	return def
}

func (p payload) intOr(key string, def int) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err == nil {
			return n
		}
	}
	return def
}

func (p payload) boolOr(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

func (p payload) strs(key string) []string {
	raw, ok := p[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (p payload) crossingPoints(key string) []models.CrossingPoint {
	raw, ok := p[key].([]any)
	if !ok {
		return nil
	}
	var out []models.CrossingPoint
	for _, v := range raw {
		cp := payloadFrom(v)
		if cp == nil {
			continue
		}
		dest := cp.str("destination")
		if dest == "" {
			continue
		}
		out = append(out, models.CrossingPoint{
			Destination: dest,
			Tag:         cp.str("tag"),
			Description: cp.str("description"),
		})
	}
	return out
}

// parseResponseBatch extracts the batch object from raw narrator text,
// tolerating markdown fences, leading prose and trailing noise.
func parseResponseBatch(raw string) (*ResponseBatch, error) {
	cleaned := extractJSONObject(raw)
	if cleaned == "" {
		return nil, apperrors.NewNarratorError("no JSON object found in response", nil)
	}

	var batch ResponseBatch
	if err := json.Unmarshal([]byte(cleaned), &batch); err != nil {
		// A bare single response without the batch wrapper is accepted.
		var single models.CreativeResponse
		if err2 := json.Unmarshal([]byte(cleaned), &single); err2 == nil && single.ID != "" {
			return &ResponseBatch{Responses: []*models.CreativeResponse{&single}}, nil
		}
		return nil, apperrors.NewNarratorError("malformed response JSON", err)
	}
	if len(batch.Responses) == 0 {
		// Wrapper present but empty; try the single-response shape.
		var single models.CreativeResponse
		if err := json.Unmarshal([]byte(cleaned), &single); err == nil && single.ID != "" {
			return &ResponseBatch{Responses: []*models.CreativeResponse{&single}}, nil
		}
		return nil, apperrors.NewNarratorError("response carried no entries", nil)
	}
	return &batch, nil
}

// extractJSONObject strips markdown fences and surrounding prose, then
// returns the first brace-balanced object in the text.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "```") {
		for _, part := range strings.Split(s, "```") {
			part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "json"))
			if strings.HasPrefix(part, "{") {
				s = part
				break
			}
		}
	}

	// Drop zero-width runes and stray control characters.
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
			return -1
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	s = s[start:]

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[:i+1])
			}
		}
	}

	// Unbalanced text: fall back to the last closing brace.
	if end := strings.LastIndex(s, "}"); end >= 0 {
		return strings.TrimSpace(s[:end+1])
	}
	return ""
}
