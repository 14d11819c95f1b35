// internal/services/forge_service.go
package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Corphon/SoloRealmMCP/internal/dice"
	apperrors "github.com/Corphon/SoloRealmMCP/internal/errors"
	"github.com/Corphon/SoloRealmMCP/internal/models"
	"github.com/Corphon/SoloRealmMCP/internal/utils"
)

// A zone forge fires the NPC deficit check at three or fewer active NPCs.
const npcForgeThreshold = 3

// TravelPlan describes one validated crossing out of the current zone.
type TravelPlan struct {
	Destination     string `json:"destination"`
	Tag             string `json:"tag,omitempty"`
	Days            int    `json:"days"`
	ForcedEncounter bool   `json:"forced_encounter,omitempty"`
	Label           string `json:"label"`
}

// ZoneForgeResult is the audit record of one zone forge cascade.
type ZoneForgeResult struct {
	Zone        string                    `json:"zone"`
	WithPCMoved []string                  `json:"with_pc_moved,omitempty"`
	NPCCount    int                       `json:"npc_count"`
	Gaps        []string                  `json:"gaps,omitempty"`
	Requests    []*models.CreativeRequest `json:"requests,omitempty"`
}

// ForgeService validates travel and fills world gaps on zone arrival by
// queueing forge requests for the narrator.
type ForgeService struct {
	creative *CreativeService
	roller   *dice.Roller
	logger   *utils.Logger
}

// NewForgeService creates the forge service.
func NewForgeService(creative *CreativeService, roller *dice.Roller) *ForgeService {
	return &ForgeService{creative: creative, roller: roller, logger: utils.GetLogger()}
}

// CrossingOptions lists the crossings available from the PC's current zone.
func (s *ForgeService) CrossingOptions(state *models.SessionState) []TravelPlan {
	zone := state.GetZone(state.PCZone)
	if zone == nil {
		return nil
	}
	plans := make([]TravelPlan, 0, len(zone.CrossingPoints))
	for _, cp := range zone.CrossingPoints {
		if cp.Destination == "" {
			continue
		}
		days, forced := cp.TravelDays()
		label := fmt.Sprintf("%s (%dd)", cp.Destination, days)
		if cp.Tag != "" {
			label = fmt.Sprintf("%s (%dd, %s)", cp.Destination, days, cp.Tag)
		}
		plans = append(plans, TravelPlan{
			Destination:     cp.Destination,
			Tag:             cp.Tag,
			Days:            days,
			ForcedEncounter: forced,
			Label:           label,
		})
	}
	return plans
}

// ValidateTravel checks that destination is reachable from the current zone.
// Destination matching is case-insensitive; an unreachable destination's
// error names the crossings that do exist.
func (s *ForgeService) ValidateTravel(state *models.SessionState, destination string) (TravelPlan, error) {
	zone := state.GetZone(state.PCZone)
	if zone == nil {
		return TravelPlan{}, apperrors.NewDataError(
			fmt.Sprintf("current zone %q is missing from zone data", state.PCZone), nil)
	}
	for _, cp := range zone.CrossingPoints {
		if strings.EqualFold(cp.Destination, destination) {
			days, forced := cp.TravelDays()
			return TravelPlan{
				Destination:     cp.Destination,
				Tag:             cp.Tag,
				Days:            days,
				ForcedEncounter: forced,
			}, nil
		}
	}
	available := make([]string, 0, len(zone.CrossingPoints))
	for _, cp := range zone.CrossingPoints {
		available = append(available, cp.Destination)
	}
	return TravelPlan{}, apperrors.NewValidationError(
		fmt.Sprintf("%q is not reachable from %s; available: %s",
			destination, state.PCZone, strings.Join(available, ", ")), nil)
}

// ExecuteTravel moves the PC through a validated crossing and records the
// transition. Day advancement is the caller's responsibility.
func (s *ForgeService) ExecuteTravel(state *models.SessionState, plan TravelPlan) {
	oldZone := state.PCZone
	state.PCZone = plan.Destination
	state.AddFact(fmt.Sprintf("Traveled from %s to %s", oldZone, plan.Destination))
	state.AppendLog("travel", fmt.Sprintf("%s -> %s (%dd%s)",
		oldZone, plan.Destination, plan.Days, tagSuffix(plan.Tag)))
}

func tagSuffix(tag string) string {
	if tag == "" {
		return ""
	}
	return ", " + tag
}

// RunZoneForge walks the arrival cascade for the PC's current zone: pull
// travelling companions along, then queue a forge request for each gap the
// zone still has. The step order is fixed; requests land on the pending
// queue in cascade order.
func (s *ForgeService) RunZoneForge(state *models.SessionState) (*ZoneForgeResult, error) {
	zoneName := state.PCZone
	zone := state.GetZone(zoneName)
	if zone == nil {
		return nil, apperrors.NewDataError(
			fmt.Sprintf("zone %q is missing from zone data", zoneName), nil)
	}

	result := &ZoneForgeResult{Zone: zone.Name}

	// Companions travel with the PC.
	for _, npc := range state.NPCs {
		if npc.WithPC && !strings.EqualFold(npc.Zone, zone.Name) {
			from := npc.Zone
			if from == "" {
				from = "(none)"
			}
			npc.Zone = zone.Name
			result.WithPCMoved = append(result.WithPCMoved, fmt.Sprintf("%s: %s -> %s", npc.Name, from, zone.Name))
		}
	}

	var activeNPCs []*models.NPC
	for _, n := range state.NPCs {
		if n.Status == models.NPCStatusActive && strings.EqualFold(n.Zone, zone.Name) {
			activeNPCs = append(activeNPCs, n)
		}
	}
	result.NPCCount = len(activeNPCs)

	queue := state.Queue
	addRequest := func(gap string, req *models.CreativeRequest) {
		result.Gaps = append(result.Gaps, gap)
		result.Requests = append(result.Requests, req)
		s.creative.Enqueue(queue, req)
	}

	// Controlling faction.
	if zone.ControllingFaction == "" && !zone.NoFaction {
		addRequest("no controlling faction",
			s.creative.NewRequest(queue, models.RequestFactionForge, map[string]any{
				"zone":      zone.Name,
				"zone_hint": zone.Description,
			}, "faction must plausibly control or contest this zone"))
	}

	// NPC presence.
	if result.NPCCount <= npcForgeThreshold {
		deficit := npcForgeThreshold + 1 - result.NPCCount
		if deficit < 1 {
			deficit = 1
		}
		result.Gaps = append(result.Gaps, fmt.Sprintf("NPC deficit: %d active, forging %d", result.NPCCount, deficit))
		for i := 0; i < deficit; i++ {
			req := s.creative.NewRequest(queue, models.RequestNPCForge, map[string]any{
				"zone":         zone.Name,
				"faction_hint": zone.ControllingFaction,
			}, "NPC must live in or frequent this zone")
			result.Requests = append(result.Requests, req)
			s.creative.Enqueue(queue, req)
		}
	}

	// A local clock is always asked for; existing zone clocks go along as
	// context so the narrator extends rather than duplicates.
	zoneClocks := s.zoneClockNames(state, zone, activeNPCs)
	addRequest("local clock",
		s.creative.NewRequest(queue, models.RequestClockForge, map[string]any{
			"zone":            zone.Name,
			"owner_hint":      firstNonEmpty(zone.ControllingFaction, zone.Name),
			"existing_clocks": zoneClocks,
		}, "owner must exist in state", "max_progress between 1 and 20"))

	// Zone-local engine.
	if !s.hasZoneEngine(state, zone.Name) {
		addRequest("no zone-local engine",
			s.creative.NewRequest(queue, models.RequestEngineForge, map[string]any{
				"zone":        zone.Name,
				"engine_name": zone.Name + " Zone Engine",
			}))
	}

	// Encounter list.
	if !hasEncounterListFold(state, zone.Name) {
		addRequest("no encounter list",
			s.creative.NewRequest(queue, models.RequestELForge, map[string]any{
				"zone": zone.Name,
			}, "entry ranges must cover the randomizer's span"))
	}

	// Active anchor.
	if !s.hasActiveAnchor(state, zone.Name) {
		addRequest("no active anchor",
			s.creative.NewRequest(queue, models.RequestAnchorForge, map[string]any{
				"zone": zone.Name,
			}, "anchor must pair with a discovery, thread or clock"))
	}

	// Crossing expansion keeps the map from dead-ending.
	if len(zone.CrossingPoints) <= 1 {
		cpCount := s.roller.RollDie(3, "zone expansion: crossing count")
		addRequest(fmt.Sprintf("only %d crossing(s), expanding by %d", len(zone.CrossingPoints), cpCount),
			s.creative.NewRequest(queue, models.RequestZoneExpansion, map[string]any{
				"parent_zone": zone.Name,
				"cp_count":    cpCount,
			}))
	}

	state.AppendLog("zone_forge", fmt.Sprintf("%s: %d gap(s), %d request(s) queued",
		zone.Name, len(result.Gaps), len(result.Requests)))
	return result, nil
}

func (s *ForgeService) zoneClockNames(state *models.SessionState, zone *models.Zone, activeNPCs []*models.NPC) []string {
	owners := map[string]bool{}
	for _, n := range activeNPCs {
		owners[strings.ToLower(n.Name)] = true
	}
	if zone.ControllingFaction != "" {
		owners[strings.ToLower(zone.ControllingFaction)] = true
	}
	var names []string
	for _, c := range state.ClocksInOrder() {
		if c.Status == models.ClockStatusActive && owners[strings.ToLower(c.Owner)] {
			names = append(names, c.Name)
		}
	}
	return names
}

// BuildRumorRequest rolls the 1d8 truth check and builds a one-shot rumor
// request for the PC's current zone. Only a 1 makes the rumor true.
func (s *ForgeService) BuildRumorRequest(state *models.SessionState) *models.CreativeRequest {
	truthRoll := s.roller.RollDie(8, "rumor truth check")
	isTrue := truthRoll == 1

	ctx := map[string]any{
		"zone":       state.PCZone,
		"truth_roll": truthRoll,
		"is_true":    isTrue,
		"date":       state.InGameDate,
		"season":     state.Season,
	}
	if zone := state.GetZone(state.PCZone); zone != nil {
		ctx["controlling_faction"] = zone.ControllingFaction
		ctx["threat_level"] = zone.ThreatLevel
		ctx["zone_description"] = zone.Description
	}

	var clocks []string
	for _, name := range state.ClockOrder {
		if len(clocks) == 5 {
			break
		}
		if c, ok := state.Clocks[name]; ok && c.Status == models.ClockStatusActive {
			clocks = append(clocks, fmt.Sprintf("%s %d/%d", c.Name, c.Progress, c.MaxProgress))
		}
	}
	ctx["active_clocks"] = clocks

	var factions []string
	for name, f := range state.Factions {
		if strings.EqualFold(f.Status, "active") {
			factions = append(factions, name)
		}
	}
	sort.Strings(factions)
	if len(factions) > 5 {
		factions = factions[:5]
	}
	ctx["active_factions"] = factions

	truth := "the rumor is false, distorted, or exaggerated"
	if isTrue {
		truth = "the rumor is actually true"
	}
	return s.creative.NewRequest(state.Queue, models.RequestRumor, ctx,
		"one rumor of 1-2 sentences circulating in the zone, no state changes",
		fmt.Sprintf("truth roll 1d8=%d: %s", truthRoll, truth))
}

func (s *ForgeService) hasZoneEngine(state *models.SessionState, zoneName string) bool {
	for _, e := range state.Engines {
		if e.Status == models.EngineStatusActive && strings.EqualFold(e.ZoneScope, zoneName) {
			return true
		}
	}
	return false
}

func (s *ForgeService) hasActiveAnchor(state *models.SessionState, zoneName string) bool {
	for _, a := range state.Anchors {
		if strings.EqualFold(a.Zone, zoneName) && strings.EqualFold(a.Status, "active") {
			return true
		}
	}
	return false
}

func hasEncounterListFold(state *models.SessionState, zoneName string) bool {
	for key := range state.EncounterLists {
		if strings.EqualFold(key, zoneName) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
