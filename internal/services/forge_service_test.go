// internal/services/forge_service_test.go
package services

import (
	"strings"
	"testing"

	"github.com/Corphon/SoloRealmMCP/internal/dice"
	"github.com/Corphon/SoloRealmMCP/internal/models"
)

func newForgeService(faces ...int) *ForgeService {
	roller := dice.NewRoller(&dice.Scripted{Faces: faces})
	return NewForgeService(newCreativeService(), roller)
}

func TestValidateTravelIsCaseInsensitive(t *testing.T) {
	svc := newForgeService()
	state := newTestState()

	plan, err := svc.ValidateTravel(state, "duskmoor")
	if err != nil {
		t.Fatal(err)
	}
	if plan.Destination != "Duskmoor" || plan.Days != 1 || plan.ForcedEncounter {
		t.Errorf("plan = %+v", plan)
	}
}

func TestValidateTravelListsAvailableCrossings(t *testing.T) {
	svc := newForgeService()
	state := newTestState()

	_, err := svc.ValidateTravel(state, "Far Scarps")
	if err == nil {
		t.Fatal("unreachable destination should fail")
	}
	if !strings.Contains(err.Error(), "Duskmoor") {
		t.Errorf("error %q should name the real crossings", err)
	}
}

func TestTravelDaysByTag(t *testing.T) {
	tests := []struct {
		tag    string
		days   int
		forced bool
	}{
		{"", 1, false},
		{models.CrossingTagSlow, 2, false},
		{models.CrossingTagEventful, 1, true},
	}
	for _, tt := range tests {
		cp := models.CrossingPoint{Destination: "X", Tag: tt.tag}
		days, forced := cp.TravelDays()
		if days != tt.days || forced != tt.forced {
			t.Errorf("tag %q: %d/%v, want %d/%v", tt.tag, days, forced, tt.days, tt.forced)
		}
	}
}

func TestExecuteTravelMovesPC(t *testing.T) {
	svc := newForgeService()
	state := newTestState()

	plan, err := svc.ValidateTravel(state, "Duskmoor")
	if err != nil {
		t.Fatal(err)
	}
	svc.ExecuteTravel(state, plan)

	if state.PCZone != "Duskmoor" {
		t.Errorf("PC zone = %q", state.PCZone)
	}
	if len(state.DailyFacts) == 0 || !strings.Contains(state.DailyFacts[0], "Traveled") {
		t.Errorf("facts = %v", state.DailyFacts)
	}
}

func TestZoneForgeCascadeOnEmptyZone(t *testing.T) {
	// One scripted face for the crossing-expansion 1d3.
	svc := newForgeService(2)
	state := newTestState()
	state.PCZone = "Duskmoor" // no faction, no NPCs, no list, one crossing short

	result, err := svc.RunZoneForge(state)
	if err != nil {
		t.Fatal(err)
	}

	wantTypes := map[string]int{}
	for _, req := range result.Requests {
		wantTypes[req.Type]++
	}
	if wantTypes[models.RequestFactionForge] != 1 {
		t.Errorf("faction forge requests = %d", wantTypes[models.RequestFactionForge])
	}
	if wantTypes[models.RequestNPCForge] != 4 {
		t.Errorf("NPC forge requests = %d, want deficit of 4", wantTypes[models.RequestNPCForge])
	}
	if wantTypes[models.RequestClockForge] != 1 || wantTypes[models.RequestEngineForge] != 1 {
		t.Errorf("clock/engine forge = %d/%d", wantTypes[models.RequestClockForge], wantTypes[models.RequestEngineForge])
	}
	if wantTypes[models.RequestELForge] != 1 || wantTypes[models.RequestAnchorForge] != 1 {
		t.Errorf("list/anchor forge = %d/%d", wantTypes[models.RequestELForge], wantTypes[models.RequestAnchorForge])
	}
	if wantTypes[models.RequestZoneExpansion] != 1 {
		t.Errorf("zone expansion requests = %d", wantTypes[models.RequestZoneExpansion])
	}
	if len(state.Queue.Pending) != len(result.Requests) {
		t.Errorf("pending = %d, requests = %d", len(state.Queue.Pending), len(result.Requests))
	}
}

func TestZoneForgeSkipsFilledGaps(t *testing.T) {
	svc := newForgeService()
	state := newTestState()
	zone := state.Zones["Ashford"]
	zone.ControllingFaction = "Iron Compact"
	zone.CrossingPoints = append(zone.CrossingPoints, models.CrossingPoint{Destination: "Far Scarps"})
	state.EncounterLists["Ashford"] = &models.EncounterList{Zone: "Ashford", Randomizer: "1d6"}
	state.Anchors = append(state.Anchors, models.AnchorEntry{Zone: "Ashford", Status: "active"})
	state.Engines["Ashford Watch"] = &models.ProceduralEngine{
		Name: "Ashford Watch", Status: models.EngineStatusActive, ZoneScope: "Ashford",
	}
	for _, name := range []string{"Ilsa", "Brann", "Cole", "Derna"} {
		state.NPCs[name] = &models.NPC{Name: name, Zone: "Ashford", Status: models.NPCStatusActive}
	}

	result, err := svc.RunZoneForge(state)
	if err != nil {
		t.Fatal(err)
	}

	// Only the always-on local clock request should remain.
	if len(result.Requests) != 1 || result.Requests[0].Type != models.RequestClockForge {
		t.Errorf("requests = %+v, want the local clock only", result.Requests)
	}
	if result.NPCCount != 4 {
		t.Errorf("NPC count = %d, want 4", result.NPCCount)
	}
}

func TestZoneForgeMovesCompanions(t *testing.T) {
	svc := newForgeService(1)
	state := newTestState()
	state.PCZone = "Duskmoor"
	state.NPCs["Tobb"] = &models.NPC{
		Name: "Tobb", Zone: "Ashford", Status: models.NPCStatusActive,
		IsCompanion: true, WithPC: true,
	}

	result, err := svc.RunZoneForge(state)
	if err != nil {
		t.Fatal(err)
	}
	if state.NPCs["Tobb"].Zone != "Duskmoor" {
		t.Errorf("companion zone = %q", state.NPCs["Tobb"].Zone)
	}
	if len(result.WithPCMoved) != 1 {
		t.Errorf("moved = %v", result.WithPCMoved)
	}
}

func TestZoneForgeUnknownZoneFails(t *testing.T) {
	svc := newForgeService()
	state := newTestState()
	state.PCZone = "Nowhere"
	if _, err := svc.RunZoneForge(state); err == nil {
		t.Error("missing zone record should fail")
	}
}
