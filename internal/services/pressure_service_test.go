// internal/services/pressure_service_test.go
package services

import (
	"reflect"
	"testing"

	"github.com/Corphon/SoloRealmMCP/internal/dice"
	"github.com/Corphon/SoloRealmMCP/internal/models"
)

func newPressureService(faces ...int) *PressureService {
	roller := dice.NewRoller(&dice.Scripted{Faces: faces})
	return NewPressureService(NewClockService(), roller)
}

func TestRunDaysValidation(t *testing.T) {
	svc := newPressureService()
	state := newTestState()

	if _, err := svc.RunDays(state, 0); err == nil {
		t.Error("zero days should error")
	}

	state.PCZone = ""
	if _, err := svc.RunDays(state, 1); err == nil {
		t.Error("unset PC zone should error")
	}
}

func TestDayAdvancesCalendar(t *testing.T) {
	// All gates fail on a face of 6 under medium intensity.
	svc := newPressureService(6, 6)
	state := newTestState()
	before := state.InGameDate

	days, err := svc.RunDays(state, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 1 {
		t.Fatalf("day results = %d, want 1", len(days))
	}
	if days[0].Date == before {
		t.Error("date did not advance")
	}
	if days[0].DayNumber != 1 {
		t.Errorf("day number = %d, want 1", days[0].DayNumber)
	}
}

func TestEncounterGateRollsTableAndReaction(t *testing.T) {
	// Faces: gate 1 (pass), table 2 (entry 1-3), reaction 3+4=7
	// (neutral), npc gate 6 (fail).
	svc := newPressureService(1, 2, 3, 4, 6)
	state := newTestState()
	state.EncounterLists["Ashford"] = &models.EncounterList{
		Zone:       "Ashford",
		Randomizer: "1d6",
		Entries: []models.EncounterEntry{
			{Range: "1-3", Prompt: "2 wolves on the road"},
			{Range: "4-6", Prompt: "nothing"},
		},
	}

	days, err := svc.RunDays(state, 1)
	if err != nil {
		t.Fatal(err)
	}

	var encounter *models.CreativeRequest
	for _, req := range days[0].Requests {
		if req.Type == models.RequestNarrEncounter {
			encounter = req
		}
	}
	if encounter == nil {
		t.Fatal("no encounter request queued")
	}
	if encounter.Context["prompt"] != "2 wolves on the road" {
		t.Errorf("encounter prompt = %v", encounter.Context["prompt"])
	}
	if encounter.Context["reaction"] != "neutral" {
		t.Errorf("reaction = %v, want neutral for 2d6=7", encounter.Context["reaction"])
	}
}

func TestHostileReactionSchedulesCombat(t *testing.T) {
	// Faces: gate 1 (pass), table 2, reaction 1+1=2 (hostile), npc
	// gate 6 (fail).
	svc := newPressureService(1, 2, 1, 1, 6)
	state := newTestState()
	state.EncounterLists["Ashford"] = &models.EncounterList{
		Zone:       "Ashford",
		Randomizer: "1d6",
		Entries: []models.EncounterEntry{
			{Range: "1-3", Prompt: "2 wolves on the road"},
			{Range: "4-6", Prompt: "nothing"},
		},
	}

	if _, err := svc.RunDays(state, 1); err != nil {
		t.Fatal(err)
	}
	if state.PendingCombat == nil {
		t.Fatal("hostile reaction did not schedule combat")
	}
	if state.PendingCombat["prompt"] != "2 wolves on the road" {
		t.Errorf("pending prompt = %v", state.PendingCombat["prompt"])
	}
	if state.PendingCombat["zone"] != "Ashford" {
		t.Errorf("pending zone = %v", state.PendingCombat["zone"])
	}
}

func TestNeutralReactionSchedulesNoCombat(t *testing.T) {
	svc := newPressureService(1, 2, 3, 4, 6)
	state := newTestState()
	state.EncounterLists["Ashford"] = &models.EncounterList{
		Zone:       "Ashford",
		Randomizer: "1d6",
		Entries: []models.EncounterEntry{
			{Range: "1-6", Prompt: "a quiet caravan"},
		},
	}

	if _, err := svc.RunDays(state, 1); err != nil {
		t.Fatal(err)
	}
	if state.PendingCombat != nil {
		t.Errorf("pending combat = %v, want none for 2d6=7", state.PendingCombat)
	}
}

func TestArrivalEncounterBypassesGate(t *testing.T) {
	// No gate face: the first roll is the table roll.
	svc := newPressureService(4, 2, 2)
	state := newTestState()
	state.EncounterLists["Ashford"] = &models.EncounterList{
		Zone:       "Ashford",
		Randomizer: "1d6",
		Entries: []models.EncounterEntry{
			{Range: "1-3", Prompt: "ambush"},
			{Range: "4-6", Prompt: "quiet road"},
		},
	}

	day := svc.RunArrivalEncounter(state)
	if len(day.Requests) != 1 || day.Requests[0].Type != models.RequestNarrEncounter {
		t.Fatalf("requests = %+v, want one encounter", day.Requests)
	}
	if day.Requests[0].Context["prompt"] != "quiet road" {
		t.Errorf("prompt = %v, want the 4-6 entry", day.Requests[0].Context["prompt"])
	}
}

func TestCadenceClockTicksDaily(t *testing.T) {
	svc := newPressureService(6, 6)
	state := newTestState()
	clock := addClock(state, "Winter Stores", 0, 6)
	clock.IsCadence = true
	clock.CadenceBullet = "a day passes"

	days, err := svc.RunDays(state, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(days[0].CadenceTicks) != 1 {
		t.Fatalf("cadence ticks = %d, want 1", len(days[0].CadenceTicks))
	}
	if clock.Progress != 1 {
		t.Errorf("cadence clock progress = %d, want 1", clock.Progress)
	}
}

func TestCadenceClockWithoutBulletDoesNotTick(t *testing.T) {
	svc := newPressureService(6, 6)
	state := newTestState()
	clock := addClock(state, "Audit Only", 0, 6)
	clock.IsCadence = true

	days, _ := svc.RunDays(state, 1)
	if len(days[0].CadenceTicks) != 0 {
		t.Error("cadence clock without a bullet must not tick")
	}
	if clock.Progress != 0 {
		t.Errorf("progress = %d, want 0", clock.Progress)
	}
}

func TestEngineOutcomeBandAdvancesClock(t *testing.T) {
	// Faces: engine 1d6=5 (band 4-6), encounter gate 6, npc gate 6.
	svc := newPressureService(5, 6, 6)
	state := newTestState()
	addClock(state, "Warband Strength", 0, 6)
	state.Engines["Raider Logistics"] = &models.ProceduralEngine{
		Name:       "Raider Logistics",
		Status:     models.EngineStatusActive,
		Cadence:    true,
		ZoneScope:  "Ashford",
		Randomizer: "1d6",
		Outcomes: []models.OutcomeBand{
			{Min: 1, Max: 3, Outcome: "quiet day"},
			{Min: 4, Max: 6, Outcome: "supplies arrive", Effects: []models.ClockEffect{
				{Clock: "Warband Strength", Amount: 1},
			}},
		},
	}

	days, err := svc.RunDays(state, 1)
	if err != nil {
		t.Fatal(err)
	}

	if len(days[0].EngineRuns) != 1 {
		t.Fatalf("engine runs = %d, want 1", len(days[0].EngineRuns))
	}
	run := days[0].EngineRuns[0]
	if !run.Ran || run.Roll != 5 || run.Outcome != "supplies arrive" {
		t.Errorf("engine run = %+v", run)
	}
	if got := state.GetClock("Warband Strength").Progress; got != 1 {
		t.Errorf("effect clock progress = %d, want 1", got)
	}
}

func TestEngineHardGateSuppressesRun(t *testing.T) {
	svc := newPressureService(6, 6)
	state := newTestState()
	addClock(state, "Gate Clock", 1, 6)
	state.Engines["Gated"] = &models.ProceduralEngine{
		Name:       "Gated",
		Status:     models.EngineStatusActive,
		Cadence:    true,
		Randomizer: "1d6",
		HardGates:  []models.HardGate{{Clock: "Gate Clock", MinProgress: 3}},
	}

	days, _ := svc.RunDays(state, 1)
	run := days[0].EngineRuns[0]
	if run.Ran || run.Skip != "hard gate failed" {
		t.Errorf("engine run = %+v, want a silent gate skip", run)
	}
}

func TestEngineOutsidePCZoneDoesNotRun(t *testing.T) {
	svc := newPressureService(6, 6)
	state := newTestState()
	state.Engines["Elsewhere"] = &models.ProceduralEngine{
		Name:      "Elsewhere",
		Status:    models.EngineStatusActive,
		Cadence:   true,
		ZoneScope: "Duskmoor",
	}

	days, _ := svc.RunDays(state, 1)
	if len(days[0].EngineRuns) != 0 {
		t.Errorf("engine runs = %+v, want none outside the PC zone", days[0].EngineRuns)
	}
}

func TestZoneGapCheckQueuesForgeRequests(t *testing.T) {
	svc := newPressureService(6, 6)
	state := newTestState()
	// No NPCs, no encounter list in Ashford.

	days, _ := svc.RunDays(state, 1)

	var npcForge, elForge bool
	for _, req := range days[0].Requests {
		switch req.Type {
		case models.RequestNPCForge:
			npcForge = true
		case models.RequestELForge:
			elForge = true
		}
	}
	if !npcForge || !elForge {
		t.Errorf("requests = %+v, want NPC and encounter-list forge", days[0].Requests)
	}
}

func TestRunDaysIsDeterministic(t *testing.T) {
	build := func() (*PressureService, *models.SessionState) {
		roller := dice.NewRoller(dice.NewSource(99))
		svc := NewPressureService(NewClockService(), roller)
		state := newTestState()
		clock := addClock(state, "Pressure", 0, 8)
		clock.IsCadence = true
		clock.CadenceBullet = "daily"
		state.EncounterLists["Ashford"] = &models.EncounterList{
			Zone:       "Ashford",
			Randomizer: "1d6",
			Entries: []models.EncounterEntry{
				{Range: "1-3", Prompt: "trouble"},
				{Range: "4-6", Prompt: "quiet"},
			},
		}
		return svc, state
	}

	svcA, stateA := build()
	daysA, err := svcA.RunDays(stateA, 3)
	if err != nil {
		t.Fatal(err)
	}

	svcB, stateB := build()
	var daysB []*DayResult
	for i := 0; i < 3; i++ {
		got, err := svcB.RunDays(stateB, 1)
		if err != nil {
			t.Fatal(err)
		}
		got[0].DayNumber = i + 1
		daysB = append(daysB, got[0])
	}

	if !reflect.DeepEqual(daysA, daysB) {
		t.Error("RunDays(3) and three RunDays(1) calls diverged with the same seed")
	}
	if stateA.InGameDate != stateB.InGameDate {
		t.Errorf("dates diverged: %s vs %s", stateA.InGameDate, stateB.InGameDate)
	}
}

func TestMatchesRange(t *testing.T) {
	tests := []struct {
		total int
		band  string
		want  bool
	}{
		{1, "1", true},
		{2, "1", false},
		{3, "1-3", true},
		{4, "1-3", false},
		{5, " 4 - 6 ", true},
		{2, "x-y", false},
	}
	for _, tt := range tests {
		if got := matchesRange(tt.total, tt.band); got != tt.want {
			t.Errorf("matchesRange(%d, %q) = %v, want %v", tt.total, tt.band, got, tt.want)
		}
	}
}
