// internal/services/clock_service_test.go
package services

import (
	"testing"

	"github.com/Corphon/SoloRealmMCP/internal/models"
)

func newTestState() *models.SessionState {
	state := models.NewSessionState("test_session")
	state.PCZone = "Ashford"
	state.Zones["Ashford"] = &models.Zone{
		Name:      "Ashford",
		Intensity: models.IntensityMedium,
		CrossingPoints: []models.CrossingPoint{
			{Destination: "Duskmoor"},
		},
	}
	state.Zones["Duskmoor"] = &models.Zone{Name: "Duskmoor", Intensity: models.IntensityMedium}
	return state
}

func addClock(state *models.SessionState, name string, progress, maxProgress int) *models.Clock {
	clock := models.NewClock(name, "")
	clock.Progress = progress
	clock.MaxProgress = maxProgress
	state.AddClock(clock)
	return clock
}

func TestAdvanceTicksAndFires(t *testing.T) {
	svc := NewClockService()
	state := newTestState()
	clock := addClock(state, "Raiders Gather", 2, 4)
	clock.TriggerOnCompletion = "the raiders strike the village"

	adv, err := svc.Advance(state, "Raiders Gather", 1, "test tick")
	if err != nil {
		t.Fatal(err)
	}
	if adv.Old != 2 || adv.New != 3 || adv.Fired {
		t.Errorf("advance = %+v, want 2 -> 3 unfired", adv)
	}

	adv, err = svc.Advance(state, "Raiders Gather", 1, "final tick")
	if err != nil {
		t.Fatal(err)
	}
	if !adv.Fired {
		t.Error("clock at max should fire")
	}
	if clock.Status != models.ClockStatusFired {
		t.Errorf("status = %q, want fired", clock.Status)
	}

	// Fired is terminal.
	if _, err := svc.Advance(state, "Raiders Gather", 1, "past the end"); err == nil {
		t.Error("advancing a fired clock should fail")
	}
}

func TestAdvanceOverflowClampsAtMax(t *testing.T) {
	svc := NewClockService()
	state := newTestState()
	addClock(state, "Slow Rot", 1, 6)

	adv, err := svc.Advance(state, "Slow Rot", 10, "big push")
	if err != nil {
		t.Fatal(err)
	}
	if adv.New != 6 || !adv.Fired {
		t.Errorf("overflow advance = %+v, want clamp at 6 and fire", adv)
	}
}

func TestAdvanceUnknownAndHaltedClocks(t *testing.T) {
	svc := NewClockService()
	state := newTestState()
	clock := addClock(state, "Watched Road", 0, 4)

	if _, err := svc.Advance(state, "No Such Clock", 1, ""); err == nil {
		t.Error("unknown clock should error")
	}

	if err := svc.Halt(state, "Watched Road", "storm"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Advance(state, "Watched Road", 1, ""); err == nil {
		t.Error("halted clock should reject advances")
	}

	if err := svc.Resume(state, "Watched Road"); err != nil {
		t.Fatal(err)
	}
	if clock.Status != models.ClockStatusActive {
		t.Errorf("status after resume = %q", clock.Status)
	}
	if _, err := svc.Advance(state, "Watched Road", 1, ""); err != nil {
		t.Errorf("resumed clock should advance: %v", err)
	}
}

func TestReduceFloorsAtZero(t *testing.T) {
	svc := NewClockService()
	state := newTestState()
	addClock(state, "Pursuit", 2, 6)

	got, err := svc.Reduce(state, "Pursuit", 5, "lost the trail")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("reduced progress = %d, want 0", got)
	}
}

func TestClockLookupIsCaseInsensitive(t *testing.T) {
	svc := NewClockService()
	state := newTestState()
	addClock(state, "Raiders Gather", 0, 4)

	if _, err := svc.Advance(state, "raiders gather", 1, ""); err != nil {
		t.Errorf("case-insensitive lookup failed: %v", err)
	}
}

func TestInteractionAdvanceRule(t *testing.T) {
	svc := NewClockService()
	state := newTestState()
	owner := addClock(state, "Siege Prep", 3, 6)
	addClock(state, "Town Panic", 0, 4)
	owner.Rules = []models.InteractionRule{{
		ID:          "R1",
		OwnerAt:     3,
		Effect:      models.RuleEffectAdvance,
		TargetClock: "Town Panic",
		Amount:      2,
	}}

	results := svc.EvaluateInteractions(state)
	if len(results.Advances) != 1 {
		t.Fatalf("advances = %d, want 1", len(results.Advances))
	}
	if got := state.GetClock("Town Panic").Progress; got != 2 {
		t.Errorf("target progress = %d, want 2", got)
	}
}

func TestInteractionSinglePassUsesSnapshot(t *testing.T) {
	svc := NewClockService()
	state := newTestState()

	// A advances B this pass; C triggers on B's progress. With the
	// snapshot, C must not see B's new value until the next pass.
	a := addClock(state, "Clock A", 1, 6)
	addClock(state, "Clock B", 0, 6)
	c := addClock(state, "Clock C", 1, 6)
	a.Rules = []models.InteractionRule{{
		ID: "A1", OwnerAt: 1, Effect: models.RuleEffectAdvance, TargetClock: "Clock B", Amount: 3,
	}}
	c.Rules = []models.InteractionRule{{
		ID: "C1", OwnerAt: 1, TriggerClock: "Clock B", TriggerAt: 2,
		Effect: models.RuleEffectFlag, FlagText: "B moved",
	}}

	results := svc.EvaluateInteractions(state)
	if len(results.Flags) != 0 {
		t.Error("rule C1 fired on same-pass progress, snapshot violated")
	}

	// Next pass sees the committed progress.
	results = svc.EvaluateInteractions(state)
	if len(results.Flags) != 1 {
		t.Errorf("second pass flags = %d, want 1", len(results.Flags))
	}
}

func TestOneTimeRuleNeverRefires(t *testing.T) {
	svc := NewClockService()
	state := newTestState()
	owner := addClock(state, "Omen", 2, 6)
	owner.Rules = []models.InteractionRule{{
		ID: "ONCE", OwnerAt: 1, Effect: models.RuleEffectFlag, FlagText: "an omen", OneTime: true,
	}}

	first := svc.EvaluateInteractions(state)
	second := svc.EvaluateInteractions(state)
	if len(first.Flags) != 1 || len(second.Flags) != 0 {
		t.Errorf("one-time rule fired %d then %d times, want 1 then 0",
			len(first.Flags), len(second.Flags))
	}
	if !state.FiredRules["ONCE"] {
		t.Error("fired rule not tracked on state")
	}
}

func TestInteractionSpawnRule(t *testing.T) {
	svc := NewClockService()
	state := newTestState()
	owner := addClock(state, "Deep Trouble", 4, 6)
	owner.Rules = []models.InteractionRule{{
		ID: "SP1", OwnerAt: 4, Effect: models.RuleEffectSpawn,
		Spawn: &models.ClockSpawn{Name: "Spawned Menace", MaxProgress: 8},
	}}

	results := svc.EvaluateInteractions(state)
	if len(results.Spawns) != 1 {
		t.Fatalf("spawns = %d, want 1", len(results.Spawns))
	}
	spawned := state.GetClock("Spawned Menace")
	if spawned == nil || spawned.MaxProgress != 8 {
		t.Errorf("spawned clock = %+v", spawned)
	}

	// Spawning an existing name is skipped, not an error.
	results = svc.EvaluateInteractions(state)
	if len(results.Spawns) != 0 || len(results.Skipped) == 0 {
		t.Error("duplicate spawn should be skipped")
	}
}

func TestMalformedRuleIsSkipped(t *testing.T) {
	svc := NewClockService()
	state := newTestState()
	owner := addClock(state, "Broken Owner", 2, 6)
	owner.Rules = []models.InteractionRule{
		{ID: "BAD1", OwnerAt: 1, TriggerClock: "No Such Clock", TriggerAt: 1, Effect: models.RuleEffectFlag},
		{ID: "BAD2", OwnerAt: 1, Effect: "explode"},
	}

	results := svc.EvaluateInteractions(state)
	if len(results.Skipped) != 2 {
		t.Errorf("skipped = %v, want both malformed rules", results.Skipped)
	}
}

func TestHaltConditionMatchesOnKeywordRatio(t *testing.T) {
	svc := NewClockService()
	state := newTestState()
	clock := addClock(state, "Bandit Raids", 2, 6)
	clock.HaltConditions = []string{"bandit leader captured alive"}

	state.AddFact("The bandit leader was captured after the ambush")

	results := svc.EvaluateHaltConditions(state)
	if len(results) != 1 {
		t.Fatalf("halt results = %d, want 1", len(results))
	}
	if clock.Status != models.ClockStatusHalted {
		t.Errorf("status = %q, want halted", clock.Status)
	}

	// At most one halt per clock per day.
	clock.Status = models.ClockStatusActive
	if got := svc.EvaluateHaltConditions(state); len(got) != 0 {
		t.Error("clock halted twice in one day")
	}
}

func TestAuditAutoAdvanceAndReview(t *testing.T) {
	svc := NewClockService()
	state := newTestState()

	auto := addClock(state, "Harvest Tithe", 1, 6)
	auto.AdvanceBullets = []string{"grain wagons leave village"}

	review := addClock(state, "Border Tension", 1, 6)
	review.AdvanceBullets = []string{"soldiers gather border camps supplies"}

	state.AddFact("Grain wagons leave the village under guard")
	state.AddFact("A few soldiers gather near the river")

	results := svc.Audit(state)

	if len(results.AutoAdvanced) != 1 || results.AutoAdvanced[0].Clock != "Harvest Tithe" {
		t.Errorf("auto advanced = %+v, want Harvest Tithe", results.AutoAdvanced)
	}
	if auto.Progress != 2 {
		t.Errorf("auto clock progress = %d, want 2", auto.Progress)
	}
	if len(results.NeedsReview) != 1 || results.NeedsReview[0].Clock != "Border Tension" {
		t.Errorf("needs review = %+v, want Border Tension", results.NeedsReview)
	}
}

func TestAuditSkipsRemoteZoneBullets(t *testing.T) {
	svc := NewClockService()
	state := newTestState()
	state.Zones["Far Scarps"] = &models.Zone{Name: "Far Scarps"}

	clock := addClock(state, "Distant Plot", 1, 6)
	clock.AdvanceBullets = []string{"cultists chant rituals in Far Scarps"}

	state.AddFact("cultists chant rituals in Far Scarps")

	results := svc.Audit(state)
	if len(results.AutoAdvanced) != 0 {
		t.Error("bullet naming a non-adjacent zone should be skipped")
	}
	if len(results.NoMatch) != 1 {
		t.Errorf("no match = %v, want the clock listed", results.NoMatch)
	}
}

func TestAuditShortBulletIsAlwaysAmbiguous(t *testing.T) {
	svc := NewClockService()
	state := newTestState()
	clock := addClock(state, "Vague Doom", 1, 6)
	clock.AdvanceBullets = []string{"darkness"}

	state.AddFact("darkness falls over everything")

	results := svc.Audit(state)
	if len(results.AutoAdvanced) != 0 {
		t.Error("single-keyword bullet must never auto-advance")
	}
	if len(results.NeedsReview) != 1 {
		t.Errorf("needs review = %+v, want the vague bullet deferred", results.NeedsReview)
	}
}
