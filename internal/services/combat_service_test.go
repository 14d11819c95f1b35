// internal/services/combat_service_test.go
package services

import (
	"testing"

	"github.com/Corphon/SoloRealmMCP/internal/dice"
	"github.com/Corphon/SoloRealmMCP/internal/models"
)

func newCombatService(faces ...int) *CombatService {
	return NewCombatService(dice.NewRoller(&dice.Scripted{Faces: faces}))
}

func combatTestState() *models.SessionState {
	state := newTestState()
	state.PC = &models.PCState{
		Name:  "Marrin",
		Stats: models.StatBlock{AC: 14, HD: 3, HP: 16, HPMax: 16, Attack: 3, Damage: "1d8", Morale: 12},
	}
	return state
}

func banditStats() models.StatBlock {
	return models.StatBlock{AC: 12, HD: 1, HP: 4, HPMax: 4, Attack: 1, Damage: "1d6", Morale: 7}
}

func banditFoe(name string) *models.Combatant {
	s := banditStats()
	return &models.Combatant{
		Name: name, Side: models.SideFoe,
		AC: s.AC, HD: s.HD, HP: s.HP, HPMax: s.HPMax,
		Attack: s.Attack, Damage: s.Damage, Morale: s.Morale,
	}
}

func TestParseFoeSpec(t *testing.T) {
	svc := newCombatService()
	foes := svc.ParseFoeSpec("Bandit", "AC=13, HD=1, hp=6/6, AT=+2, Dmg=1d6, ML=8", "", nil)
	if len(foes) != 1 {
		t.Fatalf("foes = %d, want 1", len(foes))
	}
	f := foes[0]
	if f.AC != 13 || f.HD != 1 || f.HP != 6 || f.HPMax != 6 || f.Attack != 2 || f.Damage != "1d6" || f.Morale != 8 {
		t.Errorf("parsed foe = %+v", f)
	}
	if f.Side != models.SideFoe || f.Name != "Bandit" {
		t.Errorf("foe identity = %q/%q", f.Name, f.Side)
	}
}

func TestParseFoeSpecDefaults(t *testing.T) {
	svc := newCombatService()
	foes := svc.ParseFoeSpec("", "", "", nil)
	f := foes[0]
	if f.Name != "Foe" || f.AC != 10 || f.HP != 4 || f.Damage != "1d4" || f.Morale != 7 {
		t.Errorf("default foe = %+v", f)
	}
}

func TestFoeCountFromNumberedPrompt(t *testing.T) {
	svc := newCombatService()
	foes := svc.ParseFoeSpec("Bandit", "AC=12", "3 bandits ambush the road", nil)
	if len(foes) != 3 {
		t.Fatalf("foes = %d, want 3", len(foes))
	}
	if foes[0].Name != "Bandit #1" || foes[2].Name != "Bandit #3" {
		t.Errorf("foe names = %q, %q", foes[0].Name, foes[2].Name)
	}
}

func TestFoeCountFromDicePrompt(t *testing.T) {
	svc := newCombatService(3, 2) // 2d4 = 5
	foes := svc.ParseFoeSpec("Scout", "AC=12", "2d4 scouts circle the camp", nil)
	if len(foes) != 5 {
		t.Errorf("foes = %d, want 5 from 2d4", len(foes))
	}
}

func TestAttackRoundPCKillsLastFoe(t *testing.T) {
	// Faces: initiative 5 vs 2 (PC wins), d20=18 (hit), damage 1d8=4.
	svc := newCombatService(5, 2, 18, 4)
	state := combatTestState()

	combat, err := svc.InitCombat(state, []*models.Combatant{banditFoe("Bandit")}, "a lone bandit")
	if err != nil {
		t.Fatal(err)
	}

	round, err := svc.ResolveAttackRound(combat)
	if err != nil {
		t.Fatal(err)
	}

	if round.Initiative.Winner != models.SidePC {
		t.Errorf("initiative winner = %q", round.Initiative.Winner)
	}
	if len(round.Attacks) != 1 || !round.Attacks[0].Kill {
		t.Fatalf("attacks = %+v, want one killing blow", round.Attacks)
	}
	if !combat.Ended || combat.EndReason != models.CombatEndAllFoesDead {
		t.Errorf("end = %v/%q, want all_foes_dead", combat.Ended, combat.EndReason)
	}
	if combat.Round != 1 {
		t.Errorf("round advanced to %d after combat end", combat.Round)
	}
}

func TestInitiativeTieGoesToHigherHD(t *testing.T) {
	// Faces: initiative 3 vs 3, PC d20=1 (miss), foe d20=2 (miss).
	svc := newCombatService(3, 3, 1, 2)
	state := combatTestState()

	combat, err := svc.InitCombat(state, []*models.Combatant{banditFoe("Bandit")}, "")
	if err != nil {
		t.Fatal(err)
	}

	round, err := svc.ResolveAttackRound(combat)
	if err != nil {
		t.Fatal(err)
	}

	if round.Initiative.Winner != models.SidePC || round.Initiative.Decision != "tie: higher average HD" {
		t.Errorf("initiative = %+v", round.Initiative)
	}
	if combat.Ended {
		t.Error("combat should continue after a round of misses")
	}
	if combat.Round != 2 {
		t.Errorf("round = %d, want 2", combat.Round)
	}
}

func TestMoraleBreakEndsCombat(t *testing.T) {
	// Faces: initiative 6 vs 1, PC d20=19 kills Bandit #1 (1d8=8),
	// Bandit #2 d20=2 misses, morale 2d6=6+6=12 over ML 7.
	svc := newCombatService(6, 1, 19, 8, 2, 6, 6)
	state := combatTestState()

	foes := []*models.Combatant{banditFoe("Bandit #1"), banditFoe("Bandit #2")}
	combat, err := svc.InitCombat(state, foes, "2 bandits")
	if err != nil {
		t.Fatal(err)
	}

	round, err := svc.ResolveAttackRound(combat)
	if err != nil {
		t.Fatal(err)
	}

	if len(round.MoraleTriggers) == 0 {
		t.Fatal("first casualty should trigger a morale check")
	}
	var broke bool
	for _, mr := range round.MoraleResults {
		if mr.Combatant == "Bandit #2" && !mr.Passed && mr.Result == "broken" {
			broke = true
		}
	}
	if !broke {
		t.Errorf("morale results = %+v, want Bandit #2 broken", round.MoraleResults)
	}
	if !combat.Ended || combat.EndReason != models.CombatEndFoesBroke {
		t.Errorf("end = %v/%q, want foes_broke", combat.Ended, combat.EndReason)
	}
}

func TestMoraleImmuneTags(t *testing.T) {
	svc := newCombatService()
	skeleton := banditFoe("Skeleton")
	skeleton.Tags = []string{"Undead"}

	mr := svc.rollMorale(skeleton)
	if !mr.Immune || !mr.Passed {
		t.Errorf("morale = %+v, want immune pass without a roll", mr)
	}
}

func TestFleeRoundFreeAttacks(t *testing.T) {
	// Faces: free attack at PC d20=1 (miss), free attack at companion
	// d20=20 (hit), damage 1d6=6 (down).
	svc := newCombatService(1, 20, 6)
	state := combatTestState()
	state.NPCs["Tobb"] = &models.NPC{
		Name: "Tobb", Status: models.NPCStatusActive, IsCompanion: true, WithPC: true,
		Stats: models.StatBlock{AC: 12, HD: 1, HP: 5, HPMax: 5, Attack: 1, Damage: "1d6", Morale: 8},
	}

	combat, err := svc.InitCombat(state, []*models.Combatant{banditFoe("Bandit")}, "")
	if err != nil {
		t.Fatal(err)
	}

	round, err := svc.ResolveFleeRound(combat)
	if err != nil {
		t.Fatal(err)
	}

	if !combat.Ended || combat.EndReason != models.CombatEndFleeSuccess {
		t.Errorf("end = %v/%q, want flee_success", combat.Ended, combat.EndReason)
	}
	if len(round.Attacks) != 2 {
		t.Fatalf("free attacks = %d, want 2", len(round.Attacks))
	}
	if len(round.Casualties) != 1 || round.Casualties[0] != "Tobb" {
		t.Errorf("casualties = %v, want the companion", round.Casualties)
	}

	// A second action against ended combat is rejected.
	if _, err := svc.ResolveAttackRound(combat); err == nil {
		t.Error("acting in ended combat should fail")
	}
}

func TestCompanionOrderStableForEqualHD(t *testing.T) {
	svc := newCombatService()
	state := combatTestState()
	for _, name := range []string{"Tobb", "Arn", "Mira"} {
		state.NPCs[name] = &models.NPC{
			Name: name, Status: models.NPCStatusActive,
			IsCompanion: true, WithPC: true,
			Stats: models.StatBlock{AC: 12, HD: 1, HP: 5, HPMax: 5, Attack: 1, Damage: "1d6", Morale: 8},
		}
	}

	out := svc.BuildCompanionCombatants(state)
	if len(out) != 3 {
		t.Fatalf("companions = %d, want 3", len(out))
	}
	for i, want := range []string{"Arn", "Mira", "Tobb"} {
		if out[i].Name != want || out[i].Index != i+1 {
			t.Errorf("companion %d = %s (index %d), want %s (index %d)",
				i, out[i].Name, out[i].Index, want, i+1)
		}
	}
}

func TestDefenderStrikesFoeAttackingPC(t *testing.T) {
	svc := newCombatService()
	pc := &models.Combatant{
		Name: "Marrin", Side: models.SidePC, IsPC: true,
		AC: 14, HD: 3, HP: 5, HPMax: 16, Index: 0,
	}
	guard := &models.Combatant{
		Name: "Bodyguard", Side: models.SidePC, IsCompanion: true,
		AC: 13, HD: 2, HP: 8, HPMax: 8, Index: 1,
	}
	// Three foes against two on the player side forces the round-robin
	// split; Bandit B is the healthiest but is not attacking the PC.
	foeA := banditFoe("Bandit A")
	foeA.HP = 3
	foeB := banditFoe("Bandit B")
	foeB.HP, foeB.HPMax, foeB.Index = 6, 6, 1
	foeC := banditFoe("Bandit C")
	foeC.Index = 2

	combat := &models.CombatState{
		PCSide:  []*models.Combatant{pc, guard},
		FoeSide: []*models.Combatant{foeA, foeB, foeC},
	}

	targetsPC := map[string]bool{}
	for _, p := range svc.foeTargets(combat) {
		if p.target == pc {
			targetsPC[p.attacker.Name] = true
		}
	}
	if !targetsPC["Bandit A"] || !targetsPC["Bandit C"] || targetsPC["Bandit B"] {
		t.Fatalf("foe targeting = %v", targetsPC)
	}

	pairs := svc.companionTargets(combat)
	if len(pairs) != 1 {
		t.Fatalf("companion pairs = %d, want 1", len(pairs))
	}
	if got := pairs[0].target; !targetsPC[got.Name] {
		t.Errorf("defender attacks %s, which does not target the PC", got.Name)
	}
	if pairs[0].target != foeC {
		t.Errorf("defender target = %s, want the healthiest foe on the PC", pairs[0].target.Name)
	}
}

func TestHealthyPCCompanionFollowsPCTarget(t *testing.T) {
	svc := newCombatService()
	pc := &models.Combatant{
		Name: "Marrin", Side: models.SidePC, IsPC: true,
		AC: 14, HD: 3, HP: 16, HPMax: 16, Index: 0,
	}
	guard := &models.Combatant{
		Name: "Bodyguard", Side: models.SidePC, IsCompanion: true,
		AC: 13, HD: 2, HP: 8, HPMax: 8, Index: 1,
	}
	foeA := banditFoe("Bandit A")
	foeA.HP = 3
	foeB := banditFoe("Bandit B")
	foeB.HP, foeB.HPMax, foeB.Index = 6, 6, 1

	combat := &models.CombatState{
		PCSide:  []*models.Combatant{pc, guard},
		FoeSide: []*models.Combatant{foeA, foeB},
	}

	pairs := svc.companionTargets(combat)
	if len(pairs) != 1 || pairs[0].target != foeB {
		t.Errorf("companion target = %+v, want the PC's target Bandit B", pairs[0].target)
	}
}

func TestDefendingCompanionGetsACBonus(t *testing.T) {
	comp := banditFoe("Guard")
	comp.Defending = true
	if comp.EffectiveAC() != comp.AC+2 {
		t.Errorf("effective AC = %d, want %d", comp.EffectiveAC(), comp.AC+2)
	}
}

func TestMaxDamage(t *testing.T) {
	tests := []struct {
		expr string
		want int
		ok   bool
	}{
		{"1d8", 8, true},
		{"2d6+1", 13, true},
		{"1d6-1", 5, true},
		{"sword", 0, false},
	}
	for _, tt := range tests {
		got, ok := maxDamage(tt.expr)
		if got != tt.want || ok != tt.ok {
			t.Errorf("maxDamage(%q) = %d,%v want %d,%v", tt.expr, got, ok, tt.want, tt.ok)
		}
	}
}

func TestApplyResultsWritesBack(t *testing.T) {
	svc := newCombatService()
	state := combatTestState()
	state.NPCs["Tobb"] = &models.NPC{
		Name: "Tobb", Status: models.NPCStatusActive, IsCompanion: true, WithPC: true,
		Stats: models.StatBlock{AC: 12, HD: 1, HP: 5, HPMax: 5, Damage: "1d6", Morale: 8},
	}
	state.NPCs["Grist"] = &models.NPC{
		Name: "Grist", Status: models.NPCStatusActive, Zone: "Ashford",
		Stats: banditStats(),
	}

	combat := &models.CombatState{
		Round:     3,
		EndReason: models.CombatEndAllFoesDead,
		Ended:     true,
		PCSide: []*models.Combatant{
			{Name: "Marrin", IsPC: true, HP: 7, HPMax: 16},
			{Name: "Tobb", IsCompanion: true, HP: -2, HPMax: 5, Down: true},
		},
		FoeSide: []*models.Combatant{
			{Name: "Grist", Side: models.SideFoe, HP: -3, Down: true},
		},
	}

	svc.ApplyResults(state, combat)

	if state.PC.Stats.HP != 7 {
		t.Errorf("PC HP = %d, want 7", state.PC.Stats.HP)
	}
	if got := state.NPCs["Tobb"].Stats.HP; got != 1 {
		t.Errorf("downed companion HP = %d, want stabilized at 1", got)
	}
	grist := state.NPCs["Grist"]
	if grist.Status != models.NPCStatusDead || grist.Stats.HP != 0 {
		t.Errorf("dead foe = %q/%d", grist.Status, grist.Stats.HP)
	}
	if len(state.DailyFacts) == 0 {
		t.Error("combat outcome should land in daily facts")
	}
}
