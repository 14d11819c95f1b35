// internal/services/combat_service.go
package services

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Corphon/SoloRealmMCP/internal/dice"
	apperrors "github.com/Corphon/SoloRealmMCP/internal/errors"
	"github.com/Corphon/SoloRealmMCP/internal/models"
	"github.com/Corphon/SoloRealmMCP/internal/utils"
)

// Morale-immune creature tags.
var moraleImmuneTags = map[string]bool{
	"undead":   true,
	"mindless": true,
	"fearless": true,
}

var (
	foeCountDicePattern = regexp.MustCompile(`(\d+d\d+(?:[+-]\d+)?)\s+\w`)
	foeCountNumPattern  = regexp.MustCompile(`(\d+)\s+(?:of\s+)?\w`)
	damageExprPattern   = regexp.MustCompile(`^(\d*)d(\d+)([+-]\d+)?`)
)

// AttackResult records one attack resolution inside a round.
type AttackResult struct {
	Attacker     string `json:"attacker"`
	AttackerSide string `json:"attacker_side"`
	Target       string `json:"target"`
	AttackRoll   int    `json:"attack_roll"`
	AttackTotal  int    `json:"attack_total"`
	TargetAC     int    `json:"target_ac"`
	Hit          bool   `json:"hit"`
	DamageExpr   string `json:"damage_expr,omitempty"`
	Damage       int    `json:"damage,omitempty"`
	Kill         bool   `json:"kill,omitempty"`
	Log          string `json:"log"`
}

// MoraleResult records one morale check.
type MoraleResult struct {
	Combatant string `json:"combatant"`
	Immune    bool   `json:"immune,omitempty"`
	Passed    bool   `json:"passed"`
	Roll      int    `json:"roll,omitempty"`
	Target    int    `json:"target,omitempty"`
	Result    string `json:"result,omitempty"`
}

// InitiativeResult records the opposed 1d6 initiative for one round.
type InitiativeResult struct {
	PCRoll   int    `json:"pc_roll"`
	FoeRoll  int    `json:"foe_roll"`
	Winner   string `json:"winner"`
	Decision string `json:"decision"`
}

// RoundResult is the full audit record of one combat round.
type RoundResult struct {
	Round          int               `json:"round"`
	Action         string            `json:"action"`
	Initiative     *InitiativeResult `json:"initiative,omitempty"`
	Attacks        []AttackResult    `json:"attacks"`
	Casualties     []string          `json:"casualties,omitempty"`
	MoraleTriggers []string          `json:"morale_triggers,omitempty"`
	MoraleResults  []MoraleResult    `json:"morale_results,omitempty"`
	Summary        string            `json:"summary"`
}

type roundEvents struct {
	attacks    []AttackResult
	casualties []*models.Combatant
}

// CombatService runs round-by-round encounter resolution. Every die it
// throws goes through the shared roller so the full combat is auditable.
type CombatService struct {
	roller *dice.Roller
	logger *utils.Logger
}

// NewCombatService creates the combat service.
func NewCombatService(roller *dice.Roller) *CombatService {
	return &CombatService{roller: roller, logger: utils.GetLogger()}
}

// BuildPCCombatant projects the player character into a combatant.
func (s *CombatService) BuildPCCombatant(state *models.SessionState) *models.Combatant {
	pc := state.PC
	name := "Adventurer"
	stats := models.StatBlock{AC: 12, HD: 1, HP: 6, HPMax: 6, Attack: 1, Damage: "1d6", Morale: 12}
	if pc != nil {
		if pc.Name != "" {
			name = pc.Name
		}
		if pc.Stats.HPMax > 0 {
			stats = pc.Stats
		}
	}
	return &models.Combatant{
		Name:   name,
		Side:   models.SidePC,
		AC:     stats.AC,
		HD:     stats.HD,
		HP:     stats.HP,
		HPMax:  stats.HPMax,
		Attack: stats.Attack,
		Damage: stats.Damage,
		Morale: stats.Morale,
		IsPC:   true,
	}
}

// BuildCompanionCombatants projects every active companion travelling with
// the PC, sorted by hit dice descending.
func (s *CombatService) BuildCompanionCombatants(state *models.SessionState) []*models.Combatant {
	var out []*models.Combatant
	for _, npc := range state.Companions() {
		if npc.Stats.HP <= 0 {
			continue
		}
		out = append(out, &models.Combatant{
			Name:        npc.Name,
			Side:        models.SidePC,
			AC:          npc.Stats.AC,
			HD:          npc.Stats.HD,
			HP:          npc.Stats.HP,
			HPMax:       npc.Stats.HPMax,
			Attack:      npc.Stats.Attack,
			Damage:      npc.Stats.Damage,
			Morale:      npc.Stats.Morale,
			Tags:        npc.Tags,
			IsCompanion: true,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HD != out[j].HD {
			return out[i].HD > out[j].HD
		}
		return out[i].Name < out[j].Name
	})
	for i, c := range out {
		c.Index = i + 1
	}
	return out
}

// FoesFromNPC builds a single-foe side from a persistent NPC record.
func (s *CombatService) FoesFromNPC(npc *models.NPC) []*models.Combatant {
	stats := npc.Stats
	if stats.HPMax <= 0 {
		stats = models.StatBlock{AC: 12, HD: 1, HP: 6, HPMax: 6, Attack: 1, Damage: "1d6", Morale: 7}
	}
	return []*models.Combatant{{
		Name:   npc.Name,
		Side:   models.SideFoe,
		AC:     stats.AC,
		HD:     stats.HD,
		HP:     stats.HP,
		HPMax:  stats.HPMax,
		Attack: stats.Attack,
		Damage: stats.Damage,
		Morale: stats.Morale,
		Tags:   npc.Tags,
	}}
}

// ParseFoeSpec builds a foe side from a compact stat string such as
// "AC=13, HD=1, hp=6/6, AT=+2, Dmg=1d6, ML=8". The foe count comes from
// the encounter prompt when it names one ("2d4 scouts", "3 bandits");
// otherwise a single foe is built.
func (s *CombatService) ParseFoeSpec(name, spec, prompt string, tags []string) []*models.Combatant {
	stats := parseStatString(spec)
	if name == "" {
		name = "Foe"
	}
	count := s.extractFoeCount(prompt)
	out := make([]*models.Combatant, 0, count)
	for i := 0; i < count; i++ {
		label := name
		if count > 1 {
			label = fmt.Sprintf("%s #%d", name, i+1)
		}
		out = append(out, &models.Combatant{
			Name:   label,
			Side:   models.SideFoe,
			AC:     stats.AC,
			HD:     stats.HD,
			HP:     stats.HP,
			HPMax:  stats.HPMax,
			Attack: stats.Attack,
			Damage: stats.Damage,
			Morale: stats.Morale,
			Tags:   tags,
			Index:  i,
		})
	}
	return out
}

func parseStatString(spec string) models.StatBlock {
	stats := models.StatBlock{AC: 10, HD: 1, HP: 4, HPMax: 4, Attack: 0, Damage: "1d4", Morale: 7}
	for _, part := range strings.Split(spec, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)
		switch key {
		case "ac":
			stats.AC = atoiDefault(val, stats.AC)
		case "hd":
			stats.HD = atoiDefault(val, stats.HD)
		case "hp":
			if cur, max, ok := strings.Cut(val, "/"); ok {
				stats.HP = atoiDefault(cur, stats.HP)
				stats.HPMax = atoiDefault(max, stats.HP)
			} else {
				stats.HP = atoiDefault(val, stats.HP)
				stats.HPMax = stats.HP
			}
		case "at":
			stats.Attack = atoiDefault(strings.TrimPrefix(val, "+"), stats.Attack)
		case "dmg":
			stats.Damage = val
		case "ml":
			stats.Morale = atoiDefault(val, stats.Morale)
		}
	}
	return stats
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func (s *CombatService) extractFoeCount(prompt string) int {
	if m := foeCountDicePattern.FindStringSubmatch(prompt); m != nil {
		roll, err := s.roller.Roll(m[1], "foe count")
		if err == nil && roll.Total > 0 {
			return roll.Total
		}
	}
	if m := foeCountNumPattern.FindStringSubmatch(prompt); m != nil {
		if n := atoiDefault(m[1], 1); n > 1 && n <= 20 {
			return n
		}
	}
	return 1
}

// InitCombat assembles both sides and logs the opening roster.
func (s *CombatService) InitCombat(state *models.SessionState, foes []*models.Combatant, prompt string) (*models.CombatState, error) {
	if len(foes) == 0 {
		return nil, apperrors.NewValidationError("combat needs at least one foe", nil)
	}

	pcSide := append([]*models.Combatant{s.BuildPCCombatant(state)}, s.BuildCompanionCombatants(state)...)
	for i, f := range foes {
		f.Side = models.SideFoe
		f.Index = i
	}

	combat := &models.CombatState{
		Round:        1,
		PCSide:       pcSide,
		FoeSide:      foes,
		StartingPC:   len(pcSide),
		StartingFoes: len(foes),
		Prompt:       prompt,
	}

	combat.AddLog("=== COMBAT START ===")
	if prompt != "" {
		combat.AddLog("Encounter: " + truncate(prompt, 80))
	}
	combat.AddLog(fmt.Sprintf("PC side (%d):", len(pcSide)))
	for _, c := range pcSide {
		role := " [Companion]"
		if c.IsPC {
			role = " [PC]"
		}
		combat.AddLog(fmt.Sprintf("  %s%s: AC=%d HD=%d HP=%d/%d AT=+%d Dmg=%s ML=%d",
			c.Name, role, c.AC, c.HD, c.HP, c.HPMax, c.Attack, c.Damage, c.Morale))
	}
	combat.AddLog(fmt.Sprintf("Foe side (%d):", len(foes)))
	for _, c := range foes {
		tags := ""
		if len(c.Tags) > 0 {
			tags = " [" + strings.Join(c.Tags, ",") + "]"
		}
		combat.AddLog(fmt.Sprintf("  %s%s: AC=%d HD=%d HP=%d/%d AT=+%d Dmg=%s ML=%d",
			c.Name, tags, c.AC, c.HD, c.HP, c.HPMax, c.Attack, c.Damage, c.Morale))
	}
	return combat, nil
}

// ResolveAttackRound runs one full round where the player chose to attack:
// initiative, both sides' attacks in winner order, companion morale, then
// foe morale triggers.
func (s *CombatService) ResolveAttackRound(combat *models.CombatState) (*RoundResult, error) {
	if combat == nil || combat.Ended {
		return nil, apperrors.NewValidationError("combat is not running", nil)
	}
	combat.AddLog(fmt.Sprintf("--- Round %d: ATTACK ---", combat.Round))

	events := &roundEvents{}
	init := s.rollInitiative(combat)

	if init.Winner == models.SidePC {
		s.resolvePCSideAttacks(combat, events)
		if !s.checkCombatEnd(combat) && len(combat.LivingFoes()) > 0 {
			s.resolveFoeAttacks(combat, events)
		}
	} else {
		s.resolveFoeAttacks(combat, events)
		if !s.checkCombatEnd(combat) && len(combat.LivingPCSide()) > 0 {
			s.resolvePCSideAttacks(combat, events)
		}
	}
	s.checkCombatEnd(combat)

	moraleResults := s.checkCompanionMorale(combat)

	triggers := s.evaluateMoraleTriggers(combat, events)
	if len(triggers) > 0 && !combat.Ended {
		combat.AddLog("Morale triggers: " + strings.Join(triggers, ", "))
		for _, foe := range combat.LivingFoes() {
			mr := s.rollMorale(foe)
			if mr.Immune {
				combat.AddLog(fmt.Sprintf("Morale: %s - IMMUNE (%s)", foe.Name, strings.Join(foe.Tags, ",")))
			} else if mr.Passed {
				combat.AddLog(fmt.Sprintf("Morale: %s - 2d6=%d vs ML=%d -> PASS", foe.Name, mr.Roll, mr.Target))
			} else {
				foe.Broken = true
				mr.Result = "broken"
				combat.AddLog(fmt.Sprintf("Morale: %s - 2d6=%d vs ML=%d -> FAIL (BROKEN)", foe.Name, mr.Roll, mr.Target))
			}
			moraleResults = append(moraleResults, mr)
		}
		s.checkCombatEnd(combat)
	}

	result := &RoundResult{
		Round:          combat.Round,
		Action:         "attack",
		Initiative:     init,
		Attacks:        events.attacks,
		Casualties:     casualtyNames(events.casualties),
		MoraleTriggers: triggers,
		MoraleResults:  moraleResults,
		Summary:        roundSummary(events, moraleResults),
	}
	if !combat.Ended {
		combat.Round++
	}
	return result, nil
}

// ResolveFleeRound resolves a flee attempt: the healthiest foe takes a free
// attack at the PC, every companion eats one free attack in round-robin,
// then the combat ends. A PC drop during the free attack ends it the other
// way.
func (s *CombatService) ResolveFleeRound(combat *models.CombatState) (*RoundResult, error) {
	if combat == nil || combat.Ended {
		return nil, apperrors.NewValidationError("combat is not running", nil)
	}
	combat.AddLog(fmt.Sprintf("--- Round %d: FLEE ---", combat.Round))

	events := &roundEvents{}
	pc := combat.PC()

	if pc != nil && !pc.Down {
		if attacker := healthiest(combat.LivingFoes()); attacker != nil {
			res := s.resolveAttack(attacker, pc)
			res.AttackerSide = models.SideFoe
			events.attacks = append(events.attacks, res)
			combat.AddLog("FLEE-FreeAttack: " + res.Log)
			if res.Kill {
				events.casualties = append(events.casualties, pc)
				combat.AddLog("  PC DOWN during flee: " + pc.Name)
				combat.Ended = true
				combat.EndReason = models.CombatEndPCDown
				return &RoundResult{
					Round:      combat.Round,
					Action:     "flee",
					Attacks:    events.attacks,
					Casualties: []string{pc.Name},
					Summary:    "PC downed during flee attempt",
				}, nil
			}
		}
	}

	var companions []*models.Combatant
	for _, c := range combat.LivingPCSide() {
		if c.IsCompanion {
			companions = append(companions, c)
		}
	}
	foes := combat.LivingFoes()
	for i, comp := range companions {
		if len(foes) == 0 {
			break
		}
		attacker := foes[i%len(foes)]
		res := s.resolveAttack(attacker, comp)
		res.AttackerSide = models.SideFoe
		events.attacks = append(events.attacks, res)
		combat.AddLog("FLEE-FreeAttack: " + res.Log)
		if res.Kill {
			events.casualties = append(events.casualties, comp)
			combat.AddLog("  Companion DOWN during flee: " + comp.Name)
		}
	}

	combat.Ended = true
	combat.EndReason = models.CombatEndFleeSuccess
	combat.AddLog("CombatEnd: " + models.CombatEndFleeSuccess)

	summary := "Fled combat successfully"
	if n := len(events.casualties); n > 0 {
		summary = fmt.Sprintf("Fled, %d companion(s) downed", n)
	}
	return &RoundResult{
		Round:      combat.Round,
		Action:     "flee",
		Attacks:    events.attacks,
		Casualties: casualtyNames(events.casualties),
		Summary:    summary,
	}, nil
}

// ApplyResults writes combat outcomes back to persistent state: PC and
// companion hit points, dead foes, and the daily facts the audit reads.
func (s *CombatService) ApplyResults(state *models.SessionState, combat *models.CombatState) {
	pc := combat.PC()
	if pc != nil && state.PC != nil {
		state.PC.Stats.HP = max(0, pc.HP)
	}

	for _, c := range combat.PCSide {
		if !c.IsCompanion {
			continue
		}
		npc := state.GetNPC(c.Name)
		if npc == nil {
			continue
		}
		if c.Down {
			// Downed companions stabilize after combat.
			npc.Stats.HP = 1
		} else {
			npc.Stats.HP = max(0, c.HP)
		}
	}

	var foeCasualties []string
	for _, foe := range combat.FoeSide {
		if !foe.Down {
			continue
		}
		foeCasualties = append(foeCasualties, foe.Name)
		if npc := state.GetNPC(foe.Name); npc != nil {
			npc.Status = models.NPCStatusDead
			npc.Stats.HP = 0
		}
	}

	var pcSideDown []string
	for _, c := range combat.PCSide {
		if c.Down {
			pcSideDown = append(pcSideDown, c.Name)
		}
	}

	state.AppendLog("combat", fmt.Sprintf("%s in %s: %s after %d round(s)",
		truncate(combat.Prompt, 80), state.PCZone, combat.EndReason, combat.Round))

	state.AddFact(fmt.Sprintf("Combat in %s: %s (%d rounds)",
		state.PCZone, combat.EndReason, combat.Round))
	if len(foeCasualties) > 0 {
		state.AddFact("Defeated: " + strings.Join(foeCasualties, ", "))
	}
	if len(pcSideDown) > 0 {
		state.AddFact("Downed in combat: " + strings.Join(pcSideDown, ", "))
	}
}

// rollInitiative throws an opposed 1d6. A tie goes to the side with the
// higher average hit dice among the living; a second tie forces a reroll
// where the PC side wins even results.
func (s *CombatService) rollInitiative(combat *models.CombatState) *InitiativeResult {
	pcRoll := s.roller.RollDie(6, "initiative: pc side")
	foeRoll := s.roller.RollDie(6, "initiative: foe side")

	res := &InitiativeResult{PCRoll: pcRoll, FoeRoll: foeRoll}
	switch {
	case pcRoll > foeRoll:
		res.Winner, res.Decision = models.SidePC, "roll"
	case foeRoll > pcRoll:
		res.Winner, res.Decision = models.SideFoe, "roll"
	default:
		pcHD := averageHD(combat.LivingPCSide())
		foeHD := averageHD(combat.LivingFoes())
		switch {
		case pcHD > foeHD:
			res.Winner, res.Decision = models.SidePC, "tie: higher average HD"
		case foeHD > pcHD:
			res.Winner, res.Decision = models.SideFoe, "tie: higher average HD"
		default:
			pcRe := s.roller.RollDie(6, "initiative reroll: pc side")
			foeRe := s.roller.RollDie(6, "initiative reroll: foe side")
			if pcRe >= foeRe {
				res.Winner = models.SidePC
			} else {
				res.Winner = models.SideFoe
			}
			res.Decision = fmt.Sprintf("reroll %d vs %d", pcRe, foeRe)
		}
	}

	combat.Initiative = res.Winner
	combat.AddLog(fmt.Sprintf("Initiative: PC=%d Foe=%d -> %s (%s)",
		pcRoll, foeRoll, res.Winner, res.Decision))
	return res
}

func averageHD(side []*models.Combatant) float64 {
	if len(side) == 0 {
		return 0
	}
	total := 0
	for _, c := range side {
		total += c.HD
	}
	return float64(total) / float64(len(side))
}

// resolveAttack throws a d20, compares against effective AC, and applies
// damage with a floor of zero.
func (s *CombatService) resolveAttack(attacker, target *models.Combatant) AttackResult {
	d20 := s.roller.RollDie(20, fmt.Sprintf("attack: %s vs %s", attacker.Name, target.Name))
	total := d20 + attacker.Attack
	ac := target.EffectiveAC()

	res := AttackResult{
		Attacker:     attacker.Name,
		AttackerSide: attacker.Side,
		Target:       target.Name,
		AttackRoll:   d20,
		AttackTotal:  total,
		TargetAC:     ac,
		DamageExpr:   attacker.Damage,
	}

	if total < ac {
		res.Log = fmt.Sprintf("Attack: %s -> %s, d20=%d + AT=%d = %d vs AC=%d -> MISS",
			attacker.Name, target.Name, d20, attacker.Attack, total, ac)
		return res
	}

	res.Hit = true
	dmg := 0
	if roll, err := s.roller.Roll(attacker.Damage, fmt.Sprintf("damage: %s", attacker.Name)); err == nil {
		dmg = max(0, roll.Total)
	} else {
		s.logger.Warnf("unparseable damage expression %q for %s", attacker.Damage, attacker.Name)
	}

	before := target.HP
	target.HP -= dmg
	attacker.DamageDealt += dmg
	killed := ""
	if target.HP <= 0 {
		target.Down = true
		res.Kill = true
		killed = " KILLED"
	}
	res.Damage = dmg
	res.Log = fmt.Sprintf("Attack: %s -> %s, d20=%d + AT=%d = %d vs AC=%d -> HIT, Dmg=%s=%d, HP: %d->%d%s",
		attacker.Name, target.Name, d20, attacker.Attack, total, ac,
		attacker.Damage, dmg, before, target.HP, killed)
	return res
}

func (s *CombatService) resolvePCSideAttacks(combat *models.CombatState, events *roundEvents) {
	pc := combat.PC()
	if pc != nil && !pc.Down {
		if target := healthiest(combat.LivingFoes()); target != nil {
			s.applyAttack(combat, events, pc, target, models.SidePC)
		}
	}
	for _, pair := range s.companionTargets(combat) {
		comp, target := pair.attacker, pair.target
		if comp.Down || comp.Defending {
			continue
		}
		if target != nil && !target.Down {
			s.applyAttack(combat, events, comp, target, models.SidePC)
		}
	}
}

func (s *CombatService) resolveFoeAttacks(combat *models.CombatState, events *roundEvents) {
	for _, pair := range s.foeTargets(combat) {
		foe, target := pair.attacker, pair.target
		if foe.Down || foe.Broken {
			continue
		}
		if target != nil && !target.Down {
			s.applyAttack(combat, events, foe, target, models.SideFoe)
		}
	}
}

func (s *CombatService) applyAttack(combat *models.CombatState, events *roundEvents, attacker, target *models.Combatant, side string) {
	res := s.resolveAttack(attacker, target)
	res.AttackerSide = side
	events.attacks = append(events.attacks, res)
	combat.AddLog(res.Log)
	if res.Kill {
		events.casualties = append(events.casualties, target)
		switch {
		case target.IsPC:
			combat.AddLog("  PC DOWN: " + target.Name)
		case target.IsCompanion:
			combat.AddLog("  Companion DOWN: " + target.Name)
		default:
			combat.AddLog("  Casualty: " + target.Name + " removed")
		}
	}
}

type targetPair struct {
	attacker *models.Combatant
	target   *models.Combatant
}

// companionTargets assigns each companion a foe. Companions follow the PC's
// target by default; when the PC is at half hit points or less the highest
// hit-die companion covers the PC by striking the healthiest foe currently
// targeting the PC, and excess companions spread to distinct healthy foes.
func (s *CombatService) companionTargets(combat *models.CombatState) []targetPair {
	pc := combat.PC()
	var companions []*models.Combatant
	for _, c := range combat.LivingPCSide() {
		if c.IsCompanion && !c.Defending {
			companions = append(companions, c)
		}
	}
	foes := combat.LivingFoes()
	if len(companions) == 0 || len(foes) == 0 {
		return nil
	}

	pcTarget := healthiest(foes)

	var defender *models.Combatant
	var defenderTarget *models.Combatant
	if pc != nil && pc.HPMax > 0 && float64(pc.HP) <= float64(pc.HPMax)*0.5 {
		defender = companions[0]
		for _, c := range companions[1:] {
			if c.HD > defender.HD {
				defender = c
			}
		}
		var pcAttackers []*models.Combatant
		for _, p := range s.foeTargets(combat) {
			if p.target != nil && p.target.IsPC {
				pcAttackers = append(pcAttackers, p.attacker)
			}
		}
		defenderTarget = healthiest(pcAttackers)
	}

	pairs := make([]targetPair, 0, len(companions))
	for _, comp := range companions {
		target := pcTarget
		if comp == defender && defenderTarget != nil {
			target = defenderTarget
		}
		if target == nil {
			target = healthiest(foes)
		}
		pairs = append(pairs, targetPair{comp, target})
	}

	// Spread excess companions across untargeted foes. The defender keeps
	// its redirect target.
	if len(pairs) > 1 && len(foes) > 1 {
		used := map[string]bool{}
		if defender != nil && defenderTarget != nil {
			used[defenderTarget.Name] = true
		}
		for i, p := range pairs {
			if p.target == nil || p.attacker == defender {
				continue
			}
			if !used[p.target.Name] {
				used[p.target.Name] = true
				continue
			}
			for _, f := range sortedByHealth(foes) {
				if !used[f.Name] {
					pairs[i].target = f
					used[f.Name] = true
					break
				}
			}
		}
	}
	return pairs
}

// foeTargets assigns each foe its target. Foes pile on the PC until they
// outnumber the PC side, then distribute in priority order: PC first, then
// companions by damage dealt.
func (s *CombatService) foeTargets(combat *models.CombatState) []targetPair {
	pc := combat.PC()
	foes := combat.LivingFoes()
	pcSide := combat.LivingPCSide()
	if len(foes) == 0 || len(pcSide) == 0 {
		return nil
	}

	if pc == nil || pc.Down {
		pairs := make([]targetPair, 0, len(foes))
		for _, foe := range foes {
			pairs = append(pairs, targetPair{foe, healthiest(pcSide)})
		}
		return pairs
	}

	if len(foes) <= len(pcSide) {
		pairs := make([]targetPair, 0, len(foes))
		for _, foe := range foes {
			pairs = append(pairs, targetPair{foe, pc})
		}
		return pairs
	}

	priority := []*models.Combatant{pc}
	var companions []*models.Combatant
	for _, c := range pcSide {
		if c.IsCompanion {
			companions = append(companions, c)
		}
	}
	sort.SliceStable(companions, func(i, j int) bool {
		if companions[i].DamageDealt != companions[j].DamageDealt {
			return companions[i].DamageDealt > companions[j].DamageDealt
		}
		if companions[i].AC != companions[j].AC {
			return companions[i].AC < companions[j].AC
		}
		return companions[i].Index < companions[j].Index
	})
	priority = append(priority, companions...)

	pairs := make([]targetPair, 0, len(foes))
	for i, foe := range foes {
		pairs = append(pairs, targetPair{foe, priority[i%len(priority)]})
	}
	return pairs
}

// healthiest picks the combatant with the most hit points, lowest index on
// ties.
func healthiest(side []*models.Combatant) *models.Combatant {
	var best *models.Combatant
	for _, c := range side {
		if c.Down || c.Broken {
			continue
		}
		if best == nil || c.HP > best.HP || (c.HP == best.HP && c.Index < best.Index) {
			best = c
		}
	}
	return best
}

func sortedByHealth(side []*models.Combatant) []*models.Combatant {
	out := append([]*models.Combatant{}, side...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HP != out[j].HP {
			return out[i].HP > out[j].HP
		}
		return out[i].Index < out[j].Index
	})
	return out
}

func moraleImmune(c *models.Combatant) bool {
	for _, t := range c.Tags {
		if moraleImmuneTags[strings.ToLower(t)] {
			return true
		}
	}
	return false
}

// rollMorale throws 2d6 against the combatant's morale score. Equal or
// under stands.
func (s *CombatService) rollMorale(c *models.Combatant) MoraleResult {
	if moraleImmune(c) {
		return MoraleResult{Combatant: c.Name, Immune: true, Passed: true}
	}
	roll, err := s.roller.Roll("2d6", "morale: "+c.Name)
	if err != nil {
		return MoraleResult{Combatant: c.Name, Passed: true}
	}
	return MoraleResult{
		Combatant: c.Name,
		Passed:    roll.Total <= c.Morale,
		Roll:      roll.Total,
		Target:    c.Morale,
	}
}

// evaluateMoraleTriggers checks this round's events for the conditions that
// force a foe-side morale check: first casualty, a leader or elite going
// down, half the starting force lost, being outnumbered two to one, and a
// maximum-damage hit from the PC side.
func (s *CombatService) evaluateMoraleTriggers(combat *models.CombatState, events *roundEvents) []string {
	var foeCasualties []*models.Combatant
	for _, c := range events.casualties {
		if c.Side == models.SideFoe {
			foeCasualties = append(foeCasualties, c)
		}
	}
	if len(foeCasualties) == 0 {
		return nil
	}

	var triggers []string

	totalDown := 0
	for _, f := range combat.FoeSide {
		if f.Down {
			totalDown++
		}
	}
	if totalDown == len(foeCasualties) {
		triggers = append(triggers, "first casualty")
	}

	for _, c := range foeCasualties {
		for _, t := range c.Tags {
			lt := strings.ToLower(t)
			if lt == "leader" || lt == "elite" {
				triggers = append(triggers, fmt.Sprintf("leader/elite dropped (%s)", c.Name))
				break
			}
		}
	}

	standing := len(combat.StandingFoes())
	if float64(standing) <= float64(combat.StartingFoes)/2 {
		triggers = append(triggers, "half force down")
	}

	livingPC := len(combat.LivingPCSide())
	if standing > 0 && livingPC >= standing*2 {
		triggers = append(triggers, "outnumbered two to one")
	}

	for _, atk := range events.attacks {
		if !atk.Hit || atk.AttackerSide != models.SidePC {
			continue
		}
		if maxDmg, ok := maxDamage(atk.DamageExpr); ok && atk.Damage >= maxDmg && maxDmg > 0 {
			triggers = append(triggers, "maximum damage hit")
		}
	}
	return triggers
}

func maxDamage(expr string) (int, bool) {
	m := damageExprPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(expr)))
	if m == nil {
		return 0, false
	}
	count := 1
	if m[1] != "" {
		count = atoiDefault(m[1], 1)
	}
	sides := atoiDefault(m[2], 0)
	mod := 0
	if m[3] != "" {
		mod = atoiDefault(m[3], 0)
	}
	return count*sides + mod, true
}

// checkCompanionMorale runs the companion check once the PC is at a quarter
// of maximum hit points. A failing companion with morale 10 or better turns
// defensive (no attacks, AC bonus); below 10 it flees.
func (s *CombatService) checkCompanionMorale(combat *models.CombatState) []MoraleResult {
	pc := combat.PC()
	if pc == nil || pc.HPMax <= 0 || float64(pc.HP) > float64(pc.HPMax)*0.25 {
		return nil
	}

	var results []MoraleResult
	for _, comp := range combat.LivingPCSide() {
		if !comp.IsCompanion || comp.Defending {
			continue
		}
		mr := s.rollMorale(comp)
		switch {
		case mr.Immune:
		case !mr.Passed && comp.Morale >= 10:
			comp.Defending = true
			mr.Result = "defensive"
			combat.AddLog(fmt.Sprintf("Companion Morale FAIL: %s, fighting defensively (no attacks, AC+2)", comp.Name))
		case !mr.Passed:
			comp.Fled = true
			mr.Result = "fled"
			combat.AddLog(fmt.Sprintf("Companion Morale FAIL: %s, fled combat", comp.Name))
		default:
			mr.Result = "stands"
		}
		results = append(results, mr)
	}
	return results
}

// checkCombatEnd evaluates end conditions in precedence order: PC down,
// all foes dead, every standing foe broken.
func (s *CombatService) checkCombatEnd(combat *models.CombatState) bool {
	if combat.Ended {
		return true
	}

	pc := combat.PC()
	if pc == nil || pc.Down {
		combat.Ended = true
		combat.EndReason = models.CombatEndPCDown
		combat.AddLog("CombatEnd: " + models.CombatEndPCDown)
		return true
	}

	standing := combat.StandingFoes()
	if len(standing) == 0 {
		combat.Ended = true
		combat.EndReason = models.CombatEndAllFoesDead
		combat.AddLog("CombatEnd: " + models.CombatEndAllFoesDead)
		return true
	}

	allBroken := true
	for _, f := range standing {
		if !f.Broken {
			allBroken = false
			break
		}
	}
	if allBroken {
		combat.Ended = true
		combat.EndReason = models.CombatEndFoesBroke
		combat.AddLog("CombatEnd: " + models.CombatEndFoesBroke)
		return true
	}
	return false
}

func casualtyNames(casualties []*models.Combatant) []string {
	out := make([]string, 0, len(casualties))
	for _, c := range casualties {
		out = append(out, c.Name)
	}
	return out
}

func roundSummary(events *roundEvents, morale []MoraleResult) string {
	hits := 0
	for _, a := range events.attacks {
		if a.Hit {
			hits++
		}
	}
	parts := []string{fmt.Sprintf("%d/%d hits", hits, len(events.attacks))}
	if n := len(events.casualties); n > 0 {
		parts = append(parts, fmt.Sprintf("%d killed", n))
	}
	broken := 0
	for _, m := range morale {
		if !m.Passed && !m.Immune {
			broken++
		}
	}
	if broken > 0 {
		parts = append(parts, fmt.Sprintf("%d broke", broken))
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
