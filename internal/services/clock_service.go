// internal/services/clock_service.go
package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	apperrors "github.com/Corphon/SoloRealmMCP/internal/errors"
	"github.com/Corphon/SoloRealmMCP/internal/models"
	"github.com/Corphon/SoloRealmMCP/internal/utils"
)

// Keyword-match thresholds for halt conditions and the daily audit.
const (
	haltMatchRatio      = 0.6
	auditAutoRatio      = 0.8
	auditAmbiguousRatio = 0.4
)

// Common stop words excluded from keyword matching.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "has": true, "have": true,
	"or": true, "and": true, "in": true, "of": true, "to": true,
	"for": true, "with": true, "that": true, "this": true,
	"day": true, "passes": true, "while": true, "when": true,
	"if": true, "not": true, "no": true, "any": true,
}

// ClockService owns clock mutation and the daily rule evaluation.
type ClockService struct {
	logger *utils.Logger
}

// NewClockService creates the clock service.
func NewClockService() *ClockService {
	return &ClockService{logger: utils.GetLogger()}
}

// Advance ticks a named clock by amount. Fired, halted and retired clocks
// reject the advance.
func (s *ClockService) Advance(state *models.SessionState, name string, amount int, reason string) (models.ClockAdvance, error) {
	clock := state.GetClock(name)
	if clock == nil {
		return models.ClockAdvance{}, apperrors.NewNotFoundError(
			fmt.Sprintf("clock %q does not exist", name), nil)
	}
	if clock.Fired() {
		return models.ClockAdvance{}, apperrors.NewValidationError(
			fmt.Sprintf("clock %q has fired and is terminal", name), nil)
	}
	if clock.Status == models.ClockStatusHalted {
		return models.ClockAdvance{}, apperrors.NewValidationError(
			fmt.Sprintf("clock %q is halted", name), nil)
	}
	if clock.Status == models.ClockStatusRetired {
		return models.ClockAdvance{}, apperrors.NewValidationError(
			fmt.Sprintf("clock %q is retired", name), nil)
	}

	adv := clock.Advance(amount, reason, state.InGameDate, state.SessionID)
	state.AppendLog("clock_advance", fmt.Sprintf("%s: %d -> %d/%d (%s)",
		clock.Name, adv.Old, adv.New, adv.Max, reason))
	if adv.Fired {
		state.AddFact(fmt.Sprintf("TRIGGER FIRED: %s - %s", clock.Name, clock.TriggerOnCompletion))
		state.AppendLog("clock_fired", fmt.Sprintf("%s fired at %d/%d", clock.Name, adv.New, adv.Max))
	}
	return adv, nil
}

// Reduce lowers a named clock's progress, floor 0.
func (s *ClockService) Reduce(state *models.SessionState, name string, amount int, reason string) (int, error) {
	clock := state.GetClock(name)
	if clock == nil {
		return 0, apperrors.NewNotFoundError(
			fmt.Sprintf("clock %q does not exist", name), nil)
	}
	if clock.Fired() {
		return clock.Progress, apperrors.NewValidationError(
			fmt.Sprintf("clock %q has fired and is terminal", name), nil)
	}

	newProgress := clock.Reduce(amount)
	state.AppendLog("clock_reduce", fmt.Sprintf("%s reduced to %d/%d (%s)",
		clock.Name, newProgress, clock.MaxProgress, reason))
	return newProgress, nil
}

// Halt suspends a named clock until Resume.
func (s *ClockService) Halt(state *models.SessionState, name, reason string) error {
	clock := state.GetClock(name)
	if clock == nil {
		return apperrors.NewNotFoundError(fmt.Sprintf("clock %q does not exist", name), nil)
	}
	if !clock.Halt() {
		return apperrors.NewValidationError(
			fmt.Sprintf("clock %q is not active (status=%s)", name, clock.Status), nil)
	}
	state.AppendLog("clock_halt", fmt.Sprintf("%s halted: %s", clock.Name, reason))
	return nil
}

// Resume reactivates a halted clock.
func (s *ClockService) Resume(state *models.SessionState, name string) error {
	clock := state.GetClock(name)
	if clock == nil {
		return apperrors.NewNotFoundError(fmt.Sprintf("clock %q does not exist", name), nil)
	}
	if !clock.Resume() {
		return apperrors.NewValidationError(
			fmt.Sprintf("clock %q is not halted (status=%s)", name, clock.Status), nil)
	}
	state.AppendLog("clock_resume", fmt.Sprintf("%s resumed", clock.Name))
	return nil
}

// InteractionResults collects the effects of one interaction pass.
type InteractionResults struct {
	Flags    []string              `json:"flags,omitempty"`
	Advances []models.ClockAdvance `json:"advances,omitempty"`
	Halts    []string              `json:"halts,omitempty"`
	Spawns   []string              `json:"spawns,omitempty"`
	Skipped  []string              `json:"skipped,omitempty"`
}

// Any reports whether the pass had any effect.
func (r *InteractionResults) Any() bool {
	return len(r.Flags)+len(r.Advances)+len(r.Halts)+len(r.Spawns) > 0
}

// EvaluateInteractions runs every not-yet-fired rule against the current
// clock states and the day's facts. Single-pass: a clock advanced here
// does not retrigger other rules until the next day cycle. A malformed
// rule is skipped with a warning, never fatal.
func (s *ClockService) EvaluateInteractions(state *models.SessionState) *InteractionResults {
	results := &InteractionResults{}

	factsWords := factWordSet(state.DailyFacts)

	// Snapshot progress before the pass so effects applied in this pass
	// cannot enable later rules in the same pass.
	snapshot := make(map[string]int, len(state.Clocks))
	for name, c := range state.Clocks {
		snapshot[name] = c.Progress
	}

	for _, clock := range state.ClocksInOrder() {
		for i := range clock.Rules {
			rule := &clock.Rules[i]
			if rule.OneTime && state.FiredRules[rule.ID] {
				continue
			}

			if snapshot[clock.Name] < rule.OwnerAt {
				continue
			}

			if rule.TriggerClock != "" {
				other := state.GetClock(rule.TriggerClock)
				if other == nil {
					s.logger.Warnf("interaction rule %s references unknown clock %q, skipped",
						rule.ID, rule.TriggerClock)
					results.Skipped = append(results.Skipped, rule.ID)
					continue
				}
				if snapshot[other.Name] < rule.TriggerAt {
					continue
				}
			}

			if rule.TriggerKeyword != "" &&
				!keywordHit(rule.TriggerKeyword, factsWords) {
				continue
			}

			s.applyRuleEffect(state, clock, rule, results)

			if rule.OneTime {
				state.FiredRules[rule.ID] = true
			}
		}
	}

	return results
}

func (s *ClockService) applyRuleEffect(state *models.SessionState, owner *models.Clock, rule *models.InteractionRule, results *InteractionResults) {
	switch rule.Effect {
	case models.RuleEffectFlag:
		state.AddFact(fmt.Sprintf("[INTERACTION %s] %s", rule.ID, rule.FlagText))
		state.AppendLog("interaction_flag", fmt.Sprintf("%s: %s", rule.ID, rule.FlagText))
		results.Flags = append(results.Flags, rule.ID)

	case models.RuleEffectAdvance:
		target := state.GetClock(rule.TargetClock)
		if target == nil {
			s.logger.Warnf("interaction rule %s advance target %q does not exist, skipped",
				rule.ID, rule.TargetClock)
			results.Skipped = append(results.Skipped, rule.ID)
			return
		}
		if !target.CanAdvance() {
			results.Skipped = append(results.Skipped, rule.ID)
			return
		}
		amount := rule.Amount
		if amount < 1 {
			amount = 1
		}
		adv := target.Advance(amount,
			fmt.Sprintf("interaction rule %s via %s", rule.ID, owner.Name),
			state.InGameDate, state.SessionID)
		state.AddFact(fmt.Sprintf("[INTERACTION %s] Advanced %s: %d/%d",
			rule.ID, target.Name, adv.New, adv.Max))
		state.AppendLog("interaction_advance", fmt.Sprintf("%s advanced %s to %d/%d",
			rule.ID, target.Name, adv.New, adv.Max))
		results.Advances = append(results.Advances, adv)

	case models.RuleEffectHalt:
		target := state.GetClock(rule.TargetClock)
		if target == nil {
			s.logger.Warnf("interaction rule %s halt target %q does not exist, skipped",
				rule.ID, rule.TargetClock)
			results.Skipped = append(results.Skipped, rule.ID)
			return
		}
		if !target.Halt() {
			results.Skipped = append(results.Skipped, rule.ID)
			return
		}
		state.AppendLog("interaction_halt", fmt.Sprintf("%s halted %s", rule.ID, target.Name))
		results.Halts = append(results.Halts, target.Name)

	case models.RuleEffectSpawn:
		if rule.Spawn == nil {
			s.logger.Warnf("interaction rule %s has no spawn definition, skipped", rule.ID)
			results.Skipped = append(results.Skipped, rule.ID)
			return
		}
		if state.GetClock(rule.Spawn.Name) != nil {
			results.Skipped = append(results.Skipped, rule.ID)
			return
		}
		spawned := s.clockFromSpawn(rule.Spawn, state.SessionID)
		state.AddClock(spawned)
		state.AddFact(fmt.Sprintf("[INTERACTION %s] SPAWNED clock: %s (0/%d)",
			rule.ID, spawned.Name, spawned.MaxProgress))
		state.AppendLog("interaction_spawn", fmt.Sprintf("%s spawned %s", rule.ID, spawned.Name))
		results.Spawns = append(results.Spawns, spawned.Name)

	default:
		s.logger.Warnf("interaction rule %s has unknown effect %q, skipped", rule.ID, rule.Effect)
		results.Skipped = append(results.Skipped, rule.ID)
	}
}

func (s *ClockService) clockFromSpawn(spawn *models.ClockSpawn, session string) *models.Clock {
	maxProgress := spawn.MaxProgress
	if maxProgress < 1 {
		maxProgress = 4
	}
	return &models.Clock{
		Name:                spawn.Name,
		Owner:               spawn.Owner,
		MaxProgress:         maxProgress,
		Status:              models.ClockStatusActive,
		AdvanceBullets:      spawn.AdvanceBullets,
		HaltConditions:      spawn.HaltConditions,
		ReduceConditions:    spawn.ReduceConditions,
		TriggerOnCompletion: spawn.TriggerOnCompletion,
		CreatedSession:      session,
	}
}

// HaltResult records a halt condition that matched today.
type HaltResult struct {
	Clock     string  `json:"clock"`
	Condition string  `json:"condition"`
	Ratio     float64 `json:"ratio"`
}

// EvaluateHaltConditions checks every active clock's halt conditions
// against the day's facts. A condition whose keywords match at 60% or
// better halts the clock, at most once per clock per day.
func (s *ClockService) EvaluateHaltConditions(state *models.SessionState) []HaltResult {
	var results []HaltResult
	factsWords := factWordSet(state.DailyFacts)

	for _, clock := range state.ClocksInOrder() {
		if clock.Status != models.ClockStatusActive || len(clock.HaltConditions) == 0 {
			continue
		}
		if clock.HaltedThisDay {
			continue
		}

		for _, condition := range clock.HaltConditions {
			keywords := conditionKeywords(condition)
			if len(keywords) == 0 {
				continue
			}

			hits := 0
			for kw := range keywords {
				if factsWords[kw] {
					hits++
				}
			}
			ratio := float64(hits) / float64(len(keywords))

			if ratio >= haltMatchRatio {
				clock.Halt()
				clock.HaltedThisDay = true
				state.AddFact(fmt.Sprintf("Clock HALTED: %s - %s", clock.Name, condition))
				state.AppendLog("clock_halt", fmt.Sprintf("%s halted by condition %q (%.0f%% match)",
					clock.Name, condition, ratio*100))
				results = append(results, HaltResult{
					Clock:     clock.Name,
					Condition: condition,
					Ratio:     ratio,
				})
				break
			}
		}
	}

	return results
}

// AmbiguousBullet is an advance bullet the engine could not settle.
type AmbiguousBullet struct {
	Bullet string  `json:"bullet"`
	Ratio  float64 `json:"ratio"`
}

// AuditReview is a clock whose advance needs narrator judgment.
type AuditReview struct {
	Clock            string            `json:"clock"`
	Progress         string            `json:"progress"`
	AmbiguousBullets []AmbiguousBullet `json:"ambiguous_bullets"`
	DailyFacts       []string          `json:"daily_facts"`
}

// AuditResults is the outcome of the mandatory daily clock audit.
type AuditResults struct {
	AutoAdvanced []models.ClockAdvance `json:"auto_advanced,omitempty"`
	NeedsReview  []AuditReview         `json:"needs_review,omitempty"`
	Skipped      []string              `json:"skipped,omitempty"`
	NoMatch      []string              `json:"no_match,omitempty"`
}

// Audit scans every clock's advance bullets against the day's facts.
// An 80%+ whole-word keyword match advances the clock automatically;
// 40-80% defers to the narrator; bullets with fewer than two keywords
// are always ambiguous. Bullets naming a zone the PC is not in or
// adjacent to are skipped.
func (s *ClockService) Audit(state *models.SessionState) *AuditResults {
	results := &AuditResults{}
	factsWords := factWordSet(state.DailyFacts)

	localZones := localZoneSet(state)
	zoneNames := sortedZoneNames(state)

	for _, clock := range state.ClocksInOrder() {
		if !clock.CanAdvance() {
			results.Skipped = append(results.Skipped, clock.Name)
			continue
		}

		var matched []AmbiguousBullet
		var ambiguous []AmbiguousBullet

		for _, bullet := range clock.AdvanceBullets {
			bulletLower := strings.ToLower(bullet)

			if remote := bulletRemoteZone(bulletLower, zoneNames, localZones); remote != "" {
				continue
			}

			keywords := conditionKeywords(bullet)
			if len(keywords) < 2 {
				if len(keywords) > 0 {
					ambiguous = append(ambiguous, AmbiguousBullet{Bullet: bullet})
				}
				continue
			}

			hits := 0
			for kw := range keywords {
				if factsWords[kw] {
					hits++
				}
			}
			ratio := float64(hits) / float64(len(keywords))

			if ratio >= auditAutoRatio {
				matched = append(matched, AmbiguousBullet{Bullet: bullet, Ratio: ratio})
			} else if ratio >= auditAmbiguousRatio {
				ambiguous = append(ambiguous, AmbiguousBullet{Bullet: bullet, Ratio: ratio})
			}
		}

		switch {
		case len(matched) > 0:
			best := matched[0]
			adv := clock.Advance(1,
				fmt.Sprintf("clock audit: bullet %q satisfied (%.0f%% match)", best.Bullet, best.Ratio*100),
				state.InGameDate, state.SessionID)
			state.AddFact(fmt.Sprintf("Clock audit advanced %s: %d/%d",
				clock.Name, adv.New, clock.MaxProgress))
			state.AppendLog("clock_audit", fmt.Sprintf("advanced %s to %d/%d via %q",
				clock.Name, adv.New, adv.Max, best.Bullet))
			results.AutoAdvanced = append(results.AutoAdvanced, adv)

		case len(ambiguous) > 0:
			results.NeedsReview = append(results.NeedsReview, AuditReview{
				Clock:            clock.Name,
				Progress:         fmt.Sprintf("%d/%d", clock.Progress, clock.MaxProgress),
				AmbiguousBullets: ambiguous,
				DailyFacts:       append([]string(nil), state.DailyFacts...),
			})

		default:
			results.NoMatch = append(results.NoMatch, clock.Name)
		}
	}

	return results
}

// factWordSet builds the whole-word lookup set from the day's facts.
func factWordSet(facts []string) map[string]bool {
	words := make(map[string]bool)
	for _, fact := range facts {
		for _, w := range strings.Fields(strings.ToLower(fact)) {
			words[strings.Trim(w, ".,:;!?()[]\"'")] = true
		}
	}
	return words
}

// conditionKeywords splits a condition into lowercase keywords minus the
// stop words.
func conditionKeywords(condition string) map[string]bool {
	keywords := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(condition)) {
		w = strings.Trim(w, ".,:;!?()[]\"'")
		if w != "" && !stopWords[w] {
			keywords[w] = true
		}
	}
	return keywords
}

// keywordHit reports whether every keyword of the phrase appears in the
// day's fact words. Ambiguous matches are conservative.
func keywordHit(phrase string, factsWords map[string]bool) bool {
	keywords := conditionKeywords(phrase)
	if len(keywords) == 0 {
		return false
	}
	for kw := range keywords {
		if !factsWords[kw] {
			return false
		}
	}
	return true
}

// localZoneSet returns the PC's zone plus every zone one crossing away,
// lowercased.
func localZoneSet(state *models.SessionState) map[string]bool {
	local := map[string]bool{strings.ToLower(state.PCZone): true}
	if zone := state.GetZone(state.PCZone); zone != nil {
		for _, cp := range zone.CrossingPoints {
			if cp.Destination != "" {
				local[strings.ToLower(cp.Destination)] = true
			}
		}
	}
	return local
}

// sortedZoneNames returns every zone name lowercased, longest first, so
// "eastern scarps" matches before "scarps".
func sortedZoneNames(state *models.SessionState) []string {
	names := make([]string, 0, len(state.Zones))
	for name := range state.Zones {
		names = append(names, strings.ToLower(name))
	}
	sort.Slice(names, func(i, j int) bool {
		return len(names[i]) > len(names[j])
	})
	return names
}

// bulletRemoteZone returns the name of a non-local zone the bullet
// references, or "". Word-boundary matching prevents substring false
// positives.
func bulletRemoteZone(bulletLower string, zoneNames []string, localZones map[string]bool) string {
	for _, zone := range zoneNames {
		pattern := `\b` + regexp.QuoteMeta(zone) + `\b`
		matched, err := regexp.MatchString(pattern, bulletLower)
		if err != nil || !matched {
			continue
		}
		if localZones[zone] {
			return ""
		}
		return zone
	}
	return ""
}
