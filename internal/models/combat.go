// internal/models/combat.go
package models

// Combatant side tags.
const (
	SidePC  = "pc"
	SideFoe = "foe"
)

// Combat end reasons.
const (
	CombatEndAllFoesDead = "all_foes_dead"
	CombatEndFoesBroke   = "foes_broke"
	CombatEndFleeSuccess = "flee_success"
	CombatEndPCDown      = "pc_down"
)

// Combatant is a transient projection of a PC, companion or foe for the
// duration of one encounter. HP deltas are written back to the owning
// record when combat ends; the projection itself is then discarded.
type Combatant struct {
	Name        string   `json:"name"`
	Side        string   `json:"side"`
	AC          int      `json:"ac"`
	HD          int      `json:"hd"`
	HP          int      `json:"hp"`
	HPMax       int      `json:"hp_max"`
	Attack      int      `json:"attack"`
	Damage      string   `json:"damage"`
	Morale      int      `json:"morale"`
	Tags        []string `json:"tags,omitempty"`
	IsPC        bool     `json:"is_pc,omitempty"`
	IsCompanion bool     `json:"is_companion,omitempty"`
	Down        bool     `json:"down,omitempty"`
	Broken      bool     `json:"broken,omitempty"`
	Fled        bool     `json:"fled,omitempty"`
	Defending   bool     `json:"defending,omitempty"`
	DamageDealt int      `json:"damage_dealt,omitempty"`
	Index       int      `json:"index"`
}

// Alive reports whether the combatant can still act.
func (c *Combatant) Alive() bool {
	return !c.Down && !c.Broken && !c.Fled
}

// HPFraction returns the combatant's remaining hit-point fraction.
func (c *Combatant) HPFraction() float64 {
	if c.HPMax <= 0 {
		return 0
	}
	return float64(c.HP) / float64(c.HPMax)
}

// EffectiveAC returns the armor class including the defending bonus.
func (c *Combatant) EffectiveAC() int {
	if c.Defending {
		return c.AC + 2
	}
	return c.AC
}

// CombatState is the live record of a single encounter. It exists only
// between combat start and combat end.
type CombatState struct {
	Round         int          `json:"round"`
	PCSide        []*Combatant `json:"pc_side"`
	FoeSide       []*Combatant `json:"foe_side"`
	StartingPC    int          `json:"starting_pc"`
	StartingFoes  int          `json:"starting_foes"`
	FirstCasualty bool         `json:"first_casualty,omitempty"`
	Initiative    string       `json:"initiative,omitempty"`
	Log           []string     `json:"log"`
	Ended         bool         `json:"ended"`
	EndReason     string       `json:"end_reason,omitempty"`
	Prompt        string       `json:"prompt,omitempty"`
}

// PC returns the player-character combatant, or nil.
func (cs *CombatState) PC() *Combatant {
	for _, c := range cs.PCSide {
		if c.IsPC {
			return c
		}
	}
	return nil
}

// LivingFoes returns foes that are still up and unbroken.
func (cs *CombatState) LivingFoes() []*Combatant {
	var out []*Combatant
	for _, f := range cs.FoeSide {
		if f.Alive() {
			out = append(out, f)
		}
	}
	return out
}

// StandingFoes returns foes that are not down, broken foes included.
// End-condition checks need them; target selection does not.
func (cs *CombatState) StandingFoes() []*Combatant {
	var out []*Combatant
	for _, f := range cs.FoeSide {
		if !f.Down {
			out = append(out, f)
		}
	}
	return out
}

// LivingPCSide returns player-side combatants that are still up.
func (cs *CombatState) LivingPCSide() []*Combatant {
	var out []*Combatant
	for _, c := range cs.PCSide {
		if c.Alive() {
			out = append(out, c)
		}
	}
	return out
}

// AddLog appends a line to the mechanical combat log.
func (cs *CombatState) AddLog(line string) {
	cs.Log = append(cs.Log, line)
}
