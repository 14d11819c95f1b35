// internal/models/clock.go
package models

// Clock status values. A fired clock is terminal.
const (
	ClockStatusActive  = "active"
	ClockStatusHalted  = "halted"
	ClockStatusRetired = "retired"
	ClockStatusFired   = "fired"
)

// Interaction rule effects.
const (
	RuleEffectFlag    = "flag"
	RuleEffectAdvance = "advance"
	RuleEffectHalt    = "halt"
	RuleEffectSpawn   = "spawn"
)

// Clock is a bounded progress tracker modelling mounting world pressure.
// The owner is a name key into the NPC/faction registries, never a pointer.
type Clock struct {
	Name                string            `json:"name"`
	Owner               string            `json:"owner"`
	Progress            int               `json:"progress"`
	MaxProgress         int               `json:"max_progress"`
	Status              string            `json:"status"`
	AdvanceBullets      []string          `json:"advance_bullets,omitempty"`
	HaltConditions      []string          `json:"halt_conditions,omitempty"`
	ReduceConditions    []string          `json:"reduce_conditions,omitempty"`
	TriggerOnCompletion string            `json:"trigger_on_completion,omitempty"`
	Rules               []InteractionRule `json:"rules,omitempty"`
	IsCadence           bool              `json:"is_cadence,omitempty"`
	CadenceBullet       string            `json:"cadence_bullet,omitempty"`
	CadenceAmount       int               `json:"cadence_amount,omitempty"`
	AdvancedThisDay     bool              `json:"advanced_this_day"`
	AdvancedThisSession bool              `json:"advanced_this_session"`
	HaltedThisDay       bool              `json:"halted_this_day,omitempty"`
	CreatedSession      string            `json:"created_session,omitempty"`
}

// InteractionRule links clocks together. The trigger is satisfied when the owning
// clock has reached OwnerAt, the referenced clock (if any) has reached
// TriggerAt, and the keyword (if any) appears in the day's facts. A one-time
// rule fires at most once per save lifetime, tracked by ID on the session.
type InteractionRule struct {
	ID             string      `json:"id"`
	OwnerAt        int         `json:"owner_at"`
	TriggerClock   string      `json:"trigger_clock,omitempty"`
	TriggerAt      int         `json:"trigger_at,omitempty"`
	TriggerKeyword string      `json:"trigger_keyword,omitempty"`
	Effect         string      `json:"effect"`
	TargetClock    string      `json:"target_clock,omitempty"`
	Amount         int         `json:"amount,omitempty"`
	FlagText       string      `json:"flag_text,omitempty"`
	Spawn          *ClockSpawn `json:"spawn,omitempty"`
	OneTime        bool        `json:"one_time"`
}

// ClockSpawn is the definition of a new clock carried by a spawn-effect rule or a
// clock-create state change.
type ClockSpawn struct {
	Name                string   `json:"name"`
	Owner               string   `json:"owner"`
	MaxProgress         int      `json:"max_progress"`
	AdvanceBullets      []string `json:"advance_bullets,omitempty"`
	HaltConditions      []string `json:"halt_conditions,omitempty"`
	ReduceConditions    []string `json:"reduce_conditions,omitempty"`
	TriggerOnCompletion string   `json:"trigger_on_completion,omitempty"`
}

// ClockAdvance records the result of a single tick.
type ClockAdvance struct {
	Clock   string `json:"clock"`
	Old     int    `json:"old"`
	New     int    `json:"new"`
	Max     int    `json:"max"`
	Fired   bool   `json:"fired"`
	Trigger string `json:"trigger,omitempty"`
	Reason  string `json:"reason"`
	Date    string `json:"date,omitempty"`
	Session string `json:"session,omitempty"`
}

// NewClock creates an active clock with the default maximum of 4 segments.
func NewClock(name, owner string) *Clock {
	return &Clock{
		Name:        name,
		Owner:       owner,
		MaxProgress: 4,
		Status:      ClockStatusActive,
	}
}

// CanAdvance reports whether the clock may tick right now. Fired and retired
// clocks are terminal; halted clocks wait for an explicit resume; a clock
// advances at most once per day.
func (c *Clock) CanAdvance() bool {
	switch c.Status {
	case ClockStatusRetired, ClockStatusFired, ClockStatusHalted:
		return false
	}
	if c.Progress >= c.MaxProgress {
		return false
	}
	return !c.AdvancedThisDay
}

// Fired reports whether the clock has reached its maximum and fired.
func (c *Clock) Fired() bool {
	return c.Status == ClockStatusFired
}

// Advance ticks the clock by amount (minimum 1), clamped to the maximum.
// Reaching the maximum fires the clock permanently.
func (c *Clock) Advance(amount int, reason, date, session string) ClockAdvance {
	if amount < 1 {
		amount = 1
	}
	old := c.Progress
	c.Progress += amount
	if c.Progress > c.MaxProgress {
		c.Progress = c.MaxProgress
	}
	c.AdvancedThisDay = true
	c.AdvancedThisSession = true

	adv := ClockAdvance{
		Clock:   c.Name,
		Old:     old,
		New:     c.Progress,
		Max:     c.MaxProgress,
		Reason:  reason,
		Date:    date,
		Session: session,
	}
	if c.Progress >= c.MaxProgress {
		c.Status = ClockStatusFired
		adv.Fired = true
		adv.Trigger = c.TriggerOnCompletion
	}
	return adv
}

// Reduce lowers progress by amount, floor 0. Fired clocks never change.
func (c *Clock) Reduce(amount int) int {
	if c.Status == ClockStatusFired || amount < 1 {
		return c.Progress
	}
	c.Progress -= amount
	if c.Progress < 0 {
		c.Progress = 0
	}
	return c.Progress
}

// Halt suspends an active clock until Resume is called.
func (c *Clock) Halt() bool {
	if c.Status != ClockStatusActive {
		return false
	}
	c.Status = ClockStatusHalted
	return true
}

// Resume reactivates a halted clock.
func (c *Clock) Resume() bool {
	if c.Status != ClockStatusHalted {
		return false
	}
	c.Status = ClockStatusActive
	return true
}

// ResetDay clears the per-day advance/halt bookkeeping.
func (c *Clock) ResetDay() {
	c.AdvancedThisDay = false
	c.HaltedThisDay = false
}

// FillRatio returns progress as a fraction of the maximum.
func (c *Clock) FillRatio() float64 {
	if c.MaxProgress <= 0 {
		return 0
	}
	return float64(c.Progress) / float64(c.MaxProgress)
}
