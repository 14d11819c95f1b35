// internal/models/engine.go
package models

// Procedural engine status values.
const (
	EngineStatusActive  = "active"
	EngineStatusDormant = "dormant"
)

// Engine trigger events for non-cadence engines.
const (
	EngineTriggerSeasonChange = "season_change"
)

// HardGate is a precondition checked before a procedural engine runs.
// A failed gate suppresses the engine's output for the cycle without error.
// All set conditions must hold.
type HardGate struct {
	Clock        string `json:"clock,omitempty"`
	MinProgress  int    `json:"min_progress,omitempty"`
	RequireFired bool   `json:"require_fired,omitempty"`
	FactKeyword  string `json:"fact_keyword,omitempty"`
}

// ClockEffect is a clock adjustment declared by an engine outcome band.
type ClockEffect struct {
	Clock  string `json:"clock"`
	Amount int    `json:"amount"`
	Reduce bool   `json:"reduce,omitempty"`
}

// OutcomeBand maps a roll-total range to an outcome and its clock effects.
type OutcomeBand struct {
	Min     int           `json:"min"`
	Max     int           `json:"max"`
	Outcome string        `json:"outcome"`
	Effects []ClockEffect `json:"effects,omitempty"`
}

// ProceduralEngine is a data-driven offscreen process. Cadence engines run
// once per day; event engines run when their trigger event occurs. The
// randomizer is rolled and mapped through the outcome bands.
type ProceduralEngine struct {
	Name         string        `json:"name"`
	Version      string        `json:"version"`
	Status       string        `json:"status"`
	ZoneScope    string        `json:"zone_scope,omitempty"`
	Cadence      bool          `json:"cadence"`
	TriggerEvent string        `json:"trigger_event,omitempty"`
	HardGates    []HardGate    `json:"hard_gates,omitempty"`
	Randomizer   string        `json:"randomizer,omitempty"`
	Outcomes     []OutcomeBand `json:"outcomes,omitempty"`
	LinkedClocks []string      `json:"linked_clocks,omitempty"`
	RunCapPerDay int           `json:"run_cap_per_day,omitempty"`
	RunsToday    int           `json:"runs_today,omitempty"`
	LastRunDate  string        `json:"last_run_date,omitempty"`
}

// CanRunToday reports whether the engine is under its per-day run cap.
func (e *ProceduralEngine) CanRunToday() bool {
	if e.Status != EngineStatusActive {
		return false
	}
	limit := e.RunCapPerDay
	if limit <= 0 {
		limit = 1
	}
	return e.RunsToday < limit
}

// ResetDay clears the per-day run counter.
func (e *ProceduralEngine) ResetDay() {
	e.RunsToday = 0
}

// OutcomeFor returns the band containing total, if any.
func (e *ProceduralEngine) OutcomeFor(total int) (OutcomeBand, bool) {
	for _, band := range e.Outcomes {
		if total >= band.Min && total <= band.Max {
			return band, true
		}
	}
	return OutcomeBand{}, false
}
