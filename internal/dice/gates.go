// internal/dice/gates.go
package dice

import "fmt"

// Intensity gate thresholds on 1d6. A roll at or under the threshold
// passes, so lower intensity makes the gate harder to trigger.
var intensityThresholds = map[string]int{
	"low":     2,
	"medium":  3,
	"high":    4,
	"extreme": 6,
}

// NPC-action headcount expressions per intensity. Extreme activates every
// eligible NPC instead of rolling.
var actionCountExpr = map[string]string{
	"low":    "1d3",
	"medium": "2d4",
	"high":   "3d6",
}

// GateResult is the audited outcome of an intensity gate check.
type GateResult struct {
	Passed    bool `json:"passed"`
	Roll      int  `json:"roll"`
	Threshold int  `json:"threshold"`
}

// IntensityGate rolls 1d6 against the intensity's threshold. Unknown
// intensities use the medium threshold.
func (r *Roller) IntensityGate(intensity, label string) GateResult {
	threshold, ok := intensityThresholds[intensity]
	if !ok {
		threshold = intensityThresholds["medium"]
	}
	face := r.RollDie(6, label)
	return GateResult{
		Passed:    face <= threshold,
		Roll:      face,
		Threshold: threshold,
	}
}

// ActionCount rolls how many NPCs act this cycle. The second return is
// true when every eligible NPC acts regardless of count.
func (r *Roller) ActionCount(intensity string) (int, bool, error) {
	if intensity == "extreme" {
		return 0, true, nil
	}
	expr, ok := actionCountExpr[intensity]
	if !ok {
		expr = actionCountExpr["medium"]
	}
	roll, err := r.Roll(expr, "npc action count")
	if err != nil {
		return 0, false, fmt.Errorf("action count: %w", err)
	}
	return roll.Total, false, nil
}
