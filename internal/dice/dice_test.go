// internal/dice/dice_test.go
package dice

import (
	"reflect"
	"testing"
)

func TestRollExpressionParsing(t *testing.T) {
	tests := []struct {
		expr     string
		faces    []int
		modifier int
		total    int
	}{
		{"1d6", []int{4}, 0, 4},
		{"d20", []int{15}, 0, 15},
		{"2d4+1", []int{3, 2}, 1, 6},
		{"3d6-2", []int{1, 5, 2}, -2, 6},
		{" 1d8 ", []int{8}, 0, 8},
	}

	for _, tt := range tests {
		roller := NewRoller(&Scripted{Faces: tt.faces})
		roll, err := roller.Roll(tt.expr, "test")
		if err != nil {
			t.Fatalf("Roll(%q): %v", tt.expr, err)
		}
		if !reflect.DeepEqual(roll.Faces, tt.faces) {
			t.Errorf("Roll(%q) faces = %v, want %v", tt.expr, roll.Faces, tt.faces)
		}
		if roll.Modifier != tt.modifier {
			t.Errorf("Roll(%q) modifier = %d, want %d", tt.expr, roll.Modifier, tt.modifier)
		}
		if roll.Total != tt.total {
			t.Errorf("Roll(%q) total = %d, want %d", tt.expr, roll.Total, tt.total)
		}
	}
}

func TestRollRejectsInvalidExpressions(t *testing.T) {
	roller := NewRoller(&Scripted{})

	for _, expr := range []string{"", "banana", "0d6", "101d6", "1d1", "1d2000", "1d6*2"} {
		if _, err := roller.Roll(expr, ""); err == nil {
			t.Errorf("Roll(%q) succeeded, want error", expr)
		}
	}
}

func TestSeededSourceIsDeterministic(t *testing.T) {
	a := NewRoller(NewSource(7))
	b := NewRoller(NewSource(7))

	for i := 0; i < 50; i++ {
		ra, _ := a.Roll("3d6+2", "")
		rb, _ := b.Roll("3d6+2", "")
		if ra.Total != rb.Total || !reflect.DeepEqual(ra.Faces, rb.Faces) {
			t.Fatalf("same seed diverged at roll %d: %v vs %v", i, ra, rb)
		}
	}
}

func TestScriptedClampsAndExhausts(t *testing.T) {
	src := &Scripted{Faces: []int{9, 0}}

	if got := src.Roll(6); got != 6 {
		t.Errorf("face above die size = %d, want clamp to 6", got)
	}
	if got := src.Roll(6); got != 1 {
		t.Errorf("face below 1 = %d, want clamp to 1", got)
	}
	if got := src.Roll(6); got != 1 {
		t.Errorf("exhausted source = %d, want 1", got)
	}
}

func TestRollDieRecordsTrace(t *testing.T) {
	roller := NewRoller(&Scripted{Faces: []int{3, 5}})
	roller.RollDie(6, "first")
	roller.RollDie(20, "second")

	trace := roller.TraceLog()
	if len(trace) != 2 {
		t.Fatalf("trace length = %d, want 2", len(trace))
	}
	if trace[0].Total != 3 || trace[0].Label != "first" {
		t.Errorf("trace[0] = %+v", trace[0])
	}
	if trace[1].Expression != "1d20" {
		t.Errorf("trace[1].Expression = %q, want 1d20", trace[1].Expression)
	}

	drained := roller.DrainTrace()
	if len(drained) != 2 || len(roller.TraceLog()) != 0 {
		t.Error("DrainTrace did not clear the trace")
	}
}

type captureSink struct {
	rolls []Roll
}

func (c *captureSink) RecordRoll(r Roll) { c.rolls = append(c.rolls, r) }

func TestSinkReceivesEveryRoll(t *testing.T) {
	sink := &captureSink{}
	roller := NewRoller(&Scripted{Faces: []int{2, 4, 6}})
	roller.SetSink(sink)

	roller.Roll("2d6", "pair")
	roller.RollDie(6, "single")

	if len(sink.rolls) != 2 {
		t.Fatalf("sink received %d rolls, want 2", len(sink.rolls))
	}
	if sink.rolls[0].Total != 6 || sink.rolls[1].Total != 6 {
		t.Errorf("sink rolls = %+v", sink.rolls)
	}
}

func TestIntensityGateThresholds(t *testing.T) {
	tests := []struct {
		intensity string
		face      int
		passed    bool
	}{
		{"low", 2, true},
		{"low", 3, false},
		{"medium", 3, true},
		{"medium", 4, false},
		{"high", 4, true},
		{"high", 5, false},
		{"extreme", 6, true},
		{"unknown", 3, true},
		{"unknown", 4, false},
	}

	for _, tt := range tests {
		roller := NewRoller(&Scripted{Faces: []int{tt.face}})
		got := roller.IntensityGate(tt.intensity, "gate")
		if got.Passed != tt.passed {
			t.Errorf("IntensityGate(%q) with face %d passed = %v, want %v",
				tt.intensity, tt.face, got.Passed, tt.passed)
		}
		if got.Roll != tt.face {
			t.Errorf("gate roll = %d, want %d", got.Roll, tt.face)
		}
	}
}

func TestActionCountExtremeActivatesAll(t *testing.T) {
	roller := NewRoller(&Scripted{})
	_, all, err := roller.ActionCount("extreme")
	if err != nil {
		t.Fatal(err)
	}
	if !all {
		t.Error("extreme intensity should activate every NPC")
	}
}

func TestActionCountRollsPerIntensity(t *testing.T) {
	roller := NewRoller(&Scripted{Faces: []int{2, 3, 1}})
	n, all, err := roller.ActionCount("high")
	if err != nil {
		t.Fatal(err)
	}
	if all {
		t.Error("high intensity should not activate all")
	}
	if n != 6 {
		t.Errorf("action count = %d, want 6 (3d6 scripted 2+3+1)", n)
	}
}

func TestTraceFormatting(t *testing.T) {
	roll := Roll{Expression: "2d6+1", Faces: []int{3, 4}, Modifier: 1, Total: 8, Label: "attack"}
	want := "attack 2d6+1: [3, 4] +1 = 8"
	if got := roll.Trace(); got != want {
		t.Errorf("Trace() = %q, want %q", got, want)
	}
}
