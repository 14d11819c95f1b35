// internal/dice/dice.go
package dice

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
)

// Source produces individual die faces. The production source wraps a
// seeded math/rand generator; tests substitute a scripted source.
type Source interface {
	// Roll returns a value in [1, sides].
	Roll(sides int) int
}

type randSource struct {
	rng *rand.Rand
}

func (s *randSource) Roll(sides int) int {
	return s.rng.Intn(sides) + 1
}

// NewSource returns a deterministic source for the given seed. The same
// seed and call sequence always produce the same faces.
func NewSource(seed int64) Source {
	return &randSource{rng: rand.New(rand.NewSource(seed))}
}

// Scripted is a source that replays a fixed queue of faces. When the queue
// runs out it returns 1. Used by tests and the offline demo.
type Scripted struct {
	Faces []int
	next  int
}

func (s *Scripted) Roll(sides int) int {
	if s.next >= len(s.Faces) {
		return 1
	}
	face := s.Faces[s.next]
	s.next++
	if face < 1 {
		face = 1
	}
	if face > sides {
		face = sides
	}
	return face
}

// Roll is the audited outcome of one dice-expression evaluation.
type Roll struct {
	Expression string `json:"expression"`
	Faces      []int  `json:"faces"`
	Modifier   int    `json:"modifier,omitempty"`
	Total      int    `json:"total"`
	Label      string `json:"label,omitempty"`
}

// Trace renders the roll as a human-readable audit line.
func (r Roll) Trace() string {
	parts := make([]string, len(r.Faces))
	for i, f := range r.Faces {
		parts[i] = strconv.Itoa(f)
	}
	s := fmt.Sprintf("%s: [%s]", r.Expression, strings.Join(parts, ", "))
	if r.Modifier > 0 {
		s += fmt.Sprintf(" +%d", r.Modifier)
	} else if r.Modifier < 0 {
		s += fmt.Sprintf(" %d", r.Modifier)
	}
	s += fmt.Sprintf(" = %d", r.Total)
	if r.Label != "" {
		s = r.Label + " " + s
	}
	return s
}

// Sink receives every audited roll, typically for durable archiving.
type Sink interface {
	RecordRoll(Roll)
}

var exprPattern = regexp.MustCompile(`^(\d*)[dD](\d+)([+-]\d+)?$`)

// Roller evaluates dice expressions against a face source and keeps an
// in-memory audit trace of everything rolled.
type Roller struct {
	src   Source
	trace []Roll
	sink  Sink
}

// NewRoller creates a roller over the given source.
func NewRoller(src Source) *Roller {
	return &Roller{src: src}
}

// SetSink attaches a durable audit sink. Passing nil detaches it.
func (r *Roller) SetSink(s Sink) {
	r.sink = s
}

// Roll evaluates an expression of the form "NdM", "dM" or "NdM+K" and
// records the outcome in the audit trace.
func (r *Roller) Roll(expr, label string) (Roll, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(expr), " ", "")
	m := exprPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return Roll{}, fmt.Errorf("invalid dice expression %q", expr)
	}

	count := 1
	if m[1] != "" {
		count, _ = strconv.Atoi(m[1])
	}
	sides, _ := strconv.Atoi(m[2])
	modifier := 0
	if m[3] != "" {
		modifier, _ = strconv.Atoi(m[3])
	}

	if count < 1 || count > 100 {
		return Roll{}, fmt.Errorf("dice count %d out of range in %q", count, expr)
	}
	if sides < 2 || sides > 1000 {
		return Roll{}, fmt.Errorf("die size %d out of range in %q", sides, expr)
	}

	faces := make([]int, count)
	total := modifier
	for i := 0; i < count; i++ {
		faces[i] = r.src.Roll(sides)
		total += faces[i]
	}

	roll := Roll{
		Expression: trimmed,
		Faces:      faces,
		Modifier:   modifier,
		Total:      total,
		Label:      label,
	}
	r.record(roll)
	return roll, nil
}

// RollDie rolls a single die and records it.
func (r *Roller) RollDie(sides int, label string) int {
	face := r.src.Roll(sides)
	r.record(Roll{
		Expression: fmt.Sprintf("1d%d", sides),
		Faces:      []int{face},
		Total:      face,
		Label:      label,
	})
	return face
}

func (r *Roller) record(roll Roll) {
	r.trace = append(r.trace, roll)
	if r.sink != nil {
		r.sink.RecordRoll(roll)
	}
}

// TraceLog returns the accumulated audit trace.
func (r *Roller) TraceLog() []Roll {
	return r.trace
}

// DrainTrace returns the accumulated trace and clears it.
func (r *Roller) DrainTrace() []Roll {
	out := r.trace
	r.trace = nil
	return out
}
