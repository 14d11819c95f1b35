// internal/models/zone.go
package models

// Campaign intensity levels. Lower intensity makes gates harder to trigger.
const (
	IntensityLow     = "low"
	IntensityMedium  = "medium"
	IntensityHigh    = "high"
	IntensityExtreme = "extreme"
)

// Crossing point tags.
const (
	CrossingTagSlow     = "slow"
	CrossingTagEventful = "eventful"
)

// CrossingPoint links a zone to a destination. An untagged crossing costs
// one day of travel, "slow" costs two, "eventful" costs one and forces an
// encounter on arrival.
type CrossingPoint struct {
	Destination string `json:"destination"`
	Tag         string `json:"tag,omitempty"`
	Description string `json:"description,omitempty"`
}

// Zone is a region of the campaign map.
type Zone struct {
	Name               string          `json:"name"`
	Intensity          string          `json:"intensity"`
	ControllingFaction string          `json:"controlling_faction,omitempty"`
	Description        string          `json:"description,omitempty"`
	CrossingPoints     []CrossingPoint `json:"crossing_points,omitempty"`
	ThreatLevel        string          `json:"threat_level,omitempty"`
	SituationSummary   string          `json:"situation_summary,omitempty"`
	NoFaction          bool            `json:"no_faction,omitempty"`
	EncounterThreshold int             `json:"encounter_threshold,omitempty"`
}

// TravelDays returns the crossing duration and whether an encounter is
// forced, based on the crossing point's tag.
func (cp *CrossingPoint) TravelDays() (days int, forcedEncounter bool) {
	switch cp.Tag {
	case CrossingTagSlow:
		return 2, false
	case CrossingTagEventful:
		return 1, true
	default:
		return 1, false
	}
}

// EncounterEntry is one row of a zone's encounter table. Range is the die
// band it occupies, such as "1", "1-2" or "5-6".
type EncounterEntry struct {
	Range     string `json:"range"`
	Prompt    string `json:"prompt"`
	AnchorCue bool   `json:"anchor_cue,omitempty"`
}

// EncounterList is a zone's random-encounter table. Randomizer is the dice
// expression rolled against the entry ranges.
type EncounterList struct {
	Zone           string           `json:"zone"`
	Randomizer     string           `json:"randomizer"`
	AdjacencyNotes string           `json:"adjacency_notes,omitempty"`
	Entries        []EncounterEntry `json:"entries"`
}
