// internal/models/calendar.go
package models

// Months of the campaign year in order, including the three intercalary
// festival periods.
var Months = []string{
	"Day of Awakening",
	"Demes", "Fasting", "Tryphor",
	"Day of the Moot",
	"Ilrym", "Evernew",
	"Jestrim",
	"The Stand",
	"Rannifer", "Reapmere",
	"Grismere", "Aphistri", "Frithium",
	"Revini",
}

// MonthDays maps each month to its length in days.
var MonthDays = map[string]int{
	"Day of Awakening": 1,
	"Demes":            30,
	"Fasting":          28,
	"Tryphor":          30,
	"Day of the Moot":  1,
	"Ilrym":            30,
	"Evernew":          31,
	"Jestrim":          23,
	"The Stand":        7,
	"Rannifer":         31,
	"Reapmere":         30,
	"Grismere":         30,
	"Aphistri":         31,
	"Frithium":         30,
	"Revini":           31,
}

// Seasons maps each month to its season.
var Seasons = map[string]string{
	"Day of Awakening": "Winter",
	"Demes":            "Winter",
	"Fasting":          "Winter",
	"Tryphor":          "Spring",
	"Day of the Moot":  "Spring",
	"Ilrym":            "Spring",
	"Evernew":          "Spring",
	"Jestrim":          "Summer",
	"The Stand":        "Summer",
	"Rannifer":         "Summer",
	"Reapmere":         "Summer",
	"Grismere":         "Autumn",
	"Aphistri":         "Autumn",
	"Frithium":         "Autumn",
	"Revini":           "Winter",
}

// SeasonalPressure describes the survival pressure each season puts on
// settlements; surfaced to the narrator as gate context.
var SeasonalPressure = map[string]string{
	"Spring": "Feed & Seed: food stores depleted; planting season critical",
	"Summer": "Raw Materials: construction, repairs, military production peak",
	"Autumn": "Harvest: success or failure determines winter survival",
	"Winter": "Firewood & Pitch: survival essentials; cold is lethal",
}

// SeasonOf returns the season for a month, or "Unknown".
func SeasonOf(month string) string {
	if s, ok := Seasons[month]; ok {
		return s
	}
	return "Unknown"
}

// monthIndex returns the position of a month in the year, defaulting to 0.
func monthIndex(month string) int {
	for i, m := range Months {
		if m == month {
			return i
		}
	}
	return 0
}

// DateChange records the result of advancing the calendar by one day.
type DateChange struct {
	OldDate          string `json:"old_date"`
	NewDate          string `json:"new_date"`
	SeasonChanged    bool   `json:"season_changed"`
	OldSeason        string `json:"old_season,omitempty"`
	NewSeason        string `json:"new_season,omitempty"`
	SeasonalPressure string `json:"seasonal_pressure,omitempty"`
}
