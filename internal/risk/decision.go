// Package risk turns a class distribution into an actionable risk level,
// advisory message and map overlays. Everything here is pure.
package risk

import (
	"fmt"
	"math"

	"github.com/couchcryptid/disaster-risk-service/internal/domain"
)

// Level is the discrete risk band.
type Level string

const (
	LevelLow      Level = "Low"
	LevelModerate Level = "Moderate"
	LevelHigh     Level = "High"
)

// Thresholds on the top hazard probability. Both comparisons are strict.
const (
	HighThreshold     = 0.7
	ModerateThreshold = 0.4
)

// NoRiskMessage is shown whenever no hazard exceeds ModerateThreshold.
const NoRiskMessage = "No significant risks identified"

// Hazards are the classes considered for the decision, in tie-break order.
var Hazards = [3]domain.ClassLabel{domain.ClassFlood, domain.ClassWildfire, domain.ClassStorm}

var advisories = map[domain.ClassLabel]string{
	domain.ClassFlood:    "Flood risk (%d%%) - Monitor water levels",
	domain.ClassWildfire: "Fire risk (%d%%) - Extreme caution advised",
	domain.ClassStorm:    "Storm risk (%d%%) - Secure outdoor items",
}

// Decision is the outcome of Decide.
type Decision struct {
	Level          Level                     `json:"level"`
	TopClass       domain.ClassLabel         `json:"top_class"`
	TopProbability float64                   `json:"top_probability"`
	Message        string                    `json:"message"`
	Percentages    map[domain.ClassLabel]int `json:"percentages"`
}

// Decide picks the most likely hazard (first maximum over Hazards, so "none"
// never wins) and grades it.
func Decide(p domain.Prediction) Decision {
	top := Hazards[0]
	for _, c := range Hazards[1:] {
		if p.Of(c) > p.Of(top) {
			top = c
		}
	}
	prob := p.Of(top)

	d := Decision{
		Level:          LevelFor(prob),
		TopClass:       top,
		TopProbability: prob,
		Message:        NoRiskMessage,
		Percentages:    make(map[domain.ClassLabel]int, domain.NumClasses),
	}
	if prob > ModerateThreshold {
		d.Message = fmt.Sprintf(advisories[top], Percent(prob))
	}
	for _, c := range domain.Classes {
		d.Percentages[c] = Percent(p.Of(c))
	}
	return d
}

// LevelFor grades a single probability.
func LevelFor(prob float64) Level {
	switch {
	case prob > HighThreshold:
		return LevelHigh
	case prob > ModerateThreshold:
		return LevelModerate
	default:
		return LevelLow
	}
}

// Percent rounds a probability to a whole percentage, halves rounding up.
func Percent(prob float64) int {
	return int(math.Floor(prob*100 + 0.5))
}

// Rank orders levels so callers can compare them.
func (l Level) Rank() int {
	switch l {
	case LevelHigh:
		return 2
	case LevelModerate:
		return 1
	default:
		return 0
	}
}
