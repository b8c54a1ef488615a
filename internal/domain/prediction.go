package domain

import (
	"fmt"
	"strings"
)

// ClassLabel is one of the fixed disaster classes.
type ClassLabel string

const (
	ClassFlood    ClassLabel = "flood"
	ClassWildfire ClassLabel = "wildfire"
	ClassStorm    ClassLabel = "storm"
	ClassNone     ClassLabel = "none"
)

// NumClasses is the width of the classifier output layer.
const NumClasses = 4

// Classes is the canonical class order. Output index i of the classifier is
// the probability of Classes[i].
var Classes = [NumClasses]ClassLabel{ClassFlood, ClassWildfire, ClassStorm, ClassNone}

// Index returns the position of c in Classes, or -1.
func (c ClassLabel) Index() int {
	for i, label := range Classes {
		if label == c {
			return i
		}
	}
	return -1
}

// OneHot is a class indicator vector in Classes order.
type OneHot [NumClasses]float64

// Label returns the class marked in the vector.
func (o OneHot) Label() ClassLabel {
	for i, v := range o {
		if v == 1 {
			return Classes[i]
		}
	}
	return ClassNone
}

// OneHotOf returns the indicator vector for c. Unknown labels map to none.
func OneHotOf(c ClassLabel) OneHot {
	var o OneHot
	i := c.Index()
	if i < 0 {
		i = ClassNone.Index()
	}
	o[i] = 1
	return o
}

// Prediction maps each class to a probability. The four values sum to 1.
type Prediction struct {
	Flood    float64 `json:"flood"`
	Wildfire float64 `json:"wildfire"`
	Storm    float64 `json:"storm"`
	None     float64 `json:"none"`
}

// PredictionFromProbabilities builds a Prediction from a distribution in Classes order.
func PredictionFromProbabilities(p [NumClasses]float64) Prediction {
	return Prediction{Flood: p[0], Wildfire: p[1], Storm: p[2], None: p[3]}
}

// Probabilities returns the distribution in Classes order.
func (p Prediction) Probabilities() [NumClasses]float64 {
	return [NumClasses]float64{p.Flood, p.Wildfire, p.Storm, p.None}
}

// Of returns the probability of class c.
func (p Prediction) Of(c ClassLabel) float64 {
	i := c.Index()
	if i < 0 {
		return 0
	}
	return p.Probabilities()[i]
}

func (p Prediction) String() string {
	parts := make([]string, 0, NumClasses)
	for i, v := range p.Probabilities() {
		parts = append(parts, fmt.Sprintf("%s=%.4f", Classes[i], v))
	}
	return strings.Join(parts, " ")
}
