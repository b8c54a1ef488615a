package risk

import (
	"fmt"

	"github.com/couchcryptid/disaster-risk-service/internal/domain"
)

// OverlayThreshold is the minimum probability for a hazard to be drawn.
const OverlayThreshold = 0.2

const (
	baseRadiusMeters  = 5000
	radiusPerUnitProb = 15000
)

var overlayStyle = map[domain.ClassLabel]struct {
	title string
	color string
}{
	domain.ClassFlood:    {"Flood", "#3498db"},
	domain.ClassWildfire: {"Wildfire", "#e67e22"},
	domain.ClassStorm:    {"Storm", "#9b59b6"},
}

// Overlay is a map circle centred on the assessed place.
type Overlay struct {
	Class        domain.ClassLabel `json:"class"`
	Center       domain.Geo        `json:"center"`
	RadiusMeters float64           `json:"radius_m"`
	Color        string            `json:"color"`
	FillOpacity  float64           `json:"fill_opacity"`
	Popup        string            `json:"popup"`
}

// Overlays returns one circle per hazard above OverlayThreshold, in Hazards
// order. Radius grows linearly with probability.
func Overlays(center domain.Geo, p domain.Prediction) []Overlay {
	var out []Overlay
	for _, c := range Hazards {
		prob := p.Of(c)
		if prob <= OverlayThreshold {
			continue
		}
		style := overlayStyle[c]
		out = append(out, Overlay{
			Class:        c,
			Center:       center,
			RadiusMeters: prob*radiusPerUnitProb + baseRadiusMeters,
			Color:        style.color,
			FillOpacity:  0.3,
			Popup:        fmt.Sprintf("%s Risk: %d%%", style.title, Percent(prob)),
		})
	}
	return out
}
