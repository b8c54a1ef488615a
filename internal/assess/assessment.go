package assess

import (
	"time"

	"github.com/couchcryptid/disaster-risk-service/internal/domain"
	"github.com/couchcryptid/disaster-risk-service/internal/features"
	"github.com/couchcryptid/disaster-risk-service/internal/risk"
)

// Default values the dashboard assumes for every looked-up location.
const (
	defaultVegetation   = "forest"
	defaultSoilType     = "loam"
	defaultOceanCurrent = "normal"
	defaultSoilMoisture = 50.0
)

// Assessment is the full result of assessing one location.
type Assessment struct {
	ID          string                `json:"id"`
	AssessedAt  time.Time             `json:"assessed_at"`
	Place       domain.Place          `json:"place"`
	Elevation   *float64              `json:"elevation,omitempty"`
	Current     domain.CurrentWeather `json:"current"`
	History     []domain.DailyWeather `json:"history"`
	Observation domain.Observation    `json:"observation"`
	Prediction  domain.Prediction     `json:"prediction"`
	Decision    risk.Decision         `json:"decision"`
	Overlays    []risk.Overlay        `json:"overlays"`
	Fallbacks   []features.Fallback   `json:"fallbacks,omitempty"`
}

// Outcome is the classification of a single observation.
type Outcome struct {
	Prediction domain.Prediction   `json:"prediction"`
	Decision   risk.Decision       `json:"decision"`
	Fallbacks  []features.Fallback `json:"fallbacks,omitempty"`
}

// buildObservation assembles the model input for a looked-up place. Soil
// moisture comes from the oldest history day's humidity. urban_rural is left
// empty so the schema derives it from elevation.
func buildObservation(place domain.Place, elevation *float64, cur domain.CurrentWeather, history []domain.DailyWeather, now time.Time) domain.Observation {
	moisture := defaultSoilMoisture
	if len(history) > 0 {
		moisture = history[0].Humidity
	}
	return domain.Observation{
		Temperature:  cur.Temperature,
		Humidity:     cur.Humidity,
		Pressure:     cur.Pressure,
		WindSpeed:    cur.WindSpeed,
		Rain1h:       cur.Rain1h,
		Latitude:     domain.Float(place.Geo.Lat),
		Longitude:    domain.Float(place.Geo.Lon),
		Elevation:    elevation,
		Month:        domain.Int(int(now.Month())),
		Hour:         domain.Int(now.Hour()),
		SoilMoisture: domain.Float(moisture),
		Vegetation:   defaultVegetation,
		SoilType:     defaultSoilType,
		OceanCurrent: defaultOceanCurrent,
	}
}
