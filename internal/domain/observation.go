package domain

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidObservation is returned for an observation with a value outside
// its physical range.
var ErrInvalidObservation = errors.New("invalid observation")

// Observation is one weather/location sample to be classified.
//
// The five weather fields are always required. Everything else is optional:
// nil pointers and empty strings mean "absent" and are resolved by the
// feature schema's documented defaults rather than treated as zero.
type Observation struct {
	Temperature float64 `json:"temp"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	WindSpeed   float64 `json:"wind_speed"`
	Rain1h      float64 `json:"rain_1h"`

	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Elevation    *float64 `json:"elevation,omitempty"`
	Month        *int     `json:"month,omitempty"`
	Hour         *int     `json:"hour,omitempty"`
	SoilMoisture *float64 `json:"soil_moisture,omitempty"`

	Vegetation   string `json:"vegetation,omitempty"`
	SoilType     string `json:"soil_type,omitempty"`
	UrbanRural   string `json:"urban_rural,omitempty"`
	OceanCurrent string `json:"ocean_current,omitempty"`
}

// Float returns a pointer to v, for populating optional Observation fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for populating optional Observation fields.
func Int(v int) *int { return &v }

type bound struct {
	field  string
	value  float64
	lo, hi float64
}

// Validate checks every present numeric field against its physical range.
// Wind speed is bounded loosely enough to admit km/h providers.
func (o Observation) Validate() error {
	checks := []bound{
		{"temp", o.Temperature, -100, 100},
		{"humidity", o.Humidity, 0, 100},
		{"pressure", o.Pressure, 0, 2000},
		{"wind_speed", o.WindSpeed, 0, 500},
		{"rain_1h", o.Rain1h, 0, 1000},
	}
	optional := func(field string, v *float64, lo, hi float64) {
		if v != nil {
			checks = append(checks, bound{field, *v, lo, hi})
		}
	}
	optional("latitude", o.Latitude, -90, 90)
	optional("longitude", o.Longitude, -180, 180)
	optional("elevation", o.Elevation, -500, 9000)
	optional("soil_moisture", o.SoilMoisture, 0, 100)
	if o.Month != nil {
		checks = append(checks, bound{"month", float64(*o.Month), 1, 12})
	}
	if o.Hour != nil {
		checks = append(checks, bound{"hour", float64(*o.Hour), 0, 23})
	}

	for _, c := range checks {
		if math.IsNaN(c.value) || c.value < c.lo || c.value > c.hi {
			return fmt.Errorf("%w: %s %g outside [%g, %g]", ErrInvalidObservation, c.field, c.value, c.lo, c.hi)
		}
	}
	return nil
}
