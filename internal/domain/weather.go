package domain

import "time"

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Place is a geocoded location.
type Place struct {
	Query      string  `json:"query"`
	Name       string  `json:"name"`
	Country    string  `json:"country,omitempty"`
	Geo        Geo     `json:"geo"`
	Confidence float64 `json:"confidence,omitempty"` // 0.0–1.0 when the provider reports one
	Source     string  `json:"source,omitempty"`     // provider name
}

// CurrentWeather is a snapshot of live conditions.
type CurrentWeather struct {
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feels_like"`
	Humidity    float64   `json:"humidity"`
	Pressure    float64   `json:"pressure"`
	WindSpeed   float64   `json:"wind_speed"`
	Rain1h      float64   `json:"rain_1h"`
	Conditions  string    `json:"conditions,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
	Source      string    `json:"source"`
}

// DailyWeather is one day of historical aggregates.
type DailyWeather struct {
	Date        string  `json:"date"` // YYYY-MM-DD
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	WindSpeed   float64 `json:"wind_speed"`
	Rain        float64 `json:"rain"`
}
