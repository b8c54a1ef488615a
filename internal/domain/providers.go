package domain

import (
	"context"
	"errors"
)

// ErrLocationNotFound is returned by a Geocoder when the query matches no place.
var ErrLocationNotFound = errors.New("location not found")

// Geocoder resolves a free-text location into a Place.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Place, error)
}

// WeatherProvider returns the live conditions at a place. Providers use
// whichever of Place.Query or Place.Geo they need.
type WeatherProvider interface {
	Current(ctx context.Context, place Place) (CurrentWeather, error)
}

// HistoryProvider returns daily weather for the trailing window ending today,
// sorted by date ascending.
type HistoryProvider interface {
	History(ctx context.Context, geo Geo, days int) ([]DailyWeather, error)
}

// ElevationProvider returns the ground elevation in metres.
type ElevationProvider interface {
	Elevation(ctx context.Context, geo Geo) (float64, error)
}
