// Package domain models the weather, location and disaster-risk values that
// flow between data providers, the feature encoder, the classifier and the
// presentation layer.
//
// # Data Sources
//
// A single assessment combines four independent providers, each swappable:
//
//	Geocoding:  free-text place name → latitude/longitude (OpenWeatherMap or Mapbox)
//	Elevation:  latitude/longitude → metres above sea level (OpenTopoData aster30m)
//	Current:    live conditions at the place (OpenWeatherMap or Weatherstack)
//	History:    daily aggregates for the trailing week (NASA POWER)
//
// # Units
//
// Values are carried in the unit the provider reports and are not converted:
//
//	Temperature:   °C
//	Humidity:      relative, percent 0–100
//	Pressure:      hPa (current) / kPa (NASA POWER surface pressure)
//	Wind speed:    m/s (OpenWeatherMap, NASA POWER) or km/h (Weatherstack)
//	Precipitation: mm over the last hour (current) or mm/day (history)
//
// The training dataset was produced with the same unit mix, so the classifier
// sees inputs on the scale it was fitted on.
//
// # Missing Values
//
// NASA POWER marks missing daily values with the sentinel -999. History days
// containing the sentinel in any field are dropped by the provider adapter.
//
// # Class Labels
//
// Every prediction is a distribution over four classes in a fixed order:
//
//	flood, wildfire, storm, none
//
// Raw disaster types from the training data alias onto these classes; see
// the features package for the per-schema alias tables.
package domain
