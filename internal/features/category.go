package features

import "strings"

// Category is a case-insensitive, whitespace-trimmed lookup table from a
// categorical value to its feature index.
type Category struct {
	Name    string
	Indexes map[string]int
}

// Lookup returns the index for raw and whether raw was a known value.
// Unknown values resolve to index 0; callers that care can inspect known.
func (c Category) Lookup(raw string) (index int, known bool) {
	index, known = c.Indexes[normalize(raw)]
	return index, known
}

func normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

var (
	// Vegetation maps land cover to an index. Unknown values fall back to forest.
	Vegetation = Category{Name: "vegetation", Indexes: map[string]int{
		"forest":    0,
		"grassland": 1,
		"shrubland": 2,
		"urban":     3,
		"cropland":  4,
		"wetland":   5,
	}}

	// SoilType maps soil texture to an index. Unknown values fall back to clay.
	SoilType = Category{Name: "soil_type", Indexes: map[string]int{
		"clay": 0,
		"silt": 1,
		"sand": 2,
		"loam": 3,
	}}

	// UrbanRural is 1 for urban, 0 for rural.
	UrbanRural = Category{Name: "urban_rural", Indexes: map[string]int{
		"urban": 1,
		"rural": 0,
	}}

	// OceanCurrent is 1 for a cool coastal current, 0 otherwise.
	OceanCurrent = Category{Name: "ocean_current", Indexes: map[string]int{
		"cool_current": 1,
		"normal":       0,
	}}
)
