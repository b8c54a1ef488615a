// Command gendata writes a synthetic training dataset in the extended
// 17-column layout. Samples are drawn per region (coastal, arid, urban) with
// seasonal and diurnal effects, and labelled by simple physical triggers.
//
// Usage:
//
//	go run ./cmd/gendata -n 10000 -seed 42 -out data/complete_disaster_data.csv
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

var startDate = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

var header = []string{
	"temp", "humidity", "pressure", "wind_speed", "rain_1h",
	"disaster_type", "latitude", "longitude", "elevation",
	"timestamp", "month", "hour", "vegetation", "soil_type",
	"soil_moisture", "urban_rural", "ocean_current",
}

var (
	vegetationTypes = []string{"forest", "grassland", "shrubland", "urban", "cropland", "wetland"}
	soilTypes       = []string{"clay", "silt", "sand", "loam"}
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	n := flag.Int("n", 10000, "number of samples")
	seed := flag.Uint64("seed", 42, "random seed")
	out := flag.String("out", "data/complete_disaster_data.csv", "output CSV path")
	flag.Parse()

	if *n <= 0 {
		return fmt.Errorf("-n must be positive, got %d", *n)
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create %s: %w", *out, err)
	}
	defer f.Close()

	counts, err := generate(f, *n, *seed)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", *out, err)
	}

	log.Printf("wrote %d samples to %s", *n, *out)
	for _, label := range []string{"flood", "wildfire", "storm", "urban_flood", "heatwave", "wind_damage", "none"} {
		log.Printf("  %-12s %d", label, counts[label])
	}
	return nil
}

// generate writes n samples to w and returns the count per disaster label.
// The output is fully determined by seed.
func generate(w io.Writer, n int, seed uint64) (map[string]int, error) {
	g := &generator{rng: rand.New(rand.NewPCG(seed, seed))} //nolint:gosec // synthetic data, not security
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	counts := make(map[string]int)
	for i := range n {
		s := g.sample(i)
		counts[s.disaster]++
		if err := cw.Write(s.record()); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return counts, nil
}

type sample struct {
	temp, humidity, pressure, windSpeed, rain float64
	disaster                                  string
	lat, lon, elevation                       float64
	at                                        time.Time
	vegetation, soil                          string
	soilMoisture                              float64
	urban, coolCurrent                        bool
}

func (s sample) record() []string {
	urbanRural := "rural"
	if s.urban {
		urbanRural = "urban"
	}
	ocean := "normal"
	if s.coolCurrent {
		ocean = "cool_current"
	}
	return []string{
		fmt1(s.temp),
		strconv.Itoa(int(s.humidity)),
		strconv.Itoa(int(s.pressure)),
		fmt1(s.windSpeed),
		fmt1(s.rain),
		s.disaster,
		strconv.FormatFloat(s.lat, 'f', 4, 64),
		strconv.FormatFloat(s.lon, 'f', 4, 64),
		strconv.Itoa(int(s.elevation)),
		s.at.Format(time.DateTime),
		strconv.Itoa(int(s.at.Month())),
		strconv.Itoa(s.at.Hour()),
		s.vegetation,
		s.soil,
		fmt1(s.soilMoisture),
		urbanRural,
		ocean,
	}
}

func fmt1(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

type generator struct {
	rng *rand.Rand
}

func (g *generator) sample(idx int) sample {
	s := sample{
		lat: g.uniform(-90, 90),
		lon: g.uniform(-180, 180),
		at:  startDate.Add(time.Duration(idx) * time.Hour),
	}

	coastal := math.Abs(s.lat) < 45 && g.rng.Float64() > 0.3
	arid := math.Abs(s.lat) > 30 && g.rng.Float64() > 0.6
	s.urban = g.rng.Float64() > 0.8

	switch {
	case coastal:
		s.elevation = g.gamma(1.5, 200)
	case arid:
		s.elevation = g.uniform(500, 3000)
	default:
		s.elevation = g.gamma(2, 400)
	}

	s.coolCurrent = (s.lon > -150 && s.lon < -70) || (s.lon > 5 && s.lon < 20)

	switch {
	case s.urban:
		s.vegetation = "urban"
	case coastal:
		s.vegetation = g.choice("wetland", "forest", "grassland")
	case arid:
		s.vegetation = g.choice("shrubland", "grassland")
	default:
		s.vegetation = g.choice(vegetationTypes[:len(vegetationTypes)-1]...)
	}

	switch s.vegetation {
	case "wetland":
		s.soil = "clay"
	case "forest":
		s.soil = g.choice("loam", "silt")
	default:
		s.soil = g.choice(soilTypes...)
	}

	month := int(s.at.Month())
	daytime := s.at.Hour() >= 6 && s.at.Hour() < 18
	var summer, monsoon bool
	if s.lat > 0 {
		summer = month >= 6 && month <= 8
		monsoon = month >= 6 && month <= 9
	} else {
		summer = month == 12 || month <= 2
		monsoon = month == 12 || month <= 3
	}

	s.temp = g.normal(baseTemp(coastal, arid, s.urban, s.coolCurrent, s.elevation, daytime, summer), 5)
	s.humidity = clamp(g.normal(baseHumidity(coastal, arid, s.urban, s.vegetation, daytime), 10), 10, 100)
	s.pressure = 1015 - s.elevation/100 + g.normal(0, 5)

	windScale := 12.0
	if coastal || (arid && s.elevation > 1000) {
		windScale = 18
	}
	if s.urban {
		windScale *= 1.3
	}
	if daytime {
		windScale *= 1.2
	} else {
		windScale *= 0.8
	}
	s.windSpeed = g.weibull(2, windScale)

	if monsoon || (coastal && g.rng.Float64() > 0.6) {
		s.rain = g.gamma(0.6, 3)
		if s.elevation > 1500 {
			s.rain *= 1.5
		}
		if s.vegetation == "forest" {
			s.rain *= 1.2
		}
	}

	moistureB := 3.0
	switch {
	case arid:
		moistureB = 5
	case coastal:
		moistureB = 2
	}
	s.soilMoisture = g.beta(2, moistureB) * 100
	switch {
	case s.rain > 5:
		s.soilMoisture *= 1.3
	case s.vegetation == "urban":
		s.soilMoisture *= 0.7
	}

	s.disaster = g.trigger(&s, coastal)
	return s
}

// trigger labels the sample and applies the pressure, wind and rain
// signatures of the chosen disaster.
func (g *generator) trigger(s *sample, coastal bool) string {
	disaster := "none"
	switch {
	case (s.soilMoisture > 60 && s.rain > 10) || (s.rain > 20 && s.elevation < 300):
		disaster = "flood"
		s.pressure -= g.uniform(5, 15)
	case burnable(s.vegetation) && s.temp > 35 && s.humidity < 25 && s.windSpeed > 10 &&
		s.soilMoisture < 30 && s.rain < 0.1:
		disaster = "wildfire"
		s.windSpeed *= g.uniform(1.2, 1.8)
	case s.windSpeed > 25 && (s.rain > 5 || coastal):
		disaster = "storm"
		s.pressure -= g.uniform(15, 25)
		s.rain = math.Max(s.rain, g.gamma(1, 8))
	}

	if s.urban && disaster == "none" {
		switch {
		case s.temp > 38 && s.humidity > 70:
			if s.rain > 5 {
				disaster = "urban_flood"
			} else {
				disaster = "heatwave"
			}
		case s.windSpeed > 30:
			disaster = "wind_damage"
		}
	}
	return disaster
}

func baseTemp(coastal, arid, urban, coolCurrent bool, elevation float64, daytime, summer bool) float64 {
	t := 22.0
	switch {
	case coastal:
		t = 28
	case arid:
		t = 32
	}
	switch {
	case coolCurrent:
		t -= 5
	case urban && !coastal:
		t += 3
	}
	t -= 0.0065 * elevation
	if daytime {
		t += 3
	} else {
		t -= 4
	}
	if summer {
		t += 2
	} else {
		t -= 2
	}
	return t
}

func baseHumidity(coastal, arid, urban bool, vegetation string, daytime bool) float64 {
	h := 60.0
	switch {
	case coastal:
		h = 75
	case arid:
		h = 18
	}
	switch {
	case urban:
		h -= 10
	case vegetation == "wetland":
		h += 15
	}
	if daytime {
		h -= 5
	} else {
		h += 8
	}
	return h
}

func burnable(vegetation string) bool {
	return vegetation == "forest" || vegetation == "shrubland" || vegetation == "grassland"
}

func clamp(v, lo, hi float64) float64 { return math.Min(math.Max(v, lo), hi) }

func (g *generator) choice(options ...string) string { return options[g.rng.IntN(len(options))] }

func (g *generator) uniform(lo, hi float64) float64 {
	return distuv.Uniform{Min: lo, Max: hi, Src: g.rng}.Rand()
}

func (g *generator) normal(mu, sigma float64) float64 {
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: g.rng}.Rand()
}

// gamma draws from Gamma(shape, scale); distuv parameterizes by rate.
func (g *generator) gamma(shape, scale float64) float64 {
	return distuv.Gamma{Alpha: shape, Beta: 1 / scale, Src: g.rng}.Rand()
}

func (g *generator) weibull(k, scale float64) float64 {
	return distuv.Weibull{K: k, Lambda: scale, Src: g.rng}.Rand()
}

func (g *generator) beta(a, b float64) float64 {
	return distuv.Beta{Alpha: a, Beta: b, Src: g.rng}.Rand()
}
