package pipeline

import (
	"time"

	"github.com/olneyjr/flightdeck/internal/opensky"
	"github.com/olneyjr/flightdeck/internal/physics"
)

// Altitude bins in feet. Intervals are left-closed and right-open except
// the top bin, which is closed; values outside all bins stay unlabeled.
var (
	altitudeEdges  = []float64{0, 10000, 20000, 30000, 45000, 100000}
	altitudeLabels = []string{"Low", "Medium", "High", "Very High", "Extreme"}
)

// Speed bins in knots, same interval semantics as the altitude bins
var (
	speedEdges  = []float64{0, 200, 350, 500, 1000}
	speedLabels = []string{"Slow", "Medium", "Fast", "Very Fast"}
)

// aircraftTypes maps the ADS-B emitter category code to a human-readable
// label. Codes outside the table map to "Unknown".
var aircraftTypes = map[int]string{
	0:  "No Info Available",
	1:  "No ADS-B Info",
	2:  "Light (<15.5k lbs)",
	3:  "Small (15.5k-75k lbs)",
	4:  "Large (75k-300k lbs)",
	5:  "High Vortex Large (B-757)",
	6:  "Heavy (>300k lbs)",
	7:  "High Performance",
	8:  "Rotorcraft",
	9:  "Glider",
	10: "Lighter-than-air",
	11: "Parachutist",
	12: "Ultralight",
	13: "Reserved",
	14: "UAV",
	15: "Space Vehicle",
	16: "Emergency Vehicle",
	17: "Service Vehicle",
	18: "Point Obstacle",
	19: "Cluster Obstacle",
	20: "Line Obstacle",
}

// EnrichedRecord is an airborne state vector with complete core fields
// plus derived physical units and categorical labels. Raw metric fields
// are kept alongside the derived ones so a record can always be traced
// back to its source observation.
type EnrichedRecord struct {
	ICAO24        string `json:"icao24"`
	Callsign      string `json:"callsign"`
	OriginCountry string `json:"origin_country"`
	LastContact   int64  `json:"last_contact"`

	Longitude     float64 `json:"longitude"`
	Latitude      float64 `json:"latitude"`
	BaroAltitudeM float64 `json:"baro_altitude_m"`
	VelocityMS    float64 `json:"velocity_ms"`

	AltitudeFt      float64  `json:"altitude_ft"`
	SpeedKnots      float64  `json:"speed_knots"`
	VerticalRateFPM *float64 `json:"vertical_rate_fpm,omitempty"`
	TrueTrack       *float64 `json:"true_track,omitempty"`
	MagneticTrack   *float64 `json:"magnetic_track,omitempty"`

	AltitudeCategory string `json:"altitude_category"`
	SpeedCategory    string `json:"speed_category"`
	CategoryCode     int    `json:"category"`
	AircraftType     string `json:"aircraft_type"`
	Squawk           string `json:"squawk,omitempty"`
}

// TransformStats counts the rows a Transform call discarded, for
// observability
type TransformStats struct {
	Grounded      int // rows dropped because the aircraft was on the ground
	MissingFields int // rows dropped because a load-bearing field was null
}

// Dropped returns the total number of discarded rows
func (s TransformStats) Dropped() int {
	return s.Grounded + s.MissingFields
}

// Transform turns a raw state vector batch into enriched records:
//
//  1. Rows with on_ground set are discarded.
//  2. Rows missing latitude, longitude, velocity or barometric altitude
//     are discarded (only these four fields are load-bearing).
//  3. Altitude is derived in feet, speed in knots (floored at 1).
//  4. Altitude and speed categories are assigned from the fixed bin
//     tables; out-of-range values stay unlabeled.
//  5. The category code is mapped to an aircraft type label.
//
// The input is never mutated; an empty input returns an empty slice. The
// observation time `at` anchors the magnetic declination model.
func Transform(raw []opensky.StateVector, at time.Time) ([]EnrichedRecord, TransformStats) {
	var stats TransformStats
	if len(raw) == 0 {
		return []EnrichedRecord{}, stats
	}

	records := make([]EnrichedRecord, 0, len(raw))
	for _, sv := range raw {
		if sv.OnGround {
			stats.Grounded++
			continue
		}
		if sv.Latitude == nil || sv.Longitude == nil || sv.Velocity == nil || sv.BaroAltitude == nil {
			stats.MissingFields++
			continue
		}

		rec := EnrichedRecord{
			ICAO24:        sv.ICAO24,
			Callsign:      sv.Callsign,
			OriginCountry: sv.OriginCountry,
			LastContact:   sv.LastContact,
			Longitude:     *sv.Longitude,
			Latitude:      *sv.Latitude,
			BaroAltitudeM: *sv.BaroAltitude,
			VelocityMS:    *sv.Velocity,
			AltitudeFt:    *sv.BaroAltitude * physics.MetersToFeet,
			SpeedKnots:    *sv.Velocity * physics.MsToKnots,
			CategoryCode:  sv.Category,
			AircraftType:  AircraftTypeLabel(sv.Category),
			Squawk:        sv.Squawk,
		}

		if rec.SpeedKnots < 1 {
			rec.SpeedKnots = 1
		}

		if sv.VerticalRate != nil {
			fpm := *sv.VerticalRate * physics.MsToFPM
			rec.VerticalRateFPM = &fpm
		}
		if sv.TrueTrack != nil {
			track := *sv.TrueTrack
			rec.TrueTrack = &track
			decl := physics.MagneticVariation(rec.Latitude, rec.Longitude, rec.AltitudeFt, at)
			mag := physics.TrueToMagnetic(track, decl)
			rec.MagneticTrack = &mag
		}

		rec.AltitudeCategory = binLabel(rec.AltitudeFt, altitudeEdges, altitudeLabels)
		rec.SpeedCategory = binLabel(rec.SpeedKnots, speedEdges, speedLabels)

		records = append(records, rec)
	}

	return records, stats
}

// AircraftTypeLabel maps a category code to its label, defaulting to
// "Unknown" for codes outside the fixed table
func AircraftTypeLabel(code int) string {
	if label, ok := aircraftTypes[code]; ok {
		return label
	}
	return "Unknown"
}

// binLabel assigns v to a bin. Bins are [edge[i], edge[i+1]) with the top
// bin closed on both ends; values outside all bins get no label.
func binLabel(v float64, edges []float64, labels []string) string {
	if v < edges[0] || v > edges[len(edges)-1] {
		return ""
	}
	for i := 1; i < len(edges)-1; i++ {
		if v < edges[i] {
			return labels[i-1]
		}
	}
	return labels[len(labels)-1]
}
