package physics

import (
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// Unit conversion factors
const (
	MetersToFeet = 3.28084   // meters to feet
	MsToKnots    = 1.94384   // m/s to knots
	MsToFPM      = 196.850394 // m/s to feet per minute
	FeetToMeters = 0.3048    // feet to meters
)

// MagneticVariation calculates the magnetic declination for a given
// position and time. Returns declination in degrees (+East, -West), or 0
// if the WMM calculation fails.
func MagneticVariation(lat, lon, altFt float64, date time.Time) float64 {
	altM := altFt * FeetToMeters

	loc := egm96.NewLocationGeodetic(lat, lon, altM)

	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		return 0.0
	}

	return mag.D()
}

// TrueToMagnetic converts a true track to a magnetic track given the local
// declination, normalized to [0, 360)
func TrueToMagnetic(trueTrack, declination float64) float64 {
	return NormalizeTrack(trueTrack - declination)
}

// NormalizeTrack wraps a track angle into [0, 360)
func NormalizeTrack(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
