package pipeline

import "sort"

// topBreakdownSize caps every breakdown at its ten largest buckets
const topBreakdownSize = 10

// CountBucket is one entry of an ordered breakdown
type CountBucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// MetricsSummary holds the aggregate metrics for one enriched record set.
// Breakdowns are ordered slices so the ranking survives JSON encoding.
type MetricsSummary struct {
	TotalFlights  int     `json:"total_flights"`
	Countries     int     `json:"countries"`
	AvgAltitudeFt float64 `json:"avg_altitude_ft"`
	AvgSpeedKnots float64 `json:"avg_speed_knots"`
	MaxAltitudeFt float64 `json:"max_altitude_ft"`
	MaxSpeedKnots float64 `json:"max_speed_knots"`

	FlightsByCountry  []CountBucket `json:"flights_by_country"`
	FlightsByAltitude []CountBucket `json:"flights_by_altitude"`
	FlightsByType     []CountBucket `json:"flights_by_type"`
}

// Aggregate reduces an enriched record set to summary metrics. It is a
// pure read-only reduction: means and maxima cover the full record set,
// and empty input yields a zero summary with no division by zero.
//
// Breakdowns rank by descending count; equal counts are broken
// lexicographically on the key so the ranking is deterministic. Records
// whose bin value stayed unlabeled are omitted from that breakdown.
func Aggregate(records []EnrichedRecord) MetricsSummary {
	var summary MetricsSummary
	if len(records) == 0 {
		return summary
	}

	countries := make(map[string]int)
	altitudes := make(map[string]int)
	types := make(map[string]int)

	var altSum, speedSum float64
	for _, rec := range records {
		countries[rec.OriginCountry]++
		if rec.AltitudeCategory != "" {
			altitudes[rec.AltitudeCategory]++
		}
		types[rec.AircraftType]++

		altSum += rec.AltitudeFt
		speedSum += rec.SpeedKnots
		if rec.AltitudeFt > summary.MaxAltitudeFt {
			summary.MaxAltitudeFt = rec.AltitudeFt
		}
		if rec.SpeedKnots > summary.MaxSpeedKnots {
			summary.MaxSpeedKnots = rec.SpeedKnots
		}
	}

	n := len(records)
	summary.TotalFlights = n
	summary.Countries = len(countries)
	summary.AvgAltitudeFt = altSum / float64(n)
	summary.AvgSpeedKnots = speedSum / float64(n)
	summary.FlightsByCountry = topBuckets(countries, topBreakdownSize)
	summary.FlightsByAltitude = topBuckets(altitudes, topBreakdownSize)
	summary.FlightsByType = topBuckets(types, topBreakdownSize)

	return summary
}

// topBuckets orders a count map by descending count (ties lexicographic on
// key) and keeps the first limit entries
func topBuckets(counts map[string]int, limit int) []CountBucket {
	buckets := make([]CountBucket, 0, len(counts))
	for key, count := range counts {
		buckets = append(buckets, CountBucket{Key: key, Count: count})
	}

	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Key < buckets[j].Key
	})

	if len(buckets) > limit {
		buckets = buckets[:limit]
	}
	return buckets
}
