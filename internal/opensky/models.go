package opensky

import "time"

// BoundingBox is a lamin/lamax/lomin/lomax rectangle used to scope a
// state vector query to a geographic region
type BoundingBox struct {
	LatMin float64 `json:"lamin"`
	LatMax float64 `json:"lamax"`
	LonMin float64 `json:"lomin"`
	LonMax float64 `json:"lomax"`
}

// StateVector is one timestamped observation of an aircraft from the
// tracking network. Fields the server may report as null are pointers so
// that downstream filtering can tell "missing" apart from zero.
type StateVector struct {
	ICAO24         string   `json:"icao24"`
	Callsign       string   `json:"callsign"`
	OriginCountry  string   `json:"origin_country"`
	TimePosition   *int64   `json:"time_position"`
	LastContact    int64    `json:"last_contact"`
	Longitude      *float64 `json:"longitude"`
	Latitude       *float64 `json:"latitude"`
	BaroAltitude   *float64 `json:"baro_altitude"` // meters
	OnGround       bool     `json:"on_ground"`
	Velocity       *float64 `json:"velocity"`      // m/s
	TrueTrack      *float64 `json:"true_track"`    // degrees clockwise from north
	VerticalRate   *float64 `json:"vertical_rate"` // m/s, positive climbing
	Sensors        []int    `json:"sensors,omitempty"`
	GeoAltitude    *float64 `json:"geo_altitude"` // meters
	Squawk         string   `json:"squawk"`
	SPI            bool     `json:"spi"`
	PositionSource int      `json:"position_source"`

	// Category is the aircraft category code from the extended schema.
	// It is only reported when the server returns 18-column rows; for
	// 17-column rows it defaults to 0 ("no information").
	Category int `json:"category"`
}

// StateBatch is the decoded result of a single /states/all fetch
type StateBatch struct {
	Time time.Time `json:"time"` // Server-reported fetch time

	// HasCategory records whether the server included the 18th
	// (category) column in this batch. A single fetch is never a mix
	// of both row shapes.
	HasCategory bool `json:"has_category"`

	States []StateVector `json:"states"`
}

// StateRequest holds the optional query parameters for FetchStates
type StateRequest struct {
	BBox   *BoundingBox // Bounding box to scope the query (nil = worldwide)
	Time   int64        // Unix seconds of the snapshot to request (0 = latest)
	ICAO24 []string     // Transponder addresses to filter on (repeatable parameter)
}

// Flight is a flat record returned by the /flights/all, /flights/arrival
// and /flights/departure endpoints
type Flight struct {
	ICAO24                         string `json:"icao24"`
	FirstSeen                      int64  `json:"firstSeen"`
	EstDepartureAirport            string `json:"estDepartureAirport"`
	LastSeen                       int64  `json:"lastSeen"`
	EstArrivalAirport              string `json:"estArrivalAirport"`
	Callsign                       string `json:"callsign"`
	EstDepartureAirportHorizDist   int    `json:"estDepartureAirportHorizDistance"`
	EstDepartureAirportVertDist    int    `json:"estDepartureAirportVertDistance"`
	EstArrivalAirportHorizDist     int    `json:"estArrivalAirportHorizDistance"`
	EstArrivalAirportVertDist      int    `json:"estArrivalAirportVertDistance"`
	DepartureAirportCandidatesCount int   `json:"departureAirportCandidatesCount"`
	ArrivalAirportCandidatesCount   int   `json:"arrivalAirportCandidatesCount"`
}
