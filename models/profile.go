package models

// ProfileMetadata records how a room catalog was discovered. Written by the
// discovery phase, informational for the pricing phase.
type ProfileMetadata struct {
	DatesChecked   int      `json:"discovery_dates_checked"`
	SampleDates    []string `json:"sample_dates"`
	IntervalDays   int      `json:"sample_interval_days"`
	TotalRooms     int      `json:"total_rooms_discovered"`
	DiscoveryRuns  int      `json:"discovery_runs,omitempty"`
	LastRunSeconds float64  `json:"last_run_seconds,omitempty"`
}

// HotelProfile is the persisted room catalog for one property: the full set
// of room-type names the hotel offers, built by sampling several dates.
// Room names are kept sorted and duplicate-free; membership is case-sensitive
// exact-string identity.
type HotelProfile struct {
	HotelName   string          `json:"hotel_name"`
	HotelURL    string          `json:"hotel_url"`
	RoomTypes   []string        `json:"room_types"`
	LastUpdated string          `json:"last_updated"` // YYYY-MM-DD
	Metadata    ProfileMetadata `json:"metadata"`
}
