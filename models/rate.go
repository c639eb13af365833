package models

// Sentinel price statuses. The extraction collaborator is instructed to emit
// exactly these strings when a room has no numeric price for a date; every
// other price value is treated as a real quote.
const (
	PriceSoldOut     = "Sold Out"
	PriceUnavailable = "Price Not Available"
	PriceNotListed   = "Not Listed"
)

// Listing is one room's price entry for a single date.
type Listing struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

// HasPrice reports whether the listing carries a real quote rather than a
// sentinel status.
func (l Listing) HasPrice() bool {
	return l.Price != "" && !IsSentinelPrice(l.Price)
}

// IsSentinelPrice reports whether p is one of the fixed non-numeric statuses.
func IsSentinelPrice(p string) bool {
	switch p {
	case PriceSoldOut, PriceUnavailable, PriceNotListed:
		return true
	}
	return false
}

// DailyRate holds all listings scraped for one check-in date.
type DailyRate struct {
	Date     string    `json:"date"` // YYYY-MM-DD
	Listings []Listing `json:"listings"`
}

// RateReport is the persisted result of one pricing run.
type RateReport struct {
	HotelName  string      `json:"hotel_name"`
	DailyRates []DailyRate `json:"daily_rates"`
}
