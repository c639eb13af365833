package aggregate

import (
	"sort"

	"github.com/use-agent/ratescout/models"
)

// CatalogBuilder accumulates the union of room names seen across discovery
// samples. Identity is the exact string: "Standard Twin" and "standard twin"
// are two different rooms, because the pricing prompt echoes names back
// verbatim and the hotel page is the single source of spelling.
type CatalogBuilder struct {
	seen map[string]struct{}
}

// NewCatalogBuilder returns an empty builder.
func NewCatalogBuilder() *CatalogBuilder {
	return &CatalogBuilder{seen: make(map[string]struct{})}
}

// Add folds one sample's room names into the catalog and returns the names
// not seen on any earlier sample, sorted.
func (b *CatalogBuilder) Add(names []string) []string {
	var fresh []string
	for _, name := range names {
		if _, ok := b.seen[name]; ok {
			continue
		}
		b.seen[name] = struct{}{}
		fresh = append(fresh, name)
	}
	sort.Strings(fresh)
	return fresh
}

// Sorted returns the full catalog as a sorted, duplicate-free slice.
func (b *CatalogBuilder) Sorted() []string {
	out := make([]string, 0, len(b.seen))
	for name := range b.seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len reports how many distinct rooms the catalog holds.
func (b *CatalogBuilder) Len() int {
	return len(b.seen)
}

// RoomAvailability summarizes how often one catalog room carried a real
// price across the scraped dates.
type RoomAvailability struct {
	Room   string
	Priced int // dates with a concrete price (sentinels excluded)
	Total  int // dates scraped
	Ratio  float64
}

// Availability computes the per-room availability summary over a run's
// daily rates, in catalog order. A room listed with a sentinel price (or not
// listed at all) does not count as priced for that date.
func Availability(catalog []string, rates []models.DailyRate) []RoomAvailability {
	total := len(rates)

	priced := make(map[string]int, len(catalog))
	for _, rate := range rates {
		for _, listing := range rate.Listings {
			if listing.HasPrice() {
				priced[listing.Name]++
			}
		}
	}

	out := make([]RoomAvailability, 0, len(catalog))
	for _, room := range catalog {
		a := RoomAvailability{Room: room, Priced: priced[room], Total: total}
		if total > 0 {
			a.Ratio = float64(a.Priced) / float64(total)
		}
		out = append(out, a)
	}
	return out
}

// MissingRooms returns the catalog rooms absent from a daily rate, in
// catalog order. A pricing response that drops rooms is a partial result.
func MissingRooms(catalog []string, rate models.DailyRate) []string {
	listed := make(map[string]struct{}, len(rate.Listings))
	for _, listing := range rate.Listings {
		listed[listing.Name] = struct{}{}
	}

	var missing []string
	for _, room := range catalog {
		if _, ok := listed[room]; !ok {
			missing = append(missing, room)
		}
	}
	return missing
}

// UnexpectedRooms returns listed names that are not in the catalog, sorted
// and duplicate-free. They are reported as anomalies but still kept in the
// output: the catalog ages, the page is current.
func UnexpectedRooms(catalog []string, rate models.DailyRate) []string {
	known := make(map[string]struct{}, len(catalog))
	for _, room := range catalog {
		known[room] = struct{}{}
	}

	seen := make(map[string]struct{})
	var unexpected []string
	for _, listing := range rate.Listings {
		if _, ok := known[listing.Name]; ok {
			continue
		}
		if _, dup := seen[listing.Name]; dup {
			continue
		}
		seen[listing.Name] = struct{}{}
		unexpected = append(unexpected, listing.Name)
	}
	sort.Strings(unexpected)
	return unexpected
}
