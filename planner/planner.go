// Package planner turns a sampling policy into the ordered list of
// date-scoped URLs a run visits. Pure date arithmetic and URL building;
// deterministic given its inputs.
package planner

import (
	"fmt"
	"net/url"
	"time"
)

// DateFormat is the wire format for check-in/check-out query values and for
// every persisted date field.
const DateFormat = "2006-01-02"

// Query parameters the booking site expects on a room-list page. x_pwa
// forces the progressive-web-app render (the variant the ready selector
// targets) and rfrr tags the visit as arriving from hotel search results.
const (
	paramCheckIn  = "chkin"
	paramCheckOut = "chkout"
	paramPWA      = "x_pwa"
	paramReferrer = "rfrr"

	pwaValue      = "1"
	referrerValue = "HSR"
)

// Window is a date-sampling policy: Count dates spaced IntervalDays apart
// starting at Start.
type Window struct {
	Start        time.Time
	Count        int
	IntervalDays int
}

// DiscoveryWindow samples `samples` dates spaced `intervalDays` apart.
// Spacing the samples catches rooms that only appear on weekends or in
// later seasons.
func DiscoveryWindow(start time.Time, samples, intervalDays int) Window {
	return Window{Start: start, Count: samples, IntervalDays: intervalDays}
}

// PricingWindow covers `days` consecutive dates.
func PricingWindow(start time.Time, days int) Window {
	return Window{Start: start, Count: days, IntervalDays: 1}
}

// Dates expands the window into its check-in dates.
func (w Window) Dates() []time.Time {
	dates := make([]time.Time, 0, w.Count)
	for i := 0; i < w.Count; i++ {
		dates = append(dates, w.Start.AddDate(0, 0, i*w.IntervalDays))
	}
	return dates
}

func (w Window) validate() error {
	if w.Start.IsZero() {
		return fmt.Errorf("planner: window start date is zero")
	}
	if w.Count <= 0 {
		return fmt.Errorf("planner: window count must be > 0, got %d", w.Count)
	}
	if w.IntervalDays < 1 {
		return fmt.Errorf("planner: window interval must be >= 1 day, got %d", w.IntervalDays)
	}
	return nil
}

// Step is one planned page visit: a check-in date and the fully built URL
// quoting a one-night stay for it.
type Step struct {
	CheckIn  time.Time
	CheckOut time.Time
	URL      string
}

// Date returns the step's check-in date in wire format.
func (s Step) Date() string {
	return s.CheckIn.Format(DateFormat)
}

// Build expands the window against the property's base URL. Checkout is
// always checkin + 1 day: a one-night query returns the per-night rate for
// every room, which is the unit the catalog prices in.
func Build(baseURL string, w Window) ([]Step, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("planner: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("planner: base url %q missing scheme or host", baseURL)
	}

	steps := make([]Step, 0, w.Count)
	for _, checkIn := range w.Dates() {
		checkOut := checkIn.AddDate(0, 0, 1)

		u := *base
		q := u.Query()
		q.Set(paramCheckIn, checkIn.Format(DateFormat))
		q.Set(paramCheckOut, checkOut.Format(DateFormat))
		q.Set(paramPWA, pwaValue)
		q.Set(paramReferrer, referrerValue)
		u.RawQuery = q.Encode()

		steps = append(steps, Step{
			CheckIn:  checkIn,
			CheckOut: checkOut,
			URL:      u.String(),
		})
	}
	return steps, nil
}
