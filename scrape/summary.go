package scrape

import (
	"log/slog"
	"time"

	"github.com/use-agent/ratescout/aggregate"
	"github.com/use-agent/ratescout/models"
)

// BuildCatalog folds a discovery run's accepted results into the deduped
// room-name union, logging what each sampled date contributed.
func BuildCatalog(results []DateResult) []string {
	builder := aggregate.NewCatalogBuilder()
	for _, res := range results {
		if res.Aborted {
			continue
		}
		fresh := builder.Add(res.Outcome.Rooms)
		slog.Info("discovery sample folded in",
			"date", res.Step.Date(),
			"listed", len(res.Outcome.Rooms),
			"new", len(fresh),
		)
		if len(fresh) > 0 {
			slog.Debug("new room types", "date", res.Step.Date(), "rooms", fresh)
		}
	}
	return builder.Sorted()
}

// CollectRates gathers a pricing run's accepted daily rates in date order,
// logging catalog anomalies as it goes.
func CollectRates(catalog []string, results []DateResult) []models.DailyRate {
	rates := make([]models.DailyRate, 0, len(results))
	for _, res := range results {
		if res.Aborted || res.Outcome.Rate == nil {
			continue
		}
		rate := *res.Outcome.Rate
		if unexpected := aggregate.UnexpectedRooms(catalog, rate); len(unexpected) > 0 {
			slog.Warn("listings outside the catalog", "date", rate.Date, "rooms", unexpected)
		}
		if len(res.Outcome.MissingRooms) > 0 {
			slog.Warn("catalog rooms absent from listings", "date", rate.Date, "rooms", res.Outcome.MissingRooms)
		}
		rates = append(rates, rate)
	}
	return rates
}

// Summary condenses a finished run for reporting.
type Summary struct {
	DatesPlanned  int
	DatesAccepted int
	DatesAborted  int
	Partials      int

	// CaptchaAborts counts dates whose final outcome was a bot wall.
	CaptchaAborts int

	Elapsed time.Duration
}

// Summarize tallies a finished run. Per-room availability lives in the
// aggregate package; this covers only what the runner itself knows.
func Summarize(results []DateResult, elapsed time.Duration) Summary {
	s := Summary{DatesPlanned: len(results), Elapsed: elapsed}
	for _, res := range results {
		if res.Aborted {
			s.DatesAborted++
			if res.Outcome.Kind == models.OutcomeCaptcha {
				s.CaptchaAborts++
			}
			continue
		}
		s.DatesAccepted++
		if res.Outcome.Kind == models.OutcomePartial {
			s.Partials++
		}
	}
	return s
}
