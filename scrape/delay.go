package scrape

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/use-agent/ratescout/config"
)

// DelayPolicy draws humanized waits between requests. Every delay is
// uniform within its class bounds, and any delay may gain an extended
// break so the request cadence never settles into a period.
type DelayPolicy struct {
	cfg   config.DelayConfig
	phase Phase
}

// NewDelayPolicy returns a policy using the class bounds in cfg. The phase
// picks which standard-delay range applies.
func NewDelayPolicy(cfg config.DelayConfig, phase Phase) *DelayPolicy {
	return &DelayPolicy{cfg: cfg, phase: phase}
}

// Wait blocks for a drawn delay of the given class, or until ctx is done.
// It returns the drawn duration.
func (d *DelayPolicy) Wait(ctx context.Context, class DelayClass) time.Duration {
	dur := d.draw(class)
	if dur <= 0 {
		return 0
	}
	slog.Debug("pacing", "class", class.String(), "wait", dur.Round(time.Millisecond))
	select {
	case <-time.After(dur):
	case <-ctx.Done():
	}
	return dur
}

func (d *DelayPolicy) draw(class DelayClass) time.Duration {
	var min, max time.Duration
	switch class {
	case DelayNone:
		return 0
	case DelayStandard:
		if d.phase == PhasePricing {
			min, max = d.cfg.PricingMin, d.cfg.PricingMax
		} else {
			min, max = d.cfg.DiscoveryMin, d.cfg.DiscoveryMax
		}
	case DelayShort:
		min, max = d.cfg.ShortMin, d.cfg.ShortMax
	case DelayMedium:
		min, max = d.cfg.MediumMin, d.cfg.MediumMax
	case DelayLong:
		min, max = d.cfg.LongMin, d.cfg.LongMax
	}

	dur := uniform(min, max)
	if d.cfg.LongBreakChance > 0 && rand.Float64() < d.cfg.LongBreakChance {
		extra := uniform(d.cfg.LongBreakMin, d.cfg.LongBreakMax)
		if extra > 0 {
			slog.Info("taking an extended break", "extra", extra.Round(time.Second))
			dur += extra
		}
	}
	return dur
}

// uniform draws from [min, max). max <= min collapses to min, which keeps
// zeroed test configs delay-free.
func uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
