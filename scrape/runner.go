package scrape

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/ratescout/metrics"
	"github.com/use-agent/ratescout/models"
	"github.com/use-agent/ratescout/planner"
	"github.com/use-agent/ratescout/probe"
	"github.com/use-agent/ratescout/session"
)

// DiagnosticsSink persists artifacts for failed attempts.
type DiagnosticsSink interface {
	// SaveCaptchaPage stores the visible text of a bot-wall page.
	SaveCaptchaPage(date string, pageText string) (string, error)

	// SaveRawExtraction stores unparseable extraction output verbatim.
	SaveRawExtraction(date string, raw string) (string, error)
}

// Prober is the preflight reachability check run before the browser starts.
type Prober interface {
	Check(ctx context.Context, url string) (probe.Result, error)
}

// DateResult is the final word on one planned date.
type DateResult struct {
	Step     planner.Step
	Outcome  models.Outcome
	Attempts int

	// Aborted marks a date whose retry budget ran out; Outcome then holds
	// the last failure rather than a result.
	Aborted bool
}

// netFailRotationThreshold forces a rotation warning after this many
// network failures in a row, across date boundaries.
const netFailRotationThreshold = 3

// RunnerParams wires a Runner. Machine, Session and Delays are required;
// everything else degrades gracefully when nil.
type RunnerParams struct {
	Machine *Machine
	Session *session.Manager
	Delays  *DelayPolicy
	Sink    DiagnosticsSink
	Metrics *metrics.Metrics
	Status  *StatusTracker
	Probe   Prober

	// Hotel names the target for status reporting.
	Hotel string

	// BaseURL is the site root used for the preflight probe and warmup.
	BaseURL string

	// Warmup visits BaseURL once before the first scrape.
	Warmup bool
}

// Runner walks a planned date window, one attempt loop per date, feeding
// outcomes through the retry controller and pacing every request.
type Runner struct {
	machine *Machine
	session *session.Manager
	delays  *DelayPolicy
	sink    DiagnosticsSink
	metrics *metrics.Metrics
	status  *StatusTracker
	probe   Prober
	hotel   string
	baseURL string
	warmup  bool

	netFailStreak int
}

// NewRunner assembles a runner from params.
func NewRunner(p RunnerParams) *Runner {
	return &Runner{
		machine: p.Machine,
		session: p.Session,
		delays:  p.Delays,
		sink:    p.Sink,
		metrics: p.Metrics,
		status:  p.Status,
		probe:   p.Probe,
		hotel:   p.Hotel,
		baseURL: p.BaseURL,
		warmup:  p.Warmup,
	}
}

// Run scrapes every planned step in order and returns each date's final
// result. It stops early only on run-level failure: an unreachable target,
// rejected credentials, or context cancellation. Per-date failures are
// recorded and the run moves on.
func (r *Runner) Run(ctx context.Context, steps []planner.Step) ([]DateResult, error) {
	started := time.Now()
	slog.Info("run starting",
		"hotel", r.hotel,
		"phase", r.machine.Phase().String(),
		"dates", len(steps),
	)

	// ── 1. Preflight probe ──
	if r.probe != nil {
		res, err := r.probe.Check(ctx, r.baseURL)
		if err != nil {
			return nil, err
		}
		if res.Blocked {
			// The lightweight client tripping the edge does not doom the
			// browser, which carries a full fingerprint.
			slog.Warn("preflight answered with a block status, continuing with browser",
				"status", res.StatusCode, "title", res.Title)
		}
	}

	// ── 2. Warmup visit ──
	if r.warmup && r.baseURL != "" {
		if err := r.machine.pager.Warmup(ctx, r.baseURL); err != nil {
			slog.Warn("warmup visit failed, continuing cold", "error", err)
		}
	}

	r.status.start(r.hotel, r.machine.Phase().String(), len(steps))
	defer r.status.finish()

	// ── 3. Date loop ──
	results := make([]DateResult, 0, len(steps))
	control := NewController()
	pending := DelayNone
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		// No pacing before the very first request of the run.
		if pending != DelayNone {
			r.delays.Wait(ctx, pending)
		}

		res, next, err := r.scrapeDate(ctx, step, control)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		pending = next

		r.status.recordDate(res.Aborted)
		if res.Aborted {
			r.metrics.IncDate("aborted")
		} else {
			r.metrics.IncDate("accepted")
		}
	}

	slog.Info("run finished",
		"hotel", r.hotel,
		"dates", len(results),
		"aborted", countAborted(results),
		"rotations", r.session.Rotations(),
		"elapsed", time.Since(started).Round(time.Second),
	)
	return results, nil
}

// scrapeDate drives one date to acceptance or abort. The returned
// DelayClass is the pacing owed before the next date's first attempt.
func (r *Runner) scrapeDate(ctx context.Context, step planner.Step, control *Controller) (DateResult, DelayClass, error) {
	control.Reset()
	result := DateResult{Step: step}
	r.status.setCurrentDate(step.Date())

	for {
		// Honor scheduled rotation before the attempt, so the page carries
		// a fresh identity rather than an expiring one.
		if r.session.ShouldRotate() {
			r.rotate("schedule")
		}

		start := time.Now()
		outcome := r.machine.Run(ctx, step)
		r.session.RecordRequest()
		result.Attempts++

		r.metrics.ObserveAttempt(time.Since(start))
		r.metrics.IncAttempt(outcome.Kind.String())
		r.status.recordAttempt(outcome.Kind.String(), outcome.Kind == models.OutcomeCaptcha)
		r.trackNetworkFailures(outcome)
		r.saveDiagnostics(step, outcome)

		if models.ErrorCode(outcome.Err) == models.ErrCodeLLMAuthFailure {
			// No retry or rotation fixes rejected credentials.
			return result, DelayNone, outcome.Err
		}

		decision := control.Decide(outcome)
		if decision.Rotate {
			r.rotate(outcome.Kind.String())
		}

		switch decision.Action {
		case ActionAccept:
			result.Outcome = outcome
			if outcome.Kind == models.OutcomePartial {
				slog.Warn("accepting partial result",
					"date", step.Date(), "missing_rooms", outcome.MissingRooms)
			}
			return result, decision.Delay, nil

		case ActionRetry:
			r.metrics.IncRetry()
			r.status.recordRetry()
			slog.Info("retrying date",
				"date", step.Date(),
				"outcome", outcome.Kind.String(),
				"attempt", result.Attempts,
				"delay_class", decision.Delay.String(),
			)
			r.delays.Wait(ctx, decision.Delay)
			if err := ctx.Err(); err != nil {
				result.Outcome = outcome
				result.Aborted = true
				return result, DelayNone, err
			}

		default: // ActionAbortDate
			result.Outcome = outcome
			result.Aborted = true
			slog.Warn("giving up on date",
				"date", step.Date(),
				"outcome", outcome.Kind.String(),
				"attempts", result.Attempts,
				"error", outcome.Err,
			)
			return result, decision.Delay, nil
		}
	}
}

func (r *Runner) rotate(reason string) {
	s := r.session.Rotate()
	r.metrics.IncRotation()
	r.status.recordRotation()
	slog.Info("session rotated", "reason", reason, "session", s.ID)
}

// trackNetworkFailures watches for failure streaks that survive rotation,
// which points at connectivity or an IP-level block rather than a burned
// fingerprint.
func (r *Runner) trackNetworkFailures(o models.Outcome) {
	if o.Kind != models.OutcomeNetworkFailure {
		r.netFailStreak = 0
		return
	}
	r.netFailStreak++
	if r.netFailStreak >= netFailRotationThreshold {
		slog.Warn("network failures persisting across rotations, check connectivity or proxy",
			"streak", r.netFailStreak)
		r.netFailStreak = 0
	}
}

// saveDiagnostics persists the artifact each failure kind calls for.
func (r *Runner) saveDiagnostics(step planner.Step, o models.Outcome) {
	if r.sink == nil || o.RawText == "" {
		return
	}
	var (
		path string
		err  error
	)
	switch o.Kind {
	case models.OutcomeCaptcha:
		path, err = r.sink.SaveCaptchaPage(step.Date(), o.RawText)
	case models.OutcomeParseFailure:
		path, err = r.sink.SaveRawExtraction(step.Date(), o.RawText)
	default:
		return
	}
	if err != nil {
		slog.Error("failed to save diagnostics artifact", "date", step.Date(), "error", err)
		return
	}
	slog.Info("diagnostics artifact saved", "date", step.Date(), "path", path)
}

func countAborted(results []DateResult) int {
	n := 0
	for _, res := range results {
		if res.Aborted {
			n++
		}
	}
	return n
}
