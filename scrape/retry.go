package scrape

import "github.com/use-agent/ratescout/models"

// Action is the controller's verdict on how to proceed after an attempt.
type Action int

const (
	// ActionAccept takes the outcome as the date's final result.
	ActionAccept Action = iota

	// ActionRetry runs the same date again after the decision's delay.
	ActionRetry

	// ActionAbortDate records the date as failed and moves on.
	ActionAbortDate
)

func (a Action) String() string {
	switch a {
	case ActionAccept:
		return "accept"
	case ActionRetry:
		return "retry"
	}
	return "abort_date"
}

// DelayClass names the wait bucket applied before the next request.
type DelayClass int

const (
	// DelayNone skips the wait entirely.
	DelayNone DelayClass = iota

	// DelayStandard is the normal inter-request pace for the phase.
	DelayStandard

	// DelayShort precedes a retry after a parse failure.
	DelayShort

	// DelayMedium precedes a retry after a network failure.
	DelayMedium

	// DelayLong cools off after a bot-wall hit.
	DelayLong
)

func (d DelayClass) String() string {
	switch d {
	case DelayNone:
		return "none"
	case DelayStandard:
		return "standard"
	case DelayShort:
		return "short"
	case DelayMedium:
		return "medium"
	}
	return "long"
}

// Decision is what the runner does with one attempt's outcome.
type Decision struct {
	Action Action

	// Rotate discards the current session identity before the next request.
	Rotate bool

	// Delay is the wait class before the next request, whether that is a
	// retry of this date or the first attempt at the next one.
	Delay DelayClass
}

// Controller maps attempt outcomes to decisions. Each failure kind carries
// an independent one-retry budget per date, so a date may survive, say, one
// bot wall and one parse failure, but never two of either.
type Controller struct {
	budgets map[models.OutcomeKind]int
}

// NewController returns a controller with fresh budgets.
func NewController() *Controller {
	c := &Controller{}
	c.Reset()
	return c
}

// Reset restores all retry budgets. The runner calls it at the start of
// each date.
func (c *Controller) Reset() {
	c.budgets = map[models.OutcomeKind]int{
		models.OutcomeCaptcha:        1,
		models.OutcomeParseFailure:   1,
		models.OutcomeNetworkFailure: 1,
	}
}

// Decide applies the outcome table.
func (c *Controller) Decide(o models.Outcome) Decision {
	switch o.Kind {
	case models.OutcomeSuccess, models.OutcomePartial:
		return Decision{Action: ActionAccept, Delay: DelayStandard}

	case models.OutcomeCaptcha:
		// The session is burned either way.
		return c.failure(o.Kind, DelayLong)

	case models.OutcomeParseFailure:
		return c.failure(o.Kind, DelayShort)

	case models.OutcomeNetworkFailure:
		return c.failure(o.Kind, DelayMedium)
	}
	return Decision{Action: ActionAbortDate, Delay: DelayStandard}
}

func (c *Controller) failure(kind models.OutcomeKind, delay DelayClass) Decision {
	if c.spend(kind) {
		return Decision{Action: ActionRetry, Rotate: true, Delay: delay}
	}
	return Decision{Action: ActionAbortDate, Rotate: true, Delay: delay}
}

// spend consumes one retry from the kind's budget, reporting whether any
// was left.
func (c *Controller) spend(kind models.OutcomeKind) bool {
	if c.budgets[kind] <= 0 {
		return false
	}
	c.budgets[kind]--
	return true
}
