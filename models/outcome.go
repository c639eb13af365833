package models

// OutcomeKind classifies the terminal result of one page-scrape attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeCaptcha
	OutcomeParseFailure
	OutcomePartial
	OutcomeNetworkFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeCaptcha:
		return "captcha_detected"
	case OutcomeParseFailure:
		return "parse_failure"
	case OutcomePartial:
		return "partial_result"
	case OutcomeNetworkFailure:
		return "network_failure"
	}
	return "unknown"
}

// Outcome is the tagged result of one page-scrape attempt. Exactly the fields
// relevant to the Kind are populated:
//
//	OutcomeSuccess        Rate (pricing) or Rooms (discovery)
//	OutcomeCaptcha        RawText = visible page text at detection time
//	OutcomeParseFailure   RawText = unparsed extraction output, Err = cause
//	OutcomePartial        Rate + MissingRooms
//	OutcomeNetworkFailure Err = load/transport cause
//
// The retry controller switches on Kind only; the raw fields feed diagnostics.
type Outcome struct {
	Kind         OutcomeKind
	Rate         *DailyRate
	Rooms        []string
	MissingRooms []string
	RawText      string
	Err          error
}

// SuccessOutcome wraps a fully matched daily rate.
func SuccessOutcome(rate *DailyRate) Outcome {
	return Outcome{Kind: OutcomeSuccess, Rate: rate}
}

// DiscoveryOutcome wraps a discovered room-name list.
func DiscoveryOutcome(rooms []string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Rooms: rooms}
}

// CaptchaOutcome records a bot-wall hit together with the page text that
// triggered the keyword match.
func CaptchaOutcome(pageText string) Outcome {
	return Outcome{Kind: OutcomeCaptcha, RawText: pageText}
}

// ParseFailureOutcome records unusable extraction output. raw is preserved
// verbatim for the diagnostics artifact.
func ParseFailureOutcome(raw string, err error) Outcome {
	return Outcome{Kind: OutcomeParseFailure, RawText: raw, Err: err}
}

// PartialOutcome records a valid rate that is missing expected catalog rooms.
func PartialOutcome(rate *DailyRate, missing []string) Outcome {
	return Outcome{Kind: OutcomePartial, Rate: rate, MissingRooms: missing}
}

// NetworkFailureOutcome records a failed or timed-out page load or
// collaborator call.
func NetworkFailureOutcome(err error) Outcome {
	return Outcome{Kind: OutcomeNetworkFailure, Err: err}
}
