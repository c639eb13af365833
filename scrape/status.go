package scrape

import (
	"sync"
	"time"
)

// RunStatus is a point-in-time snapshot of a run, served by the monitor.
type RunStatus struct {
	Hotel        string    `json:"hotel"`
	Phase        string    `json:"phase"`
	Running      bool      `json:"running"`
	StartedAt    time.Time `json:"started_at"`
	DatesPlanned int       `json:"dates_planned"`
	DatesDone    int       `json:"dates_done"`
	DatesAborted int       `json:"dates_aborted"`
	CurrentDate  string    `json:"current_date,omitempty"`
	Attempts     int       `json:"attempts"`
	Retries      int       `json:"retries"`
	Rotations    int       `json:"rotations"`
	Captchas     int       `json:"captchas"`
	LastOutcome  string    `json:"last_outcome,omitempty"`
}

// StatusTracker holds the mutable run status behind a mutex. All methods
// are safe on a nil tracker, so wiring one up is optional.
type StatusTracker struct {
	mu sync.Mutex
	s  RunStatus
}

// Snapshot returns a copy of the current status.
func (t *StatusTracker) Snapshot() RunStatus {
	if t == nil {
		return RunStatus{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}

func (t *StatusTracker) start(hotel, phase string, planned int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s = RunStatus{
		Hotel:        hotel,
		Phase:        phase,
		Running:      true,
		StartedAt:    time.Now(),
		DatesPlanned: planned,
	}
}

func (t *StatusTracker) finish() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Running = false
	t.s.CurrentDate = ""
}

func (t *StatusTracker) setCurrentDate(date string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.CurrentDate = date
}

func (t *StatusTracker) recordAttempt(outcome string, captcha bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Attempts++
	t.s.LastOutcome = outcome
	if captcha {
		t.s.Captchas++
	}
}

func (t *StatusTracker) recordRetry() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Retries++
}

func (t *StatusTracker) recordRotation() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Rotations++
}

func (t *StatusTracker) recordDate(aborted bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.DatesDone++
	if aborted {
		t.s.DatesAborted++
	}
}
