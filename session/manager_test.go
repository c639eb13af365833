package session

import (
	"testing"
	"time"

	"github.com/use-agent/ratescout/config"
)

func testConfig() config.SessionConfig {
	return config.SessionConfig{
		RequestLimit: 10,
		MaxAge:       20 * time.Minute,
	}
}

func TestCurrentCreatesOnFirstUse(t *testing.T) {
	m := NewManager(testConfig())
	s := m.Current()
	if s == nil {
		t.Fatal("Current returned nil")
	}
	if s.ID == "" {
		t.Error("session has empty id")
	}
	if s.RequestCount != 0 {
		t.Errorf("fresh session has RequestCount %d", s.RequestCount)
	}
	if s2 := m.Current(); s2.ID != s.ID {
		t.Error("Current minted a second session without rotation")
	}
}

func TestRotationAtExactlyRequestLimit(t *testing.T) {
	m := NewManager(testConfig())
	m.Current()

	for i := 0; i < 9; i++ {
		m.RecordRequest()
	}
	if m.ShouldRotate() {
		t.Fatal("rotation signaled at RequestLimit-1")
	}

	m.RecordRequest() // request count now exactly at the limit
	if !m.ShouldRotate() {
		t.Fatal("rotation not signaled at RequestLimit")
	}
}

func TestRotationAtMaxAge(t *testing.T) {
	m := NewManager(testConfig())
	base := time.Now()
	m.now = func() time.Time { return base }

	m.Current()
	if m.ShouldRotate() {
		t.Fatal("fresh session should not rotate")
	}

	m.now = func() time.Time { return base.Add(19 * time.Minute) }
	if m.ShouldRotate() {
		t.Fatal("rotation signaled before MaxAge")
	}

	m.now = func() time.Time { return base.Add(20 * time.Minute) }
	if !m.ShouldRotate() {
		t.Fatal("rotation not signaled at MaxAge")
	}
}

func TestRotateReplacesSession(t *testing.T) {
	m := NewManager(testConfig())
	old := m.Current()
	for i := 0; i < 10; i++ {
		m.RecordRequest()
	}

	fresh := m.Rotate()
	if fresh.ID == old.ID {
		t.Error("rotation kept the old id")
	}
	if fresh.RequestCount != 0 {
		t.Errorf("rotated session has RequestCount %d", fresh.RequestCount)
	}
	if m.ShouldRotate() {
		t.Error("fresh session still wants rotation")
	}
	if m.Rotations() != 1 {
		t.Errorf("Rotations() = %d, want 1", m.Rotations())
	}
	if got := m.Current(); got.ID != fresh.ID {
		t.Error("Current does not return the rotated session")
	}
}

func TestShouldRotateWithoutSession(t *testing.T) {
	m := NewManager(testConfig())
	if m.ShouldRotate() {
		t.Fatal("no session yet, nothing to rotate")
	}
}

func TestRecordRequestBeforeCurrent(t *testing.T) {
	m := NewManager(testConfig())
	m.RecordRequest()
	if got := m.Current().RequestCount; got != 1 {
		t.Fatalf("RequestCount = %d, want 1", got)
	}
}
