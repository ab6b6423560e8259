package testfixtures

import (
	"testing"
	"time"
)

func TestClockStartsAtReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
}

func TestClockMovesWithinConferenceDays(t *testing.T) {
	clock := NewClock(time.Time{})
	nowFn := clock.NowFunc()

	if got := clock.SetAt(1, 9, 30); !got.Equal(ReferenceTime().Add(33*time.Hour + 30*time.Minute)) {
		t.Fatalf("SetAt returned %v", got)
	}
	if got := clock.Advance(90 * time.Minute); !got.Equal(Slot(1, 11, 12).Start) {
		t.Fatalf("Advance returned %v", got)
	}
	if got := clock.During(Slot(0, 10, 12)); !got.Equal(Slot(0, 11, 12).Start) {
		t.Fatalf("During returned %v", got)
	}
	if got := nowFn(); !got.Equal(clock.Now()) {
		t.Fatalf("NowFunc must follow the clock, got %v", got)
	}
}
