package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
	f := NewFake(start)

	f.Advance(2 * time.Minute)

	want := time.Date(2025, 3, 11, 0, 1, 0, 0, time.UTC)
	if got := f.Now(); !got.Equal(want) {
		t.Errorf("now = %v, want %v", got, want)
	}

	f.Set(start)
	if got := f.Now(); !got.Equal(start) {
		t.Errorf("now after set = %v, want %v", got, start)
	}
}
