package scheduler

import (
	"testing"
	"time"
)

func TestNewRejectsZeroEvery(t *testing.T) {
	_, err := New(time.Now(), 0, time.Second)
	if err != ErrInvalidEvery {
		t.Fatalf("got err %v, want %v", err, ErrInvalidEvery)
	}
}

func TestZeroForYieldsNoTicks(t *testing.T) {
	start := time.Unix(0, 0)
	s, err := New(start, time.Second, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := s.NextTick(); ok {
		t.Fatal("expected no ticks when for=0")
	}
}

func TestTicksFireAtFixedCadence(t *testing.T) {
	start := time.Unix(0, 0)
	s, err := New(start, 50*time.Millisecond, 250*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var fires []time.Time
	for {
		fireAt, ok := s.NextTick()
		if !ok {
			break
		}
		fires = append(fires, fireAt)
		s.Advance()
	}

	if len(fires) != 5 {
		t.Fatalf("got %d fires, want 5", len(fires))
	}
	for i, f := range fires {
		want := start.Add(time.Duration(i+1) * 50 * time.Millisecond)
		if !f.Equal(want) {
			t.Fatalf("fire %d = %v, want %v", i, f, want)
		}
	}
}

func TestAlignPreventsBurstCatchUp(t *testing.T) {
	start := time.Unix(0, 0)
	s, err := New(start, 50*time.Millisecond, time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Simulate a long pause: resume at start+1s.
	resumeAt := start.Add(time.Second)
	s.Align(resumeAt)

	fireAt, ok := s.NextTick()
	if !ok {
		t.Fatal("expected a next tick after align")
	}
	want := resumeAt.Add(50 * time.Millisecond)
	if !fireAt.Equal(want) {
		t.Fatalf("fireAt = %v, want %v (no burst catch-up)", fireAt, want)
	}
}

func TestDeadlineInclusiveOfFinalTick(t *testing.T) {
	start := time.Unix(0, 0)
	s, err := New(start, 100*time.Millisecond, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := s.NextTick(); !ok {
		t.Fatal("expected exactly one tick when for == every")
	}
	s.Advance()
	if _, ok := s.NextTick(); ok {
		t.Fatal("expected no second tick")
	}
}
