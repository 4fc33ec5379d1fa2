package repository

import (
	"errors"
	"fmt"
	"testing"
)

func TestSeatConflictError(t *testing.T) {
	err := fmt.Errorf("allocate: %w", NewSeatConflict([]int{5, 4}))
	sc, ok := IsSeatConflict(err)
	if !ok {
		t.Fatal("conflict not found through wrapping")
	}
	if len(sc.Seats) != 2 || sc.Seats[0] != 4 || sc.Seats[1] != 5 {
		t.Fatalf("seats = %v", sc.Seats)
	}
	if got := sc.Error(); got != "seats already booked: 4,5" {
		t.Fatalf("message = %q", got)
	}
	if _, ok := IsSeatConflict(errors.New("other")); ok {
		t.Fatal("plain error reported as conflict")
	}
}

func TestSeatListEncoding(t *testing.T) {
	if got := joinSeats([]int{1, 12, 3}); got != "1,12,3" {
		t.Fatalf("join = %q", got)
	}
	got := splitSeats("1, 12,3")
	if len(got) != 3 || got[1] != 12 {
		t.Fatalf("split = %v", got)
	}
	if got := splitSeats(""); len(got) != 0 {
		t.Fatalf("split empty = %v", got)
	}
}

func TestPlaceholders(t *testing.T) {
	for n, want := range map[int]string{0: "", 1: "?", 3: "?,?,?"} {
		if got := placeholders(n); got != want {
			t.Errorf("placeholders(%d) = %q", n, got)
		}
	}
}
