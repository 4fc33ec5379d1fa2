package model

import (
	"testing"
	"time"
)

func TestScheduledServiceLeg(t *testing.T) {
	s := ScheduledService{Stops: []Stop{
		{Station: "Dhaka"},
		{Station: "Bhairab", DurationMinutes: 95},
		{Station: "Akhaura", DurationMinutes: 60},
		{Station: "Chattogram", DurationMinutes: 170},
	}}
	if m, ok := s.Leg("Dhaka", "Chattogram"); !ok || m != 325 {
		t.Fatalf("full route: got %d %v", m, ok)
	}
	if m, ok := s.Leg("Bhairab", "Akhaura"); !ok || m != 60 {
		t.Fatalf("inner leg: got %d %v", m, ok)
	}
	if _, ok := s.Leg("Chattogram", "Dhaka"); ok {
		t.Fatal("reverse direction must not match")
	}
	if _, ok := s.Leg("Dhaka", "Sylhet"); ok {
		t.Fatal("unknown station must not match")
	}
}

func TestParseLegDuration(t *testing.T) {
	for raw, want := range map[string]int{"2:30h": 150, "0:45": 45, "3": 180, "": 0, "x:y": 0} {
		if got := ParseLegDuration(raw); got != want {
			t.Errorf("%q: got %d want %d", raw, got, want)
		}
	}
}

func TestCarCountFreeAndClone(t *testing.T) {
	c := NewCar("B1", SeatClassShovan, 5)
	now := time.Now()
	c.Seats[1].BookedBy = "u1"
	c.Seats[1].BookedAt = &now
	if got := c.CountFree(); got != 4 {
		t.Fatalf("CountFree = %d", got)
	}

	cp := c.Clone()
	cp.Seats[0].BookedBy = "u2"
	*cp.Seats[1].BookedAt = now.Add(time.Hour)
	if !c.Seats[0].IsFree() || !c.Seats[1].BookedAt.Equal(now) {
		t.Fatal("clone shares state with original")
	}
	if c.Seat(5) != 4 || c.Seat(6) != -1 {
		t.Fatal("seat lookup")
	}
}
