package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of service dates.
const DateLayout = "2006-01-02"

// ParseServiceDate accepts YYYY-MM-DD (or an RFC3339 timestamp, whose date
// part is used) and returns the canonical YYYY-MM-DD form.
func ParseServiceDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t.Format(DateLayout), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Format(DateLayout), nil
	}
	return "", fmt.Errorf("%w: invalid date %q", ErrInvalidRequest, raw)
}

// Stop is one station on a service's route.  DurationMinutes is the travel
// time of the leg ending at this stop (zero for the origin).
type Stop struct {
	Station         string `json:"station" bson:"station" yaml:"station"`
	ArrivalTime     string `json:"arrival_time,omitempty" bson:"arrivalTime,omitempty" yaml:"arrival"`
	DepartureTime   string `json:"departure_time,omitempty" bson:"departureTime,omitempty" yaml:"departure"`
	HaltMinutes     int    `json:"halt_minutes" bson:"haltMinutes" yaml:"halt_minutes"`
	DurationMinutes int    `json:"duration_minutes" bson:"durationMinutes" yaml:"-"`
}

// ScheduledService is one train running on one calendar date.
type ScheduledService struct {
	ServiceCode string `json:"service_code" bson:"serviceCode"`
	ServiceName string `json:"service_name" bson:"serviceName"`
	ServiceDate string `json:"service_date" bson:"serviceDate"`
	Stops       []Stop `json:"stops" bson:"stops"`
	Cars        []Car  `json:"cars" bson:"cars"`
}

// Car returns a pointer into s.Cars for carID, or nil.
func (s *ScheduledService) Car(carID string) *Car {
	for i := range s.Cars {
		if s.Cars[i].CarID == carID {
			return &s.Cars[i]
		}
	}
	return nil
}

// Leg reports the journey minutes between from and to.  ok is false when
// either station is missing or from does not precede to.
func (s *ScheduledService) Leg(from, to string) (minutes int, ok bool) {
	fi, ti := -1, -1
	for i, st := range s.Stops {
		if fi < 0 && st.Station == from {
			fi = i
		}
		if st.Station == to {
			ti = i
		}
	}
	if fi < 0 || ti < 0 || fi >= ti {
		return 0, false
	}
	for _, st := range s.Stops[fi+1 : ti+1] {
		minutes += st.DurationMinutes
	}
	return minutes, true
}

// ParseLegDuration parses the schedule notation "H:MM" (optionally with a
// trailing "h", as in "2:30h") into minutes.  Unparseable parts count as 0.
func ParseLegDuration(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	parts := strings.SplitN(raw, ":", 2)
	h, _ := strconv.Atoi(strings.TrimSpace(parts[0]))
	m := 0
	if len(parts) == 2 {
		m, _ = strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(parts[1]), "h"))
	}
	return h*60 + m
}
