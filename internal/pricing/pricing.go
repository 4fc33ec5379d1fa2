// Package pricing turns a seat class and journey length into a per-seat
// fare.  RateTable is the default rule set.
package pricing

import (
	"math"

	"github.com/iliyamo/train-seat-reservation/internal/model"
)

// Pricer quotes the fare of one seat for a journey of the given length.
type Pricer interface {
	PerSeat(class model.SeatClass, minutes int) int64
}

// RateTable charges a per-minute rate by class.  Unknown classes cost 0,
// which callers present as "not sold on this leg".
type RateTable map[model.SeatClass]float64

// DefaultRates are the per-minute rates used when no table is configured.
var DefaultRates = RateTable{
	model.SeatClassACChair: 1.8,
	model.SeatClassSChair:  1.1,
	model.SeatClassShovan:  0.9,
	model.SeatClassSnigdha: 2.5,
	model.SeatClassACBerth: 2.5,
	model.SeatClassACSeat:  2.5,
	model.SeatClassFBerth:  2.3,
	model.SeatClassFSeat:   2.0,
}

func (t RateTable) PerSeat(class model.SeatClass, minutes int) int64 {
	if minutes <= 0 {
		return 0
	}
	return int64(math.Round(t[class] * float64(minutes)))
}
