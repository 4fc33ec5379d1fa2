// Package mongostore implements the repository contracts on MongoDB.  A
// service is one document embedding its cars and their seats, so every
// allocation is a single-document update and therefore atomic.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iliyamo/train-seat-reservation/internal/database"
	"github.com/iliyamo/train-seat-reservation/internal/model"
	"github.com/iliyamo/train-seat-reservation/internal/repository"
)

// recountAttempts bounds the compare-and-set loop in Recount.
const recountAttempts = 5

type Inventory struct {
	coll *mongo.Collection
}

func NewInventory(db *mongo.Database) *Inventory {
	return &Inventory{coll: db.Collection(database.ServicesCollection)}
}

func serviceFilter(code, date string) bson.M {
	return bson.M{"serviceCode": code, "serviceDate": date}
}

// CreateService inserts a copy of s whose free counters are derived from
// the seats.
func (r *Inventory) CreateService(ctx context.Context, s *model.ScheduledService) error {
	doc := *s
	doc.Cars = make([]model.Car, len(s.Cars))
	for i := range s.Cars {
		c := s.Cars[i].Clone()
		c.FreeCount = c.CountFree()
		doc.Cars[i] = *c
	}
	_, err := r.coll.InsertOne(ctx, &doc)
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrDuplicate
	}
	return err
}

func (r *Inventory) GetService(ctx context.Context, code, date string) (*model.ScheduledService, error) {
	var s model.ScheduledService
	err := r.coll.FindOne(ctx, serviceFilter(code, date)).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Inventory) ListByDate(ctx context.Context, date string) ([]model.ScheduledService, error) {
	cur, err := r.coll.Find(ctx, bson.M{"serviceDate": date},
		options.Find().SetSort(bson.D{{Key: "serviceCode", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := make([]model.ScheduledService, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Inventory) GetCar(ctx context.Context, key model.CarKey) (*model.Car, error) {
	s, err := r.GetService(ctx, key.ServiceCode, key.ServiceDate)
	if err != nil {
		return nil, err
	}
	c := s.Car(key.CarID)
	if c == nil {
		return nil, repository.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *Inventory) Availability(ctx context.Context, code, date string, class model.SeatClass) (int, error) {
	var s model.ScheduledService
	err := r.coll.FindOne(ctx, serviceFilter(code, date),
		options.FindOne().SetProjection(bson.M{"cars.seatClass": 1, "cars.freeCount": 1})).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, repository.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	total := 0
	for _, c := range s.Cars {
		if c.SeatClass == class {
			total += c.FreeCount
		}
	}
	return total, nil
}

// Allocate issues one conditional update: the filter only matches while
// every requested seat of the car is unbooked, and the update marks them
// and decrements freeCount together.  When nothing matched the car is read
// back to tell a missing seat from a taken one.
func (r *Inventory) Allocate(ctx context.Context, p model.AllocateParams) (model.Allocation, error) {
	free := make(bson.A, len(p.Seats))
	for i, n := range p.Seats {
		free[i] = bson.M{"$elemMatch": bson.M{"seatNumber": n, "bookedBy": nil}}
	}
	filter := serviceFilter(p.Key.ServiceCode, p.Key.ServiceDate)
	filter["cars"] = bson.M{"$elemMatch": bson.M{
		"carId": p.Key.CarID,
		"seats": bson.M{"$all": free},
	}}

	at := p.At.UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"cars.$[c].seats.$[s].bookedBy": p.PurchaserID,
			"cars.$[c].seats.$[s].bookedAt": at,
		},
		"$inc": bson.M{"cars.$[c].freeCount": -len(p.Seats)},
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{Filters: []interface{}{
		bson.M{"c.carId": p.Key.CarID},
		bson.M{"s.seatNumber": bson.M{"$in": p.Seats}},
	}})

	res, err := r.coll.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return model.Allocation{}, err
	}
	if res.MatchedCount == 1 {
		car, err := r.GetCar(ctx, p.Key)
		class := model.SeatClass("")
		if err == nil {
			class = car.SeatClass
		}
		p.At = at
		return model.NewAllocation(p, class), nil
	}
	return model.Allocation{}, r.classify(ctx, p)
}

func (r *Inventory) classify(ctx context.Context, p model.AllocateParams) error {
	car, err := r.GetCar(ctx, p.Key)
	if err != nil {
		return err
	}
	var taken []int
	for _, n := range p.Seats {
		i := car.Seat(n)
		if i < 0 {
			return fmt.Errorf("seat %d in car %s: %w", n, p.Key.CarID, repository.ErrNotFound)
		}
		if !car.Seats[i].IsFree() {
			taken = append(taken, n)
		}
	}
	if len(taken) == 0 {
		// Seats were released between the update and the read; report the
		// whole request as contended.
		return repository.NewSeatConflict(p.Seats)
	}
	return repository.NewSeatConflict(taken)
}

// Recount sets freeCount from the seat states, retrying if an allocation
// moved the counter in between.
func (r *Inventory) Recount(ctx context.Context, key model.CarKey) (int, int, error) {
	for i := 0; i < recountAttempts; i++ {
		car, err := r.GetCar(ctx, key)
		if err != nil {
			return 0, 0, err
		}
		stored, actual := car.FreeCount, car.CountFree()
		if stored == actual {
			return stored, actual, nil
		}
		filter := serviceFilter(key.ServiceCode, key.ServiceDate)
		filter["cars"] = bson.M{"$elemMatch": bson.M{"carId": key.CarID, "freeCount": stored}}
		res, err := r.coll.UpdateOne(ctx, filter,
			bson.M{"$set": bson.M{"cars.$[c].freeCount": actual}},
			options.Update().SetArrayFilters(options.ArrayFilters{Filters: []interface{}{bson.M{"c.carId": key.CarID}}}))
		if err != nil {
			return 0, 0, err
		}
		if res.MatchedCount == 1 {
			return stored, actual, nil
		}
	}
	return 0, 0, fmt.Errorf("recount %s: counter kept changing", key)
}
