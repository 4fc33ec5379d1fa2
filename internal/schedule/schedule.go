// Package schedule reads timetable files and loads the services they
// describe into an inventory store.
//
// A file lists trains once with every date they run on:
//
//	services:
//	  - code: "701"
//	    name: Subarna Express
//	    dates: [2026-11-02, 2026-11-03]
//	    stops:
//	      - {station: Dhaka, departure: "07:00"}
//	      - {station: Chattogram, arrival: "12:30", duration: "5:30h"}
//	    cars:
//	      - {id: KA, class: SNIGDHA, seats: 40}
//	admin:
//	  name: Ops
//	  email: ops@example.com
//	  password: change-me
package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/iliyamo/train-seat-reservation/internal/model"
	"github.com/iliyamo/train-seat-reservation/internal/repository"
	"github.com/iliyamo/train-seat-reservation/internal/utils"
)

type File struct {
	Services []Train `yaml:"services"`
	Admin    *Admin  `yaml:"admin"`
}

// Train is one service code and the dates it runs on.
type Train struct {
	Code  string   `yaml:"code"`
	Name  string   `yaml:"name"`
	Dates []string `yaml:"dates"`
	Stops []Stop   `yaml:"stops"`
	Cars  []Car    `yaml:"cars"`
}

// Stop adds the leg duration, in "H:MM" notation, to a route stop.
type Stop struct {
	model.Stop `yaml:",inline"`
	Duration   string `yaml:"duration"`
}

type Car struct {
	ID    string `yaml:"id"`
	Class string `yaml:"class"`
	Seats int    `yaml:"seats"`
}

type Admin struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Parse decodes a timetable.  Unknown keys are errors.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	return &f, nil
}

// Load parses the timetable at path.
func Load(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Parse(fh)
}

// Expand turns every (train, date) pair into a ScheduledService with all
// seats free.
func (f *File) Expand() ([]model.ScheduledService, error) {
	var out []model.ScheduledService
	for _, t := range f.Services {
		if strings.TrimSpace(t.Code) == "" {
			return nil, errors.New("service without code")
		}
		if len(t.Stops) < 2 {
			return nil, fmt.Errorf("service %s: at least two stops required", t.Code)
		}
		if len(t.Cars) == 0 {
			return nil, fmt.Errorf("service %s: no cars", t.Code)
		}
		stops := make([]model.Stop, len(t.Stops))
		for i, s := range t.Stops {
			stops[i] = s.Stop
			if i > 0 {
				stops[i].DurationMinutes = model.ParseLegDuration(s.Duration)
			}
		}
		cars := make([]model.Car, len(t.Cars))
		for i, c := range t.Cars {
			cls, ok := model.ParseSeatClass(c.Class)
			if !ok {
				return nil, fmt.Errorf("service %s car %s: unknown class %q", t.Code, c.ID, c.Class)
			}
			if c.ID == "" || c.Seats <= 0 {
				return nil, fmt.Errorf("service %s: car needs an id and a positive seat count", t.Code)
			}
			cars[i] = model.NewCar(c.ID, cls, c.Seats)
		}
		for _, raw := range t.Dates {
			date, err := model.ParseServiceDate(raw)
			if err != nil {
				return nil, fmt.Errorf("service %s: %w", t.Code, err)
			}
			svc := model.ScheduledService{
				ServiceCode: t.Code,
				ServiceName: t.Name,
				ServiceDate: date,
				Stops:       append([]model.Stop(nil), stops...),
				Cars:        make([]model.Car, len(cars)),
			}
			for i := range cars {
				svc.Cars[i] = *cars[i].Clone()
			}
			out = append(out, svc)
		}
	}
	return out, nil
}

// Result counts what Apply did.
type Result struct {
	Created      int
	Skipped      int
	AdminCreated bool
}

// Apply creates every service of f that does not exist yet, and the admin
// account when one is given and its email is free.  Existing services are
// skipped, so a file can be applied repeatedly.
func Apply(ctx context.Context, inv repository.Inventory, users repository.UserStore, f *File, bcryptCost int) (Result, error) {
	var res Result
	services, err := f.Expand()
	if err != nil {
		return res, err
	}
	for i := range services {
		err := inv.CreateService(ctx, &services[i])
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("create %s %s: %w", services[i].ServiceCode, services[i].ServiceDate, err)
		default:
			res.Created++
		}
	}

	if f.Admin == nil || users == nil {
		return res, nil
	}
	if f.Admin.Email == "" {
		return res, errors.New("admin needs an email")
	}
	hash, err := utils.HashPassword(f.Admin.Password, bcryptCost)
	if err != nil {
		return res, fmt.Errorf("admin: %w", err)
	}
	err = users.Create(ctx, &model.User{
		ID:           uuid.NewString(),
		Name:         f.Admin.Name,
		Email:        f.Admin.Email,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	})
	switch {
	case errors.Is(err, repository.ErrDuplicate):
	case err != nil:
		return res, fmt.Errorf("create admin: %w", err)
	default:
		res.AdminCreated = true
	}
	return res, nil
}
