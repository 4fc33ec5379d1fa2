package schedule

import (
	"context"
	"strings"
	"testing"

	"github.com/iliyamo/train-seat-reservation/internal/model"
	"github.com/iliyamo/train-seat-reservation/internal/repository/memstore"
	"github.com/iliyamo/train-seat-reservation/internal/utils"
)

func TestExpand(t *testing.T) {
	f, err := Load("testdata/timetable.yaml")
	if err != nil {
		t.Fatal(err)
	}
	services, err := f.Expand()
	if err != nil {
		t.Fatal(err)
	}
	if len(services) != 3 {
		t.Fatalf("got %d services, want 3", len(services))
	}
	s := services[0]
	if s.ServiceCode != "701" || s.ServiceDate != "2026-11-02" || len(s.Cars) != 2 {
		t.Fatalf("first service %+v", s)
	}
	if m, ok := s.Leg("Dhaka", "Chattogram"); !ok || m != 328 {
		t.Fatalf("leg = %d %v, want 328", m, ok)
	}
	if s.Cars[1].SeatClass != model.SeatClassShovan || s.Cars[1].FreeCount != 60 {
		t.Fatalf("car GA %+v", s.Cars[1])
	}
	// Dates must not share seat slices.
	services[0].Cars[0].Seats[0].BookedBy = "x"
	if services[1].Cars[0].Seats[0].BookedBy != "" {
		t.Fatal("expanded dates share seats")
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key": "services:\n  - code: \"1\"\n    colour: red\n",
		"bad class": `services:
  - code: "1"
    dates: [2026-11-02]
    stops: [{station: A}, {station: B, duration: "1:00"}]
    cars: [{id: X, class: FIRST, seats: 10}]
`,
		"bad date": `services:
  - code: "1"
    dates: [02/11/2026]
    stops: [{station: A}, {station: B, duration: "1:00"}]
    cars: [{id: X, class: SHOVAN, seats: 10}]
`,
		"one stop": `services:
  - code: "1"
    dates: [2026-11-02]
    stops: [{station: A}]
    cars: [{id: X, class: SHOVAN, seats: 10}]
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			f, err := Parse(strings.NewReader(doc))
			if err == nil {
				_, err = f.Expand()
			}
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestApplyIsRepeatable(t *testing.T) {
	ctx := context.Background()
	f, err := Load("testdata/timetable.yaml")
	if err != nil {
		t.Fatal(err)
	}
	inv, users := memstore.NewInventory(), memstore.NewUsers()

	res, err := Apply(ctx, inv, users, f, 4)
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 3 || res.Skipped != 0 || !res.AdminCreated {
		t.Fatalf("first apply %+v", res)
	}
	res, err = Apply(ctx, inv, users, f, 4)
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 0 || res.Skipped != 3 || res.AdminCreated {
		t.Fatalf("second apply %+v", res)
	}

	u, err := users.GetByEmail(ctx, "ops@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if u.Role != model.RoleAdmin || !utils.VerifyPassword(u.PasswordHash, "change-me") {
		t.Fatalf("admin %+v", u)
	}
	list, _ := inv.ListByDate(ctx, "2026-11-02")
	if len(list) != 2 || list[0].ServiceCode != "701" {
		t.Fatalf("services on date: %d", len(list))
	}
}
