package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/train-seat-reservation/internal/model"
	"github.com/iliyamo/train-seat-reservation/internal/pricing"
	"github.com/iliyamo/train-seat-reservation/internal/repository"
)

// InventoryHandler serves the public read side: search, routes and seat
// maps.  Everything it returns is a snapshot; only the seat map endpoints
// must never be cached.
type InventoryHandler struct {
	Inv    repository.Inventory
	Pricer pricing.Pricer
}

func NewInventoryHandler(inv repository.Inventory, p pricing.Pricer) *InventoryHandler {
	return &InventoryHandler{Inv: inv, Pricer: p}
}

type classOffer struct {
	SeatClass      model.SeatClass `json:"seat_class"`
	AvailableSeats int             `json:"available_seats"`
	TicketPrice    int64           `json:"ticket_price"`
}

type searchResult struct {
	ServiceCode     string       `json:"service_code"`
	ServiceName     string       `json:"service_name"`
	ServiceDate     string       `json:"service_date"`
	From            string       `json:"from"`
	To              string       `json:"to"`
	DepartureTime   string       `json:"departure_time,omitempty"`
	ArrivalTime     string       `json:"arrival_time,omitempty"`
	DurationMinutes int          `json:"duration_minutes"`
	Classes         []classOffer `json:"classes"`
}

// Search handles GET /v1/search?from&to&date[&class].  A service matches
// when it stops at from before to on date.
func (h *InventoryHandler) Search(c echo.Context) error {
	from := strings.TrimSpace(c.QueryParam("from"))
	to := strings.TrimSpace(c.QueryParam("to"))
	if from == "" || to == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "from and to are required"})
	}
	date, err := model.ParseServiceDate(c.QueryParam("date"))
	if err != nil {
		return writeError(c, err)
	}
	var only model.SeatClass
	if raw := c.QueryParam("class"); raw != "" {
		cls, ok := model.ParseSeatClass(raw)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown seat class"})
		}
		only = cls
	}

	ctx := c.Request().Context()
	services, err := h.Inv.ListByDate(ctx, date)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]searchResult, 0)
	for i := range services {
		svc := &services[i]
		minutes, ok := svc.Leg(from, to)
		if !ok {
			continue
		}
		res := searchResult{
			ServiceCode:     svc.ServiceCode,
			ServiceName:     svc.ServiceName,
			ServiceDate:     svc.ServiceDate,
			From:            from,
			To:              to,
			DurationMinutes: minutes,
		}
		for _, st := range svc.Stops {
			if st.Station == from && res.DepartureTime == "" {
				res.DepartureTime = st.DepartureTime
			}
			if st.Station == to {
				res.ArrivalTime = st.ArrivalTime
			}
		}
		for _, cls := range classesOf(svc) {
			if only != "" && cls != only {
				continue
			}
			n, err := h.Inv.Availability(ctx, svc.ServiceCode, svc.ServiceDate, cls)
			if err != nil {
				return writeError(c, err)
			}
			res.Classes = append(res.Classes, classOffer{
				SeatClass:      cls,
				AvailableSeats: n,
				TicketPrice:    h.Pricer.PerSeat(cls, minutes),
			})
		}
		if len(res.Classes) > 0 {
			out = append(out, res)
		}
	}
	if len(out) == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no trains found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": out})
}

// classesOf lists the seat classes of svc in car order, once each.
func classesOf(svc *model.ScheduledService) []model.SeatClass {
	seen := map[model.SeatClass]bool{}
	var out []model.SeatClass
	for _, car := range svc.Cars {
		if !seen[car.SeatClass] {
			seen[car.SeatClass] = true
			out = append(out, car.SeatClass)
		}
	}
	return out
}

func serviceParams(c echo.Context) (code, date string, err error) {
	date, err = model.ParseServiceDate(c.Param("date"))
	return c.Param("code"), date, err
}

// Route handles GET /v1/services/:code/:date/route.
func (h *InventoryHandler) Route(c echo.Context) error {
	code, date, err := serviceParams(c)
	if err != nil {
		return writeError(c, err)
	}
	svc, err := h.Inv.GetService(c.Request().Context(), code, date)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"service_code": svc.ServiceCode,
		"service_name": svc.ServiceName,
		"service_date": svc.ServiceDate,
		"stops":        svc.Stops,
	})
}

type seatView struct {
	SeatNumber int  `json:"seat_number"`
	Booked     bool `json:"booked"`
}

type carView struct {
	CarID     string          `json:"car_id"`
	SeatClass model.SeatClass `json:"seat_class"`
	FreeCount int             `json:"free_count"`
	Seats     []seatView      `json:"seats"`
}

// toCarView hides who booked a seat; the map only says whether it is taken.
func toCarView(car *model.Car) carView {
	v := carView{CarID: car.CarID, SeatClass: car.SeatClass, FreeCount: car.FreeCount, Seats: make([]seatView, len(car.Seats))}
	for i, s := range car.Seats {
		v.Seats[i] = seatView{SeatNumber: s.SeatNumber, Booked: !s.IsFree()}
	}
	return v
}

// Cars handles GET /v1/services/:code/:date/cars[?class=].
func (h *InventoryHandler) Cars(c echo.Context) error {
	code, date, err := serviceParams(c)
	if err != nil {
		return writeError(c, err)
	}
	svc, err := h.Inv.GetService(c.Request().Context(), code, date)
	if err != nil {
		return writeError(c, err)
	}
	cls, filter := model.ParseSeatClass(c.QueryParam("class"))
	out := make([]carView, 0, len(svc.Cars))
	for i := range svc.Cars {
		if filter && svc.Cars[i].SeatClass != cls {
			continue
		}
		out = append(out, toCarView(&svc.Cars[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"data": out})
}

// Car handles GET /v1/services/:code/:date/cars/:car.
func (h *InventoryHandler) Car(c echo.Context) error {
	code, date, err := serviceParams(c)
	if err != nil {
		return writeError(c, err)
	}
	car, err := h.Inv.GetCar(c.Request().Context(), model.CarKey{ServiceCode: code, ServiceDate: date, CarID: c.Param("car")})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toCarView(car))
}

// Availability handles GET /v1/services/:code/:date/availability?class=.
func (h *InventoryHandler) Availability(c echo.Context) error {
	code, date, err := serviceParams(c)
	if err != nil {
		return writeError(c, err)
	}
	cls, ok := model.ParseSeatClass(c.QueryParam("class"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown seat class"})
	}
	n, err := h.Inv.Availability(c.Request().Context(), code, date, cls)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"service_code": code,
		"service_date": date,
		"seat_class":   cls,
		"available":    n,
	})
}
