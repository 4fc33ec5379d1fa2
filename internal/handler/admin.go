package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/train-seat-reservation/internal/booking"
	"github.com/iliyamo/train-seat-reservation/internal/ledger"
	"github.com/iliyamo/train-seat-reservation/internal/model"
)

// AdminHandler exposes operational repairs to ADMIN users.
type AdminHandler struct {
	Ledger *ledger.Ledger
	Coord  *booking.Coordinator
}

func NewAdminHandler(l *ledger.Ledger, coord *booking.Coordinator) *AdminHandler {
	return &AdminHandler{Ledger: l, Coord: coord}
}

// PendingTickets lists receipts whose ticket write has not landed yet.
func (h *AdminHandler) PendingTickets(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"data": h.Ledger.Pending()})
}

// Reconcile retries every pending ticket once.
func (h *AdminHandler) Reconcile(c echo.Context) error {
	written, remaining := h.Ledger.Reconcile(c.Request().Context())
	return c.JSON(http.StatusOK, echo.Map{"written": written, "remaining": remaining})
}

// Recount re-derives a car's free counter from its seats.
func (h *AdminHandler) Recount(c echo.Context) error {
	code, date, err := serviceParams(c)
	if err != nil {
		return writeError(c, err)
	}
	stored, actual, err := h.Coord.Recount(c.Request().Context(), model.CarKey{ServiceCode: code, ServiceDate: date, CarID: c.Param("car")})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"stored": stored, "actual": actual, "repaired": stored != actual})
}
