package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/train-seat-reservation/internal/ledger"
	"github.com/iliyamo/train-seat-reservation/internal/middleware"
	"github.com/iliyamo/train-seat-reservation/internal/model"
	"github.com/iliyamo/train-seat-reservation/internal/repository"
	"github.com/iliyamo/train-seat-reservation/internal/ticketpdf"
)

type TicketHandler struct {
	Ledger        *ledger.Ledger
	Users         repository.UserStore
	PublicBaseURL string
}

func NewTicketHandler(l *ledger.Ledger, users repository.UserStore, publicBaseURL string) *TicketHandler {
	return &TicketHandler{Ledger: l, Users: users, PublicBaseURL: publicBaseURL}
}

// MyTickets handles GET /v1/my-tickets, newest purchase first.
func (h *TicketHandler) MyTickets(c echo.Context) error {
	list, err := h.Ledger.ListByPurchaser(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": list})
}

// Ticket handles GET /v1/tickets/:id.  Other users' tickets read as 404.
func (h *TicketHandler) Ticket(c echo.Context) error {
	t, err := h.visible(c)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// TicketPDF handles GET /v1/tickets/:id/pdf.
func (h *TicketHandler) TicketPDF(c echo.Context) error {
	ctx := c.Request().Context()
	t, err := h.visible(c)
	if err != nil {
		return writeError(c, err)
	}
	var holder ticketpdf.Holder
	if u, err := h.Users.GetByID(ctx, t.PurchaserID); err == nil {
		holder = ticketpdf.Holder{Name: u.Name, Email: u.Email}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return writeError(c, err)
	}
	verify := ""
	if h.PublicBaseURL != "" {
		verify = h.PublicBaseURL + "/v1/tickets/" + t.ID
	}
	b, err := ticketpdf.Render(*t, holder, verify)
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=ticket_%s.pdf", t.ID))
	return c.Blob(http.StatusOK, "application/pdf", b)
}

func (h *TicketHandler) visible(c echo.Context) (*model.TicketRecord, error) {
	t, err := h.Ledger.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if t.PurchaserID != middleware.UserID(c) && middleware.Role(c) != model.RoleAdmin {
		return nil, repository.ErrNotFound
	}
	return t, nil
}
