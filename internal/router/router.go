// Package router wires handlers and middleware onto echo route groups.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/train-seat-reservation/internal/handler"
	"github.com/iliyamo/train-seat-reservation/internal/middleware"
	"github.com/iliyamo/train-seat-reservation/internal/model"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, metrics http.Handler) {
	e.GET("/healthz", handler.Health)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterAuth mounts account endpoints: register and login are open, /me
// needs a token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterPublic mounts the read side.  cache wraps only the advisory
// endpoints; seat maps are always read fresh.
func RegisterPublic(e *echo.Echo, h *handler.InventoryHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/search", h.Search, cache)

	g := e.Group("/v1/services/:code/:date")
	g.GET("/route", h.Route, cache)
	g.GET("/cars", h.Cars)
	g.GET("/cars/:car", h.Car)
	g.GET("/availability", h.Availability)
}

// RegisterCustomer mounts the purchase and history endpoints.
func RegisterCustomer(e *echo.Echo, p *handler.PaymentHandler, t *handler.TicketHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleAdmin),
	)
	g.POST("/payments/init", p.Init)
	g.GET("/my-tickets", t.MyTickets)
	g.GET("/tickets/:id", t.Ticket)
	g.GET("/tickets/:id/pdf", t.TicketPDF)
}

// RegisterGateway mounts the payment provider's browser callbacks.  They
// carry no token; Success trusts nothing but the stored intent and the
// provider's validation API.
func RegisterGateway(e *echo.Echo, p *handler.PaymentHandler) {
	g := e.Group("/v1/payments")
	g.POST("/success", p.Success)
	g.POST("/fail", p.Fail)
	g.POST("/cancel", p.Cancel)
}

// RegisterAdmin mounts the ADMIN-only repair endpoints.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.GET("/ledger/pending", a.PendingTickets)
	g.POST("/ledger/reconcile", a.Reconcile)
	g.POST("/services/:code/:date/cars/:car/recount", a.Recount)
}
