package middleware

import "github.com/labstack/echo/v4"

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// UserID returns the authenticated user's id, or "" for anonymous calls.
func UserID(c echo.Context) string {
	s, _ := c.Get(ctxUserID).(string)
	return s
}

// Role returns the authenticated user's role claim.
func Role(c echo.Context) string {
	s, _ := c.Get(ctxRole).(string)
	return s
}
