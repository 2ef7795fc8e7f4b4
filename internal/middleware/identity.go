package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	TenantKey   = "tenant_id"
	CustomerKey = "customer_id"
	SessionKey  = "session_token"
)

// Identity extracts tenant and buyer identity from headers validated by the
// upstream gateway. This core trusts them as-is; authentication is an
// external collaborator.
func Identity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID := c.Request().Header.Get("X-Tenant-Id")
			if tenantID == "" {
				return echo.NewHTTPError(http.StatusBadRequest, "missing X-Tenant-Id header")
			}
			c.Set(TenantKey, tenantID)
			c.Set(CustomerKey, c.Request().Header.Get("X-Customer-Id"))
			c.Set(SessionKey, c.Request().Header.Get("X-Session-Token"))
			return next(c)
		}
	}
}

func Tenant(c echo.Context) string {
	tenantID, _ := c.Get(TenantKey).(string)
	return tenantID
}

func Customer(c echo.Context) string {
	customerID, _ := c.Get(CustomerKey).(string)
	return customerID
}

func Session(c echo.Context) string {
	token, _ := c.Get(SessionKey).(string)
	return token
}
