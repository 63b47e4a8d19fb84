package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-service/internal/api/middleware"
	"github.com/99minutos/identity-service/internal/core/domain"
)

// identity returns the user attached by the Authenticate middleware. Its
// absence means the route was registered without the middleware.
func identity(c echo.Context) (*domain.User, error) {
	user, ok := middleware.Identity(c)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	return user, nil
}
