package middleware

import (
	"net/http"

	"github.com/edermartinez/bienesraices/app/controller"
	"github.com/edermartinez/bienesraices/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type sessionValidator interface {
	ValidateSessionToken(tokenString string) (*service.Claims, error)
}

type AuthMiddleware struct {
	authService sessionValidator
}

func NewAuthMiddleware(authService sessionValidator) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// RequireAuth validates the _token session cookie and stashes the user in
// the request context. Browser flows get a redirect to the login form, not
// a JSON 401.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(controller.SessionCookieName)
		if err != nil || cookie.Value == "" {
			logrus.Debug("Missing session cookie")
			return c.Redirect(http.StatusSeeOther, "/auth/login")
		}

		claims, err := m.authService.ValidateSessionToken(cookie.Value)
		if err != nil {
			logrus.Debug("Invalid or expired session token")
			return c.Redirect(http.StatusSeeOther, "/auth/login")
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_nombre", claims.Nombre)

		return next(c)
	}
}
