package controller

import (
	"context"
	"net/http"

	"github.com/edermartinez/bienesraices/app/entity"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type propertyLister interface {
	ListByOwner(ctx context.Context, usuarioID uint64) ([]entity.Property, error)
}

type PropertyController struct {
	propertyRepo propertyLister
}

func NewPropertyController(propertyRepo propertyLister) *PropertyController {
	return &PropertyController{propertyRepo: propertyRepo}
}

// MisPropiedades renders the listings management page the login flow
// redirects to. The session middleware has already stashed the user.
func (c *PropertyController) MisPropiedades(ctx echo.Context) error {
	userID, ok := ctx.Get("user_id").(uint64)
	if !ok {
		return ctx.Redirect(http.StatusSeeOther, "/auth/login")
	}
	nombre, _ := ctx.Get("user_nombre").(string)

	properties, err := c.propertyRepo.ListByOwner(ctx.Request().Context(), userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to list properties")
		return err
	}

	return ctx.Render(http.StatusOK, "mis-propiedades", echo.Map{
		"Pagina":      "Mis Propiedades",
		"Nombre":      nombre,
		"Propiedades": properties,
		"CSRFToken":   csrfToken(ctx),
	})
}
