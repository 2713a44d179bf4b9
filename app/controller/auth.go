package controller

import (
	"errors"
	"net/http"

	"github.com/edermartinez/bienesraices/app/form"
	"github.com/edermartinez/bienesraices/app/service"
	"github.com/edermartinez/bienesraices/config"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

const SessionCookieName = "_token"

type AuthController struct {
	authService *service.AuthService
	cfg         *config.Config
}

func NewAuthController(authService *service.AuthService, cfg *config.Config) *AuthController {
	return &AuthController{authService: authService, cfg: cfg}
}

func (c *AuthController) LoginForm(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, "login", echo.Map{
		"Pagina":    "Iniciar Sesion",
		"CSRFToken": csrfToken(ctx),
		"Email":     "",
	})
}

func (c *AuthController) Login(ctx echo.Context) error {
	email := ctx.FormValue("email")
	password := ctx.FormValue("password")

	errs := form.Validate(
		form.Rule{Field: "email", Valid: form.ValidEmail(email), Message: "El email es obligatorio"},
		form.Rule{Field: "password", Valid: form.NotEmpty(password), Message: "El password es obligatorio"},
	)
	if len(errs) > 0 {
		return ctx.Render(http.StatusOK, "login", echo.Map{
			"Pagina":    "Iniciar Sesion",
			"CSRFToken": csrfToken(ctx),
			"Errores":   errs,
			"Email":     email,
		})
	}

	token, err := c.authService.Login(ctx.Request().Context(), email, password)
	if err != nil {
		var mensaje string
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			mensaje = "El usuario no existe"
		case errors.Is(err, service.ErrAccountNotConfirmed):
			mensaje = "Tu cuenta no ha sido confirmada"
		case errors.Is(err, service.ErrIncorrectPassword):
			mensaje = "El password es incorrecto"
		default:
			logrus.WithError(err).WithField("email", email).Error("Login failed")
			return err
		}

		logrus.WithField("email", email).Warn("Login rejected: " + mensaje)
		return ctx.Render(http.StatusOK, "login", echo.Map{
			"Pagina":    "Iniciar Sesion",
			"CSRFToken": csrfToken(ctx),
			"Errores":   form.Errors{{Message: mensaje}},
			"Email":     email,
		})
	}

	ctx.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.cfg.SessionTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})

	logrus.WithField("email", email).Info("Login successful")
	return ctx.Redirect(http.StatusSeeOther, "/mis-propiedades")
}

func (c *AuthController) RegisterForm(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, "registro", echo.Map{
		"Pagina":    "Crear Cuenta",
		"CSRFToken": csrfToken(ctx),
		"Nombre":    "",
		"Email":     "",
	})
}

func (c *AuthController) Register(ctx echo.Context) error {
	nombre := ctx.FormValue("nombre")
	email := ctx.FormValue("email")
	password := ctx.FormValue("password")
	repetirPassword := ctx.FormValue("repetir_password")

	errs := form.Validate(
		form.Rule{Field: "nombre", Valid: form.NotEmpty(nombre), Message: "El nombre es obligatorio"},
		form.Rule{Field: "email", Valid: form.ValidEmail(email), Message: "El email es obligatorio"},
		form.Rule{Field: "password", Valid: form.MinLen(password, 6), Message: "El password es obligatorio y debe ser minimo de 6 caracteres"},
		form.Rule{Field: "repetir_password", Valid: form.Equals(repetirPassword, password), Message: "Los passwords no son iguales"},
	)
	if len(errs) > 0 {
		return ctx.Render(http.StatusOK, "registro", echo.Map{
			"Pagina":    "Crear Cuenta",
			"CSRFToken": csrfToken(ctx),
			"Errores":   errs,
			"Nombre":    nombre,
			"Email":     email,
		})
	}

	_, err := c.authService.Register(ctx.Request().Context(), nombre, email, password)
	if err != nil {
		if errors.Is(err, service.ErrUserExists) {
			logrus.WithField("email", email).Warn("Register rejected: user already exists")
			return ctx.Render(http.StatusOK, "registro", echo.Map{
				"Pagina":    "Crear Cuenta",
				"CSRFToken": csrfToken(ctx),
				"Errores":   form.Errors{{Message: "El usuario ya esta registrado"}},
				"Nombre":    nombre,
				"Email":     email,
			})
		}
		logrus.WithError(err).WithField("email", email).Error("Register failed")
		return err
	}

	logrus.WithField("email", email).Info("User registered")
	return ctx.Render(http.StatusOK, "mensaje", echo.Map{
		"Pagina":  "Cuenta Creada Correctamente",
		"Mensaje": "Hemos enviado un email de confirmacion, presiona en el enlace",
	})
}

func (c *AuthController) Confirm(ctx echo.Context) error {
	token := ctx.Param("token")

	if err := c.authService.ConfirmAccount(ctx.Request().Context(), token); err != nil {
		// A missing token and a failed persist render the same page.
		if !errors.Is(err, service.ErrInvalidToken) {
			logrus.WithError(err).Error("Confirm account failed")
		}
		return ctx.Render(http.StatusOK, "confirmar-cuenta", echo.Map{
			"Pagina":  "Error al confirmar cuenta",
			"Mensaje": "Hubo un error al confirmar tu cuenta",
			"Error":   true,
		})
	}

	logrus.Info("Account confirmed")
	return ctx.Render(http.StatusOK, "confirmar-cuenta", echo.Map{
		"Pagina":  "Cuenta confirmada",
		"Mensaje": "Tu cuenta ha sido confirmada correctamente",
	})
}

func (c *AuthController) ForgotPasswordForm(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, "olvide-password", echo.Map{
		"Pagina":    "Recupera tu acceso a Bienes Raices",
		"CSRFToken": csrfToken(ctx),
	})
}

func (c *AuthController) ForgotPassword(ctx echo.Context) error {
	email := ctx.FormValue("email")

	errs := form.Validate(
		form.Rule{Field: "email", Valid: form.ValidEmail(email), Message: "El email es obligatorio"},
	)
	if len(errs) > 0 {
		return ctx.Render(http.StatusOK, "olvide-password", echo.Map{
			"Pagina":    "Recupera tu acceso a Bienes Raices",
			"CSRFToken": csrfToken(ctx),
			"Errores":   errs,
		})
	}

	if err := c.authService.RequestPasswordReset(ctx.Request().Context(), email); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			logrus.WithField("email", email).Warn("Password reset requested for unknown email")
			return ctx.Render(http.StatusOK, "olvide-password", echo.Map{
				"Pagina":    "Recupera tu acceso a Bienes Raices",
				"CSRFToken": csrfToken(ctx),
				"Errores":   form.Errors{{Message: "El email no pertenece a ningun usuario"}},
			})
		}
		logrus.WithError(err).WithField("email", email).Error("Request password reset failed")
		return err
	}

	logrus.WithField("email", email).Info("Password reset email sent")
	return ctx.Render(http.StatusOK, "mensaje", echo.Map{
		"Pagina":  "Reestablece tu password",
		"Mensaje": "Hemos enviado un email con las instrucciones",
	})
}

func (c *AuthController) ResetPasswordForm(ctx echo.Context) error {
	token := ctx.Param("token")

	if _, err := c.authService.VerifyResetToken(ctx.Request().Context(), token); err != nil {
		if !errors.Is(err, service.ErrInvalidToken) {
			logrus.WithError(err).Error("Verify reset token failed")
		}
		return ctx.Render(http.StatusOK, "confirmar-cuenta", echo.Map{
			"Pagina":  "Restablecer password",
			"Mensaje": "Hubo un error al comprobar tu identidad",
			"Error":   true,
		})
	}

	return ctx.Render(http.StatusOK, "reset-password", echo.Map{
		"Pagina":    "Restablece tu password",
		"CSRFToken": csrfToken(ctx),
	})
}

func (c *AuthController) ResetPassword(ctx echo.Context) error {
	token := ctx.Param("token")
	password := ctx.FormValue("password")

	errs := form.Validate(
		form.Rule{Field: "password", Valid: form.MinLen(password, 6), Message: "El password es obligatorio y debe ser minimo de 6 caracteres"},
	)
	if len(errs) > 0 {
		return ctx.Render(http.StatusOK, "reset-password", echo.Map{
			"Pagina":    "Restablece tu password",
			"CSRFToken": csrfToken(ctx),
			"Errores":   errs,
		})
	}

	if err := c.authService.SetNewPassword(ctx.Request().Context(), token, password); err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			logrus.Warn("Reset password rejected: invalid token")
			return ctx.Render(http.StatusOK, "confirmar-cuenta", echo.Map{
				"Pagina":  "Restablecer password",
				"Mensaje": "Hubo un error al comprobar tu identidad",
				"Error":   true,
			})
		}
		logrus.WithError(err).Error("Reset password failed")
		return err
	}

	logrus.Info("Password reset successful")
	return ctx.Render(http.StatusOK, "confirmar-cuenta", echo.Map{
		"Pagina":  "Password restablecido",
		"Mensaje": "El password se ha modificado correctamente",
	})
}

func (c *AuthController) Logout(ctx echo.Context) error {
	ctx.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	return ctx.Redirect(http.StatusSeeOther, "/auth/login")
}

func csrfToken(ctx echo.Context) string {
	token, _ := ctx.Get(echomiddleware.DefaultCSRFConfig.ContextKey).(string)
	return token
}
