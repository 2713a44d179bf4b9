package cmd

import (
	"database/sql"
	"net/http"

	"github.com/edermartinez/bienesraices/app/controller"
	"github.com/edermartinez/bienesraices/app/mailer"
	"github.com/edermartinez/bienesraices/app/middleware"
	"github.com/edermartinez/bienesraices/app/repository"
	"github.com/edermartinez/bienesraices/app/service"
	"github.com/edermartinez/bienesraices/app/view"
	"github.com/edermartinez/bienesraices/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the Echo HTTP server that renders the auth and listings pages.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	userRepo := repository.NewUserRepository(db)
	propertyRepo := repository.NewPropertyRepository(db)
	authService := service.NewAuthService(userRepo, newMailer(cfg), cfg)

	startHTTPServer(cfg, authService, propertyRepo)
}

func newMailer(cfg *config.Config) service.Mailer {
	if cfg.SMTP.Host == "" {
		logrus.Warn("SMTP_HOST not set, emails will be logged instead of sent")
		return mailer.NewLog(cfg.BaseURL)
	}
	return mailer.NewSMTP(cfg.SMTP, cfg.BaseURL)
}

func startHTTPServer(cfg *config.Config, authService *service.AuthService, propertyRepo *repository.PropertyRepository) {
	e := echo.New()
	defer e.Close()
	e.HideBanner = true

	renderer, err := view.NewRenderer()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to parse templates")
	}
	e.Renderer = renderer

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CSRFWithConfig(echomiddleware.CSRFConfig{
		TokenLookup:    "form:_csrf",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteStrictMode,
	}))

	authController := controller.NewAuthController(authService, cfg)
	propertyController := controller.NewPropertyController(propertyRepo)
	authMiddleware := middleware.NewAuthMiddleware(authService)

	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusSeeOther, "/auth/login")
	})

	auth := e.Group("/auth")
	auth.GET("/login", authController.LoginForm)
	auth.POST("/login", authController.Login)
	auth.GET("/registro", authController.RegisterForm)
	auth.POST("/registro", authController.Register)
	auth.GET("/confirmar/:token", authController.Confirm)
	auth.GET("/olvide-password", authController.ForgotPasswordForm)
	auth.POST("/olvide-password", authController.ForgotPassword)
	auth.GET("/olvide-password/:token", authController.ResetPasswordForm)
	auth.POST("/olvide-password/:token", authController.ResetPassword)
	auth.POST("/cerrar-sesion", authController.Logout)

	protected := e.Group("", authMiddleware.RequireAuth)
	protected.GET("/mis-propiedades", propertyController.MisPropiedades)

	addr := ":" + cfg.Port
	logrus.WithField("addr", addr).Info("Starting HTTP server")
	if err := e.Start(addr); err != nil {
		logrus.WithError(err).Fatal("Failed to start HTTP server")
	}
}

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}
