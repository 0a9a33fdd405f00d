package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"urbanharvest/internal/config"
	"urbanharvest/internal/models"
	"urbanharvest/internal/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// Services bundles what the REST handlers call into.
type Services struct {
	Auth     *service.AuthService
	Catalog  *service.CatalogService
	Bookings *service.BookingService
	Users    *service.UserService
	Payments *service.PaymentService
}

// HTTPServer is the public REST API.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    Services
	echo   *echo.Echo
	server *http.Server
	log    *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	httpLogger := logger.With().Str("component", "http").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = newErrorHandler(&httpLogger)
	e.IPExtractor = echo.ExtractIPDirect()
	if cfg.HTTP.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	}

	srv := &HTTPServer{cfg: cfg, svc: svc, echo: e, log: &httpLogger}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger(&httpLogger))
	e.Use(rateLimit(newRateLimiter(cfg.RateLimit)))
	e.Use(requestTimeout(cfg.RequestTimeout))

	srv.registerRoutes()

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) registerRoutes() {
	e := s.echo
	mustAuth := []echo.MiddlewareFunc{jwtMiddleware(s.svc.Auth, false), authenticate(s.svc.Auth)}
	mayAuth := []echo.MiddlewareFunc{jwtMiddleware(s.svc.Auth, true), authenticate(s.svc.Auth)}
	admin := append(append([]echo.MiddlewareFunc{}, mustAuth...), requireAdmin)

	e.GET("/health", s.handleHealth)

	auth := e.Group("/auth")
	auth.POST("/register", s.handleRegister)
	auth.POST("/login", s.handleLogin)
	auth.GET("/me", s.handleMe, mustAuth...)

	bookings := e.Group("/bookings")
	bookings.POST("", s.handleCreateBooking, mayAuth...)
	bookings.POST("/process-payment", s.handleProcessPayment)
	bookings.GET("/my-bookings", s.handleMyBookings, mustAuth...)
	bookings.GET("", s.handleListBookings, admin...)
	bookings.GET("/export", s.handleExportBookings, admin...)
	bookings.GET("/:id", s.handleGetBooking, admin...)
	bookings.PUT("/:id", s.handleUpdateBooking, admin...)
	bookings.DELETE("/:id", s.handleDeleteBooking, admin...)

	users := e.Group("/users", admin...)
	users.GET("", s.handleListUsers)
	users.DELETE("/:id", s.handleDeleteUser)
	users.PATCH("/:id/status", s.handleUpdateUserStatus)
	users.PATCH("/:id/role", s.handleUpdateUserRole)
	users.GET("/:id/bookings", s.handleUserBookings)

	for _, t := range models.ItemTypes {
		g := e.Group("/" + t.Category())
		g.GET("", s.listCatalog(t))
		g.GET("/:id", s.getCatalogItem(t))
		g.POST("", s.createCatalogItem(t), admin...)
		g.PUT("/:id", s.updateCatalogItem(t), admin...)
		g.DELETE("/:id", s.deleteCatalogItem(t), admin...)
	}
}

// Handler exposes the router, mainly for httptest.
func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
