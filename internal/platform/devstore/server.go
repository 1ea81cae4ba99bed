package devstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/aimed/aimed/internal/platform/auth"
	"github.com/aimed/aimed/internal/platform/db"
	"github.com/aimed/aimed/internal/platform/middleware"
)

const shutdownTimeout = 10 * time.Second

type Config struct {
	SigningKey []byte
	TokenTTL   time.Duration
	RateLimit  middleware.RateLimitConfig
	// BodyLimit uses echo's size syntax, e.g. "1M".
	BodyLimit string
}

type Server struct {
	store  RecordStore
	tokens *auth.TokenIssuer
	logger zerolog.Logger
	now    func() time.Time
	echo   *echo.Echo
}

func NewServer(store RecordStore, cfg Config, logger zerolog.Logger) (*Server, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "1M"
	}
	s := &Server{
		store:  store,
		tokens: auth.NewTokenIssuer(cfg.SigningKey, "aimed-devstore", cfg.TokenTTL),
		logger: logger.With().Str("component", "devstore").Logger(),
		now:    time.Now,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpError

	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(s.logger))
	e.Use(middleware.Logger(s.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RateLimit(cfg.RateLimit))

	e.GET("/healthz", db.HealthHandler(store))

	authGroup := e.Group("/auth")
	authGroup.POST("/login", s.login)
	authGroup.POST("/register", s.register)

	api := e.Group("", auth.JWTMiddleware(s.tokens))
	api.GET("/auth/me", s.me)
	s.registerRoutes(api)

	s.echo = e
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("dev store listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down dev store")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

// httpError writes every failure as a middleware.ErrorBody tagged with the
// request id.
func (s *Server) httpError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := "internal server error"
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		msg = fmt.Sprint(httpErr.Message)
	} else {
		s.logger.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		rid, _ := c.Get("request_id").(string)
		err = c.JSON(code, middleware.ErrorBody{Message: msg, RequestID: rid})
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("write error response")
	}
}

// storeError maps record store failures onto HTTP errors.
func (s *Server) storeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	case errors.Is(err, ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, "record already exists")
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	s.logger.Error().Err(err).Str("path", c.Path()).Msg("record store failure")
	return echo.NewHTTPError(http.StatusInternalServerError, "storage failure")
}
