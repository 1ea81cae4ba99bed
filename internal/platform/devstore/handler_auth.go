package devstore

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/aimed/aimed/internal/domain/entity"
	"github.com/aimed/aimed/internal/platform/auth"
)

// account holds login material apart from the public user record. It is
// keyed by the lower-cased email; login keeps using the registration email
// even if the profile email changes later.
type account struct {
	UserID       string      `json:"userId"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"passwordHash"`
	Role         entity.Role `json:"role"`
}

type credentialsRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     entity.Role `json:"role"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  entity.User `json:"user"`
}

func accountKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Server) register(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || accountKey(req.Email) == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name, email and password are required")
	}
	if !req.Role.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "role must be PATIENT, DOCTOR or INSTITUTION")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return s.storeError(c, err)
	}
	ctx := c.Request().Context()
	user := entity.User{
		ID:    uuid.NewString(),
		Name:  req.Name,
		Email: strings.TrimSpace(req.Email),
		Role:  req.Role,
	}
	acct := account{UserID: user.ID, Email: user.Email, PasswordHash: hash, Role: user.Role}
	if err := insertAs(ctx, s.store, Accounts, accountKey(req.Email), acct); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return echo.NewHTTPError(http.StatusConflict, "email already registered")
		}
		return s.storeError(c, err)
	}
	if err := insertAs(ctx, s.store, Users, user.ID, user); err != nil {
		return s.storeError(c, err)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return s.storeError(c, err)
	}
	s.logger.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")
	return c.JSON(http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) login(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()

	invalid := echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	acct, err := getAs[account](ctx, s.store, Accounts, accountKey(req.Email))
	if errors.Is(err, ErrNotFound) {
		return invalid
	}
	if err != nil {
		return s.storeError(c, err)
	}
	if err := auth.CheckPassword(acct.PasswordHash, req.Password); err != nil {
		return invalid
	}
	if req.Role != "" && req.Role != acct.Role {
		return invalid
	}

	user, err := getAs[entity.User](ctx, s.store, Users, acct.UserID)
	if err != nil {
		return s.storeError(c, err)
	}
	token, err := s.tokens.Issue(user)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) me(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	user, err := getAs[entity.User](c.Request().Context(), s.store, Users, uid)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}
