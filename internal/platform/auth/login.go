package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountNotFound    = errors.New("account not found")
)

// Account is the login view of a patient record.
type Account struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
}

// AccountLookup finds patient accounts by email. It returns
// ErrAccountNotFound when no account matches.
type AccountLookup interface {
	AccountByEmail(ctx context.Context, email string) (*Account, error)
}

// AdminCredentials is the single administrator account configured for the
// deployment.
type AdminCredentials struct {
	Email        string
	PasswordHash string
}

type Authenticator struct {
	accounts AccountLookup
	admin    AdminCredentials
	tokens   *TokenIssuer
}

func NewAuthenticator(accounts AccountLookup, admin AdminCredentials, tokens *TokenIssuer) *Authenticator {
	return &Authenticator{accounts: accounts, admin: admin, tokens: tokens}
}

// Login checks the credentials and returns the new session with its signed
// token. Wrong passwords and unknown emails both yield ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*Session, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}

	var s *Session
	if a.admin.Email != "" && strings.EqualFold(email, a.admin.Email) {
		if !CheckPassword(a.admin.PasswordHash, password) {
			return nil, "", ErrInvalidCredentials
		}
		s = &Session{UserID: RoleAdmin, Email: email, Name: "Administrator", Role: RoleAdmin}
	} else {
		acct, err := a.accounts.AccountByEmail(ctx, email)
		if errors.Is(err, ErrAccountNotFound) {
			burnCompare(password)
			return nil, "", ErrInvalidCredentials
		}
		if err != nil {
			return nil, "", err
		}
		if !CheckPassword(acct.PasswordHash, password) {
			return nil, "", ErrInvalidCredentials
		}
		s = &Session{
			UserID:    acct.ID.String(),
			PatientID: acct.ID,
			Email:     acct.Email,
			Name:      acct.Name,
			Role:      RolePatient,
		}
	}

	token, err := a.tokens.Issue(s)
	if err != nil {
		return nil, "", err
	}
	return s, token, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string   `json:"token"`
	Session *Session `json:"session"`
}

type Handler struct {
	authn   *Authenticator
	revoked *RevocationStore
}

func NewHandler(authn *Authenticator, revoked *RevocationStore) *Handler {
	return &Handler{authn: authn, revoked: revoked}
}

// RegisterRoutes mounts the auth endpoints. loginLimit, when set, guards the
// login route only.
func (h *Handler) RegisterRoutes(api *echo.Group, loginLimit echo.MiddlewareFunc) {
	if loginLimit != nil {
		api.POST("/auth/login", h.Login, loginLimit)
	} else {
		api.POST("/auth/login", h.Login)
	}
	api.POST("/auth/logout", h.Logout)
	api.GET("/auth/session", h.CurrentSession)
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	s, token, err := h.authn.Login(c.Request().Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidCredentials.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, Session: s})
}

// Logout revokes the token used for the request.
func (h *Handler) Logout(c echo.Context) error {
	s, ok := SessionFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	if h.revoked != nil {
		h.revoked.Revoke(s.TokenID, s.ExpiresAt)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CurrentSession(c echo.Context) error {
	s, ok := SessionFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return c.JSON(http.StatusOK, s)
}
