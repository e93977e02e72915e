package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/existflow/duetask/internal/docs"
	"github.com/existflow/duetask/internal/logger"
	"github.com/existflow/duetask/internal/remote"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string `json:"token,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

// Claims are the claims of an access token. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// handleRegister creates an account and its public profile document
func (s *Server) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	// Validate
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "email and password required"})
	}

	if len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "password must be at least 8 characters"})
	}

	// Hash password
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("bcrypt error", logger.Err(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	ctx := c.Request().Context()
	acc := Account{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.accounts.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		logger.Error("Account insert failed", logger.Err(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	profile := docs.EncodeProfile(docs.Profile{UID: acc.ID, Name: acc.Name, Email: acc.Email})
	if err := s.store.Set(ctx, remote.UserDoc(acc.ID), profile); err != nil {
		logger.Error("Profile write failed", logger.F("user", acc.ID), logger.Err(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	logger.Info("User registered", logger.F("user", acc.ID))
	return s.respondWithToken(c, acc)
}

// handleLogin handles user login
func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	acc, err := s.accounts.AccountByEmail(c.Request().Context(), strings.TrimSpace(req.Email))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	}

	// Check password
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)); err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	}

	logger.Info("User logged in", logger.F("user", acc.ID))
	return s.respondWithToken(c, acc)
}

// handleMe returns current user info
func (s *Server) handleMe(c echo.Context) error {
	acc, err := s.accounts.AccountByID(c.Request().Context(), currentUser(c))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "user not found"})
	}

	return c.JSON(http.StatusOK, authResponse{
		UserID: acc.ID,
		Email:  acc.Email,
		Name:   acc.Name,
	})
}

func (s *Server) respondWithToken(c echo.Context, acc Account) error {
	token, expiresAt, err := s.issueToken(acc)
	if err != nil {
		logger.Error("Token signing failed", logger.Err(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	return c.JSON(http.StatusOK, authResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		UserID:    acc.ID,
		Email:     acc.Email,
		Name:      acc.Name,
	})
}

// issueToken signs an HS256 access token for acc
func (s *Server) issueToken(acc Account) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: acc.Email,
	})

	signed, err := token.SignedString(s.secret)
	return signed, expiresAt, err
}

// parseToken validates a token and returns its user id
func (s *Server) parseToken(raw string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}
