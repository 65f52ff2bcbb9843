package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	mw "github.com/padraicbc/derby/middleware"
	"github.com/padraicbc/derby/models"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HashPasswordForUser validates username/password input and returns a bcrypt hash for storage.
func HashPasswordForUser(username, password string) (string, error) {
	if strings.TrimSpace(username) == "" {
		return "", errors.New("username is required")
	}
	if strings.TrimSpace(password) == "" {
		return "", errors.New("password is required")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hashedPassword), nil
}

// WalletAllowlist grants race administration to a fixed set of wallets.
// Wallets compare case-insensitively.
type WalletAllowlist struct {
	wallets map[string]struct{}
}

// NewWalletAllowlist builds an allowlist from wallet addresses.
func NewWalletAllowlist(wallets []string) *WalletAllowlist {
	a := &WalletAllowlist{wallets: make(map[string]struct{}, len(wallets))}
	for _, w := range wallets {
		if n := normalizeWallet(w); n != "" {
			a.wallets[n] = struct{}{}
		}
	}
	return a
}

// IsRaceAdmin implements derby.Authorizer.
func (a *WalletAllowlist) IsRaceAdmin(_ context.Context, wallet string) bool {
	n := normalizeWallet(wallet)
	if n == "" {
		return false
	}
	_, ok := a.wallets[n]
	return ok
}

func normalizeWallet(w string) string {
	return strings.ToLower(strings.TrimSpace(w))
}

// PasswordHash returns a bcrypt hash from username/password input for manual user registration.
// Access is limited to race admins.
func (h *Handler) PasswordHash(c echo.Context) error {
	if !h.admins.IsRaceAdmin(c.Request().Context(), mw.Wallet(c)) {
		return echo.NewHTTPError(http.StatusForbidden, "admin access required")
	}

	var creds credentials
	if err := c.Bind(&creds); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	hash, err := HashPasswordForUser(creds.Username, creds.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]string{
		"username":      strings.TrimSpace(creds.Username),
		"password_hash": hash,
	})
}

// Signin validates credentials and returns a JWT token valid for 30 days.
func (h *Handler) Signin(c echo.Context) error {
	var creds credentials
	if err := c.Bind(&creds); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	creds.Username = strings.TrimSpace(creds.Username)

	user := &models.User{}
	err := h.db.NewSelect().Model(user).
		Where("username = ?", creds.Username).
		Scan(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "incorrect username or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(creds.Password)); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	tokenString, err := IssueToken(h.JWTKey, user, time.Now().AddDate(0, 0, 30))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]string{"token": tokenString})
}

// IssueToken signs a token for user that expires at expiresAt.
func IssueToken(key []byte, user *models.User, expiresAt time.Time) (string, error) {
	claims := &mw.Claims{
		UserID:   user.ID,
		Username: user.Username,
		Wallet:   user.Wallet,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}
