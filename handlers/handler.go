package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"

	"github.com/padraicbc/derby/derby"
)

// Handler holds shared dependencies used by all route handlers.
type Handler struct {
	db     *bun.DB
	svc    *derby.Service
	admins *WalletAllowlist
	JWTKey []byte
}

// New creates a Handler with the given database connection, derby service,
// admin allowlist and JWT signing key.
func New(db *bun.DB, svc *derby.Service, admins *WalletAllowlist, jwtKey []byte) *Handler {
	return &Handler{db: db, svc: svc, admins: admins, JWTKey: jwtKey}
}

// httpError maps derby errors onto HTTP statuses.
func httpError(err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, derby.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, derby.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, derby.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, derby.ErrInvalidState),
		errors.Is(err, derby.ErrConflict),
		errors.Is(err, derby.ErrTooLate):
		status = http.StatusConflict
	case errors.Is(err, derby.ErrTooEarly):
		status = http.StatusTooEarly
	case errors.Is(err, derby.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	}
	return echo.NewHTTPError(status, err.Error())
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}
