package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	mw "github.com/padraicbc/derby/middleware"
)

type betRequest struct {
	HorseID int64           `json:"horseID"`
	Amount  decimal.Decimal `json:"amount"`
}

// PlaceBet stakes WRON on a horse entered in the race.
func (h *Handler) PlaceBet(c echo.Context) error {
	raceID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req betRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.HorseID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "horseID is required")
	}

	bet, err := h.svc.PlaceBet(c.Request().Context(), mw.UserID(c), raceID, req.HorseID, req.Amount)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, bet)
}

// Odds returns the betting view of a race including the caller's stakes.
func (h *Handler) Odds(c echo.Context) error {
	raceID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	odds, err := h.svc.Odds(c.Request().Context(), raceID, mw.UserID(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, odds)
}
