package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	mw "github.com/padraicbc/derby/middleware"
)

type horseRequest struct {
	HorseID int64 `json:"horseID"`
}

// JoinRace enters the caller's horse and escrows the entry fees.
func (h *Handler) JoinRace(c echo.Context) error {
	raceID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req horseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.HorseID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "horseID is required")
	}

	entry, err := h.svc.Join(c.Request().Context(), mw.UserID(c), raceID, req.HorseID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

// LeaveRace withdraws the caller's horse and refunds the entry fees.
func (h *Handler) LeaveRace(c echo.Context) error {
	raceID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req horseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.HorseID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "horseID is required")
	}

	if err := h.svc.Leave(c.Request().Context(), mw.UserID(c), raceID, req.HorseID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
