package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HorseHistory returns every finish recorded for a horse, newest first.
func (h *Handler) HorseHistory(c echo.Context) error {
	horseID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	rows, err := h.svc.HorseHistory(c.Request().Context(), horseID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rows)
}
