package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/padraicbc/derby/derby"
	mw "github.com/padraicbc/derby/middleware"
)

type createRaceRequest struct {
	Name                string          `json:"name"`
	Description         *string         `json:"description,omitempty"`
	RegistrationOpensAt time.Time       `json:"registrationOpensAt"`
	StartsAt            time.Time       `json:"startsAt"`
	MaxMmr              *int            `json:"maxMmr,omitempty"`
	MaxParticipants     *int            `json:"maxParticipants,omitempty"`
	AllowedRarities     []string        `json:"allowedRarities"`
	WronEntryFee        decimal.Decimal `json:"wronEntryFee"`
	PhorseEntryFee      decimal.Decimal `json:"phorseEntryFee"`
	WronPayoutPercent   decimal.Decimal `json:"wronPayoutPercent"`
	PctFirst            decimal.Decimal `json:"pctFirst"`
	PctSecond           decimal.Decimal `json:"pctSecond"`
	PctThird            decimal.Decimal `json:"pctThird"`
}

// Races lists races. status=all returns every race, otherwise only open ones.
func (h *Handler) Races(c echo.Context) error {
	ctx := c.Request().Context()
	var err error
	var out any
	switch strings.ToLower(c.QueryParam("status")) {
	case "", "open":
		out, err = h.svc.ListOpen(ctx)
	case "all":
		out, err = h.svc.ListAll(ctx)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "status must be open or all")
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

// Race returns a race with its entries and history.
func (h *Handler) Race(c echo.Context) error {
	raceID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.RaceDetail(c.Request().Context(), raceID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

// CreateRace creates a race. Race admins only.
func (h *Handler) CreateRace(c echo.Context) error {
	var req createRaceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	actor := derby.Actor{UserID: mw.UserID(c), Wallet: mw.Wallet(c)}
	race, err := h.svc.CreateRace(c.Request().Context(), actor, derby.RaceSpec{
		Name:                req.Name,
		Description:         req.Description,
		RegistrationOpensAt: req.RegistrationOpensAt,
		StartsAt:            req.StartsAt,
		MaxMmr:              req.MaxMmr,
		MaxParticipants:     req.MaxParticipants,
		AllowedRarities:     req.AllowedRarities,
		WronEntryFee:        req.WronEntryFee,
		PhorseEntryFee:      req.PhorseEntryFee,
		WronPayoutPercent:   req.WronPayoutPercent,
		PctFirst:            req.PctFirst,
		PctSecond:           req.PctSecond,
		PctThird:            req.PctThird,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, race)
}

// FinalizeRace settles a race whose start time has passed. Any caller may
// trigger it; repeated calls return the recorded result.
func (h *Handler) FinalizeRace(c echo.Context) error {
	raceID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	res, err := h.svc.Finalize(c.Request().Context(), raceID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}
