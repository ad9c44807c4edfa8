package entitlement

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

// Handler exposes the screen registry and access checks over HTTP.
type Handler struct {
	gate    *Gate
	catalog *Catalog
}

func NewHandler(gate *Gate, catalog *Catalog) *Handler {
	return &Handler{gate: gate, catalog: catalog}
}

// RegisterRoutes mounts the entitlement endpoints on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/all-screens", h.AllScreens)
	g.GET("/screens/:clinicId", h.ScreensForClinic)
	g.GET("/access/:clinicId/:screenId", h.CheckAccess)
}

// AllScreens returns the full screen registry without any access evaluation.
func (h *Handler) AllScreens(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"screens": h.catalog.Screens(),
	})
}

type screensResponse struct {
	ClinicID     uuid.UUID     `json:"clinic_id"`
	Role         Role          `json:"role,omitempty"`
	Plan         Tier          `json:"plan,omitempty"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
	DaysLeft     int           `json:"days_remaining"`
	Unlocked     []ScreenState `json:"unlocked"`
	Locked       []ScreenState `json:"locked"`
	TotalScreens int           `json:"total_screens"`
}

// ScreensForClinic returns the catalog split into screens the caller can
// open and screens that stay locked, with the deny reason per locked screen.
func (h *Handler) ScreensForClinic(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	clinicID, err := uuid.Parse(c.Param("clinicId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic id")
	}

	states, role, sub, err := h.gate.AvailableScreens(c.Request().Context(), clinicID, userID)
	if errors.Is(err, ErrClinicNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "clinic not found")
	}
	if err != nil {
		return err
	}

	unlocked, locked := SplitScreens(states)
	resp := screensResponse{
		ClinicID:     clinicID,
		Role:         role,
		TotalScreens: len(states),
		Unlocked:     unlocked,
		Locked:       locked,
	}
	if sub != nil {
		resp.Plan = sub.Plan
		resp.DaysLeft = sub.DaysRemaining
		if !sub.ExpiresAt.IsZero() {
			t := sub.ExpiresAt
			resp.ExpiresAt = &t
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// CheckAccess evaluates a single screen for the caller without gating any
// downstream handler. Always returns 200 with the decision payload.
func (h *Handler) CheckAccess(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	clinicID, err := uuid.Parse(c.Param("clinicId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic id")
	}
	screenID := c.Param("screenId")

	res, err := h.gate.Check(c.Request().Context(), clinicID, userID, screenID)
	if errors.Is(err, ErrClinicNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "clinic not found")
	}
	if err != nil {
		return err
	}

	body := map[string]interface{}{
		"screen_id": screenID,
		"allowed":   res.Allowed,
	}
	if res.Role != "" {
		body["role"] = res.Role
	}
	if !res.Allowed {
		body["code"] = res.Reason
		body["error"] = denyMessage(res.Reason)
		if res.RequiredTier != "" {
			body["required_tier"] = res.RequiredTier
		}
		if res.CurrentTier != "" {
			body["current_tier"] = res.CurrentTier
		}
	}
	return c.JSON(http.StatusOK, body)
}
