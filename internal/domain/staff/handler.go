package staff

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/domain/entitlement"
	"github.com/clinicore/clinicore/internal/platform/auth"
)

// Handler exposes roster endpoints. All routes are mounted behind the
// staff_management screen gate, so reaching a handler already implies the
// caller is a clinic admin on a sufficient plan.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// RegisterRoutes mounts the roster endpoints on g, gated by the
// staff_management screen.
func (h *Handler) RegisterRoutes(g *echo.Group, gate *entitlement.Gate) {
	guard := gate.RequireScreen("staff_management")
	g.GET("/:clinicId/staff", h.List, guard)
	g.POST("/:clinicId/staff", h.Invite, guard)
	g.PUT("/:clinicId/staff/:memberId/role", h.ChangeRole, guard)
	g.POST("/:clinicId/staff/:memberId/deactivate", h.Deactivate, guard)
	g.POST("/:clinicId/staff/:memberId/reactivate", h.Reactivate, guard)
}

func httpErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyMember),
		errors.Is(err, ErrAlreadyActive),
		errors.Is(err, ErrAlreadyInactive):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidRole):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDoctorLimit),
		errors.Is(err, ErrStaffLimit),
		errors.Is(err, ErrNoSubscription):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return err
	}
}

func (h *Handler) List(c echo.Context) error {
	clinicID, err := uuid.Parse(c.Param("clinicId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic id")
	}
	members, err := h.svc.List(c.Request().Context(), clinicID)
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"staff": members})
}

func (h *Handler) Invite(c echo.Context) error {
	userID, _ := auth.UserIDFromContext(c.Request().Context())
	clinicID, err := uuid.Parse(c.Param("clinicId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic id")
	}

	var in InviteInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	m, err := h.svc.Invite(c.Request().Context(), clinicID, userID, in)
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusCreated, m)
}

type changeRoleInput struct {
	Role entitlement.Role `json:"role" validate:"required"`
}

func (h *Handler) ChangeRole(c echo.Context) error {
	memberID, err := uuid.Parse(c.Param("memberId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid member id")
	}

	var in changeRoleInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	m, err := h.svc.ChangeRole(c.Request().Context(), memberID, in.Role)
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Deactivate(c echo.Context) error {
	memberID, err := uuid.Parse(c.Param("memberId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid member id")
	}
	m, err := h.svc.Deactivate(c.Request().Context(), memberID)
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Reactivate(c echo.Context) error {
	memberID, err := uuid.Parse(c.Param("memberId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid member id")
	}
	m, err := h.svc.Reactivate(c.Request().Context(), memberID)
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, m)
}
