package clinic

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/pkg/pagination"
)

// Handler exposes clinic endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// RegisterRoutes mounts the clinic endpoints on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("", h.List, auth.RequireRole("admin"))
	g.GET("/:clinicId", h.Get)
	g.PUT("/:clinicId", h.Update)
	g.GET("/:clinicId/emr-status", h.EMRStatus)
}

func (h *Handler) Create(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	clinic, err := h.svc.Create(c.Request().Context(), userID, in)
	if errors.Is(err, ErrDuplicateName) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, clinic)
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	clinics, total, err := h.svc.List(c.Request().Context(), p.Limit, p.Offset())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(clinics, total, p))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("clinicId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic id")
	}
	clinic, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "clinic not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, clinic)
}

// Update modifies the clinic profile. Only the owner or an admin may update.
func (h *Handler) Update(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(c.Param("clinicId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic id")
	}

	ownerID, err := h.svc.OwnerID(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "clinic not found")
	}
	if err != nil {
		return err
	}
	roles, _ := auth.RolesFromContext(c.Request().Context())
	if ownerID != userID && !hasRole(roles, "admin") {
		return echo.NewHTTPError(http.StatusForbidden, "only the clinic owner may update the clinic")
	}

	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	clinic, err := h.svc.Update(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, clinic)
}

// EMRStatus returns the clinic's denormalized EMR block.
func (h *Handler) EMRStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("clinicId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic id")
	}
	clinic, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "clinic not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, clinic.GetEMRStatus())
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
