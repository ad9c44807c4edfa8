package subscription

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/domain/entitlement"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/pkg/pagination"
)

// Handler exposes the subscription endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// RegisterRoutes mounts the subscription endpoints on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/plans", h.Plans)
	g.GET("/plans/:planId", h.PlanDetail)
	g.POST("/subscribe", h.Subscribe)
	g.POST("/verify-payment", h.VerifyPayment)
	g.POST("/upgrade", h.Upgrade)
	g.POST("/upgrade/verify", h.VerifyUpgrade)
	g.POST("/renew", h.Renew)
	g.PUT("/auto-renew", h.AutoRenew)
	g.GET("/subscription/:clinicId", h.Current)
	g.GET("/subscription/:clinicId/history", h.History)
}

func httpErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrClinicNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidPlan),
		errors.Is(err, ErrInvalidDuration):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicateActiveSubscription),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrNoPendingUpgrade):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrSignatureMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidUpgradeDirection),
		errors.Is(err, ErrNoActiveSubscription),
		errors.Is(err, ErrSubscriptionExpired):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return err
	}
}

// requirePurchaser admits the clinic owner and platform admins. Staff may
// view subscription state but only the owner pays for it.
func (h *Handler) requirePurchaser(c echo.Context, clinicID uuid.UUID) (uuid.UUID, error) {
	userID, ok := auth.UserIDFromContext(c.Request().Context())
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	roles, _ := auth.RolesFromContext(c.Request().Context())
	for _, r := range roles {
		if r == "admin" {
			return userID, nil
		}
	}

	ownerID, err := h.svc.clinics.OwnerID(c.Request().Context(), clinicID)
	if err != nil {
		return uuid.Nil, httpErr(err)
	}
	if ownerID != userID {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "only the clinic owner may manage the subscription")
	}
	return userID, nil
}

// Plans returns the purchasable plan catalog.
func (h *Handler) Plans(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"plans": h.svc.Plans(),
	})
}

// PlanDetail returns one plan and the screens its tier unlocks.
func (h *Handler) PlanDetail(c echo.Context) error {
	plan, screens, err := h.svc.PlanDetail(entitlement.Tier(c.Param("planId")))
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"plan":    plan,
		"screens": screens,
	})
}

type subscribeRequest struct {
	ClinicID uuid.UUID            `json:"clinic_id" validate:"required"`
	Plan     entitlement.Tier     `json:"plan" validate:"required"`
	Duration entitlement.Duration `json:"duration" validate:"required"`
}

func (h *Handler) Subscribe(c echo.Context) error {
	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	userID, err := h.requirePurchaser(c, req.ClinicID)
	if err != nil {
		return err
	}

	res, err := h.svc.CreateOrder(c.Request().Context(), req.ClinicID, userID, req.Plan, req.Duration)
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusCreated, res)
}

type verifyRequest struct {
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

func (h *Handler) VerifyPayment(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.svc.VerifyAndActivate(c.Request().Context(), VerifyInput(req))
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type upgradeRequest struct {
	ClinicID uuid.UUID        `json:"clinic_id" validate:"required"`
	NewPlan  entitlement.Tier `json:"new_plan" validate:"required"`
}

func (h *Handler) Upgrade(c echo.Context) error {
	var req upgradeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	userID, err := h.requirePurchaser(c, req.ClinicID)
	if err != nil {
		return err
	}

	res, err := h.svc.CreateUpgradeOrder(c.Request().Context(), req.ClinicID, userID, req.NewPlan)
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) VerifyUpgrade(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.svc.VerifyAndUpgrade(c.Request().Context(), VerifyInput(req))
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// renewRequest carries no plan field: a renewal always runs at the
// clinic's current plan, only the duration is chosen.
type renewRequest struct {
	ClinicID uuid.UUID            `json:"clinic_id" validate:"required"`
	Duration entitlement.Duration `json:"duration" validate:"required"`
}

func (h *Handler) Renew(c echo.Context) error {
	var req renewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	userID, err := h.requirePurchaser(c, req.ClinicID)
	if err != nil {
		return err
	}

	res, err := h.svc.CreateRenewalOrder(c.Request().Context(), req.ClinicID, userID, req.Duration)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "nothing to renew, subscribe first")
	}
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusCreated, res)
}

type autoRenewRequest struct {
	ClinicID uuid.UUID `json:"clinic_id" validate:"required"`
	Enabled  *bool     `json:"enabled" validate:"required"`
}

func (h *Handler) AutoRenew(c echo.Context) error {
	var req autoRenewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if _, err := h.requirePurchaser(c, req.ClinicID); err != nil {
		return err
	}

	rec, err := h.svc.ToggleAutoRenew(c.Request().Context(), req.ClinicID, *req.Enabled)
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Current(c echo.Context) error {
	clinicID, err := uuid.Parse(c.Param("clinicId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic id")
	}

	rec, err := h.svc.Current(c.Request().Context(), clinicID)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "clinic has never subscribed")
	}
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) History(c echo.Context) error {
	clinicID, err := uuid.Parse(c.Param("clinicId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic id")
	}

	p := pagination.FromContext(c)
	recs, total, err := h.svc.History(c.Request().Context(), clinicID, p.Limit, p.Offset())
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(recs, total, p))
}
