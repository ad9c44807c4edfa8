package entitlement

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

// SubscriptionSource answers the gate's subscription lookups. A nil info
// with nil error means the clinic has no usable subscription.
type SubscriptionSource interface {
	ActiveSubscription(ctx context.Context, clinicID uuid.UUID) (*SubscriptionInfo, error)
}

// Gate combines role resolution, subscription lookup, and policy evaluation
// into the access check used by the HTTP layer.
type Gate struct {
	resolver *RoleResolver
	source   SubscriptionSource
	eval     *Evaluator
}

func NewGate(resolver *RoleResolver, source SubscriptionSource, eval *Evaluator) *Gate {
	return &Gate{resolver: resolver, source: source, eval: eval}
}

// AccessResult is the full outcome of a gate check, including the resolved
// role and subscription so callers can render upgrade prompts.
type AccessResult struct {
	Decision
	Role         Role              `json:"role,omitempty"`
	Subscription *SubscriptionInfo `json:"-"`
}

// Check resolves the caller's role and the clinic's subscription, then
// evaluates the screen.
func (g *Gate) Check(ctx context.Context, clinicID, userID uuid.UUID, screenID string) (AccessResult, error) {
	role, err := g.resolver.Resolve(ctx, clinicID, userID)
	if err != nil {
		return AccessResult{}, err
	}

	sub, err := g.source.ActiveSubscription(ctx, clinicID)
	if err != nil {
		return AccessResult{}, err
	}

	d := g.eval.Evaluate(screenID, role, sub)
	return AccessResult{Decision: d, Role: role, Subscription: sub}, nil
}

// AvailableScreens resolves the caller's role and returns every catalog
// screen marked unlocked or locked.
func (g *Gate) AvailableScreens(ctx context.Context, clinicID, userID uuid.UUID) ([]ScreenState, Role, *SubscriptionInfo, error) {
	role, err := g.resolver.Resolve(ctx, clinicID, userID)
	if err != nil {
		return nil, "", nil, err
	}
	sub, err := g.source.ActiveSubscription(ctx, clinicID)
	if err != nil {
		return nil, "", nil, err
	}
	return g.eval.ResolveScreens(role, sub), role, sub, nil
}

type denyBody struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	RequiredTier Tier   `json:"required_tier,omitempty"`
	CurrentTier  Tier   `json:"current_tier,omitempty"`
}

func denyMessage(reason string) string {
	switch reason {
	case ReasonScreenNotFound:
		return "unknown screen"
	case ReasonNotClinicMember:
		return "you are not a member of this clinic"
	case ReasonNoSubscription:
		return "this clinic has no active EMR subscription"
	case ReasonSubscriptionExpired:
		return "the clinic's EMR subscription has expired"
	case ReasonRoleNotAllowed:
		return "your role does not permit this screen"
	case ReasonUpgradeRequired:
		return "this screen requires a higher plan"
	default:
		return "access denied"
	}
}

func denyStatus(reason string) int {
	switch reason {
	case ReasonScreenNotFound:
		return http.StatusNotFound
	case ReasonAuthRequired:
		return http.StatusUnauthorized
	case ReasonClinicIDRequired:
		return http.StatusBadRequest
	default:
		return http.StatusForbidden
	}
}

// RequireScreen returns an echo middleware that admits the request only when
// the authenticated user may open screenID in the clinic named by the
// clinicId path parameter.
func (g *Gate) RequireScreen(screenID string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := auth.UserIDFromContext(c.Request().Context())
			if !ok {
				return c.JSON(http.StatusUnauthorized, denyBody{
					Error: "authentication required",
					Code:  ReasonAuthRequired,
				})
			}

			clinicID, err := uuid.Parse(c.Param("clinicId"))
			if err != nil {
				return c.JSON(http.StatusBadRequest, denyBody{
					Error: "invalid clinic id",
					Code:  ReasonClinicIDRequired,
				})
			}

			res, err := g.Check(c.Request().Context(), clinicID, userID, screenID)
			if errors.Is(err, ErrClinicNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "clinic not found")
			}
			if err != nil {
				return err
			}
			if !res.Allowed {
				return c.JSON(denyStatus(res.Reason), denyBody{
					Error:        denyMessage(res.Reason),
					Code:         res.Reason,
					RequiredTier: res.RequiredTier,
					CurrentTier:  res.CurrentTier,
				})
			}
			return next(c)
		}
	}
}
