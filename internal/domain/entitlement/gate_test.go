package entitlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

type stubStaff struct {
	roles map[uuid.UUID]Role
}

func (s *stubStaff) ActiveRole(_ context.Context, _ uuid.UUID, userID uuid.UUID) (Role, error) {
	return s.roles[userID], nil
}

type stubClinics struct {
	owners map[uuid.UUID]uuid.UUID
}

func (s *stubClinics) OwnerID(_ context.Context, clinicID uuid.UUID) (uuid.UUID, error) {
	owner, ok := s.owners[clinicID]
	if !ok {
		return uuid.Nil, ErrClinicNotFound
	}
	return owner, nil
}

type stubSource struct {
	subs map[uuid.UUID]*SubscriptionInfo
}

func (s *stubSource) ActiveSubscription(_ context.Context, clinicID uuid.UUID) (*SubscriptionInfo, error) {
	return s.subs[clinicID], nil
}

func newTestGate(clinicID, ownerID, doctorID uuid.UUID, sub *SubscriptionInfo) *Gate {
	staff := &stubStaff{roles: map[uuid.UUID]Role{doctorID: RoleDoctor}}
	clinics := &stubClinics{owners: map[uuid.UUID]uuid.UUID{clinicID: ownerID}}
	source := &stubSource{subs: map[uuid.UUID]*SubscriptionInfo{}}
	if sub != nil {
		source.subs[clinicID] = sub
	}
	return NewGate(NewRoleResolver(staff, clinics), source, NewEvaluator(DefaultCatalog()))
}

func TestRoleResolverOwnerFallback(t *testing.T) {
	clinicID := uuid.New()
	ownerID := uuid.New()
	doctorID := uuid.New()
	stranger := uuid.New()

	r := NewRoleResolver(
		&stubStaff{roles: map[uuid.UUID]Role{doctorID: RoleDoctor}},
		&stubClinics{owners: map[uuid.UUID]uuid.UUID{clinicID: ownerID}},
	)

	role, err := r.Resolve(context.Background(), clinicID, doctorID)
	if err != nil || role != RoleDoctor {
		t.Errorf("staff roster must win: role=%q err=%v", role, err)
	}

	role, err = r.Resolve(context.Background(), clinicID, ownerID)
	if err != nil || role != RoleAdmin {
		t.Errorf("owner without staff record must act as admin: role=%q err=%v", role, err)
	}

	role, err = r.Resolve(context.Background(), clinicID, stranger)
	if err != nil || role != "" {
		t.Errorf("stranger must resolve to empty role: role=%q err=%v", role, err)
	}
}

func doGated(t *testing.T, g *Gate, screenID string, clinicParam string, userID *uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if userID != nil {
		req = req.WithContext(auth.WithUserID(req.Context(), *userID))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("clinicId")
	c.SetParamValues(clinicParam)

	handler := g.RequireScreen(screenID)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestRequireScreenAllows(t *testing.T) {
	clinicID := uuid.New()
	doctorID := uuid.New()
	g := newTestGate(clinicID, uuid.New(), doctorID, activeSub(TierAdvanced, 60))

	rec := doGated(t, g, "drug_interactions", clinicID.String(), &doctorID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRequireScreenDeniesWithCode(t *testing.T) {
	clinicID := uuid.New()
	doctorID := uuid.New()
	g := newTestGate(clinicID, uuid.New(), doctorID, activeSub(TierBasic, 60))

	rec := doGated(t, g, "drug_interactions", clinicID.String(), &doctorID)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var body denyBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body.Code != ReasonUpgradeRequired {
		t.Errorf("code = %q, want %q", body.Code, ReasonUpgradeRequired)
	}
	if body.RequiredTier != TierAdvanced || body.CurrentTier != TierBasic {
		t.Errorf("tier context missing: %+v", body)
	}
}

func TestRequireScreenUnauthenticated(t *testing.T) {
	clinicID := uuid.New()
	g := newTestGate(clinicID, uuid.New(), uuid.New(), activeSub(TierAdvanced, 60))

	rec := doGated(t, g, "emr_dashboard", clinicID.String(), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireScreenBadClinicID(t *testing.T) {
	doctorID := uuid.New()
	g := newTestGate(uuid.New(), uuid.New(), doctorID, nil)

	rec := doGated(t, g, "emr_dashboard", "not-a-uuid", &doctorID)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRequireScreenUnknownClinic(t *testing.T) {
	doctorID := uuid.New()
	g := newTestGate(uuid.New(), uuid.New(), uuid.New(), nil)

	rec := doGated(t, g, "emr_dashboard", uuid.New().String(), &doctorID)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestScreensForClinicSplitsLockedUnlocked(t *testing.T) {
	clinicID := uuid.New()
	doctorID := uuid.New()
	g := newTestGate(clinicID, uuid.New(), doctorID, &SubscriptionInfo{
		Plan:          TierStandard,
		ExpiresAt:     time.Now().AddDate(0, 0, 45),
		DaysRemaining: 45,
	})
	h := NewHandler(g, DefaultCatalog())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithUserID(req.Context(), doctorID))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("clinicId")
	c.SetParamValues(clinicID.String())

	if err := h.ScreensForClinic(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp screensResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp.Plan != TierStandard || resp.DaysLeft != 45 {
		t.Errorf("subscription context wrong: %+v", resp)
	}
	if len(resp.Unlocked)+len(resp.Locked) != resp.TotalScreens || resp.TotalScreens != 14 {
		t.Errorf("screen split inconsistent: %d + %d != %d", len(resp.Unlocked), len(resp.Locked), resp.TotalScreens)
	}
	for _, s := range resp.Locked {
		if s.Reason == "" {
			t.Errorf("locked screen %s has no reason", s.Screen.ID)
		}
	}
}

func TestCheckAccessAlways200(t *testing.T) {
	clinicID := uuid.New()
	doctorID := uuid.New()
	g := newTestGate(clinicID, uuid.New(), doctorID, activeSub(TierBasic, 10))
	h := NewHandler(g, DefaultCatalog())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithUserID(req.Context(), doctorID))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("clinicId", "screenId")
	c.SetParamValues(clinicID.String(), "audit_logs")

	if err := h.CheckAccess(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with decision payload", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["allowed"] != false {
		t.Error("doctor must not open audit_logs")
	}
	if body["code"] != ReasonRoleNotAllowed {
		t.Errorf("code = %v, want %s", body["code"], ReasonRoleNotAllowed)
	}
}
