package clinic

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	mu      sync.Mutex
	clinics map[uuid.UUID]*Clinic
}

func newMockRepo() *mockRepo {
	return &mockRepo{clinics: make(map[uuid.UUID]*Clinic)}
}

func (m *mockRepo) Create(_ context.Context, c *Clinic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.clinics {
		if existing.Name == c.Name {
			return ErrDuplicateName
		}
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	m.clinics[c.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Clinic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clinics[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Clinic, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*Clinic, 0, len(m.clinics))
	for _, c := range m.clinics {
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) Update(_ context.Context, c *Clinic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clinics[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	m.clinics[c.ID] = &cp
	return nil
}

func (m *mockRepo) OwnerID(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clinics[id]
	if !ok {
		return uuid.Nil, ErrNotFound
	}
	return c.OwnerID, nil
}

func (m *mockRepo) SetEMRStatus(_ context.Context, id uuid.UUID, enabled bool, plan string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clinics[id]
	if !ok {
		return ErrNotFound
	}
	c.EMREnabled = enabled
	c.EMRPlan = plan
	c.EMRExpiresAt = expiresAt
	return nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, zerolog.Nop()), repo
}

func TestCreateTrimsFields(t *testing.T) {
	svc, _ := newTestService()

	c, err := svc.Create(context.Background(), uuid.New(), CreateInput{
		Name:  "  Sunrise Clinic  ",
		Email: " owner@sunrise.test ",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if c.Name != "Sunrise Clinic" || c.Email != "owner@sunrise.test" {
		t.Errorf("fields not trimmed: %+v", c)
	}
	if c.EMREnabled {
		t.Error("new clinic must start with EMR disabled")
	}
}

func TestCreateDuplicateName(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, uuid.New(), CreateInput{Name: "Sunrise"}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if _, err := svc.Create(ctx, uuid.New(), CreateInput{Name: "Sunrise"}); err != ErrDuplicateName {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
}

func TestGrantAndRevokeEMR(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	c, err := svc.Create(ctx, uuid.New(), CreateInput{Name: "Sunrise"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	expiry := time.Now().AddDate(1, 0, 0)
	if err := svc.GrantEMR(ctx, c.ID, "standard", expiry); err != nil {
		t.Fatalf("GrantEMR failed: %v", err)
	}

	got, _ := svc.Get(ctx, c.ID)
	if !got.EMREnabled || got.EMRPlan != "standard" || got.EMRExpiresAt == nil {
		t.Errorf("EMR block not set: %+v", got.GetEMRStatus())
	}

	if err := svc.RevokeEMR(ctx, c.ID, "standard"); err != nil {
		t.Fatalf("RevokeEMR failed: %v", err)
	}
	got, _ = svc.Get(ctx, c.ID)
	if got.EMREnabled || got.EMRExpiresAt != nil {
		t.Errorf("EMR not revoked: %+v", got.GetEMRStatus())
	}
	if got.EMRPlan != "standard" {
		t.Error("revoke must keep the last plan for renewal display")
	}
}

func TestGrantEMRUnknownClinic(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.GrantEMR(context.Background(), uuid.New(), "basic", time.Now()); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateUnknownClinic(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Update(context.Background(), uuid.New(), UpdateInput{Name: "X"}); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
