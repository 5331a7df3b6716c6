package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"classbridge/internal/model"
	"classbridge/internal/repository"
)

type fakeSource struct {
	mu       sync.Mutex
	profiles map[string]model.Profile
	roles    map[string][]model.UserRole
	fetches  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		profiles: make(map[string]model.Profile),
		roles:    make(map[string][]model.UserRole),
	}
}

func (f *fakeSource) GetProfile(_ context.Context, userID string) (model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	p, ok := f.profiles[userID]
	if !ok {
		return model.Profile{}, repository.ErrNotFound
	}
	return p, nil
}

func (f *fakeSource) ListRoles(_ context.Context, userID string) ([]model.UserRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[userID], nil
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func TestSnapshotResolvesPrimaryRole(t *testing.T) {
	src := newFakeSource()
	schoolID := "school-1"
	src.profiles["u1"] = model.Profile{ID: "u1", Email: "u1@example.com", FullName: "User One", SchoolID: &schoolID}
	src.roles["u1"] = []model.UserRole{
		{ID: "r1", UserID: "u1", Role: model.RoleParent, SchoolID: schoolID},
		{ID: "r2", UserID: "u1", Role: model.RoleTeacher, SchoolID: schoolID},
	}

	mgr := NewManager(src, nil, time.Minute, 8)
	snap, err := mgr.Snapshot(context.Background(), "u1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.PrimaryRole != model.RoleTeacher {
		t.Fatalf("primary role = %s, want teacher", snap.PrimaryRole)
	}
	if snap.Dashboard != "teacher" {
		t.Fatalf("dashboard = %s, want teacher", snap.Dashboard)
	}
	if snap.SchoolID == nil || *snap.SchoolID != schoolID {
		t.Fatalf("school id = %v, want %s", snap.SchoolID, schoolID)
	}
}

func TestSnapshotCachedWithinTTL(t *testing.T) {
	src := newFakeSource()
	src.profiles["u1"] = model.Profile{ID: "u1", Email: "u1@example.com", FullName: "User One"}

	mgr := NewManager(src, nil, time.Minute, 8)
	if _, err := mgr.Snapshot(context.Background(), "u1"); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, err := mgr.Snapshot(context.Background(), "u1"); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if got := src.fetchCount(); got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}
}

func TestInvalidateForcesFreshFetch(t *testing.T) {
	src := newFakeSource()
	src.profiles["u1"] = model.Profile{ID: "u1", Email: "u1@example.com", FullName: "User One"}
	src.roles["u1"] = []model.UserRole{{ID: "r1", UserID: "u1", Role: model.RoleStudent, SchoolID: "school-1"}}

	mgr := NewManager(src, nil, time.Minute, 8)
	snap, err := mgr.Snapshot(context.Background(), "u1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.PrimaryRole != model.RoleStudent {
		t.Fatalf("primary role = %s, want student", snap.PrimaryRole)
	}

	src.mu.Lock()
	src.roles["u1"] = nil
	src.mu.Unlock()

	mgr.Invalidate(context.Background(), "u1")
	snap, err = mgr.Snapshot(context.Background(), "u1")
	if err != nil {
		t.Fatalf("snapshot after invalidate: %v", err)
	}
	if snap.PrimaryRole != "" {
		t.Fatalf("primary role = %s, want empty after revocation", snap.PrimaryRole)
	}
}

func TestSignOutDropsSnapshot(t *testing.T) {
	src := newFakeSource()
	src.profiles["u1"] = model.Profile{ID: "u1", Email: "u1@example.com", FullName: "User One"}

	mgr := NewManager(src, nil, time.Minute, 8)
	if _, err := mgr.SignIn(context.Background(), "u1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	mgr.SignOut(context.Background(), "u1")
	if _, err := mgr.Snapshot(context.Background(), "u1"); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if got := src.fetchCount(); got != 2 {
		t.Fatalf("fetches = %d, want 2", got)
	}
}

func TestSnapshotUnknownUser(t *testing.T) {
	mgr := NewManager(newFakeSource(), nil, time.Minute, 8)
	if _, err := mgr.Snapshot(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestSnapshotHasRole(t *testing.T) {
	src := newFakeSource()
	schoolID := "school-1"
	src.profiles["u1"] = model.Profile{ID: "u1", Email: "u1@example.com", FullName: "User One", SchoolID: &schoolID}
	src.roles["u1"] = []model.UserRole{
		{ID: "r1", UserID: "u1", Role: model.RoleTeacher, SchoolID: schoolID},
		{ID: "r2", UserID: "u1", Role: model.RoleSuperAdmin},
	}

	mgr := NewManager(src, nil, time.Minute, 8)
	snap, err := mgr.Snapshot(context.Background(), "u1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.HasRole(model.RoleTeacher, schoolID) {
		t.Fatalf("expected teacher role in %s", schoolID)
	}
	if snap.HasRole(model.RoleTeacher, "school-2") {
		t.Fatalf("teacher role should be scoped to %s", schoolID)
	}
	if !snap.HasRole(model.RoleSuperAdmin, "") {
		t.Fatalf("expected unscoped super_admin role")
	}
	if snap.HasRole(model.RoleParent, schoolID) {
		t.Fatalf("unexpected parent role")
	}
}
