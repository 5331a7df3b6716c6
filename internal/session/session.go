// Package session resolves a signed-in user's profile, role rows, and primary
// role into a snapshot the handlers can read cheaply. Snapshots are a
// convenience cache only: authorization decisions go through the role table
// directly, never through a snapshot.
package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"classbridge/internal/model"
)

// RoleSource is the subset of the store the manager reads from.
type RoleSource interface {
	GetProfile(ctx context.Context, userID string) (model.Profile, error)
	ListRoles(ctx context.Context, userID string) ([]model.UserRole, error)
}

// Snapshot is the resolved view of one user's session.
type Snapshot struct {
	UserID      string           `json:"user_id"`
	Email       string           `json:"email"`
	FullName    string           `json:"full_name"`
	AvatarURL   *string          `json:"avatar_url,omitempty"`
	SchoolID    *string          `json:"school_id,omitempty"`
	Roles       []model.UserRole `json:"roles"`
	PrimaryRole model.Role       `json:"primary_role"`
	Dashboard   string           `json:"dashboard"`
	FetchedAt   time.Time        `json:"fetched_at"`
}

// HasRole reports whether the snapshot carries the role, scoped to schoolID
// when non-empty. Snapshots can lag behind role mutations by up to the cache
// TTL, so this is for presentation decisions only.
func (s Snapshot) HasRole(role model.Role, schoolID string) bool {
	return model.HasRole(s.Roles, role, schoolID)
}

type cacheEntry struct {
	snap      Snapshot
	expiresAt time.Time
}

// Manager caches session snapshots with a short TTL and refreshes them off
// the request path through a buffered task queue. When Redis is configured
// the snapshot is also shared across instances.
type Manager struct {
	src   RoleSource
	redis *redis.Client
	ttl   time.Duration
	queue chan string

	mu    sync.RWMutex
	local map[string]cacheEntry
}

func NewManager(src RoleSource, rdb *redis.Client, ttl time.Duration, queueLen int) *Manager {
	if queueLen <= 0 {
		queueLen = 64
	}
	return &Manager{
		src:   src,
		redis: rdb,
		ttl:   ttl,
		queue: make(chan string, queueLen),
		local: make(map[string]cacheEntry),
	}
}

// Start runs the refresh worker until ctx is cancelled. Queued refreshes are
// best-effort: a fetch failure leaves the previous snapshot in place and the
// next Snapshot call falls through to a synchronous fetch.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case userID := <-m.queue:
				if _, err := m.fetch(ctx, userID); err != nil {
					log.Printf("session: refresh for %s failed: %v", userID, err)
				}
			}
		}
	}()
}

// SignIn resolves and caches the user's snapshot at login.
func (m *Manager) SignIn(ctx context.Context, userID string) (Snapshot, error) {
	return m.fetch(ctx, userID)
}

// SignOut drops the user's cached snapshot everywhere.
func (m *Manager) SignOut(ctx context.Context, userID string) {
	m.mu.Lock()
	delete(m.local, userID)
	m.mu.Unlock()
	if m.redis != nil {
		if err := m.redis.Del(ctx, snapshotKey(userID)).Err(); err != nil {
			log.Printf("session: redis del for %s failed: %v", userID, err)
		}
	}
}

// Snapshot returns the cached view if it is still within its TTL, otherwise
// fetches a fresh one synchronously.
func (m *Manager) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	m.mu.RLock()
	entry, ok := m.local[userID]
	m.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.snap, nil
	}
	if m.redis != nil {
		raw, err := m.redis.Get(ctx, snapshotKey(userID)).Bytes()
		if err == nil {
			var snap Snapshot
			if err := json.Unmarshal(raw, &snap); err == nil {
				m.storeLocal(snap)
				return snap, nil
			}
		} else if err != redis.Nil {
			log.Printf("session: redis get for %s failed: %v", userID, err)
		}
	}
	return m.fetch(ctx, userID)
}

// Invalidate drops the cached snapshot and queues a background refresh.
// Called after a mutation that changes the user's roles or profile; if the
// queue is full the enqueue is skipped, the stale entry is already gone and
// the next Snapshot call fetches fresh data anyway.
func (m *Manager) Invalidate(ctx context.Context, userID string) {
	m.mu.Lock()
	delete(m.local, userID)
	m.mu.Unlock()
	if m.redis != nil {
		if err := m.redis.Del(ctx, snapshotKey(userID)).Err(); err != nil {
			log.Printf("session: redis del for %s failed: %v", userID, err)
		}
	}
	select {
	case m.queue <- userID:
	default:
	}
}

func (m *Manager) fetch(ctx context.Context, userID string) (Snapshot, error) {
	profile, err := m.src.GetProfile(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	roles, err := m.src.ListRoles(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	primary := model.PrimaryRole(roles)
	snap := Snapshot{
		UserID:      userID,
		Email:       profile.Email,
		FullName:    profile.FullName,
		AvatarURL:   profile.AvatarURL,
		SchoolID:    profile.SchoolID,
		Roles:       roles,
		PrimaryRole: primary,
		Dashboard:   primary.Dashboard(),
		FetchedAt:   time.Now().UTC(),
	}
	m.storeLocal(snap)
	if m.redis != nil {
		raw, err := json.Marshal(snap)
		if err == nil {
			if err := m.redis.Set(ctx, snapshotKey(userID), raw, m.ttl).Err(); err != nil {
				log.Printf("session: redis set for %s failed: %v", userID, err)
			}
		}
	}
	return snap, nil
}

func (m *Manager) storeLocal(snap Snapshot) {
	m.mu.Lock()
	m.local[snap.UserID] = cacheEntry{snap: snap, expiresAt: time.Now().Add(m.ttl)}
	m.mu.Unlock()
}

func snapshotKey(userID string) string {
	return "session:snapshot:" + userID
}
