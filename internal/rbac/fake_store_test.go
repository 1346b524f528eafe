package rbac

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/annotation-backoffice/backoffice/internal/shared"
)

type fakeStore struct {
	mu         sync.Mutex
	perms      map[Permission]int64
	roles      map[Role]int64
	bindings   map[int64]map[int64]struct{}
	userRoles  map[int64][]Role
	nextID     int64
	loadCalls  atomic.Int64
	failOnSync error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		perms:     make(map[Permission]int64),
		roles:     make(map[Role]int64),
		bindings:  make(map[int64]map[int64]struct{}),
		userRoles: make(map[int64][]Role),
	}
}

type fakeTx struct {
	store *fakeStore
	perms map[Permission]int64
	roles map[Role]int64
	binds map[int64]map[int64]struct{}
}

// WithTx stages writes and applies them only when fn succeeds.
func (s *fakeStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &fakeTx{store: s, perms: copyIDs(s.perms), roles: copyIDs(s.roles), binds: make(map[int64]map[int64]struct{})}
	for k, v := range s.bindings {
		inner := make(map[int64]struct{}, len(v))
		for id := range v {
			inner[id] = struct{}{}
		}
		tx.binds[k] = inner
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.perms, s.roles, s.bindings = tx.perms, tx.roles, tx.binds
	return nil
}

func copyIDs[K comparable](in map[K]int64) map[K]int64 {
	out := make(map[K]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (t *fakeTx) EnsurePermission(ctx context.Context, perm Permission) (int64, error) {
	if id, ok := t.perms[perm]; ok {
		return id, nil
	}
	t.store.nextID++
	t.perms[perm] = t.store.nextID
	return t.store.nextID, nil
}

func (t *fakeTx) EnsureRole(ctx context.Context, role Role) (int64, error) {
	if id, ok := t.roles[role]; ok {
		return id, nil
	}
	t.store.nextID++
	t.roles[role] = t.store.nextID
	return t.store.nextID, nil
}

func (t *fakeTx) SyncRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if t.store.failOnSync != nil {
		return t.store.failOnSync
	}
	set := make(map[int64]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		set[id] = struct{}{}
	}
	t.binds[roleID] = set
	return nil
}

func (s *fakeStore) LoadBindings(ctx context.Context) (Bindings, error) {
	s.loadCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	permByID := make(map[int64]Permission, len(s.perms))
	for p, id := range s.perms {
		permByID[id] = p
	}
	out := make(Bindings)
	for role, roleID := range s.roles {
		set := make(PermissionSet)
		for permID := range s.bindings[roleID] {
			set[permByID[permID]] = struct{}{}
		}
		out[role] = set
	}
	return out, nil
}

func (s *fakeStore) ActorRoles(ctx context.Context, userID int64) ([]Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles, ok := s.userRoles[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return roles, nil
}

func (s *fakeStore) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PermissionRecord, 0, len(s.perms))
	for p, id := range s.perms {
		out = append(out, PermissionRecord{ID: id, Name: p, Label: p.Label()})
	}
	return out, nil
}

type erroringSource struct{ err error }

func (e erroringSource) LoadBindings(ctx context.Context) (Bindings, error) {
	return nil, e.err
}

var errBoom = errors.New("boom")
