package users

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/text/cases"

	"github.com/annotation-backoffice/backoffice/internal/rbac"
	"github.com/annotation-backoffice/backoffice/internal/shared"
)

// memRepo stages every transaction on a copy and applies it on success.
type memRepo struct {
	mu      sync.Mutex
	users   map[int64]User
	audits  []shared.AuditLog
	nextID  int64
	clock   time.Time
	txCalls int

	failAudit    error
	raceOnInsert bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		users: make(map[int64]User),
		clock: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memRepo) seed(name, email string, role rbac.Role) User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := m.tick()
	u := User{ID: m.nextID, Name: name, Email: email, PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}
	if role != "" {
		u.Roles = []rbac.Role{role}
	}
	m.users[u.ID] = u
	return cloneUser(u)
}

func cloneUser(u User) User {
	u.Roles = append([]rbac.Role(nil), u.Roles...)
	if u.DeletedAt != nil {
		at := *u.DeletedAt
		u.DeletedAt = &at
	}
	return u
}

type memTx struct {
	repo   *memRepo
	users  map[int64]User
	audits []shared.AuditLog
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCalls++
	tx := &memTx{repo: m, users: make(map[int64]User, len(m.users)), audits: append([]shared.AuditLog(nil), m.audits...)}
	for id, u := range m.users {
		tx.users[id] = cloneUser(u)
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.users, m.audits = tx.users, tx.audits
	return nil
}

func (m *memRepo) List(ctx context.Context, filter ListFilter) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	term := cases.Fold().String(strings.TrimSpace(filter.Search))
	out := []User{}
	for _, u := range m.users {
		switch filter.Trashed {
		case TrashedWith:
		case TrashedOnly:
			if !u.Trashed() {
				continue
			}
		default:
			if u.Trashed() {
				continue
			}
		}
		if term != "" &&
			!strings.Contains(cases.Fold().String(u.Name), term) &&
			!strings.Contains(cases.Fold().String(u.Email), term) {
			continue
		}
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) Get(ctx context.Context, id int64, withTrashed bool) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || (u.Trashed() && !withTrashed) {
		return User{}, shared.ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *memRepo) get(id int64) User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneUser(m.users[id])
}

func (t *memTx) Lock(ctx context.Context, id int64) (User, error) {
	u, ok := t.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return cloneUser(u), nil
}

func (t *memTx) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	if t.repo.raceOnInsert {
		return false, nil
	}
	for id, u := range t.users {
		if id != exceptID && u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) Insert(ctx context.Context, nu NewUser) (User, error) {
	for _, u := range t.users {
		if u.Email == nu.Email {
			return User{}, &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
		}
	}
	t.repo.nextID++
	now := t.repo.tick()
	u := User{ID: t.repo.nextID, Name: nu.Name, Email: nu.Email, PasswordHash: nu.PasswordHash, CreatedAt: now, UpdatedAt: now}
	t.users[u.ID] = u
	return cloneUser(u), nil
}

func (t *memTx) Upsert(ctx context.Context, nu NewUser) (User, error) {
	for id, u := range t.users {
		if u.Email == nu.Email {
			u.Name, u.PasswordHash, u.DeletedAt = nu.Name, nu.PasswordHash, nil
			u.UpdatedAt = t.repo.tick()
			t.users[id] = u
			return cloneUser(u), nil
		}
	}
	return t.Insert(ctx, nu)
}

func (t *memTx) Update(ctx context.Context, id int64, c Changes) error {
	u := t.users[id]
	u.Name, u.Email = c.Name, c.Email
	if c.PasswordHash != "" {
		u.PasswordHash = c.PasswordHash
	}
	u.UpdatedAt = t.repo.tick()
	t.users[id] = u
	return nil
}

func (t *memTx) SyncRole(ctx context.Context, userID int64, role rbac.Role) error {
	u, ok := t.users[userID]
	if !ok {
		return errors.New("no such user")
	}
	u.Roles = []rbac.Role{role}
	t.users[userID] = u
	return nil
}

func (t *memTx) SoftDelete(ctx context.Context, id int64) error {
	u := t.users[id]
	now := t.repo.tick()
	u.DeletedAt = &now
	u.UpdatedAt = now
	t.users[id] = u
	return nil
}

func (t *memTx) Restore(ctx context.Context, id int64) error {
	u := t.users[id]
	u.DeletedAt = nil
	u.UpdatedAt = t.repo.tick()
	t.users[id] = u
	return nil
}

func (t *memTx) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	if t.repo.failAudit != nil {
		return t.repo.failAudit
	}
	t.audits = append(t.audits, log)
	return nil
}

type countingRecorder struct {
	mu      sync.Mutex
	allowed map[string]int
	denied  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{allowed: map[string]int{}, denied: map[string]int{}}
}

func (c *countingRecorder) RecordDecision(action string, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if allowed {
		c.allowed[action]++
		return
	}
	c.denied[action]++
}

func plainHasher(password string) (string, error) {
	return "hashed:" + password, nil
}
