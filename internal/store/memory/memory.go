// Package memory is an in-process Repository, used as the fallback mirror
// and in tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/frahmantamala/leave-portal/internal/core/leave"
	"github.com/frahmantamala/leave-portal/internal/core/user"
	"github.com/frahmantamala/leave-portal/internal/quota"
	"github.com/frahmantamala/leave-portal/internal/store"
)

type state struct {
	users      map[string]*user.User
	requests   map[string]*leave.Request
	accessCode string
	hasCode    bool
}

func (s *state) clone() *state {
	out := &state{
		users:      make(map[string]*user.User, len(s.users)),
		requests:   make(map[string]*leave.Request, len(s.requests)),
		accessCode: s.accessCode,
		hasCode:    s.hasCode,
	}
	for id, u := range s.users {
		out.users[id] = copyUser(u)
	}
	for id, r := range s.requests {
		out.requests[id] = copyRequest(r)
	}
	return out
}

// Store keeps every record in maps guarded by one mutex. Values are copied
// on the way in and out so callers never share memory with the store.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{
		st:  &state{users: map[string]*user.User{}, requests: map[string]*leave.Request{}},
		now: time.Now,
	}
}

func (s *Store) ListUsers(ctx context.Context) ([]*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listUsers(s.st), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUser(s.st, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUserByEmail(s.st, email)
}

func (s *Store) UpsertUser(ctx context.Context, u *user.User) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertUser(s.st, u, s.now())
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteUser(s.st, id)
}

func (s *Store) SetUserQuotas(ctx context.Context, id string, quotas quota.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setUserQuotas(s.st, id, quotas, s.now())
}

func (s *Store) ListLeaveRequests(ctx context.Context, filter store.LeaveFilter) ([]*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRequests(s.st, filter), nil
}

func (s *Store) GetLeaveRequest(ctx context.Context, id string) (*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRequest(s.st, id)
}

func (s *Store) CreateLeaveRequest(ctx context.Context, r *leave.Request) (*leave.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createRequest(s.st, r, s.now())
}

func (s *Store) SetLeaveRequestStatus(ctx context.Context, id string, status leave.Status, d leave.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setRequestStatus(s.st, id, status, d)
}

func (s *Store) GetAccessCode(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.st.hasCode {
		return "", store.ErrNotFound
	}
	return s.st.accessCode, nil
}

func (s *Store) SetAccessCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.accessCode, s.st.hasCode = code, true
	return nil
}

// WithinTx holds the write lock for the whole of fn and restores a snapshot
// when fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&txView{st: s.st, now: s.now}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// txView runs against state already locked by WithinTx.
type txView struct {
	st  *state
	now func() time.Time
}

func (t *txView) ListUsers(ctx context.Context) ([]*user.User, error) {
	return listUsers(t.st), nil
}

func (t *txView) GetUser(ctx context.Context, id string) (*user.User, error) {
	return getUser(t.st, id)
}

func (t *txView) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return getUserByEmail(t.st, email)
}

func (t *txView) UpsertUser(ctx context.Context, u *user.User) (*user.User, error) {
	return upsertUser(t.st, u, t.now())
}

func (t *txView) DeleteUser(ctx context.Context, id string) error {
	return deleteUser(t.st, id)
}

func (t *txView) SetUserQuotas(ctx context.Context, id string, quotas quota.Set) error {
	return setUserQuotas(t.st, id, quotas, t.now())
}

func (t *txView) ListLeaveRequests(ctx context.Context, filter store.LeaveFilter) ([]*leave.Request, error) {
	return listRequests(t.st, filter), nil
}

func (t *txView) GetLeaveRequest(ctx context.Context, id string) (*leave.Request, error) {
	return getRequest(t.st, id)
}

func (t *txView) CreateLeaveRequest(ctx context.Context, r *leave.Request) (*leave.Request, error) {
	return createRequest(t.st, r, t.now())
}

func (t *txView) SetLeaveRequestStatus(ctx context.Context, id string, status leave.Status, d leave.Decision) error {
	return setRequestStatus(t.st, id, status, d)
}

func (t *txView) GetAccessCode(ctx context.Context) (string, error) {
	if !t.st.hasCode {
		return "", store.ErrNotFound
	}
	return t.st.accessCode, nil
}

func (t *txView) SetAccessCode(ctx context.Context, code string) error {
	t.st.accessCode, t.st.hasCode = code, true
	return nil
}

// nested units of work join the outer one
func (t *txView) WithinTx(ctx context.Context, fn func(tx store.Repository) error) error {
	return fn(t)
}

func listUsers(st *state) []*user.User {
	out := make([]*user.User, 0, len(st.users))
	for _, u := range st.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func getUser(st *state, id string) (*user.User, error) {
	u, ok := st.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyUser(u), nil
}

func getUserByEmail(st *state, email string) (*user.User, error) {
	key := user.NormalizeEmail(email)
	for _, u := range st.users {
		if user.NormalizeEmail(u.Email) == key {
			return copyUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func upsertUser(st *state, u *user.User, now time.Time) (*user.User, error) {
	in := copyUser(u)
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	key := user.NormalizeEmail(in.Email)
	for id, other := range st.users {
		if id != in.ID && user.NormalizeEmail(other.Email) == key {
			return nil, store.ErrConflict
		}
	}
	if existing, ok := st.users[in.ID]; ok {
		in.CreatedAt = existing.CreatedAt
	} else if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now
	st.users[in.ID] = in
	return copyUser(in), nil
}

func deleteUser(st *state, id string) error {
	if _, ok := st.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(st.users, id)
	for rid, r := range st.requests {
		if r.UserID == id {
			delete(st.requests, rid)
		}
	}
	return nil
}

func setUserQuotas(st *state, id string, quotas quota.Set, now time.Time) error {
	u, ok := st.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Quotas = quotas.Clone()
	u.UpdatedAt = now
	return nil
}

func listRequests(st *state, filter store.LeaveFilter) []*leave.Request {
	out := make([]*leave.Request, 0)
	for _, r := range st.requests {
		if filter.Match(r) {
			out = append(out, copyRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppliedAt.Equal(out[j].AppliedAt) {
			return out[i].AppliedAt.After(out[j].AppliedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func getRequest(st *state, id string) (*leave.Request, error) {
	r, ok := st.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyRequest(r), nil
}

func createRequest(st *state, r *leave.Request, now time.Time) (*leave.Request, error) {
	in := copyRequest(r)
	if strings.TrimSpace(in.ID) == "" {
		in.ID = uuid.NewString()
	}
	if _, exists := st.requests[in.ID]; exists {
		return nil, store.ErrConflict
	}
	if in.AppliedAt.IsZero() {
		in.AppliedAt = now
	}
	st.requests[in.ID] = in
	return copyRequest(in), nil
}

func setRequestStatus(st *state, id string, status leave.Status, d leave.Decision) error {
	r, ok := st.requests[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Apply(status, d)
	return nil
}

func copyUser(u *user.User) *user.User {
	out := *u
	out.Quotas = u.Quotas.Clone()
	return &out
}

func copyRequest(r *leave.Request) *leave.Request {
	out := *r
	if r.DecidedAt != nil {
		at := *r.DecidedAt
		out.DecidedAt = &at
	}
	return &out
}
