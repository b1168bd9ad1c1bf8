package service

import (
	"context"
	"errors"
	"sync"
	"time"
	"venue-server/shared/models"

	"github.com/google/uuid"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// memUsers is an in-memory UserRepository.
type memUsers struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*models.Subject
	deleted []uuid.UUID
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[uuid.UUID]*models.Subject)}
}

func (m *memUsers) CreateUser(_ context.Context, u *models.Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return models.ErrEmailAlreadyExists
		}
		if existing.Username == u.Username {
			return models.ErrUserAlreadyExists
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) find(match func(*models.Subject) bool) (*models.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (m *memUsers) GetUserByID(_ context.Context, id uuid.UUID) (*models.Subject, error) {
	return m.find(func(u *models.Subject) bool { return u.ID == id })
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*models.Subject, error) {
	return m.find(func(u *models.Subject) bool { return u.Email == email })
}

func (m *memUsers) GetUserByUsername(_ context.Context, username string) (*models.Subject, error) {
	return m.find(func(u *models.Subject) bool { return u.Username == username })
}

func (m *memUsers) update(id uuid.UUID, fn func(*models.Subject)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return models.ErrUserNotFound
	}
	fn(u)
	return nil
}

func (m *memUsers) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	return m.update(id, func(u *models.Subject) { u.PasswordHash = hash })
}

func (m *memUsers) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	return m.update(id, func(u *models.Subject) { u.LastLoginAt = &at })
}

func (m *memUsers) SetRestriction(_ context.Context, id uuid.UUID, until *time.Time) error {
	return m.update(id, func(u *models.Subject) { u.RestrictedUntil = until })
}

func (m *memUsers) DeleteUser(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return models.ErrUserNotFound
	}
	delete(m.byID, id)
	m.deleted = append(m.deleted, id)
	return nil
}

// memStore is an in-memory CredentialStore; Rotate is atomic under the mutex.
type memStore struct {
	mu      sync.Mutex
	tokens  map[string]*models.RefreshRecord
	users   *memUsers
	clock   *fakeClock
	failAll error
}

func newMemStore(users *memUsers, clock *fakeClock) *memStore {
	return &memStore{tokens: make(map[string]*models.RefreshRecord), users: users, clock: clock}
}

func (m *memStore) Save(_ context.Context, subjectID uuid.UUID, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	m.tokens[token] = &models.RefreshRecord{SubjectID: subjectID, IssuedAt: now, ExpiresAt: now.Add(ttl)}
	return nil
}

func (m *memStore) FindByToken(ctx context.Context, token string) (*models.RefreshRecord, error) {
	m.mu.Lock()
	rec, ok := m.tokens[token]
	m.mu.Unlock()
	if !ok || !rec.ExpiresAt.After(m.clock.Now()) {
		return nil, models.ErrTokenNotFound
	}
	cp := *rec
	if u, err := m.users.GetUserByID(ctx, rec.SubjectID); err == nil {
		cp.RestrictedUntil = u.RestrictedUntil
	}
	return &cp, nil
}

func (m *memStore) DeleteByToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}

func (m *memStore) DeleteAllForSubject(_ context.Context, subjectID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return 0, m.failAll
	}
	var n int64
	for tok, rec := range m.tokens {
		if rec.SubjectID == subjectID {
			delete(m.tokens, tok)
			n++
		}
	}
	return n, nil
}

func (m *memStore) Rotate(_ context.Context, oldToken string, subjectID uuid.UUID, newToken string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[oldToken]
	if !ok || rec.SubjectID != subjectID {
		return models.ErrTokenNotFound
	}
	delete(m.tokens, oldToken)
	now := m.clock.Now()
	m.tokens[newToken] = &models.RefreshRecord{SubjectID: subjectID, IssuedAt: now, ExpiresAt: now.Add(ttl)}
	return nil
}

func (m *memStore) countFor(subjectID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.tokens {
		if rec.SubjectID == subjectID {
			n++
		}
	}
	return n
}

type fakeProfiles struct {
	err   error
	calls int
}

func (f *fakeProfiles) CreateProfile(context.Context, *models.Subject) error {
	f.calls++
	return f.err
}

type recordingEvents struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (r *recordingEvents) PublishSessionEvent(_ context.Context, e models.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return errors.New("broker down")
}

func (r *recordingEvents) reasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, string(e.Type)+":"+e.Reason)
	}
	return out
}
