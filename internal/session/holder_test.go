package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/model"
)

type stubStorage struct {
	mu      sync.Mutex
	saved   model.Session
	saves   int
	saveErr error
}

func (s *stubStorage) Load(context.Context) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saves == 0 {
		return model.EmptySession(), nil
	}
	return s.saved, nil
}

func (s *stubStorage) Save(_ context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = sess
	s.saves++
	return nil
}

func newTestHolder(t *testing.T, storage Storage, now time.Time) *Holder {
	t.Helper()
	h, err := NewHolder(context.Background(), storage, zap.NewNop(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return h
}

func nextID(t *testing.T, ch <-chan int64) int64 {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(time.Second):
		t.Fatal("no user id emitted")
	}
	return 0
}

func TestHolder_LoginSwitchesActiveUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newTestHolder(t, &stubStorage{}, time.Now())
	ids := h.WatchActiveUserID(ctx)
	assert.Equal(t, model.NoUser, nextID(t, ids))

	require.NoError(t, h.Login(ctx, 1, "a@x.com", "A"))
	assert.Equal(t, int64(1), h.ActiveUserID())
	assert.Equal(t, int64(1), nextID(t, ids))

	require.NoError(t, h.Login(ctx, 2, "b@x.com", "B"))
	assert.Equal(t, int64(2), h.ActiveUserID())
	assert.Equal(t, int64(2), nextID(t, ids))

	info := h.Info()
	assert.Equal(t, "b@x.com", info.Email)
	assert.True(t, info.LoggedIn)
}

func TestHolder_LogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newTestHolder(t, &stubStorage{}, time.Now())

	require.NoError(t, h.Login(ctx, 5, "a@x.com", "A"))
	require.NoError(t, h.Logout(ctx))
	first := h.Info()
	require.NoError(t, h.Logout(ctx))

	assert.Equal(t, first, h.Info())
	assert.Equal(t, model.EmptySession(), h.Info())
	assert.Equal(t, model.NoUser, h.ActiveUserID())
	assert.False(t, h.IsLoggedIn())
}

func TestHolder_OnAccountDeletedClearsSession(t *testing.T) {
	ctx := context.Background()
	h := newTestHolder(t, &stubStorage{}, time.Now())

	require.NoError(t, h.Login(ctx, 5, "a@x.com", "A"))
	require.NoError(t, h.OnAccountDeleted(ctx))
	assert.Equal(t, model.NoUser, h.ActiveUserID())
}

func TestHolder_SaveFailureKeepsPreviousValue(t *testing.T) {
	ctx := context.Background()
	storage := &stubStorage{}
	h := newTestHolder(t, storage, time.Now())

	require.NoError(t, h.Login(ctx, 3, "a@x.com", "A"))

	storage.saveErr = errors.New("disk full")
	err := h.Login(ctx, 4, "b@x.com", "B")

	require.Error(t, err)
	assert.Equal(t, model.KindStorage, model.KindOf(err))
	assert.Equal(t, int64(3), h.ActiveUserID())
}

func TestHolder_RejectsSentinelLogin(t *testing.T) {
	h := newTestHolder(t, &stubStorage{}, time.Now())
	err := h.Login(context.Background(), model.NoUser, "a@x.com", "A")
	assert.Equal(t, model.KindValidation, model.KindOf(err))
}

func TestHolder_IsSessionValid(t *testing.T) {
	ctx := context.Background()
	loginAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := loginAt

	storage := &stubStorage{}
	h, err := NewHolder(ctx, storage, zap.NewNop(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	assert.False(t, h.IsSessionValid())

	require.NoError(t, h.Login(ctx, 9, "a@x.com", "A"))
	assert.True(t, h.IsSessionValid())

	now = loginAt.Add(29 * 24 * time.Hour)
	assert.True(t, h.IsSessionValid())

	now = loginAt.Add(model.SessionTTL + time.Minute)
	assert.False(t, h.IsSessionValid())
}

func TestHolder_TouchAndUpdateProfile(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := start
	h, err := NewHolder(ctx, &stubStorage{}, zap.NewNop(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	require.NoError(t, h.Touch(ctx))
	assert.True(t, h.Info().LastActiveAt.IsZero(), "touch without login changes nothing")

	require.NoError(t, h.Login(ctx, 1, "a@x.com", "A"))
	now = start.Add(time.Hour)
	require.NoError(t, h.Touch(ctx))
	assert.Equal(t, now, h.Info().LastActiveAt)
	assert.Equal(t, start, h.Info().LoginAt)

	require.NoError(t, h.UpdateProfile(ctx, "new@x.com", "New Name"))
	assert.Equal(t, "new@x.com", h.Info().Email)
	assert.Equal(t, "New Name", h.Info().Name)
}

func TestHolder_RestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	h := newTestHolder(t, NewFileStorage(path), time.Now())
	require.NoError(t, h.Login(ctx, 12, "a@x.com", "A"))

	restored := newTestHolder(t, NewFileStorage(path), time.Now())
	assert.Equal(t, int64(12), restored.ActiveUserID())
	assert.Equal(t, "a@x.com", restored.Info().Email)
}

func TestFileStorage(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	fs := NewFileStorage(path)

	s, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.EmptySession(), s)

	loginAt := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	want := model.Session{
		UserID:       42,
		Email:        "a@x.com",
		Name:         "Amira",
		LoggedIn:     true,
		LoginAt:      loginAt,
		LastActiveAt: loginAt,
	}
	require.NoError(t, fs.Save(ctx, want))

	got, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.UserID, got.UserID)
	assert.Equal(t, want.Email, got.Email)
	assert.True(t, want.LoginAt.Equal(got.LoginAt))

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".session-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
