// Package session содержит хранителя сессии: кто сейчас вошёл на устройстве.
//
// Сессия не зависит от хранилища пользователей: выход не удаляет данные,
// а удаление аккаунта всегда очищает сессию.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/stream"
)

// Holder хранит текущую сессию и публикует её изменения.
type Holder struct {
	storage Storage
	logger  *zap.Logger
	now     func() time.Time

	// mu сериализует запись: значение публикуется только после сохранения.
	mu      sync.Mutex
	current *stream.Subject[model.Session]
}

// Option настраивает Holder.
type Option func(*Holder)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(h *Holder) { h.now = now }
}

// NewHolder загружает сохранённую сессию и создаёт хранителя.
func NewHolder(ctx context.Context, storage Storage, logger *zap.Logger, opts ...Option) (*Holder, error) {
	h := &Holder{
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}

	s, err := storage.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	h.current = stream.NewSubject(s)
	return h, nil
}

// Login перезаписывает сессию данными пользователя.
func (h *Holder) Login(ctx context.Context, userID int64, email, name string) error {
	if userID == model.NoUser {
		return model.Validation("session.Login", "user id is required")
	}
	now := h.now()
	return h.write(ctx, func(model.Session) model.Session {
		return model.Session{
			UserID:       userID,
			Email:        email,
			Name:         name,
			LoggedIn:     true,
			LoginAt:      now,
			LastActiveAt: now,
		}
	})
}

// Logout сбрасывает сессию. Повторный вызов ничего не меняет.
func (h *Holder) Logout(ctx context.Context) error {
	return h.write(ctx, func(model.Session) model.Session {
		return model.EmptySession()
	})
}

// OnAccountDeleted очищает сессию после удаления или деактивации пользователя.
func (h *Holder) OnAccountDeleted(ctx context.Context) error {
	return h.Logout(ctx)
}

// Touch обновляет время последней активности.
func (h *Holder) Touch(ctx context.Context) error {
	now := h.now()
	return h.write(ctx, func(s model.Session) model.Session {
		if s.LoggedIn {
			s.LastActiveAt = now
		}
		return s
	})
}

// UpdateProfile обновляет кэшированные email и имя без повторного входа.
func (h *Holder) UpdateProfile(ctx context.Context, email, name string) error {
	return h.write(ctx, func(s model.Session) model.Session {
		if s.LoggedIn {
			s.Email = email
			s.Name = name
		}
		return s
	})
}

func (h *Holder) write(ctx context.Context, fn func(model.Session) model.Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := fn(h.current.Value())
	if err := h.storage.Save(ctx, next); err != nil {
		h.logger.Error("failed to save session", zap.Error(err))
		return model.E(model.KindStorage, "session.save", "", err)
	}
	h.current.Set(next)
	return nil
}

// Info возвращает снимок сессии.
func (h *Holder) Info() model.Session {
	return h.current.Value()
}

// ActiveUserID возвращает id активного пользователя или model.NoUser.
func (h *Holder) ActiveUserID() int64 {
	return activeID(h.current.Value())
}

// IsLoggedIn сообщает, установлен ли признак входа.
func (h *Holder) IsLoggedIn() bool {
	return h.current.Value().LoggedIn
}

// IsSessionValid проверяет вход и срок действия сессии.
func (h *Holder) IsSessionValid() bool {
	return h.current.Value().IsValid(h.now())
}

// Watch возвращает поток сессий, начиная с текущей.
func (h *Holder) Watch(ctx context.Context) <-chan model.Session {
	return h.current.Subscribe(ctx)
}

// ActiveUserIDs возвращает поток id активного пользователя без повторов подряд.
func (h *Holder) ActiveUserIDs() stream.Source[int64] {
	return stream.Distinct(stream.Map(h.current.Source(), activeID))
}

// WatchActiveUserID подписывается на id активного пользователя.
func (h *Holder) WatchActiveUserID(ctx context.Context) <-chan int64 {
	return h.ActiveUserIDs()(ctx)
}

func activeID(s model.Session) int64 {
	if !s.LoggedIn {
		return model.NoUser
	}
	return s.UserID
}
