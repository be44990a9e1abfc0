package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/metrics"
	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/stream"
)

// DeleteMode задаёт способ удаления учётной записи.
type DeleteMode string

const (
	// HardDelete удаляет пользователя вместе с корзиной и заказами.
	HardDelete DeleteMode = "hard"
	// SoftDelete помечает пользователя неактивным и удаляет корзину и заказы.
	SoftDelete DeleteMode = "soft"
)

// Valid сообщает, известен ли способ удаления.
func (m DeleteMode) Valid() bool {
	return m == HardDelete || m == SoftDelete
}

// Users управляет учётными записями устройства.
type Users struct {
	store    UserStore
	sessions Sessions
	remote   UserRemote
	fallback fallback
}

// NewUsers создаёт репозиторий пользователей. remote может быть nil.
func NewUsers(st UserStore, sessions Sessions, remote UserRemote, logger *zap.Logger, rec metrics.Recorder) *Users {
	return &Users{
		store:    st,
		sessions: sessions,
		remote:   remote,
		fallback: newFallback(logger, rec),
	}
}

// Create сохраняет пользователя локально и регистрирует его на сервере.
func (u *Users) Create(ctx context.Context, user model.User, password string) (int64, error) {
	id, err := u.store.CreateUser(ctx, user)
	if err != nil {
		return 0, err
	}

	if enabled(u.remote) {
		if _, err := u.remote.Register(ctx, user, password); err != nil {
			u.fallback.remoteFailed("users.register", err)
		}
	}
	return id, nil
}

// Cache сохраняет локально пользователя, полученного с сервера, под его серверным id.
func (u *Users) Cache(ctx context.Context, user model.User) (int64, error) {
	return u.store.CreateUser(ctx, user)
}

// RemoteLogin проверяет учётные данные на сервере.
// Без настроенного сервера возвращает model.ErrInvalidCredentials.
func (u *Users) RemoteLogin(ctx context.Context, email, password string) (model.User, error) {
	if !enabled(u.remote) {
		return model.User{}, model.ErrInvalidCredentials
	}
	user, err := u.remote.Login(ctx, email, password)
	if err != nil {
		if model.KindOf(err) == model.KindConnectivity {
			u.fallback.remoteFailed("users.login", err)
		}
		return model.User{}, err
	}
	return user, nil
}

// ByEmail возвращает пользователя по email.
func (u *Users) ByEmail(ctx context.Context, email string) (model.User, error) {
	return u.store.UserByEmail(ctx, email)
}

// ByID возвращает пользователя по id.
func (u *Users) ByID(ctx context.Context, id int64) (model.User, error) {
	return u.store.UserByID(ctx, id)
}

// EmailExists сообщает, занят ли email локально.
func (u *Users) EmailExists(ctx context.Context, email string) (bool, error) {
	return u.store.EmailExists(ctx, email)
}

// Update сохраняет профиль и отправляет его на сервер.
func (u *Users) Update(ctx context.Context, user model.User) error {
	if err := u.store.UpdateUser(ctx, user); err != nil {
		return err
	}

	if enabled(u.remote) {
		if err := u.remote.UpdateProfile(ctx, user); err != nil {
			u.fallback.remoteFailed("users.update", err)
		}
	}
	return nil
}

// UpdatePassword сохраняет новый хеш пароля.
func (u *Users) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return u.store.UpdatePassword(ctx, id, passwordHash)
}

// Delete удаляет учётную запись выбранным способом.
func (u *Users) Delete(ctx context.Context, id int64, password string, mode DeleteMode) error {
	var err error
	switch mode {
	case HardDelete:
		err = u.store.DeleteUserCascade(ctx, id)
	case SoftDelete:
		err = u.store.SoftDeleteUser(ctx, id)
	default:
		return model.Validation("users.Delete", "unknown delete mode")
	}
	if err != nil {
		return err
	}

	if enabled(u.remote) {
		if err := u.remote.DeleteAccount(ctx, password, string(mode)); err != nil {
			u.fallback.remoteFailed("users.delete", err)
		}
	}
	return nil
}

// ResetRemoteSession забывает серверную сессию.
func (u *Users) ResetRemoteSession() {
	if u.remote != nil {
		u.remote.ResetSession()
	}
}

// WatchCurrent выдаёт профиль активного пользователя или nil без входа.
func (u *Users) WatchCurrent(ctx context.Context) <-chan *model.User {
	return stream.SwitchMap(u.sessions.ActiveUserIDs(), u.userOf)(ctx)
}

func (u *Users) userOf(id int64) stream.Source[*model.User] {
	if id == model.NoUser {
		return stream.Just[*model.User](nil)
	}
	return func(ctx context.Context) <-chan *model.User {
		return u.store.WatchUser(ctx, id)
	}
}
