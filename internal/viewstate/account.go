package viewstate

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/repository"
	"github.com/mmeshcher/pastry-storefront/internal/service"
	"github.com/mmeshcher/pastry-storefront/internal/stream"
)

// AccountState хранит состояние экрана профиля.
type AccountState struct {
	User    *model.User
	Message string
	Notice  string
	// SignedOut выставляется после выхода или удаления учётной записи.
	SignedOut bool
}

// CurrentUserWatcher — живой профиль активного пользователя.
type CurrentUserWatcher interface {
	WatchCurrent(ctx context.Context) <-chan *model.User
}

// AccountManager изменяет учётную запись активного пользователя.
type AccountManager interface {
	UpdateProfile(ctx context.Context, p service.Profile) (model.User, error)
	ChangePassword(ctx context.Context, current, next string) error
	DeleteAccount(ctx context.Context, password string, mode repository.DeleteMode) error
	Logout(ctx context.Context) error
}

// Account держит состояние профиля.
type Account struct {
	users   CurrentUserWatcher
	manager AccountManager
	logger  *zap.Logger
	state   *stream.Subject[AccountState]
}

// NewAccount создаёт держатель профиля.
func NewAccount(users CurrentUserWatcher, manager AccountManager, logger *zap.Logger) *Account {
	return &Account{
		users:   users,
		manager: manager,
		logger:  logger,
		state:   stream.NewSubject(AccountState{}),
	}
}

// Watch подписывается на состояние.
func (a *Account) Watch(ctx context.Context) <-chan AccountState {
	return a.state.Subscribe(ctx)
}

// State возвращает текущее состояние.
func (a *Account) State() AccountState {
	return a.state.Value()
}

// Run следит за профилем активного пользователя.
func (a *Account) Run(ctx context.Context) error {
	for user := range a.users.WatchCurrent(ctx) {
		a.state.Update(func(s AccountState) AccountState {
			s.User = user
			if user != nil {
				s.SignedOut = false
			}
			return s
		})
	}
	return nil
}

// UpdateProfile сохраняет профиль.
func (a *Account) UpdateProfile(ctx context.Context, p service.Profile) error {
	_, err := a.manager.UpdateProfile(ctx, p)
	return a.report(err, "Profil mis à jour")
}

// ChangePassword меняет пароль. next и confirm должны совпадать.
func (a *Account) ChangePassword(ctx context.Context, current, next, confirm string) error {
	if next != confirm {
		return a.report(model.Validation("viewstate.ChangePassword", "passwords do not match"), "")
	}
	return a.report(a.manager.ChangePassword(ctx, current, next), "Mot de passe modifié")
}

// DeleteAccount удаляет учётную запись после подтверждения паролем.
func (a *Account) DeleteAccount(ctx context.Context, password string, mode repository.DeleteMode) error {
	if err := a.manager.DeleteAccount(ctx, password, mode); err != nil {
		return a.report(err, "")
	}
	a.state.Set(AccountState{SignedOut: true, Notice: "Compte supprimé"})
	return nil
}

// Logout завершает сессию.
func (a *Account) Logout(ctx context.Context) error {
	if err := a.manager.Logout(ctx); err != nil {
		return a.report(err, "")
	}
	a.state.Set(AccountState{SignedOut: true})
	return nil
}

func (a *Account) report(err error, notice string) error {
	if err != nil && model.KindOf(err) == model.KindStorage {
		a.logger.Error("account operation failed", zap.Error(err))
	}
	a.state.Update(func(s AccountState) AccountState {
		s.Message = Message(err)
		s.Notice = ""
		if err == nil {
			s.Notice = notice
		}
		return s
	})
	return err
}
