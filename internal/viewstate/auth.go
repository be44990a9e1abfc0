package viewstate

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/service"
	"github.com/mmeshcher/pastry-storefront/internal/stream"
)

// AuthPhase — этап входа или регистрации.
type AuthPhase int

const (
	AuthIdle AuthPhase = iota
	AuthLoading
	AuthSucceeded
	AuthFailed
)

// AuthState хранит состояние экранов входа и регистрации.
type AuthState struct {
	Phase   AuthPhase
	User    *model.User
	Message string
}

// RegisterForm дополняет данные регистрации подтверждением пароля.
type RegisterForm struct {
	service.Registration
	ConfirmPassword string
}

// Authenticator выполняет вход и регистрацию.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (model.User, error)
	Register(ctx context.Context, r service.Registration) (model.User, error)
}

// ActiveUserWatcher сообщает о смене активного пользователя.
type ActiveUserWatcher interface {
	WatchActiveUserID(ctx context.Context) <-chan int64
}

// Auth держит состояние входа и регистрации.
type Auth struct {
	auth     Authenticator
	sessions ActiveUserWatcher
	logger   *zap.Logger
	state    *stream.Subject[AuthState]
}

// NewAuth создаёт держатель состояния входа.
func NewAuth(auth Authenticator, sessions ActiveUserWatcher, logger *zap.Logger) *Auth {
	return &Auth{
		auth:     auth,
		sessions: sessions,
		logger:   logger,
		state:    stream.NewSubject(AuthState{}),
	}
}

// Watch подписывается на состояние.
func (a *Auth) Watch(ctx context.Context) <-chan AuthState {
	return a.state.Subscribe(ctx)
}

// State возвращает текущее состояние.
func (a *Auth) State() AuthState {
	return a.state.Value()
}

// Run сбрасывает состояние, когда пользователь выходит.
func (a *Auth) Run(ctx context.Context) error {
	for id := range a.sessions.WatchActiveUserID(ctx) {
		if id != model.NoUser {
			continue
		}
		a.state.Update(func(s AuthState) AuthState {
			if s.Phase == AuthLoading {
				return s
			}
			return AuthState{}
		})
	}
	return nil
}

// Login выполняет вход.
func (a *Auth) Login(ctx context.Context, email, password string) error {
	if !a.begin() {
		return nil
	}
	user, err := a.auth.Login(ctx, email, password)
	return a.finish(user, err)
}

// Register проверяет форму и регистрирует пользователя.
func (a *Auth) Register(ctx context.Context, form RegisterForm) error {
	const op = "viewstate.Register"

	if err := service.ValidateRegistration(form.Registration); err != nil {
		return a.fail(err)
	}
	if form.Password != form.ConfirmPassword {
		return a.fail(model.Validation(op, "passwords do not match"))
	}

	if !a.begin() {
		return nil
	}
	user, err := a.auth.Register(ctx, form.Registration)
	return a.finish(user, err)
}

// ClearError убирает сообщение об ошибке.
func (a *Auth) ClearError() {
	a.state.Update(func(s AuthState) AuthState {
		if s.Phase == AuthFailed {
			s.Phase = AuthIdle
		}
		s.Message = ""
		return s
	})
}

// begin переводит состояние в загрузку. Возвращает false, если запрос уже идёт.
func (a *Auth) begin() bool {
	started := false
	a.state.Update(func(s AuthState) AuthState {
		if s.Phase == AuthLoading {
			return s
		}
		started = true
		return AuthState{Phase: AuthLoading}
	})
	return started
}

func (a *Auth) finish(user model.User, err error) error {
	if err != nil {
		if model.KindOf(err) == model.KindStorage || model.KindOf(err) == model.KindConnectivity {
			a.logger.Error("authentication failed", zap.Error(err))
		}
		return a.fail(err)
	}
	a.state.Set(AuthState{Phase: AuthSucceeded, User: &user})
	return nil
}

func (a *Auth) fail(err error) error {
	a.state.Set(AuthState{Phase: AuthFailed, Message: Message(err)})
	return err
}
