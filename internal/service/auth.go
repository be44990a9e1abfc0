package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/auth"
	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/repository"
	"github.com/mmeshcher/pastry-storefront/internal/validation"
)

// MinPasswordLength — минимальная длина пароля.
const MinPasswordLength = validation.MinPasswordLength

// Registration содержит данные формы регистрации.
type Registration struct {
	FirstName string
	LastName  string
	Email     string
	Address   string
	Phone     string
	Password  string
}

// Profile содержит изменяемые поля профиля.
type Profile struct {
	FirstName string
	LastName  string
	Email     string
	Address   string
	Phone     string
}

// Auth реализует вход, регистрацию и управление учётной записью.
type Auth struct {
	users    UserRepository
	sessions Sessions
	hasher   auth.Hasher
	logger   *zap.Logger
}

// NewAuth создаёт сервис аутентификации.
func NewAuth(users UserRepository, sessions Sessions, hasher auth.Hasher, logger *zap.Logger) *Auth {
	return &Auth{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		logger:   logger,
	}
}

func invalidCredentials(op string) error {
	return model.E(model.KindAuth, op, model.ErrInvalidCredentials.Message, nil)
}

// ValidateRegistration проверяет обязательные поля, формат email и телефона.
func ValidateRegistration(r Registration) error {
	const op = "auth.Register"

	if strings.TrimSpace(r.FirstName) == "" || strings.TrimSpace(r.LastName) == "" ||
		strings.TrimSpace(r.Email) == "" || strings.TrimSpace(r.Address) == "" ||
		strings.TrimSpace(r.Phone) == "" || r.Password == "" {
		return model.Validation(op, "all fields are required")
	}
	if !validation.IsValidEmail(strings.TrimSpace(r.Email)) {
		return model.Validation(op, "invalid email format")
	}
	if !validation.IsValidPhone(strings.TrimSpace(r.Phone)) {
		return model.Validation(op, "phone must contain 8 digits")
	}
	if len(r.Password) < MinPasswordLength {
		return model.Validation(op, "password is too short")
	}
	return nil
}

// Register создаёт пользователя и выполняет вход под ним.
func (a *Auth) Register(ctx context.Context, r Registration) (model.User, error) {
	const op = "auth.Register"

	if err := ValidateRegistration(r); err != nil {
		return model.User{}, err
	}

	email := validation.NormalizeEmail(r.Email)
	exists, err := a.users.EmailExists(ctx, email)
	if err != nil {
		return model.User{}, err
	}
	if exists {
		return model.User{}, model.E(model.KindDuplicate, op, model.ErrDuplicateEmail.Message, nil)
	}

	hash, err := a.hasher.Hash(r.Password)
	if err != nil {
		return model.User{}, model.E(model.KindStorage, op, "", err)
	}

	user := model.User{
		FirstName:    strings.TrimSpace(r.FirstName),
		LastName:     strings.TrimSpace(r.LastName),
		Email:        email,
		Address:      strings.TrimSpace(r.Address),
		Phone:        strings.TrimSpace(r.Phone),
		PasswordHash: hash,
		Active:       true,
	}
	id, err := a.users.Create(ctx, user, r.Password)
	if err != nil {
		return model.User{}, err
	}
	user.ID = id

	if err := a.sessions.Login(ctx, user.ID, user.Email, user.FullName()); err != nil {
		return model.User{}, err
	}

	a.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return user, nil
}

// Login проверяет учётные данные и открывает сессию.
// Неизвестный email и неверный пароль дают одну и ту же ошибку.
func (a *Auth) Login(ctx context.Context, email, password string) (model.User, error) {
	const op = "auth.Login"

	email = validation.NormalizeEmail(email)
	if email == "" || password == "" {
		return model.User{}, model.Validation(op, "email and password are required")
	}

	user, err := a.users.ByEmail(ctx, email)
	switch {
	case err == nil:
		if !user.Active || !a.hasher.Verify(user.PasswordHash, password) {
			return model.User{}, invalidCredentials(op)
		}
		a.rehashIfNeeded(ctx, user, password)
		// Cookie сервера нужна для синхронизации корзины и заказов.
		if _, err := a.users.RemoteLogin(ctx, email, password); err != nil {
			a.logger.Debug("remote login skipped", zap.Error(err))
		}
	case errors.Is(err, model.ErrNotFound):
		user, err = a.loginRemote(ctx, email, password)
		if err != nil {
			return model.User{}, err
		}
	default:
		return model.User{}, err
	}

	if err := a.sessions.Login(ctx, user.ID, user.Email, user.FullName()); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// loginRemote проверяет пароль на сервере и сохраняет пользователя локально.
func (a *Auth) loginRemote(ctx context.Context, email, password string) (model.User, error) {
	const op = "auth.Login"

	user, err := a.users.RemoteLogin(ctx, email, password)
	if err != nil {
		return model.User{}, invalidCredentials(op)
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return model.User{}, model.E(model.KindStorage, op, "", err)
	}
	user.Email = email
	user.PasswordHash = hash
	user.Active = true

	id, err := a.users.Cache(ctx, user)
	if model.KindOf(err) == model.KindDuplicate {
		// id сервера уже занят локальным пользователем.
		user.ID = 0
		id, err = a.users.Cache(ctx, user)
	}
	if err != nil {
		return model.User{}, err
	}
	user.ID = id

	a.logger.Info("user restored from remote", zap.Int64("user_id", id))
	return user, nil
}

func (a *Auth) rehashIfNeeded(ctx context.Context, user model.User, password string) {
	r, ok := a.hasher.(interface{ NeedsRehash(string) bool })
	if !ok || !r.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := a.hasher.Hash(password)
	if err != nil {
		return
	}
	if err := a.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		a.logger.Warn("failed to upgrade password hash", zap.Int64("user_id", user.ID), zap.Error(err))
	}
}

// Logout закрывает сессию устройства и серверную сессию.
func (a *Auth) Logout(ctx context.Context) error {
	if err := a.sessions.Logout(ctx); err != nil {
		return err
	}
	a.users.ResetRemoteSession()
	return nil
}

// CurrentUser возвращает пользователя активной сессии.
// Истёкшая сессия закрывается.
func (a *Auth) CurrentUser(ctx context.Context) (model.User, error) {
	const op = "auth.CurrentUser"

	id := a.sessions.ActiveUserID()
	if id == model.NoUser {
		return model.User{}, model.E(model.KindNotLoggedIn, op, model.ErrNotLoggedIn.Message, nil)
	}
	if !a.sessions.IsSessionValid() {
		if err := a.Logout(ctx); err != nil {
			return model.User{}, err
		}
		return model.User{}, model.E(model.KindNotLoggedIn, op, model.ErrNotLoggedIn.Message, nil)
	}

	return a.users.ByID(ctx, id)
}

// UpdateProfile сохраняет профиль и обновляет имя и email в сессии.
func (a *Auth) UpdateProfile(ctx context.Context, p Profile) (model.User, error) {
	const op = "auth.UpdateProfile"

	user, err := a.CurrentUser(ctx)
	if err != nil {
		return model.User{}, err
	}

	if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" || strings.TrimSpace(p.Email) == "" {
		return model.User{}, model.Validation(op, "name and email are required")
	}
	email := validation.NormalizeEmail(p.Email)
	if !validation.IsValidEmail(email) {
		return model.User{}, model.Validation(op, "invalid email format")
	}
	phone := strings.TrimSpace(p.Phone)
	if phone != "" && !validation.IsValidPhone(phone) {
		return model.User{}, model.Validation(op, "phone must contain 8 digits")
	}

	user.FirstName = strings.TrimSpace(p.FirstName)
	user.LastName = strings.TrimSpace(p.LastName)
	user.Email = email
	user.Address = strings.TrimSpace(p.Address)
	user.Phone = phone

	if err := a.users.Update(ctx, user); err != nil {
		return model.User{}, err
	}
	if err := a.sessions.UpdateProfile(ctx, user.Email, user.FullName()); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// ChangePassword меняет пароль после проверки текущего.
func (a *Auth) ChangePassword(ctx context.Context, current, next string) error {
	const op = "auth.ChangePassword"

	user, err := a.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if !a.hasher.Verify(user.PasswordHash, current) {
		return invalidCredentials(op)
	}
	if len(next) < MinPasswordLength {
		return model.Validation(op, "password is too short")
	}

	hash, err := a.hasher.Hash(next)
	if err != nil {
		return model.E(model.KindStorage, op, "", err)
	}
	return a.users.UpdatePassword(ctx, user.ID, hash)
}

// DeleteAccount удаляет учётную запись после проверки пароля и закрывает сессию.
func (a *Auth) DeleteAccount(ctx context.Context, password string, mode repository.DeleteMode) error {
	const op = "auth.DeleteAccount"

	if !mode.Valid() {
		return model.Validation(op, "unknown delete mode")
	}
	user, err := a.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if !a.hasher.Verify(user.PasswordHash, password) {
		return invalidCredentials(op)
	}

	if err := a.users.Delete(ctx, user.ID, password, mode); err != nil {
		a.logger.Error("failed to delete account", zap.Int64("user_id", user.ID), zap.Error(err))
		return err
	}
	if err := a.sessions.OnAccountDeleted(ctx); err != nil {
		return err
	}
	a.users.ResetRemoteSession()

	a.logger.Info("account deleted", zap.Int64("user_id", user.ID), zap.String("mode", string(mode)))
	return nil
}
