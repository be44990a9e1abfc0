// Package service реализует сценарии витрины поверх репозиториев устройства.
package service

import (
	"context"

	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/repository"
)

// Sessions описывает сессию устройства, используемую сервисами.
type Sessions interface {
	Login(ctx context.Context, userID int64, email, name string) error
	Logout(ctx context.Context) error
	OnAccountDeleted(ctx context.Context) error
	UpdateProfile(ctx context.Context, email, name string) error
	ActiveUserID() int64
	IsSessionValid() bool
}

// UserRepository описывает хранилище учётных записей.
type UserRepository interface {
	Create(ctx context.Context, user model.User, password string) (int64, error)
	Cache(ctx context.Context, user model.User) (int64, error)
	RemoteLogin(ctx context.Context, email, password string) (model.User, error)
	ByEmail(ctx context.Context, email string) (model.User, error)
	ByID(ctx context.Context, id int64) (model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, user model.User) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	Delete(ctx context.Context, id int64, password string, mode repository.DeleteMode) error
	ResetRemoteSession()
}

// CartSource отдаёт снимок корзины активного пользователя.
type CartSource interface {
	CurrentLines(ctx context.Context) ([]model.CartLine, error)
}

// OrderPlacer сохраняет заказ атомарно вместе с очисткой корзины,
// если корзина совпадает с переданным снимком.
type OrderPlacer interface {
	Place(ctx context.Context, userID int64, lines []model.CartLine, total float64, method model.PaymentMethod, cardRef, address string) (int64, error)
}

// StatusStore продвигает статусы заказов. Его реализуют и репозиторий устройства, и сервер.
type StatusStore interface {
	InProgress(ctx context.Context, limit int) ([]model.Order, error)
	Advance(ctx context.Context, id int64) (model.OrderStatus, error)
}

var (
	_ UserRepository = (*repository.Users)(nil)
	_ CartSource     = (*repository.Cart)(nil)
	_ OrderPlacer    = (*repository.Orders)(nil)
	_ StatusStore    = (*repository.Orders)(nil)
)
