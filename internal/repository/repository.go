// Package repository связывает локальное хранилище, сессию и удалённый сервер.
//
// Локальное хранилище — источник истины. Удалённый сервер вызывается по
// возможности: его недоступность логируется и не считается ошибкой операции.
package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/metrics"
	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/stream"
)

// Sessions отдаёт id активного пользователя.
type Sessions interface {
	ActiveUserID() int64
	ActiveUserIDs() stream.Source[int64]
}

// UserStore хранит пользователей локально.
type UserStore interface {
	CreateUser(ctx context.Context, u model.User) (int64, error)
	UserByEmail(ctx context.Context, email string) (model.User, error)
	UserByID(ctx context.Context, id int64) (model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdateUser(ctx context.Context, u model.User) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	SoftDeleteUser(ctx context.Context, id int64) error
	DeleteUserCascade(ctx context.Context, id int64) error
	WatchUser(ctx context.Context, id int64) <-chan *model.User
}

// CartStore хранит корзины локально.
type CartStore interface {
	CartLines(ctx context.Context, userID int64) ([]model.CartLine, error)
	CartLine(ctx context.Context, userID int64, productID string) (model.CartLine, error)
	InsertCartLine(ctx context.Context, line model.CartLine) (int64, error)
	AdjustCartQuantity(ctx context.Context, userID int64, productID string, delta int) (bool, error)
	DeleteCartLine(ctx context.Context, userID int64, productID string) error
	ClearCart(ctx context.Context, userID int64) error
	WatchCart(ctx context.Context, userID int64) <-chan []model.CartLine
}

// OrderStore хранит заказы локально.
type OrderStore interface {
	UserByID(ctx context.Context, id int64) (model.User, error)
	PlaceOrder(ctx context.Context, o model.Order, lines []model.CartLine) (int64, error)
	Orders(ctx context.Context, userID int64) ([]model.Order, error)
	LastOrder(ctx context.Context, userID int64) (model.Order, error)
	OrderByID(ctx context.Context, id int64) (model.Order, error)
	AdvanceOrderStatus(ctx context.Context, id int64, from, to model.OrderStatus) error
	SetOrderReview(ctx context.Context, id int64, review string) error
	SetOrderRemoteID(ctx context.Context, id, remoteID int64) error
	OrdersInProgress(ctx context.Context, limit int) ([]model.Order, error)
	WatchOrders(ctx context.Context, userID int64) <-chan []model.Order
}

// ProductStore хранит локальную копию каталога.
type ProductStore interface {
	Products(ctx context.Context) ([]model.Product, error)
	ProductByID(ctx context.Context, id string) (model.Product, error)
	ProductCount(ctx context.Context) (int, error)
	ReplaceProducts(ctx context.Context, products []model.Product) error
}

type remoteToggle interface {
	Enabled() bool
}

// UserRemote описывает операции сервера с учётными записями.
type UserRemote interface {
	remoteToggle
	Register(ctx context.Context, u model.User, password string) (model.User, error)
	Login(ctx context.Context, email, password string) (model.User, error)
	UpdateProfile(ctx context.Context, u model.User) error
	DeleteAccount(ctx context.Context, password, mode string) error
	ResetSession()
}

type CartRemote interface {
	remoteToggle
	AddToCart(ctx context.Context, line model.CartLine) error
	RemoveFromCart(ctx context.Context, productID string) error
}

type OrderRemote interface {
	remoteToggle
	PlaceOrder(ctx context.Context, o model.Order) (int64, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) error
	SubmitReview(ctx context.Context, id int64, review string) error
}

// CatalogRemote загружает каталог с сервера.
type CatalogRemote interface {
	remoteToggle
	Products(ctx context.Context) ([]model.Product, error)
}

func enabled(r remoteToggle) bool {
	return r != nil && r.Enabled()
}

// fallback фиксирует неудачный удалённый вызов, после которого работа продолжается локально.
type fallback struct {
	logger  *zap.Logger
	metrics metrics.Recorder
}

func newFallback(logger *zap.Logger, rec metrics.Recorder) fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	return fallback{logger: logger, metrics: rec}
}

func (f fallback) remoteFailed(op string, err error) {
	f.logger.Warn("remote call failed, continuing with local data",
		zap.String("op", op),
		zap.Stringer("kind", model.KindOf(err)),
		zap.Error(err),
	)
	f.metrics.RecordRemoteFallback(op)
}

func activeUser(s Sessions, op string) (int64, error) {
	id := s.ActiveUserID()
	if id == model.NoUser {
		return model.NoUser, model.E(model.KindNotLoggedIn, op, model.ErrNotLoggedIn.Message, nil)
	}
	return id, nil
}
