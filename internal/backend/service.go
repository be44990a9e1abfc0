package backend

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/auth"
	"github.com/mmeshcher/pastry-storefront/internal/metrics"
	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/validation"
)

// Режимы удаления учётной записи.
const (
	DeleteHard = "hard"
	DeleteSoft = "soft"
)

// OrderSource помечает заказы, созданные через API, в метриках.
const OrderSource = "api"

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, u model.User) (int64, error)
	UserByEmail(ctx context.Context, email string) (model.User, error)
	UserByID(ctx context.Context, id int64) (model.User, error)
	UpdateUser(ctx context.Context, u model.User) error
	SoftDeleteUser(ctx context.Context, id int64) error
	DeleteUser(ctx context.Context, id int64) error
	Products(ctx context.Context) ([]model.Product, error)
	CartLines(ctx context.Context, userID int64) ([]model.CartLine, error)
	AddCartLine(ctx context.Context, l model.CartLine) error
	DeleteCartLine(ctx context.Context, userID int64, productID string) error
	PlaceOrder(ctx context.Context, o model.Order) (int64, error)
	Orders(ctx context.Context, userID int64) ([]model.Order, error)
	OrderByID(ctx context.Context, id int64) (model.Order, error)
	AdvanceOrderStatus(ctx context.Context, id int64, from, to model.OrderStatus) (bool, error)
	SetOrderReview(ctx context.Context, id int64, review string) error
	OrdersInProgress(ctx context.Context, limit int) ([]model.Order, error)
}

var _ Repository = (*PostgresRepository)(nil)

// Service содержит бизнес-логику сервера витрины.
type Service struct {
	repo    Repository
	hasher  auth.Hasher
	logger  *zap.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewService создаёт сервис. rec может быть nil.
func NewService(repo Repository, hasher auth.Hasher, logger *zap.Logger, rec metrics.Recorder) *Service {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Service{
		repo:    repo,
		hasher:  hasher,
		logger:  logger,
		metrics: rec,
		now:     time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func invalidCredentials(op string) error {
	return model.E(model.KindAuth, op, model.ErrInvalidCredentials.Message, nil)
}

func validateProfile(op string, u model.User) error {
	if strings.TrimSpace(u.FirstName) == "" || strings.TrimSpace(u.LastName) == "" || u.Email == "" {
		return model.Validation(op, "name and email are required")
	}
	if !validation.IsValidEmail(u.Email) {
		return model.Validation(op, "invalid email format")
	}
	if u.Phone != "" && !validation.IsValidPhone(u.Phone) {
		return model.Validation(op, "phone must contain 8 digits")
	}
	return nil
}

// RegisterUser создаёт пользователя и возвращает его профиль.
func (s *Service) RegisterUser(ctx context.Context, u model.User, password string) (model.User, error) {
	const op = "backend.RegisterUser"

	u.Email = validation.NormalizeEmail(u.Email)
	if err := validateProfile(op, u); err != nil {
		return model.User{}, err
	}
	if len(password) < validation.MinPasswordLength {
		return model.User{}, model.Validation(op, "password is too short")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return model.User{}, model.E(model.KindStorage, op, "hash password", err)
	}
	u.PasswordHash = hash
	u.Active = true

	id, err := s.repo.CreateUser(ctx, u)
	if err != nil {
		return model.User{}, err
	}
	u.ID = id
	return u, nil
}

// AuthenticateUser проверяет email и пароль. Неизвестный email, неверный пароль и
// неактивный пользователь дают одну и ту же ошибку.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (model.User, error) {
	const op = "backend.AuthenticateUser"

	u, err := s.repo.UserByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		if model.KindOf(err) == model.KindNotFound {
			return model.User{}, invalidCredentials(op)
		}
		return model.User{}, err
	}
	if !u.Active || !s.hasher.Verify(u.PasswordHash, password) {
		return model.User{}, invalidCredentials(op)
	}
	return u, nil
}

// User возвращает профиль активного пользователя.
func (s *Service) User(ctx context.Context, id int64) (model.User, error) {
	const op = "backend.User"

	u, err := s.repo.UserByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if !u.Active {
		return model.User{}, model.E(model.KindNotFound, op, model.ErrNotFound.Message, nil)
	}
	return u, nil
}

// UpdateProfile сохраняет профиль пользователя.
func (s *Service) UpdateProfile(ctx context.Context, u model.User) (model.User, error) {
	const op = "backend.UpdateProfile"

	u.Email = validation.NormalizeEmail(u.Email)
	if err := validateProfile(op, u); err != nil {
		return model.User{}, err
	}
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return model.User{}, err
	}
	return s.repo.UserByID(ctx, u.ID)
}

// DeleteAccount удаляет учётную запись после проверки пароля.
// Пустой mode означает мягкое удаление.
func (s *Service) DeleteAccount(ctx context.Context, id int64, password, mode string) error {
	const op = "backend.DeleteAccount"

	if mode == "" {
		mode = DeleteSoft
	}
	if mode != DeleteHard && mode != DeleteSoft {
		return model.Validation(op, "unknown delete mode")
	}

	u, err := s.repo.UserByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return invalidCredentials(op)
	}

	if mode == DeleteHard {
		return s.repo.DeleteUser(ctx, id)
	}
	return s.repo.SoftDeleteUser(ctx, id)
}

// Products возвращает каталог.
func (s *Service) Products(ctx context.Context) ([]model.Product, error) {
	return s.repo.Products(ctx)
}

// Cart возвращает корзину пользователя.
func (s *Service) Cart(ctx context.Context, userID int64) ([]model.CartLine, error) {
	return s.repo.CartLines(ctx, userID)
}

// AddToCart добавляет позицию в корзину пользователя.
func (s *Service) AddToCart(ctx context.Context, userID int64, l model.CartLine) error {
	const op = "backend.AddToCart"

	l.ProductID = strings.TrimSpace(l.ProductID)
	if l.ProductID == "" || l.Quantity < 1 {
		return model.Validation(op, "product and positive quantity are required")
	}
	l.UserID = userID
	return s.repo.AddCartLine(ctx, l)
}

// RemoveFromCart удаляет товар из корзины пользователя.
func (s *Service) RemoveFromCart(ctx context.Context, userID int64, productID string) error {
	return s.repo.DeleteCartLine(ctx, userID, productID)
}

// PlaceOrder создаёт заказ и очищает корзину пользователя одной транзакцией.
func (s *Service) PlaceOrder(ctx context.Context, userID int64, o model.Order) (int64, error) {
	const op = "backend.PlaceOrder"

	o.ShippingAddress = strings.TrimSpace(o.ShippingAddress)
	switch {
	case o.TotalAmount <= 0:
		return model.NoOrder, model.Validation(op, "total must be positive")
	case !o.PaymentMethod.Valid():
		return model.NoOrder, model.Validation(op, "unknown payment method")
	case o.ShippingAddress == "":
		return model.NoOrder, model.Validation(op, "shipping address is required")
	}
	if o.PaymentMethod == model.PaymentCash {
		o.CardRef = ""
	}

	now := s.now().UTC()
	o.UserID = userID
	o.Status = model.OrderStatusPending
	o.CreatedAt = now
	o.DeliveryDate = now.Add(model.DeliveryDelay)

	id, err := s.repo.PlaceOrder(ctx, o)
	if err != nil {
		return model.NoOrder, err
	}
	s.metrics.RecordOrderPlaced(OrderSource)
	return id, nil
}

// Orders возвращает заказы пользователя.
func (s *Service) Orders(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.Orders(ctx, userID)
}

func (s *Service) ownOrder(ctx context.Context, op string, userID, id int64) (model.Order, error) {
	o, err := s.repo.OrderByID(ctx, id)
	if err != nil {
		return model.Order{}, err
	}
	if o.UserID != userID {
		return model.Order{}, model.E(model.KindNotFound, op, model.ErrNotFound.Message, nil)
	}
	return o, nil
}

// UpdateOrderStatus переводит заказ пользователя в статус to.
// Допускается только следующий этап. Повтор текущего статуса ничего не меняет.
func (s *Service) UpdateOrderStatus(ctx context.Context, userID, id int64, to model.OrderStatus) error {
	const op = "backend.UpdateOrderStatus"

	if !to.Valid() {
		return model.Validation(op, "unknown order status")
	}

	o, err := s.ownOrder(ctx, op, userID, id)
	if err != nil {
		return err
	}
	if o.Status == to {
		return nil
	}
	if !o.Status.CanAdvanceTo(to) {
		return model.E(model.KindInvalidState, op, model.ErrStatusConflict.Message, nil)
	}

	ok, err := s.repo.AdvanceOrderStatus(ctx, id, o.Status, to)
	if err != nil {
		return err
	}
	if !ok {
		return model.E(model.KindInvalidState, op, model.ErrStatusConflict.Message, nil)
	}
	s.metrics.RecordStatusTransition(o.Status, to)
	return nil
}

// SubmitReview сохраняет отзыв к доставленному заказу пользователя.
func (s *Service) SubmitReview(ctx context.Context, userID, id int64, review string) error {
	const op = "backend.SubmitReview"

	review = strings.TrimSpace(review)
	if review == "" {
		return model.Validation(op, "review is empty")
	}
	if _, err := s.ownOrder(ctx, op, userID, id); err != nil {
		return err
	}
	return s.repo.SetOrderReview(ctx, id, review)
}

// InProgress возвращает недоставленные заказы для исполнителя смены статусов.
func (s *Service) InProgress(ctx context.Context, limit int) ([]model.Order, error) {
	return s.repo.OrdersInProgress(ctx, limit)
}

// Advance продвигает заказ на один этап независимо от владельца.
func (s *Service) Advance(ctx context.Context, id int64) (model.OrderStatus, error) {
	const op = "backend.Advance"

	o, err := s.repo.OrderByID(ctx, id)
	if err != nil {
		return "", err
	}
	next, ok := o.Status.Next()
	if !ok {
		return o.Status, model.E(model.KindInvalidState, op, model.ErrStatusConflict.Message, nil)
	}

	advanced, err := s.repo.AdvanceOrderStatus(ctx, id, o.Status, next)
	if err != nil {
		return o.Status, err
	}
	if !advanced {
		return o.Status, model.E(model.KindInvalidState, op, model.ErrStatusConflict.Message, nil)
	}
	return next, nil
}
