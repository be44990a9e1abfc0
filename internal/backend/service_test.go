package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/pastry-storefront/internal/auth"
	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/service"
)

var _ service.StatusStore = (*Service)(nil)

// memRepo — хранилище в памяти с теми же правилами, что и PostgresRepository.
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]model.User
	cart   map[int64][]model.CartLine
	orders map[int64]model.Order
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:  make(map[int64]model.User),
		cart:   make(map[int64][]model.CartLine),
		orders: make(map[int64]model.Order),
	}
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) CreateUser(_ context.Context, u model.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return 0, model.E(model.KindDuplicate, "mem.CreateUser", model.ErrDuplicateEmail.Message, nil)
		}
	}
	u.ID = m.id()
	m.users[u.ID] = u
	return u.ID, nil
}

func (m *memRepo) UserByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (m *memRepo) UserByID(_ context.Context, id int64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (m *memRepo) UpdateUser(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok {
		return model.ErrNotFound
	}
	u.PasswordHash = existing.PasswordHash
	u.Active = existing.Active
	m.users[u.ID] = u
	return nil
}

func (m *memRepo) SoftDeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.Active = false
	m.users[id] = u
	delete(m.cart, id)
	for oid, o := range m.orders {
		if o.UserID == id {
			delete(m.orders, oid)
		}
	}
	return nil
}

func (m *memRepo) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	delete(m.cart, id)
	for oid, o := range m.orders {
		if o.UserID == id {
			delete(m.orders, oid)
		}
	}
	return nil
}

func (m *memRepo) Products(context.Context) ([]model.Product, error) {
	return []model.Product{{ID: "1", Name: "Cupcake Vanille", Price: 5, Available: true}}, nil
}

func (m *memRepo) CartLines(_ context.Context, userID int64) ([]model.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.CartLine(nil), m.cart[userID]...), nil
}

func (m *memRepo) AddCartLine(_ context.Context, l model.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.cart[l.UserID]
	for i := range lines {
		if lines[i].ProductID == l.ProductID {
			lines[i].Quantity += l.Quantity
			return nil
		}
	}
	l.ID = m.id()
	m.cart[l.UserID] = append(lines, l)
	return nil
}

func (m *memRepo) DeleteCartLine(_ context.Context, userID int64, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.cart[userID][:0]
	for _, l := range m.cart[userID] {
		if l.ProductID != productID {
			lines = append(lines, l)
		}
	}
	m.cart[userID] = lines
	return nil
}

func (m *memRepo) PlaceOrder(_ context.Context, o model.Order) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = m.id()
	m.orders[o.ID] = o
	delete(m.cart, o.UserID)
	return o.ID, nil
}

func (m *memRepo) Orders(_ context.Context, userID int64) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memRepo) OrderByID(_ context.Context, id int64) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, model.ErrNotFound
	}
	return o, nil
}

func (m *memRepo) AdvanceOrderStatus(_ context.Context, id int64, from, to model.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	m.orders[id] = o
	return true, nil
}

func (m *memRepo) SetOrderReview(_ context.Context, id int64, review string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[id]
	if o.Status != model.OrderStatusDelivered {
		return model.E(model.KindInvalidState, "mem.SetOrderReview", model.ErrReviewNotAllowed.Message, nil)
	}
	o.Review = review
	m.orders[id] = o
	return nil
}

func (m *memRepo) OrdersInProgress(_ context.Context, limit int) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Order
	for _, o := range m.orders {
		if !o.Status.IsTerminal() && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	svc := NewService(repo, auth.BcryptHasher{Cost: bcrypt.MinCost}, zap.NewNop(), nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return svc, repo
}

func registerMarie(t *testing.T, svc *Service) model.User {
	t.Helper()
	u, err := svc.RegisterUser(context.Background(), model.User{
		FirstName: "Marie",
		LastName:  "Curie",
		Email:     " Marie@Example.com ",
		Address:   "1 rue des Écoles",
		Phone:     "12345678",
	}, "secret1")
	require.NoError(t, err)
	return u
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	u := registerMarie(t, svc)
	assert.Equal(t, "marie@example.com", u.Email)
	assert.NotEqual(t, "secret1", u.PasswordHash)

	got, err := svc.AuthenticateUser(ctx, "MARIE@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, wrongPassword := svc.AuthenticateUser(ctx, "marie@example.com", "nope")
	_, unknownEmail := svc.AuthenticateUser(ctx, "pierre@example.com", "secret1")
	assert.True(t, errors.Is(wrongPassword, model.ErrInvalidCredentials))
	assert.True(t, errors.Is(unknownEmail, model.ErrInvalidCredentials))
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())

	_, err = svc.RegisterUser(ctx, model.User{FirstName: "M", LastName: "C", Email: "marie@example.com"}, "secret1")
	assert.Equal(t, model.KindDuplicate, model.KindOf(err))
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name     string
		user     model.User
		password string
	}{
		{name: "missing name", user: model.User{LastName: "Curie", Email: "m@example.com"}, password: "secret1"},
		{name: "bad email", user: model.User{FirstName: "Marie", LastName: "Curie", Email: "marie"}, password: "secret1"},
		{name: "bad phone", user: model.User{FirstName: "Marie", LastName: "Curie", Email: "m@example.com", Phone: "123"}, password: "secret1"},
		{name: "short password", user: model.User{FirstName: "Marie", LastName: "Curie", Email: "m@example.com"}, password: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterUser(context.Background(), tt.user, tt.password)
			assert.Equal(t, model.KindValidation, model.KindOf(err))
		})
	}
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	u := registerMarie(t, svc)

	err := svc.DeleteAccount(ctx, u.ID, "wrong", DeleteSoft)
	assert.True(t, errors.Is(err, model.ErrInvalidCredentials))

	err = svc.DeleteAccount(ctx, u.ID, "secret1", "archive")
	assert.Equal(t, model.KindValidation, model.KindOf(err))

	require.NoError(t, svc.DeleteAccount(ctx, u.ID, "secret1", ""))
	_, err = svc.AuthenticateUser(ctx, "marie@example.com", "secret1")
	assert.True(t, errors.Is(err, model.ErrInvalidCredentials), "inactive user must not log in")
	_, err = svc.User(ctx, u.ID)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))

	require.NoError(t, svc.DeleteAccount(ctx, u.ID, "secret1", DeleteHard))
	assert.Empty(t, repo.users)
}

func TestCartAndPlaceOrder(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	u := registerMarie(t, svc)

	require.NoError(t, svc.AddToCart(ctx, u.ID, model.CartLine{ProductID: "1", Name: "Cupcake Vanille", Price: 5, Quantity: 1}))
	require.NoError(t, svc.AddToCart(ctx, u.ID, model.CartLine{ProductID: "1", Name: "Cupcake Vanille", Price: 5, Quantity: 2}))
	assert.Equal(t, model.KindValidation, model.KindOf(svc.AddToCart(ctx, u.ID, model.CartLine{ProductID: "2"})))

	lines, err := svc.Cart(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)

	id, err := svc.PlaceOrder(ctx, u.ID, model.Order{
		TotalAmount:     20,
		PaymentMethod:   model.PaymentCash,
		CardRef:         "**** 1486",
		ShippingAddress: " 1 rue des Écoles ",
	})
	require.NoError(t, err)

	lines, err = svc.Cart(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)

	orders, err := svc.Orders(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, id, o.ID)
	assert.Equal(t, model.OrderStatusPending, o.Status)
	assert.Empty(t, o.CardRef)
	assert.Equal(t, "1 rue des Écoles", o.ShippingAddress)
	assert.Equal(t, o.CreatedAt.Add(model.DeliveryDelay), o.DeliveryDate)
}

func TestPlaceOrderValidation(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name  string
		order model.Order
	}{
		{name: "zero total", order: model.Order{PaymentMethod: model.PaymentCash, ShippingAddress: "a"}},
		{name: "bad method", order: model.Order{TotalAmount: 5, PaymentMethod: "cheque", ShippingAddress: "a"}},
		{name: "no address", order: model.Order{TotalAmount: 5, PaymentMethod: model.PaymentCard, ShippingAddress: "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := svc.PlaceOrder(context.Background(), 1, tt.order)
			assert.Equal(t, model.NoOrder, id)
			assert.Equal(t, model.KindValidation, model.KindOf(err))
		})
	}
}

func TestOrderStatusAndReview(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	u := registerMarie(t, svc)

	id, err := svc.PlaceOrder(ctx, u.ID, model.Order{TotalAmount: 8, PaymentMethod: model.PaymentCash, ShippingAddress: "a"})
	require.NoError(t, err)

	err = svc.SubmitReview(ctx, u.ID, id, "Trop tôt")
	assert.True(t, errors.Is(err, model.ErrReviewNotAllowed))

	err = svc.UpdateOrderStatus(ctx, u.ID, id, model.OrderStatusDelivering)
	assert.Equal(t, model.KindInvalidState, model.KindOf(err), "must not skip a stage")

	err = svc.UpdateOrderStatus(ctx, u.ID+100, id, model.OrderStatusPreparing)
	assert.Equal(t, model.KindNotFound, model.KindOf(err), "foreign order")

	require.NoError(t, svc.UpdateOrderStatus(ctx, u.ID, id, model.OrderStatusPreparing))
	require.NoError(t, svc.UpdateOrderStatus(ctx, u.ID, id, model.OrderStatusPreparing), "repeat is a no-op")

	to, err := svc.Advance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusDelivering, to)
	to, err = svc.Advance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusDelivered, to)

	_, err = svc.Advance(ctx, id)
	assert.Equal(t, model.KindInvalidState, model.KindOf(err))
	err = svc.UpdateOrderStatus(ctx, u.ID, id, model.OrderStatusPending)
	assert.Equal(t, model.KindInvalidState, model.KindOf(err), "must not move backward")

	require.NoError(t, svc.SubmitReview(ctx, u.ID, id, "Délicieux"))
	require.NoError(t, svc.SubmitReview(ctx, u.ID, id, "Excellent"))
	orders, err := svc.Orders(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Excellent", orders[0].Review)

	assert.Equal(t, model.KindValidation, model.KindOf(svc.SubmitReview(ctx, u.ID, id, "  ")))
}

func TestProgressorDrivesBackendOrders(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	u := registerMarie(t, svc)

	id, err := svc.PlaceOrder(ctx, u.ID, model.Order{TotalAmount: 8, PaymentMethod: model.PaymentCash, ShippingAddress: "a"})
	require.NoError(t, err)

	p := service.NewProgressor(svc, time.Second, zap.NewNop(), nil)
	for range 5 {
		p.Tick(ctx)
	}

	orders, err := svc.Orders(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, id, orders[0].ID)
	assert.Equal(t, model.OrderStatusDelivered, orders[0].Status)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, want: true},
		{name: "deadlock", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), want: true},
		{name: "connection failure", err: &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, want: false},
		{name: "refused", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "other", err: errors.New("syntax"), want: false},
		{name: "commit lost connection", err: &commitError{err: errors.New("write tcp: broken pipe")}, want: false},
		{name: "commit conn exception", err: &commitError{err: &pgconn.PgError{Code: pgerrcode.ConnectionFailure}}, want: false},
		{name: "commit serialization", err: &commitError{err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	unique := &pgconn.PgError{Code: pgerrcode.UniqueViolation}
	err = withRetry(context.Background(), func(context.Context) error {
		calls++
		return unique
	})
	assert.True(t, isUniqueViolation(err))
	assert.Equal(t, 1, calls)

	calls = 0
	err = withRetry(context.Background(), func(context.Context) error {
		calls++
		return &commitError{err: errors.New("read tcp: connection reset by peer")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "order insert must not repeat after an ambiguous commit")
}
