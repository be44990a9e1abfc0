package viewstate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/repository"
	"github.com/mmeshcher/pastry-storefront/internal/service"
)

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond)
}

// relay пересылает значения из src, пока не отменён ctx.
func relay[T any](ctx context.Context, src chan T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-src:
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

var testProducts = []model.Product{
	{ID: "1", Name: "Croissant", Price: 1.5, Available: true, Category: "Viennoiseries"},
	{ID: "2", Name: "Pain au chocolat", Price: 1.8, Available: true, Category: "Viennoiseries"},
	{ID: "3", Name: "Éclair au chocolat", Price: 3.5, Available: true, Category: "Pâtisseries"},
	{ID: "4", Name: "Tarte au citron", Price: 4.2, Available: true, Category: "Tartes"},
}

type stubLoader struct {
	products []model.Product
	err      error
}

func (s *stubLoader) Refresh(context.Context) ([]model.Product, repository.CatalogSource, error) {
	return s.products, repository.SourceLocal, s.err
}

type stubCart struct {
	mu    sync.Mutex
	err   error
	added []string
	lines chan []model.CartLine
}

func (s *stubCart) Add(_ context.Context, p model.Product, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.added = append(s.added, p.ID)
	return nil
}

func (s *stubCart) Watch(ctx context.Context) <-chan []model.CartLine {
	return relay(ctx, s.lines)
}

func (s *stubCart) Increment(context.Context, string) error { return s.err }
func (s *stubCart) Decrement(context.Context, string) error { return s.err }
func (s *stubCart) Remove(context.Context, string) error    { return s.err }

func TestCatalogLoadAndFilter(t *testing.T) {
	cart := &stubCart{}
	c := NewCatalog(&stubLoader{products: testProducts}, cart, zap.NewNop())

	assert.Equal(t, PhaseLoading, c.State().Phase)
	c.Load(context.Background())

	s := c.State()
	require.Equal(t, PhaseReady, s.Phase)
	assert.Equal(t, repository.SourceLocal, s.Source)
	assert.Equal(t, []string{AllCategories, "Viennoiseries", "Pâtisseries", "Tartes"}, s.Categories)
	require.Len(t, s.Sections, 3)
	assert.Len(t, s.Sections[0].Products, 2)

	c.SetQuery("  CHOCOLAT ")
	s = c.State()
	require.Len(t, s.Sections, 2)
	assert.Equal(t, "Pain au chocolat", s.Sections[0].Products[0].Name)
	assert.Equal(t, "Éclair au chocolat", s.Sections[1].Products[0].Name)

	c.SetCategory("Pâtisseries")
	s = c.State()
	require.Len(t, s.Sections, 1)
	assert.Equal(t, "Pâtisseries", s.Sections[0].Category)

	c.SetQuery("")
	c.SetCategory("")
	assert.Equal(t, AllCategories, c.State().Category)
	assert.Len(t, c.State().Sections, 3)
}

func TestCatalogLoadFailure(t *testing.T) {
	c := NewCatalog(&stubLoader{err: errors.New("disk failure")}, &stubCart{}, zap.NewNop())
	c.Load(context.Background())

	s := c.State()
	assert.Equal(t, PhaseFailed, s.Phase)
	assert.NotEmpty(t, s.Message)
}

func TestCatalogAddToCart(t *testing.T) {
	cart := &stubCart{}
	c := NewCatalog(&stubLoader{products: testProducts}, cart, zap.NewNop())
	c.Load(context.Background())

	require.NoError(t, c.AddToCart(context.Background(), "3"))
	assert.Equal(t, []string{"3"}, cart.added)
	assert.Equal(t, "Éclair au chocolat ajouté au panier", c.State().Notice)

	err := c.AddToCart(context.Background(), "missing")
	assert.Equal(t, model.KindNotFound, model.KindOf(err))

	cart.err = model.E(model.KindNotLoggedIn, "cart.Add", model.ErrNotLoggedIn.Message, nil)
	err = c.AddToCart(context.Background(), "1")
	assert.True(t, errors.Is(err, model.ErrNotLoggedIn))
	assert.Equal(t, "Veuillez vous connecter pour continuer", c.State().Notice)
}

type stubCheckout struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{}
}

func (s *stubCheckout) PlaceOrder(ctx context.Context, req service.OrderRequest) (int64, service.Quote, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return model.NoOrder, service.Quote{}, s.err
	}
	return 42, service.Quote{}, nil
}

func TestCartRunRecomputesQuote(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cart := &stubCart{lines: make(chan []model.CartLine)}
	c := NewCart(cart, &stubCheckout{}, zap.NewNop())
	assert.True(t, c.State().Empty)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cart.lines <- []model.CartLine{
		{UserID: 1, ProductID: "1", Price: 1.5, Quantity: 4},
		{UserID: 1, ProductID: "3", Price: 3.5, Quantity: 2},
	}
	eventually(t, func() bool { return !c.State().Empty })

	s := c.State()
	assert.Equal(t, "13", s.Quote.Subtotal.String())
	assert.Equal(t, "18", s.Quote.Total.String())

	cart.lines <- []model.CartLine{}
	eventually(t, func() bool { return c.State().Empty })

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("cart run did not stop")
	}
}

func TestCartCheckout(t *testing.T) {
	checkout := &stubCheckout{}
	c := NewCart(&stubCart{}, checkout, zap.NewNop())

	id, err := c.Checkout(context.Background(), service.OrderRequest{Method: model.PaymentCash, Address: "1 rue"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, OrderPlaced, c.State().Order)
	assert.Equal(t, int64(42), c.State().OrderID)

	c.ResetOrder()
	assert.Equal(t, OrderIdle, c.State().Order)

	checkout.err = model.Validation("checkout.PlaceOrder", "cart is empty")
	_, err = c.Checkout(context.Background(), service.OrderRequest{})
	require.Error(t, err)
	assert.Equal(t, OrderFailed, c.State().Order)
	assert.Equal(t, "Votre panier est vide", c.State().Message)

	checkout.err = model.E(model.KindInvalidState, "store.PlaceOrder", model.ErrCartChanged.Message, nil)
	_, err = c.Checkout(context.Background(), service.OrderRequest{})
	assert.True(t, errors.Is(err, model.ErrCartChanged))
	assert.Equal(t, OrderFailed, c.State().Order)
	assert.Equal(t, "Votre panier a changé. Vérifiez le total et validez à nouveau.", c.State().Message)
}

func TestCartCheckoutRejectsDoubleSubmit(t *testing.T) {
	checkout := &stubCheckout{block: make(chan struct{})}
	c := NewCart(&stubCart{}, checkout, zap.NewNop())

	first := make(chan int64, 1)
	go func() {
		id, _ := c.Checkout(context.Background(), service.OrderRequest{})
		first <- id
	}()
	eventually(t, func() bool { return c.State().Order == OrderPlacing })

	id, err := c.Checkout(context.Background(), service.OrderRequest{})
	assert.True(t, errors.Is(err, model.ErrCheckoutInProgress))
	assert.Equal(t, model.NoOrder, id)
	assert.Equal(t, OrderPlacing, c.State().Order)

	close(checkout.block)
	assert.Equal(t, int64(42), <-first)
	assert.Equal(t, 1, checkout.calls)
}

type stubFeed struct {
	orders chan []model.Order
	err    error
}

func (s *stubFeed) Watch(ctx context.Context) <-chan []model.Order {
	return relay(ctx, s.orders)
}

func (s *stubFeed) SubmitReview(context.Context, int64, string) error { return s.err }

func TestOrdersLatestAndReview(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := &stubFeed{orders: make(chan []model.Order)}
	o := NewOrders(feed, zap.NewNop())
	go o.Run(ctx)

	feed.orders <- []model.Order{{ID: 2, Status: model.OrderStatusPending}, {ID: 1, Status: model.OrderStatusDelivered}}
	eventually(t, func() bool { return o.State().Latest != nil })
	assert.Equal(t, int64(2), o.State().Latest.ID)
	assert.Len(t, o.State().Orders, 2)

	feed.orders <- []model.Order{}
	eventually(t, func() bool { return o.State().Latest == nil })

	require.NoError(t, o.SubmitReview(ctx, 1, "Délicieux"))
	assert.Equal(t, "Merci pour votre avis !", o.State().Notice)

	feed.err = model.E(model.KindInvalidState, "store.SetOrderReview", model.ErrReviewNotAllowed.Message, nil)
	require.Error(t, o.SubmitReview(ctx, 2, "Trop tôt"))
	assert.Empty(t, o.State().Notice)
	assert.Equal(t, "Action impossible pour le statut actuel de la commande", o.State().Message)
}

type stubAuth struct {
	err        error
	registered []service.Registration
}

func (s *stubAuth) Login(_ context.Context, email, _ string) (model.User, error) {
	if s.err != nil {
		return model.User{}, s.err
	}
	return model.User{ID: 7, Email: email}, nil
}

func (s *stubAuth) Register(_ context.Context, r service.Registration) (model.User, error) {
	if s.err != nil {
		return model.User{}, s.err
	}
	s.registered = append(s.registered, r)
	return model.User{ID: 8, Email: r.Email}, nil
}

type stubSessions struct {
	ids chan int64
}

func (s *stubSessions) WatchActiveUserID(ctx context.Context) <-chan int64 {
	return relay(ctx, s.ids)
}

func validForm() RegisterForm {
	return RegisterForm{
		Registration: service.Registration{
			FirstName: "Marie",
			LastName:  "Curie",
			Email:     "marie@example.com",
			Address:   "1 rue des Écoles",
			Phone:     "12345678",
			Password:  "secret1",
		},
		ConfirmPassword: "secret1",
	}
}

func TestAuthLoginAndLogoutReset(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := &stubSessions{ids: make(chan int64)}
	a := NewAuth(&stubAuth{}, sessions, zap.NewNop())
	go a.Run(ctx)

	require.NoError(t, a.Login(ctx, "marie@example.com", "secret1"))
	s := a.State()
	assert.Equal(t, AuthSucceeded, s.Phase)
	require.NotNil(t, s.User)
	assert.Equal(t, int64(7), s.User.ID)

	sessions.ids <- model.NoUser
	eventually(t, func() bool { return a.State().Phase == AuthIdle })
	assert.Nil(t, a.State().User)
}

func TestAuthLoginFailure(t *testing.T) {
	a := NewAuth(&stubAuth{err: model.ErrInvalidCredentials}, &stubSessions{}, zap.NewNop())

	err := a.Login(context.Background(), "marie@example.com", "wrong")
	assert.True(t, errors.Is(err, model.ErrInvalidCredentials))
	assert.Equal(t, AuthFailed, a.State().Phase)
	assert.Equal(t, "Compte introuvable ou mot de passe incorrect", a.State().Message)

	a.ClearError()
	assert.Equal(t, AuthIdle, a.State().Phase)
	assert.Empty(t, a.State().Message)
}

func TestAuthRegisterValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RegisterForm)
		message string
	}{
		{
			name:    "missing field",
			mutate:  func(f *RegisterForm) { f.Address = "" },
			message: "Tous les champs sont obligatoires",
		},
		{
			name:    "bad email",
			mutate:  func(f *RegisterForm) { f.Email = "marie" },
			message: "Format d'email invalide",
		},
		{
			name:    "passwords differ",
			mutate:  func(f *RegisterForm) { f.ConfirmPassword = "secret2" },
			message: "Les mots de passe ne correspondent pas",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAuth{}
			a := NewAuth(stub, &stubSessions{}, zap.NewNop())
			form := validForm()
			tt.mutate(&form)

			err := a.Register(context.Background(), form)
			assert.Equal(t, model.KindValidation, model.KindOf(err))
			assert.Equal(t, tt.message, a.State().Message)
			assert.Empty(t, stub.registered)
		})
	}
}

func TestAuthRegister(t *testing.T) {
	stub := &stubAuth{}
	a := NewAuth(stub, &stubSessions{}, zap.NewNop())

	require.NoError(t, a.Register(context.Background(), validForm()))
	assert.Equal(t, AuthSucceeded, a.State().Phase)
	require.Len(t, stub.registered, 1)
	assert.Equal(t, "marie@example.com", stub.registered[0].Email)
}

type stubManager struct {
	err     error
	deleted repository.DeleteMode
	logout  bool
}

func (s *stubManager) UpdateProfile(_ context.Context, p service.Profile) (model.User, error) {
	return model.User{Email: p.Email}, s.err
}

func (s *stubManager) ChangePassword(context.Context, string, string) error { return s.err }

func (s *stubManager) DeleteAccount(_ context.Context, _ string, mode repository.DeleteMode) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = mode
	return nil
}

func (s *stubManager) Logout(context.Context) error {
	s.logout = true
	return s.err
}

type stubUsers struct {
	users chan *model.User
}

func (s *stubUsers) WatchCurrent(ctx context.Context) <-chan *model.User {
	return relay(ctx, s.users)
}

func TestAccountFollowsCurrentUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	users := &stubUsers{users: make(chan *model.User)}
	a := NewAccount(users, &stubManager{}, zap.NewNop())
	go a.Run(ctx)

	users.users <- &model.User{ID: 3, FirstName: "Marie"}
	eventually(t, func() bool { return a.State().User != nil })
	assert.Equal(t, "Marie", a.State().User.FirstName)

	users.users <- nil
	eventually(t, func() bool { return a.State().User == nil })
}

func TestAccountOperations(t *testing.T) {
	ctx := context.Background()
	manager := &stubManager{}
	a := NewAccount(&stubUsers{}, manager, zap.NewNop())

	require.NoError(t, a.UpdateProfile(ctx, service.Profile{Email: "marie@example.com"}))
	assert.Equal(t, "Profil mis à jour", a.State().Notice)

	err := a.ChangePassword(ctx, "secret1", "secret2", "secret3")
	assert.Equal(t, model.KindValidation, model.KindOf(err))
	assert.Equal(t, "Les mots de passe ne correspondent pas", a.State().Message)

	require.NoError(t, a.ChangePassword(ctx, "secret1", "secret2", "secret2"))
	assert.Equal(t, "Mot de passe modifié", a.State().Notice)
	assert.Empty(t, a.State().Message)

	manager.err = model.ErrInvalidCredentials
	require.Error(t, a.DeleteAccount(ctx, "wrong", repository.HardDelete))
	assert.False(t, a.State().SignedOut)

	manager.err = nil
	require.NoError(t, a.DeleteAccount(ctx, "secret2", repository.SoftDelete))
	assert.Equal(t, repository.SoftDelete, manager.deleted)
	assert.True(t, a.State().SignedOut)
}

func TestAccountLogout(t *testing.T) {
	manager := &stubManager{}
	a := NewAccount(&stubUsers{}, manager, zap.NewNop())

	require.NoError(t, a.Logout(context.Background()))
	assert.True(t, manager.logout)
	assert.True(t, a.State().SignedOut)
}

func TestMessage(t *testing.T) {
	assert.Empty(t, Message(nil))
	assert.Equal(t, "Cet email est déjà utilisé", Message(model.ErrDuplicateEmail))
	assert.Equal(t, "Données invalides", Message(model.Validation("op", "something odd")))
	assert.Equal(t, "Serveur injoignable. Vérifiez votre connexion.",
		Message(model.E(model.KindConnectivity, "remote.Products", "timeout", nil)))
}
