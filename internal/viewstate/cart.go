package viewstate

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/service"
	"github.com/mmeshcher/pastry-storefront/internal/stream"
)

// OrderPhase — этап оформления заказа.
type OrderPhase int

const (
	OrderIdle OrderPhase = iota
	OrderPlacing
	OrderPlaced
	OrderFailed
)

// CartState хранит состояние экрана корзины.
type CartState struct {
	Lines []model.CartLine
	Quote service.Quote
	Empty bool

	Order   OrderPhase
	OrderID int64
	Message string
}

// CartEditor изменяет живую корзину активного пользователя.
type CartEditor interface {
	Watch(ctx context.Context) <-chan []model.CartLine
	Increment(ctx context.Context, productID string) error
	Decrement(ctx context.Context, productID string) error
	Remove(ctx context.Context, productID string) error
}

// OrderSubmitter оформляет заказ из корзины.
type OrderSubmitter interface {
	PlaceOrder(ctx context.Context, req service.OrderRequest) (int64, service.Quote, error)
}

// Cart держит состояние корзины и оформления заказа.
type Cart struct {
	cart     CartEditor
	checkout OrderSubmitter
	logger   *zap.Logger
	state    *stream.Subject[CartState]
}

// NewCart создаёт держатель корзины.
func NewCart(cart CartEditor, checkout OrderSubmitter, logger *zap.Logger) *Cart {
	return &Cart{
		cart:     cart,
		checkout: checkout,
		logger:   logger,
		state:    stream.NewSubject(CartState{Empty: true, Quote: service.QuoteLines(nil)}),
	}
}

// Watch подписывается на состояние корзины.
func (c *Cart) Watch(ctx context.Context) <-chan CartState {
	return c.state.Subscribe(ctx)
}

// State возвращает текущее состояние.
func (c *Cart) State() CartState {
	return c.state.Value()
}

// Run пересчитывает состояние при каждом изменении корзины или смене пользователя.
func (c *Cart) Run(ctx context.Context) error {
	for lines := range c.cart.Watch(ctx) {
		c.state.Update(func(s CartState) CartState {
			s.Lines = lines
			s.Quote = service.QuoteLines(lines)
			s.Empty = len(lines) == 0
			return s
		})
	}
	return nil
}

// Increment увеличивает количество позиции на единицу.
func (c *Cart) Increment(ctx context.Context, productID string) error {
	return c.report(c.cart.Increment(ctx, productID))
}

// Decrement уменьшает количество позиции на единицу, не опускаясь ниже одной.
func (c *Cart) Decrement(ctx context.Context, productID string) error {
	return c.report(c.cart.Decrement(ctx, productID))
}

// Remove удаляет позицию.
func (c *Cart) Remove(ctx context.Context, productID string) error {
	return c.report(c.cart.Remove(ctx, productID))
}

func (c *Cart) report(err error) error {
	c.state.Update(func(s CartState) CartState {
		s.Message = Message(err)
		return s
	})
	return err
}

// Checkout оформляет заказ. Повторный вызов во время оформления не меняет состояние
// и возвращает model.ErrCheckoutInProgress.
func (c *Cart) Checkout(ctx context.Context, req service.OrderRequest) (int64, error) {
	busy := false
	c.state.Update(func(s CartState) CartState {
		if s.Order == OrderPlacing {
			busy = true
			return s
		}
		s.Order = OrderPlacing
		s.OrderID = model.NoOrder
		s.Message = ""
		return s
	})
	if busy {
		return model.NoOrder, model.E(model.KindInvalidState, "viewstate.Checkout", model.ErrCheckoutInProgress.Message, nil)
	}

	id, _, err := c.checkout.PlaceOrder(ctx, req)
	if err != nil {
		if model.KindOf(err) != model.KindValidation {
			c.logger.Error("failed to place order", zap.Error(err))
		}
		c.state.Update(func(s CartState) CartState {
			s.Order = OrderFailed
			s.Message = Message(err)
			return s
		})
		return model.NoOrder, err
	}

	c.state.Update(func(s CartState) CartState {
		s.Order = OrderPlaced
		s.OrderID = id
		s.Message = ""
		return s
	})
	return id, nil
}

// ResetOrder возвращает оформление в исходное состояние.
func (c *Cart) ResetOrder() {
	c.state.Update(func(s CartState) CartState {
		s.Order = OrderIdle
		s.OrderID = model.NoOrder
		s.Message = ""
		return s
	})
}
