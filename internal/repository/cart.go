package repository

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/metrics"
	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/stream"
)

// Cart управляет корзиной активного пользователя.
type Cart struct {
	store    CartStore
	sessions Sessions
	remote   CartRemote
	fallback fallback
}

// NewCart создаёт репозиторий корзины. remote может быть nil.
func NewCart(st CartStore, sessions Sessions, remote CartRemote, logger *zap.Logger, rec metrics.Recorder) *Cart {
	return &Cart{
		store:    st,
		sessions: sessions,
		remote:   remote,
		fallback: newFallback(logger, rec),
	}
}

// Add кладёт товар в корзину активного пользователя.
// Если товар уже в корзине, количество увеличивается.
func (c *Cart) Add(ctx context.Context, p model.Product, quantity int) error {
	const op = "cart.Add"

	userID, err := activeUser(c.sessions, op)
	if err != nil {
		return err
	}
	if quantity < 1 {
		return model.Validation(op, "quantity must be at least 1")
	}
	if strings.TrimSpace(p.ID) == "" {
		return model.Validation(op, "product id is required")
	}
	if !p.Available {
		return model.Validation(op, "product is not available")
	}

	line := model.CartLine{
		UserID:       userID,
		ProductID:    p.ID,
		Name:         p.Name,
		Price:        p.Price,
		ImageURL:     p.ImageURL,
		Quantity:     quantity,
		InPromotion:  p.InPromotion,
		DiscountRate: p.DiscountRate,
	}
	if _, err := c.store.InsertCartLine(ctx, line); err != nil {
		return err
	}

	c.pushAdd(ctx, line)
	return nil
}

// Increment увеличивает количество товара на 1.
func (c *Cart) Increment(ctx context.Context, productID string) error {
	const op = "cart.Increment"

	userID, err := activeUser(c.sessions, op)
	if err != nil {
		return err
	}

	changed, err := c.store.AdjustCartQuantity(ctx, userID, productID, 1)
	if err != nil {
		return err
	}
	if !changed {
		return model.E(model.KindNotFound, op, model.ErrNotFound.Message, nil)
	}

	line, err := c.store.CartLine(ctx, userID, productID)
	if err == nil {
		line.Quantity = 1
		c.pushAdd(ctx, line)
	}
	return nil
}

// Decrement уменьшает количество товара на 1. При количестве 1 ничего не меняется.
func (c *Cart) Decrement(ctx context.Context, productID string) error {
	userID, err := activeUser(c.sessions, "cart.Decrement")
	if err != nil {
		return err
	}

	_, err = c.store.AdjustCartQuantity(ctx, userID, productID, -1)
	return err
}

// Remove удаляет товар из корзины.
func (c *Cart) Remove(ctx context.Context, productID string) error {
	userID, err := activeUser(c.sessions, "cart.Remove")
	if err != nil {
		return err
	}

	if err := c.store.DeleteCartLine(ctx, userID, productID); err != nil {
		return err
	}

	if enabled(c.remote) {
		if err := c.remote.RemoveFromCart(ctx, productID); err != nil {
			c.fallback.remoteFailed("cart.remove", err)
		}
	}
	return nil
}

// Clear очищает корзину активного пользователя.
func (c *Cart) Clear(ctx context.Context) error {
	userID, err := activeUser(c.sessions, "cart.Clear")
	if err != nil {
		return err
	}
	return c.store.ClearCart(ctx, userID)
}

// Lines возвращает снимок корзины пользователя.
func (c *Cart) Lines(ctx context.Context, userID int64) ([]model.CartLine, error) {
	if userID == model.NoUser {
		return []model.CartLine{}, nil
	}
	return c.store.CartLines(ctx, userID)
}

// CurrentLines возвращает снимок корзины активного пользователя.
func (c *Cart) CurrentLines(ctx context.Context) ([]model.CartLine, error) {
	return c.Lines(ctx, c.sessions.ActiveUserID())
}

// Watch выдаёт корзину активного пользователя.
// При смене пользователя подписка на корзину предыдущего отменяется.
func (c *Cart) Watch(ctx context.Context) <-chan []model.CartLine {
	return stream.SwitchMap(c.sessions.ActiveUserIDs(), c.linesOf)(ctx)
}

func (c *Cart) linesOf(userID int64) stream.Source[[]model.CartLine] {
	if userID == model.NoUser {
		return stream.Just([]model.CartLine{})
	}
	return func(ctx context.Context) <-chan []model.CartLine {
		return c.store.WatchCart(ctx, userID)
	}
}

func (c *Cart) pushAdd(ctx context.Context, line model.CartLine) {
	if !enabled(c.remote) {
		return
	}
	if err := c.remote.AddToCart(ctx, line); err != nil {
		c.fallback.remoteFailed("cart.add", err)
	}
}
