package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/validation"
)

var (
	// DeliveryFee — стоимость доставки.
	DeliveryFee = decimal.NewFromInt(5)
	// FreeDeliveryThreshold — сумма, свыше которой доставка бесплатна.
	FreeDeliveryThreshold = decimal.NewFromInt(20)
)

// Quote содержит расчёт стоимости корзины.
type Quote struct {
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Total       decimal.Decimal
}

// FreeDelivery сообщает, что доставка бесплатна.
func (q Quote) FreeDelivery() bool {
	return q.DeliveryFee.IsZero()
}

// QuoteLines считает сумму позиций, доставку и итог.
func QuoteLines(lines []model.CartLine) Quote {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(decimal.NewFromFloat(l.Price).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	fee := DeliveryFee
	if subtotal.GreaterThan(FreeDeliveryThreshold) {
		fee = decimal.Zero
	}

	return Quote{
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Total:       subtotal.Add(fee),
	}
}

// OrderRequest содержит данные оформления заказа.
type OrderRequest struct {
	Method     model.PaymentMethod
	CardNumber string
	Address    string
}

// Checkout оформляет заказ из корзины активного пользователя.
type Checkout struct {
	cart     CartSource
	orders   OrderPlacer
	sessions Sessions
	logger   *zap.Logger
}

// NewCheckout создаёт сервис оформления заказа.
func NewCheckout(cart CartSource, orders OrderPlacer, sessions Sessions, logger *zap.Logger) *Checkout {
	return &Checkout{
		cart:     cart,
		orders:   orders,
		sessions: sessions,
		logger:   logger,
	}
}

// Quote считает стоимость текущей корзины.
func (c *Checkout) Quote(ctx context.Context) (Quote, error) {
	lines, err := c.cart.CurrentLines(ctx)
	if err != nil {
		return Quote{}, err
	}
	return QuoteLines(lines), nil
}

// PlaceOrder проверяет адрес и карту и сохраняет заказ на сумму корзины с доставкой.
// Номер карты сохраняется только в маскированном виде. Если корзина изменилась после
// расчёта суммы, заказ не создаётся и корзина остаётся как есть.
func (c *Checkout) PlaceOrder(ctx context.Context, req OrderRequest) (int64, Quote, error) {
	const op = "checkout.PlaceOrder"

	userID := c.sessions.ActiveUserID()
	if userID == model.NoUser {
		return model.NoOrder, Quote{}, model.E(model.KindNotLoggedIn, op, model.ErrNotLoggedIn.Message, nil)
	}

	address := strings.TrimSpace(req.Address)
	if address == "" {
		return model.NoOrder, Quote{}, model.Validation(op, "shipping address is required")
	}
	if !req.Method.Valid() {
		return model.NoOrder, Quote{}, model.Validation(op, "unknown payment method")
	}

	var cardRef string
	if req.Method == model.PaymentCard {
		if !validation.IsValidCardNumber(req.CardNumber) {
			return model.NoOrder, Quote{}, model.Validation(op, "card number must contain 16 valid digits")
		}
		cardRef = validation.MaskCardNumber(req.CardNumber)
	}

	lines, err := c.cart.CurrentLines(ctx)
	if err != nil {
		return model.NoOrder, Quote{}, err
	}
	if len(lines) == 0 {
		return model.NoOrder, Quote{}, model.Validation(op, "cart is empty")
	}

	quote := QuoteLines(lines)
	total, _ := quote.Total.Float64()

	id, err := c.orders.Place(ctx, userID, lines, total, req.Method, cardRef, address)
	if err != nil {
		return model.NoOrder, quote, err
	}

	c.logger.Info("order placed",
		zap.Int64("order_id", id),
		zap.Int64("user_id", userID),
		zap.String("total", quote.Total.StringFixed(2)),
	)
	return id, quote, nil
}
