package repository

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/metrics"
	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/stream"
)

// OrderSource — метка источника заказа в метриках.
const OrderSource = "device"

// Orders управляет заказами пользователей устройства.
type Orders struct {
	store    OrderStore
	sessions Sessions
	remote   OrderRemote
	fallback fallback
	logger   *zap.Logger
}

// NewOrders создаёт репозиторий заказов. remote может быть nil.
func NewOrders(st OrderStore, sessions Sessions, remote OrderRemote, logger *zap.Logger, rec metrics.Recorder) *Orders {
	fb := newFallback(logger, rec)
	return &Orders{
		store:    st,
		sessions: sessions,
		remote:   remote,
		fallback: fb,
		logger:   fb.logger,
	}
}

// Place сохраняет заказ и очищает корзину пользователя атомарно.
// lines — снимок корзины, по которому посчитан total; если корзина успела измениться,
// возвращается model.ErrCartChanged. Пользователь должен существовать и быть активным.
// При ошибке возвращает model.NoOrder, и ни заказ, ни очистка корзины не сохраняются.
func (o *Orders) Place(ctx context.Context, userID int64, lines []model.CartLine, total float64, method model.PaymentMethod, cardRef, address string) (int64, error) {
	const op = "orders.Place"

	if userID == model.NoUser {
		return model.NoOrder, model.E(model.KindNotLoggedIn, op, model.ErrNotLoggedIn.Message, nil)
	}
	if total <= 0 {
		return model.NoOrder, model.Validation(op, "order total must be positive")
	}
	if !method.Valid() {
		return model.NoOrder, model.Validation(op, "unknown payment method")
	}
	if method == model.PaymentCash {
		cardRef = ""
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return model.NoOrder, model.Validation(op, "shipping address is required")
	}

	owner, err := o.store.UserByID(ctx, userID)
	if err != nil {
		if model.KindOf(err) == model.KindNotFound {
			return model.NoOrder, model.E(model.KindNotFound, op, "user not found", nil)
		}
		return model.NoOrder, err
	}
	if !owner.Active {
		return model.NoOrder, model.E(model.KindNotFound, op, "user not found", nil)
	}

	order := model.Order{
		UserID:          userID,
		TotalAmount:     total,
		PaymentMethod:   method,
		CardRef:         cardRef,
		ShippingAddress: address,
	}
	id, err := o.store.PlaceOrder(ctx, order, lines)
	if err != nil {
		o.logger.Error("failed to place order", zap.Int64("user_id", userID), zap.Error(err))
		return model.NoOrder, err
	}
	o.fallback.metrics.RecordOrderPlaced(OrderSource)

	o.pushOrder(ctx, id)
	return id, nil
}

func (o *Orders) pushOrder(ctx context.Context, id int64) {
	if !enabled(o.remote) {
		return
	}

	placed, err := o.store.OrderByID(ctx, id)
	if err != nil {
		o.logger.Error("failed to read placed order", zap.Int64("order_id", id), zap.Error(err))
		return
	}

	remoteID, err := o.remote.PlaceOrder(ctx, placed)
	if err != nil {
		o.fallback.remoteFailed("orders.place", err)
		return
	}
	if err := o.store.SetOrderRemoteID(ctx, id, remoteID); err != nil {
		o.logger.Error("failed to save remote order id", zap.Int64("order_id", id), zap.Error(err))
	}
}

// ForUser возвращает заказы пользователя, новые первыми.
func (o *Orders) ForUser(ctx context.Context, userID int64) ([]model.Order, error) {
	if userID == model.NoUser {
		return []model.Order{}, nil
	}
	return o.store.Orders(ctx, userID)
}

// Last возвращает последний заказ пользователя.
func (o *Orders) Last(ctx context.Context, userID int64) (model.Order, error) {
	return o.store.LastOrder(ctx, userID)
}

// ByID возвращает заказ по id.
func (o *Orders) ByID(ctx context.Context, id int64) (model.Order, error) {
	return o.store.OrderByID(ctx, id)
}

// Watch выдаёт заказы активного пользователя.
func (o *Orders) Watch(ctx context.Context) <-chan []model.Order {
	return stream.SwitchMap(o.sessions.ActiveUserIDs(), o.ordersOf)(ctx)
}

func (o *Orders) ordersOf(userID int64) stream.Source[[]model.Order] {
	if userID == model.NoUser {
		return stream.Just([]model.Order{})
	}
	return func(ctx context.Context) <-chan []model.Order {
		return o.store.WatchOrders(ctx, userID)
	}
}

// Advance переводит заказ на следующий этап и возвращает новый статус.
func (o *Orders) Advance(ctx context.Context, id int64) (model.OrderStatus, error) {
	order, err := o.store.OrderByID(ctx, id)
	if err != nil {
		return "", err
	}

	next, ok := order.Status.Next()
	if !ok {
		return order.Status, model.E(model.KindInvalidState, "orders.Advance", model.ErrStatusConflict.Message, nil)
	}
	if err := o.store.AdvanceOrderStatus(ctx, id, order.Status, next); err != nil {
		return order.Status, err
	}

	if order.RemoteID > 0 && enabled(o.remote) {
		if err := o.remote.UpdateOrderStatus(ctx, order.RemoteID, next); err != nil {
			o.fallback.remoteFailed("orders.status", err)
		}
	}
	return next, nil
}

// InProgress возвращает недоставленные заказы.
func (o *Orders) InProgress(ctx context.Context, limit int) ([]model.Order, error) {
	return o.store.OrdersInProgress(ctx, limit)
}

// SubmitReview сохраняет отзыв к доставленному заказу активного пользователя.
// Повторный отзыв заменяет предыдущий. Синхронизация с сервером не влияет на результат.
func (o *Orders) SubmitReview(ctx context.Context, id int64, review string) error {
	const op = "orders.SubmitReview"

	userID, err := activeUser(o.sessions, op)
	if err != nil {
		return err
	}
	review = strings.TrimSpace(review)
	if review == "" {
		return model.Validation(op, "review is empty")
	}

	order, err := o.store.OrderByID(ctx, id)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return model.ErrNotFound
	}

	if err := o.store.SetOrderReview(ctx, id, review); err != nil {
		return err
	}

	if order.RemoteID > 0 && enabled(o.remote) {
		if err := o.remote.SubmitReview(ctx, order.RemoteID, review); err != nil {
			o.fallback.remoteFailed("orders.review", err)
		}
	}
	return nil
}
