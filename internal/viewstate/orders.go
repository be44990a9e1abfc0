package viewstate

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/stream"
)

// OrdersState хранит состояние экрана заказов.
type OrdersState struct {
	Orders []model.Order
	// Latest — последний заказ, nil если заказов нет.
	Latest  *model.Order
	Message string
	Notice  string
}

// OrderFeed отдаёт живой список заказов активного пользователя, новые первыми.
type OrderFeed interface {
	Watch(ctx context.Context) <-chan []model.Order
	SubmitReview(ctx context.Context, id int64, review string) error
}

// Orders держит историю заказов.
type Orders struct {
	feed   OrderFeed
	logger *zap.Logger
	state  *stream.Subject[OrdersState]
}

// NewOrders создаёт держатель истории заказов.
func NewOrders(feed OrderFeed, logger *zap.Logger) *Orders {
	return &Orders{
		feed:   feed,
		logger: logger,
		state:  stream.NewSubject(OrdersState{}),
	}
}

// Watch подписывается на состояние.
func (o *Orders) Watch(ctx context.Context) <-chan OrdersState {
	return o.state.Subscribe(ctx)
}

// State возвращает текущее состояние.
func (o *Orders) State() OrdersState {
	return o.state.Value()
}

// Run следит за заказами активного пользователя.
func (o *Orders) Run(ctx context.Context) error {
	for orders := range o.feed.Watch(ctx) {
		o.state.Update(func(s OrdersState) OrdersState {
			s.Orders = orders
			s.Latest = nil
			if len(orders) > 0 {
				latest := orders[0]
				s.Latest = &latest
			}
			return s
		})
	}
	return nil
}

// SubmitReview сохраняет отзыв к доставленному заказу.
func (o *Orders) SubmitReview(ctx context.Context, id int64, review string) error {
	err := o.feed.SubmitReview(ctx, id, review)
	if err != nil && model.KindOf(err) == model.KindStorage {
		o.logger.Error("failed to submit review", zap.Int64("order_id", id), zap.Error(err))
	}

	o.state.Update(func(s OrdersState) OrdersState {
		s.Message = Message(err)
		s.Notice = ""
		if err == nil {
			s.Notice = "Merci pour votre avis !"
		}
		return s
	})
	return err
}
