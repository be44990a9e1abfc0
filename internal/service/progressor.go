package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/metrics"
	"github.com/mmeshcher/pastry-storefront/internal/model"
)

const progressBatch = 100

// Progressor продвигает заказы по этапам: по таймеру или по явному сигналу.
type Progressor struct {
	store    StatusStore
	interval time.Duration
	logger   *zap.Logger
	metrics  metrics.Recorder
}

// NewProgressor создаёт исполнитель смены статусов. rec может быть nil.
func NewProgressor(store StatusStore, interval time.Duration, logger *zap.Logger, rec metrics.Recorder) *Progressor {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Progressor{
		store:    store,
		interval: interval,
		logger:   logger,
		metrics:  rec,
	}
}

// Run раз в интервал продвигает каждый незавершённый заказ на один этап.
// Возвращает nil после отмены контекста.
func (p *Progressor) Run(ctx context.Context) error {
	if p.interval <= 0 {
		p.logger.Info("order status progression disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick обрабатывает одну пачку заказов и возвращает число продвинутых.
func (p *Progressor) Tick(ctx context.Context) int {
	orders, err := p.store.InProgress(ctx, progressBatch)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("failed to load orders in progress", zap.Error(err))
		}
		return 0
	}

	advanced := 0
	for _, o := range orders {
		if ctx.Err() != nil {
			break
		}
		if _, err := p.Advance(ctx, o.ID); err != nil {
			if model.KindOf(err) == model.KindInvalidState {
				// Заказ уже продвинут другим исполнителем.
				p.logger.Debug("order status changed concurrently", zap.Int64("order_id", o.ID))
				continue
			}
			p.logger.Error("failed to advance order", zap.Int64("order_id", o.ID), zap.Error(err))
			continue
		}
		advanced++
	}
	return advanced
}

// Advance продвигает заказ на один этап.
func (p *Progressor) Advance(ctx context.Context, id int64) (model.OrderStatus, error) {
	to, err := p.store.Advance(ctx, id)
	if err != nil {
		return to, err
	}

	if from, ok := to.Previous(); ok {
		p.metrics.RecordStatusTransition(from, to)
	}
	p.logger.Debug("order advanced", zap.Int64("order_id", id), zap.String("status", string(to)))
	return to, nil
}
