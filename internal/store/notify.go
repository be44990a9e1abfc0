package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/stream"
)

// allUsers используется для таблиц, не привязанных к пользователю.
const allUsers int64 = 0

type topic struct {
	table  string
	userID int64
}

// hub рассылает сигналы об изменениях. Сигналы сжимаются: подписчик
// узнаёт, что данные изменились, но не сколько раз.
type hub struct {
	mu   sync.Mutex
	subs map[topic]map[chan struct{}]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[topic]map[chan struct{}]struct{})}
}

func (h *hub) subscribe(ctx context.Context, t topic) <-chan struct{} {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	set, ok := h.subs[t]
	if !ok {
		set = make(map[chan struct{}]struct{})
		h.subs[t] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, t)
		}
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

func (h *hub) publish(topics ...topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		for ch := range h.subs[t] {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// watch выполняет query сразу и после каждого сигнала по теме t.
// Ошибка запроса логируется, следующая попытка будет при следующем изменении.
func watch[T any](ctx context.Context, s *Store, t topic, query func(context.Context) (T, error)) <-chan T {
	out := make(chan T, 1)
	signals := s.hub.subscribe(ctx, t)

	go func() {
		defer close(out)
		for {
			v, err := query(ctx)
			switch {
			case err == nil:
				stream.Offer(out, v)
			case ctx.Err() != nil:
				return
			default:
				s.logger.Error("live query failed",
					zap.String("table", t.table),
					zap.Int64("user_id", t.userID),
					zap.Error(err),
				)
			}

			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
			}
		}
	}()

	return out
}
