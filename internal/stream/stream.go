// Package stream содержит примитивы реактивных потоков на каналах и контекстах.
//
// Все потоки «сжимающие»: канал подписчика имеет буфер на одно значение,
// и новое значение вытесняет недоставленное старое. Подписчик всегда видит
// последнее состояние и никогда не получает более старое значение после нового.
package stream

import (
	"context"
	"sync"
)

// Source — холодный поток: каждый вызов создаёт новую подписку,
// канал закрывается после отмены контекста.
type Source[T any] func(ctx context.Context) <-chan T

// Subject хранит текущее значение и рассылает его изменения подписчикам.
type Subject[T any] struct {
	mu    sync.Mutex
	value T
	subs  map[chan T]struct{}
}

// NewSubject создаёт Subject с начальным значением.
func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{
		value: initial,
		subs:  make(map[chan T]struct{}),
	}
}

// Value возвращает текущее значение.
func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set заменяет значение и уведомляет подписчиков.
func (s *Subject[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.broadcast(v)
}

// Update атомарно применяет fn к текущему значению и возвращает результат.
func (s *Subject[T]) Update(fn func(T) T) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := fn(s.value)
	s.value = v
	s.broadcast(v)
	return v
}

func (s *Subject[T]) broadcast(v T) {
	for ch := range s.subs {
		Offer(ch, v)
	}
}

// Subscribe возвращает канал, который сразу получает текущее значение,
// а затем каждое следующее. Канал закрывается после отмены ctx.
func (s *Subject[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	s.mu.Lock()
	ch <- s.value
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Source возвращает Subject как холодный поток.
func (s *Subject[T]) Source() Source[T] {
	return s.Subscribe
}

// Offer кладёт значение в канал с буфером 1, вытесняя недоставленное.
// Вызывающий должен быть единственным писателем канала.
func Offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}

func drain[T any](ch chan T) {
	select {
	case <-ch:
	default:
	}
}

// Just выдаёт одно значение и ждёт отмены контекста.
func Just[T any](v T) Source[T] {
	return func(ctx context.Context) <-chan T {
		out := make(chan T, 1)
		out <- v
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out
	}
}

// Map преобразует каждое значение потока.
func Map[T, U any](src Source[T], fn func(T) U) Source[U] {
	return func(ctx context.Context) <-chan U {
		in := src(ctx)
		out := make(chan U, 1)
		go func() {
			defer close(out)
			for v := range in {
				Offer(out, fn(v))
			}
		}()
		return out
	}
}

// Distinct пропускает значение, только если оно отличается от предыдущего.
func Distinct[T comparable](src Source[T]) Source[T] {
	return func(ctx context.Context) <-chan T {
		in := src(ctx)
		out := make(chan T, 1)
		go func() {
			defer close(out)
			var (
				last    T
				started bool
			)
			for v := range in {
				if started && v == last {
					continue
				}
				started, last = true, v
				Offer(out, v)
			}
		}()
		return out
	}
}

// SwitchMap подписывается на поток, построенный по последнему ключу.
//
// При смене ключа контекст предыдущего внутреннего потока отменяется до
// подключения нового, недоставленное значение старого потока выбрасывается,
// и из старого канала больше ничего не читается. Повтор того же ключа подряд
// подписку не перезапускает.
func SwitchMap[K comparable, V any](keys Source[K], project func(K) Source[V]) Source[V] {
	return func(ctx context.Context) <-chan V {
		keyCh := keys(ctx)
		out := make(chan V, 1)

		go func() {
			defer close(out)

			var (
				inner   <-chan V
				cancel  context.CancelFunc = func() {}
				current K
				started bool
			)
			defer func() { cancel() }()

			for {
				select {
				case <-ctx.Done():
					return
				case k, ok := <-keyCh:
					if !ok {
						return
					}
					if started && k == current {
						continue
					}
					started, current = true, k

					cancel()
					inner = nil
					drain(out)

					innerCtx, c := context.WithCancel(ctx)
					cancel = c
					inner = project(k)(innerCtx)
				case v, ok := <-inner:
					if !ok {
						inner = nil
						continue
					}
					Offer(out, v)
				}
			}
		}()

		return out
	}
}
