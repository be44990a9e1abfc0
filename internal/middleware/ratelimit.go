package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// LoginThrottle ограничивает частоту попыток входа и регистрации с одного адреса.
type LoginThrottle struct {
	limit  rate.Limit
	burst  int
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

// NewLoginThrottle создаёт ограничитель: perSecond попыток в секунду с запасом burst.
func NewLoginThrottle(perSecond float64, burst int, logger *zap.Logger) *LoginThrottle {
	if burst < 1 {
		burst = 1
	}
	return &LoginThrottle{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		ttl:     10 * time.Minute,
		logger:  logger,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

// Middleware отвечает 429 с Retry-After, если адрес исчерпал лимит.
func (t *LoginThrottle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !t.limiter(key).Allow() {
			t.logger.Warn("login rate limit exceeded", zap.String("client", key), zap.String("path", r.URL.Path))

			retryAfter := int(math.Ceil(1 / float64(t.limit)))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *LoginThrottle) limiter(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.evict(now)

	cl, ok := t.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.clients[key] = cl
	}
	cl.lastAccess = now
	return cl.limiter
}

// evict удаляет адреса, не обращавшиеся дольше ttl. Вызывается под mu.
func (t *LoginThrottle) evict(now time.Time) {
	for key, cl := range t.clients {
		if now.Sub(cl.lastAccess) > t.ttl {
			delete(t.clients, key)
		}
	}
}

// Clients возвращает число отслеживаемых адресов.
func (t *LoginThrottle) Clients() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
