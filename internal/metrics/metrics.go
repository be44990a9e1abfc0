// Package metrics содержит сбор метрик Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmeshcher/pastry-storefront/internal/model"
)

// Recorder описывает события, которые учитываются в метриках.
type Recorder interface {
	RecordHTTPRequest(method string, status int, duration time.Duration)
	RecordOrderPlaced(source string)
	RecordStatusTransition(from, to model.OrderStatus)
	RecordRemoteFallback(op string)
}

// Collector реализует Recorder на Prometheus.
type Collector struct {
	httpRequests    *prometheus.CounterVec
	httpLatency     prometheus.Histogram
	ordersPlaced    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	remoteFallbacks *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector создаёт Collector и регистрирует метрики в reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "HTTP requests by method and status code",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}),
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Orders placed by source",
		}, []string{"source"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_order_status_transitions_total",
			Help: "Order status transitions",
		}, []string{"from", "to"}),
		remoteFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_remote_fallbacks_total",
			Help: "Remote calls that failed and fell back to local storage",
		}, []string{"op"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.ordersPlaced,
		c.transitions,
		c.remoteFallbacks,
	)

	return c
}

func (c *Collector) RecordHTTPRequest(method string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordOrderPlaced(source string) {
	c.ordersPlaced.WithLabelValues(source).Inc()
}

func (c *Collector) RecordStatusTransition(from, to model.OrderStatus) {
	c.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (c *Collector) RecordRemoteFallback(op string) {
	c.remoteFallbacks.WithLabelValues(op).Inc()
}

// Handler возвращает обработчик для сбора метрик Prometheus.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Counters возвращает значения всех счётчиков из g по ключу вида name{label=value,...}.
// Используется там, где метрики не отдаются по HTTP.
func Counters(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			c := m.GetCounter()
			if c == nil {
				continue
			}
			key := mf.GetName()
			if labels := m.GetLabel(); len(labels) > 0 {
				pairs := make([]string, 0, len(labels))
				for _, lp := range labels {
					pairs = append(pairs, lp.GetName()+"="+lp.GetValue())
				}
				key += "{" + strings.Join(pairs, ",") + "}"
			}
			out[key] = c.GetValue()
		}
	}
	return out, nil
}

// Noop ничего не записывает.
type Noop struct{}

var _ Recorder = Noop{}

func (Noop) RecordHTTPRequest(string, int, time.Duration) {}

func (Noop) RecordOrderPlaced(string) {}

func (Noop) RecordStatusTransition(model.OrderStatus, model.OrderStatus) {}

func (Noop) RecordRemoteFallback(string) {}
