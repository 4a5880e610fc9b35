// Package metrics содержит Prometheus-метрики сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests считает запросы по маршруту и коду ответа.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptkaart_http_requests_total",
		Help: "Total number of HTTP requests by route and status",
	}, []string{"route", "status"})

	// StorageWrites считает записи в хранилище по отношению и результату.
	StorageWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptkaart_storage_writes_total",
		Help: "Total number of storage writes by relation and outcome",
	}, []string{"relation", "outcome"})

	// ChangefeedDelivered считает доставленные подписчикам события.
	ChangefeedDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptkaart_changefeed_delivered_total",
		Help: "Total number of change events delivered to subscribers",
	}, []string{"relation"})

	// ChangefeedDropped считает события, отброшенные из-за медленного подписчика.
	ChangefeedDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptkaart_changefeed_dropped_total",
		Help: "Total number of change events dropped due to backpressure",
	}, []string{"relation"})

	// ChangefeedSubscribers - текущее число подписок.
	ChangefeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptkaart_changefeed_subscribers",
		Help: "Number of active change feed subscriptions",
	})

	// FeedRefetches считает перезагрузки ленты на клиенте по результату.
	FeedRefetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptkaart_feed_refetches_total",
		Help: "Total number of client feed refetches by outcome",
	}, []string{"outcome"})

	// FeedMutations считает завершённые оптимистичные мутации.
	FeedMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptkaart_feed_mutations_total",
		Help: "Total number of optimistic mutations by kind and final phase",
	}, []string{"kind", "phase"})

	// RealtimeConnections - открытые websocket-соединения.
	RealtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptkaart_realtime_connections",
		Help: "Number of open realtime websocket connections",
	})
)

// Outcome переводит ошибку в метку результата.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
