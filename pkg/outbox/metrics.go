package outbox

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	enqueueTotal    *prometheus.CounterVec
	dispatchTotal   *prometheus.CounterVec
	dispatchFailure *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *metrics
)

func getMetrics() *metrics {
	metricsOnce.Do(func() {
		metricsInst = &metrics{
			enqueueTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "outbox_enqueue_total",
				Help: "Messages enqueued into the outbox.",
			}, []string{"topic"}),
			dispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "outbox_dispatch_total",
				Help: "Messages successfully dispatched from the outbox.",
			}, []string{"topic"}),
			dispatchFailure: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "outbox_dispatch_failures_total",
				Help: "Dispatch attempts that failed and were left for retry.",
			}, []string{"topic"}),
		}
	})
	return metricsInst
}
