package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "pm_trade_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	newCounter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}

	m := &Metrics{
		CyclesCompleted:   promCounter{newCounter("cycles_completed_total", "Total number of completed trading cycles.")},
		CycleErrors:       promCounter{newCounter("cycle_errors_total", "Total number of trading cycles that ended in an error.")},
		SignalsGenerated:  promCounter{newCounter("signals_generated_total", "Total number of strategy signals generated.")},
		SignalsRejected:   promCounter{newCounter("signals_rejected_total", "Total number of signals rejected by the risk manager.")},
		OrdersPlaced:      promCounter{newCounter("orders_placed_total", "Total number of orders placed.")},
		OrdersFailed:      promCounter{newCounter("orders_failed_total", "Total number of order placement failures.")},
		OrdersCanceled:    promCounter{newCounter("orders_canceled_total", "Total number of orders canceled.")},
		KillSwitchEngaged: promCounter{newCounter("kill_switch_engaged_total", "Total number of kill switch engagements.")},
	}

	return &Prometheus{Metrics: m, registry: registry}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
