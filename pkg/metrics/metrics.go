// Package metrics exposes planner progress as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records trials, restarts, solver relaxations and finished plans.
// It satisfies the observer interfaces of the scheduler and solver packages.
type Collector struct {
	gatherer prometheus.Gatherer

	trials       *prometheus.CounterVec
	restarts     prometheus.Counter
	relaxations  prometheus.Counter
	bestScore    *prometheus.GaugeVec
	plans        *prometheus.CounterVec
	planDuration *prometheus.HistogramVec
}

// NewPrometheus registers the planner metrics on a private registry
func NewPrometheus(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	return NewPrometheusWith(reg, reg, namespace)
}

// NewPrometheusWith registers the planner metrics on reg and serves them from gatherer
func NewPrometheusWith(reg prometheus.Registerer, gatherer prometheus.Gatherer, namespace string) *Collector {
	if namespace == "" {
		namespace = "mass_planner"
	}

	c := &Collector{
		gatherer: gatherer,
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_total",
			Help:      "Finished optimizer trials by result (success,failure).",
		}, []string{"result"}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Trial restarts caused by a bad draw order.",
		}),
		relaxations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "relaxations_total",
			Help:      "Cooldown relaxations of the constraint solver.",
		}),
		bestScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_score",
			Help:      "Fitness score of the last finished plan by strategy.",
		}, []string{"strategy"}),
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_total",
			Help:      "Planning requests by strategy and outcome (ok,config_error,infeasible,error).",
		}, []string{"strategy", "outcome"}),
		planDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plan_duration_seconds",
			Help:      "Wall clock time of planning requests in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms .. ~80s
		}, []string{"strategy"}),
	}

	reg.MustRegister(c.trials, c.restarts, c.relaxations, c.bestScore, c.plans, c.planDuration)
	return c
}

// Restart counts one BadSituation restart
func (c *Collector) Restart() {
	c.restarts.Inc()
}

// TrialFinished counts a finished trial
func (c *Collector) TrialFinished(ok bool, _ float64) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.trials.WithLabelValues(result).Inc()
}

// Relaxation counts one solver cooldown relaxation
func (c *Collector) Relaxation(int) {
	c.relaxations.Inc()
}

// PlanFinished records the outcome of a planning request
func (c *Collector) PlanFinished(strategy, outcome string, score float64, elapsed time.Duration) {
	c.plans.WithLabelValues(strategy, outcome).Inc()
	c.planDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	if outcome == "ok" {
		c.bestScore.WithLabelValues(strategy).Set(score)
	}
}

// Handler serves the collected metrics in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
