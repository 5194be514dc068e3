package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamAduDonkor/adesua-sub000/core/report"
	"github.com/liamAduDonkor/adesua-sub000/core/scheduler"
)

const namespace = "adesua"

// Collector exports report lifecycle, scheduler and HTTP metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	Transitions     *prometheus.CounterVec
	Generations     *prometheus.CounterVec
	GenerationTime  *prometheus.HistogramVec
	SchedulerTicks  prometheus.Counter
	SchedulerEvents *prometheus.CounterVec
	TickDuration    prometheus.Histogram
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var (
	_ report.Observer    = (*Collector)(nil)
	_ scheduler.Observer = (*Collector)(nil)
)

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "transitions_total",
			Help:      "Report instance status transitions.",
		}, []string{"from", "to"}),
		Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "generations_total",
			Help:      "Finished report generations by type, outcome and failure reason.",
		}, []string{"type", "status", "reason"}),
		GenerationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "generation_duration_seconds",
			Help:      "Time spent generating a report.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"type", "status"}),
		SchedulerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Scheduler passes.",
		}),
		SchedulerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "definitions_total",
			Help:      "Due definitions handled by the scheduler, by outcome.",
		}, []string{"outcome"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one scheduler pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.Transitions,
		c.Generations,
		c.GenerationTime,
		c.SchedulerTicks,
		c.SchedulerEvents,
		c.TickDuration,
		c.Requests,
		c.RequestDuration,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) InstanceTransitioned(from, to report.Status) {
	c.Transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (c *Collector) GenerationFinished(t report.Type, status report.Status, reason report.FailureReason, took time.Duration) {
	c.Generations.WithLabelValues(string(t), string(status), string(reason)).Inc()
	c.GenerationTime.WithLabelValues(string(t), string(status)).Observe(took.Seconds())
}

func (c *Collector) TickFinished(res scheduler.TickResult, took time.Duration) {
	c.SchedulerTicks.Inc()
	c.SchedulerEvents.WithLabelValues("due").Add(float64(res.Due))
	c.SchedulerEvents.WithLabelValues("submitted").Add(float64(res.Submitted))
	c.SchedulerEvents.WithLabelValues("skipped").Add(float64(res.Skipped))
	c.SchedulerEvents.WithLabelValues("failed").Add(float64(res.Failed))
	c.TickDuration.Observe(took.Seconds())
}

// ObserveRequest records one served HTTP request.
func (c *Collector) ObserveRequest(route, method string, code int, took time.Duration) {
	c.Requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	c.RequestDuration.WithLabelValues(route, method).Observe(took.Seconds())
}
