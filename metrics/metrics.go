package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "pinboard_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	commandsTotal   *prometheus.CounterVec
	commandLatency  prometheus.Histogram
	framesTotal     *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	sessionsActive  *prometheus.GaugeVec
	persistTotal    *prometheus.CounterVec
	persistLatency  *prometheus.HistogramVec
	persistPending  prometheus.Gauge
	appCommandTotal *prometheus.CounterVec
)

// Init registers the collectors with the default registry. Calls after the
// first are no-ops; the recording helpers do nothing before Init.
func Init() {
	registerOnce.Do(func() {
		commandsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "set_property_commands_total",
				Help: "Device set property commands by outcome",
			},
			[]string{"outcome"},
		)
		commandLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "set_property_latency_seconds",
			Help:    "Time from receipt to broadcast of a set property command",
			Buckets: prometheus.DefBuckets,
		})
		framesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "frames_sent_total",
				Help: "Frames handed to sessions by role",
			},
			[]string{"role"},
		)
		framesDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "frames_dropped_total",
				Help: "Frames dropped because a session queue was full or closed",
			},
			[]string{"role"},
		)
		sessionsActive = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "sessions_active",
				Help: "Connected sessions by role",
			},
			[]string{"role"},
		)
		persistTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "persist_total",
				Help: "Dashboard persist attempts by result",
			},
			[]string{"result"},
		)
		persistLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "persist_latency_seconds",
				Help:    "Dashboard persist latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		persistPending = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "persist_pending",
			Help: "Dashboards waiting to be persisted",
		})
		appCommandTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "app_commands_total",
				Help: "App originated commands by command and result",
			},
			[]string{"command", "result"},
		)

		prometheus.MustRegister(
			commandsTotal,
			commandLatency,
			framesTotal,
			framesDropped,
			sessionsActive,
			persistTotal,
			persistLatency,
			persistPending,
			appCommandTotal,
		)
	})
}

// ObserveCommand records the outcome of one device command.
func ObserveCommand(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	if commandsTotal != nil {
		commandsTotal.WithLabelValues(outcome).Inc()
	}
	if commandLatency != nil {
		commandLatency.Observe(duration.Seconds())
	}
}

func IncFrameSent(role string) {
	if framesTotal != nil {
		framesTotal.WithLabelValues(role).Inc()
	}
}

func IncFrameDropped(role string) {
	if framesDropped != nil {
		framesDropped.WithLabelValues(role).Inc()
	}
}

// AddSessions adjusts the connected session gauge, delta may be negative.
func AddSessions(role string, delta int) {
	if sessionsActive != nil {
		sessionsActive.WithLabelValues(role).Add(float64(delta))
	}
}

// ObservePersist records one dashboard save.
func ObservePersist(err error, duration time.Duration) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if persistTotal != nil {
		persistTotal.WithLabelValues(result).Inc()
	}
	if persistLatency != nil {
		persistLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

func SetPersistPending(n int) {
	if persistPending != nil {
		persistPending.Set(float64(n))
	}
}

// IncAppCommand counts an app command such as "activate" or "updateWidget".
func IncAppCommand(command string, err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if appCommandTotal != nil {
		appCommandTotal.WithLabelValues(command, result).Inc()
	}
}
