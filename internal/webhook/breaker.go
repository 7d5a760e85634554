package webhook

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// transitionsTotal observes every breaker state change, tagged by host and
// the from/to states (spec §4.9: "each transition emits a counter event").
var transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pixtools",
	Subsystem: "webhook",
	Name:      "breaker_transitions_total",
	Help:      "Circuit breaker state transitions for webhook delivery, by destination host.",
}, []string{"host", "from", "to"})

func init() {
	prometheus.MustRegister(transitionsTotal)
}

// BreakerRegistry holds one gobreaker.CircuitBreaker per destination host
// (spec §5: "Circuit breaker: per-process state; consistency across workers
// is not required").
type BreakerRegistry struct {
	breakers      sync.Map // host -> *gobreaker.CircuitBreaker[[]byte]
	failThreshold uint32
	resetTimeout  time.Duration
}

// NewBreakerRegistry builds a registry using the configured threshold/timeout.
func NewBreakerRegistry(failThreshold int, resetTimeout time.Duration) *BreakerRegistry {
	return &BreakerRegistry{
		failThreshold: uint32(failThreshold),
		resetTimeout:  resetTimeout,
	}
}

func (r *BreakerRegistry) forHost(host string) *gobreaker.CircuitBreaker[[]byte] {
	if existing, ok := r.breakers.Load(host); ok {
		return existing.(*gobreaker.CircuitBreaker[[]byte])
	}

	settings := gobreaker.Settings{
		Name: host,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.failThreshold
		},
		Timeout: r.resetTimeout,
		OnStateChange: func(name string, from, to gobreaker.State) {
			transitionsTotal.WithLabelValues(name, from.String(), to.String()).Inc()
			slog.Info("webhook breaker state change",
				slog.String("host", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	}

	cb := gobreaker.NewCircuitBreaker[[]byte](settings)
	actual, _ := r.breakers.LoadOrStore(host, cb)
	return actual.(*gobreaker.CircuitBreaker[[]byte])
}
