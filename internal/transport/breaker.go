package transport

import (
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/peteski22/churchbridge/internal/metrics"
	"github.com/peteski22/churchbridge/internal/retry"
)

// newBreaker creates the circuit breaker guarding one provider connection.
// Auth and validation failures are the caller's fault and do not count against the provider.
func newBreaker(provider, name string, failures uint32, openFor time.Duration, logger *slog.Logger) *gobreaker.CircuitBreaker[*Response] {
	metrics.BreakerState.WithLabelValues(provider, name).Set(stateToFloat(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			switch retry.Classify(err) {
			case retry.KindAuth, retry.KindValidation:
				return true
			default:
				return false
			}
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"provider", provider,
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.BreakerState.WithLabelValues(provider, name).Set(stateToFloat(to))
		},
	})
}

// stateToFloat converts a breaker state to its gauge value.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
