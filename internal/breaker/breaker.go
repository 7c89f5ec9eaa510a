// Package breaker wraps an upstream adapter's reconnect/login/subscribe
// calls in a circuit breaker so a persistently dead front is not hammered
// on every reconnect tick.
package breaker

import (
	"time"

	"github.com/sony/gobreaker"
)

// Breaker gates calls to one upstream front.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New builds a Breaker named after the broker it guards. It trips after
// 3 consecutive failures or a 50% failure rate over at least 5 requests,
// and probes again after a minute — loose enough that a single flaky
// login does not gate the adapter's 30-second reconnect timer, but tight
// enough to stop a tight retry storm against a dead front.
func New(name string) *Breaker {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests >= 5 {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= 0.5
			}
			return false
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. When the breaker is open, fn is
// not called and gobreaker.ErrOpenState is returned.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// State returns the breaker's current state name, for health reporting.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
