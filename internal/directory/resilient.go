package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Resilient wraps a Directory with a circuit breaker so that a failing
// backend sheds load quickly. A not-found answer is a definitive result and
// never trips the breaker; an open breaker surfaces as a plain lookup error,
// which callers report as directory-unavailable (temporary), never as an
// unknown recipient.
type Resilient struct {
	Directory
	breaker *gobreaker.CircuitBreaker
}

// NewResilient wraps dir with a circuit breaker
func NewResilient(dir Directory, logger *slog.Logger) *Resilient {
	log := logger.With("component", "directory-breaker", "backend", dir.Type())

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        dir.Name(),
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("directory circuit breaker state change",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Resilient{
		Directory: dir,
		breaker:   breaker,
	}
}

// FindAddress looks up a canonical address through the breaker
func (r *Resilient) FindAddress(ctx context.Context, address string) (Address, error) {
	result, err := r.breaker.Execute(func() (any, error) {
		return r.Directory.FindAddress(ctx, address)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Address{}, ErrNotFound
		}
		return Address{}, fmt.Errorf("directory unavailable: %w", err)
	}
	return result.(Address), nil
}

// FindAccount retrieves an account through the breaker
func (r *Resilient) FindAccount(ctx context.Context, accountID string) (Account, error) {
	result, err := r.breaker.Execute(func() (any, error) {
		return r.Directory.FindAccount(ctx, accountID)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("directory unavailable: %w", err)
	}
	return result.(Account), nil
}
