package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when the process runs more than threshold
// goroutines.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be reached.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// ClosedChecker is implemented by *amqp.Connection.
type ClosedChecker interface {
	IsClosed() bool
}

// ConnectionCheck fails once c reports that it has been closed.
func ConnectionCheck(c ClosedChecker) CheckFunc {
	return func(context.Context) error {
		if c.IsClosed() {
			return errors.New("connection closed")
		}
		return nil
	}
}
