package pool

import (
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/time/rate"

	"github.com/jzx17/parmap/pkg/observe"
	"github.com/jzx17/parmap/pkg/transport"
	"github.com/jzx17/parmap/pkg/types"
)

// Config defines pool configuration
type Config struct {
	// NumWorkers is the number of worker units
	NumWorkers int

	// ChunkSize is the number of inputs grouped into one dispatch
	ChunkSize int

	// InFlightPerWorker bounds the undrained chunks held by one worker
	InFlightPerWorker int

	// Ordered makes streams deliver results in input order
	Ordered bool

	// CloseOnDrain closes the pool once a stream is fully consumed
	CloseOnDrain bool

	// JoinTimeout bounds how long Close waits for workers to exit
	JoinTimeout time.Duration

	// Limiter optionally throttles input intake
	Limiter *rate.Limiter

	// ErrorPrinter receives each failure envelope exactly once.
	// Nil selects PrintEnvelope; use a no-op function to silence it.
	ErrorPrinter func(*types.ErrorEnvelope)

	// Observer receives lifecycle events
	Observer observe.Observer

	// Logger optionally records pool activity
	Logger *slog.Logger

	// Clock provides time operations (for testing)
	Clock types.Clock
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		NumWorkers:        runtime.GOMAXPROCS(0),
		ChunkSize:         1,
		InFlightPerWorker: 1,
		Ordered:           true,
		CloseOnDrain:      true,
		JoinTimeout:       5 * time.Second,
		Clock:             types.NewRealClock(),
	}
}

// WithTransport overrides how worker channel pairs are constructed.
// The default is in-process channels sized to the in-flight bound.
func WithTransport[T, R any](factory transport.Factory[T, R]) types.Option[*coordinator[T, R]] {
	return func(c *coordinator[T, R]) {
		c.transport = factory
	}
}
