/*
engine.go - Leave engine construction and shared plumbing

PURPOSE:
  Engine is the single entry point for the three components:
  - Employee Directory (directory.go)
  - Leave Ledger Engine (ledger.go)
  - Balance Accessor (balance.go)

  Every mutating operation runs as one TxStore.WithTx call, so the
  checks it makes and the writes it performs commit atomically.

DEPENDENCIES (injected via options):
  Clock:      Today's date for temporal rules (default: system clock)
  Authorizer: Gate for status decisions (default: DenyAll)
  Logger:     zerolog logger (default: disabled)
  Observer:   Called after each committed status change (default: none)
  IDs:        Identifier generator (default: random UUID)

ERROR FLOW:
  Business-rule failures are returned as-is. Any other failure coming out
  of the store is wrapped in *StorageError. Nothing is retried.

SEE ALSO:
  - store.go: Store/TxStore interfaces
  - errors.go: Failure kinds
*/
package leave

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warp/leave-engine/calendar"
)

// Observer is told about every committed transition. from is empty for a
// newly created request.
type Observer func(req LeaveRequest, from Status)

// Engine holds the leave engine's dependencies.
type Engine struct {
	store      TxStore
	clock      calendar.Clock
	authorizer Authorizer
	log        zerolog.Logger
	observe    Observer
	newID      func() string
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the source of today's date.
func WithClock(c calendar.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithAuthorizer sets the gate consulted by UpdateStatus.
func WithAuthorizer(a Authorizer) Option {
	return func(e *Engine) { e.authorizer = a }
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l.With().Str("component", "leave.engine").Logger() }
}

// WithObserver registers a callback for committed transitions.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observe = o }
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

// NewEngine creates an engine over store.
func NewEngine(store TxStore, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		clock:      calendar.SystemClock,
		authorizer: DenyAll,
		log:        zerolog.Nop(),
		observe:    func(LeaveRequest, Status) {},
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Today returns the engine's notion of the current date.
func (e *Engine) Today() calendar.Date {
	return e.clock()
}

// fail logs err and lifts raw store failures into *StorageError.
func (e *Engine) fail(op string, err error) error {
	var se *StorageError
	switch {
	case errors.As(err, &se):
		e.log.Error().Err(err).Str("op", op).Msg("store failure")
		return err
	case Code(err) != "":
		e.log.Warn().Err(err).Str("op", op).Str("code", Code(err)).Msg("request rejected")
		return err
	default:
		e.log.Error().Err(err).Str("op", op).Msg("store failure")
		return storageError(op, err)
	}
}
