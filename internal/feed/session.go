package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fragmede/essay/internal/auth"
	"github.com/fragmede/essay/internal/clock"
)

// DefaultTransientDelay is how long a pushed result stays flagged as new.
const DefaultTransientDelay = 2500 * time.Millisecond

type Status int

const (
	StatusIdle Status = iota
	StatusActive
	StatusError
	StatusNeedsLogin
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusActive:
		return "active"
	case StatusError:
		return "error"
	case StatusNeedsLogin:
		return "needs-login"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Handlers receive events for one subscription.
type Handlers[T any] struct {
	OnNext  func(T)
	OnError func(error)
}

// Subscription is an open server stream.
type Subscription interface {
	Close() error
}

// Subscriber opens streams. Handlers may be called from any goroutine until
// Close returns or ctx is cancelled.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context, vars Variables, h Handlers[T]) (Subscription, error)
}

// Authenticator performs an interactive or token login for a service.
type Authenticator interface {
	Login(ctx context.Context, service string) error
	IsLoggedIn(ctx context.Context, service string) (bool, error)
}

// State is a snapshot of a Session.
type State[T any] struct {
	Status     Status
	Variables  Variables
	LastResult *T
	LastError  error
	// Transient is true for the delay that follows each delivered result.
	Transient bool
	// NeedsLogin names the service to log into when Status is
	// StatusNeedsLogin.
	NeedsLogin string
	// Seq counts delivered results across restarts.
	Seq uint64
}

// Session keeps one live subscription open and records what it delivers.
// Every open gets a new generation; callbacks from an older generation are
// dropped, so a restart never sees late events from the stream it replaced.
type Session[T any] struct {
	mu       sync.Mutex
	sub      Subscriber[T]
	clock    clock.Clock
	delay    time.Duration
	log      zerolog.Logger
	classify func(error) []string
	onChange func(State[T])

	state  State[T]
	gen    uint64
	handle Subscription
	cancel context.CancelFunc
	timer  clock.Timer
}

type SessionOption[T any] func(*Session[T])

func WithClock[T any](c clock.Clock) SessionOption[T] {
	return func(s *Session[T]) { s.clock = c }
}

// WithTransientDelay overrides DefaultTransientDelay. Non-positive values
// are ignored.
func WithTransientDelay[T any](d time.Duration) SessionOption[T] {
	return func(s *Session[T]) {
		if d > 0 {
			s.delay = d
		}
	}
}

func WithLogger[T any](l zerolog.Logger) SessionOption[T] {
	return func(s *Session[T]) { s.log = l }
}

// WithClassifier replaces the function that maps an error to the services
// that need a login.
func WithClassifier[T any](f func(error) []string) SessionOption[T] {
	return func(s *Session[T]) { s.classify = f }
}

// WithOnChange registers a callback run after every state change, outside
// the session lock.
func WithOnChange[T any](f func(State[T])) SessionOption[T] {
	return func(s *Session[T]) { s.onChange = f }
}

func NewSession[T any](sub Subscriber[T], opts ...SessionOption[T]) *Session[T] {
	s := &Session[T]{
		sub:      sub,
		clock:    clock.Real(),
		delay:    DefaultTransientDelay,
		log:      zerolog.Nop(),
		classify: auth.MissingServices,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns a snapshot.
func (s *Session[T]) State() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Start closes any open subscription and opens a new one with vars.
func (s *Session[T]) Start(ctx context.Context, vars Variables) {
	s.open(ctx, vars, false)
}

// Restart clears the last result and error, then starts again with vars.
func (s *Session[T]) Restart(ctx context.Context, vars Variables) {
	s.open(ctx, vars, true)
}

// Stop closes the subscription and cancels the pending transient clear.
func (s *Session[T]) Stop() {
	s.mu.Lock()
	s.gen++
	old := s.teardown()
	s.state.Status = StatusIdle
	s.state.Transient = false
	snap := s.snapshot()
	s.mu.Unlock()

	closeQuietly(old, s.log)
	s.notify(snap)
}

// Recover logs into the service the session is waiting on, checks the
// login took and restarts with the current variables. On failure the
// session stays in StatusNeedsLogin and the error is returned.
func (s *Session[T]) Recover(ctx context.Context, a Authenticator) error {
	s.mu.Lock()
	status, service := s.state.Status, s.state.NeedsLogin
	vars := s.state.Variables.Clone()
	s.mu.Unlock()

	if status != StatusNeedsLogin || service == "" {
		return ErrLoginNotNeeded
	}

	if err := a.Login(ctx, service); err != nil {
		s.log.Warn().Err(err).Str("service", service).Msg("login failed")
		return fmt.Errorf("logging into %s: %w", service, err)
	}
	ok, err := a.IsLoggedIn(ctx, service)
	if err != nil {
		s.log.Warn().Err(err).Str("service", service).Msg("checking login")
		return fmt.Errorf("checking login to %s: %w", service, err)
	}
	if !ok {
		s.log.Info().Str("service", service).Msg("the user did not grant auth")
		return fmt.Errorf("not logged into %s", service)
	}

	s.log.Info().Str("service", service).Msg("logged in, restarting subscription")
	s.Restart(ctx, vars)
	return nil
}

func (s *Session[T]) open(ctx context.Context, vars Variables, reset bool) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	old := s.teardown()
	if reset {
		s.state.LastResult = nil
		s.state.LastError = nil
		s.state.Transient = false
	}
	s.state.Variables = vars.Clone()
	s.state.Status = StatusActive
	s.state.NeedsLogin = ""
	subCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	snap := s.snapshot()
	s.mu.Unlock()

	closeQuietly(old, s.log)
	s.notify(snap)

	h := Handlers[T]{
		OnNext:  func(v T) { s.next(gen, v) },
		OnError: func(err error) { s.fail(gen, err) },
	}
	handle, err := s.sub.Subscribe(subCtx, vars.Clone(), h)
	if err != nil {
		s.fail(gen, err)
		return
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		closeQuietly(handle, s.log)
		return
	}
	s.handle = handle
	s.mu.Unlock()
}

// teardown detaches the open subscription and timer. Must hold s.mu.
func (s *Session[T]) teardown() Subscription {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	old := s.handle
	s.handle = nil
	return old
}

func (s *Session[T]) next(gen uint64, v T) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state.LastResult = &v
	s.state.Transient = true
	s.state.Status = StatusActive
	s.state.Seq++
	seq := s.state.Seq
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(s.delay, func() { s.clearTransient(gen, seq) })
	snap := s.snapshot()
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Session[T]) clearTransient(gen, seq uint64) {
	s.mu.Lock()
	if gen != s.gen || seq != s.state.Seq || !s.state.Transient {
		s.mu.Unlock()
		return
	}
	s.state.Transient = false
	s.timer = nil
	snap := s.snapshot()
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Session[T]) fail(gen uint64, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	if services := s.classify(err); len(services) > 0 {
		s.state.Status = StatusNeedsLogin
		s.state.NeedsLogin = services[0]
		s.state.LastError = &AuthRequiredError{Service: services[0], Err: err}
	} else {
		s.state.Status = StatusError
		s.state.NeedsLogin = ""
		s.state.LastError = err
	}
	snap := s.snapshot()
	s.mu.Unlock()

	s.log.Warn().Err(err).Stringer("status", snap.Status).Msg("subscription error")
	s.notify(snap)
}

// snapshot must be called with s.mu held.
func (s *Session[T]) snapshot() State[T] {
	st := s.state
	st.Variables = s.state.Variables.Clone()
	if s.state.LastResult != nil {
		v := *s.state.LastResult
		st.LastResult = &v
	}
	return st
}

func (s *Session[T]) notify(st State[T]) {
	if s.onChange != nil {
		s.onChange(st)
	}
}

func closeQuietly(sub Subscription, log zerolog.Logger) {
	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		log.Debug().Err(err).Msg("closing subscription")
	}
}
