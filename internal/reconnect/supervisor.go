// Package reconnect watches for broker connection loss and drives reconnect
// attempts with exponential backoff. It reports outcomes through callbacks,
// never exceptions: the triggering events arrive on background goroutines with
// no synchronous caller.
package reconnect

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

// State of the supervisor. Stopped is terminal for one reconnect episode; a
// later OnConnectionLost starts a fresh one.
type State string

const (
	StateIdle         State = "idle"
	StateReconnecting State = "reconnecting"
	StateStopped      State = "stopped"
)

// Config tunes the retry behavior.
type Config struct {
	Enabled           bool
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// ResetAfterSuccess: a connection stable for at least this long earns a
	// fresh retry budget on the next loss.
	ResetAfterSuccess time.Duration
}

// DefaultConfig mirrors conservative gateway defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		MaxAttempts:       5,
		InitialDelay:      5 * time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2.0,
		ResetAfterSuccess: 5 * time.Minute,
	}
}

// Callbacks are the externally supplied hooks. Connect and IsConnected are
// required; the four notification hooks are optional. Panics inside any hook
// are recovered and logged, never allowed to abort the reconnect loop.
type Callbacks struct {
	Connect     func() error
	IsConnected func() bool
	OnStart     func()
	OnSuccess   func()
	OnFailed    func(attempt int)
	OnExhausted func()
}

// Supervisor runs at most one reconnect loop at a time. Construct once at
// process start and share by reference.
type Supervisor struct {
	cfg Config
	cb  Callbacks

	mu             sync.Mutex
	state          State
	attempts       int
	lastSuccess    time.Time
	lastDisconnect time.Time
	stopCh         chan struct{}
	doneCh         chan struct{}
}

// New creates an idle supervisor.
func New(cfg Config, cb Callbacks) *Supervisor {
	return &Supervisor{cfg: cfg, cb: cb, state: StateIdle}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns the current attempt counter.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// IsReconnecting reports whether the attempt loop is running.
func (s *Supervisor) IsReconnecting() bool {
	return s.State() == StateReconnecting
}

// OnConnectionLost starts the attempt loop. Duplicate loss signals while
// already reconnecting are ignored. A long stable connection since the last
// success resets the attempt budget.
func (s *Supervisor) OnConnectionLost() {
	if !s.cfg.Enabled {
		log.Printf("reconnect: disabled, not attempting reconnection")
		return
	}

	s.mu.Lock()
	s.lastDisconnect = time.Now()
	if s.state == StateReconnecting {
		s.mu.Unlock()
		log.Printf("reconnect: already reconnecting, ignoring duplicate disconnect")
		return
	}
	if !s.lastSuccess.IsZero() && time.Since(s.lastSuccess) > s.cfg.ResetAfterSuccess {
		s.attempts = 0
	}
	s.state = StateReconnecting
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	log.Printf("reconnect: connection lost, starting auto-reconnect")
	go s.loop(stopCh, doneCh)
}

// OnConnectionSuccess records a successful connection (e.g. after a manual
// reconnect) and resets the attempt counter regardless of state.
func (s *Supervisor) OnConnectionSuccess() {
	s.mu.Lock()
	s.lastSuccess = time.Now()
	s.attempts = 0
	s.mu.Unlock()
}

// Stop signals the loop to exit at its next interruptible point and waits for
// it with a short bound. Safe to call when not reconnecting.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh = nil
	s.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		log.Printf("reconnect: attempt loop did not exit within bound")
	}
}

// Reset stops any ongoing attempts and clears all state.
func (s *Supervisor) Reset() {
	s.Stop()
	s.mu.Lock()
	s.state = StateIdle
	s.attempts = 0
	s.lastSuccess = time.Time{}
	s.lastDisconnect = time.Time{}
	s.mu.Unlock()
}

func (s *Supervisor) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	s.invoke("on_start", s.cb.OnStart)

	delay := s.cfg.InitialDelay
	for {
		if stopped(stopCh) {
			s.setState(StateIdle)
			return
		}
		if s.connected() {
			log.Printf("reconnect: already connected, stopping")
			s.setState(StateIdle)
			return
		}

		s.mu.Lock()
		if s.attempts >= s.cfg.MaxAttempts {
			s.state = StateStopped
			s.mu.Unlock()
			log.Printf("reconnect: all %d attempts exhausted", s.cfg.MaxAttempts)
			s.invoke("on_exhausted", s.cb.OnExhausted)
			return
		}
		s.attempts++
		attempt := s.attempts
		s.mu.Unlock()

		log.Printf("reconnect: attempt %d/%d in %s", attempt, s.cfg.MaxAttempts, delay)
		if !s.sleep(delay, stopCh) {
			s.setState(StateIdle)
			return
		}
		// Connectivity may have returned during the wait.
		if s.connected() {
			log.Printf("reconnect: connected during wait, stopping")
			s.setState(StateIdle)
			return
		}

		if err := s.connect(); err != nil {
			log.Printf("reconnect: attempt %d failed: %v", attempt, err)
			if s.cb.OnFailed != nil {
				s.invoke("on_failed", func() { s.cb.OnFailed(attempt) })
			}
			delay = time.Duration(math.Min(
				float64(delay)*s.cfg.BackoffMultiplier,
				float64(s.cfg.MaxDelay),
			))
			continue
		}

		log.Printf("reconnect: successful after %d attempt(s)", attempt)
		s.setState(StateIdle)
		s.OnConnectionSuccess()
		s.invoke("on_success", s.cb.OnSuccess)
		return
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Supervisor) connected() bool {
	if s.cb.IsConnected == nil {
		return false
	}
	return s.cb.IsConnected()
}

// connect runs the supplied connect callback, converting a panic into a
// failed attempt.
func (s *Supervisor) connect() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{r}
		}
	}()
	if s.cb.Connect == nil {
		return &panicError{"no connect callback configured"}
	}
	return s.cb.Connect()
}

// invoke runs an optional notification hook, recovering panics so a bad hook
// can never kill the loop.
func (s *Supervisor) invoke(name string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("reconnect: %s callback panicked: %v", name, r)
		}
	}()
	fn()
}

// sleep waits for d, interruptible in sub-second slices so a stop request
// takes effect promptly. It reports false when stopped.
func (s *Supervisor) sleep(d time.Duration, stopCh chan struct{}) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := 500 * time.Millisecond
		if remaining < slice {
			slice = remaining
		}
		select {
		case <-stopCh:
			return false
		case <-time.After(slice):
		}
	}
}

func stopped(stopCh chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

type panicError struct{ v any }

func (e *panicError) Error() string {
	return fmt.Sprintf("connect callback panicked: %v", e.v)
}
