package circuitbreaker

import (
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

type State int

const (
	StateClosed   State = iota // replica keeps its weight
	StateOpen                  // replica pushed to the back
	StateHalfOpen              // probing with its regular weight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

type Settings struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

func (s Settings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&s.ResetTimeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

// CircuitBreaker counts consecutive rejected calls to one replica.
type CircuitBreaker struct {
	mutex    sync.Mutex
	state    State
	failures int
	openedAt time.Time
	settings Settings
	now      func() time.Time
	onChange func(from, to State)
}

// New returns a closed breaker. onChange may be nil; it is called after the
// breaker's lock is released.
func New(settings Settings, now func() time.Time, onChange func(from, to State)) *CircuitBreaker {
	return &CircuitBreaker{
		state:    StateClosed,
		settings: settings,
		now:      now,
		onChange: onChange,
	}
}

// Allow reports whether the replica should keep its full weight. An open
// breaker moves to half-open once the reset timeout has passed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()

	if cb.state != StateOpen {
		cb.mutex.Unlock()
		return true
	}

	if cb.now().Sub(cb.openedAt) < cb.settings.ResetTimeout {
		cb.mutex.Unlock()
		return false
	}

	from := cb.moveTo(StateHalfOpen)
	cb.mutex.Unlock()

	cb.notify(from, StateHalfOpen)
	return true
}

// Record feeds one call outcome. Outcomes without a verdict leave the
// breaker untouched.
func (cb *CircuitBreaker) Record(verdict replica.Verdict) {
	switch verdict {
	case replica.Accept:
		cb.RecordSuccess()
	case replica.Reject:
		cb.RecordFailure()
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()

	cb.failures++
	if cb.state == StateOpen || (cb.state == StateClosed && cb.failures < cb.settings.FailureThreshold) {
		cb.mutex.Unlock()
		return
	}

	cb.openedAt = cb.now()
	from := cb.moveTo(StateOpen)
	cb.mutex.Unlock()

	cb.notify(from, StateOpen)
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()

	cb.failures = 0
	from := cb.moveTo(StateClosed)
	cb.mutex.Unlock()

	cb.notify(from, StateClosed)
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) moveTo(to State) (from State) {
	from = cb.state
	cb.state = to
	return from
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.onChange != nil {
		cb.onChange(from, to)
	}
}
