package hooks

import (
	"fmt"
	"sync"
	"time"

	"github.com/cklxx/taskctl/internal/logging"
)

// circuitState is the usual closed/open/half-open breaker state, keyed per
// hook name.
type circuitState int

const (
	stateClosed circuitState = iota
	stateOpen
	stateHalfOpen
)

func (s circuitState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// circuitBreaker trips a hook to open after failureThreshold consecutive
// failures (error or timeout), skipping subprocess invocation entirely for
// timeout before probing again in half-open. There is no generic
// ExecuteFunc helper since hook invocation always returns the same
// (decision, error) shape.
type circuitBreaker struct {
	name             string
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	log              logging.Logger

	mu              sync.Mutex
	state           circuitState
	failureCount    int
	successCount    int
	lastStateChange time.Time
}

func newCircuitBreaker(name string, failureThreshold int, timeout time.Duration, log logging.Logger) *circuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &circuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		successThreshold: 2,
		timeout:          timeout,
		log:              logging.OrNop(log),
		state:            stateClosed,
		lastStateChange:  time.Now(),
	}
}

// allow reports whether the subprocess should be invoked. When the circuit
// is open and its timeout has elapsed, it transitions to half-open. Calls are
// allowed while half-open; successThreshold successes close the circuit and
// any failure reopens it.
func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case stateClosed, stateHalfOpen:
		return true
	case stateOpen:
		if time.Since(cb.lastStateChange) >= cb.timeout {
			cb.transition(stateHalfOpen)
			return true
		}
		return false
	}
	return true
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
	switch cb.state {
	case stateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.transition(stateClosed)
		}
	case stateOpen:
		cb.transition(stateHalfOpen)
	}
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.successCount = 0
	cb.failureCount++
	if cb.state == stateHalfOpen || cb.failureCount >= cb.failureThreshold {
		cb.transition(stateOpen)
	}
}

func (cb *circuitBreaker) transition(to circuitState) {
	from := cb.state
	cb.state = to
	cb.lastStateChange = time.Now()
	cb.failureCount = 0
	cb.successCount = 0
	if from != to {
		cb.log.Info("hook %s circuit %s -> %s", cb.name, from, to)
	}
}

func (cb *circuitBreaker) String() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return fmt.Sprintf("%s:%s", cb.name, cb.state)
}
