package query

import (
	"errors"
	"fmt"
	"sync"
	"time"

	cerrors "github.com/g302ge/cnosdb/internal/errors"
	"github.com/g302ge/cnosdb/internal/meta"
	"github.com/g302ge/cnosdb/pkg/types"
)

// ErrInvalidTransition is wrapped by every rejected state change.
var ErrInvalidTransition = errors.New("invalid query state transition")

// QueryState is a step of the statement lifecycle.
type QueryState int

const (
	StateCreated QueryState = iota
	StateAnalyzing
	StateAnalyzed
	StateExecuting
	StateSucceeded
	StateFailed
)

func (s QueryState) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateAnalyzing:
		return "ANALYZING"
	case StateAnalyzed:
		return "ANALYZED"
	case StateExecuting:
		return "EXECUTING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("QueryState(%d)", int(s))
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s QueryState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// StateTransition is one entry of the lifecycle history.
type StateTransition struct {
	State QueryState
	At    time.Time
}

// StateMachineOption configures a QueryStateMachine.
type StateMachineOption func(*QueryStateMachine)

// WithClock replaces the time source.
func WithClock(clock func() time.Time) StateMachineOption {
	return func(sm *QueryStateMachine) {
		sm.clock = clock
	}
}

// QueryStateMachine tracks one statement from creation to a terminal state.
// The exported fields are fixed at construction; state and history are
// guarded and safe for concurrent readers.
type QueryStateMachine struct {
	QueryID types.QueryID
	Query   *Query
	Session *Session
	Meta    meta.CatalogView

	mu      sync.RWMutex
	state   QueryState
	history []StateTransition
	clock   func() time.Time
}

// NewQueryStateMachine creates a state machine in StateCreated.
func NewQueryStateMachine(id types.QueryID, q *Query, session *Session, view meta.CatalogView, opts ...StateMachineOption) *QueryStateMachine {
	sm := &QueryStateMachine{
		QueryID: id,
		Query:   q,
		Session: session,
		Meta:    view,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(sm)
	}
	sm.history = []StateTransition{{State: StateCreated, At: sm.clock()}}
	return sm
}

func (sm *QueryStateMachine) BeginAnalyze() error {
	return sm.transition(StateCreated, StateAnalyzing)
}

func (sm *QueryStateMachine) EndAnalyze() error {
	return sm.transition(StateAnalyzing, StateAnalyzed)
}

func (sm *QueryStateMachine) BeginExecute() error {
	return sm.transition(StateAnalyzed, StateExecuting)
}

func (sm *QueryStateMachine) Succeed() error {
	return sm.transition(StateExecuting, StateSucceeded)
}

// Fail moves any non-terminal state to StateFailed.
func (sm *QueryStateMachine) Fail() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state.IsTerminal() {
		return sm.invalid(StateFailed)
	}
	sm.record(StateFailed)
	return nil
}

func (sm *QueryStateMachine) transition(from, to QueryState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != from {
		return sm.invalid(to)
	}
	sm.record(to)
	return nil
}

// invalid must be called with mu held.
func (sm *QueryStateMachine) invalid(to QueryState) error {
	return cerrors.AnalyzerError(
		fmt.Sprintf("cannot move query %s from %s to %s", sm.QueryID, sm.state, to),
		ErrInvalidTransition,
	)
}

// record must be called with mu held. Timestamps never go backwards.
func (sm *QueryStateMachine) record(state QueryState) {
	at := sm.clock()
	if last := sm.history[len(sm.history)-1].At; at.Before(last) {
		at = last
	}
	sm.state = state
	sm.history = append(sm.history, StateTransition{State: state, At: at})
}

// State returns the current state.
func (sm *QueryStateMachine) State() QueryState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// History returns a copy of all transitions in order.
func (sm *QueryStateMachine) History() []StateTransition {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]StateTransition, len(sm.history))
	copy(out, sm.history)
	return out
}

// AnalyzeDuration is the time spent analyzing, or until now while still analyzing.
func (sm *QueryStateMachine) AnalyzeDuration() time.Duration {
	return sm.span(StateAnalyzing)
}

// ExecuteDuration is the time spent executing, or until now while still executing.
func (sm *QueryStateMachine) ExecuteDuration() time.Duration {
	return sm.span(StateExecuting)
}

// span measures from entering state to the next transition.
func (sm *QueryStateMachine) span(state QueryState) time.Duration {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for i, tr := range sm.history {
		if tr.State != state {
			continue
		}
		if i+1 < len(sm.history) {
			return sm.history[i+1].At.Sub(tr.At)
		}
		if d := sm.clock().Sub(tr.At); d > 0 {
			return d
		}
		return 0
	}
	return 0
}
