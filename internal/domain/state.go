package domain

import (
	"errors"
	"fmt"
	"strings"
)

// StateKind is the category a concrete task state belongs to.
type StateKind int

const (
	KindUnstarted StateKind = iota
	KindStarted
	KindFailed
	KindTimedOut
	KindCompleted
	KindRejected
)

// Canonical concrete state names. Completed/Rejected families have named
// sub-variants; callers may also mint their own via the *As constructors.
const (
	NameUnstarted = "Unstarted"
	NameStarted   = "Started"
	NameCompleted = "Completed"
	NameSucceeded = "Succeeded"
	NameTimedOut  = "TimedOut"
	NameFailed    = "Failed"
	NameRejected  = "Rejected"
	NameDiscarded = "Discarded"
	NameAbandoned = "Abandoned"
)

var (
	ErrMissingError  = errors.New("missing error")
	ErrMissingReason = errors.New("missing reason")
)

// rank positions each kind on the progress order used for least-advanced
// reductions: Unstarted < Started < Failed = TimedOut < Completed < Rejected.
// Ties between Failed and TimedOut fall back to kind declaration order.
func (k StateKind) rank() int {
	switch k {
	case KindUnstarted:
		return 0
	case KindStarted:
		return 1
	case KindFailed, KindTimedOut:
		return 2
	case KindCompleted:
		return 3
	case KindRejected:
		return 4
	default:
		return -1
	}
}

func (k StateKind) String() string {
	switch k {
	case KindUnstarted:
		return NameUnstarted
	case KindStarted:
		return NameStarted
	case KindFailed:
		return NameFailed
	case KindTimedOut:
		return NameTimedOut
	case KindCompleted:
		return NameCompleted
	case KindRejected:
		return NameRejected
	default:
		return fmt.Sprintf("StateKind(%d)", int(k))
	}
}

// State is an immutable task state value. The zero value is Unstarted.
type State struct {
	kind   StateKind
	name   string
	reason string
	err    error
}

func Unstarted() State { return State{kind: KindUnstarted, name: NameUnstarted} }
func Started() State   { return State{kind: KindStarted, name: NameStarted} }
func Completed() State { return State{kind: KindCompleted, name: NameCompleted} }

// Succeeded is the named success sub-variant of the Completed family.
func Succeeded() State { return State{kind: KindCompleted, name: NameSucceeded} }

// CompletedAs mints a custom-named state in the Completed family.
func CompletedAs(name string) State {
	return State{kind: KindCompleted, name: stateName(name, NameCompleted)}
}

// Failed requires a cause; a failure without one is a caller bug.
func Failed(err error) (State, error) { return FailedAs(NameFailed, err) }

func FailedAs(name string, err error) (State, error) {
	if err == nil {
		return State{}, fmt.Errorf("%w: %s state requires an error", ErrMissingError, stateName(name, NameFailed))
	}
	return State{kind: KindFailed, name: stateName(name, NameFailed), err: err}, nil
}

// TimedOut carries an optional error describing the deadline that fired.
func TimedOut(err error) State { return TimedOutAs(NameTimedOut, err) }

func TimedOutAs(name string, err error) State {
	return State{kind: KindTimedOut, name: stateName(name, NameTimedOut), err: err}
}

// Rejected requires a reason; the error is optional context.
func Rejected(reason string, err error) (State, error) { return RejectedAs(NameRejected, reason, err) }

func Discarded(reason string, err error) (State, error) {
	return RejectedAs(NameDiscarded, reason, err)
}

func Abandoned(reason string, err error) (State, error) {
	return RejectedAs(NameAbandoned, reason, err)
}

func RejectedAs(name, reason string, err error) (State, error) {
	if strings.TrimSpace(reason) == "" {
		return State{}, fmt.Errorf("%w: %s state requires a reason", ErrMissingReason, stateName(name, NameRejected))
	}
	return State{kind: KindRejected, name: stateName(name, NameRejected), reason: reason, err: err}, nil
}

func stateName(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}

func (s State) Kind() StateKind { return s.kind }
func (s State) Reason() string  { return s.reason }
func (s State) Err() error      { return s.err }

func (s State) Name() string {
	if s.name == "" {
		return s.kind.String()
	}
	return s.name
}

func (s State) String() string { return s.Name() }

func (s State) Unstarted() bool { return s.kind == KindUnstarted }
func (s State) Started() bool   { return s.kind == KindStarted }
func (s State) Completed() bool { return s.kind == KindCompleted }
func (s State) TimedOut() bool  { return s.kind == KindTimedOut }
func (s State) Failed() bool    { return s.kind == KindFailed }
func (s State) Rejected() bool  { return s.kind == KindRejected }

// Incomplete reports whether the task still has work outstanding. Failed and
// TimedOut are incomplete: both are retryable, not terminal.
func (s State) Incomplete() bool { return !s.Completed() && !s.Rejected() }

// Finalised reports whether the state is terminal for normal purposes.
func (s State) Finalised() bool { return s.Completed() || s.Rejected() }

// Compare orders states by progress: negative when a is less advanced than
// b, zero only when both kinds are identical. Failed and TimedOut share a
// rank; the earlier-declared kind wins the tie.
func Compare(a, b State) int {
	if ra, rb := a.kind.rank(), b.kind.rank(); ra != rb {
		return ra - rb
	}
	return int(a.kind) - int(b.kind)
}

// LeastAdvanced picks the minimum state under Compare. With no arguments it
// returns Unstarted.
func LeastAdvanced(states ...State) State {
	if len(states) == 0 {
		return Unstarted()
	}
	least := states[0]
	for _, s := range states[1:] {
		if Compare(s, least) < 0 {
			least = s
		}
	}
	return least
}

// StateSnapshot is the serializable form of a State. Kind records the family
// explicitly: custom names like "DeadlineHit" carry no payload to classify
// by, and guessing from reason/error presence would turn a retryable state
// into a finalised one.
type StateSnapshot struct {
	Kind   string `json:"kind,omitempty"`
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s State) Snapshot() StateSnapshot {
	snap := StateSnapshot{Kind: s.kind.String(), Name: s.Name(), Reason: s.reason}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

func kindFromName(name string) (StateKind, bool) {
	switch name {
	case NameUnstarted:
		return KindUnstarted, true
	case NameStarted:
		return KindStarted, true
	case NameFailed:
		return KindFailed, true
	case NameTimedOut:
		return KindTimedOut, true
	case NameCompleted:
		return KindCompleted, true
	case NameRejected:
		return KindRejected, true
	}
	return 0, false
}

// StateFromSnapshot reconstructs a State from its serialized form. The kind
// field is authoritative when present. Older snapshots without one fall back
// to canonical-name matching, then classify custom names by payload (a
// reason means rejected family, an error means failed, otherwise completed).
// Errors are rebuilt as opaque error values.
func StateFromSnapshot(snap StateSnapshot) State {
	var err error
	if snap.Error != "" {
		err = errors.New(snap.Error)
	}
	if kind, ok := kindFromName(snap.Kind); ok {
		return State{kind: kind, name: stateName(snap.Name, kind.String()), reason: snap.Reason, err: err}
	}
	switch snap.Name {
	case NameUnstarted, "":
		return Unstarted()
	case NameStarted:
		return Started()
	case NameCompleted, NameSucceeded:
		return State{kind: KindCompleted, name: snap.Name}
	case NameFailed:
		return State{kind: KindFailed, name: snap.Name, err: err}
	case NameTimedOut:
		return State{kind: KindTimedOut, name: snap.Name, err: err}
	case NameRejected, NameDiscarded, NameAbandoned:
		return State{kind: KindRejected, name: snap.Name, reason: snap.Reason, err: err}
	}
	// Custom-named variants: reason implies rejected family, error implies
	// failed, otherwise completed.
	switch {
	case snap.Reason != "":
		return State{kind: KindRejected, name: snap.Name, reason: snap.Reason, err: err}
	case err != nil:
		return State{kind: KindFailed, name: snap.Name, err: err}
	default:
		return State{kind: KindCompleted, name: snap.Name}
	}
}
