package bot

import (
	"errors"
	"fmt"
)

// Kind tags a failure so the supervisor can tell them apart without
// string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindBrowser
	KindElementNotFound
	KindTimeout
	KindAuthChallenge
	KindToggle
	KindJoinNotFound
	KindRecorder
	KindInterrupt
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindBrowser:
		return "browser"
	case KindElementNotFound:
		return "element_not_found"
	case KindTimeout:
		return "timeout"
	case KindAuthChallenge:
		return "auth_challenge_required"
	case KindToggle:
		return "toggle_failure"
	case KindJoinNotFound:
		return "join_not_found"
	case KindRecorder:
		return "recorder_invocation_failure"
	case KindInterrupt:
		return "interrupt"
	}
	return "unknown"
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &Error{Kind: KindJoinNotFound}) match on kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
