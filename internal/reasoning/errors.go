package reasoning

import "errors"

// Error classes returned by the manager, engine and formatter. Callers
// test with errors.Is; every returned error wraps exactly one of these.
var (
	// ErrInvalidArgument marks malformed or out-of-range input. No state is mutated.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks an unknown session id or preset name.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks a run on a terminal session or an out-of-sequence iteration.
	ErrInvalidState = errors.New("invalid state")
	// ErrProvider marks a failed completion call. The session is moved to error.
	ErrProvider = errors.New("provider error")
	// ErrCancelled marks a run abandoned by its caller. The session is left as it was.
	ErrCancelled = errors.New("cancelled")
)

// ParseWarning records that no quality score could be read from an
// iteration's final turn. It is attached to results, never returned as an error.
type ParseWarning struct {
	Iteration int    `json:"iteration"`
	Agent     string `json:"agent"`
	Message   string `json:"message"`
}

func (w ParseWarning) String() string {
	return w.Message
}
