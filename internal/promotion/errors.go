package promotion

import "errors"

var (
	ErrPreconditionNotMet = errors.New("precondition not met")
	ErrInvalidInput       = errors.New("invalid input")
)

type Reason string

const (
	ReasonMissingSnapshots Reason = "MissingSnapshots"
	ReasonEvidenceNotReady Reason = "EvidenceNotReady"
	ReasonStateNotReady    Reason = "StateNotReady"
)

// PreconditionError reports an operation refused because evidence, snapshots
// or lifecycle state are not yet in place. Message is user facing.
type PreconditionError struct {
	Reason  Reason
	Message string
}

func (e *PreconditionError) Error() string { return e.Message }

func (e *PreconditionError) Unwrap() error { return ErrPreconditionNotMet }

func precondition(reason Reason, msg string) error {
	return &PreconditionError{Reason: reason, Message: msg}
}

// InputError reports a rejected create request.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Unwrap() error { return ErrInvalidInput }
