// Package lifecycle gates promotion of a patch event through its fixed
// seven-state chain:
//
//	DEV_EVIDENCE_CAPTURED -> DEV_VERIFIED -> STAGE_CR_READY -> STAGE_PATCHED
//	  -> PROD_CR_READY -> PROD_PATCHED -> CLOSED
//
// Every state has at most one successor. Moving to STAGE_CR_READY or any later
// state requires DEV evidence; the guard is evaluated on every call because the
// evidence flag can be revoked by the caller.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/yourorg/patch-tracker/internal/model"
)

// Initial is the state of a newly created patch event. It is also the state
// assumed by AllowedTransitions when the stored code is empty or unknown.
const Initial = model.StateDevEvidenceCaptured

var ErrInvalidTransition = errors.New("invalid state transition")

// TransitionError reports a rejected transition. It matches ErrInvalidTransition.
type TransitionError struct {
	From   model.StateCode
	To     model.StateCode
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("transition from %s to %s is not allowed", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

var chain = []model.StateCode{
	model.StateDevEvidenceCaptured,
	model.StateDevVerified,
	model.StateStageCRReady,
	model.StateStagePatched,
	model.StateProdCRReady,
	model.StateProdPatched,
	model.StateClosed,
}

var transitions = map[model.StateCode]model.StateCode{
	model.StateDevEvidenceCaptured: model.StateDevVerified,
	model.StateDevVerified:         model.StateStageCRReady,
	model.StateStageCRReady:        model.StateStagePatched,
	model.StateStagePatched:        model.StateProdCRReady,
	model.StateProdCRReady:         model.StateProdPatched,
	model.StateProdPatched:         model.StateClosed,
}

// All returns the lifecycle codes in chain order.
func All() []model.StateCode {
	out := make([]model.StateCode, len(chain))
	copy(out, chain)
	return out
}

// Ordinal returns the 1-based position of code in the chain, 0 if unknown.
func Ordinal(code model.StateCode) int {
	for i, c := range chain {
		if c == code {
			return i + 1
		}
	}
	return 0
}

func Valid(code model.StateCode) bool {
	return Ordinal(code) > 0
}

// AtOrAfter reports whether code is a known state at or past ref.
func AtOrAfter(code, ref model.StateCode) bool {
	o := Ordinal(code)
	return o > 0 && o >= Ordinal(ref)
}

// Resolve maps empty or unknown codes to Initial. This fallback only feeds
// AllowedTransitions; Transition never repairs a stored code.
func Resolve(code model.StateCode) model.StateCode {
	if Valid(code) {
		return code
	}
	return Initial
}

func requiresEvidence(target model.StateCode) bool {
	return AtOrAfter(target, model.StateStageCRReady)
}

// next is the single transition table lookup: state x evidence -> successor.
func next(state model.StateCode, hasEvidence bool) (model.StateCode, bool) {
	target, ok := transitions[state]
	if !ok {
		return "", false
	}
	if requiresEvidence(target) && !hasEvidence {
		return "", false
	}
	return target, true
}

// AllowedTransitions returns the legal next states for event: empty or a
// single code.
func AllowedTransitions(event model.PatchEvent) []model.StateCode {
	target, ok := next(Resolve(event.CurrentStateCode), event.DevEvidenceAvailable)
	if !ok {
		return []model.StateCode{}
	}
	return []model.StateCode{target}
}

// CanTransition returns true when target is in AllowedTransitions(event).
func CanTransition(event model.PatchEvent, target model.StateCode) bool {
	for _, candidate := range AllowedTransitions(event) {
		if candidate == target {
			return true
		}
	}
	return false
}

// Hook runs after a patch event enters a state. A returned error undoes the
// transition on the event.
type Hook func(event *model.PatchEvent) error

// Machine applies transitions and dispatches per-state enter hooks.
type Machine struct {
	hooks map[model.StateCode]Hook
}

func NewMachine() *Machine {
	return &Machine{hooks: map[model.StateCode]Hook{}}
}

// OnEnter registers hook for code, replacing any previous one.
func (m *Machine) OnEnter(code model.StateCode, hook Hook) {
	if hook == nil {
		delete(m.hooks, code)
		return
	}
	m.hooks[code] = hook
}

// Transition moves event to target or returns a *TransitionError. It is the
// only place that writes CurrentStateCode.
func (m *Machine) Transition(event *model.PatchEvent, target model.StateCode) error {
	if event == nil {
		return errors.New("patch event is required")
	}
	current := event.CurrentStateCode

	// Checked ahead of the table so closing depends on the stored code alone.
	if target == model.StateClosed && current != model.StateProdPatched {
		return &TransitionError{
			From:   current,
			To:     target,
			Reason: "cannot close patch event unless PROD is patched",
		}
	}
	if !Valid(current) {
		return &TransitionError{
			From:   current,
			To:     target,
			Reason: fmt.Sprintf("patch event has unrecognized state %q; transition to %s refused", current, target),
		}
	}
	if !CanTransition(*event, target) {
		return &TransitionError{From: current, To: target}
	}

	event.CurrentStateCode = target
	if hook := m.hooks[target]; hook != nil {
		if err := hook(event); err != nil {
			event.CurrentStateCode = current
			return fmt.Errorf("enter %s: %w", target, err)
		}
	}
	return nil
}
