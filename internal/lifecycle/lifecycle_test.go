package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/patch-tracker/internal/model"
)

func event(code model.StateCode, evidence bool) model.PatchEvent {
	return model.PatchEvent{ID: 1, CurrentStateCode: code, DevEvidenceAvailable: evidence}
}

func TestAllowedTransitions(t *testing.T) {
	tests := []struct {
		name     string
		state    model.StateCode
		evidence bool
		want     []model.StateCode
	}{
		{"captured without evidence", model.StateDevEvidenceCaptured, false, []model.StateCode{model.StateDevVerified}},
		{"captured with evidence", model.StateDevEvidenceCaptured, true, []model.StateCode{model.StateDevVerified}},
		{"verified without evidence", model.StateDevVerified, false, []model.StateCode{}},
		{"verified with evidence", model.StateDevVerified, true, []model.StateCode{model.StateStageCRReady}},
		{"stage cr ready", model.StateStageCRReady, true, []model.StateCode{model.StateStagePatched}},
		{"stage patched", model.StateStagePatched, true, []model.StateCode{model.StateProdCRReady}},
		{"prod cr ready", model.StateProdCRReady, true, []model.StateCode{model.StateProdPatched}},
		{"prod patched", model.StateProdPatched, true, []model.StateCode{model.StateClosed}},
		{"prod patched evidence revoked", model.StateProdPatched, false, []model.StateCode{}},
		{"closed is terminal", model.StateClosed, true, []model.StateCode{}},
		{"empty falls back to initial", "", false, []model.StateCode{model.StateDevVerified}},
		{"unknown falls back to initial", "NOT_A_STATE", true, []model.StateCode{model.StateDevVerified}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AllowedTransitions(event(tc.state, tc.evidence)))
		})
	}
}

func TestAllowedTransitionsEvidenceGuard(t *testing.T) {
	for _, state := range All() {
		for _, evidence := range []bool{false, true} {
			got := AllowedTransitions(event(state, evidence))
			assert.LessOrEqual(t, len(got), 1, "state %s", state)
			for _, target := range got {
				if !evidence {
					assert.False(t, AtOrAfter(target, model.StateStageCRReady),
						"state %s offered %s without evidence", state, target)
				}
			}
		}
	}
}

func TestTransitionAlongChain(t *testing.T) {
	m := NewMachine()
	ev := event(model.StateDevEvidenceCaptured, true)
	chainStates := All()
	for _, target := range chainStates[1:] {
		require.NoError(t, m.Transition(&ev, target))
		assert.Equal(t, target, ev.CurrentStateCode)
	}
	assert.Empty(t, AllowedTransitions(ev))
}

func TestTransitionToClosedOnlyFromProdPatched(t *testing.T) {
	m := NewMachine()
	for _, state := range All() {
		ev := event(state, true)
		err := m.Transition(&ev, model.StateClosed)
		if state == model.StateProdPatched {
			require.NoError(t, err)
			assert.Equal(t, model.StateClosed, ev.CurrentStateCode)
			continue
		}
		require.Error(t, err, "state %s", state)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, state, ev.CurrentStateCode)
	}
}

func TestTransitionRejectsSkipsAndBackwardMoves(t *testing.T) {
	m := NewMachine()
	ev := event(model.StateDevVerified, true)

	err := m.Transition(&ev, model.StateStagePatched)
	var terr *TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, model.StateDevVerified, terr.From)
	assert.Equal(t, model.StateStagePatched, terr.To)
	assert.Equal(t, "transition from DEV_VERIFIED to STAGE_PATCHED is not allowed", err.Error())

	assert.ErrorIs(t, m.Transition(&ev, model.StateDevEvidenceCaptured), ErrInvalidTransition)
	assert.ErrorIs(t, m.Transition(&ev, model.StateDevVerified), ErrInvalidTransition)
	assert.Equal(t, model.StateDevVerified, ev.CurrentStateCode)
}

func TestTransitionWithoutEvidence(t *testing.T) {
	m := NewMachine()
	ev := event(model.StateDevVerified, false)
	assert.ErrorIs(t, m.Transition(&ev, model.StateStageCRReady), ErrInvalidTransition)

	ev.DevEvidenceAvailable = true
	require.NoError(t, m.Transition(&ev, model.StateStageCRReady))

	ev.DevEvidenceAvailable = false
	assert.ErrorIs(t, m.Transition(&ev, model.StateStagePatched), ErrInvalidTransition)
}

func TestTransitionDoesNotRepairUnknownState(t *testing.T) {
	m := NewMachine()
	ev := event("LEGACY_STATE", true)
	err := m.Transition(&ev, model.StateDevVerified)

	var terr *TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, model.StateCode("LEGACY_STATE"), terr.From)
	assert.Equal(t, model.StateCode("LEGACY_STATE"), ev.CurrentStateCode)
}

func TestEnterHooks(t *testing.T) {
	m := NewMachine()
	var entered []model.StateCode
	m.OnEnter(model.StateDevVerified, func(ev *model.PatchEvent) error {
		entered = append(entered, ev.CurrentStateCode)
		return nil
	})
	m.OnEnter(model.StateStageCRReady, func(*model.PatchEvent) error {
		return errors.New("ticket system unavailable")
	})

	ev := event(model.StateDevEvidenceCaptured, true)
	require.NoError(t, m.Transition(&ev, model.StateDevVerified))
	assert.Equal(t, []model.StateCode{model.StateDevVerified}, entered)

	err := m.Transition(&ev, model.StateStageCRReady)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ticket system unavailable")
	assert.Equal(t, model.StateDevVerified, ev.CurrentStateCode)

	m.OnEnter(model.StateStageCRReady, nil)
	require.NoError(t, m.Transition(&ev, model.StateStageCRReady))
}

func TestOrdering(t *testing.T) {
	assert.Equal(t, 1, Ordinal(model.StateDevEvidenceCaptured))
	assert.Equal(t, 7, Ordinal(model.StateClosed))
	assert.Equal(t, 0, Ordinal("bogus"))
	assert.True(t, AtOrAfter(model.StateClosed, model.StateStagePatched))
	assert.False(t, AtOrAfter(model.StateProdCRReady, model.StateProdPatched))
	assert.False(t, AtOrAfter("bogus", model.StateDevEvidenceCaptured))
	assert.Equal(t, Initial, Resolve(""))
	assert.Equal(t, model.StateStagePatched, Resolve(model.StateStagePatched))
}
