package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/oceanlens/internal/media"
	"github.com/your-org/oceanlens/internal/models"
)

func TestNextTransitions(t *testing.T) {
	asset := &media.Asset{Validity: media.Valid}
	rec := &models.DetectionRecord{ID: 7}

	tests := []struct {
		name  string
		from  Phase
		event Event
		want  Phase
		err   error
	}{
		{"select from idle", PhaseIdle, Event{Kind: AssetSelected, Asset: asset}, PhaseIdle, nil},
		{"select after success", PhaseSucceeded, Event{Kind: AssetSelected, Asset: asset}, PhaseIdle, nil},
		{"select after failure", PhaseFailed, Event{Kind: AssetSelected, Asset: asset}, PhaseIdle, nil},
		{"select while submitting", PhaseSubmitting, Event{Kind: AssetSelected, Asset: asset}, PhaseSubmitting, ErrSubmissionInFlight},
		{"submit from idle", PhaseIdle, Event{Kind: SubmitRequested}, PhaseValidating, nil},
		{"submit from failed", PhaseFailed, Event{Kind: SubmitRequested}, PhaseValidating, nil},
		{"submit while submitting", PhaseSubmitting, Event{Kind: SubmitRequested}, PhaseSubmitting, ErrSubmissionInFlight},
		{"validation passed", PhaseValidating, Event{Kind: ValidationPassed}, PhaseSubmitting, nil},
		{"validation failed", PhaseValidating, Event{Kind: ValidationFailed}, PhaseFailed, nil},
		{"validation passed out of order", PhaseIdle, Event{Kind: ValidationPassed}, PhaseIdle, ErrInvalidTransition},
		{"remote success", PhaseSubmitting, Event{Kind: RemoteSucceeded, Record: rec}, PhaseSucceeded, nil},
		{"remote success without record", PhaseSubmitting, Event{Kind: RemoteSucceeded}, PhaseSubmitting, ErrInvalidTransition},
		{"remote failure", PhaseSubmitting, Event{Kind: RemoteFailed, Message: "boom"}, PhaseFailed, nil},
		{"remote failure when idle", PhaseIdle, Event{Kind: RemoteFailed}, PhaseIdle, ErrInvalidTransition},
		{"reset from submitting", PhaseSubmitting, Event{Kind: ResetRequested}, PhaseIdle, nil},
		{"reset from succeeded", PhaseSucceeded, Event{Kind: ResetRequested}, PhaseIdle, nil},
		{"unknown event", PhaseIdle, Event{Kind: EventKind(99)}, PhaseIdle, ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from := State{Phase: tt.from, Version: 3}
			got, err := Next(from, tt.event)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, from, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Phase)
			assert.Equal(t, uint64(4), got.Version)
		})
	}
}

func TestNextKeepsInputsOnFailure(t *testing.T) {
	md := models.SubjectMetadata{Name: "Ada", Age: 30, Gender: models.GenderFemale}
	asset := &media.Asset{Validity: media.Valid}

	s, err := Next(State{}, Event{Kind: AssetSelected, SessionID: "s1", Asset: asset})
	require.NoError(t, err)
	s, err = Next(s, Event{Kind: SubmitRequested, Metadata: md})
	require.NoError(t, err)
	s, err = Next(s, Event{Kind: ValidationPassed})
	require.NoError(t, err)
	s, err = Next(s, Event{Kind: RemoteFailed, Message: "Request failed"})
	require.NoError(t, err)

	assert.Equal(t, "s1", s.ID)
	assert.Same(t, asset, s.Asset)
	require.NotNil(t, s.Metadata)
	assert.Equal(t, md, *s.Metadata)
	assert.Equal(t, "Request failed", s.Error)
}

func TestNextResetClearsEverything(t *testing.T) {
	s := State{
		ID:       "s1",
		Version:  9,
		Phase:    PhaseFailed,
		Asset:    &media.Asset{},
		Result:   &models.DetectionRecord{ID: 1},
		Error:    "boom",
		Metadata: &models.SubjectMetadata{Name: "x"},
	}
	got, err := Next(s, Event{Kind: ResetRequested})
	require.NoError(t, err)
	assert.Equal(t, State{Phase: PhaseIdle, Version: 10}, got)
}
