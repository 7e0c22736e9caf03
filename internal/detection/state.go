package detection

import (
	"errors"
	"fmt"

	"github.com/your-org/oceanlens/internal/media"
	"github.com/your-org/oceanlens/internal/models"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseSubmitting Phase = "submitting"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

var (
	// ErrSubmissionInFlight rejects a second submission (or a file change)
	// while the remote call of the first is outstanding.
	ErrSubmissionInFlight = errors.New("submission already in flight")
	ErrInvalidTransition  = errors.New("invalid transition")
)

// State is one detection session as seen by the rendering layer.
// Values are never mutated in place; Next returns a new one.
type State struct {
	ID             string
	Version        uint64
	Phase          Phase
	Asset          *media.Asset
	Metadata       *models.SubjectMetadata
	MetadataErrors models.FieldErrors
	Result         *models.DetectionRecord
	Error          string
}

type EventKind int

const (
	AssetSelected EventKind = iota + 1
	AssetUpdated
	SubmitRequested
	ValidationFailed
	ValidationPassed
	RemoteSucceeded
	RemoteFailed
	ResetRequested
)

func (k EventKind) String() string {
	switch k {
	case AssetSelected:
		return "asset_selected"
	case AssetUpdated:
		return "asset_updated"
	case SubmitRequested:
		return "submit_requested"
	case ValidationFailed:
		return "validation_failed"
	case ValidationPassed:
		return "validation_passed"
	case RemoteSucceeded:
		return "remote_succeeded"
	case RemoteFailed:
		return "remote_failed"
	case ResetRequested:
		return "reset_requested"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event carries the payload of a transition. Only the fields relevant to
// Kind are read.
type Event struct {
	Kind      EventKind
	SessionID string
	Asset     *media.Asset
	Metadata  models.SubjectMetadata
	Errors    models.FieldErrors
	Record    *models.DetectionRecord
	Message   string
}

// Next computes the state following e. It has no side effects; resource
// release and remote calls belong to the Coordinator.
func Next(s State, e Event) (State, error) {
	n := s

	switch e.Kind {
	case AssetSelected:
		if s.Phase == PhaseSubmitting || s.Phase == PhaseValidating {
			return s, ErrSubmissionInFlight
		}
		if n.ID == "" {
			n.ID = e.SessionID
		}
		n.Phase = PhaseIdle
		n.Asset = e.Asset
		n.MetadataErrors = nil
		n.Result = nil
		n.Error = ""

	case AssetUpdated:
		n.Asset = e.Asset

	case SubmitRequested:
		switch s.Phase {
		case PhaseSubmitting, PhaseValidating:
			return s, ErrSubmissionInFlight
		}
		md := e.Metadata
		n.Phase = PhaseValidating
		n.Metadata = &md
		n.MetadataErrors = nil
		n.Result = nil
		n.Error = ""

	case ValidationFailed:
		if s.Phase != PhaseValidating {
			return s, transitionError(s.Phase, e.Kind)
		}
		n.Phase = PhaseFailed
		n.MetadataErrors = e.Errors
		n.Error = e.Message

	case ValidationPassed:
		if s.Phase != PhaseValidating {
			return s, transitionError(s.Phase, e.Kind)
		}
		n.Phase = PhaseSubmitting

	case RemoteSucceeded:
		if s.Phase != PhaseSubmitting {
			return s, transitionError(s.Phase, e.Kind)
		}
		if e.Record == nil {
			return s, fmt.Errorf("%w: %s without record", ErrInvalidTransition, e.Kind)
		}
		n.Phase = PhaseSucceeded
		n.Result = e.Record
		n.Metadata = nil
		n.Error = ""

	case RemoteFailed:
		if s.Phase != PhaseSubmitting {
			return s, transitionError(s.Phase, e.Kind)
		}
		n.Phase = PhaseFailed
		n.Error = e.Message

	case ResetRequested:
		n = State{Phase: PhaseIdle}

	default:
		return s, fmt.Errorf("%w: unknown event %s", ErrInvalidTransition, e.Kind)
	}

	n.Version = s.Version + 1
	return n, nil
}

func transitionError(p Phase, k EventKind) error {
	return fmt.Errorf("%w: %s in phase %s", ErrInvalidTransition, k, p)
}
