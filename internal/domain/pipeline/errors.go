package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every NotFoundError
	ErrNotFound = errors.New("pipeline: not found")

	// ErrForbidden is returned when the actor's role does not allow the call
	ErrForbidden = errors.New("pipeline: forbidden")

	// ErrStageUnavailable tells a student that a stage is not published yet.
	// It is distinct from a published stage with zero participants.
	ErrStageUnavailable = errors.New("pipeline: stage not yet available")
)

// NotFoundError reports a job, stage or participant that does not resolve
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("pipeline: %s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError reports malformed input such as a bad email
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pipeline: invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// PropagationWarning means the primary write committed but the mirror in the
// next stage could not be updated. The current stage is authoritative; the next
// stage stays stale until the same call or a resync is repeated.
type PropagationWarning struct {
	StageID     string
	NextStageID string
	Key         string
	Err         error
}

func (w *PropagationWarning) Error() string {
	return fmt.Sprintf("pipeline: %s committed in stage %s but stage %s may be stale: %v",
		w.Key, w.StageID, w.NextStageID, w.Err)
}

func (w *PropagationWarning) Unwrap() error {
	return w.Err
}

// IsPropagationWarning reports whether err carries a PropagationWarning
func IsPropagationWarning(err error) bool {
	var w *PropagationWarning
	return errors.As(err, &w)
}

// StoreError wraps a failed call to the storage collaborator
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
