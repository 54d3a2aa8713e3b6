package storyboard

import "fmt"

// PlanningError means no usable plan was produced; the previous
// storyboard, if any, is left untouched.
type PlanningError struct {
	Reason string
	Err    error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planning failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("planning failed: %s", e.Reason)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// MaterializationError marks a scene whose artifact generation failed.
// The scene keeps its descriptive fields and can be retried via rework.
type MaterializationError struct {
	SceneID string
	Step    string
	Err     error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("materialization of scene %s failed at %s: %v", e.SceneID, e.Step, e.Err)
}

func (e *MaterializationError) Unwrap() error { return e.Err }

// RenderError marks a failed render; recorded on the scene as a
// terminal error status.
type RenderError struct {
	SceneID string
	Err     error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render of scene %s failed: %v", e.SceneID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ValidationError rejects an operation whose inputs or preconditions do
// not hold. No state transition occurs.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}
