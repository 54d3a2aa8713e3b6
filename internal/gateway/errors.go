package gateway

import "fmt"

// GenerationError represents a failure of a single generation call.
// Op names the gateway operation; Detail carries any model-side text
// (for example a refusal returned instead of an image).
type GenerationError struct {
	Op     string
	Detail string
	Err    error
}

func (e *GenerationError) Error() string {
	switch {
	case e.Err != nil && e.Detail != "":
		return fmt.Sprintf("%s failed: %s: %v", e.Op, e.Detail, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s failed: %s", e.Op, e.Detail)
	}
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
