package common

import "fmt"

// LogicViolationError reports a broken internal invariant, such as an animation time that no
// keyframe pair brackets or a vertex that has run out of bone influence slots.
// It is raised with panic rather than returned, because no caller can recover the frame it occurs in.
type LogicViolationError struct {
	// Component names the subsystem that detected the violation (e.g. "animator").
	Component string
	// Reason describes the violated invariant.
	Reason string
}

// Error implements the error interface.
func (e *LogicViolationError) Error() string {
	return fmt.Sprintf("logic violation in %s: %s", e.Component, e.Reason)
}

// PanicLogicViolation panics with a *LogicViolationError built from the given component and formatted reason.
//
// Parameters:
//   - component: the subsystem reporting the violation
//   - format: fmt-style format for the reason
//   - args: format arguments
func PanicLogicViolation(component, format string, args ...any) {
	panic(&LogicViolationError{Component: component, Reason: fmt.Sprintf(format, args...)})
}
