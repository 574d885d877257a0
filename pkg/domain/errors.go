package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrStatusConflict is returned when a compare-and-set finds the session moved on.
var ErrStatusConflict = errors.New("session status conflict")

// ErrFlowInProgress is returned when a different flow is already pending on the session.
var ErrFlowInProgress = errors.New("another flow is pending on this session")

// ErrEntityNotFound is returned by directories for unknown ids.
var ErrEntityNotFound = errors.New("entity not found")

// ErrUnknownAction is returned when no handler is registered for an action.
var ErrUnknownAction = errors.New("unknown action")

// FailureKind groups expected, non-engine failures.
type FailureKind string

const (
	FailureResolution FailureKind = "resolution"
	FailurePolicy     FailureKind = "policy"
	FailureExecution  FailureKind = "execution"
	FailureSession    FailureKind = "session"
)

// Failure codes.
const (
	CodeNotFound           = "not_found"
	CodeNeedsClarification = "needs_clarification"
	CodeAmbiguous          = "ambiguous"
	CodeAlreadyAssigned    = "already_assigned"
	CodeNothingToRemove    = "nothing_to_remove"
	CodeInvalidState       = "invalid_state"
	CodeActionFailed       = "action_failed"
	CodeAlreadyResolved    = "already_resolved"
	CodeExpired            = "expired"
	CodeFlowInProgress     = "flow_in_progress"
	CodeInvalidInput       = "invalid_input"
)

// Failure is an expected outcome carried as data, never thrown across the turn.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

// ErrorCode classifies engine failures.
type ErrorCode string

const (
	CodeNodeError      ErrorCode = "NODE_ERROR"
	CodeNodePanic      ErrorCode = "NODE_PANIC"
	CodeIterationLimit ErrorCode = "ITERATION_LIMIT"
	CodeEdgeConflict   ErrorCode = "EDGE_CONFLICT"
	CodeFieldErased    ErrorCode = "FIELD_ERASED"
	CodeCanceled       ErrorCode = "CANCELED"
	CodeSessionLocked  ErrorCode = "SESSION_LOCKED"
)

// EngineError is the only failure category that forces the fallback node.
type EngineError struct {
	Code   ErrorCode
	NodeID string
	Cause  error
}

func (e *EngineError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s at node '%s'", e.Code, e.NodeID)
	}
	return fmt.Sprintf("%s at node '%s': %v", e.Code, e.NodeID, e.Cause)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}
