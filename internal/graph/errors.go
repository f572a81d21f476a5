package graph

import (
	"errors"
	"fmt"
)

// GraphError represents a failure detected while traversing the dependency
// graph.
//
// Graph errors include:
//   - Not a DAG: stored data contains a dependency cycle
//   - Depth exceeded: traversal ran past the recursion budget
//   - Unknown order: an operation referenced an order ID not in the snapshot
type GraphError struct {
	// Code identifies the error category.
	Code GraphErrorCode

	// Message is a human-readable description.
	Message string

	// OrderID identifies the order where the failure was detected.
	OrderID string
}

// GraphErrorCode categorizes graph errors.
type GraphErrorCode string

const (
	// ErrCodeNotADAG indicates the stored dependency relation contains a cycle.
	ErrCodeNotADAG GraphErrorCode = "NOT_A_DAG"

	// ErrCodeDepthExceeded indicates a traversal exceeded the recursion budget.
	ErrCodeDepthExceeded GraphErrorCode = "DEPTH_EXCEEDED"

	// ErrCodeUnknownOrder indicates an operation referenced an unknown order ID.
	ErrCodeUnknownOrder GraphErrorCode = "UNKNOWN_ORDER"
)

// Error implements the error interface.
func (e *GraphError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("%s: %s (order=%s)", e.Code, e.Message, e.OrderID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotADAG returns true if the error reports a cycle in stored data.
// Uses errors.As to handle wrapped errors.
func IsNotADAG(err error) bool {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Code == ErrCodeNotADAG
	}
	return false
}

// NewNotADAGError creates a GraphError for a cycle detected in stored data.
func NewNotADAGError(orderID string) *GraphError {
	return &GraphError{
		Code:    ErrCodeNotADAG,
		Message: "dependency relation contains a cycle",
		OrderID: orderID,
	}
}

// NewDepthExceededError creates a GraphError for an exhausted recursion budget.
func NewDepthExceededError(orderID string, budget int) *GraphError {
	return &GraphError{
		Code:    ErrCodeDepthExceeded,
		Message: fmt.Sprintf("traversal exceeded depth budget of %d", budget),
		OrderID: orderID,
	}
}
