// Package tools provides the tool registry and execution framework.
//
// This file defines the error types for tool registration and execution.
package tools

import "fmt"

// ErrToolNotFound is returned when a tool call targets a name that is
// not in the registry. It indicates a model hallucination or a stale
// tool list, not a transient execution failure.
type ErrToolNotFound struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolNotFound) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.ToolName)
}

// ErrDuplicateTool is returned by Register when the name is taken.
type ErrDuplicateTool struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrDuplicateTool) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.ToolName)
}
