// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package exec

import (
	"errors"
	"fmt"

	"github.com/Nicort/edward/graph"
)

// Sentinel errors for engine operations.
var (
	// ErrNilContext indicates a nil context was passed.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrNilTrace indicates a realization call without a trace.
	ErrNilTrace = errors.New("trace is nil")

	// ErrNotRandomVariable indicates a log-probability query on a node
	// that does not draw from a distribution.
	ErrNotRandomVariable = errors.New("node is not a random variable")
)

// UnboundStateError reports a mutable-state node that was read during
// realization while holding neither a value nor a default. The caller
// can bind the slot and retry the realization.
type UnboundStateError struct {
	// Node is the state node's label.
	Node string
}

// Error returns a human-readable description.
func (e *UnboundStateError) Error() string {
	return fmt.Sprintf("mutable state %s has no value", e.Node)
}

// ComputationError reports a transform whose function returned an
// error or panicked.
type ComputationError struct {
	// Node is the transform node's label.
	Node string

	// Err is the returned error, or the recovered panic value wrapped
	// as an error.
	Err error

	// Panicked distinguishes recovered panics from returned errors.
	Panicked bool
}

// Error returns a human-readable description.
func (e *ComputationError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("transform %s panicked: %v", e.Node, e.Err)
	}
	return fmt.Sprintf("transform %s failed: %v", e.Node, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ComputationError) Unwrap() error {
	return e.Err
}

// UnboundedExpansionError reports a loop that hit its iteration guard
// while its continue value stayed truthy.
type UnboundedExpansionError struct {
	// Node is the loop node's label.
	Node string

	// Iterations is the number of iterations realized before the
	// guard tripped.
	Iterations int
}

// Error returns a human-readable description.
func (e *UnboundedExpansionError) Error() string {
	return fmt.Sprintf("loop %s exceeded %d iterations", e.Node, e.Iterations)
}

// NodeError attributes a realization failure to the node where it
// occurred. Errors from nested dependencies keep their innermost
// attribution; use errors.As to retrieve it.
type NodeError struct {
	// ID is the failing node's id.
	ID graph.NodeID

	// Node is the failing node's label.
	Node string

	// Err is the underlying failure.
	Err error
}

// Error returns a human-readable description.
func (e *NodeError) Error() string {
	return fmt.Sprintf("realize %s: %v", e.Node, e.Err)
}

// Unwrap returns the underlying failure.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// nodeErr wraps err with node attribution unless it is already
// attributed.
func nodeErr(n graph.Node, err error) error {
	var ne *NodeError
	if errors.As(err, &ne) {
		return err
	}
	return &NodeError{ID: n.ID, Node: n.Label(), Err: err}
}
