// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph operations.
var (
	// ErrGraphFrozen indicates an authoring call on a graph that has
	// already been frozen.
	ErrGraphFrozen = errors.New("graph is frozen")

	// ErrGraphNotFrozen indicates an operation that requires a frozen
	// graph, such as attaching an engine.
	ErrGraphNotFrozen = errors.New("graph is not frozen")

	// ErrNodeNotFound indicates a reference to a node id or name that
	// does not exist in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrAmbiguousName indicates a name lookup that matched more than
	// one node.
	ErrAmbiguousName = errors.New("node name is ambiguous")

	// ErrUndefinedDeclaration indicates a declared node that was never
	// defined before freezing.
	ErrUndefinedDeclaration = errors.New("declared node was never defined")

	// ErrNotMutableState indicates a state operation on a node of a
	// different kind.
	ErrNotMutableState = errors.New("node is not mutable state")
)

// ModelSpecificationError reports a structurally invalid model
// construction: unknown families, mismatched parameter sets, wrong
// constant shapes, dangling references, or misused constructs.
type ModelSpecificationError struct {
	// Node is the name of the node being constructed or defined.
	Node string

	// Reason describes the violation.
	Reason string

	// Err is an optional underlying cause.
	Err error
}

// Error returns a human-readable description of the violation.
func (e *ModelSpecificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model specification: node %q: %s: %v", e.Node, e.Reason, e.Err)
	}
	return fmt.Sprintf("model specification: node %q: %s", e.Node, e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *ModelSpecificationError) Unwrap() error {
	return e.Err
}

// specErr builds a ModelSpecificationError without an underlying cause.
func specErr(node, format string, args ...any) error {
	return &ModelSpecificationError{Node: node, Reason: fmt.Sprintf(format, args...)}
}

// CyclicDependencyError reports a cycle among static dependencies,
// detected when the graph is frozen.
type CyclicDependencyError struct {
	// Path lists the node labels along the cycle; the first label is
	// repeated at the end.
	Path []string
}

// Error returns the cycle as "a -> b -> a".
func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency: %s", strings.Join(e.Path, " -> "))
}

// newCycleError builds a CyclicDependencyError from a node path.
func newCycleError(path []string) *CyclicDependencyError {
	return &CyclicDependencyError{Path: path}
}
