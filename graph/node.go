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
	"fmt"
	"sync"

	"github.com/Nicort/edward/dist"
)

// NodeID identifies a node in the graph arena. IDs are dense, start at
// 1, and are never reused; the zero value is invalid.
type NodeID int

// InvalidNodeID is the zero NodeID.
const InvalidNodeID NodeID = 0

// Kind identifies what a node represents.
type Kind int

const (
	// KindUnknown is the zero Kind; no constructed node carries it.
	KindUnknown Kind = iota

	// KindDeclared is a forward declaration awaiting definition.
	KindDeclared

	// KindRandomVariable draws from a distribution family.
	KindRandomVariable

	// KindTransform applies a pure function to other nodes' values.
	KindTransform

	// KindMutableState holds an externally fed value.
	KindMutableState

	// KindCond selects one of two lazily built branches by a
	// condition's truth value.
	KindCond

	// KindLoop unrolls a lazily built body while a continue value
	// holds.
	KindLoop
)

// kindNames maps Kind values to their string representations.
var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	KindDeclared:       "declared",
	KindRandomVariable: "random_variable",
	KindTransform:      "transform",
	KindMutableState:   "mutable_state",
	KindCond:           "cond",
	KindLoop:           "loop",
}

// String returns the string representation of the Kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// EdgeKind classifies how an edge was recorded.
type EdgeKind int

const (
	// EdgeStatic marks an edge recorded during top-level authoring.
	// Static edges are checked for cycles at freeze time.
	EdgeStatic EdgeKind = iota

	// EdgeDynamic marks an edge recorded while materializing a branch
	// or a loop iteration; it participates in some traces only.
	EdgeDynamic
)

// String returns the string representation of the EdgeKind.
func (k EdgeKind) String() string {
	if k == EdgeDynamic {
		return "dynamic"
	}
	return "static"
}

// Edge is a directed dependency: From requires To's value to realize.
type Edge struct {
	// From is the dependent node.
	From NodeID

	// To is the dependency.
	To NodeID

	// Kind records the authoring context of the edge.
	Kind EdgeKind
}

// Param is a distribution parameter or transform input: either an
// inline constant or a reference to another node.
type Param struct {
	ref NodeID
	c   dist.Value
	// isRef distinguishes the two arms; the zero Param is the constant
	// scalar 0.
	isRef bool
}

// Const returns a constant parameter. Constants never create nodes.
func Const(v dist.Value) Param {
	return Param{c: v}
}

// ConstFloat returns a constant scalar parameter.
func ConstFloat(f float64) Param {
	return Param{c: dist.Scalar(f)}
}

// Ref returns a parameter referencing another node's realized value.
func Ref(id NodeID) Param {
	return Param{ref: id, isRef: true}
}

// IsRef reports whether the parameter references a node.
func (p Param) IsRef() bool {
	return p.isRef
}

// Node returns the referenced node id and true for references.
func (p Param) Node() (NodeID, bool) {
	if !p.isRef {
		return InvalidNodeID, false
	}
	return p.ref, true
}

// Value returns the constant value and true for constants.
func (p Param) Value() (dist.Value, bool) {
	if p.isRef {
		return dist.Value{}, false
	}
	return p.c, true
}

// String renders references as "@id" and constants as their value.
func (p Param) String() string {
	if p.isRef {
		return fmt.Sprintf("@%d", p.ref)
	}
	return p.c.String()
}

// NamedParam pairs a parameter name with its Param. Random variables
// hold their parameters as a name-sorted slice so that realization and
// edge order are deterministic.
type NamedParam struct {
	Name  string
	Param Param
}

// TransformFunc computes a transform node's value from its realized
// inputs, in declared order. It must be pure: same inputs, same output,
// no side effects.
type TransformFunc func(inputs []dist.Value) (dist.Value, error)

// BranchFunc builds one branch of a cond when that branch is first
// selected, and returns the branch's root node. The supplied builder
// records the branch's edges as dynamic.
type BranchFunc func(b *Builder) (NodeID, error)

// LoopBodyFunc builds iteration i of a loop. The carry parameter is
// the loop's init for iteration 0 and the previous iteration's carry
// node afterwards.
type LoopBodyFunc func(b *Builder, i int, carry Param) (LoopStep, error)

// LoopStep names the two nodes every loop iteration must produce.
type LoopStep struct {
	// Continue is realized per trace; the loop proceeds to the next
	// iteration while it is truthy.
	Continue NodeID

	// Carry feeds the next iteration and, for the final iteration,
	// becomes the loop's value.
	Carry NodeID
}

// Branch selects a cond arm.
type Branch int

const (
	// BranchThen is the arm taken when the condition is truthy.
	BranchThen Branch = iota

	// BranchElse is the arm taken when the condition is falsy.
	BranchElse
)

// String returns "then" or "else".
func (br Branch) String() string {
	if br == BranchElse {
		return "else"
	}
	return "then"
}

// Node is one arena record. The populated fields depend on Kind:
// random variables carry Family and Params, transforms carry Fn and
// Inputs, and the remaining kinds keep their payloads behind graph
// methods. Copies handed out by Graph share no mutable state with the
// arena.
type Node struct {
	// ID is the arena index of the node.
	ID NodeID

	// Kind is the node kind.
	Kind Kind

	// Name is the author-assigned label. Names are not required to be
	// unique; name lookups fail on ambiguity.
	Name string

	// Family is the distribution family name of a random variable.
	Family string

	// Params are a random variable's parameters, sorted by name.
	Params []NamedParam

	// Fn is a transform's function.
	Fn TransformFunc

	// Inputs are a transform's inputs, in declared order.
	Inputs []Param

	// streamKey seeds the node's per-trace random substream. It is
	// derived from the authoring scope, not the arena index, so it is
	// stable however branch and loop expansion interleave.
	streamKey uint64

	state *stateSlot
	cond  *condSpec
	loop  *loopSpec
}

// StreamKey returns the node's random-substream key.
func (n Node) StreamKey() uint64 {
	return n.streamKey
}

// Label renders the node as "name(id)" for errors and logs.
func (n Node) Label() string {
	return fmt.Sprintf("%s(%d)", n.Name, n.ID)
}

// stateSlot holds a mutable-state node's current value.
type stateSlot struct {
	mu     sync.RWMutex
	val    dist.Value
	bound  bool
	def    dist.Value
	hasDef bool
}

// get returns the bound value, falling back to the default.
func (s *stateSlot) get() (dist.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bound {
		return s.val, true
	}
	if s.hasDef {
		return s.def, true
	}
	return dist.Value{}, false
}

// set binds the slot to v.
func (s *stateSlot) set(v dist.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.val = v
	s.bound = true
}

// clear removes the bound value, restoring the default if present.
func (s *stateSlot) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.val = dist.Value{}
	s.bound = false
}

// condSpec is a cond node's payload. Branch thunks run at most once
// per graph, on first selection.
type condSpec struct {
	condition Param
	thenFn    BranchFunc
	elseFn    BranchFunc

	mu        sync.Mutex
	thenRoot  NodeID
	elseRoot  NodeID
	thenBuilt bool
	elseBuilt bool
}

// loopSpec is a loop node's payload. Iteration bodies run at most once
// per graph per index, in index order.
type loopSpec struct {
	init Param
	body LoopBodyFunc

	// maxIter: > 0 is an explicit cap, 0 inherits the engine default,
	// < 0 disables the guard.
	maxIter int

	mu    sync.Mutex
	iters []LoopStep
}
