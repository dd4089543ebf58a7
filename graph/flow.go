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

	"github.com/Nicort/edward/internal/entropy"
)

// Scope tags separating the substream spaces of branch and iteration
// bodies from their owning node's key.
const (
	scopeThen uint64 = 1
	scopeElse uint64 = 2
	scopeIter uint64 = 3
)

// CondCondition returns a cond node's condition parameter.
func (g *Graph) CondCondition(id NodeID) (Param, error) {
	spec, _, _, err := g.condOf(id)
	if err != nil {
		return Param{}, err
	}
	return spec.condition, nil
}

// CondBranchRoots returns the materialized branch roots of a cond.
// An unbuilt branch reports InvalidNodeID.
func (g *Graph) CondBranchRoots(id NodeID) (then, els NodeID, err error) {
	spec, _, _, err := g.condOf(id)
	if err != nil {
		return InvalidNodeID, InvalidNodeID, err
	}
	spec.mu.Lock()
	defer spec.mu.Unlock()
	return spec.thenRoot, spec.elseRoot, nil
}

// MaterializeBranch runs a cond branch's thunk on first selection and
// returns the branch root. Later calls return the memoized root. The
// nodes and edges a thunk creates are recorded as dynamic.
//
// Engines call this during realization; it is safe after freeze and
// under concurrent traces.
func (g *Graph) MaterializeBranch(id NodeID, br Branch) (NodeID, error) {
	spec, key, label, err := g.condOf(id)
	if err != nil {
		return InvalidNodeID, err
	}

	spec.mu.Lock()
	defer spec.mu.Unlock()

	var (
		built bool
		root  NodeID
		fn    BranchFunc
		tag   uint64
	)
	if br == BranchThen {
		built, root, fn, tag = spec.thenBuilt, spec.thenRoot, spec.thenFn, scopeThen
	} else {
		built, root, fn, tag = spec.elseBuilt, spec.elseRoot, spec.elseFn, scopeElse
	}
	if built {
		return root, nil
	}

	b := &Builder{g: g, scope: entropy.Combine(key, tag), dynamic: true}
	root, err = fn(b)
	if err != nil {
		return InvalidNodeID, fmt.Errorf("materializing %s branch of %s: %w", br, label, err)
	}
	if _, nerr := g.Node(root); nerr != nil {
		return InvalidNodeID, specErr(label, "%s branch returned invalid root %d", br, root)
	}

	g.mu.Lock()
	g.addEdgesLocked(Edge{From: id, To: root, Kind: EdgeDynamic})
	g.condBranchesBuilt++
	g.mu.Unlock()

	if br == BranchThen {
		spec.thenBuilt, spec.thenRoot = true, root
	} else {
		spec.elseBuilt, spec.elseRoot = true, root
	}
	return root, nil
}

// LoopInit returns a loop node's init parameter.
func (g *Graph) LoopInit(id NodeID) (Param, error) {
	spec, _, _, err := g.loopOf(id)
	if err != nil {
		return Param{}, err
	}
	return spec.init, nil
}

// LoopMaxIterations returns the loop's raw cap: positive for an
// explicit cap, zero to inherit the engine default, negative for no
// guard.
func (g *Graph) LoopMaxIterations(id NodeID) (int, error) {
	spec, _, _, err := g.loopOf(id)
	if err != nil {
		return 0, err
	}
	return spec.maxIter, nil
}

// LoopIterationsBuilt returns how many iterations of the loop have
// been materialized so far.
func (g *Graph) LoopIterationsBuilt(id NodeID) (int, error) {
	spec, _, _, err := g.loopOf(id)
	if err != nil {
		return 0, err
	}
	spec.mu.Lock()
	defer spec.mu.Unlock()
	return len(spec.iters), nil
}

// MaterializeIteration instantiates iteration i of a loop on first
// demand and returns its step nodes. Iterations materialize in index
// order and are shared by every trace that reaches index i. Iteration
// 0 receives the loop's init as carry; iteration i receives iteration
// i-1's carry node.
func (g *Graph) MaterializeIteration(id NodeID, i int) (LoopStep, error) {
	spec, key, label, err := g.loopOf(id)
	if err != nil {
		return LoopStep{}, err
	}
	if i < 0 {
		return LoopStep{}, specErr(label, "iteration index %d is negative", i)
	}

	spec.mu.Lock()
	defer spec.mu.Unlock()

	if i < len(spec.iters) {
		return spec.iters[i], nil
	}
	if i > len(spec.iters) {
		return LoopStep{}, specErr(label, "iteration %d requested before %d", i, len(spec.iters))
	}

	carry := spec.init
	if i > 0 {
		carry = Ref(spec.iters[i-1].Carry)
	}

	b := &Builder{g: g, scope: entropy.Combine(entropy.Combine(key, scopeIter), uint64(i)), dynamic: true}
	step, err := spec.body(b, i, carry)
	if err != nil {
		return LoopStep{}, fmt.Errorf("materializing iteration %d of %s: %w", i, label, err)
	}
	if _, nerr := g.Node(step.Continue); nerr != nil {
		return LoopStep{}, specErr(label, "iteration %d returned invalid continue node %d", i, step.Continue)
	}
	if _, nerr := g.Node(step.Carry); nerr != nil {
		return LoopStep{}, specErr(label, "iteration %d returned invalid carry node %d", i, step.Carry)
	}

	g.mu.Lock()
	g.addEdgesLocked(
		Edge{From: id, To: step.Continue, Kind: EdgeDynamic},
		Edge{From: id, To: step.Carry, Kind: EdgeDynamic},
	)
	g.loopIterationsBuilt++
	g.mu.Unlock()

	spec.iters = append(spec.iters, step)
	return step, nil
}

func (g *Graph) condOf(id NodeID) (*condSpec, uint64, string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if id <= 0 || int(id) > len(g.nodes) {
		return nil, 0, "", fmt.Errorf("node %d: %w", id, ErrNodeNotFound)
	}
	n := g.nodes[id-1]
	if n.Kind != KindCond {
		return nil, 0, "", specErr(n.Name, "node is %s, not cond", n.Kind)
	}
	return n.cond, n.streamKey, n.Label(), nil
}

func (g *Graph) loopOf(id NodeID) (*loopSpec, uint64, string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if id <= 0 || int(id) > len(g.nodes) {
		return nil, 0, "", fmt.Errorf("node %d: %w", id, ErrNodeNotFound)
	}
	n := g.nodes[id-1]
	if n.Kind != KindLoop {
		return nil, 0, "", specErr(n.Name, "node is %s, not loop", n.Kind)
	}
	return n.loop, n.streamKey, n.Label(), nil
}
