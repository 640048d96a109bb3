// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package search implements a differentiable neural-architecture-search cell in
// the style of DARTS: a DAG of intermediate nodes where, instead of a discrete
// choice of operation per edge, every edge computes the softmax-weighted mixture
// of all candidate operations ("continuous relaxation"). The mixture weights
// (architecture parameters) are ordinary trainable variables, learned jointly
// with the network weights by the regular optimizer.
//
// The cell is a pure graph-building component: Cell.Forward only adds nodes to
// the computation graph and reads variables, it never mutates them.
package search

import (
	"fmt"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/pkg/errors"
)

// Config defines the fixed topology of a search Cell. It is validated at
// construction and never changes afterwards.
type Config struct {
	// NumNodes is the number of intermediate nodes of the cell's DAG. Must be
	// at least 1: the cell output is always the last node's output, never the
	// raw input.
	NumNodes int

	// NumOps is the number of candidate operations. It must match the size of
	// the operation registry the cell is built with.
	NumOps int

	// InChannels is the channel count (last axis) of the feature maps the cell
	// operates on. Every candidate operation preserves it.
	InChannels int
}

// Cell is a DARTS search cell: NumNodes intermediate nodes, each aggregating
// one mixture edge from every previously produced state (the cell input plus
// all earlier node outputs).
//
// Architecture parameters: one trainable variable per node, named
// "alpha_<node>" and shaped [node+2, NumOps], row i holding the pre-softmax
// logits for the edge from state i. They are created on the first Forward and
// reused (and further trained) afterwards.
type Cell struct {
	cfg Config
	ops []Operation
}

// New creates a Cell over the default candidate operation registry
// (see Operations).
func New(cfg Config) (*Cell, error) {
	return NewWithOperations(cfg, Operations(cfg.InChannels))
}

// NewWithOperations creates a Cell over a custom candidate operation registry.
// The registry order is the identity of each operation for weight indexing and
// must not change once any architecture weights have been trained.
func NewWithOperations(cfg Config, ops []Operation) (*Cell, error) {
	if cfg.NumNodes <= 0 {
		return nil, errors.Errorf("search: NumNodes must be >= 1, got %d", cfg.NumNodes)
	}
	if cfg.InChannels <= 0 {
		return nil, errors.Errorf("search: InChannels must be >= 1, got %d", cfg.InChannels)
	}
	if len(ops) == 0 {
		return nil, errors.Errorf("search: candidate operation registry is empty")
	}
	if cfg.NumOps != len(ops) {
		return nil, errors.Errorf("search: NumOps=%d does not match registry size %d",
			cfg.NumOps, len(ops))
	}
	return &Cell{cfg: cfg, ops: ops}, nil
}

// Config returns the cell's immutable configuration.
func (c *Cell) Config() Config { return c.cfg }

// Forward builds the cell's computation on x, shaped
// [batch, height, width, InChannels], and returns the output of the last
// intermediate node, with the same shape as x.
//
// It panics (graph-building error) if x has the wrong rank or channel count:
// that is a wiring bug upstream, not a recoverable condition.
func (c *Cell) Forward(ctx *context.Context, x *Node) *Node {
	if x.Rank() != 4 {
		Panicf("search: Cell.Forward input must be rank-4 [batch, height, width, channels], got shape %s",
			x.Shape())
	}
	channels := x.Shape().Dimensions[3]
	if channels != c.cfg.InChannels {
		Panicf("search: Cell.Forward input has %d channels, cell was built for %d",
			channels, c.cfg.InChannels)
	}

	// states[0] is the cell input; states[i+1] is the output of node i.
	// Append-only within this call.
	states := []*Node{x}
	for node := range c.cfg.NumNodes {
		alphas := c.alphaVariable(ctx, node, x).ValueGraph(x.Graph())
		var nodeOutput *Node
		for i, state := range states {
			row := Reshape(Slice(alphas, AxisElem(i), AxisRange()), c.cfg.NumOps)
			edge := c.MixtureEdge(ctx, state, row)
			if nodeOutput == nil {
				nodeOutput = edge
			} else {
				nodeOutput = Add(nodeOutput, edge)
			}
		}
		states = append(states, nodeOutput)
	}
	output := states[len(states)-1]
	output.AssertDims(x.Shape().Dimensions...)
	return output
}

// MixtureEdge evaluates the continuous relaxation of "apply one operation" to
// source: softmax-normalize logits (shaped [NumOps]) into a convex combination,
// apply every candidate operation to source and return the weighted sum of the
// results, with the same shape as source.
//
// Every call re-evaluates all operations; nothing is cached. That dense
// evaluation is the price of relaxing the discrete choice into something
// differentiable.
func (c *Cell) MixtureEdge(ctx *context.Context, source *Node, logits *Node) *Node {
	logits.AssertDims(c.cfg.NumOps)
	weights := Softmax(logits)
	var mixture *Node
	for j, op := range c.ops {
		wj := Reshape(Slice(weights, AxisElem(j))) // scalar
		scaled := Mul(op.Apply(ctx, source), wj)
		if mixture == nil {
			mixture = scaled
		} else {
			mixture = Add(mixture, scaled)
		}
	}
	mixture.AssertDims(source.Shape().Dimensions...)
	return mixture
}

// alphaVariable returns (creating on first use) the architecture-parameter
// variable for the given node, shaped [node+2, NumOps].
//
// Row node+1 is reserved for a second cell input (the "previous-previous cell"
// state of multi-cell DARTS); with a single-input cell it exists but is not
// read by Forward.
func (c *Cell) alphaVariable(ctx *context.Context, node int, x *Node) *context.Variable {
	alphaCtx := ctx.WithInitializer(initializers.RandomNormalFn(ctx, 1.0)).Checked(false)
	return alphaCtx.VariableWithShape(
		AlphaName(node), shapes.Make(x.DType(), node+2, c.cfg.NumOps))
}

// AlphaName is the variable name of node's architecture parameters inside the
// scope Forward was called with.
func AlphaName(node int) string {
	return fmt.Sprintf("alpha_%03d", node)
}

// AlphaVariable returns the architecture-parameter variable for node, or nil if
// it doesn't exist yet -- the variables are created by the first Forward call.
// ctx must be scoped exactly as the one given to Forward.
func (c *Cell) AlphaVariable(ctx *context.Context, node int) *context.Variable {
	if node < 0 || node >= c.cfg.NumNodes {
		Panicf("search: node %d out of range, cell has %d nodes", node, c.cfg.NumNodes)
	}
	return ctx.InspectVariable(ctx.Scope(), AlphaName(node))
}

// EnumerateAlphas calls fn for each node's architecture-parameter variable, in
// node order. Variables not yet created (no Forward call yet) are skipped.
func (c *Cell) EnumerateAlphas(ctx *context.Context, fn func(node int, v *context.Variable)) {
	for node := range c.cfg.NumNodes {
		if v := ctx.InspectVariable(ctx.Scope(), AlphaName(node)); v != nil {
			fn(node, v)
		}
	}
}
