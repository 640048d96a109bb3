// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package search

import (
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
)

// Operation is one candidate transformation of the search space.
//
// Apply must preserve the shape of x ([batch, height, width, channels]), so that
// the outputs of different candidates can be summed into a mixture. Operations
// with weights (the convolutions) create their variables under a fixed sub-scope
// of ctx on first application and reuse them on every later application -- all
// edges of a cell share the same operation weights.
type Operation struct {
	// Name identifies the operation in variable scopes. It must be unique
	// within a registry and stable across runs: the operation's position in
	// the registry binds it to the trained architecture weights.
	Name string

	// Apply builds the operation's computation on x and returns the result.
	Apply func(ctx *context.Context, x *Node) *Node
}

// Operations returns the candidate operation registry for feature maps with the
// given number of channels.
//
// The order is fixed: identity, conv-3x3, conv-1x1, max-pool-3x3, avg-pool-3x3.
// Architecture weights are indexed by position in this slice, so reordering (or
// inserting) entries invalidates previously trained weights.
func Operations(channels int) []Operation {
	return []Operation{
		{
			Name:  "identity",
			Apply: func(_ *context.Context, x *Node) *Node { return x },
		},
		{
			Name: "conv_3x3",
			Apply: func(ctx *context.Context, x *Node) *Node {
				return sharedConvolution(ctx.In("conv_3x3"), x, channels, 3)
			},
		},
		{
			Name: "conv_1x1",
			Apply: func(ctx *context.Context, x *Node) *Node {
				return sharedConvolution(ctx.In("conv_1x1"), x, channels, 1)
			},
		},
		{
			Name: "max_pool_3x3",
			Apply: func(_ *context.Context, x *Node) *Node {
				return MaxPool(x).Window(3).Strides(1).PadSame().Done()
			},
		},
		{
			Name: "avg_pool_3x3",
			Apply: func(_ *context.Context, x *Node) *Node {
				return MeanPool(x).Window(3).Strides(1).PadSame().Done()
			},
		},
	}
}

// sharedConvolution is a channel-preserving convolution without bias whose
// kernel lives directly in ctx's scope. Checked(false) makes the kernel
// create-or-reuse, so every edge that applies this operation shares it.
func sharedConvolution(ctx *context.Context, x *Node, channels, kernelSize int) *Node {
	return layers.Convolution(ctx.Checked(false), x).
		CurrentScope().
		Filters(channels).
		KernelSize(kernelSize).
		PadSame().
		UseBias(false).
		Done()
}
