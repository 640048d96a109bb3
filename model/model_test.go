// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"testing"

	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"

	. "github.com/gomlx/gomlx/graph"

	"github.com/gomlx/darts/cifar"
	"github.com/gomlx/darts/search"

	_ "github.com/gomlx/gomlx/backends/default"
)

// testGraph runs the model graph over one small batch of zeros and returns the
// logits tensor.
func testGraph(t *testing.T, ctx *context.Context, batchSize int) *tensors.Tensor {
	backend := graphtest.BuildTestBackend()
	exec := context.NewExec(backend, ctx.In("model"), func(ctx *context.Context, images *Node) *Node {
		return Graph(ctx, nil, []*Node{images})[0]
	})
	images := tensors.FromShape(shapes.Make(dtypes.Float32, batchSize, cifar.Height, cifar.Width, cifar.Depth))
	var outputs []*tensors.Tensor
	require.NotPanics(t, func() { outputs = exec.Call(images) })
	require.Len(t, outputs, 1)
	return outputs[0]
}

func TestGraphLogitsShape(t *testing.T) {
	ctx := CreateDefaultContext()
	// Keep the test model small.
	ctx.SetParams(map[string]any{
		ParamNumNodes:     2,
		ParamStemChannels: 8,
	})
	logits := testGraph(t, ctx, 3)
	require.NoError(t, logits.Shape().Check(dtypes.Float32, 3, cifar.NumClasses))
}

func TestGraphCreatesAlphas(t *testing.T) {
	ctx := CreateDefaultContext()
	ctx.SetParams(map[string]any{
		ParamNumNodes:     3,
		ParamStemChannels: 8,
	})
	_ = testGraph(t, ctx, 2)

	// The cell's architecture parameters live under the model's cell scope,
	// one per node, shaped [node+2, num_ops].
	cellCtx := ctx.In("model").In("cell")
	for node, wantRows := range []int{2, 3, 4} {
		v := ctx.InspectVariable(cellCtx.Scope(), search.AlphaName(node))
		require.NotNilf(t, v, "missing architecture parameters for node %d", node)
		require.NoError(t, v.Shape().Check(dtypes.Float32, wantRows, 5))
		require.True(t, v.Trainable)
	}
}

func TestGraphInvalidConfigPanics(t *testing.T) {
	ctx := CreateDefaultContext()
	ctx.SetParams(map[string]any{
		ParamNumNodes:     0, // No intermediate nodes: no output defined.
		ParamStemChannels: 8,
	})
	backend := graphtest.BuildTestBackend()
	exec := context.NewExec(backend, ctx.In("model"), func(ctx *context.Context, images *Node) *Node {
		return Graph(ctx, nil, []*Node{images})[0]
	})
	images := tensors.FromShape(shapes.Make(dtypes.Float32, 1, cifar.Height, cifar.Width, cifar.Depth))
	require.Panics(t, func() { _ = exec.Call(images) })
}
