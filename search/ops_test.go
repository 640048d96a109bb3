// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package search

import (
	"testing"

	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/gomlx/gomlx/graph"

	_ "github.com/gomlx/gomlx/backends/default"
)

func TestOperationsRegistry(t *testing.T) {
	// The registry order is the identity of each operation for weight
	// indexing: it is load-bearing and must not change.
	ops := Operations(4)
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name)
	}
	assert.Equal(t, []string{"identity", "conv_3x3", "conv_1x1", "max_pool_3x3", "avg_pool_3x3"}, names)
}

func TestOperationsPreserveShape(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	input := testInput(2, 8, 8, 4)
	for _, op := range Operations(4) {
		t.Run(op.Name, func(t *testing.T) {
			ctx := context.New()
			exec := context.NewExec(backend, ctx, func(ctx *context.Context, x *Node) *Node {
				return op.Apply(ctx, x)
			})
			var outputs []*tensors.Tensor
			require.NotPanics(t, func() { outputs = exec.Call(input) })
			require.NoError(t, outputs[0].Shape().Check(dtypes.Float32, 2, 8, 8, 4))
		})
	}
}

func TestIdentityOperation(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	input := testInput(1, 4, 4, 2)
	ctx := context.New()
	op := Operations(2)[0]
	exec := context.NewExec(backend, ctx, func(ctx *context.Context, x *Node) *Node {
		return op.Apply(ctx, x)
	})
	outputs := exec.Call(input)
	require.True(t, outputs[0].Equal(input))
}

func TestConvolutionWeightsShared(t *testing.T) {
	// Applying the same convolution candidate twice must reuse the same
	// kernel: all edges of a cell share the operation weights.
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	op := Operations(3)[1] // conv_3x3
	exec := context.NewExec(backend, ctx, func(ctx *context.Context, x *Node) (diff *Node) {
		return ReduceAllSum(Abs(Sub(op.Apply(ctx, x), op.Apply(ctx, x))))
	})
	outputs := exec.Call(testInput(1, 4, 4, 3))
	assert.InDelta(t, 0.0, float64(tensors.ToScalar[float32](outputs[0])), 1e-6)

	numWeights := 0
	ctx.EnumerateVariables(func(v *context.Variable) {
		numWeights++
	})
	assert.Equal(t, 1, numWeights, "two applications of conv_3x3 must create a single kernel variable")
}
