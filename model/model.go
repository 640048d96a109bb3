// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package model embeds the darts search cell into a CIFAR-10 classifier and
// provides its training entry point: a fixed convolutional stem adapts the
// image channels, the search cell runs once on the stem output, and a
// mean-pool + dense head produces the class logits.
//
// All hyperparameters are context parameters (see CreateDefaultContext), so
// they are saved with checkpoints and settable from the command line or from a
// YAML config file.
package model

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/ml/layers/batchnorm"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/ml/train/optimizers/cosineschedule"
	"github.com/pkg/errors"

	"github.com/gomlx/darts/cifar"
	"github.com/gomlx/darts/search"
)

// Hyperparameter names used by the model graph.
const (
	// ParamNumNodes is the number of intermediate nodes of the search cell.
	ParamNumNodes = "num_nodes"

	// ParamNumOps is the number of candidate operations; it must match the
	// registry size (see search.Operations).
	ParamNumOps = "num_ops"

	// ParamStemChannels is the channel width the stem widens the input to, and
	// therefore the channel count the search cell operates on. This replaces
	// the original's runtime discovery of the stem's output channels with an
	// explicit configuration value.
	ParamStemChannels = "stem_channels"
)

// CreateDefaultContext creates a context with the default hyperparameters.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.RngStateReset()
	ctx.SetParams(map[string]any{
		"train_steps":     3000,
		"num_checkpoints": 3,
		"batch_size":      64,

		// eval_batch_size can be larger than training, it's more efficient.
		"eval_batch_size": 200,

		// Search cell.
		ParamNumNodes:     4,
		ParamNumOps:       5,
		ParamStemChannels: 64,

		// The original searches with SGD + cosine annealing.
		optimizers.ParamOptimizer:           "sgd",
		optimizers.ParamLearningRate:        0.025,
		cosineschedule.ParamPeriodSteps: 0,
		layers.ParamL2Regularization:        3e-4,
	})
	return ctx
}

// stemWidths are the output channels of the stem's convolution blocks; the last
// one is overridden by ParamStemChannels.
var stemWidths = []int{16, 32, 64}

// Graph implements train.ModelFn: it returns the logits Node given the batched
// input images, shaped [batch_size, 32, 32, 3].
func Graph(ctx *context.Context, spec any, inputs []*graph.Node) []*graph.Node {
	batchedImages := inputs[0]
	batchedImages.AssertRank(4)
	batchSize := batchedImages.Shape().Dimensions[0]

	stemChannels := context.GetParamOr(ctx, ParamStemChannels, stemWidths[len(stemWidths)-1])
	logits := stem(ctx.In("stem"), batchedImages, stemChannels)

	cell, err := search.New(search.Config{
		NumNodes:   context.GetParamOr(ctx, ParamNumNodes, 0),
		NumOps:     context.GetParamOr(ctx, ParamNumOps, 0),
		InChannels: stemChannels,
	})
	if err != nil {
		panic(errors.WithMessage(err, "configuring the search cell"))
	}
	logits = cell.Forward(ctx.In("cell"), logits)

	// Head: global mean pooling over the spatial axes, then project to the
	// class logits.
	logits = graph.ReduceMean(logits, 1, 2)
	logits.AssertDims(batchSize, stemChannels)
	logits = layers.DenseWithBias(ctx.In("head"), logits, cifar.NumClasses)
	logits.AssertDims(batchSize, cifar.NumClasses)
	return []*graph.Node{logits}
}

// stem widens the raw images to stemChannels with convolution + batch
// normalization + relu blocks (3 -> 16 -> 32 -> stemChannels).
func stem(ctx *context.Context, x *graph.Node, stemChannels int) *graph.Node {
	if stemChannels <= 0 {
		Panicf("%q must be > 0, got %d", ParamStemChannels, stemChannels)
	}
	widths := append([]int{}, stemWidths...)
	widths[len(widths)-1] = stemChannels
	for ii, channels := range widths {
		blockCtx := ctx.Inf("%03d_block", ii)
		x = layers.Convolution(blockCtx.In("conv"), x).
			Filters(channels).KernelSize(3).PadSame().UseBias(false).Done()
		x = batchnorm.New(blockCtx.In("norm"), x, -1).Done()
		x = activations.Relu(x)
	}
	return x
}
