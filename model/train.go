// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/ml/layers/batchnorm"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/gomlx/ml/train/losses"
	"github.com/gomlx/gomlx/ml/train/metrics"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/janpfeifer/must"

	. "github.com/gomlx/exceptions"

	"github.com/gomlx/darts/cifar"
)

// Backend is created once and reused if Train is called multiple times.
var Backend backends.Backend

// Train runs the architecture search: it trains the stem + search cell +
// classifier on CIFAR-10 with the hyperparameters given in ctx, the network
// weights and the architecture parameters updated jointly by the same
// optimizer.
//
// dataDir caches the dataset; checkpointPath (optional, relative paths are
// taken under dataDir) enables checkpointing. It panics on setup errors, the
// convention of gomlx training entry points.
func Train(ctx *context.Context, dataDir, checkpointPath string, evaluateOnEnd bool, verbosity int) {
	dataDir = data.ReplaceTildeInDir(dataDir)
	if !data.FileExists(dataDir) {
		must.M(os.MkdirAll(dataDir, 0777))
	}

	// Backend handles creation of ML computation graphs, accelerator
	// resources, etc.
	if Backend == nil {
		Backend = backends.New()
	}
	if verbosity >= 1 {
		fmt.Printf("Backend %q:\t%s\n", Backend.Name(), Backend.Description())
	}

	// Create datasets used for training and evaluation.
	batchSize := context.GetParamOr(ctx, "batch_size", int(0))
	if batchSize <= 0 {
		Panicf("Batch size must be > 0 (maybe it was not set?): %d", batchSize)
	}
	evalBatchSize := context.GetParamOr(ctx, "eval_batch_size", int(0))
	if evalBatchSize <= 0 {
		evalBatchSize = batchSize
	}
	trainDS, trainEvalDS, testEvalDS := CreateDatasets(Backend, dataDir, batchSize, evalBatchSize)

	// Read before a checkpoint possibly overwrites it with the saved value.
	numTrainSteps := context.GetParamOr(ctx, "train_steps", 0)

	// Checkpoints saving.
	var checkpoint *checkpoints.Handler
	var globalStep int
	if checkpointPath != "" {
		numCheckpointsToKeep := context.GetParamOr(ctx, "num_checkpoints", 3)
		checkpoint = must.M1(checkpoints.Build(ctx).
			DirFromBase(checkpointPath, dataDir).
			Keep(numCheckpointsToKeep).
			Done())
		fmt.Printf("Checkpointing model to %q\n", checkpoint.Dir())
		globalStep = int(optimizers.GetGlobalStep(ctx))
		if globalStep != 0 {
			fmt.Printf("Restarting training from global_step=%d\n", globalStep)
			ctx = ctx.Reuse()
		}
	}
	if verbosity >= 2 {
		fmt.Println(commandline.SprintContextSettings(ctx))
	}

	// Metrics we are interested in.
	meanAccuracyMetric := metrics.NewSparseCategoricalAccuracy("Mean Accuracy", "#acc")
	movingAccuracyMetric := metrics.NewMovingAverageSparseCategoricalAccuracy("Moving Average Accuracy", "~acc", 0.01)

	// Trainer: orchestrates running the model, feeding results to the
	// optimizer and evaluating the metrics. The architecture parameters are
	// ordinary trainable variables of the context, so the optimizer updates
	// them together with the convolution kernels and the head.
	ctx = ctx.In("model") // Convention scope used for model creation.
	trainer := train.NewTrainer(Backend, ctx, Graph,
		losses.SparseCategoricalCrossEntropyLogits,
		optimizers.FromContext(ctx),
		[]metrics.Interface{movingAccuracyMetric}, // trainMetrics
		[]metrics.Interface{meanAccuracyMetric})   // evalMetrics

	// Use the standard training loop.
	loop := train.NewLoop(trainer)
	if verbosity >= 0 {
		commandline.AttachProgressBar(loop)
	}

	// Checkpoint saving: every 3 minutes of training.
	if checkpoint != nil {
		period := 3 * time.Minute
		train.PeriodicCallback(loop, period, true, "saving checkpoint", 100,
			func(loop *train.Loop, metrics []*tensors.Tensor) error {
				return checkpoint.Save()
			})
	}

	// Loop for the given number of steps.
	if globalStep < numTrainSteps {
		_ = must.M1(loop.RunSteps(trainDS, numTrainSteps-globalStep))
		if verbosity >= 1 {
			fmt.Printf("\t[Step %d] median train step: %d microseconds\n",
				loop.LoopStep, loop.MedianTrainStepDuration().Microseconds())
			reportModelSize(ctx)
		}

		// Update batch normalization averages before evaluation.
		batchnorm.ResetWeights(ctx)
		if batchnorm.UpdateAverages(trainer, trainEvalDS) {
			if verbosity >= 1 {
				fmt.Println("\tUpdated batch normalization mean/variances averages.")
			}
			if checkpoint != nil {
				must.M(checkpoint.Save())
			}
		}

	} else {
		fmt.Printf("\t - target train_steps=%d already reached. To train further, set a number additional "+
			"to current global step.\n", numTrainSteps)
	}

	// Finally, print an evaluation on train and test datasets.
	if evaluateOnEnd {
		if verbosity >= 1 {
			fmt.Println()
		}
		must.M(commandline.ReportEval(trainer, testEvalDS, trainEvalDS))
	}
}

// CreateDatasets for training (shuffled, infinite) and evaluation (plain
// batches over train and test partitions).
func CreateDatasets(backend backends.Backend, dataDir string, batchSize, evalBatchSize int) (trainDS, trainEvalDS, testEvalDS train.Dataset) {
	baseTrain := must.M1(cifar.NewDataset(backend, "Training", dataDir, cifar.Train))
	baseTest := must.M1(cifar.NewDataset(backend, "Validation", dataDir, cifar.Test))
	trainDS = baseTrain.Copy().BatchSize(batchSize, true).Shuffle().Infinite(true)
	trainEvalDS = baseTrain.BatchSize(evalBatchSize, false)
	testEvalDS = baseTest.BatchSize(evalBatchSize, false)
	return
}

// reportModelSize prints the number of trainable parameters, split between
// architecture parameters (the alphas) and network weights.
func reportModelSize(ctx *context.Context) {
	var archParams, netParams, numVars int
	ctx.EnumerateVariables(func(v *context.Variable) {
		if !v.Trainable {
			return
		}
		numVars++
		size := v.Shape().Size()
		if isAlphaVariable(v.Name()) {
			archParams += size
		} else {
			netParams += size
		}
	})
	fmt.Printf("\tModel: %s network weights + %s architecture weights in %d variables\n",
		humanize.Comma(int64(netParams)), humanize.Comma(int64(archParams)), numVars)
}

// isAlphaVariable reports whether name is one of the cell's architecture
// parameters (see search.AlphaName).
func isAlphaVariable(name string) bool {
	return strings.HasPrefix(name, "alpha_")
}
