// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// darts-train searches a CIFAR-10 architecture with a differentiable
// (DARTS-style) search cell: it relaxes the discrete choice of operation per
// edge into a softmax-weighted mixture and trains the mixture weights jointly
// with the network weights.
//
// Hyperparameters can come from a YAML file (--config) and from --set
// overrides; both are saved along with checkpoints (--checkpoint).
package main

import (
	"flag"

	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/gomlx/darts/model"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagDataDir    = flag.String("data", "~/work/darts", "Directory to cache downloaded dataset files and checkpoints.")
	flagConfig     = flag.String("config", "", "YAML configuration file with hyperparameters; --set overrides it.")
	flagCheckpoint = flag.String("checkpoint", "", "Directory to save and load checkpoints from. If left empty, no checkpoints are created.")
	flagEval       = flag.Bool("eval", true, "Whether to evaluate the model on the validation data in the end.")
	flagVerbosity  = flag.Int("verbosity", 1, "Level of verbosity, the higher the more verbose.")
)

func main() {
	ctx := model.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()

	must.M(model.ApplyConfigFile(ctx, *flagConfig))
	must.M1(commandline.ParseContextSettings(ctx, *settings))

	model.Train(ctx, *flagDataDir, *flagCheckpoint, *flagEval, *flagVerbosity)
}
