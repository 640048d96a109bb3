// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"testing"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/gomlx/darts/model"
)

var flagSettings *string

func init() {
	klog.InitFlags(nil)
	ctx := model.CreateDefaultContext()
	flagSettings = commandline.CreateContextSettingsFlag(ctx, "")
	if _, found := os.LookupEnv(backends.GOMLX_BACKEND); !found {
		// For testing, we use the CPU backend (and avoid GPU if not explicitly requested).
		must.M(os.Setenv(backends.GOMLX_BACKEND, "xla:cpu"))
	}
}

// TestTrain runs the search for 10 steps, not generating any checkpoints.
//
// It has to download the training data, and it will use the flag *flagDataDir
// (--data) as the location to store it. It is disabled for short tests.
func TestTrain(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping training smoke test in short mode")
		return
	}
	ctx := model.CreateDefaultContext()
	ctx.SetParam("train_steps", 10) // Only 10 steps.
	must.M1(commandline.ParseContextSettings(ctx, *flagSettings))
	model.Train(ctx, *flagDataDir, "", true, 1)
}
