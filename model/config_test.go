// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestApplyConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
model:
  num_nodes: 7
  stem_channels: 32
training:
  optimizer: adamw
  learning_rate: 0.001
data:
  batch_size: 128
`)
	ctx := CreateDefaultContext()
	require.NoError(t, ApplyConfigFile(ctx, path))

	assert.Equal(t, 7, context.GetParamOr(ctx, ParamNumNodes, 0))
	assert.Equal(t, 32, context.GetParamOr(ctx, ParamStemChannels, 0))
	assert.Equal(t, "adamw", context.GetParamOr(ctx, optimizers.ParamOptimizer, ""))
	assert.Equal(t, 0.001, context.GetParamOr(ctx, optimizers.ParamLearningRate, 0.0))
	assert.Equal(t, 128, context.GetParamOr(ctx, "batch_size", 0))

	// Fields absent from the file keep the context defaults.
	assert.Equal(t, 5, context.GetParamOr(ctx, ParamNumOps, 0))
	assert.Equal(t, 3000, context.GetParamOr(ctx, "train_steps", 0))
}

func TestApplyConfigFileUnknownField(t *testing.T) {
	// Typos in hyperparameter names must not be silently dropped.
	path := writeConfigFile(t, `
model:
  number_of_nodes: 7
`)
	ctx := CreateDefaultContext()
	require.Error(t, ApplyConfigFile(ctx, path))
}

func TestApplyConfigFileEmptyPath(t *testing.T) {
	ctx := CreateDefaultContext()
	require.NoError(t, ApplyConfigFile(ctx, ""))
	assert.Equal(t, 4, context.GetParamOr(ctx, ParamNumNodes, 0))
}
