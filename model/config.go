// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"os"

	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/ml/train/optimizers/cosineschedule"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config mirrors the layout of the YAML configuration file. Zero values mean
// "keep the context default"; see CreateDefaultContext for the defaults.
type Config struct {
	Model struct {
		NumNodes     int `yaml:"num_nodes"`
		NumOps       int `yaml:"num_ops"`
		StemChannels int `yaml:"stem_channels"`
	} `yaml:"model"`
	Training struct {
		Optimizer           string  `yaml:"optimizer"`
		LearningRate        float64 `yaml:"learning_rate"`
		L2Regularization    float64 `yaml:"l2_regularization"`
		CosineScheduleSteps int     `yaml:"cosine_schedule_steps"`
		TrainSteps          int     `yaml:"train_steps"`
	} `yaml:"training"`
	Data struct {
		BatchSize     int `yaml:"batch_size"`
		EvalBatchSize int `yaml:"eval_batch_size"`
	} `yaml:"data"`
}

// LoadConfig parses the YAML configuration file at path. Unknown fields are an
// error, to catch typos in hyperparameter names.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config file %q", path)
	}
	defer func() { _ = f.Close() }()
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config file %q", path)
	}
	return &cfg, nil
}

// ApplyConfigFile loads the YAML file at path and sets the corresponding
// context hyperparameters. Fields left at their zero value in the file are not
// set. It is a no-op if path is empty.
//
// Command-line settings are expected to be parsed after this, so they override
// the file.
func ApplyConfigFile(ctx *context.Context, path string) error {
	if path == "" {
		return nil
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	params := map[string]any{}
	if cfg.Model.NumNodes != 0 {
		params[ParamNumNodes] = cfg.Model.NumNodes
	}
	if cfg.Model.NumOps != 0 {
		params[ParamNumOps] = cfg.Model.NumOps
	}
	if cfg.Model.StemChannels != 0 {
		params[ParamStemChannels] = cfg.Model.StemChannels
	}
	if cfg.Training.Optimizer != "" {
		params[optimizers.ParamOptimizer] = cfg.Training.Optimizer
	}
	if cfg.Training.LearningRate != 0 {
		params[optimizers.ParamLearningRate] = cfg.Training.LearningRate
	}
	if cfg.Training.L2Regularization != 0 {
		params[layers.ParamL2Regularization] = cfg.Training.L2Regularization
	}
	if cfg.Training.CosineScheduleSteps != 0 {
		params[cosineschedule.ParamPeriodSteps] = cfg.Training.CosineScheduleSteps
	}
	if cfg.Training.TrainSteps != 0 {
		params["train_steps"] = cfg.Training.TrainSteps
	}
	if cfg.Data.BatchSize != 0 {
		params["batch_size"] = cfg.Data.BatchSize
	}
	if cfg.Data.EvalBatchSize != 0 {
		params["eval_batch_size"] = cfg.Data.EvalBatchSize
	}
	ctx.SetParams(params)
	return nil
}
