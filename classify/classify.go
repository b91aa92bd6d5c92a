// Copyright 2025 FoodLens. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package classify provides the public API for loading food
// classification models and running single inferences.
//
// A Handle owns one loaded model, its label table and an execution
// backend. Requesting the accelerator backend on a device that cannot
// provide one transparently falls back to the CPU:
//
//	h, err := classify.Load(modelBytes, labelFile, classify.Config{
//		Kind: classify.KindAccelerator,
//	})
//	if err != nil {
//		return err
//	}
//	defer h.Close()
//
//	preds, err := classify.ClassifyImage(h, img, 5)
package classify

import (
	"image"
	"io"

	internal "github.com/theamorn/foodlens/internal/classify"
	"github.com/theamorn/foodlens/internal/labels"
	"github.com/theamorn/foodlens/internal/tensor"
)

// Errors returned by the inference boundary.
var (
	ErrModelLoad = internal.ErrModelLoad
	ErrInference = internal.ErrInference
)

// Kind selects the execution strategy.
type Kind = internal.Kind

// Execution strategies.
const (
	KindCPU         Kind = internal.KindCPU
	KindAccelerator Kind = internal.KindAccelerator
)

// Config configures a model load.
type Config = internal.Config

// Handle is one loaded model ready to run.
type Handle = internal.Handle

// Prediction is one ranked class.
type Prediction = internal.Prediction

// Table maps class indices to label names.
type Table = labels.Table

// RawTensor is a raw input or output buffer.
type RawTensor = tensor.RawTensor

// Load parses model bytes and the label source and prepares an
// execution backend. All-or-nothing: on error nothing stays allocated
// and any previously loaded handle is untouched.
func Load(modelBytes []byte, labelSource io.Reader, cfg Config) (*Handle, error) {
	return internal.Load(modelBytes, labelSource, cfg)
}

// Predictions converts raw model output into a ranked prediction list,
// excluding the background class.
func Predictions(raw *tensor.RawTensor, table *labels.Table, n int) ([]Prediction, error) {
	return internal.Predictions(raw, table, n)
}

// ClassifyImage runs one synchronous pass over a decoded still image
// and returns the full ranked list. n <= 0 returns every class.
func ClassifyImage(h *Handle, img image.Image, n int) ([]Prediction, error) {
	return internal.ClassifyImage(h, img, n)
}
