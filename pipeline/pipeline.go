// Copyright 2025 FoodLens. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package pipeline provides the public API for continuous
// classification over a camera stream.
//
// A Controller accepts raw camera frames without ever blocking the
// caller: frames outside the sampling cadence are skipped, and newer
// frames replace older ones waiting in a single-slot mailbox while an
// inference is in flight. Results arrive through the OnResult callback:
//
//	c, err := pipeline.New(modelBytes, labelBytes, classify.KindCPU,
//		pipeline.Config{
//			OnResult: func(r pipeline.Result) {
//				log.Println(r.Predictions[0].Label)
//			},
//		})
//	if err != nil {
//		return err
//	}
//	defer c.Shutdown()
//
//	for frame := range camera {
//		c.SubmitFrame(frame)
//	}
package pipeline

import (
	"github.com/theamorn/foodlens/internal/classify"
	"github.com/theamorn/foodlens/internal/imaging"
	internal "github.com/theamorn/foodlens/internal/pipeline"
)

// ErrClosed reports an operation on a controller after Shutdown.
var ErrClosed = internal.ErrClosed

// Controller owns the streaming loop for one model.
type Controller = internal.Controller

// Config tunes a controller.
type Config = internal.Config

// Result is one completed classification of a streamed frame.
type Result = internal.Result

// Stats are cumulative frame counters.
type Stats = internal.Stats

// Timings breaks one processed frame down by stage.
type Timings = internal.Timings

// Frame is one raw camera frame.
type Frame = imaging.Frame

// Plane is one image plane of a frame.
type Plane = imaging.Plane

// Frame pixel formats.
const (
	FormatYUV420 = imaging.FormatYUV420
	FormatNV21   = imaging.FormatNV21
	FormatRGBA   = imaging.FormatRGBA
	FormatBGRA   = imaging.FormatBGRA
)

// New loads the model and starts the worker loop.
func New(modelBytes, labelData []byte, kind classify.Kind, cfg Config) (*Controller, error) {
	return internal.New(modelBytes, labelData, kind, cfg)
}
