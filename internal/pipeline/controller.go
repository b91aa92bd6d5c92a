// Package pipeline drives continuous classification over a camera
// stream: frame sampling, a single-slot pending mailbox, a paced worker
// that keeps at most one inference in flight, and hot backend swaps.
package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"

	"github.com/theamorn/foodlens/internal/classify"
	"github.com/theamorn/foodlens/internal/imaging"
	"github.com/theamorn/foodlens/internal/tensor"
)

// Tick intervals per effective backend. The accelerator completes a
// pass much faster, so it polls the mailbox more often.
const (
	cpuTickInterval   = 300 * time.Millisecond
	accelTickInterval = 100 * time.Millisecond
)

// DefaultSampleEvery keeps every 2nd submitted frame.
const DefaultSampleEvery = 2

// ErrClosed reports an operation on a controller after Shutdown.
var ErrClosed = errors.New("pipeline: controller is closed")

// Timings breaks one processed frame down by stage.
type Timings struct {
	Convert   time.Duration
	Resize    time.Duration
	Inference time.Duration
	Total     time.Duration
}

// Result is one completed classification of a streamed frame.
type Result struct {
	Seq         uint64
	Predictions []classify.Prediction
	Timings     Timings
}

// Stats are cumulative frame counters.
type Stats struct {
	Submitted uint64 // frames offered to SubmitFrame
	Skipped   uint64 // frames removed by Nth-frame sampling
	Dropped   uint64 // sampled frames overwritten in the mailbox
	Processed uint64 // frames that completed inference
}

// Config tunes a controller. Zero values pick the defaults.
type Config struct {
	// SampleEvery keeps every Nth submitted frame. Zero means
	// DefaultSampleEvery; 1 keeps all frames.
	SampleEvery int

	// TopN limits each result's prediction list. Zero means 1.
	TopN int

	// OnResult receives completed classifications. Called from the
	// worker goroutine; must not block for long.
	OnResult func(Result)

	// OnBackend receives the effective backend after load and after
	// every successful SetBackend.
	OnBackend func(classify.Kind)

	Logger golog.Logger
}

// Controller owns the streaming loop for one model.
type Controller struct {
	id     string
	cfg    Config
	logger golog.Logger

	// Model and label bytes are retained so SetBackend can rebuild the
	// handle from scratch.
	modelBytes []byte
	labelData  []byte

	// mu guards the mailbox and submission state. SubmitFrame only ever
	// takes this lock, so it stays non-blocking while inference runs.
	mu      sync.Mutex
	pending *imaging.Frame
	seq     uint64
	closed  bool

	// runMu serializes forward passes against backend swaps and
	// teardown. It is held only for the duration of one handle
	// operation, never across preprocessing.
	runMu    sync.Mutex
	handle   *classify.Handle
	released bool

	submitted atomic.Uint64
	skipped   atomic.Uint64
	dropped   atomic.Uint64
	processed atomic.Uint64

	done    chan struct{}
	stopped chan struct{}
}

// New loads the model and starts the worker loop. kind is a request;
// the controller reports the effective backend through OnBackend.
func New(modelBytes, labelData []byte, kind classify.Kind, cfg Config) (*Controller, error) {
	if cfg.SampleEvery <= 0 {
		cfg.SampleEvery = DefaultSampleEvery
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = golog.NewLogger("foodlens.pipeline")
	}

	h, err := classify.Load(modelBytes, bytes.NewReader(labelData), classify.Config{Kind: kind})
	if err != nil {
		return nil, err
	}

	c := &Controller{
		id:         uuid.New().String(),
		cfg:        cfg,
		logger:     cfg.Logger,
		modelBytes: modelBytes,
		labelData:  labelData,
		handle:     h,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}

	c.notifyBackend(h.Effective())
	go c.run()
	return c, nil
}

// ID returns the controller's instance identifier.
func (c *Controller) ID() string {
	return c.id
}

// Effective returns the backend currently executing inference.
func (c *Controller) Effective() classify.Kind {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.handle.Effective()
}

// SubmitFrame offers a camera frame to the pipeline. Never blocks on
// inference: frames outside the sampling cadence are skipped, and a
// sampled frame replaces whatever is waiting in the mailbox. Returns
// false when the frame was not accepted into the mailbox.
func (c *Controller) SubmitFrame(f *imaging.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	c.submitted.Add(1)
	c.seq++
	f.Seq = c.seq

	if c.seq%uint64(c.cfg.SampleEvery) != 0 {
		c.skipped.Add(1)
		return false
	}

	if c.pending != nil {
		c.dropped.Add(1)
	}
	c.pending = f
	return true
}

// SetBackend rebuilds the handle on the requested backend. The new
// handle is fully loaded before the old one is touched; on failure the
// running handle stays installed and keeps serving ticks.
func (c *Controller) SetBackend(kind classify.Kind) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	next, err := classify.Load(c.modelBytes, bytes.NewReader(c.labelData), classify.Config{Kind: kind})
	if err != nil {
		return fmt.Errorf("backend swap: %w", err)
	}

	c.runMu.Lock()
	if c.released {
		// Shutdown finished while the new handle was loading.
		c.runMu.Unlock()
		next.Close()
		return ErrClosed
	}
	prev := c.handle
	prev.Close()
	c.handle = next
	c.runMu.Unlock()

	c.logger.Infow("backend swapped",
		"controller", c.id, "requested", kind.String(), "effective", next.Effective().String())
	c.notifyBackend(next.Effective())
	return nil
}

// Stats returns a snapshot of the frame counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Submitted: c.submitted.Load(),
		Skipped:   c.skipped.Load(),
		Dropped:   c.dropped.Load(),
		Processed: c.processed.Load(),
	}
}

// Shutdown cancels any frame still waiting in the mailbox, waits for
// the in-flight inference to finish and releases the handle. Safe to
// call more than once.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.stopped
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	<-c.stopped

	c.runMu.Lock()
	c.released = true
	c.handle.Close()
	c.runMu.Unlock()
}

// run is the worker loop. It is the only goroutine that calls Run on
// the handle, which is what makes one-in-flight structural.
func (c *Controller) run() {
	defer close(c.stopped)

	timer := time.NewTimer(c.tickInterval())
	defer timer.Stop()

	for {
		select {
		case <-c.done:
			// A frame still waiting in the mailbox never started; it
			// is cancelled, not run.
			c.discardPending()
			return
		case <-timer.C:
			c.tickOnce()
			timer.Reset(c.tickInterval())
		}
	}
}

func (c *Controller) discardPending() {
	c.mu.Lock()
	if c.pending != nil {
		c.pending = nil
		c.dropped.Add(1)
	}
	c.mu.Unlock()
}

func (c *Controller) tickInterval() time.Duration {
	if c.Effective() == classify.KindAccelerator {
		return accelTickInterval
	}
	return cpuTickInterval
}

// tickOnce takes the pending frame, runs it end to end and publishes
// the result. Per-frame errors are logged and swallowed so one bad
// frame never stops the stream.
func (c *Controller) tickOnce() {
	c.mu.Lock()
	f := c.pending
	c.pending = nil
	c.mu.Unlock()
	if f == nil {
		return
	}

	start := time.Now()

	// Snapshot the handle, then preprocess without any lock held so a
	// backend swap never waits on color conversion or resize.
	c.runMu.Lock()
	h := c.handle
	opts := h.PreprocessOptions()
	c.runMu.Unlock()

	in, tm, err := imaging.Preprocess(f, opts)
	if err != nil {
		c.logger.Errorw("frame preprocess failed", "controller", c.id, "seq", f.Seq, "error", err)
		return
	}

	raw, infElapsed, ok := c.infer(h, in, f.Seq)
	if !ok {
		return
	}

	preds, err := classify.Predictions(raw, h.Labels(), c.cfg.TopN)
	if err != nil {
		c.logger.Errorw("postprocess failed", "controller", c.id, "seq", f.Seq, "error", err)
		return
	}

	c.processed.Add(1)

	if c.cfg.OnResult != nil {
		c.cfg.OnResult(Result{
			Seq:         f.Seq,
			Predictions: preds,
			Timings: Timings{
				Convert:   tm.Convert,
				Resize:    tm.Resize,
				Inference: infElapsed,
				Total:     time.Since(start),
			},
		})
	}
}

// infer runs one forward pass under runMu, which is held only for the
// pass itself. A handle swapped out while the frame was preprocessing
// is stale; its tensor belonged to the old input contract, so the
// frame is dropped and the next tick picks up fresh work.
func (c *Controller) infer(h *classify.Handle, in *tensor.RawTensor, seq uint64) (*tensor.RawTensor, time.Duration, bool) {
	c.runMu.Lock()
	if c.handle != h {
		c.runMu.Unlock()
		c.dropped.Add(1)
		return nil, 0, false
	}

	start := time.Now()
	raw, err := h.Run(in)
	elapsed := time.Since(start)
	c.runMu.Unlock()

	if err != nil {
		c.logger.Errorw("inference failed", "controller", c.id, "seq", seq, "error", err)
		return nil, 0, false
	}
	return raw, elapsed, true
}

func (c *Controller) notifyBackend(k classify.Kind) {
	if c.cfg.OnBackend != nil {
		c.cfg.OnBackend(k)
	}
}
