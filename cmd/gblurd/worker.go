package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gogpu/blur"
	"github.com/gogpu/blur/internal/queue"
)

// jobQueue is the subset of *queue.Client a worker uses.
type jobQueue interface {
	ReadJob(ctx context.Context, consumer string, block time.Duration) (*queue.Delivery, error)
	ClaimStale(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]*queue.Delivery, error)
	Ack(ctx context.Context, entryID string) error
	PublishResult(ctx context.Context, res *queue.Result) (string, error)
}

type worker struct {
	queue     jobQueue
	pipeline  *blur.Pipeline
	consumer  string
	block     time.Duration
	claimIdle time.Duration
	maxTries  int
	log       *slog.Logger
}

// claimBatch bounds the stale jobs taken over per poll.
const claimBatch = 8

// loop processes jobs until ctx is canceled.
func (w *worker) loop(ctx context.Context) error {
	for ctx.Err() == nil {
		if err := w.poll(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			w.log.Error("gblurd: poll failed", "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
	w.log.Info("gblurd: worker stopped", "consumer", w.consumer)
	return nil
}

// poll claims stale jobs, then reads at most one new job, and handles
// everything it received.
func (w *worker) poll(ctx context.Context) error {
	var deliveries []*queue.Delivery
	if w.claimIdle > 0 {
		stale, err := w.queue.ClaimStale(ctx, w.consumer, w.claimIdle, claimBatch)
		if err != nil {
			return err
		}
		deliveries = append(deliveries, stale...)
	}
	if len(deliveries) == 0 {
		d, err := w.queue.ReadJob(ctx, w.consumer, w.block)
		if err != nil {
			return err
		}
		if d != nil {
			deliveries = append(deliveries, d)
		}
	}
	for _, d := range deliveries {
		if err := w.handle(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// handle runs one delivery, publishes its result and acknowledges it unless
// a transient device failure leaves it for another delivery.
func (w *worker) handle(ctx context.Context, d *queue.Delivery) error {
	res := &queue.Result{
		Worker: w.consumer,
		Device: w.pipeline.Device().Name(),
	}
	if d.Job != nil {
		res.JobID = d.Job.ID
	}

	start := time.Now()
	err := d.Err
	if err == nil {
		err = d.Job.Validate()
	}
	if err == nil {
		err = w.pipeline.BlurFile(d.Job.Input, d.Job.Output, d.Job.Sigma)
	}
	res.Elapsed = time.Since(start)
	res.Finished = time.Now().UTC()
	res.OK = err == nil
	if err != nil {
		res.Error = err.Error()
	}

	if _, perr := w.queue.PublishResult(ctx, res); perr != nil {
		return perr
	}

	if err != nil && retryable(err) {
		if w.maxTries <= 0 || d.Deliveries < int64(w.maxTries) {
			w.log.Warn("gblurd: job left pending", "entry", d.EntryID, "job", res.JobID,
				"deliveries", d.Deliveries, "err", err)
			return nil
		}
		w.log.Warn("gblurd: giving up on job", "entry", d.EntryID, "job", res.JobID,
			"deliveries", d.Deliveries, "err", err)
	} else if err != nil {
		w.log.Warn("gblurd: job failed", "entry", d.EntryID, "job", res.JobID, "err", err)
	} else {
		w.log.Info("gblurd: job done", "entry", d.EntryID, "job", res.JobID, "elapsed", res.Elapsed)
	}
	return w.queue.Ack(ctx, d.EntryID)
}

// retryable reports transient device faults that a later delivery may get
// past. Size, memory and kernel build failures repeat on every delivery and
// are final.
func retryable(err error) bool {
	if errors.Is(err, blur.ErrKernelBuild) {
		return false
	}
	return errors.Is(err, blur.ErrDevice) || errors.Is(err, blur.ErrNoDevice)
}
