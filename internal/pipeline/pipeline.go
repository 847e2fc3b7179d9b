// Package pipeline wires one check pass together: a Dispatcher producing
// statuses and a Notifier consuming them over a bounded channel.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazz-dev/pingbot/internal/alert"
	"github.com/hazz-dev/pingbot/internal/checker"
	"github.com/hazz-dev/pingbot/internal/config"
	"github.com/hazz-dev/pingbot/internal/dispatch"
)

// DefaultChannelCapacity is the status channel size used when none is set.
const DefaultChannelCapacity = 32

// Options configures a single pass.
type Options struct {
	Services []config.Service
	Checker  dispatch.Checker
	Sink     alert.Sink

	// ChannelCapacity bounds the status channel; 0 uses DefaultChannelCapacity.
	ChannelCapacity int
	// MaxConcurrency caps concurrent checkers; 0 means unbounded.
	MaxConcurrency int
	// Deadline, when positive, cancels outstanding probes after this long.
	// The notifier still drains whatever was produced.
	Deadline time.Duration

	Notify   alert.Options
	Recorder dispatch.Recorder
	Logger   *slog.Logger
}

// Result reports what both sides of the pipeline did.
type Result struct {
	Dispatch dispatch.Summary
	Notify   alert.Report
}

// Run checks every enabled service once and delivers each status to the
// sink. It returns once every checker has finished and the notifier has
// drained the channel. Probe and delivery failures are logged, not returned.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Checker == nil {
		return Result{}, errors.New("pipeline: checker is required")
	}
	if opts.Sink == nil {
		return Result{}, errors.New("pipeline: sink is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	capacity := opts.ChannelCapacity
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	if opts.Notify.Logger == nil {
		opts.Notify.Logger = logger
	}

	statuses := make(chan checker.Status, capacity)
	notifier := alert.NewNotifier(opts.Sink, opts.Notify)
	dispatcher := dispatch.New(opts.Checker, opts.MaxConcurrency, opts.Recorder, logger)

	dispatchCtx := ctx
	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	logger.Info("starting check pass",
		"services", len(opts.Services),
		"channel_capacity", capacity,
		"max_concurrency", opts.MaxConcurrency,
	)

	var (
		res Result
		g   errgroup.Group
	)
	// Consumer first, so producers never block on a channel nobody reads.
	g.Go(func() error {
		res.Notify = notifier.Run(ctx, statuses)
		return nil
	})
	g.Go(func() error {
		res.Dispatch = dispatcher.Run(dispatchCtx, opts.Services, statuses)
		return nil
	})
	if err := g.Wait(); err != nil {
		return res, err
	}

	if dispatchCtx.Err() != nil && ctx.Err() == nil {
		logger.Warn("pass deadline exceeded; unfinished probes reported down", "deadline", opts.Deadline)
	}
	logger.Info("check pass complete",
		"sent", res.Dispatch.Sent,
		"delivered", res.Notify.Delivered,
		"failed", res.Notify.Failed,
	)
	return res, nil
}
