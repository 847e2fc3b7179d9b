// Package dispatch fans out one checker per enabled service and funnels
// their statuses into a single channel.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/hazz-dev/pingbot/internal/checker"
	"github.com/hazz-dev/pingbot/internal/config"
)

// Checker checks one service. *checker.Checker satisfies it.
type Checker interface {
	Check(ctx context.Context, svc config.Service) (checker.Status, bool)
}

// Recorder observes checker outcomes. *metrics.RunMetrics satisfies it.
type Recorder interface {
	ObserveStatus(st checker.Status)
	ObserveUnsupported()
	ObservePanic()
}

// Summary counts what happened to every configured service in one run.
type Summary struct {
	Disabled    int
	Spawned     int
	Sent        int
	Unsupported int
	Panicked    int
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeUnsupported
	outcomePanicked
)

// Dispatcher runs one Checker per enabled service.
type Dispatcher struct {
	checker        Checker
	maxConcurrency int
	recorder       Recorder
	logger         *slog.Logger
}

// New creates a Dispatcher. maxConcurrency <= 0 starts every checker at once.
// Pass nil recorder to skip metrics and nil logger to use the default logger.
func New(c Checker, maxConcurrency int, recorder Recorder, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		checker:        c,
		maxConcurrency: maxConcurrency,
		recorder:       recorder,
		logger:         logger,
	}
}

// Run checks every enabled service concurrently and sends each status on
// out. Sends block while out is full; nothing is dropped. A checker that
// panics is logged and produces no status, and its siblings carry on. Run
// closes out once every checker has finished, so the consumer can drain
// and stop.
func (d *Dispatcher) Run(ctx context.Context, services []config.Service, out chan<- checker.Status) Summary {
	defer close(out)

	var sum Summary
	enabled := make([]config.Service, 0, len(services))
	for _, svc := range services {
		if !svc.Enabled {
			d.logger.Debug("service disabled, skipping", "service", svc.Name)
			sum.Disabled++
			continue
		}
		enabled = append(enabled, svc)
	}
	sum.Spawned = len(enabled)

	p := pool.New()
	if d.maxConcurrency > 0 {
		p = p.WithMaxGoroutines(d.maxConcurrency)
	}

	// One slot per task; each goroutine writes only its own.
	outcomes := make([]outcome, len(enabled))
	for i, svc := range enabled {
		i, svc := i, svc
		p.Go(func() {
			outcomes[i] = d.runOne(ctx, svc, out)
		})
	}
	p.Wait()

	for _, o := range outcomes {
		switch o {
		case outcomeSent:
			sum.Sent++
		case outcomeUnsupported:
			sum.Unsupported++
		case outcomePanicked:
			sum.Panicked++
		}
	}

	d.logger.Info("dispatch finished",
		"spawned", sum.Spawned,
		"sent", sum.Sent,
		"unsupported", sum.Unsupported,
		"panicked", sum.Panicked,
		"disabled", sum.Disabled,
	)
	return sum
}

func (d *Dispatcher) runOne(ctx context.Context, svc config.Service, out chan<- checker.Status) outcome {
	var (
		st checker.Status
		ok bool
	)
	var pc panics.Catcher
	pc.Try(func() {
		st, ok = d.checker.Check(ctx, svc)
	})
	if r := pc.Recovered(); r != nil {
		d.logger.Error("checker panicked",
			"service", svc.Name,
			"panic", r.Value,
			"stack", string(r.Stack),
		)
		d.record(svc, func(rec Recorder) { rec.ObservePanic() })
		return outcomePanicked
	}

	if !ok {
		d.record(svc, func(rec Recorder) { rec.ObserveUnsupported() })
		return outcomeUnsupported
	}

	d.record(svc, func(rec Recorder) { rec.ObserveStatus(st) })
	out <- st
	return outcomeSent
}

// record runs f against the recorder, if any. A panicking recorder is
// logged and never stops the status from being sent.
func (d *Dispatcher) record(svc config.Service, f func(Recorder)) {
	if d.recorder == nil {
		return
	}
	var pc panics.Catcher
	pc.Try(func() { f(d.recorder) })
	if r := pc.Recovered(); r != nil {
		d.logger.Error("recorder panicked",
			"service", svc.Name,
			"panic", r.Value,
			"stack", string(r.Stack),
		)
	}
}
