package alert

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazz-dev/pingbot/internal/checker"
	"github.com/hazz-dev/pingbot/internal/storage"
)

// Journal records delivery attempts. *storage.DB satisfies it.
type Journal interface {
	Record(ctx context.Context, e storage.Entry) error
}

// Recorder observes delivery outcomes. *metrics.RunMetrics satisfies it.
type Recorder interface {
	ObserveDelivery(ok bool)
}

// Options configures a Notifier. The zero value delivers without rate
// limiting, journal or metrics.
type Options struct {
	IncludeHost bool
	// RatePerSecond caps deliveries to the sink; 0 means unlimited.
	RatePerSecond float64
	Burst         int
	Journal       Journal
	Recorder      Recorder
	Logger        *slog.Logger
}

// Notifier is the single consumer of the status channel. It forwards each
// status to the sink, one at a time, in arrival order.
type Notifier struct {
	sink        Sink
	includeHost bool
	limiter     *rate.Limiter
	journal     Journal
	recorder    Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// Report summarises one Notifier run.
type Report struct {
	Received  int
	Delivered int
	Failed    int
}

// NewNotifier creates a Notifier that delivers to sink.
func NewNotifier(sink Sink, opts Options) *Notifier {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	n := &Notifier{
		sink:        sink,
		includeHost: opts.IncludeHost,
		journal:     opts.Journal,
		recorder:    opts.Recorder,
		logger:      opts.Logger,
		now:         time.Now,
	}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		n.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return n
}

// Format renders the message for st: "<name> is UP" or "<name> is DOWN",
// with the host in parentheses when includeHost is set.
func Format(st checker.Status, includeHost bool) string {
	var b strings.Builder
	b.WriteString(st.Service.Name)
	if includeHost && st.Service.Host != "" {
		b.WriteString(" (")
		b.WriteString(st.Service.Host)
		b.WriteString(")")
	}
	b.WriteString(" is ")
	b.WriteString(st.Word())
	return b.String()
}

// Run drains in until it is closed and empty. A failed delivery is logged
// and the loop moves on to the next status. ctx bounds individual
// deliveries; cancelling it does not stop the drain, so Run always returns
// once the producers close the channel.
func (n *Notifier) Run(ctx context.Context, in <-chan checker.Status) Report {
	var rep Report
	for st := range in {
		rep.Received++
		if n.deliver(ctx, st) {
			rep.Delivered++
		} else {
			rep.Failed++
		}
	}
	n.logger.Info("notifier finished",
		"received", rep.Received,
		"delivered", rep.Delivered,
		"failed", rep.Failed,
	)
	return rep
}

func (n *Notifier) deliver(ctx context.Context, st checker.Status) bool {
	msg := Format(st, n.includeHost)

	var err error
	if n.limiter != nil {
		err = n.limiter.Wait(ctx)
	}
	if err == nil {
		err = n.sink.Deliver(ctx, msg)
	}
	ok := err == nil

	if ok {
		n.logger.Debug("delivered", "service", st.Service.Name, "message", msg)
	} else {
		n.logger.Error("delivering notification", "service", st.Service.Name, "message", msg, "error", err)
	}
	if n.recorder != nil {
		n.recorder.ObserveDelivery(ok)
	}
	if n.journal != nil {
		n.record(st, msg, err)
	}
	return ok
}

func (n *Notifier) record(st checker.Status, msg string, deliverErr error) {
	e := storage.Entry{
		Service:     st.Service.Name,
		Host:        st.Service.Host,
		Type:        string(st.Service.Type),
		Status:      strings.ToLower(st.Word()),
		Message:     msg,
		Delivered:   deliverErr == nil,
		ObservedAt:  st.ObservedAt,
		DeliveredAt: n.now(),
	}
	if deliverErr != nil {
		e.Error = deliverErr.Error()
	}
	// The journal outlives a cancelled run context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.journal.Record(ctx, e); err != nil {
		n.logger.Warn("journaling delivery", "service", st.Service.Name, "error", err)
	}
}
