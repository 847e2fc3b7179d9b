package checker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazz-dev/pingbot/internal/config"
)

// DefaultTimeout bounds a probe for a service that carries no timeout.
const DefaultTimeout = 5 * time.Second

// Prober determines whether a single service is reachable. A nil error
// means up; any error means down.
type Prober interface {
	Probe(ctx context.Context, svc config.Service) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, svc config.Service) error

func (f ProberFunc) Probe(ctx context.Context, svc config.Service) error { return f(ctx, svc) }

// Registry maps each supported service type to its Prober. A type with no
// entry is unsupported.
type Registry map[config.ServiceType]Prober

// DefaultRegistry returns a Registry with a Prober for every known type.
func DefaultRegistry() Registry {
	return Registry{
		config.TypeHTTP:   newHTTPProber(),
		config.TypeTCP:    newTCPProber(),
		config.TypePing:   newPingProber(),
		config.TypeDocker: newDockerProber(),
	}
}

// Lookup returns the Prober for t.
func (r Registry) Lookup(t config.ServiceType) (Prober, bool) {
	p, ok := r[t]
	return p, ok && p != nil
}

// Checker runs one probe for one service and turns the outcome into a Status.
type Checker struct {
	registry Registry
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Checker. Pass nil logger to use the default logger.
func New(registry Registry, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{registry: registry, logger: logger, now: time.Now}
}

// Supports reports whether svc has a registered Prober.
func (c *Checker) Supports(svc config.Service) bool {
	_, ok := c.registry.Lookup(svc.Type)
	return ok
}

// Check probes svc within its timeout. It returns false, and no Status, when
// the service type is unsupported. Probe errors never escape: they become a
// DOWN status.
func (c *Checker) Check(ctx context.Context, svc config.Service) (Status, bool) {
	p, ok := c.registry.Lookup(svc.Type)
	if !ok {
		c.logger.Warn("unsupported service type", "service", svc.Name, "type", svc.Type)
		return Status{}, false
	}

	c.logger.Info("pinging service", "service", svc.Name, "type", svc.Type, "host", svc.Host)

	timeout := svc.Timeout.Duration
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := c.now()
	err := p.Probe(probeCtx, svc)
	latency := time.Since(start)

	st := Status{
		Service:    svc,
		Up:         err == nil,
		Latency:    latency,
		ObservedAt: c.now(),
	}
	if err != nil {
		st.Error = err.Error()
		c.logger.Info("service is DOWN", "service", svc.Name, "latency", latency, "error", err)
	} else {
		c.logger.Info("service is UP", "service", svc.Name, "latency", latency)
	}
	return st, true
}
