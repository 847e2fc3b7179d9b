package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazz-dev/pingbot/internal/alert"
	"github.com/hazz-dev/pingbot/internal/checker"
	"github.com/hazz-dev/pingbot/internal/config"
	"github.com/hazz-dev/pingbot/internal/pipeline"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type collectingSink struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (s *collectingSink) Deliver(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, text)
	return s.err
}

func (s *collectingSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

// hostChecker reports a service up unless its host is listed in down.
func hostChecker(down ...string) *checker.Checker {
	bad := make(map[string]bool, len(down))
	for _, h := range down {
		bad[h] = true
	}
	reg := checker.Registry{
		config.TypeHTTP: checker.ProberFunc(func(_ context.Context, svc config.Service) error {
			if bad[svc.Host] {
				return errors.New("connection refused")
			}
			return nil
		}),
	}
	return checker.New(reg, quiet)
}

func service(name, host string, typ config.ServiceType, enabled bool) config.Service {
	return config.Service{
		Name:    name,
		Type:    typ,
		Host:    host,
		Enabled: enabled,
		Timeout: config.Duration{Duration: time.Second},
	}
}

func TestRun_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		services []config.Service
		down     []string
		want     []string
	}{
		{
			name: "all up",
			services: []config.Service{
				service("A", "http://ok", config.TypeHTTP, true),
				service("B", "http://ok", config.TypeHTTP, true),
			},
			want: []string{"A is UP", "B is UP"},
		},
		{
			name: "one unreachable",
			services: []config.Service{
				service("A", "http://ok", config.TypeHTTP, true),
				service("B", "http://bad", config.TypeHTTP, true),
			},
			down: []string{"http://bad"},
			want: []string{"A is UP", "B is DOWN"},
		},
		{
			name:     "disabled",
			services: []config.Service{service("C", "http://ok", config.TypeHTTP, false)},
		},
		{
			name: "unsupported type alongside a supported one",
			services: []config.Service{
				service("D", "ftp://x", config.ServiceType("Ftp"), true),
				service("E", "http://ok", config.TypeHTTP, true),
			},
			want: []string{"E is UP"},
		},
		{
			name: "empty list",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sink := &collectingSink{}
			res, err := pipeline.Run(context.Background(), pipeline.Options{
				Services: tc.services,
				Checker:  hostChecker(tc.down...),
				Sink:     sink,
				Logger:   quiet,
			})
			require.NoError(t, err)

			assert.ElementsMatch(t, tc.want, sink.messages())
			assert.Equal(t, len(tc.want), res.Dispatch.Sent)
			assert.Equal(t, len(tc.want), res.Notify.Received)
			assert.Equal(t, len(tc.want), res.Notify.Delivered)
		})
	}
}

func TestRun_SinkFailureDoesNotStopPass(t *testing.T) {
	sink := &collectingSink{err: errors.New("telegram unavailable")}
	services := []config.Service{
		service("A", "http://ok", config.TypeHTTP, true),
		service("B", "http://ok", config.TypeHTTP, true),
		service("C", "http://ok", config.TypeHTTP, true),
	}

	res, err := pipeline.Run(context.Background(), pipeline.Options{
		Services: services,
		Checker:  hostChecker(),
		Sink:     sink,
		Logger:   quiet,
	})
	require.NoError(t, err)

	assert.Len(t, sink.messages(), 3, "every status is still attempted")
	assert.Equal(t, 3, res.Notify.Failed)
	assert.Zero(t, res.Notify.Delivered)
}

func TestRun_SmallChannelDeliversEverything(t *testing.T) {
	var services []config.Service
	for i := 0; i < 40; i++ {
		services = append(services, service(fmt.Sprintf("svc-%02d", i), "http://ok", config.TypeHTTP, true))
	}
	slow := alert.SinkFunc(func(context.Context, string) error {
		time.Sleep(time.Millisecond)
		return nil
	})

	res, err := pipeline.Run(context.Background(), pipeline.Options{
		Services:        services,
		Checker:         hostChecker(),
		Sink:            slow,
		ChannelCapacity: 1,
		Logger:          quiet,
	})
	require.NoError(t, err)
	assert.Equal(t, 40, res.Dispatch.Sent)
	assert.Equal(t, 40, res.Notify.Delivered)
}

func TestRun_DeadlineReportsHungProbesDown(t *testing.T) {
	reg := checker.Registry{
		config.TypeHTTP: checker.ProberFunc(func(ctx context.Context, svc config.Service) error {
			if svc.Host == "http://hang" {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		}),
	}
	hung := service("slow", "http://hang", config.TypeHTTP, true)
	hung.Timeout = config.Duration{Duration: time.Minute}

	sink := &collectingSink{}
	start := time.Now()
	res, err := pipeline.Run(context.Background(), pipeline.Options{
		Services: []config.Service{hung, service("fast", "http://ok", config.TypeHTTP, true)},
		Checker:  checker.New(reg, quiet),
		Sink:     sink,
		Deadline: 50 * time.Millisecond,
		Logger:   quiet,
	})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ElementsMatch(t, []string{"slow is DOWN", "fast is UP"}, sink.messages())
	assert.Equal(t, 2, res.Notify.Delivered)
}

func TestRun_IncludeHost(t *testing.T) {
	sink := &collectingSink{}
	_, err := pipeline.Run(context.Background(), pipeline.Options{
		Services: []config.Service{service("api", "http://ok", config.TypeHTTP, true)},
		Checker:  hostChecker(),
		Sink:     sink,
		Notify:   alert.Options{IncludeHost: true},
		Logger:   quiet,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"api (http://ok) is UP"}, sink.messages())
}

func TestRun_RequiresCheckerAndSink(t *testing.T) {
	_, err := pipeline.Run(context.Background(), pipeline.Options{Sink: &collectingSink{}})
	assert.Error(t, err)

	_, err = pipeline.Run(context.Background(), pipeline.Options{Checker: hostChecker()})
	assert.Error(t, err)
}
