package dispatch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazz-dev/pingbot/internal/checker"
	"github.com/hazz-dev/pingbot/internal/config"
	"github.com/hazz-dev/pingbot/internal/dispatch"
)

// fakeChecker answers from a per-service table and counts calls.
type fakeChecker struct {
	mu       sync.Mutex
	calls    map[string]int
	down     map[string]bool
	panics   map[string]bool
	delay    time.Duration
	inflight int32
	maxSeen  int32
}

func (f *fakeChecker) Check(ctx context.Context, svc config.Service) (checker.Status, bool) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[svc.Name]++
	f.mu.Unlock()

	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if f.panics[svc.Name] {
		panic("boom: " + svc.Name)
	}
	if svc.Type != config.TypeHTTP {
		return checker.Status{}, false
	}
	return checker.Status{Service: svc, Up: !f.down[svc.Name], ObservedAt: time.Now()}, true
}

func (f *fakeChecker) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

type fakeRecorder struct {
	mu                          sync.Mutex
	statuses, unsupported, pnic int
}

func (r *fakeRecorder) ObserveStatus(checker.Status) { r.mu.Lock(); r.statuses++; r.mu.Unlock() }
func (r *fakeRecorder) ObserveUnsupported()          { r.mu.Lock(); r.unsupported++; r.mu.Unlock() }
func (r *fakeRecorder) ObservePanic()                { r.mu.Lock(); r.pnic++; r.mu.Unlock() }

func svc(name string, typ config.ServiceType, enabled bool) config.Service {
	return config.Service{Name: name, Type: typ, Host: "http://" + name + ".example", Enabled: enabled}
}

// drain collects everything from ch until it is closed.
func drain(ch <-chan checker.Status) <-chan []checker.Status {
	done := make(chan []checker.Status, 1)
	go func() {
		var got []checker.Status
		for st := range ch {
			got = append(got, st)
		}
		done <- got
	}()
	return done
}

func TestRun_OneStatusPerEnabledSupportedService(t *testing.T) {
	fc := &fakeChecker{down: map[string]bool{"b": true}}
	rec := &fakeRecorder{}
	d := dispatch.New(fc, 0, rec, nil)

	services := []config.Service{
		svc("a", config.TypeHTTP, true),
		svc("b", config.TypeHTTP, true),
		svc("c", config.TypeHTTP, false),
		svc("d", config.ServiceType("ftp"), true),
	}

	out := make(chan checker.Status, 32)
	results := drain(out)
	sum := d.Run(context.Background(), services, out)
	got := <-results

	require.Len(t, got, 2)
	byName := map[string]bool{}
	for _, st := range got {
		byName[st.Service.Name] = st.Up
	}
	assert.Equal(t, map[string]bool{"a": true, "b": false}, byName)

	assert.Equal(t, dispatch.Summary{Disabled: 1, Spawned: 3, Sent: 2, Unsupported: 1}, sum)
	assert.Zero(t, fc.callCount("c"), "disabled services must never be checked")
	assert.Equal(t, 2, rec.statuses)
	assert.Equal(t, 1, rec.unsupported)
}

func TestRun_EmptyInputClosesChannel(t *testing.T) {
	d := dispatch.New(&fakeChecker{}, 0, nil, nil)
	out := make(chan checker.Status)

	sum := d.Run(context.Background(), nil, out)

	_, open := <-out
	assert.False(t, open, "channel must be closed")
	assert.Equal(t, dispatch.Summary{}, sum)
}

func TestRun_AllDisabled(t *testing.T) {
	fc := &fakeChecker{}
	d := dispatch.New(fc, 0, nil, nil)
	out := make(chan checker.Status, 1)

	sum := d.Run(context.Background(), []config.Service{svc("C", config.TypeHTTP, false)}, out)

	_, open := <-out
	assert.False(t, open)
	assert.Equal(t, 0, sum.Spawned)
	assert.Equal(t, 1, sum.Disabled)
	assert.Zero(t, fc.callCount("C"))
}

func TestRun_PanicIsIsolated(t *testing.T) {
	fc := &fakeChecker{panics: map[string]bool{"bad": true}}
	rec := &fakeRecorder{}
	d := dispatch.New(fc, 0, rec, nil)

	services := []config.Service{
		svc("good1", config.TypeHTTP, true),
		svc("bad", config.TypeHTTP, true),
		svc("good2", config.TypeHTTP, true),
	}
	out := make(chan checker.Status, 32)
	results := drain(out)

	var sum dispatch.Summary
	require.NotPanics(t, func() {
		sum = d.Run(context.Background(), services, out)
	})
	got := <-results

	require.Len(t, got, 2, "a panicking checker yields no status, siblings still report")
	for _, st := range got {
		assert.NotEqual(t, "bad", st.Service.Name)
	}
	assert.Equal(t, 1, sum.Panicked)
	assert.Equal(t, 2, sum.Sent)
	assert.Equal(t, 1, rec.pnic)
}

func TestRun_BackpressureDropsNothing(t *testing.T) {
	fc := &fakeChecker{}
	d := dispatch.New(fc, 0, nil, nil)

	var services []config.Service
	for i := 0; i < 50; i++ {
		services = append(services, svc(string(rune('A'+i%26))+string(rune('a'+i/26)), config.TypeHTTP, true))
	}

	// Capacity 1 with a slow consumer forces senders to block.
	out := make(chan checker.Status, 1)
	done := make(chan int, 1)
	go func() {
		n := 0
		for range out {
			time.Sleep(time.Millisecond)
			n++
		}
		done <- n
	}()

	sum := d.Run(context.Background(), services, out)
	assert.Equal(t, 50, <-done)
	assert.Equal(t, 50, sum.Sent)
}

func TestRun_MaxConcurrency(t *testing.T) {
	fc := &fakeChecker{delay: 20 * time.Millisecond}
	d := dispatch.New(fc, 2, nil, nil)

	var services []config.Service
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		services = append(services, svc(name, config.TypeHTTP, true))
	}
	out := make(chan checker.Status, len(services))
	sum := d.Run(context.Background(), services, out)

	assert.Equal(t, 6, sum.Sent)
	assert.LessOrEqual(t, atomic.LoadInt32(&fc.maxSeen), int32(2))
}

func TestRun_UnboundedRunsConcurrently(t *testing.T) {
	fc := &fakeChecker{delay: 100 * time.Millisecond}
	d := dispatch.New(fc, 0, nil, nil)

	var services []config.Service
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		services = append(services, svc(name, config.TypeHTTP, true))
	}
	out := make(chan checker.Status, len(services))

	start := time.Now()
	d.Run(context.Background(), services, out)

	assert.Less(t, time.Since(start), 400*time.Millisecond, "checkers should not run one after another")
	assert.Greater(t, atomic.LoadInt32(&fc.maxSeen), int32(1))
}

type panickingRecorder struct{}

func (panickingRecorder) ObserveStatus(checker.Status) { panic("metrics broken") }
func (panickingRecorder) ObserveUnsupported()          { panic("metrics broken") }
func (panickingRecorder) ObservePanic()                { panic("metrics broken") }

func TestRun_RecorderPanicDoesNotCrashOrDrop(t *testing.T) {
	fc := &fakeChecker{panics: map[string]bool{"bad": true}}
	d := dispatch.New(fc, 0, panickingRecorder{}, nil)

	services := []config.Service{
		svc("a", config.TypeHTTP, true),
		svc("b", config.TypeHTTP, true),
		svc("ftp", config.ServiceType("ftp"), true),
		svc("bad", config.TypeHTTP, true),
	}
	out := make(chan checker.Status, 32)
	results := drain(out)

	var sum dispatch.Summary
	require.NotPanics(t, func() {
		sum = d.Run(context.Background(), services, out)
	})
	got := <-results

	assert.Len(t, got, 2, "statuses are still sent when the recorder fails")
	assert.Equal(t, dispatch.Summary{Spawned: 4, Sent: 2, Unsupported: 1, Panicked: 1}, sum)
}
