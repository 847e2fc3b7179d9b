package checker

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"runtime"
	"strconv"

	"github.com/hazz-dev/pingbot/internal/config"
)

// CommandExecutor abstracts os/exec for testability.
type CommandExecutor interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// pingProber sends a single ICMP echo through the system ping binary.
type pingProber struct {
	executor CommandExecutor
}

func newPingProber() *pingProber {
	return &pingProber{executor: &osExecutor{}}
}

// NewPingProber creates a ping prober with a custom executor (for testing).
func NewPingProber(exec CommandExecutor) Prober {
	return &pingProber{executor: exec}
}

var rttRegex = regexp.MustCompile(`time[=<](\d+\.?\d*)\s*ms`)

func (p *pingProber) Probe(ctx context.Context, svc config.Service) error {
	waitSec := int(math.Ceil(svc.Timeout.Duration.Seconds()))
	if waitSec < 1 {
		waitSec = 1
	}

	waitFlag := "-W"
	if runtime.GOOS == "darwin" {
		waitFlag = "-t"
	}

	stdout, _, err := p.executor.Run(ctx, "ping", "-c", "1", waitFlag, strconv.Itoa(waitSec), svc.Host)
	if err != nil {
		return fmt.Errorf("ping %s: %w", svc.Host, err)
	}
	if !rttRegex.Match(stdout) {
		return fmt.Errorf("ping %s: no reply in output", svc.Host)
	}
	return nil
}
