package checker

import (
	"context"
	"fmt"
	"net"

	"github.com/hazz-dev/pingbot/internal/config"
)

type tcpProber struct{}

func newTCPProber() *tcpProber {
	return &tcpProber{}
}

func (p *tcpProber) Probe(ctx context.Context, svc config.Service) error {
	dialer := &net.Dialer{Timeout: svc.Timeout.Duration}
	conn, err := dialer.DialContext(ctx, "tcp", svc.Host)
	if err != nil {
		return fmt.Errorf("dial tcp %s: %w", svc.Host, err)
	}
	conn.Close()
	return nil
}
