package checker

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hazz-dev/pingbot/internal/config"
)

// httpProber issues a GET against the service host. Any response, whatever
// its status code, counts as reachable.
type httpProber struct {
	client *http.Client
}

func newHTTPProber() *httpProber {
	return &httpProber{client: &http.Client{}}
}

// NewHTTPProber creates an HTTP prober with a custom client (for testing).
func NewHTTPProber(client *http.Client) Prober {
	if client == nil {
		client = &http.Client{}
	}
	return &httpProber{client: client}
}

func (p *httpProber) Probe(ctx context.Context, svc config.Service) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.Host, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range svc.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return nil
}
