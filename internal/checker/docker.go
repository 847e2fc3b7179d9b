package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/hazz-dev/pingbot/internal/config"
)

const dockerSockPath = "/var/run/docker.sock"

// ContainerState holds the minimal Docker container state we care about.
type ContainerState struct {
	Running bool
}

// DockerClient abstracts Docker Engine API access for testability.
type DockerClient interface {
	InspectContainer(ctx context.Context, name string) (*ContainerState, error)
}

// dockerProber treats the service host as a container name.
type dockerProber struct {
	client DockerClient
}

func newDockerProber() *dockerProber {
	return &dockerProber{client: newUnixDockerClient(dockerSockPath)}
}

// NewDockerProber creates a docker prober with a custom client (for testing).
func NewDockerProber(client DockerClient) Prober {
	return &dockerProber{client: client}
}

func (p *dockerProber) Probe(ctx context.Context, svc config.Service) error {
	state, err := p.client.InspectContainer(ctx, svc.Host)
	if err != nil {
		return err
	}
	if !state.Running {
		return fmt.Errorf("container %q is not running", svc.Host)
	}
	return nil
}

// unixDockerClient queries the Docker Engine API over the Unix socket.
type unixDockerClient struct {
	client *http.Client
}

func newUnixDockerClient(sock string) *unixDockerClient {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", sock)
		},
	}
	return &unixDockerClient{client: &http.Client{Transport: transport}}
}

func (d *unixDockerClient) InspectContainer(ctx context.Context, name string) (*ContainerState, error) {
	u := fmt.Sprintf("http://localhost/containers/%s/json", url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying docker socket: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("container %q not found", name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("docker API returned status %d", resp.StatusCode)
	}

	var body struct {
		State ContainerState `json:"State"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding docker response: %w", err)
	}
	return &body.State, nil
}
