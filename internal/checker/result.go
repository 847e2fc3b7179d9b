package checker

import (
	"time"

	"github.com/hazz-dev/pingbot/internal/config"
)

// Status is the outcome of one probe, paired with the service it was taken
// for. It is built once, right before it is handed downstream, and never
// modified afterwards.
type Status struct {
	Service    config.Service
	Up         bool
	Error      string
	Latency    time.Duration
	ObservedAt time.Time
}

// Word returns "UP" or "DOWN".
func (s Status) Word() string {
	if s.Up {
		return "UP"
	}
	return "DOWN"
}
