// Package notify publishes job status updates onto a NATS bus so external
// consumers (alerting, dashboards on other hosts) can follow the tracker
// without polling its HTTP API.
package notify

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/halcyonlabs/streamwatch/errors"
	"github.com/halcyonlabs/streamwatch/jobs"
)

// SubjectPrefix is the NATS subject prefix; job updates publish to
// "<prefix>.jobs.<name>".
const SubjectPrefix = "streamwatch"

// Publisher forwards job updates to NATS. It satisfies jobs.Notifier.
type Publisher struct {
	nc  *nats.Conn
	log *zap.SugaredLogger
}

// Connect dials the bus. An empty URL disables publishing and returns
// (nil, nil); callers treat a nil Publisher as "no bus configured".
func Connect(url string, log *zap.SugaredLogger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to NATS at %s", url)
	}
	log.Infow("Connected to NATS", "url", url)
	return &Publisher{nc: nc, log: log}, nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	_ = p.nc.Drain()
}

// JobUpdated implements jobs.Notifier. Publish failures are logged and
// swallowed; the bus is never allowed to stall the orchestrator.
func (p *Publisher) JobUpdated(s jobs.Status) {
	if p == nil || p.nc == nil {
		return
	}
	b, err := json.Marshal(s)
	if err != nil {
		p.log.Warnw("Failed to encode job update", "job", s.Name, "error", err)
		return
	}
	if err := p.nc.Publish(SubjectPrefix+".jobs."+s.Name, b); err != nil {
		p.log.Debugw("Failed to publish job update", "job", s.Name, "error", err)
	}
}
