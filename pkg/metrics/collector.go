package metrics

import (
	"context"
	"time"

	"github.com/pydio/gosync/pkg/events"
)

// LogSampler reports the current change-log backlog for one job, sampled
// periodically into the ChangeLogLength gauge.
type LogSampler func(ctx context.Context) (int64, error)

// Collector turns broker events into counters and periodically samples
// per-job gauges.
type Collector struct {
	broker   *events.Broker
	samplers map[string]LogSampler
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(broker *events.Broker) *Collector {
	return &Collector{
		broker:   broker,
		samplers: make(map[string]LogSampler),
		stopCh:   make(chan struct{}),
	}
}

// AddSampler registers a job's change-log sampler. Must be called before
// Start.
func (c *Collector) AddSampler(job string, sampler LogSampler) {
	c.samplers[job] = sampler
}

// Start begins collecting metrics
func (c *Collector) Start() {
	sub := c.broker.Subscribe()
	ticker := time.NewTicker(15 * time.Second)

	go func() {
		// Sample immediately on start
		c.sample()

		for {
			select {
			case ev, ok := <-sub:
				if !ok {
					ticker.Stop()
					return
				}
				c.observe(ev)
			case <-ticker.C:
				c.sample()
			case <-c.stopCh:
				ticker.Stop()
				c.broker.Unsubscribe(sub)
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// observe counts the outcomes no other component records. Completed and
// failed cycles and conflict totals are incremented by the merger itself,
// where the precise counts are known; a skipped cycle never enters the
// merger's metered path, so it is counted here from its event.
func (c *Collector) observe(ev *events.Event) {
	switch ev.Type {
	case events.EventSyncSkipped:
		SyncCyclesTotal.WithLabelValues(ev.Job, "skipped").Inc()
	}
}

func (c *Collector) sample() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for job, sampler := range c.samplers {
		n, err := sampler(ctx)
		if err != nil {
			continue
		}
		ChangeLogLength.WithLabelValues(job).Set(float64(n))
	}
}
