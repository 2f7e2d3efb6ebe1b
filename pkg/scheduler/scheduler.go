package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pydio/gosync/pkg/config"
	"github.com/pydio/gosync/pkg/events"
	"github.com/pydio/gosync/pkg/log"
	"github.com/pydio/gosync/pkg/metrics"
	"github.com/pydio/gosync/pkg/types"
)

// Scheduler owns the lifecycle of every configured job plus the shared
// services they publish into: the event broker and the metrics collector.
type Scheduler struct {
	cfg       *config.Config
	broker    *events.Broker
	collector *metrics.Collector
	logger    zerolog.Logger

	mu     sync.Mutex
	jobs   map[string]*Job
	failed map[string]error
	cancel context.CancelFunc
}

// New builds a scheduler from a validated configuration.
func New(cfg *config.Config) *Scheduler {
	broker := events.NewBroker()
	return &Scheduler{
		cfg:       cfg,
		broker:    broker,
		collector: metrics.NewCollector(broker),
		logger:    log.WithComponent("scheduler"),
		jobs:      make(map[string]*Job),
		failed:    make(map[string]error),
	}
}

// Broker exposes the event stream, mainly for the CLI's logging subscriber.
func (s *Scheduler) Broker() *events.Broker {
	return s.broker
}

// Start assembles and starts every active job. A job that fails to
// assemble is marked Failed and reported, but does not prevent the others
// from running; Start only errors when nothing could be started.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.broker.Start()
	s.startLogSubscriber()

	started := 0
	for name, jobCfg := range s.cfg.Jobs {
		if !jobCfg.IsActive() {
			s.logger.Info().Str("job", name).Msg("Job is inactive, not starting")
			metrics.RegisterComponent("job:"+name, true, "inactive")
			continue
		}

		s.logger.Info().Str("job", name).Msg("Configuring job")
		job, err := NewJob(name, jobCfg, s.cfg.DataDir, s.broker)
		if err != nil {
			s.markFailed(name, err)
			continue
		}
		if err := job.Start(ctx); err != nil {
			job.Stop()
			s.markFailed(name, err)
			continue
		}

		s.mu.Lock()
		s.jobs[name] = job
		s.mu.Unlock()
		metrics.RegisterComponent("job:"+name, true, "")
		s.collector.AddSampler(name, job.SampleChangeLog)
		started++
	}

	s.updateJobGauge()
	s.collector.Start()

	if started == 0 && len(s.failed) > 0 {
		return fmt.Errorf("no job could be started")
	}
	return nil
}

func (s *Scheduler) markFailed(name string, err error) {
	s.logger.Error().Err(err).Str("job", name).Msg("Job failed")
	s.mu.Lock()
	s.failed[name] = err
	s.mu.Unlock()
	metrics.RegisterComponent("job:"+name, false, err.Error())
	s.broker.Publish(&events.Event{Type: events.EventJobFailed, Job: name, Message: err.Error()})
}

// Stop stops every job and the shared services, joining all of them.
func (s *Scheduler) Stop() {
	s.logger.Info().Msg("Stopping scheduler")

	s.mu.Lock()
	jobs := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	for _, j := range jobs {
		j.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.collector.Stop()
	s.broker.Stop()
	s.updateJobGauge()
}

// TriggerNow runs one manual sync for a job.
func (s *Scheduler) TriggerNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown or stopped job %q", name)
	}
	return job.TriggerNow(ctx)
}

// Statuses reports every configured job's lifecycle state.
func (s *Scheduler) Statuses() map[string]types.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]types.JobStatus, len(s.cfg.Jobs))
	for name := range s.cfg.Jobs {
		switch {
		case s.failed[name] != nil:
			out[name] = types.JobStatusFailed
		default:
			if job, ok := s.jobs[name]; ok {
				out[name] = job.Status()
			} else {
				out[name] = types.JobStatusStopped
			}
		}
	}
	return out
}

func (s *Scheduler) updateJobGauge() {
	counts := make(map[types.JobStatus]int)
	for _, status := range s.Statuses() {
		counts[status]++
	}
	for _, status := range []types.JobStatus{
		types.JobStatusIdle, types.JobStatusRunning, types.JobStatusStopped, types.JobStatusFailed,
	} {
		metrics.JobsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

// startLogSubscriber mirrors broker events into the structured log, so a
// plain log tail shows the sync lifecycle without scraping metrics.
func (s *Scheduler) startLogSubscriber() {
	sub := s.broker.Subscribe()
	go func() {
		for ev := range sub {
			s.logger.Debug().
				Str("event", string(ev.Type)).
				Str("job", ev.Job).
				Str("message", ev.Message).
				Msg("Event")
		}
	}()
}
