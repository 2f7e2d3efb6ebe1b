package merger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pydio/gosync/pkg/cursor"
	"github.com/pydio/gosync/pkg/endpoint"
	"github.com/pydio/gosync/pkg/events"
	"github.com/pydio/gosync/pkg/log"
	"github.com/pydio/gosync/pkg/metrics"
	"github.com/pydio/gosync/pkg/types"
)

// Merger binds a local and a remote endpoint and reconciles their change
// streams. At most one sync runs per merger at any time; a second
// invocation while one is in flight is a logged no-op.
type Merger struct {
	job      string
	local    *endpoint.Local
	remote   endpoint.Synchronizable
	cursors  *cursor.Store
	strategy Strategy

	direction types.Direction
	broker    *events.Broker
	logger    zerolog.Logger

	mu    sync.Mutex
	phase atomic.Value // types.SyncPhase
}

// Option configures a Merger.
type Option func(*Merger)

// WithStrategy replaces the default two-way strategy.
func WithStrategy(s Strategy) Option {
	return func(m *Merger) { m.strategy = s }
}

// WithBroker publishes sync lifecycle events to a broker.
func WithBroker(b *events.Broker) Option {
	return func(m *Merger) { m.broker = b }
}

// New builds a merger for one job's sync pair.
func New(job string, local *endpoint.Local, remote endpoint.Synchronizable,
	cursors *cursor.Store, direction types.Direction, solve types.Solve, opts ...Option) *Merger {

	m := &Merger{
		job:       job,
		local:     local,
		remote:    remote,
		cursors:   cursors,
		direction: direction,
		logger:    log.WithComponent("merger").With().Str("job", job).Logger(),
	}
	m.strategy = NewTwoWay(local, remote, solve)
	m.phase.Store(types.PhaseIdle)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Phase reports the coordinator's current state machine position.
func (m *Merger) Phase() types.SyncPhase {
	return m.phase.Load().(types.SyncPhase)
}

func (m *Merger) setPhase(p types.SyncPhase) {
	m.phase.Store(p)
}

// Merging reports whether a sync is currently in flight.
func (m *Merger) Merging() bool {
	return m.Phase() != types.PhaseIdle
}

// Sync runs one full reconciliation cycle. A cycle already in progress
// makes this call a no-op, not an error. Any terminal failure returns the
// merger to idle with both cursors unchanged.
func (m *Merger) Sync(ctx context.Context) (*types.SyncReport, error) {
	if !m.mu.TryLock() {
		m.logger.Warn().Msg("Previous merge not terminated, skipping")
		m.publish(events.EventSyncSkipped, types.ErrConcurrentMerge.Error())
		return nil, nil
	}
	defer m.mu.Unlock()
	m.setPhase(types.PhaseAcquiring)
	defer m.setPhase(types.PhaseIdle)

	report := &types.SyncReport{StartedAt: time.Now()}
	timer := metrics.NewTimer()
	m.logger.Info().Str("direction", string(m.direction)).Msg("Merging local and remote workspaces")
	m.publish(events.EventSyncStarted, "")

	err := m.run(ctx, report)
	report.Duration = timer.Duration()
	timer.ObserveDurationVec(metrics.SyncDuration, m.job)

	if err != nil {
		metrics.SyncCyclesTotal.WithLabelValues(m.job, "failure").Inc()
		m.publish(events.EventSyncFailed, err.Error())
		m.logger.Error().Err(err).Msg("Sync failed")
		return nil, err
	}

	metrics.SyncCyclesTotal.WithLabelValues(m.job, "success").Inc()
	m.publish(events.EventSyncCompleted, "")
	m.logger.Info().
		Int("local_changes", report.LocalChanges).
		Int("remote_changes", report.RemoteChanges).
		Int("applied", report.Applied).
		Int("conflicts", report.Conflicts).
		Dur("duration", report.Duration).
		Msg("Sync completed")
	return report, nil
}

func (m *Merger) run(ctx context.Context, report *types.SyncReport) error {
	// readiness, both sides in parallel
	m.setPhase(types.PhaseReadyChecking)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.local.AssertReady(gctx) })
	g.Go(func() error { return m.remote.AssertReady(gctx) })
	if err := g.Wait(); err != nil {
		return err
	}

	// fetch both change streams in parallel from the persisted cursors
	m.setPhase(types.PhaseFetching)
	localCursor, err := m.cursors.Get(m.local.Name())
	if err != nil {
		return err
	}
	remoteCursor, err := m.cursors.Get(m.remote.Name())
	if err != nil {
		return err
	}

	var localChanges, remoteChanges []types.Change
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		localChanges, err = m.local.GetChanges(gctx, localCursor)
		return err
	})
	g.Go(func() error {
		var err error
		remoteChanges, err = m.remote.GetChanges(gctx, remoteCursor)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	report.LocalChanges = len(localChanges)
	report.RemoteChanges = len(remoteChanges)
	metrics.ChangesFetched.WithLabelValues(m.job, "local").Add(float64(len(localChanges)))
	metrics.ChangesFetched.WithLabelValues(m.job, "remote").Add(float64(len(remoteChanges)))

	m.setPhase(types.PhaseMerging)
	plan, err := m.strategy.Plan(localChanges, remoteChanges, m.direction)
	if err != nil {
		return err
	}
	report.Conflicts = plan.Conflicts
	if plan.Conflicts > 0 {
		metrics.ConflictsTotal.WithLabelValues(m.job).Add(float64(plan.Conflicts))
		m.publish(events.EventSyncConflict, "")
	}

	m.setPhase(types.PhaseApplying)
	// local operations first: a conflict copy reads the remote version of
	// a path before the remote side is overwritten with the local one
	report.Applied = m.apply(ctx, m.local, plan.ToLocal, "local")
	report.Applied += m.apply(ctx, m.remote, plan.ToRemote, "remote")
	if err := ctx.Err(); err != nil {
		return err
	}

	// advance the cursors to the highest sequence observed per side.
	// Operations applied locally were recorded in the index as part of
	// Apply, so the local high-water mark moves past them too: those rows
	// are echoes of remote state, not new local work.
	localSeq := highestSeq(localChanges, localCursor)
	if len(plan.ToLocal) > 0 {
		if max, err := m.local.MaxSeq(ctx); err == nil && max > localSeq {
			localSeq = max
		}
	}
	remoteSeq := highestSeq(remoteChanges, remoteCursor)

	if err := m.cursors.Set(m.local.Name(), localSeq); err != nil {
		return err
	}
	if err := m.cursors.Set(m.remote.Name(), remoteSeq); err != nil {
		return err
	}
	report.LocalSeq = localSeq
	report.RemoteSeq = remoteSeq

	// both endpoints have acknowledged consumption; drop the log prefix
	return m.local.Ack(ctx, localSeq)
}

// apply runs one side's operations in order. Per-operation failures are
// logged, counted and skipped: a path that cannot be reconciled now will be
// retried when it changes again, and must not abort the rest of the plan.
func (m *Merger) apply(ctx context.Context, target endpoint.Synchronizable, ops []*endpoint.Operation, side string) int {
	applied := 0
	for _, op := range ops {
		if ctx.Err() != nil {
			return applied
		}
		if err := target.Apply(ctx, op); err != nil {
			metrics.ApplyFailuresTotal.WithLabelValues(m.job, side).Inc()
			m.logger.Warn().Err(err).
				Str("side", side).
				Str("type", string(op.Type)).
				Str("path", op.Path()).
				Msg("Skipping operation that failed to apply")
			continue
		}
		applied++
		metrics.ChangesApplied.WithLabelValues(m.job, side).Inc()
	}
	return applied
}

func (m *Merger) publish(t events.EventType, msg string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{Type: t, Job: m.job, Message: msg})
}

func highestSeq(changes []types.Change, cursor int64) int64 {
	max := cursor
	for _, c := range changes {
		if c.Seq > max {
			max = c.Seq
		}
	}
	return max
}
