package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	wlog "github.com/vovakirdan/wirechat/internal/log"
	"github.com/vovakirdan/wirechat/internal/metrics"
	"github.com/vovakirdan/wirechat/internal/realtime"
)

const (
	defaultAttachTimeout = 10 * time.Second
	defaultDetachTimeout = 10 * time.Second
)

// ErrContinuityLost is the discontinuity reason used when the channel reported none.
var ErrContinuityLost = errors.New("channel continuity lost")

// Contributor is a feature taking part in the room lifecycle. Several contributors may
// share one channel.
type Contributor struct {
	Feature         RoomFeature
	Channel         realtime.Channel
	Discontinuities *DiscontinuityEmitter
}

// LifecycleOptions tunes a LifecycleManager. Zero values select defaults.
type LifecycleOptions struct {
	AttachTimeout time.Duration
	DetachTimeout time.Duration
	Logger        *zerolog.Logger
	Metrics       *metrics.Metrics
}

// LifecycleManager owns the status of a room. It attaches and detaches the room's channels
// as a unit, with at most one attach and one detach in flight, and answers whether
// presence-class operations may run right now.
type LifecycleManager struct {
	roomID        string
	contributors  []*Contributor
	channels      []realtime.Channel
	byChannel     map[string][]*Contributor
	attachTimeout time.Duration
	detachTimeout time.Duration
	log           *zerolog.Logger
	metrics       *metrics.Metrics

	mu        sync.Mutex
	status    RoomStatus
	err       error
	attachOp  *operation
	detachOp  *operation
	releaseOp *operation
	// pending holds the first discontinuity per contributor seen while attaching.
	pending map[*Contributor]error
	// suspended holds channels that dropped out while the room was attached.
	suspended map[string]error

	statusSubs broadcaster[StatusChange]
	offs       []func()
	onRelease  []func()
}

// NewLifecycleManager creates a manager in the initialized status and starts observing the
// contributors' channels.
func NewLifecycleManager(roomID string, contributors []*Contributor, opts LifecycleOptions) *LifecycleManager {
	if opts.AttachTimeout <= 0 {
		opts.AttachTimeout = defaultAttachTimeout
	}
	if opts.DetachTimeout <= 0 {
		opts.DetachTimeout = defaultDetachTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = wlog.Nop()
	}
	roomLog := logger.With().Str("room_id", roomID).Logger()

	m := &LifecycleManager{
		roomID:        roomID,
		contributors:  contributors,
		byChannel:     make(map[string][]*Contributor),
		attachTimeout: opts.AttachTimeout,
		detachTimeout: opts.DetachTimeout,
		log:           &roomLog,
		metrics:       opts.Metrics,
		status:        StatusInitialized,
		pending:       make(map[*Contributor]error),
		suspended:     make(map[string]error),
	}

	for _, c := range contributors {
		name := c.Channel.Name()
		if _, seen := m.byChannel[name]; !seen {
			m.channels = append(m.channels, c.Channel)
			ch := c.Channel
			m.offs = append(m.offs, ch.OnStateChange(func(change realtime.StateChange) {
				m.onChannelStateChange(ch, change)
			}))
		}
		m.byChannel[name] = append(m.byChannel[name], c)
	}
	return m
}

// Status returns the current room status without blocking on operations.
func (m *LifecycleManager) Status() RoomStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Error returns the reason for the current status, if any.
func (m *LifecycleManager) Error() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// OnStatusChange subscribes to status transitions.
func (m *LifecycleManager) OnStatusChange() *Subscription[StatusChange] {
	return m.statusSubs.subscribe()
}

// Attach attaches every channel of the room. Callers arriving while an attach is in flight
// share its outcome. Canceling ctx abandons the wait, not the attach.
func (m *LifecycleManager) Attach(ctx context.Context) error {
	for {
		m.mu.Lock()
		switch {
		case m.status == StatusReleasing || m.status == StatusReleased:
			m.mu.Unlock()
			return roomReleasedError()
		case m.attachOp != nil:
			op := m.attachOp
			m.mu.Unlock()
			return op.wait(ctx)
		case m.detachOp != nil:
			op := m.detachOp
			m.mu.Unlock()
			if err := op.wait(ctx); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		case m.status == StatusAttached:
			m.mu.Unlock()
			return nil
		}

		op := newOperation()
		m.attachOp = op
		m.setStatusLocked(StatusAttaching, nil)
		m.mu.Unlock()

		go m.runAttach(op)
		return op.wait(ctx)
	}
}

// Detach detaches every channel of the room, sharing an in-flight detach like Attach does.
// An in-flight attach is allowed to finish first.
func (m *LifecycleManager) Detach(ctx context.Context) error {
	for {
		m.mu.Lock()
		switch {
		case m.status == StatusReleasing || m.status == StatusReleased:
			m.mu.Unlock()
			return roomReleasedError()
		case m.detachOp != nil:
			op := m.detachOp
			m.mu.Unlock()
			return op.wait(ctx)
		case m.attachOp != nil:
			op := m.attachOp
			m.mu.Unlock()
			if err := op.wait(ctx); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		case m.status == StatusDetached:
			m.mu.Unlock()
			return nil
		case m.status == StatusFailed:
			err := roomFailedError(m.err)
			m.mu.Unlock()
			return err
		}

		op := newOperation()
		m.detachOp = op
		m.setStatusLocked(StatusDetaching, nil)
		m.mu.Unlock()

		go m.runDetach(op)
		return op.wait(ctx)
	}
}

// Release detaches the channels and moves the room to the terminal released status. It
// waits for in-flight attach and detach operations. Repeated calls share one release.
func (m *LifecycleManager) Release(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusReleased {
		m.mu.Unlock()
		return nil
	}
	if m.releaseOp != nil {
		op := m.releaseOp
		m.mu.Unlock()
		return op.wait(ctx)
	}

	op := newOperation()
	m.releaseOp = op
	var inflight []*operation
	for _, o := range []*operation{m.attachOp, m.detachOp} {
		if o != nil {
			inflight = append(inflight, o)
		}
	}
	m.setStatusLocked(StatusReleasing, nil)
	m.mu.Unlock()

	go m.runRelease(op, inflight)
	return op.wait(ctx)
}

// afterRelease registers fn to run once the room is released, before Release returns to
// anyone. It must be called before the manager is shared.
func (m *LifecycleManager) afterRelease(fn func()) {
	m.onRelease = append(m.onRelease, fn)
}

// WaitToBeAbleToPerformPresenceOperations reports whether presence-class operations for
// feature may run now. It only waits while an attach is in flight and never attaches.
func (m *LifecycleManager) WaitToBeAbleToPerformPresenceOperations(ctx context.Context, feature RoomFeature) error {
	err := m.presenceGate(ctx, feature)
	m.metrics.Gate(feature.String(), gateOutcome(err))
	return err
}

func (m *LifecycleManager) presenceGate(ctx context.Context, feature RoomFeature) error {
	for {
		m.mu.Lock()
		status := m.status
		op := m.attachOp
		m.mu.Unlock()

		switch status {
		case StatusAttaching:
			if op == nil {
				panic("chat: room is attaching without an attach operation")
			}
			if err := op.wait(ctx); err != nil {
				return err
			}
			// The status may have moved on since the attach resolved; classify it again.
		case StatusAttached:
			return nil
		case StatusDetached:
			return presenceRequiresAttachError(feature)
		case StatusInitialized, StatusDetaching, StatusSuspended, StatusFailed, StatusReleasing, StatusReleased:
			return presenceDisallowedError(feature, status)
		default:
			panic(fmt.Sprintf("chat: unhandled room status %v", status))
		}
	}
}

func gateOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPresenceRequiresAttach):
		return "requires_attach"
	case errors.Is(err, ErrPresenceDisallowed):
		return "disallowed"
	case errors.Is(err, ErrAttachFailed):
		return "attach_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func (m *LifecycleManager) runAttach(op *operation) {
	ctx, cancel := context.WithTimeout(context.Background(), m.attachTimeout)
	defer cancel()

	attached := make([]bool, len(m.channels))
	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range m.channels {
		g.Go(func() error {
			if err := ch.Attach(gctx); err != nil {
				return fmt.Errorf("attach channel %s: %w", ch.Name(), err)
			}
			attached[i] = true
			return nil
		})
	}
	err := g.Wait()

	if err != nil {
		m.rollback(attached)
	}

	var result error
	if err != nil {
		result = attachFailedError(err)
	}

	m.mu.Lock()
	m.attachOp = nil
	if m.status == StatusAttaching {
		if result != nil {
			m.log.Warn().Err(err).Msg("room attach failed")
			m.setStatusLocked(StatusFailed, result)
		} else {
			m.setStatusLocked(StatusAttached, nil)
			for name, reason := range m.suspended {
				for _, c := range m.byChannel[name] {
					if _, ok := m.pending[c]; !ok {
						m.pending[c] = reason
					}
				}
			}
			m.flushPendingLocked()
		}
	}
	m.pending = make(map[*Contributor]error)
	m.suspended = make(map[string]error)
	m.mu.Unlock()

	op.resolve(result)
}

// rollback detaches the channels a failed attach managed to attach.
func (m *LifecycleManager) rollback(attached []bool) {
	ctx, cancel := context.WithTimeout(context.Background(), m.detachTimeout)
	defer cancel()
	for i, ok := range attached {
		if !ok {
			continue
		}
		if err := m.channels[i].Detach(ctx); err != nil {
			m.log.Warn().Err(err).Str("channel", m.channels[i].Name()).Msg("rollback detach failed")
		}
	}
}

func (m *LifecycleManager) runDetach(op *operation) {
	err := m.detachAll()

	var result error
	if err != nil {
		result = detachFailedError(err)
	}

	m.mu.Lock()
	m.detachOp = nil
	if m.status == StatusDetaching {
		if result != nil {
			m.log.Warn().Err(err).Msg("room detach failed")
			m.setStatusLocked(StatusFailed, result)
		} else {
			m.setStatusLocked(StatusDetached, nil)
		}
	}
	m.pending = make(map[*Contributor]error)
	m.suspended = make(map[string]error)
	m.mu.Unlock()

	op.resolve(result)
}

func (m *LifecycleManager) runRelease(op *operation, inflight []*operation) {
	for _, o := range inflight {
		_ = o.wait(context.Background())
	}
	if err := m.detachAll(); err != nil {
		m.log.Warn().Err(err).Msg("detach during release failed")
	}

	m.mu.Lock()
	m.setStatusLocked(StatusReleased, nil)
	offs := m.offs
	m.offs = nil
	m.mu.Unlock()

	for _, off := range offs {
		off()
	}
	for _, c := range m.contributors {
		c.Discontinuities.Close()
	}
	for _, fn := range m.onRelease {
		fn()
	}
	m.statusSubs.close()

	op.resolve(nil)
}

func (m *LifecycleManager) detachAll() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.detachTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range m.channels {
		g.Go(func() error {
			if err := ch.Detach(gctx); err != nil {
				return fmt.Errorf("detach channel %s: %w", ch.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// onChannelStateChange folds a channel event into the room status. Operations in flight own
// the status; while attaching only discontinuities are remembered.
func (m *LifecycleManager) onChannelStateChange(ch realtime.Channel, change realtime.StateChange) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := ch.Name()
	update := change.Current == realtime.StateAttached && change.Previous == realtime.StateAttached && !change.Resumed

	if m.attachOp != nil {
		if update {
			for _, c := range m.byChannel[name] {
				if _, ok := m.pending[c]; !ok {
					m.pending[c] = discontinuityReason(change.Reason)
				}
			}
		}
		return
	}
	if m.detachOp != nil || m.releaseOp != nil {
		return
	}
	if m.status != StatusAttached && m.status != StatusSuspended {
		return
	}

	switch change.Current {
	case realtime.StateAttached:
		if update {
			m.emitDiscontinuityLocked(name, change.Reason)
			return
		}
		if reason, was := m.suspended[name]; was && m.status == StatusSuspended {
			delete(m.suspended, name)
			if !change.Resumed {
				if change.Reason != nil {
					reason = change.Reason
				}
				m.emitDiscontinuityLocked(name, reason)
			}
			if m.allAttachedLocked() {
				m.setStatusLocked(StatusAttached, nil)
			}
		}
	case realtime.StateSuspended, realtime.StateDetached:
		reason := channelStateError(name, change)
		m.suspended[name] = reason
		if m.status == StatusAttached {
			m.setStatusLocked(StatusSuspended, reason)
		}
	case realtime.StateFailed:
		m.setStatusLocked(StatusFailed, channelStateError(name, change))
	}
}

func (m *LifecycleManager) allAttachedLocked() bool {
	for _, ch := range m.channels {
		if ch.State() != realtime.StateAttached {
			return false
		}
	}
	return true
}

func (m *LifecycleManager) flushPendingLocked() {
	for _, c := range m.contributors {
		if reason, ok := m.pending[c]; ok {
			m.emitLocked(c, reason)
		}
	}
}

func (m *LifecycleManager) emitDiscontinuityLocked(channel string, reason error) {
	for _, c := range m.byChannel[channel] {
		m.emitLocked(c, discontinuityReason(reason))
	}
}

func (m *LifecycleManager) emitLocked(c *Contributor, reason error) {
	n := c.Discontinuities.Emit(reason)
	m.metrics.Discontinuity(c.Feature.String())
	m.log.Debug().Str("feature", c.Feature.String()).Int("subscribers", n).Err(reason).Msg("discontinuity")
}

func (m *LifecycleManager) setStatusLocked(status RoomStatus, err error) {
	previous := m.status
	m.status = status
	m.err = err

	m.metrics.StatusTransition(previous.String(), status.String())
	m.log.Debug().Str("from", previous.String()).Str("to", status.String()).Err(err).Msg("room status changed")
	m.statusSubs.publish(StatusChange{Current: status, Previous: previous, Err: err})
}

// channelStateError is the room error for a channel that left the attached state. The
// channel's own reason is kept when it gave one.
func channelStateError(channel string, change realtime.StateChange) error {
	if change.Reason != nil {
		return change.Reason
	}
	return fmt.Errorf("channel %s %s: %w", channel, change.Current, ErrContinuityLost)
}

func discontinuityReason(reason error) error {
	if reason == nil {
		return ErrContinuityLost
	}
	return reason
}
