package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"strokesync/funscript"
	"strokesync/limits"
	"strokesync/stroker"
)

// ============================================================================
// Session - the synchronization loop
// ============================================================================
//
// One goroutine (Run) owns the timelines, the playback position, the
// carried output per axis and the device. Each tick it interpolates every
// driven axis at the playhead, bounds the result through the axis limits
// and sends one batch to the device.
//
// Ticks come from two sources: every TimeChange from the host, and an
// internal ticker at update_hz that extrapolates the playhead between host
// updates. The ticker stays quiet while host ticks arrive often enough.
//
// The limit table is the only state shared with other goroutines: IPC
// handlers call ApplyLimit concurrently and the loop reads a snapshot per
// axis per tick.
//
// A failed send ends the session. Commands are never retried.
// ============================================================================

// errShutdown ends Run without error.
var errShutdown = errors.New("session shutdown requested")

// SessionOptions configures NewSession.
type SessionOptions struct {
	UpdateHz      int
	ConnectOnLoad bool

	Logger     *slog.Logger
	Metrics    *Metrics
	Broadcasts chan<- StateBroadcast
}

type Session struct {
	device stroker.Device
	table  *limits.Table

	logger     *slog.Logger
	metrics    *Metrics
	broadcasts chan<- StateBroadcast

	interval      time.Duration
	maxDt         time.Duration
	connectOnLoad bool

	now      func() time.Time
	internal chan Event

	// Owned by Run.
	connected    bool
	paused       bool
	timelines    map[stroker.Axis]funscript.Timeline
	outputs      map[stroker.Axis]float64
	position     time.Duration
	positionAt   time.Time
	lastStep     time.Time
	lastHostTick time.Time
	loadedFrom   string
	alternatives []string

	gen        uint64
	cancelLoad context.CancelFunc
	loaders    sync.WaitGroup
}

// NewSession creates a session for dev using the live limits in table.
func NewSession(dev stroker.Device, table *limits.Table, opts SessionOptions) *Session {
	hz := opts.UpdateHz
	if hz <= 0 {
		hz = defaultUpdateHz
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	interval := time.Second / time.Duration(hz)
	return &Session{
		device:        dev,
		table:         table,
		logger:        logger,
		metrics:       opts.Metrics,
		broadcasts:    opts.Broadcasts,
		interval:      interval,
		maxDt:         2 * interval,
		connectOnLoad: opts.ConnectOnLoad,
		now:           time.Now,
		internal:      make(chan Event, 4),
		timelines:     make(map[stroker.Axis]funscript.Timeline),
		outputs:       make(map[stroker.Axis]float64),
	}
}

// Run drives the session until ctx is canceled, events is closed, a
// Shutdown event arrives, or the device fails. The device is disconnected
// before Run returns.
func (s *Session) Run(ctx context.Context, events <-chan Event) error {
	defer s.close()

	now := s.now()
	s.lastStep, s.positionAt = now, now

	if !s.connectOnLoad {
		if err := s.connect(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			s.logger.Info("session stopping (context canceled)")
			return nil

		case ev, ok := <-events:
			if !ok {
				s.logger.Info("session stopping (events channel closed)")
				return nil
			}
			err = s.handle(ctx, ev)

		case ev := <-s.internal:
			err = s.handle(ctx, ev)

		case <-ticker.C:
			now := s.now()
			if now.Sub(s.lastHostTick) < s.interval/2 {
				continue
			}
			err = s.step(ctx, now)
		}

		if errors.Is(err, errShutdown) {
			s.logger.Info("session stopping (shutdown requested)")
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *Session) handle(ctx context.Context, ev Event) error {
	now := s.now()

	switch e := ev.(type) {
	case VideoStarting:
		path := e.VideoPath
		if e.FunscriptPath != "" {
			path = e.FunscriptPath
		}
		s.logger.Info("video starting", "video", e.VideoPath, "funscript", e.FunscriptPath)

		s.timelines = make(map[stroker.Axis]funscript.Timeline)
		s.loadedFrom, s.alternatives = "", nil
		s.setPosition(0, now)
		s.broadcastState()

		s.startLoad(ctx, func(ctx context.Context, gen uint64) Event {
			return loadVideoScripts(ctx, path, gen, s.logger)
		})

	case LoadFunscript:
		s.logger.Info("loading funscript", "path", e.Path, "axis", e.Axis)
		s.startLoad(ctx, func(ctx context.Context, gen uint64) Event {
			return loadScriptFile(ctx, e.Path, e.Axis, gen)
		})

	case TimelineLoaded:
		return s.install(ctx, e, now)

	case LoadFailed:
		if e.Gen != s.gen {
			return nil
		}
		if errors.Is(e.Err, context.Canceled) {
			s.logger.Debug("funscript load cancelled", "source", e.Source)
			return nil
		}
		s.logger.Error("funscript load failed", "source", e.Source, "error", e.Err)

	case TimeChange:
		s.setPosition(msToDuration(e.Ms), now)
		s.lastHostTick = now
		return s.step(ctx, now)

	case Seek:
		s.logger.Debug("seek", "ms", e.Ms, "paused", s.paused)
		s.setPosition(msToDuration(e.Ms), now)

	case PauseChange:
		return s.setPaused(ctx, e.Paused, now)

	case AxisLimit:
		// Rejections are logged by ApplyLimit and never end the session.
		_, _ = s.ApplyLimit(e.Request)

	case Shutdown:
		return errShutdown

	case RequestStateSnapshot:
		select {
		case e.Reply <- s.snapshot(now):
		default:
		}

	default:
		s.logger.Debug("ignoring unknown event", "type", fmt.Sprintf("%T", ev))
	}
	return nil
}

// startLoad cancels any load in flight and runs load in the background.
// Its result comes back through s.internal tagged with the new generation.
func (s *Session) startLoad(ctx context.Context, load func(context.Context, uint64) Event) {
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	s.gen++
	gen := s.gen

	loadCtx, cancel := context.WithCancel(ctx)
	s.cancelLoad = cancel

	s.loaders.Add(1)
	go func() {
		defer s.loaders.Done()
		ev := load(loadCtx, gen)
		select {
		case s.internal <- ev:
		case <-loadCtx.Done():
		}
	}()
}

// install makes loaded timelines drive the device, connecting first if the
// connection was deferred. Connect failures abort the load but not the
// session.
func (s *Session) install(ctx context.Context, e TimelineLoaded, now time.Time) error {
	if e.Gen != s.gen {
		s.logger.Debug("ignoring superseded funscript load", "source", e.Source)
		return nil
	}

	if !s.connected {
		if err := s.connect(ctx); err != nil {
			s.logger.Error("device connect failed; script not used", "source", e.Source, "error", err)
			return nil
		}
	}

	if e.Replace {
		s.timelines = make(map[stroker.Axis]funscript.Timeline)
	}

	axes := make([]stroker.Axis, 0, len(e.Timelines))
	for axis := range e.Timelines {
		axes = append(axes, axis)
	}
	stroker.SortAxes(axes)

	var used []stroker.Axis
	for _, axis := range axes {
		if !stroker.Supports(s.device, axis) {
			s.logger.Warn("device has no such axis; ignoring script", "axis", axis, "source", e.Source)
			continue
		}

		cfg, ok := s.table.Snapshot(axis)
		if !ok {
			s.logger.Warn("axis has no limits configured; using safe defaults", "axis", axis, "limits", fallbackLimits())
			var err error
			if cfg, err = s.table.Ensure(axis, fallbackLimits()); err != nil {
				return err
			}
		}
		if _, ok := s.outputs[axis]; !ok {
			s.outputs[axis] = cfg.Midpoint()
		}

		s.timelines[axis] = e.Timelines[axis]
		used = append(used, axis)
	}

	s.loadedFrom = e.Source
	if e.Replace {
		s.alternatives = e.Alternatives
	}
	s.lastStep = now

	s.logger.Info("funscript in use", "source", e.Source, "axes", used, "alternatives", e.Alternatives)
	s.broadcastState()
	return nil
}

func (s *Session) connect(ctx context.Context) error {
	if err := s.device.Connect(ctx); err != nil {
		return err
	}
	s.connected = true
	s.logger.Info("device connected", "device", s.device.Description(), "axes", s.device.Axes())
	s.broadcastState()
	return nil
}

// step advances every driven axis to the playhead at now and sends the
// result. elapsed is clamped to two intervals so a stalled loop cannot
// unlock a large jump.
func (s *Session) step(ctx context.Context, now time.Time) error {
	elapsed := now.Sub(s.lastStep)
	s.lastStep = now
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > s.maxDt {
		elapsed = s.maxDt
	}

	if s.paused || !s.connected || len(s.timelines) == 0 {
		return nil
	}

	playhead := s.playhead(now)
	cmds := make([]stroker.Command, 0, len(s.timelines))

	for _, axis := range s.drivenAxes() {
		cfg, ok := s.table.Snapshot(axis)
		if !ok {
			continue
		}
		prev, ok := s.outputs[axis]
		if !ok {
			prev = cfg.Midpoint()
		}

		out, emit := limits.Step(prev, s.timelines[axis].ValueAt(playhead), elapsed, cfg)
		if !emit {
			// Disabled: the device stays where it was last sent, and the
			// speed cap resumes from there once the axis is re-enabled.
			continue
		}
		s.outputs[axis] = out
		s.metrics.Position(axis, out)
		cmds = append(cmds, stroker.Command{Axis: axis, Value: out})
	}

	s.metrics.Tick()
	s.broadcast(BroadcastPositions{Positions: s.copyOutputs(), Playhead: playhead, At: now})

	if len(cmds) == 0 {
		return nil
	}

	// The send must finish even if shutdown starts mid-write; it is bounded
	// by the device's own write timeout.
	start := time.Now()
	if err := s.device.Send(context.WithoutCancel(ctx), cmds); err != nil {
		s.metrics.SendFailed()
		s.connected = false
		s.broadcastState()
		return fmt.Errorf("send to %s: %w", s.device.Description(), err)
	}
	s.metrics.Sent(len(cmds), time.Since(start))
	return nil
}

func (s *Session) setPaused(ctx context.Context, paused bool, now time.Time) error {
	if paused == s.paused {
		return nil
	}

	s.position = s.playhead(now)
	s.positionAt = now
	s.paused = paused
	s.lastStep = now
	s.logger.Info("pause changed", "paused", paused, "position", s.position)
	s.broadcastState()

	if !paused || !s.connected {
		return nil
	}
	stopper, ok := s.device.(stroker.Stopper)
	if !ok {
		return nil
	}
	if err := stopper.Stop(context.WithoutCancel(ctx)); err != nil {
		s.connected = false
		s.broadcastState()
		return fmt.Errorf("stop %s: %w", s.device.Description(), err)
	}
	return nil
}

// ApplyLimit applies one limit request atomically. It is safe to call from
// any goroutine; the loop observes the result no later than its next tick.
// Axes without limits get the safe defaults before the request applies.
func (s *Session) ApplyLimit(req limits.Request) (limits.Config, error) {
	if !req.Axis.Valid() {
		s.metrics.LimitRequest(false)
		err := fmt.Errorf("%w: %q", limits.ErrUnknownAxis, req.Axis)
		s.logger.Warn("axis limit rejected", "request", req, "error", err)
		return limits.Config{}, err
	}
	if _, err := s.table.Ensure(req.Axis, fallbackLimits()); err != nil {
		return limits.Config{}, err
	}

	cfg, err := s.table.Apply(req)
	if err != nil {
		s.metrics.LimitRequest(false)
		s.logger.Warn("axis limit rejected", "request", req, "error", err)
		return cfg, err
	}

	s.metrics.LimitRequest(true)
	s.logger.Info("axis limits changed", "axis", req.Axis, "limits", cfg)
	s.broadcast(BroadcastLimitsChanged{Axis: req.Axis, Limits: cfg, At: time.Now()})
	return cfg, nil
}

func (s *Session) setPosition(p time.Duration, now time.Time) {
	s.position = p
	s.positionAt = now
}

// playhead extrapolates the last reported position while playing.
func (s *Session) playhead(now time.Time) time.Duration {
	if s.paused {
		return s.position
	}
	d := now.Sub(s.positionAt)
	if d > 0 && s.position > math.MaxInt64-d {
		return time.Duration(math.MaxInt64)
	}
	if p := s.position + d; p > 0 {
		return p
	}
	return 0
}

func (s *Session) drivenAxes() []stroker.Axis {
	axes := make([]stroker.Axis, 0, len(s.timelines))
	for a := range s.timelines {
		axes = append(axes, a)
	}
	stroker.SortAxes(axes)
	return axes
}

func (s *Session) copyOutputs() map[stroker.Axis]float64 {
	out := make(map[stroker.Axis]float64, len(s.timelines))
	for a := range s.timelines {
		out[a] = s.outputs[a]
	}
	return out
}

func (s *Session) snapshot(now time.Time) SessionSnapshot {
	alts := append([]string(nil), s.alternatives...)
	sort.Strings(alts)
	return SessionSnapshot{
		Connected:    s.connected,
		Paused:       s.paused,
		Device:       s.device.Description(),
		Position:     s.playhead(now),
		Axes:         s.drivenAxes(),
		Outputs:      s.copyOutputs(),
		Limits:       s.table.All(),
		LoadedFrom:   s.loadedFrom,
		Alternatives: alts,
	}
}

func (s *Session) broadcast(b StateBroadcast) {
	if s.broadcasts == nil {
		return
	}
	select {
	case s.broadcasts <- b:
	default:
	}
}

func (s *Session) broadcastState() {
	s.broadcast(BroadcastSessionState{
		Connected:  s.connected,
		Paused:     s.paused,
		Device:     s.device.Description(),
		Axes:       s.drivenAxes(),
		LoadedFrom: s.loadedFrom,
		At:         time.Now(),
	})
}

// close stops background loads and releases the device.
func (s *Session) close() {
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	s.loaders.Wait()

	s.device.Disconnect()
	if s.connected {
		s.logger.Info("device disconnected", "device", s.device.Description())
	}
	s.connected = false
	s.broadcastState()
}
