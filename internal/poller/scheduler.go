// Package poller drives the periodic alert, statistics and flag cycles.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/yegors/planetracker/internal/adsb"
	"github.com/yegors/planetracker/internal/alert"
	"github.com/yegors/planetracker/internal/notify"
	"github.com/yegors/planetracker/internal/stats"
	"github.com/yegors/planetracker/internal/websocket"
	"github.com/yegors/planetracker/pkg/logger"
)

var (
	// ErrCycleInFlight is returned when a cycle is requested while the previous
	// one of the same kind is still running
	ErrCycleInFlight = errors.New("cycle already in flight")

	// ErrDisabled is returned by alert cycles while the enabled flag is off
	ErrDisabled = errors.New("alerting disabled")
)

// FetchError wraps a store or location failure that aborted a cycle
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %s failed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// RecordStore is the store collaborator
type RecordStore interface {
	Get(ctx context.Context, key adsb.PartitionKey) (adsb.Snapshot, error)
	Enabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, value bool, done func(error))
}

// LocationSource supplies the user position
type LocationSource interface {
	LastKnownPosition(ctx context.Context) (adsb.UserPosition, error)
}

// Notifier delivers notifications
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}

// Broadcaster pushes display updates to connected clients
type Broadcaster interface {
	Broadcast(message *websocket.Message) bool
}

// Options configure the scheduler
type Options struct {
	Radius         float64
	Window         time.Duration
	BucketMinutes  int
	AlertInterval  time.Duration
	StatsInterval  time.Duration
	FlagInterval   time.Duration
	CycleTimeout   time.Duration
	ForceOnInvalid bool
	TitleFormat    string

	EditSuppression time.Duration
	AckGrace        time.Duration

	// Clock defaults to time.Now
	Clock func() time.Time
}

// CycleStatus describes the last run of one kind of cycle
type CycleStatus struct {
	LastRun  time.Time     `json:"last_run"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Runs     int64         `json:"runs"`
	Skipped  int64         `json:"skipped"`
}

// Status is a snapshot of the scheduler state
type Status struct {
	Alert     CycleStatus `json:"alert"`
	Stats     CycleStatus `json:"stats"`
	Flag      CycleStatus `json:"flag"`
	FlagState string      `json:"flag_state"`
	Enabled   bool        `json:"enabled"`
}

// Scheduler runs the alert, stats and flag cycles
type Scheduler struct {
	opts     Options
	optsMu   sync.RWMutex
	clock    func() time.Time
	store    RecordStore
	location LocationSource
	notifier Notifier
	hub      Broadcaster
	composer *alert.Composer
	flag     *FlagDebouncer
	logger   *logger.Logger

	cron *cron.Cron

	alertRunning atomic.Bool
	statsRunning atomic.Bool
	flagRunning  atomic.Bool

	mu        sync.RWMutex
	status    Status
	lastAlert *alert.Summary
	lastStats *stats.DashboardStats
}

// New creates a scheduler. hub may be nil.
func New(opts Options, store RecordStore, loc LocationSource, notifier Notifier, hub Broadcaster, log *logger.Logger) *Scheduler {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	composer := alert.NewComposer(opts.ForceOnInvalid)
	if opts.TitleFormat != "" {
		composer.TitleFormat = opts.TitleFormat
	}
	return &Scheduler{
		opts:     opts,
		clock:    clock,
		store:    store,
		location: loc,
		notifier: notifier,
		hub:      hub,
		composer: composer,
		flag:     NewFlagDebouncer(opts.EditSuppression, opts.AckGrace),
		logger:   log.Named("poller"),
	}
}

// Start schedules the cycles and runs an initial flag sync and stats cycle
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting poll scheduler",
		logger.Duration("alert_interval", s.opts.AlertInterval),
		logger.Duration("stats_interval", s.opts.StatsInterval),
		logger.Duration("flag_interval", s.opts.FlagInterval))

	cl := cronLogger{log: s.logger.Named("cron")}
	s.cron = cron.New(cron.WithChain(cron.Recover(cl)), cron.WithLogger(cl))

	jobs := []struct {
		name  string
		every time.Duration
		run   func(context.Context) error
	}{
		{"alert", s.opts.AlertInterval, func(ctx context.Context) error { _, err := s.RunAlertCycle(ctx); return err }},
		{"stats", s.opts.StatsInterval, func(ctx context.Context) error { _, err := s.RunStatsCycle(ctx); return err }},
		{"flag", s.opts.FlagInterval, func(ctx context.Context) error { _, err := s.SyncFlag(ctx); return err }},
	}
	for _, job := range jobs {
		if job.every <= 0 {
			return fmt.Errorf("invalid %s interval: %s", job.name, job.every)
		}
		job := job
		s.cron.Schedule(cron.Every(job.every), cron.FuncJob(func() {
			if ctx.Err() != nil {
				return
			}
			if err := job.run(ctx); err != nil && !errors.Is(err, ErrCycleInFlight) && !errors.Is(err, ErrDisabled) {
				s.logger.Warn("Cycle failed", logger.String("cycle", job.name), logger.Error(err))
			}
		}))
	}

	if _, err := s.SyncFlag(ctx); err != nil {
		s.logger.Warn("Initial flag sync failed", logger.Error(err))
	}
	if _, err := s.RunStatsCycle(ctx); err != nil {
		s.logger.Warn("Initial stats cycle failed", logger.Error(err))
	}

	s.cron.Start()
	return nil
}

// Stop stops scheduling and waits for running jobs
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	s.logger.Info("Stopping poll scheduler")
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for running cycles")
	}
}

// UpdateAlerting changes radius and recency window for subsequent cycles
func (s *Scheduler) UpdateAlerting(radius float64, window time.Duration) {
	s.optsMu.Lock()
	s.opts.Radius = radius
	s.opts.Window = window
	s.optsMu.Unlock()

	s.logger.Info("Alerting parameters updated",
		logger.Float64("radius_m", radius),
		logger.Duration("window", window))
}

func (s *Scheduler) filter() adsb.Filter {
	s.optsMu.RLock()
	defer s.optsMu.RUnlock()
	return adsb.Filter{Radius: s.opts.Radius, Window: s.opts.Window}
}

// RunAlertCycle runs one alert cycle: read the flag, fetch the current bucket and
// the user position concurrently, filter, compose and deliver. A cycle already in
// flight makes this call return ErrCycleInFlight without doing anything.
func (s *Scheduler) RunAlertCycle(ctx context.Context) (*alert.Summary, error) {
	if !s.alertRunning.CompareAndSwap(false, true) {
		s.recordSkip(func(st *Status) *CycleStatus { return &st.Alert })
		s.logger.Debug("Alert cycle still in flight, skipping")
		return nil, ErrCycleInFlight
	}
	defer s.alertRunning.Store(false)

	start := s.clock()
	cycleID := uuid.New()
	log := s.logger.With(logger.String("cycle_id", cycleID.String()))

	summary, err := s.alertCycle(ctx, start, log)
	s.recordRun(func(st *Status) *CycleStatus { return &st.Alert }, start, err)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *Scheduler) alertCycle(ctx context.Context, now time.Time, log *logger.Logger) (*alert.Summary, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.CycleTimeout)
	defer cancel()

	enabled, err := s.store.Enabled(cctx)
	if err != nil {
		log.Warn("Failed to read enabled flag", logger.Error(err))
		return nil, &FetchError{Source: "store", Err: err}
	}
	s.setEnabled(enabled)
	if !enabled {
		log.Debug("Alerting disabled, skipping cycle")
		return nil, ErrDisabled
	}

	key := adsb.BucketKey(now, s.opts.BucketMinutes)

	var (
		wg      sync.WaitGroup
		snap    adsb.Snapshot
		snapErr error
		user    adsb.UserPosition
		userErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		snap, snapErr = s.store.Get(cctx, key)
	}()
	go func() {
		defer wg.Done()
		user, userErr = s.location.LastKnownPosition(cctx)
	}()
	wg.Wait()

	if snapErr != nil {
		log.Warn("Failed to fetch observations",
			logger.String("key", key.String()),
			logger.Error(snapErr))
		return nil, &FetchError{Source: "store", Err: snapErr}
	}
	if userErr != nil {
		log.Warn("User position unavailable, treating as invalid coordinates", logger.Error(userErr))
		user = adsb.InvalidPosition
	}

	records := adsb.DecodeSnapshot(snap)
	sel := s.filter().Select(records, user, now)
	summary := s.composer.Compose(sel, user, now)

	s.mu.Lock()
	s.lastAlert = &summary
	s.mu.Unlock()

	log.Info("Alert cycle complete",
		logger.String("key", key.String()),
		logger.Int("records", len(records)),
		logger.Int("matches", len(sel.Matches)),
		logger.Bool("invalid_location", sel.InvalidLocation),
		logger.Int("count", summary.Count))

	if summary.ShouldNotify() {
		note := notify.Notification{
			Title:   s.composer.Title(summary),
			Body:    summary.Text,
			Summary: summary,
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			log.Warn("Notification delivery failed", logger.Error(err))
		}
	}

	return &summary, nil
}

// RunStatsCycle computes today's dashboard statistics and publishes them
func (s *Scheduler) RunStatsCycle(ctx context.Context) (*stats.DashboardStats, error) {
	if !s.statsRunning.CompareAndSwap(false, true) {
		s.recordSkip(func(st *Status) *CycleStatus { return &st.Stats })
		return nil, ErrCycleInFlight
	}
	defer s.statsRunning.Store(false)

	start := s.clock()
	dash, err := s.Dashboard(ctx, adsb.DayKey(start).Day)
	s.recordRun(func(st *Status) *CycleStatus { return &st.Stats }, start, err)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastStats = dash
	s.mu.Unlock()

	s.broadcast(websocket.MessageTypeStatsUpdate, map[string]any{"stats": dash})
	s.logger.Debug("Stats cycle complete",
		logger.String("date", dash.Date),
		logger.Int("total", dash.Total))
	return dash, nil
}

// Dashboard computes the statistics for a day (YYYY-MM-DD)
func (s *Scheduler) Dashboard(ctx context.Context, day string) (*stats.DashboardStats, error) {
	key, err := adsb.ParsePartitionKey(day)
	if err != nil || !key.IsDay() {
		return nil, fmt.Errorf("invalid day %q", day)
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.CycleTimeout)
	defer cancel()

	snap, err := s.store.Get(cctx, key)
	if err != nil {
		return nil, &FetchError{Source: "store", Err: err}
	}
	dash := stats.Dashboard(key.Day, adsb.DecodeSnapshot(snap), s.clock())
	return &dash, nil
}

// DayRecords returns the aircraft observed on day, one record per aircraft with
// its location history
func (s *Scheduler) DayRecords(ctx context.Context, day string) ([]adsb.Record, error) {
	key, err := adsb.ParsePartitionKey(day)
	if err != nil || !key.IsDay() {
		return nil, fmt.Errorf("invalid day %q", day)
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.CycleTimeout)
	defer cancel()

	snap, err := s.store.Get(cctx, key)
	if err != nil {
		return nil, &FetchError{Source: "store", Err: err}
	}
	return adsb.DecodeSnapshot(snap), nil
}

// SyncFlag reads the enabled flag from the store and returns the value to display
func (s *Scheduler) SyncFlag(ctx context.Context) (bool, error) {
	if !s.flagRunning.CompareAndSwap(false, true) {
		return s.flag.Displayed(), ErrCycleInFlight
	}
	defer s.flagRunning.Store(false)

	start := s.clock()
	cctx, cancel := context.WithTimeout(ctx, s.opts.CycleTimeout)
	defer cancel()

	value, err := s.store.Enabled(cctx)
	if err != nil {
		err = &FetchError{Source: "store", Err: err}
		s.recordRun(func(st *Status) *CycleStatus { return &st.Flag }, start, err)
		return s.flag.Displayed(), err
	}
	s.recordRun(func(st *Status) *CycleStatus { return &st.Flag }, start, nil)
	s.setEnabled(value)

	before := s.flag.Displayed()
	displayed, applied := s.flag.Observe(s.clock(), value)
	if applied && displayed != before {
		s.broadcastFlag(displayed)
	}
	return displayed, nil
}

// SetFlag applies a user edit of the enabled flag: the new value is shown at
// once and the write to the store runs in the background.
func (s *Scheduler) SetFlag(ctx context.Context, value bool) {
	edit := s.flag.BeginEdit(s.clock(), value)
	s.broadcastFlag(value)

	s.store.SetEnabled(ctx, value, func(err error) {
		if err != nil {
			s.logger.Warn("Flag write failed", logger.Bool("value", value), logger.Error(err))
			s.flag.WriteFailed(edit)
			return
		}
		s.flag.WriteAcked(edit, s.clock())
		s.setEnabled(value)
	})
}

// FlagView is the displayed flag and its edit state
type FlagView struct {
	Enabled       bool      `json:"enabled"`
	State         string    `json:"state"`
	SuppressUntil time.Time `json:"suppress_until,omitempty"`
}

// Flag returns the displayed flag
func (s *Scheduler) Flag() FlagView {
	now := s.clock()
	return FlagView{
		Enabled:       s.flag.Displayed(),
		State:         s.flag.State(now).String(),
		SuppressUntil: s.flag.SuppressUntil(now),
	}
}

// LastAlert returns the most recent summary, or nil
func (s *Scheduler) LastAlert() *alert.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAlert
}

// LastStats returns the most recent dashboard statistics, or nil
func (s *Scheduler) LastStats() *stats.DashboardStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStats
}

// Status returns a snapshot of cycle statuses
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()
	st.FlagState = s.flag.State(s.clock()).String()
	return st
}

func (s *Scheduler) recordRun(pick func(*Status) *CycleStatus, start time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := pick(&s.status)
	cs.LastRun = start
	cs.Duration = s.clock().Sub(start)
	cs.Runs++
	switch {
	case err == nil, errors.Is(err, ErrDisabled):
		cs.OK = true
		cs.Error = ""
	default:
		cs.OK = false
		cs.Error = err.Error()
	}
}

func (s *Scheduler) recordSkip(pick func(*Status) *CycleStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pick(&s.status).Skipped++
}

func (s *Scheduler) setEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Enabled = v
}

func (s *Scheduler) broadcastFlag(value bool) {
	s.broadcast(websocket.MessageTypeFlagState, map[string]any{"enabled": value})
}

func (s *Scheduler) broadcast(messageType string, data map[string]any) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(&websocket.Message{Type: messageType, Data: data})
}
