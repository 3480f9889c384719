// Package notify delivers alert summaries to external sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yegors/planetracker/internal/alert"
	"github.com/yegors/planetracker/pkg/logger"
)

// ErrRateLimited is returned when a delivery is dropped by the rate limiter
var ErrRateLimited = errors.New("notification rate limited")

// Notification is one delivery: a title, a body and the summary it came from
type Notification struct {
	Title   string        `json:"title"`
	Body    string        `json:"body"`
	Summary alert.Summary `json:"summary"`
}

// Sink is a notification destination
type Sink interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// Notifier fans a notification out to every sink, rate limited
type Notifier struct {
	mu      sync.RWMutex
	sinks   []Sink
	limiter *rate.Limiter
	logger  *logger.Logger
}

// NewNotifier creates a notifier allowing ratePerMinute deliveries per minute.
// Zero or negative disables limiting.
func NewNotifier(ratePerMinute int, log *logger.Logger, sinks ...Sink) *Notifier {
	n := &Notifier{
		sinks:  sinks,
		logger: log.Named("notify"),
	}
	n.limiter = rate.NewLimiter(limitFor(ratePerMinute), burstFor(ratePerMinute))
	return n
}

func limitFor(ratePerMinute int) rate.Limit {
	if ratePerMinute <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Minute / time.Duration(ratePerMinute))
}

func burstFor(ratePerMinute int) int {
	if ratePerMinute <= 0 {
		return 1
	}
	return ratePerMinute
}

// SetRate changes the delivery rate at runtime
func (n *Notifier) SetRate(ratePerMinute int) {
	n.limiter.SetLimit(limitFor(ratePerMinute))
	n.limiter.SetBurst(burstFor(ratePerMinute))
}

// AddSink registers another sink
func (n *Notifier) AddSink(s Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks = append(n.sinks, s)
}

// Sinks returns the registered sink names
func (n *Notifier) Sinks() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	names := make([]string, 0, len(n.sinks))
	for _, s := range n.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Notify delivers to every sink. Sink failures are joined; one failing sink does
// not stop the others.
func (n *Notifier) Notify(ctx context.Context, note Notification) error {
	if !n.limiter.Allow() {
		n.logger.Warn("Dropping notification, rate limit reached",
			logger.String("title", note.Title))
		return ErrRateLimited
	}

	n.mu.RLock()
	sinks := append([]Sink(nil), n.sinks...)
	n.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Notify(ctx, note); err != nil {
			n.logger.Error("Sink delivery failed",
				logger.String("sink", s.Name()),
				logger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes notifications to the log
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a log sink
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log.Named("notify-log")}
}

// Name implements Sink
func (s *LogSink) Name() string { return "log" }

// Notify implements Sink
func (s *LogSink) Notify(_ context.Context, n Notification) error {
	s.logger.Info(n.Title,
		logger.String("body", n.Body),
		logger.Int("count", n.Summary.Count),
		logger.Bool("invalid_location", n.Summary.InvalidLocation),
		logger.String("summary_id", n.Summary.ID.String()))
	return nil
}
