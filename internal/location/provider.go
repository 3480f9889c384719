// Package location provides the user's last known position.
package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yegors/planetracker/internal/adsb"
	"github.com/yegors/planetracker/internal/geo"
	"github.com/yegors/planetracker/pkg/logger"
)

// ErrUnavailable is returned when no usable position is known
var ErrUnavailable = errors.New("location unavailable")

// Source is the location collaborator used by the poller
type Source interface {
	LastKnownPosition(ctx context.Context) (adsb.UserPosition, error)
}

// Provider serves a configured position which can be overridden at runtime, the
// way a device reports its latest fix.
type Provider struct {
	configured geo.Coordinate
	maxAge     time.Duration
	clock      func() time.Time
	logger     *logger.Logger

	overrideMutex sync.RWMutex
	override      *adsb.UserPosition
	allowOverride bool
}

// Options configure a Provider
type Options struct {
	Configured    geo.Coordinate
	AllowOverride bool
	// MaxAge expires overrides older than this; zero keeps them forever
	MaxAge time.Duration
	Clock  func() time.Time
}

// NewProvider creates a new location provider
func NewProvider(opts Options, log *logger.Logger) *Provider {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Provider{
		configured:    opts.Configured,
		maxAge:        opts.MaxAge,
		clock:         clock,
		allowOverride: opts.AllowOverride,
		logger:        log.Named("location"),
	}
}

// SetOverride sets an override position
func (p *Provider) SetOverride(c geo.Coordinate) error {
	if !p.allowOverride {
		return errors.New("location override is disabled")
	}
	if !c.Valid() {
		return errors.New("invalid coordinates")
	}

	p.overrideMutex.Lock()
	defer p.overrideMutex.Unlock()

	p.override = &adsb.UserPosition{Coordinate: c, AsOf: p.clock()}
	p.logger.Info("Location override set",
		logger.Float64("lat", c.Lat),
		logger.Float64("lon", c.Lon))
	return nil
}

// ClearOverride removes the override, reverting to the configured position
func (p *Provider) ClearOverride() {
	p.overrideMutex.Lock()
	defer p.overrideMutex.Unlock()

	p.override = nil
	p.logger.Info("Location override cleared, using configured position",
		logger.Float64("lat", p.configured.Lat),
		logger.Float64("lon", p.configured.Lon))
}

// HasOverride reports whether an override is active
func (p *Provider) HasOverride() bool {
	p.overrideMutex.RLock()
	defer p.overrideMutex.RUnlock()
	return p.override != nil
}

// Effective returns the current position (override or configured) without any
// validity check
func (p *Provider) Effective() adsb.UserPosition {
	p.overrideMutex.RLock()
	defer p.overrideMutex.RUnlock()

	if p.override != nil {
		return *p.override
	}
	return adsb.UserPosition{Coordinate: p.configured, AsOf: p.clock()}
}

// LastKnownPosition returns the effective position. An unusable or expired
// position yields the invalid sentinel together with ErrUnavailable.
func (p *Provider) LastKnownPosition(ctx context.Context) (adsb.UserPosition, error) {
	if err := ctx.Err(); err != nil {
		return adsb.InvalidPosition, err
	}

	pos := p.Effective()
	if p.maxAge > 0 && p.HasOverride() && p.clock().Sub(pos.AsOf) > p.maxAge {
		return adsb.InvalidPosition, ErrUnavailable
	}
	if !pos.Valid() {
		return adsb.InvalidPosition, ErrUnavailable
	}
	return pos, nil
}
