package eligibility

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/pkg/logger"
)

// Gate answers eligibility questions from a cached registry.
type Gate struct {
	src     Source
	refresh time.Duration
	log     *logger.Logger
	now     func() time.Time
	flight  singleflight.Group

	mu     sync.RWMutex
	cities map[string]domain.City
	// triedAt is the last load attempt, successful or not, so a failing
	// source is retried once per refresh interval rather than per call.
	triedAt time.Time
}

// NewGate creates a gate over src. A zero refresh loads once.
func NewGate(src Source, refresh time.Duration, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.Default()
	}
	return &Gate{src: src, refresh: refresh, log: log, now: time.Now}
}

// Load forces a reload. On failure the previous registry stays in place.
func (g *Gate) Load(ctx context.Context) error {
	cities, err := g.src.Load(ctx)
	if err != nil {
		g.mu.Lock()
		g.triedAt = g.now()
		g.mu.Unlock()
		return err
	}
	m := make(map[string]domain.City, len(cities))
	for _, c := range cities {
		m[c.ID] = c
	}
	g.mu.Lock()
	g.cities = m
	g.triedAt = g.now()
	g.mu.Unlock()
	g.log.Debug("city registry loaded", "cities", len(m))
	return nil
}

func (g *Gate) stale() (map[string]domain.City, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.cities == nil {
		return nil, true
	}
	return g.cities, g.refresh > 0 && g.now().Sub(g.triedAt) >= g.refresh
}

// snapshot returns the current registry, reloading it first when it is due.
// Concurrent callers share one reload.
func (g *Gate) snapshot(ctx context.Context) map[string]domain.City {
	cities, due := g.stale()
	if !due {
		return cities
	}
	v, _, _ := g.flight.Do("load", func() (interface{}, error) {
		if cities, due := g.stale(); !due {
			return cities, nil
		}
		if err := g.Load(ctx); err != nil {
			g.log.Warn("city registry reload failed, serving previous copy", "error", err)
		}
		g.mu.RLock()
		defer g.mu.RUnlock()
		return g.cities, nil
	})
	cities, _ = v.(map[string]domain.City)
	return cities
}

// IsEligible reports whether disputes for cityID may be processed.
func (g *Gate) IsEligible(ctx context.Context, cityID string) bool {
	c, ok := g.snapshot(ctx)[cityID]
	return ok && c.Admissible()
}

// City returns the registry entry for cityID.
func (g *Gate) City(ctx context.Context, cityID string) (domain.City, bool) {
	c, ok := g.snapshot(ctx)[cityID]
	return c, ok
}

// List returns the registry sorted by id. Blocked cities are included only
// when includeAll is set.
func (g *Gate) List(ctx context.Context, includeAll bool) []domain.City {
	cities := g.snapshot(ctx)
	out := make([]domain.City, 0, len(cities))
	for _, c := range cities {
		if c.Blocked && !includeAll {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
