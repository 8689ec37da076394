package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ticketfight/appeal-service/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status         string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp      time.Time                 `json:"timestamp"`
	Uptime         string                    `json:"uptime"`
	RequestsServed int64                     `json:"requests_served"`
	Checks         map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

type namedCheck struct {
	name     string
	critical bool
	slow     time.Duration
	fn       CheckFunc
}

// HealthChecker runs dependency probes. A failing critical probe makes the
// service unhealthy; any other failure only degrades it.
type HealthChecker struct {
	checks    []namedCheck
	served    func() int64
	startTime time.Time
	now       func() time.Time
}

// NewHealthChecker creates a HealthChecker. served reports the number of
// requests handled so far and may be nil.
func NewHealthChecker(served func() int64) *HealthChecker {
	if served == nil {
		served = func() int64 { return 0 }
	}
	return &HealthChecker{served: served, startTime: time.Now(), now: time.Now}
}

// AddCheck registers a probe. Responses slower than slow report degraded.
func (hc *HealthChecker) AddCheck(name string, critical bool, slow time.Duration, fn CheckFunc) {
	hc.checks = append(hc.checks, namedCheck{name: name, critical: critical, slow: slow, fn: fn})
}

// HandleHealth always returns 200; the body carries the real status. Use
// /health/ready for probes that need a 503.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks, overall := hc.run(r.Context())
	httputil.OK(w, HealthStatus{
		Status:         overall,
		Timestamp:      hc.now().UTC(),
		Uptime:         formatUptime(time.Since(hc.startTime)),
		RequestsServed: hc.served(),
		Checks:         checks,
	})
}

// HandleLiveness returns 200 while the process is running.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 503 when a critical dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks, overall := hc.run(r.Context())
	ready := overall != "unhealthy"
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]any{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) run(ctx context.Context) (map[string]ComponentCheck, string) {
	var (
		mu      sync.Mutex
		results = make(map[string]ComponentCheck, len(hc.checks))
		overall = "healthy"
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range hc.checks {
		c := c
		g.Go(func() error {
			res := probe(gctx, c)
			mu.Lock()
			defer mu.Unlock()
			results[c.name] = res
			switch {
			case res.Status == "down" && c.critical:
				overall = "unhealthy"
			case res.Status != "up" && overall == "healthy":
				overall = "degraded"
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, overall
}

func probe(ctx context.Context, c namedCheck) ComponentCheck {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := c.fn(ctx)
	latency := time.Since(start)
	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: "check failed"}
	}
	if c.slow > 0 && latency > c.slow {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: "slow response"}
	}
	return ComponentCheck{Status: "up", Latency: latency.String()}
}

func formatUptime(d time.Duration) string {
	return d.Truncate(time.Second).String()
}
