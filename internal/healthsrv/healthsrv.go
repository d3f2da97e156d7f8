// Package healthsrv exposes a liveness/readiness HTTP surface for the
// spdm-responder and spdm-requester binaries: a set of named checks run
// on demand (with a short result cache so a slow dependency doesn't get
// hammered by a tight liveness-probe interval), rolled up into one
// overall status. Adapted from the teacher's health.HealthChecker.
package healthsrv

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/openspdm/spdm-go/internal/logger"
)

// Status is the outcome of one check, or of the rolled-up checker.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is one named check's latest outcome.
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// Check reports an error for an unhealthy dependency, nil otherwise.
type Check func(ctx context.Context) error

// Checker runs a fixed set of named checks and caches each result for
// cacheTTL so a readiness probe hitting the endpoint every second doesn't
// re-dial every dependency on every request.
type Checker struct {
	mu       sync.RWMutex
	checks   map[string]Check
	timeout  time.Duration
	cacheTTL time.Duration
	cache    map[string]cached
	log      logger.Logger
}

type cached struct {
	result  CheckResult
	expires time.Time
}

// New builds a Checker. A zero timeout defaults to 5s.
func New(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		checks:   make(map[string]Check),
		timeout:  timeout,
		cacheTTL: 10 * time.Second,
		cache:    make(map[string]cached),
		log:      logger.GetDefaultLogger().WithFields(logger.String("component", "healthsrv")),
	}
}

// Register adds a named check. Re-registering a name replaces it.
func (c *Checker) Register(name string, fn Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

func (c *Checker) run(ctx context.Context, name string, fn Check) CheckResult {
	c.mu.RLock()
	if cr, ok := c.cache[name]; ok && time.Now().Before(cr.expires) {
		c.mu.RUnlock()
		return cr.result
	}
	c.mu.RUnlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res := CheckResult{Name: name, Status: StatusHealthy, Timestamp: start}
	if err := fn(ctx); err != nil {
		res.Status = StatusUnhealthy
		res.Message = err.Error()
		c.log.Warn("health check failed", logger.String("check", name), logger.Error(err))
	}
	res.Duration = time.Since(start)

	c.mu.Lock()
	c.cache[name] = cached{result: res, expires: time.Now().Add(c.cacheTTL)}
	c.mu.Unlock()
	return res
}

// RunAll executes every registered check and rolls the results up into an
// overall status: unhealthy if any check is unhealthy, healthy otherwise.
func (c *Checker) RunAll(ctx context.Context) (Status, []CheckResult) {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	fns := make([]Check, 0, len(c.checks))
	for name, fn := range c.checks {
		names = append(names, name)
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	results := make([]CheckResult, len(names))
	overall := StatusHealthy
	for i, name := range names {
		results[i] = c.run(ctx, name, fns[i])
		if results[i].Status == StatusUnhealthy {
			overall = StatusUnhealthy
		}
	}
	return overall, results
}

// Handler serves the rolled-up status as JSON, 200 when healthy and 503
// otherwise.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, results := c.RunAll(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if status != StatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(struct {
			Status Status        `json:"status"`
			Checks []CheckResult `json:"checks"`
		}{status, results})
	})
}
