// Package reaper removes expired sessions from the store on a fixed interval.
package reaper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fentz26/tripassist/internal/audit"
	"github.com/fentz26/tripassist/internal/logging"
	"github.com/fentz26/tripassist/internal/metrics"
)

// Expirer is the part of the session store the reaper needs.
type Expirer interface {
	Expire(ctx context.Context) (int, error)
}

// Config defines the reaper configuration.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration `yaml:"interval"`
}

// DefaultConfig returns the default reaper configuration.
func DefaultConfig() *Config {
	return &Config{Interval: time.Minute}
}

// Reaper periodically calls Expire on a store.
type Reaper struct {
	store   Expirer
	pdr     *audit.Recorder
	metrics *metrics.Metrics
	config  *Config
	logger  *logrus.Entry

	mu        sync.Mutex
	sweeps    int
	expired   int
	lastSweep time.Time
	lastErr   error
}

// New creates a new reaper.
func New(st Expirer, pdr *audit.Recorder, m *metrics.Metrics, cfg *Config) *Reaper {
	if cfg == nil || cfg.Interval <= 0 {
		cfg = DefaultConfig()
	}

	return &Reaper{
		store:   st,
		pdr:     pdr,
		metrics: m,
		config:  cfg,
		logger:  logging.NewLogger("reaper"),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.WithField("interval", r.config.Interval).Info("Reaper started")
	defer r.logger.Info("Reaper stopped")

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry pass and reports how many sessions were removed.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	n, err := r.store.Expire(ctx)

	r.mu.Lock()
	r.sweeps++
	r.expired += n
	r.lastSweep = time.Now()
	r.lastErr = err
	r.mu.Unlock()

	if err != nil {
		r.logger.WithError(err).Warn("Session sweep failed")
		return n, err
	}
	if n > 0 {
		if r.metrics != nil {
			r.metrics.ExpiredSessions.Add(float64(n))
		}
		if r.pdr != nil {
			r.pdr.Record(audit.ActionExpire, map[string]int{"expired": n}, "success", "", fmt.Sprintf("Expired %d session(s)", n))
		}
		r.logger.WithField("expired", n).Debug("Expired sessions")
	}
	return n, nil
}

// GetStats returns current reaper statistics.
func (r *Reaper) GetStats() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := map[string]interface{}{
		"sweeps":        r.sweeps,
		"expired_total": r.expired,
		"interval":      r.config.Interval.String(),
	}
	if !r.lastSweep.IsZero() {
		stats["last_sweep"] = r.lastSweep.UTC().Format(time.RFC3339)
	}
	if r.lastErr != nil {
		stats["last_error"] = r.lastErr.Error()
	}
	return stats
}
