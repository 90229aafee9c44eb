package pool

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// MaintenanceReport summarizes one maintenance pass.
type MaintenanceReport struct {
	Tenants         int           `json:"tenants"`
	Expired         int           `json:"expired"`
	Unhealthy       int           `json:"unhealthy"`
	Probed          int           `json:"probed"`
	ProbeFailures   int           `json:"probe_failures"`
	DatabasesClosed int           `json:"databases_closed"`
	Duration        time.Duration `json:"duration"`
}

// maybeRunMaintenance runs a pass when CleanupInterval has elapsed since the
// previous one. The compare-and-swap elects a single caller; everyone else
// proceeds without waiting.
func (p *Pool) maybeRunMaintenance(ctx context.Context) {
	now := p.now().UnixNano()
	last := p.lastMaintenance.Load()
	if time.Duration(now-last) < p.config.CleanupInterval {
		return
	}
	if !p.lastMaintenance.CompareAndSwap(last, now) {
		return
	}
	p.RunMaintenance(ctx)
}

// RunMaintenance closes idle handles past their TTL, closes idle handles
// already marked unhealthy, re-probes handles idle for longer than
// HealthCheckIdle, and closes database objects of tenants left without
// handles. Tenant files are never removed here; only ForceDatabaseCleanup's
// callers do that.
func (p *Pool) RunMaintenance(ctx context.Context) MaintenanceReport {
	start := p.now()
	var expired, unhealthy, probed, probeFailures, dbsClosed atomic.Int64

	ids := p.tenantIDs()
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			r := p.maintainTenant(gCtx, id)
			expired.Add(int64(r.Expired))
			unhealthy.Add(int64(r.Unhealthy))
			probed.Add(int64(r.Probed))
			probeFailures.Add(int64(r.ProbeFailures))
			dbsClosed.Add(int64(r.DatabasesClosed))
			return nil
		})
	}
	_ = g.Wait()

	report := MaintenanceReport{
		Tenants:         len(ids),
		Expired:         int(expired.Load()),
		Unhealthy:       int(unhealthy.Load()),
		Probed:          int(probed.Load()),
		ProbeFailures:   int(probeFailures.Load()),
		DatabasesClosed: int(dbsClosed.Load()),
		Duration:        p.now().Sub(start),
	}

	if report.Expired+report.Unhealthy+report.DatabasesClosed > 0 {
		p.logger.Info("maintenance pass complete",
			slog.Int("tenants", report.Tenants),
			slog.Int("expired", report.Expired),
			slog.Int("unhealthy", report.Unhealthy),
			slog.Int("probed", report.Probed),
			slog.Int("databases_closed", report.DatabasesClosed))
	} else {
		p.logger.Debug("maintenance pass complete",
			slog.Int("tenants", report.Tenants),
			slog.Int("probed", report.Probed))
	}
	return report
}

func (p *Pool) maintainTenant(ctx context.Context, graphID string) MaintenanceReport {
	var r MaintenanceReport

	lock := p.locks.Get(graphID)
	lock.Lock()
	defer lock.Unlock()

	tp, ok := p.lookup(graphID)
	if !ok {
		return r
	}
	now := p.now()

	kept := tp.conns[:0]
	for _, info := range tp.conns {
		if info.IsBorrowed() {
			kept = append(kept, info)
			continue
		}

		switch {
		case info.expired(now, p.config.ConnectionTTL):
			p.closeInfo(info)
			r.Expired++
		case !info.IsHealthy():
			// Flagged by an earlier probe or a failed operation.
			p.closeInfo(info)
			r.Unhealthy++
		default:
			if now.Sub(info.LastUsed) >= p.config.HealthCheckIdle {
				r.Probed++
				if !p.TestHealth(ctx, info) {
					r.ProbeFailures++
				}
			}
			kept = append(kept, info)
		}
	}
	for i := len(kept); i < len(tp.conns); i++ {
		tp.conns[i] = nil
	}
	tp.conns = kept

	if p.closeIdleDatabase(tp) {
		r.DatabasesClosed++
	}
	tp.publish()
	return r
}

// Start runs maintenance every CleanupInterval until ctx is done or the pool
// is closed. It is a no-op unless BackgroundMaintenance is set.
func (p *Pool) Start(ctx context.Context) {
	if !p.config.BackgroundMaintenance {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.config.CleanupInterval)
		defer ticker.Stop()

		p.logger.Info("background maintenance started",
			slog.Duration("interval", p.config.CleanupInterval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case <-ticker.C:
				p.lastMaintenance.Store(p.now().UnixNano())
				p.RunMaintenance(ctx)
			}
		}
	}()
}
