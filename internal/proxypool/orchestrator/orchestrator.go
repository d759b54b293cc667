// Package orchestrator multiplexes a heterogeneous, ordered list of
// ProxySources behind a single Replenish/Release/Health surface ("Socker"
// in the design's shorthand). It never retries internally: retry
// discipline belongs to the pool manager, which simply asks again on the
// next refill cycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"proxyfleet/internal/proxypool/model"
	"proxyfleet/internal/proxypool/source"
	"proxyfleet/internal/shared/events"
	"proxyfleet/internal/shared/logger"
)

// ErrAllSourcesExhausted is returned by Replenish when every source in the
// list failed or yielded an empty batch.
var ErrAllSourcesExhausted = errors.New("all sources exhausted")

// SourceHealth is the diagnostic result of probing a single source.
type SourceHealth struct {
	SourceTag string
	Healthy   bool
	ProbedAt  time.Time
	Error     string
}

// Orchestrator holds an immutable, ordered list of sources. The first
// source is primary; subsequent ones are strict fallbacks.
type Orchestrator struct {
	sources []source.ProxySource
	bus     *events.Bus
}

// New builds an Orchestrator over sources, in priority order. The slice is
// copied so later caller-side mutation of it has no effect (SourceList is
// immutable per the design).
func New(bus *events.Bus, sources ...source.ProxySource) *Orchestrator {
	list := make([]source.ProxySource, len(sources))
	copy(list, sources)
	return &Orchestrator{sources: list, bus: bus}
}

// Replenish iterates sources in configured order. For each, it calls
// Fetch(n). On success with >=1 item it returns that batch immediately —
// batches from multiple sources are never aggregated, so a discard/release
// always has a single clean owner. On fetch error or an empty batch it
// emits source.failed and advances. If every source fails or yields
// empty, it fails with ErrAllSourcesExhausted.
func (o *Orchestrator) Replenish(ctx context.Context, n int) ([]*model.ProxyItem, error) {
	l := logger.WithComponent("orchestrator")
	var lastErr error

	for _, src := range o.sources {
		items, err := src.Fetch(ctx, n)
		if err != nil {
			lastErr = err
			l.Warn().Err(err).Str("source", src.Tag()).Msg("source fetch failed during replenish")
			o.emitSourceFailed(src.Tag(), err)
			continue
		}
		if len(items) == 0 {
			lastErr = fmt.Errorf("[%s] fetch returned no items", src.Tag())
			l.Warn().Str("source", src.Tag()).Msg("source fetch returned empty batch")
			o.emitSourceFailed(src.Tag(), lastErr)
			continue
		}
		return items, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no sources configured")
	}
	return nil, fmt.Errorf("[orchestrator] %w: %v", ErrAllSourcesExhausted, lastErr)
}

func (o *Orchestrator) emitSourceFailed(tag string, err error) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.New(events.SourceFailed).WithSource(tag).WithError(err))
}

// Release dispatches Release(id) to every source that implements
// ReleaseCapable, concurrently, and awaits all completions. Per-source
// failures are captured as source.release.failed events for diagnostic
// attribution, and are also joined into the returned error so the caller
// (PoolManager.Discard) can raise its own proxy.release.failed event — an
// item's true origin may be unknown by the time of discard, and vendor
// release endpoints are expected to be idempotent, but the caller still
// needs to know at least one release failed.
func (o *Orchestrator) Release(ctx context.Context, id string) error {
	l := logger.WithComponent("orchestrator")
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var errs []error

	for _, src := range o.sources {
		rc, ok := src.(source.ReleaseCapable)
		if !ok {
			continue
		}
		src := src
		g.Go(func() error {
			if err := rc.Release(gctx, id); err != nil {
				wrapped := &source.ReleaseError{SourceTag: src.Tag(), Cause: err}
				l.Warn().Err(wrapped).Str("source", src.Tag()).Str("proxy_id", id).Msg("source release failed")
				if o.bus != nil {
					o.bus.Publish(events.New(events.SourceReleaseFailed).WithSource(src.Tag()).WithError(wrapped).WithField("proxy_id", id))
				}
				mu.Lock()
				errs = append(errs, wrapped)
				mu.Unlock()
			}
			return nil
		})
	}

	// Wait only blocks until every dispatch has completed (or ctx
	// cancellation unwinds gctx early); per-source errors never fail g
	// itself, they are collected into errs above.
	_ = g.Wait()
	return errors.Join(errs...)
}

// Health attempts Fetch(1) against every source and reports its status.
// Diagnostic only; never used by the hot path.
func (o *Orchestrator) Health(ctx context.Context) []SourceHealth {
	results := make([]SourceHealth, len(o.sources))

	var g errgroup.Group
	for i, src := range o.sources {
		i, src := i, src
		g.Go(func() error {
			probedAt := time.Now()
			_, err := src.Fetch(ctx, 1)
			h := SourceHealth{SourceTag: src.Tag(), ProbedAt: probedAt, Healthy: err == nil}
			if err != nil {
				h.Error = err.Error()
			}
			results[i] = h
			return nil
		})
	}
	_ = g.Wait()

	return results
}
