// Package limiter bounds the concurrency of registry calls and retries
// transient failures. Limits are explicit owned semaphores injected at
// construction, never process-wide state, so tests can run with fake
// bounds.
package limiter

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nethserver/gitops-updater/internal/metrics"
	"github.com/nethserver/gitops-updater/internal/registry"
)

// Limiter wraps registry calls with a per-registry concurrency bound, a
// global in-flight cap and bounded retry on transient failures.
type Limiter struct {
	global      *semaphore.Weighted
	perRegistry map[string]*semaphore.Weighted
	defaultCap  int64

	mu sync.Mutex // guards lazily created semaphores for unknown registries

	// Retry knobs. Attempts counts the first try; BaseDelay doubles each
	// attempt and gets up to itself again in jitter.
	Attempts  int
	BaseDelay time.Duration
}

// New builds a Limiter from static per-registry bounds and a global cap.
func New(limits map[string]int64, defaultLimit, globalCap int64) *Limiter {
	perRegistry := make(map[string]*semaphore.Weighted, len(limits))
	for name, limit := range limits {
		if limit <= 0 {
			limit = 1
		}
		perRegistry[name] = semaphore.NewWeighted(limit)
	}
	return &Limiter{
		global:      semaphore.NewWeighted(globalCap),
		perRegistry: perRegistry,
		defaultCap:  defaultLimit,
		Attempts:    4,
		BaseDelay:   2 * time.Second,
	}
}

func (l *Limiter) gate(registryType string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	gate, ok := l.perRegistry[registryType]
	if !ok {
		gate = semaphore.NewWeighted(l.defaultCap)
		l.perRegistry[registryType] = gate
	}
	return gate
}

// Do runs fn under the registry's concurrency bound and the global cap,
// retrying transient failures with exponential backoff and jitter. Any
// other failure class is terminal on the first occurrence.
func (l *Limiter) Do(ctx context.Context, registryType string, fn func(context.Context) error) error {
	if err := l.global.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.global.Release(1)

	gate := l.gate(registryType)
	if err := gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer gate.Release(1)

	var err error
	for attempt := 0; attempt < l.Attempts; attempt++ {
		if attempt > 0 {
			delay := l.BaseDelay << (attempt - 1)
			delay += time.Duration(rand.Int63n(int64(delay) + 1))
			metrics.RegistryRetries.WithLabelValues(registryType).Inc()
			log.Printf("[WARN] %s: transient failure, retrying in %s (attempt %d/%d)",
				registryType, delay.Round(time.Millisecond), attempt+1, l.Attempts)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = fn(ctx)
		if err == nil || !registry.IsTransient(err) {
			return err
		}
	}
	return err
}
