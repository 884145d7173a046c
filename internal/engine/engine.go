// Package engine orchestrates one update run: ignore filtering, tag
// listing under the concurrency limiter, version resolution and file
// patching, collected into a deterministic report. Charts are processed
// before images, matching the order in which a cluster consumes the
// changes.
package engine

import (
	"context"
	"errors"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/nethserver/gitops-updater/internal/config"
	"github.com/nethserver/gitops-updater/internal/ignore"
	"github.com/nethserver/gitops-updater/internal/inventory"
	"github.com/nethserver/gitops-updater/internal/limiter"
	"github.com/nethserver/gitops-updater/internal/metrics"
	"github.com/nethserver/gitops-updater/internal/patch"
	"github.com/nethserver/gitops-updater/internal/registry"
	"github.com/nethserver/gitops-updater/internal/report"
	"github.com/nethserver/gitops-updater/internal/resolver"
)

// Event is one progress notification, emitted as items start and finish.
type Event struct {
	ItemID string        `json:"itemId"`
	Stage  string        `json:"stage"` // "resolving" or "done"
	Status report.Status `json:"status,omitempty"`
	From   string        `json:"from,omitempty"`
	To     string        `json:"to,omitempty"`
}

// Engine runs the update pipeline. Client constructors are injectable so
// tests run against fakes instead of live registries.
type Engine struct {
	limiter *limiter.Limiter
	patcher *patch.Patcher
	rules   *ignore.Rules

	// ImageClient and ChartClient build the listing client for an item.
	// Both default to the real implementations.
	ImageClient func(registryType string) registry.Client
	ChartClient func(repoURL string) registry.Client

	// OnProgress, when set, receives an Event as each item starts and
	// finishes. It is called from worker goroutines.
	OnProgress func(Event)

	mu     sync.Mutex // guards client caches and the report
	images map[string]registry.Client
	charts map[string]registry.Client
}

// New builds an Engine from the run configuration.
func New(cfg *config.Config, creds config.Credentials, patcher *patch.Patcher) *Engine {
	limits := cfg.LimitsFor(creds)
	maxPages := cfg.Registries.MaxPages

	return &Engine{
		limiter: limiter.New(limits, cfg.Registries.DefaultLimit, cfg.Registries.GlobalWorkers),
		patcher: patcher,
		rules:   ignore.Compile(cfg.Ignore),
		ImageClient: func(registryType string) registry.Client {
			return registry.New(registryType, creds[registryType], maxPages)
		},
		ChartClient: registry.NewHelmRepoClient,
		images:      make(map[string]registry.Client),
		charts:      make(map[string]registry.Client),
	}
}

// Run processes every item and returns the sorted report. Inventory
// problems are recorded as failed outcomes without touching the network.
func (e *Engine) Run(ctx context.Context, items []inventory.Item, problems []inventory.Problem) *report.Report {
	rep := &report.Report{Started: time.Now(), DryRun: e.patcher.DryRun}

	for _, p := range problems {
		e.record(rep, report.Outcome{
			ItemID:    p.ID,
			Kind:      string(p.Kind),
			Status:    report.StatusFailed,
			Reason:    p.Reason + ": " + p.Err.Error(),
			ErrorKind: "IO",
		})
	}

	var chartItems, imageItems []inventory.Item
	for _, item := range items {
		if item.Kind == inventory.KindChart {
			chartItems = append(chartItems, item)
		} else {
			imageItems = append(imageItems, item)
		}
	}

	rep.HelmTime = e.phase(ctx, rep, chartItems)
	rep.ImgTime = e.phase(ctx, rep, imageItems)

	metrics.RunDuration.WithLabelValues("helm").Observe(rep.HelmTime.Seconds())
	metrics.RunDuration.WithLabelValues("images").Observe(rep.ImgTime.Seconds())

	majors := 0
	for _, o := range rep.Outcomes {
		if o.Major != nil {
			majors++
		}
	}
	metrics.MajorAvailable.Set(float64(majors))

	rep.Sort()
	return rep
}

func (e *Engine) phase(ctx context.Context, rep *report.Report, items []inventory.Item) time.Duration {
	started := time.Now()
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(item inventory.Item) {
			defer wg.Done()
			if outcome := e.processItem(ctx, item); outcome != nil {
				e.record(rep, *outcome)
			}
		}(items[i])
	}
	wg.Wait()
	return time.Since(started)
}

// processItem runs the full pipeline for one item. The ignore check
// comes first so an excluded item never costs a registry call. A nil
// return means the run was cancelled before the item resolved; such
// items are absent from the report rather than marked failed.
func (e *Engine) processItem(ctx context.Context, item inventory.Item) *report.Outcome {
	outcome := &report.Outcome{ItemID: item.ID, Kind: string(item.Kind), From: item.Current}

	if ignored, reason := e.itemIgnored(item); ignored {
		outcome.Status = report.StatusIgnored
		outcome.Reason = reason
		return outcome
	}

	cancelled := false
	e.progress(Event{ItemID: item.ID, Stage: "resolving", From: item.Current})
	defer func() {
		if !cancelled {
			e.progress(Event{ItemID: item.ID, Stage: "done", Status: outcome.Status, From: outcome.From, To: outcome.To})
		}
	}()

	listing, err := e.list(ctx, item)
	if err != nil {
		if ctx.Err() != nil {
			cancelled = true
			return nil
		}
		kind := registry.Kind(err)
		metrics.RegistryErrors.WithLabelValues(e.gateKey(item), kind).Inc()
		log.Printf("[ERROR] %s: listing versions failed: %v", item.ID, err)
		outcome.Status = report.StatusFailed
		outcome.Reason = "listing versions failed"
		outcome.ErrorKind = kind
		return outcome
	}
	if listing.Truncated {
		log.Printf("[WARN] %s: tag listing truncated at the page cap", item.ID)
	}

	result := resolver.Resolve(item.ID, item.Current, item.Kind == inventory.KindChart,
		listing.Candidates, e.versionIgnored(item))
	outcome.Major = result.Major

	if result.Status != resolver.StatusUpdated {
		outcome.Status = report.StatusUpToDate
		return outcome
	}

	for _, target := range item.Targets {
		if _, err := e.patcher.Apply(target.File, target.Path, result.NewTag); err != nil {
			log.Printf("[ERROR] %s: patching %s failed: %v", item.ID, target.File, err)
			outcome.Status = report.StatusFailed
			outcome.Reason = "patching " + target.File + " failed"
			outcome.ErrorKind = patchErrorKind(err)
			return outcome
		}
		outcome.Files = append(outcome.Files, target.File)
	}

	outcome.Status = report.StatusUpdated
	outcome.To = result.NewTag
	return outcome
}

func (e *Engine) itemIgnored(item inventory.Item) (bool, string) {
	if item.Kind == inventory.KindImage {
		return e.rules.ImageIgnored(item.ID, item.Repository)
	}
	return e.rules.ChartIgnored(item.Name)
}

// versionIgnored returns the candidate blacklist predicate for the item.
func (e *Engine) versionIgnored(item inventory.Item) func(string) bool {
	if item.Kind == inventory.KindImage {
		return func(tag string) bool { return e.rules.ImageVersionIgnored(item.Repository, tag) }
	}
	return func(v string) bool { return e.rules.ChartVersionIgnored(item.Name, v) }
}

func (e *Engine) list(ctx context.Context, item inventory.Item) (*registry.Listing, error) {
	client := e.client(item)
	repository := item.Repository
	if item.Kind == inventory.KindChart {
		repository = item.Name
	}

	var listing *registry.Listing
	err := e.limiter.Do(ctx, e.gateKey(item), func(ctx context.Context) error {
		var err error
		listing, err = client.ListTags(ctx, repository)
		return err
	})
	return listing, err
}

// client returns the cached listing client for the item's upstream,
// creating it on first use.
func (e *Engine) client(item inventory.Item) registry.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	if item.Kind == inventory.KindImage {
		c, ok := e.images[item.Registry]
		if !ok {
			c = e.ImageClient(item.Registry)
			e.images[item.Registry] = c
		}
		return c
	}
	c, ok := e.charts[item.RepoURL]
	if !ok {
		c = e.ChartClient(item.RepoURL)
		e.charts[item.RepoURL] = c
	}
	return c
}

// gateKey names the limiter gate: the registry type for images, the
// repository host for charts.
func (e *Engine) gateKey(item inventory.Item) string {
	if item.Kind == inventory.KindImage {
		return item.Registry
	}
	if u, err := url.Parse(item.RepoURL); err == nil && u.Host != "" {
		return u.Host
	}
	return item.RepoURL
}

func (e *Engine) record(rep *report.Report, outcome report.Outcome) {
	e.mu.Lock()
	rep.Add(outcome)
	e.mu.Unlock()
	metrics.ItemsProcessed.WithLabelValues(outcome.Kind, string(outcome.Status)).Inc()
}

func (e *Engine) progress(event Event) {
	if e.OnProgress != nil {
		e.OnProgress(event)
	}
}

func patchErrorKind(err error) string {
	switch {
	case errors.Is(err, patch.ErrPathNotFound):
		return "PathNotFound"
	case errors.Is(err, patch.ErrTypeMismatch):
		return "TypeMismatch"
	case errors.Is(err, patch.ErrIO):
		return "IO"
	}
	return "Unknown"
}
