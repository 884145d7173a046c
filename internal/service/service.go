// Package service ties the pipeline together: config, inventory, the
// run engine, the report file, the git commit and the webhook. Both the
// CLI and the server drive runs through it.
package service

import (
	"context"
	"log"
	"path/filepath"

	"github.com/nethserver/gitops-updater/internal/config"
	"github.com/nethserver/gitops-updater/internal/engine"
	"github.com/nethserver/gitops-updater/internal/gitops"
	"github.com/nethserver/gitops-updater/internal/inventory"
	"github.com/nethserver/gitops-updater/internal/notify"
	"github.com/nethserver/gitops-updater/internal/patch"
	"github.com/nethserver/gitops-updater/internal/report"
)

// Options configure one Service.
type Options struct {
	// RepoPath is the root of the gitops tree. Config paths and patch
	// targets resolve relative to it.
	RepoPath string
	// ConfigPath overrides the default config location inside RepoPath.
	ConfigPath string
	// GitToken authenticates pushes when the config enables them.
	GitToken string
	// Commit enables the post-run git commit.
	Commit bool
	// OnProgress receives per-item progress events.
	OnProgress func(engine.Event)
}

// Service runs updates against one gitops tree.
type Service struct {
	opts  Options
	creds config.Credentials
}

// New creates a Service. Registry credentials come from the environment.
func New(opts Options) *Service {
	if opts.RepoPath == "" {
		opts.RepoPath = "."
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = filepath.Join(opts.RepoPath, config.DefaultPath)
	}
	return &Service{opts: opts, creds: config.CredentialsFromEnv()}
}

// ConfigPath returns the resolved config location.
func (s *Service) ConfigPath() string { return s.opts.ConfigPath }

// RepoPath returns the gitops tree root.
func (s *Service) RepoPath() string { return s.opts.RepoPath }

// Run executes one full update run and returns the sorted report.
func (s *Service) Run(ctx context.Context, dryRun bool) (*report.Report, error) {
	cfg, err := config.Load(s.opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	patcher := patch.NewPatcher(dryRun)
	items, problems := s.loadInventory(cfg, patcher)

	e := engine.New(cfg, s.creds, patcher)
	e.OnProgress = s.opts.OnProgress
	rep := e.Run(ctx, items, problems)

	if !dryRun {
		reportPath := filepath.Join(s.opts.RepoPath, report.DefaultFile)
		if err := rep.WriteFile(reportPath); err != nil {
			log.Printf("[ERROR] %v", err)
		}
		if s.opts.Commit && rep.Changed() {
			committer := gitops.NewCommitter(s.opts.RepoPath, s.opts.GitToken, cfg.Git)
			hash, err := committer.Commit(rep)
			if err != nil {
				log.Printf("[ERROR] commit failed: %v", err)
			} else if hash != "" {
				log.Printf("committed updates as %s on branch %s", hash, cfg.Git.Branch)
			}
		}
	}

	if cfg.Notify.WebhookURL != "" {
		if err := notify.New(cfg.Notify.WebhookURL).Send(ctx, rep); err != nil {
			log.Printf("[WARN] %v", err)
		}
	}
	return rep, nil
}

// loadInventory materializes items with file paths anchored at the repo
// root.
func (s *Service) loadInventory(cfg *config.Config, patcher *patch.Patcher) ([]inventory.Item, []inventory.Problem) {
	anchored := *cfg
	anchored.DockerImages = make([]config.ImageEntry, len(cfg.DockerImages))
	copy(anchored.DockerImages, cfg.DockerImages)
	for i := range anchored.DockerImages {
		anchored.DockerImages[i].File = s.resolve(anchored.DockerImages[i].File)
	}
	anchored.ArgoApps = make([]config.ChartEntry, len(cfg.ArgoApps))
	copy(anchored.ArgoApps, cfg.ArgoApps)
	for i := range anchored.ArgoApps {
		anchored.ArgoApps[i].File = s.resolve(anchored.ArgoApps[i].File)
	}
	anchored.KustomizeHelmCharts = resolveFiles(cfg.KustomizeHelmCharts, s.resolve)
	anchored.ChartDependencies = resolveFiles(cfg.ChartDependencies, s.resolve)

	return inventory.Load(&anchored, patcher)
}

func resolveFiles(entries []config.ChartFilesEntry, resolve func(string) string) []config.ChartFilesEntry {
	out := make([]config.ChartFilesEntry, len(entries))
	copy(out, entries)
	for i := range out {
		files := make([]string, len(out[i].Files))
		for j, file := range out[i].Files {
			files[j] = resolve(file)
		}
		out[i].Files = files
	}
	return out
}

func (s *Service) resolve(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(s.opts.RepoPath, file)
}
