package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the inventory config lives inside the repository.
const DefaultPath = ".update-config.yaml"

// Config is the declarative inventory of trackable images and charts,
// plus the ignore rules and run settings.
type Config struct {
	DockerImages        []ImageEntry      `yaml:"dockerImages"`
	ArgoApps            []ChartEntry      `yaml:"argoApps"`
	KustomizeHelmCharts []ChartFilesEntry `yaml:"kustomizeHelmCharts"`
	ChartDependencies   []ChartFilesEntry `yaml:"chartDependencies"`
	Ignore              IgnoreConfig      `yaml:"ignore"`
	Registries          RegistrySettings  `yaml:"registries"`
	Git                 GitConfig         `yaml:"git"`
	Notify              NotifyConfig      `yaml:"notify"`
}

// ImageEntry is one tracked container image reference.
type ImageEntry struct {
	ID         string `yaml:"id"`
	Registry   string `yaml:"registry"`
	Repository string `yaml:"repository"`
	File       string `yaml:"file"`
	// YAMLPath locates the image string inside the file: a sequence of
	// mapping keys and sequence indices.
	YAMLPath []any `yaml:"yamlPath"`
}

// ChartEntry is one Argo CD Application referencing a Helm chart.
type ChartEntry struct {
	Name    string `yaml:"name"`
	RepoURL string `yaml:"repoUrl"`
	File    string `yaml:"file"`
}

// ChartFilesEntry is a chart referenced from one or more files, either as
// a kustomization helmCharts entry or a Chart.yaml dependency.
type ChartFilesEntry struct {
	Name    string   `yaml:"name"`
	RepoURL string   `yaml:"repoUrl"`
	Files   []string `yaml:"files"`
}

// IgnoreRule excludes an item or specific candidate versions. ID,
// Repository and Name are structural matches; TagPattern and
// VersionPattern are regular expressions applied to candidate versions.
type IgnoreRule struct {
	ID             string `yaml:"id,omitempty"`
	Repository     string `yaml:"repository,omitempty"`
	TagPattern     string `yaml:"tagPattern,omitempty"`
	Name           string `yaml:"name,omitempty"`
	VersionPattern string `yaml:"versionPattern,omitempty"`
}

// IgnoreConfig groups ignore rules by item category.
type IgnoreConfig struct {
	DockerImages []IgnoreRule `yaml:"dockerImages"`
	HelmCharts   []IgnoreRule `yaml:"helmCharts"`
}

// RegistrySettings bounds the work the run may put on upstream APIs.
type RegistrySettings struct {
	// Limits is the number of concurrent in-flight requests per registry
	// type. Unlisted registries get DefaultLimit.
	Limits       map[string]int64 `yaml:"limits"`
	DefaultLimit int64            `yaml:"defaultLimit"`
	// GlobalWorkers caps concurrent item resolution across all registries.
	GlobalWorkers int64 `yaml:"globalWorkers"`
	// MaxPages caps pagination per listing; a capped listing is marked
	// truncated, not failed.
	MaxPages int `yaml:"maxPages"`
}

// GitConfig drives the optional post-run commit of applied updates.
type GitConfig struct {
	Branch      string `yaml:"branch"`
	AuthorName  string `yaml:"authorName"`
	AuthorEmail string `yaml:"authorEmail"`
	Push        bool   `yaml:"push"`
}

// NotifyConfig drives the optional post-run webhook delivery.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhookUrl"`
}

// Default per-registry concurrency bounds, chosen to stay well under the
// anonymous rate limits of each API. Docker Hub is the most restrictive.
func defaultLimits() map[string]int64 {
	return map[string]int64{
		"dockerhub":       3,
		"ghcr.io":         10,
		"quay.io":         5,
		"gcr.io":          5,
		"registry.k8s.io": 5,
	}
}

// Load reads and validates the config file. A missing or unparseable file
// is the one run-fatal error class of the whole tool.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Registries.Limits == nil {
		c.Registries.Limits = defaultLimits()
	} else {
		for registry, limit := range defaultLimits() {
			if _, ok := c.Registries.Limits[registry]; !ok {
				c.Registries.Limits[registry] = limit
			}
		}
	}
	if c.Registries.DefaultLimit <= 0 {
		c.Registries.DefaultLimit = 5
	}
	if c.Registries.GlobalWorkers <= 0 {
		c.Registries.GlobalWorkers = 10
	}
	if c.Registries.MaxPages <= 0 {
		c.Registries.MaxPages = 10
	}
	if c.Git.Branch == "" {
		c.Git.Branch = "updater"
	}
	for i := range c.DockerImages {
		if c.DockerImages[i].Registry == "" {
			c.DockerImages[i].Registry = "dockerhub"
		}
	}
}

// Validate checks the structural invariants of the inventory: every entry
// names its file locations, and image IDs are unique.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, img := range c.DockerImages {
		if img.ID == "" {
			return fmt.Errorf("dockerImages entry for %q has no id", img.Repository)
		}
		if seen[img.ID] {
			return fmt.Errorf("duplicate dockerImages id %q", img.ID)
		}
		seen[img.ID] = true
		if img.Repository == "" {
			return fmt.Errorf("dockerImages entry %q has no repository", img.ID)
		}
		if img.File == "" || len(img.YAMLPath) == 0 {
			return fmt.Errorf("dockerImages entry %q has no file target", img.ID)
		}
	}
	for _, app := range c.ArgoApps {
		if app.Name == "" || app.RepoURL == "" || app.File == "" {
			return fmt.Errorf("argoApps entry %q is incomplete", app.Name)
		}
	}
	for _, chart := range c.KustomizeHelmCharts {
		if chart.Name == "" || chart.RepoURL == "" || len(chart.Files) == 0 {
			return fmt.Errorf("kustomizeHelmCharts entry %q is incomplete", chart.Name)
		}
	}
	for _, dep := range c.ChartDependencies {
		if dep.Name == "" || dep.RepoURL == "" || len(dep.Files) == 0 {
			return fmt.Errorf("chartDependencies entry %q is incomplete", dep.Name)
		}
	}
	return nil
}

// Save writes the config back out, used by the discover command.
func Save(c *Config, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
