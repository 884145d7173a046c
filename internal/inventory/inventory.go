// Package inventory materializes the configured images and charts into
// resolvable items by reading each current version out of its target
// file. An entry whose file or path cannot be read becomes a Problem
// instead of aborting the run.
package inventory

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nethserver/gitops-updater/internal/config"
	"github.com/nethserver/gitops-updater/internal/patch"
	"github.com/nethserver/gitops-updater/internal/version"
)

// Kind distinguishes the two item categories.
type Kind string

const (
	KindImage Kind = "image"
	KindChart Kind = "chart"
)

// Target is one file location holding the item's version.
type Target struct {
	File string
	Path patch.Path
}

// Item is one resolvable unit of the run: a tracked image or chart with
// its current version and every file location that carries it.
type Item struct {
	ID   string
	Kind Kind
	// Name is the bare chart name, without the ID prefix. Empty for
	// images.
	Name       string
	Registry   string // images only
	Repository string // images only
	RepoURL    string // charts only
	Current    string
	Variant    string
	Targets    []Target
}

// Problem records an entry that could not be materialized.
type Problem struct {
	ID     string
	Kind   Kind
	Reason string
	Err    error
}

// Load builds the item list from the config. Every target file is read
// through the patcher so the value actually present in the tree is the
// one resolved, not whatever the config was generated from.
func Load(cfg *config.Config, patcher *patch.Patcher) ([]Item, []Problem) {
	var items []Item
	var problems []Problem

	for _, entry := range cfg.DockerImages {
		item, err := loadImage(entry, patcher)
		if err != nil {
			problems = append(problems, Problem{ID: entry.ID, Kind: KindImage, Reason: "unreadable target", Err: err})
			continue
		}
		items = append(items, *item)
	}

	for _, entry := range cfg.ArgoApps {
		item, err := loadArgoApp(entry, patcher)
		if err != nil {
			problems = append(problems, Problem{ID: "argo/" + entry.Name, Kind: KindChart, Reason: "unreadable target", Err: err})
			continue
		}
		items = append(items, *item)
	}

	for _, entry := range cfg.KustomizeHelmCharts {
		item, err := loadChartFiles("kustomize/"+entry.Name, entry, patcher, kustomizeChartPath)
		if err != nil {
			problems = append(problems, Problem{ID: "kustomize/" + entry.Name, Kind: KindChart, Reason: "unreadable target", Err: err})
			continue
		}
		items = append(items, *item)
	}

	for _, entry := range cfg.ChartDependencies {
		item, err := loadChartFiles("chartdep/"+entry.Name, entry, patcher, dependencyPath)
		if err != nil {
			problems = append(problems, Problem{ID: "chartdep/" + entry.Name, Kind: KindChart, Reason: "unreadable target", Err: err})
			continue
		}
		items = append(items, *item)
	}

	return items, problems
}

func loadImage(entry config.ImageEntry, patcher *patch.Patcher) (*Item, error) {
	path, err := patch.PathFromAny(entry.YAMLPath)
	if err != nil {
		return nil, fmt.Errorf("bad yamlPath for %s: %w", entry.ID, err)
	}
	value, err := patcher.ReadValue(entry.File, path)
	if err != nil {
		return nil, err
	}

	// The scalar may be a full image reference; only the tag after the
	// last colon is the version.
	tag := value
	if i := strings.LastIndex(value, ":"); i >= 0 {
		tag = value[i+1:]
	}
	if tag == "" {
		return nil, fmt.Errorf("%s: image reference %q has no tag: %w", entry.ID, value, patch.ErrPathNotFound)
	}

	return &Item{
		ID:         entry.ID,
		Kind:       KindImage,
		Registry:   entry.Registry,
		Repository: entry.Repository,
		Current:    tag,
		Variant:    version.ExtractVariant(tag),
		Targets:    []Target{{File: entry.File, Path: path}},
	}, nil
}

func loadArgoApp(entry config.ChartEntry, patcher *patch.Patcher) (*Item, error) {
	path := patch.Path{patch.Key("spec"), patch.Key("source"), patch.Key("targetRevision")}
	value, err := patcher.ReadValue(entry.File, path)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, fmt.Errorf("%s: empty targetRevision: %w", entry.Name, patch.ErrPathNotFound)
	}
	return &Item{
		ID:      "argo/" + entry.Name,
		Kind:    KindChart,
		Name:    entry.Name,
		RepoURL: entry.RepoURL,
		Current: value,
		Targets: []Target{{File: entry.File, Path: path}},
	}, nil
}

// loadChartFiles handles the multi-file chart entries: the same chart
// may be pinned in several kustomizations or Chart.yaml files, and all
// locations must agree on the version before it is resolved once.
func loadChartFiles(id string, entry config.ChartFilesEntry, patcher *patch.Patcher, locate func(file, name string) (patch.Path, error)) (*Item, error) {
	item := &Item{ID: id, Kind: KindChart, Name: entry.Name, RepoURL: entry.RepoURL}

	for _, file := range entry.Files {
		path, err := locate(file, entry.Name)
		if err != nil {
			return nil, err
		}
		value, err := patcher.ReadValue(file, path)
		if err != nil {
			return nil, err
		}
		if item.Current == "" {
			item.Current = value
		} else if item.Current != value {
			return nil, fmt.Errorf("%s: version mismatch across files (%q in %s vs %q)",
				id, item.Current, file, value)
		}
		item.Targets = append(item.Targets, Target{File: file, Path: path})
	}
	if item.Current == "" {
		return nil, fmt.Errorf("%s: empty version: %w", id, patch.ErrPathNotFound)
	}
	return item, nil
}

// kustomizeChartPath finds the helmCharts entry with the given name and
// returns the path to its version field.
func kustomizeChartPath(file, name string) (patch.Path, error) {
	index, err := namedEntryIndex(file, "helmCharts", name)
	if err != nil {
		return nil, err
	}
	return patch.Path{patch.Key("helmCharts"), patch.Index(index), patch.Key("version")}, nil
}

// dependencyPath finds the Chart.yaml dependencies entry with the given
// name and returns the path to its version field.
func dependencyPath(file, name string) (patch.Path, error) {
	index, err := namedEntryIndex(file, "dependencies", name)
	if err != nil {
		return nil, err
	}
	return patch.Path{patch.Key("dependencies"), patch.Index(index), patch.Key("version")}, nil
}

func namedEntryIndex(file, listKey, name string) (int, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %v: %w", file, err, patch.ErrIO)
	}
	var doc struct {
		HelmCharts   []struct{ Name string } `yaml:"helmCharts"`
		Dependencies []struct{ Name string } `yaml:"dependencies"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("failed to parse %s: %v: %w", file, err, patch.ErrIO)
	}

	list := doc.HelmCharts
	if listKey == "dependencies" {
		list = doc.Dependencies
	}
	for i, entry := range list {
		if entry.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no %s entry named %q in %s: %w", listKey, name, file, patch.ErrPathNotFound)
}
