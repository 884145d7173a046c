// Package discover walks a gitops tree and finds trackable items: Argo
// CD Applications pinning charts, kustomization helmCharts, Chart.yaml
// dependencies and container images in workload manifests. The result
// merges into an existing config without disturbing ignore rules or
// entries the user already curated.
package discover

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nethserver/gitops-updater/internal/config"
)

// Known registry hosts mapped to their registry type tag. Images without
// a host prefix live on Docker Hub.
var registryHosts = map[string]string{
	"docker.io":       "dockerhub",
	"ghcr.io":         "ghcr.io",
	"quay.io":         "quay.io",
	"gcr.io":          "gcr.io",
	"registry.k8s.io": "registry.k8s.io",
}

// Scan walks dir and returns everything trackable it finds. Unreadable
// or unparseable files log a warning and are skipped.
func Scan(dir string) (*config.Config, error) {
	found := &config.Config{}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if name == ".git" || strings.HasPrefix(name, "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isYAML(d.Name()) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[WARN] skipping unreadable file %s: %v", path, err)
			return nil
		}
		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			relPath = path
		}
		scanFile(found, relPath, d.Name(), data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The same chart may appear in several files; collapse those into one
	// entry carrying every location.
	found.KustomizeHelmCharts = consolidate(found.KustomizeHelmCharts)
	found.ChartDependencies = consolidate(found.ChartDependencies)

	sortEntries(found)
	return found, nil
}

func consolidate(entries []config.ChartFilesEntry) []config.ChartFilesEntry {
	var out []config.ChartFilesEntry
	mergeChartFiles(&out, entries)
	return out
}

// Merge adds entries from found that the existing config does not carry
// yet. Curated entries, ignore rules and run settings stay untouched.
func Merge(existing, found *config.Config) int {
	added := 0

	imageIDs := make(map[string]bool)
	for _, entry := range existing.DockerImages {
		imageIDs[entry.ID] = true
	}
	for _, entry := range found.DockerImages {
		if !imageIDs[entry.ID] {
			existing.DockerImages = append(existing.DockerImages, entry)
			imageIDs[entry.ID] = true
			added++
		}
	}

	argoNames := make(map[string]bool)
	for _, entry := range existing.ArgoApps {
		argoNames[entry.Name] = true
	}
	for _, entry := range found.ArgoApps {
		if !argoNames[entry.Name] {
			existing.ArgoApps = append(existing.ArgoApps, entry)
			argoNames[entry.Name] = true
			added++
		}
	}

	added += mergeChartFiles(&existing.KustomizeHelmCharts, found.KustomizeHelmCharts)
	added += mergeChartFiles(&existing.ChartDependencies, found.ChartDependencies)
	return added
}

func mergeChartFiles(existing *[]config.ChartFilesEntry, found []config.ChartFilesEntry) int {
	added := 0
	byName := make(map[string]int)
	for i, entry := range *existing {
		byName[entry.Name] = i
	}
	for _, entry := range found {
		i, ok := byName[entry.Name]
		if !ok {
			*existing = append(*existing, entry)
			byName[entry.Name] = len(*existing) - 1
			added++
			continue
		}
		// Known chart: only learn new file locations.
		known := make(map[string]bool)
		for _, file := range (*existing)[i].Files {
			known[file] = true
		}
		for _, file := range entry.Files {
			if !known[file] {
				(*existing)[i].Files = append((*existing)[i].Files, file)
				added++
			}
		}
	}
	return added
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func scanFile(found *config.Config, relPath, baseName string, data []byte) {
	var doc struct {
		APIVersion string `yaml:"apiVersion"`
		Kind       string `yaml:"kind"`
		Spec       struct {
			Source struct {
				Chart          string `yaml:"chart"`
				RepoURL        string `yaml:"repoURL"`
				TargetRevision string `yaml:"targetRevision"`
			} `yaml:"source"`
			Template struct {
				Spec podSpec `yaml:"spec"`
			} `yaml:"template"`
		} `yaml:"spec"`
		HelmCharts []struct {
			Name    string `yaml:"name"`
			Repo    string `yaml:"repo"`
			Version string `yaml:"version"`
		} `yaml:"helmCharts"`
		Dependencies []struct {
			Name       string `yaml:"name"`
			Repository string `yaml:"repository"`
			Version    string `yaml:"version"`
		} `yaml:"dependencies"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		log.Printf("[WARN] skipping unparseable file %s: %v", relPath, err)
		return
	}

	if doc.Kind == "Application" && doc.Spec.Source.Chart != "" && doc.Spec.Source.TargetRevision != "" {
		found.ArgoApps = append(found.ArgoApps, config.ChartEntry{
			Name:    doc.Spec.Source.Chart,
			RepoURL: doc.Spec.Source.RepoURL,
			File:    relPath,
		})
	}

	for _, chart := range doc.HelmCharts {
		if chart.Name == "" || chart.Version == "" {
			continue
		}
		found.KustomizeHelmCharts = append(found.KustomizeHelmCharts, config.ChartFilesEntry{
			Name:    chart.Name,
			RepoURL: chart.Repo,
			Files:   []string{relPath},
		})
	}

	if baseName == "Chart.yaml" {
		for _, dep := range doc.Dependencies {
			if dep.Name == "" || dep.Version == "" {
				continue
			}
			found.ChartDependencies = append(found.ChartDependencies, config.ChartFilesEntry{
				Name:    dep.Name,
				RepoURL: dep.Repository,
				Files:   []string{relPath},
			})
		}
	}

	scanWorkloadImages(found, relPath, data)
}

type podSpec struct {
	Containers     []container `yaml:"containers"`
	InitContainers []container `yaml:"initContainers"`
}

type container struct {
	Name  string `yaml:"name"`
	Image string `yaml:"image"`
}

// scanWorkloadImages finds container images in Deployment-shaped
// manifests and records the exact path to each image scalar.
func scanWorkloadImages(found *config.Config, relPath string, data []byte) {
	var doc struct {
		Kind string `yaml:"kind"`
		Spec struct {
			Template struct {
				Spec podSpec `yaml:"spec"`
			} `yaml:"template"`
		} `yaml:"spec"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return
	}
	switch doc.Kind {
	case "Deployment", "StatefulSet", "DaemonSet", "Job", "CronJob":
	default:
		return
	}

	spec := doc.Spec.Template.Spec
	for i, c := range spec.Containers {
		addImage(found, relPath, c,
			[]any{"spec", "template", "spec", "containers", i, "image"})
	}
	for i, c := range spec.InitContainers {
		addImage(found, relPath, c,
			[]any{"spec", "template", "spec", "initContainers", i, "image"})
	}
}

func addImage(found *config.Config, relPath string, c container, yamlPath []any) {
	registryType, repository, tag := parseImageRef(c.Image)
	if tag == "" || tag == "latest" {
		return
	}
	found.DockerImages = append(found.DockerImages, config.ImageEntry{
		ID:         c.Name + "/" + repository,
		Registry:   registryType,
		Repository: repository,
		File:       relPath,
		YAMLPath:   yamlPath,
	})
}

// parseImageRef splits an image reference into registry type, repository
// and tag. A bare repository without a slash is a Docker Hub library
// image.
func parseImageRef(image string) (registryType, repository, tag string) {
	if i := strings.LastIndex(image, ":"); i > strings.LastIndex(image, "/") {
		tag = image[i+1:]
		image = image[:i]
	}

	registryType = "dockerhub"
	parts := strings.SplitN(image, "/", 2)
	if len(parts) == 2 {
		if mapped, ok := registryHosts[parts[0]]; ok {
			registryType = mapped
			repository = parts[1]
			return registryType, repository, tag
		}
		if strings.Contains(parts[0], ".") {
			// Unknown host, served by the generic V2 client.
			registryType = parts[0]
			repository = parts[1]
			return registryType, repository, tag
		}
		repository = image
		return registryType, repository, tag
	}
	repository = "library/" + image
	return registryType, repository, tag
}

func sortEntries(cfg *config.Config) {
	sort.Slice(cfg.DockerImages, func(i, j int) bool {
		return cfg.DockerImages[i].ID < cfg.DockerImages[j].ID
	})
	sort.Slice(cfg.ArgoApps, func(i, j int) bool {
		return cfg.ArgoApps[i].Name < cfg.ArgoApps[j].Name
	})
	sort.Slice(cfg.KustomizeHelmCharts, func(i, j int) bool {
		return cfg.KustomizeHelmCharts[i].Name < cfg.KustomizeHelmCharts[j].Name
	})
	sort.Slice(cfg.ChartDependencies, func(i, j int) bool {
		return cfg.ChartDependencies[i].Name < cfg.ChartDependencies[j].Name
	})
}
