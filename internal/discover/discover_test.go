package discover

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nethserver/gitops-updater/internal/config"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestScanFindsArgoApplication(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"apps/cert-manager.yaml": `apiVersion: argoproj.io/v1alpha1
kind: Application
metadata:
  name: cert-manager
spec:
  source:
    chart: cert-manager
    repoURL: https://charts.jetstack.io
    targetRevision: 1.13.2
`,
	})

	found, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(found.ArgoApps) != 1 {
		t.Fatalf("found %d argo apps, want 1", len(found.ArgoApps))
	}
	app := found.ArgoApps[0]
	if app.Name != "cert-manager" || app.RepoURL != "https://charts.jetstack.io" {
		t.Errorf("app = %+v", app)
	}
	if app.File != filepath.Join("apps", "cert-manager.yaml") {
		t.Errorf("file = %s", app.File)
	}
}

func TestScanFindsWorkloadImages(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"deploy.yaml": `apiVersion: apps/v1
kind: Deployment
spec:
  template:
    spec:
      initContainers:
        - name: migrate
          image: ghcr.io/acme/migrate:2.1.0
      containers:
        - name: db
          image: postgres:18.1-alpine3.22
        - name: sidecar
          image: envoy:latest
`,
	})

	found, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(found.DockerImages) != 2 {
		t.Fatalf("found %d images, want 2 (latest must be skipped): %+v", len(found.DockerImages), found.DockerImages)
	}

	// Sorted by ID: db/library/postgres before migrate/acme/migrate.
	db := found.DockerImages[0]
	if db.Registry != "dockerhub" || db.Repository != "library/postgres" {
		t.Errorf("db entry = %+v", db)
	}
	if len(db.YAMLPath) != 6 || db.YAMLPath[4] != 0 {
		t.Errorf("db yamlPath = %v", db.YAMLPath)
	}

	migrate := found.DockerImages[1]
	if migrate.Registry != "ghcr.io" || migrate.Repository != "acme/migrate" {
		t.Errorf("migrate entry = %+v", migrate)
	}
}

func TestScanConsolidatesChartsAcrossFiles(t *testing.T) {
	kustomization := `helmCharts:
  - name: ingress-nginx
    repo: https://kubernetes.github.io/ingress-nginx
    version: 4.9.0
`
	dir := writeTree(t, map[string]string{
		"env/dev/kustomization.yaml":  kustomization,
		"env/prod/kustomization.yaml": kustomization,
	})

	found, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(found.KustomizeHelmCharts) != 1 {
		t.Fatalf("found %d chart entries, want 1 consolidated: %+v", len(found.KustomizeHelmCharts), found.KustomizeHelmCharts)
	}
	if len(found.KustomizeHelmCharts[0].Files) != 2 {
		t.Errorf("files = %v", found.KustomizeHelmCharts[0].Files)
	}
}

func TestScanFindsChartDependencies(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"charts/platform/Chart.yaml": `apiVersion: v2
name: platform
version: 0.1.0
dependencies:
  - name: redis
    version: 18.6.1
    repository: https://charts.bitnami.com/bitnami
`,
	})

	found, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(found.ChartDependencies) != 1 || found.ChartDependencies[0].Name != "redis" {
		t.Fatalf("deps = %+v", found.ChartDependencies)
	}
}

func TestMergePreservesCuratedConfig(t *testing.T) {
	existing := &config.Config{
		DockerImages: []config.ImageEntry{{
			ID: "db/library/postgres", Registry: "dockerhub", Repository: "library/postgres",
			File: "curated.yaml", YAMLPath: []any{"image"},
		}},
		Ignore: config.IgnoreConfig{
			DockerImages: []config.IgnoreRule{{ID: "db/library/postgres"}},
		},
	}
	found := &config.Config{
		DockerImages: []config.ImageEntry{
			{ID: "db/library/postgres", File: "found.yaml"},
			{ID: "cache/library/redis", Registry: "dockerhub", Repository: "library/redis",
				File: "deploy.yaml", YAMLPath: []any{"image"}},
		},
	}

	added := Merge(existing, found)
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	// The curated entry keeps its file; the ignore rules are untouched.
	if existing.DockerImages[0].File != "curated.yaml" {
		t.Errorf("curated entry replaced: %+v", existing.DockerImages[0])
	}
	if len(existing.Ignore.DockerImages) != 1 {
		t.Errorf("ignore rules disturbed: %+v", existing.Ignore)
	}
	if len(existing.DockerImages) != 2 {
		t.Errorf("new entry not added: %+v", existing.DockerImages)
	}
}

func TestParseImageRef(t *testing.T) {
	tests := []struct {
		image      string
		registry   string
		repository string
		tag        string
	}{
		{"postgres:18.1-alpine3.22", "dockerhub", "library/postgres", "18.1-alpine3.22"},
		{"bitnami/redis:7.2.4", "dockerhub", "bitnami/redis", "7.2.4"},
		{"ghcr.io/acme/app:1.0.0", "ghcr.io", "acme/app", "1.0.0"},
		{"quay.io/org/tool:2.0", "quay.io", "org/tool", "2.0"},
		{"registry.example.com/team/app:3.1.4", "registry.example.com", "team/app", "3.1.4"},
		{"docker.io/library/nginx:1.25.0", "dockerhub", "library/nginx", "1.25.0"},
		{"nginx", "dockerhub", "library/nginx", ""},
	}
	for _, tt := range tests {
		registryType, repository, tag := parseImageRef(tt.image)
		if registryType != tt.registry || repository != tt.repository || tag != tt.tag {
			t.Errorf("parseImageRef(%q) = %s/%s:%s, want %s/%s:%s",
				tt.image, registryType, repository, tag, tt.registry, tt.repository, tt.tag)
		}
	}
}
