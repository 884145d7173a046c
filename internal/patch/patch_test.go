package patch

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "app.yaml")
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return file
}

func readBack(t *testing.T, file string) string {
	t.Helper()
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("failed to read back %s: %v", file, err)
	}
	return string(data)
}

const deployment = `# Deployment for the demo app
apiVersion: apps/v1
kind: Deployment
metadata:
  name: demo # keep this name
spec:
  replicas: 2
  template:
    spec:
      containers:
        - name: db
          image: postgres:18.1-alpine3.22   # pinned
        - name: cache
          image: "redis:7.2.4"
`

func TestApplyPreservesEveryOtherByte(t *testing.T) {
	file := writeFixture(t, deployment)
	p := NewPatcher(false)

	path := Path{Key("spec"), Key("template"), Key("spec"), Key("containers"), Index(0), Key("image")}
	result, err := p.Apply(file, path, "18.2-alpine3.23")
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !result.Changed {
		t.Fatal("expected a change")
	}
	if result.Before != "postgres:18.1-alpine3.22" || result.After != "postgres:18.2-alpine3.23" {
		t.Errorf("unexpected result %+v", result)
	}

	want := `# Deployment for the demo app
apiVersion: apps/v1
kind: Deployment
metadata:
  name: demo # keep this name
spec:
  replicas: 2
  template:
    spec:
      containers:
        - name: db
          image: postgres:18.2-alpine3.23   # pinned
        - name: cache
          image: "redis:7.2.4"
`
	if got := readBack(t, file); got != want {
		t.Errorf("file not byte-identical outside the patched value:\n%s", got)
	}
}

func TestApplyQuotedScalar(t *testing.T) {
	file := writeFixture(t, deployment)
	p := NewPatcher(false)

	path := Path{Key("spec"), Key("template"), Key("spec"), Key("containers"), Index(1), Key("image")}
	result, err := p.Apply(file, path, "7.4.0")
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.After != "redis:7.4.0" {
		t.Errorf("After = %q, want redis:7.4.0", result.After)
	}
	got := readBack(t, file)
	if want := `image: "redis:7.4.0"`; !contains(got, want) {
		t.Errorf("quoting style not preserved, got:\n%s", got)
	}
}

func TestApplyIdempotent(t *testing.T) {
	file := writeFixture(t, deployment)
	p := NewPatcher(false)

	path := Path{Key("spec"), Key("template"), Key("spec"), Key("containers"), Index(0), Key("image")}
	result, err := p.Apply(file, path, "18.1-alpine3.22")
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Changed {
		t.Error("same version must report no change")
	}
	if got := readBack(t, file); got != deployment {
		t.Error("file must be byte-identical after a no-op patch")
	}
}

func TestApplyRoundTrip(t *testing.T) {
	file := writeFixture(t, deployment)
	p := NewPatcher(false)

	path := Path{Key("spec"), Key("template"), Key("spec"), Key("containers"), Index(0), Key("image")}
	if _, err := p.Apply(file, path, "18.2-alpine3.23"); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	value, err := p.ReadValue(file, path)
	if err != nil {
		t.Fatalf("ReadValue failed: %v", err)
	}
	if value != "postgres:18.2-alpine3.23" {
		t.Errorf("ReadValue = %q after patch", value)
	}
}

func TestTwoPathsSameFile(t *testing.T) {
	file := writeFixture(t, deployment)
	p := NewPatcher(false)

	dbPath := Path{Key("spec"), Key("template"), Key("spec"), Key("containers"), Index(0), Key("image")}
	cachePath := Path{Key("spec"), Key("template"), Key("spec"), Key("containers"), Index(1), Key("image")}

	if _, err := p.Apply(file, dbPath, "18.2-alpine3.23"); err != nil {
		t.Fatalf("first Apply failed: %v", err)
	}
	if _, err := p.Apply(file, cachePath, "7.4.0"); err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}

	db, _ := p.ReadValue(file, dbPath)
	cache, _ := p.ReadValue(file, cachePath)
	if db != "postgres:18.2-alpine3.23" {
		t.Errorf("first target clobbered: %q", db)
	}
	if cache != "redis:7.4.0" {
		t.Errorf("second target wrong: %q", cache)
	}
}

func TestPlainScalarReplacedWhole(t *testing.T) {
	content := `apiVersion: argoproj.io/v1alpha1
kind: Application
spec:
  source:
    chart: cert-manager
    targetRevision: 1.13.2 # chart version
`
	file := writeFixture(t, content)
	p := NewPatcher(false)

	path := Path{Key("spec"), Key("source"), Key("targetRevision")}
	result, err := p.Apply(file, path, "1.14.0")
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Before != "1.13.2" || result.After != "1.14.0" {
		t.Errorf("unexpected result %+v", result)
	}
	if got := readBack(t, file); !contains(got, "targetRevision: 1.14.0 # chart version") {
		t.Errorf("comment lost:\n%s", got)
	}
}

func TestDryRunComputesWithoutWriting(t *testing.T) {
	file := writeFixture(t, deployment)
	p := NewPatcher(true)

	path := Path{Key("spec"), Key("template"), Key("spec"), Key("containers"), Index(0), Key("image")}
	result, err := p.Apply(file, path, "18.2-alpine3.23")
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !result.Changed || result.After != "postgres:18.2-alpine3.23" {
		t.Errorf("dry run must still compute the result, got %+v", result)
	}
	if got := readBack(t, file); got != deployment {
		t.Error("dry run must not modify the file")
	}
}

func TestPathErrors(t *testing.T) {
	file := writeFixture(t, deployment)
	p := NewPatcher(false)

	_, err := p.Apply(file, Path{Key("spec"), Key("missing")}, "1.0.0")
	if !errors.Is(err, ErrPathNotFound) {
		t.Errorf("missing key: got %v, want ErrPathNotFound", err)
	}

	_, err = p.Apply(file, Path{Key("spec"), Key("template"), Key("spec"), Key("containers"), Index(9), Key("image")}, "1.0.0")
	if !errors.Is(err, ErrPathNotFound) {
		t.Errorf("index out of range: got %v, want ErrPathNotFound", err)
	}

	_, err = p.Apply(file, Path{Key("spec"), Key("template")}, "1.0.0")
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("non-scalar target: got %v, want ErrTypeMismatch", err)
	}

	_, err = p.Apply(filepath.Join(t.TempDir(), "absent.yaml"), Path{Key("a")}, "1.0.0")
	if !errors.Is(err, ErrIO) {
		t.Errorf("missing file: got %v, want ErrIO", err)
	}
}

func TestPathFromAny(t *testing.T) {
	path, err := PathFromAny([]any{"spec", "containers", 0, "image"})
	if err != nil {
		t.Fatalf("PathFromAny failed: %v", err)
	}
	if path.String() != "spec.containers[0].image" {
		t.Errorf("String() = %q", path.String())
	}

	if _, err := PathFromAny([]any{"spec", 1.5}); err == nil {
		t.Error("expected error for a float path element")
	}
}

func contains(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}
