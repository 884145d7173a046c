// Package patch rewrites a single value inside a YAML file while keeping
// every other byte identical. The document tree is only used to find the
// target scalar; the edit itself is a byte splice on the original text,
// so comments, ordering and quoting all survive untouched.
package patch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Patch-time failure classes.
var (
	ErrPathNotFound = errors.New("value path not found")
	ErrTypeMismatch = errors.New("value path does not end at a scalar")
	ErrIO           = errors.New("file read/write failure")
)

// Result reports one applied (or computed, in dry-run) patch.
type Result struct {
	File    string `json:"file"`
	Before  string `json:"before"`
	After   string `json:"after"`
	Changed bool   `json:"changed"`
}

// Patcher applies value updates to files. Writes to the same path are
// serialized by a per-file lock, so items sharing a target file never
// race. In dry-run mode results are computed but nothing is written.
type Patcher struct {
	DryRun bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPatcher creates a Patcher.
func NewPatcher(dryRun bool) *Patcher {
	return &Patcher{
		DryRun: dryRun,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (p *Patcher) fileLock(file string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[file]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[file] = lock
	}
	return lock
}

// Apply replaces the version part of the scalar at path with newVersion.
// For composite values like "repository:tag" only the tag substring after
// the last colon changes; plain scalars are replaced whole. The write is
// atomic: temp file in the same directory, then rename.
func (p *Patcher) Apply(file string, path Path, newVersion string) (*Result, error) {
	lock := p.fileLock(file)
	lock.Lock()
	defer lock.Unlock()

	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v: %w", file, err, ErrIO)
	}

	node, err := locateScalar(raw, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", file, path, err)
	}

	before := node.Value
	after := replaceVersion(before, newVersion)
	if after == before {
		return &Result{File: file, Before: before, After: after, Changed: false}, nil
	}

	updated, err := spliceScalar(raw, node, after)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", file, path, err)
	}

	result := &Result{File: file, Before: before, After: after, Changed: true}
	if p.DryRun {
		return result, nil
	}
	if err := writeAtomic(file, updated); err != nil {
		return nil, err
	}
	return result, nil
}

// ReadValue returns the scalar at path inside file.
func (p *Patcher) ReadValue(file string, path Path) (string, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %v: %w", file, err, ErrIO)
	}
	node, err := locateScalar(raw, path)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", file, path, err)
	}
	return node.Value, nil
}

// replaceVersion swaps the version substring of a scalar. Composite image
// references keep everything up to and including the last colon, which
// preserves the repository prefix (and any registry host:port in it).
func replaceVersion(current, newVersion string) string {
	if i := strings.LastIndex(current, ":"); i >= 0 {
		return current[:i+1] + newVersion
	}
	return newVersion
}

func locateScalar(raw []byte, path Path) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("not a structured document: %v: %w", err, ErrIO)
	}
	node := &doc
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil, ErrPathNotFound
		}
		node = node.Content[0]
	}

	for _, step := range path {
		if step.IsKey {
			if node.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("expected mapping at %q: %w", step.Key, ErrTypeMismatch)
			}
			next := mappingValue(node, step.Key)
			if next == nil {
				return nil, fmt.Errorf("missing key %q: %w", step.Key, ErrPathNotFound)
			}
			node = next
		} else {
			if node.Kind != yaml.SequenceNode {
				return nil, fmt.Errorf("expected sequence at index %d: %w", step.Index, ErrTypeMismatch)
			}
			if step.Index < 0 || step.Index >= len(node.Content) {
				return nil, fmt.Errorf("index %d out of range: %w", step.Index, ErrPathNotFound)
			}
			node = node.Content[step.Index]
		}
	}

	if node.Kind != yaml.ScalarNode {
		return nil, ErrTypeMismatch
	}
	return node, nil
}

func mappingValue(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// spliceScalar replaces the scalar's text in the raw document, leaving
// every other byte as it was. The node's line/column anchor the search,
// so identical values elsewhere in the file are never touched.
func spliceScalar(raw []byte, node *yaml.Node, after string) ([]byte, error) {
	offset, err := scalarOffset(raw, node)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.Grow(len(raw) + len(after))
	out.Write(raw[:offset])
	out.WriteString(after)
	out.Write(raw[offset+len(node.Value):])
	return out.Bytes(), nil
}

func scalarOffset(raw []byte, node *yaml.Node) (int, error) {
	line := 1
	lineStart := 0
	for line < node.Line {
		next := bytes.IndexByte(raw[lineStart:], '\n')
		if next < 0 {
			return 0, fmt.Errorf("scalar position beyond document end: %w", ErrPathNotFound)
		}
		lineStart += next + 1
		line++
	}

	// Column points at the scalar, or at its opening quote for quoted
	// styles; allow the one-byte quote offset but nothing further, so
	// the splice stays anchored to this exact node.
	start := lineStart + node.Column - 1
	if start > len(raw) {
		return 0, fmt.Errorf("scalar position beyond document end: %w", ErrPathNotFound)
	}
	idx := bytes.Index(raw[start:], []byte(node.Value))
	if idx < 0 || idx > 1 {
		return 0, fmt.Errorf("could not anchor scalar %q in source text: %w", node.Value, ErrPathNotFound)
	}
	return start + idx, nil
}

func writeAtomic(file string, data []byte) error {
	info, err := os.Stat(file)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %v: %w", file, err, ErrIO)
	}

	dir := filepath.Dir(file)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(file)+".tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %v: %w", dir, err, ErrIO)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %v: %w", tmpName, err, ErrIO)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %v: %w", tmpName, err, ErrIO)
	}
	if err := os.Chmod(tmpName, info.Mode()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod %s: %v: %w", tmpName, err, ErrIO)
	}
	if err := os.Rename(tmpName, file); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %v: %w", file, err, ErrIO)
	}
	return nil
}
