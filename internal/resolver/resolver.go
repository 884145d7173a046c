// Package resolver picks the upgrade target for one item from the
// candidates a registry returned. Automatic updates stay within the
// current major version and the current variant; a newer major is only
// ever surfaced as an advisory.
package resolver

import (
	"log"

	"github.com/nethserver/gitops-updater/internal/registry"
	"github.com/nethserver/gitops-updater/internal/version"
)

// Status is the selection verdict for one item.
type Status string

const (
	StatusUpdated  Status = "updated"
	StatusUpToDate Status = "up-to-date"
)

// Major describes a newer major version that exists upstream but is not
// applied automatically.
type Major struct {
	Tag          string `json:"tag"`
	CurrentMajor uint64 `json:"currentMajor"`
	NewMajor     uint64 `json:"newMajor"`
}

// Result is the outcome of resolving one item. Major may accompany
// either status; it never replaces it.
type Result struct {
	Status Status
	NewTag string
	Major  *Major
}

// Resolve selects the best same-major candidate for currentTag. Charts
// have no variant concept, so chart resolution skips the variant filter.
// VersionIgnored, when non-nil, removes individual candidates from the
// pool. An unparseable current version or an empty usable pool resolves
// conservatively to up-to-date.
func Resolve(name, currentTag string, chart bool, candidates []registry.Candidate, versionIgnored func(string) bool) *Result {
	current, err := version.Parse(currentTag)
	if err != nil {
		log.Printf("[WARN] %s: current version %q is not parseable, skipping update check", name, currentTag)
		return &Result{Status: StatusUpToDate}
	}

	var bestSame, bestHigher *registry.Candidate
	for i := range candidates {
		candidate := &candidates[i]
		if candidate.Version == nil || candidate.PreRelease {
			continue
		}
		if !chart && candidate.Variant != current.Variant {
			continue
		}
		if versionIgnored != nil && versionIgnored(candidate.Tag) {
			continue
		}

		switch {
		case candidate.Version.Major() == current.Major():
			// Strictly-greater comparison keeps the first candidate in
			// registry order when two tags carry the same version.
			if bestSame == nil || candidate.Version.GreaterThan(bestSame.Version) {
				bestSame = candidate
			}
		case candidate.Version.Major() > current.Major():
			if bestHigher == nil || candidate.Version.GreaterThan(bestHigher.Version) {
				bestHigher = candidate
			}
		}
	}

	result := &Result{Status: StatusUpToDate}
	if bestHigher != nil {
		result.Major = &Major{
			Tag:          bestHigher.Tag,
			CurrentMajor: current.Major(),
			NewMajor:     bestHigher.Version.Major(),
		}
	}

	if bestSame == nil {
		log.Printf("[WARN] %s: no usable same-major candidate among %d tags", name, len(candidates))
		return result
	}
	if bestSame.Version.GreaterThan(current) {
		result.Status = StatusUpdated
		result.NewTag = bestSame.Tag
	}
	return result
}
