// Package version parses the tag grammar found on container registries
// and in Helm indexes: an optional v prefix, a dotted numeric core, an
// optional variant suffix like -alpine3.22, and the post-release forms
// -pN and -N that sort after their base version.
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	patternPatchSuffix = regexp.MustCompile(`^v?(\d+\.\d+\.\d+)-p(\d+)$`)
	patternRevision    = regexp.MustCompile(`^v?(\d+\.\d+\.\d+)-(\d+)$`)
	patternPlain       = regexp.MustCompile(`^v?(\d+(?:\.\d+){0,2})$`)
	patternBuildTag    = regexp.MustCompile(`^b\d*$`)

	preReleaseMarkers = []string{"alpha", "beta", "rc", "-pre", ".pre"}
)

// Version is one parsed tag. The numeric core orders first; the
// post-release counter breaks ties between a base version and its -pN
// or -N rebuilds.
type Version struct {
	Raw     string
	Variant string

	core *semver.Version
	post int
}

// Parse interprets a tag. Tags without a leading numeric core are
// rejected; the caller decides whether that is a warning or a skip.
func Parse(tag string) (*Version, error) {
	if m := patternPatchSuffix.FindStringSubmatch(tag); m != nil {
		return newVersion(tag, m[1], m[2], "")
	}
	if m := patternRevision.FindStringSubmatch(tag); m != nil {
		return newVersion(tag, m[1], m[2], "")
	}
	if m := patternPlain.FindStringSubmatch(tag); m != nil {
		return newVersion(tag, m[1], "", "")
	}

	core, _, ok := splitTag(tag)
	if !ok {
		return nil, fmt.Errorf("tag %q has no numeric version core", tag)
	}
	return newVersion(tag, core, "", ExtractVariant(tag))
}

func newVersion(tag, core, post, variant string) (*Version, error) {
	parsed, err := semver.NewVersion(core)
	if err != nil {
		return nil, fmt.Errorf("tag %q: %w", tag, err)
	}
	v := &Version{Raw: tag, Variant: variant, core: parsed}
	if post != "" {
		v.post, _ = strconv.Atoi(post)
	}
	return v, nil
}

// splitTag separates the numeric core from the suffix after the first
// dash. "18.1-alpine3.22" becomes ("18.1", "alpine3.22").
func splitTag(tag string) (core, suffix string, ok bool) {
	tag = strings.TrimPrefix(tag, "v")
	if i := strings.IndexByte(tag, '-'); i >= 0 {
		core, suffix = tag[:i], tag[i+1:]
	} else {
		core = tag
	}
	core = leadingCore(core)
	if core == "" {
		return "", "", false
	}
	return core, suffix, true
}

// leadingCore returns the digits-and-dots prefix, without a trailing
// dot.
func leadingCore(s string) string {
	end := 0
	for end < len(s) && (s[end] == '.' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	return strings.TrimSuffix(s[:end], ".")
}

// ExtractVariant returns the variant word of a tag suffix, lowercased.
// Post-release suffixes (-pN, -N), build tags (-bN) and plain tags carry
// no variant.
func ExtractVariant(tag string) string {
	if patternPatchSuffix.MatchString(tag) || patternRevision.MatchString(tag) || patternPlain.MatchString(tag) {
		return ""
	}
	_, suffix, ok := splitTag(tag)
	if !ok || suffix == "" {
		return ""
	}
	if patternBuildTag.MatchString(suffix) {
		return ""
	}

	// The variant is the first run of letters: "alpine3.22" -> "alpine".
	start := 0
	for start < len(suffix) && !isAlpha(suffix[start]) {
		start++
	}
	end := start
	for end < len(suffix) && isAlpha(suffix[end]) {
		end++
	}
	if start == end {
		return ""
	}
	return strings.ToLower(suffix[start:end])
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// IsPreRelease reports whether the tag carries a pre-release marker.
// Build rebuilds like 1.2.3-b2 are releases.
func IsPreRelease(tag string) bool {
	lower := strings.ToLower(tag)
	if core, suffix, ok := splitTag(lower); ok && core != "" && patternBuildTag.MatchString(suffix) {
		return false
	}
	for _, marker := range preReleaseMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Major returns the major component of the numeric core.
func (v *Version) Major() uint64 {
	return v.core.Major()
}

// Compare orders two versions: numeric core first, then the
// post-release counter. The variant does not participate in ordering.
func (v *Version) Compare(other *Version) int {
	if c := v.core.Compare(other.core); c != 0 {
		return c
	}
	switch {
	case v.post > other.post:
		return 1
	case v.post < other.post:
		return -1
	}
	return 0
}

// GreaterThan reports whether v orders strictly after other.
func (v *Version) GreaterThan(other *Version) bool {
	return v.Compare(other) > 0
}
