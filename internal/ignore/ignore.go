// Package ignore evaluates the user-supplied exclusion rules. Structural
// rules (by id, repository or name) suppress an item before any network
// call; pattern rules remove individual candidate versions from the
// selection pool without excluding the item.
package ignore

import (
	"fmt"
	"log"
	"regexp"

	"github.com/nethserver/gitops-updater/internal/config"
)

type rule struct {
	id         string
	repository string // image rules
	name       string // chart rules
	pattern    *regexp.Regexp
	rawPattern string
	invalid    bool
}

// Rules holds the compiled rule set for one run.
type Rules struct {
	images []rule
	charts []rule
	// Dropped counts rules whose pattern failed to compile; they match
	// nothing but the run continues.
	Dropped int
}

// Compile builds the rule set. A pattern that fails to compile logs a
// warning and leaves the whole rule inert (fail open on the rule, not on
// the run).
func Compile(cfg config.IgnoreConfig) *Rules {
	rules := &Rules{}
	for _, raw := range cfg.DockerImages {
		rules.images = append(rules.images, compileOne(raw.ID, raw.Repository, "", raw.TagPattern, rules))
	}
	for _, raw := range cfg.HelmCharts {
		rules.charts = append(rules.charts, compileOne(raw.ID, "", raw.Name, raw.VersionPattern, rules))
	}
	return rules
}

func compileOne(id, repository, name, pattern string, rules *Rules) rule {
	r := rule{id: id, repository: repository, name: name, rawPattern: pattern}
	if pattern == "" {
		return r
	}
	// Patterns match from the start of the version, so "17\..*" covers
	// 17.5.0 but not 117.5.0.
	compiled, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		log.Printf("[WARN] ignore rule pattern %q does not compile, rule dropped: %v", pattern, err)
		r.invalid = true
		rules.Dropped++
		return r
	}
	r.pattern = compiled
	return r
}

// ImageIgnored reports whether the image item is excluded outright.
// Rules are checked in declaration order; the first structural match
// wins. A rule carrying a tag pattern targets candidate versions, not the
// item, and never matches here.
func (r *Rules) ImageIgnored(id, repository string) (bool, string) {
	for _, rule := range r.images {
		if rule.invalid {
			continue
		}
		if rule.id != "" && rule.id == id {
			return true, fmt.Sprintf("ignored by id %q", rule.id)
		}
		if rule.repository != "" && rule.repository == repository && rule.rawPattern == "" {
			return true, fmt.Sprintf("ignored by repository %q", rule.repository)
		}
	}
	return false, ""
}

// ChartIgnored reports whether the chart item is excluded outright.
func (r *Rules) ChartIgnored(name string) (bool, string) {
	for _, rule := range r.charts {
		if rule.invalid {
			continue
		}
		if rule.name != "" && rule.name == name && rule.rawPattern == "" {
			return true, fmt.Sprintf("ignored by name %q", rule.name)
		}
	}
	return false, ""
}

// ImageVersionIgnored reports whether a specific candidate tag of an
// image is blacklisted by a repository + tagPattern rule.
func (r *Rules) ImageVersionIgnored(repository, tag string) bool {
	for _, rule := range r.images {
		if rule.pattern == nil || rule.repository == "" || rule.repository != repository {
			continue
		}
		if rule.pattern.MatchString(tag) {
			return true
		}
	}
	return false
}

// ChartVersionIgnored reports whether a specific candidate version of a
// chart is blacklisted by a name + versionPattern rule.
func (r *Rules) ChartVersionIgnored(name, candidateVersion string) bool {
	for _, rule := range r.charts {
		if rule.pattern == nil || rule.name == "" || rule.name != name {
			continue
		}
		if rule.pattern.MatchString(candidateVersion) {
			return true
		}
	}
	return false
}
