package registry

import "github.com/nethserver/gitops-updater/internal/version"

// Candidate is one version observed upstream. Version is nil when the tag
// has no parseable numeric core; such candidates are carried through so
// the resolver can count and log them, but never selected.
type Candidate struct {
	Tag        string
	Version    *version.Version
	Variant    string
	PreRelease bool
}

// Listing is the result of one tag query. Candidates keep the registry
// return order, which makes tie-breaking deterministic. Truncated marks a
// listing cut short by the page cap; it is not an error.
type Listing struct {
	Candidates []Candidate
	Truncated  bool
}

func newListing(tags []string, truncated bool) *Listing {
	listing := &Listing{
		Candidates: make([]Candidate, 0, len(tags)),
		Truncated:  truncated,
	}
	for _, tag := range tags {
		candidate := Candidate{
			Tag:        tag,
			Variant:    version.ExtractVariant(tag),
			PreRelease: version.IsPreRelease(tag),
		}
		if v, err := version.Parse(tag); err == nil {
			candidate.Version = v
		}
		listing.Candidates = append(listing.Candidates, candidate)
	}
	return listing
}
