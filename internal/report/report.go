// Package report collects per-item outcomes into the run summary that
// the CLI prints, the server streams and the commit message references.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/nethserver/gitops-updater/internal/resolver"
)

// DefaultFile is where the text summary is written after a run that
// changed something.
const DefaultFile = ".update-report.txt"

// Status classifies one item's outcome.
type Status string

const (
	StatusUpdated  Status = "updated"
	StatusUpToDate Status = "up-to-date"
	StatusIgnored  Status = "ignored"
	StatusFailed   Status = "failed"
)

// Outcome is the final record for one item.
type Outcome struct {
	ItemID    string          `json:"itemId"`
	Kind      string          `json:"kind"`
	Status    Status          `json:"status"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	ErrorKind string          `json:"errorKind,omitempty"`
	Major     *resolver.Major `json:"majorAvailable,omitempty"`
	Files     []string        `json:"files,omitempty"`
}

// Report is the full result of one run.
type Report struct {
	Started  time.Time     `json:"started"`
	DryRun   bool          `json:"dryRun"`
	Outcomes []Outcome     `json:"outcomes"`
	HelmTime time.Duration `json:"helmTime"`
	ImgTime  time.Duration `json:"imageTime"`
}

// Add appends one outcome.
func (r *Report) Add(outcome Outcome) {
	r.Outcomes = append(r.Outcomes, outcome)
}

// Sort orders outcomes by item ID so the report is stable regardless of
// resolution order.
func (r *Report) Sort() {
	sort.Slice(r.Outcomes, func(i, j int) bool {
		return r.Outcomes[i].ItemID < r.Outcomes[j].ItemID
	})
}

// Count returns how many outcomes carry the given status.
func (r *Report) Count(status Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Changed reports whether any item was actually updated.
func (r *Report) Changed() bool {
	return r.Count(StatusUpdated) > 0
}

// Render produces the human-readable summary.
func (r *Report) Render() string {
	var b strings.Builder

	b.WriteString("Update report\n")
	b.WriteString("=============\n")
	fmt.Fprintf(&b, "Run started: %s\n", r.Started.Format(time.RFC3339))
	if r.DryRun {
		b.WriteString("Mode: dry run, no files were modified\n")
	}
	b.WriteString("\n")

	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusUpdated:
			fmt.Fprintf(&b, "[UPDATED]  %s: %s -> %s\n", o.ItemID, o.From, o.To)
		case StatusUpToDate:
			fmt.Fprintf(&b, "[OK]       %s: %s\n", o.ItemID, o.From)
		case StatusIgnored:
			fmt.Fprintf(&b, "[SKIP]     %s: %s\n", o.ItemID, o.Reason)
		case StatusFailed:
			fmt.Fprintf(&b, "[ERROR]    %s: %s (%s)\n", o.ItemID, o.Reason, o.ErrorKind)
		}
		if o.Major != nil {
			fmt.Fprintf(&b, "           major version available: %s (current major %d)\n",
				o.Major.Tag, o.Major.CurrentMajor)
		}
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Totals: %d updated, %d up-to-date, %d ignored, %d failed\n",
		r.Count(StatusUpdated), r.Count(StatusUpToDate), r.Count(StatusIgnored), r.Count(StatusFailed))
	fmt.Fprintf(&b, "Elapsed: helm %s, images %s\n",
		r.HelmTime.Round(time.Millisecond), r.ImgTime.Round(time.Millisecond))
	return b.String()
}

// JSON renders the report for API consumers.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// WriteFile writes the rendered report to path when something changed,
// and removes a stale report from an earlier run when nothing did.
func (r *Report) WriteFile(path string) error {
	if !r.Changed() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale report %s: %w", path, err)
		}
		return nil
	}
	if err := os.WriteFile(path, []byte(r.Render()), 0644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}
