package ignore

import (
	"testing"

	"github.com/nethserver/gitops-updater/internal/config"
)

func TestImageIgnoredByID(t *testing.T) {
	rules := Compile(config.IgnoreConfig{
		DockerImages: []config.IgnoreRule{{ID: "postgres-main"}},
	})

	ignored, reason := rules.ImageIgnored("postgres-main", "library/postgres")
	if !ignored {
		t.Fatal("expected item ignored by id")
	}
	if reason == "" {
		t.Error("expected a reason for the exclusion")
	}
	if ignored, _ := rules.ImageIgnored("redis-main", "library/redis"); ignored {
		t.Error("unrelated item should not be ignored")
	}
}

func TestImageIgnoredByRepository(t *testing.T) {
	rules := Compile(config.IgnoreConfig{
		DockerImages: []config.IgnoreRule{{Repository: "library/postgres"}},
	})

	if ignored, _ := rules.ImageIgnored("any-id", "library/postgres"); !ignored {
		t.Fatal("expected item ignored by repository")
	}
	if ignored, _ := rules.ImageIgnored("any-id", "library/redis"); ignored {
		t.Error("unrelated repository should not be ignored")
	}
}

func TestTagPatternTargetsVersionsNotItem(t *testing.T) {
	rules := Compile(config.IgnoreConfig{
		DockerImages: []config.IgnoreRule{{Repository: "library/postgres", TagPattern: `17\..*`}},
	})

	// The rule blacklists specific candidates, not the item.
	if ignored, _ := rules.ImageIgnored("pg", "library/postgres"); ignored {
		t.Fatal("repository rule with tag pattern must not exclude the item")
	}
	if !rules.ImageVersionIgnored("library/postgres", "17.5.0") {
		t.Error("17.5.0 should be blacklisted")
	}
	if rules.ImageVersionIgnored("library/postgres", "16.9.0") {
		t.Error("16.9.0 should not be blacklisted")
	}
	if rules.ImageVersionIgnored("library/redis", "17.5.0") {
		t.Error("pattern must not apply to other repositories")
	}
}

func TestPatternsAnchorAtVersionStart(t *testing.T) {
	rules := Compile(config.IgnoreConfig{
		DockerImages: []config.IgnoreRule{{Repository: "library/postgres", TagPattern: `17\..*`}},
		HelmCharts:   []config.IgnoreRule{{Name: "cert-manager", VersionPattern: `1\.15\..*`}},
	})

	if !rules.ImageVersionIgnored("library/postgres", "17.5.0") {
		t.Error("17.5.0 should be blacklisted")
	}
	if rules.ImageVersionIgnored("library/postgres", "117.5.0") {
		t.Error("pattern must match from the start, 117.5.0 is not a 17.x version")
	}
	if rules.ChartVersionIgnored("cert-manager", "11.15.0") {
		t.Error("chart pattern must match from the start of the version")
	}
}

func TestChartRules(t *testing.T) {
	rules := Compile(config.IgnoreConfig{
		HelmCharts: []config.IgnoreRule{
			{Name: "ingress-nginx"},
			{Name: "cert-manager", VersionPattern: `1\.15\..*`},
		},
	})

	if ignored, _ := rules.ChartIgnored("ingress-nginx"); !ignored {
		t.Error("expected chart ignored by name")
	}
	if ignored, _ := rules.ChartIgnored("cert-manager"); ignored {
		t.Error("name rule with version pattern must not exclude the chart")
	}
	if !rules.ChartVersionIgnored("cert-manager", "1.15.2") {
		t.Error("1.15.2 should be blacklisted")
	}
	if rules.ChartVersionIgnored("cert-manager", "1.14.0") {
		t.Error("1.14.0 should not be blacklisted")
	}
}

func TestInvalidPatternFailsOpen(t *testing.T) {
	rules := Compile(config.IgnoreConfig{
		DockerImages: []config.IgnoreRule{
			{Repository: "library/postgres", TagPattern: "(unclosed"},
			{ID: "redis-main"},
		},
	})

	if rules.Dropped != 1 {
		t.Errorf("expected 1 dropped rule, got %d", rules.Dropped)
	}
	// The broken rule matches nothing, in either direction.
	if ignored, _ := rules.ImageIgnored("pg", "library/postgres"); ignored {
		t.Error("broken rule must not exclude the item")
	}
	if rules.ImageVersionIgnored("library/postgres", "17.5.0") {
		t.Error("broken rule must not blacklist versions")
	}
	// Later rules still apply.
	if ignored, _ := rules.ImageIgnored("redis-main", "library/redis"); !ignored {
		t.Error("valid rule after a broken one must still apply")
	}
}

func TestRuleOrderFirstMatchWins(t *testing.T) {
	rules := Compile(config.IgnoreConfig{
		DockerImages: []config.IgnoreRule{
			{ID: "pg"},
			{Repository: "library/postgres"},
		},
	})

	ignored, reason := rules.ImageIgnored("pg", "library/postgres")
	if !ignored {
		t.Fatal("expected item ignored")
	}
	if reason != `ignored by id "pg"` {
		t.Errorf("expected the first declared rule to win, got reason %q", reason)
	}
}
