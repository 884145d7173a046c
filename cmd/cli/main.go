package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nethserver/gitops-updater/internal/config"
	"github.com/nethserver/gitops-updater/internal/discover"
	"github.com/nethserver/gitops-updater/internal/report"
	"github.com/nethserver/gitops-updater/internal/service"
)

var (
	repoPath   string
	configPath string
	dryRun     bool
	commit     bool
	gitToken   string
	jsonOutput bool
	writeBack  bool
	failOnItem bool
)

var rootCmd = &cobra.Command{
	Use:   "gitops-updater",
	Short: "Keeps container images and Helm charts in a gitops tree up to date",
	Long: `A tool that checks the container images and Helm charts pinned in a
gitops repository against their upstream registries, applies in-place
updates within the current major version, and reports newer majors.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Use 'gitops-updater help' for more information.")
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check upstreams and apply available updates",
	Long: `Resolve every configured image and chart against its upstream,
patch the files that carry outdated versions and write the run report.
With --dry-run nothing is written.`,
	Run: func(cmd *cobra.Command, args []string) {
		s := service.New(service.Options{
			RepoPath:   repoPath,
			ConfigPath: configPath,
			GitToken:   gitToken,
			Commit:     commit,
		})

		rep, err := s.Run(context.Background(), dryRun)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			data, err := rep.JSON()
			if err != nil {
				fmt.Printf("Error marshaling JSON: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(data))
		} else {
			fmt.Print(rep.Render())
		}

		if code := exitCode(rep, failOnItem); code != 0 {
			os.Exit(code)
		}
	},
}

// exitCode maps a finished run to the process exit status. Per-item
// failures are visible in the report, not the exit code; a run that
// completed exits 0 unless the caller opted in to strict mode.
func exitCode(rep *report.Report, failOnItemErrors bool) int {
	if failOnItemErrors && rep.Count(report.StatusFailed) > 0 {
		return 1
	}
	return 0
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan the tree for trackable images and charts",
	Long: `Walk the gitops tree, find container images and Helm chart pins,
and print what is not yet in the config. With --write the new entries
are merged into the config file, leaving curated entries and ignore
rules untouched.`,
	Run: func(cmd *cobra.Command, args []string) {
		s := service.New(service.Options{RepoPath: repoPath, ConfigPath: configPath})

		found, err := discover.Scan(s.RepoPath())
		if err != nil {
			fmt.Printf("Error scanning %s: %v\n", s.RepoPath(), err)
			os.Exit(1)
		}

		cfg, err := config.Load(s.ConfigPath())
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				fmt.Printf("Error loading configuration: %v\n", err)
				os.Exit(1)
			}
			cfg = &config.Config{}
		}

		added := discover.Merge(cfg, found)
		fmt.Printf("Found %d images, %d argo apps, %d kustomize charts, %d chart dependencies (%d new)\n",
			len(found.DockerImages), len(found.ArgoApps),
			len(found.KustomizeHelmCharts), len(found.ChartDependencies), added)

		if !writeBack {
			return
		}
		if err := config.Save(cfg, s.ConfigPath()); err != nil {
			fmt.Printf("Error writing configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", s.ConfigPath())
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the report of the last run",
	Run: func(cmd *cobra.Command, args []string) {
		s := service.New(service.Options{RepoPath: repoPath, ConfigPath: configPath})
		path := s.RepoPath() + "/" + report.DefaultFile
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Println("No report found; the last run made no changes or never ran.")
				return
			}
			fmt.Printf("Error reading report: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&repoPath, "repo", "r", ".", "Path to the gitops repository")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default <repo>/"+config.DefaultPath+")")

	updateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve and report without writing files")
	updateCmd.Flags().BoolVar(&commit, "commit", false, "Commit applied updates on the configured branch")
	updateCmd.Flags().StringVarP(&gitToken, "token", "t", os.Getenv("GITHUB_TOKEN"), "Token for pushing the update branch")
	updateCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the report as JSON")
	updateCmd.Flags().BoolVar(&failOnItem, "fail-on-item-errors", false, "Exit non-zero when any item fails to resolve or patch")

	discoverCmd.Flags().BoolVarP(&writeBack, "write", "w", false, "Merge findings into the config file")

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
