package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/templens/internal/bridge"
	"github.com/conneroisu/templens/internal/config"
	"github.com/conneroisu/templens/internal/faults"
	"github.com/conneroisu/templens/internal/logging"
	"github.com/conneroisu/templens/internal/notify"
	"github.com/conneroisu/templens/internal/registry"
	"github.com/conneroisu/templens/internal/scheduler"
	"github.com/conneroisu/templens/internal/types"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List configured projects and their documents",
	Long: `List loads the configured projects, discovers their documents on disk, and
prints the resulting snapshots.

Examples:
  templens list                   # Table output
  templens list -f json           # JSON output
  templens list -f yaml           # YAML output`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringP("format", "f", "table", "output format (table, json, yaml)")
	rootCmd.AddCommand(listCmd)
}

// projectListing is the serializable view of one project snapshot.
type projectListing struct {
	Path            string           `json:"path" yaml:"path"`
	LanguageVersion string           `json:"language_version" yaml:"language_version"`
	Documents       []projectDocItem `json:"documents" yaml:"documents"`
}

type projectDocItem struct {
	Path       string `json:"path" yaml:"path"`
	TargetPath string `json:"target_path" yaml:"target_path"`
}

func runList(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "json" && format != "yaml" {
		return fmt.Errorf("unsupported format %q (expected table, json, or yaml)", format)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewNopLogger()
	collector := faults.NewCollector()
	sched := scheduler.New(logger)
	queue := notify.NewQueue(collector, logger)
	manager := registry.NewSnapshotManager(sched, queue, collector, logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	sched.Start(ctx)
	defer func() {
		cancel()
		sched.Stop()
	}()

	var listings []projectListing
	for _, p := range cfg.Projects {
		descriptor := types.ProjectDescriptor{
			Path:            p.Path,
			LanguageVersion: p.LanguageVersion,
			Extensions:      p.Extensions,
		}
		docs, err := bridge.DiscoverDocuments(descriptor, p.Root)
		if err != nil {
			return fmt.Errorf("discovering documents for %s: %w", p.Path, err)
		}
		sched.Run(func(ctx context.Context) {
			manager.ProjectAdded(ctx, descriptor)
			for _, doc := range docs {
				manager.DocumentAdded(ctx, doc, types.FileLoader{Path: doc.Path})
			}
		})
	}

	sched.Run(func(ctx context.Context) {
		for _, snap := range manager.Projects(ctx) {
			listing := projectListing{
				Path:            snap.Descriptor().Path,
				LanguageVersion: snap.Descriptor().LanguageVersion,
			}
			for _, doc := range snap.Documents() {
				listing.Documents = append(listing.Documents, projectDocItem{
					Path:       doc.Descriptor().Path,
					TargetPath: doc.Descriptor().TargetPath,
				})
			}
			listings = append(listings, listing)
		}
	})

	switch format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(listings)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		defer func() { _ = encoder.Close() }()
		return encoder.Encode(listings)
	default:
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROJECT\tVERSION\tDOCUMENTS")
		for _, listing := range listings {
			fmt.Fprintf(w, "%s\t%s\t%d\n", listing.Path, listing.LanguageVersion, len(listing.Documents))
			for _, doc := range listing.Documents {
				fmt.Fprintf(w, "  %s\t\t\n", doc.TargetPath)
			}
		}
		return w.Flush()
	}
}
