package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/szhem/osgi-utils/internal/infrastructure/sqlite"
	"github.com/szhem/osgi-utils/internal/metrics"
	"github.com/szhem/osgi-utils/internal/presentation"
	"github.com/szhem/osgi-utils/internal/registry"
	"github.com/szhem/osgi-utils/internal/ui/live"
)

var (
	listFilter string
	listOutput string
	listStored bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List published services matching a filter",
	Long: `Query the registry once and print the matching services in ID order.

With --stored the raw publications are printed instead, with the keys that
'withdraw' takes.

Examples:
  osgi-utils list
  osgi-utils list --filter '(&(objectClass=com.acme.Greeter)(ranking>=5))' -o yaml
  osgi-utils list --stored`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFilter, "filter", "f", "",
		"LDAP-style filter (default: every service)")
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "text",
		"output format: text, json or yaml")
	listCmd.Flags().BoolVar(&listStored, "stored", false,
		"print stored publications with their keys")
}

func runList(cmd *cobra.Command, _ []string) error {
	format, err := presentation.ParseFormat(listOutput)
	if err != nil {
		return err
	}

	db, err := sqlite.NewDB(cfg.Registry.DBPath)
	if err != nil {
		return fmt.Errorf("opening registry database: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx := cmd.Context()
	out := presentation.NewFormatter(cmd.OutOrStdout(), format)

	if listStored {
		stored, err := db.Publications().List(ctx)
		if err != nil {
			return err
		}
		dtos := make([]presentation.PublicationDTO, len(stored))
		for i, p := range stored {
			dtos[i] = presentation.FromStored(p)
		}
		return out.FormatPublications(dtos)
	}

	pubs, err := db.Publications().Publications(ctx)
	if err != nil {
		return err
	}

	reg := newRegistry(nil)
	defer reg.Close()
	if _, _, err := reg.Sync(ctx, pubs); err != nil {
		return fmt.Errorf("loading publications: %w", err)
	}

	snap, err := reg.Query(ctx, listFilter)
	if err != nil {
		return err
	}
	return out.FormatReferences(snap.References, live.FormatReference)
}

// newRegistry builds an in-memory registry configured from cfg.
func newRegistry(m *metrics.Metrics) *registry.Registry {
	return registry.New(
		registry.WithTracer(tracer),
		registry.WithMetrics(m),
		registry.WithFilterCacheExpiration(cfg.Cache.Expiration),
	)
}
