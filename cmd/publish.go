package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/szhem/osgi-utils/internal/infrastructure/sqlite"
	"github.com/szhem/osgi-utils/internal/log"
	"github.com/szhem/osgi-utils/internal/presentation"
)

var (
	publishInterfaces []string
	publishAttrs      []string
	publishOutput     string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a service to the registry database",
	Long: `Store a service publication in the registry database and print its key.

Running 'watch' commands pick the publication up as soon as it is written.

Examples:
  osgi-utils publish --interface com.acme.Greeter --attr region=eu --attr ranking=10
  osgi-utils publish -i com.acme.Greeter -i com.acme.Clock -o json`,
	Args: cobra.NoArgs,
	RunE: runPublish,
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <key>",
	Short: "Withdraw a published service by key",
	Args:  cobra.ExactArgs(1),
	RunE:  runWithdraw,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(withdrawCmd)

	publishCmd.Flags().StringArrayVarP(&publishInterfaces, "interface", "i", nil,
		"interface name the service is published under (repeatable)")
	publishCmd.Flags().StringArrayVarP(&publishAttrs, "attr", "a", nil,
		"attribute as key=value (repeatable)")
	publishCmd.Flags().StringVarP(&publishOutput, "output", "o", "text",
		"output format: text, json or yaml")
	_ = publishCmd.MarkFlagRequired("interface")
}

func runPublish(cmd *cobra.Command, _ []string) error {
	format, err := presentation.ParseFormat(publishOutput)
	if err != nil {
		return err
	}
	attrs, err := parseAttrs(publishAttrs)
	if err != nil {
		return err
	}

	db, err := sqlite.NewDB(cfg.Registry.DBPath)
	if err != nil {
		return fmt.Errorf("opening registry database: %w", err)
	}
	defer func() { _ = db.Close() }()

	p, err := db.Publications().Insert(cmd.Context(), publishInterfaces, attrs)
	if err != nil {
		return fmt.Errorf("publishing: %w", err)
	}
	log.Info(log.CatDB, "published", "key", p.Key, "interfaces", p.Interfaces)

	return presentation.NewFormatter(cmd.OutOrStdout(), format).FormatPublication(presentation.FromStored(p))
}

func runWithdraw(cmd *cobra.Command, args []string) error {
	db, err := sqlite.NewDB(cfg.Registry.DBPath)
	if err != nil {
		return fmt.Errorf("opening registry database: %w", err)
	}
	defer func() { _ = db.Close() }()

	key := args[0]
	if err := db.Publications().Delete(cmd.Context(), key); err != nil {
		return fmt.Errorf("withdrawing: %w", err)
	}
	log.Info(log.CatDB, "withdrawn", "key", key)

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "withdrawn %s\n", key)
	return err
}
