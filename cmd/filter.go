package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/szhem/osgi-utils/internal/filter"
)

var filterMatch []string

var filterCmd = &cobra.Command{
	Use:   "filter <expression>",
	Short: "Parse a filter and print its canonical form",
	Long: `Parse an LDAP-style filter and print it in canonical form.

With --match the filter is also evaluated against the given attributes and
"true" or "false" is printed on a second line.

Examples:
  osgi-utils filter '( & (a=b) (c=d) )'
  osgi-utils filter '(ranking>=5)' --match ranking=10`,
	Args: cobra.ExactArgs(1),
	RunE: runFilter,
}

func init() {
	rootCmd.AddCommand(filterCmd)

	filterCmd.Flags().StringArrayVarP(&filterMatch, "match", "m", nil,
		"attribute as key=value to evaluate the filter against (repeatable)")
}

func runFilter(cmd *cobra.Command, args []string) error {
	f, err := filter.Parse(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintln(out, f.String()); err != nil {
		return err
	}
	if len(filterMatch) == 0 {
		return nil
	}

	attrs, err := parseAttrs(filterMatch)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, f.Match(attrs))
	return err
}
