package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/szhem/osgi-utils/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
	// Skips loading, so a broken file can still be repaired.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Long: `Write the default configuration, with comments, to --config or
.osgi-utils/config.yaml. An existing file is kept unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one configuration value",
	Long: `Set a dotted key such as tracker.buffer_size in the configuration file.
Comments and the rest of the file are preserved. The change is rejected if
the resulting configuration is invalid.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show how the configuration file differs from the defaults",
	Args:  cobra.NoArgs,
	RunE:  runConfigDiff,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configSetCmd, configShowCmd, configDiffCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}
	if err := config.WriteDefaultConfig(path); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path := configPath()
	if err := config.SetValue(path, args[0], args[1]); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (%s)\n", args[0], args[1], path)
	return err
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	encoder := yaml.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent(2)
	if err := encoder.Encode(printable(viper.AllSettings())); err != nil {
		return err
	}
	return encoder.Close()
}

func runConfigDiff(cmd *cobra.Command, _ []string) error {
	path := configPath()
	data, err := os.ReadFile(path) //nolint:gosec // G304: user-chosen config path
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	lines := config.DiffFromDefaults(string(data))
	if len(lines) == 0 {
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s matches the defaults\n", path)
		return err
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
			return err
		}
	}
	return nil
}

// printable renders durations the way they are written in the config file.
func printable(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = printable(val)
		}
		return out
	case time.Duration:
		return v.String()
	default:
		return v
	}
}
