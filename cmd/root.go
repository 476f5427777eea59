package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/szhem/osgi-utils/internal/config"
	"github.com/szhem/osgi-utils/internal/log"
	"github.com/szhem/osgi-utils/internal/tracing"
)

func init() {
	// Force lipgloss/termenv to query terminal background color BEFORE
	// any Bubble Tea program starts. This prevents the terminal's OSC 11
	// response from racing with Bubble Tea's input loop and appearing as
	// garbage text in input fields.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

const envPrefix = "OSGI_UTILS"

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config

	// configErr holds a config read failure until setup can return it.
	configErr error

	tracer     trace.Tracer = tracing.NoopTracer()
	provider   *tracing.Provider
	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "osgi-utils",
	Short: "Publish, query and track services in a filter-driven registry",
	Long: `osgi-utils keeps a small service registry in a SQLite database.

Services are published under interface names with attributes and found with
LDAP-style filters such as (&(objectClass=com.acme.Greeter)(region=eu)).
'watch' keeps a live tracking collection of the matching services and
updates it as publications come and go.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	cobra.OnInitialize(initConfig)
	cobra.OnFinalize(teardown)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .osgi-utils/config.yaml, then ~/.config/osgi-utils/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"enable debug logging (also OSGI_UTILS_DEBUG)")
	rootCmd.PersistentFlags().String("db", "",
		"path to the registry database (overrides registry.db_path)")

	// Bind flags to viper
	_ = viper.BindPFlag("registry.db_path", rootCmd.PersistentFlags().Lookup("db"))
}

func initConfig() {
	configErr = nil
	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .osgi-utils/config.yaml (current directory)
		// 2. ~/.config/osgi-utils/config.yaml (user config)
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			viper.SetConfigFile(config.DefaultConfigPath)
		} else {
			if dir := config.UserConfigDir(); dir != "" {
				viper.AddConfigPath(dir)
			}
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	// A missing config is fine; everything has a default. 'config init'
	// writes one.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			configErr = err
		}
	}
}

// setup loads the configuration and starts logging and tracing for every
// subcommand.
func setup(cmd *cobra.Command, _ []string) error {
	if configErr != nil {
		return fmt.Errorf("reading config: %w", configErr)
	}

	loaded, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	cfg = loaded

	if err := initLogging(cmd); err != nil {
		return err
	}

	provider, err = tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	tracer = provider.Tracer()
	return nil
}

func initLogging(cmd *cobra.Command) error {
	debug := os.Getenv(envPrefix+"_DEBUG") != "" || debugFlag
	logPath := cfg.Log.Path
	if !debug && logPath == "" {
		return nil
	}
	if logPath == "" {
		logPath = "debug.log"
	}

	var cleanup func()
	var err error
	if interactive(cmd) {
		// The live view owns the terminal.
		cleanup, err = log.InitWithTeaLog(logPath, "osgi-utils")
	} else {
		cleanup, err = log.Init(logPath)
	}
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	logCleanup = cleanup

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil || debug {
		level = log.LevelDebug
	}
	log.SetMinLevel(level)
	log.SetEnabled(true)

	log.Info(log.CatConfig, "osgi-utils starting",
		"command", cmd.Name(), "config", viper.ConfigFileUsed(), "db", cfg.Registry.DBPath, "logPath", logPath)
	return nil
}

// teardown flushes traces and closes the log. It runs after every command,
// failed ones included.
func teardown() {
	if provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := provider.Shutdown(ctx); err != nil {
			log.ErrorErr(log.CatConfig, "tracing shutdown failed", err)
		}
		cancel()
		provider = nil
		tracer = tracing.NoopTracer()
	}
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
}

// configPath is where config commands read and write: --config, the file
// viper loaded, or .osgi-utils/config.yaml.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return filepath.Clean(config.DefaultConfigPath)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
