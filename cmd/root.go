// Package cmd provides the command-line interface for templens.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --port, etc.) - highest priority
//	2. TEMPLENS_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (TEMPLENS_SERVER_PORT, etc.)
//	4. Configuration files (.templens.yml) - lowest priority
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/templens/internal/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "templens",
	Short: "Project/document snapshot core for templ code intelligence",
	Long: `Templens maintains an always-consistent, versioned view of which projects
exist, which documents they contain, and what each document's current text is,
for consumption by downstream analysis such as diagnostics, completion, and
formatting.

Quick Start:
  templens serve                  Run the core with the change-event stream
  templens list                   List loaded projects and their documents

Documentation: https://github.com/conneroisu/templens`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .templens.yml, can also use TEMPLENS_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// bindServerFlags attaches the event stream server flags shared by commands
// that run the core.
func bindServerFlags(flags *pflag.FlagSet) {
	flags.String("host", "localhost", "event stream host")
	flags.Int("port", 7331, "event stream port")
	_ = viper.BindPFlag("server.host", flags.Lookup("host"))
	_ = viper.BindPFlag("server.port", flags.Lookup("port"))
}

// initConfig initializes the configuration system with support for multiple
// config sources, in priority order: --config flag, TEMPLENS_CONFIG_FILE
// environment variable, then .templens.yml in the current directory.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("TEMPLENS_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".templens")
	}

	// Automatic environment variable binding with the TEMPLENS_ prefix,
	// e.g. TEMPLENS_SERVER_PORT=8080.
	config.SetupEnv()

	// A missing or malformed config file degrades to defaults.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
