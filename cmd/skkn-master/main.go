// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the skkn-master CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/skkn-master/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets secrets.Set

// rootCmd is the base command for the skkn-master CLI.
var rootCmd = &cobra.Command{
	Use:   "skkn-master",
	Short: "Draft a Vietnamese teaching-initiative report (SKKN) with an AI model",
	Long: `skkn-master writes a Sáng kiến kinh nghiệm report one part at a time. It
sends the author's details to a hosted chat model, streams the outline, then
asks for each following part in a fixed order until the report is complete.

The draft can be exported as a Word-compatible .doc file. Sessions are
archived in a local SQLite database and can be listed, shown and re-exported.
The serve command exposes the same workflow over a JSON HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "Loaded secrets: %v\n", s.Names())
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./skkn-master.yaml or ~/.config/skkn-master/skkn-master.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("skkn-master")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "skkn-master"))
		}
	}

	setDefaults()
	viper.SetEnvPrefix("SKKN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
