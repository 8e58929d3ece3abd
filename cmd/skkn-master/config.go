// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/skkn-master/internal/archive"
	"github.com/pdiddy/skkn-master/internal/export"
	"github.com/pdiddy/skkn-master/internal/logging"
	"github.com/pdiddy/skkn-master/internal/sequencer"
	"github.com/pdiddy/skkn-master/pkg/types"
)

// setDefaults registers every configuration key so that environment
// variables such as SKKN_AI_API_KEY are seen by Unmarshal.
func setDefaults() {
	d := types.DefaultAppConfig()

	viper.SetDefault("ai.provider", string(d.AI.Provider))
	// Empty so the provider's own default applies when none is set.
	viper.SetDefault("ai.model", "")
	viper.SetDefault("ai.api_key", "")
	viper.SetDefault("ai.base_url", "")
	viper.SetDefault("ai.temperature", d.AI.Temperature)
	viper.SetDefault("ai.top_p", d.AI.TopP)
	viper.SetDefault("ai.top_k", d.AI.TopK)
	viper.SetDefault("ai.max_output_tokens", d.AI.MaxOutputTokens)
	viper.SetDefault("ai.thinking_budget", d.AI.ThinkingBudget)
	viper.SetDefault("ai.max_retries", d.AI.MaxRetries)
	viper.SetDefault("ai.timeout", d.AI.Timeout)

	viper.SetDefault("export.prefix", d.Export.Prefix)
	viper.SetDefault("export.author", d.Export.Author)
	viper.SetDefault("export.output_dir", d.Export.OutputDir)

	viper.SetDefault("archive.path", d.Archive.Path)
	viper.SetDefault("server.addr", d.Server.Addr)
	viper.SetDefault("log.level", d.Log.Level)
	viper.SetDefault("log.format", d.Log.Format)
}

// loadConfig resolves the configuration from defaults, the config file and
// the environment, then fills the API key from .secrets/ when none is set.
// Flags named provider, model and output-dir override their keys when the
// command defines and sets them.
func loadConfig(cmd *cobra.Command) (types.AppConfig, error) {
	cfg := types.DefaultAppConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading configuration: %w", err)
	}

	if f := cmd.Flags().Lookup("provider"); f != nil && f.Changed {
		cfg.AI.Provider = types.Provider(f.Value.String())
	}
	if f := cmd.Flags().Lookup("model"); f != nil && f.Changed {
		cfg.AI.Model = f.Value.String()
	}
	if f := cmd.Flags().Lookup("output-dir"); f != nil && f.Changed {
		cfg.Export.OutputDir = f.Value.String()
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = types.DefaultModel(cfg.AI.Provider)
	}

	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = loadedSecrets.APIKey(cfg.AI.Provider)
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg types.AppConfig) *slog.Logger {
	return logging.New(w, cfg.Log)
}

// openArchive opens the session archive, or returns nil when archiving is
// disabled.
func openArchive(cfg types.AppConfig) (*archive.Store, error) {
	if cfg.Archive.Path == "" {
		return nil, nil
	}
	return archive.Open(cfg.Archive.Path)
}

// recorder converts a possibly nil store to a Recorder, keeping the
// interface nil when archiving is off.
func recorder(store *archive.Store) sequencer.Recorder {
	if store == nil {
		return nil
	}
	return store
}

func exportOptions(cfg types.AppConfig) export.Options {
	return export.Options{Author: cfg.Export.Author, Prefix: cfg.Export.Prefix}
}
