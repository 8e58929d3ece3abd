// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/skkn-master/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a draft as a Word-compatible .doc file",
	Long: `Export converts a draft to HTML wrapped for Microsoft Word and writes it as
<prefix>_<author>_<year>.doc. The draft is either an archived session
(--session) or a markdown file (--input).`,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	sessionID, _ := cmd.Flags().GetString("session")
	input, _ := cmd.Flags().GetString("input")
	if (sessionID == "") == (input == "") {
		return errors.New("exactly one of --session or --input is required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var markdown string
	if input != "" {
		data, err := os.ReadFile(input)
		if err != nil {
			return fmt.Errorf("reading draft: %w", err)
		}
		markdown = string(data)
	} else {
		store, err := openArchive(cfg)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("archive is disabled (archive.path is empty)")
		}
		defer store.Close()

		sess, err := store.GetSession(context.Background(), sessionID)
		if err != nil {
			return err
		}
		markdown = sess.Document
	}

	path, err := export.WriteFile(cfg.Export.OutputDir, markdown, exportOptions(cfg), time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
	return nil
}

func init() {
	exportCmd.Flags().String("session", "", "archived session ID")
	exportCmd.Flags().String("input", "", "markdown file to export")
	exportCmd.Flags().String("output-dir", "", "directory for exported files (default from export.output_dir)")

	rootCmd.AddCommand(exportCmd)
}
