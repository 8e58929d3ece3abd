// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/skkn-master/internal/archive"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived drafting sessions",
	Long: `History lists the sessions recorded in the archive, most recently
updated first. Use "history show <id>" to print one session's transcript.`,
	RunE: runHistoryList,
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := historyStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	sessions, err := store.ListSessions(context.Background(), limit)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatHistoryOutput(cmd.OutOrStdout(), sessions, jsonOutput)
}

func formatHistoryOutput(w io.Writer, sessions []archive.Session, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return nil
	}

	fmt.Fprintf(w, "%-36s  %-12s  %-16s  %s\n", "ID", "Step", "Updated", "Topic")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, s := range sessions {
		topic := []rune(s.Info.Topic)
		if len(topic) > 40 {
			topic = append(topic[:37], []rune("...")...)
		}
		fmt.Fprintf(w, "%-36s  %-12s  %-16s  %s\n",
			s.ID, s.Step, s.UpdatedAt.Local().Format("2006-01-02 15:04"), string(topic))
	}
	fmt.Fprintf(w, "\n%d sessions\n", len(sessions))
	return nil
}

// --- show subcommand ---

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an archived session's transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := historyStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	w := cmd.OutOrStdout()

	if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
		return store.ExportYAML(ctx, args[0], w)
	}

	sess, err := store.GetSession(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Session:  %s\n", sess.ID)
	fmt.Fprintf(w, "Topic:    %s\n", sess.Info.Topic)
	fmt.Fprintf(w, "Subject:  %s, grade %s\n", sess.Info.Subject, sess.Info.Grade)
	fmt.Fprintf(w, "School:   %s\n", sess.Info.School)
	fmt.Fprintf(w, "Textbook: %s\n", sess.Info.Textbook)
	fmt.Fprintf(w, "Step:     %s (%s)\n", sess.Step, sess.Step.Label())

	for i, t := range sess.Turns {
		fmt.Fprintf(w, "\n--- turn %d: %s ---\n", i+1, t.Step.Label())
		fmt.Fprintf(w, "> %s\n\n", strings.ReplaceAll(t.Prompt, "\n", "\n> "))
		fmt.Fprintln(w, t.Response)
		if t.Error != "" {
			fmt.Fprintf(w, "[error] %s\n", t.Error)
		}
	}
	return nil
}

func historyStore(cmd *cobra.Command) (*archive.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store, err := openArchive(cfg)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("archive is disabled (archive.path is empty)")
	}
	return store, nil
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of sessions to list")
	historyCmd.Flags().Bool("json", false, "output sessions as JSON")

	historyShowCmd.Flags().Bool("yaml", false, "print the full session as YAML")

	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}
