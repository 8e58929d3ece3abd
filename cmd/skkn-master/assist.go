// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/skkn-master/internal/assist"
	"github.com/pdiddy/skkn-master/internal/llm"
)

var outlineCmd = &cobra.Command{
	Use:   "outline",
	Short: "Ask for a structured outline of an initiative",
	Long: `Outline sends the title, subject and grade to the model in a single
request and prints the abstract, situation, solutions and results it
proposes. Nothing is archived.`,
	RunE: runOutline,
}

func runOutline(cmd *cobra.Command, args []string) error {
	svc, err := oneShotService(cmd)
	if err != nil {
		return err
	}

	var req assist.OutlineRequest
	req.Title, _ = cmd.Flags().GetString("title")
	req.Subject, _ = cmd.Flags().GetString("subject")
	req.Grade, _ = cmd.Flags().GetString("grade")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out, err := assist.GenerateOutline(ctx, svc, req)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatOutline(cmd.OutOrStdout(), out, jsonOutput)
}

func formatOutline(w io.Writer, out assist.Outline, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "Tóm tắt:\n  %s\n\n", out.Abstract)
	fmt.Fprintf(w, "Thực trạng:\n  %s\n\n", out.Situation)
	fmt.Fprintln(w, "Giải pháp:")
	for i, s := range out.Solutions {
		fmt.Fprintf(w, "  %d. %s\n", i+1, s)
	}
	fmt.Fprintf(w, "\nKết quả:\n  %s\n", out.Results)
	return nil
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <task>",
	Short: "Ask for a suggestion about a passage",
	Long: `Suggest sends one task to the model, together with the passage it is
about. The passage comes from --context, or from --context-file ("-" reads
stdin).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSuggest,
}

func runSuggest(cmd *cobra.Command, args []string) error {
	svc, err := oneShotService(cmd)
	if err != nil {
		return err
	}

	passage, _ := cmd.Flags().GetString("context")
	if path, _ := cmd.Flags().GetString("context-file"); path != "" {
		var data []byte
		if path == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return fmt.Errorf("reading context: %w", err)
		}
		passage = string(data)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	text, err := assist.Suggest(ctx, svc, strings.Join(args, " "), passage)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func oneShotService(cmd *cobra.Command) (llm.Service, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return llm.New(cfg.AI)
}

func init() {
	outlineCmd.Flags().String("title", "", "initiative title (Tiêu đề)")
	outlineCmd.Flags().String("subject", "", "subject taught (Môn)")
	outlineCmd.Flags().String("grade", "", "grade or level (Khối)")
	outlineCmd.Flags().Bool("json", false, "print the outline as JSON")
	outlineCmd.Flags().String("provider", "", "generation provider: gemini, openai, or mock")
	outlineCmd.Flags().String("model", "", "model identifier")

	suggestCmd.Flags().String("context", "", "passage the task refers to")
	suggestCmd.Flags().String("context-file", "", `file holding the passage ("-" for stdin)`)
	suggestCmd.Flags().String("provider", "", "generation provider: gemini, openai, or mock")
	suggestCmd.Flags().String("model", "", "model identifier")

	rootCmd.AddCommand(outlineCmd)
	rootCmd.AddCommand(suggestCmd)
}
