// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/skkn-master/internal/export"
	"github.com/pdiddy/skkn-master/internal/llm"
	"github.com/pdiddy/skkn-master/internal/prompt"
	"github.com/pdiddy/skkn-master/internal/sequencer"
	"github.com/pdiddy/skkn-master/pkg/types"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Draft an SKKN report step by step",
	Long: `Generate sends the author's details to the model, streams the outline to
stdout, and then requests each following part in order: Phần I & II, Phần III,
Giải pháp 1, the remaining solutions, and Phần V, VI & Phụ lục.

Between parts it asks whether to continue; --auto runs every part without
asking. The details come from --info (a YAML file) and/or the individual
flags, which take precedence. With --export the finished draft is written as
a .doc file.`,
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	info, err := userInfoFromFlags(cmd)
	if err != nil {
		return err
	}

	svc, err := llm.New(cfg.AI)
	if err != nil {
		return err
	}

	store, err := openArchive(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	seq := sequencer.New(svc, sequencer.Options{
		Session:  llm.SessionConfigFrom(cfg.AI, prompt.SystemInstruction),
		Author:   cfg.Export.Author,
		Logger:   newLogger(errOut, cfg),
		Recorder: recorder(store),
		OnFragment: func(_ types.GenerationStep, text string) {
			fmt.Fprint(out, text)
		},
	})
	defer seq.Close()

	auto, _ := cmd.Flags().GetBool("auto")
	exportDoc, _ := cmd.Flags().GetBool("export")

	fmt.Fprintf(errOut, "== %s ==\n", types.StepOutline.Label())
	genErr := seq.Start(ctx, info)
	if genErr == nil {
		genErr = advanceAll(ctx, seq, cmd.InOrStdin(), errOut, auto)
	}
	fmt.Fprintln(out)

	snap := seq.Snapshot()
	if snap.SessionID != "" {
		fmt.Fprintf(errOut, "Session %s ended at %s\n", snap.SessionID, snap.Step)
	}

	if exportDoc && snap.Document != "" {
		path, err := export.WriteFile(cfg.Export.OutputDir, snap.Document, exportOptions(cfg), time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(errOut, "Exported to %s\n", path)
	}
	return genErr
}

// advanceAll requests the remaining parts, asking before each one unless
// auto is set. It stops when the user declines or input ends.
func advanceAll(ctx context.Context, seq *sequencer.Sequencer, in io.Reader, errOut io.Writer, auto bool) error {
	reader := bufio.NewReader(in)
	for seq.CanAdvance() {
		tr, _ := sequencer.NextTransition(seq.Step())
		if !auto && !confirm(reader, errOut, tr.Target.Label()) {
			return nil
		}
		fmt.Fprintf(errOut, "\n== %s ==\n", tr.Target.Label())
		if err := seq.Advance(ctx); err != nil {
			return err
		}
	}
	return nil
}

func confirm(r *bufio.Reader, w io.Writer, label string) bool {
	fmt.Fprintf(w, "\n\nContinue with %s? [Y/n] ", label)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "n", "no", "q", "quit":
		return false
	}
	return true
}

// userInfoFromFlags reads --info, then overlays any field flags that are set.
func userInfoFromFlags(cmd *cobra.Command) (types.UserInfo, error) {
	var info types.UserInfo
	if path, _ := cmd.Flags().GetString("info"); path != "" {
		loaded, err := prompt.LoadUserInfo(path)
		if err != nil {
			return info, err
		}
		info = loaded
	}

	fields := []struct {
		flag string
		dst  *string
	}{
		{"topic", &info.Topic},
		{"subject", &info.Subject},
		{"grade", &info.Grade},
		{"school", &info.School},
		{"textbook", &info.Textbook},
	}
	for _, f := range fields {
		if v, _ := cmd.Flags().GetString(f.flag); v != "" {
			*f.dst = v
		}
	}
	return info, nil
}

func init() {
	generateCmd.Flags().String("info", "", "YAML file with topic, subject, grade, school, textbook")
	generateCmd.Flags().String("topic", "", "initiative title (Đề tài)")
	generateCmd.Flags().String("subject", "", "subject taught (Môn học)")
	generateCmd.Flags().String("grade", "", "grade or level (Khối)")
	generateCmd.Flags().String("school", "", "school name (Trường)")
	generateCmd.Flags().String("textbook", "", "textbook series (Bộ sách)")
	generateCmd.Flags().String("provider", "", "generation provider: gemini, openai, or mock")
	generateCmd.Flags().String("model", "", "model identifier")
	generateCmd.Flags().Bool("auto", false, "generate every part without asking")
	generateCmd.Flags().Bool("export", false, "write the draft as a .doc file when done")
	generateCmd.Flags().String("output-dir", "", "directory for exported files (default from export.output_dir)")

	rootCmd.AddCommand(generateCmd)
}
