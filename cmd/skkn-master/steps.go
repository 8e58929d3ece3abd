// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/skkn-master/internal/sequencer"
	"github.com/pdiddy/skkn-master/pkg/types"
)

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "Print the drafting steps and the prompt that leaves each one",
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		for i, step := range types.Steps() {
			fmt.Fprintf(w, "%d. %-13s %s: %s\n", i, step, step.Label(), step.Description())
			if tr, ok := sequencer.NextTransition(step); ok {
				fmt.Fprintf(w, "   next: %q -> %s\n", tr.Prompt, tr.Target)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(stepsCmd)
}
