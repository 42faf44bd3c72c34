package main

import (
	"fmt"
	"io"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/in"
	"mailmind_server/internal/bootstrap"

	"github.com/spf13/cobra"
)

var evolveCmd = &cobra.Command{
	Use:   "evolve <reply-id>",
	Short: "Refine skills from a human-edited reply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd.Context(), func(deps *bootstrap.Dependencies) error {
			out := cmd.OutOrStdout()
			result := deps.EvolutionAgent.Evolve(cmd.Context(), &in.EvolveRequest{
				ReplyID:    args[0],
				OnProgress: printProgress(out),
			})

			fmt.Fprintf(out, "Status: %s\n", result.Status)
			if result.Summary != "" {
				fmt.Fprintf(out, "Summary: %s\n", result.Summary)
			}
			for _, c := range result.Changes {
				fmt.Fprintf(out, "  %s %s: %s\n", c.ChangeType, c.SkillName, c.Detail)
			}
			return runErrors(result.Status, result.Errors)
		})
	},
}

var learnFlags struct {
	count      int
	force      bool
	categories []string
}

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Extract skills from historical customer service emails",
	Args:  cobra.NoArgs,
	RunE:  runLearn,
}

func init() {
	f := learnCmd.Flags()
	f.IntVar(&learnFlags.count, "count", 0, "Number of emails to analyze (default LEARN_EMAIL_COUNT)")
	f.BoolVar(&learnFlags.force, "force", false, "Replace existing skills with the same name")
	f.StringSliceVar(&learnFlags.categories, "category", nil, "Only learn these categories")
}

func runLearn(cmd *cobra.Command, _ []string) error {
	return withDeps(cmd.Context(), func(deps *bootstrap.Dependencies) error {
		out := cmd.OutOrStdout()
		result := deps.LearningAgent.Learn(cmd.Context(), &in.LearnRequest{
			EmailCount: learnFlags.count,
			Force:      learnFlags.force,
			Categories: learnFlags.categories,
			OnProgress: printProgress(out),
		})

		fmt.Fprintf(out, "Status: %s\n", result.Status)
		fmt.Fprintf(out, "Emails: %d  Categories: %d  Created: %d  Updated: %d\n",
			result.EmailsProcessed, result.CategoriesProcessed, result.SkillsCreated, result.SkillsUpdated)
		if result.Message != "" {
			fmt.Fprintln(out, result.Message)
		}
		return runErrors(result.Status, result.Errors)
	})
}

func printProgress(w io.Writer) domain.ProgressFunc {
	return func(current, total int, message string) {
		fmt.Fprintf(w, "[%d/%d] %s\n", current, total, message)
	}
}

func runErrors(status domain.RunStatus, errs []string) error {
	if status != domain.StatusFailed {
		return nil
	}
	if len(errs) == 0 {
		return fmt.Errorf("run failed")
	}
	return fmt.Errorf("run failed: %s", errs[0])
}
