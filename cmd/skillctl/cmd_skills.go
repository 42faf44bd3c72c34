package main

import (
	"fmt"
	"strings"

	"mailmind_server/internal/bootstrap"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the skill library to the snapshot store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDeps(cmd.Context(), func(deps *bootstrap.Dependencies) error {
			snap, err := deps.SkillService.ExportSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d skills (%s backend)\n", snap.Total, deps.Config.SnapshotBackend)
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load skills from the snapshot store, skipping existing names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDeps(cmd.Context(), func(deps *bootstrap.Dependencies) error {
			n, err := deps.SkillService.ImportSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d skills\n", n)
			return nil
		})
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List skill categories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDeps(cmd.Context(), func(deps *bootstrap.Dependencies) error {
			categories, err := deps.SkillService.Categories(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range categories {
				fmt.Fprintln(out, c)
			}
			return nil
		})
	},
}

var matchFlags struct {
	category string
}

var matchCmd = &cobra.Command{
	Use:   "match <text>",
	Short: "Rank active skills against a piece of text",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMatch,
}

func init() {
	matchCmd.Flags().StringVar(&matchFlags.category, "category", "", "Restrict matching to one category")
}

func runMatch(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	var category *string
	if matchFlags.category != "" {
		category = &matchFlags.category
	}

	return withDeps(cmd.Context(), func(deps *bootstrap.Dependencies) error {
		matches, err := deps.SkillService.Match(cmd.Context(), text, category)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(matches) == 0 {
			fmt.Fprintln(out, "No matching skills")
			return nil
		}
		for i, m := range matches {
			fmt.Fprintf(out, "%d. %s (%s) confidence=%.2f keywords=%s\n",
				i+1, m.SkillNameEn, m.Category, m.Confidence, strings.Join(m.MatchedKeywords, ","))
		}
		return nil
	})
}
