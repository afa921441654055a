package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fictotum/pkg/models"
	"github.com/Ramsey-B/fictotum/pkg/resolution"
)

var resolutionsCmd = &cobra.Command{
	Use:   "resolutions",
	Short: "Inspect and manage stored duplicate decisions",
}

var resolutionsAction string

var resolutionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored decisions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		decisions, err := env.Decisions.List(ctx)
		if err != nil {
			return eris.Wrap(err, "list decisions")
		}
		if resolutionsAction != "" {
			action, ok := models.ParseResolutionAction(resolutionsAction)
			if !ok {
				return eris.Errorf("unknown --action %q", resolutionsAction)
			}
			decisions = resolution.GroupByAction(decisions)[action]
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tACTION\tTIER\tSCORE\tSOURCE\tDECIDED")
		for _, d := range decisions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%s\t%s\n", d.Key, d.Action, d.Tier, d.Score, d.Source, d.DecidedAt.Format("2006-01-02 15:04"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d decisions\n", len(decisions))
		return nil
	},
}

var resolutionsDeleteCmd = &cobra.Command{
	Use:   "delete <key>...",
	Short: "Delete decisions so the pairs are asked again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		for _, key := range args {
			if err := env.Decisions.Delete(ctx, key); err != nil {
				return eris.Wrapf(err, "delete %s", key)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", key)
		}
		return nil
	},
}

var resolutionsYes bool

var resolutionsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every stored decision",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if !resolutionsYes {
			if err := confirmExecute("remove every stored resolution decision"); err != nil {
				return err
			}
		}
		env, err := initEnv(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		removed, err := env.Decisions.Clear(ctx)
		if err != nil {
			return eris.Wrap(err, "clear decisions")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d decisions\n", removed)
		return nil
	},
}

var resolutionsExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write every decision to a JSON or YAML file (- for stdout)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		out := cmd.OutOrStdout()
		if args[0] != "-" {
			f, err := os.Create(args[0])
			if err != nil {
				return eris.Wrap(err, "create export file")
			}
			defer f.Close()
			out = f
		}
		n, err := resolution.Export(ctx, env.Decisions, out, transferFormat(args[0]))
		if err != nil {
			return eris.Wrap(err, "export decisions")
		}
		if args[0] != "-" {
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d decisions to %s\n", n, args[0])
		}
		return nil
	},
}

var resolutionsOverwrite bool

var resolutionsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load decisions from an export or an answer file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open import file")
		}
		defer f.Close()

		env, err := initEnv(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		result, err := resolution.Import(ctx, env.Decisions, f, resolutionsOverwrite)
		if err != nil {
			return eris.Wrap(err, "import decisions")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d, replaced %d, kept %d existing\n", result.Imported, result.Replaced, result.Skipped)
		return nil
	},
}

func transferFormat(path string) resolution.Format {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return resolution.FormatYAML
	}
	return resolution.FormatJSON
}

func init() {
	resolutionsListCmd.Flags().StringVar(&resolutionsAction, "action", "", "only show use_existing, create_new or skip")
	resolutionsClearCmd.Flags().BoolVarP(&resolutionsYes, "yes", "y", false, "skip the CONFIRM prompt")
	resolutionsImportCmd.Flags().BoolVar(&resolutionsOverwrite, "overwrite", false, "replace decisions that already exist")

	resolutionsCmd.AddCommand(resolutionsListCmd, resolutionsDeleteCmd, resolutionsClearCmd, resolutionsExportCmd, resolutionsImportCmd)
	rootCmd.AddCommand(resolutionsCmd)
}
