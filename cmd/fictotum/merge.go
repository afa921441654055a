package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fictotum/pkg/merging"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

var (
	mergeKind     string
	mergeExecute  bool
	mergeRetire   string
	mergeTiebreak string
	mergeReport   string
	mergeYes      bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge-duplicates",
	Short: "Consolidate duplicate nodes of one kind (dry run unless --execute)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind, ok := models.ParseEntityKind(mergeKind)
		if !ok {
			return eris.Errorf("unknown --kind %q", mergeKind)
		}
		opts, err := mergeOptions()
		if err != nil {
			return err
		}

		if opts.Execute && !mergeYes {
			if err := confirmExecute(fmt.Sprintf("merge %s duplicates (%s)", kind, opts.Retire)); err != nil {
				return err
			}
		}

		env, err := initEnv(ctx, envOptions{Graph: true})
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		result, err := env.Engine.Run(ctx, kind, opts)
		if err != nil {
			return eris.Wrap(err, "merge")
		}

		printMergeSummary(cmd.OutOrStdout(), result)
		if mergeReport != "" {
			if err := env.Reports.Write(ctx, mergeReport, result); err != nil {
				return eris.Wrap(err, "write report")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", mergeReport)
		}
		if result.Failed() {
			return errRunFailed
		}
		return nil
	},
}

// mergeOptions resolves flags over the configured retire mode and tiebreak
func mergeOptions() (merging.Options, error) {
	retire := mergeRetire
	if retire == "" {
		retire = cfg.MergeRetireMode
	}
	tiebreak := mergeTiebreak
	if tiebreak == "" {
		tiebreak = cfg.MergeTiebreak
	}

	mode, err := merging.ParseRetireMode(retire)
	if err != nil {
		return merging.Options{}, err
	}
	policy, err := merging.ParseTiebreakPolicy(tiebreak)
	if err != nil {
		return merging.Options{}, err
	}
	return merging.Options{Execute: mergeExecute, Retire: mode, Tiebreak: policy}, nil
}

func init() {
	f := mergeCmd.Flags()
	f.StringVar(&mergeKind, "kind", string(models.EntityKindMediaWork), "entity kind to consolidate")
	f.BoolVar(&mergeExecute, "execute", false, "apply the merges (default is a dry run)")
	f.StringVar(&mergeRetire, "retire", "", "delete or tombstone consolidated duplicates (default from config)")
	f.StringVar(&mergeTiebreak, "tiebreak", "", "lowest_authoritative_id, lowest_local_id or earliest_created (default from config)")
	f.StringVar(&mergeReport, "report", "", "write an audit report to a path or s3://bucket/key")
	f.BoolVarP(&mergeYes, "yes", "y", false, "skip the CONFIRM prompt")
	rootCmd.AddCommand(mergeCmd)
}
