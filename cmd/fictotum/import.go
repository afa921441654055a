package main

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fictotum/pkg/importer"
	"github.com/Ramsey-B/fictotum/pkg/resolution"
	"github.com/Ramsey-B/fictotum/pkg/schema"
)

// errRunFailed makes the process exit 1 after the summary has been printed
var errRunFailed = errors.New("run failed")

var (
	importExecute                bool
	importBatchSize              int
	importReport                 string
	importAgent                  string
	importFiguresOnly            bool
	importWorksOnly              bool
	importSkipDuplicateCheck     bool
	importSkipIdentityValidation bool
	importAutoResolve            bool
	importAnswers                string
	importInteractive            bool
	importYes                    bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a curated batch into the graph (dry run unless --execute)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if importFiguresOnly && importWorksOnly {
			return eris.New("--figures-only and --works-only are exclusive")
		}

		batch, err := schema.LoadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "load batch")
		}

		provider, closePrompt, err := importProvider()
		if err != nil {
			return err
		}
		if closePrompt != nil {
			defer closePrompt()
		}

		if importExecute && !importYes {
			if err := confirmExecute(fmt.Sprintf("import %s into the graph", args[0])); err != nil {
				return err
			}
		}

		opts := envOptions{Graph: true, Provider: provider}
		if cmd.Flags().Changed("auto-resolve") {
			opts.AutoResolve = &importAutoResolve
		}
		env, err := initEnv(ctx, opts)
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		runOpts := importer.Options{
			Execute:                importExecute,
			BatchSize:              importBatchSize,
			Agent:                  importAgent,
			FiguresOnly:            importFiguresOnly,
			WorksOnly:              importWorksOnly,
			SkipDuplicateCheck:     importSkipDuplicateCheck,
			SkipIdentityValidation: importSkipIdentityValidation,
		}
		if runOpts.BatchSize == 0 {
			runOpts.BatchSize = cfg.ImportBatchSize
		}
		if runOpts.Agent == "" {
			runOpts.Agent = cfg.ImportAgent
		}

		result, importErr := env.Coordinator.Import(ctx, batch, runOpts)
		if result == nil {
			return eris.Wrap(importErr, "import")
		}

		printImportSummary(cmd.OutOrStdout(), result)
		if importReport != "" {
			if err := env.Reports.Write(ctx, importReport, result); err != nil {
				return eris.Wrap(err, "write report")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", importReport)
		}

		if importErr != nil || result.Failed() {
			return errRunFailed
		}
		return nil
	},
}

// importProvider assembles the non-automatic decision sources: answer file first, then the prompt
func importProvider() (resolution.DecisionProvider, func() error, error) {
	var chain resolution.ChainProvider
	if importAnswers != "" {
		answers, err := resolution.LoadAnswerFile(importAnswers)
		if err != nil {
			return nil, nil, eris.Wrap(err, "load answer file")
		}
		chain = append(chain, answers)
	}

	var closePrompt func() error
	if importInteractive {
		prompt, closeFn, err := resolution.NewTerminalPrompt()
		if err != nil {
			return nil, nil, eris.Wrap(err, "open prompt")
		}
		chain = append(chain, prompt)
		closePrompt = closeFn
	}

	if len(chain) == 0 {
		return nil, nil, nil
	}
	return chain, closePrompt, nil
}

var checkReport string

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Report which records of a batch already exist in the graph, writing nothing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		batch, err := schema.LoadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "load batch")
		}

		env, err := initEnv(ctx, envOptions{Graph: true})
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		result, checkErr := env.Coordinator.Check(ctx, batch)
		if result == nil {
			return eris.Wrap(checkErr, "check")
		}
		printCheckSummary(cmd.OutOrStdout(), result)
		if checkReport != "" {
			if err := env.Reports.Write(ctx, checkReport, result); err != nil {
				return eris.Wrap(err, "write report")
			}
		}
		if checkErr != nil {
			return errRunFailed
		}
		return nil
	},
}

func init() {
	f := importCmd.Flags()
	f.BoolVar(&importExecute, "execute", false, "write to the graph (default is a dry run)")
	f.IntVar(&importBatchSize, "batch-size", importer.DefaultBatchSize, "entities or relationships per write transaction")
	f.StringVar(&importReport, "report", "", "write an audit report to a path or s3://bucket/key (.json for JSON, otherwise markdown)")
	f.StringVar(&importAgent, "agent", "", "agent recorded as CREATED_BY on new entities (default from config)")
	f.BoolVar(&importFiguresOnly, "figures-only", false, "import only figures")
	f.BoolVar(&importWorksOnly, "works-only", false, "import only works")
	f.BoolVar(&importSkipDuplicateCheck, "skip-duplicate-check", false, "treat every record as new")
	f.BoolVar(&importSkipIdentityValidation, "skip-identity-validation", false, "do not call the identity service")
	f.BoolVar(&importAutoResolve, "auto-resolve", false, "link exact and high confidence matches without asking")
	f.StringVar(&importAnswers, "answers", "", "YAML file of pre-decided resolutions")
	f.BoolVar(&importInteractive, "interactive", false, "ask at the terminal for undecided duplicates")
	f.BoolVarP(&importYes, "yes", "y", false, "skip the CONFIRM prompt")
	rootCmd.AddCommand(importCmd)

	checkCmd.Flags().StringVar(&checkReport, "report", "", "write the duplicate report to a path or s3://bucket/key")
	rootCmd.AddCommand(checkCmd)

}
