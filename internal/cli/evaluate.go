package cli

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"productsearch/internal/app"
	"productsearch/internal/catalog"
	"productsearch/internal/eval"
)

func newEvaluateCommand() *cobra.Command {
	var (
		sampleSize int
		seed       int64
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Measure self-retrieval recall of the loaded index",
		Long: `Sample stored entries, query the index with each entry's own vector within its
type partition and report recall@1/5/10 per type. This checks index fidelity, not
end-user search quality.

Examples:
  indexer evaluate                     # EVAL_SAMPLE_SIZE entries, EVAL_SEED
  indexer evaluate --sample 500 --seed 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := GetConfig()
			if cmd.Flags().Changed("sample") {
				cfg.EvalSampleSize = sampleSize
			}
			if cmd.Flags().Changed("seed") {
				cfg.EvalSeed = seed
			}
			return runEvaluate(cmd)
		},
	}
	cmd.Flags().IntVar(&sampleSize, "sample", eval.DefaultSampleSize, "number of entries to sample")
	cmd.Flags().Int64Var(&seed, "seed", 42, "sampling seed")

	return cmd
}

func runEvaluate(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	cfg := GetConfig()

	records, err := catalog.LoadEmbeddingsFile(cfg.EmbeddingsPath, cfg.VectorSize)
	if err != nil {
		return err
	}

	store, err := app.OpenVectorStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	manager, handle, err := app.OpenIndex(ctx, cfg, store, nil)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if bar == nil {
			bar = newProgressBar(out, total, "Evaluating")
		}
		_ = bar.Set(done)
	}

	harness := eval.NewHarness(manager, eval.WithSeed(cfg.EvalSeed), eval.WithProgress(progress))
	report, err := harness.Evaluate(ctx, handle, records, cfg.EvalSampleSize)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	fmt.Fprintf(out, "\nSelf-retrieval on %s (%d entries, sample %d, seed %d):\n\n",
		handle.Name, report.Entries, report.SampleSize, report.Seed)
	return report.WriteTable(out)
}
