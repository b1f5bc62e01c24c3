package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"productsearch/internal/app"
	"productsearch/internal/catalog"
	"productsearch/internal/index"
	"productsearch/internal/storage"
)

func newLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load the embeddings file into the vector index",
		Long: `Create the vector index if needed and load every text and image embedding from
EMBEDDINGS_PATH. A populated index is left untouched, so repeated loads never duplicate entries.`,
		Args: cobra.NoArgs,
		RunE: runLoad,
	}
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	cfg := GetConfig()

	records, err := catalog.LoadEmbeddingsFile(cfg.EmbeddingsPath, cfg.VectorSize)
	if err != nil {
		return err
	}

	db, err := app.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	store, err := app.OpenVectorStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	manager, handle, err := app.OpenIndex(ctx, cfg, store, storage.NewLockRepo(db))
	if err != nil {
		return err
	}

	entries := 0
	for _, r := range records {
		entries += 1 + len(r.ImageEmbeddings)
	}
	fmt.Fprintf(out, "Loading %d records (%d entries) into %s...\n", len(records), entries, handle.Name)

	bar := newProgressBar(out, entries, "Loading")
	stats, err := manager.LoadWithProgress(ctx, handle, records, func(written int) {
		_ = bar.Set(written)
	})
	if errors.Is(err, index.ErrLoadInProgress) {
		return fmt.Errorf("index %s is being loaded by another process", handle.Name)
	}
	if err != nil {
		return err
	}

	if stats.Skipped {
		fmt.Fprintf(out, "\nIndex %s already holds %d entries, nothing loaded.\n", handle.Name, stats.ExistingCount)
		return nil
	}

	fmt.Fprintf(out, "\nLoad complete:\n")
	fmt.Fprintf(out, "  Records:  %d\n", stats.Records)
	fmt.Fprintf(out, "  Entries:  %d\n", stats.Entries)
	fmt.Fprintf(out, "  Batches:  %d\n", stats.Batches)
	return nil
}
