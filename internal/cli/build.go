package cli

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"productsearch/internal/app"
	"productsearch/internal/builder"
	"productsearch/internal/catalog"
	"productsearch/internal/encoder"
	"productsearch/internal/storage"
)

// maxFailedListed caps the failed product ids printed after a build.
const maxFailedListed = 20

func newBuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Embed catalog products into the embeddings file",
		Long: `Embed every catalog product: one text embedding per product and one embedding
per downloadable image. Images are kept in the image store so later builds reuse them.
The result is written to EMBEDDINGS_PATH.`,
		Args: cobra.NoArgs,
		RunE: runBuild,
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	cfg := GetConfig()

	db, err := app.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	products, err := storage.NewProductRepo(db).ListAll(ctx)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return errors.New("catalog is empty, run import first")
	}

	images, err := app.OpenImageStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open image store: %w", err)
	}

	enc := app.NewEncoder(cfg)
	if err := encoder.Probe(ctx, enc); err != nil {
		return err
	}

	fmt.Fprintf(out, "Embedding %d products...\n", len(products))

	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	startTime := time.Now()

	b := builder.New(builder.Config{
		Encoder: enc,
		Fetcher: builder.NewFetcher(&http.Client{}, cfg.ImageFetchRetries, cfg.ImageFetchTimeout),
		Images:  images,
		Workers: cfg.BuildWorkers,
		OnProgress: func(done, total int) {
			barMu.Lock()
			defer barMu.Unlock()

			if bar == nil {
				bar = newProgressBar(out, total, "Building")
			}
			_ = bar.Set(done)

			elapsed := time.Since(startTime)
			rate := float64(done) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Building[reset] ETA: %s", formatDuration(eta)))
			}
		},
	})

	records, failed, stats, err := b.Build(ctx, products)
	if err != nil {
		return fmt.Errorf("build interrupted: %w", err)
	}

	if err := catalog.SaveEmbeddingsFile(cfg.EmbeddingsPath, records); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nBuild complete:\n")
	fmt.Fprintf(out, "  Products processed:  %d\n", stats.ProductsProcessed)
	fmt.Fprintf(out, "  Records written:     %d\n", len(records))
	fmt.Fprintf(out, "  Products failed:     %d\n", stats.ProductsFailed)
	fmt.Fprintf(out, "  Without images:      %d\n", stats.ProductsWithoutImages)
	fmt.Fprintf(out, "  Images embedded:     %d (%d reused)\n", stats.ImagesEmbedded, stats.ImagesReused)
	fmt.Fprintf(out, "  Images skipped:      %d\n", stats.ImagesSkipped)

	if len(stats.ImagesSkippedReasons) > 0 {
		reasons := make([]string, 0, len(stats.ImagesSkippedReasons))
		for reason := range stats.ImagesSkippedReasons {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(out, "    %-12s %d\n", reason+":", stats.ImagesSkippedReasons[reason])
		}
	}

	if len(failed) > 0 {
		fmt.Fprintf(out, "\nFailed products:\n")
		for i, id := range failed {
			if i == maxFailedListed {
				fmt.Fprintf(out, "  ... and %d more\n", len(failed)-maxFailedListed)
				break
			}
			fmt.Fprintf(out, "  - %s\n", id)
		}
	}

	fmt.Fprintf(out, "\nEmbeddings stored at: %s\n", cfg.EmbeddingsPath)
	return nil
}
