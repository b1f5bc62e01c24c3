package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"productsearch/internal/app"
	"productsearch/internal/catalog"
	"productsearch/internal/storage"
)

func newImportCommand() *cobra.Command {
	var csvPath string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import catalog rows from a CSV file",
		Long: `Import product rows into the sqlite catalog. Rows are upserted by product id,
so re-importing an updated export is safe.

Examples:
  indexer import --csv amazon_products.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, csvPath)
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "path to the product CSV export")
	_ = cmd.MarkFlagRequired("csv")

	return cmd
}

func runImport(cmd *cobra.Command, csvPath string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	cfg := GetConfig()

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open csv: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	products, skipped, err := catalog.ReadProductsCSV(f)
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

	repo := storage.NewProductRepo(db)
	written, err := repo.Upsert(ctx, products)
	if err != nil {
		return err
	}
	total, err := repo.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Import complete:\n")
	fmt.Fprintf(out, "  Rows imported:  %d\n", written)
	fmt.Fprintf(out, "  Rows skipped:   %d (no product id)\n", skipped)
	fmt.Fprintf(out, "  Catalog size:   %d\n", total)
	if cfg.RedisAddr != "" {
		evictCachedProducts(cmd, repo, products)
	}
	fmt.Fprintf(out, "\nCatalog stored at: %s\n", cfg.DBPath)
	return nil
}

// evictCachedProducts drops re-imported products from the Redis cache so the API
// serves the new rows. An unreachable cache only delays that until the TTL expires.
func evictCachedProducts(cmd *cobra.Command, repo *storage.ProductRepo, products []catalog.Product) {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	cfg := GetConfig()

	lookup, err := app.NewProductLookup(ctx, cfg, repo)
	if err != nil {
		slog.WarnContext(ctx, "product cache unreachable, skipping eviction", "addr", cfg.RedisAddr, "error", err)
		fmt.Fprintf(out, "  Cache evicted:  skipped (redis unreachable, entries expire after %s)\n", cfg.CacheTTL)
		return
	}
	defer func() {
		_ = lookup.Close()
	}()

	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	_ = lookup.Cache.DeleteProducts(ctx, ids)
	fmt.Fprintf(out, "  Cache evicted:  %d\n", len(ids))
}
