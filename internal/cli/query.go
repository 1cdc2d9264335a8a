package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/HerbHall/storefront/internal/catalog"
	"github.com/HerbHall/storefront/internal/config"
	"github.com/HerbHall/storefront/internal/gallery"
	"github.com/HerbHall/storefront/internal/source"
	pkgcatalog "github.com/HerbHall/storefront/pkg/catalog"
)

// productRow is the CLI rendering of a listed product.
type productRow struct {
	ID           pkgcatalog.ProductID `json:"id"`
	Name         string               `json:"name"`
	Category     string               `json:"category"`
	CategoryName string               `json:"category_name"`
	Image        string               `json:"image"`
}

func productRows(e *catalog.Engine, products []pkgcatalog.Product, placeholder string) []productRow {
	out := make([]productRow, 0, len(products))
	for _, p := range products {
		out = append(out, productRow{
			ID:           p.ID,
			Name:         p.Name,
			Category:     p.Category,
			CategoryName: e.Catalog().CategoryName(p.Category),
			Image:        gallery.CardImage(p, placeholder),
		})
	}
	return out
}

func writeProducts(f *OutputFormatter, rows []productRow) error {
	if f.JSON() {
		return f.Encode(rows)
	}
	if len(rows) == 0 {
		return f.Line("No products found.")
	}
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []string{r.ID.String(), r.Name, r.CategoryName, r.Image})
	}
	return f.Table([]string{"ID", "NAME", "CATEGORY", "IMAGE"}, cells)
}

// loadEngine loads the configured dataset, applying the catalog fallback
// policy, and builds an engine over it. A fallback catalog is used with a
// warning.
func loadEngine(ctx context.Context, cfg config.Config, logger *zap.Logger) (*catalog.Engine, error) {
	sec := cfg.Sub("plugins.catalog")
	policy, err := source.ParseFallback(sec.GetString("fallback"))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "catalog fallback", err)
	}
	tag := language.Spanish
	if raw := sec.GetString("language"); raw != "" {
		if tag, err = language.Parse(raw); err != nil {
			return nil, WrapExitError(ExitCommandError, "catalog language", err)
		}
	}

	cat, err := source.LoadWithFallback(ctx, sec.GetString("source"), policy, logger)
	if cat == nil {
		return nil, WrapExitError(ExitFailure, "load catalog", err)
	}
	return catalog.NewEngine(cat, catalog.WithLanguage(tag)), nil
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		src      string
		category string
		search   string
		sortBy   string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List displayable products with category, search and sort",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := catalog.ParseSort(sortBy)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --sort", err)
			}
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			if src != "" {
				cfg.Viper().Set("plugins.catalog.source", src)
			}

			e, err := loadEngine(cmd.Context(), cfg, rootOpts.quietLogger(cmd))
			if err != nil {
				return err
			}
			products := e.Query(catalog.Query{Category: category, Search: search, SortBy: key})
			rows := productRows(e, products, cfg.GetString("plugins.catalog.placeholder"))
			return writeProducts(newFormatter(rootOpts, cmd), rows)
		},
	}

	cmd.Flags().StringVar(&src, "source", "", "dataset file or URL (default plugins.catalog.source)")
	cmd.Flags().StringVar(&category, "category", catalog.CategoryAll, "category id, or all")
	cmd.Flags().StringVarP(&search, "search", "q", "", "case-insensitive search term")
	cmd.Flags().StringVar(&sortBy, "sort", string(catalog.SortNewest), "newest, name or category")
	return cmd
}

// NewRelatedCommand creates the related command.
func NewRelatedCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		src   string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "related <product-id>",
		Short: "Show the products related to a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return WrapExitError(ExitCommandError, "invalid --limit", fmt.Errorf("%d is not positive", limit))
			}
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			if src != "" {
				cfg.Viper().Set("plugins.catalog.source", src)
			}

			e, err := loadEngine(cmd.Context(), cfg, rootOpts.quietLogger(cmd))
			if err != nil {
				return err
			}
			id := pkgcatalog.ProductID(args[0])
			if _, ok := e.Catalog().Product(id); !ok {
				return WrapExitError(ExitFailure, "related "+args[0], catalog.ErrNotFound)
			}
			rows := productRows(e, e.Related(id, limit), cfg.GetString("plugins.catalog.placeholder"))
			return writeProducts(newFormatter(rootOpts, cmd), rows)
		},
	}

	cmd.Flags().StringVar(&src, "source", "", "dataset file or URL (default plugins.catalog.source)")
	cmd.Flags().IntVar(&limit, "limit", catalog.DefaultRelatedLimit, "maximum related products")
	return cmd
}
