package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"propsearch/internal/app"
	"propsearch/internal/config"
	"propsearch/internal/evaluation"
	"propsearch/internal/model"
	"propsearch/pkg/log"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "propctl",
		Usage:     "Search, ingest and evaluate the property index",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Before: setupLogger,
		After:  syncLogger,
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Run a natural language search",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of results",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the full response as JSON",
					},
				}, filterFlags()...),
			},
			{
				Name:   "ingest",
				Usage:  "Embed and index listings from a JSON file",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "JSON array of listings, or {\"listings\": [...]}",
						Value:   "data/sample_listings.json",
					},
				},
			},
			{
				Name:      "delete",
				Usage:     "Remove listings by property id",
				ArgsUsage: "ID...",
				Action:    deleteCommand,
			},
			{
				Name:   "stats",
				Usage:  "Show index statistics",
				Action: statsCommand,
			},
			{
				Name:   "eval",
				Usage:  "Run ground-truth queries and report hit rate, recall and MRR",
				Action: evalCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "JSON array of {query, expected_properties}; defaults to the built-in cases",
					},
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of results per query",
						Value:   5,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the report as JSON",
					},
				},
			},
		},
	}
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{Name: "min-price", Usage: "Override the minimum price"},
		&cli.Int64Flag{Name: "max-price", Usage: "Override the maximum price"},
		&cli.Float64Flag{Name: "min-bedrooms", Usage: "Override the minimum bedrooms"},
		&cli.Float64Flag{Name: "min-bathrooms", Usage: "Override the minimum bathrooms"},
		&cli.Int64Flag{Name: "min-sqft", Usage: "Override the minimum square feet"},
		&cli.StringFlag{Name: "city", Usage: "Override the city"},
		&cli.StringFlag{Name: "state", Usage: "Override the state"},
		&cli.StringFlag{Name: "neighborhood", Usage: "Override the neighborhood"},
		&cli.StringFlag{Name: "type", Usage: "Override the property type"},
		&cli.StringSliceFlag{Name: "amenity", Usage: "Required amenity (repeatable)"},
	}
}

// overridesFromFlags returns the filter set explicitly on the command line,
// nil when no filter flag was given.
func overridesFromFlags(c *cli.Context) *model.QueryFilter {
	f := &model.QueryFilter{}
	set := false
	if c.IsSet("min-price") {
		f.MinPrice, set = model.Ptr(c.Int64("min-price")), true
	}
	if c.IsSet("max-price") {
		f.MaxPrice, set = model.Ptr(c.Int64("max-price")), true
	}
	if c.IsSet("min-bedrooms") {
		f.MinBedrooms, set = model.Ptr(c.Float64("min-bedrooms")), true
	}
	if c.IsSet("min-bathrooms") {
		f.MinBathrooms, set = model.Ptr(c.Float64("min-bathrooms")), true
	}
	if c.IsSet("min-sqft") {
		f.MinSquareFeet, set = model.Ptr(c.Int64("min-sqft")), true
	}
	if c.IsSet("city") {
		f.City, set = model.Ptr(c.String("city")), true
	}
	if c.IsSet("state") {
		f.State, set = model.Ptr(strings.ToUpper(c.String("state"))), true
	}
	if c.IsSet("neighborhood") {
		f.Neighborhood, set = model.Ptr(c.String("neighborhood")), true
	}
	if c.IsSet("type") {
		pt := model.PropertyType(strings.ToLower(c.String("type")))
		f.PropertyType, set = &pt, true
	}
	if c.IsSet("amenity") {
		f.RequiredAmenities, set = c.StringSlice("amenity"), true
	}
	if !set {
		return nil
	}
	return f
}

func setupLogger(c *cli.Context) error {
	log.Init(c.String("log-level"), "console", "")
	return nil
}

func syncLogger(c *cli.Context) error {
	log.Sync()
	return nil
}

// withApp loads configuration, builds the pipeline and runs fn against it
func withApp(c *cli.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("a query is required")
	}
	overrides := overridesFromFlags(c)

	return withApp(c, func(ctx context.Context, a *app.App) error {
		resp, err := a.Search.Search(ctx, query, c.Int("top-k"), overrides)
		if err != nil {
			return err
		}
		if c.Bool("json") {
			return writeJSON(c.App.Writer, resp)
		}
		printResponse(c.App.Writer, resp)
		return nil
	})
}

func printResponse(w io.Writer, resp *model.SearchResponse) {
	fmt.Fprintf(w, "Query: %s\n", resp.Query)
	fmt.Fprintf(w, "Filter: %s\n", resp.AppliedFilter)
	fmt.Fprintf(w, "Semantic text: %s\n", resp.SemanticText)
	for _, note := range resp.Notes {
		fmt.Fprintf(w, "Note: %s\n", note)
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No results")
		return
	}
	for i, r := range resp.Results {
		m := r.Listing.Metadata
		fmt.Fprintf(w, "\n%d. %s  %s\n", i+1, m.PropertyID, r.Listing.Title)
		fmt.Fprintf(w, "   %s in %s, %s  $%d  %s bd / %s ba\n",
			m.PropertyType, m.City, m.State, m.Price, formatCount(m.Bedrooms), formatCount(m.Bathrooms))
		fmt.Fprintf(w, "   final %.3f  semantic %.3f  metadata %.3f\n", r.FinalScore, r.SemanticScore, r.MetadataMatchScore)
		for _, line := range r.RationaleText() {
			fmt.Fprintf(w, "   - %s\n", line)
		}
	}
}

func formatCount(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", v), "0"), ".")
}

func ingestCommand(c *cli.Context) error {
	listings, err := app.LoadListings(c.String("file"))
	if err != nil {
		return err
	}

	return withApp(c, func(ctx context.Context, a *app.App) error {
		resp := a.Indexer.Upsert(ctx, listings)
		fmt.Fprintf(c.App.Writer, "Indexed %d listings, %d failed\n", resp.Indexed, resp.Failed)
		for _, e := range resp.Errors {
			fmt.Fprintf(c.App.Writer, "  %s: %s\n", e.PropertyID, e.Error)
		}
		if resp.Indexed == 0 && resp.Failed > 0 {
			return fmt.Errorf("no listings indexed")
		}
		return nil
	})
}

func deleteCommand(c *cli.Context) error {
	ids := c.Args().Slice()
	if len(ids) == 0 {
		return fmt.Errorf("at least one property id is required")
	}

	return withApp(c, func(ctx context.Context, a *app.App) error {
		if err := a.Indexer.Delete(ctx, ids...); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Deleted %d listings\n", len(ids))
		return nil
	})
}

func statsCommand(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		stats, err := a.Indexer.Stats(ctx)
		if err != nil {
			return err
		}
		return writeJSON(c.App.Writer, stats)
	})
}

func evalCommand(c *cli.Context) error {
	cases := evaluation.DefaultCases()
	if path := c.String("file"); path != "" {
		loaded, err := evaluation.LoadCases(path)
		if err != nil {
			return err
		}
		cases = loaded
	}

	return withApp(c, func(ctx context.Context, a *app.App) error {
		report := evaluation.NewRunner(a.Search, c.Int("top-k")).Run(ctx, cases)
		if c.Bool("json") {
			return writeJSON(c.App.Writer, report)
		}
		return report.Print(c.App.Writer)
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
