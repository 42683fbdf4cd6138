package main

import (
	"fmt"
	"io"
	"os"

	"book-club/club"
	"book-club/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type importOptions struct {
	configPath string
	dbPath     string
	shelf      string
	dryRun     bool
}

type importSummary struct {
	Added, Skipped, Failed int
}

func main() {
	var opts importOptions
	cmd := &cobra.Command{
		Use:          "import_books <goodreads_export.csv>",
		Short:        "Add a Goodreads export to the book club waiting list",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "bookclub.yaml", "path to the YAML config file")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides config)")
	cmd.Flags().StringVar(&opts.shelf, "shelf", "to-read", `exclusive shelf to import, "" for every row`)
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "report what would be added without writing")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runImport(out io.Writer, exportPath string, opts importOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.dbPath != "" {
		cfg.DatabasePath = opts.dbPath
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	log, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	c, err := club.Open(cfg.DatabasePath, club.WithLogger(log.Named("club")), club.WithSeed(cfg.SeedBooks))
	if err != nil {
		return err
	}
	defer c.Close()

	f, err := os.Open(exportPath)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := readGoodreads(f, opts.shelf)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Importing %d book(s) from %s...\n", len(rows), exportPath)
	sum := importRows(out, c, rows, opts.dryRun)

	fmt.Fprintf(out, "\nImport complete!\n")
	fmt.Fprintf(out, "Added: %d  Already on the shelf: %d  Errors: %d\n", sum.Added, sum.Skipped, sum.Failed)
	if cur, ok := c.CurrentBook(); ok {
		fmt.Fprintf(out, "Currently reading: %s by %s\n", cur.Title, cur.Author)
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d row(s) could not be imported", sum.Failed)
	}
	return nil
}

func importRows(out io.Writer, c *club.Club, rows []exportRow, dryRun bool) importSummary {
	var sum importSummary
	// a dry run writes nothing, so repeats within the export are caught here
	var pending []exportRow
	for _, row := range rows {
		if existing, ok := c.FindMatchingBook(row.Title, row.Author); ok {
			fmt.Fprintf(out, "Skipping: %s by %s (matches ID %d)\n", row.Title, row.Author, existing.ID)
			sum.Skipped++
			continue
		}
		if dryRun {
			if line, ok := pendingMatch(pending, row); ok {
				fmt.Fprintf(out, "Skipping: %s by %s (repeats line %d)\n", row.Title, row.Author, line)
				sum.Skipped++
				continue
			}
			pending = append(pending, row)
			fmt.Fprintf(out, "Would add: %s by %s\n", row.Title, row.Author)
			sum.Added++
			continue
		}

		fmt.Fprintf(out, "Importing: %s by %s... ", row.Title, row.Author)
		b, err := c.AddBook(club.BookDraft{Title: row.Title, Author: row.Author})
		if err != nil {
			fmt.Fprintf(out, "ERROR (line %d) - %v\n", row.Line, err)
			sum.Failed++
			continue
		}
		fmt.Fprintf(out, "SUCCESS (ID: %d)\n", b.ID)
		sum.Added++
	}
	return sum
}

func pendingMatch(pending []exportRow, row exportRow) (int, bool) {
	for _, p := range pending {
		if club.SameBook(p.Title, p.Author, row.Title, row.Author) {
			return p.Line, true
		}
	}
	return 0, false
}
