package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewPagesCmd creates the pages command.
func NewPagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pages [flags]",
		Short: "List or clear stored pages",
		Long: `Pages prints how many pages are stored and lists them, oldest first.

Examples:
  crawl pages --limit 20
  crawl pages --offset 100 --limit 50
  crawl pages --clear`,
		Args: cobra.NoArgs,
		RunE: runPagesCmd,
	}

	cmd.Flags().IntP("limit", "l", 50, "Maximum number of pages to list")
	cmd.Flags().Int("offset", 0, "Number of pages to skip")
	cmd.Flags().Bool("clear", false, "Delete every stored page")

	return cmd
}

func runPagesCmd(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	if limit < 1 || offset < 0 {
		return fmt.Errorf("--limit must be positive and --offset cannot be negative")
	}

	ctx := cmd.Context()
	env, err := openEnvironment(ctx, cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	out := cmd.OutOrStdout()

	stats, err := env.db.GetPageStats(ctx)
	if err != nil {
		return err
	}

	if wipe, _ := cmd.Flags().GetBool("clear"); wipe {
		if err := env.db.ClearPages(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "Cleared %d pages\n", stats.TotalPages)
		return nil
	}

	fmt.Fprintf(out, "Stored pages: %d (crawled %d)\n", stats.TotalPages, stats.CrawledPages)
	if stats.TotalPages == 0 {
		return nil
	}

	pages, err := env.db.ListPages(ctx, limit, offset)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tURL\tSIZE\tSTORED")
	for _, page := range pages {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", page.ID, page.URL, len(page.Content), page.CreatedAt.Format(time.DateTime))
	}
	return tw.Flush()
}
