package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Harvey-AU/knowledge-crawler/internal/cache"
	"github.com/Harvey-AU/knowledge-crawler/internal/classify"
	"github.com/Harvey-AU/knowledge-crawler/internal/crawler"
	"github.com/Harvey-AU/knowledge-crawler/internal/jobs"
	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run [flags] <seed-url>...",
		Aliases: []string{"crawl"},
		Short:   "Crawl one or more seed URLs into a knowledge base",
		Long: `Run crawls each seed URL in turn, breadth-first up to --depth, and stores
every HTML page it fetches. The run is recorded under --name; a knowledge
base with that name is created if it does not exist yet.

Interrupting the command stops the crawl after the current depth level;
pages already fetched are still stored.

Examples:
  crawl run --depth 2 https://example.com
  crawl run --name docs --workers 4 --delay 0.5 https://a.example https://b.example`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCrawlCmd,
	}

	cmd.Flags().IntP("depth", "d", 1, "Maximum link depth from each seed")
	cmd.Flags().StringP("name", "n", "", "Knowledge base name (default: derived from the first seed's host)")
	cmd.Flags().IntP("workers", "w", 0, "Concurrent fetches per depth level (default from configuration)")
	cmd.Flags().Int("max-links", 0, "Links taken from each page (default from configuration)")
	cmd.Flags().Float64("delay", -1, "Seconds to pause between depth levels (default from configuration)")
	cmd.Flags().StringSlice("types", nil, `Allowed path suffixes, e.g. ".html,.htm," (a trailing comma allows extensionless paths)`)
	cmd.Flags().Bool("strict-robots", false, "Fail when robots.txt cannot be retrieved")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	req, err := buildCreateRequest(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := openEnvironment(ctx, cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	service := jobs.NewService(env.db, cache.NewInMemoryCache(), env.cfg.Crawl,
		jobs.WithClassifier(classify.NewKeywordClassifier()))
	defer func() { _ = service.Shutdown(context.WithoutCancel(ctx)) }()

	summary, runErr := service.RunNow(ctx, req)
	if summary != nil {
		printSummary(cmd, summary)
	}
	return runErr
}

// buildCreateRequest turns flags into a request; only flags the user set
// override the configured defaults.
func buildCreateRequest(cmd *cobra.Command, args []string) (jobs.CreateRequest, error) {
	flags := cmd.Flags()

	depth, _ := flags.GetInt("depth")
	name, _ := flags.GetString("name")
	if name == "" {
		derived, err := nameFromSeed(args[0])
		if err != nil {
			return jobs.CreateRequest{}, err
		}
		name = derived
	}

	overrides := &crawler.Overrides{}
	if flags.Changed("workers") {
		workers, _ := flags.GetInt("workers")
		overrides.MaxWorkers = &workers
	}
	if flags.Changed("max-links") {
		maxLinks, _ := flags.GetInt("max-links")
		overrides.MaxLinksPerPage = &maxLinks
	}
	if flags.Changed("delay") {
		delay, _ := flags.GetFloat64("delay")
		overrides.DelaySeconds = &delay
	}
	if flags.Changed("types") {
		types, _ := flags.GetStringSlice("types")
		overrides.AllowedFileTypes = normaliseTypes(types)
	}
	if flags.Changed("strict-robots") {
		strict, _ := flags.GetBool("strict-robots")
		overrides.StrictRobots = &strict
	}

	return jobs.CreateRequest{
		Name:     name,
		URLs:     args,
		Depth:    depth,
		Settings: overrides,
	}, nil
}

// nameFromSeed derives a knowledge base name such as "example.com"
func nameFromSeed(seed string) (string, error) {
	u, err := url.Parse(seed)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid seed URL %q", seed)
	}
	return strings.ToLower(u.Hostname()), nil
}

// normaliseTypes lowercases suffixes, keeping empty entries that allow
// extensionless paths
func normaliseTypes(types []string) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = strings.ToLower(strings.TrimSpace(t))
	}
	return out
}

func printSummary(cmd *cobra.Command, summary *jobs.RunSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Knowledge base: %s\n", summary.Name)
	fmt.Fprintf(out, "Run:            %s\n", summary.RunID)
	fmt.Fprintf(out, "Pages:          %d\n", summary.PagesExtracted)
	fmt.Fprintf(out, "Duration:       %s\n\n", summary.Duration.Round(time.Millisecond))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEED\tFETCHED\tDISCOVERED\tAREA")
	for _, result := range summary.Results {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", result.SeedURL, result.Fetched, result.Discovered, result.AreaLabel)
	}
	_ = tw.Flush()

	for _, e := range summary.Errors {
		fmt.Fprintf(out, "error: %s\n", e)
	}
}
