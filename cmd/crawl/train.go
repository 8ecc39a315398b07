package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/Harvey-AU/knowledge-crawler/internal/classify"
	"github.com/spf13/cobra"
)

// NewTrainCmd creates the train command.
func NewTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train [--import file.csv]",
		Short: "Import crawl history and show the fitted page estimates",
		Long: `Train optionally imports crawl history rows from a CSV file, then fits the
page estimator on all stored history and prints the line used for each
business area.

The CSV needs a header row with the columns url, depth, pages_extracted and
area_label, in any order.`,
		Args: cobra.NoArgs,
		RunE: runTrainCmd,
	}

	cmd.Flags().StringP("import", "i", "", "CSV file of history rows to import first")

	return cmd
}

func runTrainCmd(cmd *cobra.Command, _ []string) error {
	env, err := openEnvironment(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	out := cmd.OutOrStdout()

	if path, _ := cmd.Flags().GetString("import"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()

		n, err := env.db.ImportHistoryCSV(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", path, err)
		}
		fmt.Fprintf(out, "Imported %d history rows from %s\n\n", n, path)
	}

	estimator, err := trainedEstimator(cmd, env)
	if err != nil {
		return err
	}

	lines, err := estimator.Lines()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AREA\tINTERCEPT\tSLOPE\tSAMPLES\tSOURCE")
	for _, area := range classify.SupportedAreas() {
		line := lines[area]
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%d\t%s\n", area, line.Intercept, line.Slope, line.Samples, line.Source)
	}
	return tw.Flush()
}
