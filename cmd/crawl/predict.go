package main

import (
	"fmt"

	"github.com/Harvey-AU/knowledge-crawler/internal/cache"
	"github.com/Harvey-AU/knowledge-crawler/internal/classify"
	"github.com/Harvey-AU/knowledge-crawler/internal/crawler"
	"github.com/spf13/cobra"
)

// NewPredictCmd creates the predict command.
func NewPredictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict --depth N <url>",
		Short: "Estimate how many pages a crawl of a site would extract",
		Long: `Predict fetches the page at <url>, classifies it into a business area and
estimates the pages a crawl to --depth would extract, using a regression
fitted on stored crawl history.

Import history with "crawl train --import" before predicting.`,
		Args: cobra.ExactArgs(1),
		RunE: runPredictCmd,
	}

	cmd.Flags().IntP("depth", "d", 1, "Crawl depth to estimate for")

	return cmd
}

func runPredictCmd(cmd *cobra.Command, args []string) error {
	depth, _ := cmd.Flags().GetInt("depth")

	env, err := openEnvironment(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	estimator, err := trainedEstimator(cmd, env)
	if err != nil {
		return err
	}

	fetcher := crawler.NewFetcher(crawler.NewHTTPClient(env.cfg.Crawl.FetchTimeout), env.cfg.Crawl.UserAgent)
	predictor := classify.NewPredictor(fetcher, classify.NewKeywordClassifier(), estimator, cache.NewInMemoryCache())

	prediction, err := predictor.Predict(cmd.Context(), args[0], depth)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "URL:             %s\n", prediction.URL)
	fmt.Fprintf(out, "Area:            %s\n", prediction.Area)
	fmt.Fprintf(out, "Depth:           %d\n", prediction.Depth)
	fmt.Fprintf(out, "Predicted pages: %.1f\n", prediction.PredictedPages)
	return nil
}

// trainedEstimator fits an estimator on the stored history
func trainedEstimator(cmd *cobra.Command, env *environment) (*classify.Estimator, error) {
	history, err := env.db.ListHistory(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to load crawl history: %w", err)
	}

	estimator := classify.NewEstimator()
	if err := estimator.Train(history); err != nil {
		return nil, err
	}
	return estimator, nil
}
