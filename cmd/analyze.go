package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fmuoria/cv-inbox-screener/internal/agent"
	"github.com/fmuoria/cv-inbox-screener/internal/export"
	"github.com/fmuoria/cv-inbox-screener/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score stored resumes against a job description",
	Long: "Score every stored resume of a user against a job description and print the ranking.\n" +
		"With --dir the directory is imported first, which allows a full run without a database.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return analyze(cmd)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	addFetchFlags(analyzeCmd)

	analyzeCmd.Flags().String("job", "", "file containing the job description")
	analyzeCmd.Flags().String("job-text", "", "job description text, used when --job is not set")
	analyzeCmd.Flags().StringP("out", "o", "", "write an Excel report to this path")
}

func jobDescription(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("job")
	if path == "" {
		text, _ := cmd.Flags().GetString("job-text")
		if text == "" {
			return "", fmt.Errorf("either --job or --job-text is required")
		}
		return text, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading job description: %w", err)
	}
	return string(b), nil
}

func analyze(cmd *cobra.Command) error {
	ctx := cmd.Context()

	jd, err := jobDescription(cmd)
	if err != nil {
		return err
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	scorer, closeScorer, err := newScorer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeScorer()

	screener := agent.NewScreener(store, newHarvester(store, cfg, log), scorer, nil, log)
	screener.SetProgressCallback(printProgress(cmd.ErrOrStderr()))

	flags := readFetchFlags(cmd)
	if flags.dir != "" {
		resp, err := runFetch(ctx, cmd, cfg, screener, flags)
		if err != nil {
			return err
		}
		log.Info(resp.Message)
	}

	resp, err := screener.AnalyzeCVs(ctx, flags.user, jd)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), resp.Message)

	results, err := screener.Results(ctx, flags.user)
	if err != nil {
		return err
	}
	printResults(cmd.OutOrStdout(), results)

	if out, _ := cmd.Flags().GetString("out"); out != "" {
		path, err := export.ExportToExcel(results, out)
		if err != nil {
			return err
		}
		log.Info("report written", zap.String("path", path))
	}

	return nil
}

func printResults(w io.Writer, results []models.CVWithAnalysis) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSCORE\tCANDIDATE\tEMAIL\tSTRENGTHS\tWEAKNESSES")
	for i, r := range results {
		score, strengths, weaknesses := "-", "", ""
		if r.Analysis != nil {
			score = fmt.Sprint(r.Analysis.Score)
			strengths = strings.Join(r.Analysis.Strengths, "; ")
			weaknesses = strings.Join(r.Analysis.Weaknesses, "; ")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, score, r.CandidateName, r.CandidateEmail, strengths, weaknesses)
	}
	tw.Flush()
}
