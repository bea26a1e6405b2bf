package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inferloop/contentscore/internal/processors/batch"
	"github.com/inferloop/contentscore/pkg/constants"
	"github.com/inferloop/contentscore/pkg/models"
)

// OutputOptions are the flags shared by every command that prints a result
type OutputOptions struct {
	Format     string
	OutputFile string
}

func (o *OutputOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Format, "format", constants.OutputFormatText, "Output format (text, json)")
	cmd.Flags().StringVarP(&o.OutputFile, "output", "o", "-", "Output file (- for stdout)")
}

func (o *OutputOptions) validate() error {
	switch o.Format {
	case constants.OutputFormatText, constants.OutputFormatJSON:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (text, json)", o.Format)
	}
}

// write renders v as JSON or through text, to stdout or the output file
func (o *OutputOptions) write(cmd *cobra.Command, v interface{}, text func(io.Writer)) error {
	var output io.Writer = cmd.OutOrStdout()
	if o.OutputFile != "" && o.OutputFile != "-" {
		file, err := os.Create(o.OutputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		output = file
	}

	if o.Format == constants.OutputFormatJSON {
		encoder := json.NewEncoder(output)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(v); err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return nil
	}

	text(output)
	return nil
}

func printScore(w io.Writer, report *models.ScoreReport) {
	fmt.Fprintf(w, "Content Score: %s\n", report.ContentID)
	fmt.Fprintln(w, "====================")
	if report.Title != "" {
		fmt.Fprintf(w, "Title:   %s\n", report.Title)
	}
	fmt.Fprintf(w, "Overall: %.1f (%s)\n", report.Overall, report.Grade)
	if !report.Valid {
		fmt.Fprintln(w, "Status:  incomplete, some criteria could not be evaluated")
	}
	if report.Historical != nil {
		fmt.Fprintf(w, "Change:  %+.1f since %s (%s)\n", report.Historical.Change,
			report.Historical.PreviousAt.Format("2006-01-02"), report.Historical.Trend)
	}

	fmt.Fprintln(w, "\nCategories:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range report.Categories {
		fmt.Fprintf(tw, "  %s\t%.1f\t%s\t%s\n", c.Name, c.Score, c.Grade, c.Status)
	}
	tw.Flush()

	printFindings(w, "Critical Issues", report.CriticalIssues)
	printFindings(w, "Strengths", report.Strengths)

	if len(report.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for _, r := range report.Recommendations {
			fmt.Fprintf(w, "- [%s] %s\n", r.Priority, r.Text)
		}
	}
}

func printFindings(w io.Writer, title string, findings []models.Finding) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, f := range findings {
		fmt.Fprintf(w, "- %s/%s (%.0f): %s\n", f.Category, f.Criterion, f.Score, f.Message)
	}
}

func printHistory(w io.Writer, contentID string, reports []*models.ScoreReport) {
	fmt.Fprintf(w, "Score History: %s\n", contentID)
	fmt.Fprintln(w, "====================")
	if len(reports) == 0 {
		fmt.Fprintln(w, "No reports recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GENERATED\tOVERALL\tGRADE")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%.1f\t%s\n", r.GeneratedAt.Format("2006-01-02 15:04:05"), r.Overall, r.Grade)
	}
	tw.Flush()
}

func printTrends(w io.Writer, trends map[string]*models.TrendResult) {
	if len(trends) == 0 {
		return
	}
	fmt.Fprintln(w, "\nTrends:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  METRIC\tDIRECTION\tCURRENT\tCHANGE %\tR²\tQUALITY")
	for _, metric := range sortedKeys(trends) {
		t := trends[metric]
		fmt.Fprintf(tw, "  %s\t%s\t%.2f\t%+.1f\t%.2f\t%s\n",
			metric, t.Direction, t.CurrentValue, t.PeriodChangePercent, t.RSquared, t.DataQuality)
	}
	tw.Flush()
}

func printAnomalies(w io.Writer, anomalies []models.Anomaly) {
	if len(anomalies) == 0 {
		fmt.Fprintln(w, "\nNo anomalies detected")
		return
	}
	fmt.Fprintf(w, "\nAnomalies (%d):\n", len(anomalies))
	for _, a := range anomalies {
		fmt.Fprintf(w, "- %s %s: %.2f (expected %.2f, %s) [%s]\n",
			a.Timestamp.Format("2006-01-02"), a.Metric, a.Value, a.Expected,
			a.Severity, strings.Join(a.Algorithms, ", "))
	}
}

func printAnalysis(w io.Writer, analysis *batch.Analysis) {
	fmt.Fprintf(w, "Performance Analysis: %s\n", analysis.ContentID)
	fmt.Fprintln(w, "====================")
	printTrends(w, analysis.Trends)
	printAnomalies(w, analysis.Anomalies)
}

func printForecast(w io.Writer, forecast *models.ForecastResult) {
	fmt.Fprintf(w, "Forecast: %s (%s, %d steps)\n", forecast.Metric, forecast.Method, forecast.Horizon)
	fmt.Fprintln(w, "====================")
	fmt.Fprintf(w, "Accuracy:   %.1f%%\n", forecast.Accuracy*100)
	fmt.Fprintf(w, "Confidence: %.0f%%\n\n", forecast.Confidence*100)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tDATE\tVALUE\tLOWER\tUPPER")
	for _, p := range forecast.Points {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%.2f\n", p.Step, p.Timestamp.Format("2006-01-02"), p.Value, p.Lower, p.Upper)
	}
	tw.Flush()
}

func printCorrelations(w io.Writer, report *models.CorrelationReport) {
	fmt.Fprintf(w, "Correlations: %s\n", strings.Join(report.Metrics, ", "))
	fmt.Fprintln(w, "====================")
	if len(report.Entries) == 0 {
		fmt.Fprintln(w, "Not enough overlapping data")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PAIR\tR\tSTRENGTH\tP\tSIGNIFICANT")
	for _, e := range report.Entries {
		fmt.Fprintf(tw, "%s ~ %s\t%+.3f\t%s\t%.4f\t%t\n", e.MetricA, e.MetricB, e.Coefficient, e.Strength, e.PValue, e.Significant)
	}
	tw.Flush()

	if len(report.Lagged) > 0 {
		fmt.Fprintln(w, "\nLagged:")
		for _, e := range report.Lagged {
			fmt.Fprintf(w, "- %s leads %s by %d days (r=%+.3f)\n", e.MetricA, e.MetricB, e.Lag, e.Coefficient)
		}
	}
}

func printInsights(w io.Writer, report *models.InsightsReport) {
	fmt.Fprintf(w, "Content Insights: %s\n", report.ContentID)
	fmt.Fprintln(w, "====================")
	s := report.Summary
	fmt.Fprintf(w, "Status:     %s\n", s.Status)
	fmt.Fprintf(w, "Score:      %.1f (%s)\n", s.OverallScore, s.Grade)
	if s.HealthScore != nil {
		fmt.Fprintf(w, "Health:     %.1f\n", *s.HealthScore)
	}
	fmt.Fprintf(w, "Confidence: %.0f%%\n", s.Confidence*100)
	for _, h := range s.Highlights {
		fmt.Fprintf(w, "* %s\n", h)
	}

	printTrends(w, report.Trends)
	if len(report.Anomalies) > 0 {
		printAnomalies(w, report.Anomalies)
	}

	if len(report.Risks) > 0 {
		fmt.Fprintln(w, "\nRisks:")
		for _, r := range report.Risks {
			fmt.Fprintf(w, "- [%s] %s\n", r.Level, r.Description)
		}
	}
	if len(report.Opportunities) > 0 {
		fmt.Fprintln(w, "\nOpportunities:")
		for _, o := range report.Opportunities {
			fmt.Fprintf(w, "- %s\n", o.Description)
		}
	}
	if len(report.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for _, r := range report.Recommendations {
			fmt.Fprintf(w, "- [%s] %s\n", r.Priority, r.Text)
		}
	}
	if len(report.Failures) > 0 {
		fmt.Fprintln(w, "\nSkipped analyses:")
		for _, f := range report.Failures {
			target := f.Analysis
			if f.Metric != "" {
				target += "/" + f.Metric
			}
			fmt.Fprintf(w, "- %s: %s\n", target, f.Reason)
		}
	}
}

func printSummary(w io.Writer, summary *batch.Summary) {
	fmt.Fprintf(w, "Batch Run: %s (%s)\n", summary.ID, summary.Type)
	fmt.Fprintln(w, "====================")
	fmt.Fprintf(w, "Duration:  %s\n", summary.Duration)
	fmt.Fprintf(w, "Total:     %d\n", summary.Total)
	fmt.Fprintf(w, "Succeeded: %d\n", summary.Succeeded)
	fmt.Fprintf(w, "Failed:    %d\n", summary.Failed)
	if summary.Cancelled > 0 {
		fmt.Fprintf(w, "Cancelled: %d\n", summary.Cancelled)
	}
	if summary.ArchiveLocation != "" {
		fmt.Fprintf(w, "Archive:   %s\n", summary.ArchiveLocation)
	}
	if summary.ArchiveError != "" {
		fmt.Fprintf(w, "Archive error: %s\n", summary.ArchiveError)
	}

	for _, r := range summary.Results {
		if r.Error != "" {
			fmt.Fprintf(w, "- %s: %s after %d attempts: %s\n", r.ContentID, r.Status, r.Attempts, r.Error)
		}
	}
}

func sortedKeys(m map[string]*models.TrendResult) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
