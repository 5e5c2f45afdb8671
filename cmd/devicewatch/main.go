package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"devicewatch/internal/config"
	"devicewatch/internal/openfda"
	"devicewatch/internal/profile"
	"devicewatch/internal/report"
	"devicewatch/internal/summarize"
)

var (
	configPath string
	months     int
	maxRecords int
	asJSON     bool
	withLLM    bool
)

var rootCmd = &cobra.Command{
	Use:   "devicewatch",
	Short: "Cross-referenced FDA medical-device regulatory profiles",
	Long: `devicewatch aggregates public FDA records (510(k), PMA, recalls,
adverse events, classifications, UDI) around a device or manufacturer and
produces a de-duplicated, risk-scored profile with an event timeline.`,
	SilenceUsage: true,
}

var profileCmd = &cobra.Command{
	Use:   "profile [query]",
	Short: "Build the cross-source profile for a device or manufacturer",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfile,
}

var summaryCmd = &cobra.Command{
	Use:   "summary [query]",
	Short: "Print only the regulatory summary for a query",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

var reportCmd = &cobra.Command{
	Use:   "report [query]",
	Short: "Render the full markdown report for a query",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

var lookupCmd = &cobra.Command{
	Use:   "lookup [product-code]",
	Short: "Profile every record carrying an FDA product code",
	Args:  cobra.ExactArgs(1),
	RunE:  runLookup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "devicewatch.yaml", "path to config file")
	rootCmd.PersistentFlags().IntVar(&months, "months", 0, "lookback window in months (overrides config)")
	rootCmd.PersistentFlags().IntVar(&maxRecords, "max-records", 0, "per-source record budget (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "output JSON instead of text")
	reportCmd.Flags().BoolVar(&withLLM, "llm", false, "include an LLM narrative summary (needs ANTHROPIC_API_KEY)")
	rootCmd.AddCommand(profileCmd, summaryCmd, reportCmd, lookupCmd)
}

func main() {
	_ = godotenv.Load()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func buildPipeline() (*profile.Pipeline, *openfda.Retriever, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if months > 0 {
		cfg.OpenFDA.LookbackMonths = months
	}
	if maxRecords > 0 {
		cfg.OpenFDA.MaxRecords = maxRecords
	}
	retriever := openfda.NewRetriever(openfda.RetrieverConfig{
		BaseURL:    cfg.OpenFDA.BaseURL,
		APIKey:     cfg.OpenFDA.APIKey,
		RateDelay:  cfg.OpenFDA.RateDelay(),
		MaxRecords: cfg.OpenFDA.MaxRecords,
		HTTPClient: &http.Client{Timeout: cfg.OpenFDA.Timeout()},
	})
	pipeline := profile.NewPipeline(retriever, profile.PipelineConfig{
		MaxRecordsPerSource: cfg.OpenFDA.MaxRecords,
		LookbackMonths:      cfg.OpenFDA.LookbackMonths,
	})
	return pipeline, retriever, nil
}

func runQuery(cmd *cobra.Command, query string) (profile.Result, error) {
	pipeline, _, err := buildPipeline()
	if err != nil {
		return profile.Result{}, err
	}
	return pipeline.RunWithProgress(cmd.Context(), query, func(source openfda.SourceKind, message string) {
		if !asJSON {
			fmt.Fprintln(os.Stderr, message)
		}
	})
}

func runProfile(cmd *cobra.Command, args []string) error {
	res, err := runQuery(cmd, args[0])
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(res)
	}
	printProfileText(res)
	return nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	res, err := runQuery(cmd, args[0])
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(res.Summary)
	}
	printSummaryText(res.Summary)
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	res, err := runQuery(cmd, args[0])
	if err != nil {
		return err
	}
	var narratives map[string]string
	if withLLM {
		caller, err := summarize.NewAnthropicCallerFromEnv()
		if err != nil {
			return err
		}
		text, err := summarize.NewSummarizer(caller).SummarizeProfile(cmd.Context(), res.Profile, res.Summary)
		if err != nil {
			fmt.Fprintf(os.Stderr, "llm summary failed: %v\n", err)
		} else {
			narratives = map[string]string{"overall": text}
		}
	}
	fmt.Print(report.BuildMarkdown(res, narratives))
	return nil
}

func runLookup(cmd *cobra.Command, args []string) error {
	_, retriever, err := buildPipeline()
	if err != nil {
		return err
	}
	res, err := profile.LookupProductCode(cmd.Context(), retriever, args[0], maxRecordsOrDefault())
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(res)
	}
	fmt.Printf("Product code %s: %s (class %s, regulation %s, specialty %s)\n",
		res.Details.ProductCode, res.Details.DeviceName, res.Details.DeviceClass,
		res.Details.RegulationNumber, res.Details.MedicalSpecialty)
	printProfileText(profile.Result{
		Query:   res.Details.DeviceName,
		Tables:  res.Tables,
		Profile: res.Profile,
		Summary: res.Summary,
	})
	return nil
}

func maxRecordsOrDefault() int {
	if maxRecords > 0 {
		return maxRecords
	}
	return openfda.DefaultMaxRecords
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printProfileText(res profile.Result) {
	p := res.Profile
	fmt.Printf("Profile: %s\n", p.DeviceName)
	fmt.Printf("  Risk score:     %.1f / 100\n", p.RiskScore)
	fmt.Printf("  Manufacturers:  %s\n", joinOrNone(p.Manufacturers))
	fmt.Printf("  Product codes:  %s\n", joinOrNone(p.ProductCodes))
	fmt.Printf("  Clearances: %d  Approvals: %d  Recalls: %d  Adverse events: %d  Classifications: %d\n",
		len(p.Clearances), len(p.Approvals), len(p.Recalls), len(p.AdverseEvents), len(p.Classifications))
	if len(p.Timeline) > 0 {
		fmt.Println("  Timeline:")
		for _, evt := range p.Timeline {
			fmt.Printf("    %s  %-14s %s\n", evt.Date.Format("2006-01-02"), evt.Kind, evt.Description)
		}
	}
}

func printSummaryText(sum profile.RegulatorySummary) {
	fmt.Printf("Summary: %s\n", sum.DeviceOverview.PrimaryName)
	fmt.Printf("  Risk score:             %.1f / 100\n", sum.DeviceOverview.RiskScore)
	fmt.Printf("  Class I recalls:        %d\n", sum.SafetySignals.ClassIRecalls)
	fmt.Printf("  Serious adverse events: %d\n", sum.SafetySignals.SeriousAdverseEvents)
	fmt.Printf("  Activity last 30 days:  %d\n", len(sum.RecentActivity.Last30Days))
	fmt.Printf("  Activity last 90 days:  %d\n", len(sum.RecentActivity.Last90Days))
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}
