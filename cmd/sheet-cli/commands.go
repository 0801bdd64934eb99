package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BV-BRC/sheet-analyst/internal/admission"
	"github.com/BV-BRC/sheet-analyst/internal/analysis"
	"github.com/BV-BRC/sheet-analyst/internal/app"
	"github.com/BV-BRC/sheet-analyst/internal/audit"
	"github.com/BV-BRC/sheet-analyst/internal/config"
	"github.com/BV-BRC/sheet-analyst/internal/events"
	"github.com/BV-BRC/sheet-analyst/internal/generator"
	"github.com/BV-BRC/sheet-analyst/internal/intake"
	"github.com/BV-BRC/sheet-analyst/internal/logging"
	"github.com/BV-BRC/sheet-analyst/internal/sandbox"
	"github.com/BV-BRC/sheet-analyst/internal/table"
	"github.com/BV-BRC/sheet-analyst/pkg/client"
)

// getClient creates an API client from cobra command flags.
func getClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	apiKey, _ := cmd.Flags().GetString("api-key")
	return client.NewClient(client.Config{BaseURL: server, APIKey: apiKey})
}

// loadConfig reads configuration for commands that run the pipeline locally.
// Local runs log warnings only, to stderr.
func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Log.Level == "info" {
		cfg.Log.Level = "warn"
	}
	cfg.Log.Development = true
	return cfg, logging.New(cfg.Log), nil
}

func loadTables(path, sheets string) ([]*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()
	return table.Load(filepath.Base(path), f, splitList(sheets))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printEncoded(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q (use json or yaml)", format)
	}
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <data.xlsx> <question>",
		Short: "Ask the analyst server a question about a workbook",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runAnalyze,
	}

	cmd.Flags().String("sheets", "", "Comma-separated sheets to load (each must exist)")
	cmd.Flags().StringP("download", "d", "", "Directory to download chart artifacts into")

	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	sheets, _ := cmd.Flags().GetString("sheets")
	up, f, err := client.OpenUpload(args[0], splitList(sheets))
	if err != nil {
		return fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()

	c := getClient(cmd)
	res, err := c.Analyze(cmd.Context(), strings.Join(args[1:], " "), up)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.ExecutedCode != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Executed code:\n%s\n", apiErr.ExecutedCode)
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Executed code:\n%s\n\n", res.ExecutedCode)
	if res.IsPlot && res.PlotPath != nil {
		fmt.Fprintf(out, "Chart: %s\n", *res.PlotPath)
		dir, _ := cmd.Flags().GetString("download")
		if dir == "" {
			return nil
		}
		dest := filepath.Join(dir, *res.PlotPath)
		w, err := os.Create(dest)
		if err != nil {
			return err
		}
		defer w.Close()
		if err := c.DownloadPlot(cmd.Context(), *res.PlotPath, w); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved to %s\n", dest)
		return nil
	}
	fmt.Fprintln(out, res.Result)
	return nil
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <data.xlsx> <code | ->",
		Short: "Run analysis code locally against a workbook",
		Long:  "Run analysis code through intake, admission and the sandbox without calling a model. Use - to read code from stdin.",
		Args:  cobra.ExactArgs(2),
		RunE:  runRun,
	}

	cmd.Flags().String("sheets", "", "Comma-separated sheets to load (each must exist)")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	code := args[1]
	if code == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		code = string(data)
	}

	sheets, _ := cmd.Flags().GetString("sheets")
	tables, err := loadTables(args[0], sheets)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger, app.WithGenerator(generator.Static{}), app.WithoutReporting(), app.WithoutMetrics())
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Engine.Execute(cmd.Context(), analysis.Request{Tables: tables}, code)
	if err != nil {
		return describeError(err)
	}
	printResponse(cmd.OutOrStdout(), resp)
	return nil
}

// printResponse writes a result the way the interactive analyst shows it.
func printResponse(w io.Writer, resp *analysis.Response) {
	switch resp.Kind {
	case sandbox.KindChart:
		fmt.Fprintf(w, "Chart saved: %s\n", resp.PlotPath)
	case sandbox.KindEmpty:
		fmt.Fprintln(w, "(no output)")
	default:
		fmt.Fprintln(w, resp.Result)
	}
}

// describeError turns pipeline errors into user-facing messages.
func describeError(err error) error {
	var (
		rej   *admission.Rejection
		fault *sandbox.Fault
		ie    *intake.Error
		ue    *generator.UpstreamError
		le    *table.LoadError
	)
	switch {
	case errors.As(err, &rej):
		return fmt.Errorf("blocked: %s", rej.Error())
	case errors.As(err, &fault):
		return fmt.Errorf("error executing analysis code: %s: %s", fault.Kind, fault.Message)
	case errors.As(err, &ie):
		return fmt.Errorf("model returned nothing to run: %s", ie.Error())
	case errors.As(err, &ue):
		return fmt.Errorf("model request failed: %s", ue.Error())
	case errors.As(err, &le):
		return fmt.Errorf("could not load tables: %s", le.Error())
	}
	return err
}

func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List Gemini models usable for code generation",
		RunE:  runModels,
	}

	cmd.Flags().StringP("output", "o", "", "Output format (json or yaml)")

	return cmd
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	gc, err := generator.NewGeminiClient(cfg.Model, logger)
	if err != nil {
		return err
	}
	models, err := gc.ListModels(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format, _ := cmd.Flags().GetString("output"); format != "" {
		return printEncoded(out, format, models)
	}
	if len(models) == 0 {
		fmt.Fprintln(out, "No models with generateContent found for this API key.")
		return nil
	}
	for _, m := range models {
		marker := " "
		if m.ID == gc.Model() {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-40s %s\n", marker, m.ID, m.DisplayName)
	}
	return nil
}

func newSampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample [data.xlsx]",
		Short: "Write a synthetic Employees/Projects workbook",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSample,
	}

	cmd.Flags().Int64("seed", 42, "Random seed")
	cmd.Flags().Int("rows", 1000, "Number of employee rows")

	return cmd
}

func runSample(cmd *cobra.Command, args []string) error {
	path := "data.xlsx"
	if len(args) == 1 {
		path = args[0]
	}
	seed, _ := cmd.Flags().GetInt64("seed")
	rows, _ := cmd.Flags().GetInt("rows")

	employees, projects := table.Sample(table.SampleOptions{Seed: seed, Rows: rows})

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := table.WriteWorkbook(f, employees, projects); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d employees, %d project assignments)\n", path, employees.Len(), projects.Len())
	return nil
}

// profileScripts draw the data-quality charts: salary skew, project count
// outliers and missing performance scores.
var profileScripts = []struct {
	title string
	code  string
}{
	{"salary distribution", `plt.figure({figsize: [10, 6]});
sns.histplot(employees['Salary'], {bins: 50});
plt.title('Salary Distribution');
plt.savefig('plots/1_salary_distribution.png');
plt.close();
print("Plot saved to plots/1_salary_distribution.png")`},
	{"project count outliers", `plt.figure({figsize: [10, 6]});
sns.boxplot({x: employees['Projects']});
plt.title('Project Counts');
plt.savefig('plots/2_projects_outliers.png');
plt.close();
print("Plot saved to plots/2_projects_outliers.png")`},
	{"missing performance scores", `plt.figure({figsize: [8, 5]});
sns.countplot(employees['PerformanceScore'].isnull());
plt.title('Missing Performance Scores');
plt.savefig('plots/3_performancescore_missing.png');
plt.close();
print("Plot saved to plots/3_performancescore_missing.png")`},
}

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile <data.xlsx>",
		Short: "Draw data-quality charts for the Employees sheet",
		Args:  cobra.ExactArgs(1),
		RunE:  runProfile,
	}

	cmd.Flags().String("sheets", "Employees", "Comma-separated sheets to load")

	return cmd
}

func runProfile(cmd *cobra.Command, args []string) error {
	sheets, _ := cmd.Flags().GetString("sheets")
	tables, err := loadTables(args[0], sheets)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger, app.WithGenerator(generator.Static{}), app.WithoutReporting(), app.WithoutMetrics())
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	for _, s := range profileScripts {
		resp, err := a.Engine.Execute(cmd.Context(), analysis.Request{Tables: tables}, s.code)
		if err != nil {
			fmt.Fprintf(out, "%-28s failed: %v\n", s.title, describeError(err))
			continue
		}
		fmt.Fprintf(out, "%-28s %s\n", s.title, filepath.Join(a.Charts.Dir(), resp.PlotPath))
	}
	return nil
}

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail analysis events from Redis",
		RunE:  runEvents,
	}

	cmd.Flags().String("redis", "", "Redis address (overrides config)")

	return cmd
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("no redis address configured (set redis.addr or --redis)")
	}
	rc, err := events.ConnectRedis(&cfg.Redis)
	if err != nil {
		return err
	}
	defer rc.Close()

	ctx, cancel := signalContext()
	defer cancel()

	out := cmd.OutOrStdout()
	sub := events.NewSubscriber(rc, cfg.Redis.Channel, logger)
	sub.AddHandler(events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		_, err := fmt.Fprintln(out, formatEvent(e))
		return err
	}))

	fmt.Fprintf(cmd.ErrOrStderr(), "Listening on %s (Ctrl-C to stop)\n", cfg.Redis.Channel)
	if err := sub.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func formatEvent(e events.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-20s %s outcome=%s",
		time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339), e.Type, e.RequestID, e.Outcome)
	for _, kv := range [][2]string{
		{"reason", e.Reason}, {"fault", e.FaultKind}, {"result", e.ResultKind},
		{"mode", e.Mode}, {"code", e.CodeHash},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&b, " %s=%s", kv[0], kv[1])
		}
	}
	if len(e.Tables) > 0 {
		fmt.Fprintf(&b, " tables=%s", strings.Join(e.Tables, ","))
	}
	fmt.Fprintf(&b, " gen=%dms exec=%dms", e.GenerateMS, e.ExecuteMS)
	return b.String()
}

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the MongoDB audit trail",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List recent analysis records",
		RunE:  runAuditList,
	}
	list.Flags().String("outcome", "", "Filter by outcome")
	list.Flags().String("principal", "", "Filter by principal")
	list.Flags().Duration("since", 0, "Only records newer than this (e.g. 24h)")
	list.Flags().Int("limit", 20, "Maximum number of records")
	list.Flags().StringP("output", "o", "yaml", "Output format (json or yaml)")

	get := &cobra.Command{
		Use:   "get <request-id>",
		Short: "Show one analysis record, including its code",
		Args:  cobra.ExactArgs(1),
		RunE:  runAuditGet,
	}
	get.Flags().StringP("output", "o", "yaml", "Output format (json or yaml)")

	summary := &cobra.Command{
		Use:   "summary",
		Short: "Count records by outcome",
		RunE:  runAuditSummary,
	}
	summary.Flags().Duration("since", 0, "Only count records newer than this (e.g. 24h)")

	cmd.AddCommand(list, get, summary)
	return cmd
}

func openAudit(cmd *cobra.Command) (*audit.Store, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	if cfg.MongoDB.URI == "" {
		return nil, fmt.Errorf("no audit store configured (set mongodb.uri)")
	}
	return audit.NewStore(cfg.MongoDB.URI, cfg.MongoDB.Database)
}

func closeAudit(store *audit.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store.Close(ctx)
}

func runAuditList(cmd *cobra.Command, args []string) error {
	store, err := openAudit(cmd)
	if err != nil {
		return err
	}
	defer closeAudit(store)

	var f audit.Filter
	f.Outcome, _ = cmd.Flags().GetString("outcome")
	f.Principal, _ = cmd.Flags().GetString("principal")
	f.Limit, _ = cmd.Flags().GetInt("limit")
	if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
		f.Since = time.Now().Add(-since)
	}

	recs, err := store.List(cmd.Context(), f)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("output")
	return printEncoded(cmd.OutOrStdout(), format, recs)
}

func runAuditGet(cmd *cobra.Command, args []string) error {
	store, err := openAudit(cmd)
	if err != nil {
		return err
	}
	defer closeAudit(store)

	rec, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no record for request %s", args[0])
	}
	format, _ := cmd.Flags().GetString("output")
	return printEncoded(cmd.OutOrStdout(), format, rec)
}

func runAuditSummary(cmd *cobra.Command, args []string) error {
	store, err := openAudit(cmd)
	if err != nil {
		return err
	}
	defer closeAudit(store)

	var since time.Time
	if d, _ := cmd.Flags().GetDuration("since"); d > 0 {
		since = time.Now().Add(-d)
	}
	counts, err := store.CountByOutcome(cmd.Context(), since)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	var total int64
	for _, c := range counts {
		fmt.Fprintf(out, "%-16s %d\n", c.Outcome, c.Count)
		total += c.Count
	}
	fmt.Fprintf(out, "%-16s %d\n", "total", total)
	return nil
}
