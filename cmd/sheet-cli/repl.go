package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BV-BRC/sheet-analyst/internal/analysis"
	"github.com/BV-BRC/sheet-analyst/internal/app"
	"github.com/BV-BRC/sheet-analyst/internal/table"
)

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl [data.xlsx]",
		Short: "Interactive analyst over a local workbook",
		Long:  "Ask questions about a local workbook in a loop. Questions go to the configured model; the code it returns runs locally.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRepl,
	}

	cmd.Flags().String("sheets", "Employees,Projects", "Comma-separated sheets to load (each must exist)")

	return cmd
}

func runRepl(cmd *cobra.Command, args []string) error {
	path := "data.xlsx"
	if len(args) == 1 {
		path = args[0]
	}
	sheets, _ := cmd.Flags().GetString("sheets")
	tables, err := loadTables(path, sheets)
	if err != nil {
		return fmt.Errorf("%w (run 'sheet-cli sample' to create a sample workbook)", err)
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger, app.WithoutReporting(), app.WithoutMetrics())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	r := &repl{engine: a.Engine, tables: tables, in: cmd.InOrStdin(), out: cmd.OutOrStdout()}
	return r.run(ctx)
}

type repl struct {
	engine *analysis.Engine
	tables []*table.Table
	in     io.Reader
	out    io.Writer
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintln(r.out, "Welcome to the spreadsheet analyst.")
	fmt.Fprintln(r.out, "Type 'help' for examples or 'exit' to quit.")

	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "\n[You] ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(query) {
		case "exit", "quit":
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		case "help":
			r.help()
			continue
		case "schema":
			r.schema()
			continue
		case "":
			fmt.Fprintln(r.out, "Please enter a query.")
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil
		}
		r.ask(ctx, query)
	}
}

func (r *repl) ask(ctx context.Context, query string) {
	resp, err := r.engine.Analyze(ctx, analysis.Request{Question: query, Tables: r.tables})
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", describeError(err))
		return
	}
	fmt.Fprintf(r.out, "[%s] %s\n", resp.Mode, resp.ExecutedCode)
	printResponse(r.out, resp)
}

func (r *repl) help() {
	fmt.Fprintln(r.out, "\nI can analyze the loaded tables, summarize them, or draw charts.")
	fmt.Fprintln(r.out, "\nExamples:")
	fmt.Fprintln(r.out, "  what is the average salary?")
	fmt.Fprintln(r.out, "  show me the top 5 employees by salary")
	fmt.Fprintln(r.out, "  plot salary vs performance")
	fmt.Fprintln(r.out, "  show employees in HR earning above 90000")
	fmt.Fprintln(r.out, "  bar chart of employees per department")
	fmt.Fprintln(r.out, "\nCommands:")
	fmt.Fprintln(r.out, "  schema   show the available tables and columns")
	fmt.Fprintln(r.out, "  help     show this message")
	fmt.Fprintln(r.out, "  exit     quit")
}

func (r *repl) schema() {
	fmt.Fprintln(r.out, "\nTables:")
	for _, t := range r.tables {
		source := ""
		if t.Source != "" && t.Source != t.Name {
			source = fmt.Sprintf(" (sheet %q)", t.Source)
		}
		fmt.Fprintf(r.out, "  %s%s: %d rows\n", t.Name, source, t.Len())
		fmt.Fprintf(r.out, "    %s\n", strings.Join(t.Names(), ", "))
	}
}
