package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/g302ge/cnosdb/internal/app"
	"github.com/g302ge/cnosdb/internal/query"
)

var okLabel = color.New(color.FgGreen)

// statementResult is the JSON form of one statement output.
type statementResult struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

func newExecCmd() *cobra.Command {
	var (
		sql      string
		catalog  string
		database string
		user     string
	)
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute SQL statements against the local catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(sql) == "" {
				return fmt.Errorf("--sql is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := a.Open(ctx); err != nil {
				a.Stop(context.Background())
				return err
			}
			defer a.Stop(context.Background())

			outputs, err := a.Execute(ctx, query.QueryContext{User: user, Catalog: catalog, Database: database}, sql)
			if err != nil {
				return err
			}
			defer func() {
				for _, out := range outputs {
					out.Release()
				}
			}()
			if jsonOutput {
				return printJSON(toResults(outputs))
			}
			return renderOutputs(os.Stdout, outputs)
		},
	}
	cmd.Flags().StringVarP(&sql, "sql", "e", "", "SQL statements separated by ';'")
	cmd.Flags().StringVar(&catalog, "catalog", "", "Catalog (tenant); defaults to the configured catalog")
	cmd.Flags().StringVarP(&database, "database", "d", "", "Database; defaults to the configured database")
	cmd.Flags().StringVarP(&user, "user", "u", "", "User name recorded on the session")
	return cmd
}

func toResults(outputs []query.Output) []statementResult {
	results := make([]statementResult, 0, len(outputs))
	for _, out := range outputs {
		res := statementResult{Columns: out.ColumnNames(), Rows: out.Rows()}
		if res.Columns == nil {
			res.Columns = []string{}
		}
		results = append(results, res)
	}
	return results
}

// renderOutputs prints each output as an aligned table. Outputs without
// columns print "OK".
func renderOutputs(w io.Writer, outputs []query.Output) error {
	for i, out := range outputs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		cols := out.ColumnNames()
		if len(cols) == 0 {
			okLabel.Fprintln(w, "OK")
			continue
		}

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
		for _, row := range out.Rows() {
			cells := make([]string, len(row))
			for j, v := range row {
				if v == nil {
					cells[j] = "NULL"
				} else {
					cells[j] = fmt.Sprint(v)
				}
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(w, "(%d rows)\n", out.NumRows())
	}
	return nil
}
