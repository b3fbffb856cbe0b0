package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aixgo-dev/fincontext/internal/config"
	"github.com/aixgo-dev/fincontext/internal/grounding"
	"github.com/aixgo-dev/fincontext/internal/spreadsheet"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a spreadsheet and print what the model would see",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		sheet, _ := cmd.Flags().GetString("sheet")

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		ds, err := spreadsheet.Parse(args[0], f, spreadsheet.Options{
			Sheet:   sheet,
			MaxRows: cfg.Upload.MaxRows,
		})
		if err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}

		estimator, _ := grounding.NewEstimator(cfg.Grounding.Encoding)
		inj := grounding.NewInjector(grounding.Config{
			MaxDatasetTokens: cfg.Grounding.MaxDatasetTokens,
			PreviewRows:      cfg.Grounding.PreviewRows,
			Estimator:        estimator,
		})
		oversized, err := inj.Oversized(ds)
		if err != nil {
			return err
		}
		rendered, err := inj.Render(ds)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "source:     %s\n", ds.Source)
		if ds.Sheet != "" {
			fmt.Fprintf(out, "sheet:      %s\n", ds.Sheet)
		}
		fmt.Fprintf(out, "rows:       %d\n", ds.Len())
		fmt.Fprintf(out, "columns:    %v\n", ds.Columns)
		fmt.Fprintf(out, "summarised: %t\n\n", oversized)
		fmt.Fprintln(out, rendered)
		return nil
	},
}

func init() {
	parseCmd.Flags().String("sheet", "", "Workbook sheet name (default: first sheet)")
}
