package main

import (
	"encoding/csv"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sheetkit/sheetkit/sheet"
	"github.com/sheetkit/sheetkit/xlsx"
)

func newCalcCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calc <file.xlsx>",
		Short: "Recalculate an .xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE:  runCalc,
	}

	cmd.Flags().String("csv", "", "Emit one worksheet as CSV to stdout instead of a summary")
	cmd.Flags().StringP("output", "o", "", "Write the recalculated workbook to this .xlsx file")

	return cmd
}

func runCalc(cmd *cobra.Command, args []string) error {
	filename := args[0]
	csvSheet, _ := cmd.Flags().GetString("csv")
	outFile, _ := cmd.Flags().GetString("output")

	wb, err := xlsx.Open(filename)
	if err != nil {
		return err
	}
	wb.Calculate()

	if csvSheet != "" {
		if err := emitCSV(cmd, wb, csvSheet); err != nil {
			return err
		}
	} else {
		printSummary(cmd, wb)
	}

	if outFile != "" {
		if err := xlsx.Save(wb, outFile); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", outFile)
	}
	return nil
}

func emitCSV(cmd *cobra.Command, wb *sheet.Workbook, name string) error {
	ws, ok := wb.Sheet(name)
	if !ok {
		return fmt.Errorf("worksheet not found: %s", name)
	}

	writer := csv.NewWriter(cmd.OutOrStdout())
	rows, cols := ws.Dims()
	record := make([]string, cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			record[col] = sheet.ToString(ws.ValueAt(row, col))
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func printSummary(cmd *cobra.Command, wb *sheet.Workbook) {
	out := cmd.OutOrStdout()
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)

	for _, name := range wb.Sheets() {
		ws, _ := wb.Sheet(name)

		formulas := 0
		errors := 0
		ws.Each(func(_ sheet.CellKey, cell *sheet.Cell) {
			if cell.IsFormula() {
				formulas++
				if sheet.AsCellError(cell.Result) != nil {
					errors++
				}
			} else if sheet.AsCellError(cell.Value) != nil {
				errors++
			}
		})

		bold.Fprintf(out, "%s", name)
		fmt.Fprintf(out, ": %d cells, %d formulas", ws.Len(), formulas)
		if errors > 0 {
			fmt.Fprint(out, ", ")
			red.Fprintf(out, "%d errors", errors)
		}
		fmt.Fprintln(out)
	}
}
