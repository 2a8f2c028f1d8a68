package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sheetkit/sheetkit/sheet"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <formula>",
		Short: "Evaluate a single formula",
		Long: `Evaluate a spreadsheet formula and print the result.

Cell values may be provided with --set, e.g.:

  sheetcalc eval "=A1*B1" --set A1=6 --set B1=7`,
		Args: cobra.ExactArgs(1),
		RunE: runEval,
	}

	cmd.Flags().StringArray("set", nil, "Set a cell before evaluating, as ADDR=VALUE (repeatable)")
	cmd.Flags().String("sheet", "Sheet1", "Worksheet the formula evaluates against")

	return cmd
}

func runEval(cmd *cobra.Command, args []string) error {
	formula := args[0]
	sets, _ := cmd.Flags().GetStringArray("set")
	sheetName, _ := cmd.Flags().GetString("sheet")

	wb := sheet.NewWorkbookWith(sheet.Options{Logger: loggerFromFlags(cmd)})
	if err := wb.AddSheet(sheetName); err != nil {
		return err
	}

	for _, assignment := range sets {
		addr, value, err := parseAssignment(assignment)
		if err != nil {
			return err
		}
		if err := wb.Set(addr, value); err != nil {
			return fmt.Errorf("--set %s: %w", assignment, err)
		}
	}
	wb.Calculate()

	result, err := wb.Evaluate(formula, sheetName)
	if err != nil {
		if syntaxErr, ok := err.(*sheet.SyntaxError); ok {
			printSyntaxError(cmd, formula, syntaxErr)
		}
		return err
	}

	if cellErr := sheet.AsCellError(result); cellErr != nil {
		color.New(color.FgRed).Fprintln(cmd.OutOrStdout(), cellErr.Token())
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), sheet.ToString(result))
	return nil
}

// parseAssignment splits "A1=42" into an address and a typed value.
// Values parse as numbers, then booleans; everything else is text, and
// a leading = makes the cell a formula.
func parseAssignment(assignment string) (string, sheet.Primitive, error) {
	addr, raw, found := strings.Cut(assignment, "=")
	if !found || addr == "" {
		return "", nil, fmt.Errorf("--set requires ADDR=VALUE, got %q", assignment)
	}
	return addr, parseScalar(raw), nil
}

func parseScalar(raw string) sheet.Primitive {
	if num, err := strconv.ParseFloat(raw, 64); err == nil {
		return num
	}
	switch strings.ToUpper(raw) {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}
	return raw
}

// printSyntaxError shows the formula with a caret under the offending
// position
func printSyntaxError(cmd *cobra.Command, formula string, err *sheet.SyntaxError) {
	out := cmd.ErrOrStderr()
	fmt.Fprintln(out, formula)

	// error positions index the body after a leading =
	offset := err.Pos
	if strings.HasPrefix(formula, "=") {
		offset++
	}
	color.New(color.FgRed).Fprintln(out, strings.Repeat(" ", offset)+"^")
}
