package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sheetkit/sheetkit/sheet"
)

// script is the YAML calculation-script schema:
//
//	sheets:
//	  - name: Sheet1
//	    cells:
//	      A1: 6
//	      A2: 7
//	      B1: "=A1*A2"
//	expect:
//	  - cell: Sheet1!B1
//	    value: 42
//	  - cell: Sheet1!C1
//	    error: "#DIV/0!"
type script struct {
	Sheets []struct {
		Name  string         `yaml:"name"`
		Cells map[string]any `yaml:"cells"`
	} `yaml:"sheets"`
	Expect []expectation `yaml:"expect"`
}

type expectation struct {
	Cell  string `yaml:"cell"`
	Value any    `yaml:"value"`
	Error string `yaml:"error"`
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Run a YAML calculation script and check its expectations",
		Args:  cobra.ExactArgs(1),
		RunE:  runScript,
	}
}

func runScript(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading script: %w", err)
	}

	var spec script
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("parsing script: %w", err)
	}
	if len(spec.Sheets) == 0 {
		return fmt.Errorf("script defines no sheets")
	}

	wb := sheet.NewWorkbookWith(sheet.Options{Logger: loggerFromFlags(cmd)})
	for _, sheetSpec := range spec.Sheets {
		if err := wb.AddSheet(sheetSpec.Name); err != nil {
			return err
		}
		for addr, raw := range sheetSpec.Cells {
			qualified := sheetSpec.Name + "!" + addr
			if err := wb.Set(qualified, primitiveFromYAML(raw)); err != nil {
				return fmt.Errorf("cell %s: %w", qualified, err)
			}
		}
	}
	wb.Calculate()

	out := cmd.OutOrStdout()
	pass := color.New(color.FgGreen)
	fail := color.New(color.FgRed)

	failures := 0
	for _, exp := range spec.Expect {
		got, err := wb.Get(exp.Cell)
		if err != nil {
			fail.Fprintf(out, "FAIL %s: %v\n", exp.Cell, err)
			failures++
			continue
		}

		if ok, want := checkExpectation(exp, got); ok {
			pass.Fprintf(out, "PASS %s = %s\n", exp.Cell, sheet.ToString(got))
		} else {
			fail.Fprintf(out, "FAIL %s = %s, want %s\n", exp.Cell, displayValue(got), want)
			failures++
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d expectations failed", failures, len(spec.Expect))
	}
	fmt.Fprintf(out, "%d expectations passed\n", len(spec.Expect))
	return nil
}

// checkExpectation reports whether got satisfies the expectation and
// returns the wanted display text for failure messages
func checkExpectation(exp expectation, got sheet.Primitive) (bool, string) {
	if exp.Error != "" {
		cellErr := sheet.AsCellError(got)
		return cellErr != nil && cellErr.Token() == exp.Error, exp.Error
	}

	want := sheet.ToString(primitiveFromYAML(exp.Value))
	return sheet.AsCellError(got) == nil && sheet.ToString(got) == want, want
}

// displayValue renders a result for failure messages, keeping error
// tokens visible
func displayValue(value sheet.Primitive) string {
	if value == nil {
		return "<empty>"
	}
	return sheet.ToString(value)
}

// primitiveFromYAML maps yaml.v3 scalars onto workbook primitives;
// integers become float64 like every other number in the engine
func primitiveFromYAML(raw any) sheet.Primitive {
	switch v := raw.(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	case bool:
		return v
	case string:
		return v
	case nil:
		return nil
	default:
		return fmt.Sprintf("%v", v)
	}
}
