package sheet

import (
	"math"
	"testing"
	"time"
)

// WorkbookTestCase is a chainable harness: build up a workbook, run a
// calculation, then assert on cell contents. A failed step records its
// error and short-circuits the rest of the chain; ExpectError consumes
// the recorded error, and End reports one that nothing consumed.
type WorkbookTestCase struct {
	t        *testing.T
	name     string
	workbook *Workbook
	err      error
}

func NewWorkbookTestCase(t *testing.T, name string) *WorkbookTestCase {
	tc := &WorkbookTestCase{
		t:        t,
		name:     name,
		workbook: NewWorkbook(),
	}
	return tc.AddSheet("Sheet1")
}

func NewWorkbookTestCaseWith(t *testing.T, name string, opts Options) *WorkbookTestCase {
	tc := &WorkbookTestCase{
		t:        t,
		name:     name,
		workbook: NewWorkbookWith(opts),
	}
	return tc.AddSheet("Sheet1")
}

func (tc *WorkbookTestCase) Set(address string, value Primitive) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.Set(address, value)
	return tc
}

func (tc *WorkbookTestCase) Remove(address string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.Remove(address)
	return tc
}

func (tc *WorkbookTestCase) AddSheet(name string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.AddSheet(name)
	return tc
}

func (tc *WorkbookTestCase) RemoveSheet(name string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.RemoveSheet(name)
	return tc
}

func (tc *WorkbookTestCase) RenameSheet(oldName, newName string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.RenameSheet(oldName, newName)
	return tc
}

func (tc *WorkbookTestCase) Run() *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.workbook.Calculate()
	return tc
}

func (tc *WorkbookTestCase) AssertCellEq(address string, expected Primitive) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	actual, err := tc.workbook.Get(address)
	if err != nil {
		tc.t.Errorf("%s: Get(%s) failed: %v", tc.name, address, err)
		return tc
	}

	switch exp := expected.(type) {
	case float64:
		if act, ok := actual.(float64); ok {
			if math.Abs(act-exp) > 1e-10 {
				tc.t.Errorf("%s: Cell %s = %v, want %v", tc.name, address, actual, expected)
			}
		} else {
			tc.t.Errorf("%s: Cell %s = %v (%T), want %v (float64)", tc.name, address, actual, actual, expected)
		}
	case nil:
		if actual != nil {
			tc.t.Errorf("%s: Cell %s = %v, want nil", tc.name, address, actual)
		}
	default:
		if actual != expected {
			tc.t.Errorf("%s: Cell %s = %v, want %v", tc.name, address, actual, expected)
		}
	}
	return tc
}

func (tc *WorkbookTestCase) AssertCellErr(address string, kind ErrKind) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	actual, err := tc.workbook.Get(address)
	if err != nil {
		tc.t.Errorf("%s: Get(%s) failed: %v", tc.name, address, err)
		return tc
	}
	if cellErr, ok := actual.(*CellError); ok {
		if cellErr.Kind != kind {
			tc.t.Errorf("%s: Cell %s has error %s, want %s", tc.name, address, cellErr.Token(), errTokens[kind])
		}
	} else {
		tc.t.Errorf("%s: Cell %s = %v, want error %s", tc.name, address, actual, errTokens[kind])
	}
	return tc
}

func (tc *WorkbookTestCase) AssertCellFn(address string, fn func(value Primitive, t *testing.T)) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	actual, err := tc.workbook.Get(address)
	if err != nil {
		tc.t.Errorf("%s: Get(%s) failed: %v", tc.name, address, err)
		return tc
	}
	fn(actual, tc.t)
	return tc
}

func (tc *WorkbookTestCase) AssertSheetExists(name string, shouldExist bool) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	if exists := tc.workbook.HasSheet(name); exists != shouldExist {
		tc.t.Errorf("%s: HasSheet(%s) = %v, want %v", tc.name, name, exists, shouldExist)
	}
	return tc
}

func (tc *WorkbookTestCase) ExpectError(code Code) *WorkbookTestCase {
	if tc.err == nil {
		tc.t.Errorf("%s: expected error with code %v, got none", tc.name, code)
		return tc
	}
	if appErr, ok := tc.err.(*Error); ok {
		if appErr.Code != code {
			tc.t.Errorf("%s: got error code %v, want %v", tc.name, appErr.Code, code)
		}
	} else {
		tc.t.Errorf("%s: got error %v, want *Error with code %v", tc.name, tc.err, code)
	}
	tc.err = nil
	return tc
}

func (tc *WorkbookTestCase) End() {
	if tc.err != nil {
		tc.t.Errorf("%s: unexpected error: %v", tc.name, tc.err)
	}
}

func TestOperatorSemantics(t *testing.T) {
	t.Run("Precedence", func(t *testing.T) {
		NewWorkbookTestCase(t, "Multiplication binds tighter").
			Set("A1", "=2+3*4").
			Run().
			AssertCellEq("A1", 14.0).
			End()

		NewWorkbookTestCase(t, "Power is left associative").
			Set("A1", "=2^3^2").
			Run().
			AssertCellEq("A1", 64.0).
			End()

		NewWorkbookTestCase(t, "Parens override").
			Set("A1", "=(2+3)*4").
			Run().
			AssertCellEq("A1", 20.0).
			End()

		NewWorkbookTestCase(t, "Unary minus binds tighter than power").
			Set("A1", "=-2^2").
			Run().
			AssertCellEq("A1", 4.0).
			End()
	})

	t.Run("Arithmetic errors", func(t *testing.T) {
		NewWorkbookTestCase(t, "Division by zero").
			Set("A1", "=10/0").
			Run().
			AssertCellErr("A1", ErrDiv0).
			End()

		NewWorkbookTestCase(t, "Text in arithmetic").
			Set("A1", "abc").
			Set("A2", "=A1+1").
			Run().
			AssertCellErr("A2", ErrValue).
			End()

		NewWorkbookTestCase(t, "Numeric text coerces").
			Set("A1", "5").
			Set("A2", "=A1*2").
			Run().
			AssertCellEq("A2", 10.0).
			End()

		NewWorkbookTestCase(t, "NaN power").
			Set("A1", "=(-1)^0.5").
			Run().
			AssertCellErr("A1", ErrNum).
			End()
	})

	t.Run("Unary chains", func(t *testing.T) {
		NewWorkbookTestCase(t, "Mixed unary prefixes").
			Set("A1", "=1++2").
			Set("A2", "=--3").
			Set("A3", "=-+-4").
			Run().
			AssertCellEq("A1", 3.0).
			AssertCellEq("A2", 3.0).
			AssertCellEq("A3", 4.0).
			End()
	})

	t.Run("Concatenation", func(t *testing.T) {
		NewWorkbookTestCase(t, "Ampersand joins display text").
			Set("A1", 42.0).
			Set("A2", `="n="&A1`).
			Set("A3", "=TRUE&1").
			Run().
			AssertCellEq("A2", "n=42").
			AssertCellEq("A3", "TRUE1").
			End()
	})

	t.Run("Comparisons", func(t *testing.T) {
		NewWorkbookTestCase(t, "Numeric and text comparisons").
			Set("A1", "=1<2").
			Set("A2", "=2<>2").
			Set("A3", `="apple"<"banana"`).
			Set("A4", `="10"=10`).
			Run().
			AssertCellEq("A1", true).
			AssertCellEq("A2", false).
			AssertCellEq("A3", true).
			AssertCellEq("A4", true).
			End()
	})
}

func TestFormulaEntry(t *testing.T) {
	t.Run("Constants and round trips", func(t *testing.T) {
		NewWorkbookTestCase(t, "Numeric text stays text").
			Set("A1", "42").
			Run().
			AssertCellEq("A1", "42").
			End()

		NewWorkbookTestCase(t, "Leading equals makes a formula").
			Set("A1", "=42").
			Run().
			AssertCellEq("A1", 42.0).
			End()

		NewWorkbookTestCase(t, "Empty cell reads nil").
			AssertCellEq("B7", nil).
			End()
	})

	t.Run("Structural failures land in the cell", func(t *testing.T) {
		NewWorkbookTestCase(t, "Unclosed paren").
			Set("A1", "=(1+2").
			Run().
			AssertCellErr("A1", ErrValue).
			End()

		NewWorkbookTestCase(t, "Empty formula").
			Set("A1", "=").
			Run().
			AssertCellErr("A1", ErrValue).
			End()

		NewWorkbookTestCase(t, "Unterminated string").
			Set("A1", `="hello`).
			Run().
			AssertCellErr("A1", ErrValue).
			End()

		NewWorkbookTestCase(t, "Bare name").
			Set("A1", "=profit").
			Run().
			AssertCellErr("A1", ErrValue).
			End()
	})

	t.Run("Formula text is preserved", func(t *testing.T) {
		wb := NewWorkbook()
		if err := wb.AddSheet("Sheet1"); err != nil {
			t.Fatal(err)
		}
		if err := wb.Set("A1", "=1+2"); err != nil {
			t.Fatal(err)
		}
		formula, err := wb.Formula("A1")
		if err != nil || formula != "=1+2" {
			t.Errorf("Formula(A1) = %q, %v; want =1+2", formula, err)
		}
	})
}

func TestFunctionsInFormulas(t *testing.T) {
	t.Run("Aggregation over ranges", func(t *testing.T) {
		NewWorkbookTestCase(t, "SUM over column").
			Set("A1", 1.0).
			Set("A2", 2.0).
			Set("A3", 3.0).
			Set("A4", 4.0).
			Set("A5", 5.0).
			Set("B1", "=SUM(A1:A5)").
			Set("B2", "=AVERAGE(A1:A5)").
			Set("B3", "=MAX(A1:A5)-MIN(A1:A5)").
			Run().
			AssertCellEq("B1", 15.0).
			AssertCellEq("B2", 3.0).
			AssertCellEq("B3", 4.0).
			End()

		NewWorkbookTestCase(t, "Empty cells in range are skipped").
			Set("A1", 2.0).
			Set("A3", 4.0).
			Set("B1", "=SUM(A1:A5)").
			Set("B2", "=COUNT(A1:A5)").
			Run().
			AssertCellEq("B1", 6.0).
			AssertCellEq("B2", 2.0).
			End()

		NewWorkbookTestCase(t, "Whitespace between name and paren").
			Set("A1", "=SUM (1,2)").
			Set("A2", "=ROUND ( 2.5 , 0 )").
			Run().
			AssertCellEq("A1", 3.0).
			AssertCellEq("A2", 3.0).
			End()

		NewWorkbookTestCase(t, "Reversed range normalizes").
			Set("A1", 1.0).
			Set("B2", 2.0).
			Set("C1", "=SUM(B2:A1)").
			Run().
			AssertCellEq("C1", 3.0).
			End()
	})

	t.Run("Branching", func(t *testing.T) {
		NewWorkbookTestCase(t, "IF selects branch").
			Set("A1", 10.0).
			Set("B1", `=IF(A1>5, "big", "small")`).
			Set("B2", `=IF(A1<5, "big", "small")`).
			Run().
			AssertCellEq("B1", "big").
			AssertCellEq("B2", "small").
			End()

		NewWorkbookTestCase(t, "IFERROR absorbs upstream failures").
			Set("A1", "=1/0").
			Set("B1", "=IFERROR(A1, -1)").
			Set("B2", "=IFERROR(7, -1)").
			Run().
			AssertCellErr("A1", ErrDiv0).
			AssertCellEq("B1", -1.0).
			AssertCellEq("B2", 7.0).
			End()
	})

	t.Run("Unknown functions", func(t *testing.T) {
		NewWorkbookTestCase(t, "NAME error propagates through arithmetic").
			Set("A1", "=NONEXISTENTFN()+1").
			Run().
			AssertCellErr("A1", ErrName).
			End()
	})

	t.Run("Recognized but unimplemented", func(t *testing.T) {
		NewWorkbookTestCase(t, "Lookup family returns NA").
			Set("A1", "=VLOOKUP(1, A2:B5, 2)").
			Set("B1", "=SUMIF(A2:A5, 3)").
			Run().
			AssertCellErr("A1", ErrNA).
			AssertCellErr("B1", ErrNA).
			End()
	})
}

func TestReferences(t *testing.T) {
	t.Run("Basic and absolute", func(t *testing.T) {
		NewWorkbookTestCase(t, "Plain reference").
			Set("A1", 10.0).
			Set("A2", "=A1").
			Run().
			AssertCellEq("A2", 10.0).
			End()

		NewWorkbookTestCase(t, "Dollar markers are ignored at resolution").
			Set("A1", 10.0).
			Set("A2", "=$A$1*2").
			Set("A3", "=SUM($A$1:A$2)").
			Run().
			AssertCellEq("A2", 20.0).
			AssertCellEq("A3", 30.0).
			End()

		NewWorkbookTestCase(t, "Reference to empty cell coerces to zero").
			Set("A2", "=Z99+1").
			Run().
			AssertCellEq("A2", 1.0).
			End()
	})

	t.Run("Bare range in scalar context", func(t *testing.T) {
		NewWorkbookTestCase(t, "First cell wins").
			Set("A1", 7.0).
			Set("A2", 8.0).
			Set("B1", "=A1:A2").
			Set("B2", "=A1:A2+1").
			Run().
			AssertCellEq("B1", 7.0).
			AssertCellEq("B2", 8.0).
			End()
	})

	t.Run("Cross sheet", func(t *testing.T) {
		NewWorkbookTestCase(t, "Qualified cell and range").
			AddSheet("Data").
			Set("Data!A1", 5.0).
			Set("Data!A2", 6.0).
			Set("Sheet1!B1", "=Data!A1").
			Set("Sheet1!B2", "=SUM(Data!A1:A2)").
			Run().
			AssertCellEq("Sheet1!B1", 5.0).
			AssertCellEq("Sheet1!B2", 11.0).
			End()

		NewWorkbookTestCase(t, "Quoted sheet names").
			AddSheet("My Budget").
			Set("'My Budget'!A1", 100.0).
			Set("Sheet1!A1", "='My Budget'!A1*2").
			Run().
			AssertCellEq("Sheet1!A1", 200.0).
			End()

		NewWorkbookTestCase(t, "Unquoted sheet name with period").
			AddSheet("Data.2024").
			Set("Data.2024!A1", 5.0).
			Set("Sheet1!A1", "=Data.2024!A1*2").
			Run().
			AssertCellEq("Sheet1!A1", 10.0).
			End()

		NewWorkbookTestCase(t, "Unknown sheet yields REF").
			Set("A1", "=Nowhere!B2").
			Run().
			AssertCellErr("A1", ErrRef).
			End()
	})
}

func TestRecalculation(t *testing.T) {
	t.Run("Dependents update", func(t *testing.T) {
		tc := NewWorkbookTestCase(t, "Constant change flows downstream").
			Set("A1", 1.0).
			Set("A2", "=A1+1").
			Set("A3", "=A2*10").
			Run().
			AssertCellEq("A2", 2.0).
			AssertCellEq("A3", 20.0)

		tc.Set("A1", 5.0).
			Run().
			AssertCellEq("A2", 6.0).
			AssertCellEq("A3", 60.0).
			End()
	})

	t.Run("Range observers update", func(t *testing.T) {
		tc := NewWorkbookTestCase(t, "SUM tracks cells inside its range").
			Set("A1", 1.0).
			Set("A2", 2.0).
			Set("B1", "=SUM(A1:A3)").
			Run().
			AssertCellEq("B1", 3.0)

		tc.Set("A3", 4.0).
			Run().
			AssertCellEq("B1", 7.0).
			End()
	})

	t.Run("Overwriting a formula drops old dependencies", func(t *testing.T) {
		tc := NewWorkbookTestCase(t, "Formula replaced by constant").
			Set("A1", 1.0).
			Set("A2", "=A1*10").
			Run().
			AssertCellEq("A2", 10.0)

		tc.Set("A2", 99.0).
			Set("A1", 2.0).
			Run().
			AssertCellEq("A2", 99.0).
			End()
	})

	t.Run("Removed precedent reads as empty", func(t *testing.T) {
		tc := NewWorkbookTestCase(t, "Remove then recalculate").
			Set("A1", 41.0).
			Set("A2", "=A1+1").
			Run().
			AssertCellEq("A2", 42.0)

		tc.Remove("A1").
			Run().
			AssertCellEq("A2", 1.0).
			End()
	})
}

func TestCircularReferences(t *testing.T) {
	NewWorkbookTestCase(t, "Self reference").
		Set("A1", "=A1").
		Run().
		AssertCellErr("A1", ErrRef).
		End()

	NewWorkbookTestCase(t, "Two cell cycle").
		Set("A1", "=B1").
		Set("B1", "=A1").
		Run().
		AssertCellErr("A1", ErrRef).
		AssertCellErr("B1", ErrRef).
		End()

	NewWorkbookTestCase(t, "Three cell cycle").
		Set("A1", "=B1+1").
		Set("B1", "=C1+1").
		Set("C1", "=A1+1").
		Run().
		AssertCellErr("A1", ErrRef).
		AssertCellErr("B1", ErrRef).
		AssertCellErr("C1", ErrRef).
		End()

	NewWorkbookTestCase(t, "Range containing its own formula").
		Set("A1", "=SUM(A1:A3)").
		Run().
		AssertCellErr("A1", ErrRef).
		End()

	t.Run("Cycle broken by edit", func(t *testing.T) {
		tc := NewWorkbookTestCase(t, "Recovers once an edge is removed").
			Set("A1", "=B1").
			Set("B1", "=A1").
			Run().
			AssertCellErr("A1", ErrRef)

		tc.Set("B1", 3.0).
			Run().
			AssertCellEq("A1", 3.0).
			AssertCellEq("B1", 3.0).
			End()
	})
}

func TestVolatileRecalculation(t *testing.T) {
	rng := &sequenceRandom{values: []float64{0.25, 0.75}}
	clock := &fixedClock{now: time.Date(2024, 6, 15, 18, 0, 0, 0, time.UTC)}

	tc := NewWorkbookTestCaseWith(t, "RAND recalculates every pass", Options{Clock: clock, Random: rng}).
		Set("A1", "=RAND()").
		Set("A2", "=NOW()").
		Run().
		AssertCellEq("A1", 0.25).
		AssertCellEq("A2", 45458.75)

	// no edits, a second pass still re-evaluates volatile cells
	tc.Run().
		AssertCellEq("A1", 0.75).
		End()
}

func TestSheetOperations(t *testing.T) {
	t.Run("Lifecycle", func(t *testing.T) {
		NewWorkbookTestCase(t, "Add remove rename").
			AddSheet("Temp").
			AssertSheetExists("Temp", true).
			RenameSheet("Temp", "Final").
			AssertSheetExists("Temp", false).
			AssertSheetExists("Final", true).
			RemoveSheet("Final").
			AssertSheetExists("Final", false).
			End()

		NewWorkbookTestCase(t, "Rename keeps cell contents").
			AddSheet("Old").
			Set("Old!A1", 11.0).
			RenameSheet("Old", "New").
			AssertCellEq("New!A1", 11.0).
			End()
	})

	t.Run("Error codes", func(t *testing.T) {
		NewWorkbookTestCase(t, "Duplicate sheet").
			AddSheet("Sheet1").
			ExpectError(AlreadyExists).
			End()

		NewWorkbookTestCase(t, "Remove unknown sheet").
			RemoveSheet("Ghost").
			ExpectError(NotFound).
			End()

		NewWorkbookTestCase(t, "Rename to existing name").
			AddSheet("Other").
			RenameSheet("Other", "Sheet1").
			ExpectError(AlreadyExists).
			End()

		NewWorkbookTestCase(t, "Empty sheet name").
			AddSheet("").
			ExpectError(InvalidArgument).
			End()

		NewWorkbookTestCase(t, "Set on unknown sheet").
			Set("Ghost!A1", 1.0).
			ExpectError(NotFound).
			End()

		NewWorkbookTestCase(t, "Malformed address").
			Set("NotAnAddress!!", 1.0).
			ExpectError(InvalidArgument).
			End()
	})

	t.Run("No sheets yet", func(t *testing.T) {
		wb := NewWorkbook()
		err := wb.Set("A1", 1.0)
		appErr, ok := err.(*Error)
		if !ok || appErr.Code != FailedPrecondition {
			t.Errorf("Set on empty workbook = %v, want FailedPrecondition", err)
		}
	})

	t.Run("Sheet order", func(t *testing.T) {
		wb := NewWorkbook()
		for _, name := range []string{"Alpha", "Beta", "Gamma"} {
			if err := wb.AddSheet(name); err != nil {
				t.Fatal(err)
			}
		}
		got := wb.Sheets()
		want := []string{"Alpha", "Beta", "Gamma"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Sheets() = %v, want %v", got, want)
			}
		}

		// unqualified addresses land on the first sheet
		if err := wb.Set("A1", 9.0); err != nil {
			t.Fatal(err)
		}
		value, err := wb.Get("Alpha!A1")
		if err != nil || value != 9.0 {
			t.Errorf("Get(Alpha!A1) = %v, %v; want 9", value, err)
		}
	})
}

func TestEvaluateStandalone(t *testing.T) {
	wb := NewWorkbook()
	if err := wb.AddSheet("Sheet1"); err != nil {
		t.Fatal(err)
	}
	if err := wb.Set("A1", 20.0); err != nil {
		t.Fatal(err)
	}

	result, err := wb.Evaluate("=A1*2+1", "")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result != 41.0 {
		t.Errorf("Evaluate = %v, want 41", result)
	}

	if _, err := wb.Evaluate("=(1+2", ""); err == nil {
		t.Error("Evaluate should surface syntax errors as Go errors")
	}

	if _, err := wb.Evaluate("=1", "Ghost"); err == nil {
		t.Error("Evaluate should reject unknown context sheets")
	}
}

func TestComplexScenario(t *testing.T) {
	// a small invoice: quantities, unit prices, line totals, a summary
	NewWorkbookTestCase(t, "Invoice").
		Set("A1", 2.0).
		Set("A2", 5.0).
		Set("A3", 1.0).
		Set("B1", 9.99).
		Set("B2", 1.5).
		Set("B3", 20.0).
		Set("C1", "=A1*B1").
		Set("C2", "=A2*B2").
		Set("C3", "=A3*B3").
		Set("D1", "=SUM(C1:C3)").
		Set("D2", "=ROUND(D1*0.0825, 2)").
		Set("D3", "=D1+D2").
		Set("E1", `="Total: "&ROUND(D3, 2)`).
		Run().
		AssertCellEq("C1", 19.98).
		AssertCellEq("C2", 7.5).
		AssertCellEq("C3", 20.0).
		AssertCellEq("D1", 47.48).
		AssertCellEq("D2", 3.92).
		AssertCellEq("D3", 51.4).
		AssertCellEq("E1", "Total: 51.4").
		End()
}
