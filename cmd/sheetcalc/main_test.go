package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sheetkit/sheetkit/sheet"
)

func TestParseAssignment(t *testing.T) {
	cases := []struct {
		in    string
		addr  string
		value sheet.Primitive
		fails bool
	}{
		{in: "A1=42", addr: "A1", value: 42.0},
		{in: "B2=true", addr: "B2", value: true},
		{in: "C3=hello", addr: "C3", value: "hello"},
		{in: "D4==A1*2", addr: "D4", value: "=A1*2"},
		{in: "Sheet2!A1=1.5", addr: "Sheet2!A1", value: 1.5},
		{in: "novalue", fails: true},
		{in: "=5", fails: true},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			addr, value, err := parseAssignment(tc.in)
			if tc.fails {
				if err == nil {
					t.Errorf("parseAssignment(%q) should fail", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAssignment(%q) failed: %v", tc.in, err)
			}
			if addr != tc.addr || value != tc.value {
				t.Errorf("parseAssignment(%q) = %q, %v; want %q, %v", tc.in, addr, value, tc.addr, tc.value)
			}
		})
	}
}

func TestPrimitiveFromYAML(t *testing.T) {
	if v := primitiveFromYAML(3); v != 3.0 {
		t.Errorf("int = %v (%T), want float64 3", v, v)
	}
	if v := primitiveFromYAML("=A1+1"); v != "=A1+1" {
		t.Errorf("string = %v, want formula text", v)
	}
	if v := primitiveFromYAML(nil); v != nil {
		t.Errorf("nil = %v, want nil", v)
	}
}

func TestCheckExpectation(t *testing.T) {
	ok, _ := checkExpectation(expectation{Value: 42}, 42.0)
	if !ok {
		t.Error("42.0 should satisfy value 42")
	}
	ok, _ = checkExpectation(expectation{Value: "done"}, "done")
	if !ok {
		t.Error("text should match")
	}
	ok, _ = checkExpectation(expectation{Error: "#DIV/0!"}, sheet.NewCellError(sheet.ErrDiv0, ""))
	if !ok {
		t.Error("error token should match")
	}
	ok, _ = checkExpectation(expectation{Value: 1}, sheet.NewCellError(sheet.ErrDiv0, ""))
	if ok {
		t.Error("an error result must not satisfy a value expectation")
	}
}

const sampleScript = `
sheets:
  - name: Sheet1
    cells:
      A1: 6
      A2: 7
      B1: "=A1*A2"
      C1: "=1/0"
expect:
  - cell: Sheet1!B1
    value: 42
  - cell: Sheet1!C1
    error: "#DIV/0!"
`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRunScriptCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.yaml")
	if err := os.WriteFile(path, []byte(sampleScript), 0o644); err != nil {
		t.Fatal(err)
	}

	output, err := runCLI(t, "run", path)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "PASS Sheet1!B1 = 42") {
		t.Errorf("missing pass line in output:\n%s", output)
	}
	if strings.Contains(output, "FAIL") {
		t.Errorf("unexpected failure in output:\n%s", output)
	}
}

func TestRunScriptCommandFailure(t *testing.T) {
	failing := `
sheets:
  - name: Sheet1
    cells:
      A1: 1
expect:
  - cell: Sheet1!A1
    value: 2
`
	dir := t.TempDir()
	path := filepath.Join(dir, "script.yaml")
	if err := os.WriteFile(path, []byte(failing), 0o644); err != nil {
		t.Fatal(err)
	}

	output, err := runCLI(t, "run", path)
	if err == nil {
		t.Fatalf("run should fail on unmet expectations\n%s", output)
	}
	if !strings.Contains(output, "FAIL Sheet1!A1") {
		t.Errorf("missing fail line in output:\n%s", output)
	}
}

func TestEvalCommand(t *testing.T) {
	output, err := runCLI(t, "eval", "=A1*B1", "--set", "A1=6", "--set", "B1=7")
	if err != nil {
		t.Fatalf("eval failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "42") {
		t.Errorf("eval output = %q, want 42", output)
	}
}
