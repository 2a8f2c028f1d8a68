package sheet

import (
	"testing"
)

func TestToNumber(t *testing.T) {
	cases := []struct {
		name  string
		value Primitive
		want  float64
		ok    bool
	}{
		{"float", 3.5, 3.5, true},
		{"int", 7, 7, true},
		{"true", true, 1, true},
		{"false", false, 0, true},
		{"empty cell", nil, 0, true},
		{"numeric text", "42", 42, true},
		{"padded numeric text", "  3.5 ", 3.5, true},
		{"scientific text", "1.5e2", 150, true},
		{"plain text", "abc", 0, false},
		{"empty text", "", 0, false},
		{"error value", NewCellError(ErrDiv0, ""), 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ToNumber(tc.value)
			if ok != tc.ok || (ok && got != tc.want) {
				t.Errorf("ToNumber(%v) = %v, %v; want %v, %v", tc.value, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestToString(t *testing.T) {
	cases := []struct {
		name  string
		value Primitive
		want  string
	}{
		{"integral float", 42.0, "42"},
		{"negative integral", -7.0, "-7"},
		{"fractional", 3.14, "3.14"},
		{"large integral", 1e15, "1e+15"},
		{"true", true, "TRUE"},
		{"false", false, "FALSE"},
		{"text passthrough", "hi", "hi"},
		{"empty cell", nil, ""},
		{"error value", NewCellError(ErrName, "no such function"), "#NAME?"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ToString(tc.value); got != tc.want {
				t.Errorf("ToString(%v) = %q, want %q", tc.value, got, tc.want)
			}
		})
	}
}

func TestToBoolean(t *testing.T) {
	cases := []struct {
		name  string
		value Primitive
		want  bool
		ok    bool
	}{
		{"bool", true, true, true},
		{"nonzero number", 2.0, true, true},
		{"zero", 0.0, false, true},
		{"TRUE text", "true", true, true},
		{"FALSE text", "False", false, true},
		{"empty cell", nil, false, true},
		{"arbitrary text", "yes", false, false},
		{"numeric text", "1", false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ToBoolean(tc.value)
			if ok != tc.ok || (ok && got != tc.want) {
				t.Errorf("ToBoolean(%v) = %v, %v; want %v, %v", tc.value, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		name  string
		left  Primitive
		right Primitive
		want  int
		ok    bool
	}{
		{"numbers", 1.0, 2.0, -1, true},
		{"equal numbers", 2.0, 2.0, 0, true},
		{"number vs numeric text", 10.0, "9", 1, true},
		{"bool vs number", true, 0.0, 1, true},
		{"strings ordinal", "apple", "banana", -1, true},
		{"case sensitive", "Z", "a", -1, true},
		{"number vs text falls back to text", 2.0, "abc", -1, true},
		{"error left", NewCellError(ErrValue, ""), 1.0, 0, false},
		{"error right", "x", NewCellError(ErrNA, ""), 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Compare(tc.left, tc.right)
			if ok != tc.ok || (ok && got != tc.want) {
				t.Errorf("Compare(%v, %v) = %v, %v; want %v, %v", tc.left, tc.right, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestCellErrorTokens(t *testing.T) {
	kinds := map[ErrKind]string{
		ErrNull:  "#NULL!",
		ErrDiv0:  "#DIV/0!",
		ErrValue: "#VALUE!",
		ErrRef:   "#REF!",
		ErrName:  "#NAME?",
		ErrNum:   "#NUM!",
		ErrNA:    "#N/A",
	}
	for kind, token := range kinds {
		if got := NewCellError(kind, "").Token(); got != token {
			t.Errorf("Token(%d) = %q, want %q", kind, got, token)
		}
	}

	err := NewCellError(ErrDiv0, "divided B1 by zero")
	if err.Error() != "divided B1 by zero" {
		t.Errorf("Error() = %q, want the message", err.Error())
	}
	if AsCellError(err) == nil {
		t.Error("AsCellError should recognize *CellError")
	}
	if AsCellError(42.0) != nil {
		t.Error("AsCellError should reject non-errors")
	}
}
