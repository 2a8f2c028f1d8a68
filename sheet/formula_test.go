package sheet

import (
	"strconv"
	"testing"
)

func TestFormulaCacheInterning(t *testing.T) {
	fc := NewFormulaCache()

	first, err := fc.Intern("=SUM(A1:A10)*2")
	if err != nil {
		t.Fatalf("Intern failed: %v", err)
	}
	second, err := fc.Intern("= SUM( A1:A10 ) * 2")
	if err != nil {
		t.Fatalf("Intern failed: %v", err)
	}

	// whitespace and the leading = do not defeat sharing
	if first != second {
		t.Error("equivalent formulas should share one AST")
	}
	if fc.Count() != 1 {
		t.Errorf("Count() = %d, want 1", fc.Count())
	}
	if fc.Refs(first) != 2 {
		t.Errorf("Refs() = %d, want 2", fc.Refs(first))
	}

	other, err := fc.Intern("=SUM(A1:A10)*3")
	if err != nil {
		t.Fatalf("Intern failed: %v", err)
	}
	if other == first {
		t.Error("different formulas must not alias")
	}
	if fc.Count() != 2 {
		t.Errorf("Count() = %d, want 2", fc.Count())
	}
}

func TestFormulaCacheRelease(t *testing.T) {
	fc := NewFormulaCache()

	node, _ := fc.Intern("=A1+1")
	fc.Intern("=A1+1")

	fc.Release(node)
	if fc.Refs(node) != 1 || fc.Count() != 1 {
		t.Errorf("after one release: refs=%d count=%d, want 1, 1", fc.Refs(node), fc.Count())
	}

	fc.Release(node)
	if fc.Refs(node) != 0 || fc.Count() != 0 {
		t.Errorf("after final release: refs=%d count=%d, want 0, 0", fc.Refs(node), fc.Count())
	}

	// releasing an uncached node is a no-op
	fc.Release(node)
	fc.Release(nil)
	if fc.Count() != 0 {
		t.Errorf("Count() = %d, want 0", fc.Count())
	}
}

func TestFormulaCacheSyntaxError(t *testing.T) {
	fc := NewFormulaCache()
	if _, err := fc.Intern("=1+"); err == nil {
		t.Error("Intern should reject malformed formulas")
	}
	if fc.Count() != 0 {
		t.Errorf("failed parse should not populate the cache, Count() = %d", fc.Count())
	}
}

func TestWorkbookSharesFormulas(t *testing.T) {
	wb := NewWorkbook()
	if err := wb.AddSheet("Sheet1"); err != nil {
		t.Fatal(err)
	}

	for row := 1; row <= 50; row++ {
		addr := "B" + strconv.Itoa(row)
		if err := wb.Set(addr, "=A1*2"); err != nil {
			t.Fatal(err)
		}
	}
	if wb.formulas.Count() != 1 {
		t.Errorf("50 identical formulas interned to %d entries, want 1", wb.formulas.Count())
	}

	// overwriting releases the shared entry one reference at a time
	for row := 1; row <= 50; row++ {
		addr := "B" + strconv.Itoa(row)
		if err := wb.Set(addr, 0.0); err != nil {
			t.Fatal(err)
		}
	}
	if wb.formulas.Count() != 0 {
		t.Errorf("cache still holds %d entries after overwrites, want 0", wb.formulas.Count())
	}
}
