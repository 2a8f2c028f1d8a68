package sheet

import (
	"strconv"
	"strings"
)

// CellAddr is a resolved cell position. Row and Col are 0-based;
// Sheet is empty when the reference had no worksheet qualifier.
type CellAddr struct {
	Sheet string
	Row   int
	Col   int
}

// RangeAddr is a resolved, normalized rectangular range. StartRow is
// always <= EndRow and StartCol <= EndCol.
type RangeAddr struct {
	Sheet    string
	StartRow int
	StartCol int
	EndRow   int
	EndCol   int
}

// splitSheetQualifier splits an optional Sheet! or 'Sheet Name'!
// prefix from a reference, unquoting the sheet name.
func splitSheetQualifier(ref string) (sheet, rest string) {
	idx := strings.LastIndex(ref, "!")
	if idx == -1 {
		return "", ref
	}

	sheet = ref[:idx]
	rest = ref[idx+1:]

	if strings.HasPrefix(sheet, "'") && strings.HasSuffix(sheet, "'") && len(sheet) >= 2 {
		sheet = sheet[1 : len(sheet)-1]
	}
	return sheet, rest
}

// parseColRow parses the body of an A1 reference (no sheet qualifier)
// into 0-based column and row indices. $ absolute markers are accepted
// and ignored; resolution does not distinguish absolute from relative.
func parseColRow(body string) (col, row int, ok bool) {
	runes := []rune(body)
	i := 0

	if i < len(runes) && runes[i] == charDollar {
		i++
	}

	// column letters (A=0, B=1, ..., Z=25, AA=26, AB=27, ...)
	letterStart := i
	col = 0
	for i < len(runes) && isAlpha(runes[i]) {
		ch := runes[i]
		if ch >= 'a' && ch <= 'z' {
			ch -= 32
		}
		col = col*26 + int(ch-'A') + 1
		i++
	}
	if i == letterStart {
		return 0, 0, false
	}
	col-- // back to 0-based after positional accumulation

	if i < len(runes) && runes[i] == charDollar {
		i++
	}

	// row digits (1-based in notation)
	if i >= len(runes) {
		return 0, 0, false
	}
	rowNum, err := strconv.Atoi(string(runes[i:]))
	if err != nil || rowNum < 1 {
		return 0, 0, false
	}

	return col, rowNum - 1, true
}

// ParseCellRef resolves a cell reference like "B2", "$A$1", or
// "Sheet2!C3" into a CellAddr.
func ParseCellRef(ref string) (CellAddr, bool) {
	sheet, body := splitSheetQualifier(ref)
	col, row, ok := parseColRow(body)
	if !ok {
		return CellAddr{}, false
	}
	return CellAddr{Sheet: sheet, Row: row, Col: col}, true
}

// ParseRangeRef resolves a range reference like "A1:B5" or
// "'My Sheet'!A1:C3" into a normalized RangeAddr.
func ParseRangeRef(ref string) (RangeAddr, bool) {
	sheet, body := splitSheetQualifier(ref)

	colon := strings.Index(body, ":")
	if colon == -1 {
		return RangeAddr{}, false
	}

	startCol, startRow, ok := parseColRow(body[:colon])
	if !ok {
		return RangeAddr{}, false
	}
	endCol, endRow, ok := parseColRow(body[colon+1:])
	if !ok {
		return RangeAddr{}, false
	}

	// normalize so start is the top-left corner
	return RangeAddr{
		Sheet:    sheet,
		StartRow: min(startRow, endRow),
		StartCol: min(startCol, endCol),
		EndRow:   max(startRow, endRow),
		EndCol:   max(startCol, endCol),
	}, true
}

// ColumnName converts a 0-based column index to letters (0 -> "A",
// 25 -> "Z", 26 -> "AA")
func ColumnName(col int) string {
	if col < 0 {
		return ""
	}
	var letters []byte
	col++
	for col > 0 {
		col--
		letters = append([]byte{byte('A' + col%26)}, letters...)
		col /= 26
	}
	return string(letters)
}

// CellName renders a 0-based row/column pair in A1 notation
func CellName(row, col int) string {
	return ColumnName(col) + strconv.Itoa(row+1)
}

// String renders the address in A1 notation with its sheet qualifier
func (a CellAddr) String() string {
	name := CellName(a.Row, a.Col)
	if a.Sheet == "" {
		return name
	}
	return quoteSheetName(a.Sheet) + "!" + name
}

// String renders the range in A1 notation with its sheet qualifier
func (r RangeAddr) String() string {
	body := CellName(r.StartRow, r.StartCol) + ":" + CellName(r.EndRow, r.EndCol)
	if r.Sheet == "" {
		return body
	}
	return quoteSheetName(r.Sheet) + "!" + body
}

// quoteSheetName wraps sheet names in single quotes when they contain
// characters that would not scan as a bare name
func quoteSheetName(name string) string {
	for _, ch := range name {
		if !isAlphaNumeric(ch) && ch != charUnderscore {
			return "'" + name + "'"
		}
	}
	return name
}

// Cells returns the addresses in the range in row-major order
func (r RangeAddr) Cells() []CellAddr {
	cells := make([]CellAddr, 0, (r.EndRow-r.StartRow+1)*(r.EndCol-r.StartCol+1))
	for row := r.StartRow; row <= r.EndRow; row++ {
		for col := r.StartCol; col <= r.EndCol; col++ {
			cells = append(cells, CellAddr{Sheet: r.Sheet, Row: row, Col: col})
		}
	}
	return cells
}

// Contains reports whether the range covers the given address on the
// same sheet
func (r RangeAddr) Contains(a CellAddr) bool {
	return r.Sheet == a.Sheet &&
		a.Row >= r.StartRow && a.Row <= r.EndRow &&
		a.Col >= r.StartCol && a.Col <= r.EndCol
}
