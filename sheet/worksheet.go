package sheet

// Cell holds one cell's entered content and, for formula cells, the
// interned AST and the cached calculation result
type Cell struct {
	Value   Primitive // entered constant, nil for formula cells
	Formula string    // formula source text, "" for plain cells
	Node    Node      // shared AST from the formula cache
	Result  Primitive // cached result of the last calculation
}

// IsFormula reports whether the cell holds a formula
func (c *Cell) IsFormula() bool {
	return c != nil && c.Node != nil
}

// CellKey is a 0-based (row, column) position within one worksheet
type CellKey struct {
	Row int
	Col int
}

// Worksheet is sparse cell storage. Only cells that have ever been set
// occupy memory; a million-row sheet with ten values holds ten cells.
type Worksheet struct {
	name  string
	cells map[CellKey]*Cell
}

// NewWorksheet creates an empty worksheet
func NewWorksheet(name string) *Worksheet {
	return &Worksheet{
		name:  name,
		cells: make(map[CellKey]*Cell),
	}
}

// Name returns the worksheet name
func (ws *Worksheet) Name() string {
	return ws.name
}

// Cell returns the cell at the position, nil when empty
func (ws *Worksheet) Cell(row, col int) *Cell {
	return ws.cells[CellKey{Row: row, Col: col}]
}

// SetValue stores a constant value, replacing any formula
func (ws *Worksheet) SetValue(row, col int, value Primitive) {
	ws.cells[CellKey{Row: row, Col: col}] = &Cell{Value: value}
}

// SetFormula stores a formula cell with its shared AST. The result
// stays unset until the next calculation.
func (ws *Worksheet) SetFormula(row, col int, source string, node Node) {
	ws.cells[CellKey{Row: row, Col: col}] = &Cell{Formula: source, Node: node}
}

// SetResult caches the calculated result of a formula cell
func (ws *Worksheet) SetResult(row, col int, result Primitive) {
	if cell := ws.cells[CellKey{Row: row, Col: col}]; cell != nil {
		cell.Result = result
	}
}

// Remove deletes the cell at the position
func (ws *Worksheet) Remove(row, col int) {
	delete(ws.cells, CellKey{Row: row, Col: col})
}

// ValueAt returns the display value of a cell: the cached result for
// formula cells, the entered value otherwise, nil when empty
func (ws *Worksheet) ValueAt(row, col int) Primitive {
	cell := ws.cells[CellKey{Row: row, Col: col}]
	if cell == nil {
		return nil
	}
	if cell.IsFormula() {
		return cell.Result
	}
	return cell.Value
}

// Len returns the number of occupied cells
func (ws *Worksheet) Len() int {
	return len(ws.cells)
}

// Dims returns the bounding row and column counts of the occupied
// region, (0, 0) for an empty sheet
func (ws *Worksheet) Dims() (rows, cols int) {
	for key := range ws.cells {
		if key.Row+1 > rows {
			rows = key.Row + 1
		}
		if key.Col+1 > cols {
			cols = key.Col + 1
		}
	}
	return rows, cols
}

// Each calls fn for every occupied cell in unspecified order
func (ws *Worksheet) Each(fn func(key CellKey, cell *Cell)) {
	for key, cell := range ws.cells {
		fn(key, cell)
	}
}
