package sheet

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

// Code classifies application-level failures with gRPC-style numbers.
// These are API misuse errors, a separate channel from the *CellError
// values that formulas produce.
type Code int

const (
	// OK indicates the operation completed successfully.
	OK Code = 0

	// Unknown error. Errors raised by APIs that do not return enough
	// error information may be converted to this error.
	Unknown Code = 2

	// InvalidArgument indicates the client specified an invalid argument.
	InvalidArgument Code = 3

	// NotFound means some requested entity (e.g., a worksheet) was not
	// found.
	NotFound Code = 5

	// AlreadyExists means an attempt to create an entity failed because
	// one already exists.
	AlreadyExists Code = 6

	// FailedPrecondition indicates the operation was rejected because
	// the system is not in a state required for its execution.
	FailedPrecondition Code = 9

	// Unimplemented indicates the operation is not implemented or not
	// supported.
	Unimplemented Code = 12

	// Internal errors. Some invariant expected by the underlying system
	// has been broken.
	Internal Code = 13
)

// Error is an application-level error
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError creates a new application error
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// maxCalcDepth bounds calculation recursion so pathological precedent
// chains degrade to #REF! instead of overflowing the stack
const maxCalcDepth = 512

// Options configures a Workbook. The zero value selects wall-clock
// time, the default random source, and no logging.
type Options struct {
	Logger *slog.Logger
	Clock  Clock
	Random RandomGenerator
}

// Workbook combines worksheet storage, formula parsing, dependency
// tracking, and evaluation into a unified API. It implements
// CellResolver: formulas read cells through the workbook itself.
type Workbook struct {
	sheets   map[string]*Worksheet
	order    []string // sheet names in creation order
	graph    *DependencyGraph
	formulas *FormulaCache
	funcs    *FuncLib
	logger   *slog.Logger

	// calc is non-nil only while a Calculate pass runs
	calc *calcPass
}

// NewWorkbook creates an empty workbook with default options
func NewWorkbook() *Workbook {
	return NewWorkbookWith(Options{})
}

// NewWorkbookWith creates an empty workbook with explicit options
func NewWorkbookWith(opts Options) *Workbook {
	clock := opts.Clock
	if clock == nil {
		clock = &WallClock{}
	}
	random := opts.Random
	if random == nil {
		random = &DefaultRandomGenerator{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Workbook{
		sheets:   make(map[string]*Worksheet),
		graph:    NewDependencyGraph(),
		formulas: NewFormulaCache(),
		funcs:    NewFuncLibWith(clock, random),
		logger:   logger,
	}
}

// Funcs exposes the function library, mainly for capability checks
func (wb *Workbook) Funcs() *FuncLib {
	return wb.funcs
}

// AddSheet creates a new worksheet
func (wb *Workbook) AddSheet(name string) error {
	if name == "" {
		return NewError(InvalidArgument, "worksheet name must not be empty")
	}
	if _, exists := wb.sheets[name]; exists {
		return NewError(AlreadyExists, "worksheet already exists: "+name)
	}
	wb.sheets[name] = NewWorksheet(name)
	wb.order = append(wb.order, name)
	return nil
}

// RemoveSheet deletes a worksheet. Formulas on other sheets that read
// it are dirtied and resolve to #REF! on the next calculation.
func (wb *Workbook) RemoveSheet(name string) error {
	if _, exists := wb.sheets[name]; !exists {
		return NewError(NotFound, "worksheet not found: "+name)
	}

	// dirty everything that read the removed sheet, then drop its nodes
	var removed []CellAddr
	for _, sheetName := range wb.order {
		ws := wb.sheets[sheetName]
		ws.Each(func(key CellKey, cell *Cell) {
			if !cell.IsFormula() {
				return
			}
			addr := CellAddr{Sheet: sheetName, Row: key.Row, Col: key.Col}
			for _, precedent := range wb.graph.Precedents(addr) {
				if precedent.Sheet == name {
					wb.graph.MarkDirty(addr)
				}
			}
			for _, rangeAddr := range wb.graph.RangePrecedents(addr) {
				if rangeAddr.Sheet == name {
					wb.graph.MarkDirty(addr)
				}
			}
			if sheetName == name {
				removed = append(removed, addr)
			}
		})
	}
	for _, addr := range removed {
		wb.releaseFormula(addr)
		wb.graph.RemoveNode(addr)
	}

	delete(wb.sheets, name)
	for i, sheetName := range wb.order {
		if sheetName == name {
			wb.order = append(wb.order[:i], wb.order[i+1:]...)
			break
		}
	}
	return nil
}

// RenameSheet renames a worksheet. Formula text referring to the old
// name is not rewritten; those references resolve to #REF!.
func (wb *Workbook) RenameSheet(oldName, newName string) error {
	ws, exists := wb.sheets[oldName]
	if !exists {
		return NewError(NotFound, "worksheet not found: "+oldName)
	}
	if newName == "" {
		return NewError(InvalidArgument, "worksheet name must not be empty")
	}
	if _, exists := wb.sheets[newName]; exists {
		return NewError(AlreadyExists, "worksheet already exists: "+newName)
	}

	delete(wb.sheets, oldName)
	ws.name = newName
	wb.sheets[newName] = ws
	for i, sheetName := range wb.order {
		if sheetName == oldName {
			wb.order[i] = newName
			break
		}
	}
	return nil
}

// HasSheet reports whether a worksheet exists
func (wb *Workbook) HasSheet(name string) bool {
	_, exists := wb.sheets[name]
	return exists
}

// Sheet returns a worksheet by name
func (wb *Workbook) Sheet(name string) (*Worksheet, bool) {
	ws, exists := wb.sheets[name]
	return ws, exists
}

// Sheets returns worksheet names in creation order
func (wb *Workbook) Sheets() []string {
	result := make([]string, len(wb.order))
	copy(result, wb.order)
	return result
}

// resolveAddress parses a possibly sheet-qualified address. An
// unqualified address targets the first sheet.
func (wb *Workbook) resolveAddress(address string) (CellAddr, error) {
	addr, ok := ParseCellRef(address)
	if !ok {
		return CellAddr{}, NewError(InvalidArgument, "invalid cell address: "+address)
	}
	if addr.Sheet == "" {
		if len(wb.order) == 0 {
			return CellAddr{}, NewError(FailedPrecondition, "workbook has no worksheets")
		}
		addr.Sheet = wb.order[0]
	}
	if _, exists := wb.sheets[addr.Sheet]; !exists {
		return CellAddr{}, NewError(NotFound, "worksheet not found: "+addr.Sheet)
	}
	return addr, nil
}

// Set writes a cell. String values with a leading = are treated as
// formulas; structural errors do not fail the call, they land in the
// cell as error values the way a spreadsheet shows a broken formula.
func (wb *Workbook) Set(address string, value Primitive) error {
	addr, err := wb.resolveAddress(address)
	if err != nil {
		return err
	}
	ws := wb.sheets[addr.Sheet]

	// clear whatever was there before
	wb.releaseFormula(addr)
	wb.graph.ClearDependencies(addr)
	wb.graph.UnmarkVolatile(addr)

	source, isFormula := formulaSource(value)
	if !isFormula {
		ws.SetValue(addr.Row, addr.Col, value)
		wb.graph.MarkDependentsDirty(addr)
		return nil
	}

	node, syntaxErr := wb.formulas.Intern(source)
	if syntaxErr != nil {
		kind := ErrValue
		if strings.Contains(syntaxErr.Msg, "reference") {
			kind = ErrRef
		}
		ws.SetValue(addr.Row, addr.Col, NewCellError(kind, syntaxErr.Error()))
		wb.graph.MarkDependentsDirty(addr)
		wb.logger.Debug("formula rejected", "cell", addr.String(), "err", syntaxErr.Msg)
		return nil
	}

	ws.SetFormula(addr.Row, addr.Col, source, node)
	wb.registerDependencies(addr, node)
	wb.graph.MarkDirty(addr)
	wb.graph.MarkDependentsDirty(addr)
	return nil
}

// formulaSource reports whether value is formula text
func formulaSource(value Primitive) (string, bool) {
	str, ok := value.(string)
	if !ok || len(str) == 0 || str[0] != '=' {
		return "", false
	}
	return str, true
}

// registerDependencies extracts references from the AST into the
// dependency graph and classifies volatility
func (wb *Workbook) registerDependencies(addr CellAddr, node Node) {
	cells, ranges := References(node)
	for _, ref := range cells {
		sheet, body := splitSheetQualifier(ref)
		if sheet == "" {
			sheet = addr.Sheet
		}
		if target, ok := ParseCellRef(body); ok {
			target.Sheet = sheet
			wb.graph.AddCellDependency(addr, target)
		}
	}
	for _, ref := range ranges {
		sheet, body := splitSheetQualifier(ref)
		if sheet == "" {
			sheet = addr.Sheet
		}
		if target, ok := ParseRangeRef(body); ok {
			target.Sheet = sheet
			wb.graph.AddRangeDependency(addr, target)
		}
	}

	Walk(node, func(n Node) bool {
		if call, ok := n.(*CallNode); ok && IsVolatile(call.Name) {
			wb.graph.MarkVolatile(addr)
		}
		return true
	})
}

// releaseFormula returns the cell's formula to the cache if it has one
func (wb *Workbook) releaseFormula(addr CellAddr) {
	ws := wb.sheets[addr.Sheet]
	if ws == nil {
		return
	}
	if cell := ws.Cell(addr.Row, addr.Col); cell.IsFormula() {
		wb.formulas.Release(cell.Node)
	}
}

// Get reads a cell's display value: the cached result for formula
// cells, the entered value otherwise, nil when empty
func (wb *Workbook) Get(address string) (Primitive, error) {
	addr, err := wb.resolveAddress(address)
	if err != nil {
		return nil, err
	}
	return wb.sheets[addr.Sheet].ValueAt(addr.Row, addr.Col), nil
}

// Formula returns the formula text of a cell, "" when the cell is
// empty or holds a constant
func (wb *Workbook) Formula(address string) (string, error) {
	addr, err := wb.resolveAddress(address)
	if err != nil {
		return "", err
	}
	cell := wb.sheets[addr.Sheet].Cell(addr.Row, addr.Col)
	if cell == nil {
		return "", nil
	}
	return cell.Formula, nil
}

// Remove deletes a cell and dirties its dependents
func (wb *Workbook) Remove(address string) error {
	addr, err := wb.resolveAddress(address)
	if err != nil {
		return err
	}

	wb.releaseFormula(addr)
	wb.graph.ClearDependencies(addr)
	wb.graph.MarkDependentsDirty(addr)
	wb.graph.RemoveNode(addr)
	wb.sheets[addr.Sheet].Remove(addr.Row, addr.Col)
	return nil
}

// calcPass tracks one Calculate traversal
type calcPass struct {
	processing map[CellAddr]struct{} // cycle detection
	completed  map[CellAddr]struct{} // cells finished this pass
	depth      int
}

func newCalcPass() *calcPass {
	return &calcPass{
		processing: make(map[CellAddr]struct{}),
		completed:  make(map[CellAddr]struct{}),
	}
}

// Calculate recalculates all dirty cells. Volatile cells are re-dirtied
// first; dirty cells are processed in deterministic (sheet, row, col)
// order; circular references resolve to #REF! instead of failing the
// pass.
func (wb *Workbook) Calculate() {
	wb.graph.MarkAllVolatileDirty()
	wb.calc = newCalcPass()
	defer func() { wb.calc = nil }()

	for {
		dirty := wb.graph.DirtyCells()
		if len(dirty) == 0 {
			break
		}

		sort.Slice(dirty, func(i, j int) bool {
			if dirty[i].Sheet != dirty[j].Sheet {
				return dirty[i].Sheet < dirty[j].Sheet
			}
			if dirty[i].Row != dirty[j].Row {
				return dirty[i].Row < dirty[j].Row
			}
			return dirty[i].Col < dirty[j].Col
		})

		for _, addr := range dirty {
			if !wb.graph.IsDirty(addr) {
				continue
			}
			wb.calculateCell(addr)
		}
	}

	wb.logger.Debug("calculation pass complete", "cells", len(wb.calc.completed))
}

// calculateCell calculates one cell, precedents first. A non-nil
// return is a #REF! circularity/depth error for the caller to absorb.
func (wb *Workbook) calculateCell(addr CellAddr) *CellError {
	if _, done := wb.calc.completed[addr]; done {
		wb.graph.ClearDirty(addr)
		return nil
	}
	if _, busy := wb.calc.processing[addr]; busy {
		return NewCellError(ErrRef, "circular reference detected")
	}
	if wb.calc.depth >= maxCalcDepth {
		return NewCellError(ErrRef, "formula nesting too deep")
	}

	wb.calc.processing[addr] = struct{}{}
	wb.calc.depth++
	defer func() {
		delete(wb.calc.processing, addr)
		wb.calc.depth--
		wb.calc.completed[addr] = struct{}{}
	}()

	ws := wb.sheets[addr.Sheet]
	if ws == nil {
		wb.graph.ClearDirty(addr)
		return nil
	}
	cell := ws.Cell(addr.Row, addr.Col)
	if !cell.IsFormula() {
		// constants never recalculate
		wb.graph.ClearDirty(addr)
		return nil
	}

	// a cell depending on a range that contains itself is circular
	for _, rangeAddr := range wb.graph.RangePrecedents(addr) {
		if rangeAddr.Contains(addr) {
			circular := NewCellError(ErrRef, "circular reference detected")
			ws.SetResult(addr.Row, addr.Col, circular)
			wb.graph.ClearDirty(addr)
			return circular
		}
	}

	// cell precedents first
	for _, precedent := range wb.graph.Precedents(addr) {
		if refErr := wb.calculateCell(precedent); refErr != nil {
			ws.SetResult(addr.Row, addr.Col, refErr)
			wb.graph.ClearDirty(addr)
			return refErr
		}
	}

	// then any dirty cells inside observed ranges
	for _, rangeAddr := range wb.graph.RangePrecedents(addr) {
		for _, rangeCell := range rangeAddr.Cells() {
			if wb.graph.IsDirty(rangeCell) {
				// a cycle through a range surfaces when the range
				// value is read, not here
				wb.calculateCell(rangeCell)
			}
		}
	}

	ev := NewEvaluator(wb.funcs, wb, addr.Sheet)
	result := ev.Eval(cell.Node)
	if result == nil {
		result = 0.0
	}
	ws.SetResult(addr.Row, addr.Col, result)
	wb.graph.ClearDirty(addr)

	if cellErr := AsCellError(result); cellErr != nil {
		wb.logger.Debug("cell calculated", "cell", addr.String(), "error", cellErr.Token())
	} else {
		wb.logger.Debug("cell calculated", "cell", addr.String(), "value", fmt.Sprintf("%v", result))
	}

	// lazy propagation: dependents recalculate later in this pass
	for _, dependent := range wb.graph.Dependents(addr) {
		if _, done := wb.calc.completed[dependent]; !done {
			wb.graph.MarkDirty(dependent)
		}
	}

	return nil
}

// CellValue implements CellResolver. During a Calculate pass a dirty
// formula target is calculated on demand, which is where the depth
// guard and cycle detection protect recursive reads.
func (wb *Workbook) CellValue(sheet, ref string) Primitive {
	ws, exists := wb.sheets[sheet]
	if !exists {
		return NewCellError(ErrRef, "worksheet not found: "+sheet)
	}
	target, ok := ParseCellRef(ref)
	if !ok {
		return NewCellError(ErrRef, "invalid cell reference: "+ref)
	}
	target.Sheet = sheet

	if wb.calc != nil {
		if cell := ws.Cell(target.Row, target.Col); cell.IsFormula() {
			if refErr := wb.calculateCell(target); refErr != nil {
				return refErr
			}
		}
	}

	return ws.ValueAt(target.Row, target.Col)
}

// RangeValues implements CellResolver, returning covered values in
// row-major order
func (wb *Workbook) RangeValues(sheet, ref string) []Primitive {
	ws, exists := wb.sheets[sheet]
	if !exists {
		return nil
	}
	target, ok := ParseRangeRef(ref)
	if !ok {
		return nil
	}
	target.Sheet = sheet

	values := make([]Primitive, 0, (target.EndRow-target.StartRow+1)*(target.EndCol-target.StartCol+1))
	for _, addr := range target.Cells() {
		if wb.calc != nil {
			if cell := ws.Cell(addr.Row, addr.Col); cell.IsFormula() {
				if refErr := wb.calculateCell(addr); refErr != nil {
					values = append(values, refErr)
					continue
				}
			}
		}
		values = append(values, ws.ValueAt(addr.Row, addr.Col))
	}
	return values
}

// Evaluate parses and evaluates a standalone formula against the
// workbook's current cell values without storing it anywhere.
func (wb *Workbook) Evaluate(formula, contextSheet string) (Primitive, error) {
	if contextSheet == "" && len(wb.order) > 0 {
		contextSheet = wb.order[0]
	}
	if contextSheet != "" && !wb.HasSheet(contextSheet) {
		return nil, NewError(NotFound, "worksheet not found: "+contextSheet)
	}

	node, syntaxErr := Parse(formula)
	if syntaxErr != nil {
		return nil, syntaxErr
	}

	ev := NewEvaluator(wb.funcs, wb, contextSheet)
	return ev.Eval(node), nil
}
