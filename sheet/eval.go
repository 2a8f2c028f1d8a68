package sheet

import "math"

// CellResolver supplies cell contents to the evaluator. Implementations
// return error values as *CellError primitives and never panic; a
// lookup that cannot be satisfied structurally (unknown sheet, bad
// reference text) returns #REF! from CellValue and nil from
// RangeValues.
type CellResolver interface {
	// CellValue returns the current value of a single cell. ref is the
	// unqualified A1 reference text; sheet is already resolved.
	CellValue(sheet, ref string) Primitive

	// RangeValues returns the values covered by an unqualified range
	// reference in row-major order, nil when the reference is invalid.
	RangeValues(sheet, ref string) []Primitive
}

// Evaluator walks an AST and produces a Primitive result. Formula-level
// problems come back as *CellError values, never as Go errors, so a
// partial failure stays inside the value domain and propagates the way
// spreadsheet users expect.
type Evaluator struct {
	funcs    *FuncLib
	resolver CellResolver
	sheet    string // sheet that unqualified references resolve against

	// refCache memoizes reference lookups for the lifetime of one
	// evaluator. A formula touching A1 five times reads it once.
	refCache map[string]Primitive
}

// NewEvaluator creates an evaluator for a formula belonging to sheet.
// resolver may be nil for reference-free expressions.
func NewEvaluator(funcs *FuncLib, resolver CellResolver, sheet string) *Evaluator {
	return &Evaluator{
		funcs:    funcs,
		resolver: resolver,
		sheet:    sheet,
		refCache: map[string]Primitive{},
	}
}

// Eval evaluates the expression and returns its result
func (e *Evaluator) Eval(node Node) Primitive {
	switch n := node.(type) {
	case *NumberNode:
		return n.Value
	case *StringNode:
		return n.Value
	case *BooleanNode:
		return n.Value
	case *CellNode:
		return e.cellValue(n.Ref)
	case *RangeNode:
		// a bare range in scalar position degrades to its first cell
		values := e.rangeValues(n.Ref)
		if values == nil {
			return NewCellError(ErrRef, "invalid range reference: "+n.Ref)
		}
		if len(values) == 0 {
			return nil
		}
		return values[0]
	case *UnaryNode:
		return e.evalUnary(n)
	case *BinaryNode:
		return e.evalBinary(n)
	case *CallNode:
		return e.evalCall(n)
	default:
		return NewCellError(ErrValue, "unknown expression node")
	}
}

// splitRef resolves the sheet a reference targets, defaulting to the
// evaluator's current sheet for unqualified references.
func (e *Evaluator) splitRef(ref string) (sheet, body string) {
	sheet, body = splitSheetQualifier(ref)
	if sheet == "" {
		sheet = e.sheet
	}
	return sheet, body
}

func (e *Evaluator) cellValue(ref string) Primitive {
	if e.resolver == nil {
		return NewCellError(ErrRef, "no cell context for reference: "+ref)
	}

	sheet, body := e.splitRef(ref)
	key := sheet + "!" + body
	if cached, ok := e.refCache[key]; ok {
		return cached
	}

	value := e.resolver.CellValue(sheet, body)
	e.refCache[key] = value
	return value
}

func (e *Evaluator) rangeValues(ref string) []Primitive {
	if e.resolver == nil {
		return nil
	}
	sheet, body := e.splitRef(ref)
	return e.resolver.RangeValues(sheet, body)
}

func (e *Evaluator) evalUnary(n *UnaryNode) Primitive {
	val := e.Eval(n.Operand)
	if err := AsCellError(val); err != nil {
		return err
	}

	switch n.Op {
	case UnaryOpPlus:
		// passthrough, no coercion
		return val
	case UnaryOpMinus:
		num, ok := ToNumber(val)
		if !ok {
			return NewCellError(ErrValue, "negation requires a numeric value")
		}
		return -num
	default:
		return NewCellError(ErrValue, "unknown unary operator")
	}
}

func (e *Evaluator) evalBinary(n *BinaryNode) Primitive {
	leftVal := e.Eval(n.Left)
	// left operand errors win over right operand errors
	if err := AsCellError(leftVal); err != nil {
		return err
	}
	rightVal := e.Eval(n.Right)
	if err := AsCellError(rightVal); err != nil {
		return err
	}

	switch n.Op {
	case BinOpAdd, BinOpSubtract, BinOpMultiply, BinOpDivide, BinOpPower:
		leftNum, leftOk := ToNumber(leftVal)
		rightNum, rightOk := ToNumber(rightVal)
		if !leftOk || !rightOk {
			return NewCellError(ErrValue, "arithmetic requires numeric values")
		}
		return evalArithmetic(n.Op, leftNum, rightNum)

	case BinOpConcat:
		return ToString(leftVal) + ToString(rightVal)

	case BinOpEqual, BinOpNotEqual, BinOpLess, BinOpLessEqual, BinOpGreater, BinOpGreaterEqual:
		cmp, ok := Compare(leftVal, rightVal)
		if !ok {
			return NewCellError(ErrValue, "cannot compare these values")
		}
		switch n.Op {
		case BinOpEqual:
			return cmp == 0
		case BinOpNotEqual:
			return cmp != 0
		case BinOpLess:
			return cmp < 0
		case BinOpLessEqual:
			return cmp <= 0
		case BinOpGreater:
			return cmp > 0
		default:
			return cmp >= 0
		}

	default:
		return NewCellError(ErrValue, "unknown operator")
	}
}

func evalArithmetic(op BinaryOp, left, right float64) Primitive {
	switch op {
	case BinOpAdd:
		return left + right
	case BinOpSubtract:
		return left - right
	case BinOpMultiply:
		return left * right
	case BinOpDivide:
		if right == 0 {
			return NewCellError(ErrDiv0, "division by zero")
		}
		return left / right
	case BinOpPower:
		result := math.Pow(left, right)
		// domain failures like (-1)^0.5 come back as NaN
		if math.IsNaN(result) || math.IsInf(result, 0) {
			return NewCellError(ErrNum, "power result out of range")
		}
		return result
	}
	return NewCellError(ErrValue, "unknown arithmetic operator")
}

func (e *Evaluator) evalCall(n *CallNode) Primitive {
	if e.funcs == nil {
		return NewCellError(ErrName, "unknown function: "+n.Name)
	}

	// flatten arguments: ranges splice their cells in row-major order,
	// everything else evaluates to one value. errors ride along as
	// values so functions like IFERROR can inspect them.
	args := make([]Primitive, 0, len(n.Args))
	for _, argNode := range n.Args {
		if rangeArg, ok := argNode.(*RangeNode); ok {
			values := e.rangeValues(rangeArg.Ref)
			if values == nil {
				args = append(args, NewCellError(ErrRef, "invalid range reference: "+rangeArg.Ref))
				continue
			}
			args = append(args, values...)
			continue
		}
		args = append(args, e.Eval(argNode))
	}

	return e.funcs.Call(n.Name, args)
}
