package sheet

import (
	"fmt"
	"strings"
)

// NodePosition marks the source span of a node in the formula body
type NodePosition struct {
	Start int
	End   int
}

// Node is a parsed formula expression. The AST enables dependency
// extraction, volatile function detection, and re-rendering through
// tree traversal rather than regex/string manipulation. Evaluation
// lives on Evaluator, which carries the cell resolution context.
type Node interface {
	Position() NodePosition
	String() string
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value float64
	Pos   NodePosition
}

func (n *NumberNode) Position() NodePosition { return n.Pos }

func (n *NumberNode) String() string {
	return ToString(n.Value)
}

// StringNode represents a string literal
type StringNode struct {
	Value string
	Pos   NodePosition
}

func (n *StringNode) Position() NodePosition { return n.Pos }

func (n *StringNode) String() string {
	escaped := strings.ReplaceAll(n.Value, "\"", "\"\"")
	return fmt.Sprintf("\"%s\"", escaped)
}

// BooleanNode represents a boolean literal
type BooleanNode struct {
	Value bool
	Pos   NodePosition
}

func (n *BooleanNode) Position() NodePosition { return n.Pos }

func (n *BooleanNode) String() string {
	if n.Value {
		return "TRUE"
	}
	return "FALSE"
}

// CellNode represents a single cell reference. Ref keeps the source
// text (e.g. "B2", "$A$1", "Sheet2!C3") so the reference survives
// round-tripping and resolves against the evaluation context.
type CellNode struct {
	Ref string
	Pos NodePosition
}

func (n *CellNode) Position() NodePosition { return n.Pos }

func (n *CellNode) String() string { return n.Ref }

// RangeNode represents a rectangular range reference such as "A1:B5"
// or "'My Sheet'!A1:C3", kept as source text like CellNode.
type RangeNode struct {
	Ref string
	Pos NodePosition
}

func (n *RangeNode) Position() NodePosition { return n.Pos }

func (n *RangeNode) String() string { return n.Ref }

// UnaryNode represents a unary operation
type UnaryNode struct {
	Op      UnaryOp
	Operand Node
	Pos     NodePosition
}

func (n *UnaryNode) Position() NodePosition { return n.Pos }

func (n *UnaryNode) String() string {
	opStr := "+"
	if n.Op == UnaryOpMinus {
		opStr = "-"
	}
	return opStr + n.Operand.String()
}

// BinaryNode represents a binary operation
type BinaryNode struct {
	Op    BinaryOp
	Left  Node
	Right Node
	Pos   NodePosition
}

func (n *BinaryNode) Position() NodePosition { return n.Pos }

func (n *BinaryNode) String() string {
	return fmt.Sprintf("(%s %s %s)", n.Left.String(), n.Op.String(), n.Right.String())
}

// String returns the operator as it appears in formula source
func (op BinaryOp) String() string {
	switch op {
	case BinOpAdd:
		return "+"
	case BinOpSubtract:
		return "-"
	case BinOpMultiply:
		return "*"
	case BinOpDivide:
		return "/"
	case BinOpPower:
		return "^"
	case BinOpConcat:
		return "&"
	case BinOpEqual:
		return "="
	case BinOpNotEqual:
		return "<>"
	case BinOpLess:
		return "<"
	case BinOpLessEqual:
		return "<="
	case BinOpGreater:
		return ">"
	case BinOpGreaterEqual:
		return ">="
	}
	return "?"
}

// CallNode represents a function call with flattened arguments
type CallNode struct {
	Name string
	Args []Node
	Pos  NodePosition
}

func (n *CallNode) Position() NodePosition { return n.Pos }

func (n *CallNode) String() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.String()
	}
	return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ","))
}

// Walk visits node and all of its children in depth-first order. The
// visit function returning false prunes the subtree.
func Walk(node Node, visit func(Node) bool) {
	if node == nil || !visit(node) {
		return
	}
	switch n := node.(type) {
	case *UnaryNode:
		Walk(n.Operand, visit)
	case *BinaryNode:
		Walk(n.Left, visit)
		Walk(n.Right, visit)
	case *CallNode:
		for _, arg := range n.Args {
			Walk(arg, visit)
		}
	}
}

// References collects the cell and range reference texts appearing in
// the expression, in source order.
func References(node Node) (cells []string, ranges []string) {
	Walk(node, func(n Node) bool {
		switch ref := n.(type) {
		case *CellNode:
			cells = append(cells, ref.Ref)
		case *RangeNode:
			ranges = append(ranges, ref.Ref)
		}
		return true
	})
	return cells, ranges
}
