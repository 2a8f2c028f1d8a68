package sheet

import (
	"math"
	"strconv"
	"strings"
)

// Primitive represents basic spreadsheet value types.
// types:
//   - float64: numeric values (integers are converted to float64)
//   - string: text values
//   - bool: boolean values (TRUE/FALSE)
//   - nil: empty cells
//   - *CellError: error values (#DIV/0!, #VALUE!, etc.)
type Primitive any

// ErrKind represents standard spreadsheet error codes following
// Excel conventions
type ErrKind uint8

const (
	ErrNull  ErrKind = 1 // #NULL! - no cells in common between ranges
	ErrDiv0  ErrKind = 2 // #DIV/0! - division by zero
	ErrValue ErrKind = 3 // #VALUE! - wrong type of argument or operand
	ErrRef   ErrKind = 4 // #REF! - invalid cell reference
	ErrName  ErrKind = 5 // #NAME? - unrecognized function name
	ErrNum   ErrKind = 6 // #NUM! - number outside the representable domain
	ErrNA    ErrKind = 7 // #N/A - value not available
)

// errTokens maps error kinds to their canonical display tokens
var errTokens = map[ErrKind]string{
	ErrNull:  "#NULL!",
	ErrDiv0:  "#DIV/0!",
	ErrValue: "#VALUE!",
	ErrRef:   "#REF!",
	ErrName:  "#NAME?",
	ErrNum:   "#NUM!",
	ErrNA:    "#N/A",
}

// CellError is a formula-level error value. It propagates through
// arithmetic and function calls as an ordinary Primitive and is the
// terminal result of evaluating a formula that hit a runtime problem.
// It is never raised as a Go error during evaluation.
type CellError struct {
	Kind    ErrKind
	Message string
}

func (e *CellError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return errTokens[e.Kind]
}

// Token returns the canonical display token, e.g. "#DIV/0!".
func (e *CellError) Token() string {
	return errTokens[e.Kind]
}

// NewCellError creates a new formula error value
func NewCellError(kind ErrKind, message string) *CellError {
	if message == "" {
		message = errTokens[kind]
	}
	return &CellError{Kind: kind, Message: message}
}

// ErrKindFromToken resolves a display token like "#DIV/0!" back to its
// error kind, for loading error values from documents
func ErrKindFromToken(token string) (ErrKind, bool) {
	for kind, text := range errTokens {
		if text == token {
			return kind, true
		}
	}
	return 0, false
}

// AsCellError returns the error if value is a *CellError, nil otherwise
func AsCellError(value Primitive) *CellError {
	if err, ok := value.(*CellError); ok {
		return err
	}
	return nil
}

// ToNumber converts value to a number, returning ok=false if the
// conversion fails. empty coerces to 0, booleans to 1/0, strings parse
// as floats. errors never coerce.
func ToNumber(value Primitive) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		num, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return num, true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

// ToString converts value to its display text. integral numbers print
// without a decimal point, booleans as TRUE/FALSE, errors as their
// canonical token.
func ToString(value Primitive) string {
	switch v := value.(type) {
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case string:
		return v
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case *CellError:
		return v.Token()
	case nil:
		return ""
	default:
		return ""
	}
}

// ToBoolean converts value to a boolean, returning ok=false if the
// conversion fails. only the literal strings TRUE/FALSE (any case)
// coerce from text; other strings fail rather than being truthy.
func ToBoolean(value Primitive) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case float64:
		return v != 0, true
	case int:
		return v != 0, true
	case int64:
		return v != 0, true
	case string:
		switch strings.ToUpper(v) {
		case "TRUE":
			return true, true
		case "FALSE":
			return false, true
		}
		return false, false
	case nil:
		return false, true
	default:
		return false, false
	}
}

// Compare compares two primitives. returns (-1|0|1, true) when the
// values are comparable: numerically when both sides coerce to numbers,
// otherwise as case-sensitive ordinal strings. comparing an error with
// anything is not comparable.
func Compare(left, right Primitive) (int, bool) {
	if AsCellError(left) != nil || AsCellError(right) != nil {
		return 0, false
	}

	leftNum, leftIsNum := ToNumber(left)
	rightNum, rightIsNum := ToNumber(right)
	if leftIsNum && rightIsNum {
		switch {
		case leftNum < rightNum:
			return -1, true
		case leftNum > rightNum:
			return 1, true
		}
		return 0, true
	}

	leftStr := ToString(left)
	rightStr := ToString(right)
	switch {
	case leftStr < rightStr:
		return -1, true
	case leftStr > rightStr:
		return 1, true
	}
	return 0, true
}
