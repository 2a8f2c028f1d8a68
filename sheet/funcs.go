package sheet

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// Clock interface provides time functionality for testing
type Clock interface {
	Now() time.Time
}

// WallClock is the default implementation using system time
type WallClock struct{}

func (w *WallClock) Now() time.Time {
	return time.Now()
}

// RandomGenerator interface provides random number generation for testing
type RandomGenerator interface {
	Float64() float64
}

// DefaultRandomGenerator uses the standard library's rand package
type DefaultRandomGenerator struct{}

func (d *DefaultRandomGenerator) Float64() float64 {
	return rand.Float64()
}

// BuiltinFunc implements one spreadsheet function. Arguments arrive
// flattened: range arguments have already been expanded row-major, and
// error values ride along as *CellError primitives. Each function
// validates its own arity and coerces its own arguments.
type BuiltinFunc func(args []Primitive) Primitive

// FuncLib is the function registry. Built once, read many; lookups are
// case-insensitive.
type FuncLib struct {
	clock Clock
	rng   RandomGenerator
	funcs map[string]BuiltinFunc
}

// NewFuncLib creates a function library with wall-clock time and the
// default random source
func NewFuncLib() *FuncLib {
	return NewFuncLibWith(&WallClock{}, &DefaultRandomGenerator{})
}

// NewFuncLibWith creates a function library with injected time and
// randomness seams, so volatile functions are testable
func NewFuncLibWith(clock Clock, rng RandomGenerator) *FuncLib {
	lib := &FuncLib{clock: clock, rng: rng}
	lib.funcs = map[string]BuiltinFunc{
		// aggregates
		"SUM":     lib.sum,
		"AVERAGE": lib.average,
		"COUNT":   lib.count,
		"COUNTA":  lib.countA,
		"MIN":     lib.minFn,
		"MAX":     lib.maxFn,
		"MEDIAN":  lib.median,

		// math
		"ABS":     lib.abs,
		"INT":     lib.intFn,
		"ROUND":   lib.round,
		"FLOOR":   lib.floor,
		"CEILING": lib.ceiling,
		"SQRT":    lib.sqrt,
		"POWER":   lib.power,
		"MOD":     lib.mod,
		"PI":      lib.pi,

		// logic
		"IF":      lib.ifFn,
		"AND":     lib.and,
		"OR":      lib.or,
		"NOT":     lib.not,
		"IFERROR": lib.ifError,

		// text
		"CONCATENATE": lib.concatenate,
		"LEFT":        lib.left,
		"RIGHT":       lib.right,
		"MID":         lib.mid,
		"LEN":         lib.lenFn,
		"UPPER":       lib.upper,
		"LOWER":       lib.lower,
		"TRIM":        lib.trim,

		// volatile
		"NOW":   lib.now,
		"TODAY": lib.today,
		"RAND":  lib.rand,

		// lookup family, recognized but not implemented
		"VLOOKUP": notImplemented("VLOOKUP"),
		"HLOOKUP": notImplemented("HLOOKUP"),
		"MATCH":   notImplemented("MATCH"),
		"SUMIF":   notImplemented("SUMIF"),
		"COUNTIF": notImplemented("COUNTIF"),
	}
	return lib
}

// Call invokes a function by name. Unknown names return #NAME?.
func (lib *FuncLib) Call(name string, args []Primitive) Primitive {
	fn, ok := lib.funcs[strings.ToUpper(name)]
	if !ok {
		return NewCellError(ErrName, "unknown function: "+name)
	}
	return fn(args)
}

// Has reports whether name is a registered function
func (lib *FuncLib) Has(name string) bool {
	_, ok := lib.funcs[strings.ToUpper(name)]
	return ok
}

// IsVolatile reports whether the function must be recalculated on
// every Calculate() pass regardless of dependency changes
func IsVolatile(name string) bool {
	switch strings.ToUpper(name) {
	case "NOW", "TODAY", "RAND":
		return true
	default:
		return false
	}
}

// notImplemented builds a stub that returns #N/A for functions the
// engine recognizes but does not evaluate
func notImplemented(name string) BuiltinFunc {
	return func(args []Primitive) Primitive {
		return NewCellError(ErrNA, name+" is not implemented")
	}
}

// firstError returns the first error value among args, nil if none
func firstError(args []Primitive) *CellError {
	for _, arg := range args {
		if err := AsCellError(arg); err != nil {
			return err
		}
	}
	return nil
}

func (lib *FuncLib) sum(args []Primitive) Primitive {
	if err := firstError(args); err != nil {
		return err
	}
	sum := 0.0
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if num, ok := ToNumber(arg); ok && !math.IsNaN(num) {
			sum += num
		}
	}
	// clamp accumulated binary drift so SUM(0.1,0.2) prints as 0.3
	rounded, _ := strconv.ParseFloat(fmt.Sprintf("%.15f", sum), 64)
	return rounded
}

func (lib *FuncLib) average(args []Primitive) Primitive {
	if err := firstError(args); err != nil {
		return err
	}
	sum := 0.0
	count := 0
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if num, ok := ToNumber(arg); ok && !math.IsNaN(num) {
			sum += num
			count++
		}
	}
	if count == 0 {
		return NewCellError(ErrDiv0, "AVERAGE has no numeric values")
	}
	return sum / float64(count)
}

func (lib *FuncLib) count(args []Primitive) Primitive {
	// counts numeric values only; text, booleans, empties, and errors
	// are skipped rather than propagated
	count := 0
	for _, arg := range args {
		switch arg.(type) {
		case float64, int, int64:
			count++
		}
	}
	return float64(count)
}

func (lib *FuncLib) countA(args []Primitive) Primitive {
	// counts all non-empty values, error values included
	count := 0
	for _, arg := range args {
		if arg != nil {
			count++
		}
	}
	return float64(count)
}

func (lib *FuncLib) minFn(args []Primitive) Primitive {
	if len(args) == 0 {
		return NewCellError(ErrValue, "MIN requires at least one argument")
	}
	if err := firstError(args); err != nil {
		return err
	}
	lowest := math.Inf(1)
	hasValues := false
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if num, ok := ToNumber(arg); ok && !math.IsNaN(num) {
			if num < lowest {
				lowest = num
			}
			hasValues = true
		}
	}
	if !hasValues {
		return 0.0
	}
	return lowest
}

func (lib *FuncLib) maxFn(args []Primitive) Primitive {
	if len(args) == 0 {
		return NewCellError(ErrValue, "MAX requires at least one argument")
	}
	if err := firstError(args); err != nil {
		return err
	}
	highest := math.Inf(-1)
	hasValues := false
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if num, ok := ToNumber(arg); ok && !math.IsNaN(num) {
			if num > highest {
				highest = num
			}
			hasValues = true
		}
	}
	if !hasValues {
		return 0.0
	}
	return highest
}

func (lib *FuncLib) median(args []Primitive) Primitive {
	if err := firstError(args); err != nil {
		return err
	}
	values := []float64{}
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if num, ok := ToNumber(arg); ok && !math.IsNaN(num) {
			values = append(values, num)
		}
	}
	if len(values) == 0 {
		return NewCellError(ErrNum, "MEDIAN has no numeric values")
	}

	for i := 0; i < len(values); i++ {
		for j := i + 1; j < len(values); j++ {
			if values[j] < values[i] {
				values[i], values[j] = values[j], values[i]
			}
		}
	}

	mid := len(values) / 2
	if len(values)%2 == 0 {
		return (values[mid-1] + values[mid]) / 2
	}
	return values[mid]
}

func (lib *FuncLib) abs(args []Primitive) Primitive {
	num, err := lib.oneNumber("ABS", args)
	if err != nil {
		return err
	}
	return math.Abs(num)
}

// intFn truncates toward negative infinity, so INT(-1.5) is -2
func (lib *FuncLib) intFn(args []Primitive) Primitive {
	num, err := lib.oneNumber("INT", args)
	if err != nil {
		return err
	}
	return math.Floor(num)
}

// round rounds half away from zero to the given number of decimal
// places. places may be negative to round left of the decimal point.
func (lib *FuncLib) round(args []Primitive) Primitive {
	if len(args) != 2 {
		return NewCellError(ErrValue, "ROUND requires exactly 2 arguments")
	}
	if err := firstError(args); err != nil {
		return err
	}
	num, ok := ToNumber(args[0])
	if !ok {
		return NewCellError(ErrValue, "ROUND requires a numeric first argument")
	}
	places, ok := ToNumber(args[1])
	if !ok {
		return NewCellError(ErrValue, "ROUND requires a numeric second argument")
	}
	multiplier := math.Pow(10, math.Trunc(places))
	return math.Round(num*multiplier) / multiplier
}

func (lib *FuncLib) floor(args []Primitive) Primitive {
	num, err := lib.oneNumber("FLOOR", args)
	if err != nil {
		return err
	}
	return math.Floor(num)
}

func (lib *FuncLib) ceiling(args []Primitive) Primitive {
	num, err := lib.oneNumber("CEILING", args)
	if err != nil {
		return err
	}
	return math.Ceil(num)
}

func (lib *FuncLib) sqrt(args []Primitive) Primitive {
	num, err := lib.oneNumber("SQRT", args)
	if err != nil {
		return err
	}
	if num < 0 {
		return NewCellError(ErrNum, "SQRT requires a non-negative argument")
	}
	return math.Sqrt(num)
}

func (lib *FuncLib) power(args []Primitive) Primitive {
	if len(args) != 2 {
		return NewCellError(ErrValue, "POWER requires exactly 2 arguments")
	}
	if err := firstError(args); err != nil {
		return err
	}
	base, ok1 := ToNumber(args[0])
	exp, ok2 := ToNumber(args[1])
	if !ok1 || !ok2 {
		return NewCellError(ErrValue, "POWER requires numeric arguments")
	}
	return evalArithmetic(BinOpPower, base, exp)
}

func (lib *FuncLib) mod(args []Primitive) Primitive {
	if len(args) != 2 {
		return NewCellError(ErrValue, "MOD requires exactly 2 arguments")
	}
	if err := firstError(args); err != nil {
		return err
	}
	dividend, ok1 := ToNumber(args[0])
	divisor, ok2 := ToNumber(args[1])
	if !ok1 || !ok2 {
		return NewCellError(ErrValue, "MOD requires numeric arguments")
	}
	if divisor == 0 {
		return NewCellError(ErrDiv0, "division by zero")
	}
	return math.Mod(dividend, divisor)
}

func (lib *FuncLib) pi(args []Primitive) Primitive {
	if len(args) != 0 {
		return NewCellError(ErrValue, "PI takes no arguments")
	}
	return math.Pi
}

func (lib *FuncLib) ifFn(args []Primitive) Primitive {
	if len(args) < 2 || len(args) > 3 {
		return NewCellError(ErrValue, "IF requires 2 or 3 arguments")
	}
	if err := AsCellError(args[0]); err != nil {
		return err
	}
	condition, ok := ToBoolean(args[0])
	if !ok {
		return NewCellError(ErrValue, "IF condition must be a boolean")
	}
	if condition {
		return args[1]
	}
	if len(args) == 3 {
		return args[2]
	}
	return false
}

func (lib *FuncLib) and(args []Primitive) Primitive {
	if len(args) == 0 {
		return NewCellError(ErrValue, "AND requires at least 1 argument")
	}
	for _, arg := range args {
		if err := AsCellError(arg); err != nil {
			return err
		}
		val, ok := ToBoolean(arg)
		if !ok {
			return NewCellError(ErrValue, "AND requires boolean arguments")
		}
		if !val {
			return false
		}
	}
	return true
}

func (lib *FuncLib) or(args []Primitive) Primitive {
	if len(args) == 0 {
		return NewCellError(ErrValue, "OR requires at least 1 argument")
	}
	for _, arg := range args {
		if err := AsCellError(arg); err != nil {
			return err
		}
		val, ok := ToBoolean(arg)
		if !ok {
			return NewCellError(ErrValue, "OR requires boolean arguments")
		}
		if val {
			return true
		}
	}
	return false
}

func (lib *FuncLib) not(args []Primitive) Primitive {
	if len(args) != 1 {
		return NewCellError(ErrValue, "NOT requires exactly 1 argument")
	}
	if err := AsCellError(args[0]); err != nil {
		return err
	}
	val, ok := ToBoolean(args[0])
	if !ok {
		return NewCellError(ErrValue, "NOT requires a boolean argument")
	}
	return !val
}

// ifError is the sanctioned error consumer: it inspects an error value
// instead of propagating it
func (lib *FuncLib) ifError(args []Primitive) Primitive {
	if len(args) != 2 {
		return NewCellError(ErrValue, "IFERROR requires exactly 2 arguments")
	}
	if AsCellError(args[0]) != nil {
		return args[1]
	}
	return args[0]
}

func (lib *FuncLib) concatenate(args []Primitive) Primitive {
	if err := firstError(args); err != nil {
		return err
	}
	var result strings.Builder
	for _, arg := range args {
		result.WriteString(ToString(arg))
	}
	return result.String()
}

// left returns the first n characters of text, counted in runes.
// n defaults to 1.
func (lib *FuncLib) left(args []Primitive) Primitive {
	text, n, err := lib.textAndCount("LEFT", args)
	if err != nil {
		return err
	}
	runes := []rune(text)
	if n > len(runes) {
		n = len(runes)
	}
	return string(runes[:n])
}

func (lib *FuncLib) right(args []Primitive) Primitive {
	text, n, err := lib.textAndCount("RIGHT", args)
	if err != nil {
		return err
	}
	runes := []rune(text)
	if n > len(runes) {
		n = len(runes)
	}
	return string(runes[len(runes)-n:])
}

// mid extracts len characters starting at the 1-based rune position
// start
func (lib *FuncLib) mid(args []Primitive) Primitive {
	if len(args) != 3 {
		return NewCellError(ErrValue, "MID requires exactly 3 arguments")
	}
	if err := firstError(args); err != nil {
		return err
	}
	text := ToString(args[0])
	startNum, ok1 := ToNumber(args[1])
	lenNum, ok2 := ToNumber(args[2])
	if !ok1 || !ok2 {
		return NewCellError(ErrValue, "MID requires numeric position arguments")
	}
	start := int(startNum)
	length := int(lenNum)
	if start < 1 || length < 0 {
		return NewCellError(ErrValue, "MID position arguments out of range")
	}

	runes := []rune(text)
	from := start - 1
	if from >= len(runes) {
		return ""
	}
	to := from + length
	if to > len(runes) {
		to = len(runes)
	}
	return string(runes[from:to])
}

func (lib *FuncLib) lenFn(args []Primitive) Primitive {
	text, err := lib.oneText("LEN", args)
	if err != nil {
		return err
	}
	return float64(len([]rune(text)))
}

func (lib *FuncLib) upper(args []Primitive) Primitive {
	text, err := lib.oneText("UPPER", args)
	if err != nil {
		return err
	}
	return strings.ToUpper(text)
}

func (lib *FuncLib) lower(args []Primitive) Primitive {
	text, err := lib.oneText("LOWER", args)
	if err != nil {
		return err
	}
	return strings.ToLower(text)
}

func (lib *FuncLib) trim(args []Primitive) Primitive {
	text, err := lib.oneText("TRIM", args)
	if err != nil {
		return err
	}
	return strings.TrimSpace(text)
}

// Excel date/time constants
const (
	// Excel epoch: December 30, 1899 00:00:00 UTC in Unix milliseconds.
	// Day zero is shifted two days from January 1, 1900 to absorb the
	// historical 1900 leap-year bug while keeping modern dates aligned.
	excelEpochMS = -2209161600000
	msPerDay     = 86400000
)

func (lib *FuncLib) now(args []Primitive) Primitive {
	if len(args) != 0 {
		return NewCellError(ErrValue, "NOW takes no arguments")
	}
	// current time as an Excel serial number (days since epoch)
	now := lib.clock.Now()
	diffMS := float64(now.UnixMilli() - excelEpochMS)
	return diffMS / msPerDay
}

func (lib *FuncLib) today(args []Primitive) Primitive {
	if len(args) != 0 {
		return NewCellError(ErrValue, "TODAY takes no arguments")
	}
	now := lib.clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	diffMS := float64(midnight.UnixMilli() - excelEpochMS)
	return math.Floor(diffMS / msPerDay)
}

func (lib *FuncLib) rand(args []Primitive) Primitive {
	if len(args) != 0 {
		return NewCellError(ErrValue, "RAND takes no arguments")
	}
	return lib.rng.Float64()
}

// argument helpers shared by the single-argument functions

func (lib *FuncLib) oneNumber(name string, args []Primitive) (float64, *CellError) {
	if len(args) != 1 {
		return 0, NewCellError(ErrValue, name+" requires exactly 1 argument")
	}
	if err := AsCellError(args[0]); err != nil {
		return 0, err
	}
	num, ok := ToNumber(args[0])
	if !ok {
		return 0, NewCellError(ErrValue, name+" requires a numeric argument")
	}
	return num, nil
}

func (lib *FuncLib) oneText(name string, args []Primitive) (string, *CellError) {
	if len(args) != 1 {
		return "", NewCellError(ErrValue, name+" requires exactly 1 argument")
	}
	if err := AsCellError(args[0]); err != nil {
		return "", err
	}
	return ToString(args[0]), nil
}

func (lib *FuncLib) textAndCount(name string, args []Primitive) (string, int, *CellError) {
	if len(args) < 1 || len(args) > 2 {
		return "", 0, NewCellError(ErrValue, name+" requires 1 or 2 arguments")
	}
	if err := firstError(args); err != nil {
		return "", 0, err
	}
	text := ToString(args[0])
	n := 1
	if len(args) == 2 {
		num, ok := ToNumber(args[1])
		if !ok {
			return "", 0, NewCellError(ErrValue, name+" requires a numeric count")
		}
		if num < 0 {
			return "", 0, NewCellError(ErrValue, name+" count must not be negative")
		}
		n = int(num)
	}
	return text, n, nil
}
