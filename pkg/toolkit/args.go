package toolkit

import (
	"fmt"
	"strconv"
	"strings"
)

type valueKind int

const (
	kindNull valueKind = iota
	kindBool
	kindString
	kindInt
	kindFloat
	kindList
)

// Value is a tagged variant for an option value. Each kind has exactly
// one formatting rule, so the argument vector a given option produces is
// always explicit:
//
//	Null        -> nothing
//	Bool(false) -> nothing
//	Bool(true)  -> --key
//	String(v)   -> --key v
//	Int(n)      -> --key n
//	Float(x)    -> --key x
//	List(...)   -> each element formatted in order under the same key
type Value struct {
	kind valueKind
	b    bool
	s    string
	i    int64
	f    float64
	list []Value
}

// Null is the absent value; it contributes no arguments.
func Null() Value { return Value{kind: kindNull} }

// Bool is a flag value; only a true value emits the flag.
func Bool(v bool) Value { return Value{kind: kindBool, b: v} }

// String is a flag with one string argument.
func String(s string) Value { return Value{kind: kindString, s: s} }

// Int is a flag with one integer argument.
func Int(i int64) Value { return Value{kind: kindInt, i: i} }

// Float is a flag with one floating-point argument.
func Float(f float64) Value { return Value{kind: kindFloat, f: f} }

// List repeats the flag once per element.
func List(vs ...Value) Value { return Value{kind: kindList, list: vs} }

// Strings is List over String values.
func Strings(ss ...string) Value {
	vs := make([]Value, len(ss))
	for i, s := range ss {
		vs[i] = String(s)
	}
	return List(vs...)
}

// Option pairs a flag name with a value. Underscores in the name are
// rewritten to dashes when formatting.
type Option struct {
	Name  string
	Value Value
}

func (o Option) format() []string {
	return o.Value.format(strings.ReplaceAll(o.Name, "_", "-"))
}

func (v Value) format(name string) []string {
	switch v.kind {
	case kindNull:
		return nil
	case kindBool:
		if !v.b {
			return nil
		}
		return []string{"--" + name}
	case kindString:
		return []string{"--" + name, v.s}
	case kindInt:
		return []string{"--" + name, strconv.FormatInt(v.i, 10)}
	case kindFloat:
		return []string{"--" + name, strconv.FormatFloat(v.f, 'g', -1, 64)}
	case kindList:
		var args []string
		for _, e := range v.list {
			args = append(args, e.format(name)...)
		}
		return args
	default:
		return nil
	}
}

// typeName maps a scalar value to the type tag the config-set command
// expects. Only null, int, float and string values are configurable.
func (v Value) typeName() (string, error) {
	switch v.kind {
	case kindNull:
		return "null", nil
	case kindInt:
		return "int", nil
	case kindFloat:
		return "float", nil
	case kindString:
		return "str", nil
	default:
		return "", fmt.Errorf("unsupported value type: %v", v.kind)
	}
}

// literal renders the value as the single positional argument passed
// alongside its type tag.
func (v Value) literal() string {
	switch v.kind {
	case kindNull:
		return "null"
	case kindBool:
		return strconv.FormatBool(v.b)
	case kindString:
		return v.s
	case kindInt:
		return strconv.FormatInt(v.i, 10)
	case kindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return ""
	}
}
