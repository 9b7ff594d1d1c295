// Package value implements the dynamic value model shared by the code
// generator, the virtual machine and the type checker: a small tagged union
// for scalars plus a heap Object interface for everything else.
package value

import (
	"math"
	"math/big"
)

// Kind identifies the tag of a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindUndefined
	KindBool
	KindInt
	KindFloat
	KindObj // string/bytes/seq/map/kwargs/object all live behind Obj
)

// Value is the tagged union passed on the VM operand stack. Bool/Int/Float
// live inline to avoid an allocation on the hot arithmetic path; everything
// else is boxed behind Obj.
type Value struct {
	kind Kind
	bits uint64
	obj  Object
}

func None() Value      { return Value{kind: KindNone} }
func Undefined() Value { return Value{kind: KindUndefined} }

func Bool(b bool) Value {
	var bits uint64
	if b {
		bits = 1
	}
	return Value{kind: KindBool, bits: bits}
}

func Int(i int64) Value { return Value{kind: KindInt, bits: uint64(i)} }

func Float(f float64) Value { return Value{kind: KindFloat, bits: math.Float64bits(f)} }

func Obj(o Object) Value { return Value{kind: KindObj, obj: o} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNone() bool { return v.kind == KindNone }
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }
func (v Value) IsBool() bool  { return v.kind == KindBool }
func (v Value) IsInt() bool   { return v.kind == KindInt }
func (v Value) IsFloat() bool { return v.kind == KindFloat }
func (v Value) IsObj() bool   { return v.kind == KindObj }

func (v Value) AsBool() bool       { return v.bits == 1 }
func (v Value) AsInt() int64       { return int64(v.bits) }
func (v Value) AsFloat() float64   { return math.Float64frombits(v.bits) }
func (v Value) AsObject() Object   { return v.obj }

// Truthy implements Jinja truthiness: none/undefined/false/0/""/empty
// sequences and maps are falsy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNone, KindUndefined:
		return false
	case KindBool:
		return v.AsBool()
	case KindInt:
		return v.AsInt() != 0
	case KindFloat:
		return v.AsFloat() != 0
	case KindObj:
		if v.obj == nil {
			return false
		}
		return v.obj.Truthy()
	}
	return false
}

// Safe reports whether this value must not be re-escaped by auto-escape
// processing. Only string-shaped objects carry the bit; everything else is
// considered safe to interpolate as-is.
func (v Value) Safe() bool {
	if s, ok := v.obj.(*String); ok {
		return s.safe
	}
	return true
}

// MarkSafe returns a copy of v with its safe bit set, if v is a string.
func MarkSafe(v Value) Value {
	if s, ok := v.obj.(*String); ok {
		cp := *s
		cp.safe = true
		return Obj(&cp)
	}
	return v
}

// Equal implements Jinja equality. Undefined is never equal to anything,
// including another Undefined, in strict contexts; callers that need
// lenient semantics should special-case Undefined themselves.
func Equal(a, b Value) bool {
	if a.kind == KindUndefined || b.kind == KindUndefined {
		return false
	}
	if a.kind == KindNone || b.kind == KindNone {
		return a.kind == b.kind
	}
	if isNumeric(a) && isNumeric(b) {
		return numEqual(a, b)
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindBool:
		return a.AsBool() == b.AsBool()
	case KindObj:
		return objEqual(a.obj, b.obj)
	}
	return false
}

func isNumeric(v Value) bool { return v.kind == KindInt || v.kind == KindFloat }

func numEqual(a, b Value) bool {
	af := toF64(a)
	bf := toF64(b)
	return af == bf
}

func toF64(v Value) float64 {
	if v.kind == KindInt {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

func objEqual(a, b Object) bool {
	if a == nil || b == nil {
		return a == b
	}
	if as, ok := a.(*String); ok {
		if bs, ok := b.(*String); ok {
			return as.s == bs.s
		}
		return false
	}
	if al, ok := a.(*List); ok {
		if bl, ok := b.(*List); ok {
			items := al.Items()
			other := bl.Items()
			if len(items) != len(other) {
				return false
			}
			for i := range items {
				if !Equal(items[i], other[i]) {
					return false
				}
			}
			return true
		}
		return false
	}
	return a == b
}

// Compare orders two values for <, <=, >, >=. Cross-kind comparisons fall
// back to ordering by kind so sort-like operations never panic.
func Compare(a, b Value) int {
	if isNumeric(a) && isNumeric(b) {
		af, bf := toF64(a), toF64(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	if as, ok := a.obj.(*String); ok {
		if bs, ok := b.obj.(*String); ok {
			switch {
			case as.s < bs.s:
				return -1
			case as.s > bs.s:
				return 1
			default:
				return 0
			}
		}
	}
	ka, kb := int(a.kind), int(b.kind)
	switch {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	default:
		return 0
	}
}

// BigInt wraps a math/big.Int for integers outside the 64-bit fast path
//
type BigInt struct {
	V *big.Int
}

func (b *BigInt) Type() string  { return "bigint" }
func (b *BigInt) Truthy() bool  { return b.V.Sign() != 0 }
func (b *BigInt) String() string { return b.V.String() }
