// Package types implements the structural type system used by the code
// generator's type-constraint extraction and the flow-sensitive checker
//
package types

import (
	"fmt"
	"sort"
	"strings"
)

// Kind tags a Type's shape.
type Kind uint8

const (
	KindNone Kind = iota
	KindUndefined
	KindAny
	KindString
	KindInteger
	KindFloat
	KindBool
	KindBytes
	KindTimestamp
	KindList
	KindTuple
	KindStruct
	KindDict
	KindIterable
	KindKwargs
	KindUnion
	KindObject
	KindNamespace
	KindFunction
)

// Field is a named, typed member of a Struct or an argument of a Function.
type Field struct {
	Name string
	Type Type
}

// Type is a structural type value. Exactly one of its
// shape-specific fields is meaningful, selected by Kind.
type Type struct {
	Kind Kind

	// KindString: optional literal refinement (e.g. a `ref` call whose
	// first arg is a constant).
	StringLiteral *string

	// KindAny: Hard suppresses further errors; Soft allows continued
	// narrowing (Any-hard vs. Any-soft).
	AnyHard bool

	Elem   *Type   // List, Iterable
	Fields []Field // Tuple (unnamed, Name==""), Struct, Kwargs, Function args
	Key    *Type   // Dict
	Val    *Type   // Dict
	Ret    *Type   // Function

	Union []Type // KindUnion branches, always >= 2, deduped

	ObjectSig string // KindObject: opaque signature name
	NSName    string // KindNamespace
}

func None() Type      { return Type{Kind: KindNone} }
func Undefined() Type { return Type{Kind: KindUndefined} }
func AnyHard() Type   { return Type{Kind: KindAny, AnyHard: true} }
func AnySoft() Type   { return Type{Kind: KindAny, AnyHard: false} }
func String() Type    { return Type{Kind: KindString} }
func Integer() Type   { return Type{Kind: KindInteger} }
func Float() Type     { return Type{Kind: KindFloat} }
func Bool() Type      { return Type{Kind: KindBool} }
func Bytes() Type     { return Type{Kind: KindBytes} }
func Timestamp() Type { return Type{Kind: KindTimestamp} }

func StringLiteral(lit string) Type { return Type{Kind: KindString, StringLiteral: &lit} }
func List(elem Type) Type           { return Type{Kind: KindList, Elem: &elem} }
func Iterable(elem Type) Type       { return Type{Kind: KindIterable, Elem: &elem} }
func Tuple(fields ...Type) Type {
	fs := make([]Field, len(fields))
	for i, f := range fields {
		fs[i] = Field{Type: f}
	}
	return Type{Kind: KindTuple, Fields: fs}
}
func Struct(fields ...Field) Type { return Type{Kind: KindStruct, Fields: fields} }
func Dict(key, val Type) Type     { return Type{Kind: KindDict, Key: &key, Val: &val} }
func Kwargs(fields ...Field) Type { return Type{Kind: KindKwargs, Fields: fields} }
func Object(sig string) Type      { return Type{Kind: KindObject, ObjectSig: sig} }
func Namespace(name string) Type  { return Type{Kind: KindNamespace, NSName: name} }
func Function(args []Field, ret Type) Type {
	return Type{Kind: KindFunction, Fields: args, Ret: &ret}
}

// Union builds the least-upper-bound union of ts, flattening nested unions
// and deduping structurally-equal members. A single member collapses to
// itself; zero members is None.
func Union(ts ...Type) Type {
	var flat []Type
	for _, t := range ts {
		if t.Kind == KindUnion {
			flat = append(flat, t.Union...)
		} else {
			flat = append(flat, t)
		}
	}
	flat = dedupe(flat)
	if len(flat) == 0 {
		return None()
	}
	if len(flat) == 1 {
		return flat[0]
	}
	sort.Slice(flat, func(i, j int) bool { return flat[i].String() < flat[j].String() })
	return Type{Kind: KindUnion, Union: flat}
}

func dedupe(ts []Type) []Type {
	var out []Type
	for _, t := range ts {
		dup := false
		for _, o := range out {
			if Equal(t, o) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, t)
		}
	}
	return out
}

// Equal is structural equality (used for union dedup and diagnostics).
func Equal(a, b Type) bool { return a.String() == b.String() }

// IsOptional reports whether t's union includes None.
func (t Type) IsOptional() bool {
	if t.Kind == KindNone {
		return true
	}
	if t.Kind != KindUnion {
		return false
	}
	for _, m := range t.Union {
		if m.Kind == KindNone {
			return true
		}
	}
	return false
}

// Exclude removes variant `other` from a union type. Excluding the only
// variant yields None; excluding from a non-union yields None if it
// matches, else t unchanged.
func (t Type) Exclude(other Kind) Type {
	if t.Kind == KindUnion {
		var kept []Type
		for _, m := range t.Union {
			if m.Kind != other {
				kept = append(kept, m)
			}
		}
		return Union(kept...)
	}
	if t.Kind == other {
		return None()
	}
	return t
}

// GetNonOptionalType strips None from t, used by `x is not none` refinement.
func (t Type) GetNonOptionalType() Type {
	return t.Exclude(KindNone)
}

// IsSubtypeOf defines the assignability lattice.
func IsSubtypeOf(sub, super Type) bool {
	if super.Kind == KindAny {
		return true
	}
	if sub.Kind == KindAny {
		return sub.AnyHard // Any-hard is subtype of everything (suppresses errors)
	}
	if sub.Kind == KindUnion {
		for _, m := range sub.Union {
			if !IsSubtypeOf(m, super) {
				return false
			}
		}
		return true
	}
	if super.Kind == KindUnion {
		for _, m := range super.Union {
			if IsSubtypeOf(sub, m) {
				return true
			}
		}
		return false
	}
	if sub.Kind != super.Kind {
		return false
	}
	switch sub.Kind {
	case KindString:
		if super.StringLiteral != nil {
			return sub.StringLiteral != nil && *sub.StringLiteral == *super.StringLiteral
		}
		return true
	case KindList, KindIterable:
		return IsSubtypeOf(*sub.Elem, *super.Elem)
	case KindDict:
		return IsSubtypeOf(*sub.Key, *super.Key) && IsSubtypeOf(*sub.Val, *super.Val)
	case KindTuple:
		if len(sub.Fields) != len(super.Fields) {
			return false
		}
		for i := range sub.Fields {
			if !IsSubtypeOf(sub.Fields[i].Type, super.Fields[i].Type) {
				return false
			}
		}
		return true
	case KindStruct:
		for _, sf := range super.Fields {
			found := false
			for _, f := range sub.Fields {
				if f.Name == sf.Name {
					found = IsSubtypeOf(f.Type, sf.Type)
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case KindObject:
		return sub.ObjectSig == super.ObjectSig
	case KindNamespace:
		return sub.NSName == super.NSName
	default:
		return true
	}
}

func (t Type) String() string {
	switch t.Kind {
	case KindNone:
		return "None"
	case KindUndefined:
		return "Undefined"
	case KindAny:
		if t.AnyHard {
			return "Any"
		}
		return "Any~"
	case KindString:
		if t.StringLiteral != nil {
			return fmt.Sprintf("String(%q)", *t.StringLiteral)
		}
		return "String"
	case KindInteger:
		return "Integer"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindBytes:
		return "Bytes"
	case KindTimestamp:
		return "Timestamp"
	case KindList:
		return "List<" + t.Elem.String() + ">"
	case KindIterable:
		return "Iterable<" + t.Elem.String() + ">"
	case KindTuple:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Type.String()
		}
		return "Tuple<" + strings.Join(parts, ", ") + ">"
	case KindStruct:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + ": " + f.Type.String()
		}
		return "Struct{" + strings.Join(parts, ", ") + "}"
	case KindDict:
		return "Dict<" + t.Key.String() + ", " + t.Val.String() + ">"
	case KindKwargs:
		return "Kwargs"
	case KindUnion:
		parts := make([]string, len(t.Union))
		for i, m := range t.Union {
			parts[i] = m.String()
		}
		return strings.Join(parts, " | ")
	case KindObject:
		return "Object<" + t.ObjectSig + ">"
	case KindNamespace:
		return "Namespace<" + t.NSName + ">"
	case KindFunction:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + ": " + f.Type.String()
		}
		return "fn(" + strings.Join(parts, ", ") + ") -> " + t.Ret.String()
	}
	return "?"
}
