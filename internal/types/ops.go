package types

// CanBinaryOpWith returns the static result type of a binary operator over
// (lhs, rhs), or ok=false if the operator is not defined for that pair.
// The one exception is `String % Seq`, tolerated as a formatting operation
// and typed String.
func CanBinaryOpWith(lhs, rhs Type, op string) (Type, bool) {
	if lhs.Kind == KindAny || rhs.Kind == KindAny {
		return AnySoft(), true
	}
	switch op {
	case "+", "-", "*", "/", "//", "%", "**":
		if op == "%" && lhs.Kind == KindString {
			return String(), true
		}
		if isNumeric(lhs) && isNumeric(rhs) {
			if lhs.Kind == KindFloat || rhs.Kind == KindFloat {
				return Float(), true
			}
			return Integer(), true
		}
		if op == "+" && lhs.Kind == KindList && rhs.Kind == KindList {
			return List(Union(*lhs.Elem, *rhs.Elem)), true
		}
		return Type{}, false
	case "~":
		return String(), true
	case "and", "or":
		return Union(lhs, rhs), true
	case "in":
		return Bool(), true
	default:
		return Type{}, false
	}
}

func isNumeric(t Type) bool { return t.Kind == KindInteger || t.Kind == KindFloat }

// CanCompareWith always returns Bool; ok is false when the pair is
// incompatible (Bool is still pushed, but callers use ok to decide whether
// to warn).
func CanCompareWith(lhs, rhs Type, op string) (Type, bool) {
	if lhs.Kind == KindAny || rhs.Kind == KindAny {
		return Bool(), true
	}
	switch op {
	case "==", "!=":
		return Bool(), true
	default:
		if isNumeric(lhs) && isNumeric(rhs) {
			return Bool(), true
		}
		if lhs.Kind == KindString && rhs.Kind == KindString {
			return Bool(), true
		}
		return Bool(), false
	}
}

// AttrType resolves the static type of `target.name`,
// or ok=false if the attribute does not exist on target's type.
func AttrType(target Type, name string) (Type, bool) {
	switch target.Kind {
	case KindAny:
		return AnySoft(), true
	case KindStruct, KindKwargs:
		for _, f := range target.Fields {
			if f.Name == name {
				return f.Type, true
			}
		}
		return Type{}, false
	case KindNamespace:
		return AnySoft(), true
	case KindUnion:
		var parts []Type
		for _, m := range target.Union {
			t, ok := AttrType(m, name)
			if !ok {
				return Type{}, false
			}
			parts = append(parts, t)
		}
		return Union(parts...), true
	default:
		return Type{}, false
	}
}

// ItemType resolves the element type of `target[index]` for List/Dict/Tuple
//
func ItemType(target Type, literalIndex *int) (Type, bool) {
	switch target.Kind {
	case KindAny:
		return AnySoft(), true
	case KindList, KindIterable:
		return *target.Elem, true
	case KindDict:
		return *target.Val, true
	case KindTuple:
		if literalIndex != nil && *literalIndex >= 0 && *literalIndex < len(target.Fields) {
			return target.Fields[*literalIndex].Type, true
		}
		return Type{}, false
	default:
		return Type{}, false
	}
}

// LoopElemType computes the element type of a `for` target's iterable
// List.element, Iterable.element, Dict.key, or
// Any-hard passthrough.
func LoopElemType(iter Type) Type {
	switch iter.Kind {
	case KindList, KindIterable:
		return *iter.Elem
	case KindDict:
		return *iter.Key
	case KindAny:
		return AnyHard()
	default:
		return AnySoft()
	}
}
