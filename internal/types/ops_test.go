package types

import "testing"

func TestCanBinaryOpWithNumericPromotion(t *testing.T) {
	res, ok := CanBinaryOpWith(Integer(), Float(), "+")
	if !ok || res.Kind != KindFloat {
		t.Fatalf("Integer + Float should promote to Float, got %s (ok=%v)", res, ok)
	}
	res, ok = CanBinaryOpWith(Integer(), Integer(), "+")
	if !ok || res.Kind != KindInteger {
		t.Fatalf("Integer + Integer should stay Integer, got %s (ok=%v)", res, ok)
	}
}

func TestCanBinaryOpWithStringFormatting(t *testing.T) {
	res, ok := CanBinaryOpWith(String(), List(Integer()), "%")
	if !ok || res.Kind != KindString {
		t.Fatalf("String %% Seq should be tolerated as String, got %s (ok=%v)", res, ok)
	}
}

func TestCanBinaryOpWithListConcat(t *testing.T) {
	res, ok := CanBinaryOpWith(List(Integer()), List(String()), "+")
	if !ok || res.Kind != KindList {
		t.Fatalf("List + List should be a List, got %s (ok=%v)", res, ok)
	}
	if res.Elem.Kind != KindUnion {
		t.Fatalf("concatenating List<Integer> + List<String> should union elem types, got %s", res.Elem)
	}
}

func TestCanBinaryOpWithIncompatible(t *testing.T) {
	_, ok := CanBinaryOpWith(String(), Integer(), "+")
	if ok {
		t.Fatalf("String + Integer should not be a defined binary op")
	}
}

func TestCanBinaryOpWithAnyWidensToAnySoft(t *testing.T) {
	res, ok := CanBinaryOpWith(AnyHard(), Integer(), "+")
	if !ok || res.Kind != KindAny {
		t.Fatalf("op with Any operand should widen to Any, got %s (ok=%v)", res, ok)
	}
}

func TestAttrTypeStruct(t *testing.T) {
	s := Struct(Field{Name: "id", Type: Integer()}, Field{Name: "name", Type: String()})
	ty, ok := AttrType(s, "name")
	if !ok || ty.Kind != KindString {
		t.Fatalf("expected String for .name, got %s (ok=%v)", ty, ok)
	}
	_, ok = AttrType(s, "missing")
	if ok {
		t.Fatalf("expected ok=false for a field the struct doesn't have")
	}
}

func TestAttrTypeUnionRequiresAllMembers(t *testing.T) {
	a := Struct(Field{Name: "id", Type: Integer()})
	b := Struct(Field{Name: "id", Type: Integer()}, Field{Name: "name", Type: String()})
	u := Union(a, b)
	ty, ok := AttrType(u, "id")
	if !ok || ty.Kind != KindInteger {
		t.Fatalf("expected Integer for .id present on both union members, got %s (ok=%v)", ty, ok)
	}
	_, ok = AttrType(u, "name")
	if ok {
		t.Fatalf("expected ok=false: .name is absent on one union member")
	}
}

func TestItemTypeTupleLiteralIndex(t *testing.T) {
	tup := Tuple(String(), Integer())
	idx := 1
	ty, ok := ItemType(tup, &idx)
	if !ok || ty.Kind != KindInteger {
		t.Fatalf("expected Integer at tuple index 1, got %s (ok=%v)", ty, ok)
	}
	outOfRange := 5
	_, ok = ItemType(tup, &outOfRange)
	if ok {
		t.Fatalf("expected ok=false for an out-of-range tuple index")
	}
}

func TestLoopElemTypeDict(t *testing.T) {
	elem := LoopElemType(Dict(String(), Integer()))
	if elem.Kind != KindString {
		t.Fatalf("iterating a Dict should yield its key type, got %s", elem)
	}
}

func TestLoopElemTypeAnyHardPassthrough(t *testing.T) {
	elem := LoopElemType(AnyHard())
	if elem.Kind != KindAny || !elem.AnyHard {
		t.Fatalf("iterating Any-hard should stay Any-hard, got %s", elem)
	}
}
