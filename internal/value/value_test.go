package value

import "testing"

func TestTruthy(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want bool
	}{
		{"none", None(), false},
		{"undefined", Undefined(), false},
		{"false", Bool(false), false},
		{"true", Bool(true), true},
		{"zero int", Int(0), false},
		{"nonzero int", Int(1), true},
		{"zero float", Float(0), false},
		{"empty string", Obj(NewString("")), false},
		{"nonempty string", Obj(NewString("x")), true},
		{"empty list", Obj(NewList(nil)), false},
		{"nonempty list", Obj(NewList([]Value{Int(1)})), true},
	}
	for _, c := range cases {
		if got := c.v.Truthy(); got != c.want {
			t.Errorf("%s: Truthy() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestEqualUndefinedNeverEqual(t *testing.T) {
	if Equal(Undefined(), Undefined()) {
		t.Fatalf("Undefined should never equal anything, including itself")
	}
}

func TestEqualNumericCrossKind(t *testing.T) {
	if !Equal(Int(2), Float(2.0)) {
		t.Fatalf("2 (int) should equal 2.0 (float)")
	}
}

func TestEqualStrings(t *testing.T) {
	if !Equal(Obj(NewString("a")), Obj(NewString("a"))) {
		t.Fatalf("equal strings should compare equal")
	}
	if Equal(Obj(NewString("a")), Obj(NewString("b"))) {
		t.Fatalf("different strings should not compare equal")
	}
}

func TestEqualListsElementwise(t *testing.T) {
	a := Obj(NewList([]Value{Int(1), Int(2)}))
	b := Obj(NewList([]Value{Int(1), Int(2)}))
	c := Obj(NewList([]Value{Int(1), Int(3)}))
	if !Equal(a, b) {
		t.Fatalf("lists with equal elements should compare equal")
	}
	if Equal(a, c) {
		t.Fatalf("lists with different elements should not compare equal")
	}
}

func TestCompareNumeric(t *testing.T) {
	if Compare(Int(1), Int(2)) >= 0 {
		t.Fatalf("1 should compare less than 2")
	}
	if Compare(Float(3.5), Int(2)) <= 0 {
		t.Fatalf("3.5 should compare greater than 2")
	}
}

func TestCompareStrings(t *testing.T) {
	if Compare(Obj(NewString("a")), Obj(NewString("b"))) >= 0 {
		t.Fatalf(`"a" should compare less than "b"`)
	}
}

func TestMarkSafe(t *testing.T) {
	v := Obj(NewString("<b>"))
	if v.Safe() {
		t.Fatalf("a freshly constructed string should not be marked safe")
	}
	safe := MarkSafe(v)
	if !safe.Safe() {
		t.Fatalf("MarkSafe should set the safe bit")
	}
	if v.Safe() {
		t.Fatalf("MarkSafe should not mutate the original value")
	}
}
