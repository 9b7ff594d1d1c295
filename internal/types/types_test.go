package types

import "testing"

func TestUnionFlattensAndDedupes(t *testing.T) {
	u := Union(String(), Integer(), Union(String(), Bool()))
	if u.Kind != KindUnion {
		t.Fatalf("expected union, got %s", u)
	}
	if len(u.Union) != 3 {
		t.Fatalf("expected 3 deduped members, got %d (%s)", len(u.Union), u)
	}
}

func TestUnionSingleMemberCollapses(t *testing.T) {
	u := Union(String(), String())
	if u.Kind != KindString {
		t.Fatalf("expected collapsed to String, got %s", u)
	}
}

func TestUnionEmptyIsNone(t *testing.T) {
	u := Union()
	if u.Kind != KindNone {
		t.Fatalf("expected None, got %s", u)
	}
}

func TestIsOptional(t *testing.T) {
	if !Union(String(), None()).IsOptional() {
		t.Fatalf("expected String|None to be optional")
	}
	if String().IsOptional() {
		t.Fatalf("expected bare String to not be optional")
	}
}

func TestExcludeNoneFromUnion(t *testing.T) {
	opt := Union(String(), None())
	got := opt.GetNonOptionalType()
	if got.Kind != KindString {
		t.Fatalf("expected String after excluding None, got %s", got)
	}
}

func TestExcludeOnlyVariantYieldsNone(t *testing.T) {
	got := String().Exclude(KindString)
	if got.Kind != KindNone {
		t.Fatalf("expected None, got %s", got)
	}
}

func TestIsSubtypeOfAnyHardSuppressesErrors(t *testing.T) {
	if !IsSubtypeOf(AnyHard(), String()) {
		t.Fatalf("Any-hard should be a subtype of everything")
	}
}

func TestIsSubtypeOfAnySoftIsNotUniversalSubtype(t *testing.T) {
	if IsSubtypeOf(AnySoft(), String()) {
		t.Fatalf("Any-soft should not be treated as a subtype of String")
	}
}

func TestIsSubtypeOfStringLiteralRefinement(t *testing.T) {
	lit := StringLiteral("customers")
	if !IsSubtypeOf(lit, String()) {
		t.Fatalf("a literal string type should be a subtype of the general String type")
	}
	if IsSubtypeOf(String(), lit) {
		t.Fatalf("the general String type should not be a subtype of a specific literal")
	}
	if !IsSubtypeOf(lit, StringLiteral("customers")) {
		t.Fatalf("matching literals should be subtypes of one another")
	}
}

func TestIsSubtypeOfList(t *testing.T) {
	if !IsSubtypeOf(List(Integer()), List(Integer())) {
		t.Fatalf("List<Integer> should be a subtype of itself")
	}
	if IsSubtypeOf(List(Integer()), List(String())) {
		t.Fatalf("List<Integer> should not be a subtype of List<String>")
	}
}

func TestIsSubtypeOfStructStructuralWidening(t *testing.T) {
	wide := Struct(Field{Name: "id", Type: Integer()}, Field{Name: "name", Type: String()})
	narrow := Struct(Field{Name: "id", Type: Integer()})
	if !IsSubtypeOf(wide, narrow) {
		t.Fatalf("a struct with extra fields should be a subtype of one requiring fewer")
	}
	if IsSubtypeOf(narrow, wide) {
		t.Fatalf("a struct missing a required field should not be a subtype")
	}
}

func TestIsSubtypeOfObjectSignature(t *testing.T) {
	a := Object("relation")
	b := Object("relation")
	c := Object("column")
	if !IsSubtypeOf(a, b) {
		t.Fatalf("matching object signatures should be subtypes")
	}
	if IsSubtypeOf(a, c) {
		t.Fatalf("mismatched object signatures should not be subtypes")
	}
}

func TestUnionSubtypeRequiresAllMembersToMatch(t *testing.T) {
	u := Union(String(), Integer())
	if !IsSubtypeOf(String(), u) {
		t.Fatalf("String should be a subtype of String|Integer")
	}
	if IsSubtypeOf(Bool(), u) {
		t.Fatalf("Bool should not be a subtype of String|Integer")
	}
	if !IsSubtypeOf(u, Union(String(), Integer(), Bool())) {
		t.Fatalf("String|Integer should be a subtype of String|Integer|Bool")
	}
}

func TestTypeStringRendering(t *testing.T) {
	cases := []struct {
		ty   Type
		want string
	}{
		{None(), "None"},
		{AnyHard(), "Any"},
		{AnySoft(), "Any~"},
		{List(String()), "List<String>"},
		{Dict(String(), Integer()), "Dict<String, Integer>"},
		{Union(String(), Integer()), "Integer | String"},
	}
	for _, c := range cases {
		if got := c.ty.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}
