package types

import "testing"

func TestConstraintInvertTwiceIsEquivalent(t *testing.T) {
	c := Constraint{Kind: ConstraintNotNull, Assert: true}
	twice := c.Invert().Invert()
	if twice.Assert != c.Assert {
		t.Fatalf("inverting twice should be equivalent, got Assert=%v want %v", twice.Assert, c.Assert)
	}
}

func TestConstraintNotNullNarrowsOptional(t *testing.T) {
	opt := Union(String(), None())
	c := Constraint{Kind: ConstraintNotNull, Assert: true}
	narrowed := c.Apply(opt)
	if narrowed.Kind != KindString {
		t.Fatalf("asserting not-null on String|None should narrow to String, got %s", narrowed)
	}
}

func TestConstraintNotNullNegatedOnOptionalYieldsNone(t *testing.T) {
	opt := Union(String(), None())
	c := Constraint{Kind: ConstraintNotNull, Assert: false}
	narrowed := c.Apply(opt)
	if narrowed.Kind != KindNone {
		t.Fatalf("the false branch of a not-null check on an optional should narrow to None, got %s", narrowed)
	}
}

func TestConstraintIsNarrowsToTestType(t *testing.T) {
	u := Union(String(), Integer())
	c := Constraint{Kind: ConstraintIs, Assert: true, Test: "string"}
	narrowed := c.Apply(u)
	if narrowed.Kind != KindString {
		t.Fatalf("asserting `is string` on String|Integer should narrow to String, got %s", narrowed)
	}
}

func TestConstraintIsNegatedExcludesTestType(t *testing.T) {
	u := Union(String(), Integer())
	c := Constraint{Kind: ConstraintIs, Assert: false, Test: "string"}
	narrowed := c.Apply(u)
	if narrowed.Kind != KindInteger {
		t.Fatalf("the false branch of `is string` on String|Integer should exclude String, got %s", narrowed)
	}
}

func TestTestResultTypeUnknownFallsBackToAnySoft(t *testing.T) {
	c := Constraint{Kind: ConstraintIs, Assert: true, Test: "defined"}
	narrowed := c.Apply(AnySoft())
	if narrowed.Kind != KindAny {
		t.Fatalf("unknown test names should fall back to Any, got %s", narrowed)
	}
}
