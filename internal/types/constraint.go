package types

// Part is one step of a dotted refinement path: either a named attribute
// or a literal subscript.
type Part struct {
	IsAttr bool
	Attr   string
	Index  int
}

// Path is a dotted path like `user.profile.name`, rooted at a local name.
type Path struct {
	Root  string
	Parts []Part
}

// ConstraintKind enumerates the kinds of refinement a TypeConstraint hint
// can assert: that a value is non-null, or that it passed/failed a named
// membership test.
type ConstraintKind uint8

const (
	ConstraintNotNull ConstraintKind = iota
	ConstraintIs
)

// Constraint is a single refinement produced by codegen's type-constraint
// extraction and consumed by the checker's refinement map.
type Constraint struct {
	Kind   ConstraintKind
	Path   Path
	Assert bool   // true in the taken branch, false (negated) in the other
	Test   string // ConstraintIs: the `is <name>` test name
}

// Invert returns the logically negated constraint; inverting twice
// returns an equivalent constraint.
func (c Constraint) Invert() Constraint {
	c.Assert = !c.Assert
	return c
}

// Apply narrows t according to c.
func (c Constraint) Apply(t Type) Type {
	switch c.Kind {
	case ConstraintNotNull:
		if c.Assert {
			return t.GetNonOptionalType()
		}
		if t.IsOptional() {
			return None()
		}
		return t
	case ConstraintIs:
		testType := testResultType(c.Test)
		if c.Assert {
			return Union(t, testType).narrowToward(testType)
		}
		return t.Exclude(testType.Kind)
	}
	return t
}

// narrowToward restricts a union type down to the branch matching want,
// falling back to want itself when t carries no more specific information.
func (t Type) narrowToward(want Type) Type {
	if t.Kind == KindUnion {
		for _, m := range t.Union {
			if m.Kind == want.Kind {
				return m
			}
		}
	}
	if t.Kind == want.Kind {
		return t
	}
	return want
}

// testResultType maps a membership-test name to the Type it asserts, e.g.
// `sequence` (the name codegen records for `x | is_list`) to List<Any~>.
func testResultType(name string) Type {
	switch name {
	case "none":
		return None()
	case "string":
		return String()
	case "number", "integer":
		return Integer()
	case "float":
		return Float()
	case "sequence", "list", "iterable":
		return List(AnySoft())
	case "mapping", "dict":
		return Dict(String(), AnySoft())
	case "boolean":
		return Bool()
	default:
		return AnySoft()
	}
}
