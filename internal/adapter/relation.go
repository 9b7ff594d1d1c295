package adapter

import (
	"fmt"

	"github.com/jinjacore/dbtjinja/internal/value"
)

// Relation identifies a database object by its three-part name. Templates
// build and pass these as plain host values; the bridge downcasts them back
// out of a value.Value before forwarding to the Adapter.
type Relation struct {
	Database   string
	Schema     string
	Identifier string
}

func (r Relation) String() string {
	switch {
	case r.Database == "" && r.Schema == "":
		return r.Identifier
	case r.Database == "":
		return fmt.Sprintf("%s.%s", r.Schema, r.Identifier)
	default:
		return fmt.Sprintf("%s.%s.%s", r.Database, r.Schema, r.Identifier)
	}
}

// Column is one column of a relation's schema, as reported by
// GetColumnsInRelation.
type Column struct {
	Name  string
	DType string
}

// relationObject is the Object a Relation presents as inside a template:
// its three parts readable by attribute, its unquoted dotted form (as
// Relation.String gives it) by Render.
type relationObject struct {
	rel Relation
}

func (r *relationObject) Type() string  { return "relation" }
func (r *relationObject) Truthy() bool  { return true }
func (r *relationObject) Repr() value.Repr { return value.ReprPlain }
func (r *relationObject) Enumeration() value.Enumeration { return value.EnumNonEnumerable }
func (r *relationObject) Mutable() bool { return false }
func (r *relationObject) Render() (string, bool) { return r.rel.String(), true }

func (r *relationObject) GetAttr(name string) (value.Value, bool) {
	switch name {
	case "database":
		return value.Obj(value.NewString(r.rel.Database)), true
	case "schema":
		return value.Obj(value.NewString(r.rel.Schema)), true
	case "identifier":
		return value.Obj(value.NewString(r.rel.Identifier)), true
	}
	return value.Undefined(), false
}

// RelationToValue wraps rel as a template-visible value.
func RelationToValue(rel Relation) value.Value {
	return value.Obj(&relationObject{rel: rel})
}

// ValueToString downcasts a template string value back to a Go string.
func ValueToString(v value.Value) (string, bool) {
	if !v.IsObj() {
		return "", false
	}
	s, ok := v.AsObject().(*value.String)
	if !ok {
		return "", false
	}
	return s.Go(), true
}

// ValueToRelation downcasts a value built by RelationToValue, or a plain
// map/namespace carrying database/schema/identifier attributes, back into a
// Relation.
func ValueToRelation(v value.Value) (Relation, bool) {
	if !v.IsObj() {
		return Relation{}, false
	}
	if ro, ok := v.AsObject().(*relationObject); ok {
		return ro.rel, true
	}
	attrOf, ok := v.AsObject().(interface {
		GetAttr(string) (value.Value, bool)
	})
	if !ok {
		return Relation{}, false
	}
	var rel Relation
	if dbv, ok := attrOf.GetAttr("database"); ok {
		rel.Database, _ = ValueToString(dbv)
	}
	if sv, ok := attrOf.GetAttr("schema"); ok {
		rel.Schema, _ = ValueToString(sv)
	}
	iv, ok := attrOf.GetAttr("identifier")
	if !ok {
		return Relation{}, false
	}
	rel.Identifier, _ = ValueToString(iv)
	return rel, true
}
