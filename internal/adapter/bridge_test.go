package adapter

import (
	"testing"

	"github.com/jinjacore/dbtjinja/internal/value"
)

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	return New(NewSQLiteAdapter(":memory:"))
}

func mustDispatch(t *testing.T, b *Bridge, op string, args ...value.Value) value.Value {
	t.Helper()
	v, err := b.Dispatch(op, args, nil)
	if err != nil {
		t.Fatalf("dispatch %s: %v", op, err)
	}
	return v
}

func mustDispatchFetch(t *testing.T, b *Bridge, sql string) value.Value {
	t.Helper()
	kw := value.NewKwargs()
	kw.Set(value.Obj(value.NewString("fetch")), value.Bool(true))
	v, err := b.Dispatch("execute", []value.Value{value.Obj(value.NewString(sql))}, kw)
	if err != nil {
		t.Fatalf("dispatch execute(fetch): %v", err)
	}
	return v
}

func TestBridgeExecuteCreateAndSelect(t *testing.T) {
	b := newTestBridge(t)

	mustDispatch(t, b, "execute", value.Obj(value.NewString(
		"CREATE TABLE widgets (id INTEGER, name TEXT)")))
	mustDispatch(t, b, "execute", value.Obj(value.NewString(
		"INSERT INTO widgets VALUES (1, 'bolt')")))

	res := mustDispatchFetch(t, b, "SELECT id, name FROM widgets")
	m, ok := res.AsObject().(*value.Map)
	if !ok {
		t.Fatalf("execute result is not a map: %T", res.AsObject())
	}
	rowsV, ok := m.Get(value.Obj(value.NewString("rows")))
	if !ok {
		t.Fatalf("execute result missing rows")
	}
	rows, ok := rowsV.AsObject().(*value.List)
	if !ok {
		t.Fatalf("rows is not a list: %T", rowsV.AsObject())
	}
	if rows.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", rows.Len())
	}
}

func TestBridgeGetColumnsInRelation(t *testing.T) {
	b := newTestBridge(t)
	mustDispatch(t, b, "execute", value.Obj(value.NewString(
		"CREATE TABLE orders (id INTEGER, total REAL)")))

	rel := RelationToValue(Relation{Identifier: "orders"})
	res := mustDispatch(t, b, "get_columns_in_relation", rel)
	list, ok := res.AsObject().(*value.List)
	if !ok {
		t.Fatalf("expected list result, got %T", res.AsObject())
	}
	if list.Len() != 2 {
		t.Fatalf("expected 2 columns, got %d", list.Len())
	}
}

func TestBridgeDropRelation(t *testing.T) {
	b := newTestBridge(t)
	mustDispatch(t, b, "execute", value.Obj(value.NewString("CREATE TABLE throwaway (id INTEGER)")))
	mustDispatch(t, b, "drop_relation", RelationToValue(Relation{Identifier: "throwaway"}))

	guard, err := b.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer guard.Close()

	rel, found, err := b.adapter.GetRelation(guard.Conn(), "", "", "throwaway")
	if err != nil {
		t.Fatalf("get_relation after drop: %v", err)
	}
	if found {
		t.Fatalf("expected relation to be gone after drop_relation, got %v", rel)
	}
}

func TestBridgeUnknownOpIsNotImplemented(t *testing.T) {
	b := newTestBridge(t)
	_, err := b.Dispatch("parse_index", nil, nil)
	if err == nil {
		t.Fatalf("expected NotImplementedError")
	}
	nie, ok := err.(*NotImplementedError)
	if !ok {
		t.Fatalf("expected *NotImplementedError, got %T", err)
	}
	if nie.Op != "parse_index" {
		t.Fatalf("expected op %q, got %q", "parse_index", nie.Op)
	}
}

func TestConnGuardDiscardsOnNestedBorrow(t *testing.T) {
	b := newTestBridge(t)

	g1, err := b.Acquire()
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	g2, err := b.Acquire()
	if err != nil {
		t.Fatalf("acquire 2: %v", err)
	}

	// g2 returns first, filling the slot; g1 returning after should be
	// discarded rather than clobbering the slot's occupant.
	g2.Close()
	if b.slot == nil {
		t.Fatalf("expected slot to hold g2's connection")
	}
	held := b.slot
	g1.Close()
	if b.slot != held {
		t.Fatalf("expected g1's connection to be discarded, slot changed")
	}
}
