package value

import "testing"

func TestMapSetGetPreservesInsertionOrder(t *testing.T) {
	m := NewMap()
	m.Set(Obj(NewString("b")), Int(2))
	m.Set(Obj(NewString("a")), Int(1))
	m.Set(Obj(NewString("b")), Int(22)) // update, should not move position

	entries := m.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if s, _ := entries[0].Key.AsObject().(*String); s.Go() != "b" {
		t.Fatalf("expected first entry to stay %q after update, got %q", "b", s.Go())
	}
	if entries[0].Val.AsInt() != 22 {
		t.Fatalf("expected updated value 22, got %d", entries[0].Val.AsInt())
	}
}

func TestMapGetMissing(t *testing.T) {
	m := NewMap()
	_, ok := m.Get(Obj(NewString("missing")))
	if ok {
		t.Fatalf("expected ok=false for a missing key")
	}
}

func TestListAppendAndGet(t *testing.T) {
	l := NewMutableList([]Value{Int(1)})
	if !l.Mutable() {
		t.Fatalf("NewMutableList should report Mutable() == true")
	}
	l.Append(Int(2))
	if l.Len() != 2 {
		t.Fatalf("expected len 2 after append, got %d", l.Len())
	}
	v, ok := l.Get(1)
	if !ok || v.AsInt() != 2 {
		t.Fatalf("expected item 1 == 2, got %v (ok=%v)", v, ok)
	}
	if _, ok := l.Get(5); ok {
		t.Fatalf("expected ok=false for an out-of-range index")
	}
}

func TestListItemsSnapshotIsIndependent(t *testing.T) {
	l := NewMutableList([]Value{Int(1), Int(2)})
	snap := l.Items()
	l.Append(Int(3))
	if len(snap) != 2 {
		t.Fatalf("a prior Items() snapshot should not observe a later append")
	}
}

func TestKwargsUnusedTracksMarkedKeys(t *testing.T) {
	kw := NewKwargs()
	kw.Set(Obj(NewString("a")), Int(1))
	kw.Set(Obj(NewString("b")), Int(2))
	kw.MarkUsed("a")

	unused := kw.Unused()
	if len(unused) != 1 || unused[0] != "b" {
		t.Fatalf("expected only %q unused, got %v", "b", unused)
	}
}

func TestHostObjectGetAttrAndCall(t *testing.T) {
	called := false
	h := &HostObject{
		TypeName: "thing",
		Data:     "x",
		Attrs:    map[string]Value{"name": Obj(NewString("widget"))},
		Callable: func(args []Value, kwargs *Kwargs) (Value, error) {
			called = true
			return Int(int64(len(args))), nil
		},
	}
	v, ok := h.GetAttr("name")
	if !ok {
		t.Fatalf("expected GetAttr(name) to succeed")
	}
	if s, _ := v.AsObject().(*String); s.Go() != "widget" {
		t.Fatalf("expected %q, got %v", "widget", v)
	}

	res, err := h.Call([]Value{Int(1), Int(2)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatalf("expected Callable to be invoked")
	}
	if res.AsInt() != 2 {
		t.Fatalf("expected Call to report 2 args, got %d", res.AsInt())
	}
}

func TestHostObjectRenderFn(t *testing.T) {
	h := &HostObject{TypeName: "module", RenderFn: func() (string, bool) { return "rendered", true }}
	text, safe := h.Render()
	if text != "rendered" || !safe {
		t.Fatalf("expected RenderFn result to surface through Render(), got (%q, %v)", text, safe)
	}
}

func TestNamespaceSetAttrThenGetAttr(t *testing.T) {
	ns := NewNamespace(map[string]Value{"count": Int(0)})
	ns.SetAttr("count", Int(5))
	v, ok := ns.GetAttr("count")
	if !ok || v.AsInt() != 5 {
		t.Fatalf("expected count == 5 after SetAttr, got %v (ok=%v)", v, ok)
	}
}
