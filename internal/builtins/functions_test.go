package builtins

import (
	"testing"

	"github.com/jinjacore/dbtjinja/internal/value"
)

func intList(t *testing.T, v value.Value) []int64 {
	t.Helper()
	l, ok := v.AsObject().(*value.List)
	if !ok {
		t.Fatalf("expected list, got %T", v.AsObject())
	}
	out := make([]int64, l.Len())
	for i, item := range l.Items() {
		out[i] = item.AsInt()
	}
	return out
}

func TestFnRangeSingleArg(t *testing.T) {
	v, err := fnRange([]value.Value{value.Int(3)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := intList(t, v)
	want := []int64{0, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFnRangeStartStopStep(t *testing.T) {
	v, err := fnRange([]value.Value{value.Int(10), value.Int(0), value.Int(-2)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := intList(t, v)
	want := []int64{10, 8, 6, 4, 2}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFnRangeZeroStepErrors(t *testing.T) {
	_, err := fnRange([]value.Value{value.Int(0), value.Int(5), value.Int(0)}, nil)
	if err == nil {
		t.Fatalf("expected an error for a zero step")
	}
}

func TestFnDictFromKwargs(t *testing.T) {
	kw := value.NewKwargs()
	kw.Set(value.Obj(value.NewString("a")), value.Int(1))
	v, err := fnDict(nil, kw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := v.AsObject().(*value.Map)
	if !ok {
		t.Fatalf("expected map, got %T", v.AsObject())
	}
	got, ok := m.Get(value.Obj(value.NewString("a")))
	if !ok || got.AsInt() != 1 {
		t.Fatalf("expected a=1, got %v (ok=%v)", got, ok)
	}
}

func TestFnNamespaceInitialFields(t *testing.T) {
	kw := value.NewKwargs()
	kw.Set(value.Obj(value.NewString("count")), value.Int(0))
	v, err := fnNamespace(nil, kw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ns, ok := v.AsObject().(*value.Namespace)
	if !ok {
		t.Fatalf("expected namespace, got %T", v.AsObject())
	}
	got, ok := ns.GetAttr("count")
	if !ok || got.AsInt() != 0 {
		t.Fatalf("expected count=0, got %v (ok=%v)", got, ok)
	}
	ns.SetAttr("count", value.Int(1))
	got, _ = ns.GetAttr("count")
	if got.AsInt() != 1 {
		t.Fatalf("expected mutation through SetAttr to stick, got %v", got)
	}
}
