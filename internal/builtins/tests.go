package builtins

import (
	"strings"

	"github.com/jinjacore/dbtjinja/internal/value"
	"github.com/jinjacore/dbtjinja/internal/vm"
)

// Tests is the default `is name(...)` membership-test registry.
var Tests = map[string]vm.TestFunc{
	"defined":      func(t value.Value, a []value.Value) (bool, error) { return !t.IsUndefined(), nil },
	"undefined":    func(t value.Value, a []value.Value) (bool, error) { return t.IsUndefined(), nil },
	"none":         func(t value.Value, a []value.Value) (bool, error) { return t.IsNone(), nil },
	"string":       testIsString,
	"number":       testIsNumber,
	"integer":      func(t value.Value, a []value.Value) (bool, error) { return t.IsInt(), nil },
	"float":        func(t value.Value, a []value.Value) (bool, error) { return t.IsFloat(), nil },
	"boolean":      func(t value.Value, a []value.Value) (bool, error) { return t.IsBool(), nil },
	"sequence":     testIsSequence,
	"iterable":     testIsSequence,
	"list":         testIsSequence,
	"mapping":      testIsMapping,
	"odd":          func(t value.Value, a []value.Value) (bool, error) { return t.IsInt() && t.AsInt()%2 != 0, nil },
	"even":         func(t value.Value, a []value.Value) (bool, error) { return t.IsInt() && t.AsInt()%2 == 0, nil },
	"divisibleby":  testDivisibleBy,
	"eq":           testEq,
	"equalto":      testEq,
	"in":           testIn,
	"lower":        testLower,
	"upper":        testUpper,
}

func testIsString(t value.Value, a []value.Value) (bool, error) {
	if !t.IsObj() {
		return false, nil
	}
	_, ok := t.AsObject().(*value.String)
	return ok, nil
}

func testIsNumber(t value.Value, a []value.Value) (bool, error) {
	return t.IsInt() || t.IsFloat(), nil
}

func testIsSequence(t value.Value, a []value.Value) (bool, error) {
	_, ok := items(t)
	return ok, nil
}

func testIsMapping(t value.Value, a []value.Value) (bool, error) {
	if !t.IsObj() {
		return false, nil
	}
	_, ok := t.AsObject().(*value.Map)
	return ok, nil
}

func testDivisibleBy(t value.Value, a []value.Value) (bool, error) {
	if len(a) == 0 || !t.IsInt() || !a[0].IsInt() || a[0].AsInt() == 0 {
		return false, nil
	}
	return t.AsInt()%a[0].AsInt() == 0, nil
}

func testEq(t value.Value, a []value.Value) (bool, error) {
	if len(a) == 0 {
		return false, nil
	}
	return value.Equal(t, a[0]), nil
}

func testIn(t value.Value, a []value.Value) (bool, error) {
	if len(a) == 0 {
		return false, nil
	}
	elems, ok := items(a[0])
	if !ok {
		return false, nil
	}
	for _, e := range elems {
		if value.Equal(t, e) {
			return true, nil
		}
	}
	return false, nil
}

func testLower(t value.Value, a []value.Value) (bool, error) {
	s := textOf(t)
	return s == strings.ToLower(s), nil
}

func testUpper(t value.Value, a []value.Value) (bool, error) {
	s := textOf(t)
	return s == strings.ToUpper(s), nil
}
